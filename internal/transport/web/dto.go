package web

import (
	"github.com/avstrong/staybook/internal/booking"
	"github.com/avstrong/staybook/internal/payment"
)

type createBookingRequest struct {
	GuestID       string              `json:"guest_id"`
	PaymentMethod string              `json:"payment_method"`
	Stay          booking.StayRequest `json:"stay"`
}

type statusRequest struct {
	Target            string `json:"target"             validate:"required_without=Event"`
	Event             string `json:"event"`
	Note              string `json:"note"               validate:"max=500"`
	PaymentReference  string `json:"payment_reference"  validate:"max=128"`
	TransferReference string `json:"transfer_reference" validate:"max=128"`
}

func (r statusRequest) toDomain(actor string) (booking.StatusRequest, error) {
	req := booking.StatusRequest{
		Actor:             actor,
		Note:              r.Note,
		PaymentReference:  r.PaymentReference,
		TransferReference: r.TransferReference,
	}

	if r.Target != "" {
		target, err := booking.ParseStatus(r.Target)
		if err != nil {
			return req, booking.NewValidationError(err.Error())
		}

		req.Target = target
	}

	if r.Event != "" {
		event, err := booking.ParseEvent(r.Event)
		if err != nil {
			return req, booking.NewValidationError(err.Error())
		}

		req.Event = event
	}

	return req, nil
}

type paymentRequest struct {
	Method            string `json:"method"             validate:"omitempty,oneof=card bank cash"`
	TransferReference string `json:"transfer_reference" validate:"max=128"`
}

type callbackForm struct {
	MerchantID    string `validate:"required"`
	OrderID       string `validate:"required"`
	TransactionID string `validate:"required"`
	Status        string `validate:"required,oneof=success failure"`
	Signature     string `validate:"required,hexadecimal"`
}

func (f callbackForm) toDomain() payment.Callback {
	return payment.Callback{
		MerchantID:     f.MerchantID,
		OrderReference: f.OrderID,
		TransactionID:  f.TransactionID,
		Outcome:        payment.Outcome(f.Status),
		Signature:      f.Signature,
	}
}

type ErrorResponse struct {
	Error   string           `json:"error"`
	Message string           `json:"message"`
	Details []string         `json:"details,omitempty"`
	Current *booking.Booking `json:"current,omitempty"`
}
