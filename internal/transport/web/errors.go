package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/avstrong/staybook/internal/booking"
	"github.com/avstrong/staybook/internal/payment"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{
		Error:   code,
		Message: msg,
	})
}

func fieldErrors(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}

	details := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, fmt.Sprintf("%s failed on '%s'", fe.Field(), fe.Tag()))
	}

	return details
}

//nolint:cyclop // one branch per error kind
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	if validationErr := booking.IsValidationError(err); validationErr != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_failed",
			Message: "request is invalid",
			Details: validationErr.Messages(),
		})

		return
	}

	if notFoundErr := booking.IsNotFoundError(err); notFoundErr != nil {
		writeError(w, http.StatusNotFound, "not_found", notFoundErr.Error())

		return
	}

	if conflictErr := booking.IsConflictError(err); conflictErr != nil {
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:   "conflict",
			Message: conflictErr.Error(),
			Current: conflictErr.Current,
		})

		return
	}

	if transitionErr := booking.IsInvalidTransitionError(err); transitionErr != nil {
		writeError(w, http.StatusConflict, "invalid_transition", transitionErr.Error())

		return
	}

	if availabilityErr := booking.IsAvailabilityError(err); availabilityErr != nil {
		writeJSON(w, http.StatusPreconditionFailed, ErrorResponse{
			Error:   "unavailable",
			Message: "room is not available for the requested dates",
			Details: availabilityErr.Fields(),
		})

		return
	}

	if paymentErr := booking.IsPaymentError(err); paymentErr != nil {
		s.l.WithContext(r.Context()).LogErrorf("Payment initiation failed: %v", paymentErr.Error())
		writeError(w, http.StatusBadGateway, "payment_failed", "payment gateway is unavailable, please retry")

		return
	}

	switch {
	case errors.Is(err, booking.ErrHoldExpired):
		writeError(w, http.StatusConflict, "hold_expired", err.Error())
	case errors.Is(err, booking.ErrApprovalRequired):
		writeError(w, http.StatusConflict, "approval_required", err.Error())
	case errors.Is(err, payment.ErrInvalidSignature):
		writeError(w, http.StatusUnauthorized, "invalid_signature", "callback signature mismatch")
	default:
		s.l.WithContext(r.Context()).LogErrorf("Request %v %v failed: %v", r.Method, r.URL.Path, err.Error())
		writeError(w, http.StatusInternalServerError, "internal", http.StatusText(http.StatusInternalServerError))
	}
}
