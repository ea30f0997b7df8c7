package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/avstrong/staybook/internal/booking"
)

const bookingColumns = `number, room_id, guest_id, stay, cost, payment_method, status,
	hold_until, payment_reference, created_at, updated_at`

type bookingRow struct {
	Number           string     `db:"number"`
	RoomID           string     `db:"room_id"`
	GuestID          string     `db:"guest_id"`
	Stay             []byte     `db:"stay"`
	Cost             []byte     `db:"cost"`
	PaymentMethod    string     `db:"payment_method"`
	Status           string     `db:"status"`
	HoldUntil        *time.Time `db:"hold_until"`
	PaymentReference string     `db:"payment_reference"`
	CreatedAt        time.Time  `db:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at"`
}

func (r *bookingRow) toBooking() (*booking.Booking, error) {
	b := &booking.Booking{
		Number:           r.Number,
		RoomID:           r.RoomID,
		GuestID:          r.GuestID,
		PaymentMethod:    booking.PaymentMethod(r.PaymentMethod),
		Status:           booking.Status(r.Status),
		PaymentReference: r.PaymentReference,
		CreatedAt:        r.CreatedAt.UTC(),
		UpdatedAt:        r.UpdatedAt.UTC(),
	}

	if r.HoldUntil != nil {
		holdUntil := r.HoldUntil.UTC()
		b.HoldUntil = &holdUntil
	}

	if err := json.Unmarshal(r.Stay, &b.Stay); err != nil {
		return nil, fmt.Errorf("decode stay of booking %v: %w", r.Number, err)
	}

	if err := json.Unmarshal(r.Cost, &b.Cost); err != nil {
		return nil, fmt.Errorf("decode cost of booking %v: %w", r.Number, err)
	}

	return b, nil
}

type eventRow struct {
	ID            int       `db:"id"`
	BookingNumber string    `db:"booking_number"`
	From          string    `db:"from_status"`
	To            string    `db:"to_status"`
	Event         string    `db:"event"`
	Actor         string    `db:"actor"`
	Note          string    `db:"note"`
	TraceID       string    `db:"trace_id"`
	CreatedAt     time.Time `db:"created_at"`
}

func (r *eventRow) toEvent() *booking.StatusEvent {
	return &booking.StatusEvent{
		ID:            r.ID,
		BookingNumber: r.BookingNumber,
		From:          booking.Status(r.From),
		To:            booking.Status(r.To),
		Event:         booking.Event(r.Event),
		Actor:         r.Actor,
		Note:          r.Note,
		TraceID:       r.TraceID,
		CreatedAt:     r.CreatedAt.UTC(),
	}
}

type roomRow struct {
	ID           string  `db:"id"`
	Name         string  `db:"name"`
	RatePerNight float64 `db:"rate_per_night"`
	MaxCapacity  int     `db:"max_capacity"`
}
