package booking

import (
	"fmt"
	"math"
	"time"
)

const (
	MsgCheckInRequired    = "Check-in date is required"
	MsgCheckOutRequired   = "Check-out date is required"
	MsgCheckInInPast      = "Check-in date cannot be in the past"
	MsgCheckOutNotAfter   = "Check-out date must be after check-in date"
	MsgStayTooLong        = "Stay cannot exceed 365 nights"
	MsgGuestsBelowMinimum = "At least 1 guest is required"
	MsgMealLineInvalid    = "Each meal needs an item, a quantity of at least 1 and a non-negative price"
	msgGuestsOverCapacity = "Number of guests exceeds room capacity of %d"
)

type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// Err returns a *ValidationError carrying every message, or nil when valid.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}

	return NewValidationError(r.Errors...)
}

type Validator struct {
	now func() time.Time
}

func NewValidator(now func() time.Time) *Validator {
	if now == nil {
		now = time.Now
	}

	return &Validator{now: now}
}

// Validate checks every rule in one pass. room may be nil when capacity is unknown.
func (v *Validator) Validate(stay StayRequest, room *Room) ValidationResult {
	var errs []string

	if stay.CheckIn.IsZero() {
		errs = append(errs, MsgCheckInRequired)
	}

	if stay.CheckOut.IsZero() {
		errs = append(errs, MsgCheckOutRequired)
	}

	if !stay.CheckIn.IsZero() && CalendarDate(stay.CheckIn).Before(CalendarDate(v.now())) {
		errs = append(errs, MsgCheckInInPast)
	}

	if !stay.CheckIn.IsZero() && !stay.CheckOut.IsZero() {
		nights := stay.Nights()

		if nights <= 0 {
			errs = append(errs, MsgCheckOutNotAfter)
		}

		if nights > MaxNights {
			errs = append(errs, MsgStayTooLong)
		}
	}

	if stay.Guests < 1 {
		errs = append(errs, MsgGuestsBelowMinimum)
	}

	if room != nil && stay.Guests > room.MaxCapacity {
		errs = append(errs, fmt.Sprintf(msgGuestsOverCapacity, room.MaxCapacity))
	}

	if items, ok := stay.Food.(Itemized); ok {
		for _, line := range items.Lines {
			if line.ItemID == "" || line.Quantity < 1 || line.UnitPrice < 0 || math.IsNaN(line.UnitPrice) {
				errs = append(errs, MsgMealLineInvalid)

				break
			}
		}
	}

	return ValidationResult{
		Valid:  len(errs) == 0,
		Errors: errs,
	}
}
