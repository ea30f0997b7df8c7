package booking

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrIdempotencyKey    = errors.New("idempotency key not found")
	ErrRecordNotFound    = errors.New("record not found")
	ErrHoldExpired       = errors.New("hold expired, booking cancelled")
	ErrApprovalRequired  = errors.New("admin approval required before payment")
	ErrDuplicateCallback = errors.New("payment callback already processed")
)

type ValidationError struct {
	errors []string
}

func NewValidationError(messages ...string) *ValidationError {
	return &ValidationError{errors: append([]string(nil), messages...)}
}

func IsValidationError(err error) *ValidationError {
	if err == nil {
		return nil
	}

	var validationError *ValidationError

	if errors.As(err, &validationError) {
		return validationError
	}

	return nil
}

func (ve *ValidationError) add(msg string) {
	ve.errors = append(ve.errors, msg)
}

func (ve *ValidationError) Error() string {
	return "validation failed: " + strings.Join(ve.errors, "; ")
}

func (ve *ValidationError) Messages() []string {
	return append([]string(nil), ve.errors...)
}

type InvalidTransitionError struct {
	From  Status
	To    Status
	Event Event
}

func IsInvalidTransitionError(err error) *InvalidTransitionError {
	if err == nil {
		return nil
	}

	var transitionError *InvalidTransitionError

	if errors.As(err, &transitionError) {
		return transitionError
	}

	return nil
}

func (e *InvalidTransitionError) Error() string {
	if e.Event != "" {
		return fmt.Sprintf("invalid transition: event '%v' is not allowed in status '%v'", e.Event, e.From)
	}

	return fmt.Sprintf("invalid transition from '%v' to '%v'", e.From, e.To)
}

// ConflictError reports that storage no longer holds the status the caller read.
// Current is the re-fetched booking when it could be loaded.
type ConflictError struct {
	Number   string
	Expected Status
	Actual   Status
	Current  *Booking
}

func IsConflictError(err error) *ConflictError {
	if err == nil {
		return nil
	}

	var conflictError *ConflictError

	if errors.As(err, &conflictError) {
		return conflictError
	}

	return nil
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("booking '%v' was modified concurrently: expected status '%v', found '%v'", e.Number, e.Expected, e.Actual)
}

type NotFoundError struct {
	Kind string
	ID   string
}

func IsNotFoundError(err error) *NotFoundError {
	if err == nil {
		return nil
	}

	var notFoundError *NotFoundError

	if errors.As(err, &notFoundError) {
		return notFoundError
	}

	return nil
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%v '%v' not found", e.Kind, e.ID)
}

type PaymentError struct {
	Method PaymentMethod
	Err    error
}

func IsPaymentError(err error) *PaymentError {
	if err == nil {
		return nil
	}

	var paymentError *PaymentError

	if errors.As(err, &paymentError) {
		return paymentError
	}

	return nil
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("initiate %v payment: %v", e.Method, e.Err)
}

func (e *PaymentError) Unwrap() error {
	return e.Err
}

type AvailabilityError struct {
	errors []string
}

func NewAvailabilityError() *AvailabilityError {
	//nolint:exhaustruct
	return &AvailabilityError{}
}

func IsAvailabilityError(err error) *AvailabilityError {
	if err == nil {
		return nil
	}

	var availabilityError *AvailabilityError

	if errors.As(err, &availabilityError) {
		return availabilityError
	}

	return nil
}

func (e *AvailabilityError) AddUnavailableRoom(roomID string, from, to time.Time) {
	e.errors = append(e.errors, fmt.Sprintf("room '%v' is already booked between %v and %v",
		roomID, from.Format(time.DateOnly), to.Format(time.DateOnly)))
}

func (e *AvailabilityError) Error() string {
	return fmt.Sprintf("%+v", e.errors)
}

func (e *AvailabilityError) Fields() []string {
	return e.errors
}

func (e *AvailabilityError) UnavailableRoomsCount() int {
	return len(e.errors)
}
