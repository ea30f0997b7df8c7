package booking

import "fmt"

type Status string

const (
	StatusPendingApproval           Status = "PendingApproval"
	StatusOnHold                    Status = "OnHold"
	StatusApprovedPaymentPending    Status = "ApprovedPaymentPending"
	StatusApprovedPaymentProcessing Status = "ApprovedPaymentProcessing"
	StatusConfirmed                 Status = "Confirmed"
	StatusRejected                  Status = "Rejected"
	StatusCancelled                 Status = "Cancelled"
	StatusCompleted                 Status = "Completed"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{
	StatusPendingApproval,
	StatusOnHold,
	StatusApprovedPaymentPending,
	StatusApprovedPaymentProcessing,
	StatusConfirmed,
	StatusRejected,
	StatusCancelled,
	StatusCompleted,
}

func (s Status) IsValid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}

	return false
}

func (s Status) IsTerminal() bool {
	return s == StatusRejected || s == StatusCancelled || s == StatusCompleted
}

// holdsRoom reports whether a booking in this status carries a hold expiry.
func (s Status) holdsRoom() bool {
	return s == StatusOnHold || s == StatusApprovedPaymentPending || s == StatusApprovedPaymentProcessing
}

// Amendable reports whether dates, guests or food may still change.
func (s Status) Amendable() bool {
	return s == StatusPendingApproval || s == StatusOnHold
}

func ParseStatus(s string) (Status, error) {
	status := Status(s)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid booking status: %s", s)
	}

	return status, nil
}

type Event string

const (
	EventApprove          Event = "approve"
	EventApproveSettled   Event = "approve_settled"
	EventReject           Event = "reject"
	EventHold             Event = "hold"
	EventExpireHold       Event = "expire_hold"
	EventSubmitPayment    Event = "submit_payment"
	EventPayAtProperty    Event = "pay_at_property"
	EventPaymentSucceeded Event = "payment_succeeded"
	EventPaymentFailed    Event = "payment_failed"
	EventComplete         Event = "complete"
	EventCancel           Event = "cancel"

	// EventCreated marks the first entry of a booking's history. It is not a transition.
	EventCreated Event = "created"
)

// events is the resolution order used when a caller names only a target status.
var events = []Event{
	EventApprove,
	EventApproveSettled,
	EventReject,
	EventHold,
	EventSubmitPayment,
	EventPayAtProperty,
	EventPaymentSucceeded,
	EventPaymentFailed,
	EventComplete,
	EventCancel,
	EventExpireHold,
}

func ParseEvent(s string) (Event, error) {
	for _, known := range events {
		if Event(s) == known {
			return known, nil
		}
	}

	return "", fmt.Errorf("invalid booking event: %s", s)
}

type transitionKey struct {
	from  Status
	event Event
}

var transitions = map[transitionKey]Status{
	{StatusPendingApproval, EventApprove}:        StatusApprovedPaymentPending,
	{StatusPendingApproval, EventApproveSettled}: StatusConfirmed,
	{StatusPendingApproval, EventReject}:         StatusRejected,
	{StatusPendingApproval, EventHold}:           StatusOnHold,
	{StatusPendingApproval, EventCancel}:         StatusCancelled,

	{StatusOnHold, EventApprove}:        StatusApprovedPaymentPending,
	{StatusOnHold, EventApproveSettled}: StatusConfirmed,
	{StatusOnHold, EventExpireHold}:     StatusCancelled,
	{StatusOnHold, EventCancel}:         StatusCancelled,

	{StatusApprovedPaymentPending, EventSubmitPayment}: StatusApprovedPaymentProcessing,
	{StatusApprovedPaymentPending, EventPayAtProperty}: StatusConfirmed,
	{StatusApprovedPaymentPending, EventCancel}:        StatusCancelled,

	{StatusApprovedPaymentProcessing, EventPaymentSucceeded}: StatusConfirmed,
	{StatusApprovedPaymentProcessing, EventPaymentFailed}:    StatusApprovedPaymentPending,
	{StatusApprovedPaymentProcessing, EventCancel}:           StatusCancelled,

	{StatusConfirmed, EventComplete}: StatusCompleted,
	{StatusConfirmed, EventCancel}:   StatusCancelled,
}

// Allows reports whether event is defined for a booking in status from.
func Allows(from Status, event Event) bool {
	_, ok := transitions[transitionKey{from, event}]

	return ok
}

// ResolveEvent finds the event that moves a booking from one status to another.
func ResolveEvent(from, to Status) (Event, bool) {
	for _, event := range events {
		if next, ok := transitions[transitionKey{from, event}]; ok && next == to {
			return event, true
		}
	}

	return "", false
}
