package booking

import "time"

// Machine decides transitions. It never mutates the booking it inspects.
type Machine struct {
	holdDuration time.Duration
}

func NewMachine(holdDuration time.Duration) *Machine {
	return &Machine{holdDuration: holdDuration}
}

type Transition struct {
	From      Status
	To        Status
	Event     Event
	HoldUntil *time.Time
	// Rerouted is set when an expired hold turned the requested event into expire_hold.
	Rerouted bool
}

// IsHoldExpired is the guard the expiry job and every transition check consult.
func IsHoldExpired(b *Booking, now time.Time) bool {
	return b.Status == StatusOnHold && b.HoldUntil != nil && !now.Before(*b.HoldUntil)
}

func (m *Machine) Next(b *Booking, event Event, now time.Time) (Transition, error) {
	if b.Status.IsTerminal() || !Allows(b.Status, event) {
		return Transition{}, &InvalidTransitionError{From: b.Status, Event: event}
	}

	expired := IsHoldExpired(b, now)

	if event == EventExpireHold && !expired {
		return Transition{}, &InvalidTransitionError{From: b.Status, Event: event}
	}

	if expired && event != EventExpireHold && event != EventCancel {
		t := m.transition(b.Status, EventExpireHold, now)
		t.Rerouted = true

		return t, nil
	}

	return m.transition(b.Status, event, now), nil
}

func (m *Machine) NextTo(b *Booking, target Status, now time.Time) (Transition, error) {
	event, ok := ResolveEvent(b.Status, target)
	if !ok || b.Status.IsTerminal() {
		return Transition{}, &InvalidTransitionError{From: b.Status, To: target}
	}

	return m.Next(b, event, now)
}

func (m *Machine) transition(from Status, event Event, now time.Time) Transition {
	to := transitions[transitionKey{from, event}]

	t := Transition{
		From:  from,
		To:    to,
		Event: event,
	}

	if to.holdsRoom() {
		holdUntil := now.Add(m.holdDuration).UTC()
		t.HoldUntil = &holdUntil
	}

	return t
}
