package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/avstrong/staybook/internal/logger"
)

const (
	ActorSystem = "system"

	msgGuestRequired        = "Guest is required"
	msgPaymentMethodInvalid = "Payment method must be one of card, bank, cash"
	msgCashNotSubmitted     = "Cash bookings are paid at the property"
)

var tracer = otel.Tracer("github.com/avstrong/staybook/internal/booking")

// Store is the booking persistence boundary. UpdateStatus and UpdateStay must
// only write when the stored status still equals expected, otherwise they
// return a *ConflictError.
type Store interface {
	Create(ctx context.Context, draft *Booking, idempotencyKey string) (*Booking, error)
	Get(ctx context.Context, number string) (*Booking, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*Booking, error)
	UpdateStatus(ctx context.Context, number string, expected Status, change StatusChange) (*Booking, error)
	UpdateStay(ctx context.Context, number string, expected Status, stay StayRequest, cost CostBreakdown) (*Booking, error)
	ListEvents(ctx context.Context, number string) ([]*StatusEvent, error)
}

type RoomCatalog interface {
	GetRoom(ctx context.Context, roomID string) (*Room, error)
	CheckOverlap(ctx context.Context, roomID string, checkIn, checkOut time.Time, excludeNumber string) (bool, error)
}

type costCalculator interface {
	Compute(stay StayRequest, ratePerNight float64) CostBreakdown
}

type paymentInitiator interface {
	InitiatePayment(ctx context.Context, b *Booking, req PaymentRequest) (*PaymentResult, error)
}

type Config struct {
	HoldDuration time.Duration
	Now          func() time.Time
}

type Manager struct {
	l          *logger.Logger
	store      Store
	rooms      RoomCatalog
	calculator costCalculator
	validator  *Validator
	machine    *Machine
	payments   paymentInitiator
	now        func() time.Time
}

func New(l *logger.Logger, conf Config, store Store, rooms RoomCatalog, calculator costCalculator) *Manager {
	now := conf.Now
	if now == nil {
		now = time.Now
	}

	//nolint:exhaustruct // payments are attached later with UsePayments
	return &Manager{
		l:          l,
		store:      store,
		rooms:      rooms,
		calculator: calculator,
		validator:  NewValidator(now),
		machine:    NewMachine(conf.HoldDuration),
		now:        now,
	}
}

// UsePayments attaches the coordinator that executes payment obligations.
func (m *Manager) UsePayments(p paymentInitiator) {
	m.payments = p
}

func (m *Manager) getRoom(ctx context.Context, roomID string) (*Room, error) {
	if roomID == "" {
		return nil, &NotFoundError{Kind: "room", ID: roomID}
	}

	room, err := m.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("get room %v: %w", roomID, err)
	}

	return room, nil
}

// Quote prices a stay without creating anything.
func (m *Manager) Quote(ctx context.Context, stay StayRequest) (CostBreakdown, error) {
	room, err := m.getRoom(ctx, stay.RoomID)
	if err != nil {
		return CostBreakdown{}, err
	}

	return m.calculator.Compute(stay, room.RatePerNight), nil
}

// Validate runs the stay rules against the room's capacity.
func (m *Manager) Validate(ctx context.Context, stay StayRequest) (ValidationResult, error) {
	room, err := m.getRoom(ctx, stay.RoomID)
	if err != nil {
		return ValidationResult{}, err
	}

	return m.validator.Validate(stay, room), nil
}

func (m *Manager) validateInput(input *CreateInput, room *Room) error {
	result := m.validator.Validate(input.Stay, room)

	verr := NewValidationError(result.Errors...)

	if input.GuestID == "" {
		verr.add(msgGuestRequired)
	}

	if !input.PaymentMethod.IsValid() {
		verr.add(msgPaymentMethodInvalid)
	}

	if len(verr.errors) > 0 {
		return verr
	}

	return nil
}

func (m *Manager) checkAvailability(ctx context.Context, stay StayRequest, excludeNumber string) error {
	overlaps, err := m.rooms.CheckOverlap(ctx, stay.RoomID, stay.CheckIn, stay.CheckOut, excludeNumber)
	if err != nil {
		return fmt.Errorf("check overlap for room %v: %w", stay.RoomID, err)
	}

	if overlaps {
		availabilityErr := NewAvailabilityError()
		availabilityErr.AddUnavailableRoom(stay.RoomID, stay.CheckIn, stay.CheckOut)

		return availabilityErr
	}

	return nil
}

// replayOnUnavailable covers a retry that lost the race to its own first attempt:
// the room is taken by the booking stored under the same idempotency key.
func (m *Manager) replayOnUnavailable(ctx context.Context, key string, unavailable error) (*Booking, error) {
	existing, err := m.store.GetByIdempotencyKey(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrRecordNotFound) {
			m.l.WithContext(ctx).LogErrorf("Get booking by idempotency key %v: %v", key, err.Error())
		}

		return nil, unavailable
	}

	m.l.WithContext(ctx).LogInfo("Replayed booking %v for idempotency key %v", existing.Number, key)

	return existing, nil
}

//nolint:funlen // it's linear simple code
func (m *Manager) CreateBooking(ctx context.Context, input *CreateInput) (*Booking, error) {
	ctx, span := tracer.Start(ctx, "booking.CreateBooking")
	defer span.End()

	key, ok := IdempotencyKeyFromContext(ctx)
	if !ok {
		key = uuid.NewString()
		m.l.WithContext(ctx).LogInfo("No idempotency key supplied, generated %v", key)
	}

	existing, err := m.store.GetByIdempotencyKey(ctx, key)
	if err != nil && !errors.Is(err, ErrRecordNotFound) {
		return nil, fmt.Errorf("get booking by idempotency key: %w", err)
	}

	if err == nil {
		m.l.WithContext(ctx).LogInfo("Replayed booking %v for idempotency key %v", existing.Number, key)

		return existing, nil
	}

	room, err := m.getRoom(ctx, input.Stay.RoomID)
	if err != nil {
		return nil, err
	}

	if err := m.validateInput(input, room); err != nil {
		return nil, err
	}

	if err := m.checkAvailability(ctx, input.Stay, ""); err != nil {
		return m.replayOnUnavailable(ctx, key, err)
	}

	now := m.now().UTC()

	//nolint:exhaustruct // number is assigned by storage
	draft := &Booking{
		RoomID:        room.ID,
		GuestID:       input.GuestID,
		Stay:          input.Stay,
		Cost:          m.calculator.Compute(input.Stay, room.RatePerNight),
		PaymentMethod: input.PaymentMethod,
		Status:        StatusPendingApproval,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	created, err := m.store.Create(ctx, draft, key)
	if err != nil {
		if IsAvailabilityError(err) != nil {
			return m.replayOnUnavailable(ctx, key, err)
		}

		span.SetStatus(codes.Error, err.Error())

		return nil, fmt.Errorf("save booking to storage: %w", err)
	}

	span.SetAttributes(attribute.String("booking.number", created.Number))

	m.l.WithContext(ctx).WithFields(map[string]any{
		"booking": created.Number,
		"room":    created.RoomID,
		"total":   created.Cost.Total,
	}).LogInfo("Booking has been created")

	return created, nil
}

func (m *Manager) GetBooking(ctx context.Context, number string) (*Booking, error) {
	b, err := m.store.Get(ctx, number)
	if err != nil {
		return nil, fmt.Errorf("get booking %v: %w", number, err)
	}

	return b, nil
}

func (m *Manager) ListEvents(ctx context.Context, number string) ([]*StatusEvent, error) {
	if _, err := m.GetBooking(ctx, number); err != nil {
		return nil, err
	}

	events, err := m.store.ListEvents(ctx, number)
	if err != nil {
		return nil, fmt.Errorf("list events of booking %v: %w", number, err)
	}

	return events, nil
}

// UpdateStatus moves a booking toward req.Target. A move into payment processing
// is handed to the payment coordinator, which performs the transition itself.
func (m *Manager) UpdateStatus(ctx context.Context, number string, req StatusRequest) (*PaymentResult, error) {
	current, err := m.GetBooking(ctx, number)
	if err != nil {
		return nil, err
	}

	event := req.Event
	if event == "" {
		resolved, ok := ResolveEvent(current.Status, req.Target)
		if !ok {
			return nil, &InvalidTransitionError{From: current.Status, To: req.Target}
		}

		event = resolved
	} else if req.Target != "" && transitions[transitionKey{current.Status, event}] != req.Target {
		return nil, &InvalidTransitionError{From: current.Status, To: req.Target, Event: event}
	}

	if event == EventSubmitPayment && current.PaymentMethod == PaymentMethodCash {
		return nil, NewValidationError(msgCashNotSubmitted)
	}

	if event == EventSubmitPayment && m.payments != nil {
		return m.payments.InitiatePayment(ctx, current, PaymentRequest{
			Method:            current.PaymentMethod,
			TransferReference: req.TransferReference,
			Actor:             req.Actor,
		})
	}

	updated, err := m.apply(ctx, current, event, ChangeContext{
		Actor:            req.Actor,
		Note:             req.Note,
		PaymentReference: req.PaymentReference,
	})
	if err != nil {
		return nil, err
	}

	return &PaymentResult{Booking: updated}, nil
}

// ApplyEvent re-reads the booking and applies event to its current status.
func (m *Manager) ApplyEvent(ctx context.Context, number string, event Event, cc ChangeContext) (*Booking, error) {
	current, err := m.GetBooking(ctx, number)
	if err != nil {
		return nil, err
	}

	return m.apply(ctx, current, event, cc)
}

func (m *Manager) apply(ctx context.Context, current *Booking, event Event, cc ChangeContext) (*Booking, error) {
	ctx, span := tracer.Start(ctx, "booking.ApplyEvent", trace.WithAttributes(
		attribute.String("booking.number", current.Number),
		attribute.String("booking.event", string(event)),
	))
	defer span.End()

	now := m.now().UTC()

	t, err := m.machine.Next(current, event, now)
	if err != nil {
		return nil, err
	}

	actor := cc.Actor
	if actor == "" {
		actor = ActorFromContext(ctx)
	}

	change := StatusChange{
		From:             t.From,
		To:               t.To,
		Event:            t.Event,
		HoldUntil:        t.HoldUntil,
		PaymentReference: cc.PaymentReference,
		Actor:            actor,
		Note:             cc.Note,
		TraceID:          traceID(ctx),
		At:               now,
	}

	if t.Rerouted {
		change.Actor = ActorSystem
		change.Note = fmt.Sprintf("hold expired before %v", event)
		change.PaymentReference = ""
	}

	updated, err := m.store.UpdateStatus(ctx, current.Number, current.Status, change)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())

		return nil, m.conflict(ctx, current.Number, err)
	}

	m.l.WithContext(ctx).WithFields(map[string]any{
		"booking": updated.Number,
		"from":    t.From,
		"to":      t.To,
		"event":   t.Event,
		"actor":   change.Actor,
	}).LogInfo("Booking status changed")

	if t.Rerouted {
		return updated, fmt.Errorf("booking %v: %w", updated.Number, ErrHoldExpired)
	}

	return updated, nil
}

// conflict attaches the re-fetched booking to a storage conflict so the caller can decide.
func (m *Manager) conflict(ctx context.Context, number string, err error) error {
	conflictErr := IsConflictError(err)
	if conflictErr == nil {
		return fmt.Errorf("update booking %v in storage: %w", number, err)
	}

	current, getErr := m.store.Get(ctx, number)
	if getErr != nil {
		m.l.WithContext(ctx).LogErrorf("Could not re-fetch booking %v after conflict: %v", number, getErr.Error())

		return conflictErr
	}

	conflictErr.Current = current
	conflictErr.Actual = current.Status

	return conflictErr
}

// AmendStay re-validates and re-prices a booking that is still awaiting approval.
func (m *Manager) AmendStay(ctx context.Context, number string, stay StayRequest) (*Booking, error) {
	ctx, span := tracer.Start(ctx, "booking.AmendStay")
	defer span.End()

	current, err := m.GetBooking(ctx, number)
	if err != nil {
		return nil, err
	}

	if !current.Status.Amendable() {
		return nil, &InvalidTransitionError{From: current.Status, To: current.Status}
	}

	if stay.RoomID == "" {
		stay.RoomID = current.RoomID
	}

	if stay.RoomID != current.RoomID {
		return nil, NewValidationError("Room cannot be changed on an existing booking")
	}

	room, err := m.getRoom(ctx, stay.RoomID)
	if err != nil {
		return nil, err
	}

	if err := m.validator.Validate(stay, room).Err(); err != nil {
		return nil, err
	}

	if err := m.checkAvailability(ctx, stay, number); err != nil {
		return nil, err
	}

	cost := m.calculator.Compute(stay, room.RatePerNight)

	updated, err := m.store.UpdateStay(ctx, number, current.Status, stay, cost)
	if err != nil {
		return nil, m.conflict(ctx, number, err)
	}

	m.l.WithContext(ctx).WithFields(map[string]any{
		"booking": number,
		"total":   cost.Total,
	}).LogInfo("Booking has been re-priced")

	return updated, nil
}

func traceID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		return sc.TraceID().String()
	}

	return ""
}
