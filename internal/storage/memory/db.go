package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/avstrong/staybook/internal/booking"
	"github.com/avstrong/staybook/internal/idgen/simple"
	"github.com/avstrong/staybook/internal/logger"
)

type idGenerator interface {
	GetID(ctx context.Context) (int, error)
	NextNumber(ctx context.Context) (string, error)
}

type Config struct {
	L     *logger.Logger
	IDGen idGenerator
}

type DB struct {
	mu                     sync.Mutex
	l                      *logger.Logger
	idGen                  idGenerator
	rooms                  map[string]*booking.Room
	bookings               map[string]*booking.Booking
	events                 map[string][]*booking.StatusEvent
	bookingIdempotencyKeys map[string]string
}

func New(conf Config) *DB {
	if conf.IDGen == nil {
		conf.IDGen = simple.New()
	}

	if conf.L == nil {
		conf.L = logger.Nop()
	}

	//nolint:exhaustruct
	return &DB{
		l:                      conf.L,
		idGen:                  conf.IDGen,
		rooms:                  make(map[string]*booking.Room),
		bookings:               make(map[string]*booking.Booking),
		events:                 make(map[string][]*booking.StatusEvent),
		bookingIdempotencyKeys: make(map[string]string),
	}
}

func (db *DB) SaveRooms(_ context.Context, rooms []*booking.Room) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, room := range rooms {
		if room.ID == "" {
			return ErrEmptyRoomID
		}

		r := *room
		db.rooms[room.ID] = &r
	}

	return nil
}

func (db *DB) GetRoom(_ context.Context, roomID string) (*booking.Room, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	room, ok := db.rooms[roomID]
	if !ok {
		return nil, &booking.NotFoundError{Kind: "room", ID: roomID}
	}

	r := *room

	return &r, nil
}

// CheckOverlap reports whether a non-terminal booking of the room shares at least one night
// with [checkIn, checkOut). excludeNumber skips the booking being amended.
func (db *DB) CheckOverlap(_ context.Context, roomID string, checkIn, checkOut time.Time, excludeNumber string) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	return db.overlaps(roomID, checkIn, checkOut, excludeNumber), nil
}

// overlaps expects db.mu to be held.
func (db *DB) overlaps(roomID string, checkIn, checkOut time.Time, excludeNumber string) bool {
	in, out := booking.CalendarDate(checkIn), booking.CalendarDate(checkOut)

	for number, b := range db.bookings {
		if number == excludeNumber || b.RoomID != roomID || b.Status.IsTerminal() {
			continue
		}

		if booking.CalendarDate(b.Stay.CheckIn).Before(out) && in.Before(booking.CalendarDate(b.Stay.CheckOut)) {
			return true
		}
	}

	return false
}

// claimRoom fails with *booking.AvailabilityError when the stay collides with another
// non-terminal booking of the room. It expects db.mu to be held.
func (db *DB) claimRoom(roomID string, stay booking.StayRequest, excludeNumber string) error {
	if !db.overlaps(roomID, stay.CheckIn, stay.CheckOut, excludeNumber) {
		return nil
	}

	availabilityErr := booking.NewAvailabilityError()
	availabilityErr.AddUnavailableRoom(roomID, stay.CheckIn, stay.CheckOut)

	return availabilityErr
}

func (db *DB) Create(ctx context.Context, draft *booking.Booking, idempotencyKey string) (*booking.Booking, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if number, ok := db.bookingIdempotencyKeys[idempotencyKey]; ok {
		return db.bookings[number].Clone(), nil
	}

	if !draft.Status.IsTerminal() {
		if err := db.claimRoom(draft.RoomID, draft.Stay, ""); err != nil {
			return nil, err
		}
	}

	number, err := db.idGen.NextNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("generate booking number: %w", err)
	}

	if _, ok := db.bookings[number]; ok {
		return nil, fmt.Errorf("%v: %w", number, ErrNumberTaken)
	}

	b := draft.Clone()
	b.Number = number

	if err := db.appendEvent(ctx, b.Number, booking.StatusChange{
		To:    b.Status,
		Event: booking.EventCreated,
		Actor: booking.ActorFromContext(ctx),
		At:    b.CreatedAt,
	}); err != nil {
		return nil, err
	}

	db.bookings[number] = b
	db.bookingIdempotencyKeys[idempotencyKey] = number

	db.l.LogDebugf("Stored booking %v under idempotency key %v", number, idempotencyKey)

	return b.Clone(), nil
}

func (db *DB) Get(_ context.Context, number string) (*booking.Booking, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	b, ok := db.bookings[number]
	if !ok {
		return nil, &booking.NotFoundError{Kind: "booking", ID: number}
	}

	return b.Clone(), nil
}

func (db *DB) GetByIdempotencyKey(_ context.Context, key string) (*booking.Booking, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if key == "" {
		return nil, booking.ErrIdempotencyKey
	}

	number, exists := db.bookingIdempotencyKeys[key]
	if exists {
		return db.bookings[number].Clone(), nil
	}

	return nil, booking.ErrRecordNotFound
}

// lookup returns the stored booking when its status still equals expected. Caller holds the lock.
func (db *DB) lookup(number string, expected booking.Status) (*booking.Booking, error) {
	b, ok := db.bookings[number]
	if !ok {
		return nil, &booking.NotFoundError{Kind: "booking", ID: number}
	}

	if b.Status != expected {
		return nil, &booking.ConflictError{Number: number, Expected: expected, Actual: b.Status}
	}

	return b, nil
}

func (db *DB) UpdateStatus(
	ctx context.Context,
	number string,
	expected booking.Status,
	change booking.StatusChange,
) (*booking.Booking, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	b, err := db.lookup(number, expected)
	if err != nil {
		return nil, err
	}

	if err := db.appendEvent(ctx, number, change); err != nil {
		return nil, err
	}

	b.Status = change.To
	b.UpdatedAt = change.At
	b.HoldUntil = nil

	if change.HoldUntil != nil {
		holdUntil := *change.HoldUntil
		b.HoldUntil = &holdUntil
	}

	if change.PaymentReference != "" {
		b.PaymentReference = change.PaymentReference
	}

	return b.Clone(), nil
}

func (db *DB) UpdateStay(
	_ context.Context,
	number string,
	expected booking.Status,
	stay booking.StayRequest,
	cost booking.CostBreakdown,
) (*booking.Booking, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	b, err := db.lookup(number, expected)
	if err != nil {
		return nil, err
	}

	if err := db.claimRoom(b.RoomID, stay, number); err != nil {
		return nil, err
	}

	updated := b.Clone()
	updated.Stay = stay
	updated.Cost = cost
	updated.UpdatedAt = time.Now().UTC()

	// store a private copy so the caller's slices are not shared
	db.bookings[number] = updated.Clone()

	return updated, nil
}

func (db *DB) appendEvent(ctx context.Context, number string, change booking.StatusChange) error {
	id, err := db.idGen.GetID(ctx)
	if err != nil {
		return fmt.Errorf("generate event id: %w", err)
	}

	db.events[number] = append(db.events[number], &booking.StatusEvent{
		ID:            id,
		BookingNumber: number,
		From:          change.From,
		To:            change.To,
		Event:         change.Event,
		Actor:         change.Actor,
		Note:          change.Note,
		TraceID:       change.TraceID,
		CreatedAt:     change.At,
	})

	return nil
}

func (db *DB) ListEvents(_ context.Context, number string) ([]*booking.StatusEvent, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	events := db.events[number]
	out := make([]*booking.StatusEvent, 0, len(events))

	for _, event := range events {
		e := *event
		out = append(out, &e)
	}

	return out, nil
}

// ListByStatus returns bookings in any of statuses, oldest first.
func (db *DB) ListByStatus(_ context.Context, statuses ...booking.Status) ([]*booking.Booking, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	wanted := make(map[booking.Status]struct{}, len(statuses))
	for _, status := range statuses {
		wanted[status] = struct{}{}
	}

	var out []*booking.Booking

	for _, b := range db.bookings {
		if _, ok := wanted[b.Status]; ok {
			out = append(out, b.Clone())
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Number < out[j].Number
		}

		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	return out, nil
}
