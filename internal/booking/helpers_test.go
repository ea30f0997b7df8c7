package booking_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/avstrong/staybook/internal/booking"
	"github.com/avstrong/staybook/internal/logger"
	"github.com/avstrong/staybook/internal/pricing"
	"github.com/avstrong/staybook/internal/storage/memory"
)

const roomID = "deluxe-101"

var today = time.Date(2025, 2, 20, 9, 30, 0, 0, time.UTC)

func date(year, month, day int) time.Time {
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time {
	return c.now
}

type fixture struct {
	store   *memory.DB
	manager *booking.Manager
	clock   *clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.New(memory.Config{L: logger.Nop()})

	require.NoError(t, store.SaveRooms(context.Background(), []*booking.Room{
		{ID: roomID, Name: "Deluxe", RatePerNight: 25000, MaxCapacity: 3},
	}))

	c := &clock{now: today}

	manager := booking.New(logger.Nop(), booking.Config{HoldDuration: 30 * time.Minute, Now: c.Now},
		store, store, pricing.New(pricing.DefaultConfig()))

	return &fixture{store: store, manager: manager, clock: c}
}

func breakfastStay() booking.StayRequest {
	return booking.StayRequest{
		CheckIn:  date(2025, 3, 1),
		CheckOut: date(2025, 3, 4),
		Guests:   2,
		RoomID:   roomID,
		Food:     booking.FlatPlan{Plan: booking.FoodPlanBreakfast},
	}
}

func (f *fixture) create(t *testing.T, key string, method booking.PaymentMethod) *booking.Booking {
	t.Helper()

	ctx := booking.NewContextWithIdempotencyKey(context.Background(), key)

	b, err := f.manager.CreateBooking(ctx, &booking.CreateInput{
		Stay:          breakfastStay(),
		GuestID:       "guest-1",
		PaymentMethod: method,
	})
	require.NoError(t, err)

	return b
}

// force puts a booking into status without going through the machine.
func (f *fixture) force(t *testing.T, number string, status booking.Status, holdUntil *time.Time) {
	t.Helper()

	current, err := f.store.Get(context.Background(), number)
	require.NoError(t, err)

	_, err = f.store.UpdateStatus(context.Background(), number, current.Status, booking.StatusChange{
		From:      current.Status,
		To:        status,
		Event:     "test",
		HoldUntil: holdUntil,
		Actor:     "test",
		At:        f.clock.now,
	})
	require.NoError(t, err)
}
