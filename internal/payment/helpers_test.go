package payment_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/avstrong/staybook/internal/booking"
	"github.com/avstrong/staybook/internal/logger"
	"github.com/avstrong/staybook/internal/payment"
	"github.com/avstrong/staybook/internal/payment/dedup"
	"github.com/avstrong/staybook/internal/pricing"
	"github.com/avstrong/staybook/internal/storage/memory"
)

var today = time.Date(2025, 2, 20, 9, 30, 0, 0, time.UTC)

func hostedConfig() payment.HostedConfig {
	return payment.HostedConfig{
		ActionURL:  "https://pay.example.test/checkout",
		MerchantID: "M-100",
		Secret:     "s3cret",
		ReturnURL:  "https://staybook.example.test/return",
		CancelURL:  "https://staybook.example.test/cancel",
		NotifyURL:  "https://staybook.example.test/api/payments/v1/callback",
	}
}

// fakeGateway counts sessions and can be told to fail them.
type fakeGateway struct {
	hosted   *payment.Hosted
	sessions int
	err      error
}

func (g *fakeGateway) CreateSession(
	ctx context.Context,
	amount float64,
	currency, orderReference string,
) (*booking.PaymentSession, error) {
	g.sessions++

	if g.err != nil {
		return nil, g.err
	}

	return g.hosted.CreateSession(ctx, amount, currency, orderReference)
}

func (g *fakeGateway) VerifyCallback(ctx context.Context, cb payment.Callback) error {
	return g.hosted.VerifyCallback(ctx, cb)
}

type fixture struct {
	store       *memory.DB
	manager     *booking.Manager
	coordinator *payment.Coordinator
	gateway     *fakeGateway
	dedup       *dedup.Memory
	logs        *bytes.Buffer
}

func newFixture(t *testing.T, conf payment.Config) *fixture {
	t.Helper()

	store := memory.New(memory.Config{L: logger.Nop()})

	require.NoError(t, store.SaveRooms(context.Background(), []*booking.Room{
		{ID: "deluxe-101", Name: "Deluxe", RatePerNight: 25000, MaxCapacity: 3},
	}))

	manager := booking.New(logger.Nop(), booking.Config{
		HoldDuration: 30 * time.Minute,
		Now:          func() time.Time { return today },
	}, store, store, pricing.New(pricing.DefaultConfig()))

	gw := &fakeGateway{hosted: payment.NewHosted(hostedConfig())}
	dd := dedup.NewMemory(time.Hour)

	logs := &bytes.Buffer{}

	l, err := logger.New(logs, "info")
	require.NoError(t, err)

	coordinator := payment.NewCoordinator(l, conf, manager, gw, dd)
	manager.UsePayments(coordinator)

	return &fixture{store: store, manager: manager, coordinator: coordinator, gateway: gw, dedup: dd, logs: logs}
}

func (f *fixture) create(t *testing.T, method booking.PaymentMethod) *booking.Booking {
	t.Helper()

	ctx := booking.NewContextWithIdempotencyKey(context.Background(), "key-"+string(method))

	b, err := f.manager.CreateBooking(ctx, &booking.CreateInput{
		Stay: booking.StayRequest{
			CheckIn:  time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
			CheckOut: time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC),
			Guests:   2,
			RoomID:   "deluxe-101",
			Food:     booking.FlatPlan{Plan: booking.FoodPlanBreakfast},
		},
		GuestID:       "guest-1",
		PaymentMethod: method,
	})
	require.NoError(t, err)

	return b
}

func (f *fixture) status(t *testing.T, number string) booking.Status {
	t.Helper()

	b, err := f.manager.GetBooking(context.Background(), number)
	require.NoError(t, err)

	return b.Status
}

// processing takes a fresh card booking through the gateway into ApprovedPaymentProcessing.
func (f *fixture) processing(t *testing.T) *booking.Booking {
	t.Helper()

	b := f.create(t, booking.PaymentMethodCard)

	result, err := f.coordinator.InitiatePayment(context.Background(), b, booking.PaymentRequest{})
	require.NoError(t, err)
	require.Equal(t, booking.StatusApprovedPaymentProcessing, result.Booking.Status)

	return result.Booking
}

func (f *fixture) callback(number, transaction string, outcome payment.Outcome) payment.Callback {
	cb := payment.Callback{
		MerchantID:     hostedConfig().MerchantID,
		OrderReference: number,
		TransactionID:  transaction,
		Outcome:        outcome,
	}
	cb.Signature = f.gateway.hosted.SignCallback(cb)

	return cb
}
