package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/avstrong/staybook/internal/booking"
	"github.com/avstrong/staybook/internal/logger"
)

type BreakerConfig struct {
	// Failures is the number of consecutive failed sessions that opens the circuit.
	Failures uint32
	// OpenTimeout is how long the circuit stays open before a trial request.
	OpenTimeout time.Duration
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Failures:    5,                //nolint:gomnd
		OpenTimeout: 30 * time.Second, //nolint:gomnd
	}
}

// Breaker stops calling the gateway for a while after repeated session failures.
// Rejected input and missing configuration are not gateway failures.
// Callback verification is local and is never short-circuited.
type Breaker struct {
	next gateway
	cb   *gobreaker.CircuitBreaker
}

func NewBreaker(l *logger.Logger, conf BreakerConfig, next gateway) *Breaker {
	failures := conf.Failures
	if failures == 0 {
		failures = 1
	}

	//nolint:exhaustruct
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "payment-gateway",
		Timeout: conf.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrInvalidAmount) || errors.Is(err, ErrGatewayNotConfigured)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			l.LogWarnf("Circuit breaker %v changed from %v to %v", name, from.String(), to.String())
		},
	})

	return &Breaker{next: next, cb: cb}
}

func (b *Breaker) CreateSession(ctx context.Context, amount float64, currency, orderReference string) (*booking.PaymentSession, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.CreateSession(ctx, amount, currency, orderReference)
	})
	if err != nil {
		return nil, fmt.Errorf("create session for order %v: %w", orderReference, err)
	}

	session, _ := out.(*booking.PaymentSession)

	return session, nil
}

func (b *Breaker) VerifyCallback(ctx context.Context, cb Callback) error {
	return b.next.VerifyCallback(ctx, cb)
}

func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}
