package payment_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avstrong/staybook/internal/logger"
	"github.com/avstrong/staybook/internal/payment"
)

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	down := errors.New("gateway timeout")
	gw := &fakeGateway{hosted: payment.NewHosted(hostedConfig()), err: down}

	breaker := payment.NewBreaker(logger.Nop(), payment.BreakerConfig{Failures: 2, OpenTimeout: time.Minute}, gw)

	for i := 0; i < 2; i++ {
		_, err := breaker.CreateSession(context.Background(), 100, "LKR", "BK-1")
		require.ErrorIs(t, err, down)
	}

	assert.Equal(t, gobreaker.StateOpen, breaker.State())

	_, err := breaker.CreateSession(context.Background(), 100, "LKR", "BK-1")
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, gw.sessions, "open circuit does not reach the gateway")
}

func TestBreakerPassesThrough(t *testing.T) {
	hosted := payment.NewHosted(hostedConfig())
	breaker := payment.NewBreaker(logger.Nop(), payment.DefaultBreakerConfig(), hosted)

	session, err := breaker.CreateSession(context.Background(), 100, "LKR", "BK-1")
	require.NoError(t, err)
	assert.Equal(t, "BK-1", session.OrderReference)
	assert.Equal(t, gobreaker.StateClosed, breaker.State())

	cb := payment.Callback{MerchantID: hostedConfig().MerchantID, OrderReference: "BK-1", TransactionID: "tx", Outcome: payment.OutcomeSuccess}
	cb.Signature = hosted.SignCallback(cb)

	assert.NoError(t, breaker.VerifyCallback(context.Background(), cb))
}

func TestBreakerIgnoresCallerErrors(t *testing.T) {
	hosted := payment.NewHosted(hostedConfig())
	breaker := payment.NewBreaker(logger.Nop(), payment.BreakerConfig{Failures: 2, OpenTimeout: time.Minute}, hosted)

	for i := 0; i < 3; i++ {
		_, err := breaker.CreateSession(context.Background(), 0, "LKR", "BK-1")
		require.ErrorIs(t, err, payment.ErrInvalidAmount)
	}

	assert.Equal(t, gobreaker.StateClosed, breaker.State())

	unconfigured := payment.NewBreaker(logger.Nop(), payment.BreakerConfig{Failures: 2, OpenTimeout: time.Minute},
		payment.NewHosted(payment.HostedConfig{}))

	for i := 0; i < 3; i++ {
		_, err := unconfigured.CreateSession(context.Background(), 100, "LKR", "BK-1")
		require.ErrorIs(t, err, payment.ErrGatewayNotConfigured)
	}

	assert.Equal(t, gobreaker.StateClosed, unconfigured.State())

	session, err := breaker.CreateSession(context.Background(), 100, "LKR", "BK-1")
	require.NoError(t, err)
	assert.Equal(t, "BK-1", session.OrderReference)
}
