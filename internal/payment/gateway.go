package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/avstrong/staybook/internal/booking"
)

var (
	ErrGatewayNotConfigured = errors.New("payment gateway is not configured")
	ErrInvalidSignature     = errors.New("payment callback signature mismatch")
	ErrInvalidAmount        = errors.New("payment amount must be positive")
)

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Callback is what the gateway reports back for an order.
type Callback struct {
	MerchantID     string
	OrderReference string
	TransactionID  string
	Outcome        Outcome
	Signature      string
}

type HostedConfig struct {
	ActionURL  string
	MerchantID string
	Secret     string
	ReturnURL  string
	CancelURL  string
	NotifyURL  string
}

// Hosted builds signed form parameters for a hosted checkout page and
// verifies the signatures of its notifications.
type Hosted struct {
	conf HostedConfig
}

func NewHosted(conf HostedConfig) *Hosted {
	return &Hosted{conf: conf}
}

func (h *Hosted) CreateSession(_ context.Context, amount float64, currency, orderReference string) (*booking.PaymentSession, error) {
	if h.conf.ActionURL == "" || h.conf.MerchantID == "" || h.conf.Secret == "" {
		return nil, ErrGatewayNotConfigured
	}

	if amount <= 0 {
		return nil, fmt.Errorf("order %v: %w", orderReference, ErrInvalidAmount)
	}

	formatted := fmt.Sprintf("%.2f", amount)
	nonce := uuid.NewString()

	params := map[string]string{
		"merchant_id": h.conf.MerchantID,
		"order_id":    orderReference,
		"amount":      formatted,
		"currency":    currency,
		"return_url":  h.conf.ReturnURL,
		"cancel_url":  h.conf.CancelURL,
		"notify_url":  h.conf.NotifyURL,
		"nonce":       nonce,
		"hash":        h.sign(h.conf.MerchantID, orderReference, formatted, currency, nonce),
	}

	return &booking.PaymentSession{
		ActionURL:      h.conf.ActionURL,
		Params:         params,
		OrderReference: orderReference,
	}, nil
}

func (h *Hosted) VerifyCallback(_ context.Context, cb Callback) error {
	if h.conf.Secret == "" {
		return ErrGatewayNotConfigured
	}

	expected := h.sign(cb.MerchantID, cb.OrderReference, cb.TransactionID, string(cb.Outcome))

	if cb.MerchantID != h.conf.MerchantID || !hmac.Equal([]byte(expected), []byte(strings.ToUpper(cb.Signature))) {
		return fmt.Errorf("order %v: %w", cb.OrderReference, ErrInvalidSignature)
	}

	return nil
}

// SignCallback produces the signature the gateway attaches to a notification.
func (h *Hosted) SignCallback(cb Callback) string {
	return h.sign(cb.MerchantID, cb.OrderReference, cb.TransactionID, string(cb.Outcome))
}

func (h *Hosted) sign(parts ...string) string {
	mac := hmac.New(sha256.New, []byte(h.conf.Secret))
	mac.Write([]byte(strings.Join(parts, "|")))

	return strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))
}
