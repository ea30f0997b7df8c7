package payment

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/avstrong/staybook/internal/booking"
	"github.com/avstrong/staybook/internal/logger"
)

const (
	ActorGateway = "gateway"

	msgMethodMismatch       = "Payment method does not match the booking"
	msgTransferRefRequired  = "Transfer reference is required"
	msgUnknownOutcome       = "Unknown payment outcome"
	msgUnknownPaymentMethod = "Payment method must be one of card, bank, cash"
)

var tracer = otel.Tracer("github.com/avstrong/staybook/internal/payment")

// ErrUnreconciledPayment marks a captured payment the booking could no longer accept.
var ErrUnreconciledPayment = errors.New("captured payment needs manual reconciliation")

type bookings interface {
	GetBooking(ctx context.Context, number string) (*booking.Booking, error)
	ApplyEvent(ctx context.Context, number string, event booking.Event, cc booking.ChangeContext) (*booking.Booking, error)
}

type gateway interface {
	CreateSession(ctx context.Context, amount float64, currency, orderReference string) (*booking.PaymentSession, error)
	VerifyCallback(ctx context.Context, cb Callback) error
}

type deduplicator interface {
	Claim(ctx context.Context, key string) (bool, error)
	Forget(ctx context.Context, key string) error
}

type Config struct {
	// RequireApproval tells, per method, whether an admin must approve before payment starts.
	RequireApproval map[booking.PaymentMethod]bool
	Currency        string
}

func DefaultConfig() Config {
	return Config{
		RequireApproval: map[booking.PaymentMethod]bool{
			booking.PaymentMethodCash: true,
			booking.PaymentMethodBank: true,
			booking.PaymentMethodCard: false,
		},
		Currency: "LKR",
	}
}

type Coordinator struct {
	l        *logger.Logger
	conf     Config
	bookings bookings
	gateway  gateway
	dedup    deduplicator
}

func NewCoordinator(l *logger.Logger, conf Config, bookings bookings, gateway gateway, dedup deduplicator) *Coordinator {
	approval := make(map[booking.PaymentMethod]bool, len(conf.RequireApproval))
	for method, required := range conf.RequireApproval {
		approval[method] = required
	}

	conf.RequireApproval = approval

	return &Coordinator{
		l:        l,
		conf:     conf,
		bookings: bookings,
		gateway:  gateway,
		dedup:    dedup,
	}
}

func awaitingAdmin(b *booking.Booking) bool {
	return b.Status == booking.StatusPendingApproval || b.Status == booking.StatusOnHold
}

// InitiatePayment executes the payment obligation of a booking for its chosen method.
func (c *Coordinator) InitiatePayment(ctx context.Context, b *booking.Booking, req booking.PaymentRequest) (*booking.PaymentResult, error) {
	method := req.Method
	if method == "" {
		method = b.PaymentMethod
	}

	ctx, span := tracer.Start(ctx, "payment.InitiatePayment")
	defer span.End()

	span.SetAttributes(
		attribute.String("booking.number", b.Number),
		attribute.String("payment.method", string(method)),
	)

	if !method.IsValid() {
		return nil, booking.NewValidationError(msgUnknownPaymentMethod)
	}

	if method != b.PaymentMethod {
		return nil, booking.NewValidationError(msgMethodMismatch)
	}

	if req.Actor != "" {
		ctx = booking.NewContextWithActor(ctx, req.Actor)
	}

	switch method {
	case booking.PaymentMethodCash:
		return c.initiateCash(ctx, b)
	case booking.PaymentMethodBank:
		return c.initiateBank(ctx, b, req.TransferReference)
	default:
		return c.initiateCard(ctx, b)
	}
}

func (c *Coordinator) initiateCash(ctx context.Context, b *booking.Booking) (*booking.PaymentResult, error) {
	var event booking.Event

	switch {
	case awaitingAdmin(b) && c.conf.RequireApproval[booking.PaymentMethodCash]:
		c.l.WithContext(ctx).LogInfo("Cash booking %v waits for admin approval", b.Number)

		return &booking.PaymentResult{Booking: b, AwaitingApproval: true}, nil
	case awaitingAdmin(b):
		event = booking.EventApproveSettled
	default:
		event = booking.EventPayAtProperty
	}

	updated, err := c.bookings.ApplyEvent(ctx, b.Number, event, booking.ChangeContext{Note: "pay at property"})
	if err != nil {
		return nil, err
	}

	return &booking.PaymentResult{Booking: updated}, nil
}

func (c *Coordinator) initiateBank(ctx context.Context, b *booking.Booking, transferRef string) (*booking.PaymentResult, error) {
	if transferRef == "" {
		return nil, booking.NewValidationError(msgTransferRefRequired)
	}

	current, err := c.approveIfAllowed(ctx, b, booking.PaymentMethodBank)
	if err != nil {
		return nil, err
	}

	updated, err := c.bookings.ApplyEvent(ctx, current.Number, booking.EventSubmitPayment, booking.ChangeContext{
		Note:             "bank transfer submitted",
		PaymentReference: transferRef,
	})
	if err != nil {
		return nil, err
	}

	return &booking.PaymentResult{Booking: updated}, nil
}

func (c *Coordinator) initiateCard(ctx context.Context, b *booking.Booking) (*booking.PaymentResult, error) {
	if awaitingAdmin(b) {
		if c.conf.RequireApproval[booking.PaymentMethodCard] {
			return nil, fmt.Errorf("booking %v: %w", b.Number, booking.ErrApprovalRequired)
		}

		if !booking.Allows(b.Status, booking.EventApprove) {
			return nil, &booking.InvalidTransitionError{From: b.Status, Event: booking.EventApprove}
		}
	} else if !booking.Allows(b.Status, booking.EventSubmitPayment) {
		return nil, &booking.InvalidTransitionError{From: b.Status, Event: booking.EventSubmitPayment}
	}

	session, err := c.gateway.CreateSession(ctx, b.Cost.Total, c.conf.Currency, b.Number)
	if err != nil {
		trace.SpanFromContext(ctx).SetStatus(codes.Error, err.Error())
		c.l.WithContext(ctx).WithError(err).LogErrorf("Could not create payment session for booking %v", b.Number)

		return nil, &booking.PaymentError{Method: booking.PaymentMethodCard, Err: err}
	}

	current, err := c.approveIfAllowed(ctx, b, booking.PaymentMethodCard)
	if err != nil {
		return nil, err
	}

	updated, err := c.bookings.ApplyEvent(ctx, current.Number, booking.EventSubmitPayment, booking.ChangeContext{
		Note:             "card payment session created",
		PaymentReference: session.OrderReference,
	})
	if err != nil {
		return nil, err
	}

	return &booking.PaymentResult{Booking: updated, Session: session}, nil
}

// approveIfAllowed moves a booking still awaiting the admin into ApprovedPaymentPending
// when the method does not need a manual approval.
func (c *Coordinator) approveIfAllowed(ctx context.Context, b *booking.Booking, method booking.PaymentMethod) (*booking.Booking, error) {
	if !awaitingAdmin(b) {
		return b, nil
	}

	if c.conf.RequireApproval[method] {
		return nil, fmt.Errorf("booking %v: %w", b.Number, booking.ErrApprovalRequired)
	}

	approved, err := c.bookings.ApplyEvent(ctx, b.Number, booking.EventApprove, booking.ChangeContext{
		Note: fmt.Sprintf("auto-approved for %v payment", method),
	})
	if err != nil {
		return nil, err
	}

	return approved, nil
}

func callbackKey(cb Callback) string {
	return fmt.Sprintf("callback:%s:%s", cb.TransactionID, cb.Outcome)
}

// HandleCallback applies a verified gateway notification. Replays of the same
// transaction outcome return ErrDuplicateCallback with the current booking.
func (c *Coordinator) HandleCallback(ctx context.Context, cb Callback) (*booking.Booking, error) {
	ctx, span := tracer.Start(ctx, "payment.HandleCallback")
	defer span.End()

	span.SetAttributes(
		attribute.String("booking.number", cb.OrderReference),
		attribute.String("payment.outcome", string(cb.Outcome)),
	)

	if err := c.gateway.VerifyCallback(ctx, cb); err != nil {
		span.SetStatus(codes.Error, err.Error())

		return nil, fmt.Errorf("verify callback: %w", err)
	}

	var (
		event booking.Event
		cc    = booking.ChangeContext{Actor: ActorGateway}
	)

	switch cb.Outcome {
	case OutcomeSuccess:
		event = booking.EventPaymentSucceeded
		cc.PaymentReference = cb.TransactionID
		cc.Note = "gateway confirmed payment"
	case OutcomeFailure:
		event = booking.EventPaymentFailed
		cc.Note = "gateway reported payment failure"
	default:
		return nil, booking.NewValidationError(msgUnknownOutcome)
	}

	key := callbackKey(cb)

	first, err := c.dedup.Claim(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("claim callback %v: %w", key, err)
	}

	if !first {
		current, err := c.bookings.GetBooking(ctx, cb.OrderReference)
		if err != nil {
			return nil, err
		}

		c.l.WithContext(ctx).LogInfo("Ignored duplicate callback %v for booking %v", key, cb.OrderReference)

		return current, booking.ErrDuplicateCallback
	}

	updated, err := c.bookings.ApplyEvent(ctx, cb.OrderReference, event, cc)
	if err != nil {
		if forgetErr := c.dedup.Forget(ctx, key); forgetErr != nil {
			c.l.WithContext(ctx).LogErrorf("Could not release callback claim %v: %v", key, forgetErr.Error())
		}

		if cb.Outcome == OutcomeSuccess && capturedTooLate(err) {
			span.SetStatus(codes.Error, err.Error())

			c.l.WithContext(ctx).WithFields(map[string]any{
				"booking":     cb.OrderReference,
				"transaction": cb.TransactionID,
				"reconcile":   true,
			}).WithError(err).LogErrorf("Gateway captured payment %v that booking %v can no longer accept",
				cb.TransactionID, cb.OrderReference)

			return nil, fmt.Errorf("%w: transaction %v for booking %v: %w",
				ErrUnreconciledPayment, cb.TransactionID, cb.OrderReference, err)
		}

		return nil, err
	}

	c.l.WithContext(ctx).WithFields(map[string]any{
		"booking":     updated.Number,
		"outcome":     cb.Outcome,
		"transaction": cb.TransactionID,
	}).LogInfo("Payment callback applied")

	return updated, nil
}

// capturedTooLate reports whether the booking moved on before the gateway confirmed payment.
func capturedTooLate(err error) bool {
	return booking.IsInvalidTransitionError(err) != nil || booking.IsConflictError(err) != nil
}

// AbandonPayment returns a booking stuck in processing to a resumable pending state.
func (c *Coordinator) AbandonPayment(ctx context.Context, number string) (*booking.Booking, error) {
	current, err := c.bookings.GetBooking(ctx, number)
	if err != nil {
		return nil, err
	}

	if current.Status != booking.StatusApprovedPaymentProcessing {
		return nil, &booking.InvalidTransitionError{From: current.Status, To: booking.StatusApprovedPaymentPending}
	}

	return c.bookings.ApplyEvent(ctx, number, booking.EventPaymentFailed, booking.ChangeContext{
		Note: "payment abandoned by guest",
	})
}
