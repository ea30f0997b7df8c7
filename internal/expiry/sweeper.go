package expiry

import (
	"context"
	"fmt"
	"time"

	"github.com/avstrong/staybook/internal/booking"
	"github.com/avstrong/staybook/internal/logger"
)

type lister interface {
	ListByStatus(ctx context.Context, statuses ...booking.Status) ([]*booking.Booking, error)
}

type applier interface {
	ApplyEvent(ctx context.Context, number string, event booking.Event, cc booking.ChangeContext) (*booking.Booking, error)
}

type Config struct {
	Interval time.Duration
	Now      func() time.Time
}

// Sweeper cancels OnHold bookings whose hold ran out and completes Confirmed
// bookings whose check-out date has been reached.
type Sweeper struct {
	l        *logger.Logger
	store    lister
	bookings applier
	interval time.Duration
	now      func() time.Time
}

type Report struct {
	Expired   int
	Completed int
	Skipped   int
	Failed    int
}

func New(l *logger.Logger, conf Config, store lister, bookings applier) *Sweeper {
	now := conf.Now
	if now == nil {
		now = time.Now
	}

	return &Sweeper{
		l:        l,
		store:    store,
		bookings: bookings,
		interval: conf.Interval,
		now:      now,
	}
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	if s.interval <= 0 {
		return fmt.Errorf("sweep interval must be positive, got %v", s.interval)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			report, err := s.RunOnce(ctx)
			if err != nil {
				s.l.LogErrorf("Sweep failed: %v", err.Error())

				continue
			}

			if report.Expired+report.Completed+report.Failed > 0 {
				s.l.WithFields(map[string]any{
					"expired":   report.Expired,
					"completed": report.Completed,
					"skipped":   report.Skipped,
					"failed":    report.Failed,
				}).LogInfo("Sweep finished")
			}
		}
	}
}

func (s *Sweeper) RunOnce(ctx context.Context) (Report, error) {
	var report Report

	now := s.now().UTC()
	ctx = booking.NewContextWithActor(ctx, booking.ActorSystem)

	held, err := s.store.ListByStatus(ctx, booking.StatusOnHold)
	if err != nil {
		return report, fmt.Errorf("list held bookings: %w", err)
	}

	for _, b := range held {
		if !booking.IsHoldExpired(b, now) {
			continue
		}

		s.apply(ctx, b, booking.EventExpireHold, "hold expired", &report.Expired, &report)
	}

	confirmed, err := s.store.ListByStatus(ctx, booking.StatusConfirmed)
	if err != nil {
		return report, fmt.Errorf("list confirmed bookings: %w", err)
	}

	today := booking.CalendarDate(now)

	for _, b := range confirmed {
		if today.Before(booking.CalendarDate(b.Stay.CheckOut)) {
			continue
		}

		s.apply(ctx, b, booking.EventComplete, "stay ended", &report.Completed, &report)
	}

	return report, nil
}

func (s *Sweeper) apply(ctx context.Context, b *booking.Booking, event booking.Event, note string, counter *int, report *Report) {
	_, err := s.bookings.ApplyEvent(ctx, b.Number, event, booking.ChangeContext{Actor: booking.ActorSystem, Note: note})

	switch {
	case err == nil:
		*counter++
	case booking.IsConflictError(err) != nil || booking.IsInvalidTransitionError(err) != nil:
		// someone else moved the booking since it was listed
		report.Skipped++
	default:
		report.Failed++

		s.l.LogErrorf("Could not apply %v to booking %v: %v", event, b.Number, err.Error())
	}
}
