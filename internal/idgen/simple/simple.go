package simple

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const DefaultPrefix = "BK"

type Generator struct {
	mu      sync.Mutex
	counter int
	daily   map[string]int
	prefix  string
	now     func() time.Time
}

func New() *Generator {
	return NewWithClock(DefaultPrefix, time.Now)
}

func NewWithClock(prefix string, now func() time.Time) *Generator {
	//nolint:exhaustruct
	return &Generator{
		daily:  make(map[string]int),
		prefix: prefix,
		now:    now,
	}
}

// GetID returns a process-wide increasing integer.
func (g *Generator) GetID(_ context.Context) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.counter++

	return g.counter, nil
}

// NextNumber returns a booking number whose sequence restarts every UTC day.
func (g *Generator) NextNumber(_ context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now().UTC()
	day := now.Format("20060102")

	g.daily[day]++

	return Format(g.prefix, now, int64(g.daily[day])), nil
}

// Format renders a booking number such as BK-20250301-00001.
func Format(prefix string, at time.Time, seq int64) string {
	return fmt.Sprintf("%s-%s-%05d", prefix, at.UTC().Format("20060102"), seq)
}
