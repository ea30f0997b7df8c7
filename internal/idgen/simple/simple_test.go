package simple_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avstrong/staybook/internal/idgen/simple"
)

func TestNextNumberRestartsDaily(t *testing.T) {
	now := time.Date(2025, 3, 1, 23, 59, 0, 0, time.UTC)
	g := simple.NewWithClock("BK", func() time.Time { return now })

	ctx := context.Background()

	first, err := g.NextNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, "BK-20250301-00001", first)

	second, err := g.NextNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, "BK-20250301-00002", second)

	now = now.Add(2 * time.Minute)

	third, err := g.NextNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, "BK-20250302-00001", third)
}

func TestGetIDIncreases(t *testing.T) {
	g := simple.New()

	a, err := g.GetID(context.Background())
	require.NoError(t, err)

	b, err := g.GetID(context.Background())
	require.NoError(t, err)

	assert.Equal(t, a+1, b)
}
