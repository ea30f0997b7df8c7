package dedup_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avstrong/staybook/internal/payment/dedup"
)

type claimer interface {
	Claim(ctx context.Context, key string) (bool, error)
	Forget(ctx context.Context, key string) error
}

func newRedis(t *testing.T) (*dedup.Redis, *miniredis.Miniredis) {
	t.Helper()

	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})

	t.Cleanup(func() { _ = client.Close() })

	return dedup.NewRedis(client, "staybook", time.Hour), srv
}

func TestClaimOnce(t *testing.T) {
	r, _ := newRedis(t)

	for name, c := range map[string]claimer{
		"redis":  r,
		"memory": dedup.NewMemory(time.Hour),
	} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			ok, err := c.Claim(ctx, "callback:tx-1:success")
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = c.Claim(ctx, "callback:tx-1:success")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, c.Forget(ctx, "callback:tx-1:success"))

			ok, err = c.Claim(ctx, "callback:tx-1:success")
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestRedisClaimExpires(t *testing.T) {
	r, srv := newRedis(t)
	ctx := context.Background()

	ok, err := r.Claim(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)

	assert.True(t, srv.Exists("staybook:dedup:k"))

	srv.FastForward(2 * time.Hour)

	ok, err = r.Claim(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisUnavailable(t *testing.T) {
	r, srv := newRedis(t)
	srv.Close()

	_, err := r.Claim(context.Background(), "k")
	assert.Error(t, err)
}
