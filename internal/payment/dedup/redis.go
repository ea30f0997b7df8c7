package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis claims keys with SET NX so every replica of the service sees the same claims.
type Redis struct {
	client      *redis.Client
	serviceName string
	ttl         time.Duration
}

func NewRedis(client *redis.Client, serviceName string, ttl time.Duration) *Redis {
	return &Redis{
		client:      client,
		serviceName: serviceName,
		ttl:         ttl,
	}
}

func (r *Redis) key(key string) string {
	return fmt.Sprintf("%s:dedup:%s", r.serviceName, key)
}

// Claim reports true when the caller is the first to see key.
func (r *Redis) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.key(key), time.Now().UTC().Format(time.RFC3339), r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim %v in redis: %w", key, err)
	}

	return ok, nil
}

// Forget releases a claim so a failed handler can be retried.
func (r *Redis) Forget(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("forget %v in redis: %w", key, err)
	}

	return nil
}
