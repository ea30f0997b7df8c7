package booking

import "context"

type contextKey string

const (
	idempotencyKey contextKey = "idempotencyKey"
	actorKey       contextKey = "actor"
)

func NewContextWithIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, idempotencyKey, key)
}

func IdempotencyKeyFromContext(ctx context.Context) (string, bool) {
	key, ok := ctx.Value(idempotencyKey).(string)

	return key, ok && key != ""
}

// NewContextWithActor records who is acting on a booking (guest id, admin name, "system").
func NewContextWithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

func ActorFromContext(ctx context.Context) string {
	actor, ok := ctx.Value(actorKey).(string)
	if !ok || actor == "" {
		return ActorSystem
	}

	return actor
}
