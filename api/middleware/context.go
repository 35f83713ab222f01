package middleware

import (
	"context"

	pkgAuth "github.com/angelmondragon/marketledger-backend/pkg/auth"
)

type contextKey string

const ctxActor contextKey = "actor"

// ActorFromContext returns the authenticated actor seeded by Auth.
func ActorFromContext(ctx context.Context) (pkgAuth.Actor, bool) {
	if ctx == nil {
		return pkgAuth.Actor{}, false
	}
	actor, ok := ctx.Value(ctxActor).(pkgAuth.Actor)
	return actor, ok
}

func UserIDFromContext(ctx context.Context) string {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return ""
	}
	return actor.ID.String()
}

func RoleFromContext(ctx context.Context) string {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return ""
	}
	return string(actor.Role)
}

// MarketIDFromContext returns the market the actor works for, if any.
func MarketIDFromContext(ctx context.Context) string {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.MarketID == nil {
		return ""
	}
	return actor.MarketID.String()
}

// WithActor injects the actor into the context for downstream handlers.
func WithActor(ctx context.Context, actor pkgAuth.Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxActor, actor)
}
