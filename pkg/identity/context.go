package identity

import (
	"context"

	"github.com/shiftdeck/shiftdeck/pkg/contextkeys"
)

// WithActor stores the resolved actor in the context
func WithActor(ctx context.Context, actor *Actor) context.Context {
	return contextkeys.WithActor(ctx, actor)
}

// ActorFromContext retrieves the authenticated actor from the context
func ActorFromContext(ctx context.Context) (*Actor, bool) {
	actor, ok := ctx.Value(contextkeys.ActorKey).(*Actor)
	return actor, ok
}
