package shared

import "context"

// Actor identifies who performs a mutating operation. Passed explicitly so
// services stay deterministic and testable; never read from globals.
type Actor struct {
	ID   int64
	Name string
}

type actorContextKey struct{}

// ContextWithActor stores the acting operator in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the acting operator, zero value when absent.
func ActorFromContext(ctx context.Context) Actor {
	actor, _ := ctx.Value(actorContextKey{}).(Actor)
	return actor
}
