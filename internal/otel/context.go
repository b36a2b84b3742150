package otel

import "context"

type runKey struct{}

// WithRunID attaches a cycle id to ctx so that components deep in the call
// chain can tag their events with it.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runKey{}, id)
}

// RunID returns the cycle id carried by ctx, or "".
func RunID(ctx context.Context) string {
	id, _ := ctx.Value(runKey{}).(string)
	return id
}
