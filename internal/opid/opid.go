// Package opid assigns a correlation id to each store operation (store_job,
// acquire_next_trigger, do_checkin, ...) so every log line emitted while
// that operation's transaction envelope is open can be traced together.
// Generalized from the teacher's HTTP request-id package — same shape, new
// caller: the transaction envelope (internal/store/envelope.go) stands in
// for the HTTP middleware that used to mint these.
package opid

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey struct{}

// New generates a random id for one store operation.
func New() string {
	return uuid.NewString()
}

// WithOperationID returns a copy of ctx carrying id.
func WithOperationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext extracts the operation id from ctx, or "" if absent.
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}
