// Package context carries per-invocation tracing values for finnctl
package context

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey int

const (
	runIDKey ctxKey = iota
	commandKey
)

// NewRunID creates a unique id for one dispatch of an external command
func NewRunID() string {
	return uuid.New().String()
}

// WithRunID adds a run ID to the context, generating one when id is empty
func WithRunID(parent context.Context, id string) context.Context {
	if id == "" {
		id = NewRunID()
	}
	return context.WithValue(parent, runIDKey, id)
}

// RunID retrieves the run ID from context
func RunID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(runIDKey).(string)
	return id, ok && id != ""
}

// WithCommand records the CLI command being executed
func WithCommand(parent context.Context, name string) context.Context {
	return context.WithValue(parent, commandKey, name)
}

// Command retrieves the CLI command name from context
func Command(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(commandKey).(string)
	return name, ok && name != ""
}
