package tool

import (
	"context"
	"time"

	"github.com/hupe1980/sleuth/core"
)

// ExecutionContext carries per-dispatch information to the registry and, via
// the context, to handlers.
type ExecutionContext struct {
	AgentType core.AgentType
	RunID     string
	Repo      core.Repo
	Iteration int
	// Timeout bounds the handler. Zero uses the registry default.
	Timeout time.Duration
	// Policy restricts the tools this caller may dispatch.
	Policy Policy
	// CacheTTL replaces the registry TTL for results computed by this call
	// when positive.
	CacheTTL time.Duration
}

type execKey struct{}

// WithExecution returns a context carrying ec.
func WithExecution(ctx context.Context, ec ExecutionContext) context.Context {
	return context.WithValue(ctx, execKey{}, ec)
}

// ExecutionFrom returns the ExecutionContext stored in ctx.
func ExecutionFrom(ctx context.Context) (ExecutionContext, bool) {
	ec, ok := ctx.Value(execKey{}).(ExecutionContext)
	return ec, ok
}
