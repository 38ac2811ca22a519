package testutil

import (
	"context"
	"sync"

	"github.com/hupe1980/sleuth/core"
	"github.com/hupe1980/sleuth/tool"
)

// CountingTool wraps a handler and records how often it ran.
type CountingTool struct {
	mu    sync.Mutex
	calls int
	args  []map[string]any
}

// Calls returns the number of handler invocations.
func (c *CountingTool) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// Args returns the arguments of every invocation.
func (c *CountingTool) Args() []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]map[string]any(nil), c.args...)
}

// Tool builds a registry tool that counts calls before delegating to fn.
func (c *CountingTool) Tool(schema core.ToolSchema, fn tool.Handler, optFns ...func(o *tool.ToolOptions)) *tool.Tool {
	return tool.NewFunc(schema, func(ctx context.Context, args map[string]any) (any, error) {
		c.mu.Lock()
		c.calls++
		c.args = append(c.args, args)
		c.mu.Unlock()
		return fn(ctx, args)
	}, optFns...)
}
