package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/hupe1980/sleuth/cache"
	"github.com/hupe1980/sleuth/core"
	"github.com/hupe1980/sleuth/logging"
)

// Options configure a Registry.
type Options struct {
	// Cache shares results across agents. Nil disables caching.
	Cache *cache.Cache
	// TTL applied to cached results.
	TTL time.Duration
	// DefaultTimeout bounds a handler when the ExecutionContext sets none.
	DefaultTimeout time.Duration
	Logger         logging.Logger
}

type entry struct {
	tool   *Tool
	schema *gojsonschema.Schema
}

// Registry maps tool names to tools and dispatches ToolCalls.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
	order   []string
	opts    Options
}

// NewRegistry creates an empty registry.
func NewRegistry(optFns ...func(o *Options)) *Registry {
	opts := Options{
		TTL:            time.Hour,
		DefaultTimeout: 30 * time.Second,
		Logger:         logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)

	return &Registry{entries: map[string]entry{}, opts: opts}
}

// Register adds tools. Names must be unique and schemas must compile.
func (r *Registry) Register(tools ...*Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range tools {
		name := t.Name()
		if name == "" {
			return fmt.Errorf("tool name must not be empty")
		}
		if _, exists := r.entries[name]; exists {
			return fmt.Errorf("tool %q already registered", name)
		}

		schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(t.schema.JSONSchema()))
		if err != nil {
			return fmt.Errorf("compile schema for %s: %w", name, err)
		}

		r.entries[name] = entry{tool: t, schema: schema}
		r.order = append(r.order, name)
	}

	return nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.entries[name]
	return ok
}

// Names returns registered tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]string(nil), r.order...)
}

// Schemas returns the schemas allowed under p in registration order.
func (r *Registry) Schemas(p Policy) []core.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]core.ToolSchema, 0, len(r.order))
	for _, name := range r.order {
		if p.Allows(name) {
			out = append(out, r.entries[name].tool.schema)
		}
	}

	return out
}

// Cache returns the result cache, or nil.
func (r *Registry) Cache() *cache.Cache { return r.opts.Cache }

// Execute validates call, consults the cache and runs the handler. Failures
// are reported in the returned ToolResult, never as a panic. The handler is
// never invoked for a call that fails validation.
func (r *Registry) Execute(ctx context.Context, call core.ToolCall, ec ExecutionContext) core.ToolResult {
	start := time.Now()
	logger := r.opts.Logger

	fail := func(err error) core.ToolResult {
		return core.ToolResult{Tool: call.Name, Success: false, Err: err, Duration: time.Since(start)}
	}

	r.mu.RLock()
	e, ok := r.entries[call.Name]
	r.mu.RUnlock()

	if !ok {
		logger.Warn("tool.execute.unknown", "tool", call.Name, "agent", ec.AgentType)
		return fail(validationError(call.Name, "unknown tool", nil))
	}
	if !ec.Policy.Allows(call.Name) {
		logger.Warn("tool.execute.denied", "tool", call.Name, "agent", ec.AgentType)
		return fail(validationError(call.Name, "tool not allowed for this agent", nil))
	}

	args := applyDefaults(e.tool.schema, call.Arguments)

	if err := validate(e.schema, args); err != nil {
		logger.Warn("tool.execute.validation_failed", "tool", call.Name, "agent", ec.AgentType, "error", err)
		return fail(err.withTool(call.Name))
	}

	key, err := Fingerprint(ec.Repo.Root, call.Name, args)
	if err != nil {
		return fail(validationError(call.Name, fmt.Sprintf("arguments not encodable: %v", err), nil))
	}

	run := func(ctx context.Context) (any, error) {
		return r.invoke(ctx, e.tool, args, ec)
	}

	var (
		value any
		hit   bool
	)

	if r.opts.Cache != nil && e.tool.cacheable {
		ttl := r.opts.TTL
		if ec.CacheTTL > 0 {
			ttl = ec.CacheTTL
		}
		value, hit, err = r.opts.Cache.GetOrCompute(ctx, key, ttl, run)
	} else {
		value, err = run(ctx)
	}

	if err != nil {
		logger.Warn("tool.execute.error", "tool", call.Name, "agent", ec.AgentType, "error", err)
		res := fail(executionError(call.Name, err))
		res.CacheKey = key
		return res
	}

	out := normalize(value)

	logger.Debug("tool.execute.done",
		"tool", call.Name,
		"agent", ec.AgentType,
		"cache_hit", hit,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return core.ToolResult{
		Tool:     call.Name,
		Success:  true,
		Payload:  out.Payload,
		Findings: out.Findings,
		CacheHit: hit,
		CacheKey: key,
		Duration: time.Since(start),
	}
}

func (r *Registry) invoke(ctx context.Context, t *Tool, args map[string]any, ec ExecutionContext) (result any, err error) {
	timeout := ec.Timeout
	if timeout <= 0 {
		timeout = r.opts.DefaultTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ctx = WithExecution(ctx, ec)

	defer func() {
		if p := recover(); p != nil {
			r.opts.Logger.Error("tool.execute.panic", "tool", t.Name(), "panic", fmt.Sprint(p), "stack", string(debug.Stack()))
			err = fmt.Errorf("tool panicked: %v", p)
		}
	}()

	result, err = t.handler(ctx, args)
	if err != nil {
		return nil, err
	}

	// Cached values must look the same whether fresh or reloaded from disk,
	// so results are reduced to plain JSON types here.
	return toJSONValue(result)
}

type schemaError struct {
	details []string
}

func (e *schemaError) withTool(name string) *ToolError {
	return validationError(name, "parameter validation failed: "+strings.Join(e.details, "; "), e.details)
}

func validate(schema *gojsonschema.Schema, args map[string]any) *schemaError {
	result, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return &schemaError{details: []string{err.Error()}}
	}
	if result.Valid() {
		return nil
	}

	details := make([]string, 0, len(result.Errors()))
	for _, re := range result.Errors() {
		details = append(details, re.String())
	}

	return &schemaError{details: details}
}

func applyDefaults(schema core.ToolSchema, args map[string]any) map[string]any {
	out := make(map[string]any, len(args)+len(schema.Params))
	for k, v := range args {
		out[k] = v
	}
	for _, p := range schema.Params {
		if _, ok := out[p.Name]; !ok && p.Default != nil {
			out[p.Name] = p.Default
		}
	}
	return out
}

func toJSONValue(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("tool result not encodable: %w", err)
	}

	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}

	return out, nil
}

// normalize turns a JSON value into an Output. Values shaped like an Output
// (an object with a payload key) are unpacked; everything else is the payload.
func normalize(v any) Output {
	m, ok := v.(map[string]any)
	if !ok {
		return Output{Payload: v}
	}
	if _, has := m["payload"]; !has {
		return Output{Payload: v}
	}

	out := Output{Payload: m["payload"]}

	if raw, err := json.Marshal(m["findings"]); err == nil {
		var findings []core.Finding
		if json.Unmarshal(raw, &findings) == nil {
			out.Findings = findings
		}
	}

	return out
}
