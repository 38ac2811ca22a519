package tool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/sleuth/cache"
	"github.com/hupe1980/sleuth/core"
)

type sumArgs struct {
	A float64 `json:"a" description:"First addend"`
	B float64 `json:"b" description:"Second addend"`
}

func newSumTool(calls *atomic.Int32) *Tool {
	return New("sum", "Add numbers", func(_ context.Context, in sumArgs) (any, error) {
		calls.Add(1)
		return in.A + in.B, nil
	})
}

func execCtx() ExecutionContext {
	return ExecutionContext{AgentType: core.AgentTypeCode, RunID: "run-1", Repo: core.Repo{Root: "/repo"}}
}

// -------------------- Registration --------------------

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	var calls atomic.Int32

	require.NoError(t, r.Register(newSumTool(&calls)))
	assert.True(t, r.Has("sum"))
	assert.Equal(t, []string{"sum"}, r.Names())

	err := r.Register(newSumTool(&calls))
	assert.Error(t, err, "duplicate names are rejected")

	schemas := r.Schemas(Policy{})
	require.Len(t, schemas, 1)
	assert.Equal(t, "sum", schemas[0].Name)
	assert.Len(t, schemas[0].Params, 2)

	assert.Empty(t, r.Schemas(Policy{Deny: []string{"sum"}}))
}

// -------------------- Execute --------------------

func TestRegistry_ExecuteSuccess(t *testing.T) {
	r := NewRegistry()
	var calls atomic.Int32
	require.NoError(t, r.Register(newSumTool(&calls)))

	res := r.Execute(context.Background(), core.ToolCall{Name: "sum", Arguments: map[string]any{"a": 2.0, "b": 3.0}}, execCtx())

	require.True(t, res.Success, res.Summary(0))
	assert.Equal(t, 5.0, res.Payload)
	assert.False(t, res.CacheHit)
	assert.NotEmpty(t, res.CacheKey)
	assert.EqualValues(t, 1, calls.Load())
}

func TestRegistry_ExecuteValidationError(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
	}{
		{"missing required", map[string]any{"a": 1.0}},
		{"wrong type", map[string]any{"a": "one", "b": 2.0}},
		{"unknown argument", map[string]any{"a": 1.0, "b": 2.0, "c": 3.0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			var calls atomic.Int32
			require.NoError(t, r.Register(newSumTool(&calls)))

			res := r.Execute(context.Background(), core.ToolCall{Name: "sum", Arguments: tt.args}, execCtx())

			assert.False(t, res.Success)
			assert.ErrorIs(t, res.Err, core.ErrValidation)
			assert.True(t, IsValidation(res.Err))

			var te *ToolError
			require.ErrorAs(t, res.Err, &te)
			assert.Equal(t, CodeValidation, te.Code)
			assert.EqualValues(t, 0, calls.Load(), "handler must not run on invalid arguments")
		})
	}
}

func TestRegistry_ExecuteUnknownAndDenied(t *testing.T) {
	r := NewRegistry()
	var calls atomic.Int32
	require.NoError(t, r.Register(newSumTool(&calls)))

	res := r.Execute(context.Background(), core.ToolCall{Name: "nope"}, execCtx())
	assert.ErrorIs(t, res.Err, core.ErrValidation)

	ec := execCtx()
	ec.Policy = Policy{Allow: []string{"read_file"}}
	res = r.Execute(context.Background(), core.ToolCall{Name: "sum", Arguments: map[string]any{"a": 1.0, "b": 1.0}}, ec)
	assert.ErrorIs(t, res.Err, core.ErrValidation)
	assert.EqualValues(t, 0, calls.Load())
}

func TestRegistry_ExecuteHandlerErrorAndPanic(t *testing.T) {
	boom := errors.New("boom")
	r := NewRegistry()
	require.NoError(t, r.Register(
		NewFunc(core.ToolSchema{Name: "fail"}, func(context.Context, map[string]any) (any, error) {
			return nil, boom
		}),
		NewFunc(core.ToolSchema{Name: "explode"}, func(context.Context, map[string]any) (any, error) {
			panic("kaboom")
		}),
	))

	res := r.Execute(context.Background(), core.ToolCall{Name: "fail"}, execCtx())
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, core.ErrToolExecution)
	assert.ErrorIs(t, res.Err, boom)

	res = r.Execute(context.Background(), core.ToolCall{Name: "explode"}, execCtx())
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, core.ErrToolExecution)
	assert.Contains(t, res.Err.Error(), "kaboom")
}

func TestRegistry_ExecuteTimeout(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(NewFunc(core.ToolSchema{Name: "slow"}, func(ctx context.Context, _ map[string]any) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})))

	ec := execCtx()
	ec.Timeout = 10 * time.Millisecond

	res := r.Execute(context.Background(), core.ToolCall{Name: "slow"}, ec)
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
}

func TestRegistry_DefaultsApplied(t *testing.T) {
	type listArgs struct {
		Pattern string `json:"pattern"`
		Limit   int    `json:"limit" default:"7"`
	}

	var got listArgs
	r := NewRegistry()
	require.NoError(t, r.Register(New("list", "List", func(_ context.Context, in listArgs) (any, error) {
		got = in
		return "ok", nil
	})))

	res := r.Execute(context.Background(), core.ToolCall{Name: "list", Arguments: map[string]any{"pattern": "*.go"}}, execCtx())
	require.True(t, res.Success, res.Summary(0))
	assert.Equal(t, 7, got.Limit)
}

func TestRegistry_ExecutionContextVisibleToHandler(t *testing.T) {
	r := NewRegistry()
	var seen ExecutionContext
	require.NoError(t, r.Register(NewFunc(core.ToolSchema{Name: "peek"}, func(ctx context.Context, _ map[string]any) (any, error) {
		seen, _ = ExecutionFrom(ctx)
		return nil, nil
	})))

	r.Execute(context.Background(), core.ToolCall{Name: "peek"}, execCtx())
	assert.Equal(t, "/repo", seen.Repo.Root)
	assert.Equal(t, core.AgentTypeCode, seen.AgentType)
}

func TestRegistry_OutputFindings(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(NewFunc(core.ToolSchema{Name: "find"}, func(context.Context, map[string]any) (any, error) {
		return Output{
			Payload:  []string{"a.go"},
			Findings: []core.Finding{{Artifact: "a.go", Kind: "file"}},
		}, nil
	})))

	res := r.Execute(context.Background(), core.ToolCall{Name: "find"}, execCtx())
	require.True(t, res.Success)
	assert.Equal(t, []any{"a.go"}, res.Payload)
	require.Len(t, res.Findings, 1)
	assert.Equal(t, "a.go", res.Findings[0].Artifact)
}

// -------------------- Caching --------------------

func TestRegistry_CacheSharedAcrossAgents(t *testing.T) {
	c := cache.New()
	r := NewRegistry(func(o *Options) { o.Cache = c })

	var calls atomic.Int32
	require.NoError(t, r.Register(newSumTool(&calls)))

	call := core.ToolCall{Name: "sum", Arguments: map[string]any{"b": 3.0, "a": 2.0}}

	var wg sync.WaitGroup
	for _, agent := range []core.AgentType{core.AgentTypeCode, core.AgentTypeDocs, core.AgentTypeWeb} {
		wg.Add(1)
		go func(agent core.AgentType) {
			defer wg.Done()
			ec := execCtx()
			ec.AgentType = agent
			res := r.Execute(context.Background(), call, ec)
			assert.True(t, res.Success)
			assert.Equal(t, 5.0, res.Payload)
		}(agent)
	}
	wg.Wait()

	assert.EqualValues(t, 1, calls.Load())

	res := r.Execute(context.Background(), core.ToolCall{Name: "sum", Arguments: map[string]any{"a": 2, "b": 3}}, execCtx())
	assert.True(t, res.CacheHit, "integer and float arguments share a fingerprint")
}

func TestRegistry_ExecutionContextCacheTTL(t *testing.T) {
	c := cache.New()
	r := NewRegistry(func(o *Options) {
		o.Cache = c
		o.TTL = 0
	})

	var calls atomic.Int32
	require.NoError(t, r.Register(newSumTool(&calls)))

	call := core.ToolCall{Name: "sum", Arguments: map[string]any{"a": 1.0, "b": 1.0}}

	r.Execute(context.Background(), call, execCtx())
	res := r.Execute(context.Background(), call, execCtx())
	assert.False(t, res.CacheHit, "a zero registry TTL never serves")
	assert.EqualValues(t, 2, calls.Load())

	ec := execCtx()
	ec.CacheTTL = time.Hour
	r.Execute(context.Background(), call, ec)
	res = r.Execute(context.Background(), call, ec)
	assert.True(t, res.CacheHit)
	assert.EqualValues(t, 3, calls.Load())
}

func TestRegistry_NonCacheableTool(t *testing.T) {
	c := cache.New()
	r := NewRegistry(func(o *Options) { o.Cache = c })

	var calls atomic.Int32
	require.NoError(t, r.Register(NewFunc(core.ToolSchema{Name: "now"}, func(context.Context, map[string]any) (any, error) {
		calls.Add(1)
		return "tick", nil
	}, func(o *ToolOptions) { o.Cacheable = false })))

	r.Execute(context.Background(), core.ToolCall{Name: "now"}, execCtx())
	r.Execute(context.Background(), core.ToolCall{Name: "now"}, execCtx())

	assert.EqualValues(t, 2, calls.Load())
	assert.Equal(t, 0, c.Len())
}

func TestRegistry_ErrorsNotCached(t *testing.T) {
	c := cache.New()
	r := NewRegistry(func(o *Options) { o.Cache = c })

	var calls atomic.Int32
	require.NoError(t, r.Register(NewFunc(core.ToolSchema{Name: "flaky"}, func(context.Context, map[string]any) (any, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("transient")
		}
		return "ok", nil
	})))

	res := r.Execute(context.Background(), core.ToolCall{Name: "flaky"}, execCtx())
	assert.False(t, res.Success)

	res = r.Execute(context.Background(), core.ToolCall{Name: "flaky"}, execCtx())
	assert.True(t, res.Success)
	assert.False(t, res.CacheHit)
}

// -------------------- Fingerprint & Policy --------------------

func TestFingerprint(t *testing.T) {
	a, err := Fingerprint("/repo", "read_file", map[string]any{"path": "a.go", "max": 10})
	require.NoError(t, err)
	b, err := Fingerprint("/repo", "read_file", map[string]any{"max": 10, "path": "a.go"})
	require.NoError(t, err)
	assert.Equal(t, a, b, "argument order does not matter")

	other, _ := Fingerprint("/other", "read_file", map[string]any{"path": "a.go", "max": 10})
	assert.NotEqual(t, a, other, "namespace separates repositories")

	tool, _ := Fingerprint("/repo", "scan_files", map[string]any{"path": "a.go", "max": 10})
	assert.NotEqual(t, a, tool)

	empty, _ := Fingerprint("/repo", "x", nil)
	emptyMap, _ := Fingerprint("/repo", "x", map[string]any{})
	assert.Equal(t, empty, emptyMap)
}

func TestPolicy(t *testing.T) {
	tests := []struct {
		name   string
		policy Policy
		tool   string
		want   bool
	}{
		{"empty allows all", Policy{}, "read_file", true},
		{"wildcard", Policy{Allow: []string{"*"}}, "read_file", true},
		{"allow list hit", Policy{Allow: []string{"read_file"}}, "read_file", true},
		{"allow list miss", Policy{Allow: []string{"read_file"}}, "web_search", false},
		{"deny wins", Policy{Allow: []string{"*"}, Deny: []string{"web_search"}}, "web_search", false},
		{"deny all", Policy{Deny: []string{"*"}}, "read_file", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy.Allows(tt.tool))
		})
	}

	assert.Equal(t, []string{"a", "c"}, Policy{Deny: []string{"b"}}.Filter([]string{"a", "b", "c"}))
}

func TestToolErrorFormatting(t *testing.T) {
	err := NewToolError("demo", "something failed", "E123")
	assert.Contains(t, err.Error(), "E123")
	assert.Contains(t, err.Error(), "demo")
}
