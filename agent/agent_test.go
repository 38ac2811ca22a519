package agent

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/sleuth/cache"
	"github.com/hupe1980/sleuth/core"
	"github.com/hupe1980/sleuth/gateway"
	"github.com/hupe1980/sleuth/internal/testutil"
	"github.com/hupe1980/sleuth/tool"
	"github.com/hupe1980/sleuth/toolset"
)

func newRegistry(t *testing.T) *tool.Registry {
	t.Helper()

	reg := tool.NewRegistry(func(o *tool.Options) { o.Cache = cache.New() })
	require.NoError(t, toolset.Register(reg))

	return reg
}

func toolStep(name string, args map[string]any) gateway.Step {
	return gateway.Step{Response: gateway.Response{ToolCall: &core.ToolCall{Name: name, Arguments: args}}}
}

func TestAgent_CompletesWithGatewayPlan(t *testing.T) {
	repo := testutil.SampleRepo(t)
	gw := gateway.NewScripted(
		toolStep(toolset.SearchCode, map[string]any{"query": "LoginHandler"}),
		toolStep(toolset.ReadFile, map[string]any{"path": "auth/login.go"}),
		toolStep(toolset.Finish, map[string]any{"summary": "LoginHandler in auth/login.go issues a token."}),
	)

	a := New(core.AgentTypeCode, gw, newRegistry(t))
	res := a.Run(context.Background(), core.NewGoal("How does login work?", core.AgentTypeCode), repo)

	assert.Equal(t, core.TerminationCompleted, res.Termination)
	assert.Equal(t, "LoginHandler in auth/login.go issues a token.", res.Summary)
	assert.Equal(t, 3, res.Iterations)
	assert.NoError(t, res.Err)
	assert.False(t, res.Failed())
	assert.NotEmpty(t, res.RunID)

	artifacts := map[string]bool{}
	for _, f := range res.Findings {
		artifacts[f.Artifact] = true
		assert.Equal(t, core.AgentTypeCode, f.Agent)
	}
	assert.True(t, artifacts["auth/login.go"])
	assert.Greater(t, res.Confidence, 0.5)
	assert.LessOrEqual(t, res.Confidence, 0.9)

	reqs := gw.Requests()
	require.Len(t, reqs, 3)
	assert.Contains(t, reqs[0].Instructions, "How does login work?")
	assert.Contains(t, reqs[2].Context, "auth/login.go")

	var offered []string
	for _, s := range reqs[0].Tools {
		offered = append(offered, s.Name)
	}
	assert.Contains(t, offered, toolset.Finish)
	assert.NotContains(t, offered, toolset.WebSearch)
}

func TestAgent_FreeTextCompletes(t *testing.T) {
	gw := gateway.NewScripted(gateway.Step{Response: gateway.Response{Text: "Nothing to do."}})

	res := New(core.AgentTypeCode, gw, newRegistry(t)).
		Run(context.Background(), core.NewGoal("What is this?", core.AgentTypeCode), testutil.SampleRepo(t))

	assert.Equal(t, core.TerminationCompleted, res.Termination)
	assert.Equal(t, "Nothing to do.", res.Summary)
	assert.Equal(t, 1, res.Iterations)
}

func TestAgent_MaxIterationsBound(t *testing.T) {
	for _, max := range []int{1, 3, 5} {
		gw := gateway.NewScripted()
		gw.Fallback = &gateway.Step{Response: gateway.Response{
			ToolCall: &core.ToolCall{Name: toolset.ScanFiles, Arguments: map[string]any{}},
		}}

		a := New(core.AgentTypeCode, gw, newRegistry(t), func(o *Options) { o.MaxIterations = max })
		res := a.Run(context.Background(), core.NewGoal("loop forever", core.AgentTypeCode), testutil.SampleRepo(t))

		assert.Equal(t, max, res.Iterations)
		assert.Len(t, gw.Requests(), max)
		assert.Equal(t, core.TerminationIterationLimit, res.Termination)
		assert.ErrorIs(t, res.Err, core.ErrTimeoutExceeded)
		assert.LessOrEqual(t, res.Confidence, 0.5)
		assert.True(t, res.Termination.Partial())
	}
}

func TestAgent_ErrorStreakLowersConfidence(t *testing.T) {
	gw := gateway.NewScripted()
	gw.Fallback = &gateway.Step{Response: gateway.Response{
		ToolCall: &core.ToolCall{Name: toolset.ReadFile, Arguments: map[string]any{"path": "missing.go"}},
	}}

	res := New(core.AgentTypeCode, gw, newRegistry(t)).
		Run(context.Background(), core.NewGoal("read it", core.AgentTypeCode), testutil.SampleRepo(t))

	assert.Equal(t, core.TerminationErrorStreak, res.Termination)
	assert.Equal(t, 3, res.Iterations)
	assert.Less(t, res.Confidence, 0.3)
	assert.ErrorIs(t, res.Err, core.ErrToolExecution)
}

func TestAgent_ErrorStreakResetsOnSuccess(t *testing.T) {
	missing := toolStep(toolset.ReadFile, map[string]any{"path": "missing.go"})
	gw := gateway.NewScripted(
		missing, missing,
		toolStep(toolset.ScanFiles, map[string]any{}),
		missing, missing,
		gateway.Step{Response: gateway.Response{Text: "done"}},
	)

	res := New(core.AgentTypeCode, gw, newRegistry(t)).
		Run(context.Background(), core.NewGoal("x", core.AgentTypeCode), testutil.SampleRepo(t))

	assert.Equal(t, core.TerminationCompleted, res.Termination)
	assert.Equal(t, 6, res.Iterations)
}

func TestAgent_UnreachableGatewayFallsBack(t *testing.T) {
	var calls atomic.Int32
	gw := gateway.Func(func(context.Context, gateway.Request) (gateway.Response, error) {
		calls.Add(1)
		return gateway.Response{}, &gateway.UnavailableError{Provider: "test", Err: errors.New("connection refused")}
	})

	res := New(core.AgentTypeCode, gw, newRegistry(t)).
		Run(context.Background(), core.NewGoal("How does login work?", core.AgentTypeCode), testutil.SampleRepo(t))

	assert.Equal(t, core.TerminationCompleted, res.Termination)
	assert.False(t, res.Failed())
	assert.NotEmpty(t, res.Summary)
	assert.NotEmpty(t, res.Findings)
	assert.EqualValues(t, 1, calls.Load(), "an unreachable gateway is not asked again")
	assert.LessOrEqual(t, res.Confidence, 0.6)
	assert.Greater(t, res.Confidence, 0.0)

	artifacts := map[string]bool{}
	for _, f := range res.Findings {
		artifacts[f.Artifact] = true
	}
	assert.True(t, artifacts["auth/login.go"])
}

func TestAgent_UnknownToolFallsBack(t *testing.T) {
	gw := gateway.NewScripted()
	gw.Fallback = &gateway.Step{Response: gateway.Response{
		ToolCall: &core.ToolCall{Name: "delete_repo", Arguments: map[string]any{}},
	}}

	res := New(core.AgentTypeCode, gw, newRegistry(t)).
		Run(context.Background(), core.NewGoal("How does payment work?", core.AgentTypeCode), testutil.SampleRepo(t))

	assert.Equal(t, core.TerminationCompleted, res.Termination)
	assert.Contains(t, res.Summary, "payment")
	assert.Greater(t, len(gw.Requests()), 1, "parse-level problems do not disable the gateway")
}

func TestAgent_SlowGatewayHitsStepDeadline(t *testing.T) {
	gw := gateway.Func(func(ctx context.Context, _ gateway.Request) (gateway.Response, error) {
		<-ctx.Done()
		return gateway.Response{}, ctx.Err()
	})

	a := New(core.AgentTypeCode, gw, newRegistry(t), func(o *Options) {
		o.PerIterationTimeout = 20 * time.Millisecond
		o.TotalTimeout = 5 * time.Second
	})
	res := a.Run(context.Background(), core.NewGoal("login", core.AgentTypeCode), testutil.SampleRepo(t))

	assert.Equal(t, core.TerminationCompleted, res.Termination)
	assert.NotEmpty(t, res.Findings)
}

func TestAgent_BudgetLeavesNoRoomForAnotherIteration(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	gw := gateway.Func(func(context.Context, gateway.Request) (gateway.Response, error) {
		clock.Advance(20 * time.Second)
		return gateway.Response{ToolCall: &core.ToolCall{Name: toolset.ScanFiles, Arguments: map[string]any{}}}, nil
	})

	a := New(core.AgentTypeCode, gw, newRegistry(t), func(o *Options) {
		o.MaxIterations = 10
		o.PerIterationTimeout = 30 * time.Second
		o.TotalTimeout = 60 * time.Second
		o.Now = clock.Now
	})
	res := a.Run(context.Background(), core.NewGoal("scan", core.AgentTypeCode), testutil.SampleRepo(t))

	assert.Equal(t, core.TerminationTimeout, res.Termination)
	assert.Equal(t, 2, res.Iterations)
	assert.ErrorIs(t, res.Err, core.ErrTimeoutExceeded)
	assert.LessOrEqual(t, res.Confidence, 0.5)
}

func TestAgent_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := New(core.AgentTypeCode, gateway.NewScripted(), newRegistry(t)).
		Run(ctx, core.NewGoal("x", core.AgentTypeCode), testutil.SampleRepo(t))

	assert.Equal(t, core.TerminationCancelled, res.Termination)
	assert.Equal(t, 0, res.Iterations)
	assert.ErrorIs(t, res.Err, context.Canceled)
}

func TestAgent_DocsVariantPolicy(t *testing.T) {
	gw := gateway.Unavailable{}

	res := New(core.AgentTypeDocs, gw, newRegistry(t)).
		Run(context.Background(), core.NewGoal("How does login work?", core.AgentTypeDocs), testutil.SampleRepo(t))

	require.NotEmpty(t, res.Findings)
	for _, f := range res.Findings {
		assert.Contains(t, f.Artifact, ".md", "docs fallback stays within documentation")
	}
}

func TestAgent_CacheHitsAcrossAgents(t *testing.T) {
	reg := newRegistry(t)
	repo := testutil.SampleRepo(t)
	goal := core.NewGoal("How does login work?", core.AgentTypeCode)

	first := New(core.AgentTypeCode, gateway.Unavailable{}, reg).Run(context.Background(), goal, repo)
	second := New(core.AgentTypeCode, gateway.Unavailable{}, reg).Run(context.Background(), goal, repo)

	assert.Empty(t, first.CacheHits)
	assert.NotEmpty(t, second.CacheHits)
	assert.Equal(t, first.Summary, second.Summary)
}

func TestAgent_PanicBecomesFailedResult(t *testing.T) {
	gw := gateway.Func(func(context.Context, gateway.Request) (gateway.Response, error) {
		panic("provider bug")
	})

	res := New(core.AgentTypeCode, gw, newRegistry(t)).
		Run(context.Background(), core.NewGoal("x", core.AgentTypeCode), testutil.SampleRepo(t))

	assert.Equal(t, core.TerminationFailed, res.Termination)
	assert.True(t, res.Failed())
	assert.Zero(t, res.Confidence)
}

func TestAgent_NoEvidenceIsFailure(t *testing.T) {
	repo := core.Repo{Root: filepath.Join(t.TempDir(), "missing"), Name: "missing"}

	res := New(core.AgentTypeCode, gateway.Unavailable{}, newRegistry(t)).
		Run(context.Background(), core.NewGoal("How does login work?", core.AgentTypeCode), repo)

	assert.Equal(t, core.TerminationFailed, res.Termination)
	assert.ErrorIs(t, res.Err, core.ErrNoEvidence)
	assert.True(t, res.Failed())
	assert.Empty(t, res.Summary)
	assert.Zero(t, res.Confidence)
}

func TestAgent_GatewayAnswerWithoutToolsIsNotFailure(t *testing.T) {
	repo := core.Repo{Root: filepath.Join(t.TempDir(), "missing"), Name: "missing"}
	gw := gateway.NewScripted(gateway.Step{Response: gateway.Response{Text: "Login is not part of this service."}})

	res := New(core.AgentTypeCode, gw, newRegistry(t)).
		Run(context.Background(), core.NewGoal("How does login work?", core.AgentTypeCode), repo)

	assert.Equal(t, core.TerminationCompleted, res.Termination)
	assert.False(t, res.Failed())
	assert.Equal(t, "Login is not part of this service.", res.Summary)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestAgent_ExtraToolsAreOfferedAndCallable(t *testing.T) {
	reg := newRegistry(t)
	counter := &testutil.CountingTool{}
	require.NoError(t, reg.Register(counter.Tool(
		core.ToolSchema{Name: "ticket", Description: "Looks up a ticket.", Params: []core.ToolParam{{Name: "id", Type: "string", Required: true}}},
		func(_ context.Context, args map[string]any) (any, error) {
			return map[string]any{"id": args["id"], "status": "open"}, nil
		},
	)))

	gw := gateway.NewScripted(
		toolStep("ticket", map[string]any{"id": "AUTH-1"}),
		toolStep(toolset.Finish, map[string]any{"summary": "AUTH-1 is open."}),
	)

	res := New(core.AgentTypeDocs, gw, reg, func(o *Options) { o.ExtraTools = []string{"ticket"} }).
		Run(context.Background(), core.NewGoal("Is the login ticket open?", core.AgentTypeDocs), testutil.SampleRepo(t))

	assert.Equal(t, core.TerminationCompleted, res.Termination)
	assert.Equal(t, 1, counter.Calls())

	var offered []string
	for _, s := range gw.Requests()[0].Tools {
		offered = append(offered, s.Name)
	}
	assert.Contains(t, offered, "ticket")

	// Without the extension the same call is rejected as unknown.
	other := New(core.AgentTypeDocs, gateway.NewScripted(toolStep("ticket", map[string]any{"id": "AUTH-2"})), reg)
	other.Run(context.Background(), core.NewGoal("Is the login ticket open?", core.AgentTypeDocs), testutil.SampleRepo(t))
	assert.Equal(t, 1, counter.Calls())
}
