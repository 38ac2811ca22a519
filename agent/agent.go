package agent

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/sleuth/core"
	"github.com/hupe1980/sleuth/gateway"
	"github.com/hupe1980/sleuth/logging"
	"github.com/hupe1980/sleuth/tool"
	"github.com/hupe1980/sleuth/toolset"
)

// Options configure an Agent.
type Options struct {
	// MaxIterations bounds the loop. Zero means unlimited (use a timeout then).
	MaxIterations int
	// PerIterationTimeout bounds each reasoning and acting step.
	PerIterationTimeout time.Duration
	// TotalTimeout bounds the whole run.
	TotalTimeout time.Duration
	// CacheTTL replaces the registry TTL for tool results when positive.
	CacheTTL time.Duration
	// MaxErrorStreak ends the run after that many consecutive tool failures.
	MaxErrorStreak int
	// ObservationTail is how many recent observations the prompt carries.
	ObservationTail int
	// ObservationLimit caps the bytes of a single observation.
	ObservationLimit int
	// Instruction overrides the variant instruction.
	Instruction Instruction
	// ExtraTools extends the variant's tool policy.
	ExtraTools []string
	// Fallback decides when the gateway cannot.
	Fallback Policy
	// Confidence scores the finished run.
	Confidence ConfidenceFunc
	Logger     logging.Logger
	// Now returns the current time. Tests replace it with a fake clock.
	Now func() time.Time
}

// Agent investigates a goal through a bounded Reason→Act→Observe loop.
type Agent struct {
	variant Variant
	gw      gateway.Gateway
	reg     *tool.Registry
	opts    Options
}

// New creates an agent for the given variant type.
//
// Default configuration:
//   - 8 iterations, 30s per step, 3m in total
//   - three consecutive tool errors end the run
//   - HeuristicPolicy as fallback
func New(agentType core.AgentType, gw gateway.Gateway, reg *tool.Registry, optFns ...func(o *Options)) *Agent {
	cfg := core.DefaultConfig()

	opts := Options{
		MaxIterations:       cfg.MaxIterationsPerAgent,
		PerIterationTimeout: cfg.PerIterationTimeout,
		TotalTimeout:        cfg.TotalTimeout,
		MaxErrorStreak:      3,
		ObservationTail:     6,
		ObservationLimit:    2000,
		Fallback:            HeuristicPolicy{},
		Confidence:          Confidence,
		Logger:              logging.NoOpLogger{},
		Now:                 time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	if opts.Fallback == nil {
		opts.Fallback = HeuristicPolicy{}
	}
	if opts.Confidence == nil {
		opts.Confidence = Confidence
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if gw == nil {
		gw = gateway.Unavailable{}
	}

	variant := VariantFor(agentType)
	if !opts.Instruction.IsZero() {
		variant.Instruction = opts.Instruction
	}
	if len(opts.ExtraTools) > 0 && len(variant.Tools.Allow) > 0 {
		variant.Tools.Allow = append(slices.Clone(variant.Tools.Allow), opts.ExtraTools...)
	}

	return &Agent{variant: variant, gw: gw, reg: reg, opts: opts}
}

// Type returns the agent variant type.
func (a *Agent) Type() core.AgentType { return a.variant.Type }

// Run investigates goal inside repo and returns exactly one result.
func (a *Agent) Run(ctx context.Context, goal core.Goal, repo core.Repo) (result core.AgentResult) {
	runID := uuid.NewString()
	logger := a.opts.Logger
	budget := core.NewBudget(a.opts.MaxIterations, a.opts.PerIterationTimeout, a.opts.TotalTimeout, a.opts.Now)
	state := newState(goal)

	defer func() {
		if p := recover(); p != nil {
			logger.Error("agent.run.panic", "agent", a.variant.Type, "run_id", runID, "panic", fmt.Sprint(p), "stack", string(debug.Stack()))
			result = a.finish(runID, state, budget, core.TerminationFailed, fmt.Errorf("agent panicked: %v", p), false)
		}
	}()

	if a.opts.TotalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.opts.TotalTimeout)
		defer cancel()
	}

	schemas := a.reg.Schemas(a.variant.Tools)
	available := make([]string, 0, len(schemas))
	for _, s := range schemas {
		available = append(available, s.Name)
	}

	instructions, err := a.variant.Instruction.Resolve(map[string]any{
		"goal":  goal.Objective,
		"agent": string(a.variant.Type),
		"repo":  repo.Name,
		"tools": available,
	})
	if err != nil {
		return a.finish(runID, state, budget, core.TerminationFailed, fmt.Errorf("resolve instruction: %w", err), false)
	}

	offered := append(append([]core.ToolSchema(nil), schemas...), toolset.FinishSchema)

	logger.Info("agent.run.start", "agent", a.variant.Type, "run_id", runID, "goal", goal.Objective, "tools", len(available))

	for {
		if err := ctx.Err(); err != nil {
			return a.finish(runID, state, budget, contextTermination(err), contextError(err), false)
		}

		// Reasoning
		state.Phase = PhaseReasoning
		state.Iteration++
		logger.Debug("agent.iteration.start", "agent", a.variant.Type, "run_id", runID, "iteration", state.Iteration)

		decision := a.reason(ctx, state, instructions, offered, available)

		if err := ctx.Err(); err != nil {
			return a.finish(runID, state, budget, contextTermination(err), contextError(err), false)
		}

		if decision.Finish || decision.Call == nil {
			budget.Tick()
			summary := strings.TrimSpace(decision.Summary)
			state.Answered = summary != "" && !decision.Fallback
			if summary == "" {
				summary = Summarize(state)
			}
			state.Summary = summary
			return a.finish(runID, state, budget, core.TerminationCompleted, nil, decision.Fallback)
		}

		// Acting
		state.Phase = PhaseActing
		res := a.act(ctx, runID, state, repo, *decision.Call)

		// Observing
		state.Phase = PhaseObserving
		state.observe(*decision.Call, res, a.variant.Type, a.opts.ObservationLimit)
		budget.Tick()

		if res.Success {
			state.ErrorStreak = 0
		} else {
			state.ErrorStreak++
			if a.opts.MaxErrorStreak > 0 && state.ErrorStreak >= a.opts.MaxErrorStreak {
				return a.finish(runID, state, budget, core.TerminationErrorStreak,
					fmt.Errorf("%d consecutive tool errors, last: %w", state.ErrorStreak, res.Err), false)
			}
		}

		if term, err := budget.Exhausted(); term != "" {
			return a.finish(runID, state, budget, term, err, false)
		}
	}
}

// reason asks the gateway for the next step and falls back to the policy when
// the gateway errors or proposes a tool outside the agent's policy.
func (a *Agent) reason(ctx context.Context, s *State, instructions string, offered []core.ToolSchema, available []string) Decision {
	logger := a.opts.Logger

	if !s.GatewayDown {
		stepCtx, cancel := a.stepContext(ctx)
		resp, err := a.gw.Complete(stepCtx, gateway.Request{
			Instructions: instructions,
			Context:      s.Prompt(a.opts.ObservationTail),
			Tools:        offered,
		})
		cancel()

		switch {
		case err != nil:
			if gateway.IsUnavailable(err) {
				s.GatewayDown = true
			}
			logger.Warn("agent.gateway.error", "agent", a.variant.Type, "iteration", s.Iteration, "error", err)
			s.note(fmt.Sprintf("[%d] gateway error: %v", s.Iteration, err))
		case resp.ToolCall == nil:
			return Decision{Finish: true, Summary: resp.Text}
		case resp.ToolCall.Name == toolset.Finish:
			summary := toolset.FinishSummary(*resp.ToolCall)
			if summary == "" {
				summary = resp.Text
			}
			return Decision{Finish: true, Summary: summary}
		case !slices.Contains(available, resp.ToolCall.Name):
			logger.Warn("agent.gateway.unknown_tool", "agent", a.variant.Type, "iteration", s.Iteration, "tool", resp.ToolCall.Name)
			s.note(fmt.Sprintf("[%d] tool %q is not available", s.Iteration, resp.ToolCall.Name))
		default:
			return Decision{Call: resp.ToolCall}
		}
	}

	return a.opts.Fallback.Next(s, a.variant, available)
}

func (a *Agent) act(ctx context.Context, runID string, s *State, repo core.Repo, call core.ToolCall) core.ToolResult {
	stepCtx, cancel := a.stepContext(ctx)
	defer cancel()

	res := a.reg.Execute(stepCtx, call, tool.ExecutionContext{
		AgentType: a.variant.Type,
		RunID:     runID,
		Repo:      repo,
		Iteration: s.Iteration,
		Timeout:   a.opts.PerIterationTimeout,
		Policy:    a.variant.Tools,
		CacheTTL:  a.opts.CacheTTL,
	})

	a.opts.Logger.Info("agent.tool.executed",
		"agent", a.variant.Type,
		"run_id", runID,
		"iteration", s.Iteration,
		"tool", call.Name,
		"success", res.Success,
		"cache_hit", res.CacheHit,
		"duration_ms", res.Duration.Milliseconds(),
	)

	return res
}

func (a *Agent) stepContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.opts.PerIterationTimeout > 0 {
		return context.WithTimeout(ctx, a.opts.PerIterationTimeout)
	}
	return context.WithCancel(ctx)
}

func (a *Agent) finish(runID string, s *State, budget *core.Budget, term core.Termination, err error, fallback bool) core.AgentResult {
	s.Phase = PhaseTerminated

	findings := s.Findings()

	// Without findings, a successful tool step or a gateway answer there is
	// nothing to report.
	if len(findings) == 0 && !s.Answered && !s.succeeded() {
		s.Summary = ""
		if term == core.TerminationCompleted {
			term, err = core.TerminationFailed, core.ErrNoEvidence
		}
	} else if s.Summary == "" && term != core.TerminationFailed {
		s.Summary = Summarize(s)
	}

	res := core.AgentResult{
		RunID:       runID,
		Goal:        s.Goal,
		Findings:    findings,
		Summary:     s.Summary,
		Confidence:  a.opts.Confidence(term, len(findings), fallback),
		Elapsed:     budget.Elapsed(),
		CacheHits:   s.cacheHits,
		Iterations:  budget.Iterations(),
		Termination: term,
		Err:         err,
	}

	a.opts.Logger.Info("agent.run.done",
		"agent", a.variant.Type,
		"run_id", runID,
		"termination", term,
		"iterations", res.Iterations,
		"findings", len(findings),
		"confidence", res.Confidence,
		"elapsed_ms", res.Elapsed.Milliseconds(),
	)

	return res
}

func contextTermination(err error) core.Termination {
	if errors.Is(err, context.DeadlineExceeded) {
		return core.TerminationTimeout
	}
	return core.TerminationCancelled
}

func contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", core.ErrTimeoutExceeded, err)
	}
	return err
}
