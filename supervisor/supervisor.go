package supervisor

import (
	"context"
	"fmt"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"github.com/hupe1980/sleuth/agent"
	"github.com/hupe1980/sleuth/core"
	"github.com/hupe1980/sleuth/gateway"
	"github.com/hupe1980/sleuth/logging"
	"github.com/hupe1980/sleuth/tool"
	"github.com/hupe1980/sleuth/toolset"
)

// Options configure a Supervisor.
type Options struct {
	// Classifier decides the answer format. Defaults to HeuristicClassifier.
	Classifier Classifier
	// Confidence combines agent confidences. Defaults to WeightedConfidence.
	Confidence ConfidencePolicy
	// Grace is how long cancelled agents may take to report after the deadline.
	Grace time.Duration
	// AgentOptions are applied to every agent after the run budget.
	AgentOptions []func(o *agent.Options)
	Logger       logging.Logger
	Now          func() time.Time
}

// Supervisor dispatches agent variants and consolidates their results. It
// holds no per-run state and may serve concurrent runs.
type Supervisor struct {
	gw   gateway.Gateway
	reg  *tool.Registry
	opts Options

	mu    sync.RWMutex
	extra map[core.AgentType][]string
}

// New creates a Supervisor sharing one gateway and one registry (and thereby
// one cache) across all agents it runs.
func New(gw gateway.Gateway, reg *tool.Registry, optFns ...func(o *Options)) *Supervisor {
	opts := Options{
		Classifier: HeuristicClassifier{},
		Confidence: WeightedConfidence,
		Grace:      2 * time.Second,
		Logger:     logging.NoOpLogger{},
		Now:        time.Now,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	if opts.Classifier == nil {
		opts.Classifier = HeuristicClassifier{}
	}
	if opts.Confidence == nil {
		opts.Confidence = WeightedConfidence
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if gw == nil {
		gw = gateway.Unavailable{}
	}

	return &Supervisor{gw: gw, reg: reg, opts: opts, extra: map[core.AgentType][]string{}}
}

// AllowTools lets agents of type t call the named tools in addition to the
// tools of their variant.
func (s *Supervisor) AllowTools(t core.AgentType, names ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, n := range names {
		if !slices.Contains(s.extra[t], n) {
			s.extra[t] = append(s.extra[t], n)
		}
	}
}

// Run answers question about repo. It never fails: degraded runs are reported
// through the response's confidence and diagnostic. A positive cfg.CacheTTL
// applies to tool results computed during this run. cfg.CacheCapacity is
// fixed when the shared cache is built and is not consulted here.
func (s *Supervisor) Run(ctx context.Context, question string, repo core.Repo, cfg core.Config) core.ConsolidatedResponse {
	start := s.opts.Now()
	cfg = cfg.WithDefaults()
	logger := s.opts.Logger

	runCtx, cancel := context.WithTimeout(ctx, cfg.TotalTimeout)
	defer cancel()

	tag := s.opts.Classifier.Classify(runCtx, question)
	if !tag.Valid() {
		tag = DetectFormat(question)
	}
	types := SelectAgents(tag, s.reg.Has(toolset.WebSearch))

	logger.Info("supervisor.run.start", "format", tag, "agents", fmt.Sprint(types), "total_timeout", cfg.TotalTimeout)

	results := s.dispatch(runCtx, question, repo, cfg, types)

	resp := Consolidate(tag, results, s.opts.Confidence)
	resp.ElapsedMs = s.opts.Now().Sub(start).Milliseconds()

	logger.Info("supervisor.run.done",
		"format", resp.FormatTag,
		"agents_used", fmt.Sprint(resp.AgentsUsed),
		"findings", len(resp.Findings),
		"confidence", resp.Confidence,
		"elapsed_ms", resp.ElapsedMs,
	)

	return resp
}

// dispatch runs one goroutine per agent and gathers their results. Agents
// that do not report before the deadline plus grace get a timeout result.
func (s *Supervisor) dispatch(ctx context.Context, question string, repo core.Repo, cfg core.Config, types []core.AgentType) []core.AgentResult {
	logger := s.opts.Logger
	done := make(chan core.AgentResult, len(types))

	for _, t := range types {
		go func(t core.AgentType) {
			goal := core.NewGoal(question, t)
			defer func() {
				if p := recover(); p != nil {
					logger.Error("supervisor.agent.panic", "agent", t, "panic", fmt.Sprint(p), "stack", string(debug.Stack()))
					done <- core.AgentResult{Goal: goal, Termination: core.TerminationFailed, Err: fmt.Errorf("agent panicked: %v", p)}
				}
			}()

			a := agent.New(t, s.gw, s.reg, s.agentOptions(cfg, t)...)
			done <- a.Run(ctx, goal, repo)
		}(t)
	}

	got := make(map[core.AgentType]core.AgentResult, len(types))
	var grace <-chan time.Time

	for len(got) < len(types) {
		select {
		case res := <-done:
			got[res.Goal.Type] = res
			logger.Debug("supervisor.agent.done", "agent", res.Goal.Type, "termination", res.Termination, "confidence", res.Confidence)
		case <-ctx.Done():
			if grace == nil {
				logger.Warn("supervisor.deadline", "pending", len(types)-len(got), "error", ctx.Err())
				timer := time.NewTimer(s.opts.Grace)
				defer timer.Stop()
				grace = timer.C
			}
			// Keep draining results until the grace period ends.
			select {
			case res := <-done:
				got[res.Goal.Type] = res
			case <-grace:
				return s.collect(types, got, ctx.Err())
			}
		}
	}

	return s.collect(types, got, nil)
}

func (s *Supervisor) collect(types []core.AgentType, got map[core.AgentType]core.AgentResult, cause error) []core.AgentResult {
	out := make([]core.AgentResult, 0, len(types))
	for _, t := range types {
		res, ok := got[t]
		if !ok {
			s.opts.Logger.Warn("supervisor.agent.abandoned", "agent", t)
			res = core.AgentResult{
				Goal:        core.NewGoal("", t),
				Termination: core.TerminationTimeout,
				Err:         fmt.Errorf("%w: agent did not report before the deadline: %w", core.ErrTimeoutExceeded, cause),
			}
		}
		out = append(out, res)
	}
	return out
}

func (s *Supervisor) agentOptions(cfg core.Config, t core.AgentType) []func(o *agent.Options) {
	s.mu.RLock()
	extra := slices.Clone(s.extra[t])
	s.mu.RUnlock()

	fns := []func(o *agent.Options){
		func(o *agent.Options) {
			o.MaxIterations = cfg.MaxIterationsPerAgent
			o.PerIterationTimeout = cfg.PerIterationTimeout
			o.TotalTimeout = cfg.TotalTimeout
			o.CacheTTL = cfg.CacheTTL
			o.Logger = s.opts.Logger
			o.Now = s.opts.Now
			o.ExtraTools = extra
		},
	}
	return append(fns, s.opts.AgentOptions...)
}
