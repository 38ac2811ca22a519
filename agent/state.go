package agent

import (
	"fmt"
	"strings"

	"github.com/hupe1980/sleuth/core"
	"github.com/hupe1980/sleuth/internal/util"
)

// Phase is the position of an agent in its loop.
type Phase string

// Loop phases.
const (
	PhaseReasoning  Phase = "reasoning"
	PhaseActing     Phase = "acting"
	PhaseObserving  Phase = "observing"
	PhaseTerminated Phase = "terminated"
)

// Step is one executed tool call with its outcome.
type Step struct {
	Iteration int
	Call      core.ToolCall
	Result    core.ToolResult
}

// State is the per-run working memory of an agent. It is owned by one loop
// and never shared.
type State struct {
	Goal         core.Goal
	Phase        Phase
	Iteration    int
	ErrorStreak  int
	Observations []string
	Steps        []Step
	Summary      string
	// GatewayDown is set once the gateway reported itself unreachable.
	GatewayDown bool
	// Answered is set when the gateway finished the run with its own summary.
	Answered bool

	findings  map[string]core.Finding
	order     []string
	cacheHits []string
}

func newState(goal core.Goal) *State {
	return &State{
		Goal:     goal,
		Phase:    PhaseReasoning,
		findings: map[string]core.Finding{},
	}
}

// observe records a step and its observation. Findings are deduplicated by artifact.
func (s *State) observe(call core.ToolCall, res core.ToolResult, agentType core.AgentType, limit int) {
	s.Steps = append(s.Steps, Step{Iteration: s.Iteration, Call: call, Result: res})
	s.note(fmt.Sprintf("[%d] %s -> %s", s.Iteration, call.String(), res.Summary(limit)))

	if res.CacheHit && res.CacheKey != "" {
		s.cacheHits = append(s.cacheHits, res.CacheKey)
	}

	for _, f := range res.Findings {
		s.addFinding(f, agentType)
	}
}

func (s *State) addFinding(f core.Finding, agentType core.AgentType) {
	if f.Artifact == "" {
		return
	}
	if _, seen := s.findings[f.Artifact]; seen {
		return
	}
	f.Agent = agentType
	f.Iteration = s.Iteration
	s.findings[f.Artifact] = f
	s.order = append(s.order, f.Artifact)
}

func (s *State) note(observation string) {
	s.Observations = append(s.Observations, observation)
}

// Findings returns the unique findings in discovery order.
func (s *State) Findings() []core.Finding {
	out := make([]core.Finding, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.findings[k])
	}
	return out
}

// Called reports whether a tool has been dispatched in this run.
func (s *State) Called(name string) bool {
	for _, st := range s.Steps {
		if st.Call.Name == name {
			return true
		}
	}
	return false
}

func (s *State) succeeded() bool {
	for _, st := range s.Steps {
		if st.Result.Success {
			return true
		}
	}
	return false
}

// LastSuccess returns the most recent successful step for a tool.
func (s *State) LastSuccess(name string) (Step, bool) {
	for i := len(s.Steps) - 1; i >= 0; i-- {
		if st := s.Steps[i]; st.Call.Name == name && st.Result.Success {
			return st, true
		}
	}
	return Step{}, false
}

// Prompt renders the goal and the most recent observations for the gateway.
func (s *State) Prompt(tail int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Goal: %s\n", s.Goal.Objective)
	fmt.Fprintf(&b, "Iteration: %d\n", s.Iteration)

	obs := s.Observations
	if tail > 0 && len(obs) > tail {
		fmt.Fprintf(&b, "(%d earlier observations omitted)\n", len(obs)-tail)
		obs = obs[len(obs)-tail:]
	}

	if len(obs) == 0 {
		b.WriteString("No observations yet.\n")
	} else {
		b.WriteString("Observations:\n")
		for _, o := range obs {
			b.WriteString(o)
			b.WriteString("\n")
		}
	}

	if findings := s.Findings(); len(findings) > 0 {
		b.WriteString("Evidence so far:\n")
		for _, f := range findings {
			fmt.Fprintf(&b, "- %s (%s) %s\n", f.Artifact, f.Kind, util.Truncate(f.Detail, 120))
		}
	}

	return b.String()
}
