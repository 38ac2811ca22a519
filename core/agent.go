package core

import (
	"strings"
	"time"
)

// AgentType tags the specialization of an agent variant.
type AgentType string

const (
	// AgentTypeCode investigates source files.
	AgentTypeCode AgentType = "code"
	// AgentTypeDocs investigates documentation and design notes.
	AgentTypeDocs AgentType = "docs"
	// AgentTypeWeb consults an external search provider.
	AgentTypeWeb AgentType = "web"
)

// Goal is the immutable objective of one agent invocation.
type Goal struct {
	Objective string    `json:"objective"`
	Type      AgentType `json:"type"`
}

// NewGoal creates a Goal with a trimmed objective.
func NewGoal(objective string, agentType AgentType) Goal {
	return Goal{Objective: strings.TrimSpace(objective), Type: agentType}
}

// Repo is the read-only repository handle shared by all agents of a run.
type Repo struct {
	// Root is the absolute path of the repository on disk.
	Root string `json:"root"`
	// Name is a display name; defaults to the base name of Root.
	Name string `json:"name,omitempty"`
}

// Termination describes why an agent loop stopped.
type Termination string

const (
	TerminationCompleted      Termination = "completed"
	TerminationIterationLimit Termination = "iteration_limit"
	TerminationTimeout        Termination = "timeout"
	TerminationErrorStreak    Termination = "error_streak"
	TerminationCancelled      Termination = "cancelled"
	TerminationFailed         Termination = "failed"
)

// Partial reports whether the loop ended before the goal was satisfied.
func (t Termination) Partial() bool { return t != TerminationCompleted }

// Finding is one discovered artifact plus the metadata describing it.
type Finding struct {
	// Artifact identifies the discovery (file path, path:line, URL, ...).
	Artifact string `json:"artifact"`
	// Kind categorizes the artifact (file, match, read, web, note).
	Kind      string    `json:"kind"`
	Detail    string    `json:"detail,omitempty"`
	Agent     AgentType `json:"agent,omitempty"`
	Iteration int       `json:"iteration"`
}

// AgentResult is produced exactly once per agent run and never mutated afterwards.
type AgentResult struct {
	RunID       string        `json:"run_id"`
	Goal        Goal          `json:"goal"`
	Findings    []Finding     `json:"findings"`
	Summary     string        `json:"summary,omitempty"`
	Confidence  float64       `json:"confidence"`
	Elapsed     time.Duration `json:"elapsed"`
	CacheHits   []string      `json:"cache_hits,omitempty"`
	Iterations  int           `json:"iterations"`
	Termination Termination   `json:"termination"`
	// Err holds the reason for a partial or failed run, if any.
	Err error `json:"-"`
}

// Failed reports whether the run produced nothing usable.
func (r AgentResult) Failed() bool {
	if r.Termination == TerminationFailed {
		return true
	}
	return len(r.Findings) == 0 && strings.TrimSpace(r.Summary) == ""
}
