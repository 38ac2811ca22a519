package core

import "time"

// FormatTag classifies the shape of the question and thus the answer.
type FormatTag string

const (
	// FormatJourney answers process-flow questions ("what happens when ...").
	FormatJourney FormatTag = "journey"
	// FormatComparison answers comparison questions ("A vs B").
	FormatComparison FormatTag = "comparison"
	// FormatExplanation answers conceptual questions.
	FormatExplanation FormatTag = "explanation"
)

// Valid reports whether t is one of the known tags.
func (t FormatTag) Valid() bool {
	switch t {
	case FormatJourney, FormatComparison, FormatExplanation:
		return true
	}
	return false
}

// ConsolidatedResponse is the terminal artifact returned to the caller.
type ConsolidatedResponse struct {
	Narrative  string    `json:"narrative"`
	FormatTag  FormatTag `json:"format_tag"`
	Confidence float64   `json:"confidence"`
	ElapsedMs  int64     `json:"elapsed_ms"`
	// AgentsUsed is the sorted set of agent variants that contributed.
	AgentsUsed []string  `json:"agents_used"`
	Findings   []Finding `json:"findings,omitempty"`
	// Diagnostic explains degraded answers (e.g. every agent failed).
	Diagnostic string `json:"diagnostic,omitempty"`
}

// Config bounds one supervisor run.
type Config struct {
	MaxIterationsPerAgent int           `json:"max_iterations_per_agent"`
	PerIterationTimeout   time.Duration `json:"per_iteration_timeout"`
	TotalTimeout          time.Duration `json:"total_timeout"`
	CacheTTL              time.Duration `json:"cache_ttl"`
	CacheCapacity         int           `json:"cache_capacity"`
}

// DefaultConfig provides conservative defaults for interactive use.
func DefaultConfig() Config {
	return Config{
		MaxIterationsPerAgent: 8,
		PerIterationTimeout:   30 * time.Second,
		TotalTimeout:          3 * time.Minute,
		CacheTTL:              time.Hour,
		CacheCapacity:         512,
	}
}

// WithDefaults fills zero fields from DefaultConfig. A zero CacheTTL is kept:
// for a cache it means results are computed once per flight but never served
// again, for a single run it means the cache's own TTL applies.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()

	if c.MaxIterationsPerAgent <= 0 {
		c.MaxIterationsPerAgent = d.MaxIterationsPerAgent
	}
	if c.PerIterationTimeout <= 0 {
		c.PerIterationTimeout = d.PerIterationTimeout
	}
	if c.TotalTimeout <= 0 {
		c.TotalTimeout = d.TotalTimeout
	}
	if c.CacheTTL < 0 {
		c.CacheTTL = 0
	}
	if c.CacheCapacity <= 0 {
		c.CacheCapacity = d.CacheCapacity
	}
	return c
}
