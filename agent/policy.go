package agent

import (
	"fmt"
	"slices"
	"strings"

	"github.com/hupe1980/sleuth/core"
	"github.com/hupe1980/sleuth/toolset"
)

// Decision is the outcome of a reasoning step: a tool call, or the end of the run.
type Decision struct {
	Call    *core.ToolCall
	Finish  bool
	Summary string
	// Fallback marks decisions made without the gateway.
	Fallback bool
}

// Policy picks the next step without a language model. It is consulted when
// the gateway fails or proposes a tool the agent may not use.
type Policy interface {
	Next(s *State, v Variant, available []string) Decision
}

// HeuristicPolicy walks a fixed plan: scan, search for goal keywords (or search
// the web), read the best hit, finish. Steps whose tool is unavailable are skipped.
type HeuristicPolicy struct {
	MaxKeywords int
}

// Next implements Policy.
func (p HeuristicPolicy) Next(s *State, v Variant, available []string) Decision {
	has := func(name string) bool { return slices.Contains(available, name) }

	maxKeywords := p.MaxKeywords
	if maxKeywords <= 0 {
		maxKeywords = 5
	}
	keywords := Keywords(s.Goal.Objective, maxKeywords)

	if has(toolset.ScanFiles) && !s.Called(toolset.ScanFiles) {
		return callDecision(toolset.ScanFiles, map[string]any{
			"pattern": orDefault(v.ScanPattern, "*"),
			"limit":   100,
		})
	}

	if has(toolset.SearchCode) && !s.Called(toolset.SearchCode) && len(keywords) > 0 {
		return callDecision(toolset.SearchCode, map[string]any{
			"query":   KeywordPattern(keywords),
			"pattern": orDefault(v.SearchPattern, "*"),
		})
	}

	if has(toolset.WebSearch) && !s.Called(toolset.WebSearch) {
		return callDecision(toolset.WebSearch, map[string]any{"query": s.Goal.Objective})
	}

	if has(toolset.ReadFile) && !s.Called(toolset.ReadFile) {
		if path := topHit(s, keywords); path != "" {
			return callDecision(toolset.ReadFile, map[string]any{"path": path})
		}
	}

	return Decision{Finish: true, Summary: Summarize(s), Fallback: true}
}

func callDecision(name string, args map[string]any) Decision {
	return Decision{Call: &core.ToolCall{Name: name, Arguments: args}, Fallback: true}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// topHit picks the file to read: the first search match, else the first scanned
// file whose path mentions a keyword, else the first scanned file.
func topHit(s *State, keywords []string) string {
	if st, ok := s.LastSuccess(toolset.SearchCode); ok {
		if matches := listField(st.Result.Payload, "matches"); len(matches) > 0 {
			if m, ok := matches[0].(map[string]any); ok {
				if path, ok := m["path"].(string); ok {
					return path
				}
			}
		}
	}

	st, ok := s.LastSuccess(toolset.ScanFiles)
	if !ok {
		return ""
	}

	files := listField(st.Result.Payload, "files")
	for _, f := range files {
		path, _ := f.(string)
		lower := strings.ToLower(path)
		for _, k := range keywords {
			if strings.Contains(lower, k) {
				return path
			}
		}
	}
	if len(files) > 0 {
		path, _ := files[0].(string)
		return path
	}

	return ""
}

func listField(payload any, key string) []any {
	m, ok := payload.(map[string]any)
	if !ok {
		return nil
	}
	list, _ := m[key].([]any)
	return list
}

// Summarize renders the gathered evidence as a plain summary.
func Summarize(s *State) string {
	findings := s.Findings()
	if len(findings) == 0 {
		return fmt.Sprintf("No direct evidence found for %q after %d steps.", s.Goal.Objective, len(s.Steps))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Evidence for %q:", s.Goal.Objective)
	for _, f := range findings {
		fmt.Fprintf(&b, "\n- %s", f.Artifact)
		if f.Detail != "" {
			fmt.Fprintf(&b, ": %s", f.Detail)
		}
	}

	return b.String()
}
