package supervisor

import (
	"cmp"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/hupe1980/sleuth/core"
	"github.com/hupe1980/sleuth/internal/util"
)

// ConfidencePolicy combines agent results into one overall confidence in [0, 1].
// Implementations must not depend on the order of results.
type ConfidencePolicy func(results []core.AgentResult) float64

// WeightedConfidence weights each usable agent by its own confidence
// (Σc²/Σc) and scales the mean by the fraction of dispatched agents that
// completed.
func WeightedConfidence(results []core.AgentResult) float64 {
	if len(results) == 0 {
		return 0
	}

	var sum, sumSq float64
	completed := 0
	for _, r := range results {
		if r.Failed() {
			continue
		}
		c := clamp(r.Confidence)
		sum += c
		sumSq += c * c
		if r.Termination == core.TerminationCompleted {
			completed++
		}
	}
	if sum == 0 {
		return 0
	}

	return clamp(sumSq / sum * float64(completed) / float64(len(results)))
}

// MeanConfidence is the plain average over usable agents.
func MeanConfidence(results []core.AgentResult) float64 {
	var sum float64
	n := 0
	for _, r := range results {
		if r.Failed() {
			continue
		}
		sum += clamp(r.Confidence)
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// Consolidate merges agent results into a response. The result is the same
// for every permutation of results.
func Consolidate(tag core.FormatTag, results []core.AgentResult, policy ConfidencePolicy) core.ConsolidatedResponse {
	if policy == nil {
		policy = WeightedConfidence
	}

	sorted := slices.Clone(results)
	slices.SortStableFunc(sorted, func(a, b core.AgentResult) int {
		return cmp.Or(
			cmp.Compare(a.Goal.Type, b.Goal.Type),
			cmp.Compare(b.Confidence, a.Confidence),
			cmp.Compare(a.Summary, b.Summary),
		)
	})

	usable := make([]core.AgentResult, 0, len(sorted))
	for _, r := range sorted {
		if !r.Failed() {
			usable = append(usable, r)
		}
	}

	resp := core.ConsolidatedResponse{
		FormatTag:  tag,
		AgentsUsed: []string{},
		Findings:   mergeFindings(usable),
		Diagnostic: diagnostic(sorted),
	}

	if len(usable) == 0 {
		resp.Confidence = 0
		resp.Diagnostic = fmt.Sprintf("%v: %s", core.ErrAllAgentsFailed, resp.Diagnostic)
		resp.Narrative = "No agent produced a usable result."
		return resp
	}

	for _, r := range usable {
		if name := string(r.Goal.Type); !slices.Contains(resp.AgentsUsed, name) {
			resp.AgentsUsed = append(resp.AgentsUsed, name)
		}
	}
	slices.Sort(resp.AgentsUsed)

	resp.Confidence = clamp(policy(sorted))
	resp.Narrative = narrative(tag, usable, resp.Findings)

	return resp
}

// mergeFindings dedupes by artifact. On collisions the finding of the first
// result in sorted order wins, so the merge is order independent.
func mergeFindings(results []core.AgentResult) []core.Finding {
	seen := map[string]bool{}
	var out []core.Finding

	for _, r := range results {
		for _, f := range r.Findings {
			if f.Artifact == "" || seen[f.Artifact] {
				continue
			}
			seen[f.Artifact] = true
			if f.Agent == "" {
				f.Agent = r.Goal.Type
			}
			out = append(out, f)
		}
	}

	slices.SortFunc(out, func(a, b core.Finding) int {
		return cmp.Or(cmp.Compare(a.Artifact, b.Artifact), cmp.Compare(a.Kind, b.Kind))
	})

	return out
}

func diagnostic(results []core.AgentResult) string {
	var notes []string
	for _, r := range results {
		if !r.Termination.Partial() && r.Err == nil && !r.Failed() {
			continue
		}
		note := fmt.Sprintf("%s: %s", r.Goal.Type, r.Termination)
		if r.Failed() && r.Termination != core.TerminationFailed {
			note += " without evidence"
		}
		if r.Err != nil {
			note += fmt.Sprintf(" (%v)", r.Err)
		}
		notes = append(notes, note)
	}
	return strings.Join(notes, "; ")
}

var title = cases.Title(language.English)

const evidenceLimit = 12

var listMarker = regexp.MustCompile(`^\s*(?:[-*]|\d+[.)])\s+`)

func narrative(tag core.FormatTag, results []core.AgentResult, findings []core.Finding) string {
	var b strings.Builder

	switch tag {
	case core.FormatJourney:
		b.WriteString("How it flows:\n")
		step := 1
		for _, r := range results {
			for _, line := range summaryLines(r.Summary) {
				fmt.Fprintf(&b, "%d. %s\n", step, line)
				step++
			}
		}
	case core.FormatComparison:
		b.WriteString("Comparison:\n")
		for _, r := range results {
			fmt.Fprintf(&b, "\n%s perspective:\n%s\n", title.String(string(r.Goal.Type)), strings.TrimSpace(r.Summary))
		}
	default:
		for i, r := range results {
			if i > 0 {
				b.WriteString("\n")
			}
			b.WriteString(strings.TrimSpace(r.Summary))
			b.WriteString("\n")
		}
	}

	if len(findings) > 0 {
		b.WriteString("\nEvidence:\n")
		for i, f := range findings {
			if i == evidenceLimit {
				fmt.Fprintf(&b, "- ... and %d more\n", len(findings)-evidenceLimit)
				break
			}
			fmt.Fprintf(&b, "- %s [%s, %s]", f.Artifact, title.String(string(f.Agent)), f.Kind)
			if d := util.Truncate(strings.TrimSpace(f.Detail), 100); d != "" {
				fmt.Fprintf(&b, " %s", d)
			}
			b.WriteString("\n")
		}
	}

	return strings.TrimSpace(b.String())
}

func summaryLines(summary string) []string {
	var out []string
	for _, line := range strings.Split(summary, "\n") {
		line = strings.TrimSpace(listMarker.ReplaceAllString(line, ""))
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

func clamp(v float64) float64 {
	return max(0, min(1, v))
}
