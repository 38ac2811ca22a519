package agent

import "github.com/hupe1980/sleuth/core"

// ConfidenceFunc scores a finished run.
type ConfidenceFunc func(term core.Termination, findings int, fallback bool) float64

// Confidence caps per termination reason.
const (
	completedBase   = 0.9
	fallbackCap     = 0.6
	budgetCap       = 0.5
	cancelledCap    = 0.3
	errorStreakCap  = 0.2
	evidenceFloor   = 0.5
	evidencePerItem = 0.1
)

// Confidence is the default ConfidenceFunc. Evidence scales a completed run
// from 0.45 (nothing found) to 0.9 (five or more findings); other
// terminations are capped.
func Confidence(term core.Termination, findings int, fallback bool) float64 {
	evidence := min(1.0, evidenceFloor+evidencePerItem*float64(findings))
	score := completedBase * evidence

	switch term {
	case core.TerminationCompleted:
		if fallback {
			score = min(score, fallbackCap)
		}
	case core.TerminationIterationLimit, core.TerminationTimeout:
		score = min(score, budgetCap)
	case core.TerminationCancelled:
		score = min(score, cancelledCap)
	case core.TerminationErrorStreak:
		score = min(score, errorStreakCap)
	default:
		score = 0
	}

	return score
}
