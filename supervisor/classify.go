package supervisor

import (
	"context"
	"strings"

	"golang.org/x/text/cases"

	"github.com/hupe1980/sleuth/core"
	"github.com/hupe1980/sleuth/gateway"
	"github.com/hupe1980/sleuth/logging"
)

// Classifier maps a question to the shape of answer it needs.
type Classifier interface {
	Classify(ctx context.Context, question string) core.FormatTag
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(ctx context.Context, question string) core.FormatTag

// Classify calls f.
func (f ClassifierFunc) Classify(ctx context.Context, question string) core.FormatTag {
	return f(ctx, question)
}

// Markers match at the start of a word, so "flow" also matches "flows".
var (
	comparisonMarkers = []string{
		"vs ", "vs. ", "versus", "compar", "difference between", "differences between",
		"better than", "pros and cons", "trade-off", "tradeoff",
	}
	journeyMarkers = []string{
		"how does", "how do", "what happens", "flow", "lifecycle", "life cycle",
		"step by step", "steps", "trace", "walk me through", "sequence", "pipeline",
		"end to end", "end-to-end", "journey",
	}
)

// HeuristicClassifier classifies by keyword rules. Comparison markers win over
// journey markers; everything else is an explanation.
type HeuristicClassifier struct{}

// Classify implements Classifier.
func (HeuristicClassifier) Classify(_ context.Context, question string) core.FormatTag {
	return DetectFormat(question)
}

var fold = cases.Fold()

// DetectFormat applies the keyword rules of HeuristicClassifier.
func DetectFormat(question string) core.FormatTag {
	q := strings.NewReplacer("?", " ", "!", " ", ",", " ", ";", " ").Replace(fold.String(question))
	q = " " + strings.Join(strings.Fields(q), " ") + " "

	if containsWord(q, comparisonMarkers) {
		return core.FormatComparison
	}
	if containsWord(q, journeyMarkers) {
		return core.FormatJourney
	}

	return core.FormatExplanation
}

func containsWord(q string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(q, " "+m) {
			return true
		}
	}
	return false
}

const classifyInstructions = `Classify the user's question about a codebase. Reply with exactly one word:
journey (how something flows or happens step by step), comparison (differences between alternatives)
or explanation (what something is or why it exists).`

// GatewayClassifier asks the language model and falls back to Fallback when
// the model fails or answers with an unknown tag.
type GatewayClassifier struct {
	Gateway  gateway.Gateway
	Fallback Classifier
	Logger   logging.Logger
}

// Classify implements Classifier.
func (c GatewayClassifier) Classify(ctx context.Context, question string) core.FormatTag {
	fallback := c.Fallback
	if fallback == nil {
		fallback = HeuristicClassifier{}
	}
	logger := logging.OrNoOp(c.Logger)

	if c.Gateway == nil {
		return fallback.Classify(ctx, question)
	}

	resp, err := c.Gateway.Complete(ctx, gateway.Request{Instructions: classifyInstructions, Context: question})
	if err != nil {
		logger.Warn("supervisor.classify.gateway_error", "error", err)
		return fallback.Classify(ctx, question)
	}

	tag := core.FormatTag(strings.Trim(strings.ToLower(strings.TrimSpace(resp.Text)), ".\"'`"))
	if !tag.Valid() {
		logger.Debug("supervisor.classify.unknown_tag", "text", resp.Text)
		return fallback.Classify(ctx, question)
	}

	return tag
}

// SelectAgents maps a format to agent variants. Web research only joins
// comparisons, and only when a search provider is configured.
func SelectAgents(tag core.FormatTag, webAvailable bool) []core.AgentType {
	switch tag {
	case core.FormatJourney:
		return []core.AgentType{core.AgentTypeCode, core.AgentTypeDocs}
	case core.FormatComparison:
		if webAvailable {
			return []core.AgentType{core.AgentTypeCode, core.AgentTypeDocs, core.AgentTypeWeb}
		}
		return []core.AgentType{core.AgentTypeCode, core.AgentTypeDocs}
	default:
		return []core.AgentType{core.AgentTypeCode}
	}
}
