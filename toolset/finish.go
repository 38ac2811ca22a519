package toolset

import "github.com/hupe1980/sleuth/core"

// FinishSchema is the pseudo-tool a model calls to end its investigation.
// It is offered to the model but never dispatched through the registry.
var FinishSchema = core.ToolSchema{
	Name:        Finish,
	Description: "Finish the investigation and report the answer.",
	Params: []core.ToolParam{
		{Name: "summary", Type: "string", Description: "Answer to the goal, citing the files that support it", Required: true},
	},
}

// FinishSummary extracts the summary from a finish call.
func FinishSummary(call core.ToolCall) string {
	s, _ := call.Arguments["summary"].(string)
	return s
}
