package agent

import (
	"github.com/hupe1980/sleuth/core"
	"github.com/hupe1980/sleuth/tool"
	"github.com/hupe1980/sleuth/toolset"
)

// Variant specializes an agent: its instruction, the tools it may use and the
// file patterns its fallback policy starts from.
type Variant struct {
	Type        core.AgentType
	Instruction Instruction
	Tools       tool.Policy
	// ScanPattern is the glob the fallback policy scans first.
	ScanPattern string
	// SearchPattern restricts fallback searches.
	SearchPattern string
}

const baseInstruction = `Goal: {{.goal}}
Repository: {{default "(unnamed)" .repo}}

Work step by step. Call exactly one tool per turn. When the evidence answers the goal,
call finish with a summary that cites the supporting files. Available tools: {{join ", " .tools}}.`

// Variants holds the built-in variants by type.
var Variants = map[core.AgentType]Variant{
	core.AgentTypeCode: {
		Type: core.AgentTypeCode,
		Instruction: NewInstructionFromText(`You are a source code investigator. Locate the functions, types and call paths that answer the goal.
` + baseInstruction),
		Tools: tool.Policy{Allow: []string{
			toolset.ScanFiles, toolset.ReadFile, toolset.SearchCode, toolset.Analyze,
		}},
		ScanPattern:   "*",
		SearchPattern: "*",
	},
	core.AgentTypeDocs: {
		Type: core.AgentTypeDocs,
		Instruction: NewInstructionFromText(`You are a documentation investigator. Use READMEs, design notes and comments to explain intent and flow.
` + baseInstruction),
		Tools: tool.Policy{Allow: []string{
			toolset.ScanFiles, toolset.ReadFile, toolset.SearchCode, toolset.Analyze,
		}},
		ScanPattern:   "*.md",
		SearchPattern: "*.md",
	},
	core.AgentTypeWeb: {
		Type: core.AgentTypeWeb,
		Instruction: NewInstructionFromText(`You are an external research investigator. Use web search to find background that helps compare approaches.
` + baseInstruction),
		Tools: tool.Policy{Allow: []string{
			toolset.WebSearch, toolset.Analyze,
		}},
	},
}

// VariantFor returns the built-in variant for t, falling back to code.
func VariantFor(t core.AgentType) Variant {
	if v, ok := Variants[t]; ok {
		return v
	}
	v := Variants[core.AgentTypeCode]
	v.Type = t
	return v
}
