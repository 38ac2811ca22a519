package toolset

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/sleuth/core"
	"github.com/hupe1980/sleuth/gateway"
	"github.com/hupe1980/sleuth/tool"
)

const analyzeInstructions = `You are a focused code analyst. Answer the question in a few sentences using only the material provided. Say so when the material is insufficient.`

// AnalyzeArgs are the arguments of analyze.
type AnalyzeArgs struct {
	Question string `json:"question" description:"Focused question to answer"`
	Path     string `json:"path,omitempty" description:"Optional repository file used as material"`
}

func newAnalyze(gw gateway.Gateway, fs *fileTools) *tool.Tool {
	return tool.New(Analyze,
		"Ask a focused sub-question about one file or about the evidence gathered so far.",
		func(ctx context.Context, in AnalyzeArgs) (any, error) {
			var material strings.Builder
			fmt.Fprintf(&material, "Question: %s\n", in.Question)

			var findings []core.Finding

			if in.Path != "" {
				out, err := fs.read(ctx, ReadArgs{Path: in.Path, StartLine: 1, MaxLines: fs.opts.MaxReadLines})
				if err != nil {
					return nil, err
				}
				read := out.(tool.Output)
				payload := read.Payload.(map[string]any)
				fmt.Fprintf(&material, "\nFile %s:\n%s\n", payload["path"], payload["content"])
				findings = read.Findings
			}

			// Tools are withheld so the model answers directly.
			resp, err := gw.Complete(ctx, gateway.Request{
				Instructions: analyzeInstructions,
				Context:      material.String(),
			})
			if err != nil {
				return nil, fmt.Errorf("analyze: %w", err)
			}
			if resp.ToolCall != nil || strings.TrimSpace(resp.Text) == "" {
				return nil, fmt.Errorf("analyze: no answer")
			}

			return tool.Output{
				Payload:  map[string]any{"answer": strings.TrimSpace(resp.Text)},
				Findings: findings,
			}, nil
		})
}
