// Package anthropic provides a gateway.Gateway backed by the Anthropic Messages API.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/hupe1980/sleuth/core"
	"github.com/hupe1980/sleuth/gateway"
)

const provider = "anthropic"

// Options configure the Anthropic gateway.
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int64
	APIKey      string
	BaseURL     string
	// MaxRetries is passed to the SDK client. Retries belong to the agent
	// loop, so it defaults to zero.
	MaxRetries int
}

// Gateway wraps the Anthropic Messages API.
type Gateway struct {
	client *anthropic.Client
	opts   Options
}

func defaultOptions() Options {
	return Options{
		Model:       "claude-sonnet-4-5",
		Temperature: 0.2,
		MaxTokens:   2048,
		MaxRetries:  0,
	}
}

// New creates a gateway with its own client.
func New(optFns ...func(o *Options)) *Gateway {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if key := strings.TrimSpace(opts.APIKey); key != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(key))
	}
	if base := strings.TrimRight(opts.BaseURL, "/"); base != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(base+"/"))
	}
	clientOpts = append(clientOpts, option.WithMaxRetries(max(0, opts.MaxRetries)))

	client := anthropic.NewClient(clientOpts...)

	return &Gateway{client: &client, opts: opts}
}

// NewFromClient creates a gateway from an existing client.
func NewFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Gateway {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Gateway{client: client, opts: opts}
}

// Complete asks the model for the next step.
func (g *Gateway) Complete(ctx context.Context, req gateway.Request) (gateway.Response, error) {
	resp, err := g.client.Messages.New(ctx, g.buildParams(req))
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return gateway.Response{}, err
		}
		return gateway.Response{}, &gateway.UnavailableError{Provider: provider, Err: err}
	}

	return parseMessage(resp)
}

func (g *Gateway) buildParams(req gateway.Request) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(g.opts.Model),
		MaxTokens:   g.opts.MaxTokens,
		Temperature: anthropic.Float(g.opts.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Context)),
		},
	}

	if req.Instructions != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.Instructions}}
	}

	if len(req.Tools) > 0 {
		tools := make([]anthropic.ToolUnionParam, 0, len(req.Tools))
		for _, schema := range req.Tools {
			js := schema.JSONSchema()

			toolParam := anthropic.ToolParam{
				Name:        schema.Name,
				Description: anthropic.String(schema.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: js["properties"],
				},
			}
			if required, ok := js["required"].([]string); ok {
				toolParam.InputSchema.Required = required
			}

			tools = append(tools, anthropic.ToolUnionParam{OfTool: &toolParam})
		}
		params.Tools = tools
	}

	return params
}

// parseMessage converts the content blocks into a Response. The first
// tool_use block wins; text blocks are concatenated.
func parseMessage(resp *anthropic.Message) (gateway.Response, error) {
	if resp == nil {
		return gateway.Response{}, &gateway.ParseError{Provider: provider, Reason: "nil message"}
	}

	out := gateway.Response{
		FinishReason: string(resp.StopReason),
		Usage: &gateway.TokenUsage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
	}

	var text strings.Builder

	for _, block := range resp.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(b.Text)
		case anthropic.ToolUseBlock:
			if out.ToolCall != nil {
				continue
			}

			args := map[string]any{}
			if raw := strings.TrimSpace(b.JSON.Input.Raw()); raw != "" && raw != "null" {
				if err := json.Unmarshal([]byte(raw), &args); err != nil {
					return gateway.Response{}, &gateway.ParseError{
						Provider: provider,
						Reason:   "invalid tool input: " + err.Error(),
						Raw:      raw,
					}
				}
			}

			out.ToolCall = &core.ToolCall{ID: b.ID, Name: b.Name, Arguments: args}
		}
	}

	out.Text = text.String()

	if out.ToolCall == nil && strings.TrimSpace(out.Text) == "" {
		return gateway.Response{}, &gateway.ParseError{Provider: provider, Reason: "empty completion"}
	}

	return out, nil
}

// Info returns metadata describing this gateway.
func (g *Gateway) Info() gateway.Info {
	return gateway.Info{
		Name:          g.opts.Model,
		Provider:      provider,
		SupportsTools: true,
	}
}
