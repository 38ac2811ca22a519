// Package openai provides a gateway.Gateway backed by the OpenAI Chat
// Completions API. Any OpenAI compatible endpoint (OpenRouter, local servers)
// works by setting BaseURL.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hupe1980/sleuth/core"
	"github.com/hupe1980/sleuth/gateway"
)

const provider = "openai"

// Options configure the OpenAI gateway.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
	APIKey              string
	BaseURL             string
	// MaxRetries is passed to the SDK client. Retries belong to the agent
	// loop, so it defaults to zero.
	MaxRetries int
}

// Gateway wraps the OpenAI Chat Completions API.
type Gateway struct {
	client *openai.Client
	opts   Options
}

func defaultOptions() Options {
	return Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.2,
		MaxCompletionTokens: 2048,
		MaxRetries:          0,
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

	client := openai.NewClient(clientOpts...)

	return &Gateway{client: &client, opts: opts}
}

// NewFromClient creates a gateway from an existing client.
func NewFromClient(client *openai.Client, optFns ...func(o *Options)) *Gateway {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Gateway{client: client, opts: opts}
}

// Complete asks the model for the next step.
func (g *Gateway) Complete(ctx context.Context, req gateway.Request) (gateway.Response, error) {
	resp, err := g.client.Chat.Completions.New(ctx, g.buildParams(req))
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return gateway.Response{}, err
		}
		return gateway.Response{}, &gateway.UnavailableError{Provider: provider, Err: err}
	}

	return parseCompletion(resp)
}

func (g *Gateway) buildParams(req gateway.Request) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.Instructions != "" {
		messages = append(messages, openai.SystemMessage(req.Instructions))
	}
	messages = append(messages, openai.UserMessage(req.Context))

	params := openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               g.opts.Model,
		Temperature:         openai.Float(g.opts.Temperature),
		MaxCompletionTokens: openai.Int(g.opts.MaxCompletionTokens),
	}
	if len(req.Tools) == 0 {
		return params
	}

	tools := make([]openai.ChatCompletionToolParam, len(req.Tools))
	for i, schema := range req.Tools {
		tools[i] = openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        schema.Name,
				Description: openai.String(schema.Description),
				Parameters:  schema.JSONSchema(),
			},
		}
	}
	params.Tools = tools

	return params
}

// parseCompletion turns the first choice into a Response. Only the first tool
// call is honored; agents take one action per iteration.
func parseCompletion(resp *openai.ChatCompletion) (gateway.Response, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return gateway.Response{}, &gateway.ParseError{Provider: provider, Reason: "no choices returned"}
	}

	ch0 := resp.Choices[0]
	out := gateway.Response{
		Text:         ch0.Message.Content,
		FinishReason: ch0.FinishReason,
		Usage: &gateway.TokenUsage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}

	if len(ch0.Message.ToolCalls) == 0 {
		if strings.TrimSpace(out.Text) == "" {
			return gateway.Response{}, &gateway.ParseError{Provider: provider, Reason: "empty completion"}
		}
		return out, nil
	}

	tc := ch0.Message.ToolCalls[0]

	args := map[string]any{}
	if raw := strings.TrimSpace(tc.Function.Arguments); raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return gateway.Response{}, &gateway.ParseError{
				Provider: provider,
				Reason:   "invalid tool arguments: " + err.Error(),
				Raw:      raw,
			}
		}
	}

	out.ToolCall = &core.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args}

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
