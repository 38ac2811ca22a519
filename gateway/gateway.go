package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/sleuth/core"
)

// Request captures the normalized model input for one reasoning step.
type Request struct {
	Instructions string            `json:"instructions"`    // System prompt
	Context      string            `json:"context"`         // Goal and recent observations
	Tools        []core.ToolSchema `json:"tools,omitempty"` // Tools the model may call
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the model's decision. Exactly one of ToolCall or Text is meaningful:
// a non-nil ToolCall requests an action, otherwise Text is the final answer.
type Response struct {
	ToolCall     *core.ToolCall `json:"tool_call,omitempty"`
	Text         string         `json:"text,omitempty"`
	FinishReason string         `json:"finish_reason,omitempty"`
	Usage        *TokenUsage    `json:"usage,omitempty"`
}

// Final reports whether the response ends the investigation.
func (r Response) Final() bool { return r.ToolCall == nil }

// Info contains metadata about a gateway implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "scripted", ...
	SupportsTools bool   `json:"supports_tools"`
}

// Gateway is the minimal interface agents need to drive reasoning.
type Gateway interface {
	Complete(ctx context.Context, req Request) (Response, error)
	Info() Info
}

// Func adapts a function to the Gateway interface.
type Func func(ctx context.Context, req Request) (Response, error)

// Complete calls f.
func (f Func) Complete(ctx context.Context, req Request) (Response, error) { return f(ctx, req) }

// Info describes the adapter.
func (f Func) Info() Info { return Info{Name: "func", Provider: "func", SupportsTools: true} }

// UnavailableError reports a provider that could not be reached or refused the request.
type UnavailableError struct {
	Provider string
	Err      error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s gateway unavailable: %v", e.Provider, e.Err)
}

// Unwrap returns the sentinel and the cause.
func (e *UnavailableError) Unwrap() []error { return []error{core.ErrGatewayUnavailable, e.Err} }

// ParseError reports a completion that could not be turned into a Response.
type ParseError struct {
	Provider string
	Reason   string
	Raw      string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s gateway parse error: %s", e.Provider, e.Reason)
}

// Unwrap returns the sentinel.
func (e *ParseError) Unwrap() error { return core.ErrGatewayParse }

// IsUnavailable reports whether err means the provider is unreachable.
func IsUnavailable(err error) bool { return errors.Is(err, core.ErrGatewayUnavailable) }

// Unavailable is a Gateway that always fails. It stands in when no provider is configured.
type Unavailable struct {
	Reason string
}

// Complete always returns an UnavailableError.
func (u Unavailable) Complete(context.Context, Request) (Response, error) {
	reason := u.Reason
	if reason == "" {
		reason = "no provider configured"
	}
	return Response{}, &UnavailableError{Provider: "none", Err: errors.New(reason)}
}

// Info describes the placeholder.
func (u Unavailable) Info() Info { return Info{Name: "unavailable", Provider: "none"} }
