// Package tool implements the tool registry that agents dispatch ToolCalls
// through: schema validated arguments, deterministic fingerprints, the shared
// result cache and consistent error handling.
package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hupe1980/sleuth/core"
	"github.com/hupe1980/sleuth/internal/util"
)

// Error codes carried by ToolError.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
)

// Handler runs a tool with already validated arguments.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Output is the normalized shape of a handler result. Handlers may return an
// Output directly; any other value becomes the Payload.
type Output struct {
	Payload  any            `json:"payload"`
	Findings []core.Finding `json:"findings,omitempty"`
}

// Tool is a registered capability: schema plus handler.
type Tool struct {
	schema    core.ToolSchema
	handler   Handler
	cacheable bool
}

// ToolOptions configure a Tool.
type ToolOptions struct {
	// Cacheable marks results as safe to share through the result cache.
	// Tools with side effects or time dependent output should disable it.
	Cacheable bool
}

// NewFunc wraps an untyped handler.
func NewFunc(schema core.ToolSchema, handler Handler, optFns ...func(o *ToolOptions)) *Tool {
	opts := ToolOptions{Cacheable: true}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Tool{schema: schema, handler: handler, cacheable: opts.Cacheable}
}

// New wraps a typed function. The parameter list is derived from T's fields
// (see util.ParamsFromStruct) and validated arguments are decoded into T.
//
// Example:
//
//	type readArgs struct {
//	  Path string `json:"path" description:"File to read"`
//	}
//
//	readTool := tool.New("read_file", "Read a file", func(ctx context.Context, in readArgs) (any, error) {
//	  return os.ReadFile(in.Path)
//	})
func New[T any](
	name, description string,
	fn func(ctx context.Context, args T) (any, error),
	optFns ...func(o *ToolOptions),
) *Tool {
	var zero T

	schema := core.ToolSchema{
		Name:        name,
		Description: description,
		Params:      util.ParamsFromStruct(zero),
	}

	handler := func(ctx context.Context, args map[string]any) (any, error) {
		raw, err := json.Marshal(args)
		if err != nil {
			return nil, err
		}

		var in T
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, fmt.Errorf("decode arguments: %w", err)
		}

		return fn(ctx, in)
	}

	return NewFunc(schema, handler, optFns...)
}

// Name returns the unique tool name.
func (t *Tool) Name() string { return t.schema.Name }

// Schema returns the tool schema.
func (t *Tool) Schema() core.ToolSchema { return t.schema }

// Cacheable reports whether results may be cached.
func (t *Tool) Cacheable() bool { return t.cacheable }

// ToolError represents errors that occur during tool dispatch.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
	cause   error
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// Unwrap exposes the core sentinel for the error code and the underlying cause.
func (e *ToolError) Unwrap() []error {
	errs := make([]error, 0, 2)
	switch e.Code {
	case CodeValidation:
		errs = append(errs, core.ErrValidation)
	case CodeExecution:
		errs = append(errs, core.ErrToolExecution)
	}
	if e.cause != nil {
		errs = append(errs, e.cause)
	}
	return errs
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}

func validationError(tool, message string, details any) *ToolError {
	return &ToolError{Tool: tool, Message: message, Code: CodeValidation, Details: details}
}

func executionError(tool string, err error) *ToolError {
	var te *ToolError
	if errors.As(err, &te) {
		return te
	}
	return &ToolError{Tool: tool, Message: err.Error(), Code: CodeExecution, cause: err}
}

// IsValidation reports whether err is an argument validation failure.
func IsValidation(err error) bool { return errors.Is(err, core.ErrValidation) }
