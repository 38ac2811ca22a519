package core

import "errors"

// Error taxonomy. Concrete error types in other packages wrap these sentinels
// so callers can classify failures with errors.Is.
var (
	// ErrValidation marks tool arguments that do not satisfy the tool schema.
	ErrValidation = errors.New("validation error")
	// ErrToolExecution marks a fault raised by a tool handler.
	ErrToolExecution = errors.New("tool execution error")
	// ErrGatewayUnavailable marks an unreachable language-model provider.
	ErrGatewayUnavailable = errors.New("gateway unavailable")
	// ErrGatewayParse marks a malformed language-model completion.
	ErrGatewayParse = errors.New("gateway parse error")
	// ErrTimeoutExceeded marks an exhausted iteration or time budget.
	ErrTimeoutExceeded = errors.New("timeout exceeded")
	// ErrNoEvidence marks an agent run in which no tool succeeded and the
	// gateway gave no answer.
	ErrNoEvidence = errors.New("no evidence gathered")
	// ErrAllAgentsFailed marks a supervisor run in which no agent produced a result.
	ErrAllAgentsFailed = errors.New("all agents failed")
)
