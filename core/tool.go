package core

import (
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"
)

// ToolParam declares one argument of a tool.
type ToolParam struct {
	Name        string `json:"name"`
	Type        string `json:"type"` // string, integer, number, boolean, array, object
	Description string `json:"description"`
	Required    bool   `json:"required"`
	Default     any    `json:"default,omitempty"`
}

// ToolSchema describes a tool to the language model and to the validator.
// It is immutable once registered.
type ToolSchema struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Params      []ToolParam `json:"params"`
}

// JSONSchema renders the parameter list as a JSON Schema object.
func (s ToolSchema) JSONSchema() map[string]any {
	properties := make(map[string]any, len(s.Params))
	required := make([]string, 0, len(s.Params))

	for _, p := range s.Params {
		prop := map[string]any{
			"type":        p.Type,
			"description": p.Description,
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		properties[p.Name] = prop

		if p.Required {
			required = append(required, p.Name)
		}
	}

	schema := map[string]any{
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		schema["required"] = required
	}

	return schema
}

// ToolCall is a request to run a named tool with arguments.
type ToolCall struct {
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// String renders the call compactly for observations and logs.
func (c ToolCall) String() string {
	args, err := json.Marshal(c.Arguments)
	if err != nil {
		return fmt.Sprintf("%s(?)", c.Name)
	}
	return fmt.Sprintf("%s(%s)", c.Name, args)
}

// ToolResult is the outcome of one dispatched ToolCall. Never mutated after creation.
type ToolResult struct {
	Tool     string        `json:"tool"`
	Success  bool          `json:"success"`
	Payload  any           `json:"payload,omitempty"`
	Findings []Finding     `json:"findings,omitempty"`
	Err      error         `json:"-"`
	CacheHit bool          `json:"cache_hit"`
	CacheKey string        `json:"cache_key,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Summary renders the result as observation text capped at limit bytes.
func (r ToolResult) Summary(limit int) string {
	var text string
	switch {
	case !r.Success && r.Err != nil:
		text = "error: " + r.Err.Error()
	case !r.Success:
		text = "error: unknown failure"
	default:
		if s, ok := r.Payload.(string); ok {
			text = s
		} else if b, err := json.Marshal(r.Payload); err == nil {
			text = string(b)
		} else {
			text = fmt.Sprintf("%v", r.Payload)
		}
	}

	if limit > 0 && len(text) > limit {
		text = cutUTF8(text, limit) + "...[truncated]"
	}

	return text
}

// cutUTF8 returns the longest prefix of s within n bytes that does not split a rune.
func cutUTF8(s string, n int) string {
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
