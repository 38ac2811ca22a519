package agent

import (
	"github.com/hupe1980/sleuth/internal/util"
)

// Provider supplies dynamic instruction text at runtime.
// Implementations can derive instructions from the goal, the repository, etc.
type Provider interface {
	Instruction(data map[string]any) (string, error)
}

// Func is a functional adapter to allow ordinary functions to be used as Providers.
type Func func(data map[string]any) (string, error)

// Instruction implements Provider.
func (f Func) Instruction(data map[string]any) (string, error) { return f(data) }

// Instruction represents either a static template or a dynamic provider.
// Static text is rendered with text/template against the run data
// (goal, agent, repo, tools).
type Instruction struct {
	text     string
	provider Provider
}

// NewInstructionFromText creates an Instruction from a static template.
func NewInstructionFromText(text string) Instruction { return Instruction{text: text} }

// NewInstructionFromProvider creates an Instruction from a dynamic provider.
func NewInstructionFromProvider(p Provider) Instruction { return Instruction{provider: p} }

// NewInstructionFromFunc creates an Instruction from a function.
func NewInstructionFromFunc(f func(data map[string]any) (string, error)) Instruction {
	return Instruction{provider: Func(f)}
}

// IsZero reports whether neither text nor provider is set.
func (i Instruction) IsZero() bool { return i.text == "" && i.provider == nil }

// Resolve returns the instruction text, invoking the provider if needed.
func (i Instruction) Resolve(data map[string]any) (string, error) {
	if i.provider != nil {
		return i.provider.Instruction(data)
	}
	return util.RenderTemplate(i.text, data)
}
