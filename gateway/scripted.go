package gateway

import (
	"context"
	"sync"
)

// Step is one scripted reply. Err takes precedence over Response.
type Step struct {
	Response Response
	Err      error
}

// Scripted replays steps in order, then repeats Fallback (or returns an
// empty final response). It records every request and is safe for concurrent use.
type Scripted struct {
	mu       sync.Mutex
	steps    []Step
	next     int
	Fallback *Step
	requests []Request
}

// NewScripted creates a gateway that replays steps.
func NewScripted(steps ...Step) *Scripted {
	return &Scripted{steps: steps}
}

// Complete returns the next scripted step.
func (s *Scripted) Complete(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, req)

	var step Step
	switch {
	case s.next < len(s.steps):
		step = s.steps[s.next]
		s.next++
	case s.Fallback != nil:
		step = *s.Fallback
	default:
		step = Step{Response: Response{Text: "", FinishReason: "stop"}}
	}

	if step.Err != nil {
		return Response{}, step.Err
	}

	return step.Response, nil
}

// Requests returns a copy of the recorded requests.
func (s *Scripted) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]Request(nil), s.requests...)
}

// Info describes the scripted gateway.
func (s *Scripted) Info() Info {
	return Info{Name: "scripted", Provider: "scripted", SupportsTools: true}
}
