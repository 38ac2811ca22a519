package core

import (
	"fmt"
	"time"
)

// Budget enforces the iteration and time limits of one agent run.
// A Budget is owned by a single agent loop and is not safe for concurrent use.
type Budget struct {
	maxIterations int
	perIteration  time.Duration
	total         time.Duration
	start         time.Time
	iterations    int
	now           func() time.Time
}

// NewBudget creates a budget that starts counting immediately.
// A zero maxIterations, perIteration or total disables that limit.
func NewBudget(maxIterations int, perIteration, total time.Duration, now func() time.Time) *Budget {
	if now == nil {
		now = time.Now
	}
	return &Budget{
		maxIterations: maxIterations,
		perIteration:  perIteration,
		total:         total,
		start:         now(),
		now:           now,
	}
}

// Tick records one completed iteration.
func (b *Budget) Tick() { b.iterations++ }

// Iterations returns the number of completed iterations.
func (b *Budget) Iterations() int { return b.iterations }

// Elapsed returns the time spent since the budget was created.
func (b *Budget) Elapsed() time.Duration { return b.now().Sub(b.start) }

// Remaining returns how many iterations are left, or -1 when unlimited.
func (b *Budget) Remaining() int {
	if b.maxIterations <= 0 {
		return -1 // unlimited
	}
	if r := b.maxIterations - b.iterations; r > 0 {
		return r
	}
	return 0
}

// PerIteration returns the timeout applied to a single reasoning or acting step.
func (b *Budget) PerIteration() time.Duration { return b.perIteration }

// Exhausted reports whether another iteration may start. It returns the
// termination reason and an error wrapping ErrTimeoutExceeded when not.
func (b *Budget) Exhausted() (Termination, error) {
	if b.maxIterations > 0 && b.iterations >= b.maxIterations {
		return TerminationIterationLimit, fmt.Errorf("%w: reached max iterations %d", ErrTimeoutExceeded, b.maxIterations)
	}

	if b.total <= 0 {
		return "", nil
	}

	elapsed := b.Elapsed()
	if elapsed >= b.total {
		return TerminationTimeout, fmt.Errorf("%w: total budget %s spent after %s", ErrTimeoutExceeded, b.total, elapsed.Round(time.Millisecond))
	}

	if b.perIteration > 0 && b.total-elapsed < b.perIteration {
		return TerminationTimeout, fmt.Errorf("%w: %s left, one iteration needs %s", ErrTimeoutExceeded, (b.total - elapsed).Round(time.Millisecond), b.perIteration)
	}

	return "", nil
}
