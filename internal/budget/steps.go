package budget

import (
	"strconv"
	"sync"
)

// StepBudget tracks the Planner/Writer step and character caps from spec
// §4.3/§4.4: max_planner_steps, max_steps_per_section, and a section's
// max_chars. A zero limit means unlimited for that dimension.
type StepBudget struct {
	mu       sync.Mutex
	maxSteps int
	maxChars int
	steps    int
	chars    int
}

// NewStepBudget constructs a StepBudget with the given caps.
func NewStepBudget(maxSteps, maxChars int) *StepBudget {
	return &StepBudget{maxSteps: maxSteps, maxChars: maxChars}
}

// Step records one agent step, returning ErrExceeded once the step ceiling
// is passed. The caller's loop is expected to force-terminate on this
// error, per the step-ceiling termination policy.
func (b *StepBudget) Step() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.steps++
	if b.maxSteps > 0 && b.steps > b.maxSteps {
		return ErrExceeded{Kind: "steps", Usage: strconv.Itoa(b.steps), Limit: strconv.Itoa(b.maxSteps)}
	}
	return nil
}

// AddChars records n characters written to a section draft, returning
// ErrExceeded once max_chars is passed.
func (b *StepBudget) AddChars(n int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chars += n
	if b.maxChars > 0 && b.chars > b.maxChars {
		return ErrExceeded{Kind: "chars", Usage: strconv.Itoa(b.chars), Limit: strconv.Itoa(b.maxChars)}
	}
	return nil
}

// Steps returns the number of steps recorded so far.
func (b *StepBudget) Steps() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.steps
}

// Chars returns the number of characters recorded so far.
func (b *StepBudget) Chars() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.chars
}
