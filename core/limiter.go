package core

import (
	"fmt"
	"sync"
)

// StepLimiter bounds the number of chained model replies that may follow one
// user utterance (reply, tool results, follow-up reply, ...).
type StepLimiter struct {
	max   int
	count int
	mu    sync.Mutex
}

// NewStepLimiter creates a new limiter. If max == 0, unlimited steps are allowed.
func NewStepLimiter(max int) *StepLimiter {
	return &StepLimiter{max: max}
}

// Increment increases the step counter and returns an error if the limit is exceeded.
func (sl *StepLimiter) Increment() error {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	sl.count++
	if sl.max > 0 && sl.count > sl.max {
		return fmt.Errorf("exceeded max steps per turn: %d", sl.max)
	}

	return nil
}

// Reset starts a new turn.
func (sl *StepLimiter) Reset() {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	sl.count = 0
}

// Count returns the steps taken in the current turn.
func (sl *StepLimiter) Count() int {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	return sl.count
}

// Remaining returns how many steps are left before hitting the limit.
func (sl *StepLimiter) Remaining() int {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if sl.max == 0 {
		return -1 // unlimited
	}

	return sl.max - sl.count
}
