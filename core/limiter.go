package core

import (
	"fmt"
	"sync"
)

// CallLimiter enforces per-run budgets for model calls and tool executions.
// A zero maximum means unlimited. Counters survive suspension because they
// are restored from the RunRecord on resume.
type CallLimiter struct {
	maxModel int
	maxTool  int
	model    int
	tool     int
	mu       sync.Mutex
}

// NewCallLimiter creates a limiter seeded with the counts already spent.
func NewCallLimiter(maxModel, maxTool, spentModel, spentTool int) *CallLimiter {
	return &CallLimiter{maxModel: maxModel, maxTool: maxTool, model: spentModel, tool: spentTool}
}

// IncrementModel counts one model call and fails once the budget is exceeded.
func (l *CallLimiter) IncrementModel() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.model++
	if l.maxModel > 0 && l.model > l.maxModel {
		return fmt.Errorf("%w: %d", ErrModelCallLimit, l.maxModel)
	}

	return nil
}

// TryTool reserves one tool execution. It returns false when the budget is spent.
func (l *CallLimiter) TryTool() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.maxTool > 0 && l.tool >= l.maxTool {
		return false
	}
	l.tool++

	return true
}

// Counts returns the model and tool calls made so far.
func (l *CallLimiter) Counts() (model, tool int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.model, l.tool
}

// RemainingModel returns how many model calls are left, or -1 when unlimited.
func (l *CallLimiter) RemainingModel() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.maxModel == 0 {
		return -1
	}

	return l.maxModel - l.model
}
