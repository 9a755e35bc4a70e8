// Package ratelimit caps how many model requests one pipeline run may spend.
package ratelimit

import (
	"sync"

	"osmon/internal/logger"
)

// Budget is a per-run allowance of model calls. Stages that run out fall
// back to their deterministic paths instead of erroring.
type Budget struct {
	mu   sync.Mutex
	used int
	max  int
}

// NewBudget returns a budget allowing max calls; max <= 0 means unlimited.
func NewBudget(max int) *Budget {
	return &Budget{max: max}
}

// Allow reserves one call and reports whether it fit the budget.
func (b *Budget) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.max > 0 && b.used >= b.max {
		logger.Warn("model call budget exhausted", "used", b.used, "max", b.max)
		return false
	}
	b.used++
	return true
}

// Used returns how many calls were reserved so far.
func (b *Budget) Used() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.used
}

// Remaining returns how many calls are left, or -1 when unlimited.
func (b *Budget) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.max <= 0 {
		return -1
	}
	left := b.max - b.used
	if left < 0 {
		left = 0
	}
	return left
}
