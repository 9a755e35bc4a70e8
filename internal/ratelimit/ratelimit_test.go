package ratelimit

import (
	"sync"
	"testing"
)

func TestBudgetAllow(t *testing.T) {
	b := NewBudget(2)
	if !b.Allow() || !b.Allow() {
		t.Fatal("first two calls should fit the budget")
	}
	if b.Allow() {
		t.Error("third call should be rejected")
	}
	if got := b.Used(); got != 2 {
		t.Errorf("Used() = %d, want 2", got)
	}
	if got := b.Remaining(); got != 0 {
		t.Errorf("Remaining() = %d, want 0", got)
	}
}

func TestBudgetUnlimited(t *testing.T) {
	b := NewBudget(0)
	for i := 0; i < 100; i++ {
		if !b.Allow() {
			t.Fatal("unlimited budget rejected a call")
		}
	}
	if got := b.Remaining(); got != -1 {
		t.Errorf("Remaining() = %d, want -1", got)
	}
}

func TestBudgetConcurrent(t *testing.T) {
	b := NewBudget(50)
	var wg sync.WaitGroup
	granted := make(chan bool, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			granted <- b.Allow()
		}()
	}
	wg.Wait()
	close(granted)

	var ok int
	for g := range granted {
		if g {
			ok++
		}
	}
	if ok != 50 {
		t.Errorf("granted %d calls, want exactly 50", ok)
	}
}
