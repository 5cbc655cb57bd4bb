// Package testutils provides shared helpers for drainpool tests
package testutils

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// DefaultTimeout bounds every blocking call made from a test
const DefaultTimeout = 5 * time.Second

// AccessProbe counts concurrent accesses per key. Tests use it to prove that
// no two goroutines ever touch the same worker state at the same time.
type AccessProbe struct {
	mu         sync.Mutex
	active     map[int]int
	violations int
	accesses   int
}

// NewAccessProbe creates an empty probe
func NewAccessProbe() *AccessProbe {
	return &AccessProbe{active: make(map[int]int)}
}

// Enter records the start of an access to key and returns the matching exit
func (p *AccessProbe) Enter(key int) func() {
	p.mu.Lock()
	p.active[key]++
	p.accesses++
	if p.active[key] > 1 {
		p.violations++
	}
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		p.active[key]--
		p.mu.Unlock()
	}
}

// Violations returns how many accesses overlapped another access to the same key
func (p *AccessProbe) Violations() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.violations
}

// Accesses returns the total number of recorded accesses
func (p *AccessProbe) Accesses() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.accesses
}

// RequireReturnsWithin fails the test if fn does not return within timeout
func RequireReturnsWithin(t testing.TB, timeout time.Duration, fn func()) {
	t.Helper()

	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		require.FailNow(t, "call did not return in time", "timeout %v", timeout)
	}
}

// RequireBlocked fails the test if fn returns within wait. The returned
// channel is closed once fn eventually returns.
func RequireBlocked(t testing.TB, wait time.Duration, fn func()) <-chan struct{} {
	t.Helper()

	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()

	select {
	case <-done:
		require.FailNow(t, "call returned while it was expected to block")
	case <-time.After(wait):
	}
	return done
}
