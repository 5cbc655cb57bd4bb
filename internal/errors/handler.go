// Package errors provides pool-wide failure handling for work units
package errors

import (
	"errors"
	"reflect"
	"sort"
	"sync"

	"github.com/jzx17/drainpool/pkg/types"
)

// timeoutError matches errors that report a timeout
type timeoutError interface {
	Timeout() bool
}

// errorTypeName classifies an error by its dynamic type, with timeouts folded
// into one bucket regardless of which package produced them
func errorTypeName(err error) string {
	if err == nil {
		return "<nil>"
	}
	if t, ok := err.(timeoutError); ok && t.Timeout() {
		return "timeout"
	}
	return reflect.TypeOf(err).String()
}

// CollectorConfig contains configuration for a Collector
type CollectorConfig struct {
	// MaxSamples caps how many failures are kept verbatim, 0 keeps none
	MaxSamples int

	// IgnoredErrors lists errors that are counted as ignored and otherwise
	// dropped, matched with errors.Is
	IgnoredErrors []error
}

// Summary is a snapshot of the failures seen by a Collector
type Summary struct {
	// Total is the number of failures that were not ignored
	Total int
	// Panics is how many of Total were panics
	Panics int
	// Ignored is the number of failures matching an ignored error
	Ignored int
	// ByType counts failures by the dynamic type of their cause
	ByType map[string]int
	// ByWorker counts failures by worker index
	ByWorker map[int]int
	// Samples holds the first failures seen, up to MaxSamples
	Samples []*types.WorkError
}

// Types returns the failure types in ByType, most frequent first
func (s Summary) Types() []string {
	names := make([]string, 0, len(s.ByType))
	for name := range s.ByType {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if s.ByType[names[i]] != s.ByType[names[j]] {
			return s.ByType[names[i]] > s.ByType[names[j]]
		}
		return names[i] < names[j]
	})
	return names
}

// Collector aggregates failures reported by every worker of a pool. Workers
// call Handle from their own goroutines, so it is safe for concurrent use.
type Collector struct {
	maxSamples int
	ignored    []error

	total    int
	panics   int
	skipped  int
	byType   map[string]int
	byWorker map[int]int
	samples  []*types.WorkError

	mu sync.Mutex
}

// NewCollector creates a new failure collector
func NewCollector(config *CollectorConfig) *Collector {
	c := &Collector{
		byType:   make(map[string]int),
		byWorker: make(map[int]int),
	}

	if config != nil {
		c.maxSamples = config.MaxSamples
		for _, err := range config.IgnoredErrors {
			if err != nil {
				c.ignored = append(c.ignored, err)
			}
		}
	}

	return c
}

// Handle records err. It has the types.ErrorHandler signature and returns nil
// for ignored failures and err otherwise.
func (c *Collector) Handle(err error) error {
	if err == nil {
		return nil
	}

	workErr, ok := types.AsWorkError(err)
	if !ok {
		workErr = types.NewWorkError(-1, "", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, target := range c.ignored {
		if errors.Is(workErr.Cause, target) {
			c.skipped++
			return nil
		}
	}

	c.total++
	if workErr.Panicked {
		c.panics++
	}
	c.byType[errorTypeName(rootCause(workErr.Cause))]++
	c.byWorker[workErr.WorkerID]++
	if len(c.samples) < c.maxSamples {
		c.samples = append(c.samples, workErr)
	}
	return err
}

// Summary returns a copy of the collected counters
func (c *Collector) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Summary{
		Total:    c.total,
		Panics:   c.panics,
		Ignored:  c.skipped,
		ByType:   make(map[string]int, len(c.byType)),
		ByWorker: make(map[int]int, len(c.byWorker)),
		Samples:  make([]*types.WorkError, len(c.samples)),
	}
	for k, v := range c.byType {
		s.ByType[k] = v
	}
	for k, v := range c.byWorker {
		s.ByWorker[k] = v
	}
	copy(s.Samples, c.samples)
	return s
}

// Reset clears all counters and samples
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.total, c.panics, c.skipped = 0, 0, 0
	c.byType = make(map[string]int)
	c.byWorker = make(map[int]int)
	c.samples = nil
}

// rootCause follows single-error Unwrap chains to the innermost error
func rootCause(err error) error {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}

// Chain returns a handler that passes each failure to every handler in order.
// The result joins the non-nil results of all handlers.
func Chain(handlers ...types.ErrorHandler) types.ErrorHandler {
	return func(err error) error {
		var errs []error
		for _, h := range handlers {
			if h == nil {
				continue
			}
			if herr := h(err); herr != nil {
				errs = append(errs, herr)
			}
		}
		return errors.Join(errs...)
	}
}
