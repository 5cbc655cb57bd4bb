package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jzx17/drainpool/pkg/queue"
	"github.com/jzx17/drainpool/pkg/types"
)

// PoolState defines the lifecycle state of a Pool
type PoolState int32

const (
	// PoolStateConstructed represents a pool whose workers have not been started
	PoolStateConstructed PoolState = iota
	// PoolStateStarted represents a pool whose workers are draining the queue
	PoolStateStarted
	// PoolStateAllJoined represents a pool whose workers have all been joined
	PoolStateAllJoined
	// PoolStateCollected represents a pool whose results have been collected
	PoolStateCollected
)

// String returns the string representation of PoolState
func (ps PoolState) String() string {
	switch ps {
	case PoolStateConstructed:
		return "Constructed"
	case PoolStateStarted:
		return "Started"
	case PoolStateAllJoined:
		return "AllJoined"
	case PoolStateCollected:
		return "Collected"
	default:
		return "Unknown"
	}
}

// PoolConfig defines configuration for a pool
type PoolConfig struct {
	// Workers is the number of workers, fixed for the life of the pool
	Workers int

	// MaxRecordedFailures caps the failures kept per worker, 0 keeps all
	MaxRecordedFailures int

	// Clock for time operations (optional, defaults to real clock)
	Clock types.Clock

	// ErrorHandler observes unit failures on the failing worker (optional)
	ErrorHandler types.ErrorHandler

	// Logger is the structured logger (optional, defaults to slog.Default())
	Logger *slog.Logger

	// MetricsRegisterer enables Prometheus metrics when set
	MetricsRegisterer prometheus.Registerer

	// MetricsNamespace prefixes every metric name
	MetricsNamespace string
}

// DefaultPoolConfig returns default configuration with one worker per CPU
func DefaultPoolConfig() *PoolConfig {
	return &PoolConfig{
		Workers:          runtime.NumCPU(),
		Clock:            types.NewRealClock(),
		Logger:           slog.Default(),
		MetricsNamespace: "drainpool",
	}
}

// Validate checks the configuration
func (c *PoolConfig) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("worker count must be positive, got %d", c.Workers)
	}
	if c.MaxRecordedFailures < 0 {
		return fmt.Errorf("max recorded failures must not be negative, got %d", c.MaxRecordedFailures)
	}
	return nil
}

// Pool owns a fixed set of workers draining one shared queue. Its lifecycle
// runs one way: Constructed, Started, AllJoined, Collected.
type Pool[S any] struct {
	config  *PoolConfig
	queue   *queue.WorkQueue[types.WorkUnit[S]]
	workers []*Worker[S]
	runID   string
	logger  *slog.Logger
	metrics *Metrics

	state   int32 // atomic PoolState
	results []Result[S]

	// serializes lifecycle transitions
	mu sync.Mutex
}

// NewPool creates a pool of config.Workers workers bound to q. Each worker
// gets the state returned by factory for its index. Workers are not started.
func NewPool[S any](config *PoolConfig, factory types.StateFactory[S], q *queue.WorkQueue[types.WorkUnit[S]]) (*Pool[S], error) {
	if config == nil {
		config = DefaultPoolConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if factory == nil {
		return nil, fmt.Errorf("state factory cannot be nil")
	}
	if q == nil {
		return nil, fmt.Errorf("work queue cannot be nil")
	}

	clock := config.Clock
	if clock == nil {
		clock = types.NewRealClock()
	}

	runID := uuid.NewString()
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("run_id", runID)

	pool := &Pool[S]{
		config:  config,
		queue:   q,
		workers: make([]*Worker[S], config.Workers),
		runID:   runID,
		logger:  logger,
	}

	if config.MetricsRegisterer != nil {
		metrics := newMetrics(config.MetricsNamespace, func() float64 {
			return float64(q.Len())
		})
		if err := metrics.register(config.MetricsRegisterer); err != nil {
			return nil, err
		}
		pool.metrics = metrics
	}

	for i := range pool.workers {
		w := NewWorkerWithClock(i, q, factory(i), clock)
		w.SetLogger(config.Logger, "run_id", runID)
		w.SetMaxRecordedFailures(config.MaxRecordedFailures)
		w.SetErrorHandler(pool.errorHandler(config.ErrorHandler))
		if pool.metrics != nil {
			w.SetCompletionCallback(pool.metrics.observeUnit)
		}
		pool.workers[i] = w
	}

	return pool, nil
}

// errorHandler tags failures with the run ID before handing them on
func (p *Pool[S]) errorHandler(next types.ErrorHandler) types.ErrorHandler {
	return func(err error) error {
		if workErr, ok := types.AsWorkError(err); ok {
			workErr.WithContext("run_id", p.runID)
		}
		if next != nil {
			return next(err)
		}
		return nil
	}
}

// StartAll starts every worker
func (p *Pool[S]) StartAll(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.State() != PoolStateConstructed {
		return fmt.Errorf("pool: %w", types.ErrAlreadyStarted)
	}

	for _, w := range p.workers {
		if err := w.Start(ctx); err != nil {
			return err
		}
		if p.metrics != nil {
			p.metrics.activeWorkers.Inc()
		}
	}

	atomic.StoreInt32(&p.state, int32(PoolStateStarted))
	p.logger.Info("pool started", "workers", len(p.workers))
	return nil
}

// JoinAll joins every worker in index order. It returns once all of them have
// drained the queue, which happens only after the queue has been closed.
func (p *Pool[S]) JoinAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.State() {
	case PoolStateConstructed:
		return fmt.Errorf("pool: %w", types.ErrNotStarted)
	case PoolStateAllJoined, PoolStateCollected:
		return nil
	}

	results := make([]Result[S], len(p.workers))
	var processed, failed int64
	for i, w := range p.workers {
		result, err := w.Join()
		if err != nil {
			return err
		}
		if p.metrics != nil {
			p.metrics.activeWorkers.Dec()
		}
		results[i] = *result
		processed += result.Processed
		failed += result.Failed
	}

	if p.metrics != nil {
		p.metrics.releaseQueueDepth()
	}

	p.results = results
	atomic.StoreInt32(&p.state, int32(PoolStateAllJoined))
	p.logger.Info("pool joined", "processed", processed, "failed", failed)
	return nil
}

// Collect returns each worker's Result in worker-index order. It fails with
// types.ErrNotJoined until JoinAll has returned.
func (p *Pool[S]) Collect() ([]Result[S], error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.State() {
	case PoolStateConstructed, PoolStateStarted:
		return nil, fmt.Errorf("pool: %w", types.ErrNotJoined)
	}

	atomic.StoreInt32(&p.state, int32(PoolStateCollected))

	results := make([]Result[S], len(p.results))
	copy(results, p.results)
	return results, nil
}

// Run starts the pool, adds units, closes the queue, joins every worker and
// collects the results. The queue must not be shared with other producers.
func (p *Pool[S]) Run(ctx context.Context, units []types.WorkUnit[S]) ([]Result[S], error) {
	if err := p.StartAll(ctx); err != nil {
		return nil, err
	}

	var addErr error
	for _, unit := range units {
		if err := p.queue.Add(unit); err != nil {
			addErr = fmt.Errorf("failed to add unit: %w", err)
			break
		}
	}
	p.queue.Close()

	if err := p.JoinAll(); err != nil {
		return nil, errors.Join(addErr, err)
	}
	results, err := p.Collect()
	if err != nil {
		return nil, errors.Join(addErr, err)
	}
	return results, addErr
}

// Size returns the number of workers
func (p *Pool[S]) Size() int {
	return len(p.workers)
}

// State returns the current pool state
func (p *Pool[S]) State() PoolState {
	return PoolState(atomic.LoadInt32(&p.state))
}

// Queue returns the shared work queue
func (p *Pool[S]) Queue() *queue.WorkQueue[types.WorkUnit[S]] {
	return p.queue
}

// RunID returns the identifier attached to this pool's logs and failures
func (p *Pool[S]) RunID() string {
	return p.runID
}

// PoolStats defines live pool statistics
type PoolStats struct {
	// PoolSize is the number of workers
	PoolSize int

	// RunningWorkers is the number of workers still draining
	RunningWorkers int

	// TotalProcessed is the number of units completed without error
	TotalProcessed int64

	// TotalFailed is the number of units that failed
	TotalFailed int64

	// Queue is a snapshot of the queue counters
	Queue queue.Stats
}

// Stats gets live pool statistics. It is safe to call at any time and never
// touches worker state.
func (p *Pool[S]) Stats() PoolStats {
	stats := PoolStats{
		PoolSize: len(p.workers),
		Queue:    p.queue.Stats(),
	}
	for _, w := range p.workers {
		ws := w.Stats()
		if ws.IsRunning() {
			stats.RunningWorkers++
		}
		stats.TotalProcessed += ws.TotalProcessed
		stats.TotalFailed += ws.TotalFailed
	}
	return stats
}

// GetWorkerStats gets statistics of all Workers
func (p *Pool[S]) GetWorkerStats() []WorkerStats {
	stats := make([]WorkerStats, len(p.workers))
	for i, w := range p.workers {
		stats[i] = w.Stats()
	}
	return stats
}

// WaitTimeout is JoinAll bounded by timeout. It returns types.ErrTimeout if
// some worker is still running when timeout elapses; the pool stays Started
// and JoinAll may be called again.
func (p *Pool[S]) WaitTimeout(timeout time.Duration) error {
	if p.State() == PoolStateConstructed {
		return fmt.Errorf("pool: %w", types.ErrNotStarted)
	}

	clock := p.config.Clock
	if clock == nil {
		clock = types.NewRealClock()
	}
	timer := clock.NewTimer(timeout)
	defer timer.Stop()

	for _, w := range p.workers {
		select {
		case <-w.Done():
		case <-timer.C():
			return types.ErrTimeout
		}
	}
	return p.JoinAll()
}
