package worker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jzx17/drainpool/pkg/queue"
	"github.com/jzx17/drainpool/pkg/types"
)

// WorkerStatus defines the lifecycle status of a Worker
type WorkerStatus int32

const (
	// WorkerStatusConstructed represents a worker that has not been started
	WorkerStatusConstructed WorkerStatus = iota
	// WorkerStatusRunning represents a worker draining its queue
	WorkerStatusRunning
	// WorkerStatusTerminated represents a worker whose queue is drained
	WorkerStatusTerminated
	// WorkerStatusJoined represents a terminated worker whose result was claimed
	WorkerStatusJoined
)

// String returns the string representation of WorkerStatus
func (ws WorkerStatus) String() string {
	switch ws {
	case WorkerStatusConstructed:
		return "constructed"
	case WorkerStatusRunning:
		return "running"
	case WorkerStatusTerminated:
		return "terminated"
	case WorkerStatusJoined:
		return "joined"
	default:
		return "unknown"
	}
}

// Result is what a worker hands back once it has been joined. It is the only
// way to reach the worker's state.
type Result[S any] struct {
	// WorkerID is the index of the worker
	WorkerID int

	// State is the worker's private state as left by the last unit
	State S

	// Processed is the number of units that completed without error
	Processed int64

	// Failed is the number of units that returned an error or panicked
	Failed int64

	// Failures holds the recorded unit failures in execution order
	Failures []*types.WorkError

	// Elapsed is the time between start and drain
	Elapsed time.Duration
}

// Worker drains a shared WorkQueue on its own goroutine, applying every unit
// it takes to its private state S.
type Worker[S any] struct {
	id     int
	status int32 // atomic WorkerStatus
	queue  *queue.WorkQueue[types.WorkUnit[S]]
	done   chan struct{}

	// owned by the worker goroutine until done is closed
	state    S
	failures []*types.WorkError
	elapsed  time.Duration

	// statistics
	totalProcessed int64
	totalFailed    int64
	lastUnitTime   int64 // Unix nanosecond timestamp

	// error handling
	errorHandler types.ErrorHandler
	maxFailures  int

	// pool callback for syncing statistics
	completionCallback func(time.Duration, bool)

	logger *slog.Logger
	attrs  []any

	// time operations
	clock types.Clock

	result *Result[S]

	// synchronization
	mu sync.RWMutex
}

// NewWorker creates a new Worker with default real clock
func NewWorker[S any](id int, q *queue.WorkQueue[types.WorkUnit[S]], state S) *Worker[S] {
	return NewWorkerWithClock(id, q, state, types.NewRealClock())
}

// NewWorkerWithClock creates a new Worker with specified clock
func NewWorkerWithClock[S any](id int, q *queue.WorkQueue[types.WorkUnit[S]], state S, clock types.Clock) *Worker[S] {
	if clock == nil {
		clock = types.NewRealClock()
	}

	return &Worker[S]{
		id:     id,
		status: int32(WorkerStatusConstructed),
		queue:  q,
		done:   make(chan struct{}),
		state:  state,
		clock:  clock,
		logger: slog.Default(),
	}
}

// ID returns the Worker ID
func (w *Worker[S]) ID() int {
	return w.id
}

// Status returns the current Worker status
func (w *Worker[S]) Status() WorkerStatus {
	return WorkerStatus(atomic.LoadInt32(&w.status))
}

// SetErrorHandler sets the error handler. It is called on the worker's own
// goroutine for every failed unit.
func (w *Worker[S]) SetErrorHandler(handler types.ErrorHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.errorHandler = handler
}

// SetCompletionCallback sets the unit completion callback
func (w *Worker[S]) SetCompletionCallback(callback func(time.Duration, bool)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.completionCallback = callback
}

// SetLogger sets the structured logger; extra attrs are attached to every record
func (w *Worker[S]) SetLogger(logger *slog.Logger, attrs ...any) {
	if logger == nil {
		logger = slog.Default()
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.logger = logger
	w.attrs = attrs
}

// SetMaxRecordedFailures caps how many failures are kept in the Result.
// Failed still counts every failure. Zero or less keeps all of them.
func (w *Worker[S]) SetMaxRecordedFailures(n int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.maxFailures = n
}

// Start starts the worker goroutine. ctx is handed to every unit; cancelling
// it does not stop the worker, which exits only when the queue drains.
func (w *Worker[S]) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&w.status, int32(WorkerStatusConstructed), int32(WorkerStatusRunning)) {
		return fmt.Errorf("worker %d: %w", w.id, types.ErrAlreadyStarted)
	}

	go w.run(ctx)
	return nil
}

// Join blocks until the worker has drained the queue and its goroutine has
// exited, then returns the worker's Result. Further calls return the same
// Result without blocking.
func (w *Worker[S]) Join() (*Result[S], error) {
	if w.Status() == WorkerStatusConstructed {
		return nil, fmt.Errorf("worker %d: %w", w.id, types.ErrNotStarted)
	}

	<-w.done

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.result == nil {
		w.result = &Result[S]{
			WorkerID:  w.id,
			State:     w.state,
			Processed: atomic.LoadInt64(&w.totalProcessed),
			Failed:    atomic.LoadInt64(&w.totalFailed),
			Failures:  w.failures,
			Elapsed:   w.elapsed,
		}
		atomic.StoreInt32(&w.status, int32(WorkerStatusJoined))
	}
	return w.result, nil
}

// Result returns the worker's Result once Join has returned
func (w *Worker[S]) Result() (*Result[S], error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.result == nil {
		return nil, fmt.Errorf("worker %d: %w", w.id, types.ErrNotJoined)
	}
	return w.result, nil
}

// Done returns a channel that is closed when the worker goroutine exits
func (w *Worker[S]) Done() <-chan struct{} {
	return w.done
}

// run is the drain loop
func (w *Worker[S]) run(ctx context.Context) {
	w.mu.RLock()
	logger := w.logger.With(append([]any{"worker_id", w.id}, w.attrs...)...)
	w.mu.RUnlock()

	startTime := w.clock.Now()
	logger.Debug("worker started")

	for {
		unit, ok := w.queue.Take()
		if !ok {
			break
		}
		w.processUnit(ctx, logger, unit)
	}

	w.elapsed = w.clock.Since(startTime)
	logger.Debug("worker drained",
		"processed", atomic.LoadInt64(&w.totalProcessed),
		"failed", atomic.LoadInt64(&w.totalFailed),
		"elapsed", w.elapsed)

	atomic.StoreInt32(&w.status, int32(WorkerStatusTerminated))
	close(w.done)
}

// processUnit processes a single unit
func (w *Worker[S]) processUnit(ctx context.Context, logger *slog.Logger, unit types.WorkUnit[S]) {
	startTime := w.clock.Now()
	atomic.StoreInt64(&w.lastUnitTime, startTime.UnixNano())

	err := w.executeUnit(ctx, unit)

	executionTime := w.clock.Since(startTime)

	failed := err != nil
	if failed {
		atomic.AddInt64(&w.totalFailed, 1)
		w.recordFailure(logger, err)
	} else {
		atomic.AddInt64(&w.totalProcessed, 1)
	}

	w.mu.RLock()
	callback := w.completionCallback
	w.mu.RUnlock()

	if callback != nil {
		callback(executionTime, failed)
	}
}

// executeUnit executes a unit with panic recovery support. The unit is
// released before returning, whether it panicked or not.
func (w *Worker[S]) executeUnit(ctx context.Context, unit types.WorkUnit[S]) (err error) {
	defer func() {
		if r := recover(); r != nil {
			var buf [4096]byte
			n := runtime.Stack(buf[:], false)

			var cause error
			switch v := r.(type) {
			case error:
				cause = fmt.Errorf("panic: %w", v)
			case string:
				cause = fmt.Errorf("panic: %s", v)
			default:
				cause = fmt.Errorf("panic: %v", v)
			}

			workErr := types.NewWorkError(w.id, unitIDOf(unit), cause)
			workErr.Panicked = true
			workErr.WithContext("stack_trace", string(buf[:n]))
			err = workErr
		}
	}()
	defer releaseUnit(unit)

	if execErr := unit.Execute(ctx, &w.state); execErr != nil {
		return types.NewWorkError(w.id, unitIDOf(unit), execErr)
	}
	return nil
}

// recordFailure appends err to the worker's private failure list and
// notifies the error handler
func (w *Worker[S]) recordFailure(logger *slog.Logger, err error) {
	w.mu.RLock()
	handler := w.errorHandler
	maxFailures := w.maxFailures
	w.mu.RUnlock()

	workErr, ok := types.AsWorkError(err)
	if !ok {
		workErr = types.NewWorkError(w.id, "", err)
	}

	if maxFailures <= 0 || len(w.failures) < maxFailures {
		w.failures = append(w.failures, workErr)
	}

	logger.Warn("work unit failed",
		"unit_id", workErr.UnitID,
		"panicked", workErr.Panicked,
		"error", workErr.Cause)

	if handler != nil {
		// handler errors are informational only
		_ = handler(workErr)
	}
}

// Stats gets Worker statistics. It is safe to call while the worker runs
// and never exposes the worker's state.
func (w *Worker[S]) Stats() WorkerStats {
	return WorkerStats{
		ID:             w.id,
		Status:         w.Status(),
		TotalProcessed: atomic.LoadInt64(&w.totalProcessed),
		TotalFailed:    atomic.LoadInt64(&w.totalFailed),
		LastUnitTime:   time.Unix(0, atomic.LoadInt64(&w.lastUnitTime)),
	}
}

// WorkerStats defines Worker statistics
type WorkerStats struct {
	ID             int
	Status         WorkerStatus
	TotalProcessed int64
	TotalFailed    int64
	LastUnitTime   time.Time
}

// IsRunning checks if the Worker is still draining
func (ws WorkerStats) IsRunning() bool {
	return ws.Status == WorkerStatusRunning
}

// GetSuccessRate gets the success rate
func (ws WorkerStats) GetSuccessRate() float64 {
	total := ws.TotalProcessed + ws.TotalFailed
	if total == 0 {
		return 0
	}
	return float64(ws.TotalProcessed) / float64(total)
}

// GetErrorRate gets the error rate
func (ws WorkerStats) GetErrorRate() float64 {
	total := ws.TotalProcessed + ws.TotalFailed
	if total == 0 {
		return 0
	}
	return float64(ws.TotalFailed) / float64(total)
}
