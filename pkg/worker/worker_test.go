package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jzx17/drainpool/internal/testutils"
	"github.com/jzx17/drainpool/pkg/queue"
	"github.com/jzx17/drainpool/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hitCounter mirrors the per-worker accumulator an application would supply
type hitCounter struct {
	ID    int
	Hits  int
	Units int
}

func addHits(n int) types.WorkUnit[hitCounter] {
	return NewBasicUnit(func(ctx context.Context, state *hitCounter) error {
		state.Hits += n
		state.Units++
		return nil
	})
}

func newUnitQueue() *queue.WorkQueue[types.WorkUnit[hitCounter]] {
	return queue.New[types.WorkUnit[hitCounter]]()
}

func TestNewWorker(t *testing.T) {
	q := newUnitQueue()
	worker := NewWorker(1, q, hitCounter{ID: 1})

	assert.Equal(t, 1, worker.ID())
	assert.Equal(t, WorkerStatusConstructed, worker.Status())
}

func TestWorkerStatus(t *testing.T) {
	assert.Equal(t, "constructed", WorkerStatusConstructed.String())
	assert.Equal(t, "running", WorkerStatusRunning.String())
	assert.Equal(t, "terminated", WorkerStatusTerminated.String())
	assert.Equal(t, "joined", WorkerStatusJoined.String())
	assert.Equal(t, "unknown", WorkerStatus(999).String())
}

func TestWorker_Lifecycle(t *testing.T) {
	q := newUnitQueue()
	worker := NewWorker(0, q, hitCounter{})

	// Join before Start is a usage error
	_, err := worker.Join()
	assert.ErrorIs(t, err, types.ErrNotStarted)

	// Result before Join is a usage error
	_, err = worker.Result()
	assert.ErrorIs(t, err, types.ErrNotJoined)

	require.NoError(t, worker.Start(context.Background()))
	assert.Equal(t, WorkerStatusRunning, worker.Status())

	// repeated start
	err = worker.Start(context.Background())
	assert.ErrorIs(t, err, types.ErrAlreadyStarted)

	// still running while the queue is open
	_, err = worker.Result()
	assert.ErrorIs(t, err, types.ErrNotJoined)

	q.Close()

	var result *Result[hitCounter]
	testutils.RequireReturnsWithin(t, testutils.DefaultTimeout, func() {
		result, err = worker.Join()
	})
	require.NoError(t, err)
	assert.Equal(t, WorkerStatusJoined, worker.Status())
	assert.Equal(t, 0, result.WorkerID)

	// joining again returns the same result
	again, err := worker.Join()
	require.NoError(t, err)
	assert.Same(t, result, again)

	fromResult, err := worker.Result()
	require.NoError(t, err)
	assert.Same(t, result, fromResult)
}

func TestWorker_DrainsQueueIntoState(t *testing.T) {
	q := newUnitQueue()
	worker := NewWorker(3, q, hitCounter{ID: 3})

	for _, n := range []int{5, 10, 15} {
		require.NoError(t, q.Add(addHits(n)))
	}
	q.Close()

	require.NoError(t, worker.Start(context.Background()))
	result, err := worker.Join()
	require.NoError(t, err)

	assert.Equal(t, 3, result.WorkerID)
	assert.Equal(t, hitCounter{ID: 3, Hits: 30, Units: 3}, result.State)
	assert.Equal(t, int64(3), result.Processed)
	assert.Equal(t, int64(0), result.Failed)
	assert.Empty(t, result.Failures)
	assert.True(t, q.IsDrained())
}

func TestWorker_StartsBeforeUnitsArrive(t *testing.T) {
	q := newUnitQueue()
	worker := NewWorker(0, q, hitCounter{})
	require.NoError(t, worker.Start(context.Background()))

	for i := 0; i < 10; i++ {
		require.NoError(t, q.Add(addHits(1)))
	}

	assert.Eventually(t, func() bool {
		return worker.Stats().TotalProcessed == 10
	}, testutils.DefaultTimeout, time.Millisecond)
	assert.Equal(t, WorkerStatusRunning, worker.Status())

	q.Close()
	result, err := worker.Join()
	require.NoError(t, err)
	assert.Equal(t, 10, result.State.Hits)
}

func TestWorker_FaultIsolation(t *testing.T) {
	errBadUnit := errors.New("bad unit")

	q := newUnitQueue()
	worker := NewWorker(2, q, hitCounter{})

	var handled []error
	worker.SetErrorHandler(func(err error) error {
		handled = append(handled, err)
		return err
	})

	require.NoError(t, q.Add(addHits(1)))
	require.NoError(t, q.Add(NewBasicUnitWithID("returns-error", func(ctx context.Context, state *hitCounter) error {
		return errBadUnit
	})))
	require.NoError(t, q.Add(NewBasicUnitWithID("panics", func(ctx context.Context, state *hitCounter) error {
		panic("corrupt input")
	})))
	require.NoError(t, q.Add(UnitFunc[hitCounter](func(ctx context.Context, state *hitCounter) error {
		panic(errBadUnit)
	})))
	require.NoError(t, q.Add(addHits(2)))
	q.Close()

	require.NoError(t, worker.Start(context.Background()))
	result, err := worker.Join()
	require.NoError(t, err)

	// units after the failures still ran on the same worker
	assert.Equal(t, 3, result.State.Hits)
	assert.Equal(t, int64(2), result.Processed)
	assert.Equal(t, int64(3), result.Failed)
	require.Len(t, result.Failures, 3)
	assert.Len(t, handled, 3)

	returned := result.Failures[0]
	assert.Equal(t, 2, returned.WorkerID)
	assert.Equal(t, "returns-error", returned.UnitID)
	assert.False(t, returned.Panicked)
	assert.ErrorIs(t, returned, errBadUnit)

	panicked := result.Failures[1]
	assert.Equal(t, "panics", panicked.UnitID)
	assert.True(t, panicked.Panicked)
	assert.Contains(t, panicked.Error(), "corrupt input")
	assert.NotEmpty(t, panicked.Context["stack_trace"])

	// an anonymous unit gets a generated ID and a panic value keeps its chain
	anonymous := result.Failures[2]
	assert.True(t, anonymous.Panicked)
	assert.Contains(t, anonymous.UnitID, "unit-")
	assert.ErrorIs(t, anonymous, errBadUnit)
}

func TestWorker_MaxRecordedFailures(t *testing.T) {
	q := newUnitQueue()
	worker := NewWorker(0, q, hitCounter{})
	worker.SetMaxRecordedFailures(2)

	for i := 0; i < 5; i++ {
		require.NoError(t, q.Add(UnitFunc[hitCounter](func(ctx context.Context, state *hitCounter) error {
			return errors.New("failed")
		})))
	}
	q.Close()

	require.NoError(t, worker.Start(context.Background()))
	result, err := worker.Join()
	require.NoError(t, err)

	assert.Equal(t, int64(5), result.Failed)
	assert.Len(t, result.Failures, 2)
}

func TestWorker_ReleasesUnits(t *testing.T) {
	q := newUnitQueue()
	worker := NewWorker(0, q, hitCounter{})

	var released int64
	release := func() { atomic.AddInt64(&released, 1) }

	require.NoError(t, q.Add(NewBasicUnit(func(ctx context.Context, state *hitCounter) error {
		return nil
	}).OnRelease(release)))
	require.NoError(t, q.Add(NewBasicUnit(func(ctx context.Context, state *hitCounter) error {
		return errors.New("failed")
	}).OnRelease(release)))
	require.NoError(t, q.Add(NewBasicUnit(func(ctx context.Context, state *hitCounter) error {
		panic("boom")
	}).OnRelease(release)))
	q.Close()

	require.NoError(t, worker.Start(context.Background()))
	_, err := worker.Join()
	require.NoError(t, err)

	assert.Equal(t, int64(3), atomic.LoadInt64(&released))
}

func TestWorker_PassesContextToUnits(t *testing.T) {
	type ctxKey struct{}
	ctx := context.WithValue(context.Background(), ctxKey{}, "request-7")

	q := newUnitQueue()
	worker := NewWorker(0, q, hitCounter{})

	var seen string
	require.NoError(t, q.Add(UnitFunc[hitCounter](func(ctx context.Context, state *hitCounter) error {
		seen, _ = ctx.Value(ctxKey{}).(string)
		return nil
	})))
	q.Close()

	require.NoError(t, worker.Start(ctx))
	_, err := worker.Join()
	require.NoError(t, err)
	assert.Equal(t, "request-7", seen)
}

func TestWorker_CancelledContextDoesNotStopDrain(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	q := newUnitQueue()
	for i := 0; i < 5; i++ {
		require.NoError(t, q.Add(addHits(1)))
	}
	q.Close()

	worker := NewWorker(0, q, hitCounter{})
	require.NoError(t, worker.Start(ctx))
	result, err := worker.Join()
	require.NoError(t, err)
	assert.Equal(t, 5, result.State.Hits)
}

func TestWorker_CompletionCallbackAndClock(t *testing.T) {
	mock := testutils.NewMockClock(t)
	q := newUnitQueue()
	worker := NewWorkerWithClock(0, q, hitCounter{}, testutils.NewClockWrapper(mock))

	var successes, failures int
	worker.SetCompletionCallback(func(duration time.Duration, failed bool) {
		if failed {
			failures++
		} else {
			successes++
		}
	})

	require.NoError(t, q.Add(addHits(1)))
	require.NoError(t, q.Add(UnitFunc[hitCounter](func(ctx context.Context, state *hitCounter) error {
		return errors.New("failed")
	})))
	q.Close()

	require.NoError(t, worker.Start(context.Background()))
	result, err := worker.Join()
	require.NoError(t, err)

	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, failures)
	// the mock clock never moved
	assert.Equal(t, time.Duration(0), result.Elapsed)
	assert.WithinDuration(t, mock.Now(), worker.Stats().LastUnitTime, 0)
}

func TestWorkerStats(t *testing.T) {
	stats := WorkerStats{TotalProcessed: 3, TotalFailed: 1, Status: WorkerStatusRunning}

	assert.True(t, stats.IsRunning())
	assert.InDelta(t, 0.75, stats.GetSuccessRate(), 1e-9)
	assert.InDelta(t, 0.25, stats.GetErrorRate(), 1e-9)

	empty := WorkerStats{}
	assert.Equal(t, float64(0), empty.GetSuccessRate())
	assert.Equal(t, float64(0), empty.GetErrorRate())
	assert.False(t, empty.IsRunning())
}
