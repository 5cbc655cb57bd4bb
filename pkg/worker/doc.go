/*
Package worker provides a fixed pool of long-lived workers that drain a shared
queue.WorkQueue, each worker applying the units it takes to its own private
state.

# Overview

A Worker owns one value of type S for its whole lifetime. It runs a single
goroutine that takes units from the queue and calls Execute with a pointer to
that state, so a unit always has exclusive access to the state of the worker
that dequeued it. The worker exits once the queue is closed and empty.

The state is only reachable through Result, which is produced by Join. Before a
worker is joined there is no accessor for its state; Stats reports counters
only.

# Core Components

## Pool

Pool creates a fixed number of workers from a types.StateFactory and drives
them through one lifecycle:

	Constructed -> Started -> AllJoined -> Collected

StartAll starts every worker. JoinAll blocks until every worker has drained
the queue, which can only happen after the queue is closed. Collect returns
one Result per worker in index order.

## Worker

Worker runs the drain loop. A unit that returns an error or panics is recorded
as a *types.WorkError in the worker's failure list, passed to the error
handler and logged; the worker then moves on to the next unit. Units that
implement types.Releaser are released after Execute, on every path.

## Units

BasicUnit and UnitFunc adapt plain functions to types.WorkUnit. BasicUnit
carries an ID used to attribute failures and an optional release hook.

# Concurrency Safety

Add, Close and the Stats methods are safe from any goroutine. A worker's state
and failure list are written only by its own goroutine; closing the worker's
done channel publishes them to whoever calls Join. The context passed to
Start is handed to every unit but never stops a worker: a pool always runs
until its queue is drained.

# Metrics

Setting PoolConfig.MetricsRegisterer enables Prometheus metrics: executed
units by outcome, unit duration, active workers and queue depth.

# Usage Examples

Basic usage:

	type hits struct {
		ID    int
		Total int
	}

	q := queue.New[types.WorkUnit[hits]]()
	pool, err := worker.NewPool(&worker.PoolConfig{Workers: 8},
		func(index int) hits { return hits{ID: index} }, q)
	if err != nil {
		log.Fatal(err)
	}

	if err := pool.StartAll(ctx); err != nil {
		log.Fatal(err)
	}

	for _, s := range inputs {
		s := s
		_ = q.Add(worker.UnitFunc[hits](func(ctx context.Context, state *hits) error {
			state.Total += len(s)
			return nil
		}))
	}
	q.Close()

	if err := pool.JoinAll(); err != nil {
		log.Fatal(err)
	}
	results, _ := pool.Collect()
	for _, r := range results {
		fmt.Printf("worker %d results %d\n", r.WorkerID, r.State.Total)
	}

All-in-one:

	results, err := pool.Run(ctx, units)
*/
package worker
