// Package types defines the capability contracts between the work queue,
// its workers and the embedding application
package types

import (
	"context"
)

// WorkUnit is a unit of work executed against a worker's private state S.
//
// Execute is invoked exactly once per unit, on the worker that removed the
// unit from the queue, with exclusive access to that worker's state. The
// state pointer must not be retained after Execute returns.
type WorkUnit[S any] interface {
	Execute(ctx context.Context, state *S) error
}

// Identifiable is implemented by units that carry their own identifier.
// Workers use it to attribute failures.
type Identifiable interface {
	ID() string
}

// Releaser is implemented by units holding resources that must be freed once
// the unit has run. The worker that executed the unit calls Release exactly
// once, after Execute returns or panics.
type Releaser interface {
	Release()
}

// StateFactory creates the initial private state for the worker at index
type StateFactory[S any] func(index int) S

// ErrorHandler observes work unit failures on the worker that hit them.
// The returned error is ignored; handlers exist for side effects such as
// alerting or counting.
type ErrorHandler func(error) error
