package worker

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/jzx17/drainpool/pkg/types"
)

// unitIDCounter numbers units that do not carry their own ID
var unitIDCounter int64

// BasicUnit is the basic implementation of types.WorkUnit built from a function
type BasicUnit[S any] struct {
	id      string
	fn      func(ctx context.Context, state *S) error
	release func()
}

// NewBasicUnit creates a new basic unit with a generated ID
func NewBasicUnit[S any](fn func(ctx context.Context, state *S) error) *BasicUnit[S] {
	id := atomic.AddInt64(&unitIDCounter, 1)
	return &BasicUnit[S]{
		id: fmt.Sprintf("unit-%d", id),
		fn: fn,
	}
}

// NewBasicUnitWithID creates a basic unit with custom ID
func NewBasicUnitWithID[S any](id string, fn func(ctx context.Context, state *S) error) *BasicUnit[S] {
	return &BasicUnit[S]{
		id: id,
		fn: fn,
	}
}

// OnRelease registers fn to run once the unit has been executed
func (u *BasicUnit[S]) OnRelease(fn func()) *BasicUnit[S] {
	u.release = fn
	return u
}

// Execute executes the unit
func (u *BasicUnit[S]) Execute(ctx context.Context, state *S) error {
	if u.fn == nil {
		return fmt.Errorf("unit %s has no execution function", u.id)
	}
	return u.fn(ctx, state)
}

// ID returns the unit ID
func (u *BasicUnit[S]) ID() string {
	return u.id
}

// Release runs the registered release function, if any
func (u *BasicUnit[S]) Release() {
	if u.release != nil {
		u.release()
		u.release = nil
	}
}

// UnitFunc adapts a plain function to types.WorkUnit
type UnitFunc[S any] func(ctx context.Context, state *S) error

// Execute calls f
func (f UnitFunc[S]) Execute(ctx context.Context, state *S) error {
	return f(ctx, state)
}

func unitIDOf(unit any) string {
	if identified, ok := unit.(types.Identifiable); ok {
		return identified.ID()
	}
	return fmt.Sprintf("unit-%d", atomic.AddInt64(&unitIDCounter, 1))
}

func releaseUnit(unit any) {
	if releaser, ok := unit.(types.Releaser); ok {
		releaser.Release()
	}
}
