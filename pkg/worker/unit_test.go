package worker

import (
	"context"
	"testing"

	"github.com/jzx17/drainpool/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBasicUnit(t *testing.T) {
	unit := NewBasicUnit(func(ctx context.Context, state *hitCounter) error {
		state.Hits++
		return nil
	})
	other := NewBasicUnit(func(ctx context.Context, state *hitCounter) error {
		return nil
	})

	assert.NotEmpty(t, unit.ID())
	assert.NotEqual(t, unit.ID(), other.ID())

	var state hitCounter
	require.NoError(t, unit.Execute(context.Background(), &state))
	assert.Equal(t, 1, state.Hits)

	// satisfies the optional capabilities
	var _ types.WorkUnit[hitCounter] = unit
	var _ types.Identifiable = unit
	var _ types.Releaser = unit
}

func TestBasicUnitWithID(t *testing.T) {
	unit := NewBasicUnitWithID[hitCounter]("custom-id", nil)

	assert.Equal(t, "custom-id", unit.ID())

	var state hitCounter
	err := unit.Execute(context.Background(), &state)
	assert.EqualError(t, err, "unit custom-id has no execution function")
}

func TestBasicUnit_ReleaseRunsOnce(t *testing.T) {
	calls := 0
	unit := NewBasicUnit(func(ctx context.Context, state *hitCounter) error {
		return nil
	}).OnRelease(func() { calls++ })

	unit.Release()
	unit.Release()
	assert.Equal(t, 1, calls)

	// no release function registered
	NewBasicUnitWithID[hitCounter]("plain", nil).Release()
}

func TestUnitHelpers(t *testing.T) {
	identified := NewBasicUnitWithID[hitCounter]("known", nil)
	assert.Equal(t, "known", unitIDOf(identified))

	anonymous := UnitFunc[hitCounter](func(ctx context.Context, state *hitCounter) error { return nil })
	first := unitIDOf(anonymous)
	second := unitIDOf(anonymous)
	assert.Contains(t, first, "unit-")
	assert.NotEqual(t, first, second)

	// units without Release are skipped
	releaseUnit(anonymous)
}
