package activity

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTracker() (*Tracker, *clock.Mock, *InputBus) {
	clk := clock.NewMock()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewTracker(clk, time.Minute, logger), clk, NewInputBus()
}

func drain(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func TestTrackerActiveWindow(t *testing.T) {
	tr, clk, bus := newTestTracker()
	tr.Start(bus)
	defer tr.Stop()

	assert.True(t, tr.IsActive())

	clk.Add(59 * time.Second)
	assert.True(t, tr.IsActive())

	clk.Add(2 * time.Second)
	assert.False(t, tr.IsActive())

	bus.EmitInteraction()
	assert.True(t, tr.IsActive())
	assert.Equal(t, time.Duration(0), tr.SinceInteraction())
}

func TestTrackerHiddenOrBlurredIsInactive(t *testing.T) {
	tr, _, bus := newTestTracker()
	tr.Start(bus)
	defer tr.Stop()

	bus.EmitVisibility(false)
	assert.False(t, tr.IsActive())
	assert.False(t, tr.Snapshot().TabVisible)

	bus.EmitVisibility(true)
	bus.EmitFocus(false)
	assert.False(t, tr.IsActive())
	assert.False(t, tr.Snapshot().WindowFocused)
}

func TestTrackerResumedSignal(t *testing.T) {
	tr, clk, bus := newTestTracker()
	tr.Start(bus)
	defer tr.Stop()

	bus.EmitFocus(false)
	drain(tr.Resumed())

	// interactions while blurred do not count as coming back
	bus.EmitInteraction()
	assert.False(t, drain(tr.Resumed()))

	clk.Add(5 * time.Minute)
	bus.EmitFocus(true)
	assert.True(t, drain(tr.Resumed()))
	assert.Equal(t, time.Duration(0), tr.SinceInteraction())

	// bursts coalesce into one pending signal
	bus.EmitInteraction()
	bus.EmitInteraction()
	assert.True(t, drain(tr.Resumed()))
	assert.False(t, drain(tr.Resumed()))
}

func TestTrackerStartStopIdempotent(t *testing.T) {
	tr, _, bus := newTestTracker()

	tr.Start(bus)
	tr.Start(bus)
	require.Equal(t, 1, bus.Listeners(InputInteraction))
	require.Equal(t, 1, bus.Listeners(InputVisibility))
	require.Equal(t, 1, bus.Listeners(InputFocus))

	tr.Stop()
	tr.Stop()
	assert.Equal(t, 0, bus.Listeners(InputInteraction))
	assert.Equal(t, 0, bus.Listeners(InputVisibility))
	assert.Equal(t, 0, bus.Listeners(InputFocus))

	// a stopped tracker ignores the bus
	bus.EmitVisibility(false)
	assert.True(t, tr.Snapshot().TabVisible)

	tr.Start(bus)
	defer tr.Stop()
	assert.Equal(t, 1, bus.Listeners(InputFocus))
}
