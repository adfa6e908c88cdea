// Package activity decides whether the local user is actively using the
// client right now.
package activity

import (
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/msniranjan18/chhavinity/pkg/models"
)

type Tracker struct {
	clock  clock.Clock
	window time.Duration
	logger *slog.Logger

	mu              sync.RWMutex
	lastInteraction time.Time
	tabVisible      bool
	windowFocused   bool
	disposers       []func()

	resumed chan struct{}
}

// NewTracker returns a tracker that considers the user active while the tab
// is visible, the window focused and the last interaction within window.
func NewTracker(clk clock.Clock, window time.Duration, logger *slog.Logger) *Tracker {
	return &Tracker{
		clock:           clk,
		window:          window,
		logger:          logger,
		lastInteraction: clk.Now(),
		tabVisible:      true,
		windowFocused:   true,
		resumed:         make(chan struct{}, 1),
	}
}

// Start registers the tracker's listeners on src. A second Start without Stop
// is a no-op.
func (t *Tracker) Start(src InputSource) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.disposers) > 0 {
		return
	}
	t.lastInteraction = t.clock.Now()
	t.disposers = []func(){
		src.Listen(InputInteraction, func(InputEvent) { t.RecordInteraction() }),
		src.Listen(InputVisibility, func(e InputEvent) { t.SetTabVisible(e.Value) }),
		src.Listen(InputFocus, func(e InputEvent) { t.SetWindowFocused(e.Value) }),
	}
	t.logger.Debug("Activity tracker started")
}

// Stop removes every listener. Safe to call repeatedly.
func (t *Tracker) Stop() {
	t.mu.Lock()
	disposers := t.disposers
	t.disposers = nil
	t.mu.Unlock()

	for _, dispose := range disposers {
		dispose()
	}
	if len(disposers) > 0 {
		t.logger.Debug("Activity tracker stopped")
	}
}

func (t *Tracker) RecordInteraction() {
	t.mu.Lock()
	t.lastInteraction = t.clock.Now()
	attentive := t.tabVisible && t.windowFocused
	t.mu.Unlock()

	if attentive {
		t.signalResumed()
	}
}

func (t *Tracker) SetTabVisible(visible bool) {
	t.mu.Lock()
	t.tabVisible = visible
	if visible {
		t.lastInteraction = t.clock.Now()
	}
	t.mu.Unlock()

	if visible {
		t.logger.Debug("Tab visible")
		t.signalResumed()
	} else {
		t.logger.Debug("Tab hidden")
	}
}

func (t *Tracker) SetWindowFocused(focused bool) {
	t.mu.Lock()
	t.windowFocused = focused
	if focused {
		t.lastInteraction = t.clock.Now()
	}
	t.mu.Unlock()

	if focused {
		t.logger.Debug("Window focused")
		t.signalResumed()
	} else {
		t.logger.Debug("Window blurred")
	}
}

func (t *Tracker) IsActive() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.tabVisible && t.windowFocused && t.clock.Since(t.lastInteraction) < t.window
}

func (t *Tracker) SinceInteraction() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.clock.Since(t.lastInteraction)
}

func (t *Tracker) Snapshot() models.ActivitySnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return models.ActivitySnapshot{
		LastInteraction: t.lastInteraction.UTC(),
		TabVisible:      t.tabVisible,
		WindowFocused:   t.windowFocused,
	}
}

// Resumed fires when the user comes back: an attentive interaction, the tab
// becoming visible or the window gaining focus. Bursts coalesce.
func (t *Tracker) Resumed() <-chan struct{} {
	return t.resumed
}

func (t *Tracker) signalResumed() {
	select {
	case t.resumed <- struct{}{}:
	default:
	}
}
