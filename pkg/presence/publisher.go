// Package presence keeps the account service's online flag in line with
// actual usage. It heartbeats on a fixed interval instead of pushing every
// activity change.
package presence

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/msniranjan18/chhavinity/pkg/models"
)

// StatusService is the slice of the account service the publisher calls.
type StatusService interface {
	SetOnlineStatus(ctx context.Context, online bool) error
	TouchLastSeen(ctx context.Context) error
}

// ActivitySource is what the publisher reads from the activity tracker.
type ActivitySource interface {
	Snapshot() models.ActivitySnapshot
	SinceInteraction() time.Duration
	Resumed() <-chan struct{}
}

type Options struct {
	HeartbeatInterval time.Duration
	// ActiveWindow bounds how recent the last interaction must be for a
	// heartbeat ping to go out.
	ActiveWindow  time.Duration
	IdleTimeout   time.Duration
	HiddenTimeout time.Duration
	// CallTimeout bounds each account service call.
	CallTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		HeartbeatInterval: 60 * time.Second,
		ActiveWindow:      60 * time.Second,
		IdleTimeout:       3 * time.Minute,
		HiddenTimeout:     60 * time.Second,
		CallTimeout:       10 * time.Second,
	}
}

type Publisher struct {
	svc      StatusService
	activity ActivitySource
	clock    clock.Clock
	opts     Options
	logger   *slog.Logger

	// opMu serializes every status transition and heartbeat tick.
	opMu      sync.Mutex
	online    bool
	heartbeat bool

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewPublisher(svc StatusService, activity ActivitySource, clk clock.Clock, opts Options, logger *slog.Logger) *Publisher {
	return &Publisher{
		svc:      svc,
		activity: activity,
		clock:    clk,
		opts:     opts,
		logger:   logger,
	}
}

// Start marks the user online and runs the heartbeat loop until Stop.
// Calling Start on a running publisher is a no-op.
func (p *Publisher) Start(ctx context.Context) {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	if p.cancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})

	// The ticker exists before Start returns so a mock clock can drive it.
	ticker := p.clock.Ticker(p.opts.HeartbeatInterval)
	p.GoOnline(runCtx)
	go p.loop(runCtx, ticker)
}

// Stop ends the heartbeat loop, waits for it, then makes a best-effort
// offline call whose error is returned.
func (p *Publisher) Stop(ctx context.Context) error {
	p.runMu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.runMu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return p.GoOffline(ctx)
}

func (p *Publisher) loop(ctx context.Context, ticker *clock.Ticker) {
	defer close(p.done)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Tick(ctx)
		case <-p.activity.Resumed():
			if !p.IsOnline() {
				p.GoOnline(ctx)
			}
		}
	}
}

func (p *Publisher) IsOnline() bool {
	p.opMu.Lock()
	defer p.opMu.Unlock()
	return p.online
}

func (p *Publisher) HeartbeatActive() bool {
	p.opMu.Lock()
	defer p.opMu.Unlock()
	return p.heartbeat
}

// GoOnline reports the user online. Failures leave the local state alone;
// the next resumed signal or tick tries again.
func (p *Publisher) GoOnline(ctx context.Context) {
	p.opMu.Lock()
	defer p.opMu.Unlock()
	p.goOnline(ctx)
}

func (p *Publisher) goOnline(ctx context.Context) {
	if p.online {
		return
	}
	callCtx, cancel := p.callContext(ctx)
	defer cancel()

	if err := p.svc.SetOnlineStatus(callCtx, true); err != nil {
		p.logger.Warn("Failed to set online status", "error", err)
		return
	}
	p.online = true
	p.heartbeat = true
	p.logger.Info("User set to online")
}

// GoOffline reports the user offline. On failure the heartbeat stays armed so
// the next tick retries.
func (p *Publisher) GoOffline(ctx context.Context) error {
	p.opMu.Lock()
	defer p.opMu.Unlock()
	return p.goOffline(ctx)
}

func (p *Publisher) goOffline(ctx context.Context) error {
	if !p.online {
		return nil
	}
	callCtx, cancel := p.callContext(ctx)
	defer cancel()

	if err := p.svc.SetOnlineStatus(callCtx, false); err != nil {
		p.logger.Warn("Failed to set offline status", "error", err)
		return fmt.Errorf("set offline: %w", err)
	}
	p.online = false
	p.heartbeat = false
	p.logger.Info("User set to offline")
	return nil
}

// Tick runs one heartbeat round.
func (p *Publisher) Tick(ctx context.Context) {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	snap := p.activity.Snapshot()
	since := p.activity.SinceInteraction()

	if !p.online {
		// retry an online call that failed while the user kept working
		if snap.TabVisible && snap.WindowFocused && since < p.opts.ActiveWindow {
			p.goOnline(ctx)
		}
		return
	}
	if !p.heartbeat {
		return
	}

	shouldGoOffline := since > p.opts.IdleTimeout ||
		(!snap.TabVisible && since > p.opts.HiddenTimeout) ||
		(!snap.WindowFocused && since > p.opts.HiddenTimeout)
	if shouldGoOffline {
		p.logger.Debug("Heartbeat: user inactive", "since_activity", since,
			"tab_visible", snap.TabVisible, "window_focused", snap.WindowFocused)
		// goOffline logs its own failure and the next tick retries
		_ = p.goOffline(ctx)
		return
	}

	if !snap.TabVisible || !snap.WindowFocused || since >= p.opts.ActiveWindow {
		return
	}

	callCtx, cancel := p.callContext(ctx)
	defer cancel()
	if err := p.svc.TouchLastSeen(callCtx); err != nil {
		p.logger.Warn("Heartbeat failed", "error", err)
		return
	}
	p.logger.Debug("Heartbeat: confirmed online status")
}

func (p *Publisher) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.opts.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.opts.CallTimeout)
}
