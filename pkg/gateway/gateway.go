// Package gateway connects the agent to its UI over a local websocket. The UI
// feeds raw activity signals and commands in; toasts, sounds, platform
// notifications and state changes flow out.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/msniranjan18/chhavinity/pkg/activity"
	"github.com/msniranjan18/chhavinity/pkg/models"
	"github.com/msniranjan18/chhavinity/pkg/notify"
	"github.com/msniranjan18/chhavinity/pkg/sound"
)

// Controller is the session surface the UI drives.
type Controller interface {
	Aggregator() *notify.Aggregator
	Connected() bool
	User() (models.User, bool)
	StartCall(ctx context.Context, friendID string) (models.ActiveCall, error)
	EndCall(ctx context.Context, friendID, callID string) error
	SendMessage(ctx context.Context, friendID, text string) error
	InstallPromptDismissed(ctx context.Context) (bool, error)
	DismissInstallPrompt(ctx context.Context) error
}

type FrameType string

// Inbound frames.
const (
	FrameActivity       FrameType = "activity"
	FrameVisibility     FrameType = "visibility"
	FrameFocus          FrameType = "focus"
	FrameMarkRead       FrameType = "mark_read"
	FrameMarkAllRead    FrameType = "mark_all_read"
	FrameToastAction    FrameType = "toast_action"
	FramePermission     FrameType = "permission"
	FrameOpenChat       FrameType = "open_chat"
	FrameStartCall      FrameType = "start_call"
	FrameEndCall        FrameType = "end_call"
	FrameSendMessage    FrameType = "send_message"
	FrameDismissInstall FrameType = "dismiss_install_prompt"
)

// Outbound frames.
const (
	FrameUI                FrameType = "ui"
	FrameSound             FrameType = "sound"
	FrameNotification      FrameType = "notification"
	FramePermissionRequest FrameType = "permission_request"
	FrameState             FrameType = "state"
	FrameCallStarted       FrameType = "call_started"
	FrameError             FrameType = "error"
)

// Inbound is a frame sent by the UI.
type Inbound struct {
	Type       FrameType         `json:"type"`
	Value      bool              `json:"value,omitempty"`
	ContactID  string            `json:"contact_id,omitempty"`
	ToastID    string            `json:"toast_id,omitempty"`
	ActionID   string            `json:"action_id,omitempty"`
	Permission notify.Permission `json:"permission,omitempty"`
	CallID     string            `json:"call_id,omitempty"`
	Text       string            `json:"text,omitempty"`
}

// Outbound is a frame sent to the UI.
type Outbound struct {
	Type FrameType `json:"type"`
	Data any       `json:"data,omitempty"`
}

// State is the full picture a UI needs when it (re)connects.
type State struct {
	User                   *models.User                  `json:"user,omitempty"`
	Contacts               []models.ContactPresenceState `json:"contacts"`
	TotalUnread            int                           `json:"total_unread"`
	Connected              bool                          `json:"connected"`
	Permission             notify.Permission             `json:"permission"`
	InstallPromptDismissed bool                          `json:"install_prompt_dismissed"`
}

type Gateway struct {
	input  *activity.InputBus
	logger *slog.Logger

	mu          sync.RWMutex
	ctrl        Controller
	clients     map[*client]bool
	permission  notify.Permission
	permWaiters []chan notify.Permission
}

func New(input *activity.InputBus, logger *slog.Logger) *Gateway {
	return &Gateway{
		input:      input,
		logger:     logger,
		clients:    make(map[*client]bool),
		permission: notify.PermissionDefault,
	}
}

// Attach sets the session the UI drives. The gateway is built before the
// session because the session uses it as its notifier and player.
func (g *Gateway) Attach(ctrl Controller) {
	g.mu.Lock()
	g.ctrl = ctrl
	g.mu.Unlock()
}

func (g *Gateway) controller() Controller {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.ctrl
}

// Start forwards aggregator UI events to every connected UI until ctx ends.
// The subscription exists when Start returns.
func (g *Gateway) Start(ctx context.Context) {
	ctrl := g.controller()
	if ctrl == nil {
		g.logger.Error("Gateway started without a controller")
		return
	}
	events, stop := ctrl.Aggregator().Subscribe()
	go g.forward(ctx, events, stop)
}

func (g *Gateway) forward(ctx context.Context, events <-chan notify.UIEvent, stop func()) {
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			g.broadcast(Outbound{Type: FrameUI, Data: evt})
		}
	}
}

func (g *Gateway) broadcast(out Outbound) {
	data, err := json.Marshal(out)
	if err != nil {
		g.logger.Error("Error marshaling frame", "type", out.Type, "error", err)
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	for c := range g.clients {
		select {
		case c.send <- data:
		default:
			close(c.send)
			delete(g.clients, c)
		}
	}
}

func (g *Gateway) register(c *client) {
	g.mu.Lock()
	g.clients[c] = true
	pending := len(g.permWaiters) > 0
	g.mu.Unlock()

	g.logger.Info("UI connected", "clients", g.ClientCount())
	g.sendTo(c, Outbound{Type: FrameState, Data: g.State(context.Background())})
	if pending {
		g.sendTo(c, Outbound{Type: FramePermissionRequest})
	}
}

func (g *Gateway) unregister(c *client) {
	g.mu.Lock()
	if _, ok := g.clients[c]; ok {
		delete(g.clients, c)
		close(c.send)
	}
	g.mu.Unlock()
	g.logger.Info("UI disconnected", "clients", g.ClientCount())
}

func (g *Gateway) sendTo(c *client, out Outbound) {
	data, err := json.Marshal(out)
	if err != nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.clients[c] {
		return
	}
	select {
	case c.send <- data:
	default:
		close(c.send)
		delete(g.clients, c)
	}
}

func (g *Gateway) ClientCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.clients)
}

// State snapshots the session for a UI.
func (g *Gateway) State(ctx context.Context) State {
	st := State{Contacts: []models.ContactPresenceState{}, Permission: g.Permission()}
	ctrl := g.controller()
	if ctrl == nil {
		return st
	}
	if u, ok := ctrl.User(); ok {
		st.User = &u
	}
	agg := ctrl.Aggregator()
	st.Contacts = agg.Contacts()
	st.TotalUnread = agg.TotalUnreadCount()
	st.Connected = ctrl.Connected()
	if dismissed, err := ctrl.InstallPromptDismissed(ctx); err == nil {
		st.InstallPromptDismissed = dismissed
	}
	return st
}

// Permission reports the notification permission the UI last granted or
// denied.
func (g *Gateway) Permission() notify.Permission {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.permission
}

// RequestPermission asks the UI for notification permission and waits for
// its answer. A UI that connects later is asked on connect.
func (g *Gateway) RequestPermission(ctx context.Context) (notify.Permission, error) {
	g.mu.Lock()
	if g.permission != notify.PermissionDefault {
		p := g.permission
		g.mu.Unlock()
		return p, nil
	}
	answer := make(chan notify.Permission, 1)
	g.permWaiters = append(g.permWaiters, answer)
	g.mu.Unlock()

	g.broadcast(Outbound{Type: FramePermissionRequest})

	select {
	case p := <-answer:
		return p, nil
	case <-ctx.Done():
		g.mu.Lock()
		for i, w := range g.permWaiters {
			if w == answer {
				g.permWaiters = append(g.permWaiters[:i], g.permWaiters[i+1:]...)
				break
			}
		}
		g.mu.Unlock()
		return notify.PermissionDefault, ctx.Err()
	}
}

func (g *Gateway) setPermission(p notify.Permission) {
	g.mu.Lock()
	g.permission = p
	waiters := g.permWaiters
	g.permWaiters = nil
	g.mu.Unlock()

	for _, w := range waiters {
		w <- p
	}
	g.logger.Info("Notification permission updated", "permission", p)
}

// Show forwards a platform notification to the UI.
func (g *Gateway) Show(n notify.Notification) error {
	g.broadcast(Outbound{Type: FrameNotification, Data: n})
	return nil
}

// Play forwards a sound recipe to the UI.
func (g *Gateway) Play(r sound.Recipe) {
	g.broadcast(Outbound{Type: FrameSound, Data: r})
}

// handle applies one inbound frame from c.
func (g *Gateway) handle(ctx context.Context, c *client, in Inbound) {
	switch in.Type {
	case FrameActivity:
		g.input.EmitInteraction()
		return
	case FrameVisibility:
		g.input.EmitVisibility(in.Value)
		return
	case FrameFocus:
		g.input.EmitFocus(in.Value)
		return
	case FramePermission:
		g.setPermission(in.Permission)
		return
	}

	ctrl := g.controller()
	if ctrl == nil {
		g.sendTo(c, Outbound{Type: FrameError, Data: "no active session"})
		return
	}
	agg := ctrl.Aggregator()

	switch in.Type {
	case FrameMarkRead, FrameOpenChat:
		agg.MarkAsRead(in.ContactID)
	case FrameMarkAllRead:
		agg.MarkAllAsRead()
	case FrameToastAction:
		agg.InvokeToastAction(in.ToastID, in.ActionID)
	case FrameStartCall:
		call, err := ctrl.StartCall(ctx, in.ContactID)
		if err != nil {
			g.sendTo(c, Outbound{Type: FrameError, Data: err.Error()})
			return
		}
		g.sendTo(c, Outbound{Type: FrameCallStarted, Data: call})
	case FrameEndCall:
		if err := ctrl.EndCall(ctx, in.ContactID, in.CallID); err != nil {
			g.sendTo(c, Outbound{Type: FrameError, Data: err.Error()})
		}
	case FrameSendMessage:
		if err := ctrl.SendMessage(ctx, in.ContactID, in.Text); err != nil {
			g.sendTo(c, Outbound{Type: FrameError, Data: err.Error()})
		}
	case FrameDismissInstall:
		if err := ctrl.DismissInstallPrompt(ctx); err != nil {
			g.logger.Warn("Failed to store install prompt dismissal", "error", err)
		}
	default:
		g.logger.Warn("Unknown UI frame", "type", in.Type)
	}
}
