// Package notify owns the per-contact state the UI renders: unread counts,
// last messages, typing, online flags and active calls. It also decides which
// sound, platform notification and toast each event produces.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/msniranjan18/chhavinity/pkg/models"
	"github.com/msniranjan18/chhavinity/pkg/sound"
	"github.com/samber/lo"
)

// CallCache persists active calls across restarts.
type CallCache interface {
	SaveActiveCall(ctx context.Context, contactID string, call models.ActiveCall) error
	DeleteActiveCall(ctx context.Context, contactID string) error
	ActiveCalls(ctx context.Context) (map[string]models.ActiveCall, error)
}

// MessageInput is one chat message as recorded against a contact.
type MessageInput struct {
	Text         string
	Timestamp    time.Time
	SenderName   string
	SenderAvatar string
}

type Options struct {
	CallTTL       time.Duration
	TypingTimeout time.Duration
	DefaultIcon   string
	// CacheTimeout bounds each CallCache call.
	CacheTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		CallTTL:       30 * time.Minute,
		TypingTimeout: 5 * time.Second,
		DefaultIcon:   "/icons/icon-96x96.png",
		CacheTimeout:  5 * time.Second,
	}
}

type Aggregator struct {
	clock    clock.Clock
	opts     Options
	notifier Notifier
	player   sound.Player
	calls    CallCache
	logger   *slog.Logger
	bus      *bus
	timers   *timers

	mu                  sync.Mutex
	selfID              string
	contacts            map[string]*models.ContactPresenceState
	toasts              map[string]Toast
	permissionRequested bool
	onFriendAccepted    func(models.FriendAccepted)
}

func NewAggregator(clk clock.Clock, opts Options, notifier Notifier, player sound.Player, calls CallCache, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		clock:    clk,
		opts:     opts,
		notifier: notifier,
		player:   player,
		calls:    calls,
		logger:   logger,
		bus:      newBus(logger),
		timers:   newTimers(clk),
		contacts: make(map[string]*models.ContactPresenceState),
		toasts:   make(map[string]Toast),
	}
}

// SetSelf records the logged-in user's id. A call-ended event clears the
// user's own call record too.
func (a *Aggregator) SetSelf(userID string) {
	a.mu.Lock()
	a.selfID = userID
	a.mu.Unlock()
}

// OnFriendAccepted sets the hook run after a friend-accepted event.
func (a *Aggregator) OnFriendAccepted(fn func(models.FriendAccepted)) {
	a.mu.Lock()
	a.onFriendAccepted = fn
	a.mu.Unlock()
}

// Subscribe returns a stream of UI events and the func that ends it.
func (a *Aggregator) Subscribe() (<-chan UIEvent, func()) {
	return a.bus.subscribe()
}

// contact returns the state for id, creating it. Callers hold a.mu.
func (a *Aggregator) contact(id string) *models.ContactPresenceState {
	c, ok := a.contacts[id]
	if !ok {
		c = &models.ContactPresenceState{ContactID: id}
		a.contacts[id] = c
	}
	return c
}

func copyState(c *models.ContactPresenceState) *models.ContactPresenceState {
	out := *c
	if c.LastMessage != nil {
		lm := *c.LastMessage
		out.LastMessage = &lm
	}
	if c.ActiveCall != nil {
		ac := *c.ActiveCall
		out.ActiveCall = &ac
	}
	return &out
}

func (a *Aggregator) publishContact(state *models.ContactPresenceState) {
	a.bus.publish(UIEvent{Type: UIContactUpdated, Contact: state})
}

func (a *Aggregator) cacheContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), a.opts.CacheTimeout)
}

// RecordMessage stores msg as the contact's last message. Messages from the
// contact also raise the unread count and alert the user.
func (a *Aggregator) RecordMessage(contactID string, msg MessageInput, isSelf bool) {
	state := a.recordLastMessage(contactID, msg, isSelf)
	a.publishContact(state)
	if isSelf {
		return
	}

	sender := lo.Ternary(msg.SenderName != "", msg.SenderName, "Someone")
	text := lo.Ternary(msg.Text != "", msg.Text, "New message")

	a.play(sound.KindMessage)
	a.showNotification(sender, messagePreview(text), msg.SenderAvatar, "message-"+contactID)
	a.showToast(ToastMessage, sender, text, msg.SenderAvatar, map[string]*Intent{
		ActionReply: {Type: IntentOpenChat, ContactID: contactID},
	})
}

func (a *Aggregator) recordLastMessage(contactID string, msg MessageInput, isSelf bool) *models.ContactPresenceState {
	ts := msg.Timestamp
	if ts.IsZero() {
		ts = a.clock.Now()
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	c := a.contact(contactID)
	c.LastMessage = &models.LastMessage{
		Text:         msg.Text,
		Timestamp:    ts.UTC(),
		SenderName:   msg.SenderName,
		SenderIsSelf: isSelf,
	}
	if !isSelf {
		c.UnreadCount++
	}
	return copyState(c)
}

func (a *Aggregator) MarkAsRead(contactID string) {
	a.mu.Lock()
	c, ok := a.contacts[contactID]
	if !ok || c.UnreadCount == 0 {
		a.mu.Unlock()
		return
	}
	c.UnreadCount = 0
	state := copyState(c)
	a.mu.Unlock()

	a.publishContact(state)
}

func (a *Aggregator) MarkAllAsRead() {
	a.mu.Lock()
	var changed []*models.ContactPresenceState
	for _, c := range a.contacts {
		if c.UnreadCount > 0 {
			c.UnreadCount = 0
			changed = append(changed, copyState(c))
		}
	}
	a.mu.Unlock()

	for _, state := range changed {
		a.publishContact(state)
	}
}

// SetTyping updates the contact's typing flag. A start that is not followed
// by a stop within the typing timeout clears itself.
func (a *Aggregator) SetTyping(contactID string, typing bool) {
	a.mu.Lock()
	c := a.contact(contactID)
	was := c.IsTyping
	c.IsTyping = typing
	if typing {
		a.timers.schedule(typingTimerKey(contactID), a.opts.TypingTimeout, func() { a.clearTyping(contactID) })
	} else {
		a.timers.cancel(typingTimerKey(contactID))
	}
	state := copyState(c)
	a.mu.Unlock()

	if was == typing {
		return
	}
	a.publishContact(state)
	if typing {
		a.play(sound.KindTyping)
	}
}

func (a *Aggregator) clearTyping(contactID string) {
	a.mu.Lock()
	c, ok := a.contacts[contactID]
	if !ok || !c.IsTyping {
		a.mu.Unlock()
		return
	}
	c.IsTyping = false
	state := copyState(c)
	a.mu.Unlock()

	a.logger.Debug("Typing indicator timed out", "contact_id", contactID)
	a.publishContact(state)
}

// SyncOnlinePresence applies a friends-list snapshot. It is trusted over any
// live presence event observed before it.
func (a *Aggregator) SyncOnlinePresence(friends []models.Friend) {
	now := a.clock.Now()

	a.mu.Lock()
	var changed []*models.ContactPresenceState
	for _, f := range friends {
		if f.ID == "" {
			continue
		}
		c := a.contact(f.ID)
		was := c.IsOnline
		c.IsOnline = f.IsOnline
		c.OnlineAt = now
		c.SnapshotAt = now
		if was != f.IsOnline {
			changed = append(changed, copyState(c))
		}
	}
	a.mu.Unlock()

	a.logger.Debug("Synced online status from friends list", "friends", len(friends), "changed", len(changed))
	for _, state := range changed {
		a.publishContact(state)
	}
}

// SetOnline applies a live presence event for one contact. Events observed
// before the contact's last snapshot are stale and dropped.
func (a *Aggregator) SetOnline(contactID string, online bool, observedAt time.Time) {
	if observedAt.IsZero() {
		observedAt = a.clock.Now()
	}

	a.mu.Lock()
	c := a.contact(contactID)
	if observedAt.Before(c.SnapshotAt) {
		a.mu.Unlock()
		a.logger.Debug("Dropping stale presence event", "contact_id", contactID, "observed_at", observedAt)
		return
	}
	was := c.IsOnline
	c.IsOnline = online
	c.OnlineAt = observedAt
	state := copyState(c)
	a.mu.Unlock()

	if was != online {
		a.publishContact(state)
	}
}

// StartActiveCall tracks a call with contactID until it ends or the call TTL
// passes. Starting the call already tracked is a no-op; a different call id
// replaces the record.
func (a *Aggregator) StartActiveCall(contactID, callID, callURL string) {
	if callID == "" {
		a.logger.Warn("Ignoring call without an id", "contact_id", contactID)
		return
	}
	call := models.ActiveCall{CallID: callID, CallURL: callURL, StartedAt: a.clock.Now().UTC()}

	state, started := a.trackCall(contactID, call, a.opts.CallTTL)
	if !started {
		return
	}
	a.logger.Info("Started active call tracking", "contact_id", contactID, "call_id", callID)

	ctx, cancel := a.cacheContext()
	defer cancel()
	if err := a.calls.SaveActiveCall(ctx, contactID, call); err != nil {
		a.logger.Warn("Failed to persist active call", "contact_id", contactID, "error", err)
	}
	a.publishContact(state)
}

func (a *Aggregator) trackCall(contactID string, call models.ActiveCall, ttl time.Duration) (*models.ContactPresenceState, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	c := a.contact(contactID)
	if c.ActiveCall != nil && c.ActiveCall.CallID == call.CallID {
		return nil, false
	}
	c.ActiveCall = &call
	callID := call.CallID
	a.timers.schedule(callTimerKey(contactID), ttl, func() { a.expireCall(contactID, callID) })
	return copyState(c), true
}

// EndActiveCall stops tracking the call with contactID. Ending a call that is
// not tracked is a no-op.
func (a *Aggregator) EndActiveCall(contactID string) {
	a.endCall(contactID, "")
}

// endCall clears contactID's call unless both callID and the tracked id are
// set and differ, which means callID belongs to an earlier call.
func (a *Aggregator) endCall(contactID, callID string) {
	a.mu.Lock()
	var state *models.ContactPresenceState
	if c, ok := a.contacts[contactID]; ok && c.ActiveCall != nil {
		if active := c.ActiveCall.CallID; callID != "" && active != "" && active != callID {
			a.mu.Unlock()
			a.logger.Debug("Ignoring end of an earlier call", "contact_id", contactID,
				"call_id", callID, "active_call_id", active)
			return
		}
		c.ActiveCall = nil
		state = copyState(c)
	}
	a.timers.cancel(callTimerKey(contactID))
	a.mu.Unlock()

	a.forgetCall(contactID)
	if state != nil {
		a.logger.Info("Ended active call tracking", "contact_id", contactID)
		a.publishContact(state)
	}
}

func (a *Aggregator) expireCall(contactID, callID string) {
	a.mu.Lock()
	c, ok := a.contacts[contactID]
	if !ok || c.ActiveCall == nil || c.ActiveCall.CallID != callID {
		a.mu.Unlock()
		return
	}
	c.ActiveCall = nil
	state := copyState(c)
	a.mu.Unlock()

	a.forgetCall(contactID)
	a.logger.Info("Active call expired", "contact_id", contactID, "call_id", callID)
	a.publishContact(state)
}

func (a *Aggregator) forgetCall(contactID string) {
	ctx, cancel := a.cacheContext()
	defer cancel()
	if err := a.calls.DeleteActiveCall(ctx, contactID); err != nil {
		a.logger.Warn("Failed to remove persisted call", "contact_id", contactID, "error", err)
	}
}

// Restore re-tracks calls persisted by an earlier session that are still
// within the call TTL and removes the rest.
func (a *Aggregator) Restore(ctx context.Context) error {
	calls, err := a.calls.ActiveCalls(ctx)
	if err != nil {
		return fmt.Errorf("load persisted calls: %w", err)
	}

	now := a.clock.Now()
	for contactID, call := range calls {
		remaining := call.StartedAt.Add(a.opts.CallTTL).Sub(now)
		if remaining <= 0 {
			if err := a.calls.DeleteActiveCall(ctx, contactID); err != nil {
				a.logger.Warn("Failed to remove expired call", "contact_id", contactID, "error", err)
			}
			a.logger.Debug("Removed expired persisted call", "contact_id", contactID, "call_id", call.CallID)
			continue
		}
		if state, ok := a.trackCall(contactID, call, remaining); ok {
			a.logger.Info("Restored active call", "contact_id", contactID, "call_id", call.CallID, "remaining", remaining)
			a.publishContact(state)
		}
	}
	return nil
}

// Reset cancels every pending timer and forgets all contact state.
func (a *Aggregator) Reset() {
	a.timers.cancelAll()

	a.mu.Lock()
	a.contacts = make(map[string]*models.ContactPresenceState)
	a.toasts = make(map[string]Toast)
	a.selfID = ""
	a.permissionRequested = false
	a.onFriendAccepted = nil
	a.mu.Unlock()

	a.bus.publish(UIEvent{Type: UIReset})
}

func (a *Aggregator) UnreadCount(contactID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if c, ok := a.contacts[contactID]; ok {
		return c.UnreadCount
	}
	return 0
}

func (a *Aggregator) TotalUnreadCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return lo.SumBy(lo.Values(a.contacts), func(c *models.ContactPresenceState) int { return c.UnreadCount })
}

func (a *Aggregator) LastMessage(contactID string) *models.LastMessage {
	a.mu.Lock()
	defer a.mu.Unlock()
	if c, ok := a.contacts[contactID]; ok && c.LastMessage != nil {
		lm := *c.LastMessage
		return &lm
	}
	return nil
}

func (a *Aggregator) IsTyping(contactID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	c, ok := a.contacts[contactID]
	return ok && c.IsTyping
}

func (a *Aggregator) IsOnline(contactID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	c, ok := a.contacts[contactID]
	return ok && c.IsOnline
}

func (a *Aggregator) ActiveCall(contactID string) *models.ActiveCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	if c, ok := a.contacts[contactID]; ok && c.ActiveCall != nil {
		ac := *c.ActiveCall
		return &ac
	}
	return nil
}

func (a *Aggregator) IsCallActive(contactID string) bool {
	return a.ActiveCall(contactID) != nil
}

// Snapshot returns a copy of one contact's state.
func (a *Aggregator) Snapshot(contactID string) models.ContactPresenceState {
	a.mu.Lock()
	defer a.mu.Unlock()
	if c, ok := a.contacts[contactID]; ok {
		return *copyState(c)
	}
	return models.ContactPresenceState{ContactID: contactID}
}

// Contacts returns a copy of every tracked contact, ordered by id.
func (a *Aggregator) Contacts() []models.ContactPresenceState {
	a.mu.Lock()
	out := lo.MapToSlice(a.contacts, func(_ string, c *models.ContactPresenceState) models.ContactPresenceState {
		return *copyState(c)
	})
	a.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ContactID < out[j].ContactID })
	return out
}

// RequestNotificationPermission asks for platform notification permission
// once per session and greets the user on a fresh grant.
func (a *Aggregator) RequestNotificationPermission(ctx context.Context) {
	a.mu.Lock()
	if a.permissionRequested {
		a.mu.Unlock()
		return
	}
	a.permissionRequested = true
	a.mu.Unlock()

	if a.notifier.Permission() != PermissionDefault {
		return
	}
	perm, err := a.notifier.RequestPermission(ctx)
	if err != nil {
		a.logger.Warn("Notification permission request failed", "error", err)
		return
	}
	a.logger.Info("Notification permission", "permission", perm)
	if perm == PermissionGranted {
		a.showNotification("Chhavinity Notifications Enabled! 🎉", "You'll now receive real-time message notifications", "", "welcome")
	}
}

func (a *Aggregator) play(kind sound.Kind) {
	a.player.Play(sound.RecipeFor(kind))
}

func (a *Aggregator) showNotification(title, body, icon, tag string) {
	if a.notifier.Permission() != PermissionGranted {
		return
	}
	n := Notification{
		Title:     title,
		Body:      notificationBody(body),
		Icon:      lo.Ternary(icon != "", icon, a.opts.DefaultIcon),
		Tag:       tag,
		AutoClose: notificationAutoClose,
	}
	if err := a.notifier.Show(n); err != nil {
		a.logger.Warn("Error showing notification", "tag", tag, "error", err)
	}
}

func (a *Aggregator) showToast(kind ToastKind, title, body, avatar string, intents map[string]*Intent) Toast {
	t := newToast(uuid.New().String(), kind, title, body, avatar, intents)

	a.mu.Lock()
	a.toasts[t.ID] = t
	a.timers.schedule(toastTimerKey(t.ID), t.Duration, func() { a.dismissToast(t.ID) })
	a.mu.Unlock()

	a.bus.publish(UIEvent{Type: UIToast, Toast: &t})
	return t
}

func (a *Aggregator) dismissToast(id string) {
	a.mu.Lock()
	_, ok := a.toasts[id]
	delete(a.toasts, id)
	a.timers.cancel(toastTimerKey(id))
	a.mu.Unlock()

	if ok {
		a.bus.publish(UIEvent{Type: UIToastDismissed, ToastID: id})
	}
}

// InvokeToastAction runs a toast button: the bound intent is emitted and the
// toast dismissed. Unknown toasts or actions are ignored.
func (a *Aggregator) InvokeToastAction(toastID, actionID string) bool {
	a.mu.Lock()
	t, ok := a.toasts[toastID]
	a.mu.Unlock()
	if !ok {
		return false
	}
	action, ok := t.action(actionID)
	if !ok {
		return false
	}

	a.dismissToast(toastID)
	if action.Intent != nil {
		intent := *action.Intent
		a.bus.publish(UIEvent{Type: UIIntent, Intent: &intent})
	}
	return true
}

// PendingToasts reports the toasts still on screen.
func (a *Aggregator) PendingToasts() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.toasts)
}
