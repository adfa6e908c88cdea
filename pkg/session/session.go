// Package session ties the presence and notification components to one
// logged-in user: everything starts on Login and is torn down on Logout.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/msniranjan18/chhavinity/pkg/account"
	"github.com/msniranjan18/chhavinity/pkg/activity"
	"github.com/msniranjan18/chhavinity/pkg/listener"
	"github.com/msniranjan18/chhavinity/pkg/models"
	"github.com/msniranjan18/chhavinity/pkg/notify"
	"github.com/msniranjan18/chhavinity/pkg/presence"
	"github.com/msniranjan18/chhavinity/pkg/sound"
	"github.com/msniranjan18/chhavinity/pkg/transport"
	"github.com/msniranjan18/chhavinity/pkg/watch"
)

var ErrNotLoggedIn = errors.New("session: not logged in")

// LocalStore is the persisted state a session reads and writes.
type LocalStore interface {
	notify.CallCache
	InstallPromptDismissed(ctx context.Context) (bool, error)
	DismissInstallPrompt(ctx context.Context) error
}

type Options struct {
	// Origin is the web client's base URL; call links are built from it.
	Origin          string
	ActivityWindow  time.Duration
	SettleDelay     time.Duration
	RefreshInterval time.Duration
	DedupeSize      int
	Presence        presence.Options
	Notify          notify.Options
}

type Deps struct {
	Clock     clock.Clock
	Account   account.Service
	Transport transport.Client
	Input     activity.InputSource
	Notifier  notify.Notifier
	Player    sound.Player
	Store     LocalStore
}

type Session struct {
	opts   Options
	deps   Deps
	logger *slog.Logger

	tracker      *activity.Tracker
	publisher    *presence.Publisher
	aggregator   *notify.Aggregator
	bootstrapper *watch.Bootstrapper

	// mu is held for the whole of Login and Logout.
	mu       sync.Mutex
	self     *models.User
	listener *listener.Listener
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func New(opts Options, deps Deps, logger *slog.Logger) *Session {
	tracker := activity.NewTracker(deps.Clock, opts.ActivityWindow, logger.With("component", "activity"))
	return &Session{
		opts:         opts,
		deps:         deps,
		logger:       logger,
		tracker:      tracker,
		publisher:    presence.NewPublisher(deps.Account, tracker, deps.Clock, opts.Presence, logger.With("component", "presence")),
		aggregator:   notify.NewAggregator(deps.Clock, opts.Notify, deps.Notifier, deps.Player, deps.Store, logger.With("component", "notify")),
		bootstrapper: watch.NewBootstrapper(deps.Account, logger.With("component", "watch")),
	}
}

func (s *Session) Aggregator() *notify.Aggregator { return s.aggregator }

// Connected reports whether the transport is connected for the current login.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listener != nil && s.listener.Connected()
}

func (s *Session) User() (models.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.self == nil {
		return models.User{}, false
	}
	return *s.self, true
}

// Login starts every component for self. Logging in twice is a no-op.
func (s *Session) Login(ctx context.Context, self models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return nil
	}
	l, err := listener.New(self.ID, s.opts.Origin, s.aggregator, s.opts.DedupeSize, s.logger.With("component", "listener"))
	if err != nil {
		return fmt.Errorf("create listener: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.self = &self
	s.listener = l
	s.cancel = cancel

	s.aggregator.SetSelf(self.ID)
	s.aggregator.OnFriendAccepted(func(e models.FriendAccepted) {
		if err := s.bootstrapper.WatchNewChannel(runCtx, s.deps.Transport, self.ID, e.FriendID); err != nil {
			s.logger.Warn("Failed to watch new friend channel", "friend_id", e.FriendID, "error", err)
		}
	})
	if err := s.aggregator.Restore(ctx); err != nil {
		s.logger.Warn("Failed to restore active calls", "error", err)
	}

	s.tracker.Start(s.deps.Input)
	l.Attach(s.deps.Transport)
	s.publisher.Start(runCtx)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.aggregator.RequestNotificationPermission(runCtx)
	}()
	go func() {
		defer s.wg.Done()
		s.run(runCtx, self.ID)
	}()

	s.logger.Info("Session started", "user_id", self.ID)
	return nil
}

// Logout stops every component and clears all per-user state. The returned
// error is from the final offline call; teardown always completes.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}
	s.cancel()
	s.wg.Wait()

	s.listener.Detach()
	err := s.publisher.Stop(ctx)
	s.tracker.Stop()
	s.bootstrapper.Reset()
	s.aggregator.Reset()

	s.logger.Info("Session ended", "user_id", s.self.ID)
	s.cancel = nil
	s.listener = nil
	s.self = nil
	return err
}

// run watches every friend channel once the transport has settled, then
// refreshes the friends list on an interval.
func (s *Session) run(ctx context.Context, selfID string) {
	select {
	case <-ctx.Done():
		return
	case <-s.deps.Clock.After(s.opts.SettleDelay):
	}

	ticker := s.deps.Clock.Ticker(s.opts.RefreshInterval)
	defer ticker.Stop()

	s.refresh(ctx, selfID)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refresh(ctx, selfID)
		}
	}
}

func (s *Session) refresh(ctx context.Context, selfID string) {
	if !s.bootstrapper.Initialized() {
		if err := s.bootstrapper.Initialize(ctx, s.deps.Transport, selfID); err != nil {
			s.logger.Warn("Error initializing channel watching", "error", err)
		}
	}

	friends, err := s.deps.Account.GetFriends(ctx)
	if err != nil {
		s.logger.Warn("Failed to refresh friends", "error", err)
		return
	}
	s.aggregator.SyncOnlinePresence(friends)
	for _, f := range friends {
		if err := s.bootstrapper.WatchNewChannel(ctx, s.deps.Transport, selfID, f.ID); err != nil {
			s.logger.Warn("Error watching friend channel", "friend_id", f.ID, "error", err)
		}
	}
}

// SendMessage sends text to friendID and records it as the user's own last
// message.
func (s *Session) SendMessage(ctx context.Context, friendID, text string) error {
	self, ok := s.User()
	if !ok {
		return ErrNotLoggedIn
	}
	channelID := watch.ChannelID(self.ID, friendID)
	if err := s.deps.Transport.SendMessage(ctx, channelID, transport.OutgoingMessage{Text: text}); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	s.aggregator.RecordMessage(friendID, notify.MessageInput{
		Text:       text,
		Timestamp:  s.deps.Clock.Now(),
		SenderName: self.FullName,
	}, true)
	return nil
}

// CallURL is the link a friend opens to join callID.
func (s *Session) CallURL(callID string) string {
	return fmt.Sprintf("%s/call/%s?popup=true", strings.TrimRight(s.opts.Origin, "/"), callID)
}

// StartCall invites friendID to a new video call and tracks it as the user's
// own active call.
func (s *Session) StartCall(ctx context.Context, friendID string) (models.ActiveCall, error) {
	self, ok := s.User()
	if !ok {
		return models.ActiveCall{}, ErrNotLoggedIn
	}

	callID := uuid.New().String()
	callURL := s.CallURL(callID)
	channelID := watch.ChannelID(self.ID, friendID)

	if err := s.bootstrapper.WatchFriendChannel(ctx, s.deps.Transport, self.ID, friendID); err != nil {
		s.logger.Warn("Error watching channel before call", "channel_id", channelID, "error", err)
	}
	msg := transport.OutgoingMessage{
		Text: fmt.Sprintf("📹 %s started a video call. Join here: %s", self.FullName, callURL),
		Custom: map[string]any{
			"type":    "video_call",
			"callId":  callID,
			"callUrl": callURL,
		},
	}
	if err := s.deps.Transport.SendMessage(ctx, channelID, msg); err != nil {
		s.aggregator.NotifyError("Could not start the video call")
		return models.ActiveCall{}, fmt.Errorf("send call invite: %w", err)
	}

	s.aggregator.StartActiveCall(self.ID, callID, callURL)
	s.logger.Info("Video call started", "friend_id", friendID, "call_id", callID)
	return models.ActiveCall{CallID: callID, CallURL: callURL, StartedAt: s.deps.Clock.Now().UTC()}, nil
}

// EndCall tells friendID the call is over and stops tracking it on both
// sides. Local tracking ends even when the message cannot be sent.
func (s *Session) EndCall(ctx context.Context, friendID, callID string) error {
	self, ok := s.User()
	if !ok {
		return ErrNotLoggedIn
	}

	msg := transport.OutgoingMessage{
		Text: fmt.Sprintf("📞 %s ended the video call", self.FullName),
		Custom: map[string]any{
			"type":        "call_ended",
			"callId":      callID,
			"endedBy":     self.ID,
			"endedByName": self.FullName,
			"endedAt":     s.deps.Clock.Now().UTC().Format(time.RFC3339),
		},
	}
	err := s.deps.Transport.SendMessage(ctx, watch.ChannelID(self.ID, friendID), msg)

	s.aggregator.EndActiveCall(self.ID)
	s.aggregator.EndActiveCall(friendID)
	if err != nil {
		return fmt.Errorf("send call ended: %w", err)
	}
	return nil
}

// FriendAdded watches the channel of a friend added during this session.
func (s *Session) FriendAdded(ctx context.Context, friendID string) error {
	self, ok := s.User()
	if !ok {
		return ErrNotLoggedIn
	}
	return s.bootstrapper.WatchNewChannel(ctx, s.deps.Transport, self.ID, friendID)
}

func (s *Session) InstallPromptDismissed(ctx context.Context) (bool, error) {
	return s.deps.Store.InstallPromptDismissed(ctx)
}

func (s *Session) DismissInstallPrompt(ctx context.Context) error {
	return s.deps.Store.DismissInstallPrompt(ctx)
}
