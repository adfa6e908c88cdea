package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/msniranjan18/chhavinity/pkg/activity"
	"github.com/msniranjan18/chhavinity/pkg/localstore"
	"github.com/msniranjan18/chhavinity/pkg/models"
	"github.com/msniranjan18/chhavinity/pkg/notify"
	"github.com/msniranjan18/chhavinity/pkg/presence"
	"github.com/msniranjan18/chhavinity/pkg/sound"
	"github.com/msniranjan18/chhavinity/pkg/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAccount struct {
	mu      sync.Mutex
	status  []bool
	friends []models.Friend
}

func (f *fakeAccount) SetOnlineStatus(_ context.Context, online bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = append(f.status, online)
	return nil
}

func (f *fakeAccount) TouchLastSeen(context.Context) error { return nil }

func (f *fakeAccount) GetFriends(context.Context) ([]models.Friend, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Friend(nil), f.friends...), nil
}

func (f *fakeAccount) statusCalls() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.status...)
}

type sent struct {
	channelID string
	msg       transport.OutgoingMessage
}

type fakeTransport struct {
	*transport.Dispatcher

	mu      sync.Mutex
	watched []string
	sent    []sent
	sendErr error
}

func (f *fakeTransport) Watch(_ context.Context, channelID string, _ []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.watched = append(f.watched, channelID)
	return nil
}

func (f *fakeTransport) SendMessage(_ context.Context, channelID string, msg transport.OutgoingMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sent{channelID: channelID, msg: msg})
	return nil
}

func (f *fakeTransport) lastSent() sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[len(f.sent)-1]
}

type fixture struct {
	sess      *Session
	clk       *clock.Mock
	account   *fakeAccount
	transport *fakeTransport
	store     *localstore.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clk := clock.NewMock()

	store, err := localstore.Open(filepath.Join(t.TempDir(), "local.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	f := &fixture{
		clk:       clk,
		account:   &fakeAccount{friends: []models.Friend{{ID: "bob", IsOnline: true}, {ID: "cat"}}},
		transport: &fakeTransport{Dispatcher: transport.NewDispatcher(logger)},
		store:     store,
	}
	opts := Options{
		Origin:          "https://chhavinity.app/",
		ActivityWindow:  time.Minute,
		SettleDelay:     time.Second,
		RefreshInterval: 30 * time.Second,
		DedupeSize:      32,
		Presence:        presence.DefaultOptions(),
		Notify:          notify.DefaultOptions(),
	}
	f.sess = New(opts, Deps{
		Clock:     clk,
		Account:   f.account,
		Transport: f.transport,
		Input:     activity.NewInputBus(),
		Notifier:  notify.NopNotifier{},
		Player:    sound.Nop,
		Store:     store,
	}, logger)
	return f
}

func (f *fixture) login(t *testing.T) {
	t.Helper()
	require.NoError(t, f.sess.Login(context.Background(), models.User{ID: "amy", FullName: "Amy"}))
	// advance past the settle delay until the bootstrap has run
	require.Eventually(t, func() bool {
		f.clk.Add(time.Second)
		return len(f.sess.bootstrapper.Watched()) == 2 && f.sess.Aggregator().IsOnline("bob")
	}, 2*time.Second, 5*time.Millisecond)
}

func TestLoginBootstrapsAndLogoutTearsDown(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	assert.Equal(t, []bool{true}, f.account.statusCalls())
	assert.Equal(t, []string{"amy-bob", "amy-cat"}, f.sess.bootstrapper.Watched())
	assert.True(t, f.sess.Aggregator().IsOnline("bob"))
	assert.Equal(t, 1, f.transport.HandlerCount(transport.EventMessageNew))

	// a second login changes nothing
	require.NoError(t, f.sess.Login(context.Background(), models.User{ID: "amy"}))
	assert.Equal(t, 1, f.transport.HandlerCount(transport.EventMessageNew))

	f.transport.Emit(transport.Event{
		Type:    transport.EventMessageNew,
		Message: &transport.Message{ID: "m1", Text: "hello", User: transport.User{ID: "bob", Name: "Bob"}},
	})
	assert.Equal(t, 1, f.sess.Aggregator().UnreadCount("bob"))

	require.NoError(t, f.sess.Logout(context.Background()))
	assert.Equal(t, []bool{true, false}, f.account.statusCalls())
	assert.Zero(t, f.transport.HandlerCount(transport.EventMessageNew))
	assert.Empty(t, f.sess.bootstrapper.Watched())
	assert.Empty(t, f.sess.Aggregator().Contacts())
	_, ok := f.sess.User()
	assert.False(t, ok)

	require.NoError(t, f.sess.Logout(context.Background()))
	assert.Len(t, f.account.statusCalls(), 2)
}

func TestLoginLogoutCycles(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		f.login(t)
		require.NoError(t, f.sess.Logout(context.Background()))
	}
	assert.Equal(t, []bool{true, false, true, false, true, false}, f.account.statusCalls())
	assert.Zero(t, f.transport.HandlerCount(transport.EventTypingStart))
}

func TestStartAndEndCall(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	t.Cleanup(func() { f.sess.Logout(context.Background()) })
	ctx := context.Background()

	call, err := f.sess.StartCall(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "https://chhavinity.app/call/"+call.CallID+"?popup=true", call.CallURL)
	assert.True(t, f.sess.Aggregator().IsCallActive("amy"))

	invite := f.transport.lastSent()
	assert.Equal(t, "amy-bob", invite.channelID)
	assert.Equal(t, "video_call", invite.msg.Custom["type"])
	assert.Equal(t, call.CallID, invite.msg.Custom["callId"])
	assert.Contains(t, invite.msg.Text, "📹")

	require.NoError(t, f.sess.EndCall(ctx, "bob", call.CallID))
	ended := f.transport.lastSent()
	assert.Equal(t, "call_ended", ended.msg.Custom["type"])
	assert.Equal(t, "📞 Amy ended the video call", ended.msg.Text)
	assert.False(t, f.sess.Aggregator().IsCallActive("amy"))
}

func TestStartCallFailure(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	t.Cleanup(func() { f.sess.Logout(context.Background()) })
	f.transport.sendErr = errors.New("not connected")

	_, err := f.sess.StartCall(context.Background(), "bob")
	require.Error(t, err)
	assert.False(t, f.sess.Aggregator().IsCallActive("amy"))
}

func TestOperationsRequireLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.sess.StartCall(ctx, "bob")
	assert.ErrorIs(t, err, ErrNotLoggedIn)
	assert.ErrorIs(t, f.sess.EndCall(ctx, "bob", "c"), ErrNotLoggedIn)
	assert.ErrorIs(t, f.sess.FriendAdded(ctx, "bob"), ErrNotLoggedIn)
	assert.ErrorIs(t, f.sess.SendMessage(ctx, "bob", "hi"), ErrNotLoggedIn)
}

func TestSendMessageRecordsOwnMessage(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	t.Cleanup(func() { f.sess.Logout(context.Background()) })

	require.NoError(t, f.sess.SendMessage(context.Background(), "bob", "on my way"))

	lm := f.sess.Aggregator().LastMessage("bob")
	require.NotNil(t, lm)
	assert.True(t, lm.SenderIsSelf)
	assert.Zero(t, f.sess.Aggregator().UnreadCount("bob"))
}

func TestFriendAddedAndInstallPrompt(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	t.Cleanup(func() { f.sess.Logout(context.Background()) })
	ctx := context.Background()

	require.NoError(t, f.sess.FriendAdded(ctx, "dan"))
	assert.Contains(t, f.sess.bootstrapper.Watched(), "amy-dan")

	dismissed, err := f.sess.InstallPromptDismissed(ctx)
	require.NoError(t, err)
	assert.False(t, dismissed)
	require.NoError(t, f.sess.DismissInstallPrompt(ctx))
	dismissed, err = f.sess.InstallPromptDismissed(ctx)
	require.NoError(t, err)
	assert.True(t, dismissed)
}
