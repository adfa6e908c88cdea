package hub

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/msniranjan18/chhavinity/pkg/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// relayServer upgrades /?user=<id> and registers the connection with h.
func relayServer(t *testing.T, h *Hub) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := NewClient(h, conn, userID, "s-"+userID, strings.ToUpper(userID), "")
		h.Register(client)
		go client.WritePump()
		client.ReadPump()
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func agent(t *testing.T, ctx context.Context, url, userID string) (*transport.WSClient, <-chan transport.Event) {
	t.Helper()
	c := transport.NewWSClient(url+"/?user="+userID, "", transport.DefaultWSOptions(), discardLogger())
	events := make(chan transport.Event, 16)
	c.On(transport.EventMessageNew, func(e transport.Event) { events <- e })
	c.On(transport.EventPresenceChanged, func(e transport.Event) { events <- e })
	go c.Run(ctx)
	return c, events
}

func waitFor(t *testing.T, events <-chan transport.Event, match func(transport.Event) bool) transport.Event {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case e := <-events:
			if match(e) {
				return e
			}
		case <-deadline:
			t.Fatal("expected event not received")
			return transport.Event{}
		}
	}
}

func TestHubRelaysMessagesAndPresence(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := NewHub(nil, discardLogger())
	go h.Run(ctx)
	url := relayServer(t, h)

	amyCtx, amyLeave := context.WithCancel(ctx)
	amy, _ := agent(t, amyCtx, url, "amy")
	bob, bobEvents := agent(t, ctx, url, "bob")

	// watches made before the connection is up are sent on connect
	assert.ErrorIs(t, amy.Watch(ctx, "amy-bob", nil), transport.ErrNotConnected)
	assert.ErrorIs(t, bob.Watch(ctx, "amy-bob", nil), transport.ErrNotConnected)
	require.Eventually(t, func() bool { return h.Watchers("amy-bob") == 2 }, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, amy.SendMessage(ctx, "amy-bob", transport.OutgoingMessage{Text: "hi bob"}))
	msg := waitFor(t, bobEvents, func(e transport.Event) bool { return e.Type == transport.EventMessageNew })
	require.NotNil(t, msg.Message)
	assert.Equal(t, "hi bob", msg.Message.Text)
	assert.Equal(t, "amy", msg.Message.User.ID)
	assert.Equal(t, "amy-bob", msg.ChannelID)

	amyLeave()
	left := waitFor(t, bobEvents, func(e transport.Event) bool {
		return e.Type == transport.EventPresenceChanged && !e.Online
	})
	require.NotNil(t, left.User)
	assert.Equal(t, "amy", left.User.ID)
	require.Eventually(t, func() bool { return h.Watchers("amy-bob") == 1 }, 3*time.Second, 10*time.Millisecond)
}

func TestHubRejectsNonMembers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := NewHub(nil, discardLogger())
	go h.Run(ctx)
	url := relayServer(t, h)

	amy, _ := agent(t, ctx, url, "amy")
	cat, catEvents := agent(t, ctx, url, "cat")

	amy.Watch(ctx, "amy-cat", nil)
	amy.Watch(ctx, "bob-cat", nil)
	cat.Watch(ctx, "amy-cat", nil)
	cat.Watch(ctx, "bob-cat", nil)
	require.Eventually(t, func() bool {
		return h.Watchers("amy-cat") == 2 && h.Watchers("bob-cat") == 1
	}, 3*time.Second, 10*time.Millisecond)

	// amy is not watching bob-cat, so this is dropped
	require.NoError(t, amy.SendMessage(ctx, "bob-cat", transport.OutgoingMessage{Text: "sneaky"}))
	require.NoError(t, amy.SendMessage(ctx, "amy-cat", transport.OutgoingMessage{Text: "hello"}))

	msg := waitFor(t, catEvents, func(e transport.Event) bool { return e.Type == transport.EventMessageNew })
	assert.Equal(t, "hello", msg.Message.Text)
	assert.Equal(t, 1, h.Watchers("bob-cat"))
}

func TestMayWatch(t *testing.T) {
	tests := []struct {
		name      string
		userID    string
		channelID string
		members   []string
		want      bool
	}{
		{"first party", "amy", "amy-bob", nil, true},
		{"second party", "bob", "amy-bob", nil, true},
		{"outsider", "cat", "amy-bob", nil, false},
		{"prefix is not membership", "am", "amy-bob", nil, false},
		{"listed member", "cat", "team-42", []string{"amy", "cat"}, true},
		{"unlisted member", "bob", "team-42", []string{"amy", "cat"}, false},
		{"members override id", "amy", "amy-bob", []string{"bob", "cat"}, false},
		{"empty channel", "amy", "", nil, false},
		{"empty user", "", "amy-bob", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, mayWatch(tt.userID, tt.channelID, tt.members))
		})
	}
}
