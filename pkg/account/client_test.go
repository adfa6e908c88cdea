package account

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/msniranjan18/chhavinity/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSetOnlineStatus(t *testing.T) {
	var got models.OnlineStatusRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/users/online-status", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "tok", time.Second, testLogger())
	require.NoError(t, c.SetOnlineStatus(context.Background(), true))
	assert.True(t, got.IsOnline)
}

func TestTouchLastSeen(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/api/users/last-seen", r.URL.Path)
		assert.Equal(t, http.MethodPut, r.Method)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", time.Second, testLogger())
	require.NoError(t, c.TouchLastSeen(context.Background()))
	assert.Equal(t, 1, calls)
}

func TestGetFriends(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"_id":"u2","fullName":"Ravi","isOnline":true},{"_id":"u3","fullName":"Meera","isOnline":false}]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", time.Second, testLogger())
	friends, err := c.GetFriends(context.Background())
	require.NoError(t, err)
	require.Len(t, friends, 2)
	assert.Equal(t, "u2", friends[0].ID)
	assert.True(t, friends[0].IsOnline)
	assert.False(t, friends[1].IsOnline)
}

func TestErrorStatuses(t *testing.T) {
	status := http.StatusUnauthorized
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", status)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second, testLogger())
	assert.ErrorIs(t, c.TouchLastSeen(context.Background()), ErrUnauthorized)

	status = http.StatusInternalServerError
	err := c.SetOnlineStatus(context.Background(), false)
	assert.ErrorIs(t, err, ErrUnexpected)
	assert.Contains(t, err.Error(), "500")
}

func TestNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := NewClient(srv.URL, "", time.Second, testLogger())
	_, err := c.GetFriends(context.Background())
	assert.Error(t, err)
}
