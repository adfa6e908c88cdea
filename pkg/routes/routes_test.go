package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/msniranjan18/chhavinity/pkg/auth"
	"github.com/msniranjan18/chhavinity/pkg/hub"
	"github.com/msniranjan18/chhavinity/pkg/models"
	"github.com/msniranjan18/chhavinity/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/msniranjan18/chhavinity/docs"
)

type userStore struct {
	mu      sync.Mutex
	users   map[string]*models.User
	friends map[string][]string
}

func newUserStore() *userStore {
	return &userStore{users: make(map[string]*models.User), friends: make(map[string][]string)}
}

func (s *userStore) CreateUser(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u.ID = "id-" + u.Username
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *userStore) GetUserByID(_ context.Context, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, store.ErrUserNotFound
}

func (s *userStore) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.GetUserByID(ctx, "id-"+username)
}

func (s *userStore) SetOnlineStatus(_ context.Context, id string, online bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return store.ErrUserNotFound
	}
	u.IsOnline = online
	return nil
}

func (s *userStore) TouchLastSeen(ctx context.Context, id string) error {
	return s.SetOnlineStatus(ctx, id, true)
}

func (s *userStore) GetFriends(_ context.Context, id string) ([]models.Friend, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	friends := []models.Friend{}
	for _, fid := range s.friends[id] {
		u := s.users[fid]
		friends = append(friends, models.Friend{ID: u.ID, Username: u.Username, FullName: u.FullName, IsOnline: u.IsOnline})
	}
	return friends, nil
}

func (s *userStore) AddFriend(_ context.Context, id, friendID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.friends[id] = append(s.friends[id], friendID)
	s.friends[friendID] = append(s.friends[friendID], id)
	return nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	auth.InitJWT("routes-secret", time.Hour)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := httptest.NewServer(NewRouter(hub.NewHub(nil, logger), newUserStore(), "http://app.local", logger))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, token string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, r)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func register(t *testing.T, base, username string) models.AuthResponse {
	t.Helper()
	resp := do(t, http.MethodPost, base+"/api/auth/register", "", models.AuthRequest{Username: username, FullName: username})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out models.AuthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)
	resp := do(t, http.MethodGet, srv.URL+"/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPIRequiresToken(t *testing.T) {
	srv := newTestServer(t)
	for _, path := range []string{"/api/users/me", "/api/users/friends", "/api/auth/verify"} {
		resp := do(t, http.MethodGet, srv.URL+path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, path)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/users/friends", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://app.local")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "http://app.local", resp.Header.Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "http://evil.local")
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Empty(t, resp2.Header.Get("Access-Control-Allow-Origin"))
}

func TestSwaggerDoc(t *testing.T) {
	srv := newTestServer(t)
	resp := do(t, http.MethodGet, srv.URL+"/swagger/doc.json", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var doc struct {
		Paths map[string]any `json:"paths"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	assert.Contains(t, doc.Paths, "/api/users/last-seen")
	assert.Contains(t, doc.Paths, "/api/users/online-status")
}

func TestPresenceFlow(t *testing.T) {
	srv := newTestServer(t)
	amy := register(t, srv.URL, "amy")
	bob := register(t, srv.URL, "bob")

	resp := do(t, http.MethodPost, srv.URL+"/api/users/friends", amy.Token, models.AddFriendRequest{FriendID: bob.User.ID})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = do(t, http.MethodPut, srv.URL+"/api/users/online-status", bob.Token, models.OnlineStatusRequest{IsOnline: true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = do(t, http.MethodPut, srv.URL+"/api/users/last-seen", bob.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/api/users/friends", amy.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var friends []models.Friend
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&friends))
	require.Len(t, friends, 1)
	assert.Equal(t, bob.User.ID, friends[0].ID)
	assert.True(t, friends[0].IsOnline)

	resp = do(t, http.MethodGet, srv.URL+"/api/auth/verify", amy.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var verified map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&verified))
	assert.Equal(t, amy.User.ID, verified["user_id"])
}
