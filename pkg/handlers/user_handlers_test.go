package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/msniranjan18/chhavinity/pkg/auth"
	"github.com/msniranjan18/chhavinity/pkg/models"
	"github.com/msniranjan18/chhavinity/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore keeps users, friendships and live presence in memory.
type memStore struct {
	mu        sync.Mutex
	users     map[string]*models.User
	friends   map[string][]string
	live      map[string]bool
	touches   int
	failWrite error
}

func newMemStore() *memStore {
	return &memStore{
		users:   make(map[string]*models.User),
		friends: make(map[string][]string),
		live:    make(map[string]bool),
	}
}

func (m *memStore) CreateUser(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u.ID = "id-" + u.Username
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memStore) GetUserByID(_ context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, store.ErrUserNotFound
}

func (m *memStore) SetOnlineStatus(_ context.Context, id string, online bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrite != nil {
		return m.failWrite
	}
	u, ok := m.users[id]
	if !ok {
		return store.ErrUserNotFound
	}
	u.IsOnline = online
	m.live[id] = online
	if !online {
		u.LastSeen = time.Now()
	}
	return nil
}

func (m *memStore) TouchLastSeen(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return store.ErrUserNotFound
	}
	m.users[id].IsOnline = true
	m.live[id] = true
	m.touches++
	return nil
}

func (m *memStore) GetFriends(_ context.Context, id string) ([]models.Friend, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	friends := []models.Friend{}
	for _, fid := range m.friends[id] {
		u := m.users[fid]
		friends = append(friends, models.Friend{ID: u.ID, FullName: u.FullName, IsOnline: u.IsOnline && m.live[fid]})
	}
	return friends, nil
}

func (m *memStore) AddFriend(_ context.Context, id, friendID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.friends[id] = append(m.friends[id], friendID)
	m.friends[friendID] = append(m.friends[friendID], id)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func authed(method, target, userID, body string) *http.Request {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	return req.WithContext(auth.WithUserID(req.Context(), userID))
}

func seeded(t *testing.T) *memStore {
	t.Helper()
	s := newMemStore()
	ctx := context.Background()
	for _, name := range []string{"amy", "bob", "cat"} {
		require.NoError(t, s.CreateUser(ctx, &models.User{Username: name, FullName: strings.ToUpper(name[:1]) + name[1:]}))
	}
	require.NoError(t, s.AddFriend(ctx, "id-amy", "id-bob"))
	require.NoError(t, s.AddFriend(ctx, "id-amy", "id-cat"))
	return s
}

func TestOnlineStatusAndFriends(t *testing.T) {
	s := seeded(t)
	h := NewUserHandler(s, discardLogger())

	rec := httptest.NewRecorder()
	h.UpdateOnlineStatus(rec, authed(http.MethodPut, "/api/users/online-status", "id-bob", `{"isOnline":true}`))
	require.Equal(t, http.StatusOK, rec.Code)
	var status models.StatusResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.True(t, status.Success)

	rec = httptest.NewRecorder()
	h.GetFriends(rec, authed(http.MethodGet, "/api/users/friends", "id-amy", ""))
	require.Equal(t, http.StatusOK, rec.Code)
	var friends []models.Friend
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&friends))
	require.Len(t, friends, 2)
	online := map[string]bool{}
	for _, f := range friends {
		online[f.ID] = f.IsOnline
	}
	assert.Equal(t, map[string]bool{"id-bob": true, "id-cat": false}, online)

	rec = httptest.NewRecorder()
	h.UpdateOnlineStatus(rec, authed(http.MethodPut, "/api/users/online-status", "id-bob", `{"isOnline":false}`))
	require.Equal(t, http.StatusOK, rec.Code)
	bob, err := s.GetUserByID(context.Background(), "id-bob")
	require.NoError(t, err)
	assert.False(t, bob.IsOnline)
	assert.False(t, bob.LastSeen.IsZero())
}

func TestTouchLastSeen(t *testing.T) {
	s := seeded(t)
	h := NewUserHandler(s, discardLogger())

	rec := httptest.NewRecorder()
	h.TouchLastSeen(rec, authed(http.MethodPut, "/api/users/last-seen", "id-amy", ""))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, s.touches)

	rec = httptest.NewRecorder()
	h.TouchLastSeen(rec, authed(http.MethodPut, "/api/users/last-seen", "id-ghost", ""))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUserHandlerErrors(t *testing.T) {
	s := seeded(t)
	h := NewUserHandler(s, discardLogger())

	rec := httptest.NewRecorder()
	h.GetFriends(rec, httptest.NewRequest(http.MethodGet, "/api/users/friends", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	h.UpdateOnlineStatus(rec, authed(http.MethodPut, "/api/users/online-status", "id-amy", `{bad`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	s.failWrite = errors.New("db down")
	rec = httptest.NewRecorder()
	h.UpdateOnlineStatus(rec, authed(http.MethodPut, "/api/users/online-status", "id-amy", `{"isOnline":true}`))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestAddFriend(t *testing.T) {
	s := seeded(t)
	require.NoError(t, s.CreateUser(context.Background(), &models.User{Username: "dan", FullName: "Dan"}))
	h := NewUserHandler(s, discardLogger())

	rec := httptest.NewRecorder()
	h.AddFriend(rec, authed(http.MethodPost, "/api/users/friends", "id-amy", `{"friendId":"id-dan"}`))
	assert.Equal(t, http.StatusCreated, rec.Code)

	friends, err := s.GetFriends(context.Background(), "id-dan")
	require.NoError(t, err)
	require.Len(t, friends, 1)
	assert.Equal(t, "id-amy", friends[0].ID)

	rec = httptest.NewRecorder()
	h.AddFriend(rec, authed(http.MethodPost, "/api/users/friends", "id-amy", `{"friendId":"id-amy"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.AddFriend(rec, authed(http.MethodPost, "/api/users/friends", "id-amy", `{"friendId":"id-ghost"}`))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRegisterAndLogin(t *testing.T) {
	auth.InitJWT("test-secret", time.Hour)
	s := newMemStore()
	h := NewAuthHandler(s, discardLogger())

	rec := httptest.NewRecorder()
	h.Register(rec, httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(`{"username":" Amy ","fullName":"Amy Pond"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.AuthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "amy", resp.User.Username)

	claims, err := auth.ValidateJWT(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, claims.UserID)

	// registering again signs the same user in
	rec = httptest.NewRecorder()
	h.Register(rec, httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(`{"username":"amy","fullName":"Amy"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	var again models.AuthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&again))
	assert.Equal(t, resp.User.ID, again.User.ID)

	rec = httptest.NewRecorder()
	h.Login(rec, httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"username":"nobody"}`)))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.Register(rec, httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(`{"username":""}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
