package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/msniranjan18/chhavinity/pkg/auth"
	"github.com/msniranjan18/chhavinity/pkg/models"
	"github.com/msniranjan18/chhavinity/pkg/store"
)

// UserStore is the slice of the store the account endpoints use.
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, userID string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	SetOnlineStatus(ctx context.Context, userID string, online bool) error
	TouchLastSeen(ctx context.Context, userID string) error
	GetFriends(ctx context.Context, userID string) ([]models.Friend, error)
	AddFriend(ctx context.Context, userID, friendID string) error
}

type UserHandler struct {
	store  UserStore
	logger *slog.Logger
}

func NewUserHandler(store UserStore, logger *slog.Logger) *UserHandler {
	return &UserHandler{store: store, logger: logger}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// GetCurrentUser godoc
//
//	@Summary	Current user
//	@Tags		users
//	@Produce	json
//	@Security	BearerAuth
//	@Success	200	{object}	models.User
//	@Failure	401	{string}	string	"Unauthorized"
//	@Failure	404	{string}	string	"User not found"
//	@Router		/api/users/me [get]
func (h *UserHandler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())
	if userID == "" {
		h.logger.Warn("GetCurrentUser: unauthorized request", "method", r.Method, "path", r.URL.Path)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	user, err := h.store.GetUserByID(r.Context(), userID)
	if errors.Is(err, store.ErrUserNotFound) {
		h.logger.Warn("GetCurrentUser: user not found", "user_id", userID)
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("GetCurrentUser: failed to get user", "error", err, "user_id", userID)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// UpdateOnlineStatus godoc
//
//	@Summary		Set online status
//	@Description	Going offline records last-seen and drops the presence key.
//	@Tags			presence
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			body	body		models.OnlineStatusRequest	true	"Online flag"
//	@Success		200		{object}	models.StatusResponse
//	@Failure		400		{string}	string	"Invalid request body"
//	@Failure		401		{string}	string	"Unauthorized"
//	@Router			/api/users/online-status [put]
func (h *UserHandler) UpdateOnlineStatus(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())
	if userID == "" {
		h.logger.Warn("UpdateOnlineStatus: unauthorized request", "method", r.Method, "path", r.URL.Path)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req models.OnlineStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("UpdateOnlineStatus: invalid request body", "user_id", userID, "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.store.SetOnlineStatus(r.Context(), userID, req.IsOnline); err != nil {
		h.storeError(w, "UpdateOnlineStatus", userID, err)
		return
	}

	h.logger.Info("UpdateOnlineStatus: status updated", "user_id", userID, "is_online", req.IsOnline)
	writeJSON(w, http.StatusOK, models.StatusResponse{Success: true, Message: "Online status updated"})
}

// TouchLastSeen godoc
//
//	@Summary		Presence heartbeat
//	@Description	Confirms the user is online and extends the presence key. Last-seen is not changed.
//	@Tags			presence
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	models.StatusResponse
//	@Failure		401	{string}	string	"Unauthorized"
//	@Router			/api/users/last-seen [put]
func (h *UserHandler) TouchLastSeen(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())
	if userID == "" {
		h.logger.Warn("TouchLastSeen: unauthorized request", "method", r.Method, "path", r.URL.Path)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if err := h.store.TouchLastSeen(r.Context(), userID); err != nil {
		h.storeError(w, "TouchLastSeen", userID, err)
		return
	}

	h.logger.Debug("TouchLastSeen: heartbeat recorded", "user_id", userID)
	writeJSON(w, http.StatusOK, models.StatusResponse{Success: true, Message: "Last seen updated"})
}

// GetFriends godoc
//
//	@Summary		List friends
//	@Description	isOnline is true only while the stored flag is set and the presence key is live.
//	@Tags			users
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{array}		models.Friend
//	@Failure		401	{string}	string	"Unauthorized"
//	@Router			/api/users/friends [get]
func (h *UserHandler) GetFriends(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())
	if userID == "" {
		h.logger.Warn("GetFriends: unauthorized request", "method", r.Method, "path", r.URL.Path)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	friends, err := h.store.GetFriends(r.Context(), userID)
	if err != nil {
		h.storeError(w, "GetFriends", userID, err)
		return
	}

	h.logger.Debug("GetFriends: retrieved friends", "user_id", userID, "friend_count", len(friends))
	writeJSON(w, http.StatusOK, friends)
}

// AddFriend godoc
//
//	@Summary	Add a friend
//	@Tags		users
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Param		body	body		models.AddFriendRequest	true	"Friend to add"
//	@Success	201		{object}	models.StatusResponse
//	@Failure	400		{string}	string	"Invalid request body"
//	@Failure	404		{string}	string	"User not found"
//	@Router		/api/users/friends [post]
func (h *UserHandler) AddFriend(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())
	if userID == "" {
		h.logger.Warn("AddFriend: unauthorized request", "method", r.Method, "path", r.URL.Path)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req models.AddFriendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("AddFriend: invalid request body", "user_id", userID, "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	req.FriendID = strings.TrimSpace(req.FriendID)
	if req.FriendID == "" || req.FriendID == userID {
		h.logger.Warn("AddFriend: invalid friend ID", "user_id", userID, "friend_id", req.FriendID)
		http.Error(w, "Invalid friend ID", http.StatusBadRequest)
		return
	}

	if _, err := h.store.GetUserByID(r.Context(), req.FriendID); err != nil {
		h.storeError(w, "AddFriend", userID, err)
		return
	}
	if err := h.store.AddFriend(r.Context(), userID, req.FriendID); err != nil {
		h.storeError(w, "AddFriend", userID, err)
		return
	}

	h.logger.Info("AddFriend: friend added", "user_id", userID, "friend_id", req.FriendID)
	writeJSON(w, http.StatusCreated, models.StatusResponse{Success: true, Message: "Friend added"})
}

func (h *UserHandler) storeError(w http.ResponseWriter, op, userID string, err error) {
	if errors.Is(err, store.ErrUserNotFound) {
		h.logger.Warn(op+": user not found", "user_id", userID)
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}
	h.logger.Error(op+": store failure", "error", err, "user_id", userID)
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}
