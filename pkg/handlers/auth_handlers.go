package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/msniranjan18/chhavinity/pkg/auth"
	"github.com/msniranjan18/chhavinity/pkg/models"
	"github.com/msniranjan18/chhavinity/pkg/store"
)

type AuthHandler struct {
	store  UserStore
	logger *slog.Logger
}

func NewAuthHandler(store UserStore, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{store: store, logger: logger}
}

// Register godoc
//
//	@Summary		Register or sign in
//	@Description	Creates the user when the username is new, then issues a token.
//	@Tags			auth
//	@Accept			json
//	@Produce		json
//	@Param			body	body		models.AuthRequest	true	"Username and full name"
//	@Success		200		{object}	models.AuthResponse
//	@Failure		400		{string}	string	"Invalid request body"
//	@Router			/api/auth/register [post]
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req models.AuthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("Register: invalid request body", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	req.Username = strings.ToLower(strings.TrimSpace(req.Username))
	req.FullName = strings.TrimSpace(req.FullName)
	if req.Username == "" || req.FullName == "" {
		h.logger.Warn("Register: missing username or full name")
		http.Error(w, "Username and full name are required", http.StatusBadRequest)
		return
	}

	h.logger.Info("Register: processing registration", "username", req.Username)

	user, err := h.store.GetUserByUsername(r.Context(), req.Username)
	switch {
	case errors.Is(err, store.ErrUserNotFound):
		user = &models.User{Username: req.Username, FullName: req.FullName}
		if err := h.store.CreateUser(r.Context(), user); err != nil {
			h.logger.Error("Register: failed to create user", "error", err, "username", req.Username)
			http.Error(w, "Failed to create user", http.StatusInternalServerError)
			return
		}
	case err != nil:
		h.logger.Error("Register: failed to check existing user", "error", err, "username", req.Username)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	default:
		h.logger.Info("Register: existing user found", "user_id", user.ID)
	}

	h.issueToken(w, "Register", user)
}

// Login godoc
//
//	@Summary	Sign in
//	@Tags		auth
//	@Accept		json
//	@Produce	json
//	@Param		body	body		models.AuthRequest	true	"Username"
//	@Success	200		{object}	models.AuthResponse
//	@Failure	404		{string}	string	"User not found"
//	@Router		/api/auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req models.AuthRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("Login: invalid request body", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	req.Username = strings.ToLower(strings.TrimSpace(req.Username))

	user, err := h.store.GetUserByUsername(r.Context(), req.Username)
	if errors.Is(err, store.ErrUserNotFound) {
		h.logger.Warn("Login: user not found", "username", req.Username)
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("Login: failed to get user", "error", err, "username", req.Username)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.issueToken(w, "Login", user)
}

// Verify godoc
//
//	@Summary	Verify token
//	@Tags		auth
//	@Produce	json
//	@Security	BearerAuth
//	@Success	200	{object}	map[string]string
//	@Failure	401	{string}	string	"Unauthorized"
//	@Router		/api/auth/verify [get]
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	userID := auth.GetUserID(r.Context())
	if userID == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"user_id":    userID,
		"session_id": auth.GetSessionID(r.Context()),
	})
}

func (h *AuthHandler) issueToken(w http.ResponseWriter, op string, user *models.User) {
	sessionID := uuid.New().String()
	token, expiresAt, err := auth.GenerateJWT(user.ID, sessionID)
	if err != nil {
		h.logger.Error(op+": failed to generate JWT", "error", err, "user_id", user.ID)
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	h.logger.Info(op+": successful", "user_id", user.ID, "session_id", sessionID, "expires_at", expiresAt)
	writeJSON(w, http.StatusOK, models.AuthResponse{Token: token, User: *user, ExpiresAt: expiresAt})
}
