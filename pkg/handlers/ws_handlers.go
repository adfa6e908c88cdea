package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/msniranjan18/chhavinity/pkg/auth"
	"github.com/msniranjan18/chhavinity/pkg/hub"
)

// HandleWS upgrades an authenticated agent onto the channel relay. The token
// comes from the Authorization header, or the token query parameter for
// browsers. checkOrigin vets browser origins; requests without an Origin
// header are let through.
func HandleWS(h *hub.Hub, users UserStore, checkOrigin func(*http.Request) bool, logger *slog.Logger) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return r.Header.Get("Origin") == "" || checkOrigin(r)
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		token, _ := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if token == "" {
			http.Error(w, "Token required", http.StatusUnauthorized)
			return
		}

		claims, err := auth.ValidateJWT(token)
		if err != nil {
			logger.Warn("HandleWS: invalid token", "error", err)
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		user, err := users.GetUserByID(r.Context(), claims.UserID)
		if err != nil {
			logger.Warn("HandleWS: unknown user", "user_id", claims.UserID, "error", err)
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("HandleWS: upgrade error", "error", err)
			return
		}

		client := hub.NewClient(h, conn, user.ID, claims.SessionID, user.FullName, user.ProfilePic)
		h.Register(client)

		go client.WritePump()
		go client.ReadPump()

		logger.Info("WebSocket connection established", "user_id", user.ID, "session_id", claims.SessionID)
	}
}
