package routes

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/msniranjan18/chhavinity/pkg/auth"
	"github.com/msniranjan18/chhavinity/pkg/handlers"
	"github.com/msniranjan18/chhavinity/pkg/hub"
	"github.com/rs/cors"
	httpSwagger "github.com/swaggo/http-swagger"
)

// NewRouter wires the account API, the channel relay and the API docs behind
// CORS for allowedOrigins (comma separated, "*" for any).
func NewRouter(h *hub.Hub, s handlers.UserStore, allowedOrigins string, logger *slog.Logger) http.Handler {
	c := newCORS(allowedOrigins)
	mux := http.NewServeMux()

	authHandler := handlers.NewAuthHandler(s, logger)
	userHandler := handlers.NewUserHandler(s, logger)

	// Authentication endpoints (no auth required)
	mux.HandleFunc("POST /api/auth/register", authHandler.Register)
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)

	// WebSocket endpoint authenticates its own token
	mux.HandleFunc("GET /ws", handlers.HandleWS(h, s, c.OriginAllowed, logger))

	mux.Handle("GET /swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
		httpSwagger.DeepLinking(true),
	))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	apiRouter := http.NewServeMux()
	apiRouter.HandleFunc("GET /api/auth/verify", authHandler.Verify)
	apiRouter.HandleFunc("GET /api/users/me", userHandler.GetCurrentUser)
	apiRouter.HandleFunc("PUT /api/users/online-status", userHandler.UpdateOnlineStatus)
	apiRouter.HandleFunc("PUT /api/users/last-seen", userHandler.TouchLastSeen)
	apiRouter.HandleFunc("GET /api/users/friends", userHandler.GetFriends)
	apiRouter.HandleFunc("POST /api/users/friends", userHandler.AddFriend)

	// Apply authentication middleware to API routes
	mux.Handle("/api/", auth.AuthMiddleware(apiRouter))

	return c.Handler(mux)
}

func newCORS(allowedOrigins string) *cors.Cors {
	var origins []string
	for _, o := range strings.Split(allowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}
