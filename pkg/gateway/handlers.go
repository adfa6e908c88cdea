package gateway

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/rs/cors"
)

// Handler serves the UI endpoints. allowedOrigins is a comma separated list;
// "*" or empty allows any origin.
func (g *Gateway) Handler(allowedOrigins string) http.Handler {
	c := newCORS(allowedOrigins)
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(c),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", g.handleWS(upgrader))
	mux.HandleFunc("GET /api/state", g.handleState)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return c.Handler(mux)
}

func newCORS(allowed string) *cors.Cors {
	origins := []string{"*"}
	if allowed = strings.TrimSpace(allowed); allowed != "" && allowed != "*" {
		origins = origins[:0]
		for _, o := range strings.Split(allowed, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet},
	})
}

// originChecker lets same-host clients without an Origin header through.
func originChecker(c *cors.Cors) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		return r.Header.Get("Origin") == "" || c.OriginAllowed(r)
	}
}

func (g *Gateway) handleWS(upgrader websocket.Upgrader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			g.logger.Warn("UI websocket upgrade error", "error", err)
			return
		}

		c := &client{gw: g, conn: conn, send: make(chan []byte, 256)}
		go c.writePump()
		g.register(c)
		c.readPump()
	}
}

func (g *Gateway) handleState(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(g.State(r.Context())); err != nil {
		g.logger.Error("Error encoding state", "error", err)
	}
}
