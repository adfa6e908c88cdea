// Package hub relays conversation channel events between websocket clients.
// Clients watch channels and send messages with transport frames; the hub
// answers with the same events the Redis transport carries, so websocket
// and Redis agents share one set of conversations.
package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/msniranjan18/chhavinity/pkg/transport"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024 * 1024
	sendBuffer     = 256
)

type Hub struct {
	// rdb fans events out to every server instance; nil keeps them local.
	rdb    *redis.Client
	logger *slog.Logger

	// Registered clients by userID (multiple devices per user)
	clients map[string]map[*Client]bool

	// Watchers by channel id
	rooms map[string]map[*Client]bool

	inbound    chan inboundFrame
	register   chan *Client
	unregister chan *Client

	mu sync.RWMutex
}

type inboundFrame struct {
	client *Client
	frame  transport.Frame
}

func NewHub(rdb *redis.Client, logger *slog.Logger) *Hub {
	return &Hub{
		rdb:        rdb,
		logger:     logger,
		clients:    make(map[string]map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
		inbound:    make(chan inboundFrame),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("WebSocket hub started")
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("WebSocket hub stopped")
			return
		case client := <-h.register:
			h.handleRegister(client)
		case client := <-h.unregister:
			h.handleUnregister(ctx, client)
		case in := <-h.inbound:
			h.handleFrame(ctx, in.client, in.frame)
		}
	}
}

// Register hands a connected client to the hub.
func (h *Hub) Register(c *Client) { h.register <- c }

func (h *Hub) handleRegister(c *Client) {
	h.mu.Lock()
	if h.clients[c.UserID] == nil {
		h.clients[c.UserID] = make(map[*Client]bool)
	}
	h.clients[c.UserID][c] = true
	h.mu.Unlock()

	h.logger.Info("Client registered", "user_id", c.UserID, "session_id", c.SessionID)
}

func (h *Hub) handleUnregister(ctx context.Context, c *Client) {
	h.mu.Lock()
	channels, removed := h.removeLocked(c)
	lastDevice := removed && len(h.clients[c.UserID]) == 0
	h.mu.Unlock()

	if !removed {
		return
	}
	h.logger.Info("Client unregistered", "user_id", c.UserID, "session_id", c.SessionID)

	if lastDevice {
		for _, channelID := range channels {
			h.publish(ctx, c.presenceEvent(channelID, false))
		}
	}
}

// removeLocked drops c from every map and closes its send buffer. It returns
// the channels c was watching and whether c was still registered.
func (h *Hub) removeLocked(c *Client) ([]string, bool) {
	userClients, ok := h.clients[c.UserID]
	if !ok || !userClients[c] {
		return nil, false
	}
	delete(userClients, c)
	if len(userClients) == 0 {
		delete(h.clients, c.UserID)
	}

	channels := make([]string, 0, len(c.channels))
	for channelID := range c.channels {
		channels = append(channels, channelID)
		if room, ok := h.rooms[channelID]; ok {
			delete(room, c)
			if len(room) == 0 {
				delete(h.rooms, channelID)
			}
		}
	}
	close(c.Send)
	return channels, true
}

// join adds c to channelID's watchers and reports whether it was new.
func (h *Hub) join(c *Client, channelID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c.channels[channelID] {
		return false
	}
	if h.rooms[channelID] == nil {
		h.rooms[channelID] = make(map[*Client]bool)
	}
	h.rooms[channelID][c] = true
	c.channels[channelID] = true
	return true
}

func (h *Hub) watching(c *Client, channelID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return c.channels[channelID]
}

// Watchers is the number of local clients watching channelID.
func (h *Hub) Watchers(channelID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[channelID])
}

// publish sends evt to every instance, or straight to local watchers when
// there is no Redis.
func (h *Hub) publish(ctx context.Context, evt transport.Event) {
	if h.rdb == nil {
		h.deliver(evt)
		return
	}

	data, err := json.Marshal(evt)
	if err != nil {
		h.logger.Error("Error marshaling event", "type", evt.Type, "error", err)
		return
	}
	if err := h.rdb.Publish(ctx, transport.ChannelKey(evt.ChannelID), data).Err(); err != nil {
		h.logger.Warn("Error publishing to Redis, delivering locally", "channel_id", evt.ChannelID, "error", err)
		h.deliver(evt)
	}
}

// deliver writes evt to the local watchers of its channel, skipping the
// author's own devices. Clients whose buffer is full are dropped.
func (h *Hub) deliver(evt transport.Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		h.logger.Error("Error marshaling event", "type", evt.Type, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	delivered := 0
	for c := range h.rooms[evt.ChannelID] {
		if evt.User != nil && c.UserID == evt.User.ID {
			continue
		}
		select {
		case c.Send <- data:
			delivered++
		default:
			h.logger.Warn("Client buffer full, disconnecting", "user_id", c.UserID)
			h.removeLocked(c)
		}
	}
	h.logger.Debug("Event delivered", "type", evt.Type, "channel_id", evt.ChannelID, "recipients", delivered)
}
