package hub

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/msniranjan18/chhavinity/pkg/transport"
)

type Client struct {
	Hub       *Hub
	UserID    string
	SessionID string
	Name      string
	Image     string
	Conn      *websocket.Conn
	Send      chan []byte

	// channels is guarded by Hub.mu.
	channels map[string]bool
}

func NewClient(h *Hub, conn *websocket.Conn, userID, sessionID, name, image string) *Client {
	return &Client{
		Hub:       h,
		UserID:    userID,
		SessionID: sessionID,
		Name:      name,
		Image:     image,
		Conn:      conn,
		Send:      make(chan []byte, sendBuffer),
		channels:  make(map[string]bool),
	}
}

func (c *Client) user(online bool) transport.User {
	return transport.User{ID: c.UserID, Name: c.Name, Image: c.Image, Online: online}
}

func (c *Client) ReadPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Warn("WebSocket read error", "user_id", c.UserID, "error", err)
			}
			break
		}

		var f transport.Frame
		if err := json.Unmarshal(message, &f); err != nil {
			c.Hub.logger.Warn("Error unmarshaling frame", "user_id", c.UserID, "error", err)
			continue
		}
		c.Hub.inbound <- inboundFrame{client: c, frame: f}
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
