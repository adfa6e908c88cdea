package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var ErrSendBufferFull = errors.New("transport: send buffer full")

// Frame types the service accepts.
const (
	FrameWatch = "channel.watch"
	FrameSend  = "message.send"
)

const sendBuffered = 256

// Frame is what the agent writes to the service.
type Frame struct {
	Type      string           `json:"type"`
	ChannelID string           `json:"channel_id,omitempty"`
	Members   []string         `json:"members,omitempty"`
	Message   *OutgoingMessage `json:"message,omitempty"`
}

type WSOptions struct {
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	MaxMessageSize int64
	// MaxRetries is the number of consecutive failed dials before Run gives up.
	MaxRetries int
	RetryDelay time.Duration
}

func DefaultWSOptions() WSOptions {
	return WSOptions{
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     54 * time.Second,
		MaxMessageSize: 1024 * 1024,
		MaxRetries:     3,
		RetryDelay:     2 * time.Second,
	}
}

// WSClient is a transport over a single websocket connection. Watched
// channels are re-sent after every reconnect.
type WSClient struct {
	*Dispatcher

	url    string
	token  string
	opts   WSOptions
	dialer *websocket.Dialer
	logger *slog.Logger

	mu      sync.Mutex
	send    chan []byte
	watched map[string][]string
}

func NewWSClient(url, token string, opts WSOptions, logger *slog.Logger) *WSClient {
	return &WSClient{
		Dispatcher: NewDispatcher(logger),
		url:        url,
		token:      token,
		opts:       opts,
		dialer:     websocket.DefaultDialer,
		logger:     logger,
		watched:    make(map[string][]string),
	}
}

// Run keeps the connection up until ctx ends. It returns an error once
// MaxRetries consecutive dials have failed.
func (c *WSClient) Run(ctx context.Context) error {
	failures := 0
	for {
		conn, err := c.dial(ctx)
		if err != nil {
			failures++
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if failures > c.opts.MaxRetries {
				return fmt.Errorf("transport: giving up after %d attempts: %w", failures, err)
			}
			delay := c.opts.RetryDelay * time.Duration(failures)
			c.logger.Warn("Transport dial failed, retrying", "attempt", failures, "max_attempts", c.opts.MaxRetries, "delay", delay, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			continue
		}
		failures = 0

		c.serve(ctx, conn)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (c *WSClient) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	conn, _, err := c.dialer.DialContext(ctx, c.url, header)
	return conn, err
}

func (c *WSClient) serve(ctx context.Context, conn *websocket.Conn) {
	send := make(chan []byte, sendBuffered)

	c.mu.Lock()
	c.send = send
	rewatch := make([]Frame, 0, len(c.watched))
	for channelID, members := range c.watched {
		rewatch = append(rewatch, Frame{Type: FrameWatch, ChannelID: channelID, Members: members})
	}
	c.mu.Unlock()

	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		c.writePump(conn, send)
	}()
	stop := context.AfterFunc(ctx, func() { conn.Close() })

	c.replay(ctx, send, rewatch, writeDone)

	c.logger.Info("Transport connected", "url", c.url, "watched", len(rewatch))
	c.Emit(Event{Type: EventConnectionChanged, Online: true, CreatedAt: time.Now().UTC()})

	c.readPump(conn)
	stop()

	c.mu.Lock()
	c.send = nil
	c.mu.Unlock()
	close(send)
	<-writeDone

	c.logger.Warn("Transport disconnected", "url", c.url)
	c.Emit(Event{Type: EventConnectionChanged, Online: false, CreatedAt: time.Now().UTC()})
}

// replay queues frames behind the running writer. It gives up when the
// writer stops or ctx ends; the read loop then sees the closed connection.
func (c *WSClient) replay(ctx context.Context, send chan<- []byte, frames []Frame, writeDone <-chan struct{}) {
	for _, f := range frames {
		data, err := json.Marshal(f)
		if err != nil {
			c.logger.Warn("Error encoding watch frame", "channel_id", f.ChannelID, "error", err)
			continue
		}
		select {
		case send <- data:
		case <-writeDone:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (c *WSClient) readPump(conn *websocket.Conn) {
	defer conn.Close()

	conn.SetReadLimit(c.opts.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("Transport read error", "error", err)
			}
			return
		}

		var evt Event
		if err := json.Unmarshal(data, &evt); err != nil {
			c.logger.Warn("Dropping undecodable transport event", "error", err)
			continue
		}
		c.Emit(evt)
	}
}

func (c *WSClient) writePump(conn *websocket.Conn, send <-chan []byte) {
	ticker := time.NewTicker(c.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-send:
			conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Watch records the channel and asks the service to deliver its events.
func (c *WSClient) Watch(ctx context.Context, channelID string, members []string) error {
	c.mu.Lock()
	c.watched[channelID] = members
	c.mu.Unlock()
	return c.write(ctx, Frame{Type: FrameWatch, ChannelID: channelID, Members: members})
}

func (c *WSClient) SendMessage(ctx context.Context, channelID string, msg OutgoingMessage) error {
	return c.write(ctx, Frame{Type: FrameSend, ChannelID: channelID, Message: &msg})
}

func (c *WSClient) write(ctx context.Context, f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.send == nil {
		return ErrNotConnected
	}
	select {
	case c.send <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrSendBufferFull
	}
}
