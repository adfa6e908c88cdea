// Package transport is the agent's view of the real-time messaging service:
// watch a channel, listen for events, send a message. The payload shapes
// mirror what the service emits; nothing here interprets them.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

const (
	EventMessageNew          = "message.new"
	EventTypingStart         = "typing.start"
	EventTypingStop          = "typing.stop"
	EventConnectionChanged   = "connection.changed"
	EventConnectionRecovered = "connection.recovered"
	EventPresenceChanged     = "user.presence.changed"
	EventUserLeft            = "user.left"
	EventCallEnded           = "call.ended"
)

var ErrNotConnected = errors.New("transport: not connected")

type User struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Image  string `json:"image,omitempty"`
	Online bool   `json:"online,omitempty"`
}

type Attachment struct {
	Type string `json:"type"`
	URL  string `json:"url,omitempty"`
}

type Message struct {
	ID          string          `json:"id"`
	Text        string          `json:"text"`
	User        User            `json:"user"`
	Custom      json.RawMessage `json:"custom,omitempty"`
	Attachments []Attachment    `json:"attachments,omitempty"`
	CallURL     string          `json:"call_url,omitempty"`
	CallID      string          `json:"call_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Event is one raw event as delivered by the service.
type Event struct {
	Type      string    `json:"type"`
	ChannelID string    `json:"channel_id,omitempty"`
	User      *User     `json:"user,omitempty"`
	Message   *Message  `json:"message,omitempty"`
	Online    bool      `json:"online,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type OutgoingMessage struct {
	Text        string         `json:"text"`
	Custom      map[string]any `json:"custom,omitempty"`
	Attachments []Attachment   `json:"attachments,omitempty"`
}

type Handler func(Event)

// Client is implemented by every transport.
type Client interface {
	// Watch subscribes to a conversation channel so its events arrive without
	// the conversation being open.
	Watch(ctx context.Context, channelID string, members []string) error
	// On registers a handler for one event type and returns its disposer.
	On(eventType string, h Handler) (dispose func())
	SendMessage(ctx context.Context, channelID string, msg OutgoingMessage) error
}
