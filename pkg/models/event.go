package models

import "time"

type EventKind string

const (
	EventMessage           EventKind = "message"
	EventVideoCallInvite   EventKind = "video_call_invite"
	EventCallEnded         EventKind = "call_ended"
	EventTypingChanged     EventKind = "typing_changed"
	EventPresenceChanged   EventKind = "presence_changed"
	EventFriendRequest     EventKind = "friend_request"
	EventFriendAccepted    EventKind = "friend_accepted"
	EventConnectionChanged EventKind = "connection_changed"
)

// Event is a classified inbound event. Consumers switch on the concrete type
// and never look at the raw transport payload.
type Event interface {
	Kind() EventKind
}

type Message struct {
	MessageID  string
	FromUserID string
	FromName   string
	FromAvatar string
	Text       string
	Timestamp  time.Time
}

type VideoCallInvite struct {
	FromUserID string
	FromName   string
	FromAvatar string
	CallID     string
	CallURL    string
	Timestamp  time.Time
}

type CallEnded struct {
	EndedByUserID string
	EndedByName   string
	EndedByAvatar string
	CallID        string
	Timestamp     time.Time
}

type TypingChanged struct {
	UserID string
	Typing bool
}

type PresenceChanged struct {
	UserID     string
	Online     bool
	ObservedAt time.Time
}

type FriendRequest struct {
	FromUserID string
	FromName   string
	FromAvatar string
}

type FriendAccepted struct {
	FriendID     string
	FriendName   string
	FriendAvatar string
}

type ConnectionChanged struct {
	Online bool
}

func (Message) Kind() EventKind           { return EventMessage }
func (VideoCallInvite) Kind() EventKind   { return EventVideoCallInvite }
func (CallEnded) Kind() EventKind         { return EventCallEnded }
func (TypingChanged) Kind() EventKind     { return EventTypingChanged }
func (PresenceChanged) Kind() EventKind   { return EventPresenceChanged }
func (FriendRequest) Kind() EventKind     { return EventFriendRequest }
func (FriendAccepted) Kind() EventKind    { return EventFriendAccepted }
func (ConnectionChanged) Kind() EventKind { return EventConnectionChanged }
