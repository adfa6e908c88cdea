package models

import "time"

// LastMessage is the most recent message exchanged with a contact.
type LastMessage struct {
	Text         string    `json:"text"`
	Timestamp    time.Time `json:"timestamp"`
	SenderName   string    `json:"sender_name,omitempty"`
	SenderIsSelf bool      `json:"sender_is_self"`
}

// ActiveCall is a video call invite that has not ended or expired.
type ActiveCall struct {
	CallID    string    `json:"call_id"`
	CallURL   string    `json:"call_url"`
	StartedAt time.Time `json:"started_at"`
}

// ContactPresenceState is everything the agent tracks about one contact.
type ContactPresenceState struct {
	ContactID   string       `json:"contact_id"`
	UnreadCount int          `json:"unread_count"`
	LastMessage *LastMessage `json:"last_message,omitempty"`
	IsTyping    bool         `json:"is_typing"`
	IsOnline    bool         `json:"is_online"`
	OnlineAt    time.Time    `json:"online_at,omitempty"`
	SnapshotAt  time.Time    `json:"snapshot_at,omitempty"`
	ActiveCall  *ActiveCall  `json:"active_call,omitempty"`
}

// ActivitySnapshot is the local user's interaction state.
type ActivitySnapshot struct {
	LastInteraction time.Time `json:"last_interaction"`
	TabVisible      bool      `json:"tab_visible"`
	WindowFocused   bool      `json:"window_focused"`
}
