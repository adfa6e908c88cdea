package listener

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/msniranjan18/chhavinity/pkg/models"
	"github.com/msniranjan18/chhavinity/pkg/transport"
)

const (
	customVideoCall      = "video_call"
	customCallEnded      = "call_ended"
	customFriendRequest  = "friend_request"
	customFriendAccepted = "friend_accepted"

	callMarker = "📹"
	leftCall   = "left the call"
)

var (
	urlPattern    = regexp.MustCompile(`https?://[^\s]+`)
	callIDPattern = regexp.MustCompile(`/call/([^/\s?#]+)`)
)

// custom is the subset of a message's custom payload the agent understands.
type custom struct {
	Type        string `json:"type"`
	CallURL     string `json:"callUrl"`
	CallURLAlt  string `json:"call_url"`
	CallID      string `json:"callId"`
	CallIDAlt   string `json:"call_id"`
	EndedByName string `json:"endedByName"`
}

func decodeCustom(raw json.RawMessage) custom {
	var c custom
	if len(raw) == 0 {
		return c
	}
	if err := json.Unmarshal(raw, &c); err != nil {
		return custom{}
	}
	return c
}

// Classify turns a raw transport event into a domain event. The second
// result is false for events the agent ignores, including the user's own.
// origin is used to build a call URL when the invite carries none.
func Classify(selfID, origin string, raw transport.Event) (models.Event, bool) {
	switch raw.Type {
	case transport.EventMessageNew:
		return classifyMessage(selfID, origin, raw)

	case transport.EventTypingStart, transport.EventTypingStop:
		if raw.User == nil || raw.User.ID == selfID {
			return nil, false
		}
		return models.TypingChanged{UserID: raw.User.ID, Typing: raw.Type == transport.EventTypingStart}, true

	case transport.EventPresenceChanged:
		if raw.User == nil || raw.User.ID == selfID {
			return nil, false
		}
		return models.PresenceChanged{UserID: raw.User.ID, Online: raw.User.Online, ObservedAt: timestamp(raw.CreatedAt)}, true

	case transport.EventCallEnded, transport.EventUserLeft:
		if raw.Type == transport.EventUserLeft && (raw.Message == nil || !strings.Contains(raw.Message.Text, leftCall)) {
			return nil, false
		}
		user := raw.User
		if user == nil && raw.Message != nil {
			user = &raw.Message.User
		}
		if user == nil || user.ID == "" || user.ID == selfID {
			return nil, false
		}
		ended := models.CallEnded{
			EndedByUserID: user.ID,
			EndedByName:   user.Name,
			EndedByAvatar: user.Image,
			Timestamp:     timestamp(raw.CreatedAt),
		}
		if raw.Message != nil {
			ended.CallID = callIDOf(decodeCustom(raw.Message.Custom), raw.Message, "")
		}
		return ended, true

	case transport.EventConnectionChanged, transport.EventConnectionRecovered:
		online := raw.Online || raw.Type == transport.EventConnectionRecovered
		return models.ConnectionChanged{Online: online}, true
	}
	return nil, false
}

func classifyMessage(selfID, origin string, raw transport.Event) (models.Event, bool) {
	msg := raw.Message
	if msg == nil || msg.User.ID == "" || msg.User.ID == selfID {
		return nil, false
	}
	ts := timestamp(msg.CreatedAt)
	c := decodeCustom(msg.Custom)

	switch {
	case isVideoCall(c, msg):
		callURL := callURLOf(c, msg, origin)
		return models.VideoCallInvite{
			FromUserID: msg.User.ID,
			FromName:   msg.User.Name,
			FromAvatar: msg.User.Image,
			CallID:     callIDOf(c, msg, callURL),
			CallURL:    callURL,
			Timestamp:  ts,
		}, true

	case c.Type == customCallEnded:
		name := c.EndedByName
		if name == "" {
			name = msg.User.Name
		}
		return models.CallEnded{
			EndedByUserID: msg.User.ID,
			EndedByName:   name,
			EndedByAvatar: msg.User.Image,
			CallID:        callIDOf(c, msg, ""),
			Timestamp:     ts,
		}, true

	case c.Type == customFriendRequest:
		return models.FriendRequest{FromUserID: msg.User.ID, FromName: msg.User.Name, FromAvatar: msg.User.Image}, true

	case c.Type == customFriendAccepted:
		return models.FriendAccepted{FriendID: msg.User.ID, FriendName: msg.User.Name, FriendAvatar: msg.User.Image}, true
	}

	return models.Message{
		MessageID:  msg.ID,
		FromUserID: msg.User.ID,
		FromName:   msg.User.Name,
		FromAvatar: msg.User.Image,
		Text:       msg.Text,
		Timestamp:  ts,
	}, true
}

func isVideoCall(c custom, msg *transport.Message) bool {
	if c.Type == customVideoCall || strings.Contains(msg.Text, callMarker) {
		return true
	}
	for _, a := range msg.Attachments {
		if a.Type == customVideoCall {
			return true
		}
	}
	return false
}

func callURLOf(c custom, msg *transport.Message, origin string) string {
	switch {
	case c.CallURL != "":
		return c.CallURL
	case c.CallURLAlt != "":
		return c.CallURLAlt
	case msg.CallURL != "":
		return msg.CallURL
	}
	if u := urlPattern.FindString(msg.Text); u != "" {
		return u
	}
	id := c.CallID
	if id == "" {
		id = "unknown"
	}
	return strings.TrimRight(origin, "/") + "/call/" + id
}

func callIDOf(c custom, msg *transport.Message, callURL string) string {
	switch {
	case c.CallID != "":
		return c.CallID
	case c.CallIDAlt != "":
		return c.CallIDAlt
	case msg.CallID != "":
		return msg.CallID
	}
	if m := callIDPattern.FindStringSubmatch(callURL); m != nil {
		return m[1]
	}
	return ""
}

// timestamp normalizes to UTC. A missing time stays zero; the aggregator
// stamps it from its own clock.
func timestamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	return t.UTC()
}
