package notify

import (
	"time"
	"unicode/utf8"
)

type ToastKind string

const (
	ToastMessage       ToastKind = "message"
	ToastVideoCall     ToastKind = "video_call"
	ToastFriendRequest ToastKind = "friend_request"
	ToastSuccess       ToastKind = "success"
	ToastError         ToastKind = "error"
)

type Position string

const (
	TopRight  Position = "top-right"
	TopCenter Position = "top-center"
)

const (
	ActionReply   = "reply"
	ActionDismiss = "dismiss"
	ActionJoin    = "join"
	ActionAccept  = "accept"
	ActionDecline = "decline"
)

type IntentType string

const (
	IntentOpenChat      IntentType = "open_chat"
	IntentJoinCall      IntentType = "join_call"
	IntentAcceptFriend  IntentType = "accept_friend"
	IntentDeclineFriend IntentType = "decline_friend"
)

// Intent is a navigation or command the UI should carry out.
type Intent struct {
	Type      IntentType `json:"type"`
	ContactID string     `json:"contact_id,omitempty"`
	URL       string     `json:"url,omitempty"`
}

type ToastAction struct {
	ID     string  `json:"id"`
	Label  string  `json:"label"`
	Intent *Intent `json:"intent,omitempty"`
}

type Toast struct {
	ID       string        `json:"id"`
	Kind     ToastKind     `json:"kind"`
	Title    string        `json:"title"`
	Body     string        `json:"body,omitempty"`
	Avatar   string        `json:"avatar,omitempty"`
	Duration time.Duration `json:"duration"`
	Position Position      `json:"position"`
	Actions  []ToastAction `json:"actions,omitempty"`
}

type toastLayout struct {
	duration time.Duration
	position Position
	actions  []ToastAction
}

var toastLayouts = map[ToastKind]toastLayout{
	ToastMessage: {
		duration: 4 * time.Second,
		position: TopRight,
		actions:  []ToastAction{{ID: ActionReply, Label: "Reply"}, {ID: ActionDismiss, Label: "Dismiss"}},
	},
	ToastVideoCall: {
		duration: 10 * time.Second,
		position: TopCenter,
		actions:  []ToastAction{{ID: ActionJoin, Label: "Join Call"}, {ID: ActionDismiss, Label: "Dismiss"}},
	},
	ToastFriendRequest: {
		duration: 6 * time.Second,
		position: TopRight,
		actions:  []ToastAction{{ID: ActionAccept, Label: "Accept"}, {ID: ActionDecline, Label: "Decline"}},
	},
	ToastSuccess: {duration: 4 * time.Second, position: TopRight},
	ToastError:   {duration: 4 * time.Second, position: TopRight},
}

// newToast lays out a toast of kind, binding each action id in intents to
// its intent. Actions without an intent just dismiss.
func newToast(id string, kind ToastKind, title, body, avatar string, intents map[string]*Intent) Toast {
	layout := toastLayouts[kind]
	t := Toast{
		ID:       id,
		Kind:     kind,
		Title:    title,
		Body:     body,
		Avatar:   avatar,
		Duration: layout.duration,
		Position: layout.position,
	}
	for _, a := range layout.actions {
		a.Intent = intents[a.ID]
		t.Actions = append(t.Actions, a)
	}
	return t
}

func (t Toast) action(id string) (ToastAction, bool) {
	for _, a := range t.Actions {
		if a.ID == id {
			return a, true
		}
	}
	return ToastAction{}, false
}

const notificationAutoClose = 4 * time.Second

// truncate shortens s to keep runes plus "..." when it is longer than limit.
func truncate(s string, limit, keep int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:keep]) + "..."
}

func notificationBody(s string) string { return truncate(s, 40, 37) }

func messagePreview(s string) string { return truncate(s, 35, 32) }
