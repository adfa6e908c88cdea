package notify

import (
	"fmt"

	"github.com/msniranjan18/chhavinity/pkg/models"
	"github.com/msniranjan18/chhavinity/pkg/sound"
)

// Dispatch applies one classified remote event.
func (a *Aggregator) Dispatch(evt models.Event) {
	switch e := evt.(type) {
	case models.Message:
		a.RecordMessage(e.FromUserID, MessageInput{
			Text:         e.Text,
			Timestamp:    e.Timestamp,
			SenderName:   e.FromName,
			SenderAvatar: e.FromAvatar,
		}, false)
	case models.VideoCallInvite:
		a.handleVideoCallInvite(e)
	case models.CallEnded:
		a.handleCallEnded(e)
	case models.TypingChanged:
		a.SetTyping(e.UserID, e.Typing)
	case models.PresenceChanged:
		a.SetOnline(e.UserID, e.Online, e.ObservedAt)
	case models.FriendRequest:
		a.NotifyFriendRequest(e.FromUserID, e.FromName, e.FromAvatar)
	case models.FriendAccepted:
		a.NotifyFriendAccepted(e.FriendID, e.FriendName, e.FriendAvatar)
		a.mu.Lock()
		hook := a.onFriendAccepted
		a.mu.Unlock()
		if hook != nil {
			hook(e)
		}
	case models.ConnectionChanged:
		online := e.Online
		a.bus.publish(UIEvent{Type: UIConnection, Connected: &online})
	default:
		a.logger.Warn("Unhandled event", "kind", evt.Kind())
	}
}

func (a *Aggregator) handleVideoCallInvite(e models.VideoCallInvite) {
	a.logger.Info("Video call invite received", "from", e.FromUserID, "call_id", e.CallID)

	a.play(sound.KindNotification)
	a.showNotification(fmt.Sprintf("📹 Video Call from %s", e.FromName), "Tap to join the video call", e.FromAvatar, "video-call")
	a.StartActiveCall(e.FromUserID, e.CallID, e.CallURL)
	a.showToast(ToastVideoCall, e.FromName, "Incoming video call", e.FromAvatar, map[string]*Intent{
		ActionJoin: {Type: IntentJoinCall, ContactID: e.FromUserID, URL: e.CallURL},
	})

	state := a.recordLastMessage(e.FromUserID, MessageInput{
		Text:       fmt.Sprintf("📹 Video Call: %s is calling you", e.FromName),
		Timestamp:  e.Timestamp,
		SenderName: e.FromName,
	}, false)
	a.publishContact(state)
}

func (a *Aggregator) handleCallEnded(e models.CallEnded) {
	a.mu.Lock()
	self := a.selfID
	a.mu.Unlock()

	a.endCall(e.EndedByUserID, e.CallID)
	if self != "" && self != e.EndedByUserID {
		a.endCall(self, e.CallID)
	}

	name := e.EndedByName
	if name == "" {
		name = "Your contact"
	}
	a.showNotification("📞 Call Ended", fmt.Sprintf("%s ended the video call", name), e.EndedByAvatar, "call-ended")

	state := a.recordLastMessage(e.EndedByUserID, MessageInput{
		Text:       fmt.Sprintf("📞 %s ended the video call", name),
		Timestamp:  e.Timestamp,
		SenderName: e.EndedByName,
	}, false)
	a.publishContact(state)
}

// NotifyFriendRequest alerts the user to an incoming friend request.
func (a *Aggregator) NotifyFriendRequest(fromID, name, avatar string) {
	a.play(sound.KindNotification)
	a.showNotification("Friend Request", fmt.Sprintf("%s wants to connect with you", name), avatar, "friend-request")
	a.showToast(ToastFriendRequest, name, "wants to connect with you", avatar, map[string]*Intent{
		ActionAccept:  {Type: IntentAcceptFriend, ContactID: fromID},
		ActionDecline: {Type: IntentDeclineFriend, ContactID: fromID},
	})
}

func (a *Aggregator) NotifyFriendAccepted(friendID, name, avatar string) {
	a.play(sound.KindSuccess)
	a.showNotification("Friend Request Accepted! 🎉", fmt.Sprintf("%s is now your friend", name), avatar, "friend-accepted")
	a.showToast(ToastSuccess, "Friend Request Accepted! 🎉", fmt.Sprintf("%s is now your friend", name), avatar, nil)
}

// NotifyError shows a local failure, e.g. a call that could not be placed.
func (a *Aggregator) NotifyError(text string) {
	a.play(sound.KindError)
	a.showToast(ToastError, "Something went wrong", text, "", nil)
}
