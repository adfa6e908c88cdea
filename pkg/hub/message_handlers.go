package hub

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/msniranjan18/chhavinity/pkg/transport"
)

func (h *Hub) handleFrame(ctx context.Context, c *Client, f transport.Frame) {
	switch f.Type {
	case transport.FrameWatch:
		h.handleWatch(ctx, c, f)
	case transport.FrameSend:
		h.handleSend(ctx, c, f)
	default:
		h.logger.Warn("Unknown frame type", "type", f.Type, "user_id", c.UserID)
	}
}

func (h *Hub) handleWatch(ctx context.Context, c *Client, f transport.Frame) {
	if !mayWatch(c.UserID, f.ChannelID, f.Members) {
		h.logger.Warn("Watch rejected", "user_id", c.UserID, "channel_id", f.ChannelID)
		return
	}
	if !h.join(c, f.ChannelID) {
		return
	}
	h.logger.Debug("Channel watched", "user_id", c.UserID, "channel_id", f.ChannelID)
	h.publish(ctx, c.presenceEvent(f.ChannelID, true))
}

func (h *Hub) handleSend(ctx context.Context, c *Client, f transport.Frame) {
	if f.Message == nil || f.ChannelID == "" {
		h.logger.Warn("Dropping empty message frame", "user_id", c.UserID)
		return
	}
	if !h.watching(c, f.ChannelID) {
		h.logger.Warn("Send to unwatched channel rejected", "user_id", c.UserID, "channel_id", f.ChannelID)
		return
	}

	evt, err := transport.NewMessageEvent(f.ChannelID, c.user(true), *f.Message)
	if err != nil {
		h.logger.Warn("Error building message event", "user_id", c.UserID, "error", err)
		return
	}
	h.publish(ctx, evt)
}

// mayWatch allows a user onto a channel they are a member of: listed in
// members, or named at either end of a two-party channel id.
func mayWatch(userID, channelID string, members []string) bool {
	if userID == "" || channelID == "" {
		return false
	}
	if len(members) > 0 {
		return slices.Contains(members, userID)
	}
	return strings.HasPrefix(channelID, userID+"-") || strings.HasSuffix(channelID, "-"+userID)
}

func (c *Client) presenceEvent(channelID string, online bool) transport.Event {
	u := c.user(online)
	return transport.Event{
		Type:      transport.EventPresenceChanged,
		ChannelID: channelID,
		User:      &u,
		Online:    online,
		CreatedAt: time.Now().UTC(),
	}
}
