package hub

import (
	"context"

	"github.com/msniranjan18/chhavinity/pkg/transport"
)

// ListenToRedis delivers every conversation event published on Redis to the
// local watchers, including events from agents on the Redis transport.
func (h *Hub) ListenToRedis(ctx context.Context) {
	if h.rdb == nil {
		return
	}
	pubsub := h.rdb.PSubscribe(ctx, transport.ChannelKey("*"))
	defer pubsub.Close()

	ch := pubsub.Channel()
	h.logger.Info("Listening for Redis Pub/Sub messages")

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			evt, err := transport.DecodeRedisEvent(msg.Channel, []byte(msg.Payload))
			if err != nil {
				h.logger.Warn("Error unmarshaling Redis message", "channel", msg.Channel, "error", err)
				continue
			}
			h.deliver(evt)
		}
	}
}
