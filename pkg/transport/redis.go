package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ChannelKey is the Redis pub/sub channel carrying one conversation.
func ChannelKey(channelID string) string {
	return fmt.Sprintf("channel:%s", channelID)
}

// RedisClient carries channel events over Redis pub/sub, one Redis channel
// per conversation. Several agents on one Redis see each other's traffic.
type RedisClient struct {
	*Dispatcher

	rdb    *redis.Client
	self   User
	logger *slog.Logger

	mu      sync.Mutex
	pubsub  *redis.PubSub
	watched map[string]bool
}

func NewRedisClient(rdb *redis.Client, self User, logger *slog.Logger) *RedisClient {
	return &RedisClient{
		Dispatcher: NewDispatcher(logger),
		rdb:        rdb,
		self:       self,
		logger:     logger,
		watched:    make(map[string]bool),
	}
}

// Run receives from every watched channel until ctx ends.
func (c *RedisClient) Run(ctx context.Context) error {
	c.mu.Lock()
	keys := make([]string, 0, len(c.watched))
	for id := range c.watched {
		keys = append(keys, ChannelKey(id))
	}
	pubsub := c.rdb.Subscribe(ctx, keys...)
	c.pubsub = pubsub
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.pubsub = nil
		c.mu.Unlock()
		pubsub.Close()
		c.Emit(Event{Type: EventConnectionChanged, Online: false, CreatedAt: time.Now().UTC()})
	}()

	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("transport: redis unreachable: %w", err)
	}
	c.logger.Info("Listening for channel events on Redis", "channels", len(keys))
	c.Emit(Event{Type: EventConnectionChanged, Online: true, CreatedAt: time.Now().UTC()})

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			evt, err := DecodeRedisEvent(msg.Channel, []byte(msg.Payload))
			if err != nil {
				c.logger.Warn("Error unmarshaling Redis event", "channel", msg.Channel, "error", err)
				continue
			}
			c.Emit(evt)
		}
	}
}

// DecodeRedisEvent decodes a pub/sub payload, taking the channel id from the
// Redis channel name when the event omits it.
func DecodeRedisEvent(redisChannel string, payload []byte) (Event, error) {
	var evt Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		return Event{}, err
	}
	if evt.ChannelID == "" {
		evt.ChannelID = strings.TrimPrefix(redisChannel, "channel:")
	}
	return evt, nil
}

func (c *RedisClient) Watch(ctx context.Context, channelID string, _ []string) error {
	c.mu.Lock()
	c.watched[channelID] = true
	pubsub := c.pubsub
	c.mu.Unlock()

	if pubsub == nil {
		return ErrNotConnected
	}
	return pubsub.Subscribe(ctx, ChannelKey(channelID))
}

func (c *RedisClient) SendMessage(ctx context.Context, channelID string, msg OutgoingMessage) error {
	evt, err := NewMessageEvent(channelID, c.self, msg)
	if err != nil {
		return err
	}
	return c.Publish(ctx, evt)
}

// Publish sends a raw event to a channel, e.g. typing or call.ended.
func (c *RedisClient) Publish(ctx context.Context, evt Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return c.rdb.Publish(ctx, ChannelKey(evt.ChannelID), data).Err()
}

// NewMessageEvent builds the message.new event the service emits when from
// sends msg to channelID. Call links in Custom are copied to the message.
func NewMessageEvent(channelID string, from User, msg OutgoingMessage) (Event, error) {
	now := time.Now().UTC()
	m := &Message{
		ID:          uuid.New().String(),
		Text:        msg.Text,
		User:        from,
		Attachments: msg.Attachments,
		CreatedAt:   now,
	}
	if len(msg.Custom) > 0 {
		custom, err := json.Marshal(msg.Custom)
		if err != nil {
			return Event{}, err
		}
		m.Custom = custom
		if v, ok := msg.Custom["callUrl"].(string); ok {
			m.CallURL = v
		}
		if v, ok := msg.Custom["callId"].(string); ok {
			m.CallID = v
		}
	}
	return Event{Type: EventMessageNew, ChannelID: channelID, User: &from, Message: m, CreatedAt: now}, nil
}
