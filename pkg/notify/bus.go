package notify

import (
	"log/slog"
	"sync"

	"github.com/msniranjan18/chhavinity/pkg/models"
)

type UIEventType string

const (
	UIContactUpdated UIEventType = "contact_updated"
	UIToast          UIEventType = "toast"
	UIToastDismissed UIEventType = "toast_dismissed"
	UIIntent         UIEventType = "intent"
	UIConnection     UIEventType = "connection"
	UIReset          UIEventType = "reset"
)

// UIEvent is a render instruction for whatever UI is attached.
type UIEvent struct {
	Type      UIEventType                  `json:"type"`
	Contact   *models.ContactPresenceState `json:"contact,omitempty"`
	Toast     *Toast                       `json:"toast,omitempty"`
	ToastID   string                       `json:"toast_id,omitempty"`
	Intent    *Intent                      `json:"intent,omitempty"`
	Connected *bool                        `json:"connected,omitempty"`
}

const subscriberBuffer = 64

type bus struct {
	logger *slog.Logger

	mu     sync.RWMutex
	nextID int
	subs   map[int]chan UIEvent
}

func newBus(logger *slog.Logger) *bus {
	return &bus{logger: logger, subs: make(map[int]chan UIEvent)}
}

func (b *bus) subscribe() (<-chan UIEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan UIEvent, subscriberBuffer)
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
}

// publish never blocks; a subscriber that falls behind loses events.
func (b *bus) publish(evt UIEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.subs {
		select {
		case ch <- evt:
		default:
			b.logger.Warn("UI subscriber is full, dropping event", "subscriber", id, "type", evt.Type)
		}
	}
}
