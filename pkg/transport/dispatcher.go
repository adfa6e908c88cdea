package transport

import (
	"log/slog"
	"sync"
)

// Dispatcher fans events out to handlers registered per event type. A
// panicking handler is logged and does not stop delivery to the others.
type Dispatcher struct {
	logger *slog.Logger

	mu       sync.RWMutex
	nextID   int
	handlers map[string]map[int]Handler
}

func NewDispatcher(logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		logger:   logger,
		handlers: make(map[string]map[int]Handler),
	}
}

func (d *Dispatcher) On(eventType string, h Handler) func() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.handlers[eventType] == nil {
		d.handlers[eventType] = make(map[int]Handler)
	}
	id := d.nextID
	d.nextID++
	d.handlers[eventType][id] = h

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.handlers[eventType], id)
			d.mu.Unlock()
		})
	}
}

// HandlerCount reports the number of handlers for eventType.
func (d *Dispatcher) HandlerCount(eventType string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers[eventType])
}

func (d *Dispatcher) Emit(evt Event) {
	d.mu.RLock()
	hs := make([]Handler, 0, len(d.handlers[evt.Type]))
	for _, h := range d.handlers[evt.Type] {
		hs = append(hs, h)
	}
	d.mu.RUnlock()

	for _, h := range hs {
		d.call(h, evt)
	}
}

func (d *Dispatcher) call(h Handler, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Event handler panicked", "type", evt.Type, "panic", r)
		}
	}()
	h(evt)
}
