package activity

import "sync"

type InputKind string

const (
	InputInteraction InputKind = "interaction"
	InputVisibility  InputKind = "visibility"
	InputFocus       InputKind = "focus"
)

// InputEvent is one raw signal from the UI. Value carries the new visibility
// or focus state and is ignored for interactions.
type InputEvent struct {
	Kind  InputKind
	Value bool
}

// InputSource delivers raw UI signals. Listen returns a disposer that removes
// the listener; calling it more than once is safe.
type InputSource interface {
	Listen(kind InputKind, fn func(InputEvent)) (dispose func())
}

// InputBus is an in-process InputSource. The UI gateway feeds it from
// websocket frames.
type InputBus struct {
	mu        sync.RWMutex
	nextID    int
	listeners map[InputKind]map[int]func(InputEvent)
}

func NewInputBus() *InputBus {
	return &InputBus{listeners: make(map[InputKind]map[int]func(InputEvent))}
}

func (b *InputBus) Listen(kind InputKind, fn func(InputEvent)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.listeners[kind] == nil {
		b.listeners[kind] = make(map[int]func(InputEvent))
	}
	id := b.nextID
	b.nextID++
	b.listeners[kind][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.listeners[kind], id)
			b.mu.Unlock()
		})
	}
}

func (b *InputBus) EmitInteraction()            { b.emit(InputEvent{Kind: InputInteraction}) }
func (b *InputBus) EmitVisibility(visible bool) { b.emit(InputEvent{Kind: InputVisibility, Value: visible}) }
func (b *InputBus) EmitFocus(focused bool)      { b.emit(InputEvent{Kind: InputFocus, Value: focused}) }

// Listeners reports how many listeners are registered for kind.
func (b *InputBus) Listeners(kind InputKind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners[kind])
}

func (b *InputBus) emit(evt InputEvent) {
	b.mu.RLock()
	fns := make([]func(InputEvent), 0, len(b.listeners[evt.Kind]))
	for _, fn := range b.listeners[evt.Kind] {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn(evt)
	}
}
