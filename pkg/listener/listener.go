// Package listener subscribes to the real-time transport and turns its raw
// events into domain events for the aggregator.
package listener

import (
	"log/slog"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/msniranjan18/chhavinity/pkg/models"
	"github.com/msniranjan18/chhavinity/pkg/transport"
)

// Sink receives every classified event.
type Sink interface {
	Dispatch(models.Event)
}

type SinkFunc func(models.Event)

func (f SinkFunc) Dispatch(e models.Event) { f(e) }

var subscribedTypes = []string{
	transport.EventMessageNew,
	transport.EventTypingStart,
	transport.EventTypingStop,
	transport.EventPresenceChanged,
	transport.EventUserLeft,
	transport.EventCallEnded,
	transport.EventConnectionChanged,
	transport.EventConnectionRecovered,
}

type Listener struct {
	selfID string
	origin string
	sink   Sink
	seen   *lru.Cache[string, struct{}]
	logger *slog.Logger

	mu        sync.Mutex
	disposers []func()
	connected atomic.Bool
}

// New returns a listener for the user selfID. dedupeSize bounds how many
// recent message ids are remembered to drop redeliveries.
func New(selfID, origin string, sink Sink, dedupeSize int, logger *slog.Logger) (*Listener, error) {
	seen, err := lru.New[string, struct{}](dedupeSize)
	if err != nil {
		return nil, err
	}
	return &Listener{
		selfID: selfID,
		origin: origin,
		sink:   sink,
		seen:   seen,
		logger: logger,
	}, nil
}

// Attach registers handlers on client. Attaching an attached listener does
// nothing.
func (l *Listener) Attach(client transport.Client) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.disposers) > 0 {
		return
	}
	for _, t := range subscribedTypes {
		l.disposers = append(l.disposers, client.On(t, l.handle))
	}
	l.logger.Info("Transport listeners added", "types", len(subscribedTypes))
}

func (l *Listener) Detach() {
	l.mu.Lock()
	disposers := l.disposers
	l.disposers = nil
	l.mu.Unlock()

	for _, dispose := range disposers {
		dispose()
	}
	if len(disposers) > 0 {
		l.logger.Info("Transport listeners removed")
	}
}

func (l *Listener) Attached() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.disposers) > 0
}

// Connected reports the last connection state the transport announced.
func (l *Listener) Connected() bool {
	return l.connected.Load()
}

func (l *Listener) handle(raw transport.Event) {
	if raw.Type == transport.EventMessageNew && raw.Message != nil && raw.Message.ID != "" {
		if seen, _ := l.seen.ContainsOrAdd(raw.Message.ID, struct{}{}); seen {
			l.logger.Debug("Dropping redelivered message", "message_id", raw.Message.ID)
			return
		}
	}

	evt, ok := Classify(l.selfID, l.origin, raw)
	if !ok {
		return
	}
	if cc, isConn := evt.(models.ConnectionChanged); isConn {
		l.connected.Store(cc.Online)
	}
	l.deliver(evt)
}

func (l *Listener) deliver(evt models.Event) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("Event sink panicked", "kind", evt.Kind(), "panic", r)
		}
	}()
	l.sink.Dispatch(evt)
}
