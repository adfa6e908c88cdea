package notify

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

type timerEntry struct {
	id    uint64
	timer *clock.Timer
}

// timers is a keyed set of one-shot timers. Scheduling a key again replaces
// its pending timer; a replaced or cancelled timer never runs its func.
type timers struct {
	clock clock.Clock

	mu      sync.Mutex
	seq     uint64
	pending map[string]timerEntry
}

func newTimers(clk clock.Clock) *timers {
	return &timers{clock: clk, pending: make(map[string]timerEntry)}
}

func (r *timers) schedule(key string, d time.Duration, fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.pending[key]; ok {
		e.timer.Stop()
	}
	r.seq++
	id := r.seq
	r.pending[key] = timerEntry{
		id: id,
		timer: r.clock.AfterFunc(d, func() {
			r.mu.Lock()
			e, ok := r.pending[key]
			if !ok || e.id != id {
				r.mu.Unlock()
				return
			}
			delete(r.pending, key)
			r.mu.Unlock()
			fn()
		}),
	}
}

func (r *timers) cancel(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.pending[key]; ok {
		e.timer.Stop()
		delete(r.pending, key)
	}
}

func (r *timers) has(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pending[key]
	return ok
}

func (r *timers) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

func (r *timers) cancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, e := range r.pending {
		e.timer.Stop()
		delete(r.pending, key)
	}
}

func callTimerKey(contactID string) string   { return "call:" + contactID }
func typingTimerKey(contactID string) string { return "typing:" + contactID }
func toastTimerKey(toastID string) string    { return "toast:" + toastID }
