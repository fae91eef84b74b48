// Package events fans ledger events out to observers.
//
// The Emitter stamps every event with an id and wall-clock time and hands it
// to each registered sink in order. Sinks must not call back into the ledger.
// Emission can be switched off while the journal is replayed so that
// rebuilding state does not re-publish history.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ric-network/catalogdao/internal/domain"
)

type namedSink struct {
	name string
	sink domain.EventSink
}

// Emitter is the ledger-wide EventSink.
type Emitter struct {
	mu      sync.RWMutex
	sinks   []namedSink
	enabled atomic.Bool
	emitted atomic.Uint64

	// Injectable clock for testing.
	now func() time.Time
}

// NewEmitter creates an enabled emitter with no sinks.
func NewEmitter() *Emitter {
	e := &Emitter{now: time.Now}
	e.enabled.Store(true)
	return e
}

// Add registers a sink under name, replacing any sink with the same name.
func (e *Emitter) Add(name string, sink domain.EventSink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.sinks {
		if e.sinks[i].name == name {
			e.sinks[i].sink = sink
			return
		}
	}
	e.sinks = append(e.sinks, namedSink{name: name, sink: sink})
}

// Sinks returns the registered sink names in delivery order.
func (e *Emitter) Sinks() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, len(e.sinks))
	for i, s := range e.sinks {
		names[i] = s.name
	}
	return names
}

// SetEnabled turns delivery on or off.
func (e *Emitter) SetEnabled(on bool) { e.enabled.Store(on) }

// Enabled reports whether events are being delivered.
func (e *Emitter) Enabled() bool { return e.enabled.Load() }

// Emitted returns how many events have been delivered.
func (e *Emitter) Emitted() uint64 { return e.emitted.Load() }

// Emit stamps ev and delivers it to every sink.
func (e *Emitter) Emit(ev domain.Event) {
	if !e.enabled.Load() {
		return
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Time.IsZero() {
		ev.Time = e.now().UTC()
	}

	e.mu.RLock()
	sinks := e.sinks
	e.mu.RUnlock()
	for _, s := range sinks {
		s.sink.Emit(ev)
	}
	e.emitted.Add(1)
}

// ─── Recorder ───────────────────────────────────────────────────────────────

// Recorder keeps the most recent events in memory for queries.
type Recorder struct {
	mu   sync.RWMutex
	buf  []domain.Event
	next int
	full bool
}

// NewRecorder creates a recorder holding up to capacity events.
func NewRecorder(capacity int) *Recorder {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Recorder{buf: make([]domain.Event, capacity)}
}

// Emit stores ev, evicting the oldest event when full.
func (r *Recorder) Emit(ev domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = ev
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
}

// Recent returns up to limit events, newest first. Types filters when non-empty.
func (r *Recorder) Recent(limit int, types ...domain.EventType) []domain.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	want := make(map[domain.EventType]bool, len(types))
	for _, t := range types {
		want[t] = true
	}
	n := r.next
	if r.full {
		n = len(r.buf)
	}
	out := make([]domain.Event, 0, n)
	for i := 0; i < n; i++ {
		idx := (r.next - 1 - i + len(r.buf)) % len(r.buf)
		ev := r.buf[idx]
		if len(want) > 0 && !want[ev.Type] {
			continue
		}
		out = append(out, ev)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Len returns the number of stored events.
func (r *Recorder) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.full {
		return len(r.buf)
	}
	return r.next
}
