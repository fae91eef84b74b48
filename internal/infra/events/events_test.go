package events

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ric-network/catalogdao/internal/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type sliceSink struct {
	mu     sync.Mutex
	events []domain.Event
}

func (s *sliceSink) Emit(ev domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

// ─── Emitter ────────────────────────────────────────────────────────────────

func TestEmitter_StampsAndFansOut(t *testing.T) {
	e := NewEmitter()
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return fixed }

	a, b := &sliceSink{}, &sliceSink{}
	e.Add("a", a)
	e.Add("b", b)

	e.Emit(domain.NewEvent(domain.EventStaked, 3, "alice").WithUint("amount", 30))

	require.Len(t, a.events, 1)
	require.Len(t, b.events, 1)
	ev := a.events[0]
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, fixed, ev.Time)
	assert.Equal(t, ev.ID, b.events[0].ID, "every sink sees the same id")
	assert.Equal(t, uint64(1), e.Emitted())
}

func TestEmitter_ReplaceSink(t *testing.T) {
	e := NewEmitter()
	old, replacement := &sliceSink{}, &sliceSink{}
	e.Add("db", old)
	e.Add("db", replacement)

	e.Emit(domain.NewEvent(domain.EventRankVoted, 1, "a"))
	assert.Equal(t, []string{"db"}, e.Sinks())
	assert.Empty(t, old.events)
	assert.Len(t, replacement.events, 1)
}

func TestEmitter_Disabled(t *testing.T) {
	e := NewEmitter()
	s := &sliceSink{}
	e.Add("s", s)

	e.SetEnabled(false)
	e.Emit(domain.NewEvent(domain.EventStaked, 1, "a"))
	assert.Empty(t, s.events)
	assert.False(t, e.Enabled())

	e.SetEnabled(true)
	e.Emit(domain.NewEvent(domain.EventStaked, 1, "a"))
	assert.Len(t, s.events, 1)
}

// ─── Recorder ───────────────────────────────────────────────────────────────

func TestRecorder_RingBuffer(t *testing.T) {
	r := NewRecorder(3)
	for h := uint64(1); h <= 5; h++ {
		r.Emit(domain.NewEvent(domain.EventRankVoted, h, "a"))
	}
	require.Equal(t, 3, r.Len())

	got := r.Recent(0)
	require.Len(t, got, 3)
	assert.Equal(t, uint64(5), got[0].Height)
	assert.Equal(t, uint64(3), got[2].Height)

	assert.Len(t, r.Recent(2), 2)
}

func TestRecorder_FilterByType(t *testing.T) {
	r := NewRecorder(10)
	r.Emit(domain.NewEvent(domain.EventStaked, 1, "a"))
	r.Emit(domain.NewEvent(domain.EventRankVoted, 2, "a"))
	r.Emit(domain.NewEvent(domain.EventStaked, 3, "b"))

	got := r.Recent(0, domain.EventStaked)
	require.Len(t, got, 2)
	assert.Equal(t, domain.Account("b"), got[0].Account)
}

// ─── NATS Sink ──────────────────────────────────────────────────────────────

type fakePublisher struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
	fail     bool
}

func (p *fakePublisher) Publish(subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("nats: connection closed")
	}
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, data)
	return nil
}

func TestNATSSink_PublishesJSON(t *testing.T) {
	pub := &fakePublisher{}
	s := NewNATSSink(pub, "catalogdao", 8, nil)

	ev := domain.NewEvent(domain.EventListingClosed, 9, "p1").With("state", "ACCEPTED")
	ev.ID = "ev-1"
	s.Emit(ev)
	require.NoError(t, s.Close())

	require.Equal(t, []string{"catalogdao.listing.closed"}, pub.subjects)
	var got domain.Event
	require.NoError(t, json.Unmarshal(pub.payloads[0], &got))
	assert.Equal(t, "ev-1", got.ID)
	assert.Equal(t, "ACCEPTED", got.Attrs["state"])
	assert.Equal(t, uint64(1), s.Published())
}

func TestNATSSink_PublishErrorsCountAsDropped(t *testing.T) {
	pub := &fakePublisher{fail: true}
	s := NewNATSSink(pub, "", 4, nil)
	s.Emit(domain.NewEvent(domain.EventStaked, 1, "a"))
	require.NoError(t, s.Close())

	assert.Equal(t, uint64(0), s.Published())
	assert.Equal(t, uint64(1), s.Dropped())
	assert.Equal(t, "staking.staked", s.Subject(domain.EventStaked))
}

func TestNATSSink_EmitAfterClose(t *testing.T) {
	pub := &fakePublisher{}
	s := NewNATSSink(pub, "x", 1, nil)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	s.Emit(domain.NewEvent(domain.EventStaked, 1, "a")) // must not panic
	assert.Empty(t, pub.subjects)
}
