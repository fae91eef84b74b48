package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/ric-network/catalogdao/internal/domain"
)

// Publisher is the subset of *nats.Conn the sink needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSSink publishes events as JSON on "<prefix>.<event type>" subjects.
// Emit never blocks the ledger: events are queued and published by a
// background goroutine; when the queue is full the event is dropped.
type NATSSink struct {
	pub    Publisher
	conn   *nats.Conn // set when the sink owns the connection
	prefix string
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan domain.Event
	done   chan struct{}

	published atomic.Uint64
	dropped   atomic.Uint64
}

// NewNATSSink starts a sink publishing through pub.
func NewNATSSink(pub Publisher, prefix string, buffer int, logger *zap.Logger) *NATSSink {
	if buffer <= 0 {
		buffer = 256
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &NATSSink{
		pub:    pub,
		prefix: prefix,
		logger: logger,
		queue:  make(chan domain.Event, buffer),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

// ConnectNATS dials url and returns a sink that owns the connection.
func ConnectNATS(url, prefix string, buffer int, logger *zap.Logger) (*NATSSink, error) {
	nc, err := nats.Connect(url,
		nats.Name("catalogd"),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	s := NewNATSSink(nc, prefix, buffer, logger)
	s.conn = nc
	return s, nil
}

// Subject returns the subject an event type is published on.
func (s *NATSSink) Subject(typ domain.EventType) string {
	if s.prefix == "" {
		return string(typ)
	}
	return s.prefix + "." + string(typ)
}

// Emit queues ev for publication.
func (s *NATSSink) Emit(ev domain.Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.queue <- ev:
	default:
		s.dropped.Add(1)
	}
}

func (s *NATSSink) run() {
	defer close(s.done)
	for ev := range s.queue {
		data, err := json.Marshal(ev)
		if err != nil {
			s.logger.Error("marshal event", zap.String("type", string(ev.Type)), zap.Error(err))
			continue
		}
		if err := s.pub.Publish(s.Subject(ev.Type), data); err != nil {
			s.dropped.Add(1)
			s.logger.Warn("publish event", zap.String("type", string(ev.Type)), zap.Error(err))
			continue
		}
		s.published.Add(1)
	}
}

// Published returns the number of events handed to NATS.
func (s *NATSSink) Published() uint64 { return s.published.Load() }

// Dropped returns the number of events lost to a full queue or publish errors.
func (s *NATSSink) Dropped() uint64 { return s.dropped.Load() }

// Close drains the queue, stops the publisher goroutine and, when the sink
// owns the connection, flushes and closes it.
func (s *NATSSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	<-s.done
	if s.conn != nil {
		if err := s.conn.Flush(); err != nil {
			s.logger.Warn("flush NATS connection", zap.Error(err))
		}
		s.conn.Close()
	}
	return nil
}
