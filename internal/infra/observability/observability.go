// Package observability provides operation tracing and Prometheus metrics
// for the ledger.
//
// This provides:
//   - Spans for every applied operation, kept in a ring buffer for inspection
//   - Trace id propagation through context
//   - Governance and custody metrics, updated from the event stream
package observability

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ric-network/catalogdao/internal/domain"
)

// ═══════════════════════════════════════════════════════════════════════════
// Operation Spans
// ═══════════════════════════════════════════════════════════════════════════

// SpanStatus indicates success/failure.
type SpanStatus int

const (
	SpanOK SpanStatus = iota
	SpanError
)

// Span records one applied ledger operation.
type Span struct {
	TraceID   string            `json:"trace_id"`
	SpanID    string            `json:"span_id"`
	ParentID  string            `json:"parent_id,omitempty"`
	Operation string            `json:"operation"`
	Caller    domain.Account    `json:"caller,omitempty"`
	Height    uint64            `json:"height"`
	StartTime time.Time         `json:"start_time"`
	EndTime   time.Time         `json:"end_time,omitempty"`
	Duration  time.Duration     `json:"duration,omitempty"`
	Status    SpanStatus        `json:"status"`
	ErrorKind string            `json:"error_kind,omitempty"`
	Attrs     map[string]string `json:"attrs,omitempty"`
}

// ─── Tracer ─────────────────────────────────────────────────────────────────

// Tracer stores finished spans in memory.
type Tracer struct {
	mu       sync.Mutex
	spans    []Span
	maxSpans int
	enabled  bool

	// Injectable clock for testing.
	now func() time.Time
}

// TracerConfig configures the tracer.
type TracerConfig struct {
	Enabled  bool
	MaxSpans int // ring buffer size (default 10_000)
}

// DefaultTracerConfig returns production defaults.
func DefaultTracerConfig() TracerConfig {
	return TracerConfig{
		Enabled:  true,
		MaxSpans: 10_000,
	}
}

// NewTracer creates a new tracer.
func NewTracer(cfg TracerConfig) *Tracer {
	if cfg.MaxSpans <= 0 {
		cfg.MaxSpans = DefaultTracerConfig().MaxSpans
	}
	return &Tracer{
		spans:    make([]Span, 0, cfg.MaxSpans),
		maxSpans: cfg.MaxSpans,
		enabled:  cfg.Enabled,
		now:      time.Now,
	}
}

// StartSpan begins a span for an operation submitted by caller at height.
func (t *Tracer) StartSpan(ctx context.Context, operation string, caller domain.Account, height uint64) *Span {
	if !t.enabled {
		return &Span{Operation: operation}
	}
	return &Span{
		TraceID:   TraceIDFromContext(ctx),
		SpanID:    uuid.NewString(),
		ParentID:  spanIDFromContext(ctx),
		Operation: operation,
		Caller:    caller,
		Height:    height,
		StartTime: t.now(),
		Status:    SpanOK,
	}
}

// EndSpan completes a span, records it and updates operation metrics.
func (t *Tracer) EndSpan(span *Span, err error) {
	if span == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = resultLabel(err)
	}
	OperationsTotal.WithLabelValues(span.Operation, result).Inc()
	if !t.enabled {
		return
	}

	span.EndTime = t.now()
	span.Duration = span.EndTime.Sub(span.StartTime)
	OperationLatency.WithLabelValues(span.Operation).Observe(span.Duration.Seconds())
	if err != nil {
		span.Status = SpanError
		span.ErrorKind = result
		if span.Attrs == nil {
			span.Attrs = make(map[string]string)
		}
		span.Attrs["error"] = err.Error()
		if code := domain.Code(err); code != 0 {
			span.Attrs["code"] = strconv.Itoa(code)
		}
		TraceErrors.Inc()
	}
	TracesRecorded.Inc()

	t.mu.Lock()
	defer t.mu.Unlock()

	// Ring buffer: overwrite oldest if at capacity
	if len(t.spans) >= t.maxSpans {
		t.spans = t.spans[1:]
	}
	t.spans = append(t.spans, *span)
}

// Spans returns up to limit of the most recent spans, oldest first.
func (t *Tracer) Spans(limit int) []Span {
	t.mu.Lock()
	defer t.mu.Unlock()

	if limit <= 0 || limit > len(t.spans) {
		limit = len(t.spans)
	}
	start := len(t.spans) - limit
	out := make([]Span, limit)
	copy(out, t.spans[start:])
	return out
}

// SpanCount returns the number of recorded spans.
func (t *Tracer) SpanCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.spans)
}

// Reset clears all recorded spans.
func (t *Tracer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.spans = t.spans[:0]
}

// resultLabel names the error kind for metric labels.
func resultLabel(err error) string {
	switch domain.KindOf(err) {
	case domain.ErrAuthorization:
		return "authorization"
	case domain.ErrStateConflict:
		return "state_conflict"
	case domain.ErrTiming:
		return "timing"
	case domain.ErrResource:
		return "resource"
	case domain.ErrReferential:
		return "referential"
	case domain.ErrValidation:
		return "validation"
	}
	return "internal"
}

// ─── Context Helpers ────────────────────────────────────────────────────────

type contextKey string

const (
	traceIDKey contextKey = "catalogdao-trace-id"
	spanIDKey  contextKey = "catalogdao-span-id"
)

// WithTraceID returns a context with the given trace ID.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// WithSpanID returns a context with the given span ID.
func WithSpanID(ctx context.Context, spanID string) context.Context {
	return context.WithValue(ctx, spanIDKey, spanID)
}

// TraceIDFromContext returns the trace id carried by ctx, or a fresh one.
func TraceIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok && v != "" {
		return v
	}
	return uuid.NewString()
}

func spanIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(spanIDKey).(string); ok {
		return v
	}
	return ""
}

// ═══════════════════════════════════════════════════════════════════════════
// Prometheus Metrics
// ═══════════════════════════════════════════════════════════════════════════

// ─── Operation Metrics ──────────────────────────────────────────────────────

// OperationsTotal counts applied operations by kind and result.
var OperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "catalogdao",
	Subsystem: "ledger",
	Name:      "operations_total",
	Help:      "Total ledger operations by kind and result.",
}, []string{"op", "result"})

// OperationLatency tracks operation apply latency.
var OperationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "catalogdao",
	Subsystem: "ledger",
	Name:      "operation_seconds",
	Help:      "Time to apply a ledger operation.",
	Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
}, []string{"op"})

// LedgerHeight tracks the current ledger height.
var LedgerHeight = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "catalogdao",
	Subsystem: "ledger",
	Name:      "height",
	Help:      "Current ledger height.",
})

// ─── Governance Metrics ─────────────────────────────────────────────────────

// ProposalsCreated counts proposals by family.
var ProposalsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "catalogdao",
	Subsystem: "governance",
	Name:      "proposals_created_total",
	Help:      "Total proposals created by family.",
}, []string{"family"})

// VotesCast counts votes by family.
var VotesCast = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "catalogdao",
	Subsystem: "governance",
	Name:      "votes_total",
	Help:      "Total votes cast by family.",
}, []string{"family"})

// ProposalsClosed counts resolved proposals by family and outcome.
var ProposalsClosed = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "catalogdao",
	Subsystem: "governance",
	Name:      "proposals_closed_total",
	Help:      "Total resolved proposals by family and outcome.",
}, []string{"family", "outcome"})

// Opinions counts post-acceptance opinions.
var Opinions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "catalogdao",
	Subsystem: "governance",
	Name:      "opinions_total",
	Help:      "Total opinions expressed on accepted listings.",
}, []string{"liked"})

// RankChanges counts rank transitions by reason.
var RankChanges = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "catalogdao",
	Subsystem: "governance",
	Name:      "rank_changes_total",
	Help:      "Total rank changes by reason.",
}, []string{"reason"})

// ─── Custody Metrics ────────────────────────────────────────────────────────

// StakeEvents counts stake lifecycle events.
var StakeEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "catalogdao",
	Subsystem: "staking",
	Name:      "events_total",
	Help:      "Total stake ledger events by type.",
}, []string{"type"})

// RewardsPaid tracks tokens paid out as listing rewards.
var RewardsPaid = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "catalogdao",
	Subsystem: "staking",
	Name:      "rewards_paid_total",
	Help:      "Total tokens paid from the reward pool.",
})

// PenaltiesTotal tracks tokens slashed into the reward pool.
var PenaltiesTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "catalogdao",
	Subsystem: "staking",
	Name:      "penalties_total",
	Help:      "Total tokens slashed into the reward pool.",
})

// RewardPool tracks the reward pool balance.
var RewardPool = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "catalogdao",
	Subsystem: "staking",
	Name:      "reward_pool",
	Help:      "Current reward pool balance.",
})

// ─── Trace Metrics ──────────────────────────────────────────────────────────

// TracesRecorded tracks total spans recorded.
var TracesRecorded = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "catalogdao",
	Subsystem: "traces",
	Name:      "spans_recorded_total",
	Help:      "Total operation spans recorded.",
})

// TraceErrors tracks error spans.
var TraceErrors = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "catalogdao",
	Subsystem: "traces",
	Name:      "error_spans_total",
	Help:      "Total operation spans with error status.",
})

// ═══════════════════════════════════════════════════════════════════════════
// Event-driven Metrics
// ═══════════════════════════════════════════════════════════════════════════

// MetricsSink updates metrics from the ledger event stream.
type MetricsSink struct{}

// Emit implements domain.EventSink.
func (MetricsSink) Emit(ev domain.Event) {
	switch ev.Type {
	case domain.EventRankProposed:
		ProposalsCreated.WithLabelValues(string(domain.FamilyRank)).Inc()
	case domain.EventListingProposed:
		ProposalsCreated.WithLabelValues(string(domain.FamilyListing)).Inc()
	case domain.EventRemovalProposed:
		ProposalsCreated.WithLabelValues(string(domain.FamilyRemoval)).Inc()

	case domain.EventRankVoted:
		VotesCast.WithLabelValues(string(domain.FamilyRank)).Inc()
	case domain.EventListingVoted:
		VotesCast.WithLabelValues(string(domain.FamilyListing)).Inc()
	case domain.EventRemovalVoted:
		VotesCast.WithLabelValues(string(domain.FamilyRemoval)).Inc()

	case domain.EventRankClosed:
		ProposalsClosed.WithLabelValues(string(domain.FamilyRank), outcome(ev.Attrs["granted"], "granted", "not_granted")).Inc()
	case domain.EventListingClosed:
		ProposalsClosed.WithLabelValues(string(domain.FamilyListing), ev.Attrs["state"]).Inc()
	case domain.EventListingPenalized:
		ProposalsClosed.WithLabelValues(string(domain.FamilyListing), string(domain.ListingPenalized)).Inc()
	case domain.EventRemovalClosed:
		ProposalsClosed.WithLabelValues(string(domain.FamilyRemoval), outcome(ev.Attrs["accepted"], "accepted", "rejected")).Inc()

	case domain.EventOpinion:
		Opinions.WithLabelValues(ev.Attrs["liked"]).Inc()
	case domain.EventRankChanged:
		RankChanges.WithLabelValues(ev.Attrs["reason"]).Inc()

	case domain.EventStaked, domain.EventUnstaked, domain.EventStakeExtended:
		StakeEvents.WithLabelValues(string(ev.Type)).Inc()
	case domain.EventRewardDeposited:
		StakeEvents.WithLabelValues(string(ev.Type)).Inc()
		RewardPool.Set(float64(ev.Uint("pool")))
	case domain.EventRewardClaimed:
		StakeEvents.WithLabelValues(string(ev.Type)).Inc()
		RewardsPaid.Add(float64(ev.Uint("amount")))
		RewardPool.Set(float64(ev.Uint("pool")))
	case domain.EventPenalized:
		StakeEvents.WithLabelValues(string(ev.Type)).Inc()
		PenaltiesTotal.Add(float64(ev.Uint("amount")))
		RewardPool.Set(float64(ev.Uint("pool")))
	}
}

func outcome(flag, yes, no string) string {
	if flag == "true" {
		return yes
	}
	return no
}
