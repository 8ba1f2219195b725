package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/swaffX/neuroviabot-website-sub003/automod/config"
)

var (
	AuditViolation   = "violation"
	AuditConfigError = "config-error"
	AuditReplay      = "replay"
	AuditReset       = "reset"
)

// Structured record of something automod did, for log channels and operators. The engine emits these but never
// formats or delivers them.
type AuditEvent struct {
	// one of the Audit* values
	Type           string
	GuildID        string
	UserID         string
	RuleKind       string
	Action         config.Action
	Duration       time.Duration
	ViolationCount int
	Timestamp      time.Time
	Detail         string
	// murmur3 fingerprint of the message content; the content itself is never included
	ContentHash string
	Error       string
	// guild log channel, copied from config; empty if none is configured
	LogChannelID string
}

type AuditSink interface {
	Emit(ctx context.Context, evt AuditEvent) error
}

// Sends every event to all the sinks, continuing past failures.
type MultiSink []AuditSink

func (m MultiSink) Emit(ctx context.Context, evt AuditEvent) error {
	var errs []error
	for _, s := range m {
		if err := s.Emit(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Bounded asynchronous hand-off to a slower sink. Emit never blocks: when the buffer is full the event is dropped
// and counted.
type AuditQueue struct {
	Sink   AuditSink
	Logger *slog.Logger

	events  chan AuditEvent
	done    chan struct{}
	closing sync.Once
	mu      sync.RWMutex
	closed  bool
}

func NewAuditQueue(sink AuditSink, size int, logger *slog.Logger) *AuditQueue {
	if logger == nil {
		logger = slog.Default()
	}
	if size < 1 {
		size = 1
	}
	q := &AuditQueue{
		Sink:   sink,
		Logger: logger.With("system", "audit"),
		events: make(chan AuditEvent, size),
		done:   make(chan struct{}),
	}
	go q.run()
	return q
}

var _ AuditSink = (*AuditQueue)(nil)

func (q *AuditQueue) Emit(ctx context.Context, evt AuditEvent) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		auditDropCount.Inc()
		return ErrAuditQueueFull
	}
	select {
	case q.events <- evt:
		return nil
	default:
		auditDropCount.Inc()
		return ErrAuditQueueFull
	}
}

func (q *AuditQueue) run() {
	defer close(q.done)
	for evt := range q.events {
		// delivery is detached from the evaluation that produced the event
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := q.Sink.Emit(ctx, evt); err != nil {
			q.Logger.Warn("failed to deliver audit event", "type", evt.Type, "guild", evt.GuildID, "err", err)
			auditErrorCount.Inc()
		}
		cancel()
	}
}

// Stops accepting events and waits for the buffered ones to be delivered, or for ctx to be done.
func (q *AuditQueue) Close(ctx context.Context) error {
	q.closing.Do(func() {
		q.mu.Lock()
		q.closed = true
		close(q.events)
		q.mu.Unlock()
	})
	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Keeps events in memory. For tests.
type MemAuditSink struct {
	mu     sync.Mutex
	Events []AuditEvent
}

func (s *MemAuditSink) Emit(ctx context.Context, evt AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Events = append(s.Events, evt)
	return nil
}

// Recorded events of the given type, or all events for an empty type.
func (s *MemAuditSink) Filter(typ string) []AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []AuditEvent
	for _, e := range s.Events {
		if typ == "" || e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}
