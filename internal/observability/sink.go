package observability

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"github.com/faustbrian/sequencer/internal/eventbus"
)

// Sink adapts the OpenTelemetry tracer to eventbus.Observer, gated by
// the reporting.telescope configuration knob. A span is opened on
// EventStarted and closed on the matching terminal event, keyed by
// operation name + attempt since a retried operation's attempts are
// distinct spans. The span map is mutex-guarded since concurrent
// strategies (Batch, DependencyGraph) publish events from multiple
// goroutines at once.
type Sink struct {
	mu    sync.Mutex
	spans map[spanKey]trace.Span
}

type spanKey struct {
	name    string
	attempt int
}

func NewSink() *Sink {
	return &Sink{spans: make(map[spanKey]trace.Span)}
}

func (*Sink) Name() string { return "opentelemetry" }

func (s *Sink) Observe(ctx context.Context, ev eventbus.Event) {
	if ev.Operation == nil {
		return
	}
	key := spanKey{name: ev.Operation.Name, attempt: ev.Attempt}

	switch ev.Type {
	case eventbus.EventStarted:
		_, span := StartSpan(ctx, "operation:"+ev.Operation.Name,
			AttrOperationName.String(ev.Operation.Name),
			AttrOperationType.String(string(ev.Operation.Type)),
			AttrAttempt.Int(ev.Attempt),
		)
		s.mu.Lock()
		s.spans[key] = span
		s.mu.Unlock()
	case eventbus.EventCompleted:
		s.finish(key, nil)
	case eventbus.EventFailed, eventbus.EventRetrying:
		s.finish(key, ev.Err)
	case eventbus.EventSkipped, eventbus.EventRolledBack:
		s.finish(key, nil)
	}
}

func (s *Sink) finish(key spanKey, err error) {
	s.mu.Lock()
	span, ok := s.spans[key]
	if ok {
		delete(s.spans, key)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	if err != nil {
		SetSpanError(span, err)
	} else {
		SetSpanOK(span)
	}
	span.End()
}
