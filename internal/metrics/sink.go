package metrics

import (
	"context"

	"github.com/faustbrian/sequencer/internal/eventbus"
)

// Sink adapts the Prometheus collectors to eventbus.Observer, gated by
// the reporting.pulse configuration knob. It is registered explicitly
// on the event bus by cmd/sequencer's newApp and never probed for at
// runtime.
type Sink struct{}

func NewSink() Sink { return Sink{} }

func (Sink) Name() string { return "prometheus" }

func (Sink) Observe(_ context.Context, ev eventbus.Event) {
	if ev.Operation == nil {
		return
	}
	name, opType := ev.Operation.Name, string(ev.Operation.Type)

	switch ev.Type {
	case eventbus.EventCompleted:
		RecordOperation(name, opType, "completed")
		RecordAttempt(name, opType, ev.DurationMS)
	case eventbus.EventFailed:
		RecordOperation(name, opType, "failed")
		RecordAttempt(name, opType, ev.DurationMS)
	case eventbus.EventSkipped:
		RecordOperation(name, opType, "skipped")
	case eventbus.EventRolledBack:
		outcome := "ok"
		if ev.Err != nil {
			outcome = "error"
		}
		RecordRollback(name, outcome)
	case eventbus.EventRetrying:
		RecordRetry(name)
	case eventbus.EventGuardDenied:
		RecordGuardDenied(name, ev.Reason)
	}
}
