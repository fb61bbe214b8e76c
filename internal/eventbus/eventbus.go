// Package eventbus is the synchronous observer fan-out (§4.7): every
// lifecycle event the Runner emits is delivered to every registered
// Observer, in registration order, before the Runner proceeds. This
// is a deliberate departure from the queued, asynchronous delivery
// model this codebase uses elsewhere for webhook/outbox delivery —
// the sequencer's events are audit-critical and must be observed
// before the operation that produced them is considered done.
package eventbus

import (
	"context"

	"github.com/faustbrian/sequencer/internal/domain"
	"github.com/faustbrian/sequencer/internal/logging"
)

// EventType names the lifecycle moments observers can react to.
type EventType string

const (
	EventStarted     EventType = "started"
	EventCompleted   EventType = "completed"
	EventFailed      EventType = "failed"
	EventSkipped     EventType = "skipped"
	EventRetrying    EventType = "retrying"
	EventRolledBack  EventType = "rolled_back"
	EventGuardDenied EventType = "guard_denied"
)

// Event is the payload delivered to every Observer.
type Event struct {
	Type      EventType
	Operation *domain.Descriptor
	Record    *domain.Record
	Attempt   int
	Err       error
	Reason    string

	// DurationMS is the elapsed time of the attempt that produced a
	// terminal event (Completed/Failed), in milliseconds. Zero for
	// events that do not close out an attempt (Started, Retrying).
	DurationMS int64
}

// Observer reacts to operation lifecycle events. Implementations must
// not block indefinitely: the Bus calls observers synchronously and a
// slow observer slows every operation.
type Observer interface {
	Name() string
	Observe(ctx context.Context, ev Event)
}

// Bus fans an event out to every registered Observer, in registration
// order, recovering from (and logging) any observer panic so one
// broken sink can never take down a run.
type Bus struct {
	observers []Observer
}

// New builds a Bus with the given observers, registered explicitly —
// per the design note that observers never self-register or get
// discovered via reflection/interface probing.
func New(observers ...Observer) *Bus {
	return &Bus{observers: observers}
}

// Register appends an observer after construction.
func (b *Bus) Register(o Observer) {
	b.observers = append(b.observers, o)
}

// Publish delivers ev to every observer in registration order.
func (b *Bus) Publish(ctx context.Context, ev Event) {
	for _, o := range b.observers {
		b.deliver(ctx, o, ev)
	}
}

func (b *Bus) deliver(ctx context.Context, o Observer, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			logging.Op().Error("observer panicked", "observer", o.Name(), "event", ev.Type, "panic", r)
		}
	}()
	o.Observe(ctx, ev)
}
