package eventbus

import (
	"context"
	"testing"

	"github.com/faustbrian/sequencer/internal/domain"
)

type recordingObserver struct {
	name string
	seen []Event
	// log, when set, receives this observer's name on every delivery,
	// so several observers sharing one log record the delivery order.
	log *[]string
}

func (r *recordingObserver) Name() string { return r.name }
func (r *recordingObserver) Observe(_ context.Context, ev Event) {
	r.seen = append(r.seen, ev)
	if r.log != nil {
		*r.log = append(*r.log, r.name)
	}
}

func TestBus_DeliversInRegistrationOrder(t *testing.T) {
	var order []string
	a := &recordingObserver{name: "a", log: &order}
	b := &recordingObserver{name: "b", log: &order}
	bus := New(a, b)

	bus.Publish(context.Background(), Event{Type: EventStarted, Operation: &domain.Descriptor{Name: "deploy"}})

	for _, o := range []*recordingObserver{a, b} {
		if len(o.seen) != 1 {
			t.Fatalf("expected observer %s to see 1 event, got %d", o.name, len(o.seen))
		}
	}
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("expected delivery order [a b], got %v", order)
	}
}

type panickingObserver struct{}

func (panickingObserver) Name() string { return "panicker" }
func (panickingObserver) Observe(_ context.Context, _ Event) {
	panic("boom")
}

func TestBus_ContainsObserverPanic(t *testing.T) {
	after := &recordingObserver{name: "after"}
	bus := New(panickingObserver{}, after)

	bus.Publish(context.Background(), Event{Type: EventFailed})

	if len(after.seen) != 1 {
		t.Fatal("expected the observer after the panicking one to still be delivered to")
	}
}

func TestBus_RegisterAfterConstruction(t *testing.T) {
	bus := New()
	o := &recordingObserver{name: "late"}
	bus.Register(o)

	bus.Publish(context.Background(), Event{Type: EventCompleted})

	if len(o.seen) != 1 {
		t.Fatal("expected late-registered observer to receive the event")
	}
}
