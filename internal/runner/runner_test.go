package runner

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/faustbrian/sequencer/internal/domain"
	"github.com/faustbrian/sequencer/internal/eventbus"
	"github.com/faustbrian/sequencer/internal/guard"
	"github.com/faustbrian/sequencer/internal/sequencer"
	"github.com/faustbrian/sequencer/internal/store"
)

func TestRunner_RecordingMode_CompletesSuccessfully(t *testing.T) {
	rec := NewRecorder()
	r := New(RecordingMode(rec), nil, nil, Defaults{MaxAttempts: 1})

	op := &domain.Descriptor{
		Name: "deploy-web",
		Handle: func(_ context.Context, _ any) (any, error) {
			return "ok", nil
		},
	}

	out := r.Run(context.Background(), op)
	if out.State != domain.StateCompleted {
		t.Fatalf("expected Completed, got %v (%v)", out.State, out.Err)
	}

	actions := rec.Find(func(e Entry) bool { return e.Operation == "deploy-web" })
	if len(actions) != 2 {
		t.Fatalf("expected insert_pending + transition:completed, got %v", actions)
	}
}

func TestRunner_RetriesTransientFailures(t *testing.T) {
	rec := NewRecorder()
	attempts := 0
	op := &domain.Descriptor{
		Name: "flaky",
		Handle: func(_ context.Context, _ any) (any, error) {
			attempts++
			if attempts < 3 {
				return nil, sequencer.ErrTransientIO
			}
			return "ok", nil
		},
		InitialBackoffMS: 1,
		MaxBackoffMS:     2,
	}
	r := New(RecordingMode(rec), nil, nil, Defaults{MaxAttempts: 5, InitialBackoffMS: 1, MaxBackoffMS: 2, BackoffMultiplier: 1})

	out := r.Run(context.Background(), op)
	if out.State != domain.StateCompleted {
		t.Fatalf("expected eventual success, got %v (%v)", out.State, out.Err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestRunner_GivesUpAfterMaxAttempts(t *testing.T) {
	rec := NewRecorder()
	op := &domain.Descriptor{
		Name:        "always-fails",
		MaxAttempts: 2,
		Handle: func(_ context.Context, _ any) (any, error) {
			return nil, sequencer.ErrTransientIO
		},
		InitialBackoffMS: 1,
	}
	r := New(RecordingMode(rec), nil, nil, Defaults{MaxAttempts: 2, InitialBackoffMS: 1, MaxBackoffMS: 2, BackoffMultiplier: 1})

	out := r.Run(context.Background(), op)
	if out.State != domain.StateFailed {
		t.Fatalf("expected Failed, got %v", out.State)
	}
	if !errors.Is(out.Err, sequencer.ErrTransientIO) {
		t.Fatalf("expected wrapped ErrTransientIO, got %v", out.Err)
	}
}

func TestRunner_GuardDeniedNeverInvokesHandle(t *testing.T) {
	rec := NewRecorder()
	called := false
	op := &domain.Descriptor{
		Name: "blocked",
		Handle: func(_ context.Context, _ any) (any, error) {
			called = true
			return nil, nil
		},
	}
	chain := guard.NewChain(guard.HostnameGuard{Allowed: []string{"other"}})
	r := New(RecordingMode(rec), chain, nil, Defaults{MaxAttempts: 1})

	out := r.Run(context.Background(), op)
	if out.State != domain.StateFailed {
		t.Fatalf("expected Failed from guard denial, got %v", out.State)
	}
	if called {
		t.Fatal("expected Handle to never be invoked when a guard denies")
	}
	if !errors.Is(out.Err, sequencer.ErrGuardDenied) {
		t.Fatalf("expected ErrGuardDenied, got %v", out.Err)
	}
	if out.Record == nil {
		t.Fatal("expected a record to be written on guard denial")
	}
	actions := rec.Find(func(e Entry) bool { return e.Operation == "blocked" })
	if len(actions) != 2 {
		t.Fatalf("expected transition:failed + record_error, got %v", actions)
	}
}

func TestRunner_GuardSkipTransitionsWithoutRunningHandle(t *testing.T) {
	rec := NewRecorder()
	called := false
	op := &domain.Descriptor{
		Name: "conditionally-skipped",
		Capabilities: map[domain.Capability]bool{
			domain.CapConditionalExecution: true,
		},
		Condition: func(_ context.Context, _ map[string]any) (bool, error) { return false, nil },
		Handle: func(_ context.Context, _ any) (any, error) {
			called = true
			return nil, nil
		},
	}
	chain := guard.NewChain(guard.ConditionGuard{})
	r := New(RecordingMode(rec), chain, nil, Defaults{MaxAttempts: 1})

	out := r.Run(context.Background(), op)
	if out.State != domain.StateSkipped {
		t.Fatalf("expected Skipped, got %v", out.State)
	}
	if called {
		t.Fatal("expected Handle to never run for a skipped operation")
	}
}

func TestRunner_PublishesLifecycleEvents(t *testing.T) {
	rec := NewRecorder()
	var seen []eventbus.EventType
	bus := eventbus.New(observerFunc(func(ev eventbus.Event) { seen = append(seen, ev.Type) }))

	op := &domain.Descriptor{
		Name:   "deploy",
		Handle: func(_ context.Context, _ any) (any, error) { return nil, nil },
	}
	r := New(RecordingMode(rec), nil, bus, Defaults{MaxAttempts: 1})
	r.Run(context.Background(), op)

	want := []eventbus.EventType{eventbus.EventStarted, eventbus.EventCompleted}
	if len(seen) != len(want) {
		t.Fatalf("got events %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("got events %v, want %v", seen, want)
		}
	}
}

type observerFunc func(eventbus.Event)

func (observerFunc) Name() string { return "test" }
func (f observerFunc) Observe(_ context.Context, ev eventbus.Event) { f(ev) }

// busyStore simulates a second runner already holding the named
// operation's advisory lock: BeginExclusive reports ErrBusy without
// ever invoking fn, so none of the write methods below should ever be
// called in this test — they exist only to satisfy the interface.
type busyStore struct{}

func (busyStore) BeginExclusive(_ context.Context, name string, _ func(context.Context, store.Tx) error) error {
	return fmt.Errorf("%w: %s", sequencer.ErrBusy, name)
}
func (busyStore) InsertPending(_ context.Context, _ store.Tx, _ *domain.Descriptor) (*domain.Record, error) {
	return nil, errors.New("unreachable: lock never acquired")
}
func (busyStore) Transition(_ context.Context, _ store.Tx, _ any, _ domain.State, _ string) error {
	return errors.New("unreachable: lock never acquired")
}
func (busyStore) RecordError(_ context.Context, _ store.Tx, _ any, _ *domain.ErrorRecord) error {
	return errors.New("unreachable: lock never acquired")
}
func (busyStore) LastCompletion(_ context.Context, _ string) (*domain.Record, error) { return nil, nil }
func (busyStore) PendingNames(_ context.Context, _ time.Time) ([]string, error)      { return nil, nil }
func (busyStore) StateCounts(_ context.Context) (store.StateCounts, error)           { return store.StateCounts{}, nil }
func (busyStore) RunInTransaction(_ context.Context, fn func(context.Context, store.Tx) error) error {
	return fn(context.Background(), nil)
}
func (busyStore) Ping(_ context.Context) error { return nil }
func (busyStore) Close() error                 { return nil }

// TestRunner_BusyLockSkipsWithoutWritingARow covers the S3 multi-host
// race scenario (§4.6/§5/§8 invariant 2): when BeginExclusive reports
// that another runner already holds name's advisory lock, this run
// must be treated as Skipped without ever reaching insert_pending —
// the row for this execution belongs to whichever runner holds the
// lock, not to the loser of the race.
func TestRunner_BusyLockSkipsWithoutWritingARow(t *testing.T) {
	op := &domain.Descriptor{
		Name: "migrate",
		Handle: func(_ context.Context, _ any) (any, error) {
			t.Fatal("Handle must never run when the advisory lock is held elsewhere")
			return nil, nil
		},
	}
	var seen []eventbus.EventType
	bus := eventbus.New(observerFunc(func(ev eventbus.Event) { seen = append(seen, ev.Type) }))
	r := New(RealMode(busyStore{}), nil, bus, Defaults{MaxAttempts: 1})

	out := r.Run(context.Background(), op)
	if out.State != domain.StateSkipped {
		t.Fatalf("expected Skipped on a busy lock, got %v (%v)", out.State, out.Err)
	}
	if out.Record != nil {
		t.Fatalf("expected no record written on a busy lock, got %v", out.Record)
	}
	if len(seen) != 1 || seen[0] != eventbus.EventSkipped {
		t.Fatalf("expected a single EventSkipped, got %v", seen)
	}
}
