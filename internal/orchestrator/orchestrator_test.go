package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/faustbrian/sequencer/internal/domain"
	"github.com/faustbrian/sequencer/internal/runner"
	"github.com/faustbrian/sequencer/internal/store"
)

func newTestOrchestrator() *Orchestrator {
	return New(runner.RecordingMode(runner.NewRecorder()), nil, nil, Config{Parallelism: 2, DefaultMaxAttempts: 1})
}

func TestProcess_EmptyReturnsEmptyResult(t *testing.T) {
	o := newTestOrchestrator()
	res, err := o.Process(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Outcomes) != 0 {
		t.Fatalf("expected no outcomes, got %v", res.Outcomes)
	}
}

func TestProcess_RoutesBatchType(t *testing.T) {
	o := newTestOrchestrator()
	ops := []*domain.Descriptor{
		{Name: "a", Type: domain.TypeBatch, Handle: func(_ context.Context, _ any) (any, error) { return nil, nil }},
		{Name: "b", Type: domain.TypeBatch, Handle: func(_ context.Context, _ any) (any, error) { return nil, nil }},
	}
	res, err := o.Process(context.Background(), ops)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(res.Outcomes))
	}
}

func TestProcess_RoutesDependencyGraphWhenDependsOnPresent(t *testing.T) {
	o := newTestOrchestrator()
	var order []string
	ops := []*domain.Descriptor{
		{Name: "migrate", Type: domain.TypeSync, Handle: func(_ context.Context, _ any) (any, error) {
			order = append(order, "migrate")
			return nil, nil
		}},
		{Name: "seed", Type: domain.TypeSync, DependsOn: []string{"migrate"}, Handle: func(_ context.Context, _ any) (any, error) {
			order = append(order, "seed")
			return nil, nil
		}},
	}
	res, err := o.Process(context.Background(), ops)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Err != nil {
		t.Fatalf("unexpected result error: %v", res.Err)
	}
	if len(order) != 2 || order[0] != "migrate" || order[1] != "seed" {
		t.Fatalf("expected migrate before seed, got %v", order)
	}
}

func TestProcess_UnknownTypeErrors(t *testing.T) {
	o := newTestOrchestrator()
	ops := []*domain.Descriptor{{Name: "a", Type: domain.Type("bogus")}}
	_, err := o.Process(context.Background(), ops)
	if err == nil {
		t.Fatal("expected an error for an unrecognized type")
	}
}

func TestRollback_ErrorsWhenNotRollbackable(t *testing.T) {
	o := newTestOrchestrator()
	op := &domain.Descriptor{Name: "immutable"}
	err := o.Rollback(context.Background(), nil, op)
	if err == nil {
		t.Fatal("expected an error for a non-rollbackable operation")
	}
}

func TestRollback_ErrorsWhenNoCompletedRun(t *testing.T) {
	o := newTestOrchestrator()
	op := &domain.Descriptor{
		Name:         "deploy",
		Capabilities: map[domain.Capability]bool{domain.CapRollbackable: true},
		Rollback:     func(_ context.Context, _ any) error { return nil },
	}
	err := o.Rollback(context.Background(), fakeStore{}, op)
	if err == nil {
		t.Fatal("expected an error when there is no completed run to roll back")
	}
}

// fakeStore is a no-op store.OperationStore that reports no completed
// run for any name, enough to exercise Rollback's not-found path
// without a real Postgres connection.
type fakeStore struct{}

func (fakeStore) BeginExclusive(_ context.Context, _ string, fn func(context.Context, store.Tx) error) error {
	return fn(context.Background(), nil)
}
func (fakeStore) InsertPending(_ context.Context, _ store.Tx, op *domain.Descriptor) (*domain.Record, error) {
	return &domain.Record{Name: op.Name, State: domain.StatePending}, nil
}
func (fakeStore) Transition(_ context.Context, _ store.Tx, _ any, _ domain.State, _ string) error {
	return nil
}
func (fakeStore) RecordError(_ context.Context, _ store.Tx, _ any, _ *domain.ErrorRecord) error {
	return nil
}
func (fakeStore) LastCompletion(_ context.Context, _ string) (*domain.Record, error) {
	return nil, nil
}
func (fakeStore) PendingNames(_ context.Context, _ time.Time) ([]string, error) { return nil, nil }
func (fakeStore) StateCounts(_ context.Context) (store.StateCounts, error)      { return store.StateCounts{}, nil }
func (fakeStore) RunInTransaction(_ context.Context, fn func(context.Context, store.Tx) error) error {
	return fn(context.Background(), nil)
}
func (fakeStore) Ping(_ context.Context) error { return nil }
func (fakeStore) Close() error                 { return nil }
