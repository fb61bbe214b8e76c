// Package strategy implements the six execution strategies (§4.5).
// Every strategy receives a runner.Runner plus either the operation
// descriptors or, for DependencyGraph, a resolved resolver.Plan, and
// decides only how many operations to dispatch concurrently and in
// what order; the per-operation state machine itself always lives
// in internal/runner.
package strategy

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/faustbrian/sequencer/internal/domain"
	"github.com/faustbrian/sequencer/internal/logging"
	"github.com/faustbrian/sequencer/internal/resolver"
	"github.com/faustbrian/sequencer/internal/runner"
	"github.com/faustbrian/sequencer/internal/sequencer"
)

// Result is the aggregate outcome of running a plan through a
// strategy: one runner.Outcome per operation, keyed by name, plus the
// operations that actually ran (for rollback ordering).
type Result struct {
	Outcomes map[string]runner.Outcome
	Ran      []*domain.Descriptor
	Err      error
}

func newResult() *Result {
	return &Result{Outcomes: make(map[string]runner.Outcome)}
}

// Sequential runs every operation in a single wave-ordered list, one
// at a time, stopping at the first failure.
func Sequential(ctx context.Context, r *runner.Runner, ops []*domain.Descriptor) *Result {
	res := newResult()
	for _, op := range ops {
		out := r.Run(ctx, op)
		res.Outcomes[op.Name] = out
		res.Ran = append(res.Ran, op)
		if out.State == domain.StateFailed {
			res.Err = out.Err
			return res
		}
	}
	return res
}

// Batch runs every operation concurrently, bounded by concurrency, and
// waits for all of them regardless of individual failures. Grounded
// on the bounded-semaphore fan-out pattern: a semaphore channel caps
// in-flight goroutines, and a WaitGroup provides the completion
// barrier.
func Batch(ctx context.Context, r *runner.Runner, ops []*domain.Descriptor, concurrency int) *Result {
	if concurrency <= 0 {
		concurrency = 1
	}
	sorted := sortedByName(ops)

	res := newResult()
	var mu sync.Mutex
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for _, op := range sorted {
		sem <- struct{}{}
		wg.Add(1)
		go func(op *domain.Descriptor) {
			defer wg.Done()
			defer func() { <-sem }()
			out := r.Run(ctx, op)
			mu.Lock()
			res.Outcomes[op.Name] = out
			res.Ran = append(res.Ran, op)
			mu.Unlock()
		}(op)
	}
	wg.Wait()
	return res
}

// AllowedToFailBatch behaves like Batch, except operations carrying
// CapAllowedToFail never contribute their failure to the batch-level
// error: the batch as a whole only fails if a non-allowed-to-fail
// operation fails.
func AllowedToFailBatch(ctx context.Context, r *runner.Runner, ops []*domain.Descriptor, concurrency int) *Result {
	res := Batch(ctx, r, ops, concurrency)
	for _, op := range ops {
		out := res.Outcomes[op.Name]
		if out.State == domain.StateFailed && !op.Has(domain.CapAllowedToFail) {
			res.Err = out.Err
			return res
		}
	}
	res.Err = nil
	return res
}

// TransactionalBatch runs every operation concurrently like Batch, but
// if any non-allowed-to-fail operation fails, every other completed
// operation in the batch is rolled back (in reverse completion order)
// before returning: Rollbackable siblings run their callback and have
// their record transitioned to RolledBack; non-Rollbackable siblings
// are rolled back store-only (§4.5) — a Completed row must not outlive
// the run it belonged to once that run is undone, invariant 5's "leaves
// the store as before the run" guarantee. When an operation is both
// AllowedToFail and part of a TransactionalBatch, its own failure does
// not trigger a rollback of its siblings — AllowedToFail takes
// precedence over the transactional guarantee for that single
// operation (§9 open question, resolved in DESIGN.md).
func TransactionalBatch(ctx context.Context, r *runner.Runner, ops []*domain.Descriptor, concurrency int) *Result {
	res := Batch(ctx, r, ops, concurrency)

	var failed *domain.Descriptor
	for _, op := range ops {
		out := res.Outcomes[op.Name]
		if out.State == domain.StateFailed && !op.Has(domain.CapAllowedToFail) {
			failed = op
			break
		}
	}
	if failed == nil {
		return res
	}
	res.Err = res.Outcomes[failed.Name].Err

	var completed []*domain.Descriptor
	for _, op := range res.Ran {
		if op.Name == failed.Name {
			continue
		}
		if res.Outcomes[op.Name].State == domain.StateCompleted {
			completed = append(completed, op)
		}
	}
	for i := len(completed) - 1; i >= 0; i-- {
		op := completed[i]
		out := res.Outcomes[op.Name]
		if err := r.Rollback(ctx, op, out.Record, out.Result); err != nil {
			logging.Op().Error("rollback failed", "operation", op.Name, "err", err)
		}
	}
	return res
}

// Chain runs operations sequentially, feeding each operation's output
// into the next one's Input.
func Chain(ctx context.Context, r *runner.Runner, ops []*domain.Descriptor) *Result {
	res := newResult()
	var lastOutput any
	for i, op := range ops {
		if i > 0 {
			op.Input = lastOutput
		}
		out := r.Run(ctx, op)
		res.Outcomes[op.Name] = out
		res.Ran = append(res.Ran, op)
		if out.State == domain.StateFailed {
			res.Err = out.Err
			return res
		}
		lastOutput = out.Result
	}
	return res
}

// DependencyGraph runs a resolver.Plan wave by wave: every wave's
// operations run concurrently (bounded by concurrency), and a wave
// only starts once the previous wave has fully settled. A failure in
// one wave still lets the rest of that wave finish (matching Batch's
// semantics) but prevents any later wave from starting.
func DependencyGraph(ctx context.Context, r *runner.Runner, plan *resolver.Plan, concurrency int) *Result {
	res := newResult()
	for _, wave := range plan.Waves {
		waveRes := Batch(ctx, r, wave, concurrency)
		for name, out := range waveRes.Outcomes {
			res.Outcomes[name] = out
		}
		res.Ran = append(res.Ran, waveRes.Ran...)

		failed := false
		for _, op := range wave {
			if res.Outcomes[op.Name].State == domain.StateFailed && !op.Has(domain.CapAllowedToFail) {
				failed = true
			}
		}
		if failed {
			res.Err = sequencer.ErrOperationFailedIntentionally
			return res
		}
	}
	return res
}

// Scheduled runs operations whose NotBefore timestamp has not yet
// arrived by blocking the calling goroutine until it does, then
// dispatching the operation the way Sequential would. Per the §9
// open question on blocking-vs-yield semantics: Scheduled blocks the
// calling goroutine (the one that called Orchestrator.Process) rather
// than yielding control back to the orchestrator, which keeps the
// strategy's control flow identical to Sequential's.
func Scheduled(ctx context.Context, r *runner.Runner, ops []*domain.Descriptor, now func() time.Time) *Result {
	res := newResult()
	for _, op := range ops {
		if op.NotBefore != nil {
			if d := op.NotBefore.Sub(now()); d > 0 {
				select {
				case <-time.After(d):
				case <-ctx.Done():
					res.Err = sequencer.ErrCancelled
					return res
				}
			}
		}
		out := r.Run(ctx, op)
		res.Outcomes[op.Name] = out
		res.Ran = append(res.Ran, op)
		if out.State == domain.StateFailed {
			res.Err = out.Err
			return res
		}
	}
	return res
}

func sortedByName(ops []*domain.Descriptor) []*domain.Descriptor {
	out := make([]*domain.Descriptor, len(ops))
	copy(out, ops)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
