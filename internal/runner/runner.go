// Package runner drives a single operation through its state machine
// (§4.6): acquire the per-name advisory lock, evaluate guards, invoke
// the operation, record each attempt durably, and retry or roll back
// on failure. It is strategy-agnostic — every execution strategy in
// internal/strategy calls the same Runner.Run for each operation it
// dispatches, differing only in how many operations they dispatch
// concurrently and in what order.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/faustbrian/sequencer/internal/domain"
	"github.com/faustbrian/sequencer/internal/eventbus"
	"github.com/faustbrian/sequencer/internal/guard"
	"github.com/faustbrian/sequencer/internal/logging"
	"github.com/faustbrian/sequencer/internal/observability"
	"github.com/faustbrian/sequencer/internal/retry"
	"github.com/faustbrian/sequencer/internal/sequencer"
	"github.com/faustbrian/sequencer/internal/store"
)

// Mode selects between real execution against an OperationStore and
// the explicit fake/record mode (§4.8/§9): the mode is always an
// argument to New, never a process-global flag, so two Runners in the
// same process (one real, one recording, as in an integration test
// harness that shadows production traffic) never interfere.
type Mode interface {
	isMode()
}

// RealMode runs operations against an OperationStore.
type realMode struct{ store store.OperationStore }

func RealMode(s store.OperationStore) Mode { return realMode{store: s} }
func (realMode) isMode()                   {}

// RecordingMode runs operations without touching any store, recording
// every dispatch into rec instead. Recording mode has no store and
// therefore no advisory lock to acquire: every run proceeds as if the
// lock were granted immediately.
type recordingMode struct{ recorder *Recorder }

func RecordingMode(rec *Recorder) Mode { return recordingMode{recorder: rec} }
func (recordingMode) isMode()          {}

// Defaults holds the engine-wide retry defaults applied when a
// descriptor does not override them.
type Defaults struct {
	MaxAttempts       int
	InitialBackoffMS  int64
	BackoffMultiplier float64
	MaxBackoffMS      int64
}

// Runner executes a single operation to completion, including retries.
type Runner struct {
	mode     Mode
	guards   *guard.Chain
	bus      *eventbus.Bus
	defaults Defaults
}

func New(mode Mode, guards *guard.Chain, bus *eventbus.Bus, defaults Defaults) *Runner {
	if guards == nil {
		guards = guard.NewChain()
	}
	if bus == nil {
		bus = eventbus.New()
	}
	return &Runner{mode: mode, guards: guards, bus: bus, defaults: defaults}
}

// Outcome is the terminal result of running one operation.
type Outcome struct {
	State  domain.State
	Record *domain.Record
	Result any
	Err    error
}

// Run acquires op's per-name advisory lock (New → Locked), evaluates
// the guard chain (Locked → Guarded), and on Allow drives handle
// invocation through the retry loop until a terminal state is reached.
// In RealMode, the entire run executes inside the transaction holding
// the lock, so two runners processing the same name can never overlap
// (§5's at-most-one-concurrent-execution guarantee); RecordingMode has
// no lock to acquire and runs unconditionally.
func (r *Runner) Run(ctx context.Context, op *domain.Descriptor) Outcome {
	m, ok := r.mode.(realMode)
	if !ok {
		return r.runLocked(ctx, op)
	}

	var out Outcome
	err := m.store.BeginExclusive(ctx, op.Name, func(ctx context.Context, _ store.Tx) error {
		out = r.runLocked(ctx, op)
		return nil
	})
	if err != nil {
		if errors.Is(err, sequencer.ErrBusy) {
			// New → Locked, Busy: another runner already owns this
			// name. Treated as Skipped for this run only — no row is
			// written, since the operation's actual execution (and
			// its record) belongs to whichever runner holds the lock.
			r.bus.Publish(ctx, eventbus.Event{Type: eventbus.EventSkipped, Operation: op, Reason: "busy: locked by another runner"})
			return Outcome{State: domain.StateSkipped, Err: err}
		}
		return Outcome{State: domain.StateFailed, Err: err}
	}
	return out
}

// runLocked is Run's body once the advisory lock (if any) is held: it
// evaluates the guard chain and, on Allow, drives the attempt loop.
func (r *Runner) runLocked(ctx context.Context, op *domain.Descriptor) Outcome {
	verdict := r.guards.Evaluate(ctx, op)
	switch verdict.Verdict {
	case guard.Deny:
		rec := r.transitionWithError(ctx, op, domain.StateFailed, verdict.Reason, &domain.ErrorRecord{
			Exception: "GuardDenied",
			Message:   verdict.Reason,
		})
		r.bus.Publish(ctx, eventbus.Event{Type: eventbus.EventGuardDenied, Operation: op, Record: rec, Reason: verdict.Reason})
		return Outcome{State: domain.StateFailed, Record: rec, Err: fmt.Errorf("%w: %s", sequencer.ErrGuardDenied, verdict.Reason)}
	case guard.Skip:
		rec := r.transitionWithError(ctx, op, domain.StateSkipped, verdict.Reason, nil)
		r.bus.Publish(ctx, eventbus.Event{Type: eventbus.EventSkipped, Operation: op, Record: rec, Reason: verdict.Reason})
		return Outcome{State: domain.StateSkipped, Record: rec}
	}

	policy := retry.PolicyFromDescriptor(op, retry.Policy{
		MaxAttempts:       r.defaults.MaxAttempts,
		InitialBackoffMS:  r.defaults.InitialBackoffMS,
		BackoffMultiplier: r.defaults.BackoffMultiplier,
		MaxBackoffMS:      r.defaults.MaxBackoffMS,
	})

	rec, err := r.insertPending(ctx, op)
	if err != nil {
		return Outcome{State: domain.StateFailed, Err: err}
	}

	var lastErr error
	var lastDurationMS int64
	lastAttempt := 1
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		lastAttempt = attempt
		r.bus.Publish(ctx, eventbus.Event{Type: eventbus.EventStarted, Operation: op, Record: rec, Attempt: attempt})
		attemptStart := time.Now()
		result, err := r.invoke(ctx, op)
		durationMS := time.Since(attemptStart).Milliseconds()
		lastDurationMS = durationMS
		if err == nil {
			r.transition(ctx, op, rec, domain.StateCompleted, "")
			r.bus.Publish(ctx, eventbus.Event{Type: eventbus.EventCompleted, Operation: op, Record: rec, Attempt: attempt, DurationMS: durationMS})
			return Outcome{State: domain.StateCompleted, Record: rec, Result: result}
		}

		if errors.Is(err, sequencer.ErrSkipOperation) {
			r.transition(ctx, op, rec, domain.StateSkipped, err.Error())
			r.bus.Publish(ctx, eventbus.Event{Type: eventbus.EventSkipped, Operation: op, Record: rec, Attempt: attempt, Reason: err.Error()})
			return Outcome{State: domain.StateSkipped, Record: rec}
		}

		lastErr = err
		r.recordError(ctx, rec, op, err)

		if !retry.ShouldRetry(policy, attempt, err) {
			break
		}

		delay := retry.Backoff(policy, attempt)
		r.bus.Publish(ctx, eventbus.Event{Type: eventbus.EventRetrying, Operation: op, Record: rec, Attempt: attempt, Err: err})
		logging.OpWithTrace(observability.GetTraceID(ctx), observability.GetSpanID(ctx)).
			Warn("operation retrying", "name", op.Name, "attempt", attempt, "delay", delay, "err", err)

		select {
		case <-ctx.Done():
			lastErr = ctx.Err()
			goto failed
		case <-time.After(delay):
		}
	}

failed:
	r.transition(ctx, op, rec, domain.StateFailed, "")
	r.bus.Publish(ctx, eventbus.Event{Type: eventbus.EventFailed, Operation: op, Record: rec, Attempt: lastAttempt, Err: lastErr, DurationMS: lastDurationMS})
	return Outcome{State: domain.StateFailed, Record: rec, Err: lastErr}
}

// Rollback undoes a previously completed operation (§4.5): Rollbackable
// operations run their callback first, then every operation — whether
// or not it carries a callback — has its record transitioned to
// RolledBack, since a non-Rollbackable operation is still rolled back
// "store-only" (its Completed row must not outlive the run that
// produced it once the batch it belonged to is undone). Publishes
// EventRolledBack on success.
func (r *Runner) Rollback(ctx context.Context, op *domain.Descriptor, rec *domain.Record, input any) error {
	if op.Has(domain.CapRollbackable) && op.Rollback != nil {
		if err := op.Rollback(ctx, input); err != nil {
			return fmt.Errorf("rollback %s: %w", op.Name, err)
		}
	}

	switch m := r.mode.(type) {
	case realMode:
		if rec == nil {
			return fmt.Errorf("rollback %s: no record to transition", op.Name)
		}
		if err := m.store.RunInTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
			return m.store.Transition(ctx, tx, rec.ID, domain.StateRolledBack, "")
		}); err != nil {
			return fmt.Errorf("rollback %s: %w", op.Name, err)
		}
	case recordingMode:
		m.recorder.Record(op.Name, "transition:"+string(domain.StateRolledBack))
	}

	r.bus.Publish(ctx, eventbus.Event{Type: eventbus.EventRolledBack, Operation: op, Record: rec})
	return nil
}

func (r *Runner) invoke(ctx context.Context, op *domain.Descriptor) (any, error) {
	if op.Handle == nil {
		return nil, fmt.Errorf("operation %s has no handle", op.Name)
	}
	return op.Handle(ctx, op.Input)
}

func (r *Runner) insertPending(ctx context.Context, op *domain.Descriptor) (*domain.Record, error) {
	switch m := r.mode.(type) {
	case realMode:
		var rec *domain.Record
		err := m.store.RunInTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
			var err error
			rec, err = m.store.InsertPending(ctx, tx, op)
			return err
		})
		return rec, err
	case recordingMode:
		return m.recorder.Record(op.Name, "insert_pending"), nil
	default:
		return nil, fmt.Errorf("runner: unknown mode")
	}
}

func (r *Runner) transition(ctx context.Context, op *domain.Descriptor, rec *domain.Record, state domain.State, reason string) {
	switch m := r.mode.(type) {
	case realMode:
		_ = m.store.RunInTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
			return m.store.Transition(ctx, tx, rec.ID, state, reason)
		})
	case recordingMode:
		m.recorder.Record(op.Name, "transition:"+string(state))
	}
}

// transitionWithError writes a record directly in a terminal state
// (no prior Pending row exists: this is used for guard-level Deny/Skip,
// which never reach the attempt loop), optionally attaching an error
// record, and returns the written record so the caller can publish it
// on the event it raises.
func (r *Runner) transitionWithError(ctx context.Context, op *domain.Descriptor, state domain.State, reason string, errRec *domain.ErrorRecord) *domain.Record {
	switch m := r.mode.(type) {
	case recordingMode:
		rec := m.recorder.Record(op.Name, "transition:"+string(state))
		if errRec != nil {
			m.recorder.Record(op.Name, "record_error:"+errRec.Message)
		}
		return rec
	case realMode:
		var rec *domain.Record
		_ = m.store.RunInTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
			var err error
			rec, err = m.store.InsertPending(ctx, tx, op)
			if err != nil {
				return err
			}
			if err := m.store.Transition(ctx, tx, rec.ID, state, reason); err != nil {
				return err
			}
			if errRec != nil {
				return m.store.RecordError(ctx, tx, rec.ID, errRec)
			}
			return nil
		})
		return rec
	default:
		return nil
	}
}

func (r *Runner) recordError(ctx context.Context, rec *domain.Record, op *domain.Descriptor, err error) {
	switch m := r.mode.(type) {
	case realMode:
		_ = m.store.RunInTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
			return m.store.RecordError(ctx, tx, rec.ID, &domain.ErrorRecord{
				Exception: fmt.Sprintf("%T", err),
				Message:   err.Error(),
			})
		})
	case recordingMode:
		m.recorder.Record(op.Name, "record_error:"+err.Error())
	}
}
