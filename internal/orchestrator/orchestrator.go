// Package orchestrator is the top-level entry point (§2): it takes a
// set of operation descriptors, resolves their dependencies, picks
// the execution strategy their Type calls for, and drives them to
// completion through a Runner, publishing lifecycle events along the
// way. It is the thin composition root the CLI and any embedding
// application call into — it holds no execution logic of its own.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/faustbrian/sequencer/internal/domain"
	"github.com/faustbrian/sequencer/internal/eventbus"
	"github.com/faustbrian/sequencer/internal/guard"
	"github.com/faustbrian/sequencer/internal/logging"
	"github.com/faustbrian/sequencer/internal/resolver"
	"github.com/faustbrian/sequencer/internal/runner"
	"github.com/faustbrian/sequencer/internal/store"
	"github.com/faustbrian/sequencer/internal/strategy"
)

// Config configures an Orchestrator's defaults and concurrency.
type Config struct {
	Parallelism       int
	DefaultMaxAttempts int
	DefaultInitialBackoffMS  int64
	DefaultBackoffMultiplier float64
	DefaultMaxBackoffMS      int64
}

// Orchestrator wires together the resolver, the guard chain, the
// event bus, and a Runner bound to either a real OperationStore or a
// Recorder (fake mode) — the Mode is supplied by the caller at
// construction time, never toggled globally (§9).
type Orchestrator struct {
	runner *runner.Runner
	cfg    Config
}

// New builds an Orchestrator. mode is runner.RealMode(store) or
// runner.RecordingMode(recorder); guards and bus may be nil.
func New(mode runner.Mode, guards *guard.Chain, bus *eventbus.Bus, cfg Config) *Orchestrator {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 4
	}
	if cfg.DefaultMaxAttempts <= 0 {
		cfg.DefaultMaxAttempts = 1
	}
	r := runner.New(mode, guards, bus, runner.Defaults{
		MaxAttempts:       cfg.DefaultMaxAttempts,
		InitialBackoffMS:  cfg.DefaultInitialBackoffMS,
		BackoffMultiplier: cfg.DefaultBackoffMultiplier,
		MaxBackoffMS:      cfg.DefaultMaxBackoffMS,
	})
	return &Orchestrator{runner: r, cfg: cfg}
}

// Process resolves ops' dependencies and runs them to completion
// through the strategy appropriate to their declared Type. Operations
// carrying DependsOn (or declared TypeDependencyGraph) always route
// through the DependencyGraph strategy regardless of their own Type,
// since a dependency edge is itself the defining feature of that
// strategy.
func (o *Orchestrator) Process(ctx context.Context, ops []*domain.Descriptor) (*strategy.Result, error) {
	if len(ops) == 0 {
		return &strategy.Result{Outcomes: map[string]runner.Outcome{}}, nil
	}

	hasDependencies := false
	for _, op := range ops {
		if len(op.DependsOn) > 0 || op.Type == domain.TypeDependencyGraph || op.Has(domain.CapHasDependencies) {
			hasDependencies = true
			break
		}
	}

	if hasDependencies {
		plan, err := resolver.Resolve(ops)
		if err != nil {
			return nil, err
		}
		return strategy.DependencyGraph(ctx, o.runner, plan, o.cfg.Parallelism), nil
	}

	switch ops[0].Type {
	case domain.TypeSync:
		return strategy.Sequential(ctx, o.runner, ops), nil
	case domain.TypeChain:
		return strategy.Chain(ctx, o.runner, ops), nil
	case domain.TypeBatch:
		return strategy.Batch(ctx, o.runner, ops, o.cfg.Parallelism), nil
	case domain.TypeAllowedToFailBatch:
		return strategy.AllowedToFailBatch(ctx, o.runner, ops, o.cfg.Parallelism), nil
	case domain.TypeTransactionalBatch:
		return strategy.TransactionalBatch(ctx, o.runner, ops, o.cfg.Parallelism), nil
	case domain.TypeScheduled:
		return strategy.Scheduled(ctx, o.runner, ops, time.Now), nil
	case domain.TypeAsync:
		return strategy.Batch(ctx, o.runner, ops, o.cfg.Parallelism), nil
	default:
		return nil, fmt.Errorf("orchestrator: unknown operation type %q", ops[0].Type)
	}
}

// Status reports the names of operations currently Pending or
// Running, for the CLI's `status` command. Only meaningful against a
// real store; returns an empty slice in fake mode.
func (o *Orchestrator) Status(ctx context.Context, s store.OperationStore, now time.Time) ([]string, error) {
	if s == nil {
		return nil, nil
	}
	return s.PendingNames(ctx, now)
}

// StatusCounts reports pending/completed/failed tallies for the CLI's
// `status` command (§6). Only meaningful against a real store; returns
// a zero StateCounts in fake mode.
func (o *Orchestrator) StatusCounts(ctx context.Context, s store.OperationStore) (store.StateCounts, error) {
	if s == nil {
		return store.StateCounts{}, nil
	}
	return s.StateCounts(ctx)
}

// Rollback rolls back the named operation's most recent completed
// run, if it carries CapRollbackable. Returns an error when no
// completed run exists, matching the CLI's documented exit codes (§6).
func (o *Orchestrator) Rollback(ctx context.Context, s store.OperationStore, op *domain.Descriptor) error {
	if !op.Has(domain.CapRollbackable) || op.Rollback == nil {
		return fmt.Errorf("operation %s is not rollbackable", op.Name)
	}
	rec, err := s.LastCompletion(ctx, op.Name)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("operation %s has no completed run to roll back", op.Name)
	}
	if err := op.Rollback(ctx, op.Input); err != nil {
		return fmt.Errorf("rollback %s: %w", op.Name, err)
	}
	if err := s.RunInTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		return s.Transition(ctx, tx, rec.ID, domain.StateRolledBack, "")
	}); err != nil {
		return err
	}
	if cached, ok := s.(*store.CachedStore); ok {
		if err := cached.InvalidateName(ctx, op.Name); err != nil {
			logging.Op().Warn("cache invalidation failed after rollback", "name", op.Name, "err", err)
		}
	}
	return nil
}
