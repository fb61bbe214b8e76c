// Package guard implements the pre-execution gate chain run before a
// Runner ever invokes an operation's Handle. Guards answer one of
// three verdicts — allow, skip, deny — and a chain short-circuits on
// the first non-allow verdict, carrying its reason forward.
package guard

import (
	"context"
	"errors"
	"fmt"

	"github.com/faustbrian/sequencer/internal/domain"
	"github.com/faustbrian/sequencer/internal/sequencer"
)

// Verdict is the outcome of evaluating a single guard.
type Verdict int

const (
	Allow Verdict = iota
	Skip
	Deny
)

// Result carries a Verdict and, for Skip/Deny, the reason a caller or
// an audit log should see.
type Result struct {
	Verdict Verdict
	Reason  string
	Guard   string
}

// Guard inspects an operation before it runs and decides whether it
// may proceed.
type Guard interface {
	Name() string
	Evaluate(ctx context.Context, op *domain.Descriptor) Result
}

// Chain evaluates a sequence of guards in order. The combinator
// semantics are AND over denials: the first guard to return Skip or
// Deny stops evaluation, so later guards never see an operation
// already rejected by an earlier one. An empty chain always allows.
type Chain struct {
	guards []Guard
}

// NewChain builds a Chain from guards, evaluated in the given order.
func NewChain(guards ...Guard) *Chain {
	return &Chain{guards: guards}
}

// Evaluate runs every guard in order, returning the first non-allow
// result, or an Allow result if every guard allows.
func (c *Chain) Evaluate(ctx context.Context, op *domain.Descriptor) Result {
	for _, g := range c.guards {
		res := g.Evaluate(ctx, op)
		if res.Verdict != Allow {
			res.Guard = g.Name()
			return res
		}
	}
	return Result{Verdict: Allow}
}

// Any builds a Chain with OR semantics: the first guard to Allow
// short-circuits the rest, and the chain only denies if every guard
// denies (the last denial's reason is reported).
type Any struct {
	guards []Guard
}

func NewAny(guards ...Guard) *Any {
	return &Any{guards: guards}
}

func (a *Any) Evaluate(ctx context.Context, op *domain.Descriptor) Result {
	if len(a.guards) == 0 {
		return Result{Verdict: Allow}
	}
	var last Result
	for _, g := range a.guards {
		res := g.Evaluate(ctx, op)
		if res.Verdict == Allow {
			return res
		}
		res.Guard = g.Name()
		last = res
	}
	return last
}

// ConditionGuard adapts a domain.Condition (per-descriptor conditional
// execution) into the Guard interface so the Runner only ever has to
// evaluate one chain, rather than special-casing CapConditionalExecution.
type ConditionGuard struct {
	// Results supplies the accumulated dependency results visible to
	// Condition at evaluation time; populated by the Runner from the
	// current run's completed operations before invoking the chain.
	Results map[string]any
}

func (ConditionGuard) Name() string { return "condition" }

func (g ConditionGuard) Evaluate(ctx context.Context, op *domain.Descriptor) Result {
	if !op.Has(domain.CapConditionalExecution) || op.Condition == nil {
		return Result{Verdict: Allow}
	}
	ok, err := op.Condition(ctx, g.Results)
	if errors.Is(err, sequencer.ErrSkipOperation) {
		return Result{Verdict: Skip, Reason: err.Error()}
	}
	if err != nil {
		return Result{Verdict: Deny, Reason: fmt.Sprintf("condition error: %v", err)}
	}
	if !ok {
		return Result{Verdict: Skip, Reason: "condition evaluated false"}
	}
	return Result{Verdict: Allow}
}
