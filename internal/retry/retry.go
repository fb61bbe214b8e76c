// Package retry implements the sequencer's backoff and rollback
// controller (§4.4): it decides whether a failed attempt should be
// retried, computes how long to wait before the next attempt, and
// drives rollback of already-completed operations when a run fails
// past recovery.
package retry

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/faustbrian/sequencer/internal/domain"
	"github.com/faustbrian/sequencer/internal/sequencer"
)

// Policy holds the backoff parameters for one operation, defaulted
// from its descriptor (falling back to engine-wide defaults when the
// descriptor leaves a field at its zero value).
type Policy struct {
	MaxAttempts       int
	InitialBackoffMS  int64
	BackoffMultiplier float64
	MaxBackoffMS      int64
}

// PolicyFromDescriptor builds a Policy from a descriptor, filling any
// zero-valued field from defaults.
func PolicyFromDescriptor(op *domain.Descriptor, defaults Policy) Policy {
	p := defaults
	if op.MaxAttempts > 0 {
		p.MaxAttempts = op.MaxAttempts
	}
	if op.InitialBackoffMS > 0 {
		p.InitialBackoffMS = op.InitialBackoffMS
	}
	if op.BackoffMultiplier > 0 {
		p.BackoffMultiplier = op.BackoffMultiplier
	}
	if op.MaxBackoffMS > 0 {
		p.MaxBackoffMS = op.MaxBackoffMS
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	return p
}

// ShouldRetry reports whether attempt (1-indexed, the attempt that
// just failed with err) should be retried under policy.
func ShouldRetry(policy Policy, attempt int, err error) bool {
	if attempt >= policy.MaxAttempts {
		return false
	}
	return sequencer.Retriable(err)
}

// Backoff computes the delay before the next attempt, per
// min(initial * multiplier^(attempt-1), max), jittered by a uniform
// random factor in [0.5, 1.5]. attempt is the 1-indexed attempt
// number that just failed.
func Backoff(policy Policy, attempt int) time.Duration {
	initial := float64(policy.InitialBackoffMS)
	if initial <= 0 {
		initial = 100
	}
	multiplier := policy.BackoffMultiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}
	maxMS := float64(policy.MaxBackoffMS)
	if maxMS <= 0 {
		maxMS = 30_000
	}

	ms := initial * math.Pow(multiplier, float64(attempt-1))
	if ms > maxMS {
		ms = maxMS
	}

	jitter := 0.5 + rand.Float64() // uniform in [0.5, 1.5)
	ms *= jitter

	return time.Duration(ms) * time.Millisecond
}

// Rollback walks completed operations in reverse completion order,
// invoking each Rollbackable one's Rollback callback, and returns one
// Outcome per callback invoked (in invocation order), carrying that
// callback's error if any. Every rollback is attempted, so a single
// failing rollback does not block the rest.
type Outcome struct {
	Name  string
	Error error
}

func Rollback(completed []*domain.Descriptor, input func(name string) any) []Outcome {
	outcomes := make([]Outcome, 0, len(completed))
	for i := len(completed) - 1; i >= 0; i-- {
		op := completed[i]
		if !op.Has(domain.CapRollbackable) || op.Rollback == nil {
			continue
		}
		err := op.Rollback(context.Background(), input(op.Name))
		outcomes = append(outcomes, Outcome{Name: op.Name, Error: err})
	}
	return outcomes
}
