// Package domain holds the data model shared by every component of the
// sequencer: the operation descriptor supplied by callers, the
// persisted operation record, and the error record attached to a
// failed attempt.
package domain

import (
	"context"
	"time"
)

// Type identifies which execution strategy an operation participates
// in. A descriptor's Type, together with its DependsOn set, determines
// which strategy the Orchestrator routes it through.
type Type string

const (
	TypeSync                  Type = "sync"
	TypeAsync                 Type = "async"
	TypeBatch                 Type = "batch"
	TypeChain                 Type = "chain"
	TypeDependencyGraph       Type = "dependency_graph"
	TypeScheduled             Type = "scheduled"
	TypeAllowedToFailBatch    Type = "allowed_to_fail_batch"
	TypeTransactionalBatch    Type = "transactional_batch"
)

// State is the lifecycle state of a persisted operation record.
type State string

const (
	StatePending    State = "pending"
	StateRunning    State = "running"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
	StateSkipped    State = "skipped"
	StateRolledBack State = "rolled_back"
)

// Capability is a named bit in an operation descriptor's capability
// set. Components branch on the presence of a capability rather than
// on a concrete Go type, so a descriptor stays a plain struct instead
// of requiring one interface per optional behavior.
type Capability string

const (
	CapRollbackable          Capability = "rollbackable"
	CapAllowedToFail         Capability = "allowed_to_fail"
	CapIdempotent            Capability = "idempotent"
	CapScheduled             Capability = "scheduled"
	CapHasDependencies       Capability = "has_dependencies"
	CapConditionalExecution  Capability = "conditional_execution"
)

// Handle is the callback an operation runs to do its work. ctx carries
// cancellation and the operation's deadline; input is whatever the
// caller attached to the descriptor (strategy-dependent: a Chain
// strategy feeds the previous operation's output back in as input).
type Handle func(ctx context.Context, input any) (any, error)

// Rollback undoes a previously completed operation. Only invoked on
// operations carrying CapRollbackable, and only when the controller
// decides to roll back (§4.4).
type Rollback func(ctx context.Context, input any) error

// Condition decides whether a conditionally-executed operation should
// run at all, given the accumulated results of operations it depends
// on. Only consulted for descriptors carrying CapConditionalExecution.
type Condition func(ctx context.Context, dependencyResults map[string]any) (bool, error)

// Descriptor is an undispatched unit of work, as supplied by a caller
// to the Orchestrator.
type Descriptor struct {
	Name     string
	Type     Type
	Handle   Handle
	Rollback Rollback
	Condition Condition

	DependsOn []string

	NotBefore *time.Time

	MaxAttempts        int
	InitialBackoffMS    int64
	BackoffMultiplier   float64
	MaxBackoffMS        int64

	Capabilities map[Capability]bool

	// Actor identifies who or what triggered this operation. Stored
	// verbatim on the record; the engine never interprets it.
	ActorType string
	ActorID   string

	// Input is carried through to Handle as-is; strategies that
	// thread output into the next operation's input (Chain) override
	// it per-invocation rather than mutating the descriptor.
	Input any
}

// Has reports whether the descriptor carries the given capability.
func (d *Descriptor) Has(c Capability) bool {
	if d.Capabilities == nil {
		return false
	}
	return d.Capabilities[c]
}

// Record is the persisted row for one execution of a named operation.
type Record struct {
	ID   any // kind depends on config.Store.PrimaryKeyType
	Name string
	Type Type
	State State

	ExecutedAt   *time.Time
	CompletedAt  *time.Time
	FailedAt     *time.Time
	SkippedAt    *time.Time
	RolledBackAt *time.Time

	SkipReason string

	ActorType string
	ActorID   string

	Attempt int
}

// TerminalAt returns the single terminal timestamp set on the record,
// or nil if the record has not reached a terminal state yet.
func (r *Record) TerminalAt() *time.Time {
	switch {
	case r.CompletedAt != nil:
		return r.CompletedAt
	case r.FailedAt != nil:
		return r.FailedAt
	case r.SkippedAt != nil:
		return r.SkippedAt
	case r.RolledBackAt != nil:
		return r.RolledBackAt
	default:
		return nil
	}
}

// ErrorRecord is attached to a Record whenever an attempt fails.
type ErrorRecord struct {
	ID          any
	OperationID any
	Exception   string
	Message     string
	Trace       string
	Context     map[string]any
	CreatedAt   time.Time
}
