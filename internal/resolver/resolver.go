// Package resolver turns a set of operation descriptors into an
// execution plan: a sequence of waves, where every operation in a
// wave has all of its dependencies satisfied by an earlier wave, and
// operations within a wave share no dependency relationship with each
// other. It is the sequencer's adaptation of a standard topological
// sort (Kahn's algorithm) generalized from "one ordering" to
// "ordering partitioned into maximally parallel groups."
package resolver

import (
	"sort"

	"github.com/faustbrian/sequencer/internal/domain"
	"github.com/faustbrian/sequencer/internal/sequencer"
)

// Plan is a dependency-resolved execution plan: Waves[i] must
// complete before Waves[i+1] begins; operations within a wave may run
// concurrently.
type Plan struct {
	Waves [][]*domain.Descriptor
}

// Resolve validates that ops form a DAG and partitions them into
// waves. Operations within a wave are sorted by name ascending, so
// two resolutions of the same input set always produce the same
// plan (§8 property: deterministic ordering).
func Resolve(ops []*domain.Descriptor) (*Plan, error) {
	byName := make(map[string]*domain.Descriptor, len(ops))
	for _, op := range ops {
		byName[op.Name] = op
	}

	inDegree := make(map[string]int, len(ops))
	successors := make(map[string][]string)
	for _, op := range ops {
		inDegree[op.Name] = 0
	}
	for _, op := range ops {
		for _, dep := range op.DependsOn {
			if _, ok := byName[dep]; !ok {
				return nil, &UnresolvedDependencyError{Operation: op.Name, Dependency: dep}
			}
			inDegree[op.Name]++
			successors[dep] = append(successors[dep], op.Name)
		}
	}

	var waves [][]*domain.Descriptor
	remaining := len(ops)
	for remaining > 0 {
		var frontier []string
		for name, deg := range inDegree {
			if deg == 0 {
				frontier = append(frontier, name)
			}
		}
		if len(frontier) == 0 {
			return nil, &CircularDependencyError{}
		}
		sort.Strings(frontier)

		wave := make([]*domain.Descriptor, 0, len(frontier))
		for _, name := range frontier {
			wave = append(wave, byName[name])
			delete(inDegree, name)
		}
		waves = append(waves, wave)
		remaining -= len(wave)

		for _, name := range frontier {
			for _, succ := range successors[name] {
				if _, ok := inDegree[succ]; ok {
					inDegree[succ]--
				}
			}
		}
	}

	return &Plan{Waves: waves}, nil
}

// UnresolvedDependencyError reports a depends_on entry naming an
// operation absent from the plan's input set.
type UnresolvedDependencyError struct {
	Operation  string
	Dependency string
}

func (e *UnresolvedDependencyError) Error() string {
	return "resolver: operation " + e.Operation + " depends on unresolved operation " + e.Dependency
}

func (e *UnresolvedDependencyError) Unwrap() error { return sequencer.ErrUnresolvedDependency }

// CircularDependencyError reports that depends_on edges form a cycle
// with no valid topological order.
type CircularDependencyError struct{}

func (e *CircularDependencyError) Error() string {
	return "resolver: circular dependency detected"
}

func (e *CircularDependencyError) Unwrap() error { return sequencer.ErrCircularDependency }
