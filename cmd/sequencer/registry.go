package main

import (
	"context"

	"github.com/faustbrian/sequencer/internal/domain"
)

// registeredOperations returns the statically compiled set of
// operations this binary knows how to run. An embedding application
// builds its own cmd/ binary the same way: descriptors carry Go
// closures (Handle/Rollback/Condition), so they cannot be loaded from
// the database — only looked up here by name for `process` and
// `rollback`.
func registeredOperations() []*domain.Descriptor {
	return []*domain.Descriptor{
		{
			Name: "migrate-schema",
			Type: domain.TypeSync,
			Handle: func(_ context.Context, _ any) (any, error) {
				return "migrated", nil
			},
		},
		{
			Name:      "seed-reference-data",
			Type:      domain.TypeSync,
			DependsOn: []string{"migrate-schema"},
			Handle: func(_ context.Context, _ any) (any, error) {
				return "seeded", nil
			},
			Capabilities: map[domain.Capability]bool{
				domain.CapRollbackable: true,
			},
			Rollback: func(_ context.Context, _ any) error {
				return nil
			},
		},
	}
}

func findOperation(name string) *domain.Descriptor {
	for _, op := range registeredOperations() {
		if op.Name == name {
			return op
		}
	}
	return nil
}
