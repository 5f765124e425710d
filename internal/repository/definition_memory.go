package repository

import (
	"context"
	"fmt"

	"github.com/seanmorton/conveyor/internal/conveyor"
	memstore "github.com/seanmorton/conveyor/internal/repository/memory"
)

// MemoryDefinitionRepository is a thread-safe in-memory
// DefinitionRepository keyed by version-row id. Rows are cloned on
// every read and write so callers never share state with the store.
type MemoryDefinitionRepository struct {
	store *memstore.Store[*conveyor.WorkflowDefinitionVersion]
}

// NewMemoryDefinitions creates an empty in-memory definition repository.
func NewMemoryDefinitions() *MemoryDefinitionRepository {
	return &MemoryDefinitionRepository{
		store: memstore.New(func(d *conveyor.WorkflowDefinitionVersion) string { return d.ID }),
	}
}

func (r *MemoryDefinitionRepository) GetByFamily(ctx context.Context, definitionID string, sel conveyor.VersionSelector) (*conveyor.WorkflowDefinitionVersion, error) {
	rows, err := r.store.Filter(ctx, func(d *conveyor.WorkflowDefinitionVersion) bool {
		return d.DefinitionID == definitionID && sel.Matches(d)
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: definition %s", conveyor.ErrNotFound, definitionID)
	}
	// Highest version wins if the store ever holds more than one match
	// for a Specific selector duplicate; Latest/Published are unique by
	// the lifecycle manager's invariants.
	best := rows[0]
	for _, d := range rows[1:] {
		if d.Version > best.Version {
			best = d
		}
	}
	return best.Clone(), nil
}

func (r *MemoryDefinitionRepository) Save(ctx context.Context, def *conveyor.WorkflowDefinitionVersion) error {
	return r.store.Swap(ctx, def.ID, func(prev *conveyor.WorkflowDefinitionVersion, present bool) (*conveyor.WorkflowDefinitionVersion, error) {
		if present {
			def.Rev = prev.Rev + 1
		} else {
			def.Rev = 1
		}
		return def.Clone(), nil
	})
}

func (r *MemoryDefinitionRepository) Update(ctx context.Context, def *conveyor.WorkflowDefinitionVersion) error {
	return r.store.Swap(ctx, def.ID, func(prev *conveyor.WorkflowDefinitionVersion, present bool) (*conveyor.WorkflowDefinitionVersion, error) {
		if !present {
			return nil, fmt.Errorf("%w: definition version %s", conveyor.ErrNotFound, def.ID)
		}
		if prev.Rev != def.Rev {
			return nil, fmt.Errorf("%w: definition version %s", conveyor.ErrConflict, def.ID)
		}
		def.Rev = prev.Rev + 1
		return def.Clone(), nil
	})
}

func (r *MemoryDefinitionRepository) ListLatest(ctx context.Context) ([]*conveyor.WorkflowDefinitionVersion, error) {
	rows, err := r.store.Filter(ctx, func(d *conveyor.WorkflowDefinitionVersion) bool { return d.IsLatest })
	if err != nil {
		return nil, err
	}
	return cloneDefinitions(rows), nil
}

func (r *MemoryDefinitionRepository) ListFamily(ctx context.Context, definitionID string) ([]*conveyor.WorkflowDefinitionVersion, error) {
	rows, err := r.store.Filter(ctx, func(d *conveyor.WorkflowDefinitionVersion) bool {
		return d.DefinitionID == definitionID
	})
	if err != nil {
		return nil, err
	}
	return cloneDefinitions(rows), nil
}

func cloneDefinitions(rows []*conveyor.WorkflowDefinitionVersion) []*conveyor.WorkflowDefinitionVersion {
	out := make([]*conveyor.WorkflowDefinitionVersion, len(rows))
	for i, d := range rows {
		out[i] = d.Clone()
	}
	return out
}
