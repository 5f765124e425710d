package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/seanmorton/conveyor/internal/conveyor"
	memstore "github.com/seanmorton/conveyor/internal/repository/memory"
)

// MemoryInstanceRepository is a thread-safe in-memory InstanceRepository.
type MemoryInstanceRepository struct {
	store *memstore.Store[*conveyor.WorkflowInstance]
}

// NewMemoryInstances creates an empty in-memory instance repository.
func NewMemoryInstances() *MemoryInstanceRepository {
	return &MemoryInstanceRepository{
		store: memstore.New(func(w *conveyor.WorkflowInstance) string { return w.ID }),
	}
}

func (r *MemoryInstanceRepository) GetByID(ctx context.Context, id string) (*conveyor.WorkflowInstance, error) {
	inst, err := r.store.Get(ctx, id)
	if errors.Is(err, memstore.ErrNotFound) {
		return nil, fmt.Errorf("%w: instance %s", conveyor.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return inst.Clone(), nil
}

func (r *MemoryInstanceRepository) Save(ctx context.Context, inst *conveyor.WorkflowInstance) error {
	return r.store.Swap(ctx, inst.ID, func(prev *conveyor.WorkflowInstance, present bool) (*conveyor.WorkflowInstance, error) {
		if present {
			inst.Rev = prev.Rev + 1
		} else {
			inst.Rev = 1
		}
		return inst.Clone(), nil
	})
}

func (r *MemoryInstanceRepository) Update(ctx context.Context, inst *conveyor.WorkflowInstance) error {
	return r.store.Swap(ctx, inst.ID, func(prev *conveyor.WorkflowInstance, present bool) (*conveyor.WorkflowInstance, error) {
		if !present {
			return nil, fmt.Errorf("%w: instance %s", conveyor.ErrNotFound, inst.ID)
		}
		if prev.Rev != inst.Rev {
			return nil, fmt.Errorf("%w: instance %s", conveyor.ErrConflict, inst.ID)
		}
		inst.Rev = prev.Rev + 1
		return inst.Clone(), nil
	})
}

func (r *MemoryInstanceRepository) List(ctx context.Context) ([]*conveyor.WorkflowInstance, error) {
	rows, err := r.store.All(ctx)
	if err != nil {
		return nil, err
	}
	return cloneInstances(rows), nil
}

func (r *MemoryInstanceRepository) ListByDefinition(ctx context.Context, definitionID string) ([]*conveyor.WorkflowInstance, error) {
	rows, err := r.store.Filter(ctx, func(w *conveyor.WorkflowInstance) bool {
		return w.DefinitionID == definitionID
	})
	if err != nil {
		return nil, err
	}
	return cloneInstances(rows), nil
}

func cloneInstances(rows []*conveyor.WorkflowInstance) []*conveyor.WorkflowInstance {
	out := make([]*conveyor.WorkflowInstance, len(rows))
	for i, w := range rows {
		out[i] = w.Clone()
	}
	return out
}

// MemoryScheduleRepository is a thread-safe in-memory ScheduleRepository.
type MemoryScheduleRepository struct {
	store *memstore.Store[*conveyor.Schedule]
}

// NewMemorySchedules creates an empty in-memory schedule repository.
func NewMemorySchedules() *MemoryScheduleRepository {
	return &MemoryScheduleRepository{
		store: memstore.New(func(s *conveyor.Schedule) string { return s.ID }),
	}
}

func (r *MemoryScheduleRepository) GetByID(ctx context.Context, id string) (*conveyor.Schedule, error) {
	sched, err := r.store.Get(ctx, id)
	if errors.Is(err, memstore.ErrNotFound) {
		return nil, fmt.Errorf("%w: schedule %s", conveyor.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	cp := *sched
	return &cp, nil
}

func (r *MemoryScheduleRepository) Save(ctx context.Context, sched *conveyor.Schedule) error {
	cp := *sched
	return r.store.Set(ctx, &cp)
}

func (r *MemoryScheduleRepository) Delete(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, id); errors.Is(err, memstore.ErrNotFound) {
		return fmt.Errorf("%w: schedule %s", conveyor.ErrNotFound, id)
	} else if err != nil {
		return err
	}
	return nil
}

func (r *MemoryScheduleRepository) List(ctx context.Context) ([]*conveyor.Schedule, error) {
	rows, err := r.store.All(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*conveyor.Schedule, len(rows))
	for i, s := range rows {
		cp := *s
		out[i] = &cp
	}
	return out, nil
}
