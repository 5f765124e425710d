package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/seanmorton/conveyor/internal/conveyor"
	"github.com/seanmorton/conveyor/internal/engine"
	"github.com/seanmorton/conveyor/internal/repository"
)

// ExecutionService runs workflow instances against stored definitions.
// It enforces the definition-level policies (disabled, singleton) and
// the concurrency limits before handing control to the engine, then
// persists the resulting instance state.
type ExecutionService struct {
	defs    repository.DefinitionRepository
	insts   repository.InstanceRepository
	eng     *engine.Engine
	limiter *ConcurrencyLimiter
}

func NewExecutionService(defs repository.DefinitionRepository, insts repository.InstanceRepository, eng *engine.Engine, limiter *ConcurrencyLimiter) *ExecutionService {
	if limiter == nil {
		limiter = NewConcurrencyLimiter(ConcurrencyLimits{})
	}
	return &ExecutionService{defs: defs, insts: insts, eng: eng, limiter: limiter}
}

// Start creates and runs a new instance of the selected definition
// version. It returns conveyor.ErrDefinitionDisabled when the version
// is marked disabled, and conveyor.ErrSingletonActive when the family
// is a singleton and already has a live (non-terminal) instance.
func (s *ExecutionService) Start(ctx context.Context, definitionID string, sel conveyor.VersionSelector, input conveyor.Variables, opts ...engine.RunOption) (*conveyor.WorkflowInstance, error) {
	def, err := s.defs.GetByFamily(ctx, definitionID, sel)
	if err != nil {
		return nil, err
	}
	if def.IsDisabled {
		return nil, fmt.Errorf("definition %s v%d: %w", def.DefinitionID, def.Version, conveyor.ErrDefinitionDisabled)
	}
	if def.IsSingleton {
		live, err := s.hasLiveInstance(ctx, def.DefinitionID)
		if err != nil {
			return nil, err
		}
		if live {
			return nil, fmt.Errorf("definition %s: %w", def.DefinitionID, conveyor.ErrSingletonActive)
		}
	}

	if err := s.limiter.Acquire(ctx, def.DefinitionID); err != nil {
		return nil, err
	}
	defer s.limiter.Release(def.DefinitionID)

	inst, err := s.eng.Run(ctx, def, input, opts...)
	if err != nil {
		return nil, err
	}

	if err := s.insts.Save(ctx, inst); err != nil {
		return inst, fmt.Errorf("save instance %s: %w", inst.ID, err)
	}
	return inst, nil
}

// Resume wakes a blocked instance at the given activity refs, feeding
// it the supplied input. The instance always runs against the exact
// definition version it was started with, even if the family has
// since published newer versions.
func (s *ExecutionService) Resume(ctx context.Context, instanceID string, refs []string, input conveyor.Variables) (*conveyor.WorkflowInstance, error) {
	inst, err := s.insts.GetByID(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	def, err := s.defs.GetByFamily(ctx, inst.DefinitionID, conveyor.Specific(inst.Version))
	if err != nil {
		return nil, fmt.Errorf("load definition %s v%d for instance %s: %w", inst.DefinitionID, inst.Version, inst.ID, err)
	}

	if err := s.limiter.Acquire(ctx, def.DefinitionID); err != nil {
		return nil, err
	}
	defer s.limiter.Release(def.DefinitionID)

	inst, err = s.eng.Resume(ctx, def, inst, refs, input)
	if err != nil {
		return nil, err
	}

	if err := s.insts.Update(ctx, inst); err != nil {
		return inst, fmt.Errorf("update instance %s: %w", inst.ID, err)
	}
	return inst, nil
}

// Cancel marks an idle instance cancelled. Finished instances cannot
// be cancelled again.
func (s *ExecutionService) Cancel(ctx context.Context, instanceID string) (*conveyor.WorkflowInstance, error) {
	inst, err := s.insts.GetByID(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if inst.Status.Terminal() {
		return nil, fmt.Errorf("instance %s is %s: %w", inst.ID, inst.Status, conveyor.ErrInstanceFinished)
	}

	inst.Status = conveyor.StatusCancelled
	inst.BlockingActivities = nil
	inst.UpdatedAt = time.Now().UTC()

	if err := s.insts.Update(ctx, inst); err != nil {
		return nil, fmt.Errorf("update instance %s: %w", inst.ID, err)
	}

	slog.Info("instance cancelled", "instance_id", inst.ID, "definition_id", inst.DefinitionID)
	return inst, nil
}

// Get returns an instance by id.
func (s *ExecutionService) Get(ctx context.Context, instanceID string) (*conveyor.WorkflowInstance, error) {
	return s.insts.GetByID(ctx, instanceID)
}

// List returns all instances.
func (s *ExecutionService) List(ctx context.Context) ([]*conveyor.WorkflowInstance, error) {
	return s.insts.List(ctx)
}

func (s *ExecutionService) hasLiveInstance(ctx context.Context, definitionID string) (bool, error) {
	insts, err := s.insts.ListByDefinition(ctx, definitionID)
	if err != nil {
		return false, err
	}
	for _, inst := range insts {
		if !inst.Status.Terminal() {
			return true, nil
		}
	}
	return false, nil
}
