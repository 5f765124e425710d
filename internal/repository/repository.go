// Package repository defines storage interfaces for domain entities.
package repository

import (
	"context"

	"github.com/seanmorton/conveyor/internal/conveyor"
)

// DefinitionRepository abstracts workflow-definition persistence so
// callers don't need to know whether storage is in-memory, SQL, or a
// mix. Save upserts by row id and bumps the concurrency token; Update
// is strict and fails with conveyor.ErrConflict when the stored token
// no longer matches the caller's copy.
type DefinitionRepository interface {
	GetByFamily(ctx context.Context, definitionID string, sel conveyor.VersionSelector) (*conveyor.WorkflowDefinitionVersion, error)
	Save(ctx context.Context, def *conveyor.WorkflowDefinitionVersion) error
	Update(ctx context.Context, def *conveyor.WorkflowDefinitionVersion) error
	ListLatest(ctx context.Context) ([]*conveyor.WorkflowDefinitionVersion, error)
	ListFamily(ctx context.Context, definitionID string) ([]*conveyor.WorkflowDefinitionVersion, error)
}

// InstanceRepository abstracts workflow-instance persistence.
type InstanceRepository interface {
	GetByID(ctx context.Context, id string) (*conveyor.WorkflowInstance, error)
	Save(ctx context.Context, inst *conveyor.WorkflowInstance) error
	Update(ctx context.Context, inst *conveyor.WorkflowInstance) error
	List(ctx context.Context) ([]*conveyor.WorkflowInstance, error)
	ListByDefinition(ctx context.Context, definitionID string) ([]*conveyor.WorkflowInstance, error)
}

// ScheduleRepository stores cron schedules that trigger published
// definitions.
type ScheduleRepository interface {
	GetByID(ctx context.Context, id string) (*conveyor.Schedule, error)
	Save(ctx context.Context, sched *conveyor.Schedule) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*conveyor.Schedule, error)
}
