package repository

import (
	"context"
	"log/slog"

	"github.com/seanmorton/conveyor/internal/conveyor"
	"github.com/seanmorton/conveyor/internal/db"
	memstore "github.com/seanmorton/conveyor/internal/repository/memory"
)

// PersistentDefinitionRepository backs a DefinitionRepository with SQL
// storage plus an in-memory read cache. Writes go to the database first
// so the revision guard stays authoritative; the cache is refreshed on
// success and only consulted when the database is unavailable.
type PersistentDefinitionRepository struct {
	cache *memstore.Store[*conveyor.WorkflowDefinitionVersion]
	db    *db.DB
}

func NewPersistentDefinitions(database *db.DB) *PersistentDefinitionRepository {
	return &PersistentDefinitionRepository{
		cache: memstore.New(func(d *conveyor.WorkflowDefinitionVersion) string { return d.ID }),
		db:    database,
	}
}

func (r *PersistentDefinitionRepository) GetByFamily(ctx context.Context, definitionID string, sel conveyor.VersionSelector) (*conveyor.WorkflowDefinitionVersion, error) {
	return r.db.GetDefinitionByFamily(ctx, definitionID, sel)
}

func (r *PersistentDefinitionRepository) Save(ctx context.Context, def *conveyor.WorkflowDefinitionVersion) error {
	if err := r.db.SaveDefinition(ctx, def); err != nil {
		return err
	}
	_ = r.cache.Set(ctx, def.Clone())
	return nil
}

func (r *PersistentDefinitionRepository) Update(ctx context.Context, def *conveyor.WorkflowDefinitionVersion) error {
	if err := r.db.UpdateDefinition(ctx, def); err != nil {
		return err
	}
	_ = r.cache.Set(ctx, def.Clone())
	return nil
}

func (r *PersistentDefinitionRepository) ListLatest(ctx context.Context) ([]*conveyor.WorkflowDefinitionVersion, error) {
	rows, err := r.db.ListLatestDefinitions(ctx)
	if err != nil {
		slog.Warn("db list definitions failed, falling back to cache", "err", err)
		cached, _ := r.cache.Filter(ctx, func(d *conveyor.WorkflowDefinitionVersion) bool { return d.IsLatest })
		return cloneDefinitions(cached), nil
	}
	return rows, nil
}

func (r *PersistentDefinitionRepository) ListFamily(ctx context.Context, definitionID string) ([]*conveyor.WorkflowDefinitionVersion, error) {
	rows, err := r.db.ListDefinitionFamily(ctx, definitionID)
	if err != nil {
		slog.Warn("db list family failed, falling back to cache", "err", err)
		cached, _ := r.cache.Filter(ctx, func(d *conveyor.WorkflowDefinitionVersion) bool {
			return d.DefinitionID == definitionID
		})
		return cloneDefinitions(cached), nil
	}
	return rows, nil
}

// PersistentInstanceRepository is the SQL-backed InstanceRepository.
// Instances carry the whole execution state, so there is no memory
// layer: the row in the database is the single source of truth a crash
// recovers from.
type PersistentInstanceRepository struct {
	db *db.DB
}

func NewPersistentInstances(database *db.DB) *PersistentInstanceRepository {
	return &PersistentInstanceRepository{db: database}
}

func (r *PersistentInstanceRepository) GetByID(ctx context.Context, id string) (*conveyor.WorkflowInstance, error) {
	return r.db.GetInstance(ctx, id)
}

func (r *PersistentInstanceRepository) Save(ctx context.Context, inst *conveyor.WorkflowInstance) error {
	return r.db.SaveInstance(ctx, inst)
}

func (r *PersistentInstanceRepository) Update(ctx context.Context, inst *conveyor.WorkflowInstance) error {
	return r.db.UpdateInstance(ctx, inst)
}

func (r *PersistentInstanceRepository) List(ctx context.Context) ([]*conveyor.WorkflowInstance, error) {
	return r.db.ListInstances(ctx)
}

func (r *PersistentInstanceRepository) ListByDefinition(ctx context.Context, definitionID string) ([]*conveyor.WorkflowInstance, error) {
	return r.db.ListInstancesByDefinition(ctx, definitionID)
}
