package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/seanmorton/conveyor/internal/conveyor"
	"github.com/seanmorton/conveyor/internal/db"

	_ "github.com/mattn/go-sqlite3"
)

func persistentDB(t *testing.T) *db.DB {
	t.Helper()
	ctx := context.Background()
	d, err := db.Open(ctx, "sqlite3", ":memory:")
	if err != nil {
		t.Skipf("database unavailable: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	require.NoError(t, d.Migrate(ctx))
	return d
}

func TestPersistentDefinitions_SaveUpdateGet(t *testing.T) {
	d := persistentDB(t)
	defs := NewPersistentDefinitions(d)
	ctx := context.Background()

	row := &conveyor.WorkflowDefinitionVersion{
		ID:           "v1",
		DefinitionID: "wf-persist",
		Name:         "Persisted",
		Version:      1,
		IsLatest:     true,
		Activities:   []conveyor.ActivityDefinition{{ID: "a", Type: "writeLine"}},
	}
	require.NoError(t, defs.Save(ctx, row))
	require.Equal(t, int64(1), row.Rev)

	got, err := defs.GetByFamily(ctx, "wf-persist", conveyor.Latest())
	require.NoError(t, err)
	require.Equal(t, "Persisted", got.Name)
	require.Len(t, got.Activities, 1)

	got.IsPublished = true
	require.NoError(t, defs.Update(ctx, got))

	pub, err := defs.GetByFamily(ctx, "wf-persist", conveyor.Published())
	require.NoError(t, err)
	require.Equal(t, "v1", pub.ID)

	// A second update with the stale revision loses the race.
	stale := *row
	stale.Name = "stale write"
	err = defs.Update(ctx, &stale)
	require.ErrorIs(t, err, conveyor.ErrConflict)
}

func TestPersistentDefinitions_ListFallsBackToCache(t *testing.T) {
	d := persistentDB(t)
	defs := NewPersistentDefinitions(d)
	ctx := context.Background()

	row := &conveyor.WorkflowDefinitionVersion{
		ID:           "v1",
		DefinitionID: "wf-cache",
		Name:         "Cached",
		Version:      1,
		IsLatest:     true,
	}
	require.NoError(t, defs.Save(ctx, row))

	// Closing the pool makes every query fail; lists should serve the
	// cache populated by the successful Save.
	require.NoError(t, d.Close())

	latest, err := defs.ListLatest(ctx)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	require.Equal(t, "Cached", latest[0].Name)

	fam, err := defs.ListFamily(ctx, "wf-cache")
	require.NoError(t, err)
	require.Len(t, fam, 1)
}

func TestPersistentInstances_RoundTrip(t *testing.T) {
	d := persistentDB(t)
	insts := NewPersistentInstances(d)
	ctx := context.Background()

	inst := &conveyor.WorkflowInstance{
		ID:                 "inst-1",
		DefinitionID:       "wf-persist",
		Version:            1,
		Status:             conveyor.StatusBlocked,
		Variables:          conveyor.Variables{"count": conveyor.Number(3)},
		BlockingActivities: []string{"approve"},
	}
	require.NoError(t, insts.Save(ctx, inst))

	got, err := insts.GetByID(ctx, "inst-1")
	require.NoError(t, err)
	require.Equal(t, conveyor.StatusBlocked, got.Status)
	require.Equal(t, []string{"approve"}, got.BlockingActivities)

	got.Status = conveyor.StatusCompleted
	got.BlockingActivities = nil
	require.NoError(t, insts.Update(ctx, got))

	byDef, err := insts.ListByDefinition(ctx, "wf-persist")
	require.NoError(t, err)
	require.Len(t, byDef, 1)
	require.Equal(t, conveyor.StatusCompleted, byDef[0].Status)

	_, err = insts.GetByID(ctx, "nope")
	require.ErrorIs(t, err, conveyor.ErrNotFound)
}
