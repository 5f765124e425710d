package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/seanmorton/conveyor/internal/conveyor"
)

func defRow(id, family string, version int, latest, published bool) *conveyor.WorkflowDefinitionVersion {
	return &conveyor.WorkflowDefinitionVersion{
		ID:           id,
		DefinitionID: family,
		Name:         "Test",
		Version:      version,
		IsLatest:     latest,
		IsPublished:  published,
		Activities:   []conveyor.ActivityDefinition{{ID: "a", Type: "echo"}},
	}
}

func TestDefinitionSelectors(t *testing.T) {
	repo := NewMemoryDefinitions()
	ctx := context.Background()

	// v1 published, v2 draft/latest.
	if err := repo.Save(ctx, defRow("row-1", "fam", 1, false, true)); err != nil {
		t.Fatalf("save v1: %v", err)
	}
	if err := repo.Save(ctx, defRow("row-2", "fam", 2, true, false)); err != nil {
		t.Fatalf("save v2: %v", err)
	}

	latest, err := repo.GetByFamily(ctx, "fam", conveyor.Latest())
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.Version != 2 {
		t.Errorf("latest = v%d, want v2", latest.Version)
	}

	published, err := repo.GetByFamily(ctx, "fam", conveyor.Published())
	if err != nil {
		t.Fatalf("published: %v", err)
	}
	if published.Version != 1 {
		t.Errorf("published = v%d, want v1", published.Version)
	}

	specific, err := repo.GetByFamily(ctx, "fam", conveyor.Specific(1))
	if err != nil {
		t.Fatalf("specific: %v", err)
	}
	if specific.ID != "row-1" {
		t.Errorf("specific = %s, want row-1", specific.ID)
	}

	if _, err := repo.GetByFamily(ctx, "fam", conveyor.Specific(9)); !errors.Is(err, conveyor.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if _, err := repo.GetByFamily(ctx, "other", conveyor.Latest()); !errors.Is(err, conveyor.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDefinitionSaveBumpsRev(t *testing.T) {
	repo := NewMemoryDefinitions()
	ctx := context.Background()

	row := defRow("row-1", "fam", 1, true, false)
	if err := repo.Save(ctx, row); err != nil {
		t.Fatalf("save: %v", err)
	}
	if row.Rev != 1 {
		t.Errorf("rev = %d, want 1", row.Rev)
	}

	if err := repo.Save(ctx, row); err != nil {
		t.Fatalf("second save: %v", err)
	}
	if row.Rev != 2 {
		t.Errorf("rev = %d, want 2", row.Rev)
	}
}

func TestDefinitionUpdateRevGuard(t *testing.T) {
	repo := NewMemoryDefinitions()
	ctx := context.Background()

	row := defRow("row-1", "fam", 1, true, false)
	if err := repo.Save(ctx, row); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Two readers load the same row.
	first, _ := repo.GetByFamily(ctx, "fam", conveyor.Latest())
	second, _ := repo.GetByFamily(ctx, "fam", conveyor.Latest())

	first.Name = "winner"
	if err := repo.Update(ctx, first); err != nil {
		t.Fatalf("first update: %v", err)
	}

	second.Name = "loser"
	if err := repo.Update(ctx, second); !errors.Is(err, conveyor.ErrConflict) {
		t.Errorf("err = %v, want ErrConflict", err)
	}

	stored, _ := repo.GetByFamily(ctx, "fam", conveyor.Latest())
	if stored.Name != "winner" {
		t.Errorf("stored name = %q, want winner", stored.Name)
	}

	if err := repo.Update(ctx, defRow("ghost", "fam", 1, false, false)); !errors.Is(err, conveyor.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDefinitionRowsAreIsolated(t *testing.T) {
	repo := NewMemoryDefinitions()
	ctx := context.Background()

	row := defRow("row-1", "fam", 1, true, false)
	if err := repo.Save(ctx, row); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, _ := repo.GetByFamily(ctx, "fam", conveyor.Latest())
	got.Activities[0].Type = "mutated"

	again, _ := repo.GetByFamily(ctx, "fam", conveyor.Latest())
	if again.Activities[0].Type != "echo" {
		t.Error("reads share state with the store")
	}
}

func TestInstanceRepository(t *testing.T) {
	repo := NewMemoryInstances()
	ctx := context.Background()

	inst := &conveyor.WorkflowInstance{
		ID:           "i-1",
		DefinitionID: "fam",
		Version:      1,
		Status:       conveyor.StatusBlocked,
		Variables:    conveyor.Variables{"x": conveyor.Number(1)},
	}
	if err := repo.Save(ctx, inst); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := repo.GetByID(ctx, "i-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != conveyor.StatusBlocked {
		t.Errorf("status = %s, want blocked", got.Status)
	}

	got.Status = conveyor.StatusCompleted
	if err := repo.Update(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}

	// Stale copy loses the race.
	if err := repo.Update(ctx, inst); !errors.Is(err, conveyor.ErrConflict) {
		t.Errorf("err = %v, want ErrConflict", err)
	}

	byDef, err := repo.ListByDefinition(ctx, "fam")
	if err != nil {
		t.Fatalf("list by definition: %v", err)
	}
	if len(byDef) != 1 {
		t.Errorf("list = %d rows, want 1", len(byDef))
	}

	if _, err := repo.GetByID(ctx, "ghost"); !errors.Is(err, conveyor.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestScheduleRepository(t *testing.T) {
	repo := NewMemorySchedules()
	ctx := context.Background()

	sched := &conveyor.Schedule{ID: "s-1", DefinitionID: "fam", CronExpr: "0 * * * *"}
	if err := repo.Save(ctx, sched); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := repo.GetByID(ctx, "s-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.CronExpr != "0 * * * *" {
		t.Errorf("cron = %q", got.CronExpr)
	}

	all, _ := repo.List(ctx)
	if len(all) != 1 {
		t.Errorf("list = %d rows, want 1", len(all))
	}

	if err := repo.Delete(ctx, "s-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.GetByID(ctx, "s-1"); !errors.Is(err, conveyor.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if err := repo.Delete(ctx, "s-1"); !errors.Is(err, conveyor.ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}
