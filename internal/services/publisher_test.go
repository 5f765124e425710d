package services

import (
	"context"
	"errors"
	"testing"

	"github.com/seanmorton/conveyor/internal/conveyor"
	"github.com/seanmorton/conveyor/internal/repository"
)

func newTestPublisher() (*Publisher, repository.DefinitionRepository) {
	defs := repository.NewMemoryDefinitions()
	return NewPublisher(defs, conveyor.UUIDGenerator{}), defs
}

// family loads every stored version of a family, failing the test on error.
func family(t *testing.T, defs repository.DefinitionRepository, definitionID string) []*conveyor.WorkflowDefinitionVersion {
	t.Helper()
	rows, err := defs.ListFamily(context.Background(), definitionID)
	if err != nil {
		t.Fatalf("ListFamily: %v", err)
	}
	return rows
}

func checkFamilyInvariants(t *testing.T, rows []*conveyor.WorkflowDefinitionVersion) {
	t.Helper()
	latest, published := 0, 0
	for _, row := range rows {
		if row.IsLatest {
			latest++
		}
		if row.IsPublished {
			published++
		}
	}
	if latest != 1 {
		t.Errorf("family has %d latest rows, want exactly 1", latest)
	}
	if published > 1 {
		t.Errorf("family has %d published rows, want at most 1", published)
	}
}

func TestNewReturnsUnsavedDraft(t *testing.T) {
	p, defs := newTestPublisher()

	def := p.New()
	if def.Version != 1 || !def.IsLatest || def.IsPublished {
		t.Errorf("New() = v%d latest=%v published=%v, want v1 latest unpublished", def.Version, def.IsLatest, def.IsPublished)
	}
	if def.ID == "" || def.DefinitionID == "" {
		t.Error("New() should generate ids")
	}

	// Nothing was persisted.
	if _, err := defs.GetByFamily(context.Background(), def.DefinitionID, conveyor.Latest()); !errors.Is(err, conveyor.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestPublishPromotesDraftInPlace(t *testing.T) {
	p, defs := newTestPublisher()
	ctx := context.Background()

	draft, err := p.SaveDraft(ctx, p.New())
	if err != nil {
		t.Fatalf("SaveDraft: %v", err)
	}

	published, err := p.Publish(ctx, draft.DefinitionID)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if published.ID != draft.ID || published.Version != draft.Version {
		t.Errorf("draft promotion minted a new row: %s v%d -> %s v%d", draft.ID, draft.Version, published.ID, published.Version)
	}
	if !published.IsPublished || !published.IsLatest {
		t.Error("published row should be both published and latest")
	}

	checkFamilyInvariants(t, family(t, defs, draft.DefinitionID))
}

func TestPublishDemotesPreviousPublished(t *testing.T) {
	p, defs := newTestPublisher()
	ctx := context.Background()

	draft, _ := p.SaveDraft(ctx, p.New())
	v1, err := p.Publish(ctx, draft.DefinitionID)
	if err != nil {
		t.Fatalf("Publish v1: %v", err)
	}

	// Cut and publish a second draft.
	draft2, err := p.GetDraft(ctx, draft.DefinitionID)
	if err != nil {
		t.Fatalf("GetDraft: %v", err)
	}
	draft2.Name = "Second"
	if _, err := p.SaveDraft(ctx, draft2); err != nil {
		t.Fatalf("SaveDraft v2: %v", err)
	}
	v2, err := p.Publish(ctx, draft.DefinitionID)
	if err != nil {
		t.Fatalf("Publish v2: %v", err)
	}

	if v2.Version != v1.Version+1 {
		t.Errorf("v2 version = %d, want %d", v2.Version, v1.Version+1)
	}

	old, err := defs.GetByFamily(ctx, draft.DefinitionID, conveyor.Specific(v1.Version))
	if err != nil {
		t.Fatalf("load v1: %v", err)
	}
	if old.IsPublished || old.IsLatest {
		t.Errorf("v1 still published=%v latest=%v after superseding publish", old.IsPublished, old.IsLatest)
	}

	// The old snapshot stays queryable by number.
	if old.Version != v1.Version {
		t.Errorf("v1 row version = %d, want %d", old.Version, v1.Version)
	}

	checkFamilyInvariants(t, family(t, defs, draft.DefinitionID))
}

func TestPublishVersionMintsRowForPublishedCandidate(t *testing.T) {
	p, defs := newTestPublisher()
	ctx := context.Background()

	draft, _ := p.SaveDraft(ctx, p.New())
	v1, err := p.Publish(ctx, draft.DefinitionID)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	// Re-publishing the live version cuts a fresh row from it.
	v2, err := p.PublishVersion(ctx, v1)
	if err != nil {
		t.Fatalf("PublishVersion: %v", err)
	}

	if v2.ID == v1.ID {
		t.Error("expected a new row id for a published candidate")
	}
	if v2.Version != v1.Version+1 {
		t.Errorf("version = %d, want %d", v2.Version, v1.Version+1)
	}
	if !v2.IsPublished || !v2.IsLatest {
		t.Error("new row should be published and latest")
	}

	// The caller's copy is untouched.
	if !v1.IsPublished || v1.Version != 1 {
		t.Errorf("candidate was mutated: published=%v v%d", v1.IsPublished, v1.Version)
	}

	checkFamilyInvariants(t, family(t, defs, draft.DefinitionID))
}

func TestGetDraftReturnsStoredDraft(t *testing.T) {
	p, _ := newTestPublisher()
	ctx := context.Background()

	saved, _ := p.SaveDraft(ctx, p.New())
	draft, err := p.GetDraft(ctx, saved.DefinitionID)
	if err != nil {
		t.Fatalf("GetDraft: %v", err)
	}
	if draft.ID != saved.ID || draft.Version != saved.Version {
		t.Errorf("GetDraft returned %s v%d, want the stored draft %s v%d", draft.ID, draft.Version, saved.ID, saved.Version)
	}
}

func TestGetDraftFromPublishedLatestIsUnsaved(t *testing.T) {
	p, defs := newTestPublisher()
	ctx := context.Background()

	saved, _ := p.SaveDraft(ctx, p.New())
	v1, err := p.Publish(ctx, saved.DefinitionID)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	draft, err := p.GetDraft(ctx, saved.DefinitionID)
	if err != nil {
		t.Fatalf("GetDraft: %v", err)
	}

	if draft.Version != v1.Version+1 {
		t.Errorf("draft version = %d, want %d", draft.Version, v1.Version+1)
	}
	if draft.ID == v1.ID {
		t.Error("draft should carry a fresh row id")
	}
	if draft.IsPublished {
		t.Error("draft should be unpublished")
	}

	// The draft is in-memory only until SaveDraft.
	rows := family(t, defs, saved.DefinitionID)
	if len(rows) != 1 {
		t.Errorf("store has %d rows, want 1 (draft not persisted)", len(rows))
	}
}

func TestSaveDraftOverwritesOpenDraft(t *testing.T) {
	p, defs := newTestPublisher()
	ctx := context.Background()

	first, _ := p.SaveDraft(ctx, p.New())
	first.Name = "Renamed"
	second, err := p.SaveDraft(ctx, first)
	if err != nil {
		t.Fatalf("SaveDraft: %v", err)
	}

	if second.ID != first.ID || second.Version != first.Version {
		t.Errorf("overwrite minted a new row: %s v%d", second.ID, second.Version)
	}

	rows := family(t, defs, first.DefinitionID)
	if len(rows) != 1 {
		t.Fatalf("store has %d rows, want 1", len(rows))
	}
	if rows[0].Name != "Renamed" {
		t.Errorf("stored name = %q, want Renamed", rows[0].Name)
	}
}

func TestSaveDraftMintsSiblingOverPublishedTip(t *testing.T) {
	p, defs := newTestPublisher()
	ctx := context.Background()

	saved, _ := p.SaveDraft(ctx, p.New())
	v1, err := p.Publish(ctx, saved.DefinitionID)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	edit := v1.Clone()
	edit.Name = "Edited"
	draft, err := p.SaveDraft(ctx, edit)
	if err != nil {
		t.Fatalf("SaveDraft: %v", err)
	}

	if draft.Version != v1.Version+1 || draft.ID == v1.ID {
		t.Errorf("draft = %s v%d, want a fresh sibling at v%d", draft.ID, draft.Version, v1.Version+1)
	}

	// The published row keeps serving runs but is no longer latest.
	pub, err := defs.GetByFamily(ctx, saved.DefinitionID, conveyor.Published())
	if err != nil {
		t.Fatalf("load published: %v", err)
	}
	if pub.ID != v1.ID || pub.IsLatest {
		t.Errorf("published row: id=%s latest=%v, want %s latest=false", pub.ID, pub.IsLatest, v1.ID)
	}

	checkFamilyInvariants(t, family(t, defs, saved.DefinitionID))
}

func TestSaveDraftInitializesMissingIdentity(t *testing.T) {
	p, _ := newTestPublisher()

	draft, err := p.SaveDraft(context.Background(), &conveyor.WorkflowDefinitionVersion{Name: "Bare"})
	if err != nil {
		t.Fatalf("SaveDraft: %v", err)
	}
	if draft.ID == "" || draft.DefinitionID == "" {
		t.Error("missing ids should be generated")
	}
	if draft.Version != 1 {
		t.Errorf("version = %d, want 1", draft.Version)
	}
	if !draft.IsLatest || draft.IsPublished {
		t.Error("bare draft should be latest and unpublished")
	}
}

func TestPublishMissingFamily(t *testing.T) {
	p, _ := newTestPublisher()
	if _, err := p.Publish(context.Background(), "no-such-family"); !errors.Is(err, conveyor.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestPublishRejectsInvalidGraph(t *testing.T) {
	p, _ := newTestPublisher()
	ctx := context.Background()

	draft := p.New()
	draft.Activities = []conveyor.ActivityDefinition{{ID: "a", Type: "writeLine"}}
	draft.Connections = []conveyor.Connection{{Source: "a", Target: "ghost"}}
	if _, err := p.SaveDraft(ctx, draft); err != nil {
		t.Fatalf("SaveDraft: %v", err)
	}

	if _, err := p.Publish(ctx, draft.DefinitionID); !errors.Is(err, conveyor.ErrInvalidDefinition) {
		t.Fatalf("err = %v, want ErrInvalidDefinition", err)
	}

	// The draft stays a draft; nothing was promoted.
	stored, err := p.GetDraft(ctx, draft.DefinitionID)
	if err != nil {
		t.Fatalf("GetDraft: %v", err)
	}
	if stored.IsPublished {
		t.Error("failed publish should not promote the draft")
	}
}

func TestSaveDraftOfGetDraftKeepsSingleIncrement(t *testing.T) {
	p, defs := newTestPublisher()
	ctx := context.Background()

	saved, _ := p.SaveDraft(ctx, p.New())
	v1, err := p.Publish(ctx, saved.DefinitionID)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	// GetDraft over a published tip already carries tip+1; saving it
	// must not advance the version a second time.
	draft, err := p.GetDraft(ctx, v1.DefinitionID)
	if err != nil {
		t.Fatalf("GetDraft: %v", err)
	}
	if draft.Version != v1.Version+1 {
		t.Fatalf("draft version = %d, want %d", draft.Version, v1.Version+1)
	}

	stored, err := p.SaveDraft(ctx, draft)
	if err != nil {
		t.Fatalf("SaveDraft: %v", err)
	}
	if stored.Version != v1.Version+1 {
		t.Errorf("stored draft version = %d, want %d", stored.Version, v1.Version+1)
	}

	republished, err := p.Publish(ctx, v1.DefinitionID)
	if err != nil {
		t.Fatalf("Publish draft: %v", err)
	}
	if republished.Version != v1.Version+1 {
		t.Errorf("republished version = %d, want %d", republished.Version, v1.Version+1)
	}

	// Version numbers within the family stay dense: 1, 2.
	rows := family(t, defs, v1.DefinitionID)
	versions := map[int]bool{}
	for _, row := range rows {
		versions[row.Version] = true
	}
	if len(rows) != 2 || !versions[1] || !versions[2] {
		t.Errorf("family rows = %d with versions %v, want exactly v1 and v2", len(rows), versions)
	}

	checkFamilyInvariants(t, rows)
}
