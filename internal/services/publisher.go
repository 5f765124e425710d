// Package services wires the domain together: the definition lifecycle
// manager, the execution service around the engine, concurrency
// limiting, and cron scheduling.
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/seanmorton/conveyor/internal/conveyor"
	"github.com/seanmorton/conveyor/internal/repository"
)

// Publisher is the definition lifecycle manager. It moves a workflow
// template through draft, published, and superseded states while
// keeping every published snapshot as queryable history. At any moment
// a family has exactly one latest version and at most one published
// one; Publisher enforces this with a demote-then-mint write sequence.
//
// The two demote writes and the following save are not atomic;
// concurrent publish/save-draft calls on one family are serialized by
// the store's revision guard, which surfaces conveyor.ErrConflict to
// the loser so it can reload and retry.
type Publisher struct {
	defs repository.DefinitionRepository
	ids  conveyor.IDGenerator
}

func NewPublisher(defs repository.DefinitionRepository, ids conveyor.IDGenerator) *Publisher {
	if ids == nil {
		ids = conveyor.UUIDGenerator{}
	}
	return &Publisher{defs: defs, ids: ids}
}

// New returns a fresh, unsaved draft: version 1, latest, unpublished,
// with freshly generated row and family ids. No store write occurs;
// the caller decides when to persist via SaveDraft or PublishVersion.
func (p *Publisher) New() *conveyor.WorkflowDefinitionVersion {
	return &conveyor.WorkflowDefinitionVersion{
		ID:           p.ids.Generate(),
		DefinitionID: p.ids.Generate(),
		Name:         "New Workflow",
		Version:      1,
		IsLatest:     true,
		IsPublished:  false,
		IsSingleton:  false,
		IsDisabled:   false,
	}
}

// Publish publishes the family's latest version.
func (p *Publisher) Publish(ctx context.Context, definitionID string) (*conveyor.WorkflowDefinitionVersion, error) {
	latest, err := p.defs.GetByFamily(ctx, definitionID, conveyor.Latest())
	if err != nil {
		return nil, err
	}
	return p.PublishVersion(ctx, latest)
}

// PublishVersion publishes the candidate version. The caller's copy is
// never mutated. When the candidate is an unpublished draft it is
// promoted in place, keeping its id and version; when it is already
// published (a new cut from a live baseline) a brand-new row is minted
// with a fresh id and the next version number. Either way the family's
// previously published row is demoted first and the result ends up
// both published and latest.
func (p *Publisher) PublishVersion(ctx context.Context, candidate *conveyor.WorkflowDefinitionVersion) (*conveyor.WorkflowDefinitionVersion, error) {
	def := candidate.Clone()
	if err := conveyor.ValidateGraph(def); err != nil {
		return nil, fmt.Errorf("publish %s: %w: %v", def.DefinitionID, conveyor.ErrInvalidDefinition, err)
	}

	published, err := p.defs.GetByFamily(ctx, def.DefinitionID, conveyor.Published())
	if err != nil && !errors.Is(err, conveyor.ErrNotFound) {
		return nil, err
	}
	if published != nil {
		published.IsPublished = false
		published.IsLatest = false
		if err := p.defs.Update(ctx, published); err != nil {
			return nil, err
		}
	}

	if def.IsPublished {
		def.ID = p.ids.Generate()
		def.Version++
		def.Rev = 0
	} else {
		def.IsPublished = true
	}

	def.IsLatest = true
	p.initialize(def)

	if err := p.defs.Save(ctx, def); err != nil {
		return nil, err
	}
	return def, nil
}

// GetDraft returns an editable draft of the family. When the latest
// version is an unpublished draft it is returned as stored, editable in
// place. When the latest version is published, an unsaved in-memory
// clone is returned with a fresh id and the next version number; the
// caller must SaveDraft it explicitly.
func (p *Publisher) GetDraft(ctx context.Context, definitionID string) (*conveyor.WorkflowDefinitionVersion, error) {
	latest, err := p.defs.GetByFamily(ctx, definitionID, conveyor.Latest())
	if err != nil {
		return nil, err
	}
	if !latest.IsPublished {
		return latest, nil
	}

	draft := latest.Clone()
	draft.ID = p.ids.Generate()
	draft.IsPublished = false
	draft.IsLatest = true
	draft.Version++
	draft.Rev = 0
	return draft, nil
}

// SaveDraft persists the candidate as the family's latest unpublished
// draft. If the family's tip is a published version with no open
// draft, that tip keeps its published flag but loses latest, and the
// incoming draft is minted as a sibling row; otherwise the existing
// draft row is overwritten in place.
func (p *Publisher) SaveDraft(ctx context.Context, candidate *conveyor.WorkflowDefinitionVersion) (*conveyor.WorkflowDefinitionVersion, error) {
	draft := candidate.Clone()

	latest, err := p.defs.GetByFamily(ctx, candidate.DefinitionID, conveyor.Latest())
	if err != nil && !errors.Is(err, conveyor.ErrNotFound) {
		return nil, err
	}

	if latest != nil && latest.IsPublished && latest.IsLatest {
		latest.IsLatest = false
		draft.ID = p.ids.Generate()
		// Derive from the stored tip, not the candidate: a draft from
		// GetDraft already carries tip+1 and must not advance again.
		draft.Version = latest.Version + 1
		draft.Rev = 0

		if err := p.defs.Update(ctx, latest); err != nil {
			return nil, err
		}
	}

	draft.IsLatest = true
	draft.IsPublished = false
	p.initialize(draft)

	if err := p.defs.Save(ctx, draft); err != nil {
		return nil, err
	}
	return draft, nil
}

// initialize defaults missing identity fields before a save.
func (p *Publisher) initialize(def *conveyor.WorkflowDefinitionVersion) {
	if def.ID == "" {
		def.ID = p.ids.Generate()
	}
	if def.Version == 0 {
		def.Version = 1
	}
	if def.DefinitionID == "" {
		def.DefinitionID = p.ids.Generate()
	}
}
