package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/seanmorton/conveyor/internal/conveyor"
)

// graphDoc is the JSON document column holding the activity graph.
type graphDoc struct {
	Activities  []conveyor.ActivityDefinition `json:"activities"`
	Connections []conveyor.Connection         `json:"connections,omitempty"`
}

const definitionColumns = `id, definition_id, name, description, version,
	is_latest, is_published, is_singleton, is_disabled, graph, revision`

// SaveDefinition upserts a definition version by row id and bumps its
// revision. The caller's Rev field is updated on success.
func (d *DB) SaveDefinition(ctx context.Context, def *conveyor.WorkflowDefinitionVersion) error {
	graph, err := json.Marshal(graphDoc{Activities: def.Activities, Connections: def.Connections})
	if err != nil {
		return fmt.Errorf("marshal graph: %w", err)
	}

	now := time.Now().UTC()

	// The stored revision is authoritative: inserts start at 1 and an
	// overwrite bumps whatever the row currently holds.
	var newRev int64
	err = d.Pool.QueryRowContext(ctx, d.rebind(`
		INSERT INTO workflow_definitions
			(id, definition_id, name, description, version, is_latest, is_published,
			 is_singleton, is_disabled, graph, revision, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			definition_id = excluded.definition_id,
			name          = excluded.name,
			description   = excluded.description,
			version       = excluded.version,
			is_latest     = excluded.is_latest,
			is_published  = excluded.is_published,
			is_singleton  = excluded.is_singleton,
			is_disabled   = excluded.is_disabled,
			graph         = excluded.graph,
			revision      = workflow_definitions.revision + 1,
			updated_at    = excluded.updated_at
		RETURNING revision`),
		def.ID, def.DefinitionID, def.Name, def.Description, def.Version,
		def.IsLatest, def.IsPublished, def.IsSingleton, def.IsDisabled,
		graph, now, now,
	).Scan(&newRev)
	if err != nil {
		return fmt.Errorf("save definition: %w", err)
	}
	def.Rev = newRev
	return nil
}

// UpdateDefinition updates an existing row guarded by its revision.
// A revision mismatch yields conveyor.ErrConflict; a missing row yields
// conveyor.ErrNotFound.
func (d *DB) UpdateDefinition(ctx context.Context, def *conveyor.WorkflowDefinitionVersion) error {
	graph, err := json.Marshal(graphDoc{Activities: def.Activities, Connections: def.Connections})
	if err != nil {
		return fmt.Errorf("marshal graph: %w", err)
	}

	newRev := def.Rev + 1
	res, err := d.Pool.ExecContext(ctx, d.rebind(`
		UPDATE workflow_definitions SET
			definition_id = ?, name = ?, description = ?, version = ?,
			is_latest = ?, is_published = ?, is_singleton = ?, is_disabled = ?,
			graph = ?, revision = ?, updated_at = ?
		WHERE id = ? AND revision = ?`),
		def.DefinitionID, def.Name, def.Description, def.Version,
		def.IsLatest, def.IsPublished, def.IsSingleton, def.IsDisabled,
		graph, newRev, time.Now().UTC(),
		def.ID, def.Rev,
	)
	if err != nil {
		return fmt.Errorf("update definition: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		var exists bool
		row := d.Pool.QueryRowContext(ctx, d.rebind(
			`SELECT EXISTS (SELECT 1 FROM workflow_definitions WHERE id = ?)`), def.ID)
		if err := row.Scan(&exists); err != nil {
			return fmt.Errorf("update definition: %w", err)
		}
		if exists {
			return fmt.Errorf("%w: definition version %s", conveyor.ErrConflict, def.ID)
		}
		return fmt.Errorf("%w: definition version %s", conveyor.ErrNotFound, def.ID)
	}
	def.Rev = newRev
	return nil
}

// GetDefinitionByFamily returns the family row matching the selector.
func (d *DB) GetDefinitionByFamily(ctx context.Context, definitionID string, sel conveyor.VersionSelector) (*conveyor.WorkflowDefinitionVersion, error) {
	query := `SELECT ` + definitionColumns + ` FROM workflow_definitions WHERE definition_id = ?`
	args := []any{definitionID}

	switch sel.Kind {
	case conveyor.SelectLatest:
		query += ` AND is_latest`
	case conveyor.SelectPublished:
		query += ` AND is_published`
	case conveyor.SelectSpecific:
		query += ` AND version = ?`
		args = append(args, sel.Version)
	}
	query += ` ORDER BY version DESC LIMIT 1`

	def, err := d.scanDefinition(d.Pool.QueryRowContext(ctx, d.rebind(query), args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: definition %s", conveyor.ErrNotFound, definitionID)
	}
	return def, err
}

// ListLatestDefinitions returns the latest version of every family.
func (d *DB) ListLatestDefinitions(ctx context.Context) ([]*conveyor.WorkflowDefinitionVersion, error) {
	return d.queryDefinitions(ctx,
		`SELECT `+definitionColumns+` FROM workflow_definitions WHERE is_latest ORDER BY name`)
}

// ListDefinitionFamily returns every version of one family, oldest first.
func (d *DB) ListDefinitionFamily(ctx context.Context, definitionID string) ([]*conveyor.WorkflowDefinitionVersion, error) {
	return d.queryDefinitions(ctx,
		`SELECT `+definitionColumns+` FROM workflow_definitions WHERE definition_id = ? ORDER BY version`,
		definitionID)
}

func (d *DB) queryDefinitions(ctx context.Context, query string, args ...any) ([]*conveyor.WorkflowDefinitionVersion, error) {
	rows, err := d.Pool.QueryContext(ctx, d.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list definitions: %w", err)
	}
	defer rows.Close()

	var out []*conveyor.WorkflowDefinitionVersion
	for rows.Next() {
		def, err := d.scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, def)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (d *DB) scanDefinition(row rowScanner) (*conveyor.WorkflowDefinitionVersion, error) {
	var def conveyor.WorkflowDefinitionVersion
	var graph []byte
	err := row.Scan(&def.ID, &def.DefinitionID, &def.Name, &def.Description, &def.Version,
		&def.IsLatest, &def.IsPublished, &def.IsSingleton, &def.IsDisabled, &graph, &def.Rev)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan definition: %w", err)
	}
	var doc graphDoc
	if err := json.Unmarshal(graph, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal graph: %w", err)
	}
	def.Activities = doc.Activities
	def.Connections = doc.Connections
	return &def, nil
}
