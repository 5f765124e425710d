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

const instanceColumns = `id, definition_id, version, status, correlation_id,
	variables, execution_log, blocking, revision, created_at, updated_at`

// SaveInstance inserts a new workflow instance.
func (d *DB) SaveInstance(ctx context.Context, inst *conveyor.WorkflowInstance) error {
	variables, execLog, blocking, err := marshalInstanceDocs(inst)
	if err != nil {
		return err
	}

	newRev := inst.Rev + 1
	if inst.Rev == 0 {
		newRev = 1
	}
	now := time.Now().UTC()
	if inst.CreatedAt.IsZero() {
		inst.CreatedAt = now
	}
	inst.UpdatedAt = now

	_, err = d.Pool.ExecContext(ctx, d.rebind(`
		INSERT INTO workflow_instances
			(id, definition_id, version, status, correlation_id,
			 variables, execution_log, blocking, revision, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		inst.ID, inst.DefinitionID, inst.Version, string(inst.Status), inst.CorrelationID,
		variables, execLog, blocking, newRev, inst.CreatedAt, inst.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert instance: %w", err)
	}
	inst.Rev = newRev
	return nil
}

// UpdateInstance updates an existing instance guarded by its revision.
func (d *DB) UpdateInstance(ctx context.Context, inst *conveyor.WorkflowInstance) error {
	variables, execLog, blocking, err := marshalInstanceDocs(inst)
	if err != nil {
		return err
	}

	newRev := inst.Rev + 1
	inst.UpdatedAt = time.Now().UTC()
	res, err := d.Pool.ExecContext(ctx, d.rebind(`
		UPDATE workflow_instances SET
			status = ?, correlation_id = ?, variables = ?, execution_log = ?,
			blocking = ?, revision = ?, updated_at = ?
		WHERE id = ? AND revision = ?`),
		string(inst.Status), inst.CorrelationID, variables, execLog,
		blocking, newRev, inst.UpdatedAt,
		inst.ID, inst.Rev,
	)
	if err != nil {
		return fmt.Errorf("update instance: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		var exists bool
		row := d.Pool.QueryRowContext(ctx, d.rebind(
			`SELECT EXISTS (SELECT 1 FROM workflow_instances WHERE id = ?)`), inst.ID)
		if err := row.Scan(&exists); err != nil {
			return fmt.Errorf("update instance: %w", err)
		}
		if exists {
			return fmt.Errorf("%w: instance %s", conveyor.ErrConflict, inst.ID)
		}
		return fmt.Errorf("%w: instance %s", conveyor.ErrNotFound, inst.ID)
	}
	inst.Rev = newRev
	return nil
}

// GetInstance retrieves a workflow instance by id.
func (d *DB) GetInstance(ctx context.Context, id string) (*conveyor.WorkflowInstance, error) {
	inst, err := d.scanInstance(d.Pool.QueryRowContext(ctx, d.rebind(
		`SELECT `+instanceColumns+` FROM workflow_instances WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: instance %s", conveyor.ErrNotFound, id)
	}
	return inst, err
}

// ListInstances returns all instances, newest first.
func (d *DB) ListInstances(ctx context.Context) ([]*conveyor.WorkflowInstance, error) {
	return d.queryInstances(ctx,
		`SELECT `+instanceColumns+` FROM workflow_instances ORDER BY created_at DESC`)
}

// ListInstancesByDefinition returns all instances of one definition
// family, newest first.
func (d *DB) ListInstancesByDefinition(ctx context.Context, definitionID string) ([]*conveyor.WorkflowInstance, error) {
	return d.queryInstances(ctx,
		`SELECT `+instanceColumns+` FROM workflow_instances WHERE definition_id = ? ORDER BY created_at DESC`,
		definitionID)
}

func (d *DB) queryInstances(ctx context.Context, query string, args ...any) ([]*conveyor.WorkflowInstance, error) {
	rows, err := d.Pool.QueryContext(ctx, d.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	defer rows.Close()

	var out []*conveyor.WorkflowInstance
	for rows.Next() {
		inst, err := d.scanInstance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

func (d *DB) scanInstance(row rowScanner) (*conveyor.WorkflowInstance, error) {
	var inst conveyor.WorkflowInstance
	var status string
	var variables, execLog, blocking []byte
	err := row.Scan(&inst.ID, &inst.DefinitionID, &inst.Version, &status, &inst.CorrelationID,
		&variables, &execLog, &blocking, &inst.Rev, &inst.CreatedAt, &inst.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan instance: %w", err)
	}
	inst.Status = conveyor.InstanceStatus(status)
	if err := json.Unmarshal(variables, &inst.Variables); err != nil {
		return nil, fmt.Errorf("unmarshal variables: %w", err)
	}
	if err := json.Unmarshal(execLog, &inst.ExecutionLog); err != nil {
		return nil, fmt.Errorf("unmarshal execution log: %w", err)
	}
	if err := json.Unmarshal(blocking, &inst.BlockingActivities); err != nil {
		return nil, fmt.Errorf("unmarshal blocking activities: %w", err)
	}
	return &inst, nil
}

func marshalInstanceDocs(inst *conveyor.WorkflowInstance) (variables, execLog, blocking []byte, err error) {
	if variables, err = json.Marshal(orEmptyVars(inst.Variables)); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal variables: %w", err)
	}
	if execLog, err = json.Marshal(orEmptyLog(inst.ExecutionLog)); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal execution log: %w", err)
	}
	if blocking, err = json.Marshal(orEmptyIDs(inst.BlockingActivities)); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal blocking activities: %w", err)
	}
	return variables, execLog, blocking, nil
}

func orEmptyVars(v conveyor.Variables) conveyor.Variables {
	if v == nil {
		return conveyor.Variables{}
	}
	return v
}

func orEmptyLog(l []conveyor.ExecutionLogEntry) []conveyor.ExecutionLogEntry {
	if l == nil {
		return []conveyor.ExecutionLogEntry{}
	}
	return l
}

func orEmptyIDs(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
