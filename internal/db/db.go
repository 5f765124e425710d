// Package db implements SQL-backed stores for workflow definitions and
// instances. Two drivers are supported: "postgres" (lib/pq) for server
// deployments and "sqlite3" (mattn/go-sqlite3) for embedded single-node
// hosts. Queries are written with ? placeholders and rebound per driver
// by sqlx.
package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// DB wraps an sqlx connection pool plus the driver name it was opened
// with, which selects the migration dialect.
type DB struct {
	Pool   *sqlx.DB
	driver string
}

// Open connects with the given driver ("postgres" or "sqlite3") and DSN.
// The matching driver package must be imported by the host binary.
func Open(ctx context.Context, driver, dsn string) (*DB, error) {
	pool, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if driver == "sqlite3" {
		// SQLite serializes writers; more connections just contend.
		pool.SetMaxOpenConns(1)
	} else {
		pool.SetMaxOpenConns(25)
		pool.SetMaxIdleConns(5)
	}

	if err := pool.PingContext(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &DB{Pool: pool, driver: driver}, nil
}

// Close closes the connection pool.
func (d *DB) Close() error {
	return d.Pool.Close()
}

// rebind converts ? placeholders to the driver's bindvar style.
func (d *DB) rebind(query string) string {
	return d.Pool.Rebind(query)
}

// Migrate runs the schema migrations for the connected driver.
func (d *DB) Migrate(ctx context.Context) error {
	schema := migrationPostgres
	if d.driver == "sqlite3" {
		schema = migrationSQLite
	}
	if _, err := d.Pool.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

const migrationPostgres = `
CREATE TABLE IF NOT EXISTS workflow_definitions (
    id            TEXT PRIMARY KEY,
    definition_id TEXT NOT NULL,
    name          TEXT NOT NULL DEFAULT '',
    description   TEXT NOT NULL DEFAULT '',
    version       INTEGER NOT NULL DEFAULT 1,
    is_latest     BOOLEAN NOT NULL DEFAULT FALSE,
    is_published  BOOLEAN NOT NULL DEFAULT FALSE,
    is_singleton  BOOLEAN NOT NULL DEFAULT FALSE,
    is_disabled   BOOLEAN NOT NULL DEFAULT FALSE,
    graph         JSONB NOT NULL DEFAULT '{}',
    revision      BIGINT NOT NULL DEFAULT 1,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_definitions_family ON workflow_definitions(definition_id);
CREATE INDEX IF NOT EXISTS idx_definitions_latest ON workflow_definitions(definition_id) WHERE is_latest;

CREATE TABLE IF NOT EXISTS workflow_instances (
    id             TEXT PRIMARY KEY,
    definition_id  TEXT NOT NULL,
    version        INTEGER NOT NULL,
    status         TEXT NOT NULL,
    correlation_id TEXT NOT NULL DEFAULT '',
    variables      JSONB NOT NULL DEFAULT '{}',
    execution_log  JSONB NOT NULL DEFAULT '[]',
    blocking       JSONB NOT NULL DEFAULT '[]',
    revision       BIGINT NOT NULL DEFAULT 1,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_instances_family ON workflow_instances(definition_id);
CREATE INDEX IF NOT EXISTS idx_instances_status ON workflow_instances(status);
`

const migrationSQLite = `
CREATE TABLE IF NOT EXISTS workflow_definitions (
    id            TEXT PRIMARY KEY,
    definition_id TEXT NOT NULL,
    name          TEXT NOT NULL DEFAULT '',
    description   TEXT NOT NULL DEFAULT '',
    version       INTEGER NOT NULL DEFAULT 1,
    is_latest     BOOLEAN NOT NULL DEFAULT 0,
    is_published  BOOLEAN NOT NULL DEFAULT 0,
    is_singleton  BOOLEAN NOT NULL DEFAULT 0,
    is_disabled   BOOLEAN NOT NULL DEFAULT 0,
    graph         TEXT NOT NULL DEFAULT '{}',
    revision      INTEGER NOT NULL DEFAULT 1,
    created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_definitions_family ON workflow_definitions(definition_id);

CREATE TABLE IF NOT EXISTS workflow_instances (
    id             TEXT PRIMARY KEY,
    definition_id  TEXT NOT NULL,
    version        INTEGER NOT NULL,
    status         TEXT NOT NULL,
    correlation_id TEXT NOT NULL DEFAULT '',
    variables      TEXT NOT NULL DEFAULT '{}',
    execution_log  TEXT NOT NULL DEFAULT '[]',
    blocking       TEXT NOT NULL DEFAULT '[]',
    revision       INTEGER NOT NULL DEFAULT 1,
    created_at     TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at     TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_instances_family ON workflow_instances(definition_id);
CREATE INDEX IF NOT EXISTS idx_instances_status ON workflow_instances(status);
`
