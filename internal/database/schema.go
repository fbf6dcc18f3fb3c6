package database

import (
	"context"
	"fmt"
)

// Schema for the tabular stream store and the key-value state store.
// Streams model append-ordered named row sequences: the header lives on the
// stream record, data rows are ordered by their serial id.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS streams (
		store_id   TEXT NOT NULL,
		name       TEXT NOT NULL,
		header     TEXT[] NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (store_id, name)
	)`,
	`CREATE TABLE IF NOT EXISTS stream_rows (
		id       BIGSERIAL PRIMARY KEY,
		store_id TEXT NOT NULL,
		stream   TEXT NOT NULL,
		cells    TEXT[] NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_stream_rows_stream
		ON stream_rows (store_id, stream, id)`,
	`CREATE TABLE IF NOT EXISTS kv_state (
		store_id   TEXT NOT NULL,
		key        TEXT NOT NULL,
		value      JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (store_id, key)
	)`,
}

// InitSchema creates the storage tables if they do not exist yet. Safe to run
// on every startup.
func (d *Database) InitSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := d.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}
