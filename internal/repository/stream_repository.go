package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// StreamStore is the tabular store interface the engines work against: named
// append-ordered row sequences with a fixed header, queryable by range and
// rewritable in bulk.
type StreamStore interface {
	EnsureStream(ctx context.Context, name string, header []string) error
	StreamExists(ctx context.Context, name string) (bool, error)
	Header(ctx context.Context, name string) ([]string, error)
	AppendRow(ctx context.Context, stream string, cells []string) error
	AppendRows(ctx context.Context, stream string, rows [][]string) error
	RowCount(ctx context.Context, stream string) (int, error)
	LatestRow(ctx context.Context, stream string) ([]string, error)
	AllRows(ctx context.Context, stream string) ([][]string, error)
	RowsInRange(ctx context.Context, stream, fromTS, toTS string) ([][]string, error)
	ReplaceRows(ctx context.Context, stream string, rows [][]string) error
	DevicesSince(ctx context.Context, stream, sinceTS string) ([]string, error)
}

// StreamRepository is the Postgres-backed tabular store. All operations are
// scoped to one logical store id so several deployments can share a database.
type StreamRepository struct {
	db      *sql.DB
	storeID string
}

func NewStreamRepository(db *sql.DB, storeID string) *StreamRepository {
	return &StreamRepository{db: db, storeID: storeID}
}

// EnsureStream creates the stream record with its header if it does not exist
// yet. Re-creating an existing stream is a no-op; existing rows are kept.
func (r *StreamRepository) EnsureStream(ctx context.Context, name string, header []string) error {
	query := `
		INSERT INTO streams (store_id, name, header)
		VALUES ($1, $2, $3)
		ON CONFLICT (store_id, name) DO NOTHING
	`

	if _, err := r.db.ExecContext(ctx, query, r.storeID, name, pq.Array(header)); err != nil {
		return fmt.Errorf("failed to ensure stream %s: %w", name, err)
	}

	return nil
}

func (r *StreamRepository) StreamExists(ctx context.Context, name string) (bool, error) {
	query := `SELECT 1 FROM streams WHERE store_id = $1 AND name = $2`

	var one int
	err := r.db.QueryRowContext(ctx, query, r.storeID, name).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check stream %s: %w", name, err)
	}

	return true, nil
}

func (r *StreamRepository) Header(ctx context.Context, name string) ([]string, error) {
	query := `SELECT header FROM streams WHERE store_id = $1 AND name = $2`

	var header []string
	err := r.db.QueryRowContext(ctx, query, r.storeID, name).Scan(pq.Array(&header))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", name, err)
	}

	return header, nil
}

func (r *StreamRepository) AppendRow(ctx context.Context, stream string, cells []string) error {
	query := `INSERT INTO stream_rows (store_id, stream, cells) VALUES ($1, $2, $3)`

	if _, err := r.db.ExecContext(ctx, query, r.storeID, stream, pq.Array(cells)); err != nil {
		return fmt.Errorf("failed to append row to %s: %w", stream, err)
	}

	return nil
}

// AppendRows appends rows in order inside one transaction, so a retried bulk
// append never interleaves with concurrent writers.
func (r *StreamRepository) AppendRows(ctx context.Context, stream string, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO stream_rows (store_id, stream, cells) VALUES ($1, $2, $3)`)
	if err != nil {
		return fmt.Errorf("failed to prepare append: %w", err)
	}
	defer stmt.Close()

	for _, cells := range rows {
		if _, err := stmt.ExecContext(ctx, r.storeID, stream, pq.Array(cells)); err != nil {
			return fmt.Errorf("failed to append rows to %s: %w", stream, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit append to %s: %w", stream, err)
	}

	return nil
}

// RowCount returns the number of data rows (the header is stream metadata and
// is never counted).
func (r *StreamRepository) RowCount(ctx context.Context, stream string) (int, error) {
	query := `SELECT COUNT(*) FROM stream_rows WHERE store_id = $1 AND stream = $2`

	var count int
	if err := r.db.QueryRowContext(ctx, query, r.storeID, stream).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count rows of %s: %w", stream, err)
	}

	return count, nil
}

// LatestRow returns the most recently appended row, or nil when the stream
// has no data rows.
func (r *StreamRepository) LatestRow(ctx context.Context, stream string) ([]string, error) {
	query := `
		SELECT cells FROM stream_rows
		WHERE store_id = $1 AND stream = $2
		ORDER BY id DESC
		LIMIT 1
	`

	var cells []string
	err := r.db.QueryRowContext(ctx, query, r.storeID, stream).Scan(pq.Array(&cells))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read latest row of %s: %w", stream, err)
	}

	return cells, nil
}

func (r *StreamRepository) AllRows(ctx context.Context, stream string) ([][]string, error) {
	query := `
		SELECT cells FROM stream_rows
		WHERE store_id = $1 AND stream = $2
		ORDER BY id ASC
	`

	return r.queryRows(ctx, query, r.storeID, stream)
}

// RowsInRange returns rows whose timestamp cell falls in [fromTS, toTS).
// Canonical timestamps sort lexicographically, so plain string comparison on
// the first cell is correct.
func (r *StreamRepository) RowsInRange(ctx context.Context, stream, fromTS, toTS string) ([][]string, error) {
	query := `
		SELECT cells FROM stream_rows
		WHERE store_id = $1 AND stream = $2
		  AND cells[1] >= $3 AND cells[1] < $4
		ORDER BY id ASC
	`

	return r.queryRows(ctx, query, r.storeID, stream, fromTS, toTS)
}

func (r *StreamRepository) queryRows(ctx context.Context, query string, args ...interface{}) ([][]string, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rows: %w", err)
	}
	defer rows.Close()

	var result [][]string
	for rows.Next() {
		var cells []string
		if err := rows.Scan(pq.Array(&cells)); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, cells)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	return result, nil
}

// ReplaceRows rewrites the stream to exactly the given rows, preserving their
// relative order, in a single transaction. An empty slice empties the stream.
func (r *StreamRepository) ReplaceRows(ctx context.Context, stream string, rows [][]string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM stream_rows WHERE store_id = $1 AND stream = $2`,
		r.storeID, stream); err != nil {
		return fmt.Errorf("failed to clear stream %s: %w", stream, err)
	}

	if len(rows) > 0 {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO stream_rows (store_id, stream, cells) VALUES ($1, $2, $3)`)
		if err != nil {
			return fmt.Errorf("failed to prepare rewrite: %w", err)
		}
		defer stmt.Close()

		for _, cells := range rows {
			if _, err := stmt.ExecContext(ctx, r.storeID, stream, pq.Array(cells)); err != nil {
				return fmt.Errorf("failed to rewrite stream %s: %w", stream, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rewrite of %s: %w", stream, err)
	}

	return nil
}

// DevicesSince lists distinct device ids with rows at or after the given
// canonical timestamp.
func (r *StreamRepository) DevicesSince(ctx context.Context, stream, sinceTS string) ([]string, error) {
	query := `
		SELECT DISTINCT cells[2] FROM stream_rows
		WHERE store_id = $1 AND stream = $2 AND cells[1] >= $3
		ORDER BY cells[2]
	`

	rows, err := r.db.QueryContext(ctx, query, r.storeID, stream, sinceTS)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices of %s: %w", stream, err)
	}
	defer rows.Close()

	var devices []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan device id: %w", err)
		}
		devices = append(devices, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate devices: %w", err)
	}

	return devices, nil
}
