package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// StateStore holds small persisted JSON blobs keyed by name, read-modify-write.
// A missing key means "first run, initialize".
type StateStore interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Put(ctx context.Context, key string, value interface{}) error
}

type StateRepository struct {
	db      *sql.DB
	storeID string
}

func NewStateRepository(db *sql.DB, storeID string) *StateRepository {
	return &StateRepository{db: db, storeID: storeID}
}

// Get unmarshals the blob under key into dest. Returns false with no error
// when the key has never been written.
func (r *StateRepository) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	query := `SELECT value FROM kv_state WHERE store_id = $1 AND key = $2`

	var raw []byte
	err := r.db.QueryRowContext(ctx, query, r.storeID, key).Scan(&raw)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read state %s: %w", key, err)
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("failed to decode state %s: %w", key, err)
	}

	return true, nil
}

func (r *StateRepository) Put(ctx context.Context, key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode state %s: %w", key, err)
	}

	query := `
		INSERT INTO kv_state (store_id, key, value, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (store_id, key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at
	`

	if _, err := r.db.ExecContext(ctx, query, r.storeID, key, raw, time.Now()); err != nil {
		return fmt.Errorf("failed to write state %s: %w", key, err)
	}

	return nil
}
