package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kkkkikiki/cashcode/internal/cashcode"
)

// CounterRepository keeps persisted counters shared by every server instance
type CounterRepository struct{}

// NewCounterRepository creates a new counter repository
func NewCounterRepository() *CounterRepository {
	return &CounterRepository{}
}

// Increment adds one to key and returns the new value. With a positive
// limit the increment only applies while the stored value is below it.
func (r *CounterRepository) Increment(ctx context.Context, db DBExecutor, key string, limit int64) (int64, error) {
	query := `
		INSERT INTO counters (key, value, updated_at)
		VALUES (?, 1, ?)
		ON CONFLICT (key) DO UPDATE
		SET value = counters.value + 1, updated_at = excluded.updated_at
	`
	args := []interface{}{key, time.Now().UTC()}
	if limit > 0 {
		query += ` WHERE counters.value < ?`
		args = append(args, limit)
	}
	query += ` RETURNING value`

	var value int64
	err := db.GetContext(ctx, &value, db.Rebind(query), args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, cashcode.ErrConditionFailed
		}
		return 0, fmt.Errorf("failed to increment counter %s: %w", key, err)
	}

	return value, nil
}
