package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/kkkkikiki/cashcode/internal/cashcode"
	"github.com/kkkkikiki/cashcode/internal/model"
)

// DBExecutor interface for database operations (can be *sqlx.DB or *sqlx.Tx)
type DBExecutor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	Rebind(query string) string
}

const drawColumns = `
	week_key, COALESCE(code, '') AS code, winner_id, ticket_id, status,
	prize_amount, drawn_at, expires_at, claimed_at, created_at, updated_at
`

// DrawRepository handles draw data operations
type DrawRepository struct{}

// NewDrawRepository creates a new draw repository
func NewDrawRepository() *DrawRepository {
	return &DrawRepository{}
}

// GetDraw retrieves the draw of a week
func (r *DrawRepository) GetDraw(ctx context.Context, db DBExecutor, weekKey string) (*model.Draw, error) {
	query := db.Rebind(`SELECT ` + drawColumns + ` FROM draws WHERE week_key = ?`)

	var draw model.Draw
	err := db.GetContext(ctx, &draw, query, weekKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, cashcode.ErrDrawNotFound
		}
		return nil, fmt.Errorf("failed to get draw: %w", err)
	}

	return &draw, nil
}

// CreateDraw inserts a pending draw; ErrConflict if the week already has one
func (r *DrawRepository) CreateDraw(ctx context.Context, db DBExecutor, draw *model.Draw) error {
	query := db.Rebind(`
		INSERT INTO draws (week_key, status, prize_amount, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (week_key) DO NOTHING
	`)

	result, err := db.ExecContext(ctx, query,
		draw.WeekKey, draw.Status, draw.PrizeAmount, draw.CreatedAt, draw.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create draw: %w", err)
	}

	return requireRow(result, cashcode.ErrConflict)
}

// AssignWinner stores winner, code and expiry while the draw is pending and undrawn
func (r *DrawRepository) AssignWinner(ctx context.Context, db DBExecutor, a cashcode.WinnerAssignment) error {
	query := db.Rebind(`
		UPDATE draws
		SET winner_id = ?, ticket_id = ?, code = ?, drawn_at = ?, expires_at = ?, updated_at = ?
		WHERE week_key = ? AND status = 'pending' AND winner_id IS NULL
	`)

	result, err := db.ExecContext(ctx, query,
		a.WinnerID, a.TicketID, a.Code, a.DrawnAt, a.ExpiresAt, a.DrawnAt, a.WeekKey)
	if err != nil {
		if isUniqueViolation(err) {
			return cashcode.ErrConflict
		}
		return fmt.Errorf("failed to assign winner: %w", err)
	}

	return requireRow(result, cashcode.ErrConditionFailed)
}

// MarkWon settles the draw as won while the claim window is open
func (r *DrawRepository) MarkWon(ctx context.Context, db DBExecutor, weekKey, userID string, now time.Time) error {
	query := db.Rebind(`
		UPDATE draws
		SET status = 'won', claimed_at = ?, updated_at = ?
		WHERE week_key = ? AND status = 'pending' AND winner_id = ? AND expires_at >= ?
	`)

	result, err := db.ExecContext(ctx, query, now, now, weekKey, userID, now)
	if err != nil {
		return fmt.Errorf("failed to mark draw as won: %w", err)
	}

	return requireRow(result, cashcode.ErrConditionFailed)
}

// MarkMissed settles an expired draw as missed and returns the ghost to record
func (r *DrawRepository) MarkMissed(ctx context.Context, db DBExecutor, weekKey string, now time.Time) (*model.GhostWinner, error) {
	query := db.Rebind(`
		UPDATE draws
		SET status = 'missed', updated_at = ?
		WHERE week_key = ? AND status = 'pending' AND winner_id IS NOT NULL AND expires_at < ?
		RETURNING week_key, winner_id AS user_id, prize_amount
	`)

	ghost := model.GhostWinner{MissedAt: now}
	err := db.GetContext(ctx, &ghost, query, now, weekKey, now)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, cashcode.ErrConditionFailed
		}
		return nil, fmt.Errorf("failed to mark draw as missed: %w", err)
	}

	return &ghost, nil
}

// ExpiredDraws lists pending draws whose claim window closed before now
func (r *DrawRepository) ExpiredDraws(ctx context.Context, db DBExecutor, now time.Time) ([]model.Draw, error) {
	query := db.Rebind(`
		SELECT ` + drawColumns + `
		FROM draws
		WHERE status = 'pending' AND winner_id IS NOT NULL AND expires_at < ?
		ORDER BY week_key ASC
	`)

	var draws []model.Draw
	if err := db.SelectContext(ctx, &draws, query, now); err != nil {
		return nil, fmt.Errorf("failed to list expired draws: %w", err)
	}

	return draws, nil
}

// requireRow returns errNone when the statement touched no row
func requireRow(result sql.Result, errNone error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return errNone
	}
	return nil
}

// isUniqueViolation detects unique constraint failures from PostgreSQL and libsql
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
