package repository

import (
	"context"
	"fmt"

	"github.com/kkkkikiki/cashcode/internal/model"
)

// GhostRepository handles the append-only ghost winner log
type GhostRepository struct{}

// NewGhostRepository creates a new ghost winner repository
func NewGhostRepository() *GhostRepository {
	return &GhostRepository{}
}

// AppendGhost records a ghost winner once per week; a second append is ignored
func (r *GhostRepository) AppendGhost(ctx context.Context, db DBExecutor, ghost *model.GhostWinner) (bool, error) {
	query := db.Rebind(`
		INSERT INTO ghost_winners (week_key, user_id, prize_amount, missed_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (week_key) DO NOTHING
	`)

	result, err := db.ExecContext(ctx, query, ghost.WeekKey, ghost.UserID, ghost.PrizeAmount, ghost.MissedAt)
	if err != nil {
		return false, fmt.Errorf("failed to append ghost winner: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected == 1, nil
}

// ListGhosts returns ghost winners, most recent first
func (r *GhostRepository) ListGhosts(ctx context.Context, db DBExecutor, limit int) ([]model.GhostWinner, error) {
	query := db.Rebind(`
		SELECT week_key, user_id, prize_amount, missed_at
		FROM ghost_winners
		ORDER BY missed_at DESC
		LIMIT ?
	`)

	var ghosts []model.GhostWinner
	if err := db.SelectContext(ctx, &ghosts, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list ghost winners: %w", err)
	}

	return ghosts, nil
}
