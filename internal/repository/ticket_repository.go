package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/kkkkikiki/cashcode/internal/model"
)

// TicketRepository handles ticket ledger operations
type TicketRepository struct{}

// NewTicketRepository creates a new ticket repository
func NewTicketRepository() *TicketRepository {
	return &TicketRepository{}
}

// ActiveTickets returns the active tickets of a week
func (r *TicketRepository) ActiveTickets(ctx context.Context, db DBExecutor, weekKey string) ([]model.Ticket, error) {
	query := db.Rebind(`
		SELECT id, user_id, week_key, status, source, created_at
		FROM tickets
		WHERE week_key = ? AND status = 'active'
		ORDER BY created_at ASC, id ASC
	`)

	var tickets []model.Ticket
	if err := db.SelectContext(ctx, &tickets, query, weekKey); err != nil {
		return nil, fmt.Errorf("failed to get active tickets: %w", err)
	}

	return tickets, nil
}

// ConsumeWeek marks every active ticket of a week as used
func (r *TicketRepository) ConsumeWeek(ctx context.Context, db DBExecutor, weekKey string) (int64, error) {
	query := db.Rebind(`
		UPDATE tickets
		SET status = 'used'
		WHERE week_key = ? AND status = 'active'
	`)

	result, err := db.ExecContext(ctx, query, weekKey)
	if err != nil {
		return 0, fmt.Errorf("failed to consume tickets: %w", err)
	}

	consumed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return consumed, nil
}

// InsertTickets creates tickets in batches
func (r *TicketRepository) InsertTickets(ctx context.Context, db DBExecutor, tickets []model.Ticket) error {
	// Keep each statement well under the driver parameter limits
	batchSize := 500

	for i := 0; i < len(tickets); i += batchSize {
		end := i + batchSize
		if end > len(tickets) {
			end = len(tickets)
		}

		if err := r.insertTicketBatch(ctx, db, tickets[i:end]); err != nil {
			return fmt.Errorf("failed to insert ticket batch: %w", err)
		}
	}

	return nil
}

// insertTicketBatch inserts a batch of tickets using a single query
func (r *TicketRepository) insertTicketBatch(ctx context.Context, db DBExecutor, tickets []model.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}

	valuesClause := make([]string, len(tickets))
	args := make([]interface{}, 0, len(tickets)*6)

	for i, t := range tickets {
		valuesClause[i] = "(?, ?, ?, ?, ?, ?)"
		args = append(args, t.ID, t.UserID, t.WeekKey, t.Status, t.Source, t.CreatedAt)
	}

	query := db.Rebind(fmt.Sprintf(`
		INSERT INTO tickets (id, user_id, week_key, status, source, created_at)
		VALUES %s
	`, strings.Join(valuesClause, ", ")))

	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to execute batch insert: %w", err)
	}

	return nil
}
