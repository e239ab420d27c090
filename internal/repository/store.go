package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/kkkkikiki/cashcode/internal/cashcode"
	"github.com/kkkkikiki/cashcode/internal/model"
)

// Store implements cashcode.Store on top of PostgreSQL or libsql
type Store struct {
	db          *sqlx.DB
	drawRepo    *DrawRepository
	ticketRepo  *TicketRepository
	ghostRepo   *GhostRepository
	counterRepo *CounterRepository
}

var _ cashcode.Store = (*Store)(nil)

// NewStore creates a new SQL-backed store
func NewStore(db *sqlx.DB) *Store {
	return &Store{
		db:          db,
		drawRepo:    NewDrawRepository(),
		ticketRepo:  NewTicketRepository(),
		ghostRepo:   NewGhostRepository(),
		counterRepo: NewCounterRepository(),
	}
}

func (s *Store) ActiveTickets(ctx context.Context, weekKey string) ([]model.Ticket, error) {
	return s.ticketRepo.ActiveTickets(ctx, s.db, weekKey)
}

func (s *Store) InsertTicket(ctx context.Context, ticket *model.Ticket) error {
	return s.ticketRepo.InsertTickets(ctx, s.db, []model.Ticket{*ticket})
}

func (s *Store) GetDraw(ctx context.Context, weekKey string) (*model.Draw, error) {
	return s.drawRepo.GetDraw(ctx, s.db, weekKey)
}

func (s *Store) CreateDraw(ctx context.Context, draw *model.Draw) error {
	return s.drawRepo.CreateDraw(ctx, s.db, draw)
}

func (s *Store) AssignWinner(ctx context.Context, a cashcode.WinnerAssignment) error {
	return s.drawRepo.AssignWinner(ctx, s.db, a)
}

func (s *Store) MarkWon(ctx context.Context, weekKey, userID string, now time.Time) error {
	return s.drawRepo.MarkWon(ctx, s.db, weekKey, userID, now)
}

// MarkMissed moves the draw to missed and appends the ghost in one transaction
func (s *Store) MarkMissed(ctx context.Context, weekKey string, now time.Time) (*model.GhostWinner, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ghost, err := s.drawRepo.MarkMissed(ctx, tx, weekKey, now)
	if err != nil {
		return nil, err
	}

	appended, err := s.ghostRepo.AppendGhost(ctx, tx, ghost)
	if err != nil {
		return nil, err
	}
	if !appended {
		// A ghost exists although the draw was pending; keep the log append-only
		return nil, cashcode.ErrConditionFailed
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return ghost, nil
}

func (s *Store) ExpiredDraws(ctx context.Context, now time.Time) ([]model.Draw, error) {
	return s.drawRepo.ExpiredDraws(ctx, s.db, now)
}

// Rollover creates the next draw, carries tickets and consumes the previous
// ledger in one transaction
func (s *Store) Rollover(ctx context.Context, plan cashcode.RolloverPlan) (int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// The draw insert goes first: its uniqueness on week_key is the guard
	// against a second rollover into the same week.
	if err := s.drawRepo.CreateDraw(ctx, tx, plan.Draw); err != nil {
		return 0, err
	}

	consumed, err := s.ticketRepo.ConsumeWeek(ctx, tx, plan.PrevWeekKey)
	if err != nil {
		return 0, err
	}

	if err := s.ticketRepo.InsertTickets(ctx, tx, plan.Carried); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return consumed, nil
}

func (s *Store) GhostWinners(ctx context.Context, limit int) ([]model.GhostWinner, error) {
	return s.ghostRepo.ListGhosts(ctx, s.db, limit)
}

func (s *Store) IncrementCounter(ctx context.Context, key string, limit int64) (int64, error) {
	return s.counterRepo.Increment(ctx, s.db, key, limit)
}
