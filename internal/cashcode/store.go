package cashcode

import (
	"context"
	"time"

	"github.com/kkkkikiki/cashcode/internal/model"
)

// Store is the persistence collaborator. Every conditional method must apply
// its precondition and mutation as one atomic write.
type Store interface {
	// ActiveTickets returns the tickets of weekKey with status active
	ActiveTickets(ctx context.Context, weekKey string) ([]model.Ticket, error)
	// InsertTicket adds a ticket to the ledger
	InsertTicket(ctx context.Context, ticket *model.Ticket) error

	// GetDraw returns ErrDrawNotFound when no draw exists for weekKey
	GetDraw(ctx context.Context, weekKey string) (*model.Draw, error)
	// CreateDraw returns ErrConflict when a draw already exists for the week
	CreateDraw(ctx context.Context, draw *model.Draw) error
	// AssignWinner sets winner, code and expiry where status = pending and
	// winner is null. ErrConditionFailed when no draw matched, ErrConflict
	// when the code is already used by another draw.
	AssignWinner(ctx context.Context, a WinnerAssignment) error
	// MarkWon moves the draw to won where status = pending, winner = userID
	// and expires_at >= now. ErrConditionFailed otherwise.
	MarkWon(ctx context.Context, weekKey, userID string, now time.Time) error
	// MarkMissed moves the draw to missed where status = pending, a winner is
	// set and expires_at < now, and appends the ghost winner in the same
	// transaction. ErrConditionFailed when the draw did not transition.
	MarkMissed(ctx context.Context, weekKey string, now time.Time) (*model.GhostWinner, error)
	// ExpiredDraws lists pending draws with a winner whose window closed before now
	ExpiredDraws(ctx context.Context, now time.Time) ([]model.Draw, error)

	// Rollover atomically creates the next draw, inserts the carried tickets
	// and consumes every active ticket of the previous week. ErrConflict when
	// the next draw already exists; nothing is written in that case.
	Rollover(ctx context.Context, plan RolloverPlan) (consumed int64, err error)

	// GhostWinners lists ghost winners, most recent first
	GhostWinners(ctx context.Context, limit int) ([]model.GhostWinner, error)

	// IncrementCounter adds one to key and returns the new value. With a
	// positive limit the increment only applies while value < limit, and
	// ErrConditionFailed is returned once the limit is reached.
	IncrementCounter(ctx context.Context, key string, limit int64) (int64, error)
}

// WinnerAssignment is the draw engine's single write
type WinnerAssignment struct {
	WeekKey   string
	WinnerID  string
	TicketID  string
	Code      string
	DrawnAt   time.Time
	ExpiresAt time.Time
}

// RolloverPlan is everything the rollover writes in one transaction
type RolloverPlan struct {
	PrevWeekKey string
	Draw        *model.Draw
	Carried     []model.Ticket
}

// Clock is the time source of the engine
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Notifier receives lifecycle announcements. Implementations must not block
// for long; failures are theirs to log.
type Notifier interface {
	WinnerDrawn(ctx context.Context, draw model.Draw)
	GhostRecorded(ctx context.Context, ghost model.GhostWinner)
}

type noopNotifier struct{}

func (noopNotifier) WinnerDrawn(context.Context, model.Draw)          {}
func (noopNotifier) GhostRecorded(context.Context, model.GhostWinner) {}
