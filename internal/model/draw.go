package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TicketStatus is the lifecycle state of a ticket
type TicketStatus string

const (
	TicketActive TicketStatus = "active"
	TicketUsed   TicketStatus = "used"
)

// TicketSource records how a ticket entered the ledger
type TicketSource string

const (
	SourcePurchase TicketSource = "purchase"
	SourceReward   TicketSource = "reward"
	SourceRollover TicketSource = "rollover"
)

// Ticket represents one chance to win the draw of a single week
type Ticket struct {
	ID        string       `db:"id" json:"id"`
	UserID    string       `db:"user_id" json:"user_id"`
	WeekKey   string       `db:"week_key" json:"week_key"`
	Status    TicketStatus `db:"status" json:"status"`
	Source    TicketSource `db:"source" json:"source"`
	CreatedAt time.Time    `db:"created_at" json:"created_at"`
}

// DrawStatus is the claim outcome of a weekly draw.
// pending -> won | missed, both terminal.
type DrawStatus string

const (
	DrawPending DrawStatus = "pending"
	DrawWon     DrawStatus = "won"
	DrawMissed  DrawStatus = "missed"
)

// Terminal reports whether no further transition is possible
func (s DrawStatus) Terminal() bool {
	return s == DrawWon || s == DrawMissed
}

// Draw is the per-week record tracking code, winner and claim outcome
type Draw struct {
	WeekKey     string          `db:"week_key" json:"week_key"`
	Code        string          `db:"code" json:"code,omitempty"` // empty until the draw runs
	WinnerID    *string         `db:"winner_id" json:"winner_id"`
	TicketID    *string         `db:"ticket_id" json:"ticket_id"`
	Status      DrawStatus      `db:"status" json:"status"`
	PrizeAmount decimal.Decimal `db:"prize_amount" json:"prize_amount"`
	DrawnAt     *time.Time      `db:"drawn_at" json:"drawn_at"`
	ExpiresAt   *time.Time      `db:"expires_at" json:"expires_at"`
	ClaimedAt   *time.Time      `db:"claimed_at" json:"claimed_at"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// Drawn reports whether a winner has been selected
func (d *Draw) Drawn() bool {
	return d.WinnerID != nil
}

// IsWinner reports whether userID holds the winning ticket
func (d *Draw) IsWinner(userID string) bool {
	return d.WinnerID != nil && *d.WinnerID == userID
}

// Expired reports whether the claim window closed before now
func (d *Draw) Expired(now time.Time) bool {
	return d.ExpiresAt != nil && now.After(*d.ExpiresAt)
}

// GhostWinner is an append-only record of a winner who missed the claim window
type GhostWinner struct {
	WeekKey     string          `db:"week_key" json:"week_key"`
	UserID      string          `db:"user_id" json:"user_id"`
	PrizeAmount decimal.Decimal `db:"prize_amount" json:"prize_amount"`
	MissedAt    time.Time       `db:"missed_at" json:"missed_at"`
}
