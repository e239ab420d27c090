// Package cashcodev1 defines the cash code RPC surface: request and response
// messages, the JSON codec they travel with, and the connect handler and
// client constructors.
package cashcodev1

import (
	"time"

	"github.com/shopspring/decimal"
)

// Draw is the public view of a weekly draw. Code is only populated once the
// draw is settled.
type Draw struct {
	WeekKey     string          `json:"week_key"`
	Status      string          `json:"status"`
	WinnerID    string          `json:"winner_id,omitempty"`
	Code        string          `json:"code,omitempty"`
	PrizeAmount decimal.Decimal `json:"prize_amount"`
	DrawnAt     *time.Time      `json:"drawn_at,omitempty"`
	ExpiresAt   *time.Time      `json:"expires_at,omitempty"`
	ClaimedAt   *time.Time      `json:"claimed_at,omitempty"`
}

// Ticket is one ledger entry
type Ticket struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	WeekKey   string    `json:"week_key"`
	Status    string    `json:"status"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// GhostWinner is a winner who missed the claim window
type GhostWinner struct {
	WeekKey     string          `json:"week_key"`
	UserID      string          `json:"user_id"`
	PrizeAmount decimal.Decimal `json:"prize_amount"`
	MissedAt    time.Time       `json:"missed_at"`
}

type RunDrawRequest struct {
	WeekKey string `json:"week_key"`
}

type RunDrawResponse struct {
	WeekKey   string    `json:"week_key"`
	WinnerID  string    `json:"winner_id"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
}

type SubmitClaimRequest struct {
	WeekKey string `json:"week_key"`
	UserID  string `json:"user_id"`
	Code    string `json:"code"`
}

type SubmitClaimResponse struct {
	WeekKey     string          `json:"week_key"`
	PrizeAmount decimal.Decimal `json:"prize_amount"`
	ClaimedAt   time.Time       `json:"claimed_at"`
}

type RolloverWeekRequest struct {
	PrevWeekKey string `json:"prev_week_key"`
	NextWeekKey string `json:"next_week_key"`
}

type RolloverWeekResponse struct {
	Draw               Draw `json:"draw"`
	CarriedTicketCount int  `json:"carried_ticket_count"`
}

type SweepExpiredRequest struct{}

type SweepExpiredResponse struct {
	WeekKeys []string `json:"week_keys"`
}

type OpenWeekRequest struct {
	WeekKey     string          `json:"week_key"`
	PrizeAmount decimal.Decimal `json:"prize_amount"`
}

type OpenWeekResponse struct {
	Draw Draw `json:"draw"`
}

type IssueTicketRequest struct {
	WeekKey string `json:"week_key"`
	UserID  string `json:"user_id"`
	Source  string `json:"source,omitempty"`
}

type IssueTicketResponse struct {
	Ticket Ticket `json:"ticket"`
}

type GetDrawRequest struct {
	WeekKey string `json:"week_key"`
}

type GetDrawResponse struct {
	Draw Draw `json:"draw"`
}

type CurrentWeekRequest struct{}

type CurrentWeekResponse struct {
	WeekKey            string    `json:"week_key"`
	Start              time.Time `json:"start"`
	End                time.Time `json:"end"`
	CodeLiveStart      time.Time `json:"code_live_start"`
	DrawAt             time.Time `json:"draw_at"`
	ClaimWindowSeconds int64     `json:"claim_window_seconds"`
	Draw               *Draw     `json:"draw,omitempty"`
}

type ListGhostWinnersRequest struct {
	Limit int `json:"limit,omitempty"`
}

type ListGhostWinnersResponse struct {
	GhostWinners []GhostWinner `json:"ghost_winners"`
}
