// Package memstore is an in-process implementation of cashcode.Store.
//
// A single mutex serialises every operation, which gives each conditional
// write the same atomicity the SQL store gets from its UPDATE ... WHERE
// statements. State is lost on restart.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kkkkikiki/cashcode/internal/cashcode"
	"github.com/kkkkikiki/cashcode/internal/model"
)

// Store holds tickets, draws, ghost winners and counters in memory
type Store struct {
	mu       sync.Mutex
	tickets  map[string]*model.Ticket
	order    []string // ticket ids in insertion order
	draws    map[string]*model.Draw
	codes    map[string]string // code -> week key
	ghosts   []model.GhostWinner
	counters map[string]int64
}

var _ cashcode.Store = (*Store)(nil)

// New creates an empty Store
func New() *Store {
	return &Store{
		tickets:  make(map[string]*model.Ticket),
		draws:    make(map[string]*model.Draw),
		codes:    make(map[string]string),
		counters: make(map[string]int64),
	}
}

// ActiveTickets returns the active tickets of weekKey in insertion order
func (s *Store) ActiveTickets(_ context.Context, weekKey string) ([]model.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticketsLocked(weekKey, model.TicketActive), nil
}

// Tickets returns every ticket of weekKey with the given status
func (s *Store) Tickets(weekKey string, status model.TicketStatus) []model.Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticketsLocked(weekKey, status)
}

func (s *Store) ticketsLocked(weekKey string, status model.TicketStatus) []model.Ticket {
	var out []model.Ticket
	for _, id := range s.order {
		t := s.tickets[id]
		if t.WeekKey == weekKey && t.Status == status {
			out = append(out, *t)
		}
	}
	return out
}

// InsertTicket adds a ticket to the ledger
func (s *Store) InsertTicket(_ context.Context, ticket *model.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertTicketLocked(*ticket)
}

func (s *Store) insertTicketLocked(t model.Ticket) error {
	if _, exists := s.tickets[t.ID]; exists {
		return cashcode.ErrConflict
	}
	s.tickets[t.ID] = &t
	s.order = append(s.order, t.ID)
	return nil
}

// GetDraw returns a copy of the draw of weekKey
func (s *Store) GetDraw(_ context.Context, weekKey string) (*model.Draw, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.draws[weekKey]
	if !ok {
		return nil, cashcode.ErrDrawNotFound
	}
	return copyDraw(d), nil
}

// CreateDraw stores a new draw; ErrConflict if the week already has one
func (s *Store) CreateDraw(_ context.Context, draw *model.Draw) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createDrawLocked(draw)
}

func (s *Store) createDrawLocked(draw *model.Draw) error {
	if _, exists := s.draws[draw.WeekKey]; exists {
		return cashcode.ErrConflict
	}
	s.draws[draw.WeekKey] = copyDraw(draw)
	return nil
}

// AssignWinner sets the winner of a pending, undrawn draw
func (s *Store) AssignWinner(_ context.Context, a cashcode.WinnerAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.draws[a.WeekKey]
	if !ok || d.Status != model.DrawPending || d.WinnerID != nil {
		return cashcode.ErrConditionFailed
	}
	if _, used := s.codes[a.Code]; used {
		return cashcode.ErrConflict
	}

	winner, ticket := a.WinnerID, a.TicketID
	drawnAt, expiresAt := a.DrawnAt, a.ExpiresAt
	d.WinnerID = &winner
	d.TicketID = &ticket
	d.Code = a.Code
	d.DrawnAt = &drawnAt
	d.ExpiresAt = &expiresAt
	d.UpdatedAt = a.DrawnAt
	s.codes[a.Code] = a.WeekKey
	return nil
}

// MarkWon settles the draw as won when the claim is still in time
func (s *Store) MarkWon(_ context.Context, weekKey, userID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.draws[weekKey]
	if !ok || d.Status != model.DrawPending || !d.IsWinner(userID) || d.ExpiresAt == nil || now.After(*d.ExpiresAt) {
		return cashcode.ErrConditionFailed
	}
	claimedAt := now
	d.Status = model.DrawWon
	d.ClaimedAt = &claimedAt
	d.UpdatedAt = now
	return nil
}

// MarkMissed settles the draw as missed and appends its ghost winner
func (s *Store) MarkMissed(_ context.Context, weekKey string, now time.Time) (*model.GhostWinner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.draws[weekKey]
	if !ok || d.Status != model.DrawPending || d.WinnerID == nil || !d.Expired(now) {
		return nil, cashcode.ErrConditionFailed
	}
	for _, g := range s.ghosts {
		if g.WeekKey == weekKey {
			return nil, cashcode.ErrConditionFailed
		}
	}

	d.Status = model.DrawMissed
	d.UpdatedAt = now
	ghost := model.GhostWinner{
		WeekKey:     weekKey,
		UserID:      *d.WinnerID,
		PrizeAmount: d.PrizeAmount,
		MissedAt:    now,
	}
	s.ghosts = append(s.ghosts, ghost)
	return &ghost, nil
}

// ExpiredDraws lists pending draws whose claim window closed before now
func (s *Store) ExpiredDraws(_ context.Context, now time.Time) ([]model.Draw, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Draw
	for _, d := range s.draws {
		if d.Status == model.DrawPending && d.WinnerID != nil && d.Expired(now) {
			out = append(out, *copyDraw(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WeekKey < out[j].WeekKey })
	return out, nil
}

// Rollover opens the next week and closes the previous ledger in one step
func (s *Store) Rollover(_ context.Context, plan cashcode.RolloverPlan) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.draws[plan.Draw.WeekKey]; exists {
		return 0, cashcode.ErrConflict
	}
	for _, t := range plan.Carried {
		if _, exists := s.tickets[t.ID]; exists {
			return 0, cashcode.ErrConflict
		}
	}

	if err := s.createDrawLocked(plan.Draw); err != nil {
		return 0, err
	}
	var consumed int64
	for _, id := range s.order {
		t := s.tickets[id]
		if t.WeekKey == plan.PrevWeekKey && t.Status == model.TicketActive {
			t.Status = model.TicketUsed
			consumed++
		}
	}
	for _, t := range plan.Carried {
		if err := s.insertTicketLocked(t); err != nil {
			return 0, err
		}
	}
	return consumed, nil
}

// GhostWinners lists ghost winners, most recent first
func (s *Store) GhostWinners(_ context.Context, limit int) ([]model.GhostWinner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.GhostWinner, 0, len(s.ghosts))
	for i := len(s.ghosts) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, s.ghosts[i])
	}
	return out, nil
}

// IncrementCounter adds one to key, bounded by limit when positive
func (s *Store) IncrementCounter(_ context.Context, key string, limit int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.counters[key]
	if limit > 0 && v >= limit {
		return v, cashcode.ErrConditionFailed
	}
	v++
	s.counters[key] = v
	return v, nil
}

// Counter returns the current value of key
func (s *Store) Counter(key string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[key]
}

func copyDraw(d *model.Draw) *model.Draw {
	c := *d
	c.WinnerID = copyPtr(d.WinnerID)
	c.TicketID = copyPtr(d.TicketID)
	c.DrawnAt = copyPtr(d.DrawnAt)
	c.ExpiresAt = copyPtr(d.ExpiresAt)
	c.ClaimedAt = copyPtr(d.ClaimedAt)
	return &c
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
