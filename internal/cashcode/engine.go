// Package cashcode implements the weekly cash code lifecycle: drawing a
// winner, validating claims inside the claim window, recording ghost winners
// and rolling tickets and prizes into the following week.
//
// The Engine holds no lifecycle state of its own. Every decision is taken
// against the Store through conditional writes, so any number of processes
// may run the same operation for the same week concurrently.
package cashcode

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kkkkikiki/cashcode/internal/metrics"
	"github.com/kkkkikiki/cashcode/internal/model"
	"github.com/kkkkikiki/cashcode/internal/random"
	"github.com/kkkkikiki/cashcode/internal/weekkey"
)

// maxCodeAttempts bounds regeneration when a fresh code collides with one
// already stored.
const maxCodeAttempts = 5

// Config holds the tunable policy of the lifecycle
type Config struct {
	ClaimWindow         time.Duration
	CarryProbability    float64
	BasePrize           decimal.Decimal
	CarryUnclaimedPrize bool
	CodeLength          int
	// MaxClaimAttempts limits claim attempts per winner per week; 0 is unlimited
	MaxClaimAttempts int64
}

// Validate checks the policy values
func (c Config) Validate() error {
	if c.ClaimWindow <= 0 {
		return fmt.Errorf("claim window must be positive, got %s", c.ClaimWindow)
	}
	if c.CarryProbability < 0 || c.CarryProbability > 1 {
		return fmt.Errorf("carry probability must be within [0,1], got %v", c.CarryProbability)
	}
	if c.BasePrize.IsNegative() {
		return fmt.Errorf("base prize must not be negative, got %s", c.BasePrize)
	}
	if c.CodeLength != 0 && c.CodeLength < minCodeLength {
		return fmt.Errorf("code length must be at least %d, got %d", minCodeLength, c.CodeLength)
	}
	if c.MaxClaimAttempts < 0 {
		return fmt.Errorf("max claim attempts must not be negative, got %d", c.MaxClaimAttempts)
	}
	return nil
}

// Engine runs draws, claims, sweeps and rollovers
type Engine struct {
	store    Store
	rnd      random.Source
	clock    Clock
	notifier Notifier
	cfg      Config
}

// Option customises an Engine
type Option func(*Engine)

// WithClock replaces the system clock
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithNotifier sets the lifecycle notifier
func WithNotifier(n Notifier) Option {
	return func(e *Engine) {
		if n != nil {
			e.notifier = n
		}
	}
}

// NewEngine creates a new Engine instance
func NewEngine(store Store, rnd random.Source, cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cash code config: %w", err)
	}
	if cfg.CodeLength == 0 {
		cfg.CodeLength = defaultCodeLength
	}
	e := &Engine{
		store:    store,
		rnd:      rnd,
		clock:    SystemClock{},
		notifier: noopNotifier{},
		cfg:      cfg,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// DrawResult is the outcome of a successful draw
type DrawResult struct {
	WeekKey   string    `json:"week_key"`
	WinnerID  string    `json:"winner_id"`
	TicketID  string    `json:"ticket_id"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
}

// RunDraw selects the winning ticket of weekKey uniformly at random among its
// active tickets and stores the winner with a fresh code. The draw stays
// pending until the claim outcome is known.
func (e *Engine) RunDraw(ctx context.Context, weekKey string) (*DrawResult, error) {
	if err := validateWeekKey(weekKey); err != nil {
		return nil, err
	}

	draw, err := e.store.GetDraw(ctx, weekKey)
	if errors.Is(err, ErrDrawNotFound) {
		// Only an opened, undrawn week can be drawn
		return nil, ErrAlreadyDrawn
	}
	if err != nil {
		return nil, storageErr("get draw", err)
	}
	if draw.Status != model.DrawPending || draw.Drawn() {
		return nil, ErrAlreadyDrawn
	}

	tickets, err := e.store.ActiveTickets(ctx, weekKey)
	if err != nil {
		return nil, storageErr("load active tickets", err)
	}
	ticket, err := random.Pick(e.rnd, tickets)
	if err != nil {
		return nil, ErrNoEligibleTickets
	}

	now := e.clock.Now()
	assignment := WinnerAssignment{
		WeekKey:   weekKey,
		WinnerID:  ticket.UserID,
		TicketID:  ticket.ID,
		DrawnAt:   now,
		ExpiresAt: now.Add(e.cfg.ClaimWindow),
	}

	for attempt := 0; ; attempt++ {
		assignment.Code, err = GenerateCode(e.cfg.CodeLength)
		if err != nil {
			return nil, err
		}
		err = e.store.AssignWinner(ctx, assignment)
		if errors.Is(err, ErrConflict) && attempt+1 < maxCodeAttempts {
			continue
		}
		break
	}
	switch {
	case errors.Is(err, ErrConditionFailed):
		return nil, ErrAlreadyDrawn
	case err != nil:
		return nil, storageErr("assign winner", err)
	}

	logger.Infof("Draw %s: ticket %s of user %s wins, claim window ends %s",
		weekKey, ticket.ID, ticket.UserID, assignment.ExpiresAt.Format(time.RFC3339))

	drawn := *draw
	drawn.WinnerID = &assignment.WinnerID
	drawn.TicketID = &assignment.TicketID
	drawn.Code = assignment.Code
	drawn.DrawnAt = &assignment.DrawnAt
	drawn.ExpiresAt = &assignment.ExpiresAt
	e.notifier.WinnerDrawn(ctx, drawn)

	return &DrawResult{
		WeekKey:   weekKey,
		WinnerID:  assignment.WinnerID,
		TicketID:  assignment.TicketID,
		Code:      assignment.Code,
		ExpiresAt: assignment.ExpiresAt,
	}, nil
}

// ClaimResult is the outcome of a successful claim
type ClaimResult struct {
	WeekKey     string          `json:"week_key"`
	PrizeAmount decimal.Decimal `json:"prize_amount"`
	ClaimedAt   time.Time       `json:"claimed_at"`
}

// SubmitClaim redeems the prize of weekKey for userID. A claim after the
// window closes demotes the draw to missed and records the ghost winner.
func (e *Engine) SubmitClaim(ctx context.Context, weekKey, userID, code string, now time.Time) (*ClaimResult, error) {
	if err := validateWeekKey(weekKey); err != nil {
		return nil, err
	}
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidArgument)
	}

	draw, err := e.store.GetDraw(ctx, weekKey)
	if errors.Is(err, ErrDrawNotFound) {
		return nil, ErrNotWinner
	}
	if err != nil {
		return nil, storageErr("get draw", err)
	}
	if err := claimPrecondition(draw, userID); err != nil {
		return nil, err
	}

	if draw.Expired(now) {
		if _, err := e.expire(ctx, weekKey, now); err != nil && !errors.Is(err, ErrConditionFailed) {
			return nil, err
		}
		return nil, e.settledOutcome(ctx, weekKey, userID)
	}

	if e.cfg.MaxClaimAttempts > 0 {
		key := fmt.Sprintf("claim:%s:%s", weekKey, userID)
		_, err := e.store.IncrementCounter(ctx, key, e.cfg.MaxClaimAttempts)
		if errors.Is(err, ErrConditionFailed) {
			return nil, ErrTooManyAttempts
		}
		if err != nil {
			return nil, storageErr("count claim attempt", err)
		}
	}

	if !CodesMatch(draw.Code, code) {
		return nil, ErrIncorrectCode
	}

	err = e.store.MarkWon(ctx, weekKey, userID, now)
	if errors.Is(err, ErrConditionFailed) {
		// A concurrent claim or sweep settled the draw first
		return nil, e.settledOutcome(ctx, weekKey, userID)
	}
	if err != nil {
		return nil, storageErr("mark won", err)
	}

	logger.Infof("Draw %s claimed by user %s, prize %s", weekKey, userID, draw.PrizeAmount)

	winsKey := "wins:" + now.UTC().Format(time.DateOnly)
	if _, err := e.store.IncrementCounter(ctx, winsKey, 0); err != nil {
		logger.Warningf("Failed to increment %s: %v", winsKey, err)
	}

	return &ClaimResult{
		WeekKey:     weekKey,
		PrizeAmount: draw.PrizeAmount,
		ClaimedAt:   now,
	}, nil
}

// claimPrecondition rejects claims that can not succeed on the loaded draw.
// Winner identity is checked before status so that other users never learn
// the claim outcome.
func claimPrecondition(draw *model.Draw, userID string) error {
	if !draw.Drawn() {
		if draw.Status == model.DrawPending {
			return ErrNotDrawn
		}
		return ErrNotWinner
	}
	if !draw.IsWinner(userID) {
		return ErrNotWinner
	}
	switch draw.Status {
	case model.DrawWon:
		return ErrAlreadyClaimed
	case model.DrawMissed:
		return ErrClaimWindowExpired
	}
	return nil
}

// settledOutcome reloads a draw that another writer settled and reports the
// terminal state to the claimant.
func (e *Engine) settledOutcome(ctx context.Context, weekKey, userID string) error {
	draw, err := e.store.GetDraw(ctx, weekKey)
	if err != nil {
		return storageErr("reload draw", err)
	}
	if err := claimPrecondition(draw, userID); err != nil {
		return err
	}
	// Still pending: the window closed but the store refused the transition.
	return ErrClaimWindowExpired
}

// expire moves one draw to missed. ErrConditionFailed means the draw was not
// eligible, typically because another caller already settled it.
func (e *Engine) expire(ctx context.Context, weekKey string, now time.Time) (*model.GhostWinner, error) {
	ghost, err := e.store.MarkMissed(ctx, weekKey, now)
	if err != nil {
		return nil, storageErr("mark missed", err)
	}
	logger.Infof("Draw %s missed by user %s, prize %s recorded as ghost", ghost.WeekKey, ghost.UserID, ghost.PrizeAmount)
	metrics.RecordGhosts(1)
	e.notifier.GhostRecorded(ctx, *ghost)
	return ghost, nil
}

// SweepExpired demotes every pending draw whose claim window closed before
// now. It returns the weeks this call transitioned; draws settled
// concurrently by other callers are skipped.
func (e *Engine) SweepExpired(ctx context.Context, now time.Time) ([]string, error) {
	draws, err := e.store.ExpiredDraws(ctx, now)
	if err != nil {
		return nil, storageErr("list expired draws", err)
	}

	transitioned := make([]string, 0, len(draws))
	for _, d := range draws {
		_, err := e.expire(ctx, d.WeekKey, now)
		if errors.Is(err, ErrConditionFailed) {
			continue
		}
		if err != nil {
			return transitioned, err
		}
		transitioned = append(transitioned, d.WeekKey)
	}
	return transitioned, nil
}

// RolloverResult is the outcome of a successful rollover
type RolloverResult struct {
	Draw               model.Draw `json:"draw"`
	CarriedTicketCount int        `json:"carried_ticket_count"`
	ConsumedCount      int64      `json:"consumed_count"`
}

// RolloverWeek opens nextWeekKey: every active ticket of prevWeekKey is
// carried forward independently with the configured probability, the whole
// previous ledger is consumed, and a pending draw is created for the new week.
func (e *Engine) RolloverWeek(ctx context.Context, prevWeekKey, nextWeekKey string) (*RolloverResult, error) {
	if err := validateWeekKey(prevWeekKey); err != nil {
		return nil, err
	}
	if err := validateWeekKey(nextWeekKey); err != nil {
		return nil, err
	}
	if prevWeekKey == nextWeekKey {
		return nil, fmt.Errorf("%w: previous and next week are both %s", ErrInvalidArgument, prevWeekKey)
	}

	if _, err := e.store.GetDraw(ctx, nextWeekKey); err == nil {
		return nil, ErrAlreadyRolledOver
	} else if !errors.Is(err, ErrDrawNotFound) {
		return nil, storageErr("get next draw", err)
	}

	prevDraw, err := e.store.GetDraw(ctx, prevWeekKey)
	if err != nil && !errors.Is(err, ErrDrawNotFound) {
		return nil, storageErr("get previous draw", err)
	}

	tickets, err := e.store.ActiveTickets(ctx, prevWeekKey)
	if err != nil {
		return nil, storageErr("load active tickets", err)
	}

	now := e.clock.Now()
	carried := make([]model.Ticket, 0, int(float64(len(tickets))*e.cfg.CarryProbability)+1)
	for _, t := range tickets {
		if !random.Bernoulli(e.rnd, e.cfg.CarryProbability) {
			continue
		}
		carried = append(carried, model.Ticket{
			ID:        uuid.NewString(),
			UserID:    t.UserID,
			WeekKey:   nextWeekKey,
			Status:    model.TicketActive,
			Source:    model.SourceRollover,
			CreatedAt: now,
		})
	}

	draw := &model.Draw{
		WeekKey:     nextWeekKey,
		Status:      model.DrawPending,
		PrizeAmount: e.nextPrize(prevDraw),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	consumed, err := e.store.Rollover(ctx, RolloverPlan{
		PrevWeekKey: prevWeekKey,
		Draw:        draw,
		Carried:     carried,
	})
	if errors.Is(err, ErrConflict) {
		return nil, ErrAlreadyRolledOver
	}
	if err != nil {
		return nil, storageErr("rollover", err)
	}

	logger.Infof("Rolled %s into %s: %d of %d tickets carried, prize %s",
		prevWeekKey, nextWeekKey, len(carried), len(tickets), draw.PrizeAmount)

	return &RolloverResult{
		Draw:               *draw,
		CarriedTicketCount: len(carried),
		ConsumedCount:      consumed,
	}, nil
}

// nextPrize applies the prize policy: the base prize, plus the previous
// prize when it went unclaimed and carrying is enabled.
func (e *Engine) nextPrize(prev *model.Draw) decimal.Decimal {
	prize := e.cfg.BasePrize
	if !e.cfg.CarryUnclaimedPrize || prev == nil {
		return prize
	}
	if prev.Status == model.DrawMissed || (prev.Status == model.DrawPending && !prev.Drawn()) {
		prize = prize.Add(prev.PrizeAmount)
	}
	return prize
}

// OpenWeek creates the first pending draw of weekKey. Later weeks are opened
// by RolloverWeek.
func (e *Engine) OpenWeek(ctx context.Context, weekKey string, prize decimal.Decimal) (*model.Draw, error) {
	if err := validateWeekKey(weekKey); err != nil {
		return nil, err
	}
	if prize.IsNegative() {
		return nil, fmt.Errorf("%w: prize must not be negative", ErrInvalidArgument)
	}

	now := e.clock.Now()
	draw := &model.Draw{
		WeekKey:     weekKey,
		Status:      model.DrawPending,
		PrizeAmount: prize,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := e.store.CreateDraw(ctx, draw)
	if errors.Is(err, ErrConflict) {
		return nil, ErrAlreadyRolledOver
	}
	if err != nil {
		return nil, storageErr("create draw", err)
	}
	logger.Infof("Opened week %s with prize %s", weekKey, prize)
	return draw, nil
}

// IssueTicket adds an active ticket for userID to weekKey. Tickets can only
// be issued while the week has not been drawn.
func (e *Engine) IssueTicket(ctx context.Context, weekKey, userID string, source model.TicketSource) (*model.Ticket, error) {
	if err := validateWeekKey(weekKey); err != nil {
		return nil, err
	}
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidArgument)
	}
	switch source {
	case model.SourcePurchase, model.SourceReward:
	case "":
		source = model.SourcePurchase
	default:
		return nil, fmt.Errorf("%w: unsupported ticket source %q", ErrInvalidArgument, source)
	}

	draw, err := e.store.GetDraw(ctx, weekKey)
	if err != nil {
		return nil, storageErr("get draw", err)
	}
	if draw.Status != model.DrawPending || draw.Drawn() {
		return nil, ErrAlreadyDrawn
	}

	ticket := &model.Ticket{
		ID:        uuid.NewString(),
		UserID:    userID,
		WeekKey:   weekKey,
		Status:    model.TicketActive,
		Source:    source,
		CreatedAt: e.clock.Now(),
	}
	if err := e.store.InsertTicket(ctx, ticket); err != nil {
		return nil, storageErr("insert ticket", err)
	}
	return ticket, nil
}

// GetDraw returns the draw of weekKey
func (e *Engine) GetDraw(ctx context.Context, weekKey string) (*model.Draw, error) {
	if err := validateWeekKey(weekKey); err != nil {
		return nil, err
	}
	draw, err := e.store.GetDraw(ctx, weekKey)
	if err != nil {
		return nil, storageErr("get draw", err)
	}
	return draw, nil
}

// GhostWinners lists the most recent ghost winners
func (e *Engine) GhostWinners(ctx context.Context, limit int) ([]model.GhostWinner, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	ghosts, err := e.store.GhostWinners(ctx, limit)
	if err != nil {
		return nil, storageErr("list ghost winners", err)
	}
	return ghosts, nil
}

func validateWeekKey(weekKey string) error {
	if !weekkey.Valid(weekKey) {
		return fmt.Errorf("%w: week key %q", ErrInvalidArgument, weekKey)
	}
	return nil
}
