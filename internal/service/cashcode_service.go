package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"connectrpc.com/connect"
	"github.com/google/logger"
	"github.com/shopspring/decimal"

	cashcodev1 "github.com/kkkkikiki/cashcode/internal/api/cashcodev1"
	"github.com/kkkkikiki/cashcode/internal/cashcode"
	"github.com/kkkkikiki/cashcode/internal/metrics"
	"github.com/kkkkikiki/cashcode/internal/model"
	"github.com/kkkkikiki/cashcode/internal/weekkey"
)

// Lifecycle is the part of the cash code engine the server exposes
type Lifecycle interface {
	RunDraw(ctx context.Context, weekKey string) (*cashcode.DrawResult, error)
	SubmitClaim(ctx context.Context, weekKey, userID, code string, now time.Time) (*cashcode.ClaimResult, error)
	RolloverWeek(ctx context.Context, prevWeekKey, nextWeekKey string) (*cashcode.RolloverResult, error)
	SweepExpired(ctx context.Context, now time.Time) ([]string, error)
	OpenWeek(ctx context.Context, weekKey string, prize decimal.Decimal) (*model.Draw, error)
	IssueTicket(ctx context.Context, weekKey, userID string, source model.TicketSource) (*model.Ticket, error)
	GetDraw(ctx context.Context, weekKey string) (*model.Draw, error)
	GhostWinners(ctx context.Context, limit int) ([]model.GhostWinner, error)
}

// CashCodeServer implements the cash code service
type CashCodeServer struct {
	engine   Lifecycle
	resolver *weekkey.Resolver
	clock    cashcode.Clock
	limiter  *ClaimLimiter
}

// ServerOption customises a CashCodeServer
type ServerOption func(*CashCodeServer)

// WithServerClock replaces the clock used for claim and sweep timestamps
func WithServerClock(c cashcode.Clock) ServerOption {
	return func(s *CashCodeServer) { s.clock = c }
}

// WithClaimLimiter throttles SubmitClaim per user
func WithClaimLimiter(l *ClaimLimiter) ServerOption {
	return func(s *CashCodeServer) { s.limiter = l }
}

// NewCashCodeServer creates a new CashCodeServer instance
func NewCashCodeServer(engine Lifecycle, resolver *weekkey.Resolver, opts ...ServerOption) *CashCodeServer {
	s := &CashCodeServer{
		engine:   engine,
		resolver: resolver,
		clock:    cashcode.SystemClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// observe records the duration of one operation under its outcome status
func observe(operation string, start time.Time, err *error) {
	status := "success"
	if *err != nil {
		status = errorKind(*err)
	}
	metrics.RecordRequestDuration(operation, status, time.Since(start).Seconds())
}

// RunDraw selects the winner of a week
func (s *CashCodeServer) RunDraw(
	ctx context.Context,
	req *connect.Request[cashcodev1.RunDrawRequest],
) (_ *connect.Response[cashcodev1.RunDrawResponse], err error) {
	defer observe("run_draw", time.Now(), &err)

	result, err := s.engine.RunDraw(ctx, req.Msg.WeekKey)
	if err != nil {
		metrics.RecordDraw(errorKind(err))
		return nil, toConnectError(err)
	}
	metrics.RecordDraw("success")

	return connect.NewResponse(&cashcodev1.RunDrawResponse{
		WeekKey:   result.WeekKey,
		WinnerID:  result.WinnerID,
		Code:      result.Code,
		ExpiresAt: result.ExpiresAt,
	}), nil
}

// SubmitClaim redeems a week's prize
func (s *CashCodeServer) SubmitClaim(
	ctx context.Context,
	req *connect.Request[cashcodev1.SubmitClaimRequest],
) (_ *connect.Response[cashcodev1.SubmitClaimResponse], err error) {
	defer observe("submit_claim", time.Now(), &err)
	defer func() {
		if err != nil {
			metrics.RecordClaim(errorKind(err))
		} else {
			metrics.RecordClaim("success")
		}
	}()

	if s.limiter != nil && !s.limiter.Allow(req.Msg.UserID) {
		return nil, toConnectError(cashcode.ErrTooManyAttempts)
	}

	result, err := s.engine.SubmitClaim(ctx, req.Msg.WeekKey, req.Msg.UserID, req.Msg.Code, s.clock.Now())
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&cashcodev1.SubmitClaimResponse{
		WeekKey:     result.WeekKey,
		PrizeAmount: result.PrizeAmount,
		ClaimedAt:   result.ClaimedAt,
	}), nil
}

// RolloverWeek opens the next week from the previous one
func (s *CashCodeServer) RolloverWeek(
	ctx context.Context,
	req *connect.Request[cashcodev1.RolloverWeekRequest],
) (_ *connect.Response[cashcodev1.RolloverWeekResponse], err error) {
	defer observe("rollover_week", time.Now(), &err)

	result, err := s.engine.RolloverWeek(ctx, req.Msg.PrevWeekKey, req.Msg.NextWeekKey)
	if err != nil {
		return nil, toConnectError(err)
	}
	metrics.RecordCarried(result.CarriedTicketCount)

	return connect.NewResponse(&cashcodev1.RolloverWeekResponse{
		Draw:               toProtoDraw(&result.Draw),
		CarriedTicketCount: result.CarriedTicketCount,
	}), nil
}

// SweepExpired demotes every draw whose claim window closed
func (s *CashCodeServer) SweepExpired(
	ctx context.Context,
	_ *connect.Request[cashcodev1.SweepExpiredRequest],
) (_ *connect.Response[cashcodev1.SweepExpiredResponse], err error) {
	defer observe("sweep_expired", time.Now(), &err)

	weeks, err := s.engine.SweepExpired(ctx, s.clock.Now())
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&cashcodev1.SweepExpiredResponse{WeekKeys: weeks}), nil
}

// OpenWeek creates the first draw of a week
func (s *CashCodeServer) OpenWeek(
	ctx context.Context,
	req *connect.Request[cashcodev1.OpenWeekRequest],
) (_ *connect.Response[cashcodev1.OpenWeekResponse], err error) {
	defer observe("open_week", time.Now(), &err)

	draw, err := s.engine.OpenWeek(ctx, req.Msg.WeekKey, req.Msg.PrizeAmount)
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&cashcodev1.OpenWeekResponse{Draw: toProtoDraw(draw)}), nil
}

// IssueTicket adds a ticket to the ledger of a week
func (s *CashCodeServer) IssueTicket(
	ctx context.Context,
	req *connect.Request[cashcodev1.IssueTicketRequest],
) (_ *connect.Response[cashcodev1.IssueTicketResponse], err error) {
	defer observe("issue_ticket", time.Now(), &err)

	ticket, err := s.engine.IssueTicket(ctx, req.Msg.WeekKey, req.Msg.UserID, model.TicketSource(req.Msg.Source))
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&cashcodev1.IssueTicketResponse{
		Ticket: cashcodev1.Ticket{
			ID:        ticket.ID,
			UserID:    ticket.UserID,
			WeekKey:   ticket.WeekKey,
			Status:    string(ticket.Status),
			Source:    string(ticket.Source),
			CreatedAt: ticket.CreatedAt,
		},
	}), nil
}

// GetDraw returns the public view of a week's draw
func (s *CashCodeServer) GetDraw(
	ctx context.Context,
	req *connect.Request[cashcodev1.GetDrawRequest],
) (_ *connect.Response[cashcodev1.GetDrawResponse], err error) {
	defer observe("get_draw", time.Now(), &err)

	draw, err := s.engine.GetDraw(ctx, req.Msg.WeekKey)
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&cashcodev1.GetDrawResponse{Draw: toProtoDraw(draw)}), nil
}

// CurrentWeek returns the phase windows of the week containing now
func (s *CashCodeServer) CurrentWeek(
	ctx context.Context,
	_ *connect.Request[cashcodev1.CurrentWeekRequest],
) (_ *connect.Response[cashcodev1.CurrentWeekResponse], err error) {
	defer observe("current_week", time.Now(), &err)

	key := s.resolver.WeekKeyFor(s.clock.Now())
	windows, err := s.resolver.PhaseWindowsFor(key)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, fmt.Errorf("failed to compute windows of %s: %w", key, err))
	}

	res := &cashcodev1.CurrentWeekResponse{
		WeekKey:            windows.WeekKey,
		Start:              windows.Start,
		End:                windows.End,
		CodeLiveStart:      windows.CodeLiveStart,
		DrawAt:             windows.DrawAt,
		ClaimWindowSeconds: int64(windows.ClaimExpiryDuration / time.Second),
	}

	draw, err := s.engine.GetDraw(ctx, key)
	switch {
	case err == nil:
		d := toProtoDraw(draw)
		res.Draw = &d
	case errors.Is(err, cashcode.ErrDrawNotFound):
		// not opened yet
	default:
		return nil, toConnectError(err)
	}

	return connect.NewResponse(res), nil
}

// ListGhostWinners returns the most recent ghost winners
func (s *CashCodeServer) ListGhostWinners(
	ctx context.Context,
	req *connect.Request[cashcodev1.ListGhostWinnersRequest],
) (_ *connect.Response[cashcodev1.ListGhostWinnersResponse], err error) {
	defer observe("list_ghost_winners", time.Now(), &err)

	ghosts, err := s.engine.GhostWinners(ctx, req.Msg.Limit)
	if err != nil {
		return nil, toConnectError(err)
	}

	out := make([]cashcodev1.GhostWinner, 0, len(ghosts))
	for _, g := range ghosts {
		out = append(out, cashcodev1.GhostWinner{
			WeekKey:     g.WeekKey,
			UserID:      g.UserID,
			PrizeAmount: g.PrizeAmount,
			MissedAt:    g.MissedAt,
		})
	}
	return connect.NewResponse(&cashcodev1.ListGhostWinnersResponse{GhostWinners: out}), nil
}

// toProtoDraw converts a draw to its public view. The code is withheld until
// the draw is settled.
func toProtoDraw(d *model.Draw) cashcodev1.Draw {
	out := cashcodev1.Draw{
		WeekKey:     d.WeekKey,
		Status:      string(d.Status),
		PrizeAmount: d.PrizeAmount,
		DrawnAt:     d.DrawnAt,
		ExpiresAt:   d.ExpiresAt,
		ClaimedAt:   d.ClaimedAt,
	}
	if d.WinnerID != nil {
		out.WinnerID = *d.WinnerID
	}
	if d.Status.Terminal() {
		out.Code = d.Code
	}
	return out
}

var errorKinds = []struct {
	err  error
	kind string
	code connect.Code
}{
	{cashcode.ErrNotWinner, "not_winner", connect.CodePermissionDenied},
	{cashcode.ErrNotDrawn, "not_drawn", connect.CodeFailedPrecondition},
	{cashcode.ErrNoEligibleTickets, "no_eligible_tickets", connect.CodeFailedPrecondition},
	{cashcode.ErrClaimWindowExpired, "claim_window_expired", connect.CodeFailedPrecondition},
	{cashcode.ErrIncorrectCode, "incorrect_code", connect.CodeInvalidArgument},
	{cashcode.ErrInvalidArgument, "invalid_argument", connect.CodeInvalidArgument},
	{cashcode.ErrAlreadyClaimed, "already_claimed", connect.CodeAlreadyExists},
	{cashcode.ErrAlreadyDrawn, "already_drawn", connect.CodeAlreadyExists},
	{cashcode.ErrAlreadyRolledOver, "already_rolled_over", connect.CodeAlreadyExists},
	{cashcode.ErrTooManyAttempts, "too_many_attempts", connect.CodeResourceExhausted},
	{cashcode.ErrDrawNotFound, "draw_not_found", connect.CodeNotFound},
	{cashcode.ErrStorageUnavailable, "storage_unavailable", connect.CodeUnavailable},
}

// errorKind names the domain failure behind err
func errorKind(err error) string {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	var cerr *connect.Error
	if errors.As(err, &cerr) {
		if kind := cerr.Meta().Get(cashcodev1.ErrorKindHeader); kind != "" {
			return kind
		}
	}
	return "internal"
}

// toConnectError maps a lifecycle error to a connect error carrying the
// failure kind in its metadata
func toConnectError(err error) error {
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			cerr := connect.NewError(k.code, err)
			cerr.Meta().Set(cashcodev1.ErrorKindHeader, k.kind)
			return cerr
		}
	}
	logger.Errorf("Unexpected cash code error: %v", err)
	cerr := connect.NewError(connect.CodeInternal, errors.New("internal error"))
	cerr.Meta().Set(cashcodev1.ErrorKindHeader, "internal")
	return cerr
}
