package cashcode_test

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/shopspring/decimal"

	"github.com/kkkkikiki/cashcode/internal/cashcode"
	"github.com/kkkkikiki/cashcode/internal/memstore"
	"github.com/kkkkikiki/cashcode/internal/metrics"
	"github.com/kkkkikiki/cashcode/internal/model"
	"github.com/kkkkikiki/cashcode/internal/random"
	"github.com/kkkkikiki/cashcode/internal/weekkey"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var testConfig = cashcode.Config{
	ClaimWindow:         30 * time.Minute,
	CarryProbability:    0.2,
	BasePrize:           decimal.NewFromInt(10),
	CarryUnclaimedPrize: true,
	CodeLength:          8,
}

type fixture struct {
	engine *cashcode.Engine
	store  *memstore.Store
	clock  *fakeClock
}

func newFixture(t *testing.T, cfg cashcode.Config, seed uint64) *fixture {
	t.Helper()
	store := memstore.New()
	clock := &fakeClock{now: time.Date(2026, time.October, 16, 15, 14, 0, 0, time.UTC)}
	engine, err := cashcode.NewEngine(store, random.NewSeeded(seed), cfg, cashcode.WithClock(clock))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return &fixture{engine: engine, store: store, clock: clock}
}

func (f *fixture) openWithTickets(t *testing.T, weekKey string, users ...string) {
	t.Helper()
	ctx := context.Background()
	if _, err := f.engine.OpenWeek(ctx, weekKey, decimal.NewFromInt(10)); err != nil {
		t.Fatalf("open week %s: %v", weekKey, err)
	}
	for _, u := range users {
		if _, err := f.engine.IssueTicket(ctx, weekKey, u, model.SourcePurchase); err != nil {
			t.Fatalf("issue ticket for %s: %v", u, err)
		}
	}
}

func TestClaimLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testConfig, 1)
	const week = "2026-W01"
	f.openWithTickets(t, week, "u1", "u1", "u2")

	t.Run("claim before draw is reported as not drawn", func(t *testing.T) {
		_, err := f.engine.SubmitClaim(ctx, week, "u1", "ANYTHING", f.clock.Now())
		if !errors.Is(err, cashcode.ErrNotDrawn) {
			t.Fatalf("expected ErrNotDrawn, got %v", err)
		}
	})

	result, err := f.engine.RunDraw(ctx, week)
	if err != nil {
		t.Fatalf("run draw: %v", err)
	}
	if result.WinnerID != "u1" && result.WinnerID != "u2" {
		t.Fatalf("unexpected winner %q", result.WinnerID)
	}
	if len(result.Code) != 8 {
		t.Fatalf("expected 8 character code, got %q", result.Code)
	}
	if want := f.clock.Now().Add(30 * time.Minute); !result.ExpiresAt.Equal(want) {
		t.Fatalf("expected expiry %s, got %s", want, result.ExpiresAt)
	}
	loser := "u2"
	if result.WinnerID == "u2" {
		loser = "u1"
	}

	t.Run("non-winner is rejected", func(t *testing.T) {
		_, err := f.engine.SubmitClaim(ctx, week, loser, result.Code, f.clock.Now())
		if !errors.Is(err, cashcode.ErrNotWinner) {
			t.Fatalf("expected ErrNotWinner, got %v", err)
		}
	})

	t.Run("wrong code leaves the draw pending", func(t *testing.T) {
		_, err := f.engine.SubmitClaim(ctx, week, result.WinnerID, "WRONG123", f.clock.Now())
		if !errors.Is(err, cashcode.ErrIncorrectCode) {
			t.Fatalf("expected ErrIncorrectCode, got %v", err)
		}
		draw, err := f.engine.GetDraw(ctx, week)
		if err != nil {
			t.Fatalf("get draw: %v", err)
		}
		if draw.Status != model.DrawPending {
			t.Fatalf("expected pending, got %s", draw.Status)
		}
	})

	t.Run("correct code wins", func(t *testing.T) {
		f.clock.Advance(10 * time.Minute)
		code := "  " + strings.ToLower(result.Code) + "\n"
		claim, err := f.engine.SubmitClaim(ctx, week, result.WinnerID, code, f.clock.Now())
		if err != nil {
			t.Fatalf("submit claim: %v", err)
		}
		if !claim.PrizeAmount.Equal(decimal.NewFromInt(10)) {
			t.Fatalf("expected prize 10, got %s", claim.PrizeAmount)
		}
		draw, _ := f.engine.GetDraw(ctx, week)
		if draw.Status != model.DrawWon || draw.ClaimedAt == nil {
			t.Fatalf("expected won with claimed_at, got %s %v", draw.Status, draw.ClaimedAt)
		}
		if got := f.store.Counter("wins:2026-10-16"); got != 1 {
			t.Fatalf("expected wins counter 1, got %d", got)
		}
	})

	t.Run("second claim is already claimed", func(t *testing.T) {
		_, err := f.engine.SubmitClaim(ctx, week, result.WinnerID, result.Code, f.clock.Now())
		if !errors.Is(err, cashcode.ErrAlreadyClaimed) {
			t.Fatalf("expected ErrAlreadyClaimed, got %v", err)
		}
	})

	t.Run("sweep ignores won draws", func(t *testing.T) {
		f.clock.Advance(time.Hour)
		weeks, err := f.engine.SweepExpired(ctx, f.clock.Now())
		if err != nil {
			t.Fatalf("sweep: %v", err)
		}
		if len(weeks) != 0 {
			t.Fatalf("expected no transitions, got %v", weeks)
		}
	})
}

func TestSweepCreatesOneGhost(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testConfig, 2)
	const week = "2026-W02"
	f.openWithTickets(t, week, "u1")

	result, err := f.engine.RunDraw(ctx, week)
	if err != nil {
		t.Fatalf("run draw: %v", err)
	}

	// Exactly at expiry the window is still open
	weeks, err := f.engine.SweepExpired(ctx, result.ExpiresAt)
	if err != nil || len(weeks) != 0 {
		t.Fatalf("expected nothing at expiry, got %v, %v", weeks, err)
	}

	late := result.ExpiresAt.Add(time.Second)
	weeks, err = f.engine.SweepExpired(ctx, late)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(weeks) != 1 || weeks[0] != week {
		t.Fatalf("expected [%s], got %v", week, weeks)
	}

	_, err = f.engine.SubmitClaim(ctx, week, "u1", result.Code, late)
	if !errors.Is(err, cashcode.ErrClaimWindowExpired) {
		t.Fatalf("expected ErrClaimWindowExpired, got %v", err)
	}

	weeks, err = f.engine.SweepExpired(ctx, late.Add(time.Hour))
	if err != nil || len(weeks) != 0 {
		t.Fatalf("expected second sweep to be a no-op, got %v, %v", weeks, err)
	}

	ghosts, err := f.engine.GhostWinners(ctx, 10)
	if err != nil {
		t.Fatalf("ghost winners: %v", err)
	}
	if len(ghosts) != 1 {
		t.Fatalf("expected 1 ghost, got %d", len(ghosts))
	}
	if ghosts[0].UserID != "u1" || !ghosts[0].PrizeAmount.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("unexpected ghost %+v", ghosts[0])
	}
}

func TestLateClaimsCreateOneGhost(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testConfig, 3)
	const week = "2026-W03"
	f.openWithTickets(t, week, "u1", "u1")

	result, err := f.engine.RunDraw(ctx, week)
	if err != nil {
		t.Fatalf("run draw: %v", err)
	}
	late := result.ExpiresAt.Add(time.Minute)
	ghostsBefore := ghostMetric(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.SubmitClaim(ctx, week, "u1", result.Code, late)
			if !errors.Is(err, cashcode.ErrClaimWindowExpired) {
				t.Errorf("expected ErrClaimWindowExpired, got %v", err)
			}
		}()
	}
	wg.Wait()

	ghosts, _ := f.engine.GhostWinners(ctx, 0)
	if len(ghosts) != 1 {
		t.Fatalf("expected exactly 1 ghost, got %d", len(ghosts))
	}
	if got := ghostMetric(t) - ghostsBefore; got != 1 {
		t.Fatalf("expected the ghost metric to grow by 1, got %v", got)
	}
	draw, _ := f.engine.GetDraw(ctx, week)
	if draw.Status != model.DrawMissed {
		t.Fatalf("expected missed, got %s", draw.Status)
	}
}

func ghostMetric(t *testing.T) float64 {
	t.Helper()
	var m dto.Metric
	if err := metrics.GhostWinnersTotal.Write(&m); err != nil {
		t.Fatalf("read ghost metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestConcurrentClaimsHaveOneWinner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testConfig, 4)
	const week = "2026-W04"
	f.openWithTickets(t, week, "u1")

	result, err := f.engine.RunDraw(ctx, week)
	if err != nil {
		t.Fatalf("run draw: %v", err)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		already   int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.SubmitClaim(ctx, week, "u1", result.Code, f.clock.Now())
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, cashcode.ErrAlreadyClaimed):
				already++
			default:
				t.Errorf("unexpected error %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 || already != 49 {
		t.Fatalf("expected 1 success and 49 already claimed, got %d and %d", successes, already)
	}
}

func TestRunDrawOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testConfig, 5)
	const week = "2026-W05"
	f.openWithTickets(t, week, "u1", "u2", "u3")

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []*cashcode.DrawResult
		drawn   int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.engine.RunDraw(ctx, week)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				results = append(results, res)
			case errors.Is(err, cashcode.ErrAlreadyDrawn):
				drawn++
			default:
				t.Errorf("unexpected error %v", err)
			}
		}()
	}
	wg.Wait()

	if len(results) != 1 || drawn != 19 {
		t.Fatalf("expected 1 draw and 19 ErrAlreadyDrawn, got %d and %d", len(results), drawn)
	}

	draw, _ := f.engine.GetDraw(ctx, week)
	if !draw.IsWinner(results[0].WinnerID) || draw.Code != results[0].Code {
		t.Fatalf("stored draw does not match the successful result")
	}

	if _, err := f.engine.IssueTicket(ctx, week, "u4", model.SourcePurchase); !errors.Is(err, cashcode.ErrAlreadyDrawn) {
		t.Fatalf("expected ErrAlreadyDrawn when issuing after the draw, got %v", err)
	}
}

func TestRunDrawWithoutTickets(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testConfig, 6)
	const week = "2026-W06"
	f.openWithTickets(t, week)

	_, err := f.engine.RunDraw(ctx, week)
	if !errors.Is(err, cashcode.ErrNoEligibleTickets) {
		t.Fatalf("expected ErrNoEligibleTickets, got %v", err)
	}
	draw, _ := f.engine.GetDraw(ctx, week)
	if draw.Drawn() || draw.Code != "" || draw.ExpiresAt != nil {
		t.Fatalf("expected untouched draw, got %+v", draw)
	}

	_, err = f.engine.RunDraw(ctx, "2026-W07")
	if !errors.Is(err, cashcode.ErrAlreadyDrawn) {
		t.Fatalf("expected ErrAlreadyDrawn for unopened week, got %v", err)
	}
	if errors.Is(err, cashcode.ErrDrawNotFound) {
		t.Fatalf("unopened week must not surface as a missing draw: %v", err)
	}
	if _, err := f.engine.RunDraw(ctx, "next week"); !errors.Is(err, cashcode.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestNonCanonicalWeekKeysAreRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testConfig, 8)
	f.openWithTickets(t, "2026-W04", "u1")

	for _, key := range []string{"2026-W4x", "2026-W 4", "+026-W04"} {
		t.Run(key, func(t *testing.T) {
			if _, err := f.engine.OpenWeek(ctx, key, decimal.NewFromInt(10)); !errors.Is(err, cashcode.ErrInvalidArgument) {
				t.Fatalf("expected ErrInvalidArgument, got %v", err)
			}
			if _, err := f.engine.IssueTicket(ctx, key, "u2", model.SourcePurchase); !errors.Is(err, cashcode.ErrInvalidArgument) {
				t.Fatalf("expected ErrInvalidArgument for ticket, got %v", err)
			}
		})
	}
	if n := len(f.store.Tickets("2026-W04", model.TicketActive)); n != 1 {
		t.Fatalf("expected the week to keep a single ledger, got %d tickets", n)
	}
}

func TestDrawIsUniformOverTickets(t *testing.T) {
	ctx := context.Background()
	const trials = 3000
	wins := map[string]int{}

	f := newFixture(t, testConfig, 7)
	year, wk := 2000, 1
	for i := 0; i < trials; i++ {
		key := weekkey.Format(year, wk)
		f.openWithTickets(t, key, "u1", "u1", "u2")
		res, err := f.engine.RunDraw(ctx, key)
		if err != nil {
			t.Fatalf("run draw %s: %v", key, err)
		}
		wins[res.WinnerID]++

		wk++
		if wk > 52 {
			year, wk = year+1, 1
		}
	}

	got := float64(wins["u1"]) / trials
	p := 2.0 / 3
	tol := 5 * math.Sqrt(p*(1-p)/trials)
	if math.Abs(got-p) > tol {
		t.Fatalf("u1 won %.4f of draws, expected %.4f ± %.4f", got, p, tol)
	}
}

func TestRollover(t *testing.T) {
	ctx := context.Background()

	t.Run("carries a fraction and consumes everything", func(t *testing.T) {
		const trials = 200
		total := 0
		for i := 0; i < trials; i++ {
			f := newFixture(t, testConfig, uint64(100+i))
			users := make([]string, 100)
			for j := range users {
				users[j] = "u" + string(rune('a'+j%26))
			}
			f.openWithTickets(t, "2026-W10", users...)

			res, err := f.engine.RolloverWeek(ctx, "2026-W10", "2026-W11")
			if err != nil {
				t.Fatalf("rollover: %v", err)
			}
			if res.ConsumedCount != 100 {
				t.Fatalf("expected 100 consumed, got %d", res.ConsumedCount)
			}
			if left := f.store.Tickets("2026-W10", model.TicketActive); len(left) != 0 {
				t.Fatalf("expected no active tickets in previous week, got %d", len(left))
			}
			if used := f.store.Tickets("2026-W10", model.TicketUsed); len(used) != 100 {
				t.Fatalf("expected 100 used tickets, got %d", len(used))
			}
			next := f.store.Tickets("2026-W11", model.TicketActive)
			if len(next) != res.CarriedTicketCount {
				t.Fatalf("carried count %d does not match ledger %d", res.CarriedTicketCount, len(next))
			}
			for _, tk := range next {
				if tk.Source != model.SourceRollover {
					t.Fatalf("expected rollover source, got %s", tk.Source)
				}
			}
			total += res.CarriedTicketCount
		}

		mean := float64(total) / trials
		// standard error of the mean is sqrt(100*0.2*0.8/200) ≈ 0.28
		if math.Abs(mean-20) > 1.5 {
			t.Fatalf("mean carried %.2f, expected about 20", mean)
		}
	})

	t.Run("runs once per week", func(t *testing.T) {
		f := newFixture(t, testConfig, 9)
		f.openWithTickets(t, "2026-W12", "u1")
		if _, err := f.engine.RolloverWeek(ctx, "2026-W12", "2026-W13"); err != nil {
			t.Fatalf("rollover: %v", err)
		}
		_, err := f.engine.RolloverWeek(ctx, "2026-W12", "2026-W13")
		if !errors.Is(err, cashcode.ErrAlreadyRolledOver) {
			t.Fatalf("expected ErrAlreadyRolledOver, got %v", err)
		}
		if _, err := f.engine.OpenWeek(ctx, "2026-W13", decimal.Zero); !errors.Is(err, cashcode.ErrAlreadyRolledOver) {
			t.Fatalf("expected ErrAlreadyRolledOver from open week, got %v", err)
		}
	})

	t.Run("new draw is pending without winner", func(t *testing.T) {
		f := newFixture(t, testConfig, 10)
		f.openWithTickets(t, "2026-W14", "u1")
		res, err := f.engine.RolloverWeek(ctx, "2026-W14", "2026-W15")
		if err != nil {
			t.Fatalf("rollover: %v", err)
		}
		if res.Draw.Status != model.DrawPending || res.Draw.Drawn() || res.Draw.ExpiresAt != nil {
			t.Fatalf("unexpected new draw %+v", res.Draw)
		}
	})

	t.Run("unclaimed prize is carried", func(t *testing.T) {
		f := newFixture(t, testConfig, 11)
		f.openWithTickets(t, "2026-W16", "u1")
		res, err := f.engine.RunDraw(ctx, "2026-W16")
		if err != nil {
			t.Fatalf("run draw: %v", err)
		}
		if _, err := f.engine.SweepExpired(ctx, res.ExpiresAt.Add(time.Second)); err != nil {
			t.Fatalf("sweep: %v", err)
		}
		roll, err := f.engine.RolloverWeek(ctx, "2026-W16", "2026-W17")
		if err != nil {
			t.Fatalf("rollover: %v", err)
		}
		if !roll.Draw.PrizeAmount.Equal(decimal.NewFromInt(20)) {
			t.Fatalf("expected prize 20, got %s", roll.Draw.PrizeAmount)
		}
	})

	t.Run("claimed prize is not carried", func(t *testing.T) {
		f := newFixture(t, testConfig, 12)
		f.openWithTickets(t, "2026-W18", "u1")
		res, err := f.engine.RunDraw(ctx, "2026-W18")
		if err != nil {
			t.Fatalf("run draw: %v", err)
		}
		if _, err := f.engine.SubmitClaim(ctx, "2026-W18", "u1", res.Code, f.clock.Now()); err != nil {
			t.Fatalf("claim: %v", err)
		}
		roll, err := f.engine.RolloverWeek(ctx, "2026-W18", "2026-W19")
		if err != nil {
			t.Fatalf("rollover: %v", err)
		}
		if !roll.Draw.PrizeAmount.Equal(decimal.NewFromInt(10)) {
			t.Fatalf("expected base prize 10, got %s", roll.Draw.PrizeAmount)
		}
	})
}

func TestClaimAttemptLimit(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig
	cfg.MaxClaimAttempts = 3
	f := newFixture(t, cfg, 13)
	const week = "2026-W20"
	f.openWithTickets(t, week, "u1")

	res, err := f.engine.RunDraw(ctx, week)
	if err != nil {
		t.Fatalf("run draw: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := f.engine.SubmitClaim(ctx, week, "u1", "BADCODE1", f.clock.Now()); !errors.Is(err, cashcode.ErrIncorrectCode) {
			t.Fatalf("attempt %d: expected ErrIncorrectCode, got %v", i, err)
		}
	}
	if _, err := f.engine.SubmitClaim(ctx, week, "u1", res.Code, f.clock.Now()); !errors.Is(err, cashcode.ErrTooManyAttempts) {
		t.Fatalf("expected ErrTooManyAttempts, got %v", err)
	}
}

type failingStore struct {
	*memstore.Store
}

func (failingStore) GetDraw(context.Context, string) (*model.Draw, error) {
	return nil, errors.New("dial tcp: connection refused")
}

func TestStorageFaultsAreWrapped(t *testing.T) {
	engine, err := cashcode.NewEngine(failingStore{memstore.New()}, random.NewSeeded(1), testConfig)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	_, err = engine.RunDraw(context.Background(), "2026-W21")
	if !errors.Is(err, cashcode.ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
	if cashcode.IsDomainError(err) {
		t.Fatalf("storage fault must not be a domain error: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	bad := []cashcode.Config{
		{ClaimWindow: 0, CarryProbability: 0.2},
		{ClaimWindow: time.Minute, CarryProbability: 1.5},
		{ClaimWindow: time.Minute, BasePrize: decimal.NewFromInt(-1)},
		{ClaimWindow: time.Minute, CodeLength: 4},
		{ClaimWindow: time.Minute, MaxClaimAttempts: -1},
	}
	for i, cfg := range bad {
		if err := cfg.Validate(); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
	if err := testConfig.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}
