package config

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/shopspring/decimal"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadWith(context.Background(), envconfig.MapLookuper(map[string]string{}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.GetServerAddr() != "0.0.0.0:8080" {
		t.Errorf("unexpected server addr %s", cfg.Server.GetServerAddr())
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("expected postgres driver, got %s", cfg.Database.Driver)
	}
	if cfg.CashCode.ClaimWindow != 31*time.Minute {
		t.Errorf("expected 31m claim window, got %s", cfg.CashCode.ClaimWindow)
	}
	if cfg.CashCode.CarryProbability != 0.2 {
		t.Errorf("expected carry probability 0.2, got %v", cfg.CashCode.CarryProbability)
	}
	if !cfg.CashCode.BasePrize.Equal(decimal.RequireFromString("3.14")) {
		t.Errorf("expected base prize 3.14, got %s", cfg.CashCode.BasePrize)
	}
	if cfg.CashCode.MaxClaimAttempts != 0 {
		t.Errorf("expected unlimited claim attempts by default, got %d", cfg.CashCode.MaxClaimAttempts)
	}
	if !cfg.App.IsDevelopment() {
		t.Error("expected development environment")
	}

	r, err := cfg.CashCode.Resolver()
	if err != nil {
		t.Fatalf("resolver: %v", err)
	}
	w, err := r.PhaseWindowsFor("2026-W42")
	if err != nil {
		t.Fatalf("phase windows: %v", err)
	}
	want := time.Date(2026, time.October, 12, 15, 14, 0, 0, time.UTC)
	if !w.Start.Equal(want) {
		t.Errorf("expected week start %s, got %s", want, w.Start)
	}
	if !w.DrawAt.Equal(want.Add(96 * time.Hour)) {
		t.Errorf("expected draw on Friday, got %s", w.DrawAt)
	}
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := LoadWith(context.Background(), envconfig.MapLookuper(map[string]string{
		"DB_DRIVER":                   "libsql",
		"DB_URL":                      "libsql://cashcode.turso.io",
		"DB_AUTH_TOKEN":               "secret",
		"CASHCODE_ANCHOR_WEEKDAY":     "Sunday",
		"CASHCODE_UTC_OFFSET_MINUTES": "-330",
		"CASHCODE_CLAIM_WINDOW":       "45m",
		"CASHCODE_BASE_PRIZE":         "12.5",
		"CASHCODE_MAX_CLAIM_ATTEMPTS": "10",
		"SCHEDULER_ENABLED":           "true",
		"SCHEDULER_INTERVAL":          "30s",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	dsn, err := cfg.Database.DataSourceName()
	if err != nil {
		t.Fatalf("dsn: %v", err)
	}
	if dsn != "libsql://cashcode.turso.io?authToken=secret" {
		t.Errorf("unexpected dsn %s", dsn)
	}
	if !cfg.Scheduler.Enabled || cfg.Scheduler.Interval != 30*time.Second {
		t.Errorf("unexpected scheduler config %+v", cfg.Scheduler)
	}

	engine := cfg.CashCode.Engine()
	if engine.ClaimWindow != 45*time.Minute || engine.MaxClaimAttempts != 10 {
		t.Errorf("unexpected engine config %+v", engine)
	}
	if !engine.BasePrize.Equal(decimal.RequireFromString("12.5")) {
		t.Errorf("unexpected base prize %s", engine.BasePrize)
	}

	r, err := cfg.CashCode.Resolver()
	if err != nil {
		t.Fatalf("resolver: %v", err)
	}
	start, err := r.Start("2026-W42")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if start.Weekday() != time.Sunday {
		t.Errorf("expected Sunday anchor, got %s", start.Weekday())
	}
	if _, offset := start.Zone(); offset != -330*60 {
		t.Errorf("expected -05:30 offset, got %d", offset)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := map[string]map[string]string{
		"driver":      {"DB_DRIVER": "mysql"},
		"weekday":     {"CASHCODE_ANCHOR_WEEKDAY": "someday"},
		"probability": {"CASHCODE_CARRY_PROBABILITY": "1.2"},
		"prize":       {"CASHCODE_BASE_PRIZE": "-1"},
		"window":      {"CASHCODE_CLAIM_WINDOW": "0s"},
		"claim rps":   {"SERVER_CLAIM_RPS": "fast"},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadWith(context.Background(), envconfig.MapLookuper(env)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestDataSourceName(t *testing.T) {
	pg := DatabaseConfig{Driver: "postgres", Host: "db", Port: "5432", User: "u", Password: "p", Name: "n", SSLMode: "disable"}
	dsn, err := pg.DataSourceName()
	if err != nil {
		t.Fatalf("dsn: %v", err)
	}
	if !strings.Contains(dsn, "host=db") || !strings.Contains(dsn, "dbname=n") {
		t.Errorf("unexpected postgres dsn %s", dsn)
	}

	lite := DatabaseConfig{Driver: "libsql"}
	if _, err := lite.DataSourceName(); err == nil {
		t.Error("expected error without DB_URL")
	}

	mem := DatabaseConfig{Driver: "memory"}
	if _, err := mem.DataSourceName(); err == nil {
		t.Error("expected error for memory driver")
	}
}
