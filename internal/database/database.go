package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/logger"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/tursodatabase/libsql-client-go/libsql"

	"github.com/kkkkikiki/cashcode/internal/config"
)

// Supported drivers
const (
	DriverPostgres = "postgres"
	DriverLibSQL   = "libsql"
)

func init() {
	// libsql speaks the SQLite dialect with ? placeholders
	sqlx.BindDriver(DriverLibSQL, sqlx.QUESTION)
}

// DB holds database connections
type DB struct {
	SQL    *sqlx.DB
	Driver string
}

// NewDB creates new database connections using config
func NewDB(ctx context.Context, cfg *config.Config) (*DB, error) {
	driver := cfg.Database.Driver
	dsn, err := cfg.Database.DataSourceName()
	if err != nil {
		return nil, err
	}

	conn, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}

	// Configure connection pool
	conn.SetMaxOpenConns(cfg.Database.MaxConns)
	conn.SetMaxIdleConns(cfg.Database.MinConns)
	conn.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", driver, err)
	}

	logger.Infof("Successfully connected to %s database", driver)

	db := &DB{SQL: conn, Driver: driver}
	if err := db.Migrate(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Migrate creates the schema if it does not exist yet
func (db *DB) Migrate(ctx context.Context) error {
	for _, stmt := range Schema(db.Driver) {
		if _, err := db.SQL.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// Ping checks the connection
func (db *DB) Ping(ctx context.Context) error {
	return db.SQL.PingContext(ctx)
}

// Close closes all database connections
func (db *DB) Close() error {
	if err := db.SQL.Close(); err != nil {
		return fmt.Errorf("failed to close %s database: %w", db.Driver, err)
	}

	return nil
}

// Schema returns the DDL statements for driver. Both dialects accept the same
// constraints; only the timestamp and numeric column types differ.
func Schema(driver string) []string {
	ts, num := "TIMESTAMPTZ", "NUMERIC(20, 8)"
	if driver == DriverLibSQL {
		ts, num = "DATETIME", "TEXT"
	}

	return []string{
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS draws (
			week_key     TEXT PRIMARY KEY,
			code         TEXT UNIQUE,
			winner_id    TEXT,
			ticket_id    TEXT,
			status       TEXT NOT NULL DEFAULT 'pending'
			             CHECK (status IN ('pending', 'won', 'missed')),
			prize_amount %[2]s NOT NULL CHECK (prize_amount >= 0),
			drawn_at     %[1]s,
			expires_at   %[1]s,
			claimed_at   %[1]s,
			created_at   %[1]s NOT NULL,
			updated_at   %[1]s NOT NULL
		)`, ts, num),
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS tickets (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			week_key   TEXT NOT NULL,
			status     TEXT NOT NULL DEFAULT 'active'
			           CHECK (status IN ('active', 'used')),
			source     TEXT NOT NULL,
			created_at %[1]s NOT NULL
		)`, ts),
		`CREATE INDEX IF NOT EXISTS tickets_week_status_idx ON tickets (week_key, status)`,
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS ghost_winners (
			week_key     TEXT PRIMARY KEY,
			user_id      TEXT NOT NULL,
			prize_amount %[2]s NOT NULL,
			missed_at    %[1]s NOT NULL
		)`, ts, num),
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS counters (
			key        TEXT PRIMARY KEY,
			value      BIGINT NOT NULL,
			updated_at %[1]s NOT NULL
		)`, ts),
	}
}
