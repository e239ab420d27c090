package config

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/shopspring/decimal"

	"github.com/kkkkikiki/cashcode/internal/cashcode"
	"github.com/kkkkikiki/cashcode/internal/weekkey"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `env:",prefix=SERVER_"`

	// Database configuration
	Database DatabaseConfig `env:",prefix=DB_"`

	// Application configuration
	App AppConfig `env:",prefix=APP_"`

	// Weekly cash code policy
	CashCode CashCodeConfig `env:",prefix=CASHCODE_"`

	// Background scheduler
	Scheduler SchedulerConfig `env:",prefix=SCHEDULER_"`

	// Telegram notifications
	Telegram TelegramConfig `env:",prefix=TELEGRAM_"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port         string `env:"PORT,default=8080"`
	Host         string `env:"HOST,default=0.0.0.0"`
	ReadTimeout  int    `env:"READ_TIMEOUT,default=30"`  // seconds
	WriteTimeout int    `env:"WRITE_TIMEOUT,default=30"` // seconds

	// Per-user claim request rate; 0 disables throttling
	ClaimRPS   float64 `env:"CLAIM_RPS,default=0"`
	ClaimBurst int     `env:"CLAIM_BURST,default=5"`
}

// DatabaseConfig holds storage configuration. Driver is postgres, libsql or memory.
type DatabaseConfig struct {
	Driver   string `env:"DRIVER,default=postgres"`
	Host     string `env:"HOST,default=localhost"`
	Port     string `env:"PORT,default=5432"`
	User     string `env:"USER,default=postgres"`
	Password string `env:"PASSWORD,default=postgres"`
	Name     string `env:"NAME,default=cashcode"`
	SSLMode  string `env:"SSL_MODE,default=disable"`
	MaxConns int    `env:"MAX_CONNS,default=25"`
	MinConns int    `env:"MIN_CONNS,default=5"`

	// libsql (Turso) connection
	URL       string `env:"URL"`
	AuthToken string `env:"AUTH_TOKEN"`
}

// AppConfig holds application-specific configuration
type AppConfig struct {
	Environment string `env:"ENVIRONMENT,default=development"`
	LogFile     string `env:"LOG_FILE"`
	Debug       bool   `env:"DEBUG,default=false"`
}

// CashCodeConfig holds the weekly draw policy
type CashCodeConfig struct {
	AnchorWeekday    string `env:"ANCHOR_WEEKDAY,default=monday"`
	AnchorHour       int    `env:"ANCHOR_HOUR,default=15"`
	AnchorMinute     int    `env:"ANCHOR_MINUTE,default=14"`
	UTCOffsetMinutes int    `env:"UTC_OFFSET_MINUTES,default=0"`

	CodeLiveOffset time.Duration `env:"CODE_LIVE_OFFSET,default=0s"`
	DrawOffset     time.Duration `env:"DRAW_OFFSET,default=96h"`
	ClaimWindow    time.Duration `env:"CLAIM_WINDOW,default=31m"`

	CarryProbability float64         `env:"CARRY_PROBABILITY,default=0.2"`
	BasePrize        decimal.Decimal `env:"BASE_PRIZE,default=3.14"`
	CarryUnclaimed   bool            `env:"CARRY_UNCLAIMED,default=true"`
	CodeLength       int             `env:"CODE_LENGTH,default=8"`
	MaxClaimAttempts int64           `env:"MAX_CLAIM_ATTEMPTS,default=0"`
}

// SchedulerConfig holds the background tick configuration
type SchedulerConfig struct {
	Enabled  bool          `env:"ENABLED,default=false"`
	Interval time.Duration `env:"INTERVAL,default=1m"`
}

// TelegramConfig holds the notification bot configuration
type TelegramConfig struct {
	Token  string `env:"TOKEN"`
	ChatID int64  `env:"CHAT_ID,default=0"`
}

// Load loads configuration from environment variables
func Load(ctx context.Context) (*Config, error) {
	return LoadWith(ctx, envconfig.OsLookuper())
}

// LoadWith loads configuration from the given lookuper
func LoadWith(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values the tags can not express
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "libsql", "memory":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if _, err := c.CashCode.Resolver(); err != nil {
		return fmt.Errorf("invalid week schedule: %w", err)
	}
	if err := c.CashCode.Engine().Validate(); err != nil {
		return fmt.Errorf("invalid cash code policy: %w", err)
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler interval must be positive, got %s", c.Scheduler.Interval)
	}
	return nil
}

// DataSourceName returns the driver-specific connection string
func (c *DatabaseConfig) DataSourceName() (string, error) {
	switch c.Driver {
	case "postgres":
		return c.GetDatabaseURL(), nil
	case "libsql":
		if c.URL == "" {
			return "", fmt.Errorf("DB_URL is required for the libsql driver")
		}
		if c.AuthToken == "" {
			return c.URL, nil
		}
		u, err := url.Parse(c.URL)
		if err != nil {
			return "", fmt.Errorf("invalid DB_URL: %w", err)
		}
		q := u.Query()
		q.Set("authToken", c.AuthToken)
		u.RawQuery = q.Encode()
		return u.String(), nil
	default:
		return "", fmt.Errorf("driver %q has no data source", c.Driver)
	}
}

// GetDatabaseURL returns the PostgreSQL connection URL
func (c *DatabaseConfig) GetDatabaseURL() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// GetServerAddr returns the server address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// IsDevelopment returns true if running in development environment
func (c *AppConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production environment
func (c *AppConfig) IsProduction() bool {
	return c.Environment == "production"
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// Resolver builds the week resolver from the anchor and phase settings
func (c *CashCodeConfig) Resolver() (*weekkey.Resolver, error) {
	day, ok := weekdays[strings.ToLower(strings.TrimSpace(c.AnchorWeekday))]
	if !ok {
		return nil, fmt.Errorf("unknown anchor weekday %q", c.AnchorWeekday)
	}
	loc := time.UTC
	if c.UTCOffsetMinutes != 0 {
		loc = time.FixedZone(fmt.Sprintf("UTC%+03d:%02d", c.UTCOffsetMinutes/60, abs(c.UTCOffsetMinutes%60)), c.UTCOffsetMinutes*60)
	}
	return weekkey.NewResolver(
		weekkey.Anchor{Weekday: day, Hour: c.AnchorHour, Minute: c.AnchorMinute, Location: loc},
		weekkey.Phases{CodeLiveOffset: c.CodeLiveOffset, DrawOffset: c.DrawOffset, ClaimWindow: c.ClaimWindow},
	)
}

// Engine returns the lifecycle policy
func (c *CashCodeConfig) Engine() cashcode.Config {
	return cashcode.Config{
		ClaimWindow:         c.ClaimWindow,
		CarryProbability:    c.CarryProbability,
		BasePrize:           c.BasePrize,
		CarryUnclaimedPrize: c.CarryUnclaimed,
		CodeLength:          c.CodeLength,
		MaxClaimAttempts:    c.MaxClaimAttempts,
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
