package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/logger"
	"github.com/joho/godotenv"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	cashcodev1 "github.com/kkkkikiki/cashcode/internal/api/cashcodev1"
	"github.com/kkkkikiki/cashcode/internal/cashcode"
	"github.com/kkkkikiki/cashcode/internal/config"
	"github.com/kkkkikiki/cashcode/internal/database"
	"github.com/kkkkikiki/cashcode/internal/memstore"
	"github.com/kkkkikiki/cashcode/internal/notify"
	"github.com/kkkkikiki/cashcode/internal/random"
	"github.com/kkkkikiki/cashcode/internal/repository"
	"github.com/kkkkikiki/cashcode/internal/scheduler"
	"github.com/kkkkikiki/cashcode/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load() // Load .env file if exists

	// Load configuration from environment variables
	cfg, cfgErr := config.Load(ctx)

	logOut := io.Discard
	if cfgErr == nil && cfg.App.LogFile != "" {
		f, err := os.OpenFile(cfg.App.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open log file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		logOut = f
	}
	defer logger.Init("cashcode", true, false, logOut).Close()

	if cfgErr != nil {
		logger.Fatalf("Failed to load config: %v", cfgErr)
	}

	logger.Infof("Starting cash code service in %s mode", cfg.App.Environment)

	// Select storage backend
	var (
		store  cashcode.Store
		pinger func(context.Context) error
	)
	if cfg.Database.Driver == "memory" {
		if cfg.App.IsProduction() {
			logger.Warning("Using in-memory storage in production; state is lost on restart")
		}
		store = memstore.New()
		pinger = func(context.Context) error { return nil }
	} else {
		db, err := database.NewDB(ctx, cfg)
		if err != nil {
			logger.Fatalf("Failed to connect to database: %v", err)
		}
		defer func() {
			if err := db.Close(); err != nil {
				logger.Errorf("Error closing database connections: %v", err)
			}
		}()
		store = repository.NewStore(db.SQL)
		pinger = db.Ping
	}

	var opts []cashcode.Option
	if cfg.Telegram.Token != "" && cfg.Telegram.ChatID != 0 {
		tg, err := notify.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID)
		if err != nil {
			logger.Errorf("Telegram notifications disabled: %v", err)
		} else {
			defer tg.Close()
			opts = append(opts, cashcode.WithNotifier(tg))
		}
	}

	rnd, err := random.New()
	if err != nil {
		logger.Fatalf("Failed to seed random source: %v", err)
	}

	engine, err := cashcode.NewEngine(store, rnd, cfg.CashCode.Engine(), opts...)
	if err != nil {
		logger.Fatalf("Failed to create engine: %v", err)
	}
	resolver, err := cfg.CashCode.Resolver()
	if err != nil {
		logger.Fatalf("Failed to create week resolver: %v", err)
	}

	cashCodeService := service.NewCashCodeServer(engine, resolver,
		service.WithClaimLimiter(service.NewClaimLimiter(cfg.Server.ClaimRPS, cfg.Server.ClaimBurst)))

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if cfg.App.Debug {
		r.Use(middleware.Logger)
	}

	// Register cash code service handler
	path, handler := cashcodev1.NewCashCodeServiceHandler(cashCodeService)
	r.Mount(path, handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		hostname, _ := os.Hostname()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"ok","service":"cashcode","hostname":"%s"}`, hostname)
	})

	r.Get("/health/db", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := pinger(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"error","message":"database unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status":"ok","driver":"%s"}`, cfg.Database.Driver)
	})

	r.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:           cfg.Server.GetServerAddr(),
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1MB
		// Use h2c so we can serve HTTP/2 without TLS
		Handler: h2c.NewHandler(r, &http2.Server{
			MaxConcurrentStreams: 1000,
		}),
	}

	if cfg.Scheduler.Enabled {
		go scheduler.New(engine, resolver, nil, cfg.Scheduler.Interval).Run(ctx)
	}

	go func() {
		logger.Infof("Starting cash code service on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
		return
	}

	logger.Info("Server exited gracefully")
}
