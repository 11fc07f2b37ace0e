// cmd/tracker/main.go
//
// Mailingtools anonymous open tracker – HTTP entry point.
//
// Start-up sequence
// -----------------
//
//  1. Load env vars (jail-wide file → .env fallback).
//
//  2. Load config (YAML → env overrides → Vault refs → validation).
//
//  3. Start daily rotating logger (tees to console when running in a TTY
//     or when log.console is set).
//
//  4. Open the CRM database with retry and log the queued-recipient count.
//
//  5. Build the settings provider (static config or CRM table).
//
//  6. Build the tracker and mount every registered component.
//
//  7. Expose Prometheus /metrics.
//
//  8. Serve until SIGINT/SIGTERM, then drain with shutdown_timeout.
//
// Large comment blocks are framed by blank “//” lines; inline comments use
// a single “//”.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yanizio/mailingtools/internal/anonopen"
	"github.com/yanizio/mailingtools/internal/component"
	"github.com/yanizio/mailingtools/internal/config"
	"github.com/yanizio/mailingtools/internal/database"
	"github.com/yanizio/mailingtools/internal/logger"
	"github.com/yanizio/mailingtools/internal/mailing"
	"github.com/yanizio/mailingtools/internal/middleware"
	"github.com/yanizio/mailingtools/internal/requestinfo"
	"github.com/yanizio/mailingtools/internal/server"
	"github.com/yanizio/mailingtools/internal/settings"

	_ "github.com/yanizio/mailingtools/components/health"
	_ "github.com/yanizio/mailingtools/components/tracking"
)

const serverEnvPath = "/usr/local/etc/mailingtools/global.env"

// loadEnv prefers the jail-wide env file; on dev it falls back to .env.
func loadEnv() {
	if _, err := os.Stat(serverEnvPath); err == nil {
		_ = godotenv.Load(serverEnvPath)
		return
	}
	_ = godotenv.Load()
}

// runningInTTY returns true when stdout is a character device.
func runningInTTY() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func init() { loadEnv() }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	//
	// ── 1.  Config + logger ─────────────────────────────────────────────
	//
	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logOut, err := logger.New(cfg.Log.Dir, cfg.Log.Level, cfg.Log.Console || runningInTTY())
	if err != nil {
		log.Fatalf("start logger: %v", err)
	}
	defer func() { _ = logOut.Sync() }()

	//
	// ── 2.  CRM DB connect ──────────────────────────────────────────────
	//
	logOut.Infow("connecting to CRM database")
	db, err := database.Open(ctx, cfg.Database.DSN, cfg.Database.Password, database.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		Retries:         cfg.Database.ConnectRetries,
		RetryBackoff:    database.DefaultOptions.RetryBackoff,
	})
	if err != nil {
		logOut.Fatalw("connect CRM database", "err", err)
	}
	defer db.Close()

	// Queue size as an early sanity check.
	var queued int
	_ = db.GetContext(ctx, &queued, `SELECT COUNT(*) FROM civicrm_mailing_event_queue`)
	logOut.Infow("CRM database online", "queued_recipients", queued)

	store := mailing.NewStore(db)

	//
	// ── 3.  Settings provider ───────────────────────────────────────────
	//
	var provider settings.Provider
	switch cfg.Settings.Source {
	case "database":
		provider = settings.NewDB(db, cfg.Settings.Table, cfg.Settings.TTL, logOut)
	default:
		provider = settings.Static(anonopen.Settings{
			Enabled:   cfg.Settings.Enabled,
			ContactID: cfg.Settings.ContactID,
			URL:       cfg.Settings.URL,
		})
	}
	logOut.Infow("settings provider ready", "source", cfg.Settings.Source)

	//
	// ── 4.  Tracker + components ────────────────────────────────────────
	//
	tracker := anonopen.New(store, cfg.Platform.BaseURL, cfg.Platform.OpenPath,
		anonopen.WithLogger(logOut))

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(requestinfo.Enrich)
	r.Use(middleware.Security)

	err = component.Mount(r, component.Deps{
		Tracker:  tracker,
		Settings: provider,
		DB:       store,
		Tracking: component.TrackingOptions{
			IgnoreBots:   cfg.Tracking.IgnoreBots,
			MaxBodyBytes: cfg.Tracking.MaxBodyBytes,
			APIToken:     cfg.Tracking.APIToken,
		},
		Log: logOut,
	})
	if err != nil {
		logOut.Fatalw("mount components", "err", err)
	}

	//
	// ── 5.  Metrics endpoint ────────────────────────────────────────────
	//
	r.Handle("/metrics", promhttp.Handler())

	//
	// ── 6.  Serve with HTTPS enforcement and graceful shutdown ──────────
	//
	srv := server.New(cfg.HTTP.ListenAddr, middleware.ForceHTTPS(cfg.HTTP.ForceHTTPS, r), server.Timeouts{
		Read:  cfg.HTTP.ReadTimeout,
		Write: cfg.HTTP.WriteTimeout,
		Idle:  cfg.HTTP.IdleTimeout,
	})

	go func() {
		logOut.Infow("listening", "addr", cfg.HTTP.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logOut.Fatalw("http server", "err", err)
		}
	}()

	<-ctx.Done()
	logOut.Infow("shutting down", "timeout", cfg.HTTP.ShutdownTimeout)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logOut.Errorw("graceful shutdown", "err", err)
	}
}
