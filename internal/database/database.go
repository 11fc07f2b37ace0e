// Package database centralises sqlx connection helpers for the CRM
// database.  The driver is go-sql-driver/mysql, which also covers MariaDB.
//
// Public entry point:
//
//	Open(ctx, dsn, password, opts) – pool with tuned sizes, pinged with
//	                                 exponential backoff before returning.
//
// Callers should Close() the returned *sqlx.DB when no longer needed.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// Options tunes the pool and the initial connect.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	Retries         int           // extra ping attempts after the first
	RetryBackoff    time.Duration // initial backoff interval
}

// DefaultOptions mirrors the config defaults.
var DefaultOptions = Options{
	MaxOpenConns:    15,
	MaxIdleConns:    5,
	ConnMaxLifetime: 30 * time.Minute,
	Retries:         2,
	RetryBackoff:    500 * time.Millisecond,
}

// Open returns a pinged *sqlx.DB.  A non-empty password replaces the one in
// dsn so secrets can live outside the DSN string.
func Open(ctx context.Context, dsn, password string, opts Options) (*sqlx.DB, error) {
	full, err := BuildDSN(dsn, password)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open("mysql", full)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)

	bo := backoff.NewExponentialBackOff()
	if opts.RetryBackoff > 0 {
		bo.InitialInterval = opts.RetryBackoff
	}
	retry := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(opts.Retries)), ctx)

	attempt := 0
	err = backoff.Retry(func() error {
		attempt++
		if err := db.PingContext(ctx); err != nil {
			zap.S().Warnw("database ping failed", "attempt", attempt, "err", err)
			return err
		}
		return nil
	}, retry)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database ping: %w", err)
	}
	return db, nil
}

// BuildDSN parses dsn, injects password when set, and forces parseTime so
// DATETIME columns scan into time.Time.
func BuildDSN(dsn, password string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse dsn: %w", err)
	}
	if password != "" {
		cfg.Passwd = password
	}
	cfg.ParseTime = true
	return cfg.FormatDSN(), nil
}
