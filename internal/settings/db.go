// internal/settings/db.go
//
// Table-backed settings provider.
//
// Schema reference
//
//	CREATE TABLE mailingtools_setting (
//	    name   VARCHAR(64) PRIMARY KEY,
//	    value  TEXT        NOT NULL
//	);
//
// Workflow
// --------
//  1. Current() returns the cached snapshot while it is younger than TTL.
//  2. On expiry one caller reloads (singleflight); concurrent callers wait
//     for that load instead of stampeding the table.
//  3. A failed reload is returned to the caller; the stale snapshot is
//     dropped so a broken table never keeps old switches alive.
package settings

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/yanizio/mailingtools/internal/anonopen"
	"github.com/yanizio/mailingtools/internal/metrics"
)

const snapshotKey = "settings"

// DB reads settings from a key/value table.
type DB struct {
	db    *sqlx.DB
	table string
	log   *zap.SugaredLogger
	cache *gocache.Cache
	sfg   singleflight.Group
}

// NewDB returns a provider over table with the given snapshot TTL.  A
// non-positive ttl reloads on every call.
func NewDB(db *sqlx.DB, table string, ttl time.Duration, log *zap.SugaredLogger) *DB {
	if log == nil {
		log = zap.S()
	}
	if ttl <= 0 {
		ttl = time.Nanosecond
	}
	return &DB{
		db:    db,
		table: table,
		log:   log,
		cache: gocache.New(ttl, 0),
	}
}

// Current implements Provider.
func (p *DB) Current(ctx context.Context) (anonopen.Settings, error) {
	if v, ok := p.cache.Get(snapshotKey); ok {
		return v.(anonopen.Settings), nil
	}

	v, err, _ := p.sfg.Do(snapshotKey, func() (any, error) {
		raw, err := p.load(ctx)
		if err != nil {
			metrics.SettingsReloadErrorsTotal.Inc()
			p.log.Errorw("settings reload failed", "table", p.table, "err", err)
			return nil, err
		}
		s := Parse(raw, p.log)
		p.cache.SetDefault(snapshotKey, s)
		metrics.SettingsReloadTotal.Inc()
		p.log.Debugw("settings reloaded",
			"enabled", s.Enabled,
			"contact_set", s.ContactID > 0,
			"url_set", s.URL != "",
		)
		return s, nil
	})
	if err != nil {
		p.cache.Delete(snapshotKey)
		return anonopen.Settings{}, err
	}
	return v.(anonopen.Settings), nil
}

// Invalidate drops the cached snapshot.
func (p *DB) Invalidate() { p.cache.Delete(snapshotKey) }

func (p *DB) load(ctx context.Context) (map[string]string, error) {
	q := `SELECT name, value FROM ` + p.table + ` WHERE name IN (?, ?, ?)`

	rows := make([]struct {
		Name  string `db:"name"`
		Value string `db:"value"`
	}, 0, 3)
	if err := p.db.SelectContext(ctx, &rows, q, KeyEnabled, KeyContactID, KeyURL); err != nil {
		return nil, err
	}

	raw := make(map[string]string, len(rows))
	for _, r := range rows {
		raw[r.Name] = r.Value
	}
	return raw, nil
}
