// components/health/health.go
//
// Health component – liveness and dependency probe.
//
// GET /healthz answers JSON:
//
//	{
//	  "status":   "ok" | "degraded",
//	  "database": "ok" | "<error>",
//	  "settings": {"enabled": true, "contact_configured": false, "url_set": true}
//	}
//
// The settings block says whether values are present, never what they are.
// A failed DB ping or settings read answers 503 so load balancers drain the
// instance.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/yanizio/mailingtools/internal/component"
	"github.com/yanizio/mailingtools/internal/settings"
)

const pingTimeout = 2 * time.Second

// compile-time assertion
var _ component.Component = (*Comp)(nil)

// Comp implements component.Component.
type Comp struct {
	db       component.Pinger
	settings settings.Provider
}

type settingsSummary struct {
	Enabled           bool `json:"enabled"`
	ContactConfigured bool `json:"contact_configured"`
	URLSet            bool `json:"url_set"`
}

type report struct {
	Status   string           `json:"status"`
	Database string           `json:"database"`
	Settings *settingsSummary `json:"settings,omitempty"`
	Error    string           `json:"settings_error,omitempty"`
}

func (c *Comp) Name() string { return "health" }

func (c *Comp) Init(d component.Deps) error {
	if d.DB == nil || d.Settings == nil {
		return errors.New("health: database and settings provider are required")
	}
	c.db = d.DB
	c.settings = d.Settings
	return nil
}

func (c *Comp) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/healthz", c.handler)
	return r
}

// handler writes a JSON blob with the probe results.
func (c *Comp) handler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
	defer cancel()

	out := report{Status: "ok", Database: "ok"}

	if err := c.db.Ping(ctx); err != nil {
		out.Status = "degraded"
		out.Database = err.Error()
	}

	if s, err := c.settings.Current(ctx); err != nil {
		out.Status = "degraded"
		out.Error = err.Error()
	} else {
		out.Settings = &settingsSummary{
			Enabled:           s.Enabled,
			ContactConfigured: s.ContactID > 0,
			URLSet:            s.URL != "",
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if out.Status != "ok" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
}

func init() {
	component.Register(&Comp{})
}
