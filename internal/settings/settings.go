// internal/settings/settings.go
//
// Host setting providers for anonymous open tracking.
//
// Context
// -------
// The tracker never reads settings on its own; HTTP handlers ask a Provider
// for the current anonopen.Settings and pass the value into each call.
// Two providers exist:
//
//   - Static – values from conf/mailingtools.yaml (or env overrides).
//   - DB     – values from the CRM-side key/value table, refreshed on TTL.
//
// Keys
// ----
//
//	anonymous_open_enabled     "1", "true", "on", …  (anything else = off)
//	anonymous_open_contact_id  positive integer, empty = unset
//	anonymous_open_url         absolute URL, empty = unset
//
// Notes
// -----
// • Malformed values are logged and treated as unset, never fatal.
// • Oxford commas, two spaces after periods.
package settings

import (
	"context"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/yanizio/mailingtools/internal/anonopen"
)

// Setting keys shared by every provider.
const (
	KeyEnabled   = "anonymous_open_enabled"
	KeyContactID = "anonymous_open_contact_id"
	KeyURL       = "anonymous_open_url"
)

// Provider yields the settings in force right now.
type Provider interface {
	Current(ctx context.Context) (anonopen.Settings, error)
}

// Static always returns the same Settings.
type Static anonopen.Settings

// Current implements Provider.
func (s Static) Current(context.Context) (anonopen.Settings, error) {
	return anonopen.Settings(s), nil
}

var validate = validator.New()

// Parse converts raw key/value pairs into Settings.  Unknown keys are
// ignored.
func Parse(raw map[string]string, log *zap.SugaredLogger) anonopen.Settings {
	if log == nil {
		log = zap.S()
	}
	var s anonopen.Settings

	if v := strings.TrimSpace(raw[KeyEnabled]); v != "" {
		s.Enabled = parseBool(v)
	}

	if v := strings.TrimSpace(raw[KeyContactID]); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id < 0 {
			log.Warnw("ignoring malformed setting", "key", KeyContactID, "value", v)
		} else {
			s.ContactID = id
		}
	}

	if v := strings.TrimSpace(raw[KeyURL]); v != "" {
		if err := validate.Var(v, "url"); err != nil {
			log.Warnw("ignoring malformed setting", "key", KeyURL, "value", v, "err", err)
		} else {
			s.URL = v
		}
	}
	return s
}

// parseBool accepts the spellings CRM settings forms produce.
func parseBool(v string) bool {
	switch strings.ToLower(v) {
	case "on", "yes", "y":
		return true
	}
	b, err := strconv.ParseBool(v)
	return err == nil && b
}
