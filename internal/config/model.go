// internal/config/model.go
//
// Typed configuration model for mailingtools.
//
// Context
// -------
// These structs define the shape of the configuration tree that
// `internal/config/loader.go` builds from three overlay layers:
//
//   • optional `.env`                                – dotenv values,
//   • `conf/mailingtools.yaml`                       – primary static file,
//   • `MAILINGTOOLS_`-prefixed environment overrides – highest precedence.
//
// Any string written as `vault:<mount>/<path>#<key>` is resolved through
// the Vault client *before* validation, so the model never hands Vault
// URIs to the rest of the program.
//
// Notes
// -----
//   • Struct tags use `koanf:"…"`, not `yaml:"…"`.
//   • Durations accept Go syntax ("30s", "5m").
//   • The `Paths` block is filled at runtime; YAML must not try to set it.
package config

import "time"

//
// HTTP section
//

// HTTP holds web-server tunables.
type HTTP struct {
	ListenAddr      string        `koanf:"listen_addr"      validate:"required,hostname_port"`
	ForceHTTPS      bool          `koanf:"force_https"`
	ReadTimeout     time.Duration `koanf:"read_timeout"     validate:"gte=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout"    validate:"gte=0"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"     validate:"gte=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gte=0"`
}

//
// Database section
//

// Database points at the CRM database.  The DSN stays in YAML so operators
// can tweak host or flags; the password normally comes from Vault.
type Database struct {
	DSN             string        `koanf:"dsn"               validate:"required"`
	Password        string        `koanf:"password"`
	MaxOpenConns    int           `koanf:"max_open_conns"    validate:"gte=0"`
	MaxIdleConns    int           `koanf:"max_idle_conns"    validate:"gte=0"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime" validate:"gte=0"`
	ConnectRetries  int           `koanf:"connect_retries"   validate:"gte=0"`
}

//
// Log section
//

// Log controls the zap logger.  Dir is relative to Paths.Root unless
// absolute.
type Log struct {
	Dir     string `koanf:"dir"`
	Level   string `koanf:"level"   validate:"oneof=debug info warn error"`
	Console bool   `koanf:"console"`
}

//
// Platform section
//

// Platform describes the CRM's native open tracker, i.e. the URL the CRM
// would otherwise embed: <base_url><open_path>?q=<queue>.
type Platform struct {
	BaseURL  string `koanf:"base_url"  validate:"required,url"`
	OpenPath string `koanf:"open_path" validate:"required"`
}

//
// Settings section
//

// Settings selects where the anonymous_open_* switches come from.  With
// source "config" the three values below are used as-is; with "database"
// they are read from Table and cached for TTL.
type Settings struct {
	Source    string        `koanf:"source"                    validate:"oneof=config database"`
	Table     string        `koanf:"table"                     validate:"required,sqlident"`
	TTL       time.Duration `koanf:"ttl"                       validate:"gte=0"`
	Enabled   bool          `koanf:"anonymous_open_enabled"`
	ContactID int64         `koanf:"anonymous_open_contact_id" validate:"gte=0"`
	URL       string        `koanf:"anonymous_open_url"        validate:"omitempty,url"`
}

//
// Tracking section
//

// Tracking tunes the HTTP surface.
type Tracking struct {
	IgnoreBots   bool   `koanf:"ignore_bots"`
	MaxBodyBytes int64  `koanf:"max_body_bytes" validate:"gte=0"`
	APIToken     string `koanf:"api_token"` // empty leaves /api/rewrite open
}

//
// Paths section (runtime only)
//

// Paths is resolved at runtime, never set in YAML or env.
type Paths struct {
	Root string // MAILINGTOOLS_ROOT or discovered parent
}

//
// Root aggregate
//

// Config is the immutable aggregate returned by Load() and cached in an
// atomic.Pointer for lock-free reads.
type Config struct {
	HTTP     HTTP     `koanf:"http"`
	Database Database `koanf:"database"`
	Log      Log      `koanf:"log"`
	Platform Platform `koanf:"platform"`
	Settings Settings `koanf:"settings"`
	Tracking Tracking `koanf:"tracking"`
	Paths    Paths    `koanf:"-"`
}

// applyDefaults fills zero values left by YAML and env.
func (c *Config) applyDefaults() {
	if c.HTTP.ListenAddr == "" {
		c.HTTP.ListenAddr = ":8080"
	}
	if c.HTTP.ReadTimeout == 0 {
		c.HTTP.ReadTimeout = 10 * time.Second
	}
	if c.HTTP.WriteTimeout == 0 {
		c.HTTP.WriteTimeout = 15 * time.Second
	}
	if c.HTTP.IdleTimeout == 0 {
		c.HTTP.IdleTimeout = 60 * time.Second
	}
	if c.HTTP.ShutdownTimeout == 0 {
		c.HTTP.ShutdownTimeout = 10 * time.Second
	}

	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 15
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = 30 * time.Minute
	}

	if c.Log.Dir == "" {
		c.Log.Dir = "logs"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	if c.Platform.OpenPath == "" {
		c.Platform.OpenPath = "sites/all/modules/civicrm/extern/open.php"
	}

	if c.Settings.Source == "" {
		c.Settings.Source = "config"
	}
	if c.Settings.Table == "" {
		c.Settings.Table = "mailingtools_setting"
	}
	if c.Settings.TTL == 0 {
		c.Settings.TTL = time.Minute
	}

	if c.Tracking.MaxBodyBytes == 0 {
		c.Tracking.MaxBodyBytes = 4 << 20
	}
}
