// internal/config/loader.go
//
// Configuration loader.
//
/*
Context
--------
`Load()` builds one immutable `Config` struct from three layers (highest
precedence last):

  1. Optional `.env` file at `<root>/conf/.env`.
  2. `conf/mailingtools.yaml`.
  3. Environment variables prefixed `MAILINGTOOLS_`, where `__` maps to “.”
     (e.g., `MAILINGTOOLS_DATABASE__DSN → database.dsn`).

After merging, the tree is unmarshalled into typed structs, defaults are
applied, `vault:` references are resolved, the result is validated and
cached in an `atomic.Pointer` for lock-free reads.

Instrumentation
---------------
  • DEBUG spans – root discovery, YAML read.
  • ERROR spans – YAML parse, env overlay, unmarshal, secrets, validation.
  • INFO  span  – final “config loaded” with key highlights.
  • Logs use the global sugared logger (`zap.S()`); it is a no-op until
    the file logger is installed, which happens after config is known.
*/
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	koanf "github.com/knadh/koanf/v2"
	"go.uber.org/zap"

	"github.com/yanizio/mailingtools/internal/vault"
)

const (
	envPrefix = "MAILINGTOOLS_"
	confFile  = "mailingtools.yaml"
)

var current atomic.Pointer[Config]

/*──────────────────────────── root discovery ───────────────────────────────*/

// rootDir resolves MAILINGTOOLS_ROOT or climbs directories until
// conf/mailingtools.yaml is found.
func rootDir() string {
	if r := os.Getenv(envPrefix + "ROOT"); r != "" {
		return r
	}

	wd, _ := os.Getwd()
	dir := wd
	for {
		if _, err := os.Stat(filepath.Join(dir, "conf", confFile)); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir { // reached filesystem root
			break
		}
		dir = parent
	}

	exe, _ := os.Executable()
	if filepath.Base(filepath.Dir(exe)) == "bin" {
		return filepath.Dir(filepath.Dir(exe))
	}
	return wd
}

/*─────────────────────────────── loader ───────────────────────────────────*/

// Load reads .env, YAML, env overrides, resolves secrets, validates, and
// caches Config.
func Load(ctx context.Context) (*Config, error) {
	root := rootDir()
	zap.S().Debugw("config root resolved", "root", root)

	// .env (optional, no error if missing)
	_ = godotenv.Load(filepath.Join(root, "conf", ".env"))

	k := koanf.New(".")

	yamlPath := filepath.Join(root, "conf", confFile)
	if err := k.Load(file.Provider(yamlPath), yaml.Parser()); err != nil {
		zap.S().Errorw("config yaml load failed", "file", yamlPath, "err", err)
		return nil, err
	}
	zap.S().Debugw("config yaml loaded", "file", yamlPath)

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		zap.S().Errorw("config env overlay failed", "err", err)
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		zap.S().Errorw("config unmarshal failed", "err", err)
		return nil, err
	}
	cfg.applyDefaults()
	cfg.Paths.Root = root
	if !filepath.IsAbs(cfg.Log.Dir) {
		cfg.Log.Dir = filepath.Join(root, cfg.Log.Dir)
	}

	if err := resolveSecrets(ctx, &cfg, newVaultResolver); err != nil {
		zap.S().Errorw("config secret resolution failed", "err", err)
		return nil, err
	}

	if err := validateStruct(&cfg); err != nil {
		zap.S().Errorw("config validation failed", "err", err)
		return nil, err
	}

	current.Store(&cfg)
	zap.S().Infow("config loaded",
		"listen_addr", cfg.HTTP.ListenAddr,
		"settings_source", cfg.Settings.Source,
		"root", cfg.Paths.Root,
	)
	return &cfg, nil
}

// envKey maps MAILINGTOOLS_HTTP__LISTEN_ADDR → http.listen_addr.
func envKey(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	return strings.ToLower(strings.ReplaceAll(s, "__", "."))
}

/*──────────────────────────── secrets ─────────────────────────────────────*/

// resolver turns a vault reference into its secret value.
type resolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

func newVaultResolver(ctx context.Context) (resolver, error) {
	return vault.New(ctx)
}

// resolveSecrets swaps every `vault:` value for the secret it names.  The
// Vault client is only created when at least one reference exists.
func resolveSecrets(ctx context.Context, cfg *Config, mk func(context.Context) (resolver, error)) error {
	fields := map[string]*string{
		"database.dsn":       &cfg.Database.DSN,
		"database.password":  &cfg.Database.Password,
		"tracking.api_token": &cfg.Tracking.APIToken,
	}

	var r resolver
	for name, p := range fields {
		if !vault.IsRef(*p) {
			continue
		}
		if r == nil {
			var err error
			if r, err = mk(ctx); err != nil {
				return fmt.Errorf("vault client: %w", err)
			}
		}
		val, err := r.Resolve(ctx, *p)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*p = val
	}
	return nil
}

/*──────────────────────────── helpers ─────────────────────────────────────*/

func Get() *Config { return current.Load() }
