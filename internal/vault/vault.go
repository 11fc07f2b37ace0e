// internal/vault/vault.go
//
// Vault client wrapper for mailingtools.
//
// Context
// -------
//   - Configuration values may name a secret instead of holding it:
//
//     vault:<mount>/<path>#<key>     e.g. vault:secret/mailingtools#db_password
//
//   - Resolve() reads such a reference from a KV-v2 engine.  Results are
//     cached per reference for the process lifetime; secrets are read once
//     during boot.
//
// Environment expectations
// ------------------------
// • VAULT_ADDR   – scheme and host of the Vault server.
// • VAULT_TOKEN  – token (falls back to ~/.vault-token via the SDK).
package vault

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	vault "github.com/hashicorp/vault/api"
)

// Prefix marks a configuration value as a Vault reference.
const Prefix = "vault:"

// ErrBadRef is returned for references that do not parse.
var ErrBadRef = errors.New("malformed vault reference")

//
// SECTION 1.  Public façade
//

// Client is safe for concurrent use.  Zero value is invalid.
type Client struct {
	api *vault.Client

	cacheMu sync.RWMutex
	cache   map[string]string // ref → value
}

// New constructs a Vault client from the standard environment.
func New(_ context.Context) (*Client, error) {
	cfg := vault.DefaultConfig()
	if err := cfg.ReadEnvironment(); err != nil {
		return nil, fmt.Errorf("vault env cfg: %w", err)
	}

	apiCli, err := vault.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("vault api: %w", err)
	}
	if tok := os.Getenv("VAULT_TOKEN"); tok != "" {
		apiCli.SetToken(tok)
	}

	return &Client{api: apiCli, cache: make(map[string]string)}, nil
}

// IsRef reports whether s is a Vault reference.
func IsRef(s string) bool { return strings.HasPrefix(s, Prefix) }

// Resolve returns the secret named by ref.
func (c *Client) Resolve(ctx context.Context, ref string) (string, error) {
	c.cacheMu.RLock()
	if v, ok := c.cache[ref]; ok {
		c.cacheMu.RUnlock()
		return v, nil
	}
	c.cacheMu.RUnlock()

	mount, rel, key, err := ParseRef(ref)
	if err != nil {
		return "", err
	}

	sec, err := c.api.KVv2(mount).Get(ctx, rel)
	if err != nil {
		return "", fmt.Errorf("vault get %s/%s: %w", mount, rel, err)
	}

	raw, ok := sec.Data[key]
	if !ok {
		return "", fmt.Errorf("key %q not found in secret %s/%s", key, mount, rel)
	}
	val, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("value at %s/%s#%s is not a string", mount, rel, key)
	}

	c.cacheMu.Lock()
	c.cache[ref] = val
	c.cacheMu.Unlock()
	return val, nil
}

//
// SECTION 2.  Helpers
//

// ParseRef splits "vault:mount/path#key".
func ParseRef(ref string) (mount, rel, key string, err error) {
	if !IsRef(ref) {
		return "", "", "", fmt.Errorf("%w: %q", ErrBadRef, ref)
	}
	body := strings.TrimPrefix(ref, Prefix)

	path, key, found := strings.Cut(body, "#")
	if !found || key == "" {
		return "", "", "", fmt.Errorf("%w: missing #key in %q", ErrBadRef, ref)
	}

	mount, rel, found = strings.Cut(strings.Trim(path, "/"), "/")
	if !found || mount == "" || rel == "" {
		return "", "", "", fmt.Errorf("%w: want mount/path in %q", ErrBadRef, ref)
	}
	return mount, rel, key, nil
}
