// internal/component/registry.go
//
// Component registry (cycle-free).
//
// Each concrete component lives under components/<name> and calls
// component.Register() in an init() function.  main.go blank-imports the
// components it wants, builds a Deps value, and calls Mount, which runs
// every Init() and copies every Routes() entry onto the root router.

package component

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/yanizio/mailingtools/internal/anonopen"
	"github.com/yanizio/mailingtools/internal/settings"
)

// Pinger reports whether the backing database answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// TrackingOptions carries the `tracking:` config section.
type TrackingOptions struct {
	IgnoreBots   bool
	MaxBodyBytes int64
	APIToken     string
}

// Deps exposes process-wide resources to Components during Init.
type Deps struct {
	Tracker  *anonopen.Tracker
	Settings settings.Provider
	DB       Pinger
	Tracking TrackingOptions
	Log      *zap.SugaredLogger
}

// Component contract.
//
// Routes() should mount every endpoint the component serves, e.g:
//
//	r := chi.NewRouter()
//	r.Get("/healthz", c.health)
//	return r
type Component interface {
	Name() string
	Init(Deps) error
	Routes() chi.Router
}

var (
	mu       sync.RWMutex
	registry = map[string]Component{}
)

// Register is invoked from component init() functions.
func Register(c Component) {
	mu.Lock()
	registry[c.Name()] = c
	mu.Unlock()
}

// All returns every registered component sorted by name.
func All() []Component {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Component, 0, len(registry))
	for _, c := range registry {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Mount initialises every registered component with d and registers its
// routes on r.  chi refuses two Mount calls on “/”, so routes are copied
// one by one with their middleware chain.  The first error aborts.
func Mount(r chi.Router, d Deps) error {
	for _, c := range All() {
		if err := c.Init(d); err != nil {
			return fmt.Errorf("component %s: %w", c.Name(), err)
		}
		err := chi.Walk(c.Routes(), func(method, route string, h http.Handler, mws ...func(http.Handler) http.Handler) error {
			r.Method(method, route, chi.Chain(mws...).Handler(h))
			return nil
		})
		if err != nil {
			return fmt.Errorf("component %s routes: %w", c.Name(), err)
		}
		if d.Log != nil {
			d.Log.Infow("component mounted", "component", c.Name())
		}
	}
	return nil
}
