// Package metrics holds Prometheus instruments for the tracker.  All
// collectors are registered with the global registry, so importing this
// package in main.go is enough to expose them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for AnonymousOpens.
const (
	OutcomeRecorded = "recorded"
	OutcomeDisabled = "disabled"
	OutcomeSkipped  = "skipped"
	OutcomeFailed   = "failed"
)

var (
	AnonymousOpens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anonymous_open_requests_total",
			Help: "Anonymous open pixel hits by outcome.",
		}, []string{"outcome"})

	AnonymousOpenErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anonymous_open_errors_total",
			Help: "Anonymous open failures by error kind.",
		}, []string{"kind"})

	TrackersRewritten = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "open_trackers_rewritten_total",
			Help: "Email bodies passed through the open tracker rewriter.",
		})

	RewriteErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "open_tracker_rewrite_errors_total",
			Help: "Rewrites aborted by a data store failure.",
		})

	SettingsReloadTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "settings_reload_total",
			Help: "Successful reloads of the settings table.",
		})

	SettingsReloadErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "settings_reload_errors_total",
			Help: "Failed reloads of the settings table.",
		})
)

func init() {
	prometheus.MustRegister(
		AnonymousOpens,
		AnonymousOpenErrors,
		TrackersRewritten,
		RewriteErrorsTotal,
		SettingsReloadTotal,
		SettingsReloadErrorsTotal,
	)
}
