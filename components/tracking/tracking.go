// components/tracking/tracking.go
//
// Tracking component – anonymous open pixel and tracker rewrite API.
//
// Context
// -------
// Two endpoints sit on the public router:
//
//	GET  /mailing/anonymous-open?mid=<id>   pixel referenced by rewritten mail
//	POST /api/rewrite                       HTML in, rewritten HTML out
//
// The rewrite endpoint is meant for the mailer, not the public; set
// tracking.api_token to require "Authorization: Bearer <token>".
//
// The pixel handler always answers with a 1x1 GIF.  A mail client cannot do
// anything useful with an error page, so the outcome travels in the
// X-Anonymous-Open header and the anonymous_open_requests_total counter.
//
// Settings are fetched from the Provider on every request and passed into
// the tracker; nothing here caches them.
package tracking

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/yanizio/mailingtools/internal/anonopen"
	"github.com/yanizio/mailingtools/internal/component"
	"github.com/yanizio/mailingtools/internal/metrics"
	"github.com/yanizio/mailingtools/internal/middleware"
	"github.com/yanizio/mailingtools/internal/requestinfo"
	"github.com/yanizio/mailingtools/internal/settings"
	"github.com/yanizio/mailingtools/internal/ua"
)

// HeaderOutcome reports what the pixel hit did.
const HeaderOutcome = "X-Anonymous-Open"

const defaultMaxBody = 4 << 20

// 1x1 transparent GIF.
var pixelGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00,
	0x80, 0x00, 0x00, 0xff, 0xff, 0xff, 0x00, 0x00, 0x00, 0x2c,
	0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x02,
	0x02, 0x44, 0x01, 0x00, 0x3b,
}

// compile-time assertion
var _ component.Component = (*Comp)(nil)

// Comp implements component.Component.
type Comp struct {
	tracker  *anonopen.Tracker
	settings settings.Provider
	opts     component.TrackingOptions
	log      *zap.SugaredLogger
}

func (c *Comp) Name() string { return "tracking" }

func (c *Comp) Init(d component.Deps) error {
	if d.Tracker == nil || d.Settings == nil {
		return errors.New("tracking: tracker and settings provider are required")
	}
	c.tracker = d.Tracker
	c.settings = d.Settings
	c.opts = d.Tracking
	if c.opts.MaxBodyBytes <= 0 {
		c.opts.MaxBodyBytes = defaultMaxBody
	}
	c.log = d.Log
	if c.log == nil {
		c.log = zap.S()
	}
	return nil
}

func (c *Comp) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/mailing/anonymous-open", c.open)
	r.With(middleware.RequireToken(c.opts.APIToken)).Post("/api/rewrite", c.rewrite)
	return r
}

/*──────────────────────────── pixel ────────────────────────────────────────*/

func (c *Comp) open(w http.ResponseWriter, r *http.Request) {
	outcome := c.recordOpen(r)
	metrics.AnonymousOpens.WithLabelValues(outcome).Inc()

	w.Header().Set(HeaderOutcome, outcome)
	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	_, _ = w.Write(pixelGIF)
}

func (c *Comp) recordOpen(r *http.Request) string {
	ctx := r.Context()

	if c.opts.IgnoreBots && isBot(r) {
		return metrics.OutcomeSkipped
	}

	s, err := c.settings.Current(ctx)
	if err != nil {
		c.fail(r, "settings", err, 0)
		return metrics.OutcomeFailed
	}

	// Junk ids fall through as 0 and are rejected by the tracker.
	mid, _ := strconv.ParseInt(r.URL.Query().Get("mid"), 10, 64)

	_, recorded, err := c.tracker.RecordAnonymousOpen(ctx, s, mid)
	switch {
	case err != nil:
		c.fail(r, errorKind(err), err, mid)
		return metrics.OutcomeFailed
	case !recorded:
		return metrics.OutcomeDisabled
	default:
		return metrics.OutcomeRecorded
	}
}

func (c *Comp) fail(r *http.Request, kind string, err error, mid int64) {
	metrics.AnonymousOpenErrors.WithLabelValues(kind).Inc()
	c.log.Warnw("anonymous open failed",
		"kind", kind,
		"mailing_id", mid,
		"request_id", requestID(r),
		"error", err,
	)
}

/*──────────────────────────── rewrite ──────────────────────────────────────*/

func (c *Comp) rewrite(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, c.opts.MaxBodyBytes))
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			http.Error(w, "body too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "cannot read body", http.StatusBadRequest)
		return
	}

	s, err := c.settings.Current(r.Context())
	if err != nil {
		metrics.RewriteErrorsTotal.Inc()
		c.log.Errorw("settings unavailable", "request_id", requestID(r), "error", err)
		http.Error(w, "settings unavailable", http.StatusBadGateway)
		return
	}

	out, err := c.tracker.RewriteTrackingLinks(r.Context(), s, string(body))
	if err != nil {
		metrics.RewriteErrorsTotal.Inc()
		c.log.Errorw("rewrite failed", "request_id", requestID(r), "error", err)
		http.Error(w, "data store unavailable", http.StatusBadGateway)
		return
	}
	metrics.TrackersRewritten.Inc()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, out)
}

/*──────────────────────────── helpers ──────────────────────────────────────*/

func isBot(r *http.Request) bool {
	if ri := requestinfo.FromContext(r.Context()); ri != nil {
		return ri.UA.IsBot
	}
	return ua.Parse(r.UserAgent()).IsBot
}

func requestID(r *http.Request) string {
	if ri := requestinfo.FromContext(r.Context()); ri != nil {
		return ri.ID
	}
	return ""
}

func errorKind(err error) string {
	var dse *anonopen.DataStoreError
	switch {
	case errors.Is(err, anonopen.ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, anonopen.ErrNotFound):
		return "not_found"
	case errors.As(err, &dse):
		return "data_store"
	default:
		return "other"
	}
}

func init() {
	component.Register(&Comp{})
}
