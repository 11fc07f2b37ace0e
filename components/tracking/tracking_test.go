package tracking

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yanizio/mailingtools/internal/anonopen"
	"github.com/yanizio/mailingtools/internal/component"
	"github.com/yanizio/mailingtools/internal/mailing"
	"github.com/yanizio/mailingtools/internal/metrics"
	"github.com/yanizio/mailingtools/internal/settings"
)

const (
	baseURL  = "https://crm.example.org/"
	openPath = "sites/all/modules/civicrm/extern/open.php"
	anonURL  = "https://track.example.org/mailing/anonymous-open"

	queueByContact = `SELECT queue.id FROM civicrm_mailing_event_queue queue.+WHERE queue.contact_id = \? AND job.mailing_id = \?`
	insertOpen     = `INSERT INTO civicrm_mailing_event_opened \(event_queue_id, time_stamp\)`
	queueToMailing = `SELECT queue.id AS queue_id, job.mailing_id AS mailing_id.+WHERE queue.id IN \(\?\)`
)

var enabled = settings.Static{Enabled: true, ContactID: 2, URL: anonURL}

type brokenSettings struct{}

func (brokenSettings) Current(context.Context) (anonopen.Settings, error) {
	return anonopen.Settings{}, errors.New("settings table gone")
}

func newRouter(t *testing.T, p settings.Provider, opts component.TrackingOptions) (chi.Router, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tr := anonopen.New(mailing.NewStore(sqlx.NewDb(db, "mysql")), baseURL, openPath,
		anonopen.WithLogger(zap.NewNop().Sugar()))

	c := &Comp{}
	require.NoError(t, c.Init(component.Deps{
		Tracker:  tr,
		Settings: p,
		Tracking: opts,
		Log:      zap.NewNop().Sugar(),
	}))
	return c.Routes(), mock
}

func hit(r http.Handler, target, userAgent string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func assertPixel(t *testing.T, rec *httptest.ResponseRecorder, outcome string) {
	t.Helper()
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/gif", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache, no-store, must-revalidate", rec.Header().Get("Cache-Control"))
	assert.Equal(t, pixelGIF, rec.Body.Bytes())
	assert.Equal(t, outcome, rec.Header().Get(HeaderOutcome))
}

/*──────────────────────────── pixel ────────────────────────────────────────*/

func TestOpen_Recorded(t *testing.T) {
	r, mock := newRouter(t, enabled, component.TrackingOptions{})
	mock.ExpectQuery(queueByContact).
		WithArgs(int64(2), int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(101))
	mock.ExpectExec(insertOpen).
		WithArgs(int64(101), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	before := testutil.ToFloat64(metrics.AnonymousOpens.WithLabelValues(metrics.OutcomeRecorded))
	rec := hit(r, "/mailing/anonymous-open?mid=10", "")

	assertPixel(t, rec, metrics.OutcomeRecorded)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.AnonymousOpens.WithLabelValues(metrics.OutcomeRecorded)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpen_Disabled(t *testing.T) {
	r, mock := newRouter(t, settings.Static{}, component.TrackingOptions{})

	rec := hit(r, "/mailing/anonymous-open?mid=10", "")

	assertPixel(t, rec, metrics.OutcomeDisabled)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpen_BotSkipped(t *testing.T) {
	r, mock := newRouter(t, enabled, component.TrackingOptions{IgnoreBots: true})

	rec := hit(r, "/mailing/anonymous-open?mid=10",
		"Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)")

	assertPixel(t, rec, metrics.OutcomeSkipped)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpen_JunkMailingID(t *testing.T) {
	r, mock := newRouter(t, enabled, component.TrackingOptions{})

	before := testutil.ToFloat64(metrics.AnonymousOpenErrors.WithLabelValues("invalid_argument"))
	rec := hit(r, "/mailing/anonymous-open?mid=abc", "")

	assertPixel(t, rec, metrics.OutcomeFailed)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.AnonymousOpenErrors.WithLabelValues("invalid_argument")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpen_StoreFailure(t *testing.T) {
	r, mock := newRouter(t, enabled, component.TrackingOptions{})
	mock.ExpectQuery(queueByContact).WillReturnError(errors.New("connection reset"))

	before := testutil.ToFloat64(metrics.AnonymousOpenErrors.WithLabelValues("data_store"))
	rec := hit(r, "/mailing/anonymous-open?mid=10", "")

	assertPixel(t, rec, metrics.OutcomeFailed)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.AnonymousOpenErrors.WithLabelValues("data_store")))
}

func TestOpen_SettingsFailure(t *testing.T) {
	r, _ := newRouter(t, brokenSettings{}, component.TrackingOptions{})

	rec := hit(r, "/mailing/anonymous-open?mid=10", "")
	assertPixel(t, rec, metrics.OutcomeFailed)
}

/*──────────────────────────── rewrite ──────────────────────────────────────*/

func post(r http.Handler, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/rewrite", strings.NewReader(body)))
	return rec
}

func TestRewrite_ReplacesTracker(t *testing.T) {
	r, mock := newRouter(t, enabled, component.TrackingOptions{})
	mock.ExpectQuery(queueToMailing).
		WithArgs(int64(101)).
		WillReturnRows(sqlmock.NewRows([]string{"queue_id", "mailing_id"}).AddRow(101, 10))

	body := `<p>Hi</p><img src="` + baseURL + openPath + `?q=101&amp;x=1" width="1">`
	rec := post(r, body)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, `<p>Hi</p><img src="`+anonURL+`?mid=10&amp;x=1" width="1">`, rec.Body.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRewrite_Disabled(t *testing.T) {
	r, mock := newRouter(t, settings.Static{}, component.TrackingOptions{})

	body := `<img src="` + baseURL + openPath + `?q=101">`
	rec := post(r, body)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, body, rec.Body.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRewrite_StoreFailure(t *testing.T) {
	r, mock := newRouter(t, enabled, component.TrackingOptions{})
	mock.ExpectQuery(queueToMailing).WillReturnError(errors.New("too many connections"))

	before := testutil.ToFloat64(metrics.RewriteErrorsTotal)
	body := `<img src="` + baseURL + openPath + `?q=101">`
	rec := post(r, body)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.NotContains(t, rec.Body.String(), "q=101")
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.RewriteErrorsTotal))
}

func TestRewrite_BodyTooLarge(t *testing.T) {
	r, _ := newRouter(t, enabled, component.TrackingOptions{MaxBodyBytes: 16})

	rec := post(r, strings.Repeat("x", 64))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestInit_RequiresTracker(t *testing.T) {
	assert.Error(t, (&Comp{}).Init(component.Deps{Settings: enabled}))
}

func TestRewrite_RequiresToken(t *testing.T) {
	r, mock := newRouter(t, enabled, component.TrackingOptions{APIToken: "mailer-token"})

	rec := post(r, "<p>no trackers</p>")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/rewrite", strings.NewReader("<p>no trackers</p>"))
	req.Header.Set("Authorization", "Bearer mailer-token")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<p>no trackers</p>", rec.Body.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}
