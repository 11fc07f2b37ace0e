// internal/anonopen/tracker.go
//
// Anonymous open tracking for mass mailings.
//
// Context
// -------
// When privacy settings forbid per-recipient open tracking, opens are still
// counted per mailing.  Each anonymous open is booked against one stand-in
// queue entry of the mailing, picked deterministically:
//
//  1. the queue entry of the configured preferred contact, if any;
//  2. otherwise the queue entry of the smallest contact ID in the mailing.
//
// Outgoing HTML is rewritten so native pixels (…/open.php?q=<queue>) point
// at the anonymous handler (<anonymous-url>?mid=<mailing>) instead.
//
// The Tracker holds no mutable state.  Settings are passed to every call,
// and all persistent state lives behind the Store.
package anonopen

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Settings are the host-owned switches read at call time.
type Settings struct {
	Enabled   bool   // anonymous_open_enabled
	ContactID int64  // anonymous_open_contact_id, 0 when unset
	URL       string // anonymous_open_url, empty when unset
}

// Store is the data access the Tracker needs.  Lookups that find no row
// return 0 and a nil error.
type Store interface {
	QueueIDForContact(ctx context.Context, mailingID, contactID int64) (int64, error)
	MinContactID(ctx context.Context, mailingID int64) (int64, error)
	InsertOpen(ctx context.Context, queueID int64, at time.Time) error
	MailingIDsForQueues(ctx context.Context, queueIDs []int64) (map[int64]int64, error)
}

// Tracker records anonymous opens and rewrites tracker URLs.
type Tracker struct {
	store   Store
	matcher Matcher
	log     *zap.SugaredLogger
	now     func() time.Time
}

// Option customises a Tracker.
type Option func(*Tracker)

// WithClock overrides the timestamp source for open events.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithLogger sets the logger; zap.S() is used otherwise.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(t *Tracker) { t.log = log }
}

// New returns a Tracker over store.  baseURL and openPath describe the
// CRM's native open tracker (see NewMatcher).
func New(store Store, baseURL, openPath string, opts ...Option) *Tracker {
	t := &Tracker{
		store:   store,
		matcher: NewMatcher(baseURL, openPath),
		now:     time.Now,
	}
	for _, o := range opts {
		o(t)
	}
	if t.log == nil {
		t.log = zap.S()
	}
	return t
}

// Matcher exposes the tracker URL matcher.
func (t *Tracker) Matcher() Matcher { return t.matcher }

// RecordAnonymousOpen books one open event for mailingID and returns the
// stand-in queue entry.  recorded is false, with a nil error, when the
// feature is disabled.  Every successful call inserts a new row.
func (t *Tracker) RecordAnonymousOpen(ctx context.Context, s Settings, mailingID int64) (queueID int64, recorded bool, err error) {
	if !s.Enabled {
		return 0, false, nil
	}
	if mailingID <= 0 {
		return 0, false, fmt.Errorf("%w: %d", ErrInvalidArgument, mailingID)
	}

	if s.ContactID > 0 {
		queueID, err = t.store.QueueIDForContact(ctx, mailingID, s.ContactID)
		if err != nil {
			return 0, false, storeErr("preferred contact lookup", err)
		}
	}

	if queueID == 0 {
		// Racy while the queue is still being populated; accepted.
		contactID, err := t.store.MinContactID(ctx, mailingID)
		if err != nil {
			return 0, false, storeErr("min contact lookup", err)
		}
		if contactID == 0 {
			return 0, false, fmt.Errorf("%w: no recipients queued for mailing %d", ErrNotFound, mailingID)
		}

		queueID, err = t.store.QueueIDForContact(ctx, mailingID, contactID)
		if err != nil {
			return 0, false, storeErr("fallback contact lookup", err)
		}
		if queueID == 0 {
			return 0, false, fmt.Errorf("%w: no queue entry resolved for mailing %d", ErrNotFound, mailingID)
		}
	}

	if err := t.store.InsertOpen(ctx, queueID, t.now()); err != nil {
		return 0, false, storeErr("insert open", err)
	}

	t.log.Infow("tracked anonymous open event",
		"mailing_id", mailingID,
		"queue_id", queueID,
	)
	return queueID, true, nil
}

// RewriteTrackingLinks points every native open tracker in body at the
// anonymous handler.  Trackers whose queue ID has no mailing stay as they
// are, and so does every byte outside the replaced URLs.  If the lookup
// fails the untouched body is returned along with the error.
func (t *Tracker) RewriteTrackingLinks(ctx context.Context, s Settings, body string) (string, error) {
	if !s.Enabled || s.URL == "" {
		return body, nil
	}

	matches := t.matcher.Find(body)
	if len(matches) == 0 {
		return body, nil
	}

	mailings, err := t.ResolveQueueToMailing(ctx, QueueIDs(matches))
	if err != nil {
		return body, err
	}
	if len(mailings) == 0 {
		return body, nil
	}

	var b strings.Builder
	b.Grow(len(body))
	last, replaced := 0, 0
	for _, m := range matches {
		mid, ok := mailings[m.QueueID]
		if !ok {
			continue
		}
		b.WriteString(body[last:m.Start])
		b.WriteString(s.URL)
		b.WriteString("?mid=")
		b.WriteString(strconv.FormatInt(mid, 10))
		last = m.End
		replaced++
	}
	b.WriteString(body[last:])

	t.log.Debugw("open trackers rewritten",
		"found", len(matches),
		"replaced", replaced,
	)
	return b.String(), nil
}

// ResolveQueueToMailing maps queue IDs to mailing IDs with one batch
// lookup.  Unknown queue IDs are absent from the result.  Empty input
// returns an empty map without touching the Store.
func (t *Tracker) ResolveQueueToMailing(ctx context.Context, queueIDs []int64) (map[int64]int64, error) {
	ids := distinct(queueIDs)
	if len(ids) == 0 {
		return map[int64]int64{}, nil
	}

	found, err := t.store.MailingIDsForQueues(ctx, ids)
	if err != nil {
		return nil, storeErr("queue to mailing lookup", err)
	}

	out := make(map[int64]int64, len(found))
	for _, id := range ids {
		if mid, ok := found[id]; ok {
			out[id] = mid
		}
	}
	return out, nil
}

func distinct(ids []int64) []int64 {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
