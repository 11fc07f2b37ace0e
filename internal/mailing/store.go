// internal/mailing/store.go
//
// Query helpers over the CRM's mailing tables.
//
// Context
// -------
// The CRM owns the schema.  We read two tables and append to a third:
//
//	civicrm_mailing_event_queue  (id PK, job_id, contact_id, …)
//	civicrm_mailing_job          (id PK, mailing_id, …)
//	civicrm_mailing_event_opened (id PK, event_queue_id, time_stamp)
//
// Store implements anonopen.Store.  Every helper runs one parameterised
// statement; lookups that find nothing return 0 and a nil error so the
// caller decides what "missing" means.
//
// Notes
// -----
// • Errors are returned verbatim; the tracker wraps them.
// • Max line length 100 columns.
package mailing

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

// Store runs mailing queries against the CRM database.
type Store struct {
	db *sqlx.DB
}

// NewStore wraps a CRM connection pool.
func NewStore(db *sqlx.DB) *Store { return &Store{db: db} }

// QueueIDForContact returns the lowest queue entry of contactID within
// mailingID, or 0.
func (s *Store) QueueIDForContact(ctx context.Context, mailingID, contactID int64) (int64, error) {
	const q = `SELECT queue.id
                 FROM civicrm_mailing_event_queue queue
            LEFT JOIN civicrm_mailing_job job ON queue.job_id = job.id
                WHERE queue.contact_id = ?
                  AND job.mailing_id = ?
             ORDER BY queue.id
                LIMIT 1`

	var id int64
	err := s.db.GetContext(ctx, &id, q, contactID, mailingID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return id, nil
}

// MinContactID returns the smallest contact ID queued for mailingID, or 0.
func (s *Store) MinContactID(ctx context.Context, mailingID int64) (int64, error) {
	const q = `SELECT MIN(queue.contact_id)
                 FROM civicrm_mailing_event_queue queue
            LEFT JOIN civicrm_mailing_job job ON queue.job_id = job.id
                WHERE job.mailing_id = ?`

	var id sql.NullInt64 // MIN over zero rows is NULL
	if err := s.db.GetContext(ctx, &id, q, mailingID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return id.Int64, nil
}

// InsertOpen appends one open event for queueID.
func (s *Store) InsertOpen(ctx context.Context, queueID int64, at time.Time) error {
	const q = `INSERT INTO civicrm_mailing_event_opened (event_queue_id, time_stamp)
               VALUES (?, ?)`

	_, err := s.db.ExecContext(ctx, q, queueID, at)
	return err
}

// MailingIDsForQueues maps queue IDs to mailing IDs in one query.  Queue
// entries without a job (or with a NULL mailing) are left out.  Empty
// input returns an empty map without a round trip.
func (s *Store) MailingIDsForQueues(ctx context.Context, queueIDs []int64) (map[int64]int64, error) {
	out := make(map[int64]int64, len(queueIDs))
	if len(queueIDs) == 0 {
		return out, nil
	}

	q, args, err := sqlx.In(`SELECT queue.id AS queue_id, job.mailing_id AS mailing_id
                               FROM civicrm_mailing_event_queue queue
                          LEFT JOIN civicrm_mailing_job job ON queue.job_id = job.id
                              WHERE queue.id IN (?)`, queueIDs)
	if err != nil {
		return nil, err
	}

	rows := make([]struct {
		QueueID   int64         `db:"queue_id"`
		MailingID sql.NullInt64 `db:"mailing_id"`
	}, 0, len(queueIDs))
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(q), args...); err != nil {
		return nil, err
	}

	for _, r := range rows {
		if r.MailingID.Valid {
			out[r.QueueID] = r.MailingID.Int64
		}
	}
	return out, nil
}

// Ping checks the connection for health probes.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }
