// internal/mailing/store_test.go
//
// Unit-tests for mailing.Store using sqlmock.
//
// Run: go test ./internal/mailing -v

package mailing

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yanizio/mailingtools/internal/anonopen"
)

var _ anonopen.Store = (*Store)(nil)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(sqlx.NewDb(db, "mysql")), mock
}

func TestQueueIDForContact(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT queue.id\s+FROM civicrm_mailing_event_queue queue.+` +
		`WHERE queue.contact_id = \?\s+AND job.mailing_id = \?\s+ORDER BY queue.id\s+LIMIT 1`).
		WithArgs(int64(2), int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(101))

	got, err := s.QueueIDForContact(context.Background(), 10, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(101), got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueIDForContact_NoRow(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT queue.id`)).
		WithArgs(int64(7), int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	got, err := s.QueueIDForContact(context.Background(), 10, 7)
	require.NoError(t, err)
	assert.Zero(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMinContactID(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT MIN(queue.contact_id)`)).
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"min"}).AddRow(2))

	got, err := s.MinContactID(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMinContactID_NullWhenEmpty(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT MIN(queue.contact_id)`)).
		WithArgs(int64(30)).
		WillReturnRows(sqlmock.NewRows([]string{"min"}).AddRow(nil))

	got, err := s.MinContactID(context.Background(), 30)
	require.NoError(t, err)
	assert.Zero(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMinContactID_Error(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT MIN(queue.contact_id)`)).
		WithArgs(int64(10)).
		WillReturnError(sql.ErrConnDone)

	_, err := s.MinContactID(context.Background(), 10)
	assert.True(t, errors.Is(err, sql.ErrConnDone))
}

func TestInsertOpen(t *testing.T) {
	s, mock := newMockStore(t)
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(`INSERT INTO civicrm_mailing_event_opened \(event_queue_id, time_stamp\)\s+VALUES \(\?, \?\)`).
		WithArgs(int64(101), at).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, s.InsertOpen(context.Background(), 101, at))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMailingIDsForQueues(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT queue.id AS queue_id, job.mailing_id AS mailing_id.+WHERE queue.id IN \(.+\)`).
		WithArgs(int64(100), int64(200), int64(300)).
		WillReturnRows(sqlmock.NewRows([]string{"queue_id", "mailing_id"}).
			AddRow(100, 10).
			AddRow(200, 20).
			AddRow(300, nil)) // orphaned queue entry

	got, err := s.MailingIDsForQueues(context.Background(), []int64{100, 200, 300})
	require.NoError(t, err)
	assert.Equal(t, map[int64]int64{100: 10, 200: 20}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMailingIDsForQueues_EmptySkipsQuery(t *testing.T) {
	s, mock := newMockStore(t)

	got, err := s.MailingIDsForQueues(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}
