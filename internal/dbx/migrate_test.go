package dbx

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testMigrations = []Migration{
	{Name: "001_create_a", Script: "CREATE TABLE a (id BIGINT)"},
	{Name: "002_create_b", Script: "CREATE TABLE b (id BIGINT)"},
}

type fakeLocker struct {
	locked, unlocked int
	lockErr          error
}

func (f *fakeLocker) SessionLock(context.Context, *sql.Conn) error {
	f.locked++
	return f.lockErr
}

func (f *fakeLocker) SessionUnlock(context.Context, *sql.Conn) error {
	f.unlocked++
	return nil
}

func newMockConn(t *testing.T) (*sql.Conn, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	conn, err := db.Conn(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn, mock
}

func expectLedger(mock sqlmock.Sqlmock, applied ...string) {
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS "schema_migrations"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectBegin()

	rows := sqlmock.NewRows([]string{"name"})
	for _, name := range applied {
		rows.AddRow(name)
	}
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT name FROM "schema_migrations"`)).WillReturnRows(rows)
}

func expectApply(mock sqlmock.Sqlmock, m Migration) {
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "schema_migrations" (name) VALUES ($1)`)).
		WithArgs(m.Name).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(m.Script)).WillReturnResult(sqlmock.NewResult(0, 0))
}

func TestMigrator_FreshDatabase(t *testing.T) {
	conn, mock := newMockConn(t)
	locker := &fakeLocker{}

	expectLedger(mock)
	expectApply(mock, testMigrations[0])
	expectApply(mock, testMigrations[1])
	mock.ExpectCommit()

	applied, err := NewMigrator(WithSessionLocker(locker)).Up(context.Background(), conn, testMigrations)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_create_a", "002_create_b"}, applied)
	assert.Equal(t, 1, locker.locked)
	assert.Equal(t, 1, locker.unlocked)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrator_UpToDateIsNoop(t *testing.T) {
	conn, mock := newMockConn(t)

	expectLedger(mock, "001_create_a", "002_create_b")
	mock.ExpectCommit()

	applied, err := NewMigrator().Up(context.Background(), conn, testMigrations)
	require.NoError(t, err)
	assert.Empty(t, applied)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrator_AppliesOnlyPending(t *testing.T) {
	conn, mock := newMockConn(t)

	expectLedger(mock, "001_create_a")
	expectApply(mock, testMigrations[1])
	mock.ExpectCommit()

	applied, err := NewMigrator().Up(context.Background(), conn, testMigrations)
	require.NoError(t, err)
	assert.Equal(t, []string{"002_create_b"}, applied)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrator_FailureRollsBackEverything(t *testing.T) {
	conn, mock := newMockConn(t)
	boom := errors.New("syntax error")

	expectLedger(mock)
	expectApply(mock, testMigrations[0])
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "schema_migrations"`)).
		WithArgs("002_create_b").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(testMigrations[1].Script)).WillReturnError(boom)
	mock.ExpectRollback()

	applied, err := NewMigrator().Up(context.Background(), conn, testMigrations)
	require.ErrorIs(t, err, ErrMigrationFailed)
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "002_create_b")
	assert.Nil(t, applied)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrator_CustomLedgerTable(t *testing.T) {
	conn, mock := newMockConn(t)

	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS "forum_ledger"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT name FROM "forum_ledger"`)).
		WillReturnRows(sqlmock.NewRows([]string{"name"}))
	mock.ExpectCommit()

	applied, err := NewMigrator(WithLedgerTable("forum_ledger")).Up(context.Background(), conn, nil)
	require.NoError(t, err)
	assert.Empty(t, applied)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrator_RejectsInvalidList(t *testing.T) {
	conn, mock := newMockConn(t)

	_, err := NewMigrator().Up(context.Background(), conn, []Migration{
		{Name: "001", Script: "SELECT 1"},
		{Name: "001", Script: "SELECT 2"},
	})
	require.ErrorIs(t, err, ErrMigrationFailed)
	assert.Contains(t, err.Error(), "duplicate")

	_, err = NewMigrator().Up(context.Background(), conn, []Migration{{Script: "SELECT 1"}})
	require.ErrorIs(t, err, ErrMigrationFailed)

	require.NoError(t, mock.ExpectationsWereMet(), "nothing may touch the database")
}

func TestMigrator_LockFailure(t *testing.T) {
	conn, mock := newMockConn(t)
	locker := &fakeLocker{lockErr: errors.New("lock timeout")}

	_, err := NewMigrator(WithSessionLocker(locker)).Up(context.Background(), conn, testMigrations)
	require.ErrorIs(t, err, ErrMigrationFailed)
	assert.Equal(t, 0, locker.unlocked)
	require.NoError(t, mock.ExpectationsWereMet())
}
