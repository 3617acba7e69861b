package database

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordanhubbard/leadscore/pkg/models"
)

func newMockPostgres(t *testing.T) (*Database, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &Database{db: db, postgres: true, supportsHA: true}, mock
}

func TestRebind(t *testing.T) {
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", rebind("SELECT * FROM t WHERE a = ? AND b = ?"))
	assert.Equal(t, "SELECT 1", rebind("SELECT 1"))
}

func TestAcquireLock_Fresh(t *testing.T) {
	d, mock := newMockPostgres(t)
	mock.ExpectExec(`INSERT INTO distributed_locks`).
		WithArgs("refresh_scores", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM distributed_locks\s+WHERE lock_name = \$1 AND instance_id = \$2`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	lock, err := d.AcquireLock(context.Background(), "refresh_scores", time.Hour)
	require.NoError(t, err)
	require.NoError(t, lock.Release(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcquireLock_StealsExpired(t *testing.T) {
	d, mock := newMockPostgres(t)
	mock.ExpectExec(`INSERT INTO distributed_locks`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`UPDATE distributed_locks`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM distributed_locks`).WillReturnResult(sqlmock.NewResult(0, 1))

	lock, err := d.AcquireLock(context.Background(), "expire_snoozes", time.Hour)
	require.NoError(t, err)
	require.NoError(t, lock.Release(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcquireLock_Held(t *testing.T) {
	d, mock := newMockPostgres(t)
	mock.ExpectExec(`INSERT INTO distributed_locks`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`UPDATE distributed_locks`).WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := d.AcquireLock(context.Background(), "expire_snoozes", time.Hour)
	assert.ErrorIs(t, err, ErrLockHeld)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindLeads_PostgresPlaceholders(t *testing.T) {
	d, mock := newMockPostgres(t)
	snoozed := true
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`WHERE l.is_snoozed = \$1 AND l.snooze_until < \$2 ORDER BY`).
		WithArgs(true, now).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := d.FindLeads(context.Background(), models.LeadFilter{Snoozed: &snoozed, SnoozeEndsBefore: &now})
	// The single-column row set never scans; only the query shape matters.
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCleanupExpiredLocks(t *testing.T) {
	d, mock := newMockPostgres(t)
	mock.ExpectExec(`DELETE FROM distributed_locks WHERE expires_at < \$1`).WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := d.CleanupExpiredLocks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
