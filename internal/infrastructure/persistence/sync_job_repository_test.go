package persistence

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/storesync/backend/internal/domain/sync"
)

// newMockSyncJobRepository creates a GormSyncJobRepository with a mocked SQL connection
func newMockSyncJobRepository(t *testing.T) (*GormSyncJobRepository, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	return NewGormSyncJobRepository(gormDB), mock, mockDB
}

func TestNewGormSyncJobRepository(t *testing.T) {
	repo, _, mockDB := newMockSyncJobRepository(t)
	defer mockDB.Close()

	assert.NotNil(t, repo)
	assert.NotNil(t, repo.db)
}

func TestGormSyncJobRepository_EnqueueDeduped(t *testing.T) {
	t.Run("inserts when no queued duplicate exists", func(t *testing.T) {
		repo, mock, mockDB := newMockSyncJobRepository(t)
		defer mockDB.Close()

		job, err := sync.NewJob(sync.ModeImportChangedProducts, sync.Selector{})
		require.NoError(t, err)
		require.NoError(t, job.Queue())

		mock.ExpectBegin()
		mock.ExpectExec(`SELECT pg_advisory_xact_lock\(\$1\)`).
			WithArgs(claimLockKey).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT count\(\*\) FROM "sync_jobs" WHERE mode = \$1 AND selector_key = \$2 AND state = \$3`).
			WithArgs(string(sync.ModeImportChangedProducts), "", string(sync.StateQueued)).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		mock.ExpectExec(`INSERT INTO "sync_jobs"`).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		inserted, err := repo.EnqueueDeduped(context.Background(), job)
		require.NoError(t, err)
		assert.True(t, inserted)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("coalesces into existing queued job", func(t *testing.T) {
		repo, mock, mockDB := newMockSyncJobRepository(t)
		defer mockDB.Close()

		job, err := sync.NewJob(sync.ModeImportChangedProducts, sync.Selector{})
		require.NoError(t, err)
		require.NoError(t, job.Queue())

		mock.ExpectBegin()
		mock.ExpectExec(`SELECT pg_advisory_xact_lock\(\$1\)`).
			WithArgs(claimLockKey).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT count\(\*\) FROM "sync_jobs"`).
			WithArgs(string(sync.ModeImportChangedProducts), "", string(sync.StateQueued)).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
		mock.ExpectCommit()

		inserted, err := repo.EnqueueDeduped(context.Background(), job)
		require.NoError(t, err)
		assert.False(t, inserted)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormSyncJobRepository_ClaimNextQueued(t *testing.T) {
	jobColumns := []string{
		"id", "mode", "selector_key", "selector", "state",
		"total_count", "updated_count", "retry_attempts",
		"start_time", "end_time", "heartbeat_at",
		"error_message", "error_kind", "error_context",
		"created_at", "updated_at",
	}

	t.Run("returns nil when claim lock is held elsewhere", func(t *testing.T) {
		repo, mock, mockDB := newMockSyncJobRepository(t)
		defer mockDB.Close()

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT pg_try_advisory_xact_lock\(\$1\)`).
			WithArgs(claimLockKey).
			WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_xact_lock"}).AddRow(false))
		mock.ExpectCommit()

		job, err := repo.ClaimNextQueued(context.Background())
		require.NoError(t, err)
		assert.Nil(t, job)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns nil when a job is already running", func(t *testing.T) {
		repo, mock, mockDB := newMockSyncJobRepository(t)
		defer mockDB.Close()

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT pg_try_advisory_xact_lock\(\$1\)`).
			WithArgs(claimLockKey).
			WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_xact_lock"}).AddRow(true))
		mock.ExpectQuery(`SELECT count\(\*\) FROM "sync_jobs" WHERE state = \$1`).
			WithArgs(string(sync.StateRunning)).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
		mock.ExpectCommit()

		// No job may be claimed while another runs, even with work queued.
		job, err := repo.ClaimNextQueued(context.Background())
		require.NoError(t, err)
		assert.Nil(t, job)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returns nil when queue is empty", func(t *testing.T) {
		repo, mock, mockDB := newMockSyncJobRepository(t)
		defer mockDB.Close()

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT pg_try_advisory_xact_lock\(\$1\)`).
			WithArgs(claimLockKey).
			WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_xact_lock"}).AddRow(true))
		mock.ExpectQuery(`SELECT count\(\*\) FROM "sync_jobs" WHERE state = \$1`).
			WithArgs(string(sync.StateRunning)).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		mock.ExpectQuery(`SELECT \* FROM "sync_jobs" WHERE state = \$1 ORDER BY retry_attempts DESC, created_at ASC`).
			WithArgs(string(sync.StateQueued), 1).
			WillReturnError(gorm.ErrRecordNotFound)
		mock.ExpectCommit()

		job, err := repo.ClaimNextQueued(context.Background())
		require.NoError(t, err)
		assert.Nil(t, job)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("claims the oldest queued job and marks it running", func(t *testing.T) {
		repo, mock, mockDB := newMockSyncJobRepository(t)
		defer mockDB.Close()

		jobID := uuid.New()
		created := time.Now().Add(-time.Minute)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT pg_try_advisory_xact_lock\(\$1\)`).
			WithArgs(claimLockKey).
			WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_xact_lock"}).AddRow(true))
		mock.ExpectQuery(`SELECT count\(\*\) FROM "sync_jobs" WHERE state = \$1`).
			WithArgs(string(sync.StateRunning)).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		mock.ExpectQuery(`SELECT \* FROM "sync_jobs" WHERE state = \$1 ORDER BY retry_attempts DESC, created_at ASC`).
			WithArgs(string(sync.StateQueued), 1).
			WillReturnRows(sqlmock.NewRows(jobColumns).AddRow(
				jobID, string(sync.ModeImportChangedOrders), "", "{}", string(sync.StateQueued),
				0, 0, 1,
				nil, nil, nil,
				"", "", "",
				created, created,
			))
		mock.ExpectExec(`UPDATE "sync_jobs" SET`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		job, err := repo.ClaimNextQueued(context.Background())
		require.NoError(t, err)
		require.NotNil(t, job)
		assert.Equal(t, jobID, job.ID)
		assert.Equal(t, sync.StateRunning, job.State)
		assert.Equal(t, 1, job.RetryAttempts)
		require.NotNil(t, job.StartTime)
		require.NotNil(t, job.HeartbeatAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormSyncJobRepository_ReclaimStale(t *testing.T) {
	repo, mock, mockDB := newMockSyncJobRepository(t)
	defer mockDB.Close()

	mock.ExpectBegin()
	// jobs with retry budget left go back to queued
	mock.ExpectExec(`UPDATE "sync_jobs" SET`).
		WillReturnResult(sqlmock.NewResult(0, 2))
	// the rest fail terminally
	mock.ExpectExec(`UPDATE "sync_jobs" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	requeued, failed, err := repo.ReclaimStale(context.Background(), 10*time.Minute, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, requeued)
	assert.Equal(t, 1, failed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormSyncJobRepository_Heartbeat(t *testing.T) {
	repo, mock, mockDB := newMockSyncJobRepository(t)
	defer mockDB.Close()

	jobID := uuid.New()
	mock.ExpectExec(`UPDATE "sync_jobs" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Heartbeat(context.Background(), jobID)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormSyncJobRepository_FindByID_NotFound(t *testing.T) {
	repo, mock, mockDB := newMockSyncJobRepository(t)
	defer mockDB.Close()

	jobID := uuid.New()
	mock.ExpectQuery(`SELECT \* FROM "sync_jobs" WHERE id = \$1`).
		WithArgs(jobID, 1).
		WillReturnError(gorm.ErrRecordNotFound)

	job, err := repo.FindByID(context.Background(), jobID)
	assert.Nil(t, job)
	assert.ErrorIs(t, err, sync.ErrJobNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormSyncJobRepository_HasRecentActivity(t *testing.T) {
	repo, mock, mockDB := newMockSyncJobRepository(t)
	defer mockDB.Close()

	mock.ExpectQuery(`SELECT count\(\*\) FROM "sync_jobs"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	active, err := repo.HasRecentActivity(context.Background(), sync.PrimaryPeriodicModes(), time.Hour)
	require.NoError(t, err)
	assert.True(t, active)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormSyncJobRepository_PruneOld(t *testing.T) {
	repo, mock, mockDB := newMockSyncJobRepository(t)
	defer mockDB.Close()

	mock.ExpectExec(`DELETE FROM sync_jobs`).
		WillReturnResult(sqlmock.NewResult(0, 7))

	deleted, err := repo.PruneOld(context.Background(), 30*24*time.Hour, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(7), deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}
