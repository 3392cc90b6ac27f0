package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/verksted/admin-api/internal/models"
	"github.com/verksted/admin-api/internal/repository"
)

func seedPrintJob(t *testing.T, db *gorm.DB, job models.PrintJob, createdAt time.Time) {
	t.Helper()
	require.NoError(t, db.Create(&job).Error)
	require.NoError(t, db.Model(&models.PrintJob{}).Where("id = ?", job.ID).Update("created_at", createdAt).Error)
}

func TestPrintJobRepositoryLatestByRef(t *testing.T) {
	db := newTestDB(t, &models.PrintJob{})
	now := time.Now()
	seedPrintJob(t, db, models.PrintJob{ID: "job-old", Ref: "m-1", RefInvoker: "admin-1"}, now.Add(-time.Hour))
	seedPrintJob(t, db, models.PrintJob{ID: "job-new", Ref: "m-1", RefInvoker: "admin-1"}, now)
	seedPrintJob(t, db, models.PrintJob{ID: "job-other", Ref: "m-1", RefInvoker: "admin-2"}, now)

	repo := repository.NewPrintJobRepository(db)

	job, err := repo.LatestByRef(context.Background(), "m-1", "admin-1")
	require.NoError(t, err)
	require.Equal(t, "job-new", job.ID)

	_, err = repo.LatestByRef(context.Background(), "m-9", "admin-1")
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestPrintJobRepositoryMarkCompletedOnlyOnce(t *testing.T) {
	db := newTestDB(t, &models.PrintJob{})
	require.NoError(t, db.Create(&models.PrintJob{ID: "job-1", Ref: "m-1", RefInvoker: "admin-1"}).Error)

	repo := repository.NewPrintJobRepository(db)

	rows, err := repo.MarkCompleted(context.Background(), "job-1")
	require.NoError(t, err)
	require.EqualValues(t, 1, rows)

	rows, err = repo.MarkCompleted(context.Background(), "job-1")
	require.NoError(t, err)
	require.Zero(t, rows)
}

func TestPrintJobRepositoryMarkErroredNeverOverwritesTerminal(t *testing.T) {
	db := newTestDB(t, &models.PrintJob{})
	require.NoError(t, db.Create(&models.PrintJob{ID: "job-1", Ref: "m-1", RefInvoker: "admin-1"}).Error)

	repo := repository.NewPrintJobRepository(db)

	rows, err := repo.MarkCompleted(context.Background(), "job-1")
	require.NoError(t, err)
	require.EqualValues(t, 1, rows)

	rows, err = repo.MarkErrored(context.Background(), "job-1", "tidsavbrudd")
	require.NoError(t, err)
	require.Zero(t, rows)

	job, err := repo.GetByID(context.Background(), "job-1")
	require.NoError(t, err)
	require.True(t, job.Completed)
	require.Nil(t, job.ErrorMsg)
}

func TestPrintJobRepositoryMarkErroredSetsMessage(t *testing.T) {
	db := newTestDB(t, &models.PrintJob{})
	require.NoError(t, db.Create(&models.PrintJob{ID: "job-1", Ref: "m-1", RefInvoker: "admin-1"}).Error)

	repo := repository.NewPrintJobRepository(db)

	rows, err := repo.MarkErrored(context.Background(), "job-1", "ingen kontakt med skriveren")
	require.NoError(t, err)
	require.EqualValues(t, 1, rows)

	// a later completion can no longer land
	rows, err = repo.MarkCompleted(context.Background(), "job-1")
	require.NoError(t, err)
	require.Zero(t, rows)

	job, err := repo.GetByID(context.Background(), "job-1")
	require.NoError(t, err)
	require.False(t, job.Completed)
	require.Equal(t, "ingen kontakt med skriveren", *job.ErrorMsg)
}
