package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/verksted/admin-api/internal/models"
)

// PrintJobRepository persists membership-card print jobs.
type PrintJobRepository interface {
	Create(ctx context.Context, job *models.PrintJob) error
	GetByID(ctx context.Context, id string) (models.PrintJob, error)
	LatestByRef(ctx context.Context, ref, refInvoker string) (models.PrintJob, error)
	MarkCompleted(ctx context.Context, id string) (int64, error)
	MarkErrored(ctx context.Context, id, errorMsg string) (int64, error)
}

type printJobRepository struct {
	db *gorm.DB
}

// NewPrintJobRepository constructs the print job repository.
func NewPrintJobRepository(db *gorm.DB) PrintJobRepository {
	return &printJobRepository{db: db}
}

func (r *printJobRepository) Create(ctx context.Context, job *models.PrintJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *printJobRepository) GetByID(ctx context.Context, id string) (models.PrintJob, error) {
	var job models.PrintJob
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&job).Error; err != nil {
		return models.PrintJob{}, err
	}

	return job, nil
}

func (r *printJobRepository) LatestByRef(ctx context.Context, ref, refInvoker string) (models.PrintJob, error) {
	var job models.PrintJob
	err := r.db.WithContext(ctx).
		Where("ref = ?", ref).
		Where("ref_invoker = ?", refInvoker).
		Order("created_at DESC").
		First(&job).Error
	if err != nil {
		return models.PrintJob{}, err
	}

	return job, nil
}

// MarkCompleted flips the job to its terminal success state. The condition on
// the current state keeps terminal rows terminal; zero rows affected means
// the job already finished or does not exist.
func (r *printJobRepository) MarkCompleted(ctx context.Context, id string) (int64, error) {
	tx := r.db.WithContext(ctx).Model(&models.PrintJob{}).
		Where("id = ?", id).
		Where("completed = ?", false).
		Where("error_msg IS NULL").
		Update("completed", true)

	return tx.RowsAffected, tx.Error
}

// MarkErrored writes a terminal error, guarded so it never overwrites a
// completion or an earlier error.
func (r *printJobRepository) MarkErrored(ctx context.Context, id, errorMsg string) (int64, error) {
	tx := r.db.WithContext(ctx).Model(&models.PrintJob{}).
		Where("id = ?", id).
		Where("completed = ?", false).
		Where("error_msg IS NULL").
		Update("error_msg", errorMsg)

	return tx.RowsAffected, tx.Error
}
