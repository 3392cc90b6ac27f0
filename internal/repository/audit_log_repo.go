package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/verksted/admin-api/internal/models"
)

// AuditLogFilter narrows audit log queries.
type AuditLogFilter struct {
	Page        int
	PageSize    int
	ActorID     string
	Action      string
	TargetTable string
	Status      string
}

// AuditLogRepository persists the admin audit trail.
type AuditLogRepository interface {
	Create(ctx context.Context, entry *models.AuditLog) error
	List(ctx context.Context, filter AuditLogFilter) ([]models.AuditLog, int64, error)
	DeleteGenericUpdates(ctx context.Context, actorID, targetTable string, targetIDs []string, from, to time.Time) (int64, error)
}

type auditLogRepository struct {
	db *gorm.DB
}

// NewAuditLogRepository constructs the audit log repository.
func NewAuditLogRepository(db *gorm.DB) AuditLogRepository {
	return &auditLogRepository{db: db}
}

func (r *auditLogRepository) Create(ctx context.Context, entry *models.AuditLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *auditLogRepository) List(ctx context.Context, filter AuditLogFilter) ([]models.AuditLog, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.AuditLog{})

	if filter.ActorID != "" {
		query = query.Where("actor_id = ?", filter.ActorID)
	}

	if filter.Action != "" {
		query = query.Where("action = ?", filter.Action)
	}

	if filter.TargetTable != "" {
		query = query.Where("target_table = ?", filter.TargetTable)
	}

	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	countQuery := query.Session(&gorm.Session{})
	var total int64
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.PageSize > 0 {
		page := filter.Page
		if page <= 0 {
			page = 1
		}
		offset := (page - 1) * filter.PageSize
		query = query.Offset(offset).Limit(filter.PageSize)
	}

	var entries []models.AuditLog
	if err := query.Order("created_at DESC").Find(&entries).Error; err != nil {
		return nil, 0, err
	}

	return entries, total, nil
}

// DeleteGenericUpdates removes trigger-written generic member.update rows for
// the given actor and targets inside the [from, to] window. Used by the audit
// deduplication pass after a more specific entry has been written.
func (r *auditLogRepository) DeleteGenericUpdates(ctx context.Context, actorID, targetTable string, targetIDs []string, from, to time.Time) (int64, error) {
	if len(targetIDs) == 0 {
		return 0, nil
	}

	tx := r.db.WithContext(ctx).
		Where("action = ?", models.GenericMemberUpdateAction).
		Where("actor_id = ?", actorID).
		Where("target_table = ?", targetTable).
		Where("target_id IN ?", targetIDs).
		Where("created_at BETWEEN ? AND ?", from, to).
		Delete(&models.AuditLog{})

	return tx.RowsAffected, tx.Error
}
