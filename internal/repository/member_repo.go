package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/verksted/admin-api/internal/models"
)

// MemberFilter defines filters for listing members from the admin panel.
type MemberFilter struct {
	Search   string
	Banned   *bool
	Active   *bool
	Page     int
	PageSize int
}

// MemberRepository exposes persistence helpers for member rows.
type MemberRepository interface {
	List(ctx context.Context, filter MemberFilter) ([]models.Member, int64, error)
	GetByID(ctx context.Context, id string) (models.Member, error)
	ListByIDs(ctx context.Context, ids []string) ([]models.Member, error)
	ListByEmails(ctx context.Context, emails []string) ([]models.Member, error)
	ListByEmailsFold(ctx context.Context, emails []string) ([]models.Member, error)
	UpdateFields(ctx context.Context, id string, updates map[string]interface{}) (int64, error)
	UpdatePrivilege(ctx context.Context, ids []string, level int) (int64, error)
	ClearPasswordSetAt(ctx context.Context, ids []string) error
}

type memberRepository struct {
	db *gorm.DB
}

// NewMemberRepository constructs the member repository.
func NewMemberRepository(db *gorm.DB) MemberRepository {
	return &memberRepository{db: db}
}

func (r *memberRepository) List(ctx context.Context, filter MemberFilter) ([]models.Member, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Member{})

	if filter.Search != "" {
		like := "%" + strings.ToLower(filter.Search) + "%"
		query = query.Where(
			"LOWER(firstname) LIKE ? OR LOWER(lastname) LIKE ? OR LOWER(email) LIKE ?",
			like, like, like,
		)
	}

	if filter.Banned != nil {
		query = query.Where("is_banned = ?", *filter.Banned)
	}

	if filter.Active != nil {
		query = query.Where("is_membership_active = ?", *filter.Active)
	}

	countQuery := query.Session(&gorm.Session{})
	var total int64
	if err := countQuery.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = query.Order("lastname ASC, firstname ASC")

	if filter.PageSize > 0 {
		page := filter.Page
		if page <= 0 {
			page = 1
		}
		offset := (page - 1) * filter.PageSize
		query = query.Limit(filter.PageSize).Offset(offset)
	}

	var members []models.Member
	if err := query.Find(&members).Error; err != nil {
		return nil, 0, err
	}

	return members, total, nil
}

func (r *memberRepository) GetByID(ctx context.Context, id string) (models.Member, error) {
	var member models.Member
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&member).Error; err != nil {
		return models.Member{}, err
	}

	return member, nil
}

func (r *memberRepository) ListByIDs(ctx context.Context, ids []string) ([]models.Member, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var members []models.Member
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&members).Error; err != nil {
		return nil, err
	}

	return members, nil
}

func (r *memberRepository) ListByEmails(ctx context.Context, emails []string) ([]models.Member, error) {
	if len(emails) == 0 {
		return nil, nil
	}

	var members []models.Member
	if err := r.db.WithContext(ctx).Where("email IN ?", emails).Find(&members).Error; err != nil {
		return nil, err
	}

	return members, nil
}

func (r *memberRepository) ListByEmailsFold(ctx context.Context, emails []string) ([]models.Member, error) {
	if len(emails) == 0 {
		return nil, nil
	}

	lowered := make([]string, 0, len(emails))
	for _, email := range emails {
		lowered = append(lowered, strings.ToLower(email))
	}

	var members []models.Member
	if err := r.db.WithContext(ctx).Where("LOWER(email) IN ?", lowered).Find(&members).Error; err != nil {
		return nil, err
	}

	return members, nil
}

func (r *memberRepository) UpdateFields(ctx context.Context, id string, updates map[string]interface{}) (int64, error) {
	tx := r.db.WithContext(ctx).Model(&models.Member{}).
		Where("id = ?", id).
		Updates(updates)

	return tx.RowsAffected, tx.Error
}

func (r *memberRepository) UpdatePrivilege(ctx context.Context, ids []string, level int) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tx := r.db.WithContext(ctx).Model(&models.Member{}).
		Where("id IN ?", ids).
		Update("privilege_type", level)

	return tx.RowsAffected, tx.Error
}

func (r *memberRepository) ClearPasswordSetAt(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	return r.db.WithContext(ctx).Model(&models.Member{}).
		Where("id IN ?", ids).
		Update("password_set_at", nil).Error
}
