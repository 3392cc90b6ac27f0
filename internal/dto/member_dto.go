package dto

import (
	"time"

	"github.com/verksted/admin-api/internal/models"
	"github.com/verksted/admin-api/internal/privilege"
)

// PaginationMeta captures pagination metadata for list responses.
type PaginationMeta struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalItems int64 `json:"total_items"`
	TotalPages int   `json:"total_pages"`
}

// MemberListRequest defines filters for listing members.
type MemberListRequest struct {
	Page     int
	PageSize int
	Search   string
	Banned   *bool
	Active   *bool
}

// MemberResponse serializes member data for admin endpoints.
type MemberResponse struct {
	ID                 string     `json:"id"`
	Firstname          string     `json:"firstname"`
	Lastname           string     `json:"lastname"`
	Email              *string    `json:"email"`
	PrivilegeType      int        `json:"privilege_type"`
	PrivilegeName      string     `json:"privilege_name"`
	IsBanned           bool       `json:"is_banned"`
	IsMembershipActive bool       `json:"is_membership_active"`
	PasswordSetAt      *time.Time `json:"password_set_at"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// NewMemberResponse maps a member row to its response shape.
func NewMemberResponse(member models.Member) MemberResponse {
	return MemberResponse{
		ID:                 member.ID,
		Firstname:          member.Firstname,
		Lastname:           member.Lastname,
		Email:              member.Email,
		PrivilegeType:      member.PrivilegeType,
		PrivilegeName:      privilege.Normalize(member.PrivilegeType).String(),
		IsBanned:           member.IsBanned,
		IsMembershipActive: member.IsMembershipActive,
		PasswordSetAt:      member.PasswordSetAt,
		CreatedAt:          member.CreatedAt,
		UpdatedAt:          member.UpdatedAt,
	}
}

// MemberListResponse wraps a paginated member response.
type MemberListResponse struct {
	Items      []MemberResponse `json:"items"`
	Pagination PaginationMeta   `json:"pagination"`
}
