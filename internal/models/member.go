package models

import "time"

// MemberTable is the audit target table name for member rows.
const MemberTable = "members"

// Member mirrors one person in the organization. The primary key matches the
// identity provider's user id; authentication state lives there, this row is
// the profile and privilege mirror.
type Member struct {
	ID                 string     `gorm:"primaryKey;size:36" json:"id"`
	Firstname          string     `gorm:"size:255;not null" json:"firstname"`
	Lastname           string     `gorm:"size:255;not null" json:"lastname"`
	Email              *string    `gorm:"size:255;index" json:"email"`
	PrivilegeType      int        `gorm:"not null;default:0" json:"privilege_type"`
	IsBanned           bool       `gorm:"not null;default:false" json:"is_banned"`
	IsMembershipActive bool       `gorm:"not null;default:false" json:"is_membership_active"`
	PasswordSetAt      *time.Time `json:"password_set_at"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// DisplayName returns the member's presentable name, falling back to email
// and finally the raw id so callers always get something non-empty.
func (m Member) DisplayName() string {
	name := m.Firstname
	if m.Lastname != "" {
		if name != "" {
			name += " "
		}
		name += m.Lastname
	}
	if name != "" {
		return name
	}
	if m.Email != nil && *m.Email != "" {
		return *m.Email
	}
	return m.ID
}
