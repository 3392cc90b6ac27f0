package models

import (
	"time"

	"gorm.io/datatypes"
)

// Audit entry statuses.
const (
	AuditStatusOK      = "ok"
	AuditStatusError   = "error"
	AuditStatusPartial = "partial"
)

// GenericMemberUpdateAction is the action key written by the database trigger
// for every member-table write. Specific entries supersede it; see the
// deduplication pass in the audit service.
const GenericMemberUpdateAction = "member.update"

// AuditLog is one immutable record of an administrative action's outcome.
// Rows are never updated; redundant trigger-written rows may be deleted by
// the deduplication pass.
type AuditLog struct {
	ID           uint              `gorm:"primaryKey" json:"id"`
	ActorID      string            `gorm:"size:36;not null;index" json:"actor_id"`
	Action       string            `gorm:"size:64;not null;index" json:"action"`
	TargetTable  *string           `gorm:"size:64" json:"target_table"`
	TargetID     *string           `gorm:"size:255" json:"target_id"`
	Status       string            `gorm:"size:16;not null" json:"status"`
	ErrorMessage *string           `json:"error_message"`
	Details      datatypes.JSONMap `gorm:"type:json" json:"details"`
	CreatedAt    time.Time         `gorm:"index" json:"created_at"`
}
