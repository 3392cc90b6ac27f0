package dto

import (
	"time"

	"github.com/verksted/admin-api/internal/models"
)

// AuditLogListRequest defines filters for listing audit entries.
type AuditLogListRequest struct {
	Page        int
	PageSize    int
	ActorID     string
	Action      string
	TargetTable string
	Status      string
}

// AuditLogResponse serializes one audit entry.
type AuditLogResponse struct {
	ID           uint           `json:"id"`
	ActorID      string         `json:"actor_id"`
	Action       string         `json:"action"`
	TargetTable  *string        `json:"target_table"`
	TargetID     *string        `json:"target_id"`
	Status       string         `json:"status"`
	ErrorMessage *string        `json:"error_message"`
	Details      map[string]any `json:"details"`
	CreatedAt    time.Time      `json:"created_at"`
}

// NewAuditLogResponse maps an audit row to its response shape.
func NewAuditLogResponse(entry models.AuditLog) AuditLogResponse {
	return AuditLogResponse{
		ID:           entry.ID,
		ActorID:      entry.ActorID,
		Action:       entry.Action,
		TargetTable:  entry.TargetTable,
		TargetID:     entry.TargetID,
		Status:       entry.Status,
		ErrorMessage: entry.ErrorMessage,
		Details:      entry.Details,
		CreatedAt:    entry.CreatedAt,
	}
}

// AuditLogListResponse wraps a paginated audit log response.
type AuditLogListResponse struct {
	Items      []AuditLogResponse `json:"items"`
	Pagination PaginationMeta     `json:"pagination"`
}
