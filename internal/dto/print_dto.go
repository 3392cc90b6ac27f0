package dto

import (
	"time"

	"github.com/verksted/admin-api/internal/models"
)

// PrintJobResponse serializes one print-queue row.
type PrintJobResponse struct {
	ID         string    `json:"id"`
	Ref        string    `json:"ref"`
	RefInvoker string    `json:"ref_invoker"`
	Completed  bool      `json:"completed"`
	ErrorMsg   *string   `json:"error_msg"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewPrintJobResponse maps a print job row to its response shape.
func NewPrintJobResponse(job models.PrintJob) PrintJobResponse {
	return PrintJobResponse{
		ID:         job.ID,
		Ref:        job.Ref,
		RefInvoker: job.RefInvoker,
		Completed:  job.Completed,
		ErrorMsg:   job.ErrorMsg,
		CreatedAt:  job.CreatedAt,
		UpdatedAt:  job.UpdatedAt,
	}
}

// PrintStatusUpdateRequest is the payload the external print worker posts
// when a job reaches a terminal state.
type PrintStatusUpdateRequest struct {
	Completed bool    `json:"completed"`
	ErrorMsg  *string `json:"error_msg"`
}

// Watch event types streamed over the print-watch websocket.
const (
	PrintWatchUpdate    = "update"
	PrintWatchCompleted = "completed"
	PrintWatchError     = "error"
	PrintWatchTimeout   = "timeout"
)

// PrintWatchEvent is one message on the print-watch websocket stream.
type PrintWatchEvent struct {
	Type string            `json:"type"`
	Job  *PrintJobResponse `json:"job,omitempty"`
}
