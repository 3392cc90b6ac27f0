package models

import "time"

// PrintJob is one queued membership-card print. The row is terminal once
// Completed is true or ErrorMsg is set; the external print worker owns the
// transition, the watcher only observes (and may write a timeout error).
type PrintJob struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	Ref        string    `gorm:"size:36;not null;index:idx_print_jobs_ref" json:"ref"`
	RefInvoker string    `gorm:"size:36;not null;index:idx_print_jobs_ref" json:"ref_invoker"`
	Completed  bool      `gorm:"not null;default:false" json:"completed"`
	ErrorMsg   *string   `json:"error_msg"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Terminal reports whether the job has reached an end state.
func (j PrintJob) Terminal() bool {
	return j.Completed || j.ErrorMsg != nil
}
