package dto

// BanRequest toggles a member's ban state.
type BanRequest struct {
	ID     string `json:"id" validate:"required"`
	Banned bool   `json:"banned"`
	Reason string `json:"reason" validate:"max=500"`
}

// BanResult reports the outcome of a ban/unban request.
type BanResult struct {
	ID        string `json:"id"`
	Banned    bool   `json:"banned"`
	Unchanged bool   `json:"unchanged"`
}

// TargetFailure ties a failed batch target to its error message.
type TargetFailure struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// SkippedTarget ties an excluded batch target to the exclusion reason.
type SkippedTarget struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// DeleteRequest removes one or more member accounts.
type DeleteRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,dive,required"`
}

// DeleteResult reports per-target outcomes of a batch delete.
type DeleteResult struct {
	Deleted   int             `json:"deleted"`
	DeletedID []string        `json:"deleted_member_ids"`
	Failed    []TargetFailure `json:"failed"`
}

// PrivilegeUpdateRequest assigns one privilege level to one or more members.
type PrivilegeUpdateRequest struct {
	IDs       []string `json:"ids" validate:"required,min=1,dive,required"`
	Privilege int      `json:"privilege" validate:"min=0,max=5"`
}

// PrivilegeUpdateResult reports the updated and unchanged targets of an
// all-or-nothing privilege batch.
type PrivilegeUpdateResult struct {
	Privilege int      `json:"privilege"`
	Updated   []string `json:"updated"`
	Unchanged []string `json:"unchanged"`
}

// PasswordResetRequest bootstraps temporary passwords for first-time login.
type PasswordResetRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,dive,required"`
}

// PasswordResetResult reports per-target outcomes of a password bootstrap.
type PasswordResetResult struct {
	Status  string          `json:"status"`
	Sent    []string        `json:"sent"`
	Skipped []SkippedTarget `json:"skipped"`
	Failed  []TargetFailure `json:"failed"`
}

// PrintEnqueueRequest queues membership-card prints for one or more members.
type PrintEnqueueRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,dive,required"`
}

// QueuedPrintJob ties a queued member to the created job row.
type QueuedPrintJob struct {
	MemberID string `json:"member_id"`
	JobID    string `json:"job_id"`
}

// PrintEnqueueResult reports per-target outcomes of a print batch.
type PrintEnqueueResult struct {
	Queued []QueuedPrintJob `json:"queued"`
	Failed []TargetFailure  `json:"failed"`
}
