package service

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/verksted/admin-api/internal/dto"
	"github.com/verksted/admin-api/internal/models"
	"github.com/verksted/admin-api/internal/privilege"
	"github.com/verksted/admin-api/internal/repository"
	"github.com/verksted/admin-api/pkg/identity"
	"github.com/verksted/admin-api/pkg/mailer"
)

// Actor is the authenticated admin performing a mutation, as resolved by the
// permission guard.
type Actor struct {
	ID    string
	Level privilege.Level
}

// MemberAdminConfig carries the tunables the admin service needs.
type MemberAdminConfig struct {
	TempPasswordLength int
	OTPTemplateID      string
	OTPSubject         string
}

// MemberAdminService orchestrates the admin member mutations: ban, delete,
// privilege change and password bootstrap. Every terminal mutation outcome
// is recorded in the audit log; validation and authorization rejections are
// not.
type MemberAdminService interface {
	List(ctx context.Context, req dto.MemberListRequest) (dto.MemberListResponse, error)
	Get(ctx context.Context, id string) (dto.MemberResponse, error)
	SetBan(ctx context.Context, actor Actor, req dto.BanRequest) (dto.BanResult, error)
	Delete(ctx context.Context, actor Actor, req dto.DeleteRequest) (dto.DeleteResult, error)
	UpdatePrivilege(ctx context.Context, actor Actor, req dto.PrivilegeUpdateRequest) (dto.PrivilegeUpdateResult, error)
	ResetPasswords(ctx context.Context, actor Actor, req dto.PasswordResetRequest) (dto.PasswordResetResult, error)
}

type memberAdminService struct {
	members   repository.MemberRepository
	identity  identity.AdminClient
	mail      mailer.Sender
	audit     AuditRecorder
	validator *validator.Validate
	cfg       MemberAdminConfig
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewMemberAdminService constructs the member admin service.
func NewMemberAdminService(
	members repository.MemberRepository,
	identityClient identity.AdminClient,
	mail mailer.Sender,
	audit AuditRecorder,
	validate *validator.Validate,
	cfg MemberAdminConfig,
	logger zerolog.Logger,
) MemberAdminService {
	if cfg.TempPasswordLength <= 0 {
		cfg.TempPasswordLength = DefaultTempPasswordLength
	}

	return &memberAdminService{
		members:   members,
		identity:  identityClient,
		mail:      mail,
		audit:     audit,
		validator: validate,
		cfg:       cfg,
		logger:    logger.With().Str("component", "member_admin_service").Logger(),
		tracer:    otel.Tracer("github.com/verksted/admin-api/internal/service/memberadmin"),
	}
}

func (s *memberAdminService) List(ctx context.Context, req dto.MemberListRequest) (dto.MemberListResponse, error) {
	filter := repository.MemberFilter{
		Search:   strings.TrimSpace(req.Search),
		Banned:   req.Banned,
		Active:   req.Active,
		Page:     req.Page,
		PageSize: req.PageSize,
	}

	members, total, err := s.members.List(ctx, filter)
	if err != nil {
		return dto.MemberListResponse{}, err
	}

	responses := make([]dto.MemberResponse, 0, len(members))
	for _, member := range members {
		responses = append(responses, dto.NewMemberResponse(member))
	}

	pagination := dto.PaginationMeta{
		Page:       maxInt(req.Page, 1),
		PageSize:   req.PageSize,
		TotalItems: total,
	}
	if req.PageSize > 0 {
		pagination.TotalPages = int(math.Ceil(float64(total) / float64(req.PageSize)))
	} else {
		pagination.TotalPages = 1
	}

	return dto.MemberListResponse{Items: responses, Pagination: pagination}, nil
}

func (s *memberAdminService) Get(ctx context.Context, id string) (dto.MemberResponse, error) {
	member, err := s.members.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.MemberResponse{}, ErrMemberNotFound
		}
		return dto.MemberResponse{}, err
	}

	return dto.NewMemberResponse(member), nil
}

// SetBan bans or unbans one member. The identity provider is updated first,
// then the member-store mirror; a mirror failure triggers a best-effort
// compensating update at the provider. Requests that would not change the
// current state short-circuit without any writes.
func (s *memberAdminService) SetBan(ctx context.Context, actor Actor, req dto.BanRequest) (dto.BanResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.BanResult{}, err
	}

	if req.ID == actor.ID {
		return dto.BanResult{}, ErrSelfBan
	}

	spanCtx, span := s.tracer.Start(ctx, "member.ban", trace.WithAttributes(
		attribute.String("member.id", req.ID),
		attribute.Bool("member.banned", req.Banned),
	))
	defer span.End()

	member, err := s.members.GetByID(spanCtx, req.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.BanResult{}, ErrMemberNotFound
		}
		return dto.BanResult{}, err
	}

	if member.IsBanned == req.Banned {
		return dto.BanResult{ID: req.ID, Banned: req.Banned, Unchanged: true}, nil
	}

	action := "member.unban"
	duration := identity.UnbanDuration
	priorDuration := identity.PermanentBanDuration
	if req.Banned {
		action = "member.ban"
		duration = identity.PermanentBanDuration
		priorDuration = identity.UnbanDuration
	}

	details := map[string]any{
		"banned": req.Banned,
		"before": map[string]any{
			"id":        member.ID,
			"name":      member.DisplayName(),
			"is_banned": member.IsBanned,
		},
	}
	if member.Email != nil {
		details["before"].(map[string]any)["email"] = *member.Email
	}
	if req.Reason != "" {
		details["reason"] = req.Reason
	}

	if err := s.identity.UpdateUser(spanCtx, req.ID, identity.UserUpdate{BanDuration: &duration}); err != nil {
		span.RecordError(err)
		s.recordOutcome(spanCtx, actor, action, req.ID, models.AuditStatusError, err.Error(), details)
		return dto.BanResult{}, err
	}

	updates := map[string]interface{}{"is_banned": req.Banned}
	if req.Banned {
		updates["is_membership_active"] = false
	}

	rows, err := s.members.UpdateFields(spanCtx, req.ID, updates)
	if err != nil {
		span.RecordError(err)
		// The provider already applied the ban; try to restore its prior
		// state. Rollback failure is not surfaced beyond the original error.
		if rbErr := s.identity.UpdateUser(spanCtx, req.ID, identity.UserUpdate{BanDuration: &priorDuration}); rbErr != nil {
			s.logger.Error().Err(rbErr).Str("member_id", req.ID).Msg("ban rollback failed, provider and store may disagree")
		}
		s.recordOutcome(spanCtx, actor, action, req.ID, models.AuditStatusError, err.Error(), details)
		return dto.BanResult{}, err
	}

	if rows == 0 {
		s.recordOutcome(spanCtx, actor, action, req.ID, models.AuditStatusError, ErrInconsistentMirror.Error(), details)
		return dto.BanResult{}, ErrInconsistentMirror
	}

	s.recordOutcome(spanCtx, actor, action, req.ID, models.AuditStatusOK, "", details)

	return dto.BanResult{ID: req.ID, Banned: req.Banned}, nil
}

// Delete removes one or more accounts at the identity provider. Member rows
// fall with the provider account through the foreign key cascade. Per-target
// failures never abort the rest of the batch and completed deletions are
// never rolled back.
func (s *memberAdminService) Delete(ctx context.Context, actor Actor, req dto.DeleteRequest) (dto.DeleteResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.DeleteResult{}, err
	}

	ids := dedupeStrings(req.IDs)
	for _, id := range ids {
		if id == actor.ID {
			return dto.DeleteResult{}, ErrSelfDelete
		}
	}

	spanCtx, span := s.tracer.Start(ctx, "member.delete", trace.WithAttributes(
		attribute.Int("member.count", len(ids)),
	))
	defer span.End()

	// Snapshot rows before deletion so the audit entry can still identify
	// the targets afterwards.
	snapshots, err := s.members.ListByIDs(spanCtx, ids)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to snapshot members before delete")
	}

	deleted := make([]string, 0, len(ids))
	failed := make([]dto.TargetFailure, 0)

	for _, id := range ids {
		if err := s.identity.DeleteUser(spanCtx, id); err != nil {
			message := err.Error()
			if errors.Is(err, identity.ErrUserNotFound) {
				message = ErrMemberNotFound.Error()
			}
			failed = append(failed, dto.TargetFailure{ID: id, Message: message})
			continue
		}
		deleted = append(deleted, id)
	}

	status := models.AuditStatusOK
	switch {
	case len(deleted) == 0:
		status = models.AuditStatusError
	case len(failed) > 0:
		status = models.AuditStatusPartial
	}

	details := map[string]any{
		"deleted_member_ids": deleted,
		"failed":             failureList(failed),
		"members":            memberSnapshotRows(snapshots),
	}

	targetID := ""
	if len(ids) == 1 {
		targetID = ids[0]
	}

	errorMessage := ""
	if len(failed) > 0 {
		errorMessage = failed[0].Message
	}
	s.recordOutcome(spanCtx, actor, "member.delete", targetID, status, errorMessage, details)

	return dto.DeleteResult{Deleted: len(deleted), DeletedID: deleted, Failed: failed}, nil
}

// UpdatePrivilege assigns one level to a batch of members with all-or-nothing
// semantics: if any target is invalid under the privilege model the whole
// batch is rejected and nothing is written.
func (s *memberAdminService) UpdatePrivilege(ctx context.Context, actor Actor, req dto.PrivilegeUpdateRequest) (dto.PrivilegeUpdateResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.PrivilegeUpdateResult{}, err
	}

	level := privilege.Level(req.Privilege)
	if !level.Valid() {
		return dto.PrivilegeUpdateResult{}, ErrInvalidPrivilege
	}

	ids := dedupeStrings(req.IDs)

	spanCtx, span := s.tracer.Start(ctx, "member.privilege.update", trace.WithAttributes(
		attribute.Int("member.count", len(ids)),
		attribute.Int("privilege.level", req.Privilege),
	))
	defer span.End()

	members, err := s.members.ListByIDs(spanCtx, ids)
	if err != nil {
		return dto.PrivilegeUpdateResult{}, err
	}

	byID := make(map[string]models.Member, len(members))
	for _, member := range members {
		byID[member.ID] = member
	}

	updated := make([]string, 0, len(ids))
	unchanged := make([]string, 0)

	for _, id := range ids {
		member, ok := byID[id]
		if !ok {
			return dto.PrivilegeUpdateResult{}, ErrMemberNotFound
		}

		current := privilege.Normalize(member.PrivilegeType)
		if current == level {
			unchanged = append(unchanged, id)
			continue
		}

		if id == actor.ID {
			if !privilege.CanSetOwn(actor.Level, level) {
				return dto.PrivilegeUpdateResult{}, ErrForbiddenPrivilege
			}
		} else if !privilege.CanAssign(actor.Level, level, current) {
			return dto.PrivilegeUpdateResult{}, ErrForbiddenPrivilege
		}

		updated = append(updated, id)
	}

	result := dto.PrivilegeUpdateResult{Privilege: req.Privilege, Updated: updated, Unchanged: unchanged}

	if len(updated) == 0 {
		return result, nil
	}

	if _, err := s.members.UpdatePrivilege(spanCtx, updated, int(level)); err != nil {
		span.RecordError(err)
		s.recordOutcome(spanCtx, actor, "member.privilege.update", "", models.AuditStatusError, err.Error(), map[string]any{
			"privilege":  req.Privilege,
			"member_ids": updated,
		})
		return dto.PrivilegeUpdateResult{}, err
	}

	targetID := ""
	if len(updated) == 1 {
		targetID = updated[0]
	}
	s.recordOutcome(spanCtx, actor, "member.privilege.update", targetID, models.AuditStatusOK, "", map[string]any{
		"privilege":  req.Privilege,
		"member_ids": updated,
		"unchanged":  unchanged,
	})

	return result, nil
}

// ResetPasswords bootstraps temporary passwords for first-time login. Banned
// targets and targets without an email are excluded; for every eligible
// target the provider password is rotated, then the one-time password is
// mailed. A send failure after a successful rotation still counts the target
// as failed even though the password has changed.
func (s *memberAdminService) ResetPasswords(ctx context.Context, actor Actor, req dto.PasswordResetRequest) (dto.PasswordResetResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.PasswordResetResult{}, err
	}

	ids := dedupeStrings(req.IDs)

	spanCtx, span := s.tracer.Start(ctx, "member.password.reset", trace.WithAttributes(
		attribute.Int("member.count", len(ids)),
	))
	defer span.End()

	members, err := s.members.ListByIDs(spanCtx, ids)
	if err != nil {
		return dto.PasswordResetResult{}, err
	}

	byID := make(map[string]models.Member, len(members))
	for _, member := range members {
		byID[member.ID] = member
	}

	sent := make([]string, 0, len(ids))
	skipped := make([]dto.SkippedTarget, 0)
	failed := make([]dto.TargetFailure, 0)

	for _, id := range ids {
		member, ok := byID[id]
		if !ok {
			failed = append(failed, dto.TargetFailure{ID: id, Message: ErrMemberNotFound.Error()})
			continue
		}
		if member.IsBanned {
			skipped = append(skipped, dto.SkippedTarget{ID: id, Reason: "medlemmet er utestengt"})
			continue
		}
		if member.Email == nil || strings.TrimSpace(*member.Email) == "" {
			skipped = append(skipped, dto.SkippedTarget{ID: id, Reason: "medlemmet mangler e-postadresse"})
			continue
		}

		password, err := GenerateTempPassword(s.cfg.TempPasswordLength)
		if err != nil {
			failed = append(failed, dto.TargetFailure{ID: id, Message: err.Error()})
			continue
		}

		update := identity.UserUpdate{
			Password: &password,
			Metadata: map[string]any{"temporary_password": true},
		}
		if err := s.identity.UpdateUser(spanCtx, id, update); err != nil {
			failed = append(failed, dto.TargetFailure{ID: id, Message: err.Error()})
			continue
		}

		message := mailer.Message{
			To:         *member.Email,
			Subject:    s.cfg.OTPSubject,
			TemplateID: s.cfg.OTPTemplateID,
			Variables: map[string]any{
				"firstname": member.Firstname,
				"password":  password,
			},
		}
		if err := s.mail.Send(spanCtx, message); err != nil {
			// The provider password is already rotated at this point; the
			// member will have to go through another reset.
			failed = append(failed, dto.TargetFailure{ID: id, Message: err.Error()})
			continue
		}

		sent = append(sent, id)
	}

	if len(sent) > 0 {
		if err := s.members.ClearPasswordSetAt(spanCtx, sent); err != nil {
			s.logger.Error().Err(err).Msg("failed to clear password markers after reset")
		}
	}

	status := models.AuditStatusError
	switch {
	case len(sent) > 0 && len(failed) == 0 && len(skipped) == 0:
		status = models.AuditStatusOK
	case len(sent) > 0:
		status = models.AuditStatusPartial
	}

	result := dto.PasswordResetResult{Status: status, Sent: sent, Skipped: skipped, Failed: failed}

	errorMessage := ""
	if len(failed) > 0 {
		errorMessage = failed[0].Message
	}
	auditErr := s.audit.Record(spanCtx, AuditEntry{
		ActorID:      actor.ID,
		Action:       "member.password.reset",
		TargetTable:  models.MemberTable,
		TargetID:     singleTarget(ids),
		Status:       status,
		ErrorMessage: errorMessage,
		Details: map[string]any{
			"member_ids": sent,
			"skipped":    skippedList(skipped),
			"failed":     failureList(failed),
		},
	})
	if auditErr != nil && status != models.AuditStatusError {
		// The passwords are rotated and mailed but the action left no trace;
		// surface that as the primary failure.
		return result, ErrAuditWriteFailed
	}

	return result, nil
}

// recordOutcome writes the audit entry for a mutation outcome. Failures are
// logged and dropped; the mutation result stands on its own.
func (s *memberAdminService) recordOutcome(ctx context.Context, actor Actor, action, targetID, status, errorMessage string, details map[string]any) {
	if s.audit == nil {
		return
	}

	entry := AuditEntry{
		ActorID:      actor.ID,
		Action:       action,
		TargetTable:  models.MemberTable,
		TargetID:     targetID,
		Status:       status,
		ErrorMessage: errorMessage,
		Details:      details,
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn().Err(err).Str("action", action).Msg("failed to record audit entry")
	}
}

func singleTarget(ids []string) string {
	if len(ids) == 1 {
		return ids[0]
	}
	return ""
}

func failureList(failures []dto.TargetFailure) []any {
	list := make([]any, 0, len(failures))
	for _, failure := range failures {
		list = append(list, map[string]any{"id": failure.ID, "message": failure.Message})
	}
	return list
}

func skippedList(skipped []dto.SkippedTarget) []any {
	list := make([]any, 0, len(skipped))
	for _, target := range skipped {
		list = append(list, map[string]any{"id": target.ID, "reason": target.Reason})
	}
	return list
}

func memberSnapshotRows(members []models.Member) []any {
	rows := make([]any, 0, len(members))
	for _, member := range members {
		row := map[string]any{
			"id":   member.ID,
			"name": member.DisplayName(),
		}
		if member.Email != nil {
			row["email"] = *member.Email
		}
		rows = append(rows, row)
	}
	return rows
}

func dedupeStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if _, dup := seen[value]; dup {
			continue
		}
		seen[value] = struct{}{}
		result = append(result, value)
	}
	return result
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
