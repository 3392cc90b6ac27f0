package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"

	"github.com/verksted/admin-api/internal/dto"
	"github.com/verksted/admin-api/internal/models"
	"github.com/verksted/admin-api/internal/observability"
	"github.com/verksted/admin-api/internal/repository"
)

// Deduplication window around a specific entry inside which trigger-written
// generic member.update rows are considered redundant.
const (
	dedupWindowBefore = 10 * time.Second
	dedupWindowAfter  = 2 * time.Second
)

// Actions considered specific enough to supersede the generic member.update
// rows written by the database trigger.
var specificMemberActions = map[string]struct{}{
	"member.ban":              {},
	"member.unban":            {},
	"member.delete":           {},
	"member.privilege.update": {},
	"member.password.reset":   {},
	"member.print.enqueue":    {},
}

// Detail keys scanned for member identifiers during enrichment.
var (
	memberIDDetailKeys    = []string{"member_id", "member_ids", "target_ids", "deleted_member_ids", "ids"}
	memberEmailDetailKeys = []string{"email", "emails"}
	snapshotDetailKeys    = []string{"before", "after", "members"}
)

// AuditEntry captures one administrative action outcome to be recorded.
type AuditEntry struct {
	ActorID      string
	Action       string
	TargetTable  string
	TargetID     string
	Status       string
	ErrorMessage string
	Details      map[string]any
}

// AuditRecorder records audit entries. Recording is best-effort from the
// caller's point of view: mutation handlers typically ignore the returned
// error, except password bootstrap which treats it as a primary failure.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry) error
}

// AuditService exposes recording plus the dashboard's audit log listing.
type AuditService interface {
	AuditRecorder
	List(ctx context.Context, req dto.AuditLogListRequest) (dto.AuditLogListResponse, error)
}

type auditService struct {
	repo    repository.AuditLogRepository
	members repository.MemberRepository
	logger  zerolog.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

// NewAuditService constructs the audit service.
func NewAuditService(repo repository.AuditLogRepository, members repository.MemberRepository, logger zerolog.Logger) AuditService {
	return &auditService{
		repo:    repo,
		members: members,
		logger:  logger.With().Str("component", "audit_service").Logger(),
		tracer:  otel.Tracer("github.com/verksted/admin-api/internal/service/audit"),
		now:     time.Now,
	}
}

// Record enriches member-targeted entries, inserts the row and then prunes
// redundant generic entries. Insert failure is returned to the caller; the
// deduplication pass never fails the call.
func (s *auditService) Record(ctx context.Context, entry AuditEntry) error {
	action := strings.TrimSpace(entry.Action)
	if action == "" {
		return fmt.Errorf("audit action is required")
	}

	status := entry.Status
	switch status {
	case models.AuditStatusOK, models.AuditStatusError, models.AuditStatusPartial:
	default:
		return fmt.Errorf("invalid audit status %q", status)
	}

	spanCtx, span := s.tracer.Start(ctx, "audit.record", trace.WithAttributes(
		attribute.String("audit.action", action),
		attribute.String("audit.status", status),
	))
	defer span.End()

	details := cloneDetails(entry.Details)

	var touchedIDs []string
	if entry.TargetTable == models.MemberTable {
		touchedIDs = s.enrichMemberDetails(spanCtx, entry.TargetID, details)
	}

	model := models.AuditLog{
		ActorID: entry.ActorID,
		Action:  action,
		Status:  status,
		Details: datatypes.JSONMap(details),
	}
	if entry.TargetTable != "" {
		model.TargetTable = &entry.TargetTable
	}
	if entry.TargetID != "" {
		model.TargetID = &entry.TargetID
	}
	if entry.ErrorMessage != "" {
		model.ErrorMessage = &entry.ErrorMessage
	}

	if err := s.repo.Create(spanCtx, &model); err != nil {
		span.RecordError(err)
		s.logger.Error().Err(err).Str("action", action).Msg("failed to persist audit entry")
		return err
	}

	observability.AuditEntries().WithLabelValues(action, status).Inc()

	s.dedupGenericUpdates(spanCtx, entry, touchedIDs)

	return nil
}

// dedupGenericUpdates deletes the trigger-written member.update rows made
// redundant by the specific entry just recorded. Any failure here is
// swallowed; a pruning miss only leaves noise in the log.
func (s *auditService) dedupGenericUpdates(ctx context.Context, entry AuditEntry, touchedIDs []string) {
	if entry.Status != models.AuditStatusOK {
		return
	}
	if _, ok := specificMemberActions[entry.Action]; !ok {
		return
	}
	if len(touchedIDs) == 0 {
		return
	}

	now := s.now()
	deleted, err := s.repo.DeleteGenericUpdates(
		ctx,
		entry.ActorID,
		entry.TargetTable,
		touchedIDs,
		now.Add(-dedupWindowBefore),
		now.Add(dedupWindowAfter),
	)
	if err != nil {
		s.logger.Warn().Err(err).Str("action", entry.Action).Msg("audit dedup pass failed")
		return
	}

	if deleted > 0 {
		observability.AuditDedupDeleted().Add(float64(deleted))
	}
}

func (s *auditService) List(ctx context.Context, req dto.AuditLogListRequest) (dto.AuditLogListResponse, error) {
	filter := repository.AuditLogFilter{
		Page:        req.Page,
		PageSize:    req.PageSize,
		ActorID:     strings.TrimSpace(req.ActorID),
		Action:      strings.TrimSpace(req.Action),
		TargetTable: strings.TrimSpace(req.TargetTable),
		Status:      strings.TrimSpace(req.Status),
	}

	entries, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return dto.AuditLogListResponse{}, err
	}

	responses := make([]dto.AuditLogResponse, 0, len(entries))
	for _, entry := range entries {
		responses = append(responses, dto.NewAuditLogResponse(entry))
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

	return dto.AuditLogListResponse{Items: responses, Pagination: pagination}, nil
}

// memberSnapshot is the normalized identity snapshot stored under
// details.target_members.
type memberSnapshot struct {
	ID    string  `json:"id"`
	Email *string `json:"email"`
	Name  string  `json:"name"`
}

// enrichMemberDetails resolves every plausible member identifier referenced
// by the entry and attaches normalized snapshots to details. Returns the set
// of member ids touched, used afterwards by the deduplication pass. Lookup
// failures degrade to raw-id fallbacks; enrichment never fails the record.
func (s *auditService) enrichMemberDetails(ctx context.Context, targetID string, details map[string]any) []string {
	ids, emails := collectIdentifiers(targetID, details)
	inline := collectInlineSnapshots(details)

	resolved := make(map[string]models.Member)
	emailResolved := make(map[string]models.Member)

	if members, err := s.members.ListByIDs(ctx, ids); err != nil {
		s.logger.Warn().Err(err).Msg("audit enrichment id lookup failed")
	} else {
		for _, member := range members {
			resolved[member.ID] = member
		}
	}

	if len(emails) > 0 {
		s.resolveEmails(ctx, emails, emailResolved)
	}

	snapshots := make([]memberSnapshot, 0, len(ids)+len(emails))
	touched := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))

	appendTouched := func(id string) {
		if _, dup := seen[id]; dup || id == "" {
			return
		}
		seen[id] = struct{}{}
		touched = append(touched, id)
	}

	for _, id := range ids {
		snapshot := memberSnapshot{ID: id, Name: id}
		if member, ok := resolved[id]; ok {
			snapshot = snapshotFromMember(member)
		}
		if overlay, ok := inline[id]; ok {
			snapshot = mergeSnapshots(snapshot, overlay)
		}
		snapshots = append(snapshots, snapshot)
		appendTouched(id)
	}

	for _, email := range emails {
		if member, ok := emailResolved[strings.ToLower(email)]; ok {
			if _, dup := seen[member.ID]; dup {
				continue
			}
			snapshots = append(snapshots, snapshotFromMember(member))
			appendTouched(member.ID)
			continue
		}
		emailCopy := email
		snapshots = append(snapshots, memberSnapshot{Email: &emailCopy, Name: email})
	}

	details["target_members"] = snapshotList(snapshots)
	details["target_member_count"] = len(snapshots)
	if len(snapshots) > 0 {
		details["target_member_id"] = snapshots[0].ID
		details["target_member_email"] = snapshots[0].Email
		details["target_member_name"] = snapshots[0].Name
	} else {
		details["target_member_id"] = nil
		details["target_member_email"] = nil
		details["target_member_name"] = nil
	}

	return touched
}

// resolveEmails looks up emails exactly first, then retries the unresolved
// remainder case-insensitively.
func (s *auditService) resolveEmails(ctx context.Context, emails []string, out map[string]models.Member) {
	exact, err := s.members.ListByEmails(ctx, emails)
	if err != nil {
		s.logger.Warn().Err(err).Msg("audit enrichment email lookup failed")
		return
	}
	for _, member := range exact {
		if member.Email != nil {
			out[strings.ToLower(*member.Email)] = member
		}
	}

	var unresolved []string
	for _, email := range emails {
		if _, ok := out[strings.ToLower(email)]; !ok {
			unresolved = append(unresolved, email)
		}
	}
	if len(unresolved) == 0 {
		return
	}

	folded, err := s.members.ListByEmailsFold(ctx, unresolved)
	if err != nil {
		s.logger.Warn().Err(err).Msg("audit enrichment folded email lookup failed")
		return
	}
	for _, member := range folded {
		if member.Email != nil {
			out[strings.ToLower(*member.Email)] = member
		}
	}
}

func snapshotFromMember(member models.Member) memberSnapshot {
	return memberSnapshot{
		ID:    member.ID,
		Email: member.Email,
		Name:  member.DisplayName(),
	}
}

// mergeSnapshots overlays explicit inline values on top of the looked-up
// snapshot. Inline values win only when present.
func mergeSnapshots(base, overlay memberSnapshot) memberSnapshot {
	if overlay.Email != nil && *overlay.Email != "" {
		base.Email = overlay.Email
	}
	if overlay.Name != "" && overlay.Name != overlay.ID {
		base.Name = overlay.Name
	}
	return base
}

func snapshotList(snapshots []memberSnapshot) []any {
	list := make([]any, 0, len(snapshots))
	for _, snapshot := range snapshots {
		entry := map[string]any{
			"id":   snapshot.ID,
			"name": snapshot.Name,
		}
		if snapshot.Email != nil {
			entry["email"] = *snapshot.Email
		} else {
			entry["email"] = nil
		}
		list = append(list, entry)
	}
	return list
}

// collectIdentifiers gathers member ids and emails from the target id and
// the well-known detail keys. An "@" in a value classifies it as an email.
func collectIdentifiers(targetID string, details map[string]any) (ids, emails []string) {
	idSet := make(map[string]struct{})
	emailSet := make(map[string]struct{})

	add := func(value string) {
		value = strings.TrimSpace(value)
		if value == "" {
			return
		}
		if strings.Contains(value, "@") {
			if _, dup := emailSet[value]; !dup {
				emailSet[value] = struct{}{}
				emails = append(emails, value)
			}
			return
		}
		if _, dup := idSet[value]; !dup {
			idSet[value] = struct{}{}
			ids = append(ids, value)
		}
	}

	add(targetID)

	for _, key := range memberIDDetailKeys {
		for _, value := range stringValues(details[key]) {
			add(value)
		}
	}
	for _, key := range memberEmailDetailKeys {
		for _, value := range stringValues(details[key]) {
			add(value)
		}
	}

	return ids, emails
}

// collectInlineSnapshots extracts identity snapshots already embedded in the
// details payload (pre/post rows and the like), keyed by member id.
func collectInlineSnapshots(details map[string]any) map[string]memberSnapshot {
	inline := make(map[string]memberSnapshot)

	consume := func(value any) {
		row, ok := value.(map[string]any)
		if !ok {
			return
		}
		id, _ := row["id"].(string)
		if id == "" {
			return
		}
		snapshot := memberSnapshot{ID: id, Name: id}
		if email, ok := row["email"].(string); ok && email != "" {
			snapshot.Email = &email
		}
		if name, ok := row["name"].(string); ok && name != "" {
			snapshot.Name = name
		} else {
			firstname, _ := row["firstname"].(string)
			lastname, _ := row["lastname"].(string)
			if full := strings.TrimSpace(firstname + " " + lastname); full != "" {
				snapshot.Name = full
			} else if snapshot.Email != nil {
				snapshot.Name = *snapshot.Email
			}
		}
		inline[id] = snapshot
	}

	for _, key := range snapshotDetailKeys {
		switch value := details[key].(type) {
		case map[string]any:
			consume(value)
		case []any:
			for _, item := range value {
				consume(item)
			}
		}
	}

	return inline
}

func stringValues(value any) []string {
	switch v := value.(type) {
	case string:
		return []string{v}
	case []string:
		return v
	case []any:
		values := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				values = append(values, s)
			}
		}
		return values
	default:
		return nil
	}
}

func cloneDetails(details map[string]any) map[string]any {
	clone := make(map[string]any, len(details)+4)
	for key, value := range details {
		clone[key] = value
	}
	return clone
}
