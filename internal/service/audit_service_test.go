package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"gorm.io/gorm"

	"github.com/verksted/admin-api/internal/models"
	"github.com/verksted/admin-api/internal/repository"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

type fakeAuditLogRepo struct {
	entries   []models.AuditLog
	createErr error

	dedupCalls   int
	dedupErr     error
	dedupActor   string
	dedupTargets []string
	dedupFrom    time.Time
	dedupTo      time.Time
}

func (f *fakeAuditLogRepo) Create(ctx context.Context, entry *models.AuditLog) error {
	if f.createErr != nil {
		return f.createErr
	}
	entry.ID = uint(len(f.entries) + 1)
	f.entries = append(f.entries, *entry)
	return nil
}

func (f *fakeAuditLogRepo) List(ctx context.Context, filter repository.AuditLogFilter) ([]models.AuditLog, int64, error) {
	return f.entries, int64(len(f.entries)), nil
}

func (f *fakeAuditLogRepo) DeleteGenericUpdates(ctx context.Context, actorID, targetTable string, targetIDs []string, from, to time.Time) (int64, error) {
	f.dedupCalls++
	f.dedupActor = actorID
	f.dedupTargets = targetIDs
	f.dedupFrom = from
	f.dedupTo = to
	if f.dedupErr != nil {
		return 0, f.dedupErr
	}
	return int64(len(targetIDs)), nil
}

type fakeMemberRepo struct {
	members map[string]models.Member

	updateFieldsCalls int
	updateFieldsRows  int64
	updateFieldsErr   error
	lastUpdates       map[string]interface{}

	privilegeCalls int
	privilegeIDs   []string
	privilegeLevel int

	clearedPasswordIDs []string
}

func newFakeMemberRepo(members ...models.Member) *fakeMemberRepo {
	repo := &fakeMemberRepo{members: make(map[string]models.Member), updateFieldsRows: 1}
	for _, member := range members {
		repo.members[member.ID] = member
	}
	return repo
}

func (f *fakeMemberRepo) List(ctx context.Context, filter repository.MemberFilter) ([]models.Member, int64, error) {
	var all []models.Member
	for _, member := range f.members {
		all = append(all, member)
	}
	return all, int64(len(all)), nil
}

func (f *fakeMemberRepo) GetByID(ctx context.Context, id string) (models.Member, error) {
	member, ok := f.members[id]
	if !ok {
		return models.Member{}, gorm.ErrRecordNotFound
	}
	return member, nil
}

func (f *fakeMemberRepo) ListByIDs(ctx context.Context, ids []string) ([]models.Member, error) {
	var found []models.Member
	for _, id := range ids {
		if member, ok := f.members[id]; ok {
			found = append(found, member)
		}
	}
	return found, nil
}

func (f *fakeMemberRepo) ListByEmails(ctx context.Context, emails []string) ([]models.Member, error) {
	var found []models.Member
	for _, member := range f.members {
		if member.Email == nil {
			continue
		}
		for _, email := range emails {
			if *member.Email == email {
				found = append(found, member)
			}
		}
	}
	return found, nil
}

func (f *fakeMemberRepo) ListByEmailsFold(ctx context.Context, emails []string) ([]models.Member, error) {
	var found []models.Member
	for _, member := range f.members {
		if member.Email == nil {
			continue
		}
		for _, email := range emails {
			if strings.EqualFold(*member.Email, email) {
				found = append(found, member)
			}
		}
	}
	return found, nil
}

func (f *fakeMemberRepo) UpdateFields(ctx context.Context, id string, updates map[string]interface{}) (int64, error) {
	f.updateFieldsCalls++
	f.lastUpdates = updates
	if f.updateFieldsErr != nil {
		return 0, f.updateFieldsErr
	}
	if member, ok := f.members[id]; ok {
		if banned, set := updates["is_banned"].(bool); set {
			member.IsBanned = banned
		}
		if active, set := updates["is_membership_active"].(bool); set {
			member.IsMembershipActive = active
		}
		f.members[id] = member
	}
	return f.updateFieldsRows, nil
}

func (f *fakeMemberRepo) UpdatePrivilege(ctx context.Context, ids []string, level int) (int64, error) {
	f.privilegeCalls++
	f.privilegeIDs = ids
	f.privilegeLevel = level
	var affected int64
	for _, id := range ids {
		if member, ok := f.members[id]; ok {
			member.PrivilegeType = level
			f.members[id] = member
			affected++
		}
	}
	return affected, nil
}

func (f *fakeMemberRepo) ClearPasswordSetAt(ctx context.Context, ids []string) error {
	f.clearedPasswordIDs = ids
	return nil
}

func newAuditServiceForTest(repo *fakeAuditLogRepo, members *fakeMemberRepo, now time.Time) *auditService {
	return &auditService{
		repo:    repo,
		members: members,
		logger:  testLogger(),
		tracer:  otel.Tracer("test"),
		now:     func() time.Time { return now },
	}
}

func strPtr(s string) *string {
	return &s
}

func TestAuditServiceRecordEnrichesMemberSnapshots(t *testing.T) {
	known := models.Member{ID: "m-1", Firstname: "Kari", Lastname: "Nordmann", Email: strPtr("kari@example.org")}
	repo := &fakeAuditLogRepo{}
	members := newFakeMemberRepo(known)
	svc := newAuditServiceForTest(repo, members, time.Now())

	err := svc.Record(context.Background(), AuditEntry{
		ActorID:     "actor-1",
		Action:      "member.ban",
		TargetTable: models.MemberTable,
		TargetID:    "m-1",
		Status:      models.AuditStatusOK,
		Details:     map[string]any{"member_ids": []string{"m-1", "m-unknown"}},
	})
	require.NoError(t, err)
	require.Len(t, repo.entries, 1)

	details := map[string]any(repo.entries[0].Details)
	require.Equal(t, 2, details["target_member_count"])
	require.Equal(t, "m-1", details["target_member_id"])
	require.Equal(t, "Kari Nordmann", details["target_member_name"])

	snapshots, ok := details["target_members"].([]any)
	require.True(t, ok)
	require.Len(t, snapshots, 2)

	fallback, ok := snapshots[1].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "m-unknown", fallback["id"])
	require.Equal(t, "m-unknown", fallback["name"])
	require.Nil(t, fallback["email"])
}

func TestAuditServiceRecordResolvesEmailCaseInsensitively(t *testing.T) {
	known := models.Member{ID: "m-2", Firstname: "Ola", Email: strPtr("Ola@Example.org")}
	repo := &fakeAuditLogRepo{}
	members := newFakeMemberRepo(known)
	svc := newAuditServiceForTest(repo, members, time.Now())

	err := svc.Record(context.Background(), AuditEntry{
		ActorID:     "actor-1",
		Action:      "member.password.reset",
		TargetTable: models.MemberTable,
		Status:      models.AuditStatusOK,
		Details:     map[string]any{"email": "ola@example.org"},
	})
	require.NoError(t, err)
	require.Len(t, repo.entries, 1)

	details := map[string]any(repo.entries[0].Details)
	require.Equal(t, "m-2", details["target_member_id"])
	require.Equal(t, "Ola", details["target_member_name"])
}

func TestAuditServiceRecordInlineSnapshotWins(t *testing.T) {
	known := models.Member{ID: "m-3", Firstname: "Gammel", Lastname: "Navn", Email: strPtr("old@example.org")}
	repo := &fakeAuditLogRepo{}
	members := newFakeMemberRepo(known)
	svc := newAuditServiceForTest(repo, members, time.Now())

	err := svc.Record(context.Background(), AuditEntry{
		ActorID:     "actor-1",
		Action:      "member.delete",
		TargetTable: models.MemberTable,
		TargetID:    "m-3",
		Status:      models.AuditStatusOK,
		Details: map[string]any{
			"members": []any{
				map[string]any{"id": "m-3", "email": "ny@example.org", "name": "Nytt Navn"},
			},
		},
	})
	require.NoError(t, err)

	details := map[string]any(repo.entries[0].Details)
	require.Equal(t, "Nytt Navn", details["target_member_name"])
	snapshots := details["target_members"].([]any)
	row := snapshots[0].(map[string]any)
	require.Equal(t, "ny@example.org", row["email"])
}

func TestAuditServiceRecordDedupWindow(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	repo := &fakeAuditLogRepo{}
	members := newFakeMemberRepo(models.Member{ID: "m-4"})
	svc := newAuditServiceForTest(repo, members, now)

	err := svc.Record(context.Background(), AuditEntry{
		ActorID:     "actor-9",
		Action:      "member.ban",
		TargetTable: models.MemberTable,
		TargetID:    "m-4",
		Status:      models.AuditStatusOK,
	})
	require.NoError(t, err)
	require.Equal(t, 1, repo.dedupCalls)
	require.Equal(t, "actor-9", repo.dedupActor)
	require.Equal(t, []string{"m-4"}, repo.dedupTargets)
	require.Equal(t, now.Add(-10*time.Second), repo.dedupFrom)
	require.Equal(t, now.Add(2*time.Second), repo.dedupTo)
}

func TestAuditServiceRecordSkipsDedupForNonOKStatus(t *testing.T) {
	repo := &fakeAuditLogRepo{}
	members := newFakeMemberRepo(models.Member{ID: "m-5"})
	svc := newAuditServiceForTest(repo, members, time.Now())

	err := svc.Record(context.Background(), AuditEntry{
		ActorID:     "actor-1",
		Action:      "member.ban",
		TargetTable: models.MemberTable,
		TargetID:    "m-5",
		Status:      models.AuditStatusPartial,
	})
	require.NoError(t, err)
	require.Equal(t, 0, repo.dedupCalls)
}

func TestAuditServiceRecordSkipsDedupForUnlistedAction(t *testing.T) {
	repo := &fakeAuditLogRepo{}
	members := newFakeMemberRepo(models.Member{ID: "m-6"})
	svc := newAuditServiceForTest(repo, members, time.Now())

	err := svc.Record(context.Background(), AuditEntry{
		ActorID:     "actor-1",
		Action:      "member.viewed",
		TargetTable: models.MemberTable,
		TargetID:    "m-6",
		Status:      models.AuditStatusOK,
	})
	require.NoError(t, err)
	require.Equal(t, 0, repo.dedupCalls)
}

func TestAuditServiceRecordSwallowsDedupFailure(t *testing.T) {
	repo := &fakeAuditLogRepo{dedupErr: errors.New("boom")}
	members := newFakeMemberRepo(models.Member{ID: "m-7"})
	svc := newAuditServiceForTest(repo, members, time.Now())

	err := svc.Record(context.Background(), AuditEntry{
		ActorID:     "actor-1",
		Action:      "member.unban",
		TargetTable: models.MemberTable,
		TargetID:    "m-7",
		Status:      models.AuditStatusOK,
	})
	require.NoError(t, err)
	require.Len(t, repo.entries, 1)
}

func TestAuditServiceRecordReturnsCreateFailure(t *testing.T) {
	repo := &fakeAuditLogRepo{createErr: errors.New("insert failed")}
	svc := newAuditServiceForTest(repo, newFakeMemberRepo(), time.Now())

	err := svc.Record(context.Background(), AuditEntry{
		ActorID: "actor-1",
		Action:  "member.ban",
		Status:  models.AuditStatusOK,
	})
	require.Error(t, err)
	require.Equal(t, 0, repo.dedupCalls)
}

func TestAuditServiceRecordRejectsInvalidInput(t *testing.T) {
	repo := &fakeAuditLogRepo{}
	svc := newAuditServiceForTest(repo, newFakeMemberRepo(), time.Now())

	err := svc.Record(context.Background(), AuditEntry{ActorID: "a", Status: models.AuditStatusOK})
	require.Error(t, err)

	err = svc.Record(context.Background(), AuditEntry{ActorID: "a", Action: "member.ban", Status: "weird"})
	require.Error(t, err)
	require.Empty(t, repo.entries)
}
