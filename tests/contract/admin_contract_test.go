package contract_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/require"

	"github.com/verksted/admin-api/internal/dto"
	"github.com/verksted/admin-api/internal/handler"
	"github.com/verksted/admin-api/internal/middleware"
	"github.com/verksted/admin-api/internal/privilege"
	"github.com/verksted/admin-api/internal/service"
)

const memberListSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["ok", "data"],
	"properties": {
		"ok": {"const": true},
		"data": {
			"type": "object",
			"required": ["items", "pagination"],
			"properties": {
				"items": {
					"type": "array",
					"items": {
						"type": "object",
						"required": ["id", "firstname", "lastname", "email", "privilege_type", "privilege_name", "is_banned", "is_membership_active", "created_at", "updated_at"],
						"properties": {
							"id": {"type": "string", "minLength": 1},
							"firstname": {"type": "string"},
							"lastname": {"type": "string"},
							"email": {"type": ["string", "null"]},
							"privilege_type": {"type": "integer", "minimum": 0, "maximum": 5},
							"privilege_name": {"type": "string", "minLength": 1},
							"is_banned": {"type": "boolean"},
							"is_membership_active": {"type": "boolean"},
							"password_set_at": {"type": ["string", "null"]},
							"created_at": {"type": "string"},
							"updated_at": {"type": "string"}
						}
					}
				},
				"pagination": {
					"type": "object",
					"required": ["page", "page_size", "total_items", "total_pages"],
					"properties": {
						"page": {"type": "integer", "minimum": 1},
						"page_size": {"type": "integer", "minimum": 1},
						"total_items": {"type": "integer", "minimum": 0},
						"total_pages": {"type": "integer", "minimum": 0}
					}
				}
			}
		}
	}
}`

const banResponseSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["ok", "status", "id", "banned"],
	"properties": {
		"ok": {"const": true},
		"status": {"enum": ["ok", "unchanged"]},
		"id": {"type": "string", "minLength": 1},
		"banned": {"type": "boolean"}
	}
}`

const auditLogListSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["ok", "data"],
	"properties": {
		"ok": {"const": true},
		"data": {
			"type": "object",
			"required": ["items", "pagination"],
			"properties": {
				"items": {
					"type": "array",
					"items": {
						"type": "object",
						"required": ["id", "actor_id", "action", "status", "details", "created_at"],
						"properties": {
							"id": {"type": "integer", "minimum": 1},
							"actor_id": {"type": "string", "minLength": 1},
							"action": {"type": "string", "minLength": 1},
							"target_table": {"type": ["string", "null"]},
							"target_id": {"type": ["string", "null"]},
							"status": {"enum": ["ok", "partial", "error"]},
							"error_message": {"type": ["string", "null"]},
							"details": {"type": ["object", "null"]},
							"created_at": {"type": "string"}
						}
					}
				}
			}
		}
	}
}`

const printJobSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["ok", "data"],
	"properties": {
		"ok": {"const": true},
		"data": {
			"type": "object",
			"required": ["id", "ref", "ref_invoker", "completed", "error_msg", "created_at", "updated_at"],
			"properties": {
				"id": {"type": "string", "minLength": 1},
				"ref": {"type": "string", "minLength": 1},
				"ref_invoker": {"type": "string"},
				"completed": {"type": "boolean"},
				"error_msg": {"type": ["string", "null"]},
				"created_at": {"type": "string"},
				"updated_at": {"type": "string"}
			}
		}
	}
}`

func compileSchema(t *testing.T, raw string) *jsonschema.Schema {
	t.Helper()

	compiler := jsonschema.NewCompiler()
	require.NoError(t, compiler.AddResource("contract.schema.json", strings.NewReader(raw)))
	schema, err := compiler.Compile("contract.schema.json")
	require.NoError(t, err)
	return schema
}

func validateResponse(t *testing.T, schema *jsonschema.Schema, resp *http.Response) {
	t.Helper()

	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var payload interface{}
	require.NoError(t, json.Unmarshal(body, &payload))
	require.NoError(t, schema.Validate(payload))
}

type stubMemberAdminService struct {
	list   dto.MemberListResponse
	member dto.MemberResponse
	ban    dto.BanResult
}

func (s stubMemberAdminService) List(context.Context, dto.MemberListRequest) (dto.MemberListResponse, error) {
	return s.list, nil
}

func (s stubMemberAdminService) Get(context.Context, string) (dto.MemberResponse, error) {
	return s.member, nil
}

func (s stubMemberAdminService) SetBan(context.Context, service.Actor, dto.BanRequest) (dto.BanResult, error) {
	return s.ban, nil
}

func (s stubMemberAdminService) Delete(context.Context, service.Actor, dto.DeleteRequest) (dto.DeleteResult, error) {
	return dto.DeleteResult{}, nil
}

func (s stubMemberAdminService) UpdatePrivilege(context.Context, service.Actor, dto.PrivilegeUpdateRequest) (dto.PrivilegeUpdateResult, error) {
	return dto.PrivilegeUpdateResult{}, nil
}

func (s stubMemberAdminService) ResetPasswords(context.Context, service.Actor, dto.PasswordResetRequest) (dto.PasswordResetResult, error) {
	return dto.PasswordResetResult{}, nil
}

type stubAuditService struct {
	list dto.AuditLogListResponse
}

func (s stubAuditService) Record(context.Context, service.AuditEntry) error {
	return nil
}

func (s stubAuditService) List(context.Context, dto.AuditLogListRequest) (dto.AuditLogListResponse, error) {
	return s.list, nil
}

type stubPrintService struct {
	job dto.PrintJobResponse
}

func (s stubPrintService) Enqueue(context.Context, service.Actor, dto.PrintEnqueueRequest) (dto.PrintEnqueueResult, error) {
	return dto.PrintEnqueueResult{}, nil
}

func (s stubPrintService) Get(context.Context, string) (dto.PrintJobResponse, error) {
	return s.job, nil
}

func (s stubPrintService) UpdateStatus(context.Context, string, dto.PrintStatusUpdateRequest) (dto.PrintJobResponse, error) {
	return s.job, nil
}

func (s stubPrintService) Watch(context.Context, service.WatchOptions, service.WatchCallbacks) (func(), error) {
	return func() {}, nil
}

func withContractActor(c *fiber.Ctx) error {
	c.Locals("actor", middleware.GuardedActor{ID: "admin-1", Level: privilege.IT})
	return c.Next()
}

func sampleMember() dto.MemberResponse {
	email := "kari@example.org"
	now := time.Now().UTC()
	return dto.MemberResponse{
		ID:                 "m-1",
		Firstname:          "Kari",
		Lastname:           "Nordmann",
		Email:              &email,
		PrivilegeType:      int(privilege.Voluntary),
		PrivilegeName:      privilege.Voluntary.String(),
		IsBanned:           false,
		IsMembershipActive: true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

func TestMemberListContract(t *testing.T) {
	schema := compileSchema(t, memberListSchema)

	members := stubMemberAdminService{
		list: dto.MemberListResponse{
			Items:      []dto.MemberResponse{sampleMember()},
			Pagination: dto.PaginationMeta{Page: 1, PageSize: 20, TotalItems: 1, TotalPages: 1},
		},
	}
	memberHandler := handler.NewAdminMemberHandler(members, stubPrintService{}, zerolog.Nop())

	app := fiber.New()
	memberHandler.Register(app.Group("/api/v1/admin/members", withContractActor))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/members?page=1&page_size=20", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	validateResponse(t, schema, resp)
}

func TestMemberBanContract(t *testing.T) {
	schema := compileSchema(t, banResponseSchema)

	members := stubMemberAdminService{ban: dto.BanResult{ID: "m-1", Banned: true}}
	memberHandler := handler.NewAdminMemberHandler(members, stubPrintService{}, zerolog.Nop())

	app := fiber.New()
	memberHandler.Register(app.Group("/api/v1/admin/members", withContractActor))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/members/ban", strings.NewReader(`{"id":"m-1","banned":true,"reason":"rutinekontroll"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	validateResponse(t, schema, resp)
}

func TestAuditLogListContract(t *testing.T) {
	schema := compileSchema(t, auditLogListSchema)

	table := "members"
	target := "m-1"
	audit := stubAuditService{
		list: dto.AuditLogListResponse{
			Items: []dto.AuditLogResponse{
				{
					ID:          1,
					ActorID:     "admin-1",
					Action:      "member.ban",
					TargetTable: &table,
					TargetID:    &target,
					Status:      "ok",
					Details: map[string]any{
						"reason":         "rutinekontroll",
						"target_members": []any{map[string]any{"ID": "m-1", "Email": "kari@example.org", "Name": "Kari Nordmann"}},
					},
					CreatedAt: time.Now().UTC(),
				},
			},
			Pagination: dto.PaginationMeta{Page: 1, PageSize: 50, TotalItems: 1, TotalPages: 1},
		},
	}
	auditHandler := handler.NewAuditLogHandler(audit, zerolog.Nop())

	app := fiber.New()
	auditHandler.Register(app.Group("/api/v1/admin/audit-log", withContractActor))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/audit-log", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	validateResponse(t, schema, resp)
}

func TestPrintJobContract(t *testing.T) {
	schema := compileSchema(t, printJobSchema)

	now := time.Now().UTC()
	prints := stubPrintService{
		job: dto.PrintJobResponse{
			ID:         "job-1",
			Ref:        "m-1",
			RefInvoker: "admin-1",
			Completed:  false,
			CreatedAt:  now,
			UpdatedAt:  now,
		},
	}
	printHandler := handler.NewPrintHandler(prints, "worker-token", zerolog.Nop())

	app := fiber.New()
	printHandler.Register(app.Group("/api/v1/admin/print-jobs", withContractActor))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/print-jobs/job-1", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	validateResponse(t, schema, resp)
}
