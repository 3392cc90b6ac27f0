package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/verksted/admin-api/internal/dto"
	"github.com/verksted/admin-api/internal/service"
	"github.com/verksted/admin-api/internal/utils"
)

// AuditLogHandler exposes the audit trail to the dashboard.
type AuditLogHandler struct {
	audit  service.AuditService
	logger zerolog.Logger
}

// NewAuditLogHandler constructs the handler.
func NewAuditLogHandler(audit service.AuditService, logger zerolog.Logger) *AuditLogHandler {
	return &AuditLogHandler{
		audit:  audit,
		logger: logger.With().Str("component", "audit_log_handler").Logger(),
	}
}

// Register attaches the audit log routes to the router group.
func (h *AuditLogHandler) Register(router fiber.Router) {
	router.Get("", h.list)
}

func (h *AuditLogHandler) list(c *fiber.Ctx) error {
	page, err := parseQueryInt(c, "page")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "ugyldig sidetall")
	}
	if page <= 0 {
		page = 1
	}

	pageSize, err := parseQueryInt(c, "page_size")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "ugyldig sidestørrelse")
	}
	if pageSize <= 0 {
		pageSize = 50
	} else if pageSize > 200 {
		pageSize = 200
	}

	req := dto.AuditLogListRequest{
		Page:        page,
		PageSize:    pageSize,
		ActorID:     c.Query("actor_id"),
		Action:      c.Query("action"),
		TargetTable: c.Query("target_table"),
		Status:      c.Query("status"),
	}

	response, err := h.audit.List(c.UserContext(), req)
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to list audit entries")
		return utils.SendError(c, fiber.StatusInternalServerError, "kunne ikke hente aktivitetsloggen")
	}

	return utils.SendData(c, response)
}
