package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/verksted/admin-api/internal/dto"
	"github.com/verksted/admin-api/internal/models"
	"github.com/verksted/admin-api/internal/service"
	"github.com/verksted/admin-api/internal/utils"
)

// AdminMemberHandler wires the admin member endpoints.
type AdminMemberHandler struct {
	members service.MemberAdminService
	prints  service.PrintService
	logger  zerolog.Logger
}

// NewAdminMemberHandler constructs the handler.
func NewAdminMemberHandler(members service.MemberAdminService, prints service.PrintService, logger zerolog.Logger) *AdminMemberHandler {
	return &AdminMemberHandler{
		members: members,
		prints:  prints,
		logger:  logger.With().Str("component", "admin_member_handler").Logger(),
	}
}

// Register attaches member admin routes to the router group.
func (h *AdminMemberHandler) Register(router fiber.Router) {
	router.Get("", h.list)
	router.Get("/:id", h.get)
	router.Post("/ban", h.ban)
	router.Post("/delete", h.delete)
	router.Post("/privilege", h.privilege)
	router.Post("/password-reset", h.passwordReset)
	router.Post("/print-card", h.printCard)
}

func (h *AdminMemberHandler) list(c *fiber.Ctx) error {
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
		pageSize = 20
	} else if pageSize > 100 {
		pageSize = 100
	}

	req := dto.MemberListRequest{
		Page:     page,
		PageSize: pageSize,
		Search:   c.Query("search"),
		Banned:   parseQueryBool(c, "banned"),
		Active:   parseQueryBool(c, "active"),
	}

	response, err := h.members.List(c.UserContext(), req)
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to list members")
		return utils.SendError(c, fiber.StatusInternalServerError, "kunne ikke hente medlemmer")
	}

	return utils.SendData(c, response)
}

func (h *AdminMemberHandler) get(c *fiber.Ctx) error {
	member, err := h.members.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		if errors.Is(err, service.ErrMemberNotFound) {
			return utils.SendError(c, fiber.StatusNotFound, err.Error())
		}
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to fetch member")
		return utils.SendError(c, fiber.StatusInternalServerError, "kunne ikke hente medlem")
	}

	return utils.SendData(c, member)
}

func (h *AdminMemberHandler) ban(c *fiber.Ctx) error {
	var payload dto.BanRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "ugyldig forespørsel")
	}

	result, err := h.members.SetBan(c.UserContext(), actorFromContext(c), payload)
	if err != nil {
		return h.mapMutationError(c, err)
	}

	if result.Unchanged {
		return utils.SendOK(c, fiber.StatusOK, fiber.Map{
			"status":    "unchanged",
			"unchanged": true,
			"id":        result.ID,
			"banned":    result.Banned,
		})
	}

	return utils.SendOK(c, fiber.StatusOK, fiber.Map{
		"status": models.AuditStatusOK,
		"id":     result.ID,
		"banned": result.Banned,
	})
}

func (h *AdminMemberHandler) delete(c *fiber.Ctx) error {
	var payload dto.DeleteRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "ugyldig forespørsel")
	}

	result, err := h.members.Delete(c.UserContext(), actorFromContext(c), payload)
	if err != nil {
		return h.mapMutationError(c, err)
	}

	if len(result.Failed) > 0 {
		status := models.AuditStatusPartial
		if result.Deleted == 0 {
			status = models.AuditStatusError
		}
		return utils.SendErrorWith(c, fiber.StatusBadRequest, result.Failed[0].Message, fiber.Map{
			"status":             status,
			"deleted":            result.Deleted,
			"deleted_member_ids": result.DeletedID,
			"failed":             result.Failed,
		})
	}

	return utils.SendOK(c, fiber.StatusOK, fiber.Map{
		"status":             models.AuditStatusOK,
		"deleted":            result.Deleted,
		"deleted_member_ids": result.DeletedID,
	})
}

func (h *AdminMemberHandler) privilege(c *fiber.Ctx) error {
	var payload dto.PrivilegeUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "ugyldig forespørsel")
	}

	result, err := h.members.UpdatePrivilege(c.UserContext(), actorFromContext(c), payload)
	if err != nil {
		return h.mapMutationError(c, err)
	}

	status := models.AuditStatusOK
	if len(result.Updated) == 0 {
		status = "unchanged"
	}

	return utils.SendOK(c, fiber.StatusOK, fiber.Map{
		"status":    status,
		"privilege": result.Privilege,
		"updated":   result.Updated,
		"unchanged": result.Unchanged,
	})
}

func (h *AdminMemberHandler) passwordReset(c *fiber.Ctx) error {
	var payload dto.PasswordResetRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "ugyldig forespørsel")
	}

	result, err := h.members.ResetPasswords(c.UserContext(), actorFromContext(c), payload)
	if err != nil {
		if errors.Is(err, service.ErrAuditWriteFailed) {
			return utils.SendErrorWith(c, fiber.StatusInternalServerError, err.Error(), fiber.Map{
				"status":  result.Status,
				"sent":    result.Sent,
				"skipped": result.Skipped,
				"failed":  result.Failed,
			})
		}
		return h.mapMutationError(c, err)
	}

	if result.Status == models.AuditStatusError {
		return utils.SendErrorWith(c, fiber.StatusBadRequest, "ingen passord ble tilbakestilt", fiber.Map{
			"status":  result.Status,
			"sent":    result.Sent,
			"skipped": result.Skipped,
			"failed":  result.Failed,
		})
	}

	return utils.SendOK(c, fiber.StatusOK, fiber.Map{
		"status":  result.Status,
		"sent":    result.Sent,
		"skipped": result.Skipped,
		"failed":  result.Failed,
	})
}

func (h *AdminMemberHandler) printCard(c *fiber.Ctx) error {
	var payload dto.PrintEnqueueRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "ugyldig forespørsel")
	}

	result, err := h.prints.Enqueue(c.UserContext(), actorFromContext(c), payload)
	if err != nil {
		return h.mapMutationError(c, err)
	}

	if len(result.Queued) == 0 {
		return utils.SendErrorWith(c, fiber.StatusBadRequest, "ingen utskriftsjobber ble lagt i kø", fiber.Map{
			"status": models.AuditStatusError,
			"failed": result.Failed,
		})
	}

	status := models.AuditStatusOK
	if len(result.Failed) > 0 {
		status = models.AuditStatusPartial
	}

	return utils.SendOK(c, fiber.StatusOK, fiber.Map{
		"status": status,
		"queued": result.Queued,
		"failed": result.Failed,
	})
}

// mapMutationError translates service errors to status codes. Provider and
// storage error text is passed through untranslated.
func (h *AdminMemberHandler) mapMutationError(c *fiber.Ctx, err error) error {
	switch {
	case isValidationError(err):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrSelfBan),
		errors.Is(err, service.ErrSelfDelete),
		errors.Is(err, service.ErrInvalidPrivilege),
		errors.Is(err, service.ErrNoTargets):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrMemberNotFound):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrForbiddenPrivilege):
		return utils.SendError(c, fiber.StatusForbidden, err.Error())
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("admin mutation failed")
		return utils.SendError(c, fiber.StatusInternalServerError, err.Error())
	}
}
