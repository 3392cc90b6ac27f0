package handler

import (
	"context"
	"crypto/subtle"
	"errors"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/verksted/admin-api/internal/dto"
	"github.com/verksted/admin-api/internal/service"
	"github.com/verksted/admin-api/internal/utils"
)

// PrintHandler exposes print-queue rows, the websocket watch stream and the
// worker status webhook.
type PrintHandler struct {
	prints      service.PrintService
	workerToken string
	logger      zerolog.Logger
}

// NewPrintHandler constructs the handler.
func NewPrintHandler(prints service.PrintService, workerToken string, logger zerolog.Logger) *PrintHandler {
	return &PrintHandler{
		prints:      prints,
		workerToken: workerToken,
		logger:      logger.With().Str("component", "print_handler").Logger(),
	}
}

// Register attaches the admin-facing print routes to the router group.
func (h *PrintHandler) Register(router fiber.Router) {
	router.Get("/:id", h.get)

	router.Use("/:id/watch", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	router.Get("/:id/watch", websocket.New(h.watch))
}

// RegisterWorker attaches the status webhook the external print worker calls.
func (h *PrintHandler) RegisterWorker(router fiber.Router) {
	router.Post("/:id/status", h.updateStatus)
}

func (h *PrintHandler) get(c *fiber.Ctx) error {
	job, err := h.prints.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		if errors.Is(err, service.ErrPrintJobNotFound) {
			return utils.SendError(c, fiber.StatusNotFound, err.Error())
		}
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to fetch print job")
		return utils.SendError(c, fiber.StatusInternalServerError, "kunne ikke hente utskriftsjobben")
	}

	return utils.SendData(c, job)
}

// watch streams job observations to the dashboard until the job is terminal
// or the client disconnects. The underlying watch session has a single
// disposer and fires each terminal callback at most once.
func (h *PrintHandler) watch(conn *websocket.Conn) {
	jobID := conn.Params("id")

	var (
		writeMu sync.Mutex
		once    sync.Once
	)
	done := make(chan struct{})
	finish := func() { once.Do(func() { close(done) }) }

	writeEvent := func(eventType string, job *dto.PrintJobResponse) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.WriteJSON(dto.PrintWatchEvent{Type: eventType, Job: job}); err != nil {
			finish()
		}
	}

	dispose, err := h.prints.Watch(context.Background(), service.WatchOptions{JobID: jobID}, service.WatchCallbacks{
		OnUpdate: func(job dto.PrintJobResponse) {
			writeEvent(dto.PrintWatchUpdate, &job)
		},
		OnCompleted: func(job dto.PrintJobResponse) {
			writeEvent(dto.PrintWatchCompleted, &job)
			finish()
		},
		OnError: func(job dto.PrintJobResponse) {
			writeEvent(dto.PrintWatchError, &job)
			finish()
		},
		OnTimeout: func() {
			writeEvent(dto.PrintWatchTimeout, nil)
			finish()
		},
	})
	if err != nil {
		message := "kunne ikke følge utskriftsjobben"
		if errors.Is(err, service.ErrPrintJobNotFound) {
			message = err.Error()
		}
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, message))
		_ = conn.Close()
		return
	}
	defer dispose()

	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				finish()
				return
			}
		}
	}()

	<-done
	_ = conn.Close()
}

func (h *PrintHandler) updateStatus(c *fiber.Ctx) error {
	token := c.Get("X-Worker-Token")
	if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(h.workerToken)) != 1 {
		return utils.SendError(c, fiber.StatusUnauthorized, "ugyldig arbeider-token")
	}

	var payload dto.PrintStatusUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "ugyldig forespørsel")
	}

	job, err := h.prints.UpdateStatus(c.UserContext(), c.Params("id"), payload)
	switch {
	case err == nil:
		return utils.SendData(c, job)
	case errors.Is(err, service.ErrInvalidPrintStatus):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrPrintJobNotFound):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrPrintJobTerminal):
		return utils.SendErrorWith(c, fiber.StatusConflict, err.Error(), fiber.Map{"data": job})
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to apply print status update")
		return utils.SendError(c, fiber.StatusInternalServerError, err.Error())
	}
}
