package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/verksted/admin-api/internal/config"
	"github.com/verksted/admin-api/internal/handler"
	"github.com/verksted/admin-api/internal/middleware"
	"github.com/verksted/admin-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	MemberHandler   *handler.AdminMemberHandler
	AuditLogHandler *handler.AuditLogHandler
	PrintHandler    *handler.PrintHandler
	JWTMiddleware   fiber.Handler
	Guard           *middleware.Guard
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	// Common v1 group for health & headers
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))

	app.Get("/metrics", observability.MetricsHandler())

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	admin := api.Group("/admin", jwtMiddleware)

	if deps.MemberHandler != nil && deps.Guard != nil {
		members := admin.Group("/members",
			deps.Guard.RequireCapability(middleware.CapabilityManageMembers),
			middleware.RateLimit("admin-members", 30, time.Minute))
		deps.MemberHandler.Register(members)
	}

	if deps.AuditLogHandler != nil && deps.Guard != nil {
		auditLog := admin.Group("/audit-log",
			deps.Guard.RequireCapability(middleware.CapabilityManageMembers))
		deps.AuditLogHandler.Register(auditLog)
	}

	if deps.PrintHandler != nil && deps.Guard != nil {
		printJobs := admin.Group("/print-jobs",
			deps.Guard.RequireCapability(middleware.CapabilityManageMembers))
		deps.PrintHandler.Register(printJobs)

		// Print worker callbacks authenticate with a shared token, not JWT.
		worker := app.Group("/internal/print-jobs")
		deps.PrintHandler.RegisterWorker(worker)
	}
}
