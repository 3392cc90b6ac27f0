package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/verksted/admin-api/internal/config"
	"github.com/verksted/admin-api/internal/database"
	"github.com/verksted/admin-api/internal/handler"
	"github.com/verksted/admin-api/internal/middleware"
	"github.com/verksted/admin-api/internal/models"
	"github.com/verksted/admin-api/internal/repository"
	"github.com/verksted/admin-api/internal/router"
	"github.com/verksted/admin-api/internal/service"
	"github.com/verksted/admin-api/pkg/identity"
	"github.com/verksted/admin-api/pkg/mailer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(&models.Member{}, &models.AuditLog{}, &models.PrintJob{}); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	natsConn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName)
	if err != nil {
		log.Fatalf("failed to connect to nats: %v", err)
	}
	if natsConn != nil {
		defer natsConn.Close()
	} else {
		logger.Warn().Msg("nats url not configured, print watchers fall back to polling")
	}

	identityClient, err := identity.New(identity.Config{
		BaseURL:    cfg.IdentityBaseURL,
		ServiceKey: cfg.IdentityServiceKey,
	}, logger)
	if err != nil {
		log.Fatalf("failed to create identity client: %v", err)
	}

	mailClient, err := mailer.New(mailer.Config{
		BaseURL: cfg.MailerBaseURL,
		APIKey:  cfg.MailerAPIKey,
		From:    cfg.MailerFrom,
	}, logger)
	if err != nil {
		log.Fatalf("failed to create mailer client: %v", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	memberRepo := repository.NewMemberRepository(db)
	auditLogRepo := repository.NewAuditLogRepository(db)
	printJobRepo := repository.NewPrintJobRepository(db)

	auditService := service.NewAuditService(auditLogRepo, memberRepo, logger)
	memberAdminService := service.NewMemberAdminService(memberRepo, identityClient, mailClient, auditService, validate, service.MemberAdminConfig{
		TempPasswordLength: cfg.TempPasswordLength,
		OTPTemplateID:      cfg.OTPTemplateID,
		OTPSubject:         cfg.OTPSubject,
	}, logger)
	printService := service.NewPrintService(printJobRepo, memberRepo, auditService, natsConn, service.PrintConfig{
		SubjectBase:  cfg.PrintSubjectBase,
		PollInterval: cfg.PrintPollInterval,
		WatchTimeout: cfg.PrintWatchTimeout,
	}, validate, logger)

	memberHandler := handler.NewAdminMemberHandler(memberAdminService, printService, logger)
	auditLogHandler := handler.NewAuditLogHandler(auditService, logger)
	printHandler := handler.NewPrintHandler(printService, cfg.PrintWorkerToken, logger)

	guard := middleware.NewGuard(memberRepo, redisClient, cfg.PrivilegeCacheTTL, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AllowOrigins: cfg.CORSAllowOrigins})
	router.Register(app, cfg, router.Dependencies{
		MemberHandler:   memberHandler,
		AuditLogHandler: auditLogHandler,
		PrintHandler:    printHandler,
		JWTMiddleware:   middleware.JWTProtected(cfg.JWTSecret),
		Guard:           guard,
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
