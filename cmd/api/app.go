package main

import (
	"context"
	"fmt"
	"log/slog"

	"backoffice/internal/calendar"
	"backoffice/internal/concurrency"
	"backoffice/internal/config"
	"backoffice/internal/database"
	"backoffice/internal/logger"
	"backoffice/internal/model"
	"backoffice/internal/notify"
	"backoffice/internal/quickbooks"
	"backoffice/internal/repository"
	"backoffice/internal/scheduler"
	"backoffice/internal/service"
	"backoffice/internal/websocket"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// app holds every long-lived component. Wiring is Repository -> Service -> Handler.
type app struct {
	cfg *config.Config
	log *slog.Logger
	db  *gorm.DB
	hub *websocket.Hub

	redis *redis.Client

	users        service.UserService
	activity     service.ActivityService
	integrations service.IntegrationService
	accounting   service.AccountingService
	calendar     service.CalendarService
	approvals    service.ApprovalService
	clock        service.ClockService
	connections  service.DatabaseConnectionService
	payroll      service.PayrollService
	invoices     service.InvoiceService

	scheduler *scheduler.Scheduler
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := logger.Init(logger.Config{
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		ServiceName: "backoffice",
		Version:     cfg.Version,
		Environment: cfg.Environment,
	})

	db, err := database.NewConnection(cfg.DatabaseURL, !cfg.IsRelease())
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	log.Info("Connected to PostgreSQL")

	a := &app{cfg: cfg, log: log, db: db, hub: websocket.NewHub(cfg.CORSOrigins)}

	// Repositories
	txManager := repository.NewTransactionManager(db)
	userRepo := repository.NewUserRepository(db)
	integrationRepo := repository.NewIntegrationRepository(db)
	approvalRepo := repository.NewApprovalRepository(db)
	customerRepo := repository.NewCustomerRepository(db)
	itemRepo := repository.NewItemRepository(db)
	invoiceRepo := repository.NewInvoiceRepository(db)
	payrollRepo := repository.NewPayrollRepository(db)
	clockRepo := repository.NewClockRepository(db)
	connectionRepo := repository.NewDatabaseConnectionRepository(db)
	webhookRepo := repository.NewWebhookEventRepository(db)
	activityRepo := repository.NewActivityRepository(db)

	// Provider clients
	qb := quickbooks.NewClient(quickbooks.Config{
		ClientID:     cfg.QuickBooks.ClientID,
		ClientSecret: cfg.QuickBooks.ClientSecret,
		RedirectURI:  cfg.QuickBooks.RedirectURI,
		BaseURL:      cfg.QuickBooks.BaseURL,
	})
	gcal := calendar.NewClient(calendar.Config{
		ClientID:     cfg.Google.ClientID,
		ClientSecret: cfg.Google.ClientSecret,
		RedirectURI:  cfg.Google.RedirectURI,
	})
	if !qb.Configured() {
		log.Warn("QuickBooks OAuth credentials are not set; connect will fail")
	}
	if !gcal.Configured() {
		log.Warn("Google OAuth credentials are not set; calendar mirroring is disabled")
	}

	mailer := notify.New(notify.SMTPConfig{
		Host:     cfg.Mail.SMTPHost,
		Port:     cfg.Mail.SMTPPort,
		Username: cfg.Mail.SMTPUser,
		Password: cfg.Mail.SMTPPassword,
		From:     cfg.Mail.From,
	})

	// Services
	a.users = service.NewUserService(userRepo, []byte(cfg.JWTSecret))
	a.activity = service.NewActivityService(activityRepo)
	a.integrations = service.NewIntegrationService(integrationRepo, a.activity, map[string]service.OAuthProvider{
		model.ProviderQuickBooks:     qb,
		model.ProviderGoogleCalendar: gcal,
	})
	a.accounting = service.NewAccountingService(
		service.AccountingConfig{
			DefaultRealmID:  cfg.QuickBooks.CompanyID,
			WebhookVerifier: cfg.QuickBooks.WebhookVerifier,
		},
		qb, a.integrations, customerRepo, itemRepo, invoiceRepo, webhookRepo, a.activity, txManager,
	)
	a.calendar = service.NewCalendarService(gcal, a.integrations, a.activity)
	a.approvals = service.NewApprovalService(
		service.ApprovalConfig{AdminEmail: cfg.Mail.AdminEmail},
		approvalRepo, userRepo, customerRepo, invoiceRepo, payrollRepo,
		a.calendar, mailer, a.activity, txManager, a.hub,
	)
	a.clock = service.NewClockService(clockRepo, userRepo, a.calendar, a.activity, txManager, concurrency.NewLockManager(), a.hub)
	a.connections = service.NewDatabaseConnectionService(connectionRepo, service.PostgresProber{}, a.activity)
	a.payroll = service.NewPayrollService(payrollRepo)
	a.invoices = service.NewInvoiceService(invoiceRepo)

	// Scheduler
	var locker scheduler.Locker
	if cfg.Redis.Addr != "" {
		client, err := scheduler.ConnectRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password)
		if err != nil {
			return nil, err
		}
		a.redis = client
		locker = scheduler.NewRedisLocker(client, "backoffice:")
		log.Info("Sync cycles coordinated through Redis", slog.String("addr", cfg.Redis.Addr))
	}

	cycles := service.NewSyncCycles(a.integrations, a.accounting, a.calendar, a.connections, a.hub)
	a.scheduler = scheduler.New(scheduler.Config{
		Interval: cfg.Sync.Interval,
		Locker:   locker,
		Logger:   log,
	})
	a.scheduler.Register(model.ProviderQuickBooks, cycles.QuickBooks)
	a.scheduler.Register(model.ProviderGoogleCalendar, cycles.GoogleCalendar)
	a.scheduler.Register(service.SyncDatabaseConnections, cycles.DatabaseConnections)

	return a, nil
}

func (a *app) Close() {
	a.scheduler.Stop()
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
