// Package main provides the main entry point for the Nexus Communicator API
//
// @title Nexus Communicator API
// @version 1.0
// @description Multi-tenant WhatsApp campaign backend: contacts, campaigns, dispatch, automation and dashboard.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amirphl/nexus-communicator/app/handlers"
	"github.com/amirphl/nexus-communicator/app/middleware"
	"github.com/amirphl/nexus-communicator/app/router"
	"github.com/amirphl/nexus-communicator/app/scheduler"
	"github.com/amirphl/nexus-communicator/app/services"
	businessflow "github.com/amirphl/nexus-communicator/business_flow"
	"github.com/amirphl/nexus-communicator/config"
	"github.com/amirphl/nexus-communicator/migrations"
	"github.com/amirphl/nexus-communicator/models"
	"github.com/amirphl/nexus-communicator/repository"
	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Application represents the main application structure
type Application struct {
	router    *router.FiberRouter
	config    *config.ProductionConfig
	server    *fiber.App
	stopFuncs []func()
}

func main() {
	cfg, err := config.LoadProductionConfig()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	accessLog := config.ConfigureLogger(cfg.Logging)
	logrus.WithFields(logrus.Fields{
		"environment": cfg.Deployment.Environment,
		"version":     cfg.Deployment.Version,
		"commit":      cfg.Deployment.CommitHash,
	}).Info("Starting Nexus Communicator...")

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.Sentry.DSN,
			Environment:      cfg.Deployment.Environment,
			Release:          cfg.Deployment.Version,
			TracesSampleRate: cfg.Sentry.TracesSampleRate,
		}); err != nil {
			logrus.WithError(err).Warn("Sentry initialization failed; continuing without error reporting")
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	app, err := initializeApplication(cfg, accessLog)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize application")
	}

	app.router.SetupRoutes()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		if err := app.router.Start(address); err != nil {
			logrus.WithError(err).Fatal("Failed to start server")
		}
	}()

	<-sigChan
	logrus.Info("Shutting down gracefully...")

	// Stop background workers before the server so in-flight dispatches finish
	for _, fn := range app.stopFuncs {
		fn()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.server.ShutdownWithContext(shutdownCtx); err != nil {
		logrus.WithError(err).Error("Error during shutdown")
	}

	logrus.Info("Server stopped")
}

// initializeDatabase opens PostgreSQL with connection pooling and brings the schema up to date
func initializeDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := cfg.DSN()

	if err := migrations.Up(dsn); err != nil {
		return nil, err
	}

	slow := cfg.SlowQueryTime
	if slow <= 0 {
		slow = 200 * time.Millisecond
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger: logger.New(logrus.StandardLogger(), logger.Config{
			SlowThreshold:             slow,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Columns added to models after the last SQL migration
	if cfg.AutoMigrate {
		if err := db.AutoMigrate(models.All()...); err != nil {
			return nil, fmt.Errorf("failed to auto-migrate models: %w", err)
		}
	}

	logrus.WithFields(logrus.Fields{
		"max_open_conns": cfg.MaxOpenConns,
		"max_idle_conns": cfg.MaxIdleConns,
	}).Info("Database connection established")

	return db, nil
}

// initializeCache initializes the Redis client and verifies connectivity
func initializeCache(cfg config.CacheConfig) (*redis.Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	// Override DB if provided in config
	opt.DB = cfg.RedisDB

	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logrus.WithField("db", cfg.RedisDB).Info("Redis connection established")
	return rc, nil
}

// startCacheHealthMonitor periodically pings Redis to surface connectivity
// problems. The returned function stops the monitor.
func startCacheHealthMonitor(parent context.Context, client *redis.Client, interval time.Duration) func() {
	monitorCtx, cancel := context.WithCancel(parent)
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-ticker.C:
				ctx, c := context.WithTimeout(context.Background(), 3*time.Second)
				if err := client.Ping(ctx).Err(); err != nil {
					logrus.WithError(err).Warn("Redis healthcheck failed")
				}
				c()
			}
		}
	}()
	return cancel
}

// initializeNotificationService picks SMTP when a mail host is configured
func initializeNotificationService(cfg config.EmailConfig) services.NotificationService {
	var emailProvider services.EmailProvider
	if cfg.Host == "" {
		logrus.Info("SMTP not configured; owner notifications are logged only")
		emailProvider = services.NewMockEmailProvider()
	} else {
		emailProvider = services.NewSMTPEmailProvider(cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.FromEmail, cfg.FromName)
	}
	return services.NewNotificationService(emailProvider)
}

// initializeApplication initializes the main application components
func initializeApplication(cfg *config.ProductionConfig, accessLog io.Writer) (*Application, error) {
	var stopFuncs []func()

	db, err := initializeDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}

	rc, err := initializeCache(cfg.Cache)
	if err != nil {
		return nil, err
	}

	probes := map[string]router.Probe{
		"database": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}

	var revocations services.RevocationStore
	if rc != nil {
		stopFuncs = append(stopFuncs, startCacheHealthMonitor(context.Background(), rc, cfg.Cache.HealthCheckEvery))
		revocations = services.NewRedisRevocationStore(rc)
		probes["redis"] = func(ctx context.Context) error { return rc.Ping(ctx).Err() }
	} else {
		revocations = services.NewMemoryRevocationStore()
	}

	// Repositories
	userRepo := repository.NewUserRepository(db)
	contactRepo := repository.NewContactRepository(db)
	campaignRepo := repository.NewCampaignRepository(db)
	deliveryRepo := repository.NewCampaignDeliveryRepository(db)
	mediaRepo := repository.NewMediaFileRepository(db)
	importedFileRepo := repository.NewImportedFileRepository(db)
	activityRepo := repository.NewBotActivityRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)

	// Services
	tokenService, err := services.NewTokenService(
		cfg.JWT.AccessTokenTTL,
		cfg.JWT.RefreshTokenTTL,
		cfg.JWT.Issuer,
		cfg.JWT.Audience,
		cfg.JWT.UseRSAKeys,
		cfg.JWT.PrivateKey,
		cfg.JWT.PublicKey,
		cfg.JWT.SecretKey,
		revocations,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token service: %w", err)
	}
	logrus.WithFields(logrus.Fields{"issuer": cfg.JWT.Issuer, "audience": cfg.JWT.Audience}).Info("Token service initialized")

	var captcha services.CaptchaService
	if cfg.Security.CaptchaEnabled {
		captcha = services.NewCaptchaService(rc, 2*time.Minute, 15, 300)
	}

	mediaStore := services.NewDiskMediaStore(cfg.Storage.UploadDir, cfg.Storage.MaxMediaSize)
	sender := services.NewMessageSender(cfg.WhatsApp)
	notifier := initializeNotificationService(cfg.Email)
	generator := services.NewTemplateReplyGenerator()
	fetcher := services.NewLoggingSheetFetcher()

	// Flows
	authFlow := businessflow.NewAuthFlow(userRepo, auditRepo, tokenService, captcha, cfg.Security.BcryptCost)
	profileFlow := businessflow.NewProfileFlow(userRepo, auditRepo, mediaStore, cfg.Security.BcryptCost)
	contactFlow := businessflow.NewContactFlow(contactRepo, importedFileRepo, auditRepo)
	importFlow := businessflow.NewImportFlow(contactRepo, importedFileRepo, auditRepo, fetcher, cfg.Storage.MaxImportRows)
	campaignFlow := businessflow.NewCampaignFlow(campaignRepo, contactRepo, mediaRepo, userRepo, auditRepo, mediaStore, generator, db)
	dispatchFlow := businessflow.NewDispatchFlow(campaignRepo, deliveryRepo, userRepo, auditRepo, sender, notifier, rc, cfg.Cache.DispatchLockTTL, db)
	automationFlow := businessflow.NewAutomationFlow(userRepo, activityRepo, auditRepo, generator, cfg.WhatsApp.VerifyToken)
	dashboardFlow := businessflow.NewDashboardFlow(userRepo, contactRepo, campaignRepo, activityRepo, rc, cfg.Cache.DashboardTTL)

	// Handlers
	h := router.Handlers{
		Auth: handlers.NewAuthHandler(authFlow, handlers.SessionCookieConfig{
			Secure:   cfg.Security.SessionCookieSecure,
			SameSite: cfg.Security.SessionCookieSameSite,
		}),
		Profile:    handlers.NewProfileHandler(profileFlow),
		Contact:    handlers.NewContactHandler(contactFlow, importFlow),
		Campaign:   handlers.NewCampaignHandler(campaignFlow, dispatchFlow),
		Automation: handlers.NewAutomationHandler(automationFlow, dispatchFlow),
		Dashboard:  handlers.NewDashboardHandler(dashboardFlow),
	}

	authMiddleware := middleware.NewAuthMiddleware(tokenService)
	appRouter := router.NewFiberRouter(cfg, h, authMiddleware, accessLog, probes)

	if cfg.Scheduler.Enabled {
		sched := scheduler.NewCampaignScheduler(campaignRepo, dispatchFlow, cfg.Scheduler.Interval, cfg.Scheduler.BatchSize)
		stopFuncs = append(stopFuncs, sched.Start(context.Background()))
	}

	return &Application{
		router:    appRouter,
		config:    cfg,
		server:    appRouter.GetApp(),
		stopFuncs: stopFuncs,
	}, nil
}
