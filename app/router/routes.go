// Package router provides HTTP routing, middleware configuration, and server setup for the web application
package router

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/amirphl/nexus-communicator/app/dto"
	"github.com/amirphl/nexus-communicator/app/handlers"
	"github.com/amirphl/nexus-communicator/app/middleware"
	"github.com/amirphl/nexus-communicator/config"
	_ "github.com/amirphl/nexus-communicator/docs"
	"github.com/amirphl/nexus-communicator/utils"
	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/compress"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/helmet"
	"github.com/gofiber/fiber/v3/middleware/limiter"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/swaggo/swag"
)

const healthPath = "/api/v1/health"

// Router interface for HTTP routing
type Router interface {
	SetupRoutes()
	Start(address string) error
	GetApp() *fiber.App
}

// Probe checks one backing dependency for the health endpoint
type Probe func(ctx context.Context) error

// Handlers groups the HTTP handlers mounted by the router
type Handlers struct {
	Auth       handlers.AuthHandlerInterface
	Profile    handlers.ProfileHandlerInterface
	Contact    handlers.ContactHandlerInterface
	Campaign   handlers.CampaignHandlerInterface
	Automation handlers.AutomationHandlerInterface
	Dashboard  handlers.DashboardHandlerInterface
}

// FiberRouter implements Router using Fiber v3
type FiberRouter struct {
	app            *fiber.App
	cfg            *config.ProductionConfig
	handlers       Handlers
	authMiddleware *middleware.AuthMiddleware
	accessLog      io.Writer
	probes         map[string]Probe
}

// NewFiberRouter creates a new Fiber router
func NewFiberRouter(
	cfg *config.ProductionConfig,
	h Handlers,
	authMiddleware *middleware.AuthMiddleware,
	accessLog io.Writer,
	probes map[string]Probe,
) *FiberRouter {
	bodyLimit := cfg.Server.BodyLimit
	if bodyLimit <= 0 {
		bodyLimit = 4 * 1024 * 1024
	}
	// Uploads must fit in the body limit alongside the multipart envelope
	if media := int(cfg.Storage.MaxMediaSize) + 1024*1024; cfg.Storage.MaxMediaSize > 0 && media > bodyLimit {
		bodyLimit = media
	}

	app := fiber.New(fiber.Config{
		AppName:      "Nexus Communicator API",
		ServerHeader: "Nexus-Communicator",
		ErrorHandler: errorHandler,
		BodyLimit:    bodyLimit,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		ProxyHeader:  cfg.Server.ProxyHeader,
		TrustProxy:   len(cfg.Server.TrustedProxies) > 0,
		TrustProxyConfig: fiber.TrustProxyConfig{
			Proxies: cfg.Server.TrustedProxies,
		},
	})

	if accessLog == nil {
		accessLog = logrus.StandardLogger().Out
	}

	return &FiberRouter{
		app:            app,
		cfg:            cfg,
		handlers:       h,
		authMiddleware: authMiddleware,
		accessLog:      accessLog,
		probes:         probes,
	}
}

// SetupRoutes configures all application routes
func (r *FiberRouter) SetupRoutes() {
	logrus.Info("Setting up routes...")

	r.setupMiddleware()

	if r.cfg.Metrics.Enabled {
		path := r.cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.app.Get(path, adaptor.HTTPHandler(promhttp.Handler()))
	}

	api := r.app.Group("/api/v1")

	api.Get("/health", r.healthCheck)
	api.Get("/swagger.json", r.serveSwaggerJSON)

	api.Use(r.rateLimiter(r.cfg.Security.GlobalRateLimit, func(c fiber.Ctx) bool {
		return c.Path() == healthPath
	}))

	// Public auth endpoints get the stricter limit
	auth := api.Group("/auth")
	authLimited := r.rateLimiter(r.cfg.Security.AuthRateLimit, nil)
	auth.Post("/register", authLimited, r.handlers.Auth.Register)
	auth.Post("/login", authLimited, r.handlers.Auth.Login)
	auth.Post("/refresh", authLimited, r.handlers.Auth.Refresh)
	auth.Get("/captcha", authLimited, r.handlers.Auth.Captcha)
	auth.Get("/check-session", r.handlers.Auth.CheckSession)

	// Provider webhook is authenticated by the verify token, not by JWT
	webhook := api.Group("/automation/webhook")
	webhook.Get("/whatsapp", r.handlers.Automation.VerifyWebhook)
	webhook.Post("/whatsapp", r.handlers.Automation.ReceiveWebhook)

	authenticated := r.authMiddleware.Authenticate()

	auth.Post("/logout", authenticated, r.handlers.Auth.Logout)
	auth.Get("/me", authenticated, r.handlers.Auth.Me)

	profile := api.Group("/profile", authenticated)
	profile.Get("/", r.handlers.Profile.GetProfile)
	profile.Put("/", r.handlers.Profile.UpdateProfile)
	profile.Post("/change-password", r.handlers.Profile.ChangePassword)
	profile.Get("/api-keys", r.handlers.Profile.GetAPIKeys)
	profile.Delete("/delete-account", r.handlers.Profile.DeleteAccount)

	// Fixed paths are registered ahead of the :id routes
	contacts := api.Group("/contacts", authenticated)
	contacts.Get("/", r.handlers.Contact.ListContacts)
	contacts.Post("/", r.handlers.Contact.CreateContact)
	contacts.Get("/stats", r.handlers.Contact.GetContactStats)
	contacts.Post("/bulk-delete", r.handlers.Contact.BulkDeleteContacts)
	contacts.Post("/import/csv", r.handlers.Contact.ImportCSV)
	contacts.Post("/import/excel", r.handlers.Contact.ImportExcel)
	contacts.Post("/import/sheets", r.handlers.Contact.ImportGoogleSheets)
	contacts.Post("/import/drive", r.handlers.Contact.ImportGoogleDrive)
	contacts.Get("/import/history", r.handlers.Contact.GetImportHistory)
	contacts.Get("/:id", r.handlers.Contact.GetContact)
	contacts.Put("/:id", r.handlers.Contact.UpdateContact)
	contacts.Delete("/:id", r.handlers.Contact.DeleteContact)

	campaigns := api.Group("/campaigns", authenticated)
	campaigns.Get("/", r.handlers.Campaign.ListCampaigns)
	campaigns.Post("/", r.handlers.Campaign.CreateCampaign)
	campaigns.Get("/stats", r.handlers.Campaign.GetCampaignStats)
	campaigns.Get("/:id", r.handlers.Campaign.GetCampaign)
	campaigns.Put("/:id", r.handlers.Campaign.UpdateCampaign)
	campaigns.Delete("/:id", r.handlers.Campaign.DeleteCampaign)
	campaigns.Post("/:id/send", r.handlers.Campaign.SendCampaign)
	campaigns.Post("/:id/pause", r.handlers.Campaign.PauseCampaign)
	campaigns.Post("/:id/resume", r.handlers.Campaign.ResumeCampaign)
	campaigns.Get("/:id/preview", r.handlers.Campaign.PreviewCampaign)
	campaigns.Post("/:id/media", r.handlers.Campaign.UploadMedia)
	campaigns.Delete("/:id/media/:media_id", r.handlers.Campaign.DeleteMedia)
	campaigns.Get("/:id/media/:media_id/preview", r.handlers.Campaign.MediaPreview)
	campaigns.Post("/:id/generate-message", r.handlers.Campaign.GenerateMessage)

	automation := api.Group("/automation", authenticated)
	automation.Get("/status", r.handlers.Automation.GetStatus)
	automation.Post("/toggle", r.handlers.Automation.Toggle)
	automation.Get("/knowledge-base", r.handlers.Automation.GetKnowledgeBase)
	automation.Put("/knowledge-base", r.handlers.Automation.UpdateKnowledgeBase)
	automation.Get("/activity", r.handlers.Automation.ListActivity)
	automation.Get("/activity/stats", r.handlers.Automation.GetActivityStats)
	automation.Post("/test-response", r.handlers.Automation.TestResponse)
	automation.Get("/settings", r.handlers.Automation.GetSettings)
	automation.Delete("/clear-activity", r.handlers.Automation.ClearActivity)

	dashboard := api.Group("/dashboard", authenticated)
	dashboard.Get("/stats", r.handlers.Dashboard.GetStats)
	dashboard.Get("/charts/contacts", r.handlers.Dashboard.ContactsChart)
	dashboard.Get("/charts/campaigns", r.handlers.Dashboard.CampaignsChart)
	dashboard.Get("/charts/messages", r.handlers.Dashboard.MessagesChart)
	dashboard.Get("/recent-activity", r.handlers.Dashboard.RecentActivity)
	dashboard.Get("/performance", r.handlers.Dashboard.Performance)
	dashboard.Get("/quick-actions", r.handlers.Dashboard.QuickActions)

	r.app.Use(r.notFoundHandler)

	logrus.Info("Routes configured successfully")
}

// setupMiddleware configures global middleware
func (r *FiberRouter) setupMiddleware() {
	// Request ID middleware - must be first
	r.app.Use(requestid.New(requestid.Config{
		Header:    "X-Request-ID",
		Generator: generateRequestID,
	}))

	r.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c fiber.Ctx, e any) {
			logrus.WithFields(logrus.Fields{
				"request_id": requestid.FromContext(c),
				"event":      "panic",
				"path":       c.Path(),
				"method":     c.Method(),
				"ip":         c.IP(),
			}).Errorf("panic: %v", e)
			sentry.CurrentHub().Recover(e)
		},
	}))

	r.app.Use(helmet.New(helmet.Config{
		XSSProtection:             "1; mode=block",
		ContentTypeNosniff:        "nosniff",
		XFrameOptions:             "DENY",
		HSTSMaxAge:                31536000,
		ContentSecurityPolicy:     "default-src 'self'; img-src 'self' data: https:; frame-ancestors 'none';",
		ReferrerPolicy:            "strict-origin-when-cross-origin",
		CrossOriginOpenerPolicy:   "same-origin",
		CrossOriginResourcePolicy: "cross-origin",
		XDNSPrefetchControl:       "off",
		XDownloadOptions:          "noopen",
		XPermittedCrossDomain:     "none",
	}))

	r.app.Use(cors.New(r.corsConfig()))

	if r.cfg.Server.EnableCompression {
		r.app.Use(compress.New(compress.Config{
			Level: compress.LevelBestSpeed,
			Next: func(c fiber.Ctx) bool {
				// Media previews are already compressed
				return strings.Contains(c.Path(), "/media/")
			},
		}))
	}

	if r.cfg.Logging.EnableAccessLog {
		r.app.Use(logger.New(logger.Config{
			Format:     `{"time":"${time}","request_id":"${respHeader:X-Request-ID}","level":"info","method":"${method}","path":"${path}","ip":"${ip}","status":${status},"latency":"${latency}","bytes_in":${bytesReceived},"bytes_out":${bytesSent}}` + "\n",
			TimeFormat: time.RFC3339,
			TimeZone:   "UTC",
			Stream:     r.accessLog,
			Next: func(c fiber.Ctx) bool {
				return c.Path() == healthPath
			},
		}))
	}

	if r.cfg.Metrics.Enabled {
		r.app.Use(middleware.Metrics())
	}
}

func (r *FiberRouter) corsConfig() cors.Config {
	origins := r.cfg.Security.AllowedOrigins
	wildcard := len(origins) == 0 || slices.Contains(origins, "*")
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	methods := r.cfg.Security.AllowedMethods
	if len(methods) == 0 {
		methods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"}
	}
	headers := r.cfg.Security.AllowedHeaders
	if len(headers) == 0 {
		headers = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With", "X-Request-ID"}
	}
	maxAge := r.cfg.Security.CORSMaxAge
	if maxAge <= 0 {
		maxAge = utils.CORSMaxAge
	}

	return cors.Config{
		AllowOrigins:  origins,
		AllowMethods:  methods,
		AllowHeaders:  headers,
		ExposeHeaders: []string{"X-Request-ID"},
		// Credentials cannot be combined with a wildcard origin
		AllowCredentials: r.cfg.Security.AllowCredentials && !wildcard,
		MaxAge:           maxAge,
	}
}

func (r *FiberRouter) rateLimiter(maxRequests int, next func(fiber.Ctx) bool) fiber.Handler {
	window := r.cfg.Security.RateLimitWindow
	if window <= 0 {
		window = time.Minute
	}
	if maxRequests <= 0 {
		maxRequests = 100
	}

	return limiter.New(limiter.Config{
		Max:        maxRequests,
		Expiration: window,
		KeyGenerator: func(c fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c fiber.Ctx) error {
			const message = "Too many requests. Please try again later."
			return c.Status(fiber.StatusTooManyRequests).JSON(dto.APIResponse{
				Success: false,
				Message: message,
				Error:   message,
				Code:    "RATE_LIMIT_EXCEEDED",
			})
		},
		Next: next,
	})
}

// Start starts the HTTP server
func (r *FiberRouter) Start(address string) error {
	logrus.Infof("Starting server on %s", address)
	return r.app.Listen(address)
}

// GetApp returns the Fiber app instance
func (r *FiberRouter) GetApp() *fiber.App {
	return r.app
}

// healthCheck reports liveness plus the state of every registered probe
// @Summary Health check
// @Tags System
// @Produce json
// @Success 200 {object} dto.APIResponse
// @Failure 503 {object} dto.APIResponse
// @Router /api/v1/health [get]
func (r *FiberRouter) healthCheck(c fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	status := fiber.StatusOK
	checks := make(fiber.Map, len(r.probes))
	for name, probe := range r.probes {
		if err := probe(ctx); err != nil {
			checks[name] = "down"
			status = fiber.StatusServiceUnavailable
			logrus.WithError(err).WithField("dependency", name).Warn("Health probe failed")
			continue
		}
		checks[name] = "up"
	}

	state := "ok"
	message := "Service is healthy"
	if status != fiber.StatusOK {
		state = "degraded"
		message = "Service is degraded"
	}

	return c.Status(status).JSON(dto.APIResponse{
		Success: status == fiber.StatusOK,
		Message: message,
		Data: fiber.Map{
			"status":      state,
			"timestamp":   utils.UTCNow().Unix(),
			"version":     r.cfg.Deployment.Version,
			"environment": r.cfg.Deployment.Environment,
			"service":     "nexus-communicator-api",
			"checks":      checks,
		},
	})
}

// serveSwaggerJSON serves the registered OpenAPI document
func (r *FiberRouter) serveSwaggerJSON(c fiber.Ctx) error {
	doc, err := swag.ReadDoc()
	if err != nil {
		const message = "Failed to load Swagger documentation"
		return c.Status(fiber.StatusInternalServerError).JSON(dto.APIResponse{
			Success: false,
			Message: message,
			Error:   message,
			Code:    "SWAGGER_LOAD_ERROR",
		})
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.SendString(doc)
}

func (r *FiberRouter) notFoundHandler(c fiber.Ctx) error {
	const message = "The requested resource was not found"
	return c.Status(fiber.StatusNotFound).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error:   message,
		Code:    "NOT_FOUND",
		Details: fiber.Map{
			"path":       c.Path(),
			"method":     c.Method(),
			"request_id": requestid.FromContext(c),
		},
	})
}

// errorHandler answers errors that escaped the handlers
func errorHandler(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "An internal server error occurred"
	errorCode := "INTERNAL_ERROR"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		if code < fiber.StatusInternalServerError {
			message = fe.Message
			errorCode = strings.ToUpper(strings.ReplaceAll(http.StatusText(code), " ", "_"))
		}
	}

	entry := logrus.WithFields(logrus.Fields{
		"status":     code,
		"path":       c.Path(),
		"method":     c.Method(),
		"request_id": requestid.FromContext(c),
	}).WithError(err)
	if code >= fiber.StatusInternalServerError {
		entry.Error("Unhandled request error")
		sentry.CaptureException(fmt.Errorf("%s %s: %w", c.Method(), c.Path(), err))
	} else {
		entry.Debug("Request rejected")
	}

	return c.Status(code).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error:   message,
		Code:    errorCode,
		Details: fiber.Map{
			"timestamp":  utils.UTCNow().Unix(),
			"request_id": requestid.FromContext(c),
		},
	})
}

// generateRequestID creates a unique request ID
func generateRequestID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%x", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}
