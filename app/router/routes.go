// Package router provides HTTP routing, middleware configuration, and server setup for the web application
package router

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"io"
	"log"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/compress"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/helmet"
	"github.com/gofiber/fiber/v3/middleware/limiter"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/swaggo/swag"

	"github.com/kisaan-market/kisaan/app/dto"
	"github.com/kisaan-market/kisaan/app/handlers"
	"github.com/kisaan-market/kisaan/app/middleware"
	"github.com/kisaan-market/kisaan/app/realtime"
	"github.com/kisaan-market/kisaan/config"
	"github.com/kisaan-market/kisaan/docs"
	"github.com/kisaan-market/kisaan/models"
	"github.com/kisaan-market/kisaan/utils"
)

// Router interface for HTTP routing
type Router interface {
	SetupRoutes()
	Start(address string) error
	Shutdown(timeout time.Duration) error
	GetApp() *fiber.App
}

// Handlers bundles every handler the router mounts
type Handlers struct {
	Auth    handlers.AuthHandlerInterface
	Profile handlers.ProfileHandlerInterface
	Chat    handlers.ChatHandlerInterface
	Review  handlers.ReviewHandlerInterface
	Product handlers.ProductHandlerInterface
	Admin   handlers.AdminHandlerInterface

	// Hub is closed on shutdown so chat streams return
	Hub *realtime.Hub
}

// FiberRouter implements Router using Fiber v3
type FiberRouter struct {
	app       *fiber.App
	cfg       *config.ProductionConfig
	handlers  Handlers
	auth      *middleware.AuthMiddleware
	accessLog io.Writer
}

// NewFiberRouter creates a new Fiber router. accessLog receives the JSON
// access log; nil means stdout.
func NewFiberRouter(cfg *config.ProductionConfig, h Handlers, auth *middleware.AuthMiddleware, accessLog io.Writer) Router {
	if accessLog == nil {
		accessLog = os.Stdout
	}

	app := fiber.New(fiber.Config{
		AppName:      "Kisaan API",
		ServerHeader: "Kisaan",
		ErrorHandler: errorHandler,
		BodyLimit:    cfg.Server.BodyLimit,
		ReadTimeout:  cfg.Server.ReadTimeout,
		// Chat streams are bounded by this too; EventSource clients reconnect.
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		ProxyHeader:  cfg.Server.ProxyHeader,
		TrustProxy:   len(cfg.Server.TrustedProxies) > 0,
		TrustProxyConfig: fiber.TrustProxyConfig{
			Proxies: cfg.Server.TrustedProxies,
		},
		JSONEncoder: json.Marshal,
		JSONDecoder: json.Unmarshal,
	})

	return &FiberRouter{
		app:       app,
		cfg:       cfg,
		handlers:  h,
		auth:      auth,
		accessLog: accessLog,
	}
}

// SetupRoutes configures all application routes
func (r *FiberRouter) SetupRoutes() {
	log.Println("Setting up routes...")

	r.setupMiddleware()

	api := r.app.Group("/api/v1")

	// Health check route (no rate limiting)
	api.Get("/health", r.healthCheck)

	if r.isDevelopment() {
		api.Get("/swagger.json", r.serveSwaggerJSON)
		api.Get("/docs", r.serveSwaggerUI)
		log.Println("API documentation enabled for development")
	}

	api.Use(r.rateLimiter(r.cfg.Security.GlobalRateLimit, func(c fiber.Ctx) bool {
		return c.Path() == "/api/v1/health" || strings.HasSuffix(c.Path(), "/stream")
	}))

	authn := r.auth.Authenticate()

	// Auth routes with stricter rate limiting
	auth := api.Group("/auth")
	auth.Use(r.rateLimiter(r.cfg.Security.AuthRateLimit, nil))
	auth.Post("/signup", r.handlers.Auth.Signup)
	auth.Post("/resend-otp", r.handlers.Auth.ResendOTP)
	auth.Post("/verify", r.handlers.Auth.VerifyOTP)
	auth.Get("/check-availability", r.handlers.Auth.CheckAvailability)
	auth.Post("/login", r.handlers.Auth.Login)
	auth.Post("/refresh", r.handlers.Auth.Refresh)
	auth.Post("/logout", authn, r.handlers.Auth.Logout)
	auth.Post("/password/forgot", r.handlers.Auth.ForgotPassword)
	auth.Post("/password/reset", r.handlers.Auth.ResetPassword)

	me := api.Group("/me", authn)
	me.Get("/", r.handlers.Profile.GetMe)
	me.Delete("/", r.handlers.Profile.DeleteAccount)
	me.Get("/redirect", r.handlers.Profile.Redirect)
	me.Put("/profile", r.handlers.Profile.UpdateProfile)

	// Registered ahead of the /chats group so only StreamAuthenticate runs for it.
	api.Get("/chats/:id/stream", r.auth.StreamAuthenticate(), r.handlers.Chat.Stream)

	chats := api.Group("/chats", authn)
	chats.Post("/", middleware.RequireRole(models.RoleCustomer), r.handlers.Chat.Open)
	chats.Get("/", r.handlers.Chat.List)
	chats.Get("/:id", r.handlers.Chat.Get)
	chats.Post("/:id/accept", middleware.RequireRole(models.RoleFarmer), r.handlers.Chat.Accept)
	chats.Post("/:id/reject", middleware.RequireRole(models.RoleFarmer), r.handlers.Chat.Reject)
	chats.Post("/:id/messages", r.handlers.Chat.PostMessage)

	farmers := api.Group("/farmers", authn)
	farmers.Get("/:id", r.handlers.Product.FarmerDetail)
	farmers.Post("/:id/reviews", middleware.RequireRole(models.RoleCustomer), r.handlers.Review.Submit)
	farmers.Get("/:id/reviews", r.handlers.Review.List)
	farmers.Get("/:id/rating", r.handlers.Review.Rating)

	products := api.Group("/products", authn)
	products.Post("/", middleware.RequireRole(models.RoleFarmer), r.handlers.Product.Create)
	products.Get("/", r.handlers.Product.Search)
	products.Get("/mine", middleware.RequireRole(models.RoleFarmer), r.handlers.Product.Mine)

	admin := api.Group("/admin", authn, middleware.RequireRole(models.RoleAdmin))
	admin.Post("/accounts/:id/block", r.handlers.Admin.Block)
	admin.Post("/accounts/:id/unblock", r.handlers.Admin.Unblock)
	admin.Get("/reviews/export", r.handlers.Admin.ExportReviews)

	// Not found handler
	r.app.Use(r.notFoundHandler)

	log.Println("Routes configured successfully")
}

// setupMiddleware configures global middleware
func (r *FiberRouter) setupMiddleware() {
	// Request ID middleware - must be first
	r.app.Use(requestid.New(requestid.Config{
		Header: "X-Request-ID",
		Generator: func() string {
			return generateRequestID()
		},
	}))

	r.app.Use(middleware.Metrics())

	r.app.Use(helmet.New(helmet.Config{
		XSSProtection:         "1; mode=block",
		ContentTypeNosniff:    r.cfg.Security.XContentTypeOptions,
		XFrameOptions:         r.cfg.Security.XFrameOptions,
		HSTSMaxAge:            r.cfg.Security.HSTSMaxAge,
		ContentSecurityPolicy: r.cfg.Security.CSPPolicy,
		ReferrerPolicy:        r.cfg.Security.ReferrerPolicy,
		XDNSPrefetchControl:   "off",
		XDownloadOptions:      "noopen",
		XPermittedCrossDomain: "none",
	}))

	r.app.Use(cors.New(cors.Config{
		AllowOrigins:     r.cfg.Security.AllowedOrigins,
		AllowMethods:     r.cfg.Security.AllowedMethods,
		AllowHeaders:     slices.Concat(r.cfg.Security.AllowedHeaders, []string{"X-Request-ID"}),
		ExposeHeaders:    []string{"X-Request-ID", "Retry-After", "Content-Disposition"},
		AllowCredentials: r.cfg.Security.AllowCredentials,
		MaxAge:           r.cfg.Security.CORSMaxAge,
	}))

	if r.cfg.Server.EnableCompression {
		r.app.Use(compress.New(compress.Config{
			Level: compress.LevelBestSpeed,
			Next: func(c fiber.Ctx) bool {
				return strings.HasSuffix(c.Path(), "/stream")
			},
		}))
	}

	if r.cfg.Logging.EnableAccessLog {
		r.app.Use(logger.New(logger.Config{
			Format:     `{"time":"${time}","pid":"${pid}","request_id":"${respHeader:X-Request-ID}","level":"info","method":"${method}","path":"${path}","protocol":"${protocol}","ip":"${ip}","user_agent":"${ua}","status":${status},"latency":"${latency}","bytes_in":${bytesReceived},"bytes_out":${bytesSent},"referer":"${referer}"}` + "\n",
			TimeFormat: time.RFC3339,
			TimeZone:   "UTC",
			Stream:     r.accessLog,
			Next: func(c fiber.Ctx) bool {
				return c.Path() == "/api/v1/health"
			},
		}))
	}

	// Recovery middleware with custom error handling
	r.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c fiber.Ctx, e any) {
			log.Printf(`{"time":"%s","level":"error","request_id":"%s","event":"panic","error":"%v","path":"%s","method":"%s","ip":"%s"}`,
				utils.UTCNow().Format(time.RFC3339),
				requestid.FromContext(c),
				e,
				c.Path(),
				c.Method(),
				c.IP(),
			)
		},
	}))
}

func (r *FiberRouter) rateLimiter(max int, next func(c fiber.Ctx) bool) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: r.cfg.Security.RateLimitWindow,
		KeyGenerator: func(c fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(dto.APIResponse{
				Success: false,
				Message: "Too many requests. Please try again later.",
				Error: dto.ErrorDetail{
					Code: "RATE_LIMIT_EXCEEDED",
				},
			})
		},
		Next: next,
	})
}

func (r *FiberRouter) isDevelopment() bool {
	env := r.cfg.Deployment.Environment
	return env == "development" || env == "local"
}

// Start starts the HTTP server
func (r *FiberRouter) Start(address string) error {
	log.Printf("Starting server on %s", address)
	if r.cfg.Security.TLSEnabled {
		return r.app.Listen(address, fiber.ListenConfig{
			CertFile:    r.cfg.Security.TLSCertFile,
			CertKeyFile: r.cfg.Security.TLSKeyFile,
		})
	}
	return r.app.Listen(address)
}

// Shutdown stops accepting connections and waits for in-flight requests
func (r *FiberRouter) Shutdown(timeout time.Duration) error {
	if r.handlers.Hub != nil {
		r.handlers.Hub.Close()
	}
	return r.app.ShutdownWithTimeout(timeout)
}

// GetApp returns the Fiber app instance
func (r *FiberRouter) GetApp() *fiber.App {
	return r.app
}

// Health check endpoint
func (r *FiberRouter) healthCheck(c fiber.Ctx) error {
	return c.JSON(dto.APIResponse{
		Success: true,
		Message: "Service is healthy",
		Data: fiber.Map{
			"status":    "ok",
			"timestamp": utils.UTCNow().Unix(),
			"version":   r.cfg.Deployment.Version,
			"service":   "kisaan-api",
		},
	})
}

// Serve the registered Swagger document
func (r *FiberRouter) serveSwaggerJSON(c fiber.Ctx) error {
	doc, err := swag.ReadDoc(docs.SwaggerInfo.InstanceName())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.APIResponse{
			Success: false,
			Message: "Failed to load Swagger documentation",
			Error: dto.ErrorDetail{
				Code: "SWAGGER_LOAD_ERROR",
			},
		})
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.SendString(doc)
}

// Serve Swagger UI HTML page
func (r *FiberRouter) serveSwaggerUI(c fiber.Ctx) error {
	htmlContent := `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>Kisaan API - Swagger UI</title>
    <link rel="stylesheet" type="text/css" href="https://unpkg.com/swagger-ui-dist@5.9.0/swagger-ui.css" />
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5.9.0/swagger-ui-bundle.js"></script>
    <script>
        window.onload = function() {
            SwaggerUIBundle({
                url: '/api/v1/swagger.json',
                dom_id: '#swagger-ui',
                deepLinking: true,
                validatorUrl: null
            });
        };
    </script>
</body>
</html>`

	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.SendString(htmlContent)
}

// Not found handler
func (r *FiberRouter) notFoundHandler(c fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(dto.APIResponse{
		Success: false,
		Message: "The requested resource was not found",
		Error: dto.ErrorDetail{
			Code: "NOT_FOUND",
			Details: fiber.Map{
				"path":       c.Path(),
				"method":     c.Method(),
				"request_id": requestid.FromContext(c),
			},
		},
	})
}

// Global error handler
func errorHandler(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "An internal server error occurred"
	errorCode := "INTERNAL_ERROR"

	// Retrieve the custom status code if it's a fiber.*Error
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		if code < fiber.StatusInternalServerError {
			message = e.Message
			errorCode = "REQUEST_ERROR"
		}
	}

	log.Printf(`{"level":"error","event":"unhandled_error","status":%d,"path":"%s","error":"%v"}`, code, c.Path(), err)

	return c.Status(code).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code: errorCode,
			Details: fiber.Map{
				"timestamp":  utils.UTCNow().Unix(),
				"request_id": requestid.FromContext(c),
			},
		},
	})
}

// generateRequestID creates a unique request ID
func generateRequestID() string {
	bytes := make([]byte, 8)
	_, _ = rand.Read(bytes)
	return hex.EncodeToString(bytes)
}
