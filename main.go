// Package main provides the entry point for the Kisaan marketplace API
//
//	@title						Kisaan API
//	@version					1.0
//	@description				Farmer-to-customer marketplace: email OTP signup, product search, chat and reviews.
//	@BasePath					/
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/kisaan-market/kisaan/app/handlers"
	"github.com/kisaan-market/kisaan/app/middleware"
	"github.com/kisaan-market/kisaan/app/realtime"
	"github.com/kisaan-market/kisaan/app/router"
	"github.com/kisaan-market/kisaan/app/scheduler"
	"github.com/kisaan-market/kisaan/app/services"
	businessflow "github.com/kisaan-market/kisaan/business_flow"
	"github.com/kisaan-market/kisaan/config"
	"github.com/kisaan-market/kisaan/repository"
	"github.com/kisaan-market/kisaan/utils"
)

// Application represents the main application structure
type Application struct {
	router    router.Router
	config    *config.ProductionConfig
	stopFuncs []func()
}

func main() {
	cfg, err := config.LoadProductionConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	closeLogs := initializeLogging(cfg.Logging)
	defer closeLogs()

	log.Printf("Starting Kisaan %s (%s, commit %s)", cfg.Deployment.Version, cfg.Deployment.Environment, cfg.Deployment.CommitHash)

	app, err := initializeApplication(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	app.router.SetupRoutes()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		serverErr <- app.router.Start(address)
	}()

	select {
	case <-sigChan:
		log.Println("Shutting down gracefully...")
	case err := <-serverErr:
		log.Printf("Server stopped unexpectedly: %v", err)
	}

	if err := app.router.Shutdown(cfg.Server.ShutdownTimeout); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	// Background workers stop after the server so in-flight requests can still publish.
	for i := len(app.stopFuncs) - 1; i >= 0; i-- {
		app.stopFuncs[i]()
	}

	log.Println("Server stopped")
}

// initializeLogging routes the standard logger to stdout, a rotated file, or both.
func initializeLogging(cfg config.LoggingConfig) func() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.LUTC)
	if cfg.Output == "stdout" || cfg.FilePath == "" {
		return func() {}
	}

	rotator := &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}

	var out io.Writer = rotator
	if cfg.Output == "both" {
		out = io.MultiWriter(os.Stdout, rotator)
	}
	log.SetOutput(out)
	return func() { _ = rotator.Close() }
}

// initializeDatabase initializes the database connection with connection pooling
func initializeDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.New(log.Default(), gormlogger.Config{
			SlowThreshold:             cfg.SlowQueryTime,
			LogLevel:                  gormlogger.Warn,
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

	log.Printf("Database connection established with %d max open connections, %d max idle connections",
		cfg.MaxOpenConns, cfg.MaxIdleConns)

	if cfg.AutoMigrate {
		if err := repository.Migrate(db); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		log.Println("Database schema migrated")
	}

	return db, nil
}

// initializeCache returns nil when Redis is disabled; callers fall back to
// in-process implementations.
func initializeCache(cfg config.CacheConfig) (*redis.Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opt.DB = cfg.RedisDB

	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Printf("Redis connection established to %s (db=%d)", cfg.RedisURL, cfg.RedisDB)
	return rc, nil
}

// startCacheHealthMonitor pings Redis periodically until the returned func is called.
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
					log.Printf("Redis healthcheck failed: %v", err)
				}
				c()
			}
		}
	}()
	return cancel
}

// initializeNotificationService picks the email transport. With the queue
// provider, codes are published to AMQP and a worker delivers them over SMTP.
func initializeNotificationService(cfg *config.ProductionConfig) (services.NotificationService, []func()) {
	var stops []func()
	smtp := func() services.EmailSender {
		return services.NewSMTPEmailSender(cfg.Email.Host, cfg.Email.Port, cfg.Email.Username,
			cfg.Email.Password, cfg.Email.FromEmail, cfg.Email.FromName)
	}

	var sender services.EmailSender
	switch cfg.Email.Provider {
	case "smtp":
		sender = smtp()
	case "queue":
		queue := services.NewQueueEmailSender(cfg.Queue.URL, cfg.Queue.EmailQueue, cfg.Queue.PublishTimeout)
		stops = append(stops, func() { _ = queue.Close() })
		sender = queue
		if cfg.Queue.RunWorker {
			worker := services.NewEmailQueueWorker(cfg.Queue.URL, cfg.Queue.EmailQueue, cfg.Queue.Prefetch, smtp())
			stops = append(stops, worker.Start(context.Background()))
		}
	default:
		sender = services.NewMockEmailSender()
	}

	log.Printf("Email provider: %s", cfg.Email.Provider)
	return services.NewNotificationService(sender, cfg.Email.FromName), stops
}

// initializeRealtime connects the chat hub to Redis pub/sub so every replica
// sees every message. Without Redis events stay in-process.
func initializeRealtime(cfg config.RealtimeConfig, rc *redis.Client) (*realtime.Hub, realtime.Publisher, func()) {
	hub := realtime.NewHub(cfg.SubscriberBuffer)
	if rc == nil {
		log.Println("Realtime: Redis disabled, using in-process delivery")
		return hub, realtime.NewLocalPublisher(hub), func() {}
	}
	broker := realtime.NewRedisBroker(rc, cfg.ChannelPrefix, hub)
	return hub, broker, broker.Start(context.Background())
}

// startMetricsServer exposes Prometheus metrics on their own port.
func startMetricsServer(cfg config.MetricsConfig) func() {
	if !cfg.Enabled {
		return func() {}
	}
	path := cfg.Path
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Printf("Metrics server listening on %s%s", srv.Addr, path)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Metrics server failed: %v", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

// initializeApplication initializes the main application components
func initializeApplication(cfg *config.ProductionConfig) (*Application, error) {
	var stopFuncs []func()
	clock := utils.SystemClock{}

	db, err := initializeDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}

	rc, err := initializeCache(cfg.Cache)
	if err != nil {
		return nil, err
	}
	if rc != nil {
		stopFuncs = append(stopFuncs, func() { _ = rc.Close() })
		stopFuncs = append(stopFuncs, startCacheHealthMonitor(context.Background(), rc, 30*time.Second))
	}

	// Repositories
	accountRepo := repository.NewAccountRepository(db)
	profileRepo := repository.NewProfileRepository(db)
	farmerRepo := repository.NewFarmerProfileRepository(db)
	customerRepo := repository.NewCustomerProfileRepository(db)
	codeRepo := repository.NewOneTimeCodeRepository(db)
	roomRepo := repository.NewChatRoomRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	productRepo := repository.NewProductRepository(db)
	reviewRepo := repository.NewReviewRepository(db)
	deletedRepo := repository.NewDeletedAccountRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)
	tx := repository.NewTransactor(db)

	// Services
	notificationService, notificationStops := initializeNotificationService(cfg)
	stopFuncs = append(stopFuncs, notificationStops...)

	var pendingStore services.PendingSignupStore
	var memoryStore *services.MemoryPendingSignupStore
	if rc != nil {
		pendingStore = services.NewRedisPendingSignupStore(rc, cfg.Cache.RedisPrefix)
	} else {
		memoryStore = services.NewMemoryPendingSignupStore(clock)
		pendingStore = memoryStore
		log.Println("Pending signups: Redis disabled, using in-memory store")
	}

	tokenService, err := services.NewTokenService(
		cfg.JWT.AccessTokenTTL,
		cfg.JWT.RefreshTokenTTL,
		cfg.JWT.Issuer,
		cfg.JWT.Audience,
		cfg.JWT.UseRSAKeys,
		cfg.JWT.PrivateKey,
		cfg.JWT.PublicKey,
		cfg.JWT.SecretKey,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token service: %w", err)
	}
	log.Printf("Token service initialized with issuer: %s, audience: %s", cfg.JWT.Issuer, cfg.JWT.Audience)

	hub, publisher, stopRealtime := initializeRealtime(cfg.Realtime, rc)
	stopFuncs = append(stopFuncs, stopRealtime)

	// Flows
	profileFlow := businessflow.NewProfileFlow(accountRepo, profileRepo, farmerRepo, customerRepo, deletedRepo, auditRepo, tx, clock)
	signupFlow := businessflow.NewSignupFlow(
		accountRepo, profileRepo, farmerRepo, customerRepo, codeRepo, auditRepo,
		pendingStore, notificationService, tx, clock,
		businessflow.SignupConfig{
			CodeTTL:             cfg.OTP.CodeTTL,
			PendingSignupTTL:    cfg.OTP.PendingSignupTTL,
			AllowedEmailDomains: cfg.OTP.AllowedEmailDomains,
			BcryptCost:          cfg.Security.BcryptCost,
		},
	)
	loginFlow := businessflow.NewLoginFlow(
		accountRepo, profileRepo, auditRepo, profileFlow, tokenService, notificationService,
		businessflow.LoginConfig{
			AccessTokenTTL:   cfg.JWT.AccessTokenTTL,
			PasswordResetTTL: cfg.JWT.PasswordResetTTL,
			BcryptCost:       cfg.Security.BcryptCost,
		},
		clock,
	)
	chatFlow := businessflow.NewChatFlow(
		accountRepo, profileRepo, farmerRepo, customerRepo,
		roomRepo, messageRepo, productRepo, reviewRepo, auditRepo,
		publisher, tx, clock,
	)
	reviewFlow := businessflow.NewReviewFlow(accountRepo, profileRepo, farmerRepo, customerRepo, reviewRepo, auditRepo, clock)
	productFlow := businessflow.NewProductFlow(accountRepo, profileRepo, farmerRepo, customerRepo, productRepo, reviewRepo, auditRepo, clock)

	if cfg.Admin.Email != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := profileFlow.EnsureAdmin(ctx, cfg.Admin.Email, cfg.Admin.Username, cfg.Admin.Password, cfg.Security.BcryptCost)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("failed to seed admin account: %w", err)
		}
	}

	var accessLog io.Writer = os.Stdout
	if cfg.Logging.Output != "stdout" && cfg.Logging.FilePath != "" {
		accessLog = log.Writer()
	}

	appRouter := router.NewFiberRouter(cfg, router.Handlers{
		Auth:    handlers.NewAuthHandler(signupFlow, loginFlow),
		Profile: handlers.NewProfileHandler(profileFlow, loginFlow),
		Chat:    handlers.NewChatHandler(chatFlow, hub, cfg.Realtime.HeartbeatInterval),
		Review:  handlers.NewReviewHandler(reviewFlow),
		Product: handlers.NewProductHandler(productFlow),
		Admin:   handlers.NewAdminHandler(profileFlow, reviewFlow),
		Hub:     hub,
	}, middleware.NewAuthMiddleware(tokenService), accessLog)

	if cfg.Scheduler.HousekeepingEnabled {
		var signups scheduler.SignupPurger
		if memoryStore != nil {
			signups = memoryStore
		}
		sched := scheduler.NewHousekeepingScheduler(codeRepo, signups, clock, cfg.Scheduler, cfg.Logging)
		stopFuncs = append(stopFuncs, sched.Start(context.Background()))
	}

	stopFuncs = append(stopFuncs, startMetricsServer(cfg.Metrics))

	return &Application{
		router:    appRouter,
		config:    cfg,
		stopFuncs: stopFuncs,
	}, nil
}
