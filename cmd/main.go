package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"intake-service/internal/cache"
	"intake-service/internal/config"
	"intake-service/internal/events"
	"intake-service/internal/handlers"
	"intake-service/internal/metrics"
	"intake-service/internal/middleware"
	"intake-service/internal/providers"
	"intake-service/internal/scheduler"
	"intake-service/internal/services"
	"intake-service/internal/templates"
)

// Local limiters idle for this long are dropped by the sweeper
const limiterIdleTTL = 10 * time.Minute

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339Nano,
	})
	if level, err := logrus.ParseLevel(cfg.App.LogLevel); err == nil {
		logger.SetLevel(level)
	} else if cfg.IsProduction() {
		logger.SetLevel(logrus.InfoLevel)
	} else {
		logger.SetLevel(logrus.DebugLevel)
	}

	if missing := cfg.MissingIntakeSettings(); len(missing) > 0 {
		logger.WithField("missing", strings.Join(missing, ",")).
			Warn("Intake settings missing, submissions will fail until they are set")
	}

	// Optional shared store for idempotency keys and rate limits
	redisClient := initRedis(cfg, logger)
	defer func() {
		if redisClient != nil {
			redisClient.Close()
		}
	}()

	// Optional event publishing
	publisher := initNATS(cfg, logger)
	defer publisher.Close()

	registry := prometheus.DefaultRegisterer
	m := metrics.New(registry)

	mailer := initEmailProvider(cfg, logger)

	verifier := providers.NewRecaptchaVerifier(providers.RecaptchaConfig{
		SecretKey: cfg.Captcha.SecretKey,
		VerifyURL: cfg.Captcha.VerifyURL,
		Timeout:   cfg.Captcha.Timeout,
	}, logger)

	renderer, err := templates.NewRenderer(cfg.Mail.BusinessName, cfg.Mail.BookingPhone)
	if err != nil {
		logger.WithError(err).Fatal("Failed to parse email templates")
	}

	idempotency := cache.NewIdempotencyStore(redisClient, cfg.Intake.IdempotencyTTL, logger)

	opts := []services.Option{
		services.WithIdempotencyStore(idempotency),
		services.WithMetrics(m),
	}
	if publisher != nil {
		opts = append(opts, services.WithPublisher(publisher))
	}

	intakeService := services.NewIntakeService(services.IntakeConfig{
		ReceiverEmail:     cfg.Mail.ReceiverEmail,
		From:              cfg.Mail.From,
		FromName:          cfg.Mail.FromName,
		StaffFromName:     cfg.Mail.StaffFromName,
		NewsletterCaptcha: cfg.Captcha.NewsletterEnabled,
	}, verifier, mailer, renderer, logger, opts...)

	var rateLimiter *middleware.SubmissionRateLimiter
	if cfg.RateLimit.Enabled {
		rateLimiter = middleware.NewSubmissionRateLimiter(redisClient, middleware.SubmissionRateLimitConfig{
			PerMinute: cfg.RateLimit.PerMinute,
			Burst:     cfg.RateLimit.Burst,
		}, m, logger)
		logger.WithFields(logrus.Fields{
			"per_minute": cfg.RateLimit.PerMinute,
			"burst":      cfg.RateLimit.Burst,
			"shared":     redisClient != nil,
		}).Info("Submission rate limiting enabled")
	}

	sweeper := scheduler.NewSweepScheduler(cfg.Intake.SweepSchedule, logger)
	sweeper.Register("idempotency", idempotency)
	if rateLimiter != nil {
		sweeper.Register("ratelimit", scheduler.SweepFunc(func() int {
			return rateLimiter.Sweep(limiterIdleTTL)
		}))
	}
	if err := sweeper.Start(); err != nil {
		logger.WithError(err).Warn("Sweep scheduler not started")
	}

	// Interface values stay nil when the dependency is absent
	var natsCheck handlers.ConnectionChecker
	if publisher != nil {
		natsCheck = publisher
	}
	healthHandler := handlers.NewHealthHandler(cfg.App.ServiceName, redisClient, natsCheck, mailer, verifier)
	intakeHandler := handlers.NewIntakeHandler(intakeService)
	catalogHandler := handlers.NewCatalogHandler()

	router := setupRouter(cfg, logger, m, rateLimiter, healthHandler, intakeHandler, catalogHandler)

	// Start server with graceful shutdown
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.WithField("addr", addr).Info("Starting intake service")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down intake service...")

	sweeper.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Intake service stopped")
}

func initRedis(cfg *config.Config, logger *logrus.Logger) *redis.Client {
	addr := cfg.Redis.Addr()
	if addr == "" {
		logger.Info("Redis not configured, using in-memory idempotency and rate limits")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.WithError(err).Warn("Failed to connect to Redis, using in-memory fallback")
		client.Close()
		return nil
	}

	logger.WithField("addr", addr).Info("Redis connected")
	return client
}

func initNATS(cfg *config.Config, logger *logrus.Logger) *events.NATSPublisher {
	if cfg.NATS.URL == "" {
		logger.Info("NATS not configured, intake events disabled")
		return nil
	}
	publisher, err := events.Connect(cfg.NATS.URL, cfg.NATS.MaxReconnects, cfg.NATS.ReconnectWait, logger)
	if err != nil {
		logger.WithError(err).Warn("Failed to connect to NATS, intake events disabled")
		return nil
	}
	return publisher
}

// initEmailProvider builds the delivery chain.
// Order: AWS SES, then SMTP (Gmail app passwords work here), then SendGrid.
// Without EMAIL_FAILOVER_ENABLED only the first configured provider is tried.
func initEmailProvider(cfg *config.Config, logger *logrus.Logger) *providers.FailoverEmailProvider {
	var chain []providers.Provider

	if cfg.AWS.SESEnabled {
		sesProvider, err := providers.NewSESProvider(&providers.ProviderConfig{
			From:               cfg.Mail.From,
			FromName:           cfg.Mail.FromName,
			AWSRegion:          cfg.AWS.Region,
			AWSAccessKeyID:     cfg.AWS.AccessKeyID,
			AWSSecretAccessKey: cfg.AWS.SecretAccessKey,
		})
		if err != nil {
			logger.WithError(err).Warn("Failed to initialize AWS SES")
		} else {
			chain = append(chain, sesProvider)
			logger.WithField("region", cfg.AWS.Region).Info("Email provider configured: AWS SES")
		}
	}

	if cfg.Email.SMTPHost != "" && cfg.Email.SMTPPassword != "" {
		chain = append(chain, providers.NewSMTPProvider(&providers.ProviderConfig{
			From:         cfg.Mail.From,
			FromName:     cfg.Mail.FromName,
			SMTPHost:     cfg.Email.SMTPHost,
			SMTPPort:     cfg.Email.SMTPPort,
			SMTPUsername: cfg.Email.SMTPUsername,
			SMTPPassword: cfg.Email.SMTPPassword,
		}))
		logger.WithField("host", fmt.Sprintf("%s:%d", cfg.Email.SMTPHost, cfg.Email.SMTPPort)).
			Info("Email provider configured: SMTP")
	}

	if cfg.Email.SendGridAPIKey != "" {
		chain = append(chain, providers.NewSendGridProvider(&providers.ProviderConfig{
			From:           cfg.Mail.From,
			FromName:       cfg.Mail.FromName,
			SendGridAPIKey: cfg.Email.SendGridAPIKey,
		}))
		logger.Info("Email provider configured: SendGrid")
	}

	if len(chain) == 0 {
		logger.Warn("No email provider configured")
	}

	failover := providers.NewFailoverEmailProvider(chain, &providers.FailoverConfig{
		EnableFailover: cfg.Email.EnableFailover,
		MaxRetries:     cfg.Email.MaxRetries,
		RetryDelay:     cfg.Email.RetryDelay,
	}, logger)
	logger.WithFields(logrus.Fields{
		"chain":    failover.GetName(),
		"failover": cfg.Email.EnableFailover,
	}).Info("Email delivery chain initialized")

	return failover
}

// setupRouter configures the Gin router with middleware and routes
func setupRouter(
	cfg *config.Config,
	logger *logrus.Logger,
	m *metrics.Metrics,
	rateLimiter *middleware.SubmissionRateLimiter,
	healthHandler *handlers.HealthHandler,
	intakeHandler *handlers.IntakeHandler,
	catalogHandler *handlers.CatalogHandler,
) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()

	// ClientIP feeds the rate limiter and siteverify remoteip
	if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		logger.WithError(err).Fatal("Invalid trusted proxies")
	}

	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	router.Use(m.Middleware())

	// Health check endpoints
	router.GET("/health", healthHandler.Health)
	router.GET("/livez", healthHandler.Livez)
	router.GET("/readyz", healthHandler.Readyz)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	submit := []gin.HandlerFunc{}
	if rateLimiter != nil {
		submit = append(submit, rateLimiter.Middleware())
	}

	// Routes used by the website forms
	legacy := router.Group("/api", submit...)
	{
		legacy.POST("/contact", intakeHandler.SubmitAppointment)
		legacy.POST("/subscribe", intakeHandler.Subscribe)
	}

	api := router.Group("/api/v1")
	{
		intake := api.Group("/intake", submit...)
		{
			intake.POST("/appointments", intakeHandler.SubmitAppointment)
			intake.POST("/newsletter", intakeHandler.Subscribe)
		}

		catalog := api.Group("/catalog")
		{
			catalog.GET("/treatments", catalogHandler.Treatments)
			catalog.GET("/clinics", catalogHandler.Clinics)
			catalog.GET("/clinics/:id", catalogHandler.Clinic)
		}
	}

	return router
}
