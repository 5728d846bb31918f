package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/ksred/fexp-api/internal/auth"
	"github.com/ksred/fexp-api/internal/config"
	"github.com/ksred/fexp-api/internal/database"
	"github.com/ksred/fexp-api/internal/idempotency"
	"github.com/ksred/fexp-api/internal/listing"
	"github.com/ksred/fexp-api/internal/match"
	"github.com/ksred/fexp-api/internal/matching"
	"github.com/ksred/fexp-api/internal/outbox"
	"github.com/ksred/fexp-api/internal/users"
	"github.com/ksred/fexp-api/pkg/middleware"
	"github.com/ksred/fexp-api/pkg/response"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// setupLogging configures the application logging based on environment settings
// In development mode, it enables pretty printing with timestamps
func setupLogging(cfg *config.Config) {
	if !cfg.IsProduction() {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	if cfg.Logging.Debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
}

// handlers bundles the HTTP handlers of every component
type handlers struct {
	auth     *auth.GinHandlers
	listing  *listing.GinHandlers
	matching *matching.GinHandlers
	match    *match.GinHandlers
}

// main initializes and runs the exchange API server with graceful shutdown support
func main() {
	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to load configuration")
	}
	setupLogging(cfg)
	response.SetDevelopment(!cfg.IsProduction())

	// Initialize database
	db, err := database.NewDatabase(cfg.Database.Store())
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}
	transactor := database.NewTransactor(db, cfg.Database.TxTimeout, cfg.Database.LockTimeout)

	// Initialize services and handlers
	userService := users.NewService(db)
	authService := auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, userService)

	idempotencyStore := idempotency.NewStore(idempotency.DefaultTTL)
	listingService := listing.NewService(transactor, idempotencyStore)
	engine := matching.NewEngine(db, listingService.Store())
	coordinator := match.NewCoordinator(transactor, listingService.Store(), idempotencyStore)
	queryService := match.NewQueryService(db)

	if cfg.SeedDemo {
		if err := seedDemoData(userService, authService); err != nil {
			zlog.Fatal().Err(err).Msg("Failed to seed demo data")
		}
	}

	// Start background workers: outbox relay and rate limiter sweeps
	publisher := outbox.NewPublisher(cfg.Outbox.Brokers, cfg.Outbox.Topic)
	defer publisher.Close()
	outboxProcessor := outbox.NewProcessor(db, publisher, cfg.Outbox.Interval, cfg.Outbox.BatchSize)
	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	go outboxProcessor.Start(workerCtx)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger())

	limiter := middleware.NewRateLimiter()
	go limiter.Run(workerCtx)

	setupRoutes(router, db, authService, limiter, handlers{
		auth:     auth.NewGinHandlers(authService),
		listing:  listing.NewGinHandlers(listingService),
		matching: matching.NewGinHandlers(engine),
		match:    match.NewGinHandlers(coordinator, queryService),
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	// Graceful shutdown setup
	go func() {
		zlog.Info().Str("port", cfg.Server.Port).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// setupRoutes configures all API endpoints and their handlers:
// - Auth and health routes: public, rate limited by IP
// - Listing and match routes: protected by JWT authentication, rate limited per user
func setupRoutes(router *gin.Engine, db *gorm.DB, validator middleware.TokenValidator, limiter *middleware.RateLimiter, h handlers) {
	router.GET("/health", limiter.RateLimit(), healthHandler(db))

	v1 := router.Group("/api/v1")
	{
		// Auth routes
		authRoutes := v1.Group("/auth")
		authRoutes.Use(limiter.RateLimit())
		{
			authRoutes.POST("/token", h.auth.GenerateTokenHandler())
		}

		// Listing routes
		listings := v1.Group("/listings")
		listings.Use(middleware.JWTAuth(validator), limiter.RateLimit())
		{
			listings.POST("", h.listing.CreateListingHandler())
			listings.GET("", h.matching.FindCandidatesHandler())
			listings.GET("/:uuid", h.listing.GetListingHandler())
		}

		// Match routes
		matches := v1.Group("/matches")
		matches.Use(middleware.JWTAuth(validator), limiter.RateLimit())
		{
			matches.POST("", h.match.ProposeMatchHandler())
			matches.GET("", h.match.ListMyMatchesHandler())
			matches.GET("/:uuid", h.match.GetMatchHandler())
			matches.PUT("/:uuid/accept", h.match.AcceptMatchHandler())
			matches.PUT("/:uuid/reject", h.match.RejectMatchHandler())
			matches.PUT("/:uuid/cancel", h.match.CancelMatchHandler())
			matches.PUT("/:uuid/confirm-completion", h.match.ConfirmCompletionHandler())
		}
	}
}

func healthHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			zlog.Error().Err(err).Msg("health check failed")
			c.JSON(http.StatusServiceUnavailable, response.Response{
				Success: false,
				Error:   &response.Error{Code: response.ErrCodeInternalError, Message: "database unavailable"},
			})
			return
		}

		pending, err := outbox.NewDatabase(db.WithContext(ctx)).Pending()
		if err != nil {
			zlog.Warn().Err(err).Msg("failed to count pending match events")
		}
		response.Success(c, gin.H{"status": "ok", "outbox_pending": pending})
	}
}
