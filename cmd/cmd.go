package cmd

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"meetmap-backend/internal/config"
	"meetmap-backend/internal/handlers"
	"meetmap-backend/internal/models"
	"meetmap-backend/internal/ratelimit"
	"meetmap-backend/internal/repository"
	"meetmap-backend/internal/services"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func Run() {
	// Load configuration
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Setup logger
	setupLogger(cfg.Log.Level)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Open the document store
	store, err := repository.Open(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open document store")
	}
	gw := repository.NewGateway(store)
	defer gw.Close()
	if _, err := gw.Read(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to read document store")
	}
	log.Info().Str("driver", cfg.Storage.Driver).Msg("Document store ready")

	// Object storage is optional: without a bucket uploads and backups are off
	var s3Client *s3.Client
	if cfg.AWS.S3Bucket != "" {
		s3Client, err = services.NewS3Client(ctx, cfg.AWS)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create S3 client")
		}
	}

	pusher, err := services.NewPusher(cfg.APNs)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create push client")
	}

	// Initialize services
	sessions := services.NewSessionManager(gw, cfg.Session.InactivityTimeout)
	notificationService := services.NewNotificationService(gw, pusher)
	authService := services.NewAuthService(gw, sessions, cfg.Auth.BcryptCost)
	userService := services.NewUserService(gw, notificationService)
	eventService := services.NewEventService(gw, notificationService)
	expenseService := services.NewExpenseService(gw)
	postService := services.NewPostService(gw)
	searchService := services.NewSearchService(gw)
	hub := services.NewChatHub()
	sessions.OnRevoke(func(userID models.ID) { hub.DisconnectUser(userID) })
	chatService := services.NewChatService(gw, hub)
	secret := cfg.JWT.Secret
	if secret == "" {
		// tickets signed with a throwaway key do not survive restarts, which
		// only costs clients a reconnect
		secret = randomSecret()
		log.Warn().Msg("No JWT secret configured, using a random one")
	}
	tickets := services.NewTicketIssuer(secret, cfg.JWT.TicketTTL)

	var mediaService *services.MediaService
	if s3Client != nil {
		mediaService = services.NewMediaService(gw, s3.NewPresignClient(s3Client), cfg.AWS)
	} else {
		mediaService = services.NewMediaService(gw, nil, cfg.AWS)
	}

	limiter := ratelimit.New()

	// Background jobs
	go sessions.RunSweeper(ctx, cfg.Session.SweepInterval)
	go limiter.RunSweeper(ctx, cfg.RateLimit.SweepInterval)
	if cfg.Backup.Enabled {
		if s3Client == nil {
			log.Warn().Msg("Backups enabled without an S3 bucket, skipping")
		} else {
			backups := services.NewBackupService(gw, s3Client, cfg.AWS.S3Bucket, cfg.Backup.Keep)
			go backups.RunPeriodic(ctx, cfg.Backup.Interval)
		}
	}

	// Setup router
	router := &handlers.Router{
		Auth:          handlers.NewAuthHandler(authService),
		Users:         handlers.NewUserHandler(userService),
		Events:        handlers.NewEventHandler(eventService),
		Expenses:      handlers.NewExpenseHandler(expenseService),
		Chat:          handlers.NewChatHandler(chatService, tickets),
		WebSocket:     handlers.NewWebSocketHandler(hub, chatService, tickets, sessions, limiter, cfg.RateLimit),
		Posts:         handlers.NewPostHandler(postService),
		Notifications: handlers.NewNotificationHandler(notificationService),
		Search:        handlers.NewSearchHandler(searchService),
		Media:         handlers.NewMediaHandler(mediaService),
		Sessions:      sessions,
		Limiter:       limiter,
		RateLimit:     cfg.RateLimit,
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("host", cfg.Server.Host).
			Int("port", cfg.Server.Port).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	stop()

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// Hijacked websocket connections are not tracked by the server
	hub.CloseAll()

	// Shutdown HTTP server
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

func randomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		log.Fatal().Err(err).Msg("Failed to generate JWT secret")
	}
	return hex.EncodeToString(b)
}

// setupLogger configures zerolog logger
func setupLogger(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
