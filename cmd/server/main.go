package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/windfall/speech_portal/internal/client"
	"github.com/windfall/speech_portal/internal/config"
	"github.com/windfall/speech_portal/internal/handler/http"
	"github.com/windfall/speech_portal/internal/logger"
	"github.com/windfall/speech_portal/internal/ratelimit"
	"github.com/windfall/speech_portal/internal/repository"
	"github.com/windfall/speech_portal/internal/server"
	"github.com/windfall/speech_portal/internal/service"
	"github.com/windfall/speech_portal/migrations"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize logger
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	log.Info().Str("env", cfg.Environment).Msg("Starting speech_portal")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Speech vendor
	speechClient := client.NewAzureSpeechClient(cfg.SpeechKey, cfg.SpeechRegion, cfg.SpeechTimeout).
		WithEndpoints(cfg.SpeechTTSEndpointBase, cfg.SpeechSTTEndpointBase)
	if !cfg.SpeechConfigured() {
		log.Warn().Msg("SPEECH_KEY/SPEECH_REGION not set, speech endpoints will answer NOT_CONFIGURED")
	}

	// Usage store and API keys
	var (
		usageRepo      repository.UsageRepository
		apiKeyRepo     repository.APIKeyRepository
		boltClient     *client.BoltClient
		postgresClient *client.PostgresClient
	)
	switch cfg.UsageBackend {
	case config.UsageBackendPostgres:
		version, err := migrations.Up(cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to run migrations")
		}
		log.Info().Uint("version", version).Msg("Database schema up to date")

		postgresClient, err = client.NewPostgresClient(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize Postgres client")
		}
		usageRepo = repository.NewPostgresUsageRepository(postgresClient)
		apiKeyRepo = repository.NewPostgresAPIKeyRepository(postgresClient)
		log.Info().Msg("Postgres usage store initialized")
	default:
		boltClient, err = client.NewBoltClient(cfg.UsageDBPath,
			repository.BucketUsageEvents,
			repository.BucketAPIKeys,
			repository.BucketAPIKeyHashes,
		)
		if err != nil {
			// The portal still serves requests; usage falls back to zeros.
			log.Error().Err(err).Str("path", cfg.UsageDBPath).Msg("Failed to open usage database")
		} else {
			usageRepo = repository.NewBoltUsageRepository(boltClient)
			apiKeyRepo = repository.NewBoltAPIKeyRepository(boltClient)
			log.Info().Str("path", cfg.UsageDBPath).Msg("Bolt usage store initialized")
		}
	}
	if apiKeyRepo == nil {
		apiKeyRepo = repository.NewMemoryAPIKeyRepository()
	}

	// Usage fan-out
	var pubsubClient *client.PubSubClient
	if cfg.PubSubProjectID != "" && cfg.PubSubUsageTopic != "" {
		pubsubClient, err = client.NewPubSubClient(ctx, cfg.PubSubProjectID, cfg.PubSubUsageTopic)
		if err != nil {
			log.Error().Err(err).Msg("Failed to initialize Pub/Sub client")
		} else {
			log.Info().Str("topic", cfg.PubSubUsageTopic).Msg("Pub/Sub usage publisher initialized")
		}
	}

	// Audio archive
	var (
		archiver      service.Archiver
		storageClient *client.StorageClient
	)
	switch cfg.ArchiveBackend {
	case config.ArchiveBackendR2:
		cloudflareClient, err := client.NewCloudflareClient(ctx,
			cfg.CloudflareAccessKeyID,
			cfg.CloudflareSecretKey,
			cfg.CloudflareR2Endpoint,
			cfg.CloudflareBucketName,
			cfg.CloudflarePublicURL,
		)
		if err != nil {
			log.Error().Err(err).Msg("Failed to initialize Cloudflare client")
		} else {
			archiver = cloudflareClient
			log.Info().Msg("Cloudflare R2 archive initialized")
		}
	case config.ArchiveBackendGCS:
		storageClient, err = client.NewStorageClient(ctx, cfg.GCSBucket, cfg.GCSCredentialsFile)
		if err != nil {
			log.Error().Err(err).Msg("Failed to initialize GCS client")
		} else {
			archiver = storageClient
			log.Info().Str("bucket", cfg.GCSBucket).Msg("GCS archive initialized")
		}
	}

	// Rate limiter
	var (
		limiter     ratelimit.Limiter = ratelimit.NewMemoryLimiter(0)
		redisClient *client.RedisClient
	)
	if cfg.RateLimitRedisURL != "" {
		redisClient, err = client.NewRedisClient(cfg.RateLimitRedisURL)
		if err != nil {
			log.Error().Err(err).Msg("Failed to initialize Redis client, using in-memory rate limiter")
		} else {
			limiter = ratelimit.NewRedisLimiter(redisClient)
			log.Info().Msg("Redis rate limiter initialized")
		}
	}

	// Initialize services
	usageService := service.NewUsageService(usageRepo, cfg.Limits(), log)
	if pubsubClient != nil {
		usageService.WithPublisher(service.NewPubSubUsagePublisher(pubsubClient))
	}
	speechService := service.NewSpeechService(speechClient, usageService, cfg.VoicesCacheTTL, log)
	if archiver != nil {
		speechService.WithArchiver(archiver)
	}
	apiKeyService, err := service.NewAPIKeyService(apiKeyRepo, cfg.APIKey, cfg.APIKeysSecret)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize API key service")
	}
	if apiKeyService.EphemeralSecret() && cfg.AuthEnabled() {
		log.Warn().Msg("API_KEYS_SECRET not set, managed API keys will stop working after a restart")
	}
	if !cfg.AuthEnabled() {
		log.Warn().Msg("API_KEY not set, authentication is disabled")
	}

	// Initialize handlers
	handlers := server.Handlers{
		Health:   http.NewHealthHandler(usageService, log),
		Speech:   http.NewSpeechHandler(log, speechService),
		Usage:    http.NewUsageHandler(log, usageService),
		APIKeys:  http.NewAPIKeyHandler(log, apiKeyService),
		Subtitle: http.NewSubtitleHandler(log),
		OpenAI:   http.NewOpenAIHandler(log, speechService),
	}
	guards := server.Guards{
		Auth:           apiKeyService,
		Limiter:        limiter,
		Policy:         ratelimit.NewPolicy(cfg.RateLimitPerMin, cfg.VIPRateLimit(), cfg.VIPTokens()),
		TrustedProxies: ratelimit.ParseTrustedProxies(cfg.TrustedProxies),
	}

	// Initialize HTTP server
	httpServer := server.NewHTTPServer(cfg, log, handlers, guards)

	// Start servers
	go func() {
		if err := httpServer.Start(); err != nil {
			log.Error().Err(err).Msg("HTTP server error")
			cancel()
		}
	}()

	log.Info().
		Str("http_addr", cfg.HTTPAddress()).
		Bool("auth", cfg.AuthEnabled()).
		Str("usage_backend", cfg.UsageBackend).
		Msg("Servers started")

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info().Msg("Shutdown signal received")
	case <-ctx.Done():
		log.Info().Msg("Context cancelled")
	}

	// Graceful shutdown
	log.Info().Msg("Shutting down servers...")
	handlers.Health.SetReady(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// Close clients
	if pubsubClient != nil {
		pubsubClient.Close()
	}
	if storageClient != nil {
		storageClient.Close()
	}
	if redisClient != nil {
		redisClient.Close()
	}
	if postgresClient != nil {
		postgresClient.Close()
	}
	if boltClient != nil {
		boltClient.Close()
	}

	log.Info().Msg("Server stopped")
}
