package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/windfall/speech_portal/internal/usage"
)

// Usage store backends.
const (
	UsageBackendBolt     = "bolt"
	UsageBackendPostgres = "postgres"
)

// Archive backends.
const (
	ArchiveBackendR2  = "r2"
	ArchiveBackendGCS = "gcs"
)

// Config holds all configuration for the service.
type Config struct {
	// Server
	Host     string `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	HTTPPort int    `envconfig:"SERVER_HTTP_PORT" default:"8080"`

	Environment string `envconfig:"SERVER_ENV" default:"development"`

	// Timeouts
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"120s"`
	IdleTimeout     time.Duration `envconfig:"SERVER_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// Logging
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	// Azure AI Speech
	SpeechKey             string        `envconfig:"SPEECH_KEY"`
	SpeechRegion          string        `envconfig:"SPEECH_REGION"`
	SpeechTTSEndpointBase string        `envconfig:"SPEECH_TTS_ENDPOINT_BASE"`
	SpeechSTTEndpointBase string        `envconfig:"SPEECH_STT_ENDPOINT_BASE"`
	SpeechTimeout         time.Duration `envconfig:"SPEECH_TIMEOUT" default:"60s"`
	VoicesCacheTTL        time.Duration `envconfig:"VOICES_CACHE_TTL" default:"10m"`

	// OpenAI-compatible endpoint
	OpenAITTSAPIKey string `envconfig:"OPENAI_TTS_API_KEY"`

	// Monthly free-tier limits
	FreeSTTSecondsLimit  int64 `envconfig:"FREE_STT_SECONDS_LIMIT" default:"18000"`
	FreeTTSCharsLimit    int64 `envconfig:"FREE_TTS_CHARS_LIMIT" default:"500000"`
	FreePronSecondsLimit int64 `envconfig:"FREE_PRON_SECONDS_LIMIT" default:"18000"`

	// Usage store
	UsageBackend string `envconfig:"USAGE_BACKEND" default:"bolt"`
	UsageDBPath  string `envconfig:"USAGE_DB_PATH" default:"data/usage.db"`

	// Database
	DatabaseURL string `envconfig:"DATABASE_URL"`

	// Auth
	APIKey        string `envconfig:"API_KEY"`
	APIKeysSecret string `envconfig:"API_KEYS_SECRET"`

	// Rate limiting
	RateLimitPerMin    int      `envconfig:"RATE_LIMIT_PER_MIN" default:"30"`
	RateLimitPerMinVIP int      `envconfig:"RATE_LIMIT_PER_MIN_VIP"`
	VIPAPIKeys         []string `envconfig:"VIP_API_KEYS"`
	RateLimitRedisURL  string   `envconfig:"RATE_LIMIT_REDIS_URL"`
	TrustedProxies     []string `envconfig:"TRUSTED_PROXIES"`

	// Audio archive
	ArchiveBackend string `envconfig:"ARCHIVE_BACKEND"`

	// Cloudflare R2
	CloudflareAccessKeyID string `envconfig:"CLOUDFLARE_ACCESS_KEY_ID"`
	CloudflareSecretKey   string `envconfig:"CLOUDFLARE_SECRET_ACCESS_KEY"`
	CloudflareR2Endpoint  string `envconfig:"CLOUDFLARE_R2_ENDPOINT"`
	CloudflarePublicURL   string `envconfig:"CLOUDFLARE_PUBLIC_URL"`
	CloudflareBucketName  string `envconfig:"CLOUDFLARE_BUCKET_NAME"`

	// Google Cloud Storage
	GCSBucket          string `envconfig:"GCS_BUCKET"`
	GCSCredentialsFile string `envconfig:"GCS_CREDENTIALS_FILE"`

	// Pub/Sub
	PubSubProjectID  string `envconfig:"PUBSUB_PROJECT_ID"`
	PubSubUsageTopic string `envconfig:"PUBSUB_USAGE_TOPIC"`

	// Metrics
	MetricsEnabled bool `envconfig:"METRICS_ENABLED" default:"true"`

	// CORS
	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	CORSAllowedMethods []string `envconfig:"CORS_ALLOWED_METHODS" default:"GET,POST,PUT,DELETE,OPTIONS"`
	CORSAllowedHeaders []string `envconfig:"CORS_ALLOWED_HEADERS" default:"Accept,Authorization,Content-Type,X-Request-ID"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the combinations envconfig cannot express.
func (c *Config) Validate() error {
	switch c.UsageBackend {
	case UsageBackendBolt:
	case UsageBackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("USAGE_BACKEND=postgres requires DATABASE_URL")
		}
	default:
		return fmt.Errorf("unknown USAGE_BACKEND %q", c.UsageBackend)
	}

	switch c.ArchiveBackend {
	case "":
	case ArchiveBackendR2:
		if c.CloudflareBucketName == "" || c.CloudflareR2Endpoint == "" {
			return fmt.Errorf("ARCHIVE_BACKEND=r2 requires CLOUDFLARE_R2_ENDPOINT and CLOUDFLARE_BUCKET_NAME")
		}
	case ArchiveBackendGCS:
		if c.GCSBucket == "" {
			return fmt.Errorf("ARCHIVE_BACKEND=gcs requires GCS_BUCKET")
		}
	default:
		return fmt.Errorf("unknown ARCHIVE_BACKEND %q", c.ArchiveBackend)
	}

	if c.RateLimitPerMin < 0 || c.RateLimitPerMinVIP < 0 {
		return fmt.Errorf("rate limits must not be negative")
	}
	return nil
}

// HTTPAddress returns the HTTP server address.
func (c *Config) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Limits returns the monthly quota limits.
func (c *Config) Limits() usage.Limits {
	return usage.Limits{
		STTSecondsLimit:  c.FreeSTTSecondsLimit,
		TTSCharsLimit:    c.FreeTTSCharsLimit,
		PronSecondsLimit: c.FreePronSecondsLimit,
	}
}

// VIPRateLimit returns the per-minute limit for the vip tier. It defaults to
// the standard limit when unset.
func (c *Config) VIPRateLimit() int {
	if c.RateLimitPerMinVIP > 0 {
		return c.RateLimitPerMinVIP
	}
	return c.RateLimitPerMin
}

// VIPTokens returns the tokens placed in the vip tier, including the admin key.
func (c *Config) VIPTokens() []string {
	tokens := make([]string, 0, len(c.VIPAPIKeys)+1)
	for _, k := range c.VIPAPIKeys {
		if k = strings.TrimSpace(k); k != "" {
			tokens = append(tokens, k)
		}
	}
	if c.APIKey != "" {
		tokens = append(tokens, c.APIKey)
	}
	return tokens
}

// SpeechConfigured reports whether vendor credentials are present.
func (c *Config) SpeechConfigured() bool {
	return c.SpeechKey != "" && (c.SpeechRegion != "" ||
		(c.SpeechTTSEndpointBase != "" && c.SpeechSTTEndpointBase != ""))
}

// AuthEnabled reports whether bearer authentication guards the API.
func (c *Config) AuthEnabled() bool {
	return c.APIKey != ""
}
