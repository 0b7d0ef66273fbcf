package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	// ProviderTimeout bounds a single provider call.
	ProviderTimeout = 15 * time.Second
	// MaxProviderRetries is the number of extra tries after a transient failure.
	MaxProviderRetries = 2
	// RetryInitialInterval is the first backoff delay; it doubles per retry.
	RetryInitialInterval = 1 * time.Second
	// RetryMaxInterval caps a single backoff delay.
	RetryMaxInterval = 4 * time.Second
	// HealthWindowSize is the number of recent submissions to consider for health calculation.
	HealthWindowSize = 50
	// HealthWindowDurationMinutes is the time window for health calculation.
	HealthWindowDurationMinutes = 10
	// DegradedThreshold is the health score below which a provider is considered degraded.
	DegradedThreshold = 0.5
	// CircuitBreakerThreshold is the health score below which a provider is skipped entirely.
	CircuitBreakerThreshold = 0.2
	// CircuitMinSamples is how many recent outcomes a provider needs before it can be marked degraded or open.
	CircuitMinSamples = 5
	// ServerPort is the default HTTP server port.
	ServerPort = ":8080"
	// RateLimitPerSecond and RateLimitBurst bound requests per client IP.
	RateLimitPerSecond = 5
	RateLimitBurst     = 20
)

// Config is the runtime configuration read from the environment.
type Config struct {
	Port    string
	BaseURL string

	StripeSecretKey     string
	StripeWebhookSecret string

	BumperAPIURL    string
	BumperAPIKey    string
	BumperSecretKey string

	DVLAAPIURL string
	DVLAAPIKey string

	ResendAPIKey string
	EmailFrom    string

	DatabaseURL string
	BoltPath    string

	AllowAmountOverride bool
	DemoProviders       bool
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		slog.Info("dotenv_not_loaded", "reason", err.Error())
	}

	return Config{
		Port:    GetEnv("PORT", ServerPort),
		BaseURL: GetEnv("BASE_URL", "http://localhost:8080"),

		StripeSecretKey:     GetEnv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: GetEnv("STRIPE_WEBHOOK_SECRET"),

		BumperAPIURL:    GetEnv("BUMPER_API_URL", "https://api.bumper.co/v2"),
		BumperAPIKey:    GetEnv("BUMPER_API_KEY"),
		BumperSecretKey: GetEnv("BUMPER_SECRET_KEY"),

		DVLAAPIURL: GetEnv("DVLA_API_URL", "https://driver-vehicle-licensing.api.gov.uk/vehicle-enquiry/v1/vehicles"),
		DVLAAPIKey: GetEnv("DVLA_API_KEY"),

		ResendAPIKey: GetEnv("RESEND_API_KEY"),
		EmailFrom:    GetEnv("EMAIL_FROM", "Warranty <noreply@example.com>"),

		DatabaseURL: GetEnv("DATABASE_URL"),
		BoltPath:    GetEnv("BOLT_PATH", "checkout.db"),

		AllowAmountOverride: GetBool("ALLOW_AMOUNT_OVERRIDE", false),
		DemoProviders:       GetBool("DEMO_PROVIDERS", false),
	}
}

// GetEnv returns the variable's value or the optional default when unset.
func GetEnv(key string, defaultValue ...string) string {
	value, exists := os.LookupEnv(key)
	if !exists && len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return value
}

// GetBool parses a boolean variable, falling back to def on absence or garbage.
func GetBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("config_invalid_bool", "key", key, "value", v)
		return def
	}
	return b
}
