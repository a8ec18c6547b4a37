package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Env  string
	Port string

	// StorageBackend selects the session store: "memory", "redis" or "postgres".
	StorageBackend string
	DatabaseURL    string
	RedisURL       string

	// Session lifetime policy.
	SessionTTL      time.Duration // hard lifetime of a normal session
	LongTermTTL     time.Duration // hard lifetime of a "remember me" session
	AccessTTL       time.Duration // sliding window for granted accesses
	SweepInterval   time.Duration // how often the expiry sweeper runs
	NotifyTimeout   time.Duration // deadline for single-logout callbacks
	EndpointTimeout time.Duration // deadline for HTTPS endpoint credential checks

	// ServicePatterns is the comma-separated list of regular expressions
	// identifying relying parties allowed to use the authority.
	ServicePatterns []string

	// RequireSecureEndpoints rejects non-https proxy callback URLs.
	RequireSecureEndpoints bool

	// AssertionSecret signs and verifies JWT assertion credentials.
	AssertionSecret string

	SentryDSN string

	// Login throttling (pre-auth plugin) and API rate limiting.
	ThrottleRPS   float64
	ThrottleBurst int
}

// Load reads configuration from environment variables.
func Load() Config {
	return Config{
		Env:            getEnv("APP_ENV", "development"),
		Port:           getEnv("PORT", "8080"),
		StorageBackend: getEnv("STORAGE_BACKEND", "memory"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       getEnv("REDIS_URL", "redis://localhost:6379/0"),

		SessionTTL:      getEnvAsDuration("SESSION_TTL", 8*time.Hour),
		LongTermTTL:     getEnvAsDuration("LONG_TERM_TTL", 30*24*time.Hour),
		AccessTTL:       getEnvAsDuration("ACCESS_TTL", 10*time.Second),
		SweepInterval:   getEnvAsDuration("SWEEP_INTERVAL", time.Minute),
		NotifyTimeout:   getEnvAsDuration("NOTIFY_TIMEOUT", 5*time.Second),
		EndpointTimeout: getEnvAsDuration("ENDPOINT_TIMEOUT", 5*time.Second),

		ServicePatterns: getEnvAsList("SERVICE_PATTERNS"),

		RequireSecureEndpoints: getEnvAsBool("REQUIRE_SECURE_ENDPOINTS", true),
		AssertionSecret:        os.Getenv("ASSERTION_SECRET"),
		SentryDSN:              os.Getenv("SENTRY_DSN"),

		ThrottleRPS:   getEnvAsFloat("THROTTLE_RPS", 2),
		ThrottleBurst: getEnvAsInt("THROTTLE_BURST", 5),
	}
}

func getEnv(name, defaultVal string) string {
	if val := os.Getenv(name); val != "" {
		return val
	}
	return defaultVal
}

// Helper to read boolean env vars
func getEnvAsBool(name string, defaultVal bool) bool {
	valStr := os.Getenv(name)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseBool(valStr)
	if err != nil {
		return defaultVal
	}
	return val
}

func getEnvAsInt(name string, defaultVal int) int {
	valStr := os.Getenv(name)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		return defaultVal
	}
	return val
}

func getEnvAsFloat(name string, defaultVal float64) float64 {
	valStr := os.Getenv(name)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseFloat(valStr, 64)
	if err != nil {
		return defaultVal
	}
	return val
}

func getEnvAsDuration(name string, defaultVal time.Duration) time.Duration {
	valStr := os.Getenv(name)
	if valStr == "" {
		return defaultVal
	}
	val, err := time.ParseDuration(valStr)
	if err != nil {
		return defaultVal
	}
	return val
}

func getEnvAsList(name string) []string {
	valStr := os.Getenv(name)
	if valStr == "" {
		return nil
	}
	parts := strings.Split(valStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
