package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends understood by Load.
const (
	StorageMemory   = "memory"
	StorageFile     = "file"
	StoragePostgres = "postgres"
	StorageRedis    = "redis"
)

// Config aggregates runtime configuration for the auth agent.
type Config struct {
	Environment    string
	HTTPPort       int
	LogLevel       string
	LogFormat      string
	FrontendURL    string
	APIBaseURL     string
	AllowedOrigins []string

	StorageBackend   string
	StoragePath      string
	StorageNamespace string
	DatabaseURL      string
	RedisURL         string

	HTTPClientTimeout    time.Duration
	RefreshInterval      time.Duration
	RefreshThreshold     time.Duration
	SuccessRedirectDelay time.Duration
	ErrorRedirectDelay   time.Duration
	GoogleClientID       string
	GoogleClientSecret   string
	GoogleRedirectURL    string
}

// Load reads configuration from the environment (and an optional .env file) with defaults
// suited to local development.
func Load() (Config, error) {
	_ = godotenv.Load()

	databaseURL, err := getEnvOrFile("DATABASE_URL", "/run/secrets/storefront_database_url")
	if err != nil {
		return Config{}, err
	}
	redisURL, err := getEnvOrFile("REDIS_URL", "/run/secrets/storefront_redis_url")
	if err != nil {
		return Config{}, err
	}
	googleSecret, err := getEnvOrFile("GOOGLE_CLIENT_SECRET", "/run/secrets/storefront_google_client_secret")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Environment:        getEnv("APP_ENV", "development"),
		LogLevel:           strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:          strings.ToLower(getEnv("LOG_FORMAT", "text")),
		FrontendURL:        strings.TrimSuffix(getEnv("FRONTEND_URL", "http://localhost:3000"), "/"),
		APIBaseURL:         strings.TrimSuffix(getEnv("API_BASE_URL", "http://localhost:5000/api"), "/"),
		AllowedOrigins:     parseCSV(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),
		StorageBackend:     strings.ToLower(getEnv("STORAGE_BACKEND", StorageMemory)),
		StoragePath:        getEnv("STORAGE_PATH", "storefront-session.json"),
		StorageNamespace:   getEnv("STORAGE_NAMESPACE", "default"),
		DatabaseURL:        databaseURL,
		RedisURL:           redisURL,
		GoogleClientID:     strings.TrimSpace(os.Getenv("GOOGLE_CLIENT_ID")),
		GoogleClientSecret: strings.TrimSpace(googleSecret),
		GoogleRedirectURL:  strings.TrimSpace(os.Getenv("GOOGLE_REDIRECT_URL")),
	}

	portValue := getEnv("PORT", "8787")
	port, err := strconv.Atoi(portValue)
	if err != nil {
		return Config{}, fmt.Errorf("invalid port %q: %w", portValue, err)
	}
	cfg.HTTPPort = port

	durations := []struct {
		key      string
		fallback time.Duration
		dst      *time.Duration
	}{
		{"HTTP_CLIENT_TIMEOUT", 12 * time.Second, &cfg.HTTPClientTimeout},
		{"TOKEN_REFRESH_INTERVAL", 5 * time.Minute, &cfg.RefreshInterval},
		{"TOKEN_REFRESH_THRESHOLD", 30 * time.Minute, &cfg.RefreshThreshold},
		{"SUCCESS_REDIRECT_DELAY", 2 * time.Second, &cfg.SuccessRedirectDelay},
		{"ERROR_REDIRECT_DELAY", 5 * time.Second, &cfg.ErrorRedirectDelay},
	}
	for _, d := range durations {
		value, err := getEnvAsDuration(d.key, d.fallback)
		if err != nil {
			return Config{}, err
		}
		*d.dst = value
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.StorageBackend {
	case StorageMemory, StorageFile:
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("config: STORAGE_BACKEND is postgres but DATABASE_URL is not set")
		}
	case StorageRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("config: STORAGE_BACKEND is redis but REDIS_URL is not set")
		}
	default:
		return fmt.Errorf("config: unknown STORAGE_BACKEND %q", c.StorageBackend)
	}

	if strings.TrimSpace(c.StorageNamespace) == "" {
		return fmt.Errorf("config: STORAGE_NAMESPACE must not be empty")
	}

	for name, raw := range map[string]string{"FRONTEND_URL": c.FrontendURL, "API_BASE_URL": c.APIBaseURL} {
		parsed, err := url.Parse(raw)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("config: %s must be an absolute URL, got %q", name, raw)
		}
	}

	if c.RefreshInterval <= 0 || c.RefreshThreshold <= 0 {
		return fmt.Errorf("config: token refresh interval and threshold must be positive")
	}

	if c.GoogleClientID != "" && c.GoogleClientSecret == "" {
		return fmt.Errorf("config: GOOGLE_CLIENT_SECRET is required when GOOGLE_CLIENT_ID is set")
	}

	if !c.IsDevelopment() {
		for _, origin := range c.AllowedOrigins {
			if origin == "*" {
				return fmt.Errorf("config: wildcard ALLOWED_ORIGINS is not permitted outside development")
			}
		}
	}
	return nil
}

// HTTPAddress returns the address the HTTP server should bind to.
func (c Config) HTTPAddress() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// IsDevelopment reports whether the agent runs in the development environment.
func (c Config) IsDevelopment() bool {
	return strings.EqualFold(c.Environment, "development")
}

// DirectGoogleEnabled returns true when the agent may run the Google code exchange itself.
func (c Config) DirectGoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

// GoogleCallbackURL is the redirect URL registered with Google for the direct flow.
func (c Config) GoogleCallbackURL() string {
	if c.GoogleRedirectURL != "" {
		return c.GoogleRedirectURL
	}
	return fmt.Sprintf("http://localhost:%d/auth/google/direct/callback", c.HTTPPort)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s %q: %w", key, value, err)
	}
	return parsed, nil
}

func parseCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnvOrFile(key, defaultPath string) (string, error) {
	if value := os.Getenv(key); value != "" {
		return value, nil
	}

	fileKey := key + "_FILE"
	if path := os.Getenv(fileKey); path != "" {
		return readSecret(path, fileKey)
	}

	if defaultPath != "" {
		return readSecret(defaultPath, key)
	}

	return "", nil
}

func readSecret(path, name string) (string, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("config: reading %s (%s): %w", name, path, err)
	}

	value := strings.TrimSpace(string(contents))
	if value == "" {
		return "", fmt.Errorf("config: %s (%s) is empty", name, path)
	}
	return value, nil
}
