// Package config loads application settings from the environment, with an
// optional .env file for local development.
package config

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	JWTSecret          string
	CORSAllowedOrigins []string
	TrialFunctionURL   string
	TrialFunctionKey   string
	TrialRateLimit     string
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	CookieDomain       string
	CookieSecure       bool
	CookieSameSite     http.SameSite

	CatalogCacheTTL     time.Duration
	CatalogDefaultPage  int
	CatalogDefaultLimit int
	CatalogMaxLimit     int
	CartTTL             time.Duration
	IdempotencyTTL      time.Duration
	AnalyticsCacheTTL   time.Duration
	CurrencyCode        string
}

// envSource reads typed values out of a koanf snapshot of the environment.
type envSource struct {
	k *koanf.Koanf
}

func (e envSource) str(key, def string) string {
	if v := strings.TrimSpace(e.k.String(key)); v != "" {
		return v
	}
	return def
}

func (e envSource) duration(key, def string) time.Duration {
	raw := e.str(key, def)
	d, err := time.ParseDuration(raw)
	if err != nil {
		d, _ = time.ParseDuration(def)
	}
	return d
}

func (e envSource) integer(key string, def int) int {
	raw := strings.TrimSpace(e.k.String(key))
	if raw == "" {
		return def
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return parsed
}

func (e envSource) boolean(key string) bool {
	switch strings.ToLower(strings.TrimSpace(e.k.String(key))) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func (e envSource) csv(key string) []string {
	var out []string
	for _, part := range strings.Split(e.k.String(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (e envSource) sameSite(key string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(e.k.String(key))) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

// Load reads configuration from environment variables and an optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}
	src := envSource{k: k}

	cfg := &Config{
		AppEnv:             src.str("APP_ENV", "development"),
		Port:               src.str("PORT", "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		JWTSecret:          k.String("JWT_SECRET"),
		CORSAllowedOrigins: src.csv("CORS_ALLOWED_ORIGINS"),
		TrialFunctionURL:   k.String("TRIAL_FUNCTION_URL"),
		TrialFunctionKey:   k.String("TRIAL_FUNCTION_KEY"),
		TrialRateLimit:     src.str("TRIAL_RATE_LIMIT", "3-H"),
		AccessTokenTTL:     src.duration("ACCESS_TOKEN_TTL", "15m"),
		RefreshTokenTTL:    src.duration("REFRESH_TOKEN_TTL", "720h"),
		CookieDomain:       src.str("COOKIE_DOMAIN", ""),
		CookieSecure:       src.boolean("COOKIE_SECURE"),
		CookieSameSite:     src.sameSite("COOKIE_SAMESITE"),

		CatalogCacheTTL:     src.duration("CATALOG_CACHE_TTL", "5m"),
		CatalogDefaultPage:  src.integer("CATALOG_DEFAULT_PAGE", 1),
		CatalogDefaultLimit: src.integer("CATALOG_DEFAULT_LIMIT", 20),
		CatalogMaxLimit:     src.integer("CATALOG_MAX_LIMIT", 100),
		CartTTL:             src.duration("CART_TTL", "168h"),
		IdempotencyTTL:      src.duration("IDEMPOTENCY_TTL", "24h"),
		AnalyticsCacheTTL:   src.duration("ANALYTICS_CACHE_TTL", "1m"),
		CurrencyCode:        src.str("CURRENCY_CODE", "USD"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.DatabaseURL == "":
		return errors.New("DATABASE_URL is required")
	case c.RedisURL == "":
		return errors.New("REDIS_URL is required")
	case c.JWTSecret == "":
		return errors.New("JWT_SECRET is required")
	}
	return nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}
