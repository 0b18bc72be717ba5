package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPPort        string
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration

	// Upstream base URLs; each defaults to BackendURL.
	BackendURL      string
	CatalogURL      string
	AuthURL         string
	OrderURL        string
	InvoiceURL      string
	UpstreamTimeout time.Duration
	CheckoutTimeout time.Duration

	// KVDriver is one of memory, redis, sqlite.
	KVDriver      string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SQLitePath    string

	SessionTTL         time.Duration
	SessionIdleTimeout time.Duration
	CleanupInterval    time.Duration
	MaxSessions        int
	CatalogTTL         time.Duration
	CookieSecure       bool

	Currency  string
	LogLevel  string
	LogFormat string
}

func Load() Config {
	backend := getEnv("BACKEND_URL", "http://localhost:4000/api")

	return Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		ShutdownTimeout: parseDuration(getEnv("SHUTDOWN_TIMEOUT", "10s"), 10*time.Second),
		RequestTimeout:  parseDuration(getEnv("REQUEST_TIMEOUT", "30s"), 30*time.Second),

		BackendURL:      backend,
		CatalogURL:      getEnv("CATALOG_URL", backend),
		AuthURL:         getEnv("AUTH_URL", backend),
		OrderURL:        getEnv("ORDER_URL", backend),
		InvoiceURL:      getEnv("INVOICE_URL", backend),
		UpstreamTimeout: parseDuration(getEnv("UPSTREAM_TIMEOUT", "10s"), 10*time.Second),
		CheckoutTimeout: parseDuration(getEnv("CHECKOUT_TIMEOUT", "15s"), 15*time.Second),

		KVDriver:      strings.ToLower(getEnv("KV_DRIVER", "memory")),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		SQLitePath:    getEnv("SQLITE_PATH", "./storefront.db"),

		SessionTTL:         parseDuration(getEnv("SESSION_TTL", "168h"), 7*24*time.Hour),
		SessionIdleTimeout: parseDuration(getEnv("SESSION_IDLE_TIMEOUT", "30m"), 30*time.Minute),
		CleanupInterval:    parseDuration(getEnv("SESSION_CLEANUP_INTERVAL", "1m"), time.Minute),
		MaxSessions:        getEnvInt("SESSION_MAX", 10000),
		CatalogTTL:         parseDuration(getEnv("CATALOG_TTL", "15m"), 15*time.Minute),
		CookieSecure:       getEnvBool("COOKIE_SECURE", false),

		Currency:  strings.ToUpper(getEnv("CURRENCY", "INR")),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); strings.TrimSpace(v) != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return def
	}
	return n
}

func getEnvBool(key string, def bool) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return def
	}
	return b
}

func parseDuration(v string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
