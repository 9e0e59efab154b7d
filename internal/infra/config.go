package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
// Both binaries (api and worker) share the same struct; fields a binary does
// not need are simply ignored by it.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	PixelLabBaseURL string
	PixelLabAPIKey  string

	QueueName         string
	WorkerConcurrency int
	MaxJobsPerUser    int
	SystemQueueLimit  int
	WarningThreshold  int

	CacheTTL time.Duration

	MaxRetries        int
	BackoffDelay      time.Duration
	BackoffMultiplier float64

	LeaseDuration          time.Duration
	GenerationTimeout      time.Duration
	ProgressUpdateInterval time.Duration
	KeepAliveInterval      time.Duration

	DBMaxConns int32

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration

	AllowedOrigins []string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		PixelLabBaseURL: getEnv("PIXELLAB_BASE_URL", "https://api.pixellab.ai/v1"),
		PixelLabAPIKey:  os.Getenv("PIXELLAB_API_KEY"),

		QueueName:         getEnv("QUEUE_NAME", "sprite-generation"),
		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 5),
		MaxJobsPerUser:    getEnvInt("MAX_JOBS_PER_USER", 5),
		SystemQueueLimit:  getEnvInt("SYSTEM_QUEUE_LIMIT", 500),
		WarningThreshold:  getEnvInt("QUEUE_WARNING_THRESHOLD", 400),

		CacheTTL: time.Hour * 24 * time.Duration(getEnvInt("CACHE_TTL_DAYS", 30)),

		MaxRetries:        getEnvInt("MAX_RETRIES", 3),
		BackoffDelay:      time.Millisecond * time.Duration(getEnvInt("BACKOFF_DELAY_MS", 2000)),
		BackoffMultiplier: getEnvFloat("BACKOFF_MULTIPLIER", 2.0),

		LeaseDuration:          time.Second * time.Duration(getEnvInt("JOB_LEASE_SECONDS", 180)),
		GenerationTimeout:      time.Second * time.Duration(getEnvInt("GENERATION_TIMEOUT_SECONDS", 120)),
		ProgressUpdateInterval: time.Millisecond * time.Duration(getEnvInt("PROGRESS_UPDATE_INTERVAL_MS", 2000)),
		KeepAliveInterval:      time.Second * time.Duration(getEnvInt("KEEP_ALIVE_INTERVAL_SECONDS", 15)),

		DBMaxConns: int32(getEnvInt("DB_MAX_CONNS", 10)),

		HTTPReadTimeout: time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		// Write timeout stays off by default; progress event streams hold the
		// response open far longer than any request/response exchange.
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 0)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),

		AllowedOrigins: getEnvList("ALLOWED_ORIGINS"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.WorkerConcurrency < 1 {
		return nil, fmt.Errorf("WORKER_CONCURRENCY must be at least 1")
	}

	if cfg.WarningThreshold > cfg.SystemQueueLimit {
		return nil, fmt.Errorf("QUEUE_WARNING_THRESHOLD (%d) must not exceed SYSTEM_QUEUE_LIMIT (%d)", cfg.WarningThreshold, cfg.SystemQueueLimit)
	}

	if cfg.GenerationTimeout >= cfg.LeaseDuration {
		return nil, fmt.Errorf("GENERATION_TIMEOUT_SECONDS must stay below JOB_LEASE_SECONDS so a running attempt cannot outlive its lease")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvList(key string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
