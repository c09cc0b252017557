package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the vidresolve worker and intake API.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Queue     QueueConfig
	Extractor ExtractorConfig
}

type ServerConfig struct {
	Port               int
	Env                string
	RateLimitPerMinute int
	JobStatusTTL       time.Duration
	// MetricsAddr is where the worker serves /metrics. Empty disables it.
	MetricsAddr string
	SentryDSN   string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

// QueueConfig describes the Redis stream the worker consumes job ids from.
type QueueConfig struct {
	Stream       string
	Group        string
	Consumer     string
	BatchSize    int
	BlockTimeout time.Duration
	MaxLen       int64
}

type ExtractorConfig struct {
	Provider string
	Timeout  time.Duration

	// RatePerMinute caps extractor calls per worker process. 0 means no cap.
	RatePerMinute int

	YtDlp  YtDlpConfig
	Remote RemoteConfig
}

type YtDlpConfig struct {
	Binary           string
	Format           string
	PlayerClient     string
	CookieFile       string
	CookieSourcePath string
}

type RemoteConfig struct {
	BaseURL string
}

// DefaultFormatSelector prefers the original-language audio track merged with
// the best video, falling back to the best single file.
const DefaultFormatSelector = "bv*+ba[format_note~='(?i)original'] / (bv*+ba/b)"

var validProviders = map[string]bool{
	"ytdlp":  true,
	"remote": true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:               envInt("VIDRESOLVE_PORT", 8080),
			Env:                envString("VIDRESOLVE_ENV", "development"),
			RateLimitPerMinute: envInt("RATE_LIMIT_PER_MINUTE", 60),
			JobStatusTTL:       envDuration("JOB_STATUS_TTL", 30*time.Minute),
			MetricsAddr:        envString("METRICS_ADDR", ":9090"),
			SentryDSN:          os.Getenv("SENTRY_DSN"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Queue: QueueConfig{
			Stream:       envString("QUEUE_STREAM", "vidresolve:jobs"),
			Group:        envString("QUEUE_GROUP", "vidresolve-workers"),
			Consumer:     envString("QUEUE_CONSUMER", defaultConsumerName()),
			BatchSize:    envInt("QUEUE_BATCH_SIZE", 10),
			BlockTimeout: envDuration("QUEUE_BLOCK_TIMEOUT", 5*time.Second),
			MaxLen:       int64(envInt("QUEUE_MAX_LEN", 100000)),
		},
		Extractor: ExtractorConfig{
			Provider:      envString("EXTRACTOR_PROVIDER", "ytdlp"),
			Timeout:       envDurationSecs("EXTRACTOR_TIMEOUT_SECS", 120*time.Second),
			RatePerMinute: envInt("EXTRACTOR_RATE_PER_MINUTE", 0),
			YtDlp: YtDlpConfig{
				Binary:           envString("YTDLP_BINARY", "yt-dlp"),
				Format:           envString("YTDLP_FORMAT", DefaultFormatSelector),
				PlayerClient:     envString("YTDLP_PLAYER_CLIENT", "all"),
				CookieFile:       envString("COOKIE_FILE", "/tmp/cookies.txt"),
				CookieSourcePath: os.Getenv("COOKIE_SOURCE_PATH"),
			},
			Remote: RemoteConfig{
				BaseURL: os.Getenv("EXTRACTOR_REMOTE_URL"),
			},
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Queue.BatchSize <= 0 {
		return fmt.Errorf("QUEUE_BATCH_SIZE must be positive, got %d", c.Queue.BatchSize)
	}

	if c.Extractor.RatePerMinute < 0 {
		return fmt.Errorf("EXTRACTOR_RATE_PER_MINUTE must not be negative, got %d", c.Extractor.RatePerMinute)
	}

	if !validProviders[c.Extractor.Provider] {
		return fmt.Errorf("EXTRACTOR_PROVIDER must be one of ytdlp, remote; got %q", c.Extractor.Provider)
	}

	if c.Extractor.Provider == "remote" {
		if c.Extractor.Remote.BaseURL == "" {
			return fmt.Errorf("EXTRACTOR_REMOTE_URL is required when EXTRACTOR_PROVIDER is remote")
		}
		if !strings.HasPrefix(c.Extractor.Remote.BaseURL, "http://") && !strings.HasPrefix(c.Extractor.Remote.BaseURL, "https://") {
			return fmt.Errorf("EXTRACTOR_REMOTE_URL must start with http:// or https://, got %q", c.Extractor.Remote.BaseURL)
		}
	}

	return nil
}

func defaultConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "worker-1"
	}
	return host
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
