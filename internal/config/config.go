package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/dealforge/dealforge/internal/models"
)

// Config represents runtime configuration derived from environment variables
// plus the channel definition file.
type Config struct {
	Server   ServerConfig
	Logging  LoggingConfig
	Database DatabaseConfig
	Pipeline PipelineConfig
	OpenAI   OpenAIConfig
	Channels []models.SourceChannel
}

// ServerConfig holds HTTP server runtime parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// LoggingConfig represents structured logging configuration.
type LoggingConfig struct {
	Level  slog.Level
	Format string
}

// DatabaseConfig holds the Postgres connection parameters.
type DatabaseConfig struct {
	URL           string
	MigrationsDir string
}

// PipelineConfig tunes the per-message processing stages.
type PipelineConfig struct {
	ResolveTimeout time.Duration // redirect resolution request timeout
	ScrapeTimeout  time.Duration // fallback page fetch timeout
	QueueSize      int           // bounded per-bot event queue
	PollInterval   time.Duration // scraping/api method poll cadence
	SelectorsPath  string        // optional YAML selector overrides
}

// OpenAIConfig configures the downstream caption generator. An empty key
// disables caption generation.
type OpenAIConfig struct {
	APIKey string
	Model  string
}

const (
	defaultPort            = "8080"
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultShutdownTimeout = 5 * time.Second

	defaultLogFormat = "json"

	defaultResolveTimeout = 10 * time.Second
	defaultScrapeTimeout  = 15 * time.Second
	defaultQueueSize      = 64
	defaultPollInterval   = 30 * time.Second

	defaultChannelsFile = "channels.yaml"
	defaultMigrations   = "./migrations"
	defaultOpenAIModel  = "gpt-4o-mini"
)

// Load reads configuration from environment variables, applying defaults when
// values are not provided. A .env file is honored for local development.
func Load() (Config, error) {
	_ = godotenv.Load()

	// Cloud Run sets PORT, but allow SERVER_PORT override for local dev
	port := getEnv("PORT", "")
	if port == "" {
		port = getEnv("SERVER_PORT", defaultPort)
	}

	cfg := Config{
		Server: ServerConfig{
			Port:            port,
			ReadTimeout:     defaultReadTimeout,
			WriteTimeout:    defaultWriteTimeout,
			ShutdownTimeout: defaultShutdownTimeout,
		},
		Logging: LoggingConfig{
			Level:  slog.LevelInfo,
			Format: defaultLogFormat,
		},
		Database: DatabaseConfig{
			URL:           os.Getenv("DATABASE_URL"),
			MigrationsDir: getEnv("MIGRATIONS_DIR", defaultMigrations),
		},
		Pipeline: PipelineConfig{
			ResolveTimeout: defaultResolveTimeout,
			ScrapeTimeout:  defaultScrapeTimeout,
			QueueSize:      defaultQueueSize,
			PollInterval:   defaultPollInterval,
			SelectorsPath:  os.Getenv("SELECTORS_FILE"),
		},
		OpenAI: OpenAIConfig{
			APIKey: os.Getenv("OPENAI_API_KEY"),
			Model:  getEnv("OPENAI_MODEL", defaultOpenAIModel),
		},
	}

	if v := os.Getenv("SCRAPE_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SCRAPE_TIMEOUT_SECONDS: %w", err)
		}
		cfg.Pipeline.ScrapeTimeout = d
	}

	if v := os.Getenv("RESOLVE_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid RESOLVE_TIMEOUT_SECONDS: %w", err)
		}
		cfg.Pipeline.ResolveTimeout = d
	}

	if v := os.Getenv("POLL_INTERVAL_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid POLL_INTERVAL_SECONDS: %w", err)
		}
		cfg.Pipeline.PollInterval = d
	}

	if v := os.Getenv("EVENT_QUEUE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("invalid EVENT_QUEUE_SIZE: must be a positive integer")
		}
		cfg.Pipeline.QueueSize = n
	}

	if v := os.Getenv("SERVER_SHUTDOWN_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SERVER_SHUTDOWN_TIMEOUT_SECONDS: %w", err)
		}
		cfg.Server.ShutdownTimeout = d
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level, err := parseLogLevel(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
		}
		cfg.Logging.Level = level
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		switch v {
		case "json", "text":
			cfg.Logging.Format = v
		default:
			return Config{}, fmt.Errorf("invalid LOG_FORMAT: must be 'json' or 'text'")
		}
	}

	channels, err := LoadChannels(getEnv("CHANNELS_FILE", defaultChannelsFile))
	if err != nil {
		return Config{}, err
	}
	cfg.Channels = channels

	return cfg, nil
}

// LoadChannels reads the channel definition file. A missing file is not an
// error; the service can still serve the admin API with zero channels.
func LoadChannels(path string) ([]models.SourceChannel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read channels file: %w", err)
	}

	var doc struct {
		Channels []models.SourceChannel `yaml:"channels"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse channels file: %w", err)
	}

	for i := range doc.Channels {
		ch := &doc.Channels[i]
		if ch.BotID == "" {
			return nil, fmt.Errorf("channel %d: bot_id is required", i)
		}
		if ch.Method == "" {
			ch.Method = models.MethodTelegram
		}
		if len(ch.MethodsAvailable) == 0 {
			ch.MethodsAvailable = []models.IngestionMethod{ch.Method}
		}
		if !ch.HasMethod(ch.Method) {
			return nil, fmt.Errorf("channel %s: method %q not in methods_available", ch.BotID, ch.Method)
		}
	}

	return doc.Channels, nil
}

func parseSeconds(raw string) (time.Duration, error) {
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds < 0 {
		return 0, fmt.Errorf("must be a non-negative integer")
	}
	return time.Duration(seconds) * time.Second, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch raw {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("must be one of debug, info, warn, error")
	}
}
