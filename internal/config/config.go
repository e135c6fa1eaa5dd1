package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the AyuPilot services.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	AI         AIConfig
	Worker     WorkerConfig
	Chat       ChatConfig
	Reconciler ReconcilerConfig
	Auth       AuthConfig
	Upload     UploadConfig
	Logging    LoggingConfig
}

type ServerConfig struct {
	Port              int
	Env               string
	RequestsPerMinute int
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
}

type DatabaseConfig struct {
	Driver          string
	URL             string
	MigrationsDir   string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL       string
	KeyPrefix string
}

type AIConfig struct {
	Provider         string
	InferenceTimeout time.Duration
	Temperature      float64
	MaxTokens        int
	Ollama           OllamaConfig
	VLLM             VLLMConfig
	OpenAI           OpenAIConfig
	Anthropic        AnthropicConfig
}

type OllamaConfig struct {
	BaseURL string
	Model   string
}

type VLLMConfig struct {
	BaseURL string
	Model   string
}

type OpenAIConfig struct {
	APIKey string
	Model  string
}

type AnthropicConfig struct {
	APIKey string
	Model  string
}

// WorkerConfig controls the job workers that drain the work queue.
type WorkerConfig struct {
	Embedded          bool
	Concurrency       int
	MaxAttempts       int
	RetryBackoff      time.Duration
	DequeueTimeout    time.Duration
	PromoteInterval   time.Duration
	VisibilityTimeout time.Duration
	StatusTTL         time.Duration
}

type ChatConfig struct {
	PollInterval time.Duration
	Timeout      time.Duration
}

type ReconcilerConfig struct {
	Enabled     bool
	Interval    time.Duration
	Timezone    string
	NoShowGrace time.Duration
	Location    *time.Location
}

type AuthConfig struct {
	EnforceOwnership bool
}

type UploadConfig struct {
	MaxBytes     int64
	FetchTimeout time.Duration
	PhoneRegion  string
}

type LoggingConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

var validProviders = map[string]bool{
	"mock":      true,
	"ollama":    true,
	"vllm":      true,
	"openai":    true,
	"anthropic": true,
}

var validDrivers = map[string]bool{
	"postgres": true,
	"memory":   true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Variables are first seeded from envFiles (default ".env"); a missing default
// file is not an error and real environment variables always win.
func Load(envFiles ...string) (*Config, error) {
	if err := loadEnvFiles(envFiles); err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:              envInt("AYUPILOT_PORT", 8080),
			Env:               envString("AYUPILOT_ENV", "development"),
			RequestsPerMinute: envInt("AYUPILOT_REQUESTS_PER_MINUTE", 60),
			ReadTimeout:       envDuration("AYUPILOT_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:      envDuration("AYUPILOT_WRITE_TIMEOUT", 60*time.Second),
		},
		Database: DatabaseConfig{
			Driver:          envString("STORE_DRIVER", "postgres"),
			URL:             os.Getenv("DATABASE_URL"),
			MigrationsDir:   envString("DATABASE_MIGRATIONS_DIR", "migrations"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL:       os.Getenv("REDIS_URL"),
			KeyPrefix: envString("REDIS_KEY_PREFIX", "ayupilot"),
		},
		AI: AIConfig{
			Provider:         envString("AI_PROVIDER", "mock"),
			InferenceTimeout: envDurationSecs("AI_INFERENCE_TIMEOUT_SECS", 60*time.Second),
			Temperature:      envFloat("AI_TEMPERATURE", 0.7),
			MaxTokens:        envInt("AI_MAX_TOKENS", 800),
			Ollama: OllamaConfig{
				BaseURL: envString("OLLAMA_BASE_URL", "http://localhost:11434"),
				Model:   envString("OLLAMA_MODEL", "llama3"),
			},
			VLLM: VLLMConfig{
				BaseURL: envString("VLLM_BASE_URL", "http://localhost:8000/v1"),
				Model:   envString("VLLM_MODEL", ""),
			},
			OpenAI: OpenAIConfig{
				APIKey: os.Getenv("OPENAI_API_KEY"),
				Model:  envString("OPENAI_MODEL", "gpt-3.5-turbo"),
			},
			Anthropic: AnthropicConfig{
				APIKey: os.Getenv("ANTHROPIC_API_KEY"),
				Model:  envString("ANTHROPIC_MODEL", "claude-sonnet-4-5-20250929"),
			},
		},
		Worker: WorkerConfig{
			Embedded:          envBool("WORKER_EMBEDDED", true),
			Concurrency:       envInt("WORKER_CONCURRENCY", 4),
			MaxAttempts:       envInt("WORKER_MAX_ATTEMPTS", 3),
			RetryBackoff:      envDurationSecs("WORKER_RETRY_BACKOFF_SECS", 60*time.Second),
			DequeueTimeout:    envDuration("WORKER_DEQUEUE_TIMEOUT", 2*time.Second),
			PromoteInterval:   envDuration("WORKER_PROMOTE_INTERVAL", time.Second),
			VisibilityTimeout: envDuration("WORKER_VISIBILITY_TIMEOUT", 10*time.Minute),
			StatusTTL:         envDuration("WORKER_STATUS_TTL", 30*time.Minute),
		},
		Chat: ChatConfig{
			PollInterval: envDuration("CHAT_POLL_INTERVAL", 500*time.Millisecond),
			Timeout:      envDurationSecs("CHAT_TIMEOUT_SECS", 30*time.Second),
		},
		Reconciler: ReconcilerConfig{
			Enabled:     envBool("RECONCILER_ENABLED", true),
			Interval:    envDuration("RECONCILER_INTERVAL", 5*time.Minute),
			Timezone:    envString("RECONCILER_TIMEZONE", "Asia/Kolkata"),
			NoShowGrace: envDuration("RECONCILER_NO_SHOW_GRACE", 2*time.Hour),
		},
		Auth: AuthConfig{
			EnforceOwnership: envBool("AUTH_ENFORCE_OWNERSHIP", true),
		},
		Upload: UploadConfig{
			MaxBytes:     int64(envInt("UPLOAD_MAX_BYTES", 10<<20)),
			FetchTimeout: envDuration("UPLOAD_FETCH_TIMEOUT", 20*time.Second),
			PhoneRegion:  envString("PHONE_REGION", "IN"),
		},
		Logging: LoggingConfig{
			Level:      envString("LOG_LEVEL", "info"),
			File:       os.Getenv("LOG_FILE"),
			MaxSizeMB:  envInt("LOG_FILE_MAX_SIZE_MB", 100),
			MaxBackups: envInt("LOG_FILE_MAX_BACKUPS", 5),
			MaxAgeDays: envInt("LOG_FILE_MAX_AGE_DAYS", 28),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadEnvFiles(files []string) error {
	if len(files) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("load env files %v: %w", files, err)
	}
	return nil
}

func (c *Config) validate() error {
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("STORE_DRIVER must be one of postgres, memory; got %q", c.Database.Driver)
	}
	if c.Database.Driver == "postgres" && c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}
	if !strings.HasPrefix(c.Redis.URL, "redis://") && !strings.HasPrefix(c.Redis.URL, "rediss://") {
		return fmt.Errorf("REDIS_URL must start with redis:// or rediss://, got %q", c.Redis.URL)
	}

	if !validProviders[c.AI.Provider] {
		return fmt.Errorf("AI_PROVIDER must be one of mock, ollama, vllm, openai, anthropic; got %q", c.AI.Provider)
	}
	if c.AI.Provider == "openai" && c.AI.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when AI_PROVIDER is openai")
	}
	if c.AI.Provider == "anthropic" && c.AI.Anthropic.APIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required when AI_PROVIDER is anthropic")
	}
	if c.AI.Provider == "vllm" && c.AI.VLLM.Model == "" {
		return fmt.Errorf("VLLM_MODEL is required when AI_PROVIDER is vllm")
	}

	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("WORKER_CONCURRENCY must be at least 1, got %d", c.Worker.Concurrency)
	}
	if c.Worker.MaxAttempts < 1 {
		return fmt.Errorf("WORKER_MAX_ATTEMPTS must be at least 1, got %d", c.Worker.MaxAttempts)
	}
	if c.Worker.VisibilityTimeout <= c.AI.InferenceTimeout {
		return fmt.Errorf("WORKER_VISIBILITY_TIMEOUT (%s) must exceed AI_INFERENCE_TIMEOUT_SECS (%s)",
			c.Worker.VisibilityTimeout, c.AI.InferenceTimeout)
	}

	if c.Chat.PollInterval <= 0 || c.Chat.Timeout < c.Chat.PollInterval {
		return fmt.Errorf("CHAT_POLL_INTERVAL must be positive and not exceed CHAT_TIMEOUT_SECS")
	}

	loc, err := time.LoadLocation(c.Reconciler.Timezone)
	if err != nil {
		return fmt.Errorf("RECONCILER_TIMEZONE %q: %w", c.Reconciler.Timezone, err)
	}
	c.Reconciler.Location = loc

	if _, err := ParseLevel(c.Logging.Level); err != nil {
		return err
	}

	return nil
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

func envFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
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
