// Package config provides environment configuration for the API server.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Storage drivers accepted by STORAGE_DRIVER.
const (
	StorageMemory = "memory"
	StorageSQLite = "sqlite"
	StorageNATS   = "nats"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string        `env:"PORT" envDefault:"8080"`
	ServerReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"30s"`
	ServerWriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout    time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
	CORSOrigins        []string      `env:"CORS_ORIGINS" envSeparator:","`

	// JWT settings
	JWTSecret string `env:"JWT_SECRET" envDefault:"development-secret-change-in-production"`

	// Rate limiting
	RateLimitRequests int           `env:"RATE_LIMIT_REQUESTS" envDefault:"60"`
	RateLimitWindow   time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Tracing
	TracingEnabled  bool   `env:"TRACING_ENABLED" envDefault:"false"`
	TracingEndpoint string `env:"TRACING_ENDPOINT" envDefault:"localhost:4318"`

	// LLM settings
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
	OpenAIAPIKey    string `env:"OPENAI_API_KEY"`
	LLMModel        string `env:"LLM_MODEL"`
	LLMClassifier   bool   `env:"LLM_CLASSIFIER" envDefault:"false"`

	// Storage
	StorageDriver    string `env:"STORAGE_DRIVER" envDefault:"memory"`
	SQLitePath       string `env:"SQLITE_PATH" envDefault:"meeting-assistant.db"`
	PersistQueueSize int           `env:"PERSIST_QUEUE_SIZE" envDefault:"256"`
	PersistTimeout   time.Duration `env:"PERSIST_TIMEOUT" envDefault:"5s"`

	// NATS settings
	NATSURL           string `env:"NATS_URL" envDefault:"nats://localhost:4222"`
	NATSToken         string `env:"NATS_TOKEN"`
	NATSCAFile        string `env:"NATS_CA_FILE"`
	NATSCertFile      string `env:"NATS_CERT_FILE"`
	NATSKeyFile       string `env:"NATS_KEY_FILE"`
	NATSEventsEnabled bool   `env:"NATS_EVENTS_ENABLED" envDefault:"false"`

	// Workflow
	CollaboratorTimeout    time.Duration `env:"COLLABORATOR_TIMEOUT" envDefault:"10s"`
	DefaultMeetingDuration time.Duration `env:"DEFAULT_MEETING_DURATION" envDefault:"30m"`
	AvailabilityCheck      bool          `env:"AVAILABILITY_CHECK" envDefault:"true"`
	MaxAlternatives        int           `env:"MAX_ALTERNATIVES" envDefault:"3"`

	// Sandbox directory domains whose addresses are accepted
	DirectoryDomains []string `env:"DIRECTORY_DOMAINS" envSeparator:"," envDefault:"example.com"`

	// Attendee validation cache
	AttendeeCacheSize    int           `env:"ATTENDEE_CACHE_SIZE" envDefault:"1000"`
	AttendeeCacheTTL     time.Duration `env:"ATTENDEE_CACHE_TTL" envDefault:"30m"`
	AttendeeCacheCleanup time.Duration `env:"ATTENDEE_CACHE_CLEANUP" envDefault:"5m"`

	// Conversation context
	ContextMaxTokens   int `env:"CONTEXT_MAX_TOKENS" envDefault:"2000"`
	ContextMaxMessages int `env:"CONTEXT_MAX_MESSAGES" envDefault:"20"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	switch cfg.StorageDriver {
	case StorageMemory, StorageSQLite, StorageNATS:
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}

	return cfg, nil
}

// NATSNeeded reports whether any component requires a NATS connection.
func (c *Config) NATSNeeded() bool {
	return c.StorageDriver == StorageNATS || c.NATSEventsEnabled
}
