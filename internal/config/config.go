package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

// Config holds runtime configuration for the agent service. All fields are
// populated from AGENT_SERVICE_* environment variables.
type Config struct {
	// HTTPPort is the port the HTTP API listens on.
	HTTPPort int `envconfig:"HTTP_PORT" default:"11545"`

	// DBDriver selects the relational backend: "sqlite" or "postgres".
	DBDriver string `envconfig:"DB_DRIVER" default:"sqlite"`

	// SQLitePath is the database file path when DBDriver is "sqlite".
	SQLitePath string `envconfig:"SQLITE_PATH" default:"agent-service.db"`

	// PostgresDSN is the connection string when DBDriver is "postgres".
	PostgresDSN string `envconfig:"POSTGRES_DSN"`

	// GenAIAPIKey authenticates against the Gemini API.
	GenAIAPIKey string `envconfig:"GENAI_API_KEY"`

	// ChatModel is the default text model when a persona has no override.
	ChatModel string `envconfig:"CHAT_MODEL" default:"gemini-2.0-flash"`

	// ImageModel is the default image generation model.
	ImageModel string `envconfig:"IMAGE_MODEL" default:"gemini-2.0-flash-exp"`

	// VideoModel is the default video generation model.
	VideoModel string `envconfig:"VIDEO_MODEL" default:"veo-2.0-generate-001"`

	// ImageMaxRetries bounds retries after the first image attempt.
	ImageMaxRetries int `envconfig:"IMAGE_MAX_RETRIES" default:"2"`

	// VideoMaxRetries bounds retries after the first video attempt.
	VideoMaxRetries int `envconfig:"VIDEO_MAX_RETRIES" default:"2"`

	// VideoPollInterval is the delay between long-running operation polls.
	VideoPollInterval time.Duration `envconfig:"VIDEO_POLL_INTERVAL" default:"10s"`

	// VideoTimeout caps the total wall-clock wait for one video operation.
	VideoTimeout time.Duration `envconfig:"VIDEO_TIMEOUT" default:"5m"`

	// EmbedProvider selects the embedding backend for memory retrieval:
	// "gemini", "ollama" or "none". With "none" memories are returned by
	// recency only.
	EmbedProvider string `envconfig:"EMBED_PROVIDER" default:"none"`

	// EmbedModel is the embedding model name for the chosen provider.
	EmbedModel string `envconfig:"EMBED_MODEL"`

	// OllamaURL is the base URL of a local Ollama server.
	OllamaURL string `envconfig:"OLLAMA_URL" default:"http://localhost:11434"`

	// MemoryTopK is how many memories per scope are injected into a turn.
	MemoryTopK int `envconfig:"MEMORY_TOP_K" default:"5"`

	// MaxHistoryEvents caps transcript events sent to the model. Zero
	// means no cap.
	MaxHistoryEvents int `envconfig:"MAX_HISTORY_EVENTS" default:"0"`

	// Environment is the deployment environment name.
	Environment string `envconfig:"ENVIRONMENT" default:"dev"`

	// DebugLogging enables debug level logs.
	DebugLogging bool `envconfig:"DEBUG_LOGGING" default:"false"`
}

// Load reads configuration from the environment and applies defaults.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("AGENT_SERVICE", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process environment config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// NewForTesting returns a config with in-memory friendly defaults, suitable
// for unit tests that must not touch the environment.
func NewForTesting() *Config {
	return &Config{
		HTTPPort:          11545,
		DBDriver:          "sqlite",
		SQLitePath:        ":memory:",
		ChatModel:         "gemini-2.0-flash",
		ImageModel:        "gemini-2.0-flash-exp",
		VideoModel:        "veo-2.0-generate-001",
		ImageMaxRetries:   2,
		VideoMaxRetries:   2,
		VideoPollInterval: time.Millisecond,
		VideoTimeout:      time.Second,
		EmbedProvider:     "none",
		MemoryTopK:        5,
		Environment:       "test",
	}
}

// Validate checks cross-field constraints that envconfig cannot express.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case "sqlite", "postgres":
	default:
		return errors.Errorf("unsupported DB_DRIVER %q (want sqlite or postgres)", c.DBDriver)
	}
	if c.DBDriver == "postgres" && c.PostgresDSN == "" {
		return errors.New("POSTGRES_DSN is required when DB_DRIVER is postgres")
	}
	switch c.EmbedProvider {
	case "gemini", "ollama", "none":
	default:
		return errors.Errorf("unsupported EMBED_PROVIDER %q (want gemini, ollama or none)", c.EmbedProvider)
	}
	if c.EmbedProvider != "none" && c.EmbedModel == "" {
		return errors.New("EMBED_MODEL is required when EMBED_PROVIDER is set")
	}
	if c.MemoryTopK < 1 {
		return errors.New("MEMORY_TOP_K must be at least 1")
	}
	if c.ImageMaxRetries < 0 || c.VideoMaxRetries < 0 {
		return errors.New("retry limits must not be negative")
	}
	return nil
}

// GetHTTPAddr returns the listen address for the HTTP server.
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// IsProduction reports whether the service runs in a production environment.
func (c *Config) IsProduction() bool { return c.Environment == "prod" }

// IsTesting reports whether the service runs under tests.
func (c *Config) IsTesting() bool { return c.Environment == "test" }
