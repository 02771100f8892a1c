// Package config provides environment configuration for the API server.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/capitalize-ai/essay-pipeline/internal/llm"
)

// ErrNoCredentials is returned when a required provider has no API key.
var ErrNoCredentials = errors.New("no credentials for llm provider")

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	CORSOrigins        []string

	// NATS settings
	NATSEnabled  bool
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// JWT settings; an empty secret disables authentication
	JWTSecret string

	// LLM settings
	AnthropicAPIKey string
	AnthropicModel  string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	OpenAIModel     string
	GeminiAPIKey    string
	GeminiModel     string
	DefaultLLM      string
	LLMTemperature  float64
	LLMMaxTokens    int
	BackendTimeout  time.Duration

	// Pipelines
	PipelinesFile string

	// Streaming
	StreamBuffer        int
	StreamPollInterval  time.Duration
	StreamFinishTimeout time.Duration

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		// Server; streams run for minutes, so no write deadline by default
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 0),
		CORSOrigins:        getListEnv("CORS_ORIGINS"),

		// NATS
		NATSEnabled:  getBoolEnv("NATS_ENABLED", false),
		NATSURL:      getEnv("NATS_URL", "nats://localhost:4222"),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", ""),

		// LLM
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicModel:  getEnv("ANTHROPIC_MODEL", "claude-3-5-sonnet-latest"),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:   getEnv("OPENAI_BASE_URL", ""),
		OpenAIModel:     getEnv("OPENAI_MODEL", "gpt-4o"),
		GeminiAPIKey:    getEnv("GEMINI_API_KEY", ""),
		GeminiModel:     getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		DefaultLLM:      getEnv("DEFAULT_LLM", "openai"),
		LLMTemperature:  getFloatEnv("LLM_TEMPERATURE", 0.7),
		LLMMaxTokens:    getIntEnv("LLM_MAX_TOKENS", 4096),
		BackendTimeout:  getDurationEnv("BACKEND_TIMEOUT", 2*time.Minute),

		// Pipelines
		PipelinesFile: getEnv("PIPELINES_FILE", ""),

		// Streaming
		StreamBuffer:        getIntEnv("STREAM_BUFFER", 64),
		StreamPollInterval:  getDurationEnv("STREAM_POLL_INTERVAL", time.Second),
		StreamFinishTimeout: getDurationEnv("STREAM_FINISH_TIMEOUT", 10*time.Second),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

// DefaultProvider parses DEFAULT_LLM.
func (c *Config) DefaultProvider() (llm.Provider, error) {
	return llm.ParseProvider(c.DefaultLLM)
}

// Validate checks that the default provider, and every provider in required,
// has credentials. The process must not serve requests if this fails.
func (c *Config) Validate(required ...llm.Provider) error {
	def, err := c.DefaultProvider()
	if err != nil {
		return fmt.Errorf("DEFAULT_LLM: %w", err)
	}
	dialer := llm.NewDialer(c.LLMSettings())
	for _, p := range append([]llm.Provider{def}, required...) {
		if !dialer.Available(p) {
			return fmt.Errorf("%w: %s", ErrNoCredentials, p)
		}
	}
	if c.StreamPollInterval <= 0 || c.StreamFinishTimeout <= 0 {
		return errors.New("STREAM_POLL_INTERVAL and STREAM_FINISH_TIMEOUT must be positive")
	}
	return nil
}

// LLMSettings extracts the provider settings.
func (c *Config) LLMSettings() llm.Settings {
	return llm.Settings{
		AnthropicAPIKey: c.AnthropicAPIKey,
		AnthropicModel:  c.AnthropicModel,
		OpenAIAPIKey:    c.OpenAIAPIKey,
		OpenAIBaseURL:   c.OpenAIBaseURL,
		OpenAIModel:     c.OpenAIModel,
		GeminiAPIKey:    c.GeminiAPIKey,
		GeminiModel:     c.GeminiModel,
		Temperature:     c.LLMTemperature,
		MaxTokens:       c.LLMMaxTokens,
		Timeout:         c.BackendTimeout,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getListEnv(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
