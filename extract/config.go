package extract

import (
	"errors"
	"time"
)

// Config holds configuration for the extraction model client.
type Config struct {
	// BaseURL is the OpenAI-compatible endpoint of the extraction service.
	// Example: "https://dashscope.aliyuncs.com/compatible-mode/v1"
	BaseURL string

	// APIKey authenticates against the service.
	APIKey string

	// Model is the model identifier to request.
	// Example: "qwen3-max"
	Model string

	// Temperature for generation. Extraction wants near-deterministic output.
	Temperature float64

	// Timeout bounds a single extraction call, including streaming.
	Timeout time.Duration
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithBaseURL sets the service endpoint.
func WithBaseURL(url string) ConfigOption {
	return func(c *Config) {
		c.BaseURL = url
	}
}

// WithAPIKey sets the service credential.
func WithAPIKey(key string) ConfigOption {
	return func(c *Config) {
		c.APIKey = key
	}
}

// WithModel sets the model identifier.
func WithModel(model string) ConfigOption {
	return func(c *Config) {
		c.Model = model
	}
}

// WithTemperature sets the generation temperature.
func WithTemperature(temperature float64) ConfigOption {
	return func(c *Config) {
		c.Temperature = temperature
	}
}

// WithTimeout sets the per-call timeout.
func WithTimeout(timeout time.Duration) ConfigOption {
	return func(c *Config) {
		c.Timeout = timeout
	}
}

// DefaultConfig returns a Config with the defaults used against DashScope's
// OpenAI-compatible endpoint.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:     "https://dashscope.aliyuncs.com/compatible-mode/v1",
		Model:       "qwen3-max",
		Temperature: 0.05,
		Timeout:     10 * time.Minute,
	}
}

// NewConfig creates a Config with defaults and applies the provided options.
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Validate checks that the configuration is complete.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("extract config: BaseURL is required")
	}
	if c.APIKey == "" {
		return errors.New("extract config: APIKey is required")
	}
	if c.Model == "" {
		return errors.New("extract config: Model is required")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return errors.New("extract config: Temperature must be between 0 and 2")
	}
	if c.Timeout <= 0 {
		return errors.New("extract config: Timeout must be positive")
	}
	return nil
}
