// Package config holds the run-scoped job configuration: where to read
// segments, where results and the progress ledger live, how to reach the
// extraction service, and the scheduler's concurrency and retry policy.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML can use strings like "90s" or "10m".
type Duration time.Duration

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is one extraction job's configuration.
type Config struct {
	// Paths.
	Input  string `yaml:"input"`
	Output string `yaml:"output"`
	Ledger string `yaml:"ledger"`

	// Extraction service.
	Endpoint    string   `yaml:"endpoint"`
	APIKey      string   `yaml:"api_key"`
	Model       string   `yaml:"model"`
	Temperature float64  `yaml:"temperature"`
	Timeout     Duration `yaml:"timeout"`

	// Scheduler policy.
	Concurrency    int      `yaml:"concurrency"`
	MaxAttempts    int      `yaml:"max_attempts"`
	BackoffBase    Duration `yaml:"backoff_base"`
	BackoffMax     Duration `yaml:"backoff_max"`
	ReportInterval Duration `yaml:"report_interval"`

	// Input handling.
	GroupSections bool `yaml:"group_sections"`
}

// Default returns the configuration defaults.
func Default() Config {
	return Config{
		Endpoint:       "https://dashscope.aliyuncs.com/compatible-mode/v1",
		Model:          "qwen3-max",
		Temperature:    0.05,
		Timeout:        Duration(10 * time.Minute),
		Concurrency:    4,
		MaxAttempts:    3,
		BackoffBase:    Duration(time.Second),
		BackoffMax:     Duration(time.Minute),
		ReportInterval: Duration(30 * time.Second),
		GroupSections:  true,
	}
}

// Load reads a YAML config file over the defaults. An empty path returns the
// defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv fills the credential from the environment if the file and flags
// did not set it. Keys do not belong in config files under version control.
func (c *Config) ApplyEnv() {
	if c.APIKey == "" {
		c.APIKey = os.Getenv("WUZHOU_API_KEY")
	}
	if c.APIKey == "" {
		c.APIKey = os.Getenv("DASHSCOPE_API_KEY")
	}
}

// Validate checks that the configuration can drive a run.
func (c *Config) Validate() error {
	if c.Input == "" {
		return errors.New("config: input path is required")
	}
	if c.Output == "" {
		return errors.New("config: output path is required")
	}
	if c.Ledger == "" {
		return errors.New("config: ledger path is required")
	}
	if c.Endpoint == "" {
		return errors.New("config: endpoint is required")
	}
	if c.APIKey == "" {
		return errors.New("config: api key is required (set WUZHOU_API_KEY)")
	}
	if c.Model == "" {
		return errors.New("config: model is required")
	}
	if c.Concurrency < 1 {
		return errors.New("config: concurrency must be at least 1")
	}
	if c.MaxAttempts < 1 {
		return errors.New("config: max_attempts must be at least 1")
	}
	if c.Timeout.Std() <= 0 {
		return errors.New("config: timeout must be positive")
	}
	return nil
}
