package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models escrowline.yml.
type Config struct {
	Actor struct {
		Principal string `yaml:"principal"`
	} `yaml:"actor"`
	Ledger struct {
		BaseURL string `yaml:"base_url"`
		APIKey  string `yaml:"api_key"`
	} `yaml:"ledger"`
	Notify struct {
		BaseURL string `yaml:"base_url"`
		APIKey  string `yaml:"api_key"`
	} `yaml:"notify"`
	Retry struct {
		Attempts int `yaml:"attempts"`
		DelayMS  int `yaml:"delay_ms"`
	} `yaml:"retry"`
	Actions struct {
		TimeoutMS int `yaml:"timeout_ms"`
	} `yaml:"actions"`
	Compat struct {
		// LegacyOwnerPrefix enables the pre-migration sender-owned
		// fallback for recipient-less records; empty disables it.
		LegacyOwnerPrefix string `yaml:"legacy_owner_prefix"`
	} `yaml:"compat"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
		APIKey    string `yaml:"api_key"`
	} `yaml:"auth"`
}

// RetryDelay returns the configured fixed delay between re-fetch attempts.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.Retry.DelayMS) * time.Millisecond
}

// ActionTimeout bounds one whole orchestrator action.
func (c *Config) ActionTimeout() time.Duration {
	return time.Duration(c.Actions.TimeoutMS) * time.Millisecond
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; run esc config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Ledger.BaseURL == "" {
		return fmt.Errorf("config.ledger.base_url is required")
	}
	if _, err := url.Parse(c.Ledger.BaseURL); err != nil {
		return fmt.Errorf("config.ledger.base_url: %w", err)
	}
	if c.Retry.Attempts < 1 {
		return fmt.Errorf("config.retry.attempts must be at least 1")
	}
	if c.Retry.DelayMS < 0 {
		return fmt.Errorf("config.retry.delay_ms must not be negative")
	}
	if c.Actions.TimeoutMS <= 0 {
		return fmt.Errorf("config.actions.timeout_ms must be positive")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "escrowline.yml")
}

// Default returns the built-in defaults: 3 re-fetch attempts a second
// apart, a 15s cap per action, compat fallback off.
func Default() *Config {
	var cfg Config
	cfg.Ledger.BaseURL = "http://127.0.0.1:9090"
	cfg.Retry.Attempts = 3
	cfg.Retry.DelayMS = 1000
	cfg.Actions.TimeoutMS = 15000
	return &cfg
}

// GenerateDefault returns default config YAML for esc config init.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `actor:
  principal: ""

ledger:
  base_url: http://127.0.0.1:9090
  api_key: ""

notify:
  base_url: ""
  api_key: ""

retry:
  attempts: 3
  delay_ms: 1000

actions:
  timeout_ms: 15000

compat:
  legacy_owner_prefix: ""

auth:
  jwt_secret: ""
  api_key: ""
`
