package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	chat "github.com/koscakluka/natlang-core/core"
	"github.com/koscakluka/natlang-core/core/llms/openai"
	"gopkg.in/yaml.v3"
)

var errNoConfig = errors.New("no config file found")

// DefaultSearchPaths returns the config file search order used when no
// explicit path is given: ./natlang.yaml, then ~/.config/natlang/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"natlang.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "natlang", "config.yaml"))
	}
	return paths
}

// FindConfig locates a config file. An explicit path must exist, otherwise
// the first existing search path is returned.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, path := range DefaultSearchPaths() {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w (searched: %v)", errNoConfig, DefaultSearchPaths())
}

// Config holds the demo host configuration.
type Config struct {
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string        `yaml:"api_key_env"`
	Timeout   time.Duration `yaml:"timeout"`
	Listen    string        `yaml:"listen"`
	LogLevel  string        `yaml:"log_level"`
	// LogFile receives logs while the terminal chat is running. Logs are
	// discarded when it is empty.
	LogFile      string `yaml:"log_file"`
	Prepend      bool   `yaml:"prepend"`
	QueuePrompts bool   `yaml:"queue_prompts"`
	SystemPrompt string `yaml:"system_prompt"`
}

func DefaultConfig() Config {
	return Config{
		Model:     "gpt-4o-mini",
		BaseURL:   openai.DefaultBaseURL,
		APIKeyEnv: "OPENAI_API_KEY",
		Timeout:   chat.DefaultResponseTimeout,
		Listen:    "localhost:8080",
		LogLevel:  "info",
	}
}

// LoadConfig reads the config file at path on top of the defaults. An empty
// path yields the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return &cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", c.Timeout)
	}
	if _, err := parseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// APIKey returns the API key from the configured environment variable.
func (c *Config) APIKey() string {
	if c.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.APIKeyEnv)
}

func (c *Config) SlogLevel() slog.Level {
	level, _ := parseLogLevel(c.LogLevel)
	return level
}

func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}
