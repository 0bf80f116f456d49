package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v2"
)

// Config holds the router's configuration.
type Config struct {
	// Router holds the event router's own configuration.
	Router RouterConfig `yaml:"router"`

	// Logging holds logging configuration.
	Logging LoggingConfig `yaml:"logging"`
}

// RouterConfig holds the batch Router's configuration.
type RouterConfig struct {
	// EventsTableName names the durable store events are written to in
	// Step 6 of the batch pipeline.
	EventsTableName string `yaml:"eventsTableName"`

	// DLQURL is the dead-letter sink's address. Empty disables DLQ
	// emission: failed events are logged and dropped.
	DLQURL string `yaml:"dlqUrl"`

	// BatchSize is the largest batch the router is configured to be handed
	// in one ProcessBatch call. ProcessBatch does not check its input
	// against it; only Validate reads it.
	BatchSize int `yaml:"batchSize"`

	// TTLDays is the retention window applied to stored events. Zero
	// disables TTL: events are stored without an expiry.
	TTLDays int `yaml:"ttlDays"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the logging level.
	Level string `yaml:"level"`

	// Format is the logging format (json or console).
	Format string `yaml:"format"`
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *Config {
	return &Config{
		Router: RouterConfig{
			EventsTableName: "events",
			BatchSize:       50,
			TTLDays:         30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// validateConfigPath validates and sanitizes the config file path to
// prevent path traversal.
func validateConfigPath(configFile string) (string, error) {
	if configFile == "" {
		return "", nil
	}

	cleanPath := filepath.Clean(configFile)

	if strings.Contains(cleanPath, "..") {
		return "", fmt.Errorf("path traversal detected in config file path: %s", configFile)
	}

	if strings.HasPrefix(cleanPath, "/") || strings.HasPrefix(cleanPath, "\\") {
		if !filepath.IsAbs(cleanPath) {
			return "", fmt.Errorf("invalid absolute path: %s", configFile)
		}
	}

	suspiciousPatterns := []string{"../", "..\\", "/..", "\\.."}
	for _, pattern := range suspiciousPatterns {
		if strings.Contains(cleanPath, pattern) {
			return "", fmt.Errorf("suspicious path pattern detected: %s", pattern)
		}
	}

	return cleanPath, nil
}

// Load loads configuration from file (if given) layered over defaults,
// then applies environment variable overrides.
func Load(configFile string) (*Config, error) {
	config := DefaultConfig()

	if configFile != "" {
		safePath, err := validateConfigPath(configFile)
		if err != nil {
			return nil, fmt.Errorf("invalid config file path: %w", err)
		}

		// #nosec G304 - Path is validated above to prevent path traversal
		data, err := os.ReadFile(safePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if tableName := os.Getenv("ROUTER_EVENTS_TABLE"); tableName != "" {
		config.Router.EventsTableName = tableName
	}
	if dlqURL := os.Getenv("ROUTER_DLQ_URL"); dlqURL != "" {
		config.Router.DLQURL = dlqURL
	}
	if level := os.Getenv("ROUTER_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	return config, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Router.EventsTableName == "" {
		return fmt.Errorf("router.eventsTableName is required")
	}

	if c.Router.BatchSize <= 0 {
		return fmt.Errorf("router.batchSize must be positive")
	}

	if c.Router.TTLDays < 0 {
		return fmt.Errorf("router.ttlDays must not be negative")
	}

	return nil
}
