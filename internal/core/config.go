package core

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jo-hoe/gorotate/internal/backend/commandstructure"
	"github.com/jo-hoe/gorotate/internal/rotation"
	"github.com/jo-hoe/gorotate/internal/telemetry"
	"gopkg.in/yaml.v3"
)

// CommandConfig represents a generic command configuration.
// Every key besides name is handed to the command as a parameter.
type CommandConfig struct {
	Name   string         `yaml:"name"`
	Params map[string]any `yaml:",inline"`
}

type Database struct {
	Type             string `yaml:"type"`
	ConnectionString string `yaml:"connectionString"`
}

type Session struct {
	CookieName      string        `yaml:"cookieName"`
	TTL             time.Duration `yaml:"ttl"`
	CleanupInterval time.Duration `yaml:"cleanupInterval"`
}

type Rotation struct {
	JPEGQuality       int   `yaml:"jpegQuality"`
	SVGFallbackWidth  int   `yaml:"svgFallbackWidth"`
	SVGFallbackHeight int   `yaml:"svgFallbackHeight"`
	MaxUploadBytes    int64 `yaml:"maxUploadBytes"`
	MaxPixels         int64 `yaml:"maxPixels"`
}

type ServiceConfig struct {
	Host            string                `yaml:"host"`
	Port            int                   `yaml:"port"`
	LogLevel        string                `yaml:"logLevel"`
	Database        Database              `yaml:"database"`
	Session         Session               `yaml:"session"`
	Rotation        Rotation              `yaml:"rotation"`
	Tracing         telemetry.TraceConfig `yaml:"tracing"`
	UploadCommands  []CommandConfig       `yaml:"uploadCommands"`
	PreviewCommands []CommandConfig       `yaml:"previewCommands"`
}

// DefaultConfig returns a configuration for a local single-user instance
func DefaultConfig() *ServiceConfig {
	return &ServiceConfig{
		Host:     "127.0.0.1",
		Port:     8080,
		LogLevel: "info",
		Database: Database{
			Type:             "sqlite",
			ConnectionString: ":memory:",
		},
		Session: Session{
			CookieName:      "gorotate_session",
			TTL:             time.Hour,
			CleanupInterval: 5 * time.Minute,
		},
		Rotation: Rotation{
			JPEGQuality:       rotation.DefaultJPEGQuality,
			SVGFallbackWidth:  300,
			SVGFallbackHeight: 150,
			MaxUploadBytes:    rotation.DefaultReadLimit,
			MaxPixels:         rotation.DefaultMaxPixels,
		},
		Tracing: telemetry.TraceConfig{
			ServiceName: "gorotate",
			Exporter:    "none",
		},
		UploadCommands: []CommandConfig{},
		PreviewCommands: []CommandConfig{
			{Name: "ThumbnailCommand", Params: map[string]any{"width": 300}},
		},
	}
}

// LoadConfig loads configuration from the specified YAML file. Keys missing
// from the file keep their DefaultConfig values.
func LoadConfig(configPath string) (*ServiceConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", configPath, err)
	}
	return config, nil
}

// LoadConfigOrDefault behaves like LoadConfig but falls back to DefaultConfig
// when allowMissing is set and the file does not exist.
func LoadConfigOrDefault(configPath string, allowMissing bool) (*ServiceConfig, error) {
	config, err := LoadConfig(configPath)
	if err != nil && allowMissing && errors.Is(err, os.ErrNotExist) {
		slog.Info("config: no config file found, using defaults", "path", configPath)
		return DefaultConfig(), nil
	}
	return config, err
}

// Validate checks the configuration for values the service cannot run with
func (c *ServiceConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if _, err := parseLogLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.Database.Type {
	case "sqlite", "redis":
	default:
		return fmt.Errorf("unsupported database type: %q", c.Database.Type)
	}
	if c.Session.CookieName == "" {
		return fmt.Errorf("session cookie name cannot be empty")
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session ttl must be positive, got %s", c.Session.TTL)
	}
	if c.Session.CleanupInterval <= 0 {
		return fmt.Errorf("session cleanup interval must be positive, got %s", c.Session.CleanupInterval)
	}
	if q := c.Rotation.JPEGQuality; q < 1 || q > 100 {
		return fmt.Errorf("jpeg quality must be between 1 and 100, got %d", q)
	}
	if c.Rotation.SVGFallbackWidth <= 0 || c.Rotation.SVGFallbackHeight <= 0 {
		return fmt.Errorf("svg fallback size must be positive")
	}
	if c.Rotation.MaxUploadBytes <= 0 {
		return fmt.Errorf("max upload bytes must be positive, got %d", c.Rotation.MaxUploadBytes)
	}
	if c.Rotation.MaxPixels <= 0 {
		return fmt.Errorf("max pixels must be positive, got %d", c.Rotation.MaxPixels)
	}
	if err := validateCommands(c.UploadCommands); err != nil {
		return fmt.Errorf("invalid upload command configuration: %w", err)
	}
	if err := validateCommands(c.PreviewCommands); err != nil {
		return fmt.Errorf("invalid preview command configuration: %w", err)
	}
	return nil
}

// SlogLevel returns the configured log level
func (c *ServiceConfig) SlogLevel() slog.Level {
	level, err := parseLogLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

// Address returns the listen address for the HTTP server
func (c *ServiceConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unsupported log level: %q", level)
}

// validateCommands ensures all command configurations have required fields
// and refer to registered commands
func validateCommands(commands []CommandConfig) error {
	seenNames := make(map[string]bool)

	for i, cmd := range commands {
		if cmd.Name == "" {
			return fmt.Errorf("command at index %d has empty name", i)
		}
		if seenNames[cmd.Name] {
			return fmt.Errorf("duplicate command name: %s", cmd.Name)
		}
		seenNames[cmd.Name] = true

		if !commandstructure.DefaultRegistry.IsRegistered(cmd.Name) {
			return fmt.Errorf("unknown command: %s", cmd.Name)
		}
	}

	return nil
}

func toCommandConfigs(commands []CommandConfig) []commandstructure.CommandConfig {
	configs := make([]commandstructure.CommandConfig, 0, len(commands))
	for _, cmd := range commands {
		configs = append(configs, commandstructure.CommandConfig{Name: cmd.Name, Params: cmd.Params})
	}
	return configs
}
