// Package config loads vibe-pgx settings from defaults, ~/.vibe-pgx.yaml and
// VIBE_PGX_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/inodb/vibe-pgx/internal/analysis"
	"github.com/inodb/vibe-pgx/internal/explain"
)

// FileName is the config file name in the user's home directory.
const FileName = ".vibe-pgx.yaml"

// EnvPrefix prefixes environment overrides, e.g. VIBE_PGX_SERVER_PORT.
const EnvPrefix = "VIBE_PGX"

// Config is the complete application configuration.
type Config struct {
	Log         LogConfig         `mapstructure:"log"`
	Analysis    AnalysisConfig    `mapstructure:"analysis"`
	Rules       RulesConfig       `mapstructure:"rules"`
	Explanation ExplanationConfig `mapstructure:"explanation"`
	Server      ServerConfig      `mapstructure:"server"`
	History     HistoryConfig     `mapstructure:"history"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // console or json
}

// AnalysisConfig configures the analyzer.
type AnalysisConfig struct {
	Workers  int    `mapstructure:"workers"` // 0 means runtime.NumCPU()
	Language string `mapstructure:"language"`
}

// RulesConfig selects the rule table. An empty path uses the built-in table.
type RulesConfig struct {
	Path string `mapstructure:"path"`
}

// ExplanationConfig configures the remote explanation service.
type ExplanationConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	explain.Config `mapstructure:",squash"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// HistoryConfig configures the DuckDB analysis history.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("analysis.workers", 0)
	v.SetDefault("analysis.language", analysis.DefaultLanguage)

	v.SetDefault("rules.path", "")

	v.SetDefault("explanation.enabled", false)
	v.SetDefault("explanation.endpoint", "")
	v.SetDefault("explanation.timeout", "30s")
	v.SetDefault("explanation.retries", 1)
	v.SetDefault("explanation.backoff", "3s")
	v.SetDefault("explanation.rate_limit", 5)
	v.SetDefault("explanation.cache_size", 256)

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "120s")
	v.SetDefault("server.max_upload_bytes", 5*1024*1024)

	v.SetDefault("history.enabled", false)
	v.SetDefault("history.path", filepath.Join("~", ".vibe-pgx", "history.duckdb"))
}

// Init prepares v: defaults, environment binding and the config file. An
// empty path means ~/.vibe-pgx.yaml, which may be absent.
func Init(v *viper.Viper, path string) error {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file %s: %w", path, err)
		}
		return nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	v.SetConfigName(strings.TrimSuffix(FileName, ".yaml"))
	v.SetConfigType("yaml")
	v.AddConfigPath(home)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("reading config file: %w", err)
		}
	}
	return nil
}

// Load unmarshals and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.History.Path = ExpandHome(cfg.History.Path)
	cfg.Rules.Path = ExpandHome(cfg.Rules.Path)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if c.Log.Format != "console" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be console or json, got %q", c.Log.Format)
	}
	if c.Analysis.Workers < 0 {
		return fmt.Errorf("analysis.workers must not be negative")
	}
	if !analysis.ValidLanguage(c.Analysis.Language) {
		return fmt.Errorf("analysis.language: unsupported language %q", c.Analysis.Language)
	}
	if c.Explanation.Enabled && c.Explanation.Endpoint == "" {
		return fmt.Errorf("explanation.endpoint is required when explanation.enabled is true")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("server.max_upload_bytes must be positive")
	}
	return nil
}

// NewLogger builds a zap logger for the log settings.
func (l LogConfig) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(l.Level)
	if err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}

	zc := zap.NewProductionConfig()
	if l.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}

	return zc.Build()
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// DefaultFilePath returns ~/.vibe-pgx.yaml.
func DefaultFilePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, FileName), nil
}
