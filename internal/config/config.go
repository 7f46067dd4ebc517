package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
)

// DefaultPath is where the daemon looks for its config file.
const DefaultPath = "config/skygrid.yaml"

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	// URL, if set, is used verbatim instead of the discrete fields.
	URL string `yaml:"url"`

	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`

	// MaxConns caps the pool size; 0 keeps the pgx default.
	MaxConns int32 `yaml:"max_conns"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// Env holds process environment overrides. Empty values leave the file
// config untouched.
type Env struct {
	ConfigPath string `env:"SKYGRID_CONFIG" envDefault:"config/skygrid.yaml"`
	LogLevel   string `env:"SKYGRID_LOG_LEVEL"`
	DSN        string `env:"SKYGRID_DB_DSN"`
}

// ParseEnv loads Env from the process environment.
func ParseEnv() (Env, error) {
	var e Env
	if err := env.Parse(&e); err != nil {
		return e, fmt.Errorf("parse env: %w", err)
	}
	return e, nil
}

// Apply overrides cfg fields with the non-empty environment values.
func (e Env) Apply(cfg *Server) {
	if e.LogLevel != "" {
		cfg.LogLevel = e.LogLevel
	}
	if e.DSN != "" {
		cfg.Database.URL = e.DSN
	}
}

// ParseLogLevel converts string log level to slog.Level.
// Defaults to Info if invalid or empty.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
