package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Config holds application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Postgres   PostgresConfig   `mapstructure:"postgres"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Scan       ScanConfig       `mapstructure:"scan"`
	Thresholds ThresholdsConfig `mapstructure:"thresholds"`
	Alerts     AlertsConfig     `mapstructure:"alerts"`
	Dispatch   DispatchConfig   `mapstructure:"dispatch"`
	Slack      SlackConfig      `mapstructure:"slack"`
	Github     GithubConfig     `mapstructure:"github"`
	Auth       AuthConfig       `mapstructure:"auth"`
}

// ServerAddr returns host:port for HTTP server binding.
func (c Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// PostgresConfig describes database connection parameters.
type PostgresConfig struct {
	Host           string        `mapstructure:"host" validate:"required"`
	Port           int           `mapstructure:"port" validate:"required"`
	User           string        `mapstructure:"user" validate:"required"`
	Password       string        `mapstructure:"password" validate:"required"`
	DBName         string        `mapstructure:"db_name" validate:"required"`
	SSLMode        string        `mapstructure:"ssl_mode"`
	MaxConns       int32         `mapstructure:"max_conns" validate:"gte=1"`
	MinConns       int32         `mapstructure:"min_conns"`
	QueryTimeout   time.Duration `mapstructure:"query_timeout"`
	MigrateTimeout time.Duration `mapstructure:"migrate_timeout"`
}

// DSN returns a Postgres connection string understood by both pgx and lib/pq.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode,
	)
}

type LoggingConfig struct {
	Level string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
}

// ScanConfig drives the periodic detection jobs.
type ScanConfig struct {
	Interval        time.Duration `mapstructure:"interval" validate:"gt=0"`
	StalledInterval time.Duration `mapstructure:"stalled_interval" validate:"gt=0"`
}

type ThresholdsConfig struct {
	Stale      time.Duration `mapstructure:"stale" validate:"gt=0"`
	Unreviewed time.Duration `mapstructure:"unreviewed" validate:"gt=0"`
	Stalled    time.Duration `mapstructure:"stalled" validate:"gt=0"`
}

type AlertsConfig struct {
	MaxPerTeam int `mapstructure:"max_per_team" validate:"gt=0"`
}

type DispatchConfig struct {
	Pacing         time.Duration `mapstructure:"pacing" validate:"gte=0"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
}

type SlackConfig struct {
	// DefaultWebhookURL receives alerts for repositories no team has claimed.
	DefaultWebhookURL string `mapstructure:"default_webhook_url" validate:"omitempty,url"`
}

type GithubConfig struct {
	WebhookSecret string `mapstructure:"webhook_secret"`
	BaseURL       string `mapstructure:"base_url" validate:"required,url"`
}

type AuthConfig struct {
	// TokenSecret signs API tokens. Only the commands that sign or verify tokens require it.
	TokenSecret string `mapstructure:"token_secret"`
}

// ErrMissingTokenSecret is returned when auth.token_secret is empty.
var ErrMissingTokenSecret = errors.New("auth.token_secret (AUTH_TOKEN_SECRET) is not set")

// Validate reports whether tokens can be signed safely.
func (a AuthConfig) Validate() error {
	if strings.TrimSpace(a.TokenSecret) == "" {
		return ErrMissingTokenSecret
	}
	return nil
}
