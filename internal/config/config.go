// Package config loads pr-daemon configuration from the environment.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const envFile = ".env"

// Load reads .env (without overriding variables already set), the environment and the defaults.
func Load() (*Config, error) {
	v := viper.New()
	if envMap, err := godotenv.Read(envFile); err == nil {
		for k, val := range envMap {
			if _, exists := os.LookupEnv(k); !exists {
				_ = os.Setenv(k, val)
			}
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindEnvs(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "postgres")
	v.SetDefault("postgres.password", "postgres")
	v.SetDefault("postgres.db_name", "pr_daemon")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.query_timeout", 5*time.Second)
	v.SetDefault("postgres.migrate_timeout", 30*time.Second)

	v.SetDefault("scan.interval", time.Minute)
	v.SetDefault("scan.stalled_interval", time.Minute)

	v.SetDefault("thresholds.stale", 48*time.Hour)
	v.SetDefault("thresholds.unreviewed", 24*time.Hour)
	v.SetDefault("thresholds.stalled", 48*time.Hour)

	v.SetDefault("alerts.max_per_team", 20)

	v.SetDefault("dispatch.pacing", 500*time.Millisecond)
	v.SetDefault("dispatch.request_timeout", 10*time.Second)

	v.SetDefault("slack.default_webhook_url", "")
	v.SetDefault("github.webhook_secret", "")
	v.SetDefault("github.base_url", "https://github.com")
	v.SetDefault("auth.token_secret", "")
}

func bindEnvs(v *viper.Viper) {
	keys := []string{
		"logging.level",
		"server.host",
		"server.port",
		"server.shutdown_timeout",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.db_name",
		"postgres.ssl_mode",
		"postgres.max_conns",
		"postgres.min_conns",
		"postgres.query_timeout",
		"postgres.migrate_timeout",
		"scan.interval",
		"scan.stalled_interval",
		"thresholds.stale",
		"thresholds.unreviewed",
		"thresholds.stalled",
		"alerts.max_per_team",
		"dispatch.pacing",
		"dispatch.request_timeout",
		"slack.default_webhook_url",
		"github.webhook_secret",
		"github.base_url",
		"auth.token_secret",
	}

	for _, k := range keys {
		_ = v.BindEnv(k)
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks required fields and value ranges.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	return nil
}
