package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment variable read by Load.
const EnvPrefix = "SCRY"

// Options adjusts where Load looks for configuration.
type Options struct {
	// ConfigFile is an explicit config file path. When empty, config.yaml is
	// searched for in the working directory and silently skipped if absent.
	ConfigFile string

	// EnvFile is a dotenv file loaded into the process environment before
	// reading variables. Missing files are ignored.
	EnvFile string
}

// Load configuration from environment variables and optionally config files.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	return LoadWithOptions(Options{EnvFile: ".env"})
}

// LoadWithOptions is Load with explicit file locations.
func LoadWithOptions(opts Options) (*Config, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", opts.EnvFile, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.ConfigFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cfg against its struct tags.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// setDefaults registers every key so AutomaticEnv can populate it during
// Unmarshal, including keys without a meaningful default.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_lifetime_minutes", 60)

	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.gemini_api_key", "")
	v.SetDefault("llm.openai_api_key", "")
	v.SetDefault("llm.openai_base_url", "")
	v.SetDefault("llm.model_name", "gemini-2.0-flash")
	v.SetDefault("llm.temperature", 0.4)
	v.SetDefault("llm.max_attempts", 3)
	v.SetDefault("llm.retry_delay", 2*time.Second)

	v.SetDefault("pipeline.prefetch", true)
	v.SetDefault("pipeline.admission_cap", 2)
	v.SetDefault("pipeline.max_question_set_retries", 3)
	v.SetDefault("pipeline.max_fetch_attempts", 3)
	v.SetDefault("pipeline.freshness_window", 30*24*time.Hour)
	v.SetDefault("pipeline.generation_concurrency", 4)
	v.SetDefault("pipeline.fetch_wait_interval", 2*time.Second)
	v.SetDefault("pipeline.fetch_wait_timeout", 2*time.Minute)
	v.SetDefault("pipeline.error_summary_length", 500)

	v.SetDefault("task.worker_count", 4)
	v.SetDefault("task.queue_size", 100)
	v.SetDefault("task.stuck_claim_age", 15*time.Minute)
	v.SetDefault("task.sweep_interval", time.Minute)
	v.SetDefault("task.run_timeout", 10*time.Minute)

	v.SetDefault("content.blob_backend", "sql")
	v.SetDefault("content.redis_url", "")
	v.SetDefault("content.gcs_bucket", "")
	v.SetDefault("content.gcs_endpoint", "")
	v.SetDefault("content.fetch_timeout", 30*time.Second)
	v.SetDefault("content.max_bytes", 10<<20)
	v.SetDefault("content.user_agent", "scry-hook/1.0 (+https://scry.study)")

	v.SetDefault("events.amqp_url", "")
	v.SetDefault("events.exchange", "scry.sessions")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "scry-hook")
}
