package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth" validate:"required"`
	LLM      LLMConfig      `mapstructure:"llm" validate:"required"`
	Pipeline PipelineConfig `mapstructure:"pipeline" validate:"required"`
	Task     TaskConfig     `mapstructure:"task" validate:"required"`
	Content  ContentConfig  `mapstructure:"content" validate:"required"`
	Events   EventsConfig   `mapstructure:"events"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// DatabaseConfig contains all database-related configuration settings.
// Driver selects between PostgreSQL (production) and SQLite (local use).
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver" validate:"required,oneof=postgres sqlite"`
	URL             string        `mapstructure:"url" validate:"required"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"gte=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret            string `mapstructure:"jwt_secret" validate:"required,min=32"`
	TokenLifetimeMinutes int    `mapstructure:"token_lifetime_minutes" validate:"gt=0"`
}

// LLMConfig contains all LLM integration related settings. MaxAttempts and
// RetryDelay bound the local retry of each analysis and synthesis call.
type LLMConfig struct {
	Provider      string        `mapstructure:"provider" validate:"required,oneof=gemini openai"`
	GeminiAPIKey  string        `mapstructure:"gemini_api_key" validate:"required_if=Provider gemini"`
	OpenAIAPIKey  string        `mapstructure:"openai_api_key" validate:"required_if=Provider openai"`
	OpenAIBaseURL string        `mapstructure:"openai_base_url" validate:"omitempty,url"`
	ModelName     string        `mapstructure:"model_name" validate:"required"`
	Temperature   float32       `mapstructure:"temperature" validate:"gte=0,lte=2"`
	MaxAttempts   int           `mapstructure:"max_attempts" validate:"gte=1,lte=10"`
	RetryDelay    time.Duration `mapstructure:"retry_delay" validate:"gte=0"`
}

// PipelineConfig contains the job pipeline's policy knobs. Prefetch fetches
// content on submission, before the session is admitted.
type PipelineConfig struct {
	Prefetch              bool          `mapstructure:"prefetch"`
	AdmissionCap          int           `mapstructure:"admission_cap" validate:"gte=1"`
	MaxQuestionSetRetries int           `mapstructure:"max_question_set_retries" validate:"gte=1"`
	MaxFetchAttempts      int           `mapstructure:"max_fetch_attempts" validate:"gte=1"`
	FreshnessWindow       time.Duration `mapstructure:"freshness_window" validate:"gt=0"`
	GenerationConcurrency int           `mapstructure:"generation_concurrency" validate:"gte=1"`
	FetchWaitInterval     time.Duration `mapstructure:"fetch_wait_interval" validate:"gt=0"`
	FetchWaitTimeout      time.Duration `mapstructure:"fetch_wait_timeout" validate:"gt=0"`
	ErrorSummaryLength    int           `mapstructure:"error_summary_length" validate:"gte=32"`
}

// TaskConfig configures the background runner and its sweeper. RunTimeout
// must stay below StuckClaimAge so a run gives up before the sweeper can hand
// its claim to another run.
type TaskConfig struct {
	WorkerCount   int           `mapstructure:"worker_count" validate:"gte=1"`
	QueueSize     int           `mapstructure:"queue_size" validate:"gte=1"`
	StuckClaimAge time.Duration `mapstructure:"stuck_claim_age" validate:"gt=0"`
	SweepInterval time.Duration `mapstructure:"sweep_interval" validate:"gt=0"`
	RunTimeout    time.Duration `mapstructure:"run_timeout" validate:"gt=0,ltfield=StuckClaimAge"`
}

// ContentConfig configures document fetching and where content is kept.
type ContentConfig struct {
	BlobBackend  string        `mapstructure:"blob_backend" validate:"required,oneof=sql redis gcs"`
	RedisURL     string        `mapstructure:"redis_url" validate:"required_if=BlobBackend redis"`
	GCSBucket    string        `mapstructure:"gcs_bucket" validate:"required_if=BlobBackend gcs"`
	GCSEndpoint  string        `mapstructure:"gcs_endpoint" validate:"omitempty,url"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout" validate:"gt=0"`
	MaxBytes     int64         `mapstructure:"max_bytes" validate:"gt=0"`
	UserAgent    string        `mapstructure:"user_agent" validate:"required"`
}

// EventsConfig configures optional publication of session lifecycle events.
// Publishing is disabled when AMQPURL is empty.
type EventsConfig struct {
	AMQPURL  string `mapstructure:"amqp_url"`
	Exchange string `mapstructure:"exchange" validate:"required_with=AMQPURL"`
}

// TracingConfig toggles span export for pipeline runs.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name" validate:"required_if=Enabled true"`
}
