package config

// Package config provides structures and utilities for managing application configuration.

// EmbeddedConfig holds the content of the configuration file, typically passed from main.go.
// This is used when loading configuration from an embedded source (e.g., a compiled binary).
type EmbeddedConfig []byte

// ItemRetryConfig holds item-level retry configuration.
type ItemRetryConfig struct {
	MaxAttempts         int      `yaml:"max_attempts"`         // MaxAttempts is the maximum number of retry attempts for an item.
	InitialInterval     int      `yaml:"initial_interval"`     // InitialInterval is the initial backoff interval in milliseconds for an item.
	RetryableExceptions []string `yaml:"retryable_exceptions"` // RetryableExceptions is a list of retryable exception names (string).
}

// ItemSkipConfig holds item-level skip configuration.
type ItemSkipConfig struct {
	SkipLimit           int      `yaml:"skip_limit"`           // SkipLimit is the maximum number of items to skip.
	SkippableExceptions []string `yaml:"skippable_exceptions"` // SkippableExceptions is a list of skippable exception names (string).
}

// BatchConfig holds configuration specific to the batch engine.
type BatchConfig struct {
	// JobName is the job name recorded in the metadata store.
	JobName string `yaml:"job_name"`
	// ChunkSize is the maximum number of filter values per store query.
	// Values above the store's hard ceiling are clamped by the reader.
	ChunkSize int `yaml:"chunk_size"`
	// PageSize is the number of records requested per result page.
	PageSize int `yaml:"page_size"`
	// MaxPages is the hard cap on continuation pages fetched per chunk.
	MaxPages int `yaml:"max_pages"`
	// ChunkDelaySeconds is the pause between consecutive chunk queries.
	ChunkDelaySeconds int `yaml:"chunk_delay_seconds"`
	// CommitInterval is the number of written items between checkpoint saves.
	CommitInterval int `yaml:"commit_interval"`
	// ItemRetry is the item-level retry configuration.
	ItemRetry ItemRetryConfig `yaml:"item_retry"`
	// ItemSkip is the item-level skip configuration.
	ItemSkip ItemSkipConfig `yaml:"item_skip"`
}

// StoreConfig holds connection settings for the record store.
type StoreConfig struct {
	// AuthURL is the base URL of the token endpoint.
	AuthURL string `yaml:"auth_url"`
	// ClientID identifies this client to the store.
	ClientID string `yaml:"client_id"`
	// ClientSecret authenticates this client to the store.
	ClientSecret string `yaml:"client_secret"`
	// TimeoutSeconds is the per-request HTTP timeout.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// CompletionConfig holds settings for the text-completion backend.
type CompletionConfig struct {
	// Backend selects the completion implementation ("http" or "gemini").
	Backend string `yaml:"backend"`
	// BaseURL is the base URL of the HTTP generate endpoint.
	BaseURL string `yaml:"base_url"`
	// Model is the model name sent to the HTTP backend.
	Model string `yaml:"model"`
	// TimeoutSeconds is the per-request completion timeout.
	TimeoutSeconds int `yaml:"timeout_seconds"`
	// GeminiAPIKey is the API key for the Gemini backend.
	GeminiAPIKey string `yaml:"gemini_api_key"`
	// GeminiModel is the model name for the Gemini backend.
	GeminiModel string `yaml:"gemini_model"`
}

// MetadataConfig holds settings for the local job metadata store.
type MetadataConfig struct {
	// Database is the SQLite file path for job history.
	Database string `yaml:"database"`
}

// MetricsConfig holds metrics settings.
type MetricsConfig struct {
	// PushgatewayURL enables a Pushgateway push at job end when set.
	PushgatewayURL string `yaml:"pushgateway_url"`
}

// ExportConfig holds settings for the optional artifact export.
type ExportConfig struct {
	// BaseDir is the root directory of the local storage adapter.
	BaseDir string `yaml:"base_dir"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the logging level (e.g., "INFO", "DEBUG").
	Level string `yaml:"level"`
}

// SystemConfig holds system-wide settings.
type SystemConfig struct {
	// Timezone is the application timezone (e.g., "UTC", "Asia/Tokyo").
	Timezone string `yaml:"timezone"`
	// Logging is the logging configuration.
	Logging LoggingConfig `yaml:"logging"`
}

// RippleConfig holds all configuration under the "ripple" top-level key.
type RippleConfig struct {
	// Batch contains batch engine configurations.
	Batch BatchConfig `yaml:"batch"`
	// Store contains record store connection configurations.
	Store StoreConfig `yaml:"store"`
	// Completion contains completion backend configurations.
	Completion CompletionConfig `yaml:"completion"`
	// Metadata contains job metadata store configurations.
	Metadata MetadataConfig `yaml:"metadata"`
	// Metrics contains metrics configurations.
	Metrics MetricsConfig `yaml:"metrics"`
	// Export contains artifact export configurations.
	Export ExportConfig `yaml:"export"`
	// System contains system-wide configurations.
	System SystemConfig `yaml:"system"`
}

// Config is the root structure for the entire application configuration.
type Config struct {
	// Ripple contains the top-level configuration for the pipeline.
	Ripple RippleConfig `yaml:"ripple"`
	// EmbeddedConfig holds configuration loaded from an embedded source, not from YAML.
	EmbeddedConfig EmbeddedConfig `yaml:"-"`
}

// NewConfig returns a Config populated with defaults. Values from the embedded
// YAML and environment variables are merged over these by the loader.
func NewConfig() *Config {
	return &Config{
		Ripple: RippleConfig{
			Batch: BatchConfig{
				JobName:           "record-analysis",
				ChunkSize:         450,
				PageSize:          200,
				MaxPages:          100,
				ChunkDelaySeconds: 1,
				CommitInterval:    10,
				ItemRetry: ItemRetryConfig{
					MaxAttempts:         3,
					InitialInterval:     1000,
					RetryableExceptions: []string{"NetworkError"},
				},
				ItemSkip: ItemSkipConfig{
					SkipLimit:           0,
					SkippableExceptions: nil,
				},
			},
			Store: StoreConfig{
				TimeoutSeconds: 30,
			},
			Completion: CompletionConfig{
				Backend:        "http",
				BaseURL:        "http://localhost:11434",
				Model:          "llama3",
				TimeoutSeconds: 120,
				GeminiModel:    "gemini-2.0-flash",
			},
			Metadata: MetadataConfig{
				Database: "ripple_meta.db",
			},
			Export: ExportConfig{
				BaseDir: ".",
			},
			System: SystemConfig{
				Timezone: "UTC",
				Logging:  LoggingConfig{Level: "INFO"},
			},
		},
	}
}
