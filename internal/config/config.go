// Package config provides the configuration schema, loader, and factory
// registry for the narrator text-to-speech service.
package config

import (
	"fmt"
	"time"
)

// LogLevel controls log verbosity for the narrator server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// StoreBackend selects where request records are kept.
type StoreBackend string

const (
	StoreMemory   StoreBackend = "memory"
	StorePostgres StoreBackend = "postgres"
	StoreSQLite   StoreBackend = "sqlite"
	StoreRedis    StoreBackend = "redis"
)

// IsValid reports whether b is a recognised store backend.
func (b StoreBackend) IsValid() bool {
	switch b {
	case StoreMemory, StorePostgres, StoreSQLite, StoreRedis:
		return true
	}
	return false
}

// Defaults applied by [LoadFromReader] to fields left empty.
const (
	DefaultListenAddr      = ":8080"
	DefaultShutdownTimeout = 15 * time.Second
	DefaultProvider        = "gemini"
	DefaultMaxSegmentChars = 5000
	DefaultJobTimeout      = 5 * time.Minute
	DefaultAudioDir        = "audio"
)

// Config is the root configuration structure for narrator.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Provider   ProviderEntry    `yaml:"provider"`
	Synthesis  SynthesisConfig  `yaml:"synthesis"`
	Store      StoreConfig      `yaml:"store"`
	Audio      AudioConfig      `yaml:"audio"`
	Resilience ResilienceConfig `yaml:"resilience"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the HTTP API listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. It is the only setting applied on reload.
	LogLevel LogLevel `yaml:"log_level"`

	// ShutdownTimeout bounds graceful shutdown, including in-flight jobs.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ProviderEntry configures the speech synthesis backend. Name is used to look
// up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation ("gemini", "openai").
	Name string `yaml:"name"`

	// APIKey is the credential for the provider's API. GEMINI_API_KEY or
	// OPENAI_API_KEY override it.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific speech model within the provider.
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered by the standard
	// fields above, e.g. response_format for openai or timeout for gemini.
	Options map[string]any `yaml:"options"`
}

// Option returns the string form of Options[key], or "" when the key is
// absent. Scalars other than strings are formatted with %v.
func (e ProviderEntry) Option(key string) string {
	v, ok := e.Options[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// SynthesisConfig tunes the synthesis pipeline.
type SynthesisConfig struct {
	// MaxSegmentChars is the per-call character ceiling of the provider.
	MaxSegmentChars int `yaml:"max_segment_chars"`

	// JobTimeout bounds a whole generate or preview job.
	JobTimeout time.Duration `yaml:"job_timeout"`
}

// StoreConfig selects and configures the request record store.
type StoreConfig struct {
	// Backend is one of memory, postgres, sqlite, redis. Default: memory.
	Backend StoreBackend `yaml:"backend"`

	// DSN is the backend connection string: a postgres URL, a SQLite file
	// path or a redis:// URL. NARRATOR_STORE_DSN overrides it.
	DSN string `yaml:"dsn"`

	// TTL expires redis records. Zero keeps them forever.
	TTL time.Duration `yaml:"ttl"`
}

// AudioConfig configures where finished artifacts are written.
type AudioConfig struct {
	// Dir is created on startup if missing.
	Dir string `yaml:"dir"`
}

// ResilienceConfig tunes the circuit breaker in front of the provider.
// Zero values select the breaker defaults.
type ResilienceConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
	HalfOpenMax  int           `yaml:"half_open_max"`
}
