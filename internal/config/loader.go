package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"slices"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists the built-in speech providers. Used by [Validate]
// to warn about unrecognised provider names.
var ValidProviderNames = []string{"coqui", "elevenlabs", "gemini", "openai"}

// credentialEnv names the environment variable holding each provider's key.
var credentialEnv = map[string]string{
	"elevenlabs": "ELEVENLABS_API_KEY",
	"gemini":     "GEMINI_API_KEY",
	"openai":     "OPENAI_API_KEY",
}

// LoadDotEnv loads KEY=value pairs from the given files (".env" when none are
// given) into the process environment. Variables that are already set win.
// Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: load %q: %w", p, err)
		}
		slog.Debug("loaded environment file", "path", p)
	}
	return nil
}

// Load reads the YAML configuration file at path, applies environment
// overrides and defaults, and returns a validated [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f, os.LookupEnv)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies the environment seen
// through lookup (nil skips overrides) and defaults, and validates the result.
// An empty document yields the default configuration.
func LoadFromReader(r io.Reader, lookup func(string) (string, bool)) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if lookup != nil {
		ApplyEnv(cfg, lookup)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with NARRATOR_LISTEN_ADDR, NARRATOR_STORE_DSN and the
// provider credential variable (GEMINI_API_KEY, OPENAI_API_KEY or
// ELEVENLABS_API_KEY). Coqui takes none. Empty variables are ignored.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	set(&cfg.Server.ListenAddr, "NARRATOR_LISTEN_ADDR")
	set(&cfg.Store.DSN, "NARRATOR_STORE_DSN")

	name := cfg.Provider.Name
	if name == "" {
		name = DefaultProvider
	}
	if key, ok := credentialEnv[name]; ok {
		set(&cfg.Provider.APIKey, key)
	}
}

// ApplyDefaults fills fields left at their zero value.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Provider.Name == "" {
		cfg.Provider.Name = DefaultProvider
	}
	if cfg.Synthesis.MaxSegmentChars == 0 {
		cfg.Synthesis.MaxSegmentChars = DefaultMaxSegmentChars
	}
	if cfg.Synthesis.JobTimeout == 0 {
		cfg.Synthesis.JobTimeout = DefaultJobTimeout
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = StoreMemory
	}
	if cfg.Audio.Dir == "" {
		cfg.Audio.Dir = DefaultAudioDir
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
// A missing provider credential is not reported here; the provider
// constructor raises it as a configuration error at startup.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.shutdown_timeout %s must not be negative", cfg.Server.ShutdownTimeout))
	}

	// Provider
	validateProviderName(cfg.Provider.Name)

	// Synthesis
	if cfg.Synthesis.MaxSegmentChars < 0 {
		errs = append(errs, fmt.Errorf("synthesis.max_segment_chars %d must not be negative", cfg.Synthesis.MaxSegmentChars))
	}
	if cfg.Synthesis.JobTimeout < 0 {
		errs = append(errs, fmt.Errorf("synthesis.job_timeout %s must not be negative", cfg.Synthesis.JobTimeout))
	}

	// Store
	switch {
	case cfg.Store.Backend != "" && !cfg.Store.Backend.IsValid():
		errs = append(errs, fmt.Errorf("store.backend %q is invalid; valid values: memory, postgres, sqlite, redis", cfg.Store.Backend))
	case cfg.Store.Backend != "" && cfg.Store.Backend != StoreMemory && cfg.Store.DSN == "":
		errs = append(errs, fmt.Errorf("store.dsn is required when backend is %s", cfg.Store.Backend))
	}
	if cfg.Store.TTL < 0 {
		errs = append(errs, fmt.Errorf("store.ttl %s must not be negative", cfg.Store.TTL))
	}
	if cfg.Store.TTL > 0 && cfg.Store.Backend != StoreRedis {
		slog.Warn("store.ttl only applies to the redis backend", "backend", cfg.Store.Backend)
	}

	// Resilience
	if cfg.Resilience.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("resilience.max_failures %d must not be negative", cfg.Resilience.MaxFailures))
	}
	if cfg.Resilience.ResetTimeout < 0 {
		errs = append(errs, fmt.Errorf("resilience.reset_timeout %s must not be negative", cfg.Resilience.ResetTimeout))
	}
	if cfg.Resilience.HalfOpenMax < 0 {
		errs = append(errs, fmt.Errorf("resilience.half_open_max %d must not be negative", cfg.Resilience.HalfOpenMax))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not one of the
// [ValidProviderNames].
func validateProviderName(name string) {
	if name == "" || slices.Contains(ValidProviderNames, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"name", name,
		"known", ValidProviderNames,
	)
}
