package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"realtime": {"openai"},
	"stt":      {"openai"},
	"llm":      {"openai", "anthropic", "mistral", "ollama", "gemini", "groq"},
	"tts":      {"openai"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills zero values that have server-wide defaults.
func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Session.Strategy == "" {
		cfg.Session.Strategy = StrategyNative
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Provider name validation, warn for unknown names.
	validateProviderName("realtime", cfg.Providers.Realtime.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	for kind, fallbacks := range map[string][]ProviderEntry{
		"stt": cfg.Providers.STT.Fallbacks,
		"llm": cfg.Providers.LLM.Fallbacks,
		"tts": cfg.Providers.TTS.Fallbacks,
	} {
		for _, fb := range fallbacks {
			if fb.Name == "" {
				errs = append(errs, fmt.Errorf("providers.%s.fallbacks entries must name a provider", kind))
				continue
			}
			validateProviderName(kind, fb.Name)
		}
	}

	// Session
	if !cfg.Session.Strategy.IsValid() {
		errs = append(errs, fmt.Errorf("session.strategy %q is invalid; valid values: native, cascade", cfg.Session.Strategy))
	}
	if cfg.Session.QueueSize < 0 {
		errs = append(errs, fmt.Errorf("session.queue_size %d must not be negative", cfg.Session.QueueSize))
	}
	if cfg.Session.IdleTimeout < 0 {
		errs = append(errs, fmt.Errorf("session.idle_timeout %s must not be negative", cfg.Session.IdleTimeout.Std()))
	}

	// Strategy ↔ provider cross-validation.
	switch cfg.Session.Strategy {
	case StrategyNative:
		if cfg.Providers.Realtime.Name == "" {
			errs = append(errs, errors.New("session.strategy native requires providers.realtime"))
		} else if cfg.Providers.Realtime.APIKey == "" {
			errs = append(errs, errors.New("providers.realtime.api_key is required for the native strategy"))
		}
	case StrategyCascade:
		for _, stage := range []struct {
			kind  string
			entry ProviderEntry
		}{
			{"stt", cfg.Providers.STT},
			{"llm", cfg.Providers.LLM},
			{"tts", cfg.Providers.TTS},
		} {
			if stage.entry.Name == "" {
				errs = append(errs, fmt.Errorf("session.strategy cascade requires providers.%s", stage.kind))
			} else if stage.entry.APIKey == "" {
				errs = append(errs, fmt.Errorf("providers.%s.api_key is required for the cascade strategy", stage.kind))
			}
		}
	}

	if cfg.Transcript.PostgresDSN == "" {
		slog.Debug("transcript.postgres_dsn is empty; conversation archival is disabled")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
