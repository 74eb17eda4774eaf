package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"gemini", "openai", "anthropic", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt": {"deepgram"},
}

// Environment variables read by [ApplyEnv].
const (
	EnvLLMAPIKey    = "MOCKPREP_LLM_API_KEY"
	EnvGeminiAPIKey = "GEMINI_API_KEY"
	EnvSTTAPIKey    = "MOCKPREP_STT_API_KEY"
	EnvPostgresDSN  = "MOCKPREP_POSTGRES_DSN"
	EnvListenAddr   = "MOCKPREP_LISTEN_ADDR"
	EnvJWTSecret    = "MOCKPREP_JWT_SECRET"
)

// Load reads the YAML configuration file at path and returns a validated [Config]
// with defaults applied.
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

// LoadOrDefault is [Load], except that a missing file yields [Default].
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Info("config file not found, using defaults", "path", path)
		return Default(), nil
	}
	return cfg, err
}

// LoadFromReader decodes a YAML config from r, applies defaults and validates
// the result. An empty document is valid.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment.
// Variables already set are not overridden. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: load %q: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays secrets and deployment values from the environment onto
// cfg. lookup is usually [os.LookupEnv]. Set, non-empty variables win over the
// file; the generic LLM key wins over GEMINI_API_KEY.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	get := func(key string) string {
		v, ok := lookup(key)
		if !ok {
			return ""
		}
		return strings.TrimSpace(v)
	}
	set := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := get(k); v != "" {
				*dst = v
				return
			}
		}
	}

	set(&cfg.Providers.LLM.APIKey, EnvLLMAPIKey)
	if cfg.Providers.LLM.APIKey == "" && cfg.Providers.LLM.Name == "gemini" {
		set(&cfg.Providers.LLM.APIKey, EnvGeminiAPIKey)
	}
	set(&cfg.Providers.STT.APIKey, EnvSTTAPIKey)
	set(&cfg.Store.PostgresDSN, EnvPostgresDSN)
	set(&cfg.Server.ListenAddr, EnvListenAddr)
	set(&cfg.Auth.JWTSecret, EnvJWTSecret)
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.ReadHeaderTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.read_header_timeout must not be negative"))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, fmt.Errorf("server.tls requires both cert_file and key_file"))
	}

	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	if cfg.Providers.LLM.Name != "" && cfg.Providers.LLM.Name != DefaultLLMName && cfg.Providers.LLM.Model == "" {
		errs = append(errs, fmt.Errorf("providers.llm.model is required for provider %q", cfg.Providers.LLM.Name))
	}

	if cfg.Store.Backend != "" && !cfg.Store.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("store.backend %q is invalid; valid values: memory, postgres", cfg.Store.Backend))
	}
	if cfg.Store.Backend == StorePostgres && cfg.Store.PostgresDSN == "" {
		errs = append(errs, fmt.Errorf("store.postgres_dsn is required when store.backend is postgres"))
	}

	if cfg.Generation.Breaker.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("generation.breaker.max_failures must not be negative"))
	}
	if cfg.Generation.Breaker.ResetTimeout < 0 {
		errs = append(errs, fmt.Errorf("generation.breaker.reset_timeout must not be negative"))
	}

	if cfg.Attempts.IdleTimeout < 0 || cfg.Attempts.SweepInterval < 0 {
		errs = append(errs, fmt.Errorf("attempts.idle_timeout and attempts.sweep_interval must not be negative"))
	}

	if s := cfg.Auth.JWTSecret; s != "" && len(s) < MinJWTSecretLength {
		errs = append(errs, fmt.Errorf("auth.jwt_secret must be at least %d bytes", MinJWTSecretLength))
	}

	if cfg.MCP.Enabled && !strings.HasPrefix(cfg.MCP.Path, "/") {
		errs = append(errs, fmt.Errorf("mcp.path %q must start with /", cfg.MCP.Path))
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
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
