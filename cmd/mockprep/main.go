// Command mockprep is the main entry point for the mockprep interview
// practice server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/mockprep/internal/app"
	"github.com/MrWong99/mockprep/internal/auth"
	"github.com/MrWong99/mockprep/internal/config"
	"github.com/MrWong99/mockprep/internal/observe"
	"github.com/MrWong99/mockprep/pkg/provider/llm"
	"github.com/MrWong99/mockprep/pkg/provider/llm/anyllm"
	"github.com/MrWong99/mockprep/pkg/provider/llm/gemini"
	"github.com/MrWong99/mockprep/pkg/provider/llm/openai"
	"github.com/MrWong99/mockprep/pkg/provider/stt"
	"github.com/MrWong99/mockprep/pkg/provider/stt/deepgram"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	envPath := flag.String("env", ".env", "path to an optional dotenv file")
	mintFor := flag.String("mint-token", "", "print a session token for this user id and exit")
	mintTTL := flag.Duration("token-ttl", 24*time.Hour, "lifetime of a token printed by -mint-token")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	if err := config.LoadDotEnv(*envPath); err != nil {
		fmt.Fprintf(os.Stderr, "mockprep: %v\n", err)
		return 1
	}
	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mockprep: %v\n", err)
		return 1
	}
	config.ApplyEnv(cfg, os.LookupEnv)
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "mockprep: %v\n", err)
		return 1
	}

	if *mintFor != "" {
		if cfg.Auth.JWTSecret == "" {
			fmt.Fprintf(os.Stderr, "mockprep: mint token: auth.jwt_secret is not set (or %s)\n", config.EnvJWTSecret)
			return 1
		}
		tok, err := auth.Sign(auth.Config{
			Secret:   []byte(cfg.Auth.JWTSecret),
			Issuer:   cfg.Auth.Issuer,
			Audience: cfg.Auth.Audience,
		}, auth.Identity{ID: *mintFor}, *mintTTL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "mockprep: mint token: %v\n", err)
			return 1
		}
		fmt.Println(tok)
		return 0
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("mockprep starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(ctx, reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers,
		app.WithMetricsHandler(tel.MetricsHandler),
		app.WithVersion(version),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	reloader, err := config.NewReloader(*configPath, cfg,
		config.WithOverlay(func(c *config.Config) { config.ApplyEnv(c, os.LookupEnv) }),
		config.OnReload(func(d config.ConfigDiff, _ *config.Config) {
			if d.LogLevelChanged {
				level.Set(slogLevel(d.NewLogLevel))
				slog.Info("log level changed", "level", d.NewLogLevel)
			}
			application.Reload(d)
			if len(d.RestartRequired) > 0 {
				slog.Warn("config changes require a restart", "fields", d.RestartRequired)
			}
		}),
	)
	if err != nil {
		slog.Info("config hot reload disabled", "reason", err)
	} else {
		go func() { _ = reloader.Run(ctx) }()
	}

	slog.Info("server ready, press Ctrl+C to shut down")

	exit := 0
	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		exit = 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		exit = 1
	}
	if err := tel.Shutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return exit
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// anyllmBackends are the LLM names served through any-llm-go. gemini and
// openai have dedicated SDK-backed providers.
var anyllmBackends = []string{"anthropic", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"}

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(ctx context.Context, reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	reg.RegisterLLM("gemini", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []gemini.Option
		if entry.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(entry.BaseURL))
		}
		if v := optString(entry.Options, "api_version"); v != "" {
			opts = append(opts, gemini.WithAPIVersion(v))
		}
		return gemini.New(ctx, entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, openai.WithOrganization(org))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	// The remaining backends share the same pattern: optional APIKey + optional BaseURL.
	for _, providerName := range anyllmBackends {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ── STT ───────────────────────────────────────────────────────────────────
	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	for kind, names := range reg.Names() {
		slog.Debug("registered providers", "kind", kind, "names", names)
	}
}

// buildProviders instantiates all providers named in cfg using the registry.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	p, err := reg.CreateLLM(cfg.Providers.LLM)
	if err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", cfg.Providers.LLM.Name, err)
	}
	ps.LLM, ps.LLMName = p, cfg.Providers.LLM.Name
	slog.Info("provider created", "kind", "llm", "name", ps.LLMName, "model", p.Model())

	if name := cfg.Providers.STT.Name; name != "" {
		p, err := reg.CreateSTT(cfg.Providers.STT)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Warn("unknown stt provider, answer streaming disabled", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create stt provider %q: %w", name, err)
		} else {
			ps.STT = p
			slog.Info("provider created", "kind", "stt", "name", name)
		}
	}

	return ps, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║        mockprep startup summary       ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("LLM", providerLabel(cfg.Providers.LLM.Name, cfg.Providers.LLM.Model))
	printRow("STT", providerLabel(cfg.Providers.STT.Name, cfg.Providers.STT.Model))
	printRow("Store", string(cfg.Store.Backend))
	if cfg.Auth.Issuer != "" {
		printRow("Auth", "HS256 session token, iss "+cfg.Auth.Issuer)
	} else {
		printRow("Auth", "HS256 session token")
	}
	if cfg.MCP.Enabled {
		printRow("MCP", cfg.MCP.Path)
	} else {
		printRow("MCP", "(disabled)")
	}
	printRow("Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func providerLabel(name, model string) string {
	if name == "" {
		return "(not configured)"
	}
	if model != "" {
		return name + " / " + model
	}
	return name
}

func printRow(kind, value string) {
	if len([]rune(value)) > 19 {
		value = string([]rune(value)[:18]) + "…"
	}
	fmt.Printf("║  %-13s   : %-19s ║\n", kind, value)
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
