// Command rehearse is the main entry point for the Rehearse mock-interview server.
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

	"go.opentelemetry.io/otel"

	"github.com/MrWong99/rehearse/internal/app"
	"github.com/MrWong99/rehearse/internal/config"
	"github.com/MrWong99/rehearse/internal/observe"
	"github.com/MrWong99/rehearse/pkg/provider/catalog"
	oacatalog "github.com/MrWong99/rehearse/pkg/provider/catalog/openai"
	"github.com/MrWong99/rehearse/pkg/provider/llm"
	oallm "github.com/MrWong99/rehearse/pkg/provider/llm/openai"
	"github.com/MrWong99/rehearse/pkg/provider/stt"
	oastt "github.com/MrWong99/rehearse/pkg/provider/stt/openai"
	"github.com/MrWong99/rehearse/pkg/provider/tts"
	oatts "github.com/MrWong99/rehearse/pkg/provider/tts/openai"
)

// groqBaseURL is the OpenAI-compatible endpoint of Groq.
const groqBaseURL = "https://api.groq.com/openai/v1"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	watch := flag.Bool("watch", true, "reload log level and interview rules when the config file changes")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "rehearse: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "rehearse: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	level.Set(slogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &level}))
	slog.SetDefault(logger)

	slog.Info("rehearse starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"provider", cfg.Provider.Name,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion:   version,
		TraceSampleRatio: cfg.Server.TraceSampleRatio,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		slog.Error("failed to create metrics", "err", err)
		return 1
	}

	application, err := app.New(ctx, cfg, providers,
		app.WithMetrics(metrics),
		app.WithMetricsHandler(tel.MetricsHandler),
		app.WithLogger(logger),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	if *watch {
		w, err := config.NewWatcher(*configPath, func(c config.Change) {
			applyReload(application, &level, c)
		}, config.WithWatchLogger(logger))
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			go w.Run(ctx)
		}
	}

	slog.Info("server ready, press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	code := 0
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		code = 1
	}
	if err := tel.Shutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return code
}

// applyReload applies the live-reloadable parts of a changed config and
// warns about the rest.
func applyReload(a *app.App, level *slog.LevelVar, c config.Change) {
	d := c.Diff
	if d.LogLevelChanged {
		level.Set(slogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.InterviewChanged {
		a.UpdateInterview(c.New.Interview)
		slog.Info("interview rules reloaded")
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config sections changed that need a restart", "sections", d.RestartRequired)
	}
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires the OpenAI-compatible provider factories into
// reg. "groq" and "openai" share the implementation and differ in their
// default endpoint.
func registerBuiltinProviders(reg *config.Registry) {
	for name, defaultURL := range map[string]string{"groq": groqBaseURL, "openai": ""} {
		baseURL := func(entry config.ProviderEntry) string {
			if entry.BaseURL != "" {
				return entry.BaseURL
			}
			return defaultURL
		}

		reg.RegisterCatalog(name, func(entry config.ProviderEntry) (catalog.Source, error) {
			var opts []oacatalog.Option
			if u := baseURL(entry); u != "" {
				opts = append(opts, oacatalog.WithBaseURL(u))
			}
			if entry.Timeout > 0 {
				opts = append(opts, oacatalog.WithTimeout(entry.Timeout))
			}
			return oacatalog.New(entry.APIKey, opts...)
		})

		reg.RegisterLLM(name, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []oallm.Option
			if u := baseURL(entry); u != "" {
				opts = append(opts, oallm.WithBaseURL(u))
			}
			if org := optString(entry.Options, "organization"); org != "" {
				opts = append(opts, oallm.WithOrganization(org))
			}
			if entry.Timeout > 0 {
				opts = append(opts, oallm.WithTimeout(entry.Timeout))
			}
			return oallm.New(entry.APIKey, opts...)
		})

		reg.RegisterSTT(name, func(entry config.ProviderEntry) (stt.Provider, error) {
			var opts []oastt.Option
			if u := baseURL(entry); u != "" {
				opts = append(opts, oastt.WithBaseURL(u))
			}
			if entry.Timeout > 0 {
				opts = append(opts, oastt.WithTimeout(entry.Timeout))
			}
			return oastt.New(entry.APIKey, opts...)
		})

		reg.RegisterTTS(name, func(entry config.ProviderEntry) (tts.Provider, error) {
			var opts []oatts.Option
			if u := baseURL(entry); u != "" {
				opts = append(opts, oatts.WithBaseURL(u))
			}
			if entry.Voice != "" {
				opts = append(opts, oatts.WithDefaultVoice(entry.Voice))
			}
			if entry.Timeout > 0 {
				opts = append(opts, oatts.WithTimeout(entry.Timeout))
			}
			return oatts.New(entry.APIKey, opts...)
		})

		slog.Debug("registered provider", "name", name)
	}
}

// buildProviders instantiates the four provider capabilities named by
// cfg.Provider using the registry.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	entry := cfg.Provider
	ps := &app.Providers{}
	var err error

	if ps.Catalog, err = reg.CreateCatalog(entry); err != nil {
		return nil, fmt.Errorf("create catalog provider %q: %w", entry.Name, err)
	}
	if ps.LLM, err = reg.CreateLLM(entry); err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", entry.Name, err)
	}
	if ps.STT, err = reg.CreateSTT(entry); err != nil {
		return nil, fmt.Errorf("create stt provider %q: %w", entry.Name, err)
	}
	if ps.TTS, err = reg.CreateTTS(entry); err != nil {
		return nil, fmt.Errorf("create tts provider %q: %w", entry.Name, err)
	}
	slog.Info("providers created", "name", entry.Name)
	return ps, nil
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
	s, _ := opts[key].(string)
	return s
}
