// Command resonate is the realtime voice conversation server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/resonate/internal/broker"
	"github.com/MrWong99/resonate/internal/config"
	"github.com/MrWong99/resonate/internal/engine"
	"github.com/MrWong99/resonate/internal/engine/cascade"
	"github.com/MrWong99/resonate/internal/engine/native"
	"github.com/MrWong99/resonate/internal/health"
	"github.com/MrWong99/resonate/internal/history"
	"github.com/MrWong99/resonate/internal/observe"
	"github.com/MrWong99/resonate/internal/resilience"
	"github.com/MrWong99/resonate/internal/server"
	"github.com/MrWong99/resonate/internal/transcript"
	transcriptpg "github.com/MrWong99/resonate/internal/transcript/postgres"
	"github.com/MrWong99/resonate/pkg/audio"
	"github.com/MrWong99/resonate/pkg/provider/llm"
	"github.com/MrWong99/resonate/pkg/provider/llm/anyllm"
	"github.com/MrWong99/resonate/pkg/provider/realtime"
	rtopenai "github.com/MrWong99/resonate/pkg/provider/realtime/openai"
	"github.com/MrWong99/resonate/pkg/provider/stt"
	sttopenai "github.com/MrWong99/resonate/pkg/provider/stt/openai"
	"github.com/MrWong99/resonate/pkg/provider/tts"
	ttsopenai "github.com/MrWong99/resonate/pkg/provider/tts/openai"
)

// version is stamped at build time via -ldflags.
var version = "dev"

const (
	// defaultCheapLLMModel and defaultComplexLLMModel back the cascade
	// strategy when the llm provider entry does not name a model pair.
	defaultCheapLLMModel   = "gpt-4o-mini"
	defaultComplexLLMModel = "gpt-4o"

	// shutdownTimeout bounds the graceful drain of HTTP connections and live
	// sessions after a termination signal.
	shutdownTimeout = 15 * time.Second
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// The level var lets the config watcher retune verbosity without
	// rebuilding the logger.
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	watcher, err := config.NewWatcher(*configPath, func(old, updated *config.Config) {
		applyConfigChange(level, old, updated)
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "resonate: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "resonate: %v\n", err)
		}
		return 1
	}
	defer watcher.Stop()

	cfg := watcher.Current()
	level.Set(slogLevel(cfg.Server.LogLevel))

	slog.Info("resonate starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"strategy", cfg.Session.Strategy,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telemetry first: everything downstream picks up the global meter
	// provider through observe.DefaultMetrics.
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "resonate",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	providerReg := config.NewRegistry()
	registerBuiltinProviders(providerReg)

	factory, err := buildEngineFactory(cfg, providerReg)
	if err != nil {
		slog.Error("failed to build conversation pipeline", "err", err)
		return 1
	}

	// Transcript archive is optional; without a DSN every write is a no-op.
	var archive transcript.Store = transcript.Noop{}
	var checkers []health.Checker
	if dsn := cfg.Transcript.PostgresDSN; dsn != "" {
		pg, err := transcriptpg.New(ctx, dsn)
		if err != nil {
			slog.Error("failed to open transcript archive", "err", err)
			return 1
		}
		archive = pg
		checkers = append(checkers, health.Database("transcripts", pg))
		slog.Info("transcript archive enabled")
	}
	defer archive.Close()

	registry := broker.NewRegistry(factory,
		broker.WithQueueSize(cfg.Session.QueueSize),
		broker.WithTranscripts(archive),
		broker.WithMetrics(metrics),
	)
	checkers = append(checkers, health.Func("sessions", func(context.Context) error {
		return nil // serving at all means the registry is live
	}))

	srv := server.New(registry,
		server.WithHealth(health.New(checkers...)),
		server.WithMetrics(metrics),
	)

	httpServer := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		if tls := cfg.Server.TLS; tls != nil {
			err = httpServer.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = httpServer.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	if idle := cfg.Session.IdleTimeout.Std(); idle > 0 {
		g.Go(func() error {
			return reapIdleSessions(gctx, registry, idle)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, stopping")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		registry.StopAll()
		return httpServer.Shutdown(shutdownCtx)
	})

	slog.Info("server ready", "listen_addr", cfg.Server.ListenAddr)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// applyConfigChange reacts to a rewritten config file. Only log level changes
// take effect immediately; session tuning and everything bound at startup get
// a log line so operators know a restart is needed.
func applyConfigChange(level *slog.LevelVar, old, updated *config.Config) {
	diff := config.Diff(old, updated)

	if diff.LogLevelChanged {
		level.Set(slogLevel(diff.NewLogLevel))
		slog.Info("log level updated", "log_level", diff.NewLogLevel)
	}
	if diff.SessionChanged {
		slog.Warn("session config changed, applies after restart",
			"strategy", diff.NewSession.Strategy,
			"queue_size", diff.NewSession.QueueSize,
		)
	}
	if diff.RestartRequired {
		slog.Warn("config change requires a restart to take effect")
	}
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires the provider factories that ship with
// Resonate into reg.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterRealtime("openai", func(entry config.ProviderEntry) (realtime.Provider, error) {
		var opts []rtopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, rtopenai.WithBaseURL(entry.BaseURL))
		}
		return rtopenai.New(entry.APIKey, opts...), nil
	})

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []sttopenai.Option
		if entry.Model != "" {
			opts = append(opts, sttopenai.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, sttopenai.WithBaseURL(entry.BaseURL))
		}
		return sttopenai.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("openai", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []ttsopenai.Option
		if entry.Model != "" {
			opts = append(opts, ttsopenai.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, ttsopenai.WithBaseURL(entry.BaseURL))
		}
		return ttsopenai.New(entry.APIKey, opts...)
	})

	// Chat backends all route through any-llm: the provider name is passed
	// straight to the library, so one factory covers every supported vendor.
	for _, name := range []string{"openai", "anthropic", "gemini", "mistral", "groq"} {
		reg.RegisterLLM(name, func(entry config.ProviderEntry, model string) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(entry.Name, model, opts...)
		})
	}

	// ollama is a local server; it needs a BaseURL, never an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry, model string) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", model, opts...)
	})
}

// buildEngineFactory instantiates the providers for the configured strategy
// and returns the per-session engine factory handed to the broker. Providers
// are built once at startup and shared across sessions; each session still
// gets its own engine.
func buildEngineFactory(cfg *config.Config, reg *config.Registry) (engine.Factory, error) {
	transcoder := newTranscoder(cfg.Audio)

	switch cfg.Session.Strategy {
	case config.StrategyNative:
		entry := cfg.Providers.Realtime
		provider, err := reg.CreateRealtime(entry)
		if err != nil {
			return nil, fmt.Errorf("create realtime provider %q: %w", entry.Name, err)
		}

		var opts []native.Option
		if entry.CheapModel != "" && entry.ComplexModel != "" {
			opts = append(opts, native.WithModels(entry.CheapModel, entry.ComplexModel))
		}
		return func(ecfg engine.Config) (engine.Engine, error) {
			return native.New(provider, transcoder, ecfg, opts...), nil
		}, nil

	case config.StrategyCascade:
		hist := history.NewStore()
		sttProvider, err := buildSTT(reg, cfg.Providers.STT)
		if err != nil {
			return nil, err
		}
		ttsProvider, err := buildTTS(reg, cfg.Providers.TTS)
		if err != nil {
			return nil, err
		}

		// The llm provider binds its model at construction, so the mode pair
		// becomes two providers selected per session.
		llmEntry := cfg.Providers.LLM
		cheapModel := llmEntry.CheapModel
		if cheapModel == "" {
			cheapModel = defaultCheapLLMModel
		}
		complexModel := llmEntry.ComplexModel
		if complexModel == "" {
			complexModel = defaultComplexLLMModel
		}
		cheapLLM, err := buildLLM(reg, llmEntry, cheapModel)
		if err != nil {
			return nil, err
		}
		complexLLM, err := buildLLM(reg, llmEntry, complexModel)
		if err != nil {
			return nil, err
		}

		return func(ecfg engine.Config) (engine.Engine, error) {
			llmProvider := cheapLLM
			if ecfg.Mode == engine.ModeComplex {
				llmProvider = complexLLM
			}
			return cascade.New(sttProvider, llmProvider, ttsProvider, transcoder, hist, ecfg), nil
		}, nil

	default:
		return nil, fmt.Errorf("unknown strategy %q", cfg.Session.Strategy)
	}
}

// buildSTT creates the transcription provider for entry, wrapping it in a
// failover chain when fallbacks are configured.
func buildSTT(reg *config.Registry, entry config.ProviderEntry) (stt.Provider, error) {
	primary, err := reg.CreateSTT(entry)
	if err != nil {
		return nil, fmt.Errorf("create stt provider %q: %w", entry.Name, err)
	}
	if len(entry.Fallbacks) == 0 {
		return primary, nil
	}

	chain := resilience.NewSTT(entry.Name, primary, resilience.BreakerConfig{})
	for _, fb := range entry.Fallbacks {
		p, err := reg.CreateSTT(fb)
		if err != nil {
			return nil, fmt.Errorf("create stt fallback %q: %w", fb.Name, err)
		}
		chain.Add(fb.Name, p)
	}
	return chain, nil
}

// buildTTS creates the synthesis provider for entry, wrapping it in a
// failover chain when fallbacks are configured.
func buildTTS(reg *config.Registry, entry config.ProviderEntry) (tts.Provider, error) {
	primary, err := reg.CreateTTS(entry)
	if err != nil {
		return nil, fmt.Errorf("create tts provider %q: %w", entry.Name, err)
	}
	if len(entry.Fallbacks) == 0 {
		return primary, nil
	}

	chain := resilience.NewTTS(entry.Name, primary, resilience.BreakerConfig{})
	for _, fb := range entry.Fallbacks {
		p, err := reg.CreateTTS(fb)
		if err != nil {
			return nil, fmt.Errorf("create tts fallback %q: %w", fb.Name, err)
		}
		chain.Add(fb.Name, p)
	}
	return chain, nil
}

// buildLLM creates a chat provider for entry bound to model, wrapping it in a
// failover chain when fallbacks are configured. Fallback entries may name
// their own model pair; absent that they inherit model.
func buildLLM(reg *config.Registry, entry config.ProviderEntry, model string) (llm.Provider, error) {
	primary, err := reg.CreateLLM(entry, model)
	if err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", entry.Name, err)
	}
	if len(entry.Fallbacks) == 0 {
		return primary, nil
	}

	chain := resilience.NewLLM(entry.Name, primary, resilience.BreakerConfig{})
	for _, fb := range entry.Fallbacks {
		fbModel := fb.Model
		if fbModel == "" {
			fbModel = model
		}
		p, err := reg.CreateLLM(fb, fbModel)
		if err != nil {
			return nil, fmt.Errorf("create llm fallback %q: %w", fb.Name, err)
		}
		chain.Add(fb.Name, p)
	}
	return chain, nil
}

// newTranscoder builds the shared audio transcoder from the audio config.
func newTranscoder(cfg config.AudioConfig) *audio.Transcoder {
	switch {
	case cfg.DisableFFmpeg:
		return audio.NewTranscoder(audio.WithFFmpegPath(""))
	case cfg.FFmpegPath != "":
		return audio.NewTranscoder(audio.WithFFmpegPath(cfg.FFmpegPath))
	default:
		return audio.NewTranscoder()
	}
}

// reapIdleSessions periodically stops sessions that have gone quiet for
// longer than maxIdle.
func reapIdleSessions(ctx context.Context, registry *broker.Registry, maxIdle time.Duration) error {
	interval := maxIdle / 2
	if interval < time.Second {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n := registry.StopIdle(maxIdle); n > 0 {
				slog.Info("stopped idle sessions", "count", n, "max_idle", maxIdle)
			}
		}
	}
}

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
