// Command aria is the voice-agent server: it serves the browser client and
// runs the STT → LLM → TTS reply pipeline for each connected session.
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

	"github.com/ariavoice/aria/internal/config"
	"github.com/ariavoice/aria/internal/health"
	"github.com/ariavoice/aria/internal/history"
	"github.com/ariavoice/aria/internal/observe"
	"github.com/ariavoice/aria/internal/ratelimit"
	"github.com/ariavoice/aria/internal/server"
	"github.com/ariavoice/aria/pkg/provider/tts"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	// A missing config file is fine: defaults plus environment variables are a
	// complete setup.
	cfg, err := config.Load(*configPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "aria: %v\n", err)
			return 1
		}
		cfg = config.Default()
		config.ApplyEnv(cfg)
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("aria starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Metrics ───────────────────────────────────────────────────────────────
	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "aria",
	})
	if err != nil {
		slog.Error("failed to initialise metrics", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(shutdownCtx); err != nil {
			slog.Warn("metrics shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Providers ─────────────────────────────────────────────────────────────
	// Missing API keys do not prevent startup: the affected stage reports its
	// failure inside the first turn instead.
	providers := buildProviders(cfg)

	// ── Shared session state ──────────────────────────────────────────────────
	hist := history.New()
	limiter := ratelimit.New(cfg.Agent.RateLimit.MaxRequests, cfg.Agent.RateLimit.Window())

	checks := health.New(
		health.Checker{Name: "stt", Check: keyCheck(cfg.Providers.STT.APIKey, config.EnvSTTAPIKey)},
		health.Checker{Name: "llm", Check: keyCheck(cfg.Providers.LLM.APIKey, config.EnvLLMAPIKey)},
		health.Checker{Name: "tts", Check: keyCheck(cfg.Providers.TTS.APIKey, config.EnvTTSAPIKey)},
	)

	// ── HTTP server ───────────────────────────────────────────────────────────
	srv := server.New(server.Config{
		Logger:    logger,
		STT:       providers.STT,
		LLM:       providers.LLM,
		TTS:       providers.TTS,
		History:   hist,
		Limiter:   limiter,
		Metrics:   metrics,
		Health:    checks,
		Persona:   cfg.Agent.Persona,
		Voice:     tts.VoiceProfile{ID: cfg.Providers.TTS.VoiceID},
		StaticDir: cfg.Server.StaticDir,
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	slog.Info("server ready")

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "err", err)
			return 1
		}
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// keyCheck reports readiness of a provider based on its API key being set.
func keyCheck(key, envName string) func(context.Context) error {
	return func(context.Context) error {
		if key == "" {
			return fmt.Errorf("%s is not set", envName)
		}
		return nil
	}
}

// newLogger builds the process logger at the configured level.
func newLogger(level config.LogLevel) *slog.Logger {
	var l slog.Level
	switch level {
	case config.LogDebug:
		l = slog.LevelDebug
	case config.LogWarn:
		l = slog.LevelWarn
	case config.LogError:
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
