package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gookit/event"

	"imgshare-bot/internal/access"
	"imgshare-bot/internal/config"
	"imgshare-bot/internal/health"
	"imgshare-bot/internal/image"
	"imgshare-bot/internal/limiter"
	"imgshare-bot/internal/membership"
	"imgshare-bot/internal/publish"
	"imgshare-bot/internal/scheduler"
	"imgshare-bot/internal/session"
	"imgshare-bot/internal/state"
	"imgshare-bot/internal/telegram"
	"imgshare-bot/internal/telegraph"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	opts := &slog.HandlerOptions{
		Level: cfg.Logging.SlogLevel(),
	}

	var handler slog.Handler
	if cfg.Logging.JSONFormat {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("bot exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	// Create root context with cancellation
	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	// WaitGroup for tracking active goroutines
	var wg sync.WaitGroup

	// Durable state
	backend, err := state.NewBackend(rootCtx, cfg.Storage.Driver, cfg.Storage.Path, cfg.Storage.DSN)
	if err != nil {
		return err
	}
	store, err := state.Open(rootCtx, backend)
	if err != nil {
		_ = backend.Close()
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("failed to close state store", "error", err)
		}
	}()

	api, err := tgbotapi.NewBotAPI(cfg.Telegram.BotToken)
	if err != nil {
		return err
	}
	botUsername := cfg.Telegram.BotUsername
	if botUsername == "" {
		botUsername = api.Self.UserName
	}

	gate := access.NewGate(
		cfg.Telegram.AdminIDs,
		cfg.Telegram.FreeMode,
		cfg.Telegram.RequiredChannel,
		store,
		membership.NewCache(cfg.Membership.Size, cfg.Membership.TTL),
		telegram.NewMemberLookup(api),
		logger,
	)

	// Publish pipeline
	processor := image.NewProcessor(cfg.Image.Transform, cfg.Image.MaxDimension, cfg.Image.JPEGQuality, cfg.Image.ArtifactDir).
		WithMaxPixels(cfg.Image.MaxPixels)
	hosting := telegraph.NewClient(cfg.Hosting, logger)
	fetcher := telegram.NewFileFetcher(api)
	pipeline := publish.NewPipeline(fetcher, processor, hosting, store, image.RemoveArtifact, cfg.Publish.FetchTimeout, logger)

	loc, err := cfg.Scheduler.Location()
	if err != nil {
		return err
	}
	events := event.NewManager("imgshare")
	sched := scheduler.New(pipeline, events, image.RemoveArtifact, cfg.Scheduler.StaleAfter, loc, logger)

	sessions := session.NewStore(cfg.Session.TTL, image.RemoveArtifact, logger)
	inflight := limiter.NewInFlight()

	h := telegram.NewHandler(telegram.Options{
		Sender:          api,
		BotUsername:     botUsername,
		Gate:            gate,
		Sessions:        sessions,
		Prompts:         session.NewPrompts(cfg.Session.TTL),
		Pipeline:        pipeline,
		Scheduler:       sched,
		State:           store,
		Fetcher:         fetcher,
		Processor:       processor,
		Checker:         hosting,
		InFlight:        inflight,
		Rate:            limiter.NewRateLimiter(cfg.Telegram.RatePerSecond, cfg.Telegram.RateBurst),
		LocalArtifacts:  cfg.Image.LocalArtifacts,
		FetchTimeout:    cfg.Publish.FetchTimeout,
		ReleaseArtifact: image.RemoveArtifact,
		BaseContext:     rootCtx,
		Logger:          logger,
	})
	h.RegisterEventListeners(events)

	wg.Add(1)
	go func() {
		defer wg.Done()
		h.RunJanitor(rootCtx, cfg.Session.SweepInterval)
	}()

	if cfg.Health.Port > 0 {
		srv := health.NewServer(cfg.Health.Port, func() map[string]any {
			return map[string]any{
				"sessions":       sessions.Len(),
				"scheduled_jobs": sched.Len(),
				"in_flight":      inflight.Len(),
			}
		}, logger)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Run(rootCtx); err != nil {
				logger.Error("health server error", "error", err)
			}
		}()
	}

	bot := telegram.NewBot(api, h, cfg.Telegram, logger)

	// Start bot in goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := bot.Run(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("bot error", "error", err)
		}
	}()

	logger.Info("bot started",
		"username", botUsername,
		"admins", len(cfg.Telegram.AdminIDs),
		"channel", cfg.Telegram.RequiredChannel,
		"free_mode", cfg.Telegram.FreeMode,
		"storage", cfg.Storage.Driver,
		"hosting_url", cfg.Hosting.BaseURL,
	)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutdown signal received", "signal", sig)

	// Cancel root context to signal all goroutines
	rootCancel()

	// Pending jobs are in-memory only; their artifacts go with them.
	sched.Stop()

	// Wait for graceful shutdown with timeout
	shutdownTimeout := 30 * time.Second
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("graceful shutdown complete")
	case <-time.After(shutdownTimeout):
		logger.Warn("shutdown timeout exceeded, forcing exit")
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.Flush(flushCtx); err != nil {
		logger.Error("final state flush failed", "error", err)
	}
	return nil
}
