package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/unitask/internal/config"
	"github.com/dukerupert/unitask/internal/database"
	"github.com/dukerupert/unitask/internal/logging"
	"github.com/dukerupert/unitask/internal/maxbot"
	"github.com/dukerupert/unitask/internal/reminder"
	"github.com/dukerupert/unitask/internal/server"
	"github.com/dukerupert/unitask/internal/store"
	"github.com/dukerupert/unitask/internal/tracker"
	ws "github.com/dukerupert/unitask/internal/websocket"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "unitask: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	userStore := store.NewUserStore(db)
	noteStore := store.NewNoteStore(db)
	deadlineStore := store.NewDeadlineStore(db)

	hub := ws.NewHub(logger.With("component", "websocket"))

	bot := maxbot.NewClient(cfg.Bot.Token,
		maxbot.WithBaseURL(cfg.Bot.BaseURL),
		maxbot.WithTimeout(cfg.Bot.Timeout),
		maxbot.WithRateLimit(cfg.Bot.Rate),
		maxbot.WithLogger(logger.With("component", "maxbot")),
	)
	if !bot.Configured() {
		logger.Warn("MAX_BOT_TOKEN not set, reminders will fail to send")
	}

	msgTracker := tracker.New(bot, cfg.DeleteAfter(),
		tracker.WithLogger(logger.With("component", "tracker")),
		tracker.OnRead(func(m tracker.TrackedMessage) {
			hub.Broadcast(ws.NewMessageEvent("read", m.MessageID, map[string]any{"recipient_id": m.RecipientID}))
		}),
		tracker.OnDelete(func(m tracker.TrackedMessage) {
			hub.Broadcast(ws.NewMessageEvent("deleted", m.MessageID, map[string]any{"recipient_id": m.RecipientID}))
		}),
	)

	dispatcher := reminder.NewDispatcher(bot, deadlineStore, msgTracker, hub, logger.With("component", "dispatcher"))
	scanner := reminder.NewScanner(deadlineStore, noteStore, userStore, dispatcher, logger.With("component", "scanner"))
	scheduler := reminder.NewScheduler(scanner, cfg.ScanInterval, logger.With("component", "scheduler"))

	srv := server.New(server.Config{
		WebhookSecret: cfg.WebhookSecret,
		APIRate:       cfg.APIRate,
		APIBurst:      cfg.APIBurst,
	}, userStore, msgTracker, scheduler, hub, logger)
	httpServer := srv.HTTPServer(cfg.Addr())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http server listening", "addr", httpServer.Addr, "env", cfg.AppEnv)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		scheduler.Start(gCtx)
		<-gCtx.Done()
		scheduler.Stop()
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-gCtx.Done():
				return nil
			case <-ticker.C:
				if n := srv.RateLimiter().Cleanup(30 * time.Minute); n > 0 {
					logger.Debug("rate limiter cleanup", "removed", n)
				}
			}
		}
	})

	if cfg.WebhookURL != "" {
		g.Go(func() error {
			subscribeWebhook(gCtx, bot, cfg.WebhookURL, cfg.WebhookSecret, logger)
			return nil
		})
	}

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown", "error", err)
		}
		if err := msgTracker.Shutdown(shutdownCtx); err != nil {
			logger.Error("tracker shutdown", "error", err)
		}
		hub.Close()
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("stopped")
	return nil
}

// subscribeWebhook registers the webhook URL with the platform. Failure
// leaves the bot without inbound updates but does not stop the process.
func subscribeWebhook(ctx context.Context, bot *maxbot.Client, url, secret string, logger *slog.Logger) {
	if err := bot.Subscribe(ctx, url, secret, maxbot.DefaultUpdateTypes); err != nil {
		logger.Error("webhook subscription failed", "url", url, "error", err)
	}
}
