// Package main contains the entrypoint for the stashbot webhook service.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/edgard/stashbot/internal/bot"
	"github.com/edgard/stashbot/internal/bot/tasks"
	"github.com/edgard/stashbot/internal/config"
	"github.com/edgard/stashbot/internal/database"
	"github.com/edgard/stashbot/internal/delivery"
	"github.com/edgard/stashbot/internal/dispatcher"
	"github.com/edgard/stashbot/internal/logger"
	"github.com/edgard/stashbot/internal/media"
	"github.com/edgard/stashbot/internal/server"
	"github.com/edgard/stashbot/internal/storage"
	"github.com/edgard/stashbot/internal/telegram"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run initializes every component, serves webhooks until ctx is cancelled
// and returns the process exit code.
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	registerOnly := flag.Bool("register-webhook", false, "Register the webhook with Telegram and exit")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Logger.Level, cfg.Logger.JSON)
	slog.SetDefault(log)
	log.Info("Logger initialized", "level", cfg.Logger.Level, "json", cfg.Logger.JSON)

	apiClient := telegram.NewHTTPClient(cfg.Telegram.RequestTimeout, cfg.Telegram.ConnectTimeout)
	tg, err := telegram.NewTelegramBot(cfg.Telegram, log)
	if err != nil {
		log.Error("Failed to create Telegram bot", "error", err)
		return 1
	}

	if cfg.Telegram.WebhookURL != "" {
		if _, err := telegram.EnsureWebhook(ctx, tg, cfg.Telegram, log); err != nil {
			log.Error("Failed to register webhook", "error", err)
			if *registerOnly {
				return 1
			}
		}
	} else if *registerOnly {
		log.Error("telegram.webhook_url must be set to register the webhook")
		return 1
	}
	if *registerOnly {
		return 0
	}

	db, err := database.NewDB(cfg.Database)
	if err != nil {
		log.Error("Failed to connect to database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log)

	var retriever dispatcher.MediaRetriever
	if cfg.Media.Enabled {
		objects, err := storage.New(cfg.Storage, telegram.NewHTTPClient(cfg.Storage.Timeout, cfg.Telegram.ConnectTimeout))
		if err != nil {
			log.Error("Failed to create object storage", "backend", cfg.Storage.Backend, "error", err)
			return 1
		}
		files := telegram.NewFileSource(tg, apiClient, cfg.Telegram.APIURL, cfg.Telegram.Token)
		retriever = media.NewPipeline(files, objects, cfg.Media, log)
	} else {
		log.Info("Media re-hosting disabled")
	}

	deliverer := delivery.New(
		telegram.NewBotSender(tg),
		telegram.NewDirectSender(apiClient, cfg.Telegram.APIURL, cfg.Telegram.Token),
		cfg.Messages.Recovery,
		cfg.Telegram.RequestTimeout,
		log,
	)

	d := dispatcher.New(dispatcher.Deps{
		Logger:           log,
		Store:            store,
		Media:            retriever,
		Deliverer:        deliverer,
		Messages:         cfg.Messages,
		Config:           cfg.Dispatcher,
		OperationTimeout: cfg.Database.OperationTimeout,
	})

	srv := server.New(cfg.Server, cfg.Telegram.WebhookSecret, d, store, log)

	sched, err := bot.NewScheduler(log, &cfg.Scheduler, tasks.RegisterAllTasks(tasks.TaskDeps{
		Logger:     log,
		Store:      store,
		HTTPClient: apiClient,
		Config:     cfg,
	}))
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return 1
	}

	app := bot.NewBot(log, srv, sched)

	log.Info("Starting bot...")
	runErr := app.Run(ctx)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Bot stopped due to error", "error", runErr)
		time.Sleep(time.Second)
		return 1
	}

	log.Info("Bot stopped gracefully.")
	return 0
}
