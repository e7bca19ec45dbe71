package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"ride_bot/internal/bot"
	"ride_bot/internal/config"
	"ride_bot/internal/lifecycle"
	"ride_bot/internal/notify"
	"ride_bot/internal/storage"
	"ride_bot/internal/sweeper"
	"ride_bot/internal/telegram"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	api, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		log.Error("create telegram client", "error", err)
		os.Exit(1)
	}

	transport := telegram.NewTransport(api, cfg.ChannelID)
	dispatcher := notify.NewDispatcher(store, transport, log)
	ctrl := lifecycle.NewController(store, transport, dispatcher, log, api.Self.UserName, cfg.ListingLifetime, cfg.MaxPrice)
	sw := sweeper.New(store, ctrl, dispatcher, log, cfg.SweepInterval, cfg.PurgeGrace)
	b := bot.New(api, store, ctrl, log, cfg.RatingDelay)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("starting bot", "username", api.Self.UserName)

	go sw.Run(ctx)

	b.Run(ctx)

	log.Info("bot stopped")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
