package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"gate_bot/internal/bot"
	"gate_bot/internal/broadcast"
	"gate_bot/internal/campaign"
	"gate_bot/internal/config"
	"gate_bot/internal/scheduler"
	"gate_bot/internal/storage"
	"gate_bot/internal/vault"
	"gate_bot/internal/verifier"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("read .env file", "error", err)
	}

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

	api, err := bot.NewAPI(cfg.TelegramBotToken)
	if err != nil {
		log.Error("create bot", "error", err)
		os.Exit(1)
	}
	log.Info("authorized", "username", api.Self.UserName)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	registry := campaign.NewRegistry(store, log)
	contentVault := vault.New(store, log)
	contentVault.SetChallengeTTL(cfg.ChallengeTTL)
	users := broadcast.NewUsers(store, log)
	for name, load := range map[string]func(context.Context) error{
		"campaigns": registry.Load,
		"content":   contentVault.Load,
		"users":     users.Load,
	} {
		if err := load(ctx); err != nil {
			log.Error("restore state", "part", name, "error", err)
			os.Exit(1)
		}
	}

	oracle := bot.NewOracle(api, cfg.APITimeout, log)
	messenger := bot.NewMessenger(api, cfg.APITimeout, log)

	checker := verifier.New(registry, oracle, log)
	checker.SetTimeout(cfg.APITimeout)

	dispatcher := broadcast.NewDispatcher(users, messenger, cfg.AdminUsers, log)
	dispatcher.SetWorkers(cfg.BroadcastWorkers)
	dispatcher.SetInterval(cfg.BroadcastInterval)

	b := bot.New(api, api.Self.UserName, cfg, bot.Deps{
		Registry:   registry,
		Vault:      contentVault,
		Users:      users,
		Verifier:   checker,
		Dispatcher: dispatcher,
		Oracle:     oracle,
		Messenger:  messenger,
	}, log)

	sched := scheduler.New(registry, contentVault, oracle, b, log)
	sched.SetTickInterval(cfg.SweepInterval)
	b.SetSweeper(sched)

	log.Info("starting bot",
		"admins", len(cfg.AdminUsers),
		"campaigns", registry.Count(),
		"users", users.Count(),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sched.Run(gctx)
		return nil
	})
	g.Go(func() error {
		b.Run(gctx)
		return nil
	})
	_ = g.Wait()

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
