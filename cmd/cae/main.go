package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/user/cae/internal/api"
	"github.com/user/cae/internal/config"
	"github.com/user/cae/internal/db"
	"github.com/user/cae/internal/hub"
	"github.com/user/cae/internal/platform"
	"github.com/user/cae/internal/registry"
	"github.com/user/cae/internal/server"
	"github.com/user/cae/internal/viewer"
	"github.com/user/cae/internal/watcher"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	level, err := cfg.SlogLevel()
	if err != nil {
		slog.Error("invalid log level", "error", err)
		os.Exit(1)
	}

	base := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	if err := run(cfg, base); err != nil {
		slog.New(base).Error("cae stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, base slog.Handler) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The hub logs through base only; everything else also reaches the log pane.
	h := hub.New(cfg.Token, nil, slog.New(base))
	logger := slog.New(hub.NewLogHandler(base, h))
	slog.SetDefault(logger)

	database, err := db.Open(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()
	history := db.NewHistory(database)

	reg, err := registry.NewRegistry(cfg.ViewersDir)
	if err != nil {
		return fmt.Errorf("load viewer profiles: %w", err)
	}
	if err := registry.InstallScripts(cfg.ScriptsDir); err != nil {
		logger.Warn("failed to install startup scripts", "dir", cfg.ScriptsDir, "error", err)
	}

	backend, err := platform.New(cfg.Backend, logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	ctrl := viewer.New(viewer.Options{
		Viewer:        cfg.Viewer,
		Executable:    cfg.CGXPath,
		ScriptsDir:    cfg.ScriptsDir,
		AlignWindows:  cfg.AlignWindows,
		LocateTimeout: cfg.LocateTimeout,
		HelpTitle:     cfg.HelpTitle,
		UsePTY:        cfg.UsePTY,
	}, backend, reg, history, logger)
	defer ctrl.Close()

	ctrl.OnChange(func(s viewer.Status) { h.BroadcastStatus(s) })
	h.SetCommands(ctrl)
	ctrl.AdoptActiveWindow()
	go h.Run(ctx)

	w := watcher.New(reg.Dir(), registry.IsProfileFile, func() {
		if err := reg.Reload(); err != nil {
			logger.Warn("failed to reload viewer profiles", "error", err)
			return
		}
		logger.Info("viewer profiles reloaded", "dir", reg.Dir())
	}, logger)
	if err := w.Start(); err != nil {
		logger.Warn("profile hot reload disabled", "error", err)
	} else {
		defer w.Close()
	}

	srv := server.New(cfg, h, api.NewRouter(ctrl, history, reg, cfg.Token), logger)
	if cfg.PrintToken {
		fmt.Printf("\ncae running at http://localhost:%d?token=%s\n\n", cfg.Port, cfg.Token)
	} else {
		fmt.Printf("\ncae running at http://localhost:%d\n\n", cfg.Port)
	}

	if cfg.StartModel != "" {
		go func() {
			if err := ctrl.OpenFile(cfg.StartModel); err != nil {
				logger.Error("failed to open start model", "path", cfg.StartModel, "error", err)
			}
		}()
	} else {
		logger.Warn("No default start model specified")
	}

	return srv.Start(ctx)
}
