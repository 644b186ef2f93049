// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/jeranaias/chatdesk/internal/chat"
	"github.com/jeranaias/chatdesk/internal/cloud"
	"github.com/jeranaias/chatdesk/internal/config"
	"github.com/jeranaias/chatdesk/internal/logging"
	"github.com/jeranaias/chatdesk/internal/storage"
	"github.com/jeranaias/chatdesk/internal/store"
)

// =============================================================================
// APPLICATION WIRING
// =============================================================================

// App is one fully wired chatdesk instance: config, logger, persistence,
// state store, gateway, and send workflow.
type App struct {
	Config     *config.Config
	ConfigPath string
	Logger     *zap.Logger
	Store      *store.Store
	Client     *cloud.Client
	Workflow   *chat.Workflow

	backend storage.Backend
	state   *storage.StateStore
}

// AppOptions controls how an App is opened.
type AppOptions struct {
	// ConfigPath is an explicit config file. Empty searches the defaults.
	ConfigPath string

	// LogLevel overrides logging.level when set.
	LogLevel string

	// Quiet raises the log level to warn unless LogLevel is set. Used by
	// commands whose output is the terminal itself.
	Quiet bool
}

// OpenApp loads config, opens storage, and hydrates the store.
func OpenApp(ctx context.Context, opts AppOptions) (*App, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	return NewApp(ctx, cfg, opts)
}

// NewApp wires an App around an already loaded config.
func NewApp(ctx context.Context, cfg *config.Config, opts AppOptions) (*App, error) {
	level := cfg.Logging.Level
	switch {
	case opts.LogLevel != "":
		level = opts.LogLevel
	case opts.Quiet && cfg.Logging.File == "":
		level = "warn"
	}
	logger, err := logging.New(level, cfg.Logging.Format, cfg.Logging.File)
	if err != nil {
		return nil, err
	}

	backend, err := storage.Open(storage.Kind(cfg.Storage.Backend), cfg.Storage.Path)
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	state := storage.NewStateStore(backend, cfg.Storage.Namespace)
	st := store.New(state, store.WithLogger(logger.Named("store")))
	if err := st.Initialize(ctx); err != nil {
		_ = backend.Close()
		_ = logger.Sync()
		return nil, err
	}

	client := cloud.NewClient(cloud.ClientConfig{
		APIKey:  cfg.Gateway.APIKey,
		BaseURL: cfg.Gateway.BaseURL,
		Timeout: time.Duration(cfg.Gateway.TimeoutSecs) * time.Second,
		Logger:  logger.Named("gateway"),
	})

	app := &App{
		Config:     cfg,
		ConfigPath: resolveConfigPath(opts.ConfigPath),
		Logger:     logger,
		Store:      st,
		Client:     client,
		Workflow:   chat.NewWorkflow(st, client, logger.Named("chat")),
		backend:    backend,
		state:      state,
	}

	logger.Debug("app opened",
		zap.String("storage", cfg.Storage.Backend),
		zap.String("path", cfg.Storage.Path),
		zap.String("namespace", state.Namespace()),
		zap.String("gateway", client.BaseURL()),
		zap.Bool("gateway_configured", client.IsConfigured()))
	return app, nil
}

// Reset deletes the persisted chats and todos. The in-memory store is
// untouched; the next run starts from the seeded default chats.
func (a *App) Reset(ctx context.Context) error {
	a.Workflow.Wait()
	if err := a.state.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear %s: %w", a.state.Namespace(), err)
	}
	a.Logger.Info("persisted state cleared", zap.String("namespace", a.state.Namespace()))
	return nil
}

// Close waits for in-flight sends and releases storage.
func (a *App) Close() error {
	a.Workflow.Wait()
	err := a.backend.Close()
	// Syncing stderr fails on some terminals; only a log file can report a
	// real flush error.
	if a.Config.Logging.File != "" {
		err = multierr.Append(err, a.Logger.Sync())
	} else {
		_ = a.Logger.Sync()
	}
	return err
}

// resolveConfigPath returns the config file in use, or "" when running on
// defaults.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, candidate := range config.DefaultPaths() {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}
