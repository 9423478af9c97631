package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rendis/flowgen/internal/httpapi"
	"github.com/rendis/flowgen/internal/logging"
	"github.com/rendis/flowgen/internal/scheduler"
	"github.com/rendis/flowgen/internal/store"
	"github.com/rendis/flowgen/internal/workspace"
	"github.com/rendis/flowgen/pkg/mcp"
)

const shutdownTimeout = 10 * time.Second

// openStore connects the configured store and applies pending migrations.
// The memory driver has no store and returns nil.
func openStore(ctx context.Context, cfg Config) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.DBDriver {
	case driverMemory:
		return nil, nil
	case driverPostgres:
		if cfg.PostgresURL == "" {
			return nil, errors.New("db_driver postgres needs postgres_url")
		}
		st, err = store.NewPostgresStore(ctx, cfg.PostgresURL)
	case driverLibSQL, "":
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o700); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		st, err = store.NewLibSQLStore("file:" + cfg.DBPath)
	default:
		return nil, fmt.Errorf("unknown db_driver %q (want libsql, postgres or memory)", cfg.DBDriver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return st, nil
}

// openWorkspace builds the workspace both servers share.
func openWorkspace(ctx context.Context, cfg Config, logger *slog.Logger) (*workspace.Workspace, func(), error) {
	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	closeStore := func() {
		if st != nil {
			st.Close()
		}
	}
	ws, err := workspace.New(workspace.Options{
		Store:    st,
		Limits:   cfg.Limits(),
		Dialect:  cfg.Dialect,
		MaxSteps: cfg.MaxSteps,
		Logger:   logger,
	})
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	if st == nil {
		return ws, closeStore, nil
	}

	sched, err := scheduler.New(st, scheduler.Config{
		Spec:      cfg.MaintenanceCron,
		Retention: time.Duration(cfg.RetentionDays) * 24 * time.Hour,
	}, logger)
	if err != nil {
		closeStore()
		return nil, nil, err
	}
	if err := sched.Start(ctx); err != nil {
		closeStore()
		return nil, nil, err
	}
	return ws, func() {
		_ = sched.Stop()
		closeStore()
	}, nil
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	listenAddr := fs.String("listen-addr", "", "TCP listen address (overrides settings)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := loadConfig()
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}

	var level slog.LevelVar
	level.Set(logging.ParseLevel(cfg.LogLevel))
	logger := logging.NewWithLeveler(os.Stderr, &level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ws, closeAll, err := openWorkspace(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeAll()

	srv := httpapi.New(httpapi.Deps{Workspace: ws, Logger: logger, Version: version})

	if err := writePID(); err != nil {
		logger.Warn("cannot write pid file", "error", err)
	}
	defer os.Remove(pidPath())

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Listen(cfg.ListenAddr) }()

	for {
		select {
		case err := <-errCh:
			return err
		case <-hup:
			next := loadConfig()
			if *listenAddr != "" {
				next.ListenAddr = *listenAddr
			}
			d := diffConfigs(cfg, next)
			if d.LogLevelChanged {
				level.Set(logging.ParseLevel(next.LogLevel))
				cfg.LogLevel = next.LogLevel
			}
			logger.Info("configuration reloaded", "log_level", cfg.LogLevel,
				"restart_needed", strings.Join(d.RestartNeeded, ","))
		case <-ctx.Done():
			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		}
	}
}

func runMCP(args []string) error {
	fs := flag.NewFlagSet("mcp", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := loadConfig()
	logger := logging.New(os.Stderr, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ws, closeAll, err := openWorkspace(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeAll()

	srv := mcp.NewFlowgenServer(mcp.FlowgenServerDeps{Workspace: ws, Logger: logger, Version: version})
	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func writePID() error {
	if err := os.MkdirAll(flowgenDir(), 0o700); err != nil {
		return err
	}
	return os.WriteFile(pidPath(), []byte(strconv.Itoa(os.Getpid())), 0o644)
}
