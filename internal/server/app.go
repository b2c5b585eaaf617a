// Package server initializes and runs the signature authority. It picks the
// storage backend, starts the HTTP API and handles graceful shutdown.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/safetrack/fieldsign/internal/logging"
	"github.com/safetrack/fieldsign/internal/server/config"
	"github.com/safetrack/fieldsign/internal/server/httpapi"
	"github.com/safetrack/fieldsign/internal/server/storage"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	storage storage.Storage
	api     *httpapi.Server
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	var st storage.Storage
	if cfg.DatabaseDSN == "" {
		logger.Warn(ctx, "no database DSN configured, using in-memory storage")
		st = storage.NewMemory()
	} else {
		pg, err := storage.NewPostgres(ctx, cfg.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("db init error: %w", err)
		}
		st = pg
	}

	api := httpapi.NewServer(cfg.ListenAddr, st, []byte(cfg.SecretKey), logger)

	return &App{config: cfg, logger: logger, storage: st, api: api}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := app.api.Run(ctx); err != nil {
			app.logger.Error(ctx, "http server stopped", "error", err)
			cancelFunc()
		}
	}()

	wg.Wait()

	if err := app.storage.Close(); err != nil {
		app.logger.Error(ctx, "closing storage", "error", err)
	}
}
