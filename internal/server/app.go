// Package server initializes and runs the vault server: configuration,
// database and object storage wiring, the background orphan sweeper, and
// the HTTP API with graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/sealvault/sealvault/internal/logging"
	"github.com/sealvault/sealvault/internal/server/config"
	"github.com/sealvault/sealvault/internal/server/httpapi"
	"github.com/sealvault/sealvault/internal/server/objstore"
	"github.com/sealvault/sealvault/internal/server/repositories/repomanager"
	"github.com/sealvault/sealvault/internal/server/services"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	db      *sql.DB
	files   *services.FileService
	shares  *services.ShareService
	sweeper *services.Sweeper
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {

	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	store, err := objstore.NewS3Store(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("object storage init error: %w", err)
	}

	content := services.NewContentStore(db, rm, store, cfg, logger)
	files := services.NewFileService(db, rm, content, cfg, logger)
	shares := services.NewShareService(db, rm, content, cfg, logger)
	sweeper := services.NewSweeper(db, rm, store, cfg, logger)

	return &App{
		config:  cfg,
		logger:  logger,
		db:      db,
		files:   files,
		shares:  shares,
		sweeper: sweeper,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := httpapi.NewServer(app.config.EndpointAddrHTTP, app.logger, app.files, app.shares, app.config.SecretKey)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
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
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.sweeper.Run(ctx)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err.Error())
	}
}
