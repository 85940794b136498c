// Package app wires the sync engine together: config, local database,
// blob store, remote asset store, reachability monitor and the sharing
// coordinator. It also handles graceful shutdown.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	_ "modernc.org/sqlite"

	"github.com/dmitrijs2005/keepsake/internal/blobstore"
	"github.com/dmitrijs2005/keepsake/internal/config"
	"github.com/dmitrijs2005/keepsake/internal/engine"
	"github.com/dmitrijs2005/keepsake/internal/logging"
	"github.com/dmitrijs2005/keepsake/internal/netwatch"
	"github.com/dmitrijs2005/keepsake/internal/records"
	"github.com/dmitrijs2005/keepsake/internal/remote"
	"github.com/dmitrijs2005/keepsake/internal/sharing"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	db      *sql.DB
	repo    *records.SQLiteRepository
	blobs   *blobstore.Store
	store   remote.AssetStore
	engine  *engine.Engine
	monitor *netwatch.Monitor
	sharing *sharing.Coordinator
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	slog := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(slog)

	repo, db, err := records.InitDatabase(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	blobs := blobstore.New(c.BlobDir)

	// Without a configured endpoint the daemon runs against an
	// in-memory asset store: useful for development and dry runs,
	// nothing survives a restart.
	var store remote.AssetStore
	if c.S3Endpoint == "" {
		logger.Warn(ctx, "no S3 endpoint configured, using in-memory asset store")
		store = remote.NewMemStore()
	} else {
		store, err = remote.NewS3Store(ctx, remote.S3Config{
			Endpoint:  c.S3Endpoint,
			Region:    c.S3Region,
			AccessKey: c.S3AccessKey,
			SecretKey: c.S3SecretKey,
			Bucket:    c.S3Bucket,
		})
		if err != nil {
			return nil, fmt.Errorf("asset store init error: %w", err)
		}
	}

	eng := engine.New(repo, blobs, store, logger, engine.Options{
		UploadWorkers:   int64(c.UploadWorkers),
		DownloadWorkers: int64(c.DownloadWorkers),
	})

	monitor := netwatch.New(store, eng, c.OnlineCheckInterval, logger)
	coord := sharing.New(repo, blobs, store, logger)

	return &App{
		config:  c,
		logger:  logger,
		db:      db,
		repo:    repo,
		blobs:   blobs,
		store:   store,
		engine:  eng,
		monitor: monitor,
		sharing: coord,
	}, nil
}

// Engine exposes the transfer engine for callers embedding the app.
func (app *App) Engine() *engine.Engine { return app.engine }

// Sharing exposes the shared-zone coordinator.
func (app *App) Sharing() *sharing.Coordinator { return app.sharing }

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run starts the reachability monitor and an initial retry scan, then
// blocks until ctx is cancelled or a termination signal arrives.
// Queued transfers are cancelled on shutdown; transfers that already
// started are drained so no asset is left half-reported.
func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.monitor.Run(ctx)
	}()

	// Pick up records left pending or failed by a previous run.
	if err := app.engine.RetryFailedAndPending(ctx); err != nil {
		app.logger.Warn(ctx, "initial retry scan failed", "error", err)
	}

	<-ctx.Done()

	app.logger.Info(ctx, "Shutting down...")

	app.engine.CancelAll()
	app.engine.Wait()
	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err)
	}
}
