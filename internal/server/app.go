// Package server wires the forum together: it opens the database, applies
// the schema, builds the session pool, services and HTTP API, and runs them
// until the process is told to stop.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/gophforum/internal/dbx"
	"github.com/dmitrijs2005/gophforum/internal/logging"
	"github.com/dmitrijs2005/gophforum/internal/server/auth"
	"github.com/dmitrijs2005/gophforum/internal/server/config"
	"github.com/dmitrijs2005/gophforum/internal/server/httpapi"
	"github.com/dmitrijs2005/gophforum/internal/server/metrics"
	"github.com/dmitrijs2005/gophforum/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophforum/internal/server/services"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	pool    *dbx.Pool
	metrics *metrics.Collector
	server  *httpapi.Server
}

// NewApp opens the database and migrates it before anything can serve
// traffic. A migration failure is returned wrapped in dbx.ErrMigrationFailed.
func NewApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	if logger == nil {
		logger = logging.Nop()
	}

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm, err := repomanager.NewPostgresRepositoryManager(
		repomanager.WithMigrationLock(c.MigrationLockID),
		repomanager.WithLogger(logger),
	)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db init error: %w", err)
	}

	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	collector := metrics.New()
	pool := dbx.NewPool(db,
		dbx.WithCapacity(c.PoolSize),
		dbx.WithAcquireTimeout(c.AcquireTimeout),
		dbx.WithObserver(collector),
		dbx.WithLogger(logger),
	)
	collector.TrackPool(pool.Stats)

	tokens := auth.NewTokenService([]byte(c.SecretKey), c.TokenTTL, auth.WithLeeway(c.TokenLeeway))
	accounts := services.NewAccountService(rm, tokens, auth.NewBcryptHasher(c.BcryptCost), logger)
	forum := services.NewForumService(rm, logger)

	srv := httpapi.NewServer(c.EndpointAddrHTTP, pool, accounts, forum,
		httpapi.WithMetrics(collector),
		httpapi.WithLogger(logger),
		httpapi.WithShutdownTimeout(c.ShutdownTimeout),
	)

	return &App{config: c, logger: logger, pool: pool, metrics: collector, server: srv}, nil
}

// Handler exposes the HTTP API without binding a listener.
func (app *App) Handler() http.Handler { return app.server.Handler() }

func (app *App) Pool() *dbx.Pool { return app.pool }

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run serves until ctx is cancelled or a termination signal arrives, then
// drains in-flight requests and closes the pool.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.initSignalHandler(cancelFunc)

	app.logger.Info(ctx, "Starting app...", "pool_size", app.pool.Capacity())

	err := app.server.Run(ctx)
	cancelFunc()

	if cerr := app.pool.Close(); cerr != nil {
		app.logger.Warn(ctx, "closing pool", "error", cerr)
	}

	app.logger.Info(ctx, "App stopped")
	return err
}

// Close releases the database without serving.
func (app *App) Close() error {
	return app.pool.Close()
}
