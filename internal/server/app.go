// Package server initializes and runs the StaffKeeper server. It opens the
// configured store, runs migrations, creates the initial SuperAdmin on an
// empty store, and serves the gRPC API next to the metrics endpoint.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/staffkeeper/internal/audit"
	"github.com/dmitrijs2005/staffkeeper/internal/cryptox"
	"github.com/dmitrijs2005/staffkeeper/internal/dbx"
	"github.com/dmitrijs2005/staffkeeper/internal/filex"
	"github.com/dmitrijs2005/staffkeeper/internal/lockout"
	"github.com/dmitrijs2005/staffkeeper/internal/logging"
	"github.com/dmitrijs2005/staffkeeper/internal/metrics"
	"github.com/dmitrijs2005/staffkeeper/internal/server/config"
	"github.com/dmitrijs2005/staffkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/staffkeeper/internal/server/services"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	gs "github.com/dmitrijs2005/staffkeeper/internal/server/grpc"
)

const (
	auditBuffer  = 256
	auditTimeout = 5 * time.Second
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	db       *sql.DB
	registry *prometheus.Registry
	auth     *services.AuthService
	accounts *services.AccountService
	closers  []func()
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	return newApp(ctx, c, os.Stdout)
}

func newApp(ctx context.Context, c *config.Config, out io.Writer) (*App, error) {
	logger := logging.New(out, c.LogFormat, c.LogLevel)
	app := &App{config: c, logger: logger}

	repos, err := repomanager.New(c.Store)
	if err != nil {
		return nil, err
	}

	if c.Store == repomanager.StoreSQLite {
		if path := filex.SQLitePath(c.DatabaseDSN); path != "" {
			if err := filex.EnsureParentDir(path); err != nil {
				return nil, fmt.Errorf("db init error: %w", err)
			}
		}
	}

	if c.Store != repomanager.StoreMemory {
		db, err := dbx.Open(ctx, repomanager.Driver(c.Store), c.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("db init error: %w", err)
		}
		app.db = db
		app.closers = append(app.closers, func() { _ = db.Close() })

		if err := repos.RunMigrations(ctx, db); err != nil {
			app.Close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
	}

	codec, err := cryptox.NewCodec(c.CodecParams())
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("password codec: %w", err)
	}

	sink, err := app.auditSink(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}

	app.registry = prometheus.NewRegistry()
	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	d := services.Deps{
		Codec:   codec,
		Policy:  lockout.NewPolicy(lockout.WithMaxAttempts(c.MaxAttempts), lockout.WithDuration(c.LockDuration)),
		Audit:   sink,
		Metrics: metrics.NewCollector(app.registry),
		Log:     logger,
	}
	app.auth = services.NewAuthService(app.db, repos, c, d)
	app.accounts = services.NewAccountService(app.db, repos, c, d)

	return app, nil
}

// auditSink logs every event and, when enabled, archives it to S3 in the
// background.
func (app *App) auditSink(ctx context.Context) (audit.Sink, error) {
	sinks := audit.MultiSink{audit.NewLogSink(app.logger)}
	if !app.config.AuditS3 {
		return sinks, nil
	}

	s3sink, err := audit.NewS3Sink(ctx, audit.S3Config{
		Region:    app.config.S3Region,
		Endpoint:  app.config.S3BaseEndpoint,
		AccessKey: app.config.S3AccessKey,
		SecretKey: app.config.S3SecretKey,
		Bucket:    app.config.S3Bucket,
		Prefix:    app.config.S3Prefix,
	})
	if err != nil {
		return nil, err
	}
	async := audit.NewAsyncSink(s3sink, auditBuffer, auditTimeout, app.logger)
	app.closers = append(app.closers, async.Close)
	return append(sinks, async), nil
}

func (app *App) healthCheck(ctx context.Context) error {
	if app.db == nil {
		return nil
	}
	return app.db.PingContext(ctx)
}

// Close releases resources in reverse order of acquisition.
func (app *App) Close() {
	for i := len(app.closers) - 1; i >= 0; i-- {
		app.closers[i]()
	}
	app.closers = nil
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

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) error {
	s, err := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.auth, app.accounts, app.config)
	if err != nil {
		cancelFunc()
		return err
	}
	if err := s.Run(ctx); err != nil {
		cancelFunc()
		return fmt.Errorf("grpc: %w", err)
	}
	return nil
}

func (app *App) startMetricsServer(ctx context.Context, cancelFunc context.CancelFunc) error {
	app.logger.Info(ctx, "Starting metrics server", "address", app.config.EndpointAddrMetrics)
	h := metrics.NewRouter(app.registry, app.healthCheck)
	if err := metrics.Serve(ctx, app.config.EndpointAddrMetrics, h); err != nil {
		cancelFunc()
		return fmt.Errorf("metrics: %w", err)
	}
	return nil
}

// Run serves until ctx is cancelled, a signal arrives or a server fails.
func (app *App) Run(ctx context.Context) error {
	defer app.Close()

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "store", app.config.Store)

	if _, err := app.accounts.EnsureSuperAdmin(ctx); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	app.initSignalHandler(cancelFunc)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	run := func(start func(context.Context, context.CancelFunc) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := start(ctx, cancelFunc); err != nil {
				app.logger.Error(ctx, err.Error())
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}()
	}

	run(app.startGRPCServer)
	run(app.startMetricsServer)

	wg.Wait()
	app.logger.Info(context.Background(), "App stopped")

	return errors.Join(errs...)
}
