// Package runtime wires configuration, the database, and the HTTP server
// around the application services.
package runtime

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	_ "github.com/lib/pq"

	app "github.com/luggez/groupsystem/internal/app"
	"github.com/luggez/groupsystem/internal/app/gateway"
	"github.com/luggez/groupsystem/internal/app/httpapi"
	"github.com/luggez/groupsystem/internal/app/metrics"
	"github.com/luggez/groupsystem/internal/app/storage/postgres"
	"github.com/luggez/groupsystem/internal/config"
	"github.com/luggez/groupsystem/internal/messages"
	"github.com/luggez/groupsystem/pkg/logger"
)

// Application owns the process-level lifecycle: config, database, services
// and the HTTP listener.
type Application struct {
	cfg    *config.Config
	log    *logger.Logger
	app    *app.Application
	server *http.Server
	db     *sql.DB
}

// NewApplication builds the application from the configuration file at
// configPath (empty means GROUPSYSTEM_CONFIG or ./config.yaml). Schema setup
// and the initial group load must succeed; nothing starts otherwise.
func NewApplication(configPath string) (*Application, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := logger.New(logger.LoggingConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})

	db, err := openDatabase(cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store := postgres.New(db)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := store.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	catalog, err := messages.Load(cfg.Messages)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load messages: %w", err)
	}

	opTimeout, _ := cfg.GatewayOpTimeout()
	sweepInterval, _ := cfg.SweepInterval()

	application, err := app.New(
		app.Stores{Groups: store, Memberships: store},
		app.Options{
			Gateway: gateway.Config{
				Workers:   cfg.Gateway.Workers,
				QueueSize: cfg.Gateway.QueueSize,
				OpTimeout: opTimeout,
			},
			SweepInterval: sweepInterval,
			Messages:      catalog,
			MOTD:          cfg.MOTD,
		},
		log,
	)
	if err != nil {
		db.Close()
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/", metrics.InstrumentHandler(httpapi.NewHandler(application)))

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &Application{
		cfg:    cfg,
		log:    log,
		app:    application,
		server: server,
		db:     db,
	}, nil
}

// Run starts the services and the HTTP server and blocks until the context
// is cancelled or the server fails.
func (a *Application) Run(ctx context.Context) error {
	if err := a.app.Start(ctx); err != nil {
		return fmt.Errorf("start services: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Infof("HTTP server listening on %s", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown stops the listener, the sweeper and the gateway in order, then
// closes the database. Queued gateway work is drained before the pool goes
// away.
func (a *Application) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.log.WithError(err).Warn("error shutting down HTTP server")
	}

	err := a.app.Stop(shutdownCtx)

	if closeErr := a.db.Close(); closeErr != nil {
		a.log.WithError(closeErr).Warn("error closing database connection")
	}
	return err
}

func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, err
	}

	if cfg.Database.MaxOpen > 0 {
		db.SetMaxOpenConns(cfg.Database.MaxOpen)
	}
	if cfg.Database.MaxIdle > 0 {
		db.SetMaxIdleConns(cfg.Database.MaxIdle)
	}

	connTimeout, err := cfg.ConnTimeout()
	if err != nil {
		db.Close()
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), connTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
