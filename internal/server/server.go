// Package server orchestrates all components: NATS client, DB, console service,
// dispatcher, preferences bucket, HTTP health and metrics.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/standards-console/internal/config"
	"github.com/morezero/standards-console/pkg/catalog"
	"github.com/morezero/standards-console/pkg/commsutil"
	"github.com/morezero/standards-console/pkg/console"
	"github.com/morezero/standards-console/pkg/db"
	"github.com/morezero/standards-console/pkg/dispatcher"
	"github.com/morezero/standards-console/pkg/events"
	"github.com/morezero/standards-console/pkg/metrics"
	"github.com/morezero/standards-console/pkg/settings"
)

const logPrefix = "server:server"

// consoleService is the part of console.Service the HTTP handlers use.
type consoleService interface {
	Health(ctx context.Context) *commsutil.HealthOutput
	ListStandards(ctx context.Context) (*catalog.Snapshot, error)
}

// requestDispatcher routes decoded requests.
type requestDispatcher interface {
	Dispatch(ctx context.Context, req *commsutil.Request) *commsutil.Response
}

// Server is the standards-console orchestrator.
type Server struct {
	cfg        *config.Config
	nc         *comms.Conn
	pool       *pgxpool.Pool
	httpServer *http.Server
	svc        consoleService
	metrics    *metrics.Metrics
	prefs      *settings.Preferences
}

// Run starts the server, blocks until shutdown signal, then cleans up.
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	if err := cfg.ValidateForServe(); err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	slog.Info(fmt.Sprintf("%s - Starting standards-console", logPrefix))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := &Server{cfg: cfg, metrics: metrics.New()}

	consoleSubject := cfg.ConsoleSubject
	if consoleSubject == "" {
		consoleSubject = commsutil.SubjectConsole
	}
	slog.Info(fmt.Sprintf("%s - Console subject: %s", logPrefix, consoleSubject))

	// Step 1: Connect to NATS
	nc, err := commsutil.Connect(cfg.COMMSURL, cfg.COMMSName)
	if err != nil {
		return fmt.Errorf("%s - failed to connect to NATS: %w", logPrefix, err)
	}
	s.nc = nc

	// Step 2: Connect to database
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		nc.Close()
		return fmt.Errorf("%s - failed to connect to database: %w", logPrefix, err)
	}
	s.pool = pool

	// Step 2b: Run migrations and seed the catalog if enabled
	if cfg.RunMigrations {
		if err := migrateAndSeed(ctx, pool, cfg); err != nil {
			pool.Close()
			nc.Close()
			return err
		}
	}

	// Step 3: Create console service
	publisherOpts := &events.CommsPublisherOpts{}
	if cfg.ChangeEventSubject != "" {
		publisherOpts.GlobalChangeSubject = cfg.ChangeEventSubject
	}
	fallback, err := catalog.LoadSeedFile(cfg.SeedFile)
	if err != nil {
		pool.Close()
		nc.Close()
		return fmt.Errorf("%s - failed to load standards seed: %w", logPrefix, err)
	}
	svc := console.NewService(console.Params{
		Store:     db.NewRepository(pool),
		Publisher: events.NewCommsPublisher(nc, publisherOpts),
		Metrics:   s.metrics,
		Fallback:  fallback,
	})
	s.svc = svc

	// Step 4: Preferences bucket
	s.prefs = s.openPreferences(ctx)

	// Step 5: Create dispatcher and subscribe
	disp := dispatcher.NewDispatcher(svc, s.metrics)
	sub, err := nc.Subscribe(consoleSubject, requestHandler(ctx, disp, cfg.RequestTimeout))
	if err != nil {
		pool.Close()
		nc.Close()
		return fmt.Errorf("%s - failed to subscribe to %s: %w", logPrefix, consoleSubject, err)
	}
	slog.Info(fmt.Sprintf("%s - Subscribed to %s", logPrefix, consoleSubject))

	// Step 6: Start HTTP server
	httpAddr := fmt.Sprintf(":%d", cfg.HTTPPort)
	s.httpServer = &http.Server{Addr: httpAddr, Handler: s.routes(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		slog.Info(fmt.Sprintf("%s - HTTP server listening on %s", logPrefix, httpAddr))
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error(fmt.Sprintf("%s - HTTP server error: %v", logPrefix, err))
		}
	}()

	slog.Info(fmt.Sprintf("%s - Standards console is ready", logPrefix))

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info(fmt.Sprintf("%s - Received signal %s, shutting down", logPrefix, sig))

	// Graceful shutdown
	_ = sub.Unsubscribe()
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.HealthCheckTimeout)
	defer shutdownCancel()
	_ = s.httpServer.Shutdown(shutdownCtx)
	_ = nc.Drain()
	pool.Close()

	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
	return nil
}

func migrateAndSeed(ctx context.Context, pool *pgxpool.Pool, cfg *config.Config) error {
	migrations, err := db.LoadMigrations(cfg.MigrationPath)
	if err != nil {
		return fmt.Errorf("%s - failed to load migrations: %w", logPrefix, err)
	}
	if err := db.RunMigrations(ctx, pool, migrations); err != nil {
		return fmt.Errorf("%s - failed to run migrations: %w", logPrefix, err)
	}
	if err := db.Seed(ctx, pool, cfg.SeedFile); err != nil {
		return fmt.Errorf("%s - failed to seed standards: %w", logPrefix, err)
	}
	return nil
}

// openPreferences opens the preferences bucket, falling back to process memory
// when JetStream is unavailable or the bucket is disabled.
func (s *Server) openPreferences(ctx context.Context) *settings.Preferences {
	if !s.cfg.SettingsEnabled() {
		slog.Info(fmt.Sprintf("%s - Preferences bucket disabled, using memory", logPrefix))
		return settings.NewPreferences(settings.NewMemoryStore())
	}
	kv, err := settings.NewKVStore(ctx, s.nc, s.cfg.SettingsBucket)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - Preferences bucket unavailable, using memory: %v", logPrefix, err))
		return settings.NewPreferences(settings.NewMemoryStore())
	}
	return settings.NewPreferences(kv)
}

// requestHandler decodes console requests, dispatches them with a per-request
// timeout and responds.
func requestHandler(ctx context.Context, disp requestDispatcher, timeout time.Duration) comms.MsgHandler {
	return func(msg *comms.Msg) {
		var req commsutil.Request
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			slog.Error(fmt.Sprintf("%s - failed to decode request: %v", logPrefix, err))
			data, _ := json.Marshal(&commsutil.Response{
				Ok: false,
				Error: &commsutil.ErrorDetail{
					Code:    "INVALID_REQUEST",
					Message: "Failed to decode request",
				},
			})
			_ = msg.Respond(data)
			return
		}

		reqCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		resp := disp.Dispatch(reqCtx, &req)

		data, err := json.Marshal(resp)
		if err != nil {
			slog.Error(fmt.Sprintf("%s - failed to encode response: %v", logPrefix, err))
			return
		}
		if err := msg.Respond(data); err != nil {
			slog.Warn(fmt.Sprintf("%s - failed to respond to %s: %v", logPrefix, req.ID, err))
		}
	}
}
