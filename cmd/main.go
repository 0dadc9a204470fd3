package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/lineup/internal/adapters/http/api"
	"github.com/okian/lineup/internal/adapters/http/swagger"
	"github.com/okian/lineup/internal/adapters/notify"
	"github.com/okian/lineup/internal/adapters/repository"
	"github.com/okian/lineup/internal/adapters/repository/postgres"
	service "github.com/okian/lineup/internal/app"
	"github.com/okian/lineup/internal/config"
	"github.com/okian/lineup/pkg/logger"
	"github.com/okian/lineup/pkg/telemetry"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTP server timeout constants. WriteTimeout stays zero so /stream can
// hold its connection open.
const (
	readTimeout          = 10 * time.Second
	idleTimeout          = 60 * time.Second
	readHeaderTimeout    = 5 * time.Second
	shutdownTimeout      = 30 * time.Second
	serviceMetricsPeriod = 5 * time.Second
	telemetryServiceName = "lineup"
)

func main() {
	// Our own runtime gauges replace the default collectors.
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		// logger is not configured yet
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		logger.Get().Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if err := run(ctx, cfg); err != nil {
		logger.Get().Error(ctx, "lineup exited", logger.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	_ = logger.Sync()
}

func run(ctx context.Context, cfg *config.Config) error {
	log := logger.Get()

	shutdownTracing, err := telemetry.Setup(ctx, telemetryServiceName, cfg.OTelEndpoint, cfg.OTelInsecure)
	if err != nil {
		log.Warn(ctx, "tracing disabled", logger.Error(err))
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn(ctx, "tracer shutdown failed", logger.Error(err))
		}
	}()

	svc, cleanup, err := buildService(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	defer svc.Stop()

	go refreshServiceMetrics(ctx, svc)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newHandler(ctx, svc),
		ReadTimeout:       readTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr), logger.String("store", cfg.Store))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
	return nil
}

// buildService opens the configured store and publishers. cleanup releases
// what buildService opened and must run after the service is stopped. On
// error nothing is left open.
func buildService(ctx context.Context, cfg *config.Config, log logger.Logger) (*service.Service, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	opts := []service.Option{
		service.WithLogger(log),
		service.WithHistoryWindow(cfg.HistoryWindow),
		service.WithCongestion(cfg.CongestionThreshold, cfg.CongestionPercent),
		service.WithClaimMaxAttempts(cfg.ClaimMaxAttempts),
		service.WithSimulateMax(cfg.SimulateMax),
	}

	var store repository.Store
	switch cfg.Store {
	case config.StorePostgres:
		pg, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		closers = append(closers, func() { _ = pg.Close() })
		store = pg
	default:
		mem := repository.NewMemoryStore(ctx)
		closers = append(closers, func() { _ = mem.Close() })
		store = mem
	}
	opts = append(opts, service.WithStore(store))

	if cfg.RedisURL != "" {
		client, err := notify.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		closers = append(closers, func() { _ = client.Close() })
		opts = append(opts, service.WithPublishers(notify.NewRedisPublisher(client,
			notify.WithChannelPrefix(cfg.RedisChannelPrefix),
			notify.WithRedisLogger(log),
		)))
	}

	if cfg.AutopilotEnabled {
		opts = append(opts, service.WithAutopilot(cfg.AutopilotInterval(), cfg.AutopilotService(), cfg.Counters()...))
	}

	return service.New(opts...), cleanup, nil
}

// newHandler registers the business API and the docs on one traced mux.
func newHandler(ctx context.Context, svc *service.Service) http.Handler {
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc, svc).Register(ctx, mux)
	return api.Instrument(mux)
}

// refreshServiceMetrics keeps the runtime gauges current between /stats calls.
func refreshServiceMetrics(ctx context.Context, svc *service.Service) {
	ticker := time.NewTicker(serviceMetricsPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = svc.GetStats()
		}
	}
}
