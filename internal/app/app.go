// Package app wires every component into the two runtime modes the
// process supports: "api" (the HTTP and Socket Facades) and "worker" (the
// periodic attendance sweep and retention cleanup).
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/sentrywear/sentry/internal/alertlifecycle"
	"github.com/sentrywear/sentry/internal/attendance"
	"github.com/sentrywear/sentry/internal/auth"
	"github.com/sentrywear/sentry/internal/config"
	"github.com/sentrywear/sentry/internal/eventbus"
	"github.com/sentrywear/sentry/internal/httpapi"
	"github.com/sentrywear/sentry/internal/httpserver"
	"github.com/sentrywear/sentry/internal/ingest"
	"github.com/sentrywear/sentry/internal/platform"
	"github.com/sentrywear/sentry/internal/store"
	"github.com/sentrywear/sentry/internal/telemetry"
	"github.com/sentrywear/sentry/internal/threshold"
	"github.com/sentrywear/sentry/internal/wsapi"
)

// Run is the process entry point: it reads infrastructure collaborators
// out of cfg, wires every component, and starts the mode cfg.Mode names.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting sentry", "mode", cfg.Mode, "listen", cfg.ListenAddr())

	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBAcquireWait)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()

	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")

	metricsReg := telemetry.NewMetricsRegistry()

	st := store.New(db)

	tokens, err := auth.NewTokenManager(cfg.AccessTokenSecret, cfg.RefreshTokenSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	if err != nil {
		return fmt.Errorf("creating token manager: %w", err)
	}
	authSvc := auth.NewService(st, tokens)

	policy := threshold.Policy{
		HeartRateLow:  cfg.ThresholdHeartRateLow,
		HeartRateHigh: cfg.ThresholdHeartRateHigh,
		SpO2Low:       cfg.ThresholdSpO2Low,
		TempLow:       cfg.ThresholdTempLow,
		TempHigh:      cfg.ThresholdTempHigh,
		COHigh:        cfg.ThresholdCOHigh,
		COCritical:    cfg.ThresholdCOCritical,
		H2SHigh:       cfg.ThresholdH2SHigh,
		H2SCritical:   cfg.ThresholdH2SCritical,
		CH4High:       cfg.ThresholdCH4High,
		CH4Critical:   cfg.ThresholdCH4Critical,
	}

	attendanceMachine := attendance.New(st, time.Local, cfg.AttendanceIdleWindow)
	alerts := alertlifecycle.New(st)

	hub := eventbus.NewHub(cfg.SocketQueueSize, &eventbus.Metrics{
		FanoutDropped: telemetry.FanoutDroppedTotal,
		Active:        telemetry.ActiveConnections,
		RoomMembers:   telemetry.RoomMembers,
	})

	pipeline := ingest.New(st, attendanceMachine, hub, policy)

	switch cfg.Mode {
	case "api":
		return runAPI(ctx, cfg, logger, db, rdb, metricsReg, st, authSvc, tokens, pipeline, alerts, attendanceMachine, hub)
	case "worker":
		return runWorker(ctx, cfg, logger, st, attendanceMachine, alerts)
	default:
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}
}

func runAPI(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	db *pgxpool.Pool,
	rdb *redis.Client,
	metricsReg *prometheus.Registry,
	st *store.Store,
	authSvc *auth.Service,
	tokens *auth.TokenManager,
	pipeline *ingest.Pipeline,
	alerts *alertlifecycle.Manager,
	attendanceMachine *attendance.Machine,
	hub *eventbus.Hub,
) error {
	rateLimiter := auth.NewRateLimiter(rdb, cfg.LoginRateLimitAttempts, cfg.LoginRateLimitWindow)

	apiHandler := httpapi.NewHandler(logger, st, authSvc, pipeline, alerts, attendanceMachine, hub, rateLimiter)
	srv := httpserver.NewServer(cfg, logger, db, rdb, metricsReg, tokens, apiHandler)

	wsServer := wsapi.NewServer(logger, authSvc, hub, alerts, wsapi.Config{
		PingInterval:   cfg.SocketPingInterval,
		IdleTimeout:    cfg.SocketIdleTimeout,
		SendDeadline:   cfg.SocketSendDeadline,
		AllowedOrigins: cfg.CORSAllowedOrigins,
	})
	srv.Router.Get("/ws", wsServer.ServeWS)

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := httpSrv.Shutdown(shutdownCtx)
		logger.Info("closing open sockets")
		wsServer.Shutdown()
		return err
	case err := <-errCh:
		return err
	}
}
