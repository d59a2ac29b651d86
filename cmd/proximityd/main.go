package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/safesite/proximity/internal/adapters/http/api"
	"github.com/safesite/proximity/internal/adapters/http/swagger"
	app "github.com/safesite/proximity/internal/app"
	"github.com/safesite/proximity/internal/config"
	"github.com/safesite/proximity/pkg/logger"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

func main() {
	// The registry carries only domain metrics; default Go collectors would
	// duplicate what the platform already scrapes.
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	log := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return
	}

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	svc := app.New(
		app.WithLogger(log),
		app.WithDBPath(cfg.DBPath),
		app.WithRedisAddr(cfg.RedisAddr),
		app.WithChannelFormat(cfg.CommandChannelPrefix),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.QueueSize),
		app.WithEstimator(cfg.MaxDistance, cfg.PathLossExponent, cfg.DefaultTxPower),
		app.WithRingCommand(cfg.RingType, cfg.RingTimeMS, cfg.LedOn, cfg.LedOff),
		app.WithAlertCooldown(time.Duration(cfg.AlertCooldownMS)*time.Millisecond),
		app.WithPublishTimeout(time.Duration(cfg.PublishTimeoutMS)*time.Millisecond),
		app.WithPersistTimeout(time.Duration(cfg.PersistTimeoutMS)*time.Millisecond),
	)
	if err := svc.Start(ctx); err != nil {
		os.Stderr.WriteString("failed to start service: " + err.Error() + "\n")
		return
	}
	defer svc.Stop()

	if cfg.SweepIntervalMS > 0 {
		go runSweepLoop(ctx, svc, time.Duration(cfg.SweepIntervalMS)*time.Millisecond, log)
	}

	mux := http.NewServeMux()
	swagger.Register(mux)
	apiServer := api.NewServer(svc, svc, api.WithMaxListLimit(cfg.MaxListLimit))
	apiServer.Register(mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			os.Stderr.WriteString("HTTP server failed: " + err.Error() + "\n")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
}

// runSweepLoop applies retention policies on a fixed interval until the
// context is canceled.
func runSweepLoop(ctx context.Context, svc *app.Service, interval time.Duration, log logger.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := svc.SweepNow(ctx)
			if err != nil {
				log.Error(ctx, "scheduled retention sweep failed", logger.Error(err))
				continue
			}
			if result.TotalDeleted > 0 {
				log.Info(ctx, "scheduled retention sweep finished",
					logger.Int64("deleted", result.TotalDeleted),
					logger.Int("policies", result.PoliciesApplied),
				)
			}
		}
	}
}
