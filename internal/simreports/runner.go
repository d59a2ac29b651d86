// Package simreports floods a running proximity service with synthetic
// sighting reports for load and smoke testing.
package simreports

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/safesite/proximity/pkg/logger"
)

// Run executes a complete simulated reporting pass.
func Run(ctx context.Context, config *Config) error {
	stats := &Stats{StartTime: time.Now()}

	logger.Get().Info(ctx, "starting proximity report simulation",
		logger.String("baseURL", config.BaseURL),
		logger.Int("reports", config.NumReports),
		logger.Int("workers", config.Workers),
		logger.Duration("timeout", config.Timeout),
	)

	if err := checkServiceHealth(ctx, config); err != nil {
		return fmt.Errorf("service health check failed: %w", err)
	}

	reports, err := generateReports(ctx, config, stats)
	if err != nil {
		return fmt.Errorf("report generation failed: %w", err)
	}

	if err := submitReports(ctx, config, reports, stats); err != nil {
		return fmt.Errorf("report submission failed: %w", err)
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(stats)
	return nil
}

// checkServiceHealth verifies the service is reachable before the run.
func checkServiceHealth(ctx context.Context, config *Config) error {
	client := newHTTPClient(config)
	resp, err := client.get(ctx, config.BaseURL+"/healthz")
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("service health check failed with status: %d", resp.StatusCode)
	}
	logger.Get().Info(ctx, "service is healthy")
	return nil
}

func displayFinalStats(stats *Stats) {
	var reportsPerSecond float64
	if stats.Duration > 0 {
		reportsPerSecond = float64(stats.ReportsSubmitted) / stats.Duration.Seconds()
	}

	logger.Get().Info(context.Background(), "simulation statistics",
		logger.Int("reportsGenerated", stats.ReportsGenerated),
		logger.Int("reportsSubmitted", stats.ReportsSubmitted),
		logger.Int("reportsAccepted", stats.ReportsAccepted),
		logger.Int("reportsThrottled", stats.ReportsThrottled),
		logger.Int("reportsRejected", stats.ReportsRejected),
		logger.Duration("duration", stats.Duration),
		logger.Float64("reportsPerSecond", reportsPerSecond),
	)
}
