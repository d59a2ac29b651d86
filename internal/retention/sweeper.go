// Package retention deletes aged log and alert records according to the
// configured per-(type, severity) retention policies.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/safesite/proximity/internal/adapters/repository"
	"github.com/safesite/proximity/internal/domain/model"
	"github.com/safesite/proximity/pkg/logger"
	"github.com/safesite/proximity/pkg/metrics"
)

// LogTypeAlert is the policy log type addressing the proximity alert table
// rather than the monitoring log table.
const LogTypeAlert = "proximity_alert"

// Result summarizes one sweep run.
type Result struct {
	// DeletedByPolicy maps "logType/severity" to rows deleted.
	DeletedByPolicy map[string]int64 `json:"deletedByPolicy"`
	TotalDeleted    int64            `json:"totalDeleted"`
	PoliciesApplied int              `json:"policiesApplied"`
	SweepTime       time.Time        `json:"sweepTime"`
}

// Option applies a configuration option to the Sweeper.
type Option func(*Sweeper)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the sweeper.
func WithLogger(l logger.Logger) Option {
	return func(s *Sweeper) {
		if l != nil {
			s.log = l
		}
	}
}

// Sweeper applies retention policies to the durable store. Safe to run
// concurrently with ingestion: cutoffs are computed once at sweep start, so
// records created during a run are never eligible, and each policy issues
// one bounded delete.
type Sweeper struct {
	store repository.Store
	now   func() time.Time
	log   logger.Logger
}

// New creates a Sweeper with configuration options.
func New(store repository.Store, opts ...Option) *Sweeper {
	s := &Sweeper{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
		log:   logger.Get().Named("retention"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sweep runs all active policies once. Classes without a policy are never
// swept; inactive policies are skipped entirely. Per-policy delete failures
// are logged and skipped so one bad class cannot stall the rest of the run.
func (s *Sweeper) Sweep(ctx context.Context) (Result, error) {
	start := s.now()
	defer func() {
		metrics.RecordSweepDuration(float64(time.Since(start).Milliseconds()))
	}()

	policies, err := s.store.ListRetentionPolicies(ctx)
	if err != nil {
		metrics.RecordPersistenceError("list_retention_policies")
		return Result{}, fmt.Errorf("list retention policies: %w", err)
	}

	result := Result{
		DeletedByPolicy: make(map[string]int64),
		SweepTime:       start,
	}

	for _, policy := range policies {
		if !policy.IsActive || policy.RetentionDays <= 0 {
			continue
		}
		cutoff := start.AddDate(0, 0, -policy.RetentionDays)

		deleted, err := s.applyPolicy(ctx, policy, cutoff)
		if err != nil {
			metrics.RecordPersistenceError("retention_delete")
			s.log.Error(ctx, "retention delete failed",
				logger.String("logType", policy.LogType),
				logger.String("severity", string(policy.Severity)),
				logger.Error(err),
			)
			continue
		}

		key := policy.LogType + "/" + string(policy.Severity)
		result.DeletedByPolicy[key] = deleted
		result.TotalDeleted += deleted
		result.PoliciesApplied++
		metrics.RecordSweepDeleted(policy.LogType, string(policy.Severity), deleted)

		if deleted > 0 {
			s.log.Info(ctx, "retention sweep deleted records",
				logger.String("logType", policy.LogType),
				logger.String("severity", string(policy.Severity)),
				logger.Int64("deleted", deleted),
			)
		}
	}

	metrics.RecordSweepRun()
	return result, nil
}

func (s *Sweeper) applyPolicy(ctx context.Context, policy model.LogRetentionPolicy, cutoff time.Time) (int64, error) {
	if policy.LogType == LogTypeAlert {
		return s.store.DeleteAgedAlerts(ctx, cutoff)
	}
	return s.store.DeleteAgedLogs(ctx, policy.LogType, policy.Severity, cutoff)
}
