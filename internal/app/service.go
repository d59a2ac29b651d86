// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	sightingqueue "github.com/safesite/proximity/internal/adapters/mq/queue"
	workerpool "github.com/safesite/proximity/internal/adapters/mq/worker"
	"github.com/safesite/proximity/internal/adapters/repository"
	"github.com/safesite/proximity/internal/calibration"
	"github.com/safesite/proximity/internal/dispatch"
	"github.com/safesite/proximity/internal/domain/estimate"
	"github.com/safesite/proximity/internal/domain/model"
	"github.com/safesite/proximity/internal/domain/quality"
	"github.com/safesite/proximity/internal/pipeline"
	"github.com/safesite/proximity/internal/retention"
	"github.com/safesite/proximity/pkg/logger"
	"github.com/safesite/proximity/pkg/metrics"
)

// Service wires the proximity engine: durable store, calibration cache,
// estimator, dispatcher, ingestion queue, worker pool, and sweeper.
type Service struct {
	mu sync.RWMutex

	// Core components
	store      repository.Store
	calib      *calibration.Store
	estimator  *estimate.Estimator
	transport  dispatch.Transport
	dispatcher *dispatch.Dispatcher
	pipe       *pipeline.Pipeline
	queue      *sightingqueue.InMemoryQueue
	workerPool *workerpool.Pool
	sweeper    *retention.Sweeper

	// Configuration
	dbPath         string
	redisAddr      string
	channelFormat  string
	workerCount    int
	queueSize      int
	maxDistance    float64
	pathLoss       float64
	defaultTxPower float64
	ring           dispatch.RingCommand
	cooldown       time.Duration
	publishTimeout time.Duration
	persistTimeout time.Duration

	// Pre-built components, for tests
	storeOverride     repository.Store
	transportOverride dispatch.Transport

	// State
	started bool

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithDBPath sets the SQLite database location.
func WithDBPath(path string) Option {
	return func(s *Service) {
		if path != "" {
			s.dbPath = path
		}
	}
}

// WithRedisAddr sets the command transport address. Empty disables the
// Redis transport.
func WithRedisAddr(addr string) Option {
	return func(s *Service) {
		s.redisAddr = addr
	}
}

// WithChannelFormat sets the per-gateway command channel format.
func WithChannelFormat(format string) Option {
	return func(s *Service) {
		if format != "" {
			s.channelFormat = format
		}
	}
}

// WithWorkerCount sets the number of pipeline workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum size of the sighting queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithEstimator tunes the distance estimator.
func WithEstimator(maxDistance, pathLossExponent, defaultTxPower float64) Option {
	return func(s *Service) {
		if maxDistance > 0 {
			s.maxDistance = maxDistance
		}
		if pathLossExponent > 0 {
			s.pathLoss = pathLossExponent
		}
		if defaultTxPower < 0 {
			s.defaultTxPower = defaultTxPower
		}
	}
}

// WithRingCommand sets the ring envelope parameters.
func WithRingCommand(ringType, ringTimeMS, ledOn, ledOff int) Option {
	return func(s *Service) {
		s.ring = dispatch.RingCommand{
			RingType: ringType,
			RingTime: ringTimeMS,
			LedOn:    ledOn,
			LedOff:   ledOff,
		}
	}
}

// WithAlertCooldown suppresses repeat alerts per pair for the window.
func WithAlertCooldown(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.cooldown = d
		}
	}
}

// WithPublishTimeout bounds command publishes.
func WithPublishTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.publishTimeout = d
		}
	}
}

// WithPersistTimeout bounds durable store operations.
func WithPersistTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.persistTimeout = d
		}
	}
}

// WithStore injects a pre-built durable store, bypassing Open.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		s.storeOverride = store
	}
}

// WithTransport injects a pre-built command transport.
func WithTransport(t dispatch.Transport) Option {
	return func(s *Service) {
		s.transportOverride = t
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		dbPath:         "proximity.db",
		channelFormat:  "gateway:%s:cmd",
		workerCount:    runtime.NumCPU() * 2,
		queueSize:      10_000,
		maxDistance:    100,
		pathLoss:       2.0,
		defaultTxPower: -59,
		ring:           dispatch.RingCommand{RingType: 4, RingTime: 4000, LedOn: 1, LedOff: 0},
		publishTimeout: 2 * time.Second,
		persistTimeout: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	s.logger.Info(ctx, "starting proximity service...")

	if s.storeOverride != nil {
		s.store = s.storeOverride
	} else {
		store, err := repository.Open(s.dbPath, repository.WithOpTimeout(s.persistTimeout))
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		s.store = store
	}

	s.calib = calibration.New(s.store)
	if err := s.calib.Reload(ctx); err != nil {
		s.logger.Warn(ctx, "initial calibration load failed; starting with empty cache",
			logger.Error(err),
		)
	}

	s.estimator = estimate.New(
		estimate.WithMaxDistance(s.maxDistance),
		estimate.WithPathLossExponent(s.pathLoss),
		estimate.WithTxPower(s.defaultTxPower),
	)

	s.transport = s.transportOverride
	if s.transport == nil {
		s.transport = dispatch.NewRedisTransport(s.redisAddr,
			dispatch.WithPublishTimeout(s.publishTimeout),
		)
	}
	if s.redisAddr != "" || s.transportOverride != nil {
		if err := s.transport.Connect(ctx); err != nil {
			// Commands report not connected until the transport recovers.
			s.logger.Warn(ctx, "command transport unavailable", logger.Error(err))
		}
	}

	s.dispatcher = dispatch.New(s.transport, s.store,
		dispatch.WithRing(s.ring.RingType, s.ring.RingTime),
		dispatch.WithLED(s.ring.LedOn, s.ring.LedOff),
		dispatch.WithChannelFormat(s.channelFormat),
	)

	var pipeOpts []pipeline.Option
	if s.cooldown > 0 {
		pipeOpts = append(pipeOpts, pipeline.WithCooldown(s.cooldown))
	}
	s.pipe = pipeline.New(s.store, s.calib, s.estimator, s.dispatcher, pipeOpts...)

	s.queue = sightingqueue.NewInMemoryQueue(sightingqueue.WithCapacity(s.queueSize))
	s.workerPool = workerpool.NewPool(s.workerCount, s.queue, s.pipe)
	s.workerPool.Start(ctx)

	s.sweeper = retention.New(s.store)

	s.started = true
	s.logger.Info(ctx, "proximity service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("calibratedPairs", s.calib.Len()),
	)
	return nil
}

// Stop gracefully shuts down the service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping proximity service...")

	if s.queue != nil {
		_ = s.queue.Close()
	}
	if s.workerPool != nil {
		s.workerPool.Stop()
	}
	if s.transport != nil {
		_ = s.transport.Disconnect()
	}
	if s.store != nil {
		_ = s.store.Close()
	}

	s.started = false
	s.logger.Info(ctx, "proximity service stopped")
}

// Enqueue submits a sighting for asynchronous processing.
func (s *Service) Enqueue(ctx context.Context, report model.SightingReport) bool {
	ok := s.queue.Enqueue(ctx, report)
	if ok {
		metrics.RecordSightingReceived()
	} else {
		metrics.RecordSightingRejected("backpressure")
	}
	return ok
}

// AddCalibrationPoint records a reference measurement. With strict set, an
// existing point at the same distance is a conflict; otherwise samples merge.
func (s *Service) AddCalibrationPoint(ctx context.Context, beaconID, gatewayID string, distance, rssi float64, strict bool) (*model.CalibrationSet, error) {
	var err error
	if strict {
		_, err = s.calib.CreatePoint(ctx, beaconID, gatewayID, distance, rssi)
	} else {
		_, err = s.calib.AddPoint(ctx, beaconID, gatewayID, distance, rssi)
	}
	if err != nil && !errors.Is(err, calibration.ErrNotPersisted) {
		return nil, err
	}
	set, _ := s.calib.Get(beaconID, gatewayID)
	return set, err
}

// RemoveCalibrationPoints drops every point for the pair.
func (s *Service) RemoveCalibrationPoints(ctx context.Context, beaconID, gatewayID string) (bool, error) {
	return s.calib.RemovePoints(ctx, beaconID, gatewayID)
}

// Calibration fetches a pair's set along with its quality assessment,
// graded against the gateway's configured threshold when one exists.
func (s *Service) Calibration(ctx context.Context, beaconID, gatewayID string) (*model.CalibrationSet, quality.Assessment, error) {
	set, ok := s.calib.Get(beaconID, gatewayID)
	if !ok {
		return nil, quality.Assessment{}, fmt.Errorf("%w: no calibration for pair", repository.ErrNotFound)
	}

	var threshold float64
	if policy, err := s.store.GatewayPolicy(ctx, gatewayID); err == nil {
		threshold = policy.ProximityThreshold
	}
	return set, quality.Evaluate(set, threshold), nil
}

// ListCalibrations returns up to limit calibration sets.
func (s *Service) ListCalibrations(_ context.Context, limit int) ([]*model.CalibrationSet, error) {
	sets := make([]*model.CalibrationSet, 0, s.calib.Len())
	for set := range s.calib.All() {
		if limit > 0 && len(sets) >= limit {
			break
		}
		sets = append(sets, set)
	}
	return sets, nil
}

// ReloadCalibrations swaps the cache for a fresh durable snapshot.
func (s *Service) ReloadCalibrations(ctx context.Context) error {
	return s.calib.Reload(ctx)
}

// RetentionPolicies lists the configured retention policies.
func (s *Service) RetentionPolicies(ctx context.Context) ([]model.LogRetentionPolicy, error) {
	return s.store.ListRetentionPolicies(ctx)
}

// PutRetentionPolicy stores or updates a retention policy.
func (s *Service) PutRetentionPolicy(ctx context.Context, policy model.LogRetentionPolicy) error {
	return s.store.UpsertRetentionPolicy(ctx, policy)
}

// LogStats reports per-class record counts and age bounds.
func (s *Service) LogStats(ctx context.Context) ([]repository.LogStat, error) {
	return s.store.LogStats(ctx)
}

// SweepNow runs a retention sweep immediately.
func (s *Service) SweepNow(ctx context.Context) (retention.Result, error) {
	return s.sweeper.Sweep(ctx)
}

// RingBeacon triggers a manual ring through the alert pipeline.
func (s *Service) RingBeacon(ctx context.Context, beaconID, gatewayID string) (pipeline.Outcome, error) {
	return s.pipe.TriggerManual(ctx, beaconID, gatewayID)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
	}
	if s.started {
		stats["queueLength"] = s.queue.Len()
		stats["calibratedPairs"] = s.calib.Len()
		stats["transportConnected"] = s.transport.Connected()
	}
	return stats
}
