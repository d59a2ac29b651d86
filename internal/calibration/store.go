// Package calibration holds the in-memory authoritative cache of calibration
// sets, mirrored write-through to the durable store. Each (beacon, gateway)
// set is replaced as a whole unit on mutation so readers never observe a
// partially built set.
package calibration

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"sync"
	"time"

	"github.com/safesite/proximity/internal/adapters/repository"
	"github.com/safesite/proximity/internal/domain/model"
	"github.com/safesite/proximity/pkg/logger"
	"github.com/safesite/proximity/pkg/metrics"
)

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithLogger sets a custom logger for the store.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// Store is the cache-aside calibration component. The durable store remains
// the system of record; the in-memory map serves all estimation reads.
type Store struct {
	durable repository.Store
	log     logger.Logger

	// reloadMu serializes full reloads against point mutations. Mutations
	// take it shared, reload takes it exclusive.
	reloadMu sync.RWMutex

	// mu guards the sets map itself. Values are immutable once published.
	mu   sync.RWMutex
	sets map[model.PairKey]*model.CalibrationSet

	// keyMu hands out one mutex per pair so concurrent mutations of
	// different pairs never contend on a global lock.
	keyMu sync.Map // model.PairKey -> *sync.Mutex
}

// New creates a Store backed by the given durable store. The cache starts
// empty; call Reload to populate it from persisted state.
func New(durable repository.Store, opts ...Option) *Store {
	s := &Store{
		durable: durable,
		sets:    make(map[model.PairKey]*model.CalibrationSet),
		log:     logger.Get().Named("calibration"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) lockKey(key model.PairKey) *sync.Mutex {
	m, _ := s.keyMu.LoadOrStore(key, &sync.Mutex{})
	return m.(*sync.Mutex)
}

// AddPoint upserts a calibration point for the pair: re-adding at an existing
// distance overwrites the RSSI and accumulates the sample count. The durable
// write happens first; on persistence failure the in-memory state is still
// updated (the cache stays authoritative for this process) and the wrapped
// error is returned so callers can surface the degraded write.
func (s *Store) AddPoint(ctx context.Context, beaconID, gatewayID string, distance, rssi float64) (model.CalibrationPoint, error) {
	return s.addPoint(ctx, beaconID, gatewayID, distance, rssi, false)
}

// CreatePoint is the strict-create variant used by the administrative API:
// it fails with repository.ErrDuplicatePoint when the distance is already
// calibrated, and does not touch in-memory state in that case.
func (s *Store) CreatePoint(ctx context.Context, beaconID, gatewayID string, distance, rssi float64) (model.CalibrationPoint, error) {
	return s.addPoint(ctx, beaconID, gatewayID, distance, rssi, true)
}

func (s *Store) addPoint(ctx context.Context, beaconID, gatewayID string, distance, rssi float64, strict bool) (model.CalibrationPoint, error) {
	if beaconID == "" || gatewayID == "" {
		return model.CalibrationPoint{}, fmt.Errorf("%w: beacon and gateway ids are required", ErrInvalidInput)
	}
	if distance <= 0 {
		return model.CalibrationPoint{}, fmt.Errorf("%w: distance must be positive", ErrInvalidInput)
	}

	key := model.PairKey{BeaconID: beaconID, GatewayID: gatewayID}

	s.reloadMu.RLock()
	defer s.reloadMu.RUnlock()
	km := s.lockKey(key)
	km.Lock()
	defer km.Unlock()

	if strict {
		if set := s.snapshot(key); set != nil {
			if _, exists := set.PointAt(distance); exists {
				return model.CalibrationPoint{}, fmt.Errorf("pair %s/%s at %.2fm: %w", beaconID, gatewayID, distance, repository.ErrDuplicatePoint)
			}
		}
	}

	var persistErr error
	var stored model.CalibrationPoint
	if strict {
		stored, persistErr = s.durable.CreateCalibrationPoint(ctx, beaconID, gatewayID, distance, rssi)
		if persistErr != nil {
			// Strict creates must not publish a point the store rejected.
			return model.CalibrationPoint{}, persistErr
		}
	} else {
		stored, persistErr = s.durable.UpsertCalibrationPoint(ctx, beaconID, gatewayID, distance, rssi)
		if persistErr != nil {
			metrics.RecordPersistenceError("upsert_calibration_point")
			s.log.Error(ctx, "calibration point persist failed; cache updated anyway",
				logger.String("beacon", beaconID),
				logger.String("gateway", gatewayID),
				logger.Float64("distance", distance),
				logger.Error(persistErr),
			)
			stored = model.CalibrationPoint{}
		}
	}

	now := time.Now().UTC()
	next := s.buildNextSet(key, distance, rssi, stored, now)

	s.mu.Lock()
	s.sets[key] = next
	s.mu.Unlock()
	s.publishSizeMetrics()

	point, _ := next.PointAt(distance)
	if persistErr != nil {
		return point, fmt.Errorf("%w: %w", ErrNotPersisted, persistErr)
	}
	return point, nil
}

// buildNextSet clones the current set and applies the upsert, keeping points
// unique by distance and sorted ascending. Called with the key lock held.
func (s *Store) buildNextSet(key model.PairKey, distance, rssi float64, stored model.CalibrationPoint, now time.Time) *model.CalibrationSet {
	cur := s.snapshot(key)
	var next *model.CalibrationSet
	if cur == nil {
		next = &model.CalibrationSet{
			BeaconID:  key.BeaconID,
			GatewayID: key.GatewayID,
			CreatedAt: now,
		}
	} else {
		next = cur.Clone()
	}
	next.UpdatedAt = now

	point := stored
	if point.SampleCount == 0 {
		// Persistence failed; derive the point locally.
		point = model.CalibrationPoint{Distance: distance, RSSI: rssi, SampleCount: 1, LastUpdated: now}
		if cur != nil {
			if prev, ok := cur.PointAt(distance); ok {
				point.SampleCount = prev.SampleCount + 1
			}
		}
	}

	replaced := false
	for i := range next.Points {
		if next.Points[i].Distance == distance {
			next.Points[i] = point
			replaced = true
			break
		}
	}
	if !replaced {
		next.Points = append(next.Points, point)
		sort.Slice(next.Points, func(i, j int) bool { return next.Points[i].Distance < next.Points[j].Distance })
	}
	return next
}

// RemovePoints drops the entire set for the pair, in memory and durably.
// It reports whether a set existed in the cache.
func (s *Store) RemovePoints(ctx context.Context, beaconID, gatewayID string) (bool, error) {
	key := model.PairKey{BeaconID: beaconID, GatewayID: gatewayID}

	s.reloadMu.RLock()
	defer s.reloadMu.RUnlock()
	km := s.lockKey(key)
	km.Lock()
	defer km.Unlock()

	s.mu.Lock()
	_, existed := s.sets[key]
	delete(s.sets, key)
	s.mu.Unlock()
	s.publishSizeMetrics()

	if _, err := s.durable.DeleteCalibrationPoints(ctx, beaconID, gatewayID); err != nil {
		metrics.RecordPersistenceError("delete_calibration_points")
		s.log.Error(ctx, "calibration delete persist failed",
			logger.String("beacon", beaconID),
			logger.String("gateway", gatewayID),
			logger.Error(err),
		)
		return existed, fmt.Errorf("pair removed from cache but not from store: %w", err)
	}
	return existed, nil
}

// Get returns a deep copy of the pair's set, or false when no calibration
// exists.
func (s *Store) Get(beaconID, gatewayID string) (*model.CalibrationSet, bool) {
	key := model.PairKey{BeaconID: beaconID, GatewayID: gatewayID}
	set := s.snapshot(key)
	if set == nil {
		return nil, false
	}
	return set, true
}

// All returns a lazy, restartable sequence over clones of every cached set.
// The iteration order is unspecified. Each restart observes the then-current
// cache contents.
func (s *Store) All() iter.Seq[*model.CalibrationSet] {
	return func(yield func(*model.CalibrationSet) bool) {
		s.mu.RLock()
		snapshot := make([]*model.CalibrationSet, 0, len(s.sets))
		for _, set := range s.sets {
			snapshot = append(snapshot, set)
		}
		s.mu.RUnlock()

		for _, set := range snapshot {
			if !yield(set.Clone()) {
				return
			}
		}
	}
}

// Len returns the number of cached pairs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sets)
}

// Reload clears the cache and repopulates it from the durable store. The
// swap is atomic: concurrent readers observe either the old or the new state,
// never a mix. On read failure the previous cache is left untouched.
func (s *Store) Reload(ctx context.Context) error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	sets, err := s.durable.ListCalibrationPoints(ctx)
	if err != nil {
		metrics.RecordPersistenceError("list_calibration_points")
		return fmt.Errorf("reload aborted, cache unchanged: %w", err)
	}

	fresh := make(map[model.PairKey]*model.CalibrationSet, len(sets))
	for _, set := range sets {
		if len(set.Points) == 0 {
			continue
		}
		fresh[model.PairKey{BeaconID: set.BeaconID, GatewayID: set.GatewayID}] = set
	}

	s.mu.Lock()
	s.sets = fresh
	s.mu.Unlock()
	s.publishSizeMetrics()
	metrics.RecordCacheReload()

	s.log.Info(ctx, "calibration cache reloaded", logger.Int("pairs", len(fresh)))
	return nil
}

func (s *Store) snapshot(key model.PairKey) *model.CalibrationSet {
	s.mu.RLock()
	set := s.sets[key]
	s.mu.RUnlock()
	return set.Clone()
}

func (s *Store) publishSizeMetrics() {
	s.mu.RLock()
	pairs := len(s.sets)
	points := 0
	for _, set := range s.sets {
		points += len(set.Points)
	}
	s.mu.RUnlock()
	metrics.UpdateCalibrationPairs(pairs)
	metrics.UpdateCalibrationPoints(points)
}
