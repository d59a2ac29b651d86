// Package repositorytest provides an in-memory Store fake with error
// injection for exercising components without a database.
package repositorytest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/safesite/proximity/internal/adapters/repository"
	"github.com/safesite/proximity/internal/domain/model"
)

type pointKey struct {
	beaconID  string
	gatewayID string
	distance  float64
}

// FakeStore implements repository.Store entirely in memory. Zero value is
// not usable; construct with New.
type FakeStore struct {
	mu       sync.Mutex
	points   map[pointKey]*model.CalibrationPoint
	Alerts   []model.ProximityAlert
	Logs     []model.MonitoringLogEntry
	Policies []model.LogRetentionPolicy
	Gateways map[string]model.GatewayPolicy
	Beacons  map[string]model.Beacon

	// Error injection: when set, the matching operation fails with it.
	FailUpsert error
	FailList   error
	FailAlert  error
	FailLog    error
	FailDelete error
}

// New creates an empty FakeStore.
func New() *FakeStore {
	return &FakeStore{
		points:   make(map[pointKey]*model.CalibrationPoint),
		Gateways: make(map[string]model.GatewayPolicy),
		Beacons:  make(map[string]model.Beacon),
	}
}

// AddGateway registers a gateway policy for lookups.
func (f *FakeStore) AddGateway(p model.GatewayPolicy) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Gateways[p.GatewayID] = p
}

// AddBeacon registers a beacon for lookups.
func (f *FakeStore) AddBeacon(b model.Beacon) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Beacons[b.ID] = b
}

// PointCount returns the number of persisted calibration points.
func (f *FakeStore) PointCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.points)
}

// AlertCount returns the number of recorded alerts. Safe to call while
// writers are active.
func (f *FakeStore) AlertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Alerts)
}

func (f *FakeStore) UpsertCalibrationPoint(_ context.Context, beaconID, gatewayID string, distance, rssi float64) (model.CalibrationPoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailUpsert != nil {
		return model.CalibrationPoint{}, f.FailUpsert
	}
	key := pointKey{beaconID, gatewayID, distance}
	now := time.Now().UTC()
	if p, ok := f.points[key]; ok {
		p.RSSI = rssi
		p.SampleCount++
		p.LastUpdated = now
		return *p, nil
	}
	p := &model.CalibrationPoint{Distance: distance, RSSI: rssi, SampleCount: 1, LastUpdated: now}
	f.points[key] = p
	return *p, nil
}

func (f *FakeStore) CreateCalibrationPoint(_ context.Context, beaconID, gatewayID string, distance, rssi float64) (model.CalibrationPoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailUpsert != nil {
		return model.CalibrationPoint{}, f.FailUpsert
	}
	key := pointKey{beaconID, gatewayID, distance}
	if _, ok := f.points[key]; ok {
		return model.CalibrationPoint{}, repository.ErrDuplicatePoint
	}
	p := &model.CalibrationPoint{Distance: distance, RSSI: rssi, SampleCount: 1, LastUpdated: time.Now().UTC()}
	f.points[key] = p
	return *p, nil
}

func (f *FakeStore) DeleteCalibrationPoints(_ context.Context, beaconID, gatewayID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailDelete != nil {
		return 0, f.FailDelete
	}
	var n int64
	for key := range f.points {
		if key.beaconID == beaconID && key.gatewayID == gatewayID {
			delete(f.points, key)
			n++
		}
	}
	return n, nil
}

func (f *FakeStore) ListCalibrationPoints(_ context.Context) ([]*model.CalibrationSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailList != nil {
		return nil, f.FailList
	}
	byPair := make(map[model.PairKey]*model.CalibrationSet)
	for key, p := range f.points {
		pk := model.PairKey{BeaconID: key.beaconID, GatewayID: key.gatewayID}
		set, ok := byPair[pk]
		if !ok {
			set = &model.CalibrationSet{BeaconID: key.beaconID, GatewayID: key.gatewayID}
			byPair[pk] = set
		}
		set.Points = append(set.Points, *p)
	}
	sets := make([]*model.CalibrationSet, 0, len(byPair))
	for _, set := range byPair {
		sort.Slice(set.Points, func(i, j int) bool { return set.Points[i].Distance < set.Points[j].Distance })
		sets = append(sets, set)
	}
	return sets, nil
}

func (f *FakeStore) AppendAlert(_ context.Context, alert model.ProximityAlert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailAlert != nil {
		return f.FailAlert
	}
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	f.Alerts = append(f.Alerts, alert)
	return nil
}

func (f *FakeStore) AppendLog(_ context.Context, entry model.MonitoringLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailLog != nil {
		return f.FailLog
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	f.Logs = append(f.Logs, entry)
	return nil
}

func (f *FakeStore) ListRetentionPolicies(_ context.Context) ([]model.LogRetentionPolicy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.LogRetentionPolicy, len(f.Policies))
	copy(out, f.Policies)
	return out, nil
}

func (f *FakeStore) UpsertRetentionPolicy(_ context.Context, policy model.LogRetentionPolicy) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, p := range f.Policies {
		if p.LogType == policy.LogType && p.Severity == policy.Severity {
			f.Policies[i] = policy
			return nil
		}
	}
	f.Policies = append(f.Policies, policy)
	return nil
}

func (f *FakeStore) DeleteAgedLogs(_ context.Context, logType string, severity model.Severity, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailDelete != nil {
		return 0, f.FailDelete
	}
	var kept []model.MonitoringLogEntry
	var n int64
	for _, e := range f.Logs {
		if e.Type == logType && e.Severity == severity && e.CreatedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	f.Logs = kept
	return n, nil
}

func (f *FakeStore) DeleteAgedAlerts(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailDelete != nil {
		return 0, f.FailDelete
	}
	var kept []model.ProximityAlert
	var n int64
	for _, a := range f.Alerts {
		if a.AlertTime.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, a)
	}
	f.Alerts = kept
	return n, nil
}

func (f *FakeStore) LogStats(_ context.Context) ([]repository.LogStat, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	type class struct {
		logType  string
		severity model.Severity
	}
	agg := make(map[class]*repository.LogStat)
	for _, e := range f.Logs {
		c := class{e.Type, e.Severity}
		st, ok := agg[c]
		if !ok {
			st = &repository.LogStat{LogType: e.Type, Severity: e.Severity, Oldest: e.CreatedAt, Newest: e.CreatedAt}
			agg[c] = st
		}
		st.Count++
		if e.CreatedAt.Before(st.Oldest) {
			st.Oldest = e.CreatedAt
		}
		if e.CreatedAt.After(st.Newest) {
			st.Newest = e.CreatedAt
		}
	}
	out := make([]repository.LogStat, 0, len(agg))
	for _, st := range agg {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LogType != out[j].LogType {
			return out[i].LogType < out[j].LogType
		}
		return out[i].Severity < out[j].Severity
	})
	return out, nil
}

func (f *FakeStore) GatewayPolicy(_ context.Context, gatewayID string) (model.GatewayPolicy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.Gateways[gatewayID]
	if !ok {
		return model.GatewayPolicy{}, fmt.Errorf("gateway %s: %w", gatewayID, repository.ErrNotFound)
	}
	return p, nil
}

func (f *FakeStore) Beacon(_ context.Context, beaconID string) (model.Beacon, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.Beacons[beaconID]
	if !ok {
		return model.Beacon{}, fmt.Errorf("beacon %s: %w", beaconID, repository.ErrNotFound)
	}
	return b, nil
}

func (f *FakeStore) Close() error { return nil }
