package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/safesite/proximity/internal/domain/model"
	"github.com/safesite/proximity/pkg/logger"
)

const defaultOpTimeout = 2 * time.Second

// Option applies a configuration option to the GormStore.
type Option func(*GormStore)

// WithOpTimeout bounds every durable read/write. Writes that exceed it are
// treated as failed by callers; they are never retried inline.
func WithOpTimeout(d time.Duration) Option {
	return func(s *GormStore) {
		if d > 0 {
			s.opTimeout = d
		}
	}
}

// WithLogger sets a custom logger for the store.
func WithLogger(l logger.Logger) Option {
	return func(s *GormStore) {
		if l != nil {
			s.log = l
		}
	}
}

// GormStore implements Store on a gorm-managed sqlite database.
type GormStore struct {
	db        *gorm.DB
	opTimeout time.Duration
	log       logger.Logger
}

// Open connects to the sqlite database at path, runs migrations, and returns
// a ready store.
func Open(path string, opts ...Option) (*GormStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.Exec("PRAGMA foreign_keys = ON")

	if err := db.AutoMigrate(
		&calibrationPointRecord{},
		&alertRecord{},
		&monitoringLogRecord{},
		&retentionPolicyRecord{},
		&gatewayRecord{},
		&beaconRecord{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	s := &GormStore{
		db:        db,
		opTimeout: defaultOpTimeout,
		log:       logger.Get().Named("repository"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *GormStore) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opTimeout)
}

// UpsertCalibrationPoint creates or updates the (pair, distance) point.
func (s *GormStore) UpsertCalibrationPoint(ctx context.Context, beaconID, gatewayID string, distance, rssi float64) (model.CalibrationPoint, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var out model.CalibrationPoint
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec calibrationPointRecord
		err := tx.Where("beacon_id = ? AND gateway_id = ? AND distance = ?", beaconID, gatewayID, distance).
			First(&rec).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			rec = calibrationPointRecord{
				BeaconID:    beaconID,
				GatewayID:   gatewayID,
				Distance:    distance,
				RSSI:        rssi,
				SampleCount: 1,
			}
			if err := tx.Create(&rec).Error; err != nil {
				return fmt.Errorf("create calibration point: %w", err)
			}
		case err != nil:
			return fmt.Errorf("lookup calibration point: %w", err)
		default:
			rec.RSSI = rssi
			rec.SampleCount++
			if err := tx.Save(&rec).Error; err != nil {
				return fmt.Errorf("update calibration point: %w", err)
			}
		}
		out = pointFromRecord(rec)
		return nil
	})
	if err != nil {
		return model.CalibrationPoint{}, err
	}
	return out, nil
}

// CreateCalibrationPoint fails with ErrDuplicatePoint when the distance is
// already calibrated for the pair.
func (s *GormStore) CreateCalibrationPoint(ctx context.Context, beaconID, gatewayID string, distance, rssi float64) (model.CalibrationPoint, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var out model.CalibrationPoint
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&calibrationPointRecord{}).
			Where("beacon_id = ? AND gateway_id = ? AND distance = ?", beaconID, gatewayID, distance).
			Count(&count).Error; err != nil {
			return fmt.Errorf("lookup calibration point: %w", err)
		}
		if count > 0 {
			return ErrDuplicatePoint
		}
		rec := calibrationPointRecord{
			BeaconID:    beaconID,
			GatewayID:   gatewayID,
			Distance:    distance,
			RSSI:        rssi,
			SampleCount: 1,
		}
		if err := tx.Create(&rec).Error; err != nil {
			return fmt.Errorf("create calibration point: %w", err)
		}
		out = pointFromRecord(rec)
		return nil
	})
	if err != nil {
		return model.CalibrationPoint{}, err
	}
	return out, nil
}

// DeleteCalibrationPoints removes every point for the pair.
func (s *GormStore) DeleteCalibrationPoints(ctx context.Context, beaconID, gatewayID string) (int64, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	res := s.db.WithContext(ctx).
		Where("beacon_id = ? AND gateway_id = ?", beaconID, gatewayID).
		Delete(&calibrationPointRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete calibration points: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// ListCalibrationPoints groups every persisted point into per-pair sets.
func (s *GormStore) ListCalibrationPoints(ctx context.Context) ([]*model.CalibrationSet, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var recs []calibrationPointRecord
	if err := s.db.WithContext(ctx).
		Order("beacon_id, gateway_id, distance").
		Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list calibration points: %w", err)
	}

	byPair := make(map[model.PairKey]*model.CalibrationSet)
	var order []model.PairKey
	for _, rec := range recs {
		key := model.PairKey{BeaconID: rec.BeaconID, GatewayID: rec.GatewayID}
		set, ok := byPair[key]
		if !ok {
			set = &model.CalibrationSet{
				BeaconID:  rec.BeaconID,
				GatewayID: rec.GatewayID,
				CreatedAt: rec.CreatedAt,
				UpdatedAt: rec.UpdatedAt,
			}
			byPair[key] = set
			order = append(order, key)
		}
		set.Points = append(set.Points, pointFromRecord(rec))
		if rec.CreatedAt.Before(set.CreatedAt) {
			set.CreatedAt = rec.CreatedAt
		}
		if rec.UpdatedAt.After(set.UpdatedAt) {
			set.UpdatedAt = rec.UpdatedAt
		}
	}

	sets := make([]*model.CalibrationSet, 0, len(order))
	for _, key := range order {
		set := byPair[key]
		sort.Slice(set.Points, func(i, j int) bool { return set.Points[i].Distance < set.Points[j].Distance })
		sets = append(sets, set)
	}
	return sets, nil
}

// AppendAlert durably records an alerting decision.
func (s *GormStore) AppendAlert(ctx context.Context, alert model.ProximityAlert) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	rec := alertRecord{
		ID:        alert.ID,
		BeaconID:  alert.BeaconID,
		GatewayID: alert.GatewayID,
		Distance:  alert.Distance,
		AlertType: alert.AlertType,
		Message:   alert.Message,
		IsAlert:   alert.IsAlert,
		AlertTime: alert.AlertTime,
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if alert.HasRSSI {
		rssi := alert.RSSI
		rec.RSSI = &rssi
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("append alert: %w", err)
	}
	return nil
}

// AppendLog durably records a monitoring log entry.
func (s *GormStore) AppendLog(ctx context.Context, entry model.MonitoringLogEntry) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	rec := monitoringLogRecord{
		ID:        entry.ID,
		Type:      entry.Type,
		Severity:  string(entry.Severity),
		SourceID:  entry.SourceID,
		Message:   entry.Message,
		CreatedAt: entry.CreatedAt,
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	return nil
}

// ListRetentionPolicies returns all configured retention policies.
func (s *GormStore) ListRetentionPolicies(ctx context.Context) ([]model.LogRetentionPolicy, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var recs []retentionPolicyRecord
	if err := s.db.WithContext(ctx).Order("log_type, severity").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list retention policies: %w", err)
	}
	out := make([]model.LogRetentionPolicy, len(recs))
	for i, rec := range recs {
		out[i] = model.LogRetentionPolicy{
			LogType:       rec.LogType,
			Severity:      model.Severity(rec.Severity),
			RetentionDays: rec.RetentionDays,
			IsActive:      rec.IsActive,
		}
	}
	return out, nil
}

// UpsertRetentionPolicy creates or replaces the (logType, severity) policy.
func (s *GormStore) UpsertRetentionPolicy(ctx context.Context, policy model.LogRetentionPolicy) error {
	if policy.RetentionDays <= 0 {
		return fmt.Errorf("%w: retention days must be positive", ErrInvalidInput)
	}
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec retentionPolicyRecord
		err := tx.Where("log_type = ? AND severity = ?", policy.LogType, string(policy.Severity)).
			First(&rec).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			rec = retentionPolicyRecord{
				LogType:       policy.LogType,
				Severity:      string(policy.Severity),
				RetentionDays: policy.RetentionDays,
				IsActive:      policy.IsActive,
			}
			if err := tx.Create(&rec).Error; err != nil {
				return fmt.Errorf("create retention policy: %w", err)
			}
		case err != nil:
			return fmt.Errorf("lookup retention policy: %w", err)
		default:
			rec.RetentionDays = policy.RetentionDays
			rec.IsActive = policy.IsActive
			if err := tx.Save(&rec).Error; err != nil {
				return fmt.Errorf("update retention policy: %w", err)
			}
		}
		return nil
	})
}

// DeleteAgedLogs removes matching log entries created before the cutoff.
func (s *GormStore) DeleteAgedLogs(ctx context.Context, logType string, severity model.Severity, cutoff time.Time) (int64, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	res := s.db.WithContext(ctx).
		Where("type = ? AND severity = ? AND created_at < ?", logType, string(severity), cutoff).
		Delete(&monitoringLogRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete aged logs: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// DeleteAgedAlerts removes alert records raised before the cutoff.
func (s *GormStore) DeleteAgedAlerts(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	res := s.db.WithContext(ctx).
		Where("alert_time < ?", cutoff).
		Delete(&alertRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete aged alerts: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// LogStats aggregates counts and age bounds per (logType, severity).
func (s *GormStore) LogStats(ctx context.Context) ([]LogStat, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var rows []struct {
		Type     string
		Severity string
		Count    int64
		Oldest   time.Time
		Newest   time.Time
	}
	if err := s.db.WithContext(ctx).
		Model(&monitoringLogRecord{}).
		Select("type, severity, count(*) as count, min(created_at) as oldest, max(created_at) as newest").
		Group("type, severity").
		Order("type, severity").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("aggregate log stats: %w", err)
	}

	out := make([]LogStat, len(rows))
	for i, r := range rows {
		out[i] = LogStat{
			LogType:  r.Type,
			Severity: model.Severity(r.Severity),
			Count:    r.Count,
			Oldest:   r.Oldest,
			Newest:   r.Newest,
		}
	}
	return out, nil
}

// GatewayPolicy resolves the alerting policy of a known gateway.
func (s *GormStore) GatewayPolicy(ctx context.Context, gatewayID string) (model.GatewayPolicy, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var rec gatewayRecord
	err := s.db.WithContext(ctx).First(&rec, "id = ?", gatewayID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.GatewayPolicy{}, fmt.Errorf("gateway %s: %w", gatewayID, ErrNotFound)
	}
	if err != nil {
		return model.GatewayPolicy{}, fmt.Errorf("lookup gateway: %w", err)
	}
	return model.GatewayPolicy{
		GatewayID:          rec.ID,
		ProximityThreshold: rec.ProximityThreshold,
		AutoVibration:      rec.AutoVibration,
	}, nil
}

// Beacon resolves a beacon's identity.
func (s *GormStore) Beacon(ctx context.Context, beaconID string) (model.Beacon, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var rec beaconRecord
	err := s.db.WithContext(ctx).First(&rec, "id = ?", beaconID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Beacon{}, fmt.Errorf("beacon %s: %w", beaconID, ErrNotFound)
	}
	if err != nil {
		return model.Beacon{}, fmt.Errorf("lookup beacon: %w", err)
	}
	return model.Beacon{ID: rec.ID, MAC: rec.MAC, TxPower: rec.TxPower}, nil
}

// Close releases the underlying sqlite connection.
func (s *GormStore) Close() error {
	db, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("resolve sql db: %w", err)
	}
	if err := db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

func pointFromRecord(rec calibrationPointRecord) model.CalibrationPoint {
	return model.CalibrationPoint{
		Distance:    rec.Distance,
		RSSI:        rec.RSSI,
		SampleCount: rec.SampleCount,
		LastUpdated: rec.UpdatedAt,
	}
}
