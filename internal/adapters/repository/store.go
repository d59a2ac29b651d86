// Package repository defines the durable store contract and its gorm-backed
// implementation. The relational store is the system of record; the in-memory
// calibration cache is rebuilt from it on startup and reload.
package repository

import (
	"context"
	"time"

	"github.com/safesite/proximity/internal/domain/model"
)

// LogStat is one row of the aggregate log statistics view.
type LogStat struct {
	LogType  string         `json:"logType"`
	Severity model.Severity `json:"severity"`
	Count    int64          `json:"count"`
	Oldest   time.Time      `json:"oldest"`
	Newest   time.Time      `json:"newest"`
}

// Store provides durable access to calibration points, alert and log records,
// retention policies, and the beacon/gateway directory.
type Store interface {
	// UpsertCalibrationPoint creates or updates the point identified by
	// (beaconID, gatewayID, distance). On update the RSSI is overwritten
	// and the sample count incremented. Returns the stored point.
	UpsertCalibrationPoint(ctx context.Context, beaconID, gatewayID string, distance, rssi float64) (model.CalibrationPoint, error)

	// CreateCalibrationPoint is the strict-create variant: it fails with
	// ErrDuplicatePoint when a point already exists at that distance.
	CreateCalibrationPoint(ctx context.Context, beaconID, gatewayID string, distance, rssi float64) (model.CalibrationPoint, error)

	// DeleteCalibrationPoints removes every point for the pair, returning
	// the number of rows deleted.
	DeleteCalibrationPoints(ctx context.Context, beaconID, gatewayID string) (int64, error)

	// ListCalibrationPoints returns every persisted point grouped into
	// per-pair sets, each sorted ascending by distance.
	ListCalibrationPoints(ctx context.Context) ([]*model.CalibrationSet, error)

	// AppendAlert durably records an alerting decision.
	AppendAlert(ctx context.Context, alert model.ProximityAlert) error

	// AppendLog durably records a monitoring log entry.
	AppendLog(ctx context.Context, entry model.MonitoringLogEntry) error

	// ListRetentionPolicies returns all configured retention policies.
	ListRetentionPolicies(ctx context.Context) ([]model.LogRetentionPolicy, error)

	// UpsertRetentionPolicy creates or replaces the policy for the
	// (logType, severity) pair.
	UpsertRetentionPolicy(ctx context.Context, policy model.LogRetentionPolicy) error

	// DeleteAgedLogs removes log entries of the (logType, severity) class
	// created strictly before the cutoff. Returns rows deleted.
	DeleteAgedLogs(ctx context.Context, logType string, severity model.Severity, cutoff time.Time) (int64, error)

	// DeleteAgedAlerts removes alert records raised strictly before the
	// cutoff. Returns rows deleted.
	DeleteAgedAlerts(ctx context.Context, cutoff time.Time) (int64, error)

	// LogStats aggregates counts and age bounds per (logType, severity).
	LogStats(ctx context.Context) ([]LogStat, error)

	// GatewayPolicy resolves the alerting policy of a known gateway.
	// Returns ErrNotFound for unknown gateways.
	GatewayPolicy(ctx context.Context, gatewayID string) (model.GatewayPolicy, error)

	// Beacon resolves a beacon's identity. Returns ErrNotFound when the
	// beacon is unknown.
	Beacon(ctx context.Context, beaconID string) (model.Beacon, error)

	// Close releases the underlying connection.
	Close() error
}
