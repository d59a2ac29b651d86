package repository

import "time"

// calibrationPointRecord is the persisted shape of one calibration point.
// The pair plus distance carries a unique constraint so at most one point
// exists per distinct distance per pair.
type calibrationPointRecord struct {
	ID          uint    `gorm:"primaryKey"`
	BeaconID    string  `gorm:"size:64;not null;uniqueIndex:idx_calibration_pair_distance"`
	GatewayID   string  `gorm:"size:64;not null;uniqueIndex:idx_calibration_pair_distance"`
	Distance    float64 `gorm:"not null;uniqueIndex:idx_calibration_pair_distance"`
	RSSI        float64 `gorm:"not null"`
	SampleCount int     `gorm:"not null;default:1"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (calibrationPointRecord) TableName() string { return "calibration_points" }

// alertRecord is append-only; AlertTime is indexed for range sweeps.
type alertRecord struct {
	ID        string `gorm:"primaryKey;size:36"`
	BeaconID  string `gorm:"size:64;not null;index"`
	GatewayID string `gorm:"size:64;not null"`
	Distance  float64
	RSSI      *float64
	AlertType string `gorm:"size:30;not null"`
	Message   string `gorm:"type:text"`
	IsAlert   bool
	AlertTime time.Time `gorm:"index"`
}

func (alertRecord) TableName() string { return "proximity_alerts" }

// monitoringLogRecord is append-only; CreatedAt is indexed for sweeping and
// the (type, severity) class is indexed for policy-scoped deletes.
type monitoringLogRecord struct {
	ID        string    `gorm:"primaryKey;size:36"`
	Type      string    `gorm:"size:50;not null;index:idx_log_class"`
	Severity  string    `gorm:"size:10;not null;index:idx_log_class"`
	SourceID  string    `gorm:"size:64"`
	Message   string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"index"`
}

func (monitoringLogRecord) TableName() string { return "monitoring_logs" }

// retentionPolicyRecord is keyed by (logType, severity).
type retentionPolicyRecord struct {
	ID            uint   `gorm:"primaryKey"`
	LogType       string `gorm:"size:50;not null;uniqueIndex:idx_retention_class"`
	Severity      string `gorm:"size:10;not null;uniqueIndex:idx_retention_class"`
	RetentionDays int    `gorm:"not null"`
	IsActive      bool   `gorm:"not null;default:true"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (retentionPolicyRecord) TableName() string { return "log_retention_policies" }

// gatewayRecord holds the slice of the gateway entity the engine reads.
// Rows are owned by the administrative CRUD layer.
type gatewayRecord struct {
	ID                 string `gorm:"primaryKey;size:64"`
	Name               string `gorm:"size:100"`
	ProximityThreshold float64
	AutoVibration      bool
	IsActive           bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (gatewayRecord) TableName() string { return "gateways" }

// beaconRecord holds the device identity needed to address commands.
type beaconRecord struct {
	ID        string `gorm:"primaryKey;size:64"`
	MAC       string `gorm:"size:17;not null"`
	TxPower   float64
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (beaconRecord) TableName() string { return "beacons" }
