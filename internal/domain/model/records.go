package model

import "time"

// Severity classifies monitoring log entries.
type Severity string

// Known severities, ordered from least to most serious.
const (
	SeverityDebug   Severity = "debug"
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Valid reports whether s is one of the known severities.
func (s Severity) Valid() bool {
	switch s {
	case SeverityDebug, SeverityInfo, SeverityWarning, SeverityError:
		return true
	}
	return false
}

// Alert types recorded on ProximityAlert.
const (
	AlertTypeAutoVibration = "auto_vibration"
	AlertTypeManual        = "manual"
)

// ProximityAlert records one alerting decision. Write-once; deleted only by
// bulk administrative purge or the retention sweeper.
type ProximityAlert struct {
	ID        string
	BeaconID  string
	GatewayID string
	Distance  float64
	RSSI      float64
	HasRSSI   bool
	AlertType string
	Message   string
	IsAlert   bool
	AlertTime time.Time
}

// MonitoringLogEntry is a write-once operational log fact, subject to
// retention sweeping.
type MonitoringLogEntry struct {
	ID        string
	Type      string
	SourceID  string
	Message   string
	Severity  Severity
	CreatedAt time.Time
}

// LogRetentionPolicy configures how long records of one (logType, severity)
// class are kept. Inactive policies are excluded from sweeping entirely.
type LogRetentionPolicy struct {
	LogType       string
	Severity      Severity
	RetentionDays int // > 0
	IsActive      bool
}

// GatewayPolicy is the slice of the gateway entity the engine reads: the
// alerting threshold and whether automatic vibration commands are enabled.
// Owned by the administrative CRUD layer; read-only here.
type GatewayPolicy struct {
	GatewayID          string
	ProximityThreshold float64 // meters, 0.1-100
	AutoVibration      bool
}

// Beacon is the device identity needed to address a command: the physical
// MAC plus the configured reference power used by the path-loss fallback.
type Beacon struct {
	ID      string
	MAC     string  // colon-separated hex as stored by the directory
	TxPower float64 // dBm at 1m; 0 means "use engine default"
}
