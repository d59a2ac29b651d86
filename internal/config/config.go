// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() initializer to build a Config with defaults.
// - External errors must be wrapped via this package's sentinel errors.
package config

import (
	"runtime"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// DBPath locates the SQLite database file.
	DBPath string `koanf:"db_path"`

	// RedisAddr is the command transport address. Empty disables the
	// Redis transport; commands then report not connected.
	RedisAddr string `koanf:"redis_addr"`

	// CommandChannelPrefix formats the per-gateway command channel.
	// Must contain one %s verb for the gateway id.
	CommandChannelPrefix string `koanf:"command_channel_prefix"`

	// QueueSize bounds the in-memory sighting queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of pipeline workers.
	WorkerCount int `koanf:"worker_count"`

	// Estimator tuning.
	MaxDistance      float64 `koanf:"max_distance"`
	PathLossExponent float64 `koanf:"path_loss_exponent"`
	DefaultTxPower   float64 `koanf:"default_tx_power"`

	// Ring command envelope parameters.
	RingType   int `koanf:"ring_type"`
	RingTimeMS int `koanf:"ring_time_ms"`
	LedOn      int `koanf:"led_on"`
	LedOff     int `koanf:"led_off"`

	// AlertCooldownMS suppresses repeat alerts per pair for this window.
	// Zero disables suppression and every in-range report alerts.
	AlertCooldownMS int `koanf:"alert_cooldown_ms"`

	// SweepIntervalMS runs the retention sweeper periodically. Zero
	// disables the background sweep; manual sweeps stay available.
	SweepIntervalMS int `koanf:"sweep_interval_ms"`

	// Operation deadlines.
	PublishTimeoutMS int `koanf:"publish_timeout_ms"`
	PersistTimeoutMS int `koanf:"persist_timeout_ms"`

	// MaxListLimit caps GET /calibration?limit.
	MaxListLimit int `koanf:"max_list_limit"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:             "info",
		Addr:                 ":9080",
		DBPath:               "proximity.db",
		RedisAddr:            "localhost:6379",
		CommandChannelPrefix: "gateway:%s:cmd",
		QueueSize:            10_000,
		WorkerCount:          runtime.NumCPU() * 2,
		MaxDistance:          100,
		PathLossExponent:     2.0,
		DefaultTxPower:       -59,
		RingType:             4,
		RingTimeMS:           4000,
		LedOn:                1,
		LedOff:               0,
		AlertCooldownMS:      0,
		SweepIntervalMS:      0,
		PublishTimeoutMS:     2000,
		PersistTimeoutMS:     2000,
		MaxListLimit:         500,
	}
}
