// Package pipeline turns inbound beacon sightings into alerting decisions:
// estimate distance, apply the gateway's policy, record the outcome, and
// trigger the device command.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/safesite/proximity/internal/adapters/repository"
	"github.com/safesite/proximity/internal/calibration"
	"github.com/safesite/proximity/internal/dispatch"
	"github.com/safesite/proximity/internal/domain/estimate"
	"github.com/safesite/proximity/internal/domain/model"
	"github.com/safesite/proximity/pkg/logger"
	"github.com/safesite/proximity/pkg/metrics"
)

// LogTypeMonitoring classifies pipeline-emitted monitoring log entries.
const LogTypeMonitoring = "monitoring"

// Status is the decision reached for one sighting.
type Status string

// Decision statuses. Every status except StatusAlerted is a normal no-op
// outcome, not an error.
const (
	StatusAlerted      Status = "alerted"
	StatusTooFar       Status = "too_far"
	StatusVibrationOff Status = "vibration_off"
	StatusCooldown     Status = "cooldown"
)

// Outcome reports one processed sighting for observability. Degraded marks
// decisions whose alert/log records could not be durably written; the
// decision itself still stands.
type Outcome struct {
	Status    Status                 `json:"status"`
	Distance  float64                `json:"distance"`
	Threshold float64                `json:"threshold"`
	Estimated bool                   `json:"estimated"`
	Degraded  bool                   `json:"degraded,omitempty"`
	Command   dispatch.PublishResult `json:"-"`
}

// Option applies a configuration option to the Pipeline.
type Option func(*Pipeline)

// WithCooldown enables the per-pair re-alert cooldown window. Zero keeps the
// default behavior of alerting on every in-range report.
func WithCooldown(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.cooldown = d
		}
	}
}

// WithLogger sets a custom logger for the pipeline.
func WithLogger(l logger.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.log = l
		}
	}
}

// Pipeline is the stateless per-event decision function plus its side
// effects. Safe for concurrent use.
type Pipeline struct {
	store      repository.Store
	calib      *calibration.Store
	estimator  *estimate.Estimator
	dispatcher *dispatch.Dispatcher
	log        logger.Logger

	cooldown  time.Duration
	alertMu   sync.Mutex
	lastAlert map[model.PairKey]time.Time
}

// New creates a Pipeline with configuration options.
func New(store repository.Store, calib *calibration.Store, estimator *estimate.Estimator, dispatcher *dispatch.Dispatcher, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:      store,
		calib:      calib,
		estimator:  estimator,
		dispatcher: dispatcher,
		log:        logger.Get().Named("pipeline"),
		lastAlert:  make(map[model.PairKey]time.Time),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process evaluates one sighting against the then-current calibration and
// policy state. NotFound/InvalidInput reject the operation; persistence
// failures degrade the outcome without canceling the decision.
func (p *Pipeline) Process(ctx context.Context, report model.SightingReport) (Outcome, error) {
	start := time.Now()
	defer func() {
		metrics.RecordPipelineLatency(float64(time.Since(start).Milliseconds()))
	}()

	if err := validate(report); err != nil {
		return Outcome{}, err
	}

	policy, err := p.store.GatewayPolicy(ctx, report.GatewayID)
	if err != nil {
		return Outcome{}, fmt.Errorf("resolve gateway policy: %w", err)
	}

	distance, estimated := p.resolveDistance(ctx, report)
	out := Outcome{Distance: distance, Threshold: policy.ProximityThreshold, Estimated: estimated}

	if !policy.AutoVibration {
		out.Status = StatusVibrationOff
		metrics.RecordDecision(string(StatusVibrationOff))
		return out, nil
	}

	// Threshold is inclusive: a beacon at exactly the threshold is in range.
	if distance > policy.ProximityThreshold {
		out.Status = StatusTooFar
		metrics.RecordDecision(string(StatusTooFar))
		return out, nil
	}

	beacon, err := p.store.Beacon(ctx, report.BeaconID)
	if err != nil {
		return Outcome{}, fmt.Errorf("resolve beacon: %w", err)
	}

	if p.onCooldown(report.BeaconID, report.GatewayID, start) {
		out.Status = StatusCooldown
		metrics.RecordDecision(string(StatusCooldown))
		return out, nil
	}

	out.Status = StatusAlerted
	metrics.RecordDecision(string(StatusAlerted))
	metrics.RecordAlertEmitted()

	out.Degraded = p.recordAlert(ctx, report, beacon, distance, model.AlertTypeAutoVibration)
	out.Command, err = p.dispatcher.SendRing(ctx, report.BeaconID, report.GatewayID)
	if err != nil {
		// Beacon resolution already succeeded above; treat a dispatch
		// error as a degraded result rather than a failed decision.
		p.log.Error(ctx, "ring dispatch failed", logger.String("beacon", report.BeaconID), logger.Error(err))
		out.Degraded = true
	}
	return out, nil
}

// TriggerManual raises a manual alert for the pair and rings the beacon,
// bypassing distance evaluation. Used by the administrative surface.
func (p *Pipeline) TriggerManual(ctx context.Context, beaconID, gatewayID string) (Outcome, error) {
	if beaconID == "" || gatewayID == "" {
		return Outcome{}, fmt.Errorf("%w: beacon and gateway ids are required", ErrInvalidReport)
	}
	if _, err := p.store.GatewayPolicy(ctx, gatewayID); err != nil {
		return Outcome{}, fmt.Errorf("resolve gateway policy: %w", err)
	}
	beacon, err := p.store.Beacon(ctx, beaconID)
	if err != nil {
		return Outcome{}, fmt.Errorf("resolve beacon: %w", err)
	}

	report := model.SightingReport{BeaconID: beaconID, GatewayID: gatewayID, Timestamp: time.Now().UTC()}
	out := Outcome{Status: StatusAlerted}
	metrics.RecordAlertEmitted()
	out.Degraded = p.recordAlert(ctx, report, beacon, 0, model.AlertTypeManual)
	out.Command, err = p.dispatcher.SendRing(ctx, beaconID, gatewayID)
	if err != nil {
		p.log.Error(ctx, "ring dispatch failed", logger.String("beacon", beaconID), logger.Error(err))
		out.Degraded = true
	}
	return out, nil
}

// resolveDistance uses the supplied distance when present, otherwise runs the
// estimator against the pair's calibration set.
func (p *Pipeline) resolveDistance(ctx context.Context, report model.SightingReport) (float64, bool) {
	if report.Kind == model.KindDistance {
		return report.Distance, false
	}

	set, _ := p.calib.Get(report.BeaconID, report.GatewayID)
	if set == nil || len(set.Points) < 2 {
		metrics.RecordEstimatorFallback()
	}

	// Beacon-specific reference power improves the fallback model; a
	// missing beacon is tolerable here since identity is only required
	// once a decision to alert has been made.
	var txPower float64
	if beacon, err := p.store.Beacon(ctx, report.BeaconID); err == nil {
		txPower = beacon.TxPower
	}
	return p.estimator.Estimate(report.RSSI, set, txPower), true
}

// recordAlert persists the alert and its monitoring log entry best-effort.
// Returns true when either write failed.
func (p *Pipeline) recordAlert(ctx context.Context, report model.SightingReport, beacon model.Beacon, distance float64, alertType string) bool {
	now := time.Now().UTC()
	degraded := false

	msg := fmt.Sprintf("beacon %s within %.2fm of gateway %s", beacon.ID, distance, report.GatewayID)
	if alertType == model.AlertTypeManual {
		msg = fmt.Sprintf("manual ring for beacon %s via gateway %s", beacon.ID, report.GatewayID)
	}

	alert := model.ProximityAlert{
		ID:        uuid.New().String(),
		BeaconID:  report.BeaconID,
		GatewayID: report.GatewayID,
		Distance:  distance,
		RSSI:      report.RSSI,
		HasRSSI:   report.HasRSSI,
		AlertType: alertType,
		Message:   msg,
		IsAlert:   true,
		AlertTime: now,
	}
	if err := p.store.AppendAlert(ctx, alert); err != nil {
		metrics.RecordPersistenceError("append_alert")
		p.log.Error(ctx, "alert persist failed; decision stands", logger.String("beacon", report.BeaconID), logger.Error(err))
		degraded = true
	}

	entry := model.MonitoringLogEntry{
		ID:        uuid.New().String(),
		Type:      LogTypeMonitoring,
		SourceID:  report.BeaconID,
		Message:   msg,
		Severity:  model.SeverityInfo,
		CreatedAt: now,
	}
	if err := p.store.AppendLog(ctx, entry); err != nil {
		metrics.RecordPersistenceError("append_log")
		p.log.Error(ctx, "monitoring log persist failed; decision stands", logger.String("beacon", report.BeaconID), logger.Error(err))
		degraded = true
	}
	return degraded
}

// onCooldown reports and updates the pair's last-alert timestamp. Disabled
// unless a cooldown window was configured.
func (p *Pipeline) onCooldown(beaconID, gatewayID string, now time.Time) bool {
	if p.cooldown <= 0 {
		return false
	}
	key := model.PairKey{BeaconID: beaconID, GatewayID: gatewayID}

	p.alertMu.Lock()
	defer p.alertMu.Unlock()
	if last, ok := p.lastAlert[key]; ok && now.Sub(last) < p.cooldown {
		return true
	}
	p.lastAlert[key] = now
	return false
}

func validate(report model.SightingReport) error {
	if report.BeaconID == "" || report.GatewayID == "" {
		return fmt.Errorf("%w: beacon and gateway ids are required", ErrInvalidReport)
	}
	switch report.Kind {
	case model.KindRSSI:
		if !report.HasRSSI {
			return fmt.Errorf("%w: rssi reading is required", ErrInvalidReport)
		}
	case model.KindDistance:
		if report.Distance <= 0 {
			return fmt.Errorf("%w: distance must be positive", ErrInvalidReport)
		}
	default:
		return fmt.Errorf("%w: unsupported report kind", ErrInvalidReport)
	}
	return nil
}
