// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/safesite/proximity/internal/adapters/repository"
	"github.com/safesite/proximity/internal/calibration"
	"github.com/safesite/proximity/internal/domain/model"
	"github.com/safesite/proximity/internal/domain/quality"
	"github.com/safesite/proximity/internal/pipeline"
	"github.com/safesite/proximity/internal/retention"
)

// Dependencies bundles the operations HTTP handlers call on the service.
// Using an interface bundle keeps the handler layer loosely coupled to
// implementations in other packages.
type Dependencies interface {
	// Enqueue pushes a sighting for async processing. Returns false on
	// backpressure.
	Enqueue(ctx context.Context, report model.SightingReport) bool

	// Calibration administration.
	AddCalibrationPoint(ctx context.Context, beaconID, gatewayID string, distance, rssi float64, strict bool) (*model.CalibrationSet, error)
	RemoveCalibrationPoints(ctx context.Context, beaconID, gatewayID string) (bool, error)
	Calibration(ctx context.Context, beaconID, gatewayID string) (*model.CalibrationSet, quality.Assessment, error)
	ListCalibrations(ctx context.Context, limit int) ([]*model.CalibrationSet, error)
	ReloadCalibrations(ctx context.Context) error

	// Retention administration.
	RetentionPolicies(ctx context.Context) ([]model.LogRetentionPolicy, error)
	PutRetentionPolicy(ctx context.Context, policy model.LogRetentionPolicy) error
	LogStats(ctx context.Context) ([]repository.LogStat, error)
	SweepNow(ctx context.Context) (retention.Result, error)

	// RingBeacon triggers a manual ring command.
	RingBeacon(ctx context.Context, beaconID, gatewayID string) (pipeline.Outcome, error)
}

// Server wires HTTP routes for the proximity API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	reportsHandler     *ReportsHandler
	calibrationHandler *CalibrationHandler
	retentionHandler   *RetentionHandler
	commandsHandler    *CommandsHandler
}

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithMaxListLimit caps the number of calibration sets a list request
// may return.
func WithMaxListLimit(limit int) Option {
	return func(s *Server) {
		if limit > 0 {
			s.calibrationHandler.maxListLimit = limit
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	s := &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(statsProvider),
		reportsHandler:     NewReportsHandler(deps),
		calibrationHandler: NewCalibrationHandler(deps),
		retentionHandler:   NewRetentionHandler(deps),
		commandsHandler:    NewCommandsHandler(deps),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/reports", MetricsMiddleware(s.reportsHandler.HandlePostReport, "reports"))
	mux.HandleFunc("/calibration", MetricsMiddleware(s.calibrationHandler.HandleCalibration, "calibration"))
	mux.HandleFunc("/calibration/reload", MetricsMiddleware(s.calibrationHandler.HandleReload, "calibration_reload"))
	mux.HandleFunc("/retention/policies", MetricsMiddleware(s.retentionHandler.HandlePolicies, "retention_policies"))
	mux.HandleFunc("/retention/stats", MetricsMiddleware(s.retentionHandler.HandleStats, "retention_stats"))
	mux.HandleFunc("/retention/sweep", MetricsMiddleware(s.retentionHandler.HandleSweep, "retention_sweep"))
	mux.HandleFunc("/commands/ring", MetricsMiddleware(s.commandsHandler.HandleRing, "commands_ring"))
}

type ackResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeDomainError maps sentinel errors from lower layers onto HTTP status
// codes so handlers stay free of per-endpoint switch statements.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, repository.ErrDuplicatePoint):
		writeError(w, http.StatusConflict, "duplicate_point", err)
	case errors.Is(err, repository.ErrInvalidInput),
		errors.Is(err, calibration.ErrInvalidInput),
		errors.Is(err, pipeline.ErrInvalidReport):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal", err)
	}
}
