// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/safesite/proximity/internal/domain/model"
)

// ReportIngestor defines the interface for sighting ingestion dependencies.
type ReportIngestor interface {
	Enqueue(ctx context.Context, report model.SightingReport) bool
}

// ReportsHandler handles sighting report requests.
type ReportsHandler struct {
	deps ReportIngestor
}

// NewReportsHandler creates a new reports handler.
func NewReportsHandler(deps ReportIngestor) *ReportsHandler {
	return &ReportsHandler{deps: deps}
}

// reportRequest is the wire schema for POST /reports. Exactly one of rssi
// and distance drives the decision; a distance report may carry rssi as
// supporting detail.
type reportRequest struct {
	BeaconID  string   `json:"beacon_id"`
	GatewayID string   `json:"gateway_id"`
	RSSI      *float64 `json:"rssi,omitempty"`
	Distance  *float64 `json:"distance,omitempty"`
	TS        string   `json:"ts,omitempty"`
}

func (r reportRequest) toReport() (model.SightingReport, error) {
	if strings.TrimSpace(r.BeaconID) == "" {
		return model.SightingReport{}, errors.New("missing beacon_id")
	}
	if strings.TrimSpace(r.GatewayID) == "" {
		return model.SightingReport{}, errors.New("missing gateway_id")
	}
	if r.RSSI == nil && r.Distance == nil {
		return model.SightingReport{}, errors.New("either rssi or distance is required")
	}

	ts := time.Now().UTC()
	if r.TS != "" {
		parsed, err := time.Parse(time.RFC3339, r.TS)
		if err != nil {
			return model.SightingReport{}, errors.New("invalid ts; must be RFC3339")
		}
		ts = parsed
	}

	if r.Distance != nil {
		if *r.Distance <= 0 {
			return model.SightingReport{}, errors.New("distance must be positive")
		}
		var rssi float64
		hasRSSI := r.RSSI != nil
		if hasRSSI {
			rssi = *r.RSSI
		}
		return model.DistanceReport(r.BeaconID, r.GatewayID, *r.Distance, rssi, hasRSSI, ts), nil
	}
	if *r.RSSI >= 0 {
		return model.SightingReport{}, errors.New("rssi must be negative dBm")
	}
	return model.RSSISighting(r.BeaconID, r.GatewayID, *r.RSSI, ts), nil
}

// HandlePostReport handles POST /reports requests.
func (h *ReportsHandler) HandlePostReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req reportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	report, err := req.toReport()
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	if ok := h.deps.Enqueue(r.Context(), report); !ok {
		writeError(w, http.StatusTooManyRequests, "backpressure", errors.New("ingestion queue full"))
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted"})
}
