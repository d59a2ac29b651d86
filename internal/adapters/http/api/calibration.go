// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/safesite/proximity/internal/domain/model"
	"github.com/safesite/proximity/internal/domain/quality"
)

const defaultMaxListLimit = 500

// CalibrationAdmin defines the interface for calibration dependencies.
type CalibrationAdmin interface {
	AddCalibrationPoint(ctx context.Context, beaconID, gatewayID string, distance, rssi float64, strict bool) (*model.CalibrationSet, error)
	RemoveCalibrationPoints(ctx context.Context, beaconID, gatewayID string) (bool, error)
	Calibration(ctx context.Context, beaconID, gatewayID string) (*model.CalibrationSet, quality.Assessment, error)
	ListCalibrations(ctx context.Context, limit int) ([]*model.CalibrationSet, error)
	ReloadCalibrations(ctx context.Context) error
}

// CalibrationHandler handles calibration administration requests.
type CalibrationHandler struct {
	deps         CalibrationAdmin
	maxListLimit int
}

// NewCalibrationHandler creates a new calibration handler.
func NewCalibrationHandler(deps CalibrationAdmin) *CalibrationHandler {
	return &CalibrationHandler{deps: deps, maxListLimit: defaultMaxListLimit}
}

type calibrationPointRequest struct {
	BeaconID  string  `json:"beacon_id"`
	GatewayID string  `json:"gateway_id"`
	Distance  float64 `json:"distance"`
	RSSI      float64 `json:"rssi"`
	Strict    bool    `json:"strict,omitempty"`
}

type calibrationResponse struct {
	Set     *model.CalibrationSet `json:"set"`
	Quality *quality.Assessment   `json:"quality,omitempty"`
}

// HandleCalibration dispatches /calibration by method: POST adds a point,
// DELETE removes a pair's set, GET fetches one pair or lists all.
func (h *CalibrationHandler) HandleCalibration(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handleAddPoint(w, r)
	case http.MethodDelete:
		h.handleDelete(w, r)
	case http.MethodGet:
		h.handleGet(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (h *CalibrationHandler) handleAddPoint(w http.ResponseWriter, r *http.Request) {
	var req calibrationPointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	set, err := h.deps.AddCalibrationPoint(r.Context(), req.BeaconID, req.GatewayID, req.Distance, req.RSSI, req.Strict)
	if err != nil && set == nil {
		writeDomainError(w, err)
		return
	}

	status := http.StatusOK
	resp := calibrationResponse{Set: set}
	if err != nil {
		// Point accepted into the cache but not persisted.
		status = http.StatusAccepted
	}
	writeJSON(w, status, resp)
}

func (h *CalibrationHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	beaconID, gatewayID, err := pairParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	existed, err := h.deps.RemoveCalibrationPoints(r.Context(), beaconID, gatewayID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if !existed {
		writeError(w, http.StatusNotFound, "not_found", errors.New("no calibration for pair"))
		return
	}
	writeJSON(w, http.StatusOK, ackResponse{Status: "deleted"})
}

func (h *CalibrationHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	beaconID := strings.TrimSpace(r.URL.Query().Get("beacon_id"))
	gatewayID := strings.TrimSpace(r.URL.Query().Get("gateway_id"))

	if beaconID == "" && gatewayID == "" {
		h.handleList(w, r)
		return
	}
	if beaconID == "" || gatewayID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", errors.New("beacon_id and gateway_id are both required"))
		return
	}

	set, assessment, err := h.deps.Calibration(r.Context(), beaconID, gatewayID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, calibrationResponse{Set: set, Quality: &assessment})
}

func (h *CalibrationHandler) handleList(w http.ResponseWriter, r *http.Request) {
	limit := h.maxListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", errors.New("limit must be a positive integer"))
			return
		}
		if parsed < limit {
			limit = parsed
		}
	}
	sets, err := h.deps.ListCalibrations(r.Context(), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sets": sets, "count": len(sets)})
}

// HandleReload handles POST /calibration/reload requests.
func (h *CalibrationHandler) HandleReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	if err := h.deps.ReloadCalibrations(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ackResponse{Status: "reloaded"})
}

func pairParams(r *http.Request) (beaconID, gatewayID string, err error) {
	beaconID = strings.TrimSpace(r.URL.Query().Get("beacon_id"))
	gatewayID = strings.TrimSpace(r.URL.Query().Get("gateway_id"))
	if beaconID == "" || gatewayID == "" {
		return "", "", errors.New("beacon_id and gateway_id are required")
	}
	return beaconID, gatewayID, nil
}
