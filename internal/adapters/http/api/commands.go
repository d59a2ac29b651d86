// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/safesite/proximity/internal/pipeline"
)

// CommandSender defines the interface for manual command dependencies.
type CommandSender interface {
	RingBeacon(ctx context.Context, beaconID, gatewayID string) (pipeline.Outcome, error)
}

// CommandsHandler handles manual beacon command requests.
type CommandsHandler struct {
	deps CommandSender
}

// NewCommandsHandler creates a new commands handler.
func NewCommandsHandler(deps CommandSender) *CommandsHandler {
	return &CommandsHandler{deps: deps}
}

type ringRequest struct {
	BeaconID  string `json:"beacon_id"`
	GatewayID string `json:"gateway_id"`
}

type ringResponse struct {
	Status   string `json:"status"`
	Command  string `json:"command"`
	Degraded bool   `json:"degraded,omitempty"`
}

// HandleRing handles POST /commands/ring requests.
func (h *CommandsHandler) HandleRing(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var req ringRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if strings.TrimSpace(req.BeaconID) == "" || strings.TrimSpace(req.GatewayID) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", errors.New("beacon_id and gateway_id are required"))
		return
	}

	out, err := h.deps.RingBeacon(r.Context(), req.BeaconID, req.GatewayID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ringResponse{
		Status:   string(out.Status),
		Command:  out.Command.String(),
		Degraded: out.Degraded,
	})
}
