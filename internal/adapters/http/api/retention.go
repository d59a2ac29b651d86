// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/safesite/proximity/internal/adapters/repository"
	"github.com/safesite/proximity/internal/domain/model"
	"github.com/safesite/proximity/internal/retention"
)

// RetentionAdmin defines the interface for retention dependencies.
type RetentionAdmin interface {
	RetentionPolicies(ctx context.Context) ([]model.LogRetentionPolicy, error)
	PutRetentionPolicy(ctx context.Context, policy model.LogRetentionPolicy) error
	LogStats(ctx context.Context) ([]repository.LogStat, error)
	SweepNow(ctx context.Context) (retention.Result, error)
}

// RetentionHandler handles retention administration requests.
type RetentionHandler struct {
	deps RetentionAdmin
}

// NewRetentionHandler creates a new retention handler.
func NewRetentionHandler(deps RetentionAdmin) *RetentionHandler {
	return &RetentionHandler{deps: deps}
}

type policyRequest struct {
	LogType       string `json:"log_type"`
	Severity      string `json:"severity"`
	RetentionDays int    `json:"retention_days"`
	IsActive      bool   `json:"is_active"`
}

// HandlePolicies handles GET and PUT /retention/policies requests.
func (h *RetentionHandler) HandlePolicies(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		policies, err := h.deps.RetentionPolicies(r.Context())
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"policies": policies, "count": len(policies)})
	case http.MethodPut:
		var req policyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", err)
			return
		}
		policy := model.LogRetentionPolicy{
			LogType:       req.LogType,
			Severity:      model.Severity(req.Severity),
			RetentionDays: req.RetentionDays,
			IsActive:      req.IsActive,
		}
		if err := validatePolicy(policy); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", err)
			return
		}
		if err := h.deps.PutRetentionPolicy(r.Context(), policy); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ackResponse{Status: "stored"})
	default:
		http.NotFound(w, r)
	}
}

func validatePolicy(p model.LogRetentionPolicy) error {
	switch {
	case p.LogType == "":
		return errors.New("missing log_type")
	case !p.Severity.Valid():
		return errors.New("invalid severity")
	case p.RetentionDays < 1:
		return errors.New("retention_days must be positive")
	}
	return nil
}

// HandleStats handles GET /retention/stats requests.
func (h *RetentionHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	stats, err := h.deps.LogStats(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"classes": stats, "count": len(stats)})
}

// HandleSweep handles POST /retention/sweep requests.
func (h *RetentionHandler) HandleSweep(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	result, err := h.deps.SweepNow(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
