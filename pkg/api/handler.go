package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/opscart/k8s-cost-agent/pkg/agent"
	"github.com/opscart/k8s-cost-agent/pkg/models"
	"github.com/opscart/k8s-cost-agent/pkg/registry"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Agent is the trigger and read surface the HTTP layer exposes
type Agent interface {
	StartRun(dryRun bool) (*models.RunRecord, error)
	Approve(ctx context.Context, id string) (*models.Action, error)
	Reject(ctx context.Context, id string) (*models.Action, error)

	GetRun(runID string) (*models.RunRecord, error)
	ListRuns() []*models.RunRecord
	ListPending() []*models.Action
	Activity(limit int) []*models.Action
	Stats() models.DashboardStats
	Health(ctx context.Context) agent.Health
}

// OptimizeRequest is the optional body of POST /optimize
type OptimizeRequest struct {
	DryRun *bool `json:"dry_run"`
}

// OptimizeResponse acknowledges a scheduled run
type OptimizeResponse struct {
	RunID  string           `json:"run_id"`
	Status models.RunStatus `json:"status"`
	Detail string           `json:"detail"`
}

// Handler manages HTTP request handlers
type Handler struct {
	agent         Agent
	defaultDryRun bool
	logger        *zap.Logger
}

// NewHandler creates a new HTTP handler; defaultDryRun applies when a request does not set dry_run
func NewHandler(a Agent, defaultDryRun bool, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		agent:         a,
		defaultDryRun: defaultDryRun,
		logger:        logger.Named("api"),
	}
}

// SetupRoutes configures API routes
func SetupRoutes(router *mux.Router, h *Handler) {
	router.HandleFunc("/optimize", h.Optimize).Methods("POST")

	router.HandleFunc("/actions/pending", h.ListPending).Methods("GET")
	router.HandleFunc("/actions/{id}/approve", h.Approve).Methods("POST")
	router.HandleFunc("/actions/{id}/reject", h.Reject).Methods("POST")
	router.HandleFunc("/activities", h.Activities).Methods("GET")

	router.HandleFunc("/runs", h.ListRuns).Methods("GET")
	router.HandleFunc("/runs/{id}", h.GetRun).Methods("GET")

	router.HandleFunc("/dashboard/stats", h.Stats).Methods("GET")
	router.HandleFunc("/health", h.Health).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
}

// Optimize handles POST /optimize
func (h *Handler) Optimize(w http.ResponseWriter, r *http.Request) {
	var req OptimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	dryRun := h.defaultDryRun
	if req.DryRun != nil {
		dryRun = *req.DryRun
	}

	rec, err := h.agent.StartRun(dryRun)
	if errors.Is(err, agent.ErrDegraded) {
		respondError(w, http.StatusServiceUnavailable, "Orchestrator is not available.")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusAccepted, OptimizeResponse{
		RunID:  rec.RunID,
		Status: rec.Status,
		Detail: "Optimization analysis run has been scheduled.",
	})
}

// Approve handles POST /actions/{id}/approve
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	h.dispose(w, r, h.agent.Approve)
}

// Reject handles POST /actions/{id}/reject
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	h.dispose(w, r, h.agent.Reject)
}

func (h *Handler) dispose(w http.ResponseWriter, r *http.Request, fn func(context.Context, string) (*models.Action, error)) {
	id := mux.Vars(r)["id"]

	action, err := fn(r.Context(), id)
	if errors.Is(err, registry.ErrActionNotFound) {
		respondError(w, http.StatusNotFound, "Pending action not found.")
		return
	}
	if err != nil {
		h.logger.Error("Failed to dispose action", zap.String("action_id", id), zap.Error(err))
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, action)
}

// ListPending handles GET /actions/pending
func (h *Handler) ListPending(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, nonNil(h.agent.ListPending()))
}

// Activities handles GET /activities, optionally bounded by ?limit=
func (h *Handler) Activities(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	respondJSON(w, http.StatusOK, nonNil(h.agent.Activity(limit)))
}

// ListRuns handles GET /runs
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs := h.agent.ListRuns()
	if runs == nil {
		runs = []*models.RunRecord{}
	}
	respondJSON(w, http.StatusOK, runs)
}

// GetRun handles GET /runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	rec, err := h.agent.GetRun(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusNotFound, "Run not found.")
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

// Stats handles GET /dashboard/stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.agent.Stats())
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.agent.Health(r.Context()))
}

func nonNil(actions []*models.Action) []*models.Action {
	if actions == nil {
		return []*models.Action{}
	}
	return actions
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
