package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/quantfolio/quantfolio/internal/application"
	"github.com/quantfolio/quantfolio/internal/domain"
)

// handlers binds the application service to the HTTP surface.
type handlers struct {
	svc     *application.Service
	metrics *MetricsRegistry
	started time.Time
}

func newHandlers(svc *application.Service, metrics *MetricsRegistry) *handlers {
	return &handlers{svc: svc, metrics: metrics, started: time.Now().UTC()}
}

// errorResponse is the uniform error body: machine-readable code plus a
// human-readable message and detail list.
type errorResponse struct {
	Error     string   `json:"error"`
	Code      string   `json:"code"`
	Details   []string `json:"details,omitempty"`
	RequestID string   `json:"requestId,omitempty"`
}

func (h *handlers) writeJSON(w http.ResponseWriter, status int, data any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, `{"error":"json encoding failed","code":"INTERNAL_ERROR"}`, http.StatusInternalServerError)
	}
}

func (h *handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := domain.CodeOf(err)

	resp := errorResponse{
		Error:     err.Error(),
		Code:      string(code),
		RequestID: requestIDFrom(r.Context()),
	}
	var de *domain.Error
	if errors.As(err, &de) {
		resp.Error = de.Message
		resp.Details = de.Details
	}

	h.writeJSON(w, statusFor(code), resp)
}

// statusFor maps the error taxonomy onto HTTP statuses: malformed input is
// 400, missing resources 404, numerically unusable input 422, caller-imposed
// aborts 503.
func statusFor(code domain.ErrorCode) int {
	switch code {
	case domain.CodeValidation, domain.CodeInsufficientData, domain.CodeDimensionError:
		return http.StatusBadRequest
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeIllConditioned, domain.CodeInfeasibleTarget:
		return http.StatusUnprocessableEntity
	case domain.CodeAborted:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *handlers) decode(w http.ResponseWriter, r *http.Request, into any) bool {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		h.writeError(w, r, domain.NewValidationError("malformed JSON request body", err.Error()))
		return false
	}
	return true
}

// observe wraps one computation invocation with duration and error metrics.
func (h *handlers) observe(method string, fn func() (any, error)) (any, error) {
	h.metrics.ComputationsTotal.WithLabelValues(method).Inc()
	start := time.Now()
	out, err := fn()
	outcome := "ok"
	if err != nil {
		outcome = "error"
		h.metrics.ComputationErrors.WithLabelValues(method, string(domain.CodeOf(err))).Inc()
	}
	h.metrics.ComputationDuration.WithLabelValues(method, outcome).Observe(time.Since(start).Seconds())
	return out, err
}

// RiskParity handles POST /optimization/risk-parity.
func (h *handlers) RiskParity(w http.ResponseWriter, r *http.Request) {
	var req application.OptimizationRequest
	if !h.decode(w, r, &req) {
		return
	}
	out, err := h.observe("risk_parity", func() (any, error) {
		return h.svc.RunRiskParity(r.Context(), req)
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, out)
}

// HRP handles POST /optimization/hrp.
func (h *handlers) HRP(w http.ResponseWriter, r *http.Request) {
	var req application.OptimizationRequest
	if !h.decode(w, r, &req) {
		return
	}
	out, err := h.observe("hrp", func() (any, error) {
		return h.svc.RunHRP(r.Context(), req)
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, out)
}

// Frontier handles POST /optimization/efficient-frontier.
func (h *handlers) Frontier(w http.ResponseWriter, r *http.Request) {
	var req application.FrontierRequest
	if !h.decode(w, r, &req) {
		return
	}
	out, err := h.observe("efficient_frontier", func() (any, error) {
		return h.svc.RunFrontier(r.Context(), req)
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, out)
}

// Simulate handles POST /monte-carlo/simulate.
func (h *handlers) Simulate(w http.ResponseWriter, r *http.Request) {
	var req application.SimulationRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.metrics.ActiveSimulations.Inc()
	defer h.metrics.ActiveSimulations.Dec()

	out, err := h.observe("monte_carlo_simulate", func() (any, error) {
		return h.svc.RunSimulation(r.Context(), req)
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, out)
}

// Analyze handles POST /monte-carlo/analyze.
func (h *handlers) Analyze(w http.ResponseWriter, r *http.Request) {
	var req application.AnalysisRequest
	if !h.decode(w, r, &req) {
		return
	}
	out, err := h.observe("monte_carlo_analyze", func() (any, error) {
		return h.svc.RunAnalysis(r.Context(), req)
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, out)
}

// CreatePortfolio handles POST /portfolios.
func (h *handlers) CreatePortfolio(w http.ResponseWriter, r *http.Request) {
	var p domain.Portfolio
	if !h.decode(w, r, &p) {
		return
	}
	created, err := h.svc.CreatePortfolio(r.Context(), &p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, created)
}

// GetPortfolio handles GET /portfolios/{id}.
func (h *handlers) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	p, err := h.svc.Portfolios().Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

// UpdatePortfolio handles PUT /portfolios/{id}.
func (h *handlers) UpdatePortfolio(w http.ResponseWriter, r *http.Request) {
	var p domain.Portfolio
	if !h.decode(w, r, &p) {
		return
	}
	p.ID = mux.Vars(r)["id"]
	updated, err := h.svc.UpdatePortfolio(r.Context(), &p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, updated)
}

// DeletePortfolio handles DELETE /portfolios/{id}.
func (h *handlers) DeletePortfolio(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.svc.Portfolios().Delete(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

// ListPortfolios handles GET /portfolios.
func (h *handlers) ListPortfolios(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.Portfolios().List(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"portfolios": list, "count": len(list)})
}

// Health handles GET /health with a metrics snapshot.
func (h *handlers) Health(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.metrics.Snapshot()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"uptime":  time.Since(h.started).String(),
		"metrics": snapshot,
	})
}

// NotFound handles unmatched routes.
func (h *handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	h.writeJSON(w, http.StatusNotFound, errorResponse{
		Error: "the requested endpoint does not exist",
		Code:  "ENDPOINT_NOT_FOUND",
	})
}
