package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/upb/search-gateway/services/health"
	"github.com/upb/search-gateway/services/search"
	"github.com/upb/search-gateway/utils"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// EngineSummary reports configured engines and their health
type EngineSummary interface {
	Summary() search.Summary
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	db      *sql.DB
	engines EngineSummary
	logger  *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. db is nil when the attempt
// log is disabled.
func NewHealthHandler(db *sql.DB, engines EngineSummary, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		db:      db,
		engines: engines,
		logger:  logger,
	}
}

// HandleHealth handles GET /healthz. It returns 200 while the process runs.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	_ = utils.WriteOK(w, response)
}

// HandleReadiness handles GET /readyz. The gateway is ready when at least one
// engine can still be tried and the attempt log database answers.
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	if h.db != nil {
		if err := h.checkDatabase(ctx); err != nil {
			h.logger.Warn("database health check failed", zap.Error(err))
			checks["database"] = "unhealthy"
			allHealthy = false
		} else {
			checks["database"] = "healthy"
		}
	}

	if h.engines != nil {
		usable := 0
		summary := h.engines.Summary()
		for _, engine := range summary.AvailableEngines {
			state := summary.Health[engine]
			checks["engine:"+string(engine)] = string(state)
			if state != health.StateDisabled {
				usable++
			}
		}
		if usable == 0 {
			checks["engines"] = "none usable"
			allHealthy = false
		}
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !allHealthy {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}

	if err := utils.WriteJSON(w, httpStatus, utils.SuccessResponse{Data: response}); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}

func (h *HealthHandler) checkDatabase(ctx context.Context) error {
	if err := h.db.PingContext(ctx); err != nil {
		return err
	}

	var result int
	return h.db.QueryRowContext(ctx, "SELECT 1").Scan(&result)
}
