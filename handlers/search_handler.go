package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/upb/search-gateway/models"
	"github.com/upb/search-gateway/repositories"
	"github.com/upb/search-gateway/services"
	"github.com/upb/search-gateway/services/health"
	"github.com/upb/search-gateway/services/providers"
	"github.com/upb/search-gateway/services/search"
	"github.com/upb/search-gateway/services/stats"
	"github.com/upb/search-gateway/utils"
)

// SearchService is the part of the orchestrator the HTTP layer uses
type SearchService interface {
	Resolve(ctx context.Context, intent search.Intent) (*search.Response, error)
	GetStats() stats.Snapshot
	Health() []health.Profile
	Summary() search.Summary
}

// AttemptReader reads the attempt log
type AttemptReader interface {
	GetByRequestID(ctx context.Context, requestID string) ([]*models.SearchAttempt, error)
	ListRecent(ctx context.Context, engine string, limit int) ([]*models.SearchAttempt, error)
	CountByOutcome(ctx context.Context, since time.Time) ([]repositories.OutcomeCount, error)
}

// SearchRequest is the body of POST /api/v1/search
type SearchRequest struct {
	Query      string `json:"query" validate:"required,max=2048"`
	Type       string `json:"type,omitempty" validate:"omitempty,search_type"`
	MaxResults *int   `json:"max_results,omitempty" validate:"omitempty,lte=50"`
	Engine     string `json:"engine,omitempty" validate:"omitempty,engine"`
	TimeoutMs  int    `json:"timeout_ms,omitempty" validate:"omitempty,gte=1,lte=60000"`
}

// StatsResponse is the body of GET /api/v1/search/stats
type StatsResponse struct {
	Stats  stats.Snapshot   `json:"stats"`
	Health []health.Profile `json:"health"`
}

// SearchHandler handles search HTTP requests
type SearchHandler struct {
	service           SearchService
	attempts          AttemptReader
	defaultMaxResults int
	logger            *zap.Logger
}

// NewSearchHandler creates a new SearchHandler. attempts may be nil when the
// attempt log is disabled.
func NewSearchHandler(service SearchService, attempts AttemptReader, defaultMaxResults int, logger *zap.Logger) *SearchHandler {
	if defaultMaxResults <= 0 {
		defaultMaxResults = search.DefaultConfig().DefaultMaxResults
	}
	return &SearchHandler{
		service:           service,
		attempts:          attempts,
		defaultMaxResults: defaultMaxResults,
		logger:            logger,
	}
}

// Search handles POST /api/v1/search
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		HandleValidationError(w, err, h.logger)
		return
	}

	intent := search.Intent{
		Query:      req.Query,
		Type:       providers.IntentType(req.Type),
		MaxResults: h.defaultMaxResults,
		Deadline:   time.Duration(req.TimeoutMs) * time.Millisecond,
	}
	// An explicit zero or negative cap is passed through and rejected by the service
	if req.MaxResults != nil {
		intent.MaxResults = *req.MaxResults
	}
	if req.Engine != "" {
		engine := providers.Engine(req.Engine)
		intent.EngineOverride = &engine
	}

	resp, err := h.service.Resolve(r.Context(), intent)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := utils.WriteOK(w, resp); err != nil {
		h.logger.Error("failed to write search response", zap.Error(err))
	}
}

// GetStats handles GET /api/v1/search/stats
func (h *SearchHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{
		Stats:  h.service.GetStats(),
		Health: h.service.Health(),
	}
	if err := utils.WriteOK(w, resp); err != nil {
		h.logger.Error("failed to write stats response", zap.Error(err))
	}
}

// GetEngines handles GET /api/v1/search/engines
func (h *SearchHandler) GetEngines(w http.ResponseWriter, r *http.Request) {
	if err := utils.WriteOK(w, h.service.Summary()); err != nil {
		h.logger.Error("failed to write engines response", zap.Error(err))
	}
}

// GetAttempts handles GET /api/v1/search/attempts/{requestID}
func (h *SearchHandler) GetAttempts(w http.ResponseWriter, r *http.Request) {
	if h.attempts == nil {
		_ = utils.WriteError(w, http.StatusServiceUnavailable, "attempt log is disabled", nil)
		return
	}

	requestID := chi.URLParam(r, "requestID")
	rows, err := h.attempts.GetByRequestID(r.Context(), requestID)
	if err != nil {
		HandleServiceError(w, services.WrapInternal("failed to read attempt log", err), h.logger)
		return
	}
	if len(rows) == 0 {
		err := services.NewDomainError(services.ErrorTypeNotFound, "search attempt not found", nil).
			WithDetail("request_id", requestID)
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := utils.WriteOK(w, rows); err != nil {
		h.logger.Error("failed to write attempts response", zap.Error(err))
	}
}

// ListAttempts handles GET /api/v1/search/attempts?engine=&limit=
func (h *SearchHandler) ListAttempts(w http.ResponseWriter, r *http.Request) {
	if h.attempts == nil {
		_ = utils.WriteError(w, http.StatusServiceUnavailable, "attempt log is disabled", nil)
		return
	}

	engine := r.URL.Query().Get("engine")
	if engine != "" {
		e, ok := providers.ParseEngine(engine)
		if !ok {
			HandleServiceError(w, services.NewValidationError("unknown search engine").WithDetail("engine", engine), h.logger)
			return
		}
		engine = string(e)
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			HandleServiceError(w, services.NewValidationError("limit must be between 1 and 500").WithDetail("limit", v), h.logger)
			return
		}
		limit = n
	}

	rows, err := h.attempts.ListRecent(r.Context(), engine, limit)
	if err != nil {
		HandleServiceError(w, services.WrapInternal("failed to read attempt log", err), h.logger)
		return
	}
	if rows == nil {
		rows = []*models.SearchAttempt{}
	}

	if err := utils.WriteOK(w, rows); err != nil {
		h.logger.Error("failed to write attempts response", zap.Error(err))
	}
}

// GetOutcomes handles GET /api/v1/search/outcomes?since=24h
func (h *SearchHandler) GetOutcomes(w http.ResponseWriter, r *http.Request) {
	if h.attempts == nil {
		_ = utils.WriteError(w, http.StatusServiceUnavailable, "attempt log is disabled", nil)
		return
	}

	window := 24 * time.Hour
	if v := r.URL.Query().Get("since"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			HandleServiceError(w, services.NewValidationError("since must be a positive duration").WithDetail("since", v), h.logger)
			return
		}
		window = d
	}

	counts, err := h.attempts.CountByOutcome(r.Context(), time.Now().Add(-window))
	if err != nil {
		HandleServiceError(w, services.WrapInternal("failed to read attempt log", err), h.logger)
		return
	}
	if counts == nil {
		counts = []repositories.OutcomeCount{}
	}

	if err := utils.WriteOK(w, counts); err != nil {
		h.logger.Error("failed to write outcomes response", zap.Error(err))
	}
}
