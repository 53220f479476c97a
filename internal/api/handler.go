package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-finance/quotawatch/internal/domain"
	"github.com/opensource-finance/quotawatch/internal/period"
	"github.com/opensource-finance/quotawatch/internal/query"
	"github.com/opensource-finance/quotawatch/internal/report"
)

const defaultRunLimit = 50

// openEnd bounds a flagged query with no "to" parameter.
var openEnd = time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)

// Deps are the components the API reads from. Cache may be nil.
type Deps struct {
	Store      domain.FlaggedStore
	Source     domain.ExpenseSource
	Cache      domain.Cache
	ReportsDir string
	CacheTTL   time.Duration
	Version    string
}

// Handler handles HTTP requests.
type Handler struct {
	store      domain.FlaggedStore
	source     domain.ExpenseSource
	cache      domain.Cache
	reportsDir string
	cacheTTL   time.Duration
	version    string
}

// NewHandler creates a new handler.
func NewHandler(deps Deps) *Handler {
	return &Handler{
		store:      deps.Store,
		source:     deps.Source,
		cache:      deps.Cache,
		reportsDir: deps.ReportsDir,
		cacheTTL:   deps.CacheTTL,
		version:    deps.Version,
	}
}

// FlaggedResponse is the body of GET /entities/{id}/flagged.
type FlaggedResponse struct {
	EntityID string                  `json:"entityId"`
	Count    int                     `json:"count"`
	Records  []domain.FlaggedExpense `json:"records"`
	Cached   bool                    `json:"cached"`
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	storeStatus := "ok"

	if h.store != nil {
		if err := h.store.Ping(r.Context()); err != nil {
			status = "degraded"
			storeStatus = err.Error()
		}
	}

	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
		"store":   storeStatus,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// ListEntities returns the audited entities in file order.
func (h *Handler) ListEntities(w http.ResponseWriter, r *http.Request) {
	if h.source == nil {
		writeError(w, http.StatusServiceUnavailable, "entity source not available")
		return
	}

	entities, err := h.source.Entities(r.Context())
	if err != nil {
		slog.Error("failed to list entities", "error", err)
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entities": entities,
		"count":    len(entities),
	})
}

// GetFlagged returns an entity's flagged records, optionally restricted
// to a date range and a CEL filter.
func (h *Handler) GetFlagged(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entityID := chi.URLParam(r, "id")

	q, err := parseQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "store not available")
		return
	}

	set, cached, err := h.loadFlagged(ctx, entityID)
	if err != nil {
		slog.Error("failed to load flagged set", "entity_id", entityID, "error", err)
		writeError(w, statusFor(err), err.Error())
		return
	}

	records, err := q.Apply(set.Records)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, FlaggedResponse{
		EntityID: entityID,
		Count:    len(records),
		Records:  records,
		Cached:   cached,
	})
}

// loadFlagged reads through the cache. Cache failures fall back to the store.
func (h *Handler) loadFlagged(ctx context.Context, entityID string) (*domain.FlaggedSet, bool, error) {
	if h.cache != nil {
		set, err := h.cache.GetFlagged(ctx, entityID)
		if err != nil {
			slog.Warn("cache read failed", "entity_id", entityID, "error", err)
		} else if set != nil {
			return set, true, nil
		}
	}

	records, err := h.store.Load(ctx, entityID)
	if err != nil {
		return nil, false, err
	}
	set := &domain.FlaggedSet{EntityID: entityID, Records: records}

	if h.cache != nil {
		if err := h.cache.SetFlagged(ctx, set, h.cacheTTL); err != nil {
			slog.Warn("cache write failed", "entity_id", entityID, "error", err)
		}
	}
	return set, false, nil
}

func parseQuery(r *http.Request) (query.Query, error) {
	var q query.Query
	params := r.URL.Query()

	from, to := params.Get("from"), params.Get("to")
	if from != "" || to != "" {
		rng := domain.DateRange{End: openEnd}
		if from != "" {
			start, err := period.ParseDate(from)
			if err != nil {
				return q, err
			}
			rng.Start = start
		}
		if to != "" {
			end, err := period.ParseDate(to)
			if err != nil {
				return q, err
			}
			rng.End = end
		}
		q.Range = &rng
	}

	if where := params.Get("where"); where != "" {
		filter, err := query.Compile(where)
		if err != nil {
			return q, err
		}
		q.Filter = filter
	}
	return q, nil
}

// GetReport returns the persisted summary and critical tables.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.loadReport(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// GetReportData returns the top-N view derived from a persisted report.
func (h *Handler) GetReportData(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.loadReport(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, report.BuildReportData(rep))
}

func (h *Handler) loadReport(w http.ResponseWriter, r *http.Request) (*domain.Report, bool) {
	ref, err := period.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	p, err := period.Parse(chi.URLParam(r, "period"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}

	rep, err := report.LoadReport(h.reportsDir, ref, p)
	if err != nil {
		if !errors.Is(err, domain.ErrMissingData) {
			slog.Error("failed to load report", "date", ref.Format(domain.DateLayout), "period", p, "error", err)
		}
		writeError(w, statusFor(err), err.Error())
		return nil, false
	}
	return rep, true
}

// ListRuns returns the audit run history, newest first.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "store not available")
		return
	}

	limit := defaultRunLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	runs, err := h.store.ListRuns(r.Context(), limit)
	if err != nil {
		slog.Error("failed to list runs", "error", err)
		writeError(w, statusFor(err), err.Error())
		return
	}
	if runs == nil {
		runs = []*domain.AuditRun{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// WatchAudits evicts an entity's cached flagged set whenever an audit
// event for it arrives.
func (h *Handler) WatchAudits(ctx context.Context, b domain.EventBus) (domain.Subscription, error) {
	return b.Subscribe(ctx, domain.TopicEntityAudited, func(ctx context.Context, msg *domain.Message) error {
		var event domain.EntityAuditedEvent
		if err := json.Unmarshal(msg.Payload, &event); err != nil {
			return err
		}
		if h.cache == nil || event.EntityID == "" {
			return nil
		}
		return h.cache.DeleteFlagged(ctx, event.EntityID)
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrInvalidConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrMissingData), errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
