package handlers

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"retail-dashboard/internal/export"
	apperr "retail-dashboard/internal/errors"
	"retail-dashboard/internal/models"
	"retail-dashboard/internal/observability"
	"retail-dashboard/internal/pipeline"
	"retail-dashboard/internal/services"
)

// Version is reported by /health.
var Version = "1.0.0"

const (
	cacheControl    = "private, max-age=30"
	defaultPageSize = 100
	maxPageSize     = 5000
	defaultTopN     = 10
)

type APIHandlers struct {
	dashboard *services.Dashboard
	catalog   *services.Catalog
	logger    *slog.Logger
}

func NewAPIHandlers(dashboard *services.Dashboard, catalog *services.Catalog, logger *slog.Logger) *APIHandlers {
	return &APIHandlers{
		dashboard: dashboard,
		catalog:   catalog,
		logger:    logger,
	}
}

// fail maps service errors onto the error envelope.
func (h *APIHandlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, h.logger, err)
}

func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var appErr *apperr.AppError
	switch {
	case errors.As(err, &appErr):
	case errors.Is(err, services.ErrNoDataset):
		appErr = apperr.Unavailable(err)
	case errors.Is(err, pipeline.ErrInvalidField):
		appErr = apperr.InvalidParamWrap(err, "field", "Invalid field for this operation")
	default:
		appErr = apperr.InternalWrap(err, "An unexpected error occurred")
	}
	apperr.WriteError(w, logger, appErr, observability.GetRequestID(r.Context()))
}

func (h *APIHandlers) criteria(r *http.Request) (pipeline.Criteria, error) {
	defaults, err := h.dashboard.Defaults(r.Context())
	if err != nil {
		return pipeline.Criteria{}, err
	}
	return ParseCriteria(r.URL.Query(), defaults)
}

func (h *APIHandlers) view(r *http.Request) (*pipeline.View, error) {
	c, err := h.criteria(r)
	if err != nil {
		return nil, err
	}
	return h.dashboard.Filter(r.Context(), c)
}

func (h *APIHandlers) ok(w http.ResponseWriter, data any) {
	w.Header().Set("Cache-Control", cacheControl)
	apperr.WriteSuccess(w, data)
}

func fieldParam(r *http.Request, key string, fallback models.Field) (models.Field, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		if fallback == "" {
			return "", apperr.InvalidParam(key, key+" is required")
		}
		return fallback, nil
	}
	f, err := models.ParseField(raw)
	if err != nil {
		return "", apperr.InvalidParamWrap(err, key, "Unknown field")
	}
	return f, nil
}

func (h *APIHandlers) HandleOptions(w http.ResponseWriter, r *http.Request) {
	opts, err := h.dashboard.Options(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, opts)
}

type productPage struct {
	Total  int                 `json:"total"`
	Offset int                 `json:"offset"`
	Rows   []models.ProductRow `json:"rows"`
}

func (h *APIHandlers) HandleProducts(w http.ResponseWriter, r *http.Request) {
	view, err := h.view(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	q := r.URL.Query()
	limit, err := intParam(q, "limit", defaultPageSize, 1, maxPageSize)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	offset, err := intParam(q, "offset", 0, 0, view.Len())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	end := min(offset+limit, view.Len())
	rows := make([]models.ProductRow, 0, end-offset)
	for i := offset; i < end; i++ {
		p := view.At(i)
		rows = append(rows, models.NewProductRow(&p))
	}
	h.ok(w, productPage{Total: view.Len(), Offset: offset, Rows: rows})
}

func (h *APIHandlers) HandleSummary(w http.ResponseWriter, r *http.Request) {
	c, err := h.criteria(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	summary, err := h.dashboard.Build(r.Context(), c)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, summary)
}

// HandleGroupSum serves ?value=<numeric>&by=<categorical>[&by=<categorical>].
func (h *APIHandlers) HandleGroupSum(w http.ResponseWriter, r *http.Request) {
	value, err := fieldParam(r, "value", models.FieldRevenue)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var by []models.Field
	for _, raw := range r.URL.Query()["by"] {
		f, err := models.ParseField(raw)
		if err != nil {
			h.fail(w, r, apperr.InvalidParamWrap(err, "by", "Unknown field"))
			return
		}
		by = append(by, f)
	}
	if len(by) == 0 {
		by = []models.Field{models.FieldSection}
	}

	view, err := h.view(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	groups, err := pipeline.GroupSum(view, value, by...)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, groups)
}

func (h *APIHandlers) HandleValueCounts(w http.ResponseWriter, r *http.Request) {
	field, err := fieldParam(r, "field", models.FieldSection)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	view, err := h.view(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	counts, err := pipeline.ValueCounts(view, field)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, counts)
}

func (h *APIHandlers) HandleTop(w http.ResponseWriter, r *http.Request) {
	field, err := fieldParam(r, "field", models.FieldRevenue)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	n, err := intParam(r.URL.Query(), "n", defaultTopN, 1, maxPageSize)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	view, err := h.view(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	top, err := pipeline.TopN(view, field, n)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, top.Rows())
}

// HandleDescribe serves descriptive statistics for ?field=<numeric>
// (repeatable, all numeric fields by default).
func (h *APIHandlers) HandleDescribe(w http.ResponseWriter, r *http.Request) {
	fields := models.NumericFields
	if raw := r.URL.Query()["field"]; len(raw) > 0 {
		fields = nil
		for _, s := range raw {
			f, err := models.ParseField(s)
			if err == nil && !f.IsNumeric() {
				err = fmt.Errorf("%w: %q is not numeric", pipeline.ErrInvalidField, s)
			}
			if err != nil {
				h.fail(w, r, apperr.InvalidParamWrap(err, "field", "Statistics need a numeric field"))
				return
			}
			fields = append(fields, f)
		}
	}

	view, err := h.view(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]models.FieldStats, 0, len(fields))
	for _, f := range fields {
		out = append(out, models.FieldStats{Field: f, Stats: pipeline.Describe(view, f)})
	}
	h.ok(w, out)
}

func (h *APIHandlers) HandleExportCSV(w http.ResponseWriter, r *http.Request) {
	h.writeExport(w, r, "csv", "text/csv; charset=utf-8", export.WriteCSV)
}

func (h *APIHandlers) HandleExportXLSX(w http.ResponseWriter, r *http.Request) {
	h.writeExport(w, r, "xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", export.WriteXLSX)
}

func (h *APIHandlers) writeExport(w http.ResponseWriter, r *http.Request, ext, contentType string, write func(io.Writer, *pipeline.View) error) {
	view, err := h.view(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	filename := fmt.Sprintf("filtered_products_%s.%s", time.Now().Format("20060102_1504"), ext)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.Header().Set("Cache-Control", "no-store")

	if err := write(w, view); err != nil {
		// Headers are already sent; all that is left is to log.
		h.logger.Error("export failed",
			"format", ext,
			"error", err,
			"request_id", observability.GetRequestID(r.Context()),
		)
	}
}

func (h *APIHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	stats := h.catalog.Stats()
	dataset := "not_loaded"
	if cached, _ := stats["cached"].(bool); cached {
		dataset = "loaded"
	}

	apperr.WriteSuccess(w, map[string]string{
		"status":    "healthy",
		"dataset":   dataset,
		"timestamp": time.Now().Format(time.RFC3339),
		"version":   Version,
	})
}

func (h *APIHandlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	apperr.WriteSuccess(w, h.catalog.Stats())
}

// HandleReload rereads the source now. A failed reload keeps the
// previous dataset and reports 503.
func (h *APIHandlers) HandleReload(w http.ResponseWriter, r *http.Request) {
	ds, err := h.catalog.Reload(r.Context())
	if err != nil {
		h.fail(w, r, fmt.Errorf("%w: %w", services.ErrNoDataset, err))
		return
	}
	apperr.WriteSuccess(w, map[string]any{
		"records": ds.Len(),
		"source":  ds.Source(),
	})
}
