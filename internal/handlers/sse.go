package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/a-h/templ"
	"github.com/starfederation/datastar-go/datastar"

	apperr "retail-dashboard/internal/errors"
	"retail-dashboard/internal/observability"
	"retail-dashboard/internal/pipeline"
	"retail-dashboard/internal/services"
	"retail-dashboard/internal/ui/templates"
)

type SSEHandlers struct {
	dashboard *services.Dashboard
	logger    *slog.Logger
}

func NewSSEHandlers(dashboard *services.Dashboard, logger *slog.Logger) *SSEHandlers {
	return &SSEHandlers{
		dashboard: dashboard,
		logger:    logger,
	}
}

func renderHTML(ctx context.Context, c templ.Component) (string, error) {
	var buf strings.Builder
	if err := c.Render(ctx, &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// HandleDashboard reads the filter signals, runs the pipeline once and
// patches every dashboard fragment plus the chart signal.
func (h *SSEHandlers) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.RequestLogger(ctx, h.logger)

	defaults, err := h.dashboard.Defaults(ctx)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var signals FilterSignals
	if err := datastar.ReadSignals(r, &signals); err != nil {
		writeError(w, r, h.logger, apperr.InvalidParamWrap(err, "signals", "Malformed filter signals"))
		return
	}

	sse := datastar.NewSSE(w, r)
	h.patchDashboard(ctx, sse, logger, signals.Criteria(defaults))
}

// HandleReset restores the default criteria in the page and re-renders.
func (h *SSEHandlers) HandleReset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.RequestLogger(ctx, h.logger)

	defaults, err := h.dashboard.Defaults(ctx)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	sse := datastar.NewSSE(w, r)

	payload, err := json.Marshal(SignalsFromCriteria(defaults))
	if err != nil {
		logger.Error("marshal default signals", "error", err)
		return
	}
	if err := sse.PatchSignals(payload); err != nil {
		logger.Warn("patch signals", "error", err)
		return
	}

	h.patchDashboard(ctx, sse, logger, defaults)
}

func (h *SSEHandlers) patchDashboard(ctx context.Context, sse *datastar.ServerSentEventGenerator, logger *slog.Logger, c pipeline.Criteria) {
	view, err := h.dashboard.Filter(ctx, c)
	if err != nil {
		logger.Error("filter products", "error", err)
		h.patch(ctx, sse, logger, templates.Alert("Product data is currently unavailable."))
		return
	}
	summary := services.Summarize(ctx, view)

	fragments := []templ.Component{
		templates.KPICards(summary.KPIs),
		templates.Downloads(EncodeCriteria(c).Encode()),
		templates.ProductTable(templates.ProductsID, view.Head(templates.MaxTableRows).Rows(), view.Len()),
		templates.ProductTable(templates.Top20ID, summary.Top20, len(summary.Top20)),
		templates.StatsTable(summary.Describe),
		templates.Insights(summary.Insights, view.Len()),
		templates.Status(summary),
	}
	for _, f := range fragments {
		if !h.patch(ctx, sse, logger, f) {
			return
		}
	}

	payload, err := json.Marshal(map[string]any{"_charts": buildCharts(summary)})
	if err != nil {
		logger.Error("marshal chart data", "error", err)
		return
	}
	if err := sse.PatchSignals(payload); err != nil {
		logger.Warn("patch chart signals", "error", err)
	}
}

// patch renders c and sends it, reporting whether the stream is still
// usable.
func (h *SSEHandlers) patch(ctx context.Context, sse *datastar.ServerSentEventGenerator, logger *slog.Logger, c templ.Component) bool {
	html, err := renderHTML(ctx, c)
	if err != nil {
		logger.Error("render fragment", "error", err)
		return false
	}
	if err := sse.PatchElements(html); err != nil {
		logger.Warn("patch elements", "error", err)
		return false
	}
	return true
}
