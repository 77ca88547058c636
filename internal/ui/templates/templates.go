// Package templates holds the dashboard page and the fragments patched
// into it over SSE. Markup lives in the .templ files; run templ generate
// after editing them.
package templates

import (
	"strconv"

	"retail-dashboard/internal/models"
	"retail-dashboard/internal/ui/format"
)

// Element IDs patched by the SSE endpoints.
const (
	KPIsID      = "kpis"
	InsightsID  = "insights"
	ProductsID  = "products"
	Top20ID     = "top20"
	StatsID     = "stats"
	DownloadsID = "downloads"
	StatusID    = "status"
)

// MaxTableRows caps the filtered table rendered into the page. The full
// view is available through the exports.
const MaxTableRows = 500

// Chart container IDs, keyed by the chart signal they render.
var charts = []struct{ id, title string }{
	{"chart-position", "Sales volume by store position"},
	{"chart-section", "Products by section"},
	{"chart-scatter", "Price vs sales volume"},
	{"chart-top", "Top 10 products by revenue"},
	{"chart-section-position", "Revenue by section and position"},
}

var productColumns = []string{"Name", "Section", "Position", "Promotion", "Seasonal", "Price", "Sales volume", "Revenue"}

// statRows are the describe() rows in display order.
var statRows = []struct {
	label string
	pick  func(models.Stats) string
}{
	{"count", func(s models.Stats) string { return strconv.Itoa(s.Count) }},
	{"mean", func(s models.Stats) string { return format.Number(s.Mean, 2) }},
	{"std", func(s models.Stats) string { return format.Number(s.Std, 2) }},
	{"min", func(s models.Stats) string { return format.Number(s.Min, 2) }},
	{"25%", func(s models.Stats) string { return format.Number(s.P25, 2) }},
	{"50%", func(s models.Stats) string { return format.Number(s.P50, 2) }},
	{"75%", func(s models.Stats) string { return format.Number(s.P75, 2) }},
	{"max", func(s models.Stats) string { return format.Number(s.Max, 2) }},
}
