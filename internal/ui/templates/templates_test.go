package templates

import (
	"bytes"
	"strings"
	"testing"

	"github.com/a-h/templ"

	"retail-dashboard/internal/models"
)

func render(t *testing.T, c templ.Component) string {
	t.Helper()
	var buf bytes.Buffer
	if err := c.Render(t.Context(), &buf); err != nil {
		t.Fatalf("render failed: %v", err)
	}
	return buf.String()
}

func TestProductTable(t *testing.T) {
	rows := []models.ProductRow{
		{Name: "<script>alert(1)</script>", Section: "MAN", Position: "Aisle", Promotion: "Yes", Seasonal: "No",
			Price: models.Float(19.99), SalesVolume: models.Float(2823), Revenue: models.Float(56431.77)},
		{Name: "WOOL COAT", Section: "WOMAN", Position: "End-cap", Promotion: "No", Seasonal: "No",
			Price: models.Float(129)},
	}

	body := render(t, ProductTable(ProductsID, rows, 3))

	for _, want := range []string{
		`id="products"`,
		"Showing 2 of 3 products.",
		"&lt;script&gt;alert(1)&lt;/script&gt;",
		"<th>Sales volume</th>",
		`<td class="num">€19.99</td>`,
		`<td class="num">2,823</td>`,
		`<td class="num">€56,431.77</td>`,
		"WOOL COAT",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("table should contain %q\n%s", want, body)
		}
	}
	if strings.Contains(body, "<script>") {
		t.Error("product names must be escaped")
	}
	if strings.Contains(body, "No products match") {
		t.Error("empty row rendered for a non-empty table")
	}
}

func TestProductTable_Empty(t *testing.T) {
	body := render(t, ProductTable(Top20ID, nil, 0))

	if !strings.Contains(body, `<td colspan="8" class="empty">No products match the current filters.</td>`) {
		t.Errorf("missing empty row in %s", body)
	}
	if strings.Contains(body, "Showing") {
		t.Error("truncation note rendered for an empty table")
	}
}

func TestStatsTable(t *testing.T) {
	stats := []models.FieldStats{
		{Field: models.FieldPrice, Stats: models.Stats{Count: 2, Mean: models.Float(74.47), Min: models.Float(19.99), Max: models.Float(129)}},
	}

	body := render(t, StatsTable(stats))

	for _, want := range []string{
		`id="stats"`,
		"<th>price</th>",
		`<th>count</th><td class="num">2</td>`,
		`<th>mean</th><td class="num">74.47</td>`,
		`<th>std</th><td class="num">—</td>`,
		`<th>max</th><td class="num">129.00</td>`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("stats should contain %q\n%s", want, body)
		}
	}
}

func TestDownloads(t *testing.T) {
	body := render(t, Downloads("sections=MAN&q=jacket"))

	for _, want := range []string{
		`href="/api/export.csv?sections=MAN&amp;q=jacket"`,
		`href="/api/export.xlsx?sections=MAN&amp;q=jacket"`,
		" download>",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("downloads should contain %q\n%s", want, body)
		}
	}
}

func TestInsights(t *testing.T) {
	coat := &models.ProductRow{Name: "WOOL COAT", Price: models.Float(129), SalesVolume: models.Float(410), Revenue: models.Float(52890)}
	ins := models.Insights{
		MostExpensive: coat,
		BestSeller:    coat,
		TopRevenue:    coat,
		UniqueNames:   1,
		Sections:      []string{"WOMAN"},
	}

	body := render(t, Insights(ins, 1))

	for _, want := range []string{
		"Most expensive: WOOL COAT - €129.00",
		"Best seller: WOOL COAT - 410 units",
		"Top revenue: WOOL COAT - €52,890",
		"<li>Sections: WOMAN</li>",
		"<li>Positions: —</li>",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("insights should contain %q\n%s", want, body)
		}
	}

	if body := render(t, Insights(models.Insights{}, 0)); !strings.Contains(body, "No products match the current filters.") {
		t.Errorf("empty insights should say so\n%s", body)
	}
}

func TestDashboard(t *testing.T) {
	opts := &models.Options{
		Sections:  []string{"MAN", "WOMAN"},
		Positions: []string{"Aisle"},
		PriceMin:  models.Float(19.99),
		PriceMax:  models.Float(129),
		Total:     4,
	}

	body := render(t, Dashboard(opts, `{"sections":["MAN"]}`))

	for _, want := range []string{
		"<!doctype html>",
		`data-signals="{&#34;sections&#34;:[&#34;MAN&#34;]}"`,
		`<input type="checkbox" value="WOMAN" data-bind="sections"> WOMAN</label>`,
		`data-bind="positions"`,
		"Price range (€19.99 to €129.00)",
		"4 products loaded.",
		`id="chart-section-position"`,
		"window.renderCharts",
		".kpi-grid{",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("dashboard should contain %q", want)
		}
	}
}

func TestPageError(t *testing.T) {
	body := render(t, PageError("Data <missing>"))

	if !strings.Contains(body, `<p class="alert">Data &lt;missing&gt;</p>`) {
		t.Errorf("unexpected error page\n%s", body)
	}
}
