package handlers

import (
	"slices"

	"retail-dashboard/internal/models"
)

// chartData is the _charts signal consumed by the page's chart renderer.
type chartData struct {
	Position        barSeries      `json:"position"`
	Section         []pieSlice     `json:"section"`
	Scatter         []scatterGroup `json:"scatter"`
	Top             barSeries      `json:"top"`
	SectionPosition stackedBars    `json:"sectionPosition"`
}

type barSeries struct {
	Labels []string           `json:"labels"`
	Values []models.NullFloat `json:"values"`
}

type pieSlice struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

// scatterGroup holds [price, sales volume, name] points for one section.
type scatterGroup struct {
	Name   string  `json:"name"`
	Points [][]any `json:"points"`
}

type stackedBars struct {
	Labels []string      `json:"labels"`
	Series []namedValues `json:"series"`
}

type namedValues struct {
	Name   string             `json:"name"`
	Values []models.NullFloat `json:"values"`
}

func buildCharts(s *models.Summary) chartData {
	charts := chartData{
		Position:        groupBars(s.SalesByPosition),
		Section:         make([]pieSlice, 0, len(s.SectionCounts)),
		Scatter:         make([]scatterGroup, 0),
		Top:             barSeries{Labels: make([]string, 0), Values: make([]models.NullFloat, 0)},
		SectionPosition: stacked(s.RevenueBySectionPosition),
	}

	for _, vc := range s.SectionCounts {
		charts.Section = append(charts.Section, pieSlice{Name: vc.Value, Value: vc.Count})
	}

	bySection := make(map[string]int)
	for _, p := range s.Scatter {
		i, ok := bySection[p.Section]
		if !ok {
			i = len(charts.Scatter)
			bySection[p.Section] = i
			charts.Scatter = append(charts.Scatter, scatterGroup{Name: p.Section})
		}
		charts.Scatter[i].Points = append(charts.Scatter[i].Points, []any{p.Price, p.SalesVolume, p.Name})
	}

	for _, row := range s.TopRevenue {
		charts.Top.Labels = append(charts.Top.Labels, row.Name)
		charts.Top.Values = append(charts.Top.Values, row.Revenue)
	}

	return charts
}

func groupBars(groups []models.GroupTotal) barSeries {
	bars := barSeries{
		Labels: make([]string, 0, len(groups)),
		Values: make([]models.NullFloat, 0, len(groups)),
	}
	for _, g := range groups {
		bars.Labels = append(bars.Labels, g.Keys[0])
		bars.Values = append(bars.Values, g.Sum)
	}
	return bars
}

// stacked pivots two-key group totals into one series per second key,
// aligned on the first keys. Absent combinations are null.
func stacked(groups []models.GroupTotal) stackedBars {
	out := stackedBars{Labels: make([]string, 0), Series: make([]namedValues, 0)}
	var inner []string
	for _, g := range groups {
		if !slices.Contains(out.Labels, g.Keys[0]) {
			out.Labels = append(out.Labels, g.Keys[0])
		}
		if !slices.Contains(inner, g.Keys[1]) {
			inner = append(inner, g.Keys[1])
		}
	}
	slices.Sort(inner)

	for _, name := range inner {
		values := make([]models.NullFloat, len(out.Labels))
		for _, g := range groups {
			if g.Keys[1] == name {
				values[slices.Index(out.Labels, g.Keys[0])] = g.Sum
			}
		}
		out.Series = append(out.Series, namedValues{Name: name, Values: values})
	}
	return out
}
