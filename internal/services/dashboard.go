package services

import (
	"context"
	"strconv"
	"time"

	"retail-dashboard/internal/models"
	"retail-dashboard/internal/observability"
	"retail-dashboard/internal/pipeline"
)

const (
	topChartRows = 10
	topTableRows = 20
)

// DatasetProvider hands out the shared read-only dataset.
type DatasetProvider interface {
	Dataset(ctx context.Context) (*models.Dataset, error)
}

// Dashboard runs the filter and aggregate stages for one interaction.
// It holds no per-session state; every call is a pure function of the
// cached dataset and the criteria it is given.
type Dashboard struct {
	provider DatasetProvider
}

func NewDashboard(provider DatasetProvider) *Dashboard {
	return &Dashboard{provider: provider}
}

func (d *Dashboard) Dataset(ctx context.Context) (*models.Dataset, error) {
	return d.provider.Dataset(ctx)
}

func (d *Dashboard) Defaults(ctx context.Context) (pipeline.Criteria, error) {
	ds, err := d.provider.Dataset(ctx)
	if err != nil {
		return pipeline.Criteria{}, err
	}
	return pipeline.DefaultCriteria(ds), nil
}

func (d *Dashboard) Options(ctx context.Context) (*models.Options, error) {
	ds, err := d.provider.Dataset(ctx)
	if err != nil {
		return nil, err
	}
	all := pipeline.All(ds)
	return &models.Options{
		Sections:   pipeline.Distinct(all, models.FieldSection),
		Positions:  pipeline.Distinct(all, models.FieldPosition),
		Promotions: pipeline.Distinct(all, models.FieldPromotion),
		Seasonal:   pipeline.Distinct(all, models.FieldSeasonal),
		PriceMin:   pipeline.Min(all, models.FieldPrice),
		PriceMax:   pipeline.Max(all, models.FieldPrice),
		Total:      ds.Len(),
	}, nil
}

// Filter returns the current view for c.
func (d *Dashboard) Filter(ctx context.Context, c pipeline.Criteria) (*pipeline.View, error) {
	ds, err := d.provider.Dataset(ctx)
	if err != nil {
		return nil, err
	}

	_, span := observability.StartStage(ctx, "filter")
	view := pipeline.Filter(ds, c)
	span.SetTag("rows.in", strconv.Itoa(ds.Len()))
	span.SetTag("rows.out", strconv.Itoa(view.Len()))
	span.Finish()

	return view, nil
}

// Build computes every metric, chart series and table of the dashboard
// for c in one synchronous pass.
func (d *Dashboard) Build(ctx context.Context, c pipeline.Criteria) (*models.Summary, error) {
	view, err := d.Filter(ctx, c)
	if err != nil {
		return nil, err
	}
	return Summarize(ctx, view), nil
}

// Summarize aggregates an already filtered view.
func Summarize(ctx context.Context, view *pipeline.View) *models.Summary {
	_, span := observability.StartStage(ctx, "aggregate")
	defer span.Finish()

	all := pipeline.All(view.Dataset())

	summary := &models.Summary{
		KPIs:        kpis(view, all),
		Scatter:     scatter(view),
		Insights:    insights(view),
		Source:      view.Dataset().Source(),
		GeneratedAt: time.Now(),
	}

	// Field arguments below are constants, so these cannot fail.
	summary.SalesByPosition, _ = pipeline.GroupSum(view, models.FieldSalesVolume, models.FieldPosition)
	summary.SectionCounts, _ = pipeline.ValueCounts(view, models.FieldSection)
	summary.RevenueBySectionPosition, _ = pipeline.GroupSum(view, models.FieldRevenue, models.FieldSection, models.FieldPosition)

	top, _ := pipeline.TopN(view, models.FieldRevenue, topTableRows)
	summary.Top20 = top.Rows()
	summary.TopRevenue = top.Head(topChartRows).Rows()

	for _, f := range models.NumericFields {
		summary.Describe = append(summary.Describe, models.FieldStats{Field: f, Stats: pipeline.Describe(view, f)})
	}

	span.SetTag("rows", strconv.Itoa(view.Len()))
	return summary
}

func kpis(view, all *pipeline.View) models.KPIs {
	revenue := pipeline.Sum(view, models.FieldRevenue)
	units := pipeline.Sum(view, models.FieldSalesVolume)
	avgPrice := pipeline.Mean(view, models.FieldPrice)

	return models.KPIs{
		Products:      view.Len(),
		TotalProducts: all.Len(),
		ProductsDelta: view.Len() - all.Len(),
		Revenue:       revenue,
		RevenueShare:  pipeline.Share(revenue, pipeline.Sum(all, models.FieldRevenue)),
		AvgPrice:      avgPrice,
		AvgPriceDelta: pipeline.Delta(avgPrice, pipeline.Mean(all, models.FieldPrice)),
		Units:         units,
		UnitsShare:    pipeline.Share(units, pipeline.Sum(all, models.FieldSalesVolume)),
	}
}

func scatter(view *pipeline.View) []models.ScatterPoint {
	points := make([]models.ScatterPoint, 0, view.Len())
	for i := 0; i < view.Len(); i++ {
		p := view.At(i)
		if !p.Price.Valid || !p.SalesVolume.Valid {
			continue
		}
		points = append(points, models.ScatterPoint{
			Name:        p.Name,
			Section:     p.Section,
			Position:    p.Position,
			Price:       p.Price.Value,
			SalesVolume: p.SalesVolume.Value,
			Revenue:     p.Revenue.Value,
		})
	}
	return points
}

func insights(view *pipeline.View) models.Insights {
	return models.Insights{
		MostExpensive: leader(view, models.FieldPrice),
		BestSeller:    leader(view, models.FieldSalesVolume),
		TopRevenue:    leader(view, models.FieldRevenue),
		PriceMin:      pipeline.Min(view, models.FieldPrice),
		PriceMedian:   pipeline.Median(view, models.FieldPrice),
		PriceMax:      pipeline.Max(view, models.FieldPrice),
		UniqueNames:   pipeline.CountDistinct(view, models.FieldName),
		Sections:      pipeline.Distinct(view, models.FieldSection),
		Positions:     pipeline.Distinct(view, models.FieldPosition),
		Promoted:      pipeline.CountEqual(view, models.FieldPromotion, "yes"),
		Seasonal:      pipeline.CountEqual(view, models.FieldSeasonal, "yes"),
	}
}

// leader is the top row by field, or nil when no row has a value.
func leader(view *pipeline.View, field models.Field) *models.ProductRow {
	top, err := pipeline.TopN(view, field, 1)
	if err != nil || top.Len() == 0 {
		return nil
	}
	p := top.At(0)
	if !p.Numeric(field).Valid {
		return nil
	}
	row := models.NewProductRow(&p)
	return &row
}
