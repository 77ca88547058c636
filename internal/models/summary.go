package models

import "time"

type GroupTotal struct {
	Keys  []string  `json:"keys"`
	Sum   NullFloat `json:"sum"`
	Count int       `json:"count"`
}

type ValueCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Stats mirrors a descriptive statistics column: count of non-missing
// values, mean, sample standard deviation, extremes and quartiles.
type Stats struct {
	Count int       `json:"count"`
	Mean  NullFloat `json:"mean"`
	Std   NullFloat `json:"std"`
	Min   NullFloat `json:"min"`
	P25   NullFloat `json:"p25"`
	P50   NullFloat `json:"p50"`
	P75   NullFloat `json:"p75"`
	Max   NullFloat `json:"max"`
}

type FieldStats struct {
	Field Field `json:"field"`
	Stats Stats `json:"stats"`
}

type ProductRow struct {
	Name        string    `json:"name"`
	Section     string    `json:"section"`
	Position    string    `json:"product_position"`
	Promotion   string    `json:"promotion"`
	Seasonal    string    `json:"seasonal"`
	Price       NullFloat `json:"price"`
	SalesVolume NullFloat `json:"sales_volume"`
	Revenue     NullFloat `json:"revenue"`
}

func NewProductRow(p *Product) ProductRow {
	return ProductRow{
		Name:        p.Name,
		Section:     p.Section,
		Position:    p.Position,
		Promotion:   p.Promotion,
		Seasonal:    p.Seasonal,
		Price:       p.Price,
		SalesVolume: p.SalesVolume,
		Revenue:     p.Revenue,
	}
}

type ScatterPoint struct {
	Name        string  `json:"name"`
	Section     string  `json:"section"`
	Position    string  `json:"product_position"`
	Price       float64 `json:"price"`
	SalesVolume float64 `json:"sales_volume"`
	Revenue     float64 `json:"revenue"`
}

// KPIs compares the filtered view against the full dataset. Shares are
// percentages; a missing share means the full-dataset total was zero or
// undefined.
type KPIs struct {
	Products      int       `json:"products"`
	TotalProducts int       `json:"total_products"`
	ProductsDelta int       `json:"products_delta"`
	Revenue       NullFloat `json:"revenue"`
	RevenueShare  NullFloat `json:"revenue_share"`
	AvgPrice      NullFloat `json:"avg_price"`
	AvgPriceDelta NullFloat `json:"avg_price_delta"`
	Units         NullFloat `json:"units"`
	UnitsShare    NullFloat `json:"units_share"`
}

type Insights struct {
	MostExpensive *ProductRow `json:"most_expensive"`
	BestSeller    *ProductRow `json:"best_seller"`
	TopRevenue    *ProductRow `json:"top_revenue"`
	PriceMin      NullFloat   `json:"price_min"`
	PriceMedian   NullFloat   `json:"price_median"`
	PriceMax      NullFloat   `json:"price_max"`
	UniqueNames   int         `json:"unique_names"`
	Sections      []string    `json:"sections"`
	Positions     []string    `json:"positions"`
	Promoted      int         `json:"promoted"`
	Seasonal      int         `json:"seasonal"`
}

type Summary struct {
	KPIs                     KPIs           `json:"kpis"`
	SalesByPosition          []GroupTotal   `json:"sales_by_position"`
	SectionCounts            []ValueCount   `json:"section_counts"`
	RevenueBySectionPosition []GroupTotal   `json:"revenue_by_section_position"`
	TopRevenue               []ProductRow   `json:"top_revenue"`
	Top20                    []ProductRow   `json:"top_20"`
	Scatter                  []ScatterPoint `json:"scatter"`
	Describe                 []FieldStats   `json:"describe"`
	Insights                 Insights       `json:"insights"`
	Source                   SourceID       `json:"source"`
	GeneratedAt              time.Time      `json:"generated_at"`
}

// Options feeds the filter widgets: every distinct categorical value and
// the price bounds of the full dataset.
type Options struct {
	Sections   []string  `json:"sections"`
	Positions  []string  `json:"positions"`
	Promotions []string  `json:"promotions"`
	Seasonal   []string  `json:"seasonal"`
	PriceMin   NullFloat `json:"price_min"`
	PriceMax   NullFloat `json:"price_max"`
	Total      int       `json:"total"`
}
