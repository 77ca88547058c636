package pipeline

import (
	"strings"

	"retail-dashboard/internal/models"
)

// Criteria is the conjunction of the sidebar selections. Every categorical
// value must belong to its allowed set, so an empty set admits no row.
type Criteria struct {
	Sections   []string `json:"sections"`
	Positions  []string `json:"positions"`
	Promotions []string `json:"promotions"`
	Seasonal   []string `json:"seasonal"`
	PriceMin   float64  `json:"price_min"`
	PriceMax   float64  `json:"price_max"`
	// NameQuery is a case-insensitive substring of the product name.
	// Empty means no restriction.
	NameQuery string `json:"q,omitempty"`
}

// DefaultCriteria selects the full domain of every categorical field and
// the full observed price range.
func DefaultCriteria(ds *models.Dataset) Criteria {
	all := All(ds)
	c := Criteria{
		Sections:   Distinct(all, models.FieldSection),
		Positions:  Distinct(all, models.FieldPosition),
		Promotions: Distinct(all, models.FieldPromotion),
		Seasonal:   Distinct(all, models.FieldSeasonal),
	}
	if lo := Min(all, models.FieldPrice); lo.Valid {
		c.PriceMin = lo.Value
	}
	if hi := Max(all, models.FieldPrice); hi.Valid {
		c.PriceMax = hi.Value
	}
	return c
}

type matcher struct {
	sections   map[string]struct{}
	positions  map[string]struct{}
	promotions map[string]struct{}
	seasonal   map[string]struct{}
	priceMin   float64
	priceMax   float64
	query      string
}

func (c Criteria) matcher() *matcher {
	return &matcher{
		sections:   toSet(c.Sections),
		positions:  toSet(c.Positions),
		promotions: toSet(c.Promotions),
		seasonal:   toSet(c.Seasonal),
		priceMin:   c.PriceMin,
		priceMax:   c.PriceMax,
		query:      strings.ToLower(strings.TrimSpace(c.NameQuery)),
	}
}

func (m *matcher) match(p *models.Product) bool {
	if !member(m.sections, p.Section) ||
		!member(m.positions, p.Position) ||
		!member(m.promotions, p.Promotion) ||
		!member(m.seasonal, p.Seasonal) {
		return false
	}
	// A missing price cannot satisfy the range.
	if !p.Price.Valid || p.Price.Value < m.priceMin || p.Price.Value > m.priceMax {
		return false
	}
	if m.query != "" && !strings.Contains(strings.ToLower(p.Name), m.query) {
		return false
	}
	return true
}

// Match reports whether a single product satisfies every criterion.
func (c Criteria) Match(p *models.Product) bool {
	return c.matcher().match(p)
}

// Filter returns the rows of ds satisfying c, in source order.
func Filter(ds *models.Dataset, c Criteria) *View {
	return All(ds).Filter(c)
}

// Filter narrows the view to rows satisfying c, preserving order.
func (v *View) Filter(c Criteria) *View {
	m := c.matcher()
	indices := make([]int, 0, v.Len())
	for i := 0; i < v.Len(); i++ {
		if m.match(v.row(i)) {
			indices = append(indices, v.idx[i])
		}
	}
	return newView(v.ds, indices)
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	return set
}

func member(set map[string]struct{}, v string) bool {
	_, ok := set[v]
	return ok
}
