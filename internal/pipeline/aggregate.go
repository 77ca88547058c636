package pipeline

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"retail-dashboard/internal/models"
)

var ErrInvalidField = errors.New("invalid field")

const groupKeySep = "\x00"

// GroupSum groups the view by one or two categorical fields and sums a
// numeric field per group. Only groups present in the view are returned,
// ordered by key. Missing values are skipped; a group with no present
// value has a missing sum.
func GroupSum(v *View, value models.Field, by ...models.Field) ([]models.GroupTotal, error) {
	if !value.IsNumeric() {
		return nil, fmt.Errorf("%w: %q is not numeric", ErrInvalidField, value)
	}
	if len(by) < 1 || len(by) > 2 {
		return nil, fmt.Errorf("%w: group by takes one or two fields, got %d", ErrInvalidField, len(by))
	}
	for _, f := range by {
		if !f.IsCategorical() {
			return nil, fmt.Errorf("%w: %q is not categorical", ErrInvalidField, f)
		}
	}

	groups := make(map[string]*models.GroupTotal)
	for i := 0; i < v.Len(); i++ {
		p := v.row(i)
		keys := make([]string, len(by))
		for j, f := range by {
			keys[j] = p.Category(f)
		}
		k := strings.Join(keys, groupKeySep)

		g, ok := groups[k]
		if !ok {
			g = &models.GroupTotal{Keys: keys}
			groups[k] = g
		}
		g.Count++
		if n := p.Numeric(value); n.Valid {
			g.Sum = models.Float(g.Sum.Value + n.Value)
		}
	}

	result := make([]models.GroupTotal, 0, len(groups))
	for _, g := range groups {
		result = append(result, *g)
	}
	slices.SortFunc(result, func(a, b models.GroupTotal) int {
		return slices.Compare(a.Keys, b.Keys)
	})
	return result, nil
}

// ValueCounts counts rows per distinct value, most frequent first. Ties
// keep first-appearance order. An empty view yields an empty slice.
func ValueCounts(v *View, field models.Field) ([]models.ValueCount, error) {
	if !field.IsCategorical() {
		return nil, fmt.Errorf("%w: %q is not categorical", ErrInvalidField, field)
	}

	counts := make(map[string]int)
	order := make([]string, 0)
	for i := 0; i < v.Len(); i++ {
		val := v.row(i).Category(field)
		if _, seen := counts[val]; !seen {
			order = append(order, val)
		}
		counts[val]++
	}

	result := make([]models.ValueCount, len(order))
	for i, val := range order {
		result[i] = models.ValueCount{Value: val, Count: counts[val]}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Count > result[j].Count
	})
	return result, nil
}

// TopN returns the n rows with the largest value of field, descending.
// Ties keep view order and missing values sort last.
func TopN(v *View, field models.Field, n int) (*View, error) {
	if !field.IsNumeric() {
		return nil, fmt.Errorf("%w: %q is not numeric", ErrInvalidField, field)
	}
	if n <= 0 {
		return newView(v.ds, []int{}), nil
	}

	sorted := v.Indices()
	sort.SliceStable(sorted, func(i, j int) bool {
		a := v.ds.Row(sorted[i]).Numeric(field)
		b := v.ds.Row(sorted[j]).Numeric(field)
		if a.Valid != b.Valid {
			return a.Valid
		}
		return a.Valid && a.Value > b.Value
	})

	if n < len(sorted) {
		sorted = sorted[:n]
	}
	return newView(v.ds, sorted), nil
}

// Distinct lists categorical values in first-appearance order.
func Distinct(v *View, field models.Field) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for i := 0; i < v.Len(); i++ {
		val := v.row(i).Category(field)
		if _, ok := seen[val]; ok {
			continue
		}
		seen[val] = struct{}{}
		out = append(out, val)
	}
	return out
}

func CountDistinct(v *View, field models.Field) int {
	return len(Distinct(v, field))
}

// CountEqual counts rows whose field equals value, ignoring case.
func CountEqual(v *View, field models.Field, value string) int {
	n := 0
	for i := 0; i < v.Len(); i++ {
		if strings.EqualFold(strings.TrimSpace(v.row(i).Category(field)), value) {
			n++
		}
	}
	return n
}
