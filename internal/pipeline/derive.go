// Package pipeline holds the pure derive, filter and aggregate stages of
// the dashboard. Every function takes an immutable dataset or view and
// returns a new value; nothing here keeps state between calls.
package pipeline

import (
	"context"
	"math"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"retail-dashboard/internal/loader"
	"retail-dashboard/internal/models"
)

const (
	deriveBatchSize  = 5000
	deriveMaxWorkers = 8
)

// CoerceNumber parses a numeric cell. Anything that is not a finite number
// after trimming currency symbols and separators becomes missing. A lone
// comma is a decimal comma only with one or two digits after it; "2,823"
// could be either reading and is treated as missing.
func CoerceNumber(raw string) models.NullFloat {
	s := strings.TrimSpace(raw)
	s = strings.Trim(s, "€$£ ")
	if s == "" {
		return models.NullFloat{}
	}

	switch {
	case strings.Contains(s, ",") && strings.Contains(s, "."):
		s = strings.ReplaceAll(s, ",", "")
	case strings.Count(s, ",") == 1:
		if frac := len(s) - strings.IndexByte(s, ',') - 1; frac < 1 || frac > 2 {
			return models.NullFloat{}
		}
		s = strings.Replace(s, ",", ".", 1)
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return models.NullFloat{}
	}
	return models.Float(v)
}

// CoercePrice applies the price coercion policy.
func CoercePrice(raw string) models.NullFloat {
	return CoerceNumber(raw)
}

// Revenue multiplies price by sales volume; a missing operand yields a
// missing revenue.
func Revenue(price, salesVolume models.NullFloat) models.NullFloat {
	if !price.Valid || !salesVolume.Valid {
		return models.NullFloat{}
	}
	return models.Float(price.Value * salesVolume.Value)
}

// Derive builds the record store from a schema-checked table. Malformed
// numeric cells never fail the load; the only error is ctx cancellation.
func Derive(ctx context.Context, source models.SourceID, table *loader.Table) (*models.Dataset, error) {
	cols := struct{ name, section, position, promotion, seasonal, price, sales int }{
		name:      table.Index(string(models.FieldName)),
		section:   table.Index(string(models.FieldSection)),
		position:  table.Index(string(models.FieldPosition)),
		promotion: table.Index(string(models.FieldPromotion)),
		seasonal:  table.Index(string(models.FieldSeasonal)),
		price:     table.Index(string(models.FieldPrice)),
		sales:     table.Index(string(models.FieldSalesVolume)),
	}

	extraCols := table.ExtraColumns()
	extraIdx := table.ExtraIndices()

	products := make([]models.Product, len(table.Rows))

	var g errgroup.Group
	g.SetLimit(deriveMaxWorkers)

	for start := 0; start < len(table.Rows); start += deriveBatchSize {
		end := min(start+deriveBatchSize, len(table.Rows))
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			for i := start; i < end; i++ {
				row := table.Rows[i]
				price := CoercePrice(row[cols.price])
				sales := CoerceNumber(row[cols.sales])

				var extra []string
				if len(extraIdx) > 0 {
					extra = make([]string, len(extraIdx))
					for j, idx := range extraIdx {
						extra[j] = row[idx]
					}
				}

				products[i] = models.Product{
					Name:        strings.TrimSpace(row[cols.name]),
					Section:     strings.TrimSpace(row[cols.section]),
					Position:    strings.TrimSpace(row[cols.position]),
					Promotion:   strings.TrimSpace(row[cols.promotion]),
					Seasonal:    strings.TrimSpace(row[cols.seasonal]),
					Price:       price,
					SalesVolume: sales,
					Revenue:     Revenue(price, sales),
					Extra:       extra,
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return models.NewDataset(source, extraCols, products), nil
}

// MissingCount reports how many rows lack a value for a numeric field.
func MissingCount(ds *models.Dataset, field models.Field) int {
	n := 0
	for i := 0; i < ds.Len(); i++ {
		if !ds.Row(i).Numeric(field).Valid {
			n++
		}
	}
	return n
}
