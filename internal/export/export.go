// Package export writes a filtered view back out as a flat table.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"retail-dashboard/internal/models"
	"retail-dashboard/internal/pipeline"
)

const SheetName = "products"

// Columns is the header written for v: the named fields, the derived
// revenue, then any extra source columns in their original order.
func Columns(v *pipeline.View) []string {
	cols := []string{
		string(models.FieldName),
		string(models.FieldSection),
		string(models.FieldPosition),
		string(models.FieldPromotion),
		string(models.FieldSeasonal),
		string(models.FieldPrice),
		string(models.FieldSalesVolume),
		string(models.FieldRevenue),
	}
	return append(cols, v.Dataset().ExtraColumns()...)
}

func record(p *models.Product, extra int) []string {
	rec := []string{
		p.Name, p.Section, p.Position, p.Promotion, p.Seasonal,
		number(p.Price), number(p.SalesVolume), number(p.Revenue),
	}
	for i := 0; i < extra; i++ {
		if i < len(p.Extra) {
			rec = append(rec, p.Extra[i])
		} else {
			rec = append(rec, "")
		}
	}
	return rec
}

// number renders a missing value as an empty cell.
func number(n models.NullFloat) string {
	if !n.Valid {
		return ""
	}
	return strconv.FormatFloat(n.Value, 'f', -1, 64)
}

// WriteCSV writes the header and every row of v to w.
func WriteCSV(w io.Writer, v *pipeline.View) error {
	cols := Columns(v)
	extra := len(v.Dataset().ExtraColumns())

	cw := csv.NewWriter(w)
	if err := cw.Write(cols); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i := 0; i < v.Len(); i++ {
		p := v.At(i)
		if err := cw.Write(record(&p, extra)); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes v as a single-sheet workbook. Numeric fields are
// stored as numbers and missing values as empty cells.
func WriteXLSX(w io.Writer, v *pipeline.View) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}

	cols := Columns(v)
	header := make([]any, len(cols))
	for i, c := range cols {
		header[i] = c
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	extra := len(v.Dataset().ExtraColumns())
	for i := 0; i < v.Len(); i++ {
		p := v.At(i)
		row := []any{
			p.Name, p.Section, p.Position, p.Promotion, p.Seasonal,
			cell(p.Price), cell(p.SalesVolume), cell(p.Revenue),
		}
		for j := 0; j < extra; j++ {
			if j < len(p.Extra) {
				row = append(row, p.Extra[j])
			} else {
				row = append(row, nil)
			}
		}

		addr, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SheetName, addr, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func cell(n models.NullFloat) any {
	if !n.Valid {
		return nil
	}
	return n.Value
}
