// Package loader reads product spreadsheets (.xlsx or .csv) into a raw
// string table and enforces the required column schema.
package loader

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/xuri/excelize/v2"
)

// DefaultSheet is the workbook sheet holding the product records.
const DefaultSheet = "raw_zara"

var RequiredColumns = []string{
	"name",
	"section",
	"product_position",
	"promotion",
	"seasonal",
	"price",
	"sales_volume",
}

var (
	ErrMissingColumns    = errors.New("missing required columns")
	ErrEmptySource       = errors.New("source has no header row")
	ErrUnsupportedFormat = errors.New("unsupported source format")
	ErrRaggedRow         = errors.New("row is wider than the header")
)

type Options struct {
	// Sheet selects the workbook sheet. When empty or absent from the
	// workbook, DefaultSheet and then the first sheet are tried.
	Sheet string
}

// Table is a header-normalised, schema-checked view of the source rows.
// Every row has exactly len(Columns) cells.
type Table struct {
	Columns []string
	Rows    [][]string
	index   map[string]int
	extra   []int
}

// Index returns the position of a normalised column name, or -1.
func (t *Table) Index(column string) int {
	if i, ok := t.index[column]; ok {
		return i
	}
	return -1
}

// ExtraColumns lists the non-required columns in source order. Repeated
// headers are listed once per occurrence.
func (t *Table) ExtraColumns() []string {
	if len(t.extra) == 0 {
		return nil
	}
	names := make([]string, len(t.extra))
	for i, idx := range t.extra {
		names[i] = t.Columns[idx]
	}
	return names
}

// ExtraIndices returns the cell positions of ExtraColumns, pairwise.
func (t *Table) ExtraIndices() []int {
	return slices.Clone(t.extra)
}

func Load(ctx context.Context, path string, opts Options) (*Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		f, err := excelize.OpenFile(path)
		if err != nil {
			return nil, fmt.Errorf("open workbook: %w", err)
		}
		defer f.Close()
		return readWorkbook(ctx, f, opts.Sheet)
	case ".csv":
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open file: %w", err)
		}
		defer file.Close()
		return ReadCSV(ctx, file)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

func ReadXLSX(ctx context.Context, r io.Reader, sheet string) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()
	return readWorkbook(ctx, f, sheet)
}

func readWorkbook(ctx context.Context, f *excelize.File, sheet string) (*Table, error) {
	name := pickSheet(f.GetSheetList(), sheet)
	if name == "" {
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrEmptySource)
	}

	rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", name, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrEmptySource
	}
	return newTable(rows[0], rows[1:])
}

func pickSheet(sheets []string, want string) string {
	for _, candidate := range []string{want, DefaultSheet} {
		if candidate != "" && slices.Contains(sheets, candidate) {
			return candidate
		}
	}
	if len(sheets) > 0 {
		return sheets[0]
	}
	return ""
}

func ReadCSV(ctx context.Context, r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, ErrEmptySource
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	var rows [][]string
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", len(rows)+2, err)
		}
		rows = append(rows, record)
	}
	return newTable(header, rows)
}

func newTable(header []string, rows [][]string) (*Table, error) {
	columns := make([]string, len(header))
	index := make(map[string]int, len(header))
	var extra []int
	for i, h := range header {
		c := NormalizeColumn(h)
		columns[i] = c
		if _, dup := index[c]; !dup {
			index[c] = i
		}
		if !slices.Contains(RequiredColumns, c) {
			extra = append(extra, i)
		}
	}

	var missing []string
	for _, req := range RequiredColumns {
		if _, ok := index[req]; !ok {
			missing = append(missing, req)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	table := &Table{Columns: columns, index: index, extra: extra, Rows: make([][]string, 0, len(rows))}
	for i, row := range rows {
		if isBlank(row) {
			continue
		}
		if len(row) > len(columns) && !isBlank(row[len(columns):]) {
			return nil, fmt.Errorf("%w: row %d has %d cells, header has %d", ErrRaggedRow, i+2, len(row), len(columns))
		}
		cells := make([]string, len(columns))
		copy(cells, row)
		table.Rows = append(table.Rows, cells)
	}
	return table, nil
}

// NormalizeColumn maps a source header such as "Product Position" to its
// canonical name "product_position".
func NormalizeColumn(h string) string {
	h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	return strings.Join(strings.FieldsFunc(h, func(r rune) bool {
		return r == ' ' || r == '-' || r == '_' || r == '\t'
	}), "_")
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
