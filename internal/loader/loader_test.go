package loader

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const sampleCSV = `Product ID,name,section,Product Position,Promotion,Seasonal,price,Sales Volume
185102,BASIC PUFFER JACKET,MAN,Aisle,Yes,No,19.99,2823
188771,TUXEDO JACKET,MAN,End-cap,No,Yes,not-a-price,654
`

func TestNormalizeColumn(t *testing.T) {
	tests := map[string]string{
		"Product Position": "product_position",
		" Sales Volume ":   "sales_volume",
		"price":            "price",
		"\ufeffname":       "name",
		"product-category": "product_category",
		"Sales  Volume":    "sales_volume",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeColumn(in), "input %q", in)
	}
}

func TestReadCSV(t *testing.T) {
	table, err := ReadCSV(context.Background(), strings.NewReader(sampleCSV))
	require.NoError(t, err)

	require.Len(t, table.Rows, 2)
	assert.Equal(t, 1, table.Index("name"))
	assert.Equal(t, 2, table.Index("product_position"))
	assert.Equal(t, -1, table.Index("revenue"))
	assert.Equal(t, []string{"product_id"}, table.ExtraColumns())
	assert.Equal(t, "not-a-price", table.Rows[1][table.Index("price")])
}

func TestReadCSV_PadsShortRowsAndSkipsBlankLines(t *testing.T) {
	src := "name,section,product_position,promotion,seasonal,price,sales_volume\n" +
		"A,WOMAN,Aisle,No,No,10\n" +
		",,,,,,\n"
	table, err := ReadCSV(context.Background(), strings.NewReader(src))
	require.NoError(t, err)

	require.Len(t, table.Rows, 1)
	assert.Len(t, table.Rows[0], 7)
	assert.Equal(t, "", table.Rows[0][table.Index("sales_volume")])
}

func TestReadCSV_RepeatedExtraHeaders(t *testing.T) {
	src := "name,section,product_position,promotion,seasonal,price,sales_volume,note,note\n" +
		"A,WOMAN,Aisle,No,No,10,1,first,second\n"
	table, err := ReadCSV(context.Background(), strings.NewReader(src))
	require.NoError(t, err)

	assert.Equal(t, []string{"note", "note"}, table.ExtraColumns())
	assert.Equal(t, []int{7, 8}, table.ExtraIndices())
	assert.Equal(t, 7, table.Index("note"))
}

func TestReadCSV_WideRows(t *testing.T) {
	head := "name,section,product_position,promotion,seasonal,price,sales_volume\n"

	table, err := ReadCSV(context.Background(), strings.NewReader(head+"A,WOMAN,Aisle,No,No,10,1,,\n"))
	require.NoError(t, err, "trailing empty cells are ignored")
	require.Len(t, table.Rows, 1)
	assert.Len(t, table.Rows[0], 7)

	_, err = ReadCSV(context.Background(), strings.NewReader(head+"A,WOMAN,Aisle,No,No,10,1\nB,MAN,Aisle,No,No,20,2,stray\n"))
	require.ErrorIs(t, err, ErrRaggedRow)
	assert.Contains(t, err.Error(), "row 3")
}

func TestReadCSV_SchemaErrors(t *testing.T) {
	tests := []struct {
		name    string
		csv     string
		wantErr error
		mention string
	}{
		{name: "empty file", csv: "", wantErr: ErrEmptySource},
		{
			name:    "missing price and seasonal",
			csv:     "name,section,product_position,promotion,sales_volume\nA,MAN,Aisle,No,1",
			wantErr: ErrMissingColumns,
			mention: "seasonal, price",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCSV(context.Background(), strings.NewReader(tt.csv))
			require.ErrorIs(t, err, tt.wantErr)
			if tt.mention != "" {
				assert.Contains(t, err.Error(), tt.mention)
			}
		})
	}
}

func TestReadCSV_HeaderOnlyIsEmptyTable(t *testing.T) {
	table, err := ReadCSV(context.Background(), strings.NewReader(strings.Join(RequiredColumns, ",")))
	require.NoError(t, err)
	assert.Empty(t, table.Rows)
}

func workbook(t *testing.T, sheet string, rows [][]any) *bytes.Buffer {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	if sheet != "Sheet1" {
		_, err := f.NewSheet(sheet)
		require.NoError(t, err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf
}

func TestReadXLSX(t *testing.T) {
	buf := workbook(t, DefaultSheet, [][]any{
		{"name", "section", "Product Position", "Promotion", "Seasonal", "price", "Sales Volume", "brand"},
		{"BASIC PUFFER JACKET", "MAN", "Aisle", "Yes", "No", 19.99, 2823, "Zara"},
		{"TUXEDO JACKET", "WOMAN", "End-cap", "No", "Yes", "n/a", 654, "Zara"},
	})

	table, err := ReadXLSX(context.Background(), buf, "")
	require.NoError(t, err)

	require.Len(t, table.Rows, 2)
	assert.Equal(t, []string{"brand"}, table.ExtraColumns())
	assert.Equal(t, "19.99", table.Rows[0][table.Index("price")])
	assert.Equal(t, "2823", table.Rows[0][table.Index("sales_volume")])
	assert.Equal(t, "n/a", table.Rows[1][table.Index("price")])
}

func TestReadXLSX_FallsBackToFirstSheet(t *testing.T) {
	buf := workbook(t, "Sheet1", [][]any{
		anySlice(RequiredColumns),
		{"A", "MAN", "Aisle", "No", "No", 10, 1},
	})

	table, err := ReadXLSX(context.Background(), buf, "does-not-exist")
	require.NoError(t, err)
	assert.Len(t, table.Rows, 1)
}

func TestReadXLSX_MissingColumn(t *testing.T) {
	buf := workbook(t, DefaultSheet, [][]any{{"name", "section", "price"}})

	_, err := ReadXLSX(context.Background(), buf, DefaultSheet)
	require.ErrorIs(t, err, ErrMissingColumns)
}

func TestLoad_DispatchesOnExtension(t *testing.T) {
	dir := t.TempDir()

	csvPath := filepath.Join(dir, "products.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(sampleCSV), 0o644))
	table, err := Load(context.Background(), csvPath, Options{})
	require.NoError(t, err)
	assert.Len(t, table.Rows, 2)

	_, err = Load(context.Background(), filepath.Join(dir, "products.json"), Options{})
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func anySlice(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
