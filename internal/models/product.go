package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// NullFloat is a numeric value that may be missing. Missing values are
// never coerced to zero; they marshal to JSON null.
type NullFloat struct {
	Value float64
	Valid bool
}

func Float(v float64) NullFloat {
	return NullFloat{Value: v, Valid: true}
}

func (n NullFloat) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Value)
}

func (n *NullFloat) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*n = NullFloat{}
		return nil
	}
	if err := json.Unmarshal(data, &n.Value); err != nil {
		return err
	}
	n.Valid = true
	return nil
}

// Format renders the value with the given precision, or "—" when missing.
func (n NullFloat) Format(prec int) string {
	if !n.Valid {
		return "—"
	}
	return strconv.FormatFloat(n.Value, 'f', prec, 64)
}

type Field string

const (
	FieldName        Field = "name"
	FieldSection     Field = "section"
	FieldPosition    Field = "product_position"
	FieldPromotion   Field = "promotion"
	FieldSeasonal    Field = "seasonal"
	FieldPrice       Field = "price"
	FieldSalesVolume Field = "sales_volume"
	FieldRevenue     Field = "revenue"
)

var (
	CategoricalFields = []Field{FieldName, FieldSection, FieldPosition, FieldPromotion, FieldSeasonal}
	NumericFields     = []Field{FieldPrice, FieldSalesVolume, FieldRevenue}
)

func (f Field) IsCategorical() bool {
	switch f {
	case FieldName, FieldSection, FieldPosition, FieldPromotion, FieldSeasonal:
		return true
	}
	return false
}

func (f Field) IsNumeric() bool {
	switch f {
	case FieldPrice, FieldSalesVolume, FieldRevenue:
		return true
	}
	return false
}

func ParseField(s string) (Field, error) {
	f := Field(s)
	if f.IsCategorical() || f.IsNumeric() {
		return f, nil
	}
	return "", fmt.Errorf("unknown field %q", s)
}

// Product is one derived row of the record store.
type Product struct {
	Name        string
	Section     string
	Position    string
	Promotion   string
	Seasonal    string
	Price       NullFloat
	SalesVolume NullFloat
	Revenue     NullFloat
	// Extra holds source columns beyond the required ones, aligned with
	// Dataset.ExtraColumns.
	Extra []string
}

func (p *Product) Category(f Field) string {
	switch f {
	case FieldName:
		return p.Name
	case FieldSection:
		return p.Section
	case FieldPosition:
		return p.Position
	case FieldPromotion:
		return p.Promotion
	case FieldSeasonal:
		return p.Seasonal
	}
	return ""
}

func (p *Product) Numeric(f Field) NullFloat {
	switch f {
	case FieldPrice:
		return p.Price
	case FieldSalesVolume:
		return p.SalesVolume
	case FieldRevenue:
		return p.Revenue
	}
	return NullFloat{}
}

// SourceID identifies one version of a data source.
type SourceID struct {
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

func (id SourceID) String() string {
	return fmt.Sprintf("%s@%d:%d", id.Path, id.Size, id.ModTime.UnixNano())
}

func (id SourceID) Equal(other SourceID) bool {
	return id.Path == other.Path && id.Size == other.Size && id.ModTime.Equal(other.ModTime)
}

// Dataset is the immutable record store for one source version.
type Dataset struct {
	source       SourceID
	extraColumns []string
	products     []Product
	loadedAt     time.Time
}

// NewDataset takes ownership of products; callers must not modify them
// afterwards.
func NewDataset(source SourceID, extraColumns []string, products []Product) *Dataset {
	return &Dataset{
		source:       source,
		extraColumns: extraColumns,
		products:     products,
		loadedAt:     time.Now(),
	}
}

func (d *Dataset) Len() int { return len(d.products) }

// At returns a copy of row i.
func (d *Dataset) At(i int) Product { return d.products[i] }

// Row returns a read-only pointer to row i for hot loops.
func (d *Dataset) Row(i int) *Product { return &d.products[i] }

func (d *Dataset) Source() SourceID { return d.source }

func (d *Dataset) LoadedAt() time.Time { return d.loadedAt }

func (d *Dataset) ExtraColumns() []string {
	out := make([]string, len(d.extraColumns))
	copy(out, d.extraColumns)
	return out
}
