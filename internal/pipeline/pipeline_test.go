package pipeline

import (
	"context"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retail-dashboard/internal/loader"
	"retail-dashboard/internal/models"
)

const header = "name,section,Product Position,Promotion,Seasonal,price,Sales Volume"

func dataset(t *testing.T, rows ...string) *models.Dataset {
	t.Helper()
	src := header + "\n" + strings.Join(rows, "\n")
	table, err := loader.ReadCSV(context.Background(), strings.NewReader(src))
	require.NoError(t, err)

	ds, err := Derive(context.Background(), models.SourceID{Path: "test.csv", ModTime: time.Unix(0, 0)}, table)
	require.NoError(t, err)
	return ds
}

// catalogue is a complete dataset with no missing prices.
func catalogue(t *testing.T) *models.Dataset {
	return dataset(t,
		"BASIC PUFFER JACKET,MAN,Aisle,Yes,No,19.99,2823",
		"TUXEDO JACKET,MAN,End-cap,No,Yes,89.95,654",
		"SLIM FIT SHIRT,MAN,Front of Store,No,No,29.95,2220",
		"FLORAL DRESS,WOMAN,Aisle,Yes,Yes,39.95,1500",
		"WOOL COAT,WOMAN,End-cap,No,No,129,410",
		"LINEN TROUSERS,WOMAN,Front of Store,Yes,No,35.95,1780",
		"LEATHER BOOTS,WOMAN,Aisle,No,Yes,69.95,980",
		"BASIC TEE,MAN,Aisle,Yes,No,9.99,3100",
	)
}

func names(v *View) []string {
	out := make([]string, v.Len())
	for i := range out {
		out[i] = v.At(i).Name
	}
	return out
}

func TestCoerceNumber(t *testing.T) {
	tests := []struct {
		in    string
		want  float64
		valid bool
	}{
		{"19.99", 19.99, true},
		{" 12 ", 12, true},
		{"12,5", 12.5, true},
		{"0,99", 0.99, true},
		{"2,823", 0, false},
		{"1,234", 0, false},
		{"12,", 0, false},
		{"1,299.00", 1299, true},
		{"€ 49.95", 49.95, true},
		{"29.95$", 29.95, true},
		{"", 0, false},
		{"n/a", 0, false},
		{"NaN", 0, false},
		{"Inf", 0, false},
		{"12.5.3", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := CoerceNumber(tt.in)
			assert.Equal(t, tt.valid, got.Valid)
			if tt.valid {
				assert.InDelta(t, tt.want, got.Value, 1e-9)
			}
		})
	}
}

func TestDerive_RevenueAndMissingPropagation(t *testing.T) {
	ds := dataset(t,
		"A,MAN,Aisle,No,No,10,2",
		"B,MAN,Aisle,No,No,oops,5",
		"C,WOMAN,Aisle,No,No,20,",
		`D,MAN,Aisle,No,No,19.99,"2,823"`,
	)
	require.Equal(t, 4, ds.Len())

	a, b, c, d := ds.At(0), ds.At(1), ds.At(2), ds.At(3)
	assert.Equal(t, models.Float(20), a.Revenue)
	assert.False(t, b.Price.Valid, "malformed price is kept as missing")
	assert.False(t, b.Revenue.Valid)
	assert.True(t, b.SalesVolume.Valid)
	assert.False(t, c.SalesVolume.Valid)
	assert.False(t, c.Revenue.Valid)
	assert.False(t, d.SalesVolume.Valid, "ambiguous thousands separator is missing")
	assert.False(t, d.Revenue.Valid)

	assert.Equal(t, 1, MissingCount(ds, models.FieldPrice))
	assert.Equal(t, 2, MissingCount(ds, models.FieldSalesVolume))
	assert.Equal(t, 3, MissingCount(ds, models.FieldRevenue))
}

func TestDerive_KeepsExtraColumns(t *testing.T) {
	src := "Product ID,name,section,product_position,promotion,seasonal,price,sales_volume,brand\n" +
		"185102,A,MAN,Aisle,No,No,10,2,Zara\n"
	table, err := loader.ReadCSV(context.Background(), strings.NewReader(src))
	require.NoError(t, err)

	ds, err := Derive(context.Background(), models.SourceID{}, table)
	require.NoError(t, err)

	assert.Equal(t, []string{"product_id", "brand"}, ds.ExtraColumns())
	assert.Equal(t, []string{"185102", "Zara"}, ds.At(0).Extra)
}

func TestDerive_RepeatedExtraHeaders(t *testing.T) {
	src := "name,section,product_position,promotion,seasonal,price,sales_volume,note,note\n" +
		"A,MAN,Aisle,No,No,10,2,first,second\n"
	table, err := loader.ReadCSV(context.Background(), strings.NewReader(src))
	require.NoError(t, err)

	ds, err := Derive(context.Background(), models.SourceID{}, table)
	require.NoError(t, err)

	assert.Equal(t, []string{"note", "note"}, ds.ExtraColumns())
	assert.Equal(t, []string{"first", "second"}, ds.At(0).Extra)
}

func TestDerive_HonoursCancellation(t *testing.T) {
	table, err := loader.ReadCSV(context.Background(), strings.NewReader(header+"\nA,MAN,Aisle,No,No,1,1"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Derive(ctx, models.SourceID{}, table)
	require.ErrorIs(t, err, context.Canceled)
}

func TestWorkedExample(t *testing.T) {
	ds := dataset(t,
		"A,MAN,Aisle,No,No,10,2",
		"B,MAN,Aisle,No,No,,5",
		"C,MAN,Aisle,No,No,20,1",
	)

	assert.Equal(t, models.Float(20), ds.At(0).Revenue)
	assert.False(t, ds.At(1).Revenue.Valid)
	assert.Equal(t, models.Float(20), ds.At(2).Revenue)

	c := DefaultCriteria(ds)
	c.PriceMin, c.PriceMax = 15, 25
	assert.Equal(t, []string{"C"}, names(Filter(ds, c)))

	// Ignoring B, A and C tie at 20 and A wins on original order.
	withoutB := All(ds).Filter(Criteria{
		Sections: []string{"MAN"}, Positions: []string{"Aisle"},
		Promotions: []string{"No"}, Seasonal: []string{"No"},
		PriceMin: 0, PriceMax: 100,
	})
	top, err := TopN(withoutB, models.FieldRevenue, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, names(top))
}

func TestDefaultCriteria(t *testing.T) {
	ds := catalogue(t)
	c := DefaultCriteria(ds)

	assert.Equal(t, []string{"MAN", "WOMAN"}, c.Sections)
	assert.Equal(t, []string{"Aisle", "End-cap", "Front of Store"}, c.Positions)
	assert.Equal(t, []string{"Yes", "No"}, c.Promotions)
	assert.Equal(t, []string{"No", "Yes"}, c.Seasonal)
	assert.InDelta(t, 9.99, c.PriceMin, 1e-9)
	assert.InDelta(t, 129, c.PriceMax, 1e-9)
}

func TestFilter_FullDomainIsIdentity(t *testing.T) {
	ds := catalogue(t)
	got := Filter(ds, DefaultCriteria(ds))

	require.Equal(t, ds.Len(), got.Len())
	for i := 0; i < ds.Len(); i++ {
		assert.Equal(t, i, got.SourceIndex(i))
	}
}

func TestFilter_MissingPriceNeverMatches(t *testing.T) {
	ds := dataset(t,
		"A,MAN,Aisle,No,No,10,2",
		"B,MAN,Aisle,No,No,unknown,5",
	)
	c := DefaultCriteria(ds)
	c.PriceMin, c.PriceMax = -1e12, 1e12

	assert.Equal(t, []string{"A"}, names(Filter(ds, c)))
}

func TestFilter_EmptySetAdmitsNothing(t *testing.T) {
	ds := catalogue(t)
	c := DefaultCriteria(ds)
	c.Sections = []string{}

	got := Filter(ds, c)
	assert.Equal(t, 0, got.Len())
}

func TestFilter_BoundsAreInclusive(t *testing.T) {
	ds := catalogue(t)
	c := DefaultCriteria(ds)
	c.PriceMin, c.PriceMax = 29.95, 39.95

	assert.Equal(t, []string{"SLIM FIT SHIRT", "FLORAL DRESS", "LINEN TROUSERS"}, names(Filter(ds, c)))
}

func TestFilter_NameQuery(t *testing.T) {
	ds := catalogue(t)
	c := DefaultCriteria(ds)
	c.NameQuery = "  jacket "

	assert.Equal(t, []string{"BASIC PUFFER JACKET", "TUXEDO JACKET"}, names(Filter(ds, c)))
}

func TestFilter_DoesNotMutateSource(t *testing.T) {
	ds := catalogue(t)
	before := make([]models.Product, ds.Len())
	for i := range before {
		before[i] = ds.At(i)
	}

	c := DefaultCriteria(ds)
	c.Sections = []string{"WOMAN"}
	_ = Filter(ds, c)
	_, _ = TopN(All(ds), models.FieldPrice, 3)

	for i := range before {
		assert.Equal(t, before[i], ds.At(i))
	}
}

func randomSubset(r *rand.Rand, domain []string) []string {
	out := make([]string, 0, len(domain))
	for _, v := range domain {
		if r.IntN(3) > 0 {
			out = append(out, v)
		}
	}
	return out
}

func TestFilter_SoundAndCompleteAndIdempotent(t *testing.T) {
	ds := dataset(t,
		"BASIC PUFFER JACKET,MAN,Aisle,Yes,No,19.99,2823",
		"TUXEDO JACKET,MAN,End-cap,No,Yes,89.95,654",
		"BROKEN ROW,MAN,Aisle,No,No,#N/A,10",
		"FLORAL DRESS,WOMAN,Aisle,Yes,Yes,39.95,1500",
		"WOOL COAT,WOMAN,End-cap,No,No,129,410",
		"LINEN TROUSERS,WOMAN,Front of Store,Yes,No,35.95,1780",
		"BASIC TEE,MAN,Aisle,Yes,No,9.99,3100",
	)
	full := DefaultCriteria(ds)
	r := rand.New(rand.NewPCG(7, 11))

	for iter := 0; iter < 200; iter++ {
		c := Criteria{
			Sections:   randomSubset(r, full.Sections),
			Positions:  randomSubset(r, full.Positions),
			Promotions: randomSubset(r, full.Promotions),
			Seasonal:   randomSubset(r, full.Seasonal),
			PriceMin:   r.Float64() * 60,
		}
		c.PriceMax = c.PriceMin + r.Float64()*100

		got := Filter(ds, c)
		in := make(map[int]bool, got.Len())
		for i := 0; i < got.Len(); i++ {
			idx := got.SourceIndex(i)
			in[idx] = true
			p := ds.At(idx)
			require.True(t, c.Match(&p), "row %d in result must satisfy criteria", idx)
			if i > 0 {
				require.Greater(t, idx, got.SourceIndex(i-1), "order is preserved")
			}
		}
		for idx := 0; idx < ds.Len(); idx++ {
			if !in[idx] {
				p := ds.At(idx)
				require.False(t, c.Match(&p), "row %d outside result must fail a criterion", idx)
			}
		}

		again := got.Filter(c)
		require.Equal(t, got.Indices(), again.Indices())
	}
}

func TestGroupSum(t *testing.T) {
	ds := catalogue(t)
	c := DefaultCriteria(ds)
	c.Positions = []string{"Aisle", "End-cap"}
	v := Filter(ds, c)

	byPosition, err := GroupSum(v, models.FieldSalesVolume, models.FieldPosition)
	require.NoError(t, err)
	require.Len(t, byPosition, 2, "filtered-out categories do not appear")
	assert.Equal(t, []string{"Aisle"}, byPosition[0].Keys)
	assert.Equal(t, models.Float(2823+1500+980+3100), byPosition[0].Sum)
	assert.Equal(t, 4, byPosition[0].Count)
	assert.Equal(t, []string{"End-cap"}, byPosition[1].Keys)

	bySectionPosition, err := GroupSum(v, models.FieldRevenue, models.FieldSection, models.FieldPosition)
	require.NoError(t, err)
	assert.Len(t, bySectionPosition, 4)
	assert.Equal(t, []string{"MAN", "Aisle"}, bySectionPosition[0].Keys)
}

func TestGroupSum_TotalsMatchScalarSum(t *testing.T) {
	ds := dataset(t,
		"A,MAN,Aisle,No,No,10,2",
		"B,MAN,End-cap,No,No,bad,5",
		"C,WOMAN,Aisle,No,No,20,1",
		"D,WOMAN,Aisle,Yes,No,7.5,4",
	)
	v := All(ds)

	for _, field := range models.NumericFields {
		groups, err := GroupSum(v, field, models.FieldSection, models.FieldPosition)
		require.NoError(t, err)

		var total float64
		for _, g := range groups {
			if g.Sum.Valid {
				total += g.Sum.Value
			}
		}
		assert.InDelta(t, Sum(v, field).Value, total, 1e-9, "field %s", field)
	}
}

func TestGroupSum_AllMissingGroupIsMissing(t *testing.T) {
	ds := dataset(t,
		"A,MAN,Aisle,No,No,10,2",
		"B,WOMAN,Aisle,No,No,bad,5",
	)
	groups, err := GroupSum(All(ds), models.FieldRevenue, models.FieldSection)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.True(t, groups[0].Sum.Valid)
	assert.False(t, groups[1].Sum.Valid)
	assert.Equal(t, 1, groups[1].Count)
}

func TestGroupSum_RejectsBadFields(t *testing.T) {
	v := All(catalogue(t))

	_, err := GroupSum(v, models.FieldSection, models.FieldPosition)
	assert.ErrorIs(t, err, ErrInvalidField)
	_, err = GroupSum(v, models.FieldRevenue, models.FieldPrice)
	assert.ErrorIs(t, err, ErrInvalidField)
	_, err = GroupSum(v, models.FieldRevenue)
	assert.ErrorIs(t, err, ErrInvalidField)
	_, err = GroupSum(v, models.FieldRevenue, models.FieldSection, models.FieldPosition, models.FieldSeasonal)
	assert.ErrorIs(t, err, ErrInvalidField)
}

func TestValueCounts(t *testing.T) {
	ds := catalogue(t)

	counts, err := ValueCounts(All(ds), models.FieldPosition)
	require.NoError(t, err)
	assert.Equal(t, []models.ValueCount{
		{Value: "Aisle", Count: 4},
		{Value: "End-cap", Count: 2},
		{Value: "Front of Store", Count: 2},
	}, counts)
}

func TestValueCounts_EmptyView(t *testing.T) {
	ds := catalogue(t)
	c := DefaultCriteria(ds)
	c.PriceMin, c.PriceMax = 1000, 2000

	counts, err := ValueCounts(Filter(ds, c), models.FieldSection)
	require.NoError(t, err)
	assert.NotNil(t, counts)
	assert.Empty(t, counts)
}

func TestTopN_MissingSortLast(t *testing.T) {
	ds := dataset(t,
		"A,MAN,Aisle,No,No,10,2",
		"B,MAN,Aisle,No,No,,5",
		"C,MAN,Aisle,No,No,20,1",
		"D,MAN,Aisle,No,No,5,10",
		"E,MAN,Aisle,No,No,x,1",
	)
	v := All(ds)

	top, err := TopN(v, models.FieldRevenue, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"D", "A", "C", "B", "E"}, names(top))

	top2, err := TopN(v, models.FieldRevenue, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"D", "A"}, names(top2))

	none, err := TopN(v, models.FieldRevenue, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, none.Len())

	_, err = TopN(v, models.FieldName, 3)
	assert.ErrorIs(t, err, ErrInvalidField)
}

func TestReductions(t *testing.T) {
	ds := dataset(t,
		"A,MAN,Aisle,No,No,1,1",
		"B,MAN,Aisle,No,No,2,1",
		"C,MAN,Aisle,No,No,bad,1",
		"D,MAN,Aisle,No,No,3,1",
		"E,MAN,Aisle,No,No,4,1",
	)
	v := All(ds)

	assert.Equal(t, models.Float(10), Sum(v, models.FieldPrice))
	assert.Equal(t, models.Float(2.5), Mean(v, models.FieldPrice))
	assert.Equal(t, models.Float(2.5), Median(v, models.FieldPrice))
	assert.Equal(t, models.Float(1), Min(v, models.FieldPrice))
	assert.Equal(t, models.Float(4), Max(v, models.FieldPrice))

	s := Describe(v, models.FieldPrice)
	assert.Equal(t, 4, s.Count)
	assert.InDelta(t, 1.2909944, s.Std.Value, 1e-6)
	assert.InDelta(t, 1.75, s.P25.Value, 1e-9)
	assert.InDelta(t, 2.5, s.P50.Value, 1e-9)
	assert.InDelta(t, 3.25, s.P75.Value, 1e-9)
}

func TestDescribe_SingleValue(t *testing.T) {
	s := Describe(All(dataset(t, "A,MAN,Aisle,No,No,7.5,1")), models.FieldPrice)

	assert.Equal(t, 1, s.Count)
	assert.Equal(t, models.Float(7.5), s.Mean)
	assert.False(t, s.Std.Valid, "sample deviation needs two values")
	assert.Equal(t, models.Float(7.5), s.P25)
	assert.Equal(t, models.Float(7.5), s.Max)
}

func TestReductions_UndefinedWhenAllMissing(t *testing.T) {
	ds := dataset(t, "A,MAN,Aisle,No,No,bad,1", "B,MAN,Aisle,No,No,,2")
	v := All(ds)

	for name, got := range map[string]models.NullFloat{
		"sum":    Sum(v, models.FieldPrice),
		"mean":   Mean(v, models.FieldPrice),
		"median": Median(v, models.FieldPrice),
		"min":    Min(v, models.FieldPrice),
		"max":    Max(v, models.FieldPrice),
	} {
		assert.False(t, got.Valid, name)
	}

	s := Describe(v, models.FieldPrice)
	assert.Zero(t, s.Count)
	assert.False(t, s.Mean.Valid)
	assert.False(t, s.Std.Valid)
}

func TestRatio(t *testing.T) {
	assert.Equal(t, models.Float(0.25), Ratio(models.Float(1), models.Float(4)))
	assert.False(t, Ratio(models.Float(1), models.Float(0)).Valid)
	assert.False(t, Ratio(models.NullFloat{}, models.Float(4)).Valid)
	assert.False(t, Ratio(models.Float(1), models.NullFloat{}).Valid)
	assert.Equal(t, models.Float(25), Share(models.Float(1), models.Float(4)))
	assert.Equal(t, models.Float(-1.5), Delta(models.Float(1), models.Float(2.5)))
}

func TestDistinctAndCounts(t *testing.T) {
	v := All(catalogue(t))

	assert.Equal(t, 8, CountDistinct(v, models.FieldName))
	assert.Equal(t, 4, CountEqual(v, models.FieldPromotion, "yes"))
	assert.Equal(t, 3, CountEqual(v, models.FieldSeasonal, "Yes"))
}
