package pipeline

import "retail-dashboard/internal/models"

// View is an ordered selection of dataset rows. It stores row indices
// only; the dataset itself is never copied or modified.
type View struct {
	ds  *models.Dataset
	idx []int
}

// All returns a view over every row of ds in source order.
func All(ds *models.Dataset) *View {
	idx := make([]int, ds.Len())
	for i := range idx {
		idx[i] = i
	}
	return &View{ds: ds, idx: idx}
}

func newView(ds *models.Dataset, idx []int) *View {
	return &View{ds: ds, idx: idx}
}

func (v *View) Len() int { return len(v.idx) }

func (v *View) Dataset() *models.Dataset { return v.ds }

// At returns a copy of the i-th row of the view.
func (v *View) At(i int) models.Product { return v.ds.At(v.idx[i]) }

func (v *View) row(i int) *models.Product { return v.ds.Row(v.idx[i]) }

// SourceIndex maps a view position to the dataset row index.
func (v *View) SourceIndex(i int) int { return v.idx[i] }

func (v *View) Indices() []int {
	out := make([]int, len(v.idx))
	copy(out, v.idx)
	return out
}

func (v *View) Rows() []models.ProductRow {
	rows := make([]models.ProductRow, v.Len())
	for i := range rows {
		rows[i] = models.NewProductRow(v.row(i))
	}
	return rows
}

// Head returns the first n rows of the view.
func (v *View) Head(n int) *View {
	if n >= v.Len() {
		return v
	}
	if n < 0 {
		n = 0
	}
	return newView(v.ds, v.idx[:n:n])
}
