package pipeline

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"retail-dashboard/internal/models"
)

// values collects the present values of a numeric field. Non-numeric
// fields have no present values.
func values(v *View, field models.Field) []float64 {
	out := make([]float64, 0, v.Len())
	for i := 0; i < v.Len(); i++ {
		if n := v.row(i).Numeric(field); n.Valid {
			out = append(out, n.Value)
		}
	}
	return out
}

// Sum ignores missing values. It is missing when no value is present.
func Sum(v *View, field models.Field) models.NullFloat {
	vals := values(v, field)
	if len(vals) == 0 {
		return models.NullFloat{}
	}
	return models.Float(floats.Sum(vals))
}

func Mean(v *View, field models.Field) models.NullFloat {
	return mean(values(v, field))
}

func Median(v *View, field models.Field) models.NullFloat {
	vals := values(v, field)
	slices.Sort(vals)
	return quantile(vals, 0.5)
}

func Min(v *View, field models.Field) models.NullFloat {
	vals := values(v, field)
	if len(vals) == 0 {
		return models.NullFloat{}
	}
	return models.Float(floats.Min(vals))
}

func Max(v *View, field models.Field) models.NullFloat {
	vals := values(v, field)
	if len(vals) == 0 {
		return models.NullFloat{}
	}
	return models.Float(floats.Max(vals))
}

// Describe summarises a numeric field the way a descriptive statistics
// table does: sample standard deviation and linearly interpolated
// quartiles.
func Describe(v *View, field models.Field) models.Stats {
	vals := values(v, field)
	slices.Sort(vals)

	s := models.Stats{
		Count: len(vals),
		Mean:  mean(vals),
		Std:   stddev(vals),
		P25:   quantile(vals, 0.25),
		P50:   quantile(vals, 0.5),
		P75:   quantile(vals, 0.75),
	}
	if len(vals) > 0 {
		s.Min = models.Float(vals[0])
		s.Max = models.Float(vals[len(vals)-1])
	}
	return s
}

// Ratio divides part by whole. It is missing when either side is missing
// or whole is zero.
func Ratio(part, whole models.NullFloat) models.NullFloat {
	if !part.Valid || !whole.Valid || whole.Value == 0 {
		return models.NullFloat{}
	}
	return models.Float(part.Value / whole.Value)
}

// Share is Ratio expressed as a percentage.
func Share(part, whole models.NullFloat) models.NullFloat {
	r := Ratio(part, whole)
	if r.Valid {
		r.Value *= 100
	}
	return r
}

// Delta is a - b, missing when either side is missing.
func Delta(a, b models.NullFloat) models.NullFloat {
	if !a.Valid || !b.Valid {
		return models.NullFloat{}
	}
	return models.Float(a.Value - b.Value)
}

func mean(vals []float64) models.NullFloat {
	if len(vals) == 0 {
		return models.NullFloat{}
	}
	return models.Float(stat.Mean(vals, nil))
}

// stddev is the unbiased sample deviation, undefined below two values.
func stddev(vals []float64) models.NullFloat {
	if len(vals) < 2 {
		return models.NullFloat{}
	}
	return models.Float(stat.StdDev(vals, nil))
}

// quantile interpolates linearly between closest ranks, matching the
// usual dataframe describe() output. stat.Quantile has no such kind.
// It expects sorted input.
func quantile(sorted []float64, q float64) models.NullFloat {
	if len(sorted) == 0 {
		return models.NullFloat{}
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return models.Float(sorted[lo])
	}
	frac := pos - float64(lo)
	return models.Float(sorted[lo] + (sorted[hi]-sorted[lo])*frac)
}
