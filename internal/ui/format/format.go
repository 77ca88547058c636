// Package format renders dashboard numbers for people. Missing values
// always render as Missing.
package format

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"retail-dashboard/internal/models"
)

const (
	Missing  = "—"
	Currency = "€"
)

// Money renders n with a currency symbol, thousands separators and prec
// decimals (0 or 2).
func Money(n models.NullFloat, prec int) string {
	if !n.Valid {
		return Missing
	}
	sign := ""
	v := n.Value
	if v < 0 {
		sign, v = "-", -v
	}
	return sign + Currency + grouped(v, prec)
}

// Number renders n with thousands separators.
func Number(n models.NullFloat, prec int) string {
	if !n.Valid {
		return Missing
	}
	if n.Value < 0 {
		return "-" + grouped(-n.Value, prec)
	}
	return grouped(n.Value, prec)
}

func Count(n int) string {
	return humanize.Comma(int64(n))
}

// Percent renders a 0-100 share with one decimal.
func Percent(n models.NullFloat) string {
	if !n.Valid {
		return Missing
	}
	return fmt.Sprintf("%.1f%%", n.Value)
}

// SignedMoney renders a delta with an explicit sign.
func SignedMoney(n models.NullFloat) string {
	if !n.Valid {
		return Missing
	}
	if n.Value >= 0 {
		return "+" + Money(n, 2)
	}
	return Money(n, 2)
}

func SignedCount(n int) string {
	if n > 0 {
		return "+" + Count(n)
	}
	return Count(n)
}

func List(items []string) string {
	if len(items) == 0 {
		return Missing
	}
	return strings.Join(items, ", ")
}

func grouped(v float64, prec int) string {
	if prec <= 0 {
		return humanize.FormatFloat("#,###.", v)
	}
	return humanize.FormatFloat("#,###.##", v)
}
