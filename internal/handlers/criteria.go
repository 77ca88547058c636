package handlers

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	apperr "retail-dashboard/internal/errors"
	"retail-dashboard/internal/pipeline"
)

// Query parameters carrying filter criteria. The categorical ones are
// repeatable; an absent parameter selects the full domain while a present
// but empty one selects nothing.
const (
	paramSection   = "section"
	paramPosition  = "position"
	paramPromotion = "promotion"
	paramSeasonal  = "seasonal"
	paramPriceMin  = "price_min"
	paramPriceMax  = "price_max"
	paramQuery     = "q"
)

// ParseCriteria overlays the criteria in q onto defaults.
func ParseCriteria(q url.Values, defaults pipeline.Criteria) (pipeline.Criteria, error) {
	c := defaults
	c.Sections = setParam(q, paramSection, defaults.Sections)
	c.Positions = setParam(q, paramPosition, defaults.Positions)
	c.Promotions = setParam(q, paramPromotion, defaults.Promotions)
	c.Seasonal = setParam(q, paramSeasonal, defaults.Seasonal)
	c.NameQuery = strings.TrimSpace(q.Get(paramQuery))

	var err error
	if c.PriceMin, err = floatParam(q, paramPriceMin, defaults.PriceMin); err != nil {
		return pipeline.Criteria{}, err
	}
	if c.PriceMax, err = floatParam(q, paramPriceMax, defaults.PriceMax); err != nil {
		return pipeline.Criteria{}, err
	}
	return c, nil
}

// EncodeCriteria is the inverse of ParseCriteria.
func EncodeCriteria(c pipeline.Criteria) url.Values {
	q := url.Values{}
	encodeSet(q, paramSection, c.Sections)
	encodeSet(q, paramPosition, c.Positions)
	encodeSet(q, paramPromotion, c.Promotions)
	encodeSet(q, paramSeasonal, c.Seasonal)
	q.Set(paramPriceMin, strconv.FormatFloat(c.PriceMin, 'f', -1, 64))
	q.Set(paramPriceMax, strconv.FormatFloat(c.PriceMax, 'f', -1, 64))
	if c.NameQuery != "" {
		q.Set(paramQuery, c.NameQuery)
	}
	return q
}

func setParam(q url.Values, key string, fallback []string) []string {
	values, ok := q[key]
	if !ok {
		return fallback
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func encodeSet(q url.Values, key string, values []string) {
	if len(values) == 0 {
		q.Set(key, "")
		return
	}
	q[key] = append([]string(nil), values...)
}

func floatParam(q url.Values, key string, fallback float64) (float64, error) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, apperr.InvalidParam(key, fmt.Sprintf("%s must be a finite number, got %q", key, raw))
	}
	return v, nil
}

func intParam(q url.Values, key string, fallback, lo, hi int) (int, error) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < lo || v > hi {
		return 0, apperr.InvalidParam(key, fmt.Sprintf("%s must be an integer between %d and %d, got %q", key, lo, hi, raw))
	}
	return v, nil
}

// FilterSignals are the datastar signals bound to the filter widgets. A
// nil slice means the signal was not sent.
type FilterSignals struct {
	Sections   []string    `json:"sections"`
	Positions  []string    `json:"positions"`
	Promotions []string    `json:"promotions"`
	Seasonal   []string    `json:"seasonal"`
	PriceMin   signalFloat `json:"priceMin"`
	PriceMax   signalFloat `json:"priceMax"`
	Query      string      `json:"q"`
}

func SignalsFromCriteria(c pipeline.Criteria) FilterSignals {
	return FilterSignals{
		Sections:   nonNil(c.Sections),
		Positions:  nonNil(c.Positions),
		Promotions: nonNil(c.Promotions),
		Seasonal:   nonNil(c.Seasonal),
		PriceMin:   signalFloat{value: c.PriceMin, set: true},
		PriceMax:   signalFloat{value: c.PriceMax, set: true},
		Query:      c.NameQuery,
	}
}

// Criteria overlays the signals onto defaults.
func (s FilterSignals) Criteria(defaults pipeline.Criteria) pipeline.Criteria {
	c := defaults
	if s.Sections != nil {
		c.Sections = s.Sections
	}
	if s.Positions != nil {
		c.Positions = s.Positions
	}
	if s.Promotions != nil {
		c.Promotions = s.Promotions
	}
	if s.Seasonal != nil {
		c.Seasonal = s.Seasonal
	}
	if s.PriceMin.set {
		c.PriceMin = s.PriceMin.value
	}
	if s.PriceMax.set {
		c.PriceMax = s.PriceMax.value
	}
	c.NameQuery = strings.TrimSpace(s.Query)
	return c
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// signalFloat accepts a JSON number, a numeric string or an empty value.
// Cleared number inputs arrive as "" and fall back to the default.
type signalFloat struct {
	value float64
	set   bool
}

func (f signalFloat) MarshalJSON() ([]byte, error) {
	if !f.set {
		return []byte("null"), nil
	}
	return json.Marshal(f.value)
}

func (f *signalFloat) UnmarshalJSON(data []byte) error {
	*f = signalFloat{}
	raw := strings.TrimSpace(strings.Trim(strings.TrimSpace(string(data)), `"`))
	if raw == "" || raw == "null" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("not a finite number: %s", data)
	}
	*f = signalFloat{value: v, set: true}
	return nil
}
