// Package history buckets a device's readings into hourly, daily or
// monthly means for the device-history endpoint.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ANIKETSHETTY47/smart-garden-monitoring-system/internal/domain"
)

var (
	ErrInvalidGranularity = errors.New("invalid group_by value")
	ErrInvalidValue       = errors.New("reading value is not numeric")
)

type Granularity string

const (
	Hour  Granularity = "hour"
	Day   Granularity = "day"
	Month Granularity = "month"
)

func ParseGranularity(s string) (Granularity, error) {
	switch g := Granularity(strings.ToLower(strings.TrimSpace(s))); g {
	case Hour, Day, Month:
		return g, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidGranularity, s)
}

// Range is an inclusive time window.
type Range struct {
	Start time.Time
	End   time.Time
}

const lastMicrosecond = 999999 * int(time.Microsecond)

// SelectRange returns the window covering ref's day (Hour), month (Day) or
// year (Month), in ref's location.
func SelectRange(g Granularity, ref time.Time) (Range, error) {
	loc := ref.Location()
	y, m, d := ref.Date()

	switch g {
	case Hour:
		return Range{
			Start: time.Date(y, m, d, 0, 0, 0, 0, loc),
			End:   time.Date(y, m, d, 23, 59, 59, lastMicrosecond, loc),
		}, nil
	case Day:
		return Range{
			Start: time.Date(y, m, 1, 0, 0, 0, 0, loc),
			End:   time.Date(y, m, DaysIn(y, m), 23, 59, 59, lastMicrosecond, loc),
		}, nil
	case Month:
		return Range{
			Start: time.Date(y, time.January, 1, 0, 0, 0, 0, loc),
			End:   time.Date(y, time.December, 31, 23, 59, 59, lastMicrosecond, loc),
		}, nil
	}
	return Range{}, fmt.Errorf("%w: %q", ErrInvalidGranularity, string(g))
}

// DaysIn returns the number of days in the given month.
func DaysIn(year int, month time.Month) int {
	// Day 0 of the next month normalises to the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Bucket is one aggregation slot. Empty buckets encode their value as the
// string "0.0" while filled buckets encode a JSON number; clients depend on
// that asymmetry.
type Bucket struct {
	Label string
	Mean  decimal.Decimal
	Empty bool
}

type bucketJSON struct {
	Timestamp string `json:"timestamp"`
	Value     any    `json:"value"`
}

func (b Bucket) MarshalJSON() ([]byte, error) {
	out := bucketJSON{Timestamp: b.Label, Value: "0.0"}
	if !b.Empty {
		out.Value = json.Number(b.Mean.String())
	}
	return json.Marshal(out)
}

// Result is the device-history response body.
type Result struct {
	TimeUnit  string   `json:"time_unit"`
	ValueUnit string   `json:"value_unit"`
	Values    []Bucket `json:"values"`
}

// Exponents beyond float64 range would make sums rescale into huge integers.
const maxExponent = 308

// ParseValue reads a stored reading value as a decimal. Values whose
// exponent lies outside ±308 are rejected.
func ParseValue(raw string) (decimal.Decimal, error) {
	v, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %q", ErrInvalidValue, raw)
	}
	if exp := v.Exponent(); exp > maxExponent || exp < -maxExponent {
		return decimal.Decimal{}, fmt.Errorf("%w: %q is out of range", ErrInvalidValue, raw)
	}
	return v, nil
}

type keyDomain struct {
	first, last int
	key         func(time.Time) int
	label       func(int) string
}

func domainFor(g Granularity, ref time.Time) (keyDomain, error) {
	bare := strconv.Itoa
	switch g {
	case Hour:
		return keyDomain{
			first: 0, last: 23,
			key:   func(t time.Time) int { return t.Hour() },
			label: func(k int) string { return strconv.Itoa(k) + ":00" },
		}, nil
	case Day:
		return keyDomain{
			first: 1, last: DaysIn(ref.Year(), ref.Month()),
			key:   func(t time.Time) int { return t.Day() },
			label: bare,
		}, nil
	case Month:
		return keyDomain{
			first: 1, last: 12,
			key:   func(t time.Time) int { return int(t.Month()) },
			label: bare,
		}, nil
	}
	return keyDomain{}, fmt.Errorf("%w: %q", ErrInvalidGranularity, string(g))
}

type accumulator struct {
	sum   decimal.Decimal
	count int64
}

// Aggregate groups readings by the key of g (taken in ref's location) and
// returns one bucket per key of the full domain in ascending order. Means
// are rounded half away from zero to two decimals.
func Aggregate(readings []domain.Reading, g Granularity, ref time.Time) ([]Bucket, error) {
	dom, err := domainFor(g, ref)
	if err != nil {
		return nil, err
	}

	loc := ref.Location()
	groups := make(map[int]*accumulator)
	for _, r := range readings {
		v, err := ParseValue(r.Value)
		if err != nil {
			return nil, fmt.Errorf("reading %d: %w", r.ID, err)
		}
		k := dom.key(r.Timestamp.In(loc))
		acc, ok := groups[k]
		if !ok {
			acc = &accumulator{}
			groups[k] = acc
		}
		acc.sum = acc.sum.Add(v)
		acc.count++
	}

	buckets := make([]Bucket, 0, dom.last-dom.first+1)
	for k := dom.first; k <= dom.last; k++ {
		b := Bucket{Label: dom.label(k)}
		if acc, ok := groups[k]; ok {
			b.Mean = acc.sum.Div(decimal.NewFromInt(acc.count)).Round(2)
		} else {
			b.Empty = true
		}
		buckets = append(buckets, b)
	}
	return buckets, nil
}

// Build aggregates readings into the device-history response.
func Build(g Granularity, ref time.Time, unit string, readings []domain.Reading) (Result, error) {
	values, err := Aggregate(readings, g, ref)
	if err != nil {
		return Result{}, err
	}
	return Result{TimeUnit: string(g), ValueUnit: unit, Values: values}, nil
}
