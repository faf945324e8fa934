// Package num holds the exact arithmetic used for token amounts and prices.
//
// Amounts are non-negative integers carried in decimal.Decimal. Prices and
// ratios keep PricePrecision fractional digits and are truncated, never
// rounded, so every floor/ceil helper is exact.
package num

import (
	"github.com/shopspring/decimal"
)

const (
	// PricePrecision is the number of fractional digits kept by Ratio.
	PricePrecision int32 = 18

	// BpsScale is one whole in basis points.
	BpsScale = 10_000
)

var (
	Zero    = decimal.Zero
	One     = decimal.NewFromInt(1)
	Two     = decimal.NewFromInt(2)
	bps     = decimal.NewFromInt(BpsScale)
	percent = decimal.NewFromInt(100)
)

// Int builds an integer amount.
func Int(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

// Uint builds an integer amount from an unsigned value.
func Uint(v uint64) decimal.Decimal {
	return decimal.NewFromUint64(v)
}

// MustParse parses s or panics. Intended for constants and tests.
func MustParse(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Ratio returns n/d truncated to PricePrecision digits. A zero d yields zero.
func Ratio(n, d decimal.Decimal) decimal.Decimal {
	if d.IsZero() {
		return Zero
	}
	q, _ := n.QuoRem(d, PricePrecision)
	return q
}

// MulFloor returns floor(a * r).
func MulFloor(a, r decimal.Decimal) decimal.Decimal {
	return a.Mul(r).Floor()
}

// MulCeil returns ceil(a * r).
func MulCeil(a, r decimal.Decimal) decimal.Decimal {
	return a.Mul(r).Ceil()
}

// MulDivFloor returns floor(a * n / d) for non-negative operands without
// intermediate rounding. A zero d yields zero.
func MulDivFloor(a, n, d decimal.Decimal) decimal.Decimal {
	if d.IsZero() {
		return Zero
	}
	q, _ := a.Mul(n).QuoRem(d, 0)
	return q
}

// MulDivCeil returns ceil(a * n / d) for non-negative operands.
func MulDivCeil(a, n, d decimal.Decimal) decimal.Decimal {
	if d.IsZero() {
		return Zero
	}
	q, r := a.Mul(n).QuoRem(d, 0)
	if !r.IsZero() {
		q = q.Add(One)
	}
	return q
}

// FromBps converts basis points into a ratio.
func FromBps(v uint64) decimal.Decimal {
	return decimal.NewFromUint64(v).Div(bps)
}

// FromPercent converts a whole percent into a ratio.
func FromPercent(v uint64) decimal.Decimal {
	return decimal.NewFromUint64(v).Div(percent)
}

// Bps returns the scale as a decimal.
func Bps() decimal.Decimal {
	return bps
}

// Min returns the smaller of a and b.
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// Max returns the larger of a and b.
func Max(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// SubSat returns a - b, floored at zero.
func SubSat(a, b decimal.Decimal) decimal.Decimal {
	if b.GreaterThanOrEqual(a) {
		return Zero
	}
	return a.Sub(b)
}

// AbsDiff returns |a - b|.
func AbsDiff(a, b decimal.Decimal) decimal.Decimal {
	return a.Sub(b).Abs()
}
