package limitorder

import (
	"github.com/shopspring/decimal"

	"calc/internal/errors"
	"calc/internal/num"
	"calc/internal/operation"
	"calc/internal/venue"
)

var (
	ErrUnknownDirection = errors.New("limitorder: unknown direction")
	ErrEmptyStrategy    = errors.New("limitorder: price strategy has no variant")
	ErrEmptyDelta       = errors.New("limitorder: offset has no variant")
)

// bookDepth is how many levels are read to find the best price.
const bookDepth = 10

// Direction above, below
type Direction uint8

const (
	_direction_beg Direction = iota
	Above
	Below
	_direction_end
)

func (d Direction) IsAvailable() bool {
	return d > _direction_beg && d < _direction_end
}

func (d Direction) String() string {
	switch d {
	case Above:
		return "above"
	case Below:
		return "below"
	default:
		return "unknown"
	}
}

func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Direction) UnmarshalText(text []byte) error {
	switch string(text) {
	case "above":
		*d = Above
	case "below":
		*d = Below
	default:
		return errors.Wrapf(ErrUnknownDirection, "direction: %s", text)
	}
	return nil
}

// Delta is a price distance, either absolute or a whole percent of the
// reference price. Exactly one field is set.
type Delta struct {
	Exact   *decimal.Decimal `json:"exact,omitempty"`
	Percent *uint64          `json:"percent,omitempty"`
}

func (d Delta) validate() error {
	if (d.Exact == nil) == (d.Percent == nil) {
		return ErrEmptyDelta
	}
	if d.Exact != nil && d.Exact.Sign() < 0 {
		return errors.Errorf("limitorder: negative offset %s", d.Exact)
	}
	return nil
}

// Offset tracks the best price on the order's side of the book.
type Offset struct {
	Direction Direction `json:"direction"`
	Offset    Delta     `json:"offset"`
	// Tolerance is how far the book may move before the order is moved.
	// Without one, any move resets the order.
	Tolerance *Delta `json:"tolerance,omitempty"`
}

// PriceStrategy decides where the order rests. Exactly one field is set.
type PriceStrategy struct {
	Fixed  *decimal.Decimal `json:"fixed,omitempty"`
	Offset *Offset          `json:"offset,omitempty"`
}

func (p PriceStrategy) validate() error {
	switch {
	case p.Fixed != nil && p.Offset != nil, p.Fixed == nil && p.Offset == nil:
		return ErrEmptyStrategy
	case p.Fixed != nil:
		if p.Fixed.Sign() <= 0 {
			return errors.Errorf("limitorder: fixed price %s must be positive", p.Fixed)
		}
	default:
		if !p.Offset.Direction.IsAvailable() {
			return ErrUnknownDirection
		}
		if err := p.Offset.Offset.validate(); err != nil {
			return err
		}
		if t := p.Offset.Tolerance; t != nil {
			if err := t.validate(); err != nil {
				return errors.Wrap(err, "tolerance")
			}
		}
	}
	return nil
}

// ShouldReset reports whether an order resting at current must move to
// target.
func (p PriceStrategy) ShouldReset(current, target decimal.Decimal) bool {
	if p.Offset == nil || p.Offset.Tolerance == nil {
		return !current.Equal(target)
	}

	delta := num.AbsDiff(current, target)
	tol := p.Offset.Tolerance
	if tol.Exact != nil {
		return delta.GreaterThan(*tol.Exact)
	}
	return current.Mul(num.FromPercent(*tol.Percent)).LessThan(delta)
}

// Target returns the price the order should rest at now.
func (p PriceStrategy) Target(ctx operation.Context, pair string, side venue.Side) (decimal.Decimal, error) {
	if p.Fixed != nil {
		return *p.Fixed, nil
	}
	if p.Offset == nil {
		return decimal.Zero, ErrEmptyStrategy
	}

	book, err := ctx.Querier.Book(ctx.Ctx, pair, bookDepth)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "book %s", pair)
	}
	levels := book.Side(side)
	if len(levels) == 0 {
		return decimal.Zero, errors.Wrapf(venue.ErrEmptyBook, "%s side of %s", side, pair)
	}
	price := levels[0].Price

	o := p.Offset
	switch {
	case o.Offset.Exact != nil:
		if o.Direction == Above {
			return price.Add(*o.Offset.Exact), nil
		}
		return num.SubSat(price, *o.Offset.Exact), nil
	case o.Offset.Percent != nil:
		pct := *o.Offset.Percent
		if o.Direction == Above {
			return price.Mul(num.FromPercent(100 + pct)), nil
		}
		if pct >= 100 {
			return decimal.Zero, nil
		}
		return price.Mul(num.FromPercent(100 - pct)), nil
	default:
		return decimal.Zero, ErrEmptyDelta
	}
}
