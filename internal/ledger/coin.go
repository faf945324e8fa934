package ledger

import (
	"context"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Coin is an integer amount of a single denomination.
type Coin struct {
	Denom  string          `json:"denom"`
	Amount decimal.Decimal `json:"amount"`
}

// NewCoin builds a coin from an integer amount.
func NewCoin(amount int64, denom string) Coin {
	return Coin{Denom: denom, Amount: decimal.NewFromInt(amount)}
}

func (c Coin) IsZero() bool {
	return c.Amount.IsZero()
}

func (c Coin) String() string {
	return c.Amount.String() + c.Denom
}

// Coins is a set of coins sorted by denom without zero entries. Every
// method returns a new value and leaves the receiver untouched.
type Coins []Coin

// NewCoins normalizes the given coins, summing duplicates.
func NewCoins(coins ...Coin) Coins {
	return Coins(nil).Add(coins...)
}

// Add returns the sum of c and coins.
func (c Coins) Add(coins ...Coin) Coins {
	sums := make(map[string]decimal.Decimal, len(c)+len(coins))
	for _, coin := range c {
		sums[coin.Denom] = sums[coin.Denom].Add(coin.Amount)
	}
	for _, coin := range coins {
		sums[coin.Denom] = sums[coin.Denom].Add(coin.Amount)
	}
	out := make(Coins, 0, len(sums))
	for denom, amount := range sums {
		if amount.IsZero() {
			continue
		}
		out = append(out, Coin{Denom: denom, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Denom < out[j].Denom })
	if len(out) == 0 {
		return nil
	}
	return out
}

// Merge returns the sum of c and other.
func (c Coins) Merge(other Coins) Coins {
	return c.Add(other...)
}

// AmountOf returns the amount held for denom.
func (c Coins) AmountOf(denom string) decimal.Decimal {
	for _, coin := range c {
		if coin.Denom == denom {
			return coin.Amount
		}
	}
	return decimal.Zero
}

func (c Coins) IsZero() bool {
	for _, coin := range c {
		if !coin.IsZero() {
			return false
		}
	}
	return true
}

// Denoms lists the denominations present.
func (c Coins) Denoms() Denoms {
	out := make([]string, 0, len(c))
	for _, coin := range c {
		out = append(out, coin.Denom)
	}
	return NewDenoms(out...)
}

// Equal compares normalized coin sets.
func (c Coins) Equal(other Coins) bool {
	a, b := NewCoins(c...), NewCoins(other...)
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Denom != b[i].Denom || !a[i].Amount.Equal(b[i].Amount) {
			return false
		}
	}
	return true
}

func (c Coins) String() string {
	parts := make([]string, 0, len(c))
	for _, coin := range c {
		parts = append(parts, coin.String())
	}
	return strings.Join(parts, ",")
}

// Denoms is a sorted set of denominations.
type Denoms []string

// NewDenoms deduplicates and sorts denoms.
func NewDenoms(denoms ...string) Denoms {
	seen := make(map[string]struct{}, len(denoms))
	out := make(Denoms, 0, len(denoms))
	for _, d := range denoms {
		if d == "" {
			continue
		}
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

func (d Denoms) Contains(denom string) bool {
	i := sort.SearchStrings(d, denom)
	return i < len(d) && d[i] == denom
}

// Union returns d with every denom of other.
func (d Denoms) Union(other Denoms) Denoms {
	all := make([]string, 0, len(d)+len(other))
	all = append(all, d...)
	all = append(all, other...)
	return NewDenoms(all...)
}

// Intersects reports whether d and other share a denom.
func (d Denoms) Intersects(other Denoms) bool {
	for _, denom := range other {
		if d.Contains(denom) {
			return true
		}
	}
	return false
}

// IsSecured reports whether denom is a secured asset rather than a native
// token. Secured assets carry a chain separator, e.g. "btc-btc".
func IsSecured(denom string) bool {
	return strings.Contains(denom, "-")
}

// Bank reads ledger balances.
type Bank interface {
	Balance(ctx context.Context, address, denom string) (decimal.Decimal, error)
}
