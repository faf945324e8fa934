// Package venue describes the external swap venues the strategy engine
// consumes: the FIN order book and the Thorchain swap quoter.
package venue

import (
	"context"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"

	"calc/internal/errors"
	"calc/internal/ledger"
)

var (
	ErrOrderNotFound = errors.New("venue: order not found")
	ErrEmptyBook     = errors.New("venue: order book is empty")
	ErrUnknownSide   = errors.New("venue: unknown side")
)

// Side base, quote
type Side uint8

const (
	_side_beg Side = iota
	SideBase
	SideQuote
	_side_end
)

func (s Side) IsAvailable() bool {
	return s > _side_beg && s < _side_end
}

func (s Side) String() string {
	switch s {
	case SideBase:
		return "base"
	case SideQuote:
		return "quote"
	default:
		return "unknown"
	}
}

func (s Side) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Side) UnmarshalText(text []byte) error {
	switch string(text) {
	case "base":
		*s = SideBase
	case "quote":
		*s = SideQuote
	default:
		return errors.Wrapf(ErrUnknownSide, "side: %s", text)
	}
	return nil
}

// Pair is the configuration of a FIN market.
type Pair struct {
	Base  string `json:"base"`
	Quote string `json:"quote"`
}

// Supports reports whether denom is traded on the pair.
func (p Pair) Supports(denom string) bool {
	return denom == p.Base || denom == p.Quote
}

// Bid is the denom an order on side offers.
func (p Pair) Bid(side Side) string {
	if side == SideBase {
		return p.Base
	}
	return p.Quote
}

// Ask is the denom an order on side receives when filled.
func (p Pair) Ask(side Side) string {
	if side == SideBase {
		return p.Quote
	}
	return p.Base
}

// BookEntry is one price level.
type BookEntry struct {
	Price decimal.Decimal `json:"price"`
	Total decimal.Decimal `json:"total"`
}

// Book holds both sides of the order book, best price first.
type Book struct {
	Base  []BookEntry `json:"base"`
	Quote []BookEntry `json:"quote"`
}

// Side returns the levels resting on side.
func (b Book) Side(side Side) []BookEntry {
	if side == SideBase {
		return b.Base
	}
	return b.Quote
}

// Mid returns the midpoint of the best base and quote levels.
func (b Book) Mid() (decimal.Decimal, error) {
	if len(b.Base) == 0 || len(b.Quote) == 0 {
		return decimal.Zero, ErrEmptyBook
	}
	return b.Base[0].Price.Add(b.Quote[0].Price).Div(decimal.NewFromInt(2)), nil
}

// Simulation is the venue's estimate for a market swap.
type Simulation struct {
	Returned decimal.Decimal `json:"returned"`
	Fee      decimal.Decimal `json:"fee"`
}

// Order is a resting limit order owned by a strategy.
type Order struct {
	Offer     decimal.Decimal `json:"offer"`
	Remaining decimal.Decimal `json:"remaining"`
	Filled    decimal.Decimal `json:"filled"`
}

// Fin queries a FIN order book market.
type Fin interface {
	PairConfig(ctx context.Context, pair string) (Pair, error)
	Book(ctx context.Context, pair string, limit int) (Book, error)
	Simulate(ctx context.Context, pair string, offer ledger.Coin) (Simulation, error)
	// Order returns ErrOrderNotFound when owner has no order at price.
	Order(ctx context.Context, pair, owner string, side Side, price decimal.Decimal) (Order, error)
}

type finSwap struct {
	Swap finSwapRequest `json:"swap"`
}

type finSwapRequest struct {
	MinReturn *decimal.Decimal `json:"min_return,omitempty"`
	To        string           `json:"to,omitempty"`
}

type finOrder struct {
	Order []finOrderRequest `json:"order"`
}

type finOrderRequest struct {
	Side   Side             `json:"side"`
	Price  decimal.Decimal  `json:"price"`
	Amount *decimal.Decimal `json:"amount,omitempty"`
}

// SwapMsg builds a market swap of offer on pair with an optional minimum return.
func SwapMsg(pair string, offer ledger.Coin, minReturn *decimal.Decimal) (ledger.Msg, error) {
	body, err := sonic.Marshal(finSwap{Swap: finSwapRequest{MinReturn: minReturn}})
	if err != nil {
		return ledger.Msg{}, errors.Wrap(err, "encode fin swap")
	}
	return ledger.ContractMsg(pair, body, ledger.NewCoins(offer)), nil
}

// OrderMsg sets the order on side at price to amount, funded by funds.
// An amount of zero withdraws the order and claims any filled amount.
func OrderMsg(pair string, side Side, price, amount decimal.Decimal, funds ledger.Coins) (ledger.Msg, error) {
	body, err := sonic.Marshal(finOrder{Order: []finOrderRequest{{Side: side, Price: price, Amount: &amount}}})
	if err != nil {
		return ledger.Msg{}, errors.Wrap(err, "encode fin order")
	}
	return ledger.ContractMsg(pair, body, funds), nil
}
