// Package limitorder keeps one resting FIN limit order for a strategy,
// moving it with the book and re-funding it from the strategy's balance.
package limitorder

import (
	"github.com/shopspring/decimal"

	"calc/internal/errors"
	"calc/internal/ledger"
	"calc/internal/num"
	"calc/internal/operation"
	"calc/internal/stats"
	"calc/internal/venue"
)

var (
	ErrBidTooSmall   = errors.New("limitorder: bid amount cannot be less than 1000")
	ErrCurrentPreset = errors.New("limitorder: current order cannot be set before init")
	ErrBidDenom      = errors.New("limitorder: bid denom does not match the pair side")
)

// MinimumBidAmount is the smallest configurable bid.
var MinimumBidAmount = num.Int(1_000)

// CurrentOrder caches where the strategy's order rests. Everything else is
// read back from the venue.
type CurrentOrder struct {
	Price decimal.Decimal `json:"price"`
}

// LimitOrder rests BidDenom on Side of Pair at the price chosen by Strategy.
type LimitOrder struct {
	Pair      string           `json:"pair_address"`
	Side      venue.Side       `json:"side"`
	BidDenom  string           `json:"bid_denom"`
	BidAmount *decimal.Decimal `json:"bid_amount,omitempty"`
	Strategy  PriceStrategy    `json:"strategy"`
	Current   *CurrentOrder    `json:"current_order,omitempty"`
}

var _ operation.Operation[LimitOrder] = LimitOrder{}

func (l LimitOrder) pair(ctx operation.Context) (venue.Pair, error) {
	p, err := ctx.Querier.PairConfig(ctx.Ctx, l.Pair)
	if err != nil {
		return venue.Pair{}, errors.Wrapf(err, "pair %s", l.Pair)
	}
	return p, nil
}

// lookup reports the resting order at Current and whether the venue still has it.
func (l LimitOrder) lookup(ctx operation.Context) (venue.Order, bool, error) {
	if l.Current == nil {
		return venue.Order{}, false, nil
	}
	o, err := ctx.Querier.Order(ctx.Ctx, l.Pair, ctx.Env.Contract, l.Side, l.Current.Price)
	if errors.Is(err, venue.ErrOrderNotFound) {
		return venue.Order{}, false, nil
	}
	if err != nil {
		return venue.Order{}, false, errors.Wrapf(err, "order at %s", l.Current.Price)
	}
	return o, true, nil
}

// refresh is the resting order at Current, zero once the venue dropped it.
func (l LimitOrder) refresh(ctx operation.Context) (venue.Order, error) {
	o, _, err := l.lookup(ctx)
	return o, err
}

// withdrawal pulls the order at price, claiming whatever has filled.
func (l LimitOrder) withdrawal(pair venue.Pair, price decimal.Decimal, order venue.Order) (operation.Effects, error) {
	msg, err := venue.OrderMsg(l.Pair, l.Side, price, decimal.Zero, nil)
	if err != nil {
		return operation.Effects{}, err
	}
	payload := &stats.Payload{
		Statistics: stats.Statistics{
			Filled:  ledger.NewCoins(ledger.Coin{Denom: pair.Ask(l.Side), Amount: order.Filled}),
			Swapped: ledger.NewCoins(ledger.Coin{Denom: l.BidDenom, Amount: num.SubSat(order.Offer, order.Remaining)}),
		},
		Events: []ledger.Event{
			ledger.NewEvent("withdraw_limit_order").
				Add("pair", l.Pair).
				Add("price", price.String()).
				Add("remaining", order.Remaining.String()).
				Add("filled", order.Filled.String()),
		},
	}
	return operation.Effects{}.Send(msg, payload), nil
}

func (l LimitOrder) Init(ctx operation.Context, _ []operation.Affiliate) (LimitOrder, error) {
	if l.BidAmount != nil && l.BidAmount.LessThan(MinimumBidAmount) {
		return l, ErrBidTooSmall
	}
	if l.Current != nil {
		return l, ErrCurrentPreset
	}
	if !l.Side.IsAvailable() {
		return l, venue.ErrUnknownSide
	}
	if err := l.Strategy.validate(); err != nil {
		return l, err
	}
	pair, err := l.pair(ctx)
	if err != nil {
		return l, err
	}
	if pair.Bid(l.Side) != l.BidDenom {
		return l, errors.Wrapf(ErrBidDenom, "%s side offers %s, not %s", l.Side, pair.Bid(l.Side), l.BidDenom)
	}
	return l, nil
}

func (l LimitOrder) Execute(ctx operation.Context) (LimitOrder, operation.Effects) {
	next, effects, err := l.execute(ctx)
	if err != nil {
		return l, operation.Skipped("limit_order", err)
	}
	return next, effects
}

func (l LimitOrder) execute(ctx operation.Context) (LimitOrder, operation.Effects, error) {
	pair, err := l.pair(ctx)
	if err != nil {
		return l, operation.Effects{}, err
	}
	target, err := l.Strategy.Target(ctx, l.Pair, l.Side)
	if err != nil {
		return l, operation.Effects{}, err
	}

	var effects operation.Effects
	placeAt, reset := target, true
	remaining, withdrawing := decimal.Zero, decimal.Zero
	if l.Current != nil {
		order, live, err := l.lookup(ctx)
		if err != nil {
			return l, operation.Effects{}, err
		}
		moved := l.Strategy.ShouldReset(l.Current.Price, target)
		reset = moved || order.Filled.Sign() > 0
		if reset {
			if live {
				withdrawn, err := l.withdrawal(pair, l.Current.Price, order)
				if err != nil {
					return l, operation.Effects{}, err
				}
				effects = effects.Merge(withdrawn)
			}
			withdrawing = order.Remaining
		} else {
			remaining = order.Remaining
			placeAt = l.Current.Price
		}
	}

	balance, err := ctx.Balance(l.BidDenom)
	if err != nil {
		return l, operation.Effects{}, err
	}

	available := balance.Add(withdrawing).Add(remaining)
	offer := available
	if l.BidAmount != nil {
		offer = num.Min(available, *l.BidAmount)
	}
	// A kept order only needs the top-up beyond what it already holds.
	funding := num.Min(balance.Add(withdrawing), offer)
	if !reset {
		funding = num.Min(balance, num.SubSat(offer, remaining))
	}

	if offer.IsZero() || (funding.IsZero() && !reset) {
		return l, effects, nil
	}
	if placeAt.Sign() <= 0 {
		return l, operation.Effects{}, errors.Errorf("limitorder: target price %s is not positive", placeAt)
	}

	msg, err := venue.OrderMsg(l.Pair, l.Side, placeAt, offer, ledger.NewCoins(ledger.Coin{Denom: l.BidDenom, Amount: funding}))
	if err != nil {
		return l, operation.Effects{}, err
	}
	effects = effects.Send(msg, nil).Emit(
		ledger.NewEvent("set_limit_order").
			Add("pair", l.Pair).
			Add("side", l.Side.String()).
			Add("price", placeAt.String()).
			Add("offer", offer.String()),
	)
	l.Current = &CurrentOrder{Price: placeAt}
	return l, effects, nil
}

func (l LimitOrder) Denoms(ctx operation.Context) (ledger.Denoms, error) {
	pair, err := l.pair(ctx)
	if err != nil {
		return nil, err
	}
	return ledger.NewDenoms(pair.Base, pair.Quote), nil
}

func (l LimitOrder) Escrowed(ctx operation.Context) (ledger.Denoms, error) {
	pair, err := l.pair(ctx)
	if err != nil {
		return nil, err
	}
	return ledger.NewDenoms(pair.Ask(l.Side)), nil
}

// Balances is what the order holds: the unfilled bid and the unclaimed fill.
func (l LimitOrder) Balances(ctx operation.Context, denoms ledger.Denoms) (ledger.Coins, error) {
	pair, err := l.pair(ctx)
	if err != nil {
		return nil, err
	}
	if !denoms.Contains(pair.Base) && !denoms.Contains(pair.Quote) {
		return nil, nil
	}
	order, err := l.refresh(ctx)
	if err != nil {
		return nil, err
	}
	return ledger.NewCoins(
		ledger.Coin{Denom: l.BidDenom, Amount: order.Remaining},
		ledger.Coin{Denom: pair.Ask(l.Side), Amount: order.Filled},
	), nil
}

func (l LimitOrder) Withdraw(ctx operation.Context, desired ledger.Denoms) (LimitOrder, operation.Effects, error) {
	if !desired.Contains(l.BidDenom) {
		return l, operation.Effects{}, nil
	}
	return l.Cancel(ctx)
}

// Cancel pulls the order. The cached order is dropped at commit, once the
// venue no longer has it.
func (l LimitOrder) Cancel(ctx operation.Context) (LimitOrder, operation.Effects, error) {
	if l.Current == nil {
		return l, operation.Effects{}, nil
	}
	pair, err := l.pair(ctx)
	if err != nil {
		return l, operation.Effects{}, err
	}
	order, live, err := l.lookup(ctx)
	if err != nil || !live {
		return l, operation.Effects{}, err
	}
	effects, err := l.withdrawal(pair, l.Current.Price, order)
	return l, effects, err
}

func (l LimitOrder) Commit(ctx operation.Context) (LimitOrder, error) {
	if l.Current == nil {
		return l, nil
	}
	_, live, err := l.lookup(ctx)
	if err != nil {
		return l, err
	}
	if !live {
		l.Current = nil
	}
	return l, nil
}
