package swap

import (
	"github.com/shopspring/decimal"

	"calc/internal/errors"
	"calc/internal/ledger"
	"calc/internal/num"
	"calc/internal/operation"
	"calc/internal/venue"
)

const (
	defaultStreamingInterval uint64 = 3
	maxStreamingInterval     uint64 = 50
	// one swap per 6s block over 24h
	maxStreamingQuantity uint64 = 14_400
)

// Route is a venue the swap may execute on. Exactly one field is set.
type Route struct {
	Fin       *FinRoute       `json:"fin,omitempty"`
	Thorchain *ThorchainRoute `json:"thorchain,omitempty"`
}

func (r Route) Kind() string {
	switch {
	case r.Fin != nil:
		return "fin"
	case r.Thorchain != nil:
		return "thorchain"
	default:
		return "unknown"
	}
}

func (r Route) verify(ctx operation.Context, s Swap) error {
	switch {
	case r.Fin != nil:
		return r.Fin.verify(ctx, s)
	case r.Thorchain != nil:
		return r.Thorchain.verify(ctx, s)
	default:
		return errors.New("swap: empty route")
	}
}

func (r Route) expected(ctx operation.Context, s Swap, amount ledger.Coin) (decimal.Decimal, error) {
	switch {
	case r.Fin != nil:
		sim, err := ctx.Querier.Simulate(ctx.Ctx, r.Fin.Pair, amount)
		if err != nil {
			return decimal.Zero, errors.Wrap(err, "simulate fin swap")
		}
		return sim.Returned, nil
	case r.Thorchain != nil:
		q, err := ctx.Querier.QuoteSwap(ctx.Ctx, r.Thorchain.request(ctx, amount, s.MinimumReceive.Denom))
		if err != nil {
			return decimal.Zero, errors.Wrap(err, "quote thorchain swap")
		}
		return q.ExpectedAmountOut, nil
	default:
		return decimal.Zero, errors.New("swap: empty route")
	}
}

func (r Route) validate(ctx operation.Context, s Swap, amount, minimum ledger.Coin) (Quote, error) {
	switch {
	case r.Fin != nil:
		return r.Fin.validate(ctx, s, amount, minimum)
	case r.Thorchain != nil:
		return r.Thorchain.validate(ctx, s, amount, minimum)
	default:
		return Quote{}, errors.New("swap: empty route")
	}
}

func (r Route) message(q Quote) (ledger.Msg, error) {
	switch {
	case r.Fin != nil:
		minimum := q.MinimumReceive.Amount
		return venue.SwapMsg(r.Fin.Pair, q.SwapAmount, &minimum)
	case r.Thorchain != nil:
		if r.Thorchain.LatestSwap == nil {
			return ledger.Msg{}, errors.New("swap: no thorchain swap to execute")
		}
		return venue.DepositSwapMsg(r.Thorchain.LatestSwap.Memo, ledger.NewCoins(q.SwapAmount)), nil
	default:
		return ledger.Msg{}, errors.New("swap: empty route")
	}
}

// FinRoute swaps against a FIN order book.
type FinRoute struct {
	Pair string `json:"pair_address"`
}

func (f FinRoute) verify(ctx operation.Context, s Swap) error {
	pair, err := ctx.Querier.PairConfig(ctx.Ctx, f.Pair)
	if err != nil {
		return errors.Wrapf(err, "fin pair %s", f.Pair)
	}
	if !pair.Supports(s.SwapAmount.Denom) {
		return errors.Wrapf(ErrUnsupportedDenom, "%s cannot swap from %s", f.Pair, s.SwapAmount.Denom)
	}
	if !pair.Supports(s.MinimumReceive.Denom) {
		return errors.Wrapf(ErrUnsupportedDenom, "%s cannot swap into %s", f.Pair, s.MinimumReceive.Denom)
	}
	return nil
}

// validate checks the simulated return against the minimum and the slippage
// against the book's mid price.
func (f FinRoute) validate(ctx operation.Context, s Swap, amount, minimum ledger.Coin) (Quote, error) {
	book, err := ctx.Querier.Book(ctx.Ctx, f.Pair, 1)
	if err != nil {
		return Quote{}, errors.Wrapf(err, "fin book %s", f.Pair)
	}
	mid, err := book.Mid()
	if err != nil {
		return Quote{}, errors.Wrapf(err, "fin book %s", f.Pair)
	}
	pair, err := ctx.Querier.PairConfig(ctx.Ctx, f.Pair)
	if err != nil {
		return Quote{}, errors.Wrapf(err, "fin pair %s", f.Pair)
	}
	sim, err := ctx.Querier.Simulate(ctx.Ctx, f.Pair, amount)
	if err != nil {
		return Quote{}, errors.Wrap(err, "simulate fin swap")
	}

	expected := sim.Returned
	if expected.LessThan(minimum.Amount) {
		return Quote{}, errors.Wrapf(ErrBelowMinimum, "expected %s for %s, minimum %s", expected, amount, minimum)
	}

	// mid is quoted in quote per base
	var atSpot decimal.Decimal
	if amount.Denom == pair.Base {
		atSpot = num.MulFloor(amount.Amount, mid)
	} else {
		atSpot = num.MulDivFloor(amount.Amount, num.One, mid)
	}
	optimal := num.Max(expected, atSpot)
	slippage := num.MulCeil(num.Bps(), num.SubSat(num.One, num.Ratio(expected, optimal)))
	if optimal.IsZero() {
		slippage = num.Bps()
	}
	if slippage.GreaterThan(num.Uint(s.MaxSlippageBps)) {
		return Quote{}, errors.Wrapf(ErrSlippageExceeded, "%s bps, maximum %d bps", slippage, s.MaxSlippageBps)
	}

	return Quote{
		SwapAmount:     amount,
		MinimumReceive: minimum,
		Expected:       coin(expected, minimum.Denom),
		Route:          Route{Fin: &f},
	}, nil
}

// StreamingSwap is the Thorchain swap last submitted on a route.
type StreamingSwap struct {
	SwapAmount      ledger.Coin `json:"swap_amount"`
	ExpectedReceive ledger.Coin `json:"expected_receive_amount"`
	StartingBlock   uint64      `json:"starting_block"`
	StreamingBlocks uint64      `json:"streaming_swap_blocks"`
	Memo            string      `json:"memo"`
}

// Finished reports whether the swap has streamed out by height.
func (s StreamingSwap) Finished(height uint64) bool {
	return height >= s.StartingBlock+s.StreamingBlocks
}

// ThorchainRoute swaps cross-chain through a Thorchain streaming swap.
type ThorchainRoute struct {
	StreamingInterval    *uint64        `json:"streaming_interval,omitempty"`
	MaxStreamingQuantity *uint64        `json:"max_streaming_quantity,omitempty"`
	AffiliateCode        *string        `json:"affiliate_code,omitempty"`
	AffiliateBps         *uint64        `json:"affiliate_bps,omitempty"`
	LatestSwap           *StreamingSwap `json:"latest_swap,omitempty"`
}

func (t ThorchainRoute) request(ctx operation.Context, amount ledger.Coin, to string) venue.QuoteRequest {
	req := venue.QuoteRequest{
		FromAsset:         amount.Denom,
		ToAsset:           to,
		Amount:            amount.Amount,
		StreamingInterval: defaultStreamingInterval,
		Destination:       ctx.Env.Contract,
		RefundAddress:     ctx.Env.Contract,
	}
	if t.StreamingInterval != nil {
		req.StreamingInterval = *t.StreamingInterval
	}
	if t.MaxStreamingQuantity != nil {
		req.StreamingQuantity = *t.MaxStreamingQuantity
	}
	if t.AffiliateCode != nil {
		req.Affiliate = []string{*t.AffiliateCode}
	}
	if t.AffiliateBps != nil {
		req.AffiliateBps = []uint64{*t.AffiliateBps}
	}
	return req
}

func (t ThorchainRoute) verify(ctx operation.Context, s Swap) error {
	if _, err := ctx.Querier.QuoteSwap(ctx.Ctx, t.request(ctx, s.SwapAmount, s.MinimumReceive.Denom)); err != nil {
		return errors.Wrap(err, "thorchain quote")
	}
	if v := t.StreamingInterval; v != nil && (*v == 0 || *v > maxStreamingInterval) {
		return errors.Errorf("swap: streaming interval %d outside 1..%d", *v, maxStreamingInterval)
	}
	if v := t.MaxStreamingQuantity; v != nil && (*v == 0 || *v > maxStreamingQuantity) {
		return errors.Errorf("swap: max streaming quantity %d outside 1..%d", *v, maxStreamingQuantity)
	}
	return nil
}

func (t ThorchainRoute) validate(ctx operation.Context, s Swap, amount, minimum ledger.Coin) (Quote, error) {
	if t.LatestSwap != nil && !t.LatestSwap.Finished(ctx.Env.Height) {
		return Quote{}, errors.Wrapf(ErrStreamingInProcess, "until block %d", t.LatestSwap.StartingBlock+t.LatestSwap.StreamingBlocks)
	}

	q, err := ctx.Querier.QuoteSwap(ctx.Ctx, t.request(ctx, amount, minimum.Denom))
	if err != nil {
		return Quote{}, errors.Wrap(err, "thorchain quote")
	}
	if q.Fees != nil && q.Fees.SlippageBps > s.MaxSlippageBps {
		return Quote{}, errors.Wrapf(ErrSlippageExceeded, "%d bps, maximum %d bps", q.Fees.SlippageBps, s.MaxSlippageBps)
	}
	if q.ExpectedAmountOut.LessThan(minimum.Amount) {
		return Quote{}, errors.Wrapf(ErrBelowMinimum, "expected %s, minimum %s", q.ExpectedAmountOut, minimum.Amount)
	}
	if q.RecommendedMinAmountIn.GreaterThan(amount.Amount) {
		return Quote{}, errors.Errorf("swap: recommended min amount in %s exceeds swap amount %s", q.RecommendedMinAmountIn, amount.Amount)
	}

	expected := coin(q.ExpectedAmountOut, minimum.Denom)
	t.LatestSwap = &StreamingSwap{
		SwapAmount:      amount,
		ExpectedReceive: expected,
		StartingBlock:   ctx.Env.Height + 1,
		StreamingBlocks: q.StreamingSwapBlocks,
		Memo:            q.Memo,
	}
	return Quote{
		SwapAmount:     amount,
		MinimumReceive: minimum,
		Expected:       expected,
		Route:          Route{Thorchain: &t},
	}, nil
}
