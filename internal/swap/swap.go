// Package swap implements the market swap step: size the swap from the
// strategy's balance, quote every configured route and take the best one.
package swap

import (
	"github.com/shopspring/decimal"

	"calc/internal/errors"
	"calc/internal/ledger"
	"calc/internal/num"
	"calc/internal/operation"
	"calc/internal/stats"
)

var (
	ErrZeroSwapAmount     = errors.New("swap: swap amount cannot be zero")
	ErrSlippageTooLarge   = errors.New("swap: maximum slippage cannot exceed 10000 bps")
	ErrNoRoutes           = errors.New("swap: no swap routes provided")
	ErrZeroBaseReceive    = errors.New("swap: base receive amount cannot be zero")
	ErrDenomMismatch      = errors.New("swap: denom mismatch")
	ErrZeroAvailable      = errors.New("swap: available swap amount is zero")
	ErrZeroExpected       = errors.New("swap: expected amount out is zero")
	ErrBelowMinimum       = errors.New("swap: expected amount out is below minimum receive")
	ErrSlippageExceeded   = errors.New("swap: slippage exceeds maximum")
	ErrNoViableRoute      = errors.New("swap: no viable route")
	ErrUnsupportedDenom   = errors.New("swap: pair does not support denom")
	ErrStreamingInProcess = errors.New("swap: streaming swap still in progress")
)

const (
	// AffiliateCode and AffiliateBps are injected into every Thorchain route.
	AffiliateCode        = "rj"
	AffiliateBps  uint64 = 10
)

// LinearScalar scales the swap amount against a base price: the cheaper the
// receive asset gets relative to the base, the more is swapped.
type LinearScalar struct {
	BaseReceive ledger.Coin     `json:"base_receive_amount"`
	MinimumSwap *ledger.Coin    `json:"minimum_swap_amount,omitempty"`
	Scalar      decimal.Decimal `json:"scalar"`
}

// Adjustment is the swap sizing policy. The zero value is Fixed.
type Adjustment struct {
	LinearScalar *LinearScalar `json:"linear_scalar,omitempty"`
}

// IsFixed reports whether the swap amount only shrinks to the balance.
func (a Adjustment) IsFixed() bool {
	return a.LinearScalar == nil
}

// Swap sells up to SwapAmount for at least MinimumReceive per execution.
type Swap struct {
	SwapAmount     ledger.Coin `json:"swap_amount"`
	MinimumReceive ledger.Coin `json:"minimum_receive_amount"`
	MaxSlippageBps uint64      `json:"maximum_slippage_bps"`
	Adjustment     Adjustment  `json:"adjustment"`
	Routes         []Route     `json:"routes"`
}

var _ operation.Operation[Swap] = Swap{}

// Quote is a sized and validated swap on one route.
type Quote struct {
	SwapAmount     ledger.Coin
	MinimumReceive ledger.Coin
	Expected       ledger.Coin
	// Route is the route carrying any state cached by validation.
	Route Route
	index int
}

// Validate checks the static shape of the swap and every route against its
// venue.
func (s Swap) Validate(ctx operation.Context) error {
	if s.SwapAmount.Amount.Sign() <= 0 {
		return ErrZeroSwapAmount
	}
	if s.MaxSlippageBps > num.BpsScale {
		return ErrSlippageTooLarge
	}
	if len(s.Routes) == 0 {
		return ErrNoRoutes
	}

	if ls := s.Adjustment.LinearScalar; ls != nil {
		if ls.BaseReceive.Amount.Sign() <= 0 {
			return ErrZeroBaseReceive
		}
		if ls.BaseReceive.Denom != s.MinimumReceive.Denom {
			return errors.Wrapf(ErrDenomMismatch, "base receive %s, minimum receive %s", ls.BaseReceive.Denom, s.MinimumReceive.Denom)
		}
		if ls.MinimumSwap != nil && ls.MinimumSwap.Denom != s.SwapAmount.Denom {
			return errors.Wrapf(ErrDenomMismatch, "minimum swap %s, swap %s", ls.MinimumSwap.Denom, s.SwapAmount.Denom)
		}
	}

	for i, r := range s.Routes {
		if err := r.verify(ctx, s); err != nil {
			return errors.Wrapf(err, "route %d", i)
		}
	}
	return nil
}

// WithAffiliates returns the swap with the protocol affiliate set on every
// Thorchain route.
func (s Swap) WithAffiliates() Swap {
	routes := make([]Route, len(s.Routes))
	for i, r := range s.Routes {
		if r.Thorchain != nil {
			thor := *r.Thorchain
			code, bps := AffiliateCode, AffiliateBps
			thor.AffiliateCode, thor.AffiliateBps = &code, &bps
			r = Route{Thorchain: &thor}
		}
		routes[i] = r
	}
	s.Routes = routes
	return s
}

func (s Swap) Init(ctx operation.Context, _ []operation.Affiliate) (Swap, error) {
	if err := s.Validate(ctx); err != nil {
		return s, err
	}
	return s.WithAffiliates(), nil
}

// adjust sizes the swap on route r.
func (s Swap) adjust(ctx operation.Context, r Route) (ledger.Coin, ledger.Coin, error) {
	balance, err := ctx.Balance(s.SwapAmount.Denom)
	if err != nil {
		return ledger.Coin{}, ledger.Coin{}, err
	}
	available := num.Min(balance, s.SwapAmount.Amount)
	if available.IsZero() {
		return ledger.Coin{}, ledger.Coin{}, ErrZeroAvailable
	}

	ls := s.Adjustment.LinearScalar
	if ls == nil {
		minimum := num.MulDivFloor(s.MinimumReceive.Amount, available, s.SwapAmount.Amount)
		return coin(available, s.SwapAmount.Denom), coin(minimum, s.MinimumReceive.Denom), nil
	}

	expected, err := r.expected(ctx, s, coin(available, s.SwapAmount.Denom))
	if err != nil {
		return ledger.Coin{}, ledger.Coin{}, err
	}
	if expected.IsZero() {
		return ledger.Coin{}, ledger.Coin{}, ErrZeroExpected
	}

	base := num.Ratio(s.SwapAmount.Amount, ls.BaseReceive.Amount)
	current := num.Ratio(available, expected)
	delta := num.Ratio(num.AbsDiff(base, current), base).Mul(ls.Scalar)

	var amount decimal.Decimal
	if current.LessThan(base) {
		amount = num.MulFloor(available, num.One.Add(delta))
	} else {
		amount = num.MulFloor(available, num.SubSat(num.One, delta))
	}
	if ls.MinimumSwap != nil {
		amount = num.Max(amount, ls.MinimumSwap.Amount)
	}
	amount = num.Min(amount, balance)
	if amount.IsZero() {
		return ledger.Coin{}, ledger.Coin{}, errors.Wrap(ErrZeroAvailable, "after adjustment")
	}

	minimum := num.MulDivCeil(s.MinimumReceive.Amount, amount, s.SwapAmount.Amount)
	return coin(amount, s.SwapAmount.Denom), coin(minimum, s.MinimumReceive.Denom), nil
}

func (s Swap) quote(ctx operation.Context, i int) (Quote, error) {
	r := s.Routes[i]
	amount, minimum, err := s.adjust(ctx, r)
	if err != nil {
		return Quote{}, err
	}
	q, err := r.validate(ctx, s, amount, minimum)
	if err != nil {
		return Quote{}, err
	}
	q.index = i
	return q, nil
}

// BestQuote quotes every route and returns the one with the largest
// expected output.
func (s Swap) BestQuote(ctx operation.Context) (Quote, error) {
	var (
		best  Quote
		found bool
		errs  []error
	)
	for i := range s.Routes {
		q, err := s.quote(ctx, i)
		if err != nil {
			errs = append(errs, errors.Wrapf(err, "route %d", i))
			continue
		}
		if !found || q.Expected.Amount.GreaterThan(best.Expected.Amount) {
			best, found = q, true
		}
	}
	if !found {
		return Quote{}, errors.Wrapf(ErrNoViableRoute, "%v", errors.Join(errs...))
	}
	return best, nil
}

func (s Swap) Execute(ctx operation.Context) (Swap, operation.Effects) {
	q, err := s.BestQuote(ctx)
	if err != nil {
		return s, operation.Skipped("swap", err)
	}

	msg, err := q.Route.message(q)
	if err != nil {
		return s, operation.Skipped("swap", err)
	}

	payload := &stats.Payload{
		Statistics: stats.Statistics{Swapped: ledger.NewCoins(q.SwapAmount)},
		Events: []ledger.Event{
			ledger.NewEvent("attempt_swap").
				Add("route", q.Route.Kind()).
				Add("swap_amount", q.SwapAmount.String()).
				Add("expected_receive_amount", q.Expected.String()),
		},
	}

	routes := append([]Route(nil), s.Routes...)
	routes[q.index] = q.Route
	s.Routes = routes
	return s, operation.Effects{}.Send(msg, payload)
}

func (s Swap) Denoms(operation.Context) (ledger.Denoms, error) {
	return ledger.NewDenoms(s.SwapAmount.Denom, s.MinimumReceive.Denom), nil
}

func (s Swap) Escrowed(operation.Context) (ledger.Denoms, error) {
	return ledger.NewDenoms(s.MinimumReceive.Denom), nil
}

// Balances is empty: a swap never holds funds outside the strategy.
func (s Swap) Balances(operation.Context, ledger.Denoms) (ledger.Coins, error) {
	return nil, nil
}

func (s Swap) Withdraw(operation.Context, ledger.Denoms) (Swap, operation.Effects, error) {
	return s, operation.Effects{}, nil
}

func (s Swap) Cancel(operation.Context) (Swap, operation.Effects, error) {
	return s, operation.Effects{}, nil
}

// Commit forgets Thorchain swaps that have finished streaming.
func (s Swap) Commit(ctx operation.Context) (Swap, error) {
	routes := make([]Route, len(s.Routes))
	for i, r := range s.Routes {
		if r.Thorchain != nil && r.Thorchain.LatestSwap != nil && r.Thorchain.LatestSwap.Finished(ctx.Env.Height) {
			thor := *r.Thorchain
			thor.LatestSwap = nil
			r = Route{Thorchain: &thor}
		}
		routes[i] = r
	}
	s.Routes = routes
	return s, nil
}

func coin(amount decimal.Decimal, denom string) ledger.Coin {
	return ledger.Coin{Denom: denom, Amount: amount}
}
