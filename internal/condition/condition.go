// Package condition evaluates the predicates that gate strategy steps.
package condition

import (
	"time"

	"github.com/shopspring/decimal"

	"calc/internal/errors"
	"calc/internal/ledger"
	"calc/internal/limitorder"
	"calc/internal/operation"
	"calc/internal/registry"
	"calc/internal/swap"
	"calc/internal/venue"
)

var (
	ErrEmptyCondition   = errors.New("condition: no variant set")
	ErrAmbiguous        = errors.New("condition: more than one variant set")
	ErrUnknownThreshold = errors.New("condition: unknown threshold")
	ErrNotSecured       = errors.New("condition: oracle asset must be a secured asset")
)

// Threshold all, any
type Threshold uint8

const (
	_threshold_beg Threshold = iota
	All
	Any
	_threshold_end
)

func (t Threshold) IsAvailable() bool {
	return t > _threshold_beg && t < _threshold_end
}

func (t Threshold) String() string {
	switch t {
	case All:
		return "all"
	case Any:
		return "any"
	default:
		return "unknown"
	}
}

func (t Threshold) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Threshold) UnmarshalText(text []byte) error {
	switch string(text) {
	case "all":
		*t = All
	case "any":
		*t = Any
	default:
		return errors.Wrapf(ErrUnknownThreshold, "threshold: %s", text)
	}
	return nil
}

// Fold combines results under t. An empty All holds; an empty Any does not.
func (t Threshold) Fold(results []bool) bool {
	if t == Any {
		for _, ok := range results {
			if ok {
				return true
			}
		}
		return false
	}
	for _, ok := range results {
		if !ok {
			return false
		}
	}
	return true
}

// LimitOrderFilled holds once the order has no remaining offer, or has
// filled at least MinimumFilled when set. Owner defaults to the strategy.
type LimitOrderFilled struct {
	Pair          string           `json:"pair_address"`
	Owner         string           `json:"owner,omitempty"`
	Side          venue.Side       `json:"side"`
	Price         decimal.Decimal  `json:"price"`
	MinimumFilled *decimal.Decimal `json:"minimum_filled_amount,omitempty"`
}

// BalanceAvailable holds when Address, or the strategy when empty, holds
// at least Amount.
type BalanceAvailable struct {
	Address string      `json:"address,omitempty"`
	Amount  ledger.Coin `json:"amount"`
}

// StrategyStatus holds when the registry reports Contract at Status.
type StrategyStatus struct {
	Contract string          `json:"contract_address"`
	Status   registry.Status `json:"status"`
}

// OraclePrice compares the oracle price of Asset against Price, strictly.
type OraclePrice struct {
	Asset     string               `json:"asset"`
	Direction limitorder.Direction `json:"direction"`
	Price     decimal.Decimal      `json:"price"`
}

// Composite folds Conditions under Threshold.
type Composite struct {
	Conditions []Condition `json:"conditions"`
	Threshold  Threshold   `json:"threshold"`
}

// Condition is a predicate over ledger and venue state. Exactly one field
// is set.
type Condition struct {
	TimestampElapsed *time.Time        `json:"timestamp_elapsed,omitempty"`
	BlocksCompleted  *uint64           `json:"blocks_completed,omitempty"`
	Schedule         *Schedule         `json:"schedule,omitempty"`
	CanSwap          *swap.Swap        `json:"can_swap,omitempty"`
	LimitOrderFilled *LimitOrderFilled `json:"limit_order_filled,omitempty"`
	BalanceAvailable *BalanceAvailable `json:"balance_available,omitempty"`
	StrategyStatus   *StrategyStatus   `json:"strategy_status,omitempty"`
	OraclePrice      *OraclePrice      `json:"oracle_price,omitempty"`
	Not              *Condition        `json:"not,omitempty"`
	Composite        *Composite        `json:"composite,omitempty"`
}

var _ operation.Operation[Condition] = Condition{}

func AtTime(t time.Time) Condition {
	t = t.UTC()
	return Condition{TimestampElapsed: &t}
}

func AtHeight(h uint64) Condition {
	return Condition{BlocksCompleted: &h}
}

func Negate(c Condition) Condition {
	return Condition{Not: &c}
}

func AllOf(conditions ...Condition) Condition {
	return Condition{Composite: &Composite{Conditions: conditions, Threshold: All}}
}

func AnyOf(conditions ...Condition) Condition {
	return Condition{Composite: &Composite{Conditions: conditions, Threshold: Any}}
}

func (c Condition) variants() int {
	n := 0
	for _, set := range []bool{
		c.TimestampElapsed != nil, c.BlocksCompleted != nil, c.Schedule != nil, c.CanSwap != nil,
		c.LimitOrderFilled != nil, c.BalanceAvailable != nil, c.StrategyStatus != nil,
		c.OraclePrice != nil, c.Not != nil, c.Composite != nil,
	} {
		if set {
			n++
		}
	}
	return n
}

// Kind names the variant for events and logs.
func (c Condition) Kind() string {
	switch {
	case c.TimestampElapsed != nil:
		return "timestamp_elapsed"
	case c.BlocksCompleted != nil:
		return "blocks_completed"
	case c.Schedule != nil:
		return "schedule"
	case c.CanSwap != nil:
		return "can_swap"
	case c.LimitOrderFilled != nil:
		return "limit_order_filled"
	case c.BalanceAvailable != nil:
		return "balance_available"
	case c.StrategyStatus != nil:
		return "strategy_status"
	case c.OraclePrice != nil:
		return "oracle_price"
	case c.Not != nil:
		return "not"
	case c.Composite != nil:
		return "composite"
	default:
		return "unknown"
	}
}

// Size is the weight of the condition toward the strategy size cap.
func (c Condition) Size() int {
	switch {
	case c.Not != nil:
		return c.Not.Size()
	case c.Composite != nil:
		size := 1
		for _, inner := range c.Composite.Conditions {
			size += inner.Size()
		}
		return size
	case c.Schedule != nil, c.CanSwap != nil, c.LimitOrderFilled != nil, c.StrategyStatus != nil, c.OraclePrice != nil:
		return 2
	default:
		return 1
	}
}

func (c Condition) Init(ctx operation.Context, affiliates []operation.Affiliate) (Condition, error) {
	switch n := c.variants(); {
	case n == 0:
		return c, ErrEmptyCondition
	case n > 1:
		return c, ErrAmbiguous
	}

	switch {
	case c.Schedule != nil:
		s, err := c.Schedule.Init()
		if err != nil {
			return c, errors.Wrap(err, "schedule")
		}
		return Condition{Schedule: &s}, nil
	case c.CanSwap != nil:
		s, err := c.CanSwap.Init(ctx, affiliates)
		if err != nil {
			return c, errors.Wrap(err, "can swap")
		}
		return Condition{CanSwap: &s}, nil
	case c.LimitOrderFilled != nil:
		if c.LimitOrderFilled.Price.Sign() <= 0 {
			return c, errors.Errorf("condition: order price %s must be positive", c.LimitOrderFilled.Price)
		}
		if !c.LimitOrderFilled.Side.IsAvailable() {
			return c, venue.ErrUnknownSide
		}
		if _, err := ctx.Querier.PairConfig(ctx.Ctx, c.LimitOrderFilled.Pair); err != nil {
			return c, errors.Wrapf(err, "pair %s", c.LimitOrderFilled.Pair)
		}
	case c.BalanceAvailable != nil:
		if c.BalanceAvailable.Amount.Denom == "" {
			return c, errors.New("condition: balance denom is required")
		}
	case c.StrategyStatus != nil:
		if !c.StrategyStatus.Status.IsAvailable() {
			return c, registry.ErrUnknownStatus
		}
		if _, err := ctx.Querier.Status(ctx.Ctx, c.StrategyStatus.Contract); err != nil {
			return c, errors.Wrapf(err, "strategy %s", c.StrategyStatus.Contract)
		}
	case c.OraclePrice != nil:
		if !ledger.IsSecured(c.OraclePrice.Asset) {
			return c, errors.Wrapf(ErrNotSecured, "asset %s", c.OraclePrice.Asset)
		}
		if !c.OraclePrice.Direction.IsAvailable() {
			return c, limitorder.ErrUnknownDirection
		}
	case c.Not != nil:
		inner, err := c.Not.Init(ctx, affiliates)
		if err != nil {
			return c, errors.Wrap(err, "not")
		}
		return Condition{Not: &inner}, nil
	case c.Composite != nil:
		if !c.Composite.Threshold.IsAvailable() {
			return c, ErrUnknownThreshold
		}
		inits := make([]Condition, len(c.Composite.Conditions))
		for i, inner := range c.Composite.Conditions {
			next, err := inner.Init(ctx, affiliates)
			if err != nil {
				return c, errors.Wrapf(err, "composite %d", i)
			}
			inits[i] = next
		}
		return Condition{Composite: &Composite{Conditions: inits, Threshold: c.Composite.Threshold}}, nil
	}
	return c, nil
}

// Satisfied evaluates the condition.
func (c Condition) Satisfied(ctx operation.Context) (bool, error) {
	switch {
	case c.TimestampElapsed != nil:
		return !ctx.Env.Time.Before(*c.TimestampElapsed), nil
	case c.BlocksCompleted != nil:
		return ctx.Env.Height >= *c.BlocksCompleted, nil
	case c.Schedule != nil:
		return c.Schedule.IsDue(ctx)
	case c.CanSwap != nil:
		_, err := c.CanSwap.BestQuote(ctx)
		if errors.Is(err, swap.ErrNoViableRoute) {
			return false, nil
		}
		return err == nil, err
	case c.LimitOrderFilled != nil:
		o := c.LimitOrderFilled
		owner := o.Owner
		if owner == "" {
			owner = ctx.Env.Contract
		}
		order, err := ctx.Querier.Order(ctx.Ctx, o.Pair, owner, o.Side, o.Price)
		if err != nil {
			return false, errors.Wrapf(err, "order on %s", o.Pair)
		}
		if o.MinimumFilled != nil {
			return order.Filled.GreaterThanOrEqual(*o.MinimumFilled), nil
		}
		return order.Remaining.IsZero(), nil
	case c.BalanceAvailable != nil:
		address := c.BalanceAvailable.Address
		if address == "" {
			address = ctx.Env.Contract
		}
		balance, err := ctx.Querier.Balance(ctx.Ctx, address, c.BalanceAvailable.Amount.Denom)
		if err != nil {
			return false, errors.Wrapf(err, "balance of %s", address)
		}
		return balance.GreaterThanOrEqual(c.BalanceAvailable.Amount.Amount), nil
	case c.StrategyStatus != nil:
		status, err := ctx.Querier.Status(ctx.Ctx, c.StrategyStatus.Contract)
		if err != nil {
			return false, errors.Wrapf(err, "strategy %s", c.StrategyStatus.Contract)
		}
		return status == c.StrategyStatus.Status, nil
	case c.OraclePrice != nil:
		price, err := ctx.Querier.Price(ctx.Ctx, c.OraclePrice.Asset)
		if err != nil {
			return false, errors.Wrapf(err, "oracle %s", c.OraclePrice.Asset)
		}
		if c.OraclePrice.Direction == limitorder.Above {
			return price.GreaterThan(c.OraclePrice.Price), nil
		}
		return price.LessThan(c.OraclePrice.Price), nil
	case c.Not != nil:
		ok, err := c.Not.Satisfied(ctx)
		return !ok && err == nil, err
	case c.Composite != nil:
		results := make([]bool, 0, len(c.Composite.Conditions))
		for i, inner := range c.Composite.Conditions {
			ok, err := inner.Satisfied(ctx)
			if err != nil {
				return false, errors.Wrapf(err, "composite %d", i)
			}
			results = append(results, ok)
		}
		return c.Composite.Threshold.Fold(results), nil
	default:
		return false, ErrEmptyCondition
	}
}

// Execute registers the triggers of every schedule in the condition.
// Other variants have nothing to do.
func (c Condition) Execute(ctx operation.Context) (Condition, operation.Effects) {
	switch {
	case c.Schedule != nil:
		s, effects, err := c.Schedule.Execute(ctx)
		if err != nil {
			return c, operation.Skipped("schedule", err)
		}
		return Condition{Schedule: &s}, effects
	case c.Not != nil:
		inner, effects := c.Not.Execute(ctx)
		return Condition{Not: &inner}, effects
	case c.Composite != nil:
		var effects operation.Effects
		next := make([]Condition, len(c.Composite.Conditions))
		for i, inner := range c.Composite.Conditions {
			var e operation.Effects
			next[i], e = inner.Execute(ctx)
			effects = effects.Merge(e)
		}
		return Condition{Composite: &Composite{Conditions: next, Threshold: c.Composite.Threshold}}, effects
	default:
		return c, operation.Effects{}
	}
}

func (c Condition) Denoms(ctx operation.Context) (ledger.Denoms, error) {
	switch {
	case c.Schedule != nil:
		return c.Schedule.Denoms(), nil
	case c.CanSwap != nil:
		return c.CanSwap.Denoms(ctx)
	case c.Not != nil:
		return c.Not.Denoms(ctx)
	case c.Composite != nil:
		var out ledger.Denoms
		for _, inner := range c.Composite.Conditions {
			d, err := inner.Denoms(ctx)
			if err != nil {
				return nil, err
			}
			out = out.Union(d)
		}
		return out, nil
	default:
		return nil, nil
	}
}

// Escrowed is empty: conditions never receive funds.
func (c Condition) Escrowed(operation.Context) (ledger.Denoms, error) {
	return nil, nil
}

func (c Condition) Balances(operation.Context, ledger.Denoms) (ledger.Coins, error) {
	return nil, nil
}

func (c Condition) Withdraw(operation.Context, ledger.Denoms) (Condition, operation.Effects, error) {
	return c, operation.Effects{}, nil
}

func (c Condition) Cancel(operation.Context) (Condition, operation.Effects, error) {
	return c, operation.Effects{}, nil
}

// Commit promotes every staged schedule.
func (c Condition) Commit(ctx operation.Context) (Condition, error) {
	switch {
	case c.Schedule != nil:
		s := c.Schedule.Commit()
		return Condition{Schedule: &s}, nil
	case c.CanSwap != nil:
		s, err := c.CanSwap.Commit(ctx)
		if err != nil {
			return c, err
		}
		return Condition{CanSwap: &s}, nil
	case c.Not != nil:
		inner, err := c.Not.Commit(ctx)
		if err != nil {
			return c, err
		}
		return Condition{Not: &inner}, nil
	case c.Composite != nil:
		next := make([]Condition, len(c.Composite.Conditions))
		for i, inner := range c.Composite.Conditions {
			committed, err := inner.Commit(ctx)
			if err != nil {
				return c, err
			}
			next[i] = committed
		}
		return Condition{Composite: &Composite{Conditions: next, Threshold: c.Composite.Threshold}}, nil
	default:
		return c, nil
	}
}
