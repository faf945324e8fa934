// Package action holds the Action sum type and the composite actions that
// gate or repeat other actions.
package action

import (
	"calc/internal/distribute"
	"calc/internal/errors"
	"calc/internal/ledger"
	"calc/internal/limitorder"
	"calc/internal/operation"
	"calc/internal/swap"
)

var (
	ErrEmptyAction = errors.New("action: no variant set")
	ErrAmbiguous   = errors.New("action: more than one variant set")
)

// Action is one step a strategy performs. Exactly one field is set.
type Action struct {
	Swap         *swap.Swap             `json:"swap,omitempty"`
	LimitOrder   *limitorder.LimitOrder `json:"limit_order,omitempty"`
	Distribute   *distribute.Distribute `json:"distribute,omitempty"`
	Conditional  *Conditional           `json:"conditional,omitempty"`
	Schedule     *Schedule              `json:"schedule,omitempty"`
	FundStrategy *FundStrategy          `json:"fund_strategy,omitempty"`
	TrackAccount *TrackAccount          `json:"track_account,omitempty"`
}

var _ operation.Operation[Action] = Action{}

func (a Action) variants() int {
	n := 0
	for _, set := range []bool{
		a.Swap != nil, a.LimitOrder != nil, a.Distribute != nil, a.Conditional != nil,
		a.Schedule != nil, a.FundStrategy != nil, a.TrackAccount != nil,
	} {
		if set {
			n++
		}
	}
	return n
}

// Kind names the variant for events and logs.
func (a Action) Kind() string {
	switch {
	case a.Swap != nil:
		return "swap"
	case a.LimitOrder != nil:
		return "limit_order"
	case a.Distribute != nil:
		return "distribute"
	case a.Conditional != nil:
		return "conditional"
	case a.Schedule != nil:
		return "schedule"
	case a.FundStrategy != nil:
		return "fund_strategy"
	case a.TrackAccount != nil:
		return "track_account"
	default:
		return "unknown"
	}
}

// Size is the weight of the action toward the strategy size cap.
func (a Action) Size() int {
	switch {
	case a.Swap != nil:
		return len(a.Swap.Routes)*4 + 1
	case a.LimitOrder != nil:
		return 4
	case a.Distribute != nil:
		return len(a.Distribute.Destinations()) + 1
	case a.Conditional != nil:
		return a.Conditional.size()
	case a.Schedule != nil:
		return a.Schedule.size()
	default:
		return 1
	}
}

func (a Action) Init(ctx operation.Context, affiliates []operation.Affiliate) (Action, error) {
	switch n := a.variants(); {
	case n == 0:
		return a, ErrEmptyAction
	case n > 1:
		return a, ErrAmbiguous
	}

	switch {
	case a.Swap != nil:
		s, err := a.Swap.Init(ctx, affiliates)
		return Action{Swap: &s}, errors.Wrap(err, "swap")
	case a.LimitOrder != nil:
		l, err := a.LimitOrder.Init(ctx, affiliates)
		return Action{LimitOrder: &l}, errors.Wrap(err, "limit order")
	case a.Distribute != nil:
		d, err := a.Distribute.Init(ctx, affiliates)
		return Action{Distribute: &d}, errors.Wrap(err, "distribute")
	case a.Conditional != nil:
		c, err := a.Conditional.Init(ctx, affiliates)
		return Action{Conditional: &c}, errors.Wrap(err, "conditional")
	case a.Schedule != nil:
		s, err := a.Schedule.Init(ctx, affiliates)
		return Action{Schedule: &s}, errors.Wrap(err, "schedule")
	case a.FundStrategy != nil:
		f, err := a.FundStrategy.Init(ctx)
		return Action{FundStrategy: &f}, errors.Wrap(err, "fund strategy")
	default:
		t, err := a.TrackAccount.Init(ctx)
		return Action{TrackAccount: &t}, errors.Wrap(err, "track account")
	}
}

func (a Action) Execute(ctx operation.Context) (Action, operation.Effects) {
	switch {
	case a.Swap != nil:
		s, effects := a.Swap.Execute(ctx)
		return Action{Swap: &s}, effects
	case a.LimitOrder != nil:
		l, effects := a.LimitOrder.Execute(ctx)
		return Action{LimitOrder: &l}, effects
	case a.Distribute != nil:
		d, effects := a.Distribute.Execute(ctx)
		return Action{Distribute: &d}, effects
	case a.Conditional != nil:
		c, effects := a.Conditional.Execute(ctx)
		return Action{Conditional: &c}, effects
	case a.Schedule != nil:
		s, effects := a.Schedule.Execute(ctx)
		return Action{Schedule: &s}, effects
	case a.FundStrategy != nil:
		f, effects := a.FundStrategy.Execute(ctx)
		return Action{FundStrategy: &f}, effects
	case a.TrackAccount != nil:
		t, effects := a.TrackAccount.Execute(ctx)
		return Action{TrackAccount: &t}, effects
	default:
		return a, operation.Skipped("action", ErrEmptyAction)
	}
}

func (a Action) Denoms(ctx operation.Context) (ledger.Denoms, error) {
	switch {
	case a.Swap != nil:
		return a.Swap.Denoms(ctx)
	case a.LimitOrder != nil:
		return a.LimitOrder.Denoms(ctx)
	case a.Distribute != nil:
		return a.Distribute.Denoms(ctx)
	case a.Conditional != nil:
		return a.Conditional.Denoms(ctx)
	case a.Schedule != nil:
		return a.Schedule.Denoms(ctx)
	case a.FundStrategy != nil:
		return a.FundStrategy.Denoms, nil
	case a.TrackAccount != nil:
		return ledger.NewDenoms(a.TrackAccount.Denom), nil
	default:
		return nil, nil
	}
}

func (a Action) Escrowed(ctx operation.Context) (ledger.Denoms, error) {
	switch {
	case a.Swap != nil:
		return a.Swap.Escrowed(ctx)
	case a.LimitOrder != nil:
		return a.LimitOrder.Escrowed(ctx)
	case a.Distribute != nil:
		return a.Distribute.Escrowed(ctx)
	case a.Conditional != nil:
		return a.Conditional.Escrowed(ctx)
	case a.Schedule != nil:
		return a.Schedule.Escrowed(ctx)
	default:
		return nil, nil
	}
}

func (a Action) Balances(ctx operation.Context, denoms ledger.Denoms) (ledger.Coins, error) {
	switch {
	case a.LimitOrder != nil:
		return a.LimitOrder.Balances(ctx, denoms)
	case a.Conditional != nil:
		return a.Conditional.Balances(ctx, denoms)
	case a.Schedule != nil:
		return a.Schedule.Balances(ctx, denoms)
	default:
		return nil, nil
	}
}

func (a Action) Withdraw(ctx operation.Context, desired ledger.Denoms) (Action, operation.Effects, error) {
	switch {
	case a.LimitOrder != nil:
		l, effects, err := a.LimitOrder.Withdraw(ctx, desired)
		return Action{LimitOrder: &l}, effects, err
	case a.Conditional != nil:
		c, effects, err := a.Conditional.Withdraw(ctx, desired)
		return Action{Conditional: &c}, effects, err
	case a.Schedule != nil:
		s, effects, err := a.Schedule.Withdraw(ctx, desired)
		return Action{Schedule: &s}, effects, err
	default:
		return a, operation.Effects{}, nil
	}
}

func (a Action) Cancel(ctx operation.Context) (Action, operation.Effects, error) {
	switch {
	case a.LimitOrder != nil:
		l, effects, err := a.LimitOrder.Cancel(ctx)
		return Action{LimitOrder: &l}, effects, err
	case a.Conditional != nil:
		c, effects, err := a.Conditional.Cancel(ctx)
		return Action{Conditional: &c}, effects, err
	case a.Schedule != nil:
		s, effects, err := a.Schedule.Cancel(ctx)
		return Action{Schedule: &s}, effects, err
	default:
		return a, operation.Effects{}, nil
	}
}

func (a Action) Commit(ctx operation.Context) (Action, error) {
	switch {
	case a.Swap != nil:
		s, err := a.Swap.Commit(ctx)
		return Action{Swap: &s}, err
	case a.LimitOrder != nil:
		l, err := a.LimitOrder.Commit(ctx)
		return Action{LimitOrder: &l}, err
	case a.Conditional != nil:
		c, err := a.Conditional.Commit(ctx)
		return Action{Conditional: &c}, err
	case a.Schedule != nil:
		s, err := a.Schedule.Commit(ctx)
		return Action{Schedule: &s}, err
	default:
		return a, nil
	}
}

// each applies fn to every action, short-circuiting on error.
func each(actions []Action, fn func(Action) (Action, operation.Effects, error)) ([]Action, operation.Effects, error) {
	var effects operation.Effects
	next := make([]Action, len(actions))
	for i, a := range actions {
		n, e, err := fn(a)
		if err != nil {
			return actions, operation.Effects{}, errors.Wrapf(err, "action %d", i)
		}
		next[i], effects = n, effects.Merge(e)
	}
	return next, effects, nil
}
