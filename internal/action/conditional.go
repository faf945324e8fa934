package action

import (
	"calc/internal/condition"
	"calc/internal/errors"
	"calc/internal/ledger"
	"calc/internal/operation"
)

var (
	ErrNoActions        = errors.New("action: no nested actions")
	ErrConditionsNotMet = errors.New("action: conditions not met")
)

// Conditional runs Actions in order when Conditions hold under Threshold.
type Conditional struct {
	Conditions []condition.Condition `json:"conditions"`
	Threshold  condition.Threshold   `json:"threshold"`
	Actions    []Action              `json:"actions"`
}

func (c Conditional) size() int {
	size := 1
	for _, cond := range c.Conditions {
		size += cond.Size()
	}
	for _, a := range c.Actions {
		size += a.Size()
	}
	return size
}

func (c Conditional) gate() condition.Condition {
	return condition.Condition{Composite: &condition.Composite{Conditions: c.Conditions, Threshold: c.Threshold}}
}

func (c Conditional) Init(ctx operation.Context, affiliates []operation.Affiliate) (Conditional, error) {
	if len(c.Actions) == 0 {
		return c, ErrNoActions
	}
	gate, err := c.gate().Init(ctx, affiliates)
	if err != nil {
		return c, err
	}
	actions, _, err := each(c.Actions, func(a Action) (Action, operation.Effects, error) {
		next, err := a.Init(ctx, affiliates)
		return next, operation.Effects{}, err
	})
	if err != nil {
		return c, err
	}
	return Conditional{Conditions: gate.Composite.Conditions, Threshold: c.Threshold, Actions: actions}, nil
}

func (c Conditional) Execute(ctx operation.Context) (Conditional, operation.Effects) {
	ok, err := c.gate().Satisfied(ctx)
	if err != nil {
		return c, operation.Skipped("conditional", err)
	}
	if !ok {
		return c, operation.Skipped("conditional", ErrConditionsNotMet)
	}

	// Cranks every due schedule in the gate; Commit promotes them.
	gate, gateEffects := c.gate().Execute(ctx)
	actions, effects, _ := each(c.Actions, func(a Action) (Action, operation.Effects, error) {
		next, effects := a.Execute(ctx)
		return next, effects, nil
	})
	c.Conditions = gate.Composite.Conditions
	c.Actions = actions
	return c, effects.Merge(gateEffects)
}

func (c Conditional) Denoms(ctx operation.Context) (ledger.Denoms, error) {
	out, err := c.gate().Denoms(ctx)
	if err != nil {
		return nil, err
	}
	for _, a := range c.Actions {
		d, err := a.Denoms(ctx)
		if err != nil {
			return nil, err
		}
		out = out.Union(d)
	}
	return out, nil
}

func (c Conditional) Escrowed(ctx operation.Context) (ledger.Denoms, error) {
	var out ledger.Denoms
	for _, a := range c.Actions {
		d, err := a.Escrowed(ctx)
		if err != nil {
			return nil, err
		}
		out = out.Union(d)
	}
	return out, nil
}

func (c Conditional) Balances(ctx operation.Context, denoms ledger.Denoms) (ledger.Coins, error) {
	var out ledger.Coins
	for _, a := range c.Actions {
		b, err := a.Balances(ctx, denoms)
		if err != nil {
			return nil, err
		}
		out = out.Merge(b)
	}
	return out, nil
}

func (c Conditional) Withdraw(ctx operation.Context, desired ledger.Denoms) (Conditional, operation.Effects, error) {
	actions, effects, err := each(c.Actions, func(a Action) (Action, operation.Effects, error) {
		return a.Withdraw(ctx, desired)
	})
	if err != nil {
		return c, operation.Effects{}, err
	}
	c.Actions = actions
	return c, effects, nil
}

func (c Conditional) Cancel(ctx operation.Context) (Conditional, operation.Effects, error) {
	actions, effects, err := each(c.Actions, func(a Action) (Action, operation.Effects, error) {
		return a.Cancel(ctx)
	})
	if err != nil {
		return c, operation.Effects{}, err
	}
	c.Actions = actions
	return c, effects, nil
}

func (c Conditional) Commit(ctx operation.Context) (Conditional, error) {
	gate, err := c.gate().Commit(ctx)
	if err != nil {
		return c, err
	}
	actions, _, err := each(c.Actions, func(a Action) (Action, operation.Effects, error) {
		next, err := a.Commit(ctx)
		return next, operation.Effects{}, err
	})
	if err != nil {
		return c, err
	}
	return Conditional{Conditions: gate.Composite.Conditions, Threshold: c.Threshold, Actions: actions}, nil
}
