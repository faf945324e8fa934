package action

import (
	"calc/internal/cadence"
	"calc/internal/condition"
	"calc/internal/errors"
	"calc/internal/ledger"
	"calc/internal/operation"
)

var ErrNoScheduledAction = errors.New("action: schedule has no action")

// Schedule runs Action once per cadence period and keeps a trigger
// registered for the next one.
type Schedule struct {
	condition.Registration
	Cadence cadence.Cadence  `json:"cadence"`
	Next    *cadence.Cadence `json:"next,omitempty"`
	Action  *Action          `json:"action"`
}

func (s Schedule) size() int {
	if s.Action == nil {
		return 2
	}
	return s.Action.Size() + 2
}

func (s Schedule) with(a Action) Schedule {
	s.Action = &a
	return s
}

func (s Schedule) Init(ctx operation.Context, affiliates []operation.Affiliate) (Schedule, error) {
	if s.Action == nil {
		return s, ErrNoScheduledAction
	}
	if err := s.Registration.Validate(); err != nil {
		return s, err
	}
	if err := s.Cadence.Validate(); err != nil {
		return s, err
	}
	a, err := s.Action.Init(ctx, affiliates)
	if err != nil {
		return s, err
	}
	s.Next = nil
	return s.with(a), nil
}

func (s Schedule) Execute(ctx operation.Context) (Schedule, operation.Effects) {
	next, effects, err := s.execute(ctx)
	if err != nil {
		return s, operation.Skipped("schedule", err)
	}
	return next, effects
}

func (s Schedule) execute(ctx operation.Context) (Schedule, operation.Effects, error) {
	if s.Action == nil {
		return s, operation.Effects{}, ErrNoScheduledAction
	}
	due, err := s.Cadence.IsDue(ctx.Env)
	if err != nil {
		return s, operation.Effects{}, err
	}
	if !due {
		msg, err := s.Register(ctx, s.Cadence)
		if err != nil {
			return s, operation.Effects{}, err
		}
		return s, operation.Effects{}.Send(msg, nil), nil
	}

	cranked, err := s.Cadence.Crank(ctx.Env)
	if err != nil {
		return s, operation.Effects{}, err
	}
	msg, err := s.Register(ctx, cranked)
	if err != nil {
		return s, operation.Effects{}, err
	}

	a, effects := s.Action.Execute(ctx)
	s = s.with(a)
	s.Next = &cranked
	return s, effects.Send(msg, nil), nil
}

func (s Schedule) Denoms(ctx operation.Context) (ledger.Denoms, error) {
	out := s.Registration.Denoms()
	if s.Action == nil {
		return out, nil
	}
	d, err := s.Action.Denoms(ctx)
	if err != nil {
		return nil, err
	}
	return out.Union(d), nil
}

func (s Schedule) Escrowed(ctx operation.Context) (ledger.Denoms, error) {
	if s.Action == nil {
		return nil, nil
	}
	return s.Action.Escrowed(ctx)
}

func (s Schedule) Balances(ctx operation.Context, denoms ledger.Denoms) (ledger.Coins, error) {
	if s.Action == nil {
		return nil, nil
	}
	return s.Action.Balances(ctx, denoms)
}

func (s Schedule) Withdraw(ctx operation.Context, desired ledger.Denoms) (Schedule, operation.Effects, error) {
	if s.Action == nil {
		return s, operation.Effects{}, nil
	}
	a, effects, err := s.Action.Withdraw(ctx, desired)
	if err != nil {
		return s, operation.Effects{}, err
	}
	return s.with(a), effects, nil
}

func (s Schedule) Cancel(ctx operation.Context) (Schedule, operation.Effects, error) {
	if s.Action == nil {
		return s, operation.Effects{}, nil
	}
	a, effects, err := s.Action.Cancel(ctx)
	if err != nil {
		return s, operation.Effects{}, err
	}
	return s.with(a), effects, nil
}

// Commit promotes the cranked cadence and commits the nested action.
func (s Schedule) Commit(ctx operation.Context) (Schedule, error) {
	if s.Next != nil {
		s.Cadence, s.Next = *s.Next, nil
	}
	if s.Action == nil {
		return s, nil
	}
	a, err := s.Action.Commit(ctx)
	if err != nil {
		return s, err
	}
	return s.with(a), nil
}
