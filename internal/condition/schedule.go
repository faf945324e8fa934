package condition

import (
	"encoding/json"
	"time"

	"calc/internal/cadence"
	"calc/internal/errors"
	"calc/internal/ledger"
	"calc/internal/num"
	"calc/internal/operation"
	"calc/internal/registry"
	"calc/internal/scheduler"
)

var (
	ErrNoScheduler = errors.New("condition: scheduler address is required")
	ErrNoTarget    = errors.New("condition: trigger target is required")
)

// Registration describes the trigger a schedule registers with the
// scheduler. Msg defaults to executing the strategy through Contract.
type Registration struct {
	Scheduler string          `json:"scheduler"`
	Contract  string          `json:"contract_address"`
	Msg       json.RawMessage `json:"msg,omitempty"`
	Rebate    ledger.Coins    `json:"execution_rebate,omitempty"`
	Executors []string        `json:"executors,omitempty"`
	Jitter    time.Duration   `json:"jitter,omitempty"`
}

func (r Registration) Validate() error {
	if r.Scheduler == "" {
		return ErrNoScheduler
	}
	if r.Contract == "" {
		return ErrNoTarget
	}
	for _, c := range r.Rebate {
		if c.Amount.Sign() < 0 {
			return errors.Errorf("condition: negative rebate %s", c)
		}
	}
	return nil
}

// rebate caps every rebate coin at the strategy's balance.
func (r Registration) rebate(ctx operation.Context) (ledger.Coins, error) {
	var out ledger.Coins
	for _, c := range r.Rebate {
		balance, err := ctx.Balance(c.Denom)
		if err != nil {
			return nil, err
		}
		out = out.Add(ledger.Coin{Denom: c.Denom, Amount: num.Min(c.Amount, balance)})
	}
	return out, nil
}

// Register builds the scheduler message firing at the next due point of c.
func (r Registration) Register(ctx operation.Context, c cadence.Cadence) (ledger.Msg, error) {
	cond, err := c.Trigger(ctx.Env)
	if err != nil {
		return ledger.Msg{}, err
	}
	rebate, err := r.rebate(ctx)
	if err != nil {
		return ledger.Msg{}, err
	}
	msg := r.Msg
	if len(msg) == 0 {
		if msg, err = registry.ExecuteMsg(ctx.Env.Contract); err != nil {
			return ledger.Msg{}, err
		}
	}
	return scheduler.CreateMsg(r.Scheduler, scheduler.CreateTrigger{
		Condition: cond,
		Contract:  r.Contract,
		Msg:       msg,
		Executors: r.Executors,
		Jitter:    r.Jitter,
	}, rebate)
}

// Denoms are the rebate denoms.
func (r Registration) Denoms() ledger.Denoms {
	return r.Rebate.Denoms()
}

// Schedule is satisfied once its cadence is due. Executing it registers the
// trigger for the following run; the cranked cadence waits in Next until
// the registration is committed.
type Schedule struct {
	Registration
	Cadence cadence.Cadence  `json:"cadence"`
	Next    *cadence.Cadence `json:"next,omitempty"`
}

func (s Schedule) Init() (Schedule, error) {
	if err := s.Registration.Validate(); err != nil {
		return s, err
	}
	if err := s.Cadence.Validate(); err != nil {
		return s, err
	}
	s.Next = nil
	return s, nil
}

func (s Schedule) IsDue(ctx operation.Context) (bool, error) {
	return s.Cadence.IsDue(ctx.Env)
}

func (s Schedule) Execute(ctx operation.Context) (Schedule, operation.Effects, error) {
	due, err := s.Cadence.IsDue(ctx.Env)
	if err != nil {
		return s, operation.Effects{}, err
	}

	target := s.Cadence
	if due {
		if target, err = s.Cadence.Crank(ctx.Env); err != nil {
			return s, operation.Effects{}, err
		}
	}

	msg, err := s.Register(ctx, target)
	if err != nil {
		return s, operation.Effects{}, err
	}
	if due {
		s.Next = &target
	}
	return s, operation.Effects{}.Send(msg, nil), nil
}

// Commit promotes the cranked cadence.
func (s Schedule) Commit() Schedule {
	if s.Next != nil {
		s.Cadence, s.Next = *s.Next, nil
	}
	return s
}
