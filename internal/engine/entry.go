package engine

import (
	"github.com/yanun0323/logs"

	"calc/internal/errors"
	"calc/internal/graph"
	"calc/internal/host"
	"calc/internal/ledger"
	"calc/internal/num"
	"calc/internal/operation"
	"calc/internal/stats"
	"calc/internal/store"
	"calc/pkg/exception"
)

var (
	ErrNothingToWithdraw = errors.New("engine: nothing to withdraw")
	ErrMalformedReply    = errors.New("engine: malformed reply payload")
)

var first = graph.At(0)

func (e *Engine) init(ctx operation.Context, req host.Request) (outcome, error) {
	if _, err := e.store.Load(ctx.Ctx, req.Contract); err == nil {
		return outcome{}, errors.Wrapf(exception.ErrAlreadyInitialized, "strategy %s", req.Contract)
	} else if !errors.Is(err, exception.ErrNotFound) {
		return outcome{}, err
	}

	msg, err := decode[InitMsg](req)
	if err != nil {
		return outcome{}, err
	}
	owner := msg.Owner
	if owner == "" {
		owner = req.Sender
	}

	s, err := graph.Strategy{
		Owner:      owner,
		Manager:    req.Sender,
		Contract:   req.Contract,
		Label:      msg.Label,
		Affiliates: msg.Affiliates,
		Nodes:      msg.Nodes,
	}.Init(ctx)
	if err != nil {
		return outcome{}, invalid(err)
	}

	rec := store.Record{Contract: req.Contract, Strategy: s}
	var out outcome
	if err := e.run(ctx, &rec, first, &out); err != nil {
		return outcome{}, err
	}
	out.rec = &rec
	return out, nil
}

func (e *Engine) execute(ctx operation.Context, req host.Request, rec store.Record) (outcome, error) {
	if err := authorize(req, rec.Strategy.Manager); err != nil {
		return outcome{}, err
	}
	var out outcome
	if err := e.run(ctx, &rec, first, &out); err != nil {
		return outcome{}, err
	}
	out.rec = &rec
	return out, nil
}

// withdraw releases the desired denoms from every node and sends the owner
// what is available of the requested amounts.
func (e *Engine) withdraw(ctx operation.Context, req host.Request, rec store.Record) (outcome, error) {
	if err := authorize(req, rec.Strategy.Owner, rec.Strategy.Manager); err != nil {
		return outcome{}, err
	}
	msg, err := decode[WithdrawMsg](req)
	if err != nil {
		return outcome{}, err
	}
	desired := msg.Amounts.Denoms()
	if len(desired) == 0 {
		return outcome{}, invalid(ErrNothingToWithdraw)
	}
	for _, denom := range desired {
		if rec.Strategy.Escrowed.Contains(denom) {
			return outcome{}, invalid(errors.Wrapf(exception.ErrEscrowedWithdraw, "denom %s", denom))
		}
	}

	available, err := e.available(ctx, rec.Strategy, desired)
	if err != nil {
		return outcome{}, err
	}

	var out outcome
	for _, n := range rec.Strategy.Nodes {
		next, effects, err := n.Withdraw(ctx, desired)
		if err != nil {
			return outcome{}, errors.Wrapf(err, "withdraw node %d", n.Index)
		}
		rec.Strategy = rec.Strategy.WithNode(next)
		out.effects = out.effects.Merge(effects)
	}
	released := out.effects.HasMessages()

	var send ledger.Coins
	for _, c := range msg.Amounts {
		send = send.Add(ledger.Coin{Denom: c.Denom, Amount: num.Min(c.Amount, available.AmountOf(c.Denom))})
	}
	if !send.IsZero() {
		payload := &stats.Payload{
			Statistics: stats.Statistics{Withdrawn: send},
			Events:     []ledger.Event{ledger.NewEvent("withdraw").Add("amount", send.String())},
		}
		out.effects = out.effects.Send(ledger.BankMsg(rec.Strategy.Owner, send), payload)
	}

	if released {
		if err := suspendClear(&rec, &out); err != nil {
			return outcome{}, err
		}
	}
	out.rec = &rec
	return out, nil
}

// available is the free balance plus what every node holds of denoms.
func (e *Engine) available(ctx operation.Context, s graph.Strategy, denoms ledger.Denoms) (ledger.Coins, error) {
	var coins ledger.Coins
	for _, denom := range denoms {
		amount, err := ctx.Balance(denom)
		if err != nil {
			return nil, err
		}
		coins = coins.Add(ledger.Coin{Denom: denom, Amount: amount})
	}
	for _, n := range s.Nodes {
		held, err := n.Balances(ctx, denoms)
		if err != nil {
			return nil, errors.Wrapf(err, "balances of node %d", n.Index)
		}
		coins = coins.Merge(held)
	}
	return coins, nil
}

// update validates the new graph first. When cancelling the old graph emits
// messages the replacement waits until they went through: the update is
// sent again by the strategy itself after a Process clear call.
func (e *Engine) update(ctx operation.Context, req host.Request, rec store.Record) (outcome, error) {
	self := req.Sender == rec.Contract
	if err := authorize(req, rec.Strategy.Manager, rec.Contract); err != nil {
		return outcome{}, err
	}
	msg, err := decode[UpdateMsg](req)
	if err != nil {
		return outcome{}, err
	}

	prev := rec.Strategy
	next, err := graph.Strategy{
		Owner:      prev.Owner,
		Manager:    prev.Manager,
		Contract:   prev.Contract,
		Label:      prev.Label,
		Affiliates: prev.Affiliates,
		Nodes:      msg.Nodes,
	}.Init(ctx)
	if err != nil {
		return outcome{}, invalid(err)
	}
	if err := next.Preserve(prev); err != nil {
		return outcome{}, invalid(err)
	}

	var out outcome
	if !self {
		cancelled, effects, err := e.cancelAll(ctx, prev)
		if err != nil {
			return outcome{}, err
		}
		if effects.HasMessages() {
			rec.Strategy = cancelled
			out.effects = effects
			if err := suspendClear(&rec, &out); err != nil {
				return outcome{}, err
			}
			if err := out.call(host.EntryUpdate, msg); err != nil {
				return outcome{}, err
			}
			out.rec = &rec
			return out, nil
		}
		out.effects = effects
	}

	rec.Strategy = next
	if err := e.run(ctx, &rec, first, &out); err != nil {
		return outcome{}, err
	}
	out.rec = &rec
	return out, nil
}

func (e *Engine) cancelAll(ctx operation.Context, s graph.Strategy) (graph.Strategy, operation.Effects, error) {
	var all operation.Effects
	for _, n := range s.Nodes {
		next, effects, err := n.Cancel(ctx)
		if err != nil {
			return s, operation.Effects{}, errors.Wrapf(err, "cancel node %d", n.Index)
		}
		s = s.WithNode(next)
		all = all.Merge(effects)
	}
	return s, all, nil
}

func (e *Engine) cancel(ctx operation.Context, req host.Request, rec store.Record) (outcome, error) {
	if err := authorize(req, rec.Strategy.Manager); err != nil {
		return outcome{}, err
	}
	cancelled, effects, err := e.cancelAll(ctx, rec.Strategy)
	if err != nil {
		return outcome{}, err
	}
	rec.Strategy = cancelled

	out := outcome{effects: effects}
	if effects.HasMessages() {
		if err := suspendClear(&rec, &out); err != nil {
			return outcome{}, err
		}
	} else {
		e.commitAll(ctx, &rec, &out)
		rec.Pending = nil
	}
	out.rec = &rec
	return out, nil
}

// reply applies the payload of a message that went through. A failed
// message leaves the statistics untouched.
func (e *Engine) reply(_ operation.Context, req host.Request, rec store.Record) (outcome, error) {
	if err := authorize(req, rec.Contract); err != nil {
		return outcome{}, err
	}
	msg, err := decode[ReplyMsg](req)
	if err != nil {
		return outcome{}, err
	}
	if !msg.OK {
		e.metrics.IncReply(false)
		logs.Errorf("strategy %s: message %d failed, payload discarded: %s", rec.Contract, msg.ID, msg.Error)
		return outcome{}, nil
	}

	payload, err := stats.DecodePayload(msg.Payload)
	if err != nil {
		return outcome{}, invalid(errors.Wrap(ErrMalformedReply, err.Error()))
	}
	e.metrics.IncReply(true)
	rec.Statistics = rec.Statistics.Merge(payload.Statistics)

	var out outcome
	for _, ev := range payload.Events {
		out.effects = out.effects.Emit(ev.Namespaced("strategy."))
	}
	out.rec = &rec
	return out, nil
}
