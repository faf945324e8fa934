// Package operation defines the capability protocol every strategy step
// implements and the context steps run in.
package operation

import (
	"context"

	"github.com/shopspring/decimal"

	"calc/internal/errors"
	"calc/internal/ledger"
	"calc/internal/registry"
	"calc/internal/stats"
	"calc/internal/venue"
)

// MaxTotalAffiliateBps caps the sum of affiliate fees on one strategy.
const MaxTotalAffiliateBps uint64 = 200

// Oracle reports reference prices.
type Oracle interface {
	Price(ctx context.Context, asset string) (decimal.Decimal, error)
}

// Querier is everything a step may read from the outside world.
type Querier interface {
	ledger.Bank
	venue.Fin
	venue.Thorchain
	registry.Reader
	Oracle
}

// Context is what a step sees during one Operation call.
type Context struct {
	Ctx     context.Context
	Env     ledger.Env
	Querier Querier
}

func NewContext(ctx context.Context, env ledger.Env, q Querier) Context {
	return Context{Ctx: ctx, Env: env, Querier: q}
}

// Balance returns the strategy's own free balance of denom.
func (c Context) Balance(denom string) (decimal.Decimal, error) {
	amount, err := c.Querier.Balance(c.Ctx, c.Env.Contract, denom)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "balance of %s", denom)
	}
	return amount, nil
}

// Affiliate is a fee recipient attached to a strategy at creation.
type Affiliate struct {
	Label   string `json:"label"`
	Address string `json:"address"`
	Bps     uint64 `json:"bps"`
}

// TotalBps sums the affiliate fees.
func TotalBps(affiliates []Affiliate) uint64 {
	var total uint64
	for _, a := range affiliates {
		total += a.Bps
	}
	return total
}

// Message is an outbound message. A message with a payload asks for a reply;
// the payload is applied only if the message succeeds.
type Message struct {
	Msg     ledger.Msg     `json:"msg"`
	Payload *stats.Payload `json:"payload,omitempty"`
}

// Effects are the messages and events produced by one call.
type Effects struct {
	Messages []Message
	Events   []ledger.Event
}

// Merge appends other after e.
func (e Effects) Merge(other Effects) Effects {
	return Effects{
		Messages: append(append([]Message(nil), e.Messages...), other.Messages...),
		Events:   append(append([]ledger.Event(nil), e.Events...), other.Events...),
	}
}

// Send appends a message.
func (e Effects) Send(msg ledger.Msg, payload *stats.Payload) Effects {
	return e.Merge(Effects{Messages: []Message{{Msg: msg, Payload: payload}}})
}

// Emit appends events.
func (e Effects) Emit(events ...ledger.Event) Effects {
	return e.Merge(Effects{Events: events})
}

func (e Effects) HasMessages() bool {
	return len(e.Messages) > 0
}

// Skipped is the event a step emits instead of failing an execution.
func Skipped(step string, reason error) Effects {
	return Effects{Events: []ledger.Event{
		ledger.NewEvent("skipped").Add("step", step).Add("reason", reason.Error()),
	}}
}

// Operation is the capability contract of a step. Every call consumes the
// receiver and returns its successor; callers must drop the old value.
//
// Execute never fails: an operational problem is reported through a skipped
// event and the unchanged step. Init is the only validation gate.
type Operation[T any] interface {
	Init(ctx Context, affiliates []Affiliate) (T, error)
	Execute(ctx Context) (T, Effects)
	Denoms(ctx Context) (ledger.Denoms, error)
	Escrowed(ctx Context) (ledger.Denoms, error)
	Balances(ctx Context, denoms ledger.Denoms) (ledger.Coins, error)
	Withdraw(ctx Context, desired ledger.Denoms) (T, Effects, error)
	Cancel(ctx Context) (T, Effects, error)
	Commit(ctx Context) (T, error)
}
