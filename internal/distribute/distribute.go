// Package distribute splits the strategy's balances across weighted
// destinations.
package distribute

import (
	"github.com/shopspring/decimal"

	"calc/internal/errors"
	"calc/internal/ledger"
	"calc/internal/num"
	"calc/internal/operation"
	"calc/internal/stats"
)

var (
	ErrNoDenoms          = errors.New("distribute: denoms cannot be empty")
	ErrDuplicateDenom    = errors.New("distribute: denoms cannot contain duplicates")
	ErrDestinationCount  = errors.New("distribute: destination count out of range")
	ErrZeroShares        = errors.New("distribute: destination shares cannot be zero")
	ErrSharesTooLow      = errors.New("distribute: shares too low")
	ErrEmptyRecipient    = errors.New("distribute: recipient has no address")
	ErrNativeDeposit     = errors.New("distribute: only secured assets can be deposited with a memo")
	ErrSharesChanged     = errors.New("distribute: total shares cannot change")
	ErrImmutableRemoved  = errors.New("distribute: immutable destinations cannot change")
	ErrDenomRemoved      = errors.New("distribute: denoms cannot be removed")
	ErrNothingToTransfer = errors.New("distribute: no balance to distribute")
)

const (
	// MaxDestinations bounds mutable plus immutable destinations.
	MaxDestinations = 20
	// MinTotalShares is the smallest total weight of user destinations.
	MinTotalShares int64 = 10_000
)

// Destination receives Shares out of the total weight.
type Destination struct {
	Shares    decimal.Decimal  `json:"shares"`
	Recipient ledger.Recipient `json:"recipient"`
	Label     string           `json:"label,omitempty"`
}

// Distribute sends the balance of every denom in Assets pro-rata to its
// destinations.
// Amounts are floored; any remainder stays with the strategy.
type Distribute struct {
	Assets    []string      `json:"denoms"`
	Mutable   []Destination `json:"mutable_destinations,omitempty"`
	Immutable []Destination `json:"immutable_destinations,omitempty"`
	// Affiliates are derived from the strategy's affiliates on init.
	Affiliates []Destination `json:"affiliate_destinations,omitempty"`
}

var _ operation.Operation[Distribute] = Distribute{}

// UserDestinations lists mutable then immutable destinations.
func (d Distribute) UserDestinations() []Destination {
	out := make([]Destination, 0, len(d.Mutable)+len(d.Immutable))
	out = append(out, d.Mutable...)
	return append(out, d.Immutable...)
}

// Destinations lists every destination including affiliates.
func (d Distribute) Destinations() []Destination {
	return append(d.UserDestinations(), d.Affiliates...)
}

// UserShares is the total weight of user destinations.
func (d Distribute) UserShares() decimal.Decimal {
	return total(d.UserDestinations())
}

func total(destinations []Destination) decimal.Decimal {
	sum := decimal.Zero
	for _, dst := range destinations {
		sum = sum.Add(dst.Shares)
	}
	return sum
}

func (d Distribute) validate() error {
	if len(d.Assets) == 0 {
		return ErrNoDenoms
	}
	if len(ledger.NewDenoms(d.Assets...)) != len(d.Assets) {
		return ErrDuplicateDenom
	}

	destinations := d.UserDestinations()
	if len(destinations) == 0 || len(destinations) > MaxDestinations {
		return errors.Wrapf(ErrDestinationCount, "%d destinations, expected 1..%d", len(destinations), MaxDestinations)
	}

	secured := true
	for _, denom := range d.Assets {
		secured = secured && ledger.IsSecured(denom)
	}

	for i, dst := range destinations {
		if dst.Shares.Sign() <= 0 {
			return errors.Wrapf(ErrZeroShares, "destination %d", i)
		}
		switch dst.Recipient.Kind {
		case ledger.MsgKindDeposit:
			if dst.Recipient.Memo == "" {
				return errors.Wrapf(ErrEmptyRecipient, "destination %d", i)
			}
			if !secured {
				return errors.Wrapf(ErrNativeDeposit, "memo %s", dst.Recipient.Memo)
			}
		case ledger.MsgKindBank, ledger.MsgKindContract:
			if dst.Recipient.Address == "" {
				return errors.Wrapf(ErrEmptyRecipient, "destination %d", i)
			}
		default:
			return errors.Wrapf(ledger.ErrUnknownMsgKind, "destination %d", i)
		}
	}

	if shares := total(destinations); shares.LessThan(num.Int(MinTotalShares)) {
		return errors.Wrapf(ErrSharesTooLow, "total %s, minimum %d", shares, MinTotalShares)
	}
	return nil
}

// Init validates the destinations and derives one bank destination per
// affiliate weighted ceil(total * bps / 10000).
func (d Distribute) Init(_ operation.Context, affiliates []operation.Affiliate) (Distribute, error) {
	if err := d.validate(); err != nil {
		return d, err
	}

	shares := d.UserShares()
	derived := make([]Destination, 0, len(affiliates))
	for _, a := range affiliates {
		if a.Bps == 0 {
			continue
		}
		derived = append(derived, Destination{
			Shares:    num.MulDivCeil(shares, num.Uint(a.Bps), num.Bps()),
			Recipient: ledger.BankRecipient(a.Address),
			Label:     a.Label,
		})
	}
	if len(derived) == 0 {
		derived = nil
	}
	d.Affiliates = derived
	return d, nil
}

// Preserve checks that d may replace prev: the user weight is unchanged,
// every immutable destination survives and no denom is dropped.
func (d Distribute) Preserve(prev Distribute) error {
	if !d.UserShares().Equal(prev.UserShares()) {
		return errors.Wrapf(ErrSharesChanged, "from %s to %s", prev.UserShares(), d.UserShares())
	}

	kept := make(map[string]decimal.Decimal, len(d.Immutable))
	for _, dst := range d.Immutable {
		kept[recipientKey(dst.Recipient)] = kept[recipientKey(dst.Recipient)].Add(dst.Shares)
	}
	for _, dst := range prev.Immutable {
		key := recipientKey(dst.Recipient)
		shares, ok := kept[key]
		if !ok || shares.LessThan(dst.Shares) {
			return errors.Wrapf(ErrImmutableRemoved, "recipient %s", dst.Recipient.Key())
		}
		kept[key] = shares.Sub(dst.Shares)
	}

	denoms := ledger.NewDenoms(d.Assets...)
	for _, denom := range prev.Assets {
		if !denoms.Contains(denom) {
			return errors.Wrapf(ErrDenomRemoved, "denom %s", denom)
		}
	}
	return nil
}

func recipientKey(r ledger.Recipient) string {
	return r.Kind.String() + ":" + r.Key() + ":" + string(r.Msg)
}

func (d Distribute) Execute(ctx operation.Context) (Distribute, operation.Effects) {
	effects, err := d.execute(ctx)
	if err != nil {
		return d, operation.Skipped("distribute", err)
	}
	return d, effects
}

func (d Distribute) execute(ctx operation.Context) (operation.Effects, error) {
	var balances ledger.Coins
	for _, denom := range d.Assets {
		amount, err := ctx.Balance(denom)
		if err != nil {
			return operation.Effects{}, err
		}
		balances = balances.Add(ledger.Coin{Denom: denom, Amount: amount})
	}
	if balances.IsZero() {
		return operation.Effects{}, ErrNothingToTransfer
	}

	destinations := d.Destinations()
	weight := total(destinations)

	var effects operation.Effects
	for _, dst := range destinations {
		var share ledger.Coins
		for _, c := range balances {
			share = share.Add(ledger.Coin{Denom: c.Denom, Amount: num.MulDivFloor(c.Amount, dst.Shares, weight)})
		}
		if share.IsZero() {
			continue
		}
		payload := &stats.Payload{
			Statistics: stats.Statistics{Distributed: []stats.Distribution{{Recipient: dst.Recipient, Amount: share}}},
		}
		effects = effects.Send(dst.Recipient.Send(share), payload)
	}
	if !effects.HasMessages() {
		return operation.Effects{}, errors.Wrap(ErrNothingToTransfer, "every share rounds to zero")
	}
	return effects, nil
}

func (d Distribute) Denoms(operation.Context) (ledger.Denoms, error) {
	return ledger.NewDenoms(d.Assets...), nil
}

func (d Distribute) Escrowed(operation.Context) (ledger.Denoms, error) {
	return ledger.NewDenoms(d.Assets...), nil
}

// Balances is empty: funds leave the strategy as soon as they are split.
func (d Distribute) Balances(operation.Context, ledger.Denoms) (ledger.Coins, error) {
	return nil, nil
}

func (d Distribute) Withdraw(operation.Context, ledger.Denoms) (Distribute, operation.Effects, error) {
	return d, operation.Effects{}, nil
}

func (d Distribute) Cancel(operation.Context) (Distribute, operation.Effects, error) {
	return d, operation.Effects{}, nil
}

func (d Distribute) Commit(operation.Context) (Distribute, error) {
	return d, nil
}
