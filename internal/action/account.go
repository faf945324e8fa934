package action

import (
	"github.com/shopspring/decimal"

	"calc/internal/errors"
	"calc/internal/ledger"
	"calc/internal/num"
	"calc/internal/operation"
	"calc/internal/registry"
	"calc/internal/stats"
)

var (
	ErrNoFundDenoms   = errors.New("action: fund strategy denoms cannot be empty")
	ErrNoFundTarget   = errors.New("action: fund strategy contract is required")
	ErrFundSelf       = errors.New("action: strategy cannot fund itself")
	ErrNoTrackedDenom = errors.New("action: tracked denom is required")
)

// FundStrategy sends the whole balance of Denoms to another strategy.
type FundStrategy struct {
	Contract string        `json:"contract_address"`
	Denoms   ledger.Denoms `json:"denoms"`
}

// Init requires the target to be a strategy known to the registry.
func (f FundStrategy) Init(ctx operation.Context) (FundStrategy, error) {
	if f.Contract == "" {
		return f, ErrNoFundTarget
	}
	if f.Contract == ctx.Env.Contract {
		return f, ErrFundSelf
	}
	if len(f.Denoms) == 0 {
		return f, ErrNoFundDenoms
	}
	status, err := ctx.Querier.Status(ctx.Ctx, f.Contract)
	if err != nil {
		return f, errors.Wrapf(err, "funded strategy %s", f.Contract)
	}
	if status == registry.StatusArchived {
		return f, errors.Errorf("action: funded strategy %s is archived", f.Contract)
	}
	f.Denoms = ledger.NewDenoms(f.Denoms...)
	return f, nil
}

func (f FundStrategy) Execute(ctx operation.Context) (FundStrategy, operation.Effects) {
	var funds ledger.Coins
	for _, denom := range f.Denoms {
		balance, err := ctx.Balance(denom)
		if err != nil {
			return f, operation.Skipped("fund_strategy", err)
		}
		funds = funds.Add(ledger.Coin{Denom: denom, Amount: balance})
	}
	if funds.IsZero() {
		return f, operation.Skipped("fund_strategy", errors.Errorf("action: nothing to fund %s with", f.Contract))
	}

	recipient := ledger.BankRecipient(f.Contract)
	payload := &stats.Payload{
		Statistics: stats.Statistics{Distributed: []stats.Distribution{{Recipient: recipient, Amount: funds}}},
		Events: []ledger.Event{ledger.NewEvent("fund_strategy").
			Add("contract_address", f.Contract).
			Add("total_funds", funds.String())},
	}
	return f, operation.Effects{}.Send(recipient.Send(funds), payload)
}

// TrackAccount follows the balance of Denom, booking every increase as
// credit and every decrease as debit.
type TrackAccount struct {
	Denom  string          `json:"denom"`
	Debit  decimal.Decimal `json:"debit"`
	Credit decimal.Decimal `json:"credit"`
}

// Init books the current balance as the opening credit.
func (t TrackAccount) Init(ctx operation.Context) (TrackAccount, error) {
	if t.Denom == "" {
		return t, ErrNoTrackedDenom
	}
	balance, err := ctx.Balance(t.Denom)
	if err != nil {
		return t, err
	}
	return TrackAccount{Denom: t.Denom, Debit: num.Zero, Credit: balance}, nil
}

// Net is the balance the account last saw.
func (t TrackAccount) Net() decimal.Decimal {
	return num.SubSat(t.Credit, t.Debit)
}

func (t TrackAccount) Execute(ctx operation.Context) (TrackAccount, operation.Effects) {
	balance, err := ctx.Balance(t.Denom)
	if err != nil {
		return t, operation.Skipped("track_account", err)
	}
	previous := t.Net()
	if balance.LessThan(previous) {
		t.Debit = t.Debit.Add(previous.Sub(balance))
	} else {
		t.Credit = t.Credit.Add(balance.Sub(previous))
	}
	return t, operation.Effects{}
}
