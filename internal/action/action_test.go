package action

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calc/internal/cadence"
	"calc/internal/condition"
	"calc/internal/distribute"
	"calc/internal/host"
	"calc/internal/ledger"
	"calc/internal/limitorder"
	"calc/internal/num"
	"calc/internal/operation"
	"calc/internal/registry"
	"calc/internal/scheduler"
	"calc/internal/swap"
)

const strategy = "strategy"

func newContext(q *host.Snapshot, height uint64) operation.Context {
	return operation.NewContext(context.Background(), ledger.Env{Height: height, Contract: strategy}, q)
}

func payout() Action {
	return Action{Distribute: &distribute.Distribute{
		Assets: []string{"rune"},
		Mutable: []distribute.Destination{
			{Shares: decimal.NewFromInt(10_000), Recipient: ledger.BankRecipient("alice")},
		},
	}}
}

func TestSize(t *testing.T) {
	testCases := []struct {
		desc string
		a    Action
		want int
	}{
		{desc: "swap counts routes", a: Action{Swap: &swap.Swap{Routes: make([]swap.Route, 2)}}, want: 9},
		{desc: "limit order", a: Action{LimitOrder: &limitorder.LimitOrder{}}, want: 4},
		{desc: "distribute counts destinations", a: payout(), want: 2},
		{desc: "track", a: Action{TrackAccount: &TrackAccount{}}, want: 1},
		{desc: "fund", a: Action{FundStrategy: &FundStrategy{}}, want: 1},
		{desc: "conditional", a: Action{Conditional: &Conditional{
			Conditions: []condition.Condition{condition.AtHeight(1)},
			Actions:    []Action{payout()},
		}}, want: 4},
		{desc: "schedule", a: Action{Schedule: &Schedule{Action: &Action{TrackAccount: &TrackAccount{}}}}, want: 3},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.a.Size())
		})
	}
}

func TestInitVariants(t *testing.T) {
	ctx := newContext(host.NewSnapshot(), 1)

	_, err := Action{}.Init(ctx, nil)
	require.ErrorIs(t, err, ErrEmptyAction)

	_, err = Action{TrackAccount: &TrackAccount{Denom: "rune"}, FundStrategy: &FundStrategy{}}.Init(ctx, nil)
	require.ErrorIs(t, err, ErrAmbiguous)

	_, err = Action{Conditional: &Conditional{Threshold: condition.All}}.Init(ctx, nil)
	require.ErrorIs(t, err, ErrNoActions)

	_, err = Action{Schedule: &Schedule{Cadence: cadence.EveryBlocks(5)}}.Init(ctx, nil)
	require.ErrorIs(t, err, ErrNoScheduledAction)
}

func TestConditional(t *testing.T) {
	testCases := []struct {
		desc      string
		height    uint64
		threshold condition.Threshold
		sends     bool
	}{
		{desc: "all met", height: 10, threshold: condition.All, sends: true},
		{desc: "all pending", height: 5, threshold: condition.All},
		{desc: "any met", height: 5, threshold: condition.Any, sends: true},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			q := host.NewSnapshot()
			q.SetBalance(strategy, "rune", num.Int(1_000))
			ctx := newContext(q, tc.height)

			a, err := Action{Conditional: &Conditional{
				Conditions: []condition.Condition{condition.AtHeight(10), condition.AtHeight(1)},
				Threshold:  tc.threshold,
				Actions:    []Action{payout()},
			}}.Init(ctx, nil)
			require.NoError(t, err)

			_, effects := a.Execute(ctx)
			if !tc.sends {
				assert.Empty(t, effects.Messages)
				require.Len(t, effects.Events, 1)
				assert.Equal(t, "skipped", effects.Events[0].Type)
				return
			}
			require.Len(t, effects.Messages, 1)
			assert.Equal(t, "alice", effects.Messages[0].Msg.To)

			escrowed, err := a.Escrowed(ctx)
			require.NoError(t, err)
			assert.Equal(t, ledger.NewDenoms("rune"), escrowed)
		})
	}
}

func TestConditionalCranksScheduleGate(t *testing.T) {
	q := host.NewSnapshot()
	q.SetBalance(strategy, "rune", num.Int(1_000))

	a, err := Action{Conditional: &Conditional{
		Conditions: []condition.Condition{{Schedule: &condition.Schedule{
			Registration: condition.Registration{Scheduler: "scheduler", Contract: "manager"},
			Cadence:      cadence.EveryBlocks(100),
		}}},
		Threshold: condition.All,
		Actions:   []Action{payout()},
	}}.Init(newContext(q, 100), nil)
	require.NoError(t, err)

	testCases := []struct {
		desc    string
		height  uint64
		payouts int
	}{
		{desc: "first due block", height: 100, payouts: 1},
		{desc: "next block", height: 101},
		{desc: "mid period", height: 103},
		{desc: "before period ends", height: 104},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			ctx := newContext(q, tc.height)
			next, effects := a.Execute(ctx)

			payouts := 0
			for _, m := range effects.Messages {
				if m.Msg.To == "alice" {
					payouts++
				}
			}
			assert.Equal(t, tc.payouts, payouts)

			if tc.payouts > 0 {
				require.Len(t, effects.Messages, 2)
				trigger, err := scheduler.DecodeCreate(strategy, effects.Messages[1].Msg)
				require.NoError(t, err)
				assert.Equal(t, uint64(200), *trigger.Create.Condition.BlocksCompleted)
			}

			a, err = next.Commit(ctx)
			require.NoError(t, err)
			s := a.Conditional.Conditions[0].Schedule
			require.NotNil(t, s.Cadence.Blocks.Previous)
			assert.Equal(t, uint64(100), *s.Cadence.Blocks.Previous)
			assert.Nil(t, s.Next)
		})
	}
}

func TestScheduleRunsNestedActionWhenDue(t *testing.T) {
	q := host.NewSnapshot()
	q.SetBalance(strategy, "rune", num.Int(1_000))
	ctx := newContext(q, 100)

	a, err := Action{Schedule: &Schedule{
		Registration: condition.Registration{Scheduler: "scheduler", Contract: "manager"},
		Cadence:      cadence.EveryBlocks(5),
		Action:       &Action{TrackAccount: &TrackAccount{Denom: "rune"}},
	}}.Init(ctx, nil)
	require.NoError(t, err)
	assert.True(t, a.Schedule.Action.TrackAccount.Credit.Equal(num.Int(1_000)))

	q.SetBalance(strategy, "rune", num.Int(400))
	next, effects := a.Execute(ctx)
	require.Len(t, effects.Messages, 1)
	assert.True(t, next.Schedule.Action.TrackAccount.Debit.Equal(num.Int(600)))

	trigger, err := scheduler.DecodeCreate(strategy, effects.Messages[0].Msg)
	require.NoError(t, err)
	assert.Equal(t, uint64(105), *trigger.Create.Condition.BlocksCompleted)

	committed, err := next.Commit(ctx)
	require.NoError(t, err)
	require.Nil(t, committed.Schedule.Next)
	assert.Equal(t, uint64(100), *committed.Schedule.Cadence.Blocks.Previous)

	later := newContext(q, 103)
	again, effects := committed.Execute(later)
	require.Len(t, effects.Messages, 1, "trigger stays registered")
	assert.True(t, again.Schedule.Action.TrackAccount.Debit.Equal(num.Int(600)), "nested action waits for the period")
	assert.Nil(t, again.Schedule.Next)
}

func TestFundStrategy(t *testing.T) {
	q := host.NewSnapshot()
	q.SetStatus("child", registry.StatusActive)
	q.SetBalance(strategy, "rune", num.Int(70))
	q.SetBalance(strategy, "usdc", num.Int(30))
	ctx := newContext(q, 1)

	_, err := Action{FundStrategy: &FundStrategy{Contract: "unknown", Denoms: ledger.NewDenoms("rune")}}.Init(ctx, nil)
	require.Error(t, err)

	_, err = Action{FundStrategy: &FundStrategy{Contract: strategy, Denoms: ledger.NewDenoms("rune")}}.Init(ctx, nil)
	require.ErrorIs(t, err, ErrFundSelf)

	a, err := Action{FundStrategy: &FundStrategy{Contract: "child", Denoms: ledger.NewDenoms("usdc", "rune")}}.Init(ctx, nil)
	require.NoError(t, err)

	_, effects := a.Execute(ctx)
	require.Len(t, effects.Messages, 1)
	m := effects.Messages[0]
	assert.Equal(t, "child", m.Msg.To)
	want := ledger.NewCoins(ledger.NewCoin(70, "rune"), ledger.NewCoin(30, "usdc"))
	assert.True(t, m.Msg.Funds.Equal(want))
	require.NotNil(t, m.Payload)
	assert.True(t, m.Payload.Statistics.DistributedTo("child").Equal(want))
}

func TestTrackAccount(t *testing.T) {
	q := host.NewSnapshot()
	q.SetBalance(strategy, "rune", num.Int(100))
	ctx := newContext(q, 1)

	a, err := Action{TrackAccount: &TrackAccount{Denom: "rune"}}.Init(ctx, nil)
	require.NoError(t, err)

	steps := []struct {
		balance int64
		debit   int64
		credit  int64
	}{
		{balance: 150, debit: 0, credit: 150},
		{balance: 120, debit: 30, credit: 150},
		{balance: 120, debit: 30, credit: 150},
		{balance: 200, debit: 30, credit: 230},
	}
	for _, step := range steps {
		q.SetBalance(strategy, "rune", num.Int(step.balance))
		var effects operation.Effects
		a, effects = a.Execute(ctx)
		assert.Empty(t, effects.Messages)
		assert.True(t, a.TrackAccount.Debit.Equal(num.Int(step.debit)), "debit at %d", step.balance)
		assert.True(t, a.TrackAccount.Credit.Equal(num.Int(step.credit)), "credit at %d", step.balance)
		assert.True(t, a.TrackAccount.Net().Equal(num.Int(step.balance)))
	}
}
