package condition

import (
	"context"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calc/internal/cadence"
	"calc/internal/host"
	"calc/internal/ledger"
	"calc/internal/limitorder"
	"calc/internal/num"
	"calc/internal/operation"
	"calc/internal/registry"
	"calc/internal/scheduler"
	"calc/internal/venue"
)

const strategy = "strategy"

var now = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func newContext(q *host.Snapshot, height uint64) operation.Context {
	return operation.NewContext(context.Background(), ledger.Env{Height: height, Time: now, Contract: strategy}, q)
}

func TestThresholdFold(t *testing.T) {
	testCases := []struct {
		desc      string
		threshold Threshold
		results   []bool
		want      bool
	}{
		{desc: "empty all holds", threshold: All, want: true},
		{desc: "empty any fails", threshold: Any},
		{desc: "all with one false", threshold: All, results: []bool{true, false}},
		{desc: "any with one true", threshold: Any, results: []bool{false, true}, want: true},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.threshold.Fold(tc.results))
		})
	}
}

func TestSatisfied(t *testing.T) {
	q := host.NewSnapshot()
	q.SetBalance(strategy, "rune", num.Int(500))
	q.SetBalance("other", "rune", num.Int(10))
	q.SetStatus("child", registry.StatusActive)
	q.SetPrice("btc-btc", num.Int(100_000))
	q.SetOrder(host.OrderKey{Pair: "fin", Owner: strategy, Side: venue.SideBase, Price: num.One}, venue.Order{
		Offer: num.Int(100), Remaining: num.Zero, Filled: num.Int(100),
	})
	ctx := newContext(q, 100)

	filled := num.Int(150)
	testCases := []struct {
		desc string
		c    Condition
		want bool
	}{
		{desc: "height reached", c: AtHeight(100), want: true},
		{desc: "height pending", c: AtHeight(101)},
		{desc: "time reached", c: AtTime(now), want: true},
		{desc: "time pending", c: AtTime(now.Add(time.Second))},
		{desc: "own balance", c: Condition{BalanceAvailable: &BalanceAvailable{Amount: ledger.NewCoin(500, "rune")}}, want: true},
		{desc: "other balance short", c: Condition{BalanceAvailable: &BalanceAvailable{Address: "other", Amount: ledger.NewCoin(11, "rune")}}},
		{desc: "status matches", c: Condition{StrategyStatus: &StrategyStatus{Contract: "child", Status: registry.StatusActive}}, want: true},
		{desc: "status differs", c: Condition{StrategyStatus: &StrategyStatus{Contract: "child", Status: registry.StatusPaused}}},
		{desc: "oracle above is strict", c: Condition{OraclePrice: &OraclePrice{Asset: "btc-btc", Direction: limitorder.Above, Price: num.Int(100_000)}}},
		{desc: "oracle below", c: Condition{OraclePrice: &OraclePrice{Asset: "btc-btc", Direction: limitorder.Below, Price: num.Int(100_001)}}, want: true},
		{desc: "order filled", c: Condition{LimitOrderFilled: &LimitOrderFilled{Pair: "fin", Side: venue.SideBase, Price: num.One}}, want: true},
		{desc: "order below minimum fill", c: Condition{LimitOrderFilled: &LimitOrderFilled{Pair: "fin", Side: venue.SideBase, Price: num.One, MinimumFilled: &filled}}},
		{desc: "not", c: Negate(AtHeight(101)), want: true},
		{desc: "empty all", c: AllOf(), want: true},
		{desc: "empty any", c: AnyOf()},
		{desc: "any of mixed", c: AnyOf(AtHeight(101), AtHeight(99)), want: true},
		{desc: "all of mixed", c: AllOf(AtHeight(101), AtHeight(99))},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			ok, err := tc.c.Satisfied(ctx)
			require.NoError(t, err)
			assert.Equal(t, tc.want, ok)
		})
	}
}

func TestSatisfiedMissingOrder(t *testing.T) {
	ctx := newContext(host.NewSnapshot(), 1)
	c := Condition{LimitOrderFilled: &LimitOrderFilled{Pair: "fin", Side: venue.SideBase, Price: num.One}}
	_, err := c.Satisfied(ctx)
	require.ErrorIs(t, err, venue.ErrOrderNotFound)
}

func TestSize(t *testing.T) {
	schedule := Condition{Schedule: &Schedule{}}
	testCases := []struct {
		desc string
		c    Condition
		want int
	}{
		{desc: "height", c: AtHeight(1), want: 1},
		{desc: "schedule", c: schedule, want: 2},
		{desc: "not is transparent", c: Negate(schedule), want: 2},
		{desc: "composite adds one", c: AllOf(AtHeight(1), schedule), want: 4},
		{desc: "nested composite", c: AnyOf(AllOf(AtHeight(1)), AtTime(now)), want: 4},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.c.Size())
		})
	}
}

func TestInit(t *testing.T) {
	q := host.NewSnapshot()
	q.SetPair("fin", venue.Pair{Base: "rune", Quote: "usdc"})
	q.SetStatus("child", registry.StatusActive)
	ctx := newContext(q, 1)

	testCases := []struct {
		desc string
		c    Condition
		ok   bool
	}{
		{desc: "empty", c: Condition{}},
		{desc: "ambiguous", c: Condition{BlocksCompleted: new(uint64), Not: &Condition{}}},
		{desc: "height", c: AtHeight(10), ok: true},
		{desc: "schedule without scheduler", c: Condition{Schedule: &Schedule{Cadence: cadence.EveryBlocks(10)}}},
		{desc: "schedule bad cron", c: Condition{Schedule: &Schedule{
			Registration: Registration{Scheduler: "scheduler", Contract: "manager"},
			Cadence:      cadence.OnCron("not a cron"),
		}}},
		{desc: "schedule", ok: true, c: Condition{Schedule: &Schedule{
			Registration: Registration{Scheduler: "scheduler", Contract: "manager"},
			Cadence:      cadence.EveryBlocks(10),
		}}},
		{desc: "order on unknown pair", c: Condition{LimitOrderFilled: &LimitOrderFilled{Pair: "nope", Side: venue.SideBase, Price: num.One}}},
		{desc: "order", ok: true, c: Condition{LimitOrderFilled: &LimitOrderFilled{Pair: "fin", Side: venue.SideQuote, Price: num.One}}},
		{desc: "unknown strategy", c: Condition{StrategyStatus: &StrategyStatus{Contract: "nope", Status: registry.StatusActive}}},
		{desc: "status", ok: true, c: Condition{StrategyStatus: &StrategyStatus{Contract: "child", Status: registry.StatusArchived}}},
		{desc: "oracle native asset", c: Condition{OraclePrice: &OraclePrice{Asset: "rune", Direction: limitorder.Above, Price: num.One}}},
		{desc: "oracle", ok: true, c: Condition{OraclePrice: &OraclePrice{Asset: "btc-btc", Direction: limitorder.Above, Price: num.One}}},
		{desc: "composite bubbles inner error", c: AllOf(AtHeight(1), Condition{})},
		{desc: "not bubbles inner error", c: Negate(Condition{})},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := tc.c.Init(ctx, nil)
			if tc.ok {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
		})
	}
}

func everyTenBlocks() Condition {
	return Condition{Schedule: &Schedule{
		Registration: Registration{
			Scheduler: "scheduler",
			Contract:  "manager",
			Rebate:    ledger.NewCoins(ledger.NewCoin(50, "rune")),
		},
		Cadence: cadence.EveryBlocks(10),
	}}
}

func TestScheduleDueRegistersCrankedTrigger(t *testing.T) {
	q := host.NewSnapshot()
	q.SetBalance(strategy, "rune", num.Int(20))
	ctx := newContext(q, 100)

	c, err := everyTenBlocks().Init(ctx, nil)
	require.NoError(t, err)

	ok, err := c.Satisfied(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	next, effects := c.Execute(ctx)
	require.Len(t, effects.Messages, 1)
	require.NotNil(t, next.Schedule.Next)
	assert.Nil(t, next.Schedule.Cadence.Blocks.Previous)

	m := effects.Messages[0].Msg
	assert.Equal(t, "scheduler", m.To)
	assert.True(t, m.Funds.Equal(ledger.NewCoins(ledger.NewCoin(20, "rune"))), "rebate is capped at the balance")

	trigger, err := scheduler.DecodeCreate(strategy, m)
	require.NoError(t, err)
	require.NotNil(t, trigger.Create.Condition.BlocksCompleted)
	assert.Equal(t, uint64(110), *trigger.Create.Condition.BlocksCompleted)
	assert.Equal(t, "manager", trigger.Create.Contract)

	want, err := registry.ExecuteMsg(strategy)
	require.NoError(t, err)
	assert.JSONEq(t, string(want), string(trigger.Create.Msg))

	committed, err := next.Commit(ctx)
	require.NoError(t, err)
	assert.Nil(t, committed.Schedule.Next)
	require.NotNil(t, committed.Schedule.Cadence.Blocks.Previous)
	assert.Equal(t, uint64(100), *committed.Schedule.Cadence.Blocks.Previous)

	ok, err = committed.Satisfied(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestScheduleNotDueRegistersCurrentTrigger(t *testing.T) {
	q := host.NewSnapshot()
	ctx := newContext(q, 105)

	c := everyTenBlocks()
	previous := uint64(100)
	c.Schedule.Cadence.Blocks.Previous = &previous

	next, effects := c.Execute(ctx)
	require.Len(t, effects.Messages, 1)
	assert.Nil(t, next.Schedule.Next)
	assert.Empty(t, effects.Messages[0].Msg.Funds)

	trigger, err := scheduler.DecodeCreate(strategy, effects.Messages[0].Msg)
	require.NoError(t, err)
	assert.Equal(t, uint64(110), *trigger.Create.Condition.BlocksCompleted)
}

func TestCompositeExecutesNestedSchedules(t *testing.T) {
	ctx := newContext(host.NewSnapshot(), 100)
	c := AllOf(AtHeight(1), Negate(everyTenBlocks()))

	next, effects := c.Execute(ctx)
	require.Len(t, effects.Messages, 1)
	require.NotNil(t, next.Composite.Conditions[1].Not.Schedule.Next)

	denoms, err := next.Denoms(ctx)
	require.NoError(t, err)
	assert.Equal(t, ledger.NewDenoms("rune"), denoms)

	committed, err := next.Commit(ctx)
	require.NoError(t, err)
	assert.Nil(t, committed.Composite.Conditions[1].Not.Schedule.Next)
}

func TestConditionJSON(t *testing.T) {
	raw := `{"composite":{"threshold":"any","conditions":[{"blocks_completed":10},{"not":{"oracle_price":{"asset":"btc-btc","direction":"above","price":"5"}}}]}}`

	var c Condition
	require.NoError(t, sonic.Unmarshal([]byte(raw), &c))
	require.NotNil(t, c.Composite)
	assert.Equal(t, Any, c.Composite.Threshold)
	require.Len(t, c.Composite.Conditions, 2)
	assert.Equal(t, uint64(10), *c.Composite.Conditions[0].BlocksCompleted)
	assert.Equal(t, "oracle_price", c.Composite.Conditions[1].Not.Kind())
}
