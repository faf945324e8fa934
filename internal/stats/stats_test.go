package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calc/internal/ledger"
)

func sample() (Statistics, Statistics, Statistics) {
	a := Statistics{
		Swapped: ledger.NewCoins(ledger.NewCoin(100, "rune")),
		Distributed: []Distribution{
			{Recipient: ledger.BankRecipient("alice"), Amount: ledger.NewCoins(ledger.NewCoin(7, "btc-btc"))},
		},
	}
	b := Statistics{
		Filled: ledger.NewCoins(ledger.NewCoin(3, "x/ruji")),
		Distributed: []Distribution{
			{Recipient: ledger.BankRecipient("alice"), Amount: ledger.NewCoins(ledger.NewCoin(3, "btc-btc"))},
			{Recipient: ledger.DepositRecipient("memo"), Amount: ledger.NewCoins(ledger.NewCoin(1, "eth-eth"))},
		},
	}
	c := Statistics{
		Swapped:   ledger.NewCoins(ledger.NewCoin(5, "rune"), ledger.NewCoin(1, "x/ruji")),
		Withdrawn: ledger.NewCoins(ledger.NewCoin(9, "rune")),
		Distributed: []Distribution{
			{Recipient: ledger.ContractRecipient("alice", nil), Amount: ledger.NewCoins(ledger.NewCoin(2, "btc-btc"))},
		},
	}
	return a, b, c
}

func TestMergeCommutative(t *testing.T) {
	a, b, c := sample()
	assert.True(t, a.Merge(b).Equal(b.Merge(a)))
	assert.True(t, a.Merge(c).Equal(c.Merge(a)))
	assert.True(t, b.Merge(c).Equal(c.Merge(b)))
}

func TestMergeAssociative(t *testing.T) {
	a, b, c := sample()
	assert.True(t, a.Merge(b).Merge(c).Equal(a.Merge(b.Merge(c))))
}

func TestMergeIdentity(t *testing.T) {
	a, _, _ := sample()
	assert.True(t, a.Merge(Statistics{}).Equal(a))
	assert.True(t, Statistics{}.Merge(a).Equal(a))
	assert.True(t, Statistics{}.IsZero())
}

func TestMergeTotals(t *testing.T) {
	a, b, c := sample()
	total := a.Merge(b).Merge(c)
	assert.Equal(t, "105", total.Swapped.AmountOf("rune").String())
	require.Len(t, total.Distributed, 3)
	assert.Equal(t, "12", total.DistributedTo("alice").AmountOf("btc-btc").String())
}

func TestPayloadRoundTrip(t *testing.T) {
	a, _, _ := sample()
	p := Payload{Statistics: a, Events: []ledger.Event{ledger.NewEvent("swap").Add("amount", "100rune")}}
	data, err := p.Encode()
	require.NoError(t, err)

	decoded, err := DecodePayload(data)
	require.NoError(t, err)
	assert.True(t, decoded.Statistics.Equal(a))
	assert.Equal(t, "swap", decoded.Events[0].Type)

	empty, err := DecodePayload(nil)
	require.NoError(t, err)
	assert.True(t, empty.Statistics.IsZero())
}
