package operation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"calc/internal/errors"
	"calc/internal/ledger"
)

func TestEffectsMerge(t *testing.T) {
	a := Effects{}.Send(ledger.BankMsg("a", nil), nil)
	b := a.Emit(ledger.NewEvent("e"))
	c := a.Merge(b)

	assert.Len(t, a.Messages, 1)
	assert.Empty(t, a.Events, "merge must not mutate the receiver")
	assert.Len(t, c.Messages, 2)
	assert.Len(t, c.Events, 1)
	assert.True(t, c.HasMessages())
	assert.False(t, Effects{}.HasMessages())
}

func TestSkipped(t *testing.T) {
	e := Skipped("swap", errors.New("balance is zero"))
	assert.Len(t, e.Events, 1)
	reason, ok := e.Events[0].Attr("reason")
	assert.True(t, ok)
	assert.Equal(t, "balance is zero", reason)
}

func TestTotalBps(t *testing.T) {
	assert.Equal(t, uint64(30), TotalBps([]Affiliate{{Bps: 10}, {Bps: 20}}))
	assert.Zero(t, TotalBps(nil))
}
