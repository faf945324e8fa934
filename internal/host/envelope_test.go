package host

import (
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calc/internal/ledger"
)

func TestEntryText(t *testing.T) {
	for e := _entry_beg + 1; e < _entry_end; e++ {
		b, err := e.MarshalText()
		require.NoError(t, err)
		var back Entry
		require.NoError(t, back.UnmarshalText(b))
		assert.Equal(t, e, back)
	}

	var e Entry
	assert.Error(t, e.UnmarshalText([]byte("deposit")))
	assert.True(t, EntryBalances.IsQuery())
	assert.False(t, EntryReply.IsQuery())
}

func TestNewRequest(t *testing.T) {
	env := ledger.Env{Height: 7, Contract: "strategy"}
	a := NewRequest(EntryExecute, "manager", env, nil)
	b := NewRequest(EntryExecute, "manager", env, nil)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, "strategy", a.Contract)

	raw, err := sonic.Marshal(a)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"entry":"execute"`)
}
