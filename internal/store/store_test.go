package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calc/internal/action"
	"calc/internal/condition"
	"calc/internal/graph"
	"calc/internal/ledger"
	"calc/internal/num"
	"calc/internal/stats"
	"calc/pkg/exception"
)

func sample(contract string) Record {
	return Record{
		Contract: contract,
		Strategy: graph.Strategy{
			Owner:    "owner",
			Manager:  "manager",
			Contract: contract,
			Nodes: []graph.Node{
				graph.ConditionNode(0, condition.AtHeight(10), graph.At(1), nil),
				graph.ActionNode(1, action.Action{TrackAccount: &action.TrackAccount{Denom: "rune", Debit: num.Zero, Credit: num.Int(5)}}, nil),
			},
			Denoms: ledger.NewDenoms("rune"),
		},
		Statistics: stats.Statistics{Swapped: ledger.NewCoins(ledger.NewCoin(10, "rune"))},
		Pending:    &Pending{Operation: OpExecute, Executed: 0, Next: graph.At(1)},
	}
}

func TestMemorySaveLoad(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, err := m.Load(ctx, "a")
	require.ErrorIs(t, err, exception.ErrNotFound)

	saved, err := m.Save(ctx, sample("a"))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), saved.Version)

	loaded, err := m.Load(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), loaded.Version)
	assert.True(t, loaded.Statistics.Equal(saved.Statistics))
	require.Len(t, loaded.Strategy.Nodes, 2)
	assert.True(t, loaded.Strategy.Nodes[1].Action.TrackAccount.Credit.Equal(num.Int(5)))
	require.NotNil(t, loaded.Pending)
	assert.Equal(t, uint16(1), *loaded.Pending.Next)

	loaded.Strategy.Nodes[1].Action.TrackAccount.Denom = "mutated"
	again, err := m.Load(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "rune", again.Strategy.Nodes[1].Action.TrackAccount.Denom)
}

func TestMemoryVersionConflict(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	first, err := m.Save(ctx, sample("a"))
	require.NoError(t, err)

	_, err = m.Save(ctx, sample("a"))
	require.ErrorIs(t, err, ErrVersionConflict, "a second create loses")

	_, err = m.Save(ctx, first)
	require.NoError(t, err)

	_, err = m.Save(ctx, first)
	require.ErrorIs(t, err, ErrVersionConflict, "stale version loses")

	_, err = m.Save(ctx, Record{})
	require.ErrorIs(t, err, ErrEmptyContract)
}

func TestMemoryContracts(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for _, c := range []string{"b", "a", "c"} {
		_, err := m.Save(ctx, sample(c))
		require.NoError(t, err)
	}
	require.NoError(t, m.Delete(ctx, "c"))

	contracts, err := m.Contracts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, contracts)
	assert.Equal(t, 2, m.Count())
}

func TestSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for _, c := range []string{"b", "a"} {
		_, err := m.Save(ctx, sample(c))
		require.NoError(t, err)
	}

	snap, err := m.SnapshotWithMeta(ctx, 42)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "nested", "snapshot.json")
	require.NoError(t, WriteSnapshot(path, snap))

	read, err := ReadSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), read.LastSeq)
	require.NoError(t, CompareStatistics(snap.StatisticsOf(), read.StatisticsOf()))

	restored := NewMemory()
	require.NoError(t, restored.ApplySnapshot(read))
	rec, err := restored.Load(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), rec.Version)
}

func TestCompareStatistics(t *testing.T) {
	a := map[string]stats.Statistics{"x": {Swapped: ledger.NewCoins(ledger.NewCoin(1, "rune"))}}
	b := map[string]stats.Statistics{"x": {Swapped: ledger.NewCoins(ledger.NewCoin(2, "rune"))}}
	c := map[string]stats.Statistics{"y": {}}

	require.NoError(t, CompareStatistics(a, a))
	require.Error(t, CompareStatistics(a, b))
	require.Error(t, CompareStatistics(a, c))
	require.Error(t, CompareStatistics(a, nil))
}

func TestRows(t *testing.T) {
	rec := sample("a")
	rec.Version = 3

	row, nodes, err := toRows(rec)
	require.NoError(t, err)
	assert.Equal(t, "owner", row.Owner)
	require.Len(t, nodes, 2)
	assert.Equal(t, "condition", nodes[0].Kind)
	assert.Equal(t, "blocks_completed", nodes[0].Label)
	assert.Equal(t, "track_account", nodes[1].Label)

	back, err := fromRows(row, nodes)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), back.Version)
	assert.Equal(t, "a", back.Strategy.Contract)
	assert.Equal(t, rec.Strategy.Denoms, back.Strategy.Denoms)
	assert.True(t, back.Statistics.Equal(rec.Statistics))
	require.NotNil(t, back.Pending)
	assert.Equal(t, OpExecute, back.Pending.Operation)
	require.Len(t, back.Strategy.Nodes, 2)
	assert.Equal(t, uint64(10), *back.Strategy.Nodes[0].Condition.BlocksCompleted)
}
