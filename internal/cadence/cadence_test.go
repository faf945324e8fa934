package cadence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calc/internal/ledger"
)

func u64(v uint64) *uint64 { return &v }

func TestBlocksCatchUp(t *testing.T) {
	const height = 10_000
	env := ledger.Env{Height: height}
	c := Cadence{Blocks: &Blocks{Interval: 10, Previous: u64(height - 155)}}

	due, err := c.IsDue(env)
	require.NoError(t, err)
	require.True(t, due)

	next, err := c.Crank(env)
	require.NoError(t, err)
	assert.Equal(t, uint64(height-5), *next.Blocks.Previous)

	cond, err := next.Trigger(env)
	require.NoError(t, err)
	assert.Equal(t, uint64(height+5), *cond.BlocksCompleted, "next due point collapses missed periods")

	due, err = next.IsDue(env)
	require.NoError(t, err)
	assert.False(t, due)
}

func TestBlocksCrank(t *testing.T) {
	testCases := []struct {
		desc     string
		previous *uint64
		height   uint64
		expected uint64
	}{
		{"first run anchors on height", nil, 50, 50},
		{"on time", u64(100), 110, 110},
		{"one period late", u64(100), 115, 110},
		{"two periods late", u64(100), 125, 120},
		{"many periods late", u64(100), 1_003, 1_000},
		{"low height", u64(0), 5, 10},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			c := Cadence{Blocks: &Blocks{Interval: 10, Previous: tc.previous}}
			next, err := c.Crank(ledger.Env{Height: tc.height})
			require.NoError(t, err)
			assert.Equal(t, tc.expected, *next.Blocks.Previous)
			if tc.previous != nil {
				assert.GreaterOrEqual(t, *next.Blocks.Previous, *tc.previous, "anchor is monotonic")
			}
		})
	}
}

func TestBlocksDueBoundary(t *testing.T) {
	c := Cadence{Blocks: &Blocks{Interval: 10, Previous: u64(100)}}
	due, err := c.IsDue(ledger.Env{Height: 109})
	require.NoError(t, err)
	assert.False(t, due)
	due, err = c.IsDue(ledger.Env{Height: 110})
	require.NoError(t, err)
	assert.True(t, due)
}

func TestTimeCatchUp(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	prev := base
	c := Cadence{Time: &Time{Duration: time.Hour, Previous: &prev}}
	env := ledger.Env{Time: base.Add(5*time.Hour + 20*time.Minute)}

	next, err := c.Crank(env)
	require.NoError(t, err)
	assert.Equal(t, base.Add(5*time.Hour), *next.Time.Previous)

	cond, err := next.Trigger(env)
	require.NoError(t, err)
	assert.Equal(t, base.Add(6*time.Hour), *cond.TimestampElapsed)
}

func TestCron(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 30, 0, time.UTC)
	c := OnCron("0 */5 * * * *")
	require.NoError(t, c.Validate())

	due, err := c.IsDue(ledger.Env{Time: base})
	require.NoError(t, err)
	assert.True(t, due, "never ran")

	next, err := c.Crank(ledger.Env{Time: base})
	require.NoError(t, err)
	cond, err := next.Trigger(ledger.Env{Time: base})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 5, 0, 0, time.UTC), *cond.TimestampElapsed)

	due, err = next.IsDue(ledger.Env{Time: base.Add(time.Minute)})
	require.NoError(t, err)
	assert.False(t, due)

	due, err = next.IsDue(ledger.Env{Time: time.Date(2026, 3, 1, 0, 5, 0, 0, time.UTC)})
	require.NoError(t, err)
	assert.True(t, due)
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		desc string
		c    Cadence
		err  error
	}{
		{"empty", Cadence{}, ErrEmptyCadence},
		{"zero interval", EveryBlocks(0), ErrZeroInterval},
		{"sub-second duration", Every(time.Millisecond), ErrZeroInterval},
		{"bad cron", OnCron("every day"), ErrInvalidCron},
		{"two variants", Cadence{Blocks: &Blocks{Interval: 1}, Time: &Time{Duration: time.Hour}}, ErrAmbiguousVariant},
		{"blocks", EveryBlocks(5), nil},
		{"time", Every(time.Minute), nil},
		{"descriptor", OnCron("@daily"), nil},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			err := tc.c.Validate()
			if tc.err == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tc.err)
		})
	}
}
