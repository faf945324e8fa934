package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap(t *testing.T) {
	err := Wrap(errWrapped, "load node")
	if err.Error() != "load node, err: wrapped error" {
		t.Fatalf("error mismatch: %+v", err)
	}
	require.True(t, Is(err, errWrapped))
}

func TestWrapf(t *testing.T) {
	testCases := []struct {
		desc     string
		err      error
		expected string
	}{
		{"nil error", nil, ""},
		{"formatted", errWrapped, "node 3, err: wrapped error"},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			err := Wrapf(tc.err, "node %d", 3)
			if tc.err == nil {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tc.expected, err.Error())
			assert.True(t, Is(err, tc.err))
		})
	}
}

func TestErrorfKeepsChain(t *testing.T) {
	err := Errorf("strategy %s: %w", "s1", errWrapped)
	assert.True(t, Is(err, errWrapped))
	assert.Equal(t, "strategy s1: wrapped error", err.Error())
}
