package stackguard

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCleanGuardPasses(t *testing.T) {
	g := New(16 * 1024)
	require.NoError(t, g.Check())
}

func TestCorruptionIsDetected(t *testing.T) {
	g := New(16 * 1024)
	g.Zone()[0] = 0xFF
	require.Error(t, g.Check())
}

func TestPeakNeverDecreases(t *testing.T) {
	g := New(4096)
	g.Touch(100)
	g.Touch(50)
	require.EqualValues(t, 100, g.Peak())
	g.Touch(200)
	require.EqualValues(t, 200, g.Peak())
}
