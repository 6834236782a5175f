package bitfield

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetSetsAndClearsIndependently(t *testing.T) {
	var flags uint32
	flags = Set(flags, 0, true)
	flags = Set(flags, 2, true)
	require.True(t, Test(flags, 0))
	require.False(t, Test(flags, 1))
	require.True(t, Test(flags, 2))

	flags = Set(flags, 0, false)
	require.False(t, Test(flags, 0))
	require.True(t, Test(flags, 2))
}

func TestTestOnZeroValueIsAlwaysFalse(t *testing.T) {
	for bit := uint(0); bit < 32; bit++ {
		require.False(t, Test(0, bit))
	}
}
