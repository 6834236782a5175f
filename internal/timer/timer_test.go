package timer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTickIncrementsUptime(t *testing.T) {
	c := New()
	c.Tick()
	c.Tick()
	require.EqualValues(t, 2, c.UptimeTicks())
}

func TestQuantumExpiryRaisesFlagWithoutSwitching(t *testing.T) {
	c := New()
	remaining := 2
	c.SetQuantumFunc(func() bool {
		remaining--
		return remaining <= 0
	})

	c.Tick()
	require.False(t, c.ConsumeReschedule(), "flag must not be set before quantum expires")

	c.Tick()
	require.True(t, c.ConsumeReschedule(), "flag must be set once quantum expires")
	require.False(t, c.ConsumeReschedule(), "consuming clears the flag")
}

func TestSubscribersFireEveryTick(t *testing.T) {
	c := New()
	count := 0
	c.Subscribe(func() { count++ })
	c.Tick()
	c.Tick()
	c.Tick()
	require.Equal(t, 3, count)
}

func TestClearRescheduleDropsWithoutConsuming(t *testing.T) {
	c := New()
	c.SetQuantumFunc(func() bool { return true })
	c.Tick()
	c.ClearReschedule()
	require.False(t, c.ConsumeReschedule())
}
