package kernlog

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestFatalInvokesHaltWithBanner(t *testing.T) {
	var banner string
	halted := false
	l := New(func(b string) {
		halted = true
		banner = b
	})

	l.Info("heap initialized", zap.Int("pages", 8192))
	l.Fatal("DOUBLE_FREE", "free() of an already-free block", zap.String("addr", "0x1000"))

	require.True(t, halted)
	require.Contains(t, banner, "KERNEL PANIC: DOUBLE_FREE")
	require.Contains(t, banner, "free() of an already-free block")
	require.Contains(t, banner, "addr = 0x1000")
	require.Contains(t, banner, "heap initialized")
	require.True(t, strings.Contains(banner, "HALTED"))
}

func TestFatalIncludesStatsWhenWired(t *testing.T) {
	var banner string
	l := New(func(b string) { banner = b })
	l.SetStats(func() Stats { return Stats{UptimeTicks: 42, FreePages: 100, TotalPages: 200} })

	l.Fatal("CORRUPTION", "canary mismatch")

	require.Contains(t, banner, "uptime_ticks=42")
	require.Contains(t, banner, "free_pages=100/200")
}

func TestRingBufferBoundsRecentLines(t *testing.T) {
	l := New(func(string) {})
	for i := 0; i < ringCapacity+10; i++ {
		l.Info("tick")
	}
	require.LessOrEqual(t, len(l.ring.recent()), ringCapacity)
}
