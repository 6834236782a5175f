package fb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewFramebufferIsBlack(t *testing.T) {
	f := New()
	require.Equal(t, uint32(0), f.GetPixel(0, 0))
	require.Equal(t, uint32(0), f.GetPixel(Width-1, Height-1))
}

func TestSetPixelRoundTrips(t *testing.T) {
	f := New()
	f.SetPixel(10, 20, 0x00AABBCC)
	require.Equal(t, uint32(0x00AABBCC), f.GetPixel(10, 20))
}

func TestSetPixelOutOfBoundsIsClipped(t *testing.T) {
	f := New()
	f.SetPixel(-1, 0, 0x00FFFFFF)
	f.SetPixel(Width, 0, 0x00FFFFFF)
	f.SetPixel(0, Height, 0x00FFFFFF)
	require.Equal(t, uint32(0), f.GetPixel(0, 0))
}

func TestFlipCopiesBackToFrontAndCountsFlips(t *testing.T) {
	f := New()
	f.SetPixel(5, 5, 0x00112233)
	require.Equal(t, byte(0), f.Front()[0], "front buffer untouched before flip")

	f.Flip()
	require.Equal(t, uint32(0x00112233), func() uint32 {
		off := offset(5, 5)
		fr := f.Front()
		return uint32(fr[off]) | uint32(fr[off+1])<<8 | uint32(fr[off+2])<<16 | uint32(fr[off+3])<<24
	}())
	require.EqualValues(t, 1, f.Flips())
}

func TestFillRectClampsToFramebuffer(t *testing.T) {
	f := New()
	f.FillRect(Width-2, Height-2, 10, 10, 0x00FF0000)
	require.Equal(t, uint32(0x00FF0000), f.GetPixel(Width-1, Height-1))
}

func TestClearFillsEntireBuffer(t *testing.T) {
	f := New()
	f.Clear(0x00123456)
	require.Equal(t, uint32(0x00123456), f.GetPixel(0, 0))
	require.Equal(t, uint32(0x00123456), f.GetPixel(Width-1, Height-1))
}
