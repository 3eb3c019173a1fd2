package dsp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSR = 8000

// sine generates n samples of a pure tone at freq Hz.
func sine(n int, freq float64) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = math.Sin(2 * math.Pi * freq * float64(i) / float64(testSR))
	}
	return s
}

// TestFrameCount checks the frame grid: frames exist while
// t*hop+win <= N, starting at sample 0.
func TestFrameCount(t *testing.T) {
	p := New(1024, 128)
	n := 5000
	want := (n-1024)/128 + 1

	var got []int
	p.Frames(make([]float64, n), func(f Frame) bool {
		got = append(got, f.Index)
		return true
	})

	require.Len(t, got, want)
	for i, idx := range got {
		assert.Equal(t, i, idx)
	}
}

// TestFramesTooShort verifies a buffer shorter than one window yields
// no frames at all.
func TestFramesTooShort(t *testing.T) {
	p := New(1024, 128)
	calls := 0
	p.Frames(make([]float64, 1023), func(Frame) bool {
		calls++
		return true
	})
	assert.Zero(t, calls)
}

// TestFramesEarlyStop verifies the callback can stop iteration, the
// hook cooperative cancellation uses.
func TestFramesEarlyStop(t *testing.T) {
	p := New(1024, 128)
	calls := 0
	p.Frames(make([]float64, 10000), func(Frame) bool {
		calls++
		return false
	})
	assert.Equal(t, 1, calls)
}

// TestPureToneSpectrum checks that a pure tone concentrates magnitude
// at its own FFT bin.
func TestPureToneSpectrum(t *testing.T) {
	win, hop := 1024, 128
	p := New(win, hop)

	// Exactly bin 64: freq = 64 * sr / win.
	bin := 64
	freq := float64(bin) * testSR / float64(win)

	var mag []float64
	p.Frames(sine(4*win, freq), func(f Frame) bool {
		mag = append([]float64(nil), f.Mag...)
		return false
	})
	require.Len(t, mag, win/2)

	best := 0
	for k := range mag {
		if mag[k] > mag[best] {
			best = k
		}
	}
	assert.Equal(t, bin, best)
	assert.Greater(t, mag[bin], mag[bin+10]+1.0, "tone bin should dominate the noise floor")
}

// TestMagReusedAcrossFrames documents the zero-allocation contract:
// the Mag slice is reused, so retaining it across calls observes later
// frames' data.
func TestMagReusedAcrossFrames(t *testing.T) {
	p := New(1024, 128)
	var first []float64
	count := 0
	p.Frames(sine(4096, 500), func(f Frame) bool {
		if count == 0 {
			first = f.Mag
		} else {
			assert.Equal(t, &first[0], &f.Mag[0], "frames should share one scratch magnitude buffer")
		}
		count++
		return count < 2
	})
	require.Equal(t, 2, count)
}

// TestHannWindowShape checks endpoint and midpoint values of the
// precomputed window.
func TestHannWindowShape(t *testing.T) {
	w := hannWindow(1024)
	require.Len(t, w, 1024)
	assert.InDelta(t, 0.0, w[0], 1e-12)
	assert.InDelta(t, 0.0, w[1023], 1e-12)
	assert.InDelta(t, 1.0, w[511], 1e-4)
	// Symmetry.
	for i := 0; i < 100; i++ {
		assert.InDelta(t, w[i], w[1023-i], 1e-12)
	}
}
