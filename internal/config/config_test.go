package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDefaultSane: the reference configuration satisfies the structural
// constraints the DSP front end assumes.
func TestDefaultSane(t *testing.T) {
	c := Default()
	assert.Greater(t, c.SampleRate, 0)
	assert.Zero(t, c.Win&(c.Win-1), "win must be a power of two")
	assert.Greater(t, c.Win, c.Hop)
	assert.Greater(t, c.Zone, 0)
	assert.Greater(t, c.Pairs, 0)
	assert.Greater(t, c.BucketCap, 0)
}

// TestHeaderRoundtrip: HeaderOf extracts exactly the
// compatibility-relevant fields, and Compatible accepts its own
// extraction.
func TestHeaderRoundtrip(t *testing.T) {
	c := Default()
	h := HeaderOf(c)
	assert.True(t, c.Compatible(h))
}

// TestCompatibleRejectsMismatch: any analysis-grid or quantization
// drift is fatal, including the parabolic-refinement flag.
func TestCompatibleRejectsMismatch(t *testing.T) {
	c := Default()

	cases := map[string]Header{}

	h := HeaderOf(c)
	h.Hop *= 2
	cases["hop"] = h

	h = HeaderOf(c)
	h.SampleRate = 44100
	cases["sample rate"] = h

	h = HeaderOf(c)
	h.FreqQuantum++
	cases["freq quantum"] = h

	h = HeaderOf(c)
	h.ParabolicRefine = !h.ParabolicRefine
	cases["parabolic refine"] = h

	h = HeaderOf(c)
	h.Whiten = !h.Whiten
	cases["whiten"] = h

	for name, header := range cases {
		assert.False(t, c.Compatible(header), "mismatched %s must be rejected", name)
	}
}

// TestFromEnv: SOUNDMARK_* variables override defaults; malformed
// values fall back silently.
func TestFromEnv(t *testing.T) {
	t.Setenv("SOUNDMARK_SAMPLE_RATE", "11025")
	t.Setenv("SOUNDMARK_BUCKET_CAP", "64")
	t.Setenv("SOUNDMARK_MIN_RATIO", "0.35")
	t.Setenv("SOUNDMARK_WIN", "not-a-number")

	c := FromEnv(Default())
	assert.Equal(t, 11025, c.SampleRate)
	assert.Equal(t, 64, c.BucketCap)
	assert.InDelta(t, 0.35, c.MinRatio, 1e-12)
	assert.Equal(t, Default().Win, c.Win, "malformed values keep the default")
}

// TestLoadDotenvMissing: a missing .env file is not an error.
func TestLoadDotenvMissing(t *testing.T) {
	require.NotPanics(t, func() {
		LoadDotenv("definitely-does-not-exist.env")
	})
}
