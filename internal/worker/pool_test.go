package worker

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zfogg/soundmark/internal/config"
	"github.com/zfogg/soundmark/internal/logger"
)

func TestMain(m *testing.M) {
	_ = logger.Initialize("error", filepath.Join(os.TempDir(), "soundmark-worker-test.log"))
	os.Exit(m.Run())
}

func writeChirpWAV(t *testing.T, path string, seconds int, f0, f1 float64, sr int) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)

	n := seconds * sr
	dur := float64(seconds)
	data := make([]int, n)
	for i := range data {
		tt := float64(i) / float64(sr)
		phase := 2 * math.Pi * (f0*tt + (f1-f0)*tt*tt/(2*dur))
		data[i] = int(0.6 * 32767 * math.Sin(phase))
	}

	enc := wav.NewEncoder(f, sr, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sr},
		Data:           data,
		SourceBitDepth: 16,
	}
	require.NoError(t, enc.Write(buf))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())
}

func collect(t *testing.T, cfg config.Config, paths []string) map[string]Result {
	t.Helper()
	ctx := context.Background()

	pool := New(cfg, 0)
	pool.Start(ctx)
	go func() {
		for _, p := range paths {
			require.NoError(t, pool.Submit(ctx, Job{Path: p}))
		}
		pool.Close()
	}()

	results := map[string]Result{}
	for res := range pool.Results() {
		results[res.Path] = res
	}
	return results
}

// TestPoolFingerprintsFiles: every submitted file produces exactly one
// result, good files carry landmarks, and a decode failure on one file
// does not disturb the others.
func TestPoolFingerprintsFiles(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Threads = 2

	good1 := filepath.Join(dir, "one.wav")
	good2 := filepath.Join(dir, "two.wav")
	bad := filepath.Join(dir, "bad.wav")
	writeChirpWAV(t, good1, 2, 300, 2500, cfg.SampleRate)
	writeChirpWAV(t, good2, 2, 2500, 300, cfg.SampleRate)
	require.NoError(t, os.WriteFile(bad, []byte("garbage"), 0o644))

	results := collect(t, cfg, []string{good1, good2, bad})
	require.Len(t, results, 3)

	require.NoError(t, results[good1].Err)
	require.NoError(t, results[good2].Err)
	assert.NotEmpty(t, results[good1].Landmarks)
	assert.NotEmpty(t, results[good2].Landmarks)
	assert.Error(t, results[bad].Err)
	assert.Empty(t, results[bad].Landmarks)
}

// TestPoolDeterministicPerFile: two pool runs over the same file yield
// identical landmark streams (workers share no per-file state).
func TestPoolDeterministicPerFile(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Threads = 4

	path := filepath.Join(dir, "tone.wav")
	writeChirpWAV(t, path, 2, 400, 2000, cfg.SampleRate)

	first := collect(t, cfg, []string{path})
	second := collect(t, cfg, []string{path})

	require.NoError(t, first[path].Err)
	require.NoError(t, second[path].Err)
	assert.Equal(t, first[path].Landmarks, second[path].Landmarks)
}

// TestPoolCancellation: canceling the context stops submission without
// deadlocking the result loop.
func TestPoolCancellation(t *testing.T) {
	cfg := config.Default()
	cfg.Threads = 1

	ctx, cancel := context.WithCancel(context.Background())
	pool := New(cfg, 1)
	pool.Start(ctx)
	cancel()

	err := pool.Submit(ctx, Job{Path: "whatever.wav"})
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
	}
	pool.Close()

	for range pool.Results() {
	}
}
