package match

import (
	"fmt"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zfogg/soundmark/internal/index"
)

// snapOf builds a snapshot from key -> per-track times.
func snapOf(tracks []string, buckets map[uint64][]index.TrackTimes) index.Snapshot {
	return index.Snapshot{Meta: tracks, Buckets: buckets}
}

// alignedSnap builds two tracks sharing nKeys landmarks where track 0
// always anchors `offset` frames after track 1.
func alignedSnap(nKeys, offset int) index.Snapshot {
	buckets := map[uint64][]index.TrackTimes{}
	for i := 0; i < nKeys; i++ {
		t1 := i * 5
		buckets[uint64(i)] = []index.TrackTimes{
			{TrackID: 0, Times: []int{t1 + offset}},
			{TrackID: 1, Times: []int{t1}},
		}
	}
	return snapOf([]string{"a.mp3", "a-reencoded.mp3"}, buckets)
}

// TestFindDuplicatesConstantOffset: shared landmarks on one constant
// offset produce a single pair at that offset with a perfect score.
func TestFindDuplicatesConstantOffset(t *testing.T) {
	snap := alignedSnap(20, 7)

	pairs := FindDuplicates(snap, Options{MinMatches: 5, MinRatio: 0.2})
	require.Len(t, pairs, 1)

	p := pairs[0]
	assert.Equal(t, 0, p.TrackA)
	assert.Equal(t, 1, p.TrackB)
	assert.Equal(t, 7, p.BestOffset)
	assert.Equal(t, 20, p.BestCount)
	assert.Equal(t, 20, p.TotalPairs)
	assert.InDelta(t, 1.0, p.Score, 1e-12)
}

// TestCanonicalPairOrder: each pair appears once with
// TrackA < TrackB regardless of per-bucket track order.
func TestCanonicalPairOrder(t *testing.T) {
	buckets := map[uint64][]index.TrackTimes{}
	for i := 0; i < 10; i++ {
		// Higher id listed first.
		buckets[uint64(i)] = []index.TrackTimes{
			{TrackID: 3, Times: []int{i * 4}},
			{TrackID: 1, Times: []int{i*4 + 2}},
		}
	}
	snap := snapOf([]string{"w", "x", "y", "z"}, buckets)

	pairs := FindDuplicates(snap, Options{MinMatches: 3, MinRatio: 0.2})
	require.Len(t, pairs, 1)
	assert.Equal(t, 1, pairs[0].TrackA)
	assert.Equal(t, 3, pairs[0].TrackB)
	// t_a - t_b with a=1: (i*4+2) - (i*4) = 2.
	assert.Equal(t, 2, pairs[0].BestOffset)
}

// TestDiffuseOffsetsRejected: co-occurring tracks whose offsets never
// agree fail the min_ratio consistency threshold.
func TestDiffuseOffsetsRejected(t *testing.T) {
	buckets := map[uint64][]index.TrackTimes{}
	for i := 0; i < 30; i++ {
		buckets[uint64(i)] = []index.TrackTimes{
			{TrackID: 0, Times: []int{i * i}}, // offsets spread quadratically
			{TrackID: 1, Times: []int{i}},
		}
	}
	snap := snapOf([]string{"a", "b"}, buckets)

	pairs := FindDuplicates(snap, Options{MinMatches: 5, MinRatio: 0.5})
	assert.Empty(t, pairs)
}

// TestMinMatchesGate: a pair below min_matches votes is never
// admitted, however consistent.
func TestMinMatchesGate(t *testing.T) {
	snap := alignedSnap(4, 0)
	pairs := FindDuplicates(snap, Options{MinMatches: 5, MinRatio: 0.2})
	assert.Empty(t, pairs)
}

// TestDropAboveStopKeys: a bucket over drop_above is ignored entirely.
func TestDropAboveStopKeys(t *testing.T) {
	snap := alignedSnap(20, 3)

	// One stop-key bucket with massive postings for both tracks at
	// inconsistent times; with drop_above it must not dilute the score.
	big := []index.TrackTimes{{TrackID: 0}, {TrackID: 1}}
	for i := 0; i < 300; i++ {
		big[0].Times = append(big[0].Times, i*13)
		big[1].Times = append(big[1].Times, i*17)
	}
	snap.Buckets[9999] = big

	pairs := FindDuplicates(snap, Options{MinMatches: 5, MinRatio: 0.9, DropAbove: 100})
	require.Len(t, pairs, 1)
	assert.Equal(t, 3, pairs[0].BestOffset)
	assert.GreaterOrEqual(t, pairs[0].Score, 0.9)
}

// TestThresholdMonotonicity: raising min_matches or min_ratio can
// only remove pairs, never add them.
func TestThresholdMonotonicity(t *testing.T) {
	_ = gofakeit.Seed(23)

	// A noisy corpus: three tracks, some aligned keys, some random.
	buckets := map[uint64][]index.TrackTimes{}
	for i := 0; i < 60; i++ {
		tt := []index.TrackTimes{
			{TrackID: 0, Times: []int{i * 3}},
			{TrackID: 1, Times: []int{i*3 + 11}},
		}
		if i%4 == 0 {
			tt = append(tt, index.TrackTimes{TrackID: 2, Times: []int{int(gofakeit.Uint16() % 997)}})
		}
		buckets[uint64(i)] = tt
	}
	meta := []string{
		fmt.Sprintf("%s.mp3", gofakeit.Word()),
		fmt.Sprintf("%s.mp3", gofakeit.Word()),
		fmt.Sprintf("%s.mp3", gofakeit.Word()),
	}
	snap := snapOf(meta, buckets)

	contains := func(pairs []DuplicatePair, a, b int) bool {
		for _, p := range pairs {
			if p.TrackA == a && p.TrackB == b {
				return true
			}
		}
		return false
	}

	loose := FindDuplicates(snap, Options{MinMatches: 3, MinRatio: 0.1})
	tightMatches := FindDuplicates(snap, Options{MinMatches: 10, MinRatio: 0.1})
	tightRatio := FindDuplicates(snap, Options{MinMatches: 3, MinRatio: 0.6})

	assert.LessOrEqual(t, len(tightMatches), len(loose))
	assert.LessOrEqual(t, len(tightRatio), len(loose))
	for _, p := range tightMatches {
		assert.True(t, contains(loose, p.TrackA, p.TrackB))
	}
	for _, p := range tightRatio {
		assert.True(t, contains(loose, p.TrackA, p.TrackB))
	}
}

// TestResultOrdering: results sort by best_count desc, then score
// desc, then canonical pair asc.
func TestResultOrdering(t *testing.T) {
	buckets := map[uint64][]index.TrackTimes{}
	// Pair (0,1): 20 aligned keys. Pair (2,3): 10 aligned keys.
	for i := 0; i < 20; i++ {
		buckets[uint64(i)] = []index.TrackTimes{
			{TrackID: 0, Times: []int{i}},
			{TrackID: 1, Times: []int{i}},
		}
	}
	for i := 0; i < 10; i++ {
		buckets[uint64(1000+i)] = []index.TrackTimes{
			{TrackID: 2, Times: []int{i}},
			{TrackID: 3, Times: []int{i}},
		}
	}
	snap := snapOf([]string{"a", "b", "c", "d"}, buckets)

	pairs := FindDuplicates(snap, Options{MinMatches: 5, MinRatio: 0.2})
	require.Len(t, pairs, 2)
	assert.Equal(t, 0, pairs[0].TrackA)
	assert.Equal(t, 1, pairs[0].TrackB)
	assert.Equal(t, 2, pairs[1].TrackA)
	assert.Equal(t, 3, pairs[1].TrackB)
	assert.Greater(t, pairs[0].BestCount, pairs[1].BestCount)
}

// TestMaxBucketCap: max_bucket truncates a surviving bucket's posting
// count without dropping the key.
func TestMaxBucketCap(t *testing.T) {
	b := []index.TrackTimes{
		{TrackID: 0, Times: []int{1, 2, 3, 4}},
		{TrackID: 1, Times: []int{5, 6}},
	}
	capped := capBucket(b, 5)
	total := 0
	for _, tt := range capped {
		total += len(tt.Times)
	}
	assert.Equal(t, 5, total)
	require.Len(t, capped, 2, "capping should prefer keeping both tracks represented")
}
