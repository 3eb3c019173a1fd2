package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zfogg/soundmark/internal/index"
)

// TestQueryVotesOnOffset: clip landmarks align with the indexed track
// at one constant offset.
func TestQueryVotesOnOffset(t *testing.T) {
	snap := index.Snapshot{
		Meta: []string{"song.mp3"},
		Buckets: map[uint64][]index.TrackTimes{
			1: {{TrackID: 0, Times: []int{10}}},
			2: {{TrackID: 0, Times: []int{15}}},
			3: {{TrackID: 0, Times: []int{20}}},
		},
	}
	clip := []QueryLandmark{
		{Key: 1, Time: 0},
		{Key: 2, Time: 5},
		{Key: 3, Time: 10},
	}

	hits := Query(snap, clip, 5)
	require.Len(t, hits, 1)
	assert.Equal(t, 0, hits[0].TrackID)
	assert.Equal(t, 10, hits[0].BestOffset)
	assert.Equal(t, 3, hits[0].Votes)
}

// TestQueryRanking: tracks order by votes descending and topN bounds
// the result.
func TestQueryRanking(t *testing.T) {
	snap := index.Snapshot{
		Meta: []string{"a", "b", "c"},
		Buckets: map[uint64][]index.TrackTimes{
			1: {{TrackID: 0, Times: []int{0}}, {TrackID: 1, Times: []int{0}}},
			2: {{TrackID: 0, Times: []int{5}}},
			3: {{TrackID: 0, Times: []int{9}}, {TrackID: 2, Times: []int{33}}},
		},
	}
	clip := []QueryLandmark{
		{Key: 1, Time: 0},
		{Key: 2, Time: 5},
		{Key: 3, Time: 9},
	}

	hits := Query(snap, clip, 5)
	require.Len(t, hits, 3)
	assert.Equal(t, 0, hits[0].TrackID)
	assert.Equal(t, 3, hits[0].Votes)
	assert.Equal(t, 0, hits[0].BestOffset)

	top2 := Query(snap, clip, 2)
	assert.Len(t, top2, 2)
}

// TestQueryUnknownKeys: landmarks absent from the index simply don't
// vote.
func TestQueryUnknownKeys(t *testing.T) {
	snap := index.Snapshot{
		Meta:    []string{"a"},
		Buckets: map[uint64][]index.TrackTimes{},
	}
	hits := Query(snap, []QueryLandmark{{Key: 42, Time: 0}}, 5)
	assert.Empty(t, hits)
}

type fakeDigests map[string]int

func (f fakeDigests) FindByDigest(d string) (int, bool) {
	id, ok := f[d]
	return id, ok
}

// TestLookupWithDigestShortCircuit: a digest hit skips landmark
// scoring entirely.
func TestLookupWithDigestShortCircuit(t *testing.T) {
	src := fakeDigests{"abc123": 4}

	hit := LookupWithDigest(src, "abc123", index.Snapshot{}, nil, 5)
	assert.True(t, hit.IsExactMatch)
	assert.Equal(t, 4, hit.ExactTrackID)
	assert.Empty(t, hit.Hits)

	miss := LookupWithDigest(src, "zzz", index.Snapshot{Buckets: map[uint64][]index.TrackTimes{}}, nil, 5)
	assert.False(t, miss.IsExactMatch)
}

// TestCacheKeyStable: the cache key ignores landmark order but not
// content or topN.
func TestCacheKeyStable(t *testing.T) {
	a := []QueryLandmark{{Key: 1, Time: 2}, {Key: 3, Time: 4}}
	b := []QueryLandmark{{Key: 3, Time: 4}, {Key: 1, Time: 2}}
	c := []QueryLandmark{{Key: 3, Time: 5}, {Key: 1, Time: 2}}

	assert.Equal(t, Key(a, 5), Key(b, 5))
	assert.NotEqual(t, Key(a, 5), Key(c, 5))
	assert.NotEqual(t, Key(a, 5), Key(a, 10))
}
