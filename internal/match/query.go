package match

import (
	"sort"

	"github.com/zfogg/soundmark/internal/index"
)

// QueryLandmark is one hashed landmark from the query clip, in the
// shape match needs (decoupled from the landmark package's streaming
// Hasher so this package has no DSP dependency).
type QueryLandmark struct {
	Key  uint64
	Time int // t_clip, frame units
}

// Hit is one clip-lookup result.
type Hit struct {
	TrackID    int
	BestOffset int
	Votes      int
}

// Lookup is a clip-lookup result annotated with the digest
// short-circuit: IsExactMatch is true when the query clip's landmark
// digest equals a track's recorded digest, in which case Hits may
// safely be skipped by a caller that only needs a yes/no duplicate
// answer.
type Lookup struct {
	Hits         []Hit
	IsExactMatch bool
	ExactTrackID int
}

// Query implements clip lookup: the caller hashes the clip into
// landmarks exactly as during indexing, then for each (key, t_clip)
// every posting (track, t_track) in the matching bucket votes for
// (track, t_track − t_clip). Returns the top topN tracks by vote
// count at their best offset.
func Query(snap index.Snapshot, landmarks []QueryLandmark, topN int) []Hit {
	votes := map[int]map[int]int{}

	for _, lm := range landmarks {
		bucket, ok := snap.Buckets[lm.Key]
		if !ok {
			continue
		}
		for _, tt := range bucket {
			m, ok := votes[tt.TrackID]
			if !ok {
				m = map[int]int{}
				votes[tt.TrackID] = m
			}
			for _, tTrack := range tt.Times {
				m[tTrack-lm.Time]++
			}
		}
	}

	hits := make([]Hit, 0, len(votes))
	for trackID, hist := range votes {
		offset, count := modeOffset(hist)
		hits = append(hits, Hit{TrackID: trackID, BestOffset: offset, Votes: count})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Votes != hits[j].Votes {
			return hits[i].Votes > hits[j].Votes
		}
		return hits[i].TrackID < hits[j].TrackID
	})

	if topN > 0 && len(hits) > topN {
		hits = hits[:topN]
	}
	return hits
}

// digestSource is the narrow slice of *index.Index that LookupWithDigest
// needs, so tests can fake it without building a full index.
type digestSource interface {
	FindByDigest(digest string) (int, bool)
}

// LookupWithDigest runs the digest short-circuit before falling back
// to the full Query: if digest matches a track already in ix, that
// track is reported as an exact match without scoring every landmark.
func LookupWithDigest(ix digestSource, digest string, snap index.Snapshot, landmarks []QueryLandmark, topN int) Lookup {
	if id, ok := ix.FindByDigest(digest); ok {
		return Lookup{IsExactMatch: true, ExactTrackID: id}
	}
	return Lookup{Hits: Query(snap, landmarks, topN)}
}
