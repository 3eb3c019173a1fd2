// Package match implements the two matcher modes: the duplicate pass
// over a whole index, and clip lookup for a single query fingerprint.
// Both operate on an index.Snapshot and never mutate the index.
package match

import (
	"sort"

	"github.com/zfogg/soundmark/internal/index"
)

// Options controls the matcher sensitivity and stop-key knobs.
type Options struct {
	MinMatches int
	MinRatio   float64
	MaxBucket  int
	DropAbove  int
	MinBucket  int
}

// DuplicatePair is one emitted duplicate-pass result.
type DuplicatePair struct {
	TrackA     int
	TrackB     int
	BestOffset int
	BestCount  int
	TotalPairs int
	Score      float64
}

type pairKey struct{ a, b int }

// FindDuplicates runs the full duplicate pass over snap and returns
// pairs sorted by (best_count desc, score desc, canonical pair asc).
// On a true match the shared landmarks cluster on one constant time
// offset, so the offset histogram's mode dominates; unrelated tracks
// vote diffusely and fail the ratio threshold.
func FindDuplicates(snap index.Snapshot, opts Options) []DuplicatePair {
	buckets := filterBuckets(snap, opts)

	pairCounts := map[pairKey]int{}
	for _, b := range buckets {
		ids := distinctTracks(b)
		for i := 0; i < len(ids); i++ {
			for j := i + 1; j < len(ids); j++ {
				pairCounts[canonical(ids[i], ids[j])]++
			}
		}
	}

	candidates := map[pairKey]bool{}
	for pk, n := range pairCounts {
		if n >= opts.MinMatches {
			candidates[pk] = true
		}
	}

	offsets := map[pairKey]map[int]int{}
	totals := map[pairKey]int{}

	for _, b := range buckets {
		byTrack := map[int][]int{}
		for _, tt := range b {
			byTrack[tt.TrackID] = append(byTrack[tt.TrackID], tt.Times...)
		}
		ids := distinctTracks(b)
		for i := 0; i < len(ids); i++ {
			for j := i + 1; j < len(ids); j++ {
				pk := canonical(ids[i], ids[j])
				if !candidates[pk] {
					continue
				}
				aTimes, bTimes := byTrack[pk.a], byTrack[pk.b]
				m, ok := offsets[pk]
				if !ok {
					m = map[int]int{}
					offsets[pk] = m
				}
				for _, ta := range aTimes {
					for _, tb := range bTimes {
						m[ta-tb]++
						totals[pk]++
					}
				}
			}
		}
	}

	var results []DuplicatePair
	for pk := range candidates {
		hist := offsets[pk]
		if len(hist) == 0 {
			continue
		}
		bestOffset, bestCount := modeOffset(hist)
		total := totals[pk]
		if total == 0 {
			continue
		}
		score := float64(bestCount) / float64(total)
		if bestCount >= opts.MinMatches && score >= opts.MinRatio {
			results = append(results, DuplicatePair{
				TrackA: pk.a, TrackB: pk.b,
				BestOffset: bestOffset, BestCount: bestCount,
				TotalPairs: total, Score: score,
			})
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].BestCount != results[j].BestCount {
			return results[i].BestCount > results[j].BestCount
		}
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].TrackA != results[j].TrackA {
			return results[i].TrackA < results[j].TrackA
		}
		return results[i].TrackB < results[j].TrackB
	})
	return results
}

func canonical(a, b int) pairKey {
	if a < b {
		return pairKey{a, b}
	}
	return pairKey{b, a}
}

func modeOffset(hist map[int]int) (offset, count int) {
	best := -1
	bestOffset := 0
	// Deterministic tie-break: smallest offset wins among equal counts.
	offsetsSorted := make([]int, 0, len(hist))
	for o := range hist {
		offsetsSorted = append(offsetsSorted, o)
	}
	sort.Ints(offsetsSorted)
	for _, o := range offsetsSorted {
		if hist[o] > best {
			best = hist[o]
			bestOffset = o
		}
	}
	return bestOffset, best
}

func distinctTracks(b []index.TrackTimes) []int {
	ids := make([]int, len(b))
	for i, tt := range b {
		ids[i] = tt.TrackID
	}
	return ids
}

// filterBuckets applies the stop-key filter: drop buckets whose raw
// size exceeds drop_above or falls below min_bucket; cap surviving
// buckets at max_bucket entries.
func filterBuckets(snap index.Snapshot, opts Options) [][]index.TrackTimes {
	var out [][]index.TrackTimes
	for _, b := range snap.Buckets {
		size := 0
		for _, tt := range b {
			size += len(tt.Times)
		}
		if opts.DropAbove > 0 && size > opts.DropAbove {
			continue
		}
		if size < opts.MinBucket {
			continue
		}
		if len(b) < 2 {
			continue
		}
		if opts.MaxBucket > 0 && size > opts.MaxBucket {
			b = capBucket(b, opts.MaxBucket)
		}
		out = append(out, b)
	}
	return out
}

// capBucket truncates a bucket's total posting count to maxSize,
// preferring to keep entries from more tracks over exhausting one
// track's full history.
func capBucket(b []index.TrackTimes, maxSize int) []index.TrackTimes {
	// Hand out the budget one time per track per round, so every track
	// keeps its earliest times before any track keeps a second one.
	take := make([]int, len(b))
	total := 0
	for progress := true; progress && total < maxSize; {
		progress = false
		for i, tt := range b {
			if total < maxSize && take[i] < len(tt.Times) {
				take[i]++
				total++
				progress = true
			}
		}
	}
	out := make([]index.TrackTimes, 0, len(b))
	for i, tt := range b {
		if take[i] > 0 {
			out = append(out, index.TrackTimes{TrackID: tt.TrackID, Times: tt.Times[:take[i]]})
		}
	}
	return out
}
