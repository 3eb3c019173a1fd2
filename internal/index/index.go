// Package index implements the inverted landmark index: a key →
// posting bucket map with a dense per-track `meta` side table,
// bounded bucket growth, and atomic, resumable persistence to a JSON
// artifact.
package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/zfogg/soundmark/internal/config"
)

var (
	ErrIndexUnreadable = errors.New("INDEX_UNREADABLE")
	ErrWriteFailed     = errors.New("WRITE_FAILED")
)

// Posting is a single (track_id, anchor_time) pair.
type Posting struct {
	TrackID int
	Time    int
}

// Index owns the landmark → bucket map and the track metadata table.
// The only in-memory bucket shape is a flat posting list; the grouped
// per-track delta shape exists on disk only and is converted at
// load/save, so the matcher never branches on shape. All mutation is
// expected to flow through a single owning goroutine; the lock makes
// concurrent misuse merely slow, not unsafe.
type Index struct {
	mu sync.Mutex

	path      string
	meta      []string
	names     map[string]int
	header    config.Header
	bucketCap int
	buckets   map[uint64][]Posting
	finalized bool
	digests   map[string]string // track_id (string) -> landmark.Digest

	overflowCount int64
}

// NewEmpty returns a fresh index that will persist to path, ignoring
// any artifact already there. Build uses this when an existing
// document is unreadable (INDEX_UNREADABLE is an empty start for
// build, fatal only for query).
func NewEmpty(path string, header config.Header, bucketCap int) *Index {
	return &Index{
		path:      path,
		names:     map[string]int{},
		header:    header,
		bucketCap: bucketCap,
		buckets:   map[uint64][]Posting{},
		digests:   map[string]string{},
	}
}

// Open loads an existing index at path, or starts a fresh one if none
// exists. header must match an existing index's recorded header
// exactly; a mismatch is BAD_PARAMS.
func Open(path string, header config.Header, bucketCap int) (*Index, error) {
	doc, ok, err := load(path)
	if err != nil {
		return nil, err
	}

	ix := NewEmpty(path, header, bucketCap)
	if !ok {
		return ix, nil
	}

	if doc.Header != header {
		return nil, fmt.Errorf("%w: index was built with different analysis parameters", config.ErrBadParams)
	}

	ix.meta = doc.Meta
	ix.finalized = doc.Finalized
	if doc.Digests != nil {
		ix.digests = doc.Digests
	}
	for i, name := range doc.Meta {
		ix.names[name] = i
	}

	for keyStr, raw := range doc.Index {
		key, err := strconv.ParseUint(keyStr, 10, 64)
		if err != nil {
			continue
		}
		postings, err := decodeBucket(raw, doc.Finalized)
		if err != nil {
			return nil, fmt.Errorf("%w: bucket %s: %v", ErrIndexUnreadable, keyStr, err)
		}
		ix.buckets[key] = postings
	}

	return ix, nil
}

// decodeBucket converts either wire shape into the flat posting list.
func decodeBucket(raw json.RawMessage, finalized bool) ([]Posting, error) {
	if finalized {
		var groups []groupEntry
		if err := json.Unmarshal(raw, &groups); err != nil {
			return nil, err
		}
		var postings []Posting
		for _, g := range groups {
			for _, t := range g.Times {
				postings = append(postings, Posting{TrackID: g.TrackID, Time: t})
			}
		}
		return postings, nil
	}

	var entries []rawEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, err
	}
	postings := make([]Posting, len(entries))
	for i, e := range entries {
		postings[i] = Posting{TrackID: e[0], Time: e[1]}
	}
	return postings, nil
}

// BeginTrack assigns a dense track_id to name and records it in meta.
// Duplicate names are rejected.
func (ix *Index) BeginTrack(name string) (int, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if _, exists := ix.names[name]; exists {
		return 0, fmt.Errorf("index: track %q already present", name)
	}

	id := len(ix.meta)
	ix.meta = append(ix.meta, name)
	ix.names[name] = id
	return id, nil
}

// HasTrack reports whether name is already in meta, so a resumed build
// can skip files indexed by an earlier run.
func (ix *Index) HasTrack(name string) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	_, ok := ix.names[name]
	return ok
}

// SetDigest records a track's content digest (the primary-hash
// short-circuit), overwriting any prior value.
func (ix *Index) SetDigest(trackID int, digest string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.digests == nil {
		ix.digests = map[string]string{}
	}
	ix.digests[strconv.Itoa(trackID)] = digest
}

// FindByDigest returns the first (lowest) track id recorded under
// digest, for an exact-duplicate short-circuit ahead of landmark
// scoring in clip lookup.
func (ix *Index) FindByDigest(digest string) (int, bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	best, found := 0, false
	for idStr, d := range ix.digests {
		if d != digest {
			continue
		}
		id, err := strconv.Atoi(idStr)
		if err == nil && (!found || id < best) {
			best, found = id, true
		}
	}
	return best, found
}

// Append pushes a single (trackID, anchorTime) posting into the
// bucket for key. Returns false if the bucket was already at
// bucket_cap, in which case the posting is silently dropped: popular
// keys add little signal and are the dominant memory cost.
func (ix *Index) Append(trackID int, key uint64, anchorTime int) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	// Any write to a previously finalized index reopens it; the next
	// Finalize regroups everything, loaded postings included.
	ix.finalized = false

	b := ix.buckets[key]
	if len(b) >= ix.bucketCap {
		ix.overflowCount++
		return false
	}
	ix.buckets[key] = append(b, Posting{TrackID: trackID, Time: anchorTime})
	return true
}

// OverflowCount returns the number of postings dropped so far due to
// bucket_cap.
func (ix *Index) OverflowCount() int64 {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.overflowCount
}

// BucketSizes returns each bucket's current posting count, for
// property tests asserting the bucket-cap discipline.
func (ix *Index) BucketSizes() map[uint64]int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	sizes := make(map[uint64]int, len(ix.buckets))
	for k, b := range ix.buckets {
		sizes[k] = len(b)
	}
	return sizes
}

// Checkpoint persists the current in-memory state atomically. Safe to
// call between tracks.
func (ix *Index) Checkpoint() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.save()
}

// Flush is an alias for Checkpoint.
func (ix *Index) Flush() error { return ix.Checkpoint() }

// Finalize marks the index finalized and persists it; the save path
// regroups each bucket's postings by track with per-track times
// ascending and delta-encodes them on the wire.
func (ix *Index) Finalize() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.finalized = true
	return ix.save()
}

// Close releases resources. It does not implicitly persist state;
// call Checkpoint or Finalize first.
func (ix *Index) Close() error { return nil }

// Meta returns the track-id → name table.
func (ix *Index) Meta() []string {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	out := make([]string, len(ix.meta))
	copy(out, ix.meta)
	return out
}

// Header returns the recorded build parameters.
func (ix *Index) Header() config.Header { return ix.header }

func sortInts(s []int) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
