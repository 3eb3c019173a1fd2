package index

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/google/uuid"
	"github.com/zfogg/soundmark/internal/config"
)

// wireDoc is the on-disk shape: a single document
// `{ meta: [...], index: { key: bucket } }`, with an embedded header
// recording the build parameters a query must match exactly.
type wireDoc struct {
	Meta      []string                   `json:"meta"`
	Header    config.Header              `json:"header"`
	Finalized bool                       `json:"finalized"`
	Index     map[string]json.RawMessage `json:"index"`
	Digests   map[string]string          `json:"digests,omitempty"`
}

// rawEntry is a single pre-finalization posting, wire shape [id, t].
type rawEntry [2]int

// groupEntry is a single post-finalization per-track group, wire shape
// [id, [t0, dt1, dt2, …]]: first time verbatim, subsequent entries
// delta-encoded, reconstructed by prefix sum on load.
type groupEntry struct {
	TrackID int
	Times   []int // ascending, decoded
}

func (g groupEntry) MarshalJSON() ([]byte, error) {
	deltas := make([]int, len(g.Times))
	prev := 0
	for i, t := range g.Times {
		if i == 0 {
			deltas[i] = t
		} else {
			deltas[i] = t - prev
		}
		prev = t
	}
	return json.Marshal([]interface{}{g.TrackID, deltas})
}

func (g *groupEntry) UnmarshalJSON(b []byte) error {
	var arr []json.RawMessage
	if err := json.Unmarshal(b, &arr); err != nil {
		return err
	}
	if len(arr) != 2 {
		return fmt.Errorf("index: malformed track group")
	}
	if err := json.Unmarshal(arr[0], &g.TrackID); err != nil {
		return err
	}
	var deltas []int
	if err := json.Unmarshal(arr[1], &deltas); err != nil {
		return err
	}
	times := make([]int, len(deltas))
	sum := 0
	for i, d := range deltas {
		if i == 0 {
			sum = d
		} else {
			sum += d
		}
		times[i] = sum
	}
	g.Times = times
	return nil
}

// maxShardBytes bounds a single part of a sharded persisted artifact.
const maxShardBytes = 64 << 20

// atomicWriteFile writes data to path via a uniquely named temporary
// sibling followed by a rename: on any error the temporary is removed
// and the previous good file (if any) is left untouched.
func atomicWriteFile(path string, data []byte) error {
	tmpPath := fmt.Sprintf("%s.tmp-%s", path, uuid.NewString())

	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	return nil
}

// save persists ix to ix.path, sharding into numbered parts when the
// single-document encoding would exceed maxShardBytes.
func (ix *Index) save() error {
	doc := ix.toWireDoc()

	single, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("index: encode: %w", err)
	}
	if len(single) <= maxShardBytes {
		if err := atomicWriteFile(ix.path, single); err != nil {
			return err
		}
		removeShards(ix.path)
		return nil
	}

	return ix.saveSharded(doc)
}

func (ix *Index) saveSharded(doc wireDoc) error {
	keys := make([]string, 0, len(doc.Index))
	for k := range doc.Index {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	// Roughly bound parts by count of keys per maxShardBytes budget;
	// a single key can't itself exceed the cap in practice since
	// buckets are capped by bucket_cap.
	perShard := 1
	if len(keys) > 0 {
		totalApprox := 0
		for _, k := range keys {
			totalApprox += len(doc.Index[k])
		}
		avg := totalApprox / len(keys)
		if avg < 1 {
			avg = 1
		}
		perShard = maxShardBytes / avg
		if perShard < 1 {
			perShard = 1
		}
	}

	shardCount := (len(keys) + perShard - 1) / perShard
	if shardCount < 1 {
		shardCount = 1
	}

	for i := 0; i < shardCount; i++ {
		lo := i * perShard
		hi := lo + perShard
		if hi > len(keys) {
			hi = len(keys)
		}
		part := wireDoc{Meta: doc.Meta, Header: doc.Header, Finalized: doc.Finalized, Index: map[string]json.RawMessage{}}
		for _, k := range keys[lo:hi] {
			part.Index[k] = doc.Index[k]
		}
		data, err := json.Marshal(part)
		if err != nil {
			return fmt.Errorf("index: encode shard %d: %w", i, err)
		}
		if err := atomicWriteFile(shardPath(ix.path, i), data); err != nil {
			return err
		}
	}
	os.Remove(ix.path)
	removeShardsFrom(ix.path, shardCount)
	return nil
}

func shardPath(base string, i int) string {
	return fmt.Sprintf("%s.%d.json", base, i)
}

func removeShards(base string) {
	removeShardsFrom(base, 0)
}

func removeShardsFrom(base string, start int) {
	for i := start; ; i++ {
		p := shardPath(base, i)
		if _, err := os.Stat(p); err != nil {
			break
		}
		os.Remove(p)
	}
}

func (ix *Index) toWireDoc() wireDoc {
	doc := wireDoc{
		Meta:      ix.meta,
		Header:    ix.header,
		Finalized: ix.finalized,
		Index:     make(map[string]json.RawMessage, len(ix.buckets)),
		Digests:   ix.digests,
	}
	for key, b := range ix.buckets {
		keyStr := strconv.FormatUint(key, 10)
		if ix.finalized {
			groups := groupPostings(b)
			entries := make([]groupEntry, len(groups))
			for i, g := range groups {
				entries[i] = groupEntry{TrackID: g.TrackID, Times: g.Times}
			}
			data, _ := json.Marshal(entries)
			doc.Index[keyStr] = data
		} else {
			raw := make([]rawEntry, len(b))
			for i, p := range b {
				raw[i] = rawEntry{p.TrackID, p.Time}
			}
			data, _ := json.Marshal(raw)
			doc.Index[keyStr] = data
		}
	}
	return doc
}

// load reads a persisted artifact (sharded or not) from path. A
// missing unsharded file and no shard parts means "no index yet",
// returned as ok=false with no error, matching INDEX_UNREADABLE's
// "treated as empty start" policy for build.
func load(path string) (wireDoc, bool, error) {
	if data, err := os.ReadFile(path); err == nil {
		var doc wireDoc
		if err := json.Unmarshal(data, &doc); err != nil {
			return wireDoc{}, false, fmt.Errorf("%w: %v", ErrIndexUnreadable, err)
		}
		return doc, true, nil
	}

	var merged wireDoc
	merged.Index = map[string]json.RawMessage{}
	found := false
	for i := 0; ; i++ {
		data, err := os.ReadFile(shardPath(path, i))
		if err != nil {
			break
		}
		found = true
		var part wireDoc
		if err := json.Unmarshal(data, &part); err != nil {
			return wireDoc{}, false, fmt.Errorf("%w: shard %d: %v", ErrIndexUnreadable, i, err)
		}
		if i == 0 {
			merged.Meta = part.Meta
			merged.Header = part.Header
			merged.Finalized = part.Finalized
		}
		for k, v := range part.Index {
			merged.Index[k] = v
		}
	}
	if !found {
		return wireDoc{}, false, nil
	}
	return merged, true, nil
}
