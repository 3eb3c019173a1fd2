// Package landmark pairs spectral peaks produced by internal/dsp into
// the translation-invariant (f1, f2, Δt) landmarks that populate the
// inverted index. Hashing is streaming: anchors stay pending only
// while their forward pairing zone is still arriving, so a track of
// any length is processed in O(zone·top) memory.
package landmark

import (
	"sort"

	"github.com/zfogg/soundmark/internal/dsp"
)

// Packed key bit layout: 16 bits f1, 16 bits f2, 12 bits Δt. Generous
// enough for any realistic win/zone while staying well inside uint64.
const (
	freqBits  = 16
	deltaBits = 12
	freqMask  = (1 << freqBits) - 1
	deltaMask = (1 << deltaBits) - 1
)

// Landmark is one packed (f1, f2, Δt) key with its anchor time.
type Landmark struct {
	Key        uint64
	AnchorTime int // frame units
}

// Pack encodes a quantized landmark triple into a single integer key.
func Pack(f1q, f2q, dtq int) uint64 {
	return (uint64(f1q&freqMask) << (deltaBits + freqBits)) |
		(uint64(f2q&freqMask) << deltaBits) |
		uint64(dtq&deltaMask)
}

// Config holds the landmark density, reach, and quantization knobs.
type Config struct {
	Zone         int // max forward frame distance
	Pairs        int // max retained targets per anchor
	Fan          int // max target peaks considered per future frame
	AnchorEvery  int // only anchor every Nth frame (1 = every frame)
	FreqQuantum  int // fq
	DeltaQuantum int // dtq
}

type framePeaks struct {
	index int
	peaks []dsp.Peak
}

type candidate struct {
	targetBin float64
	dt        int
	score     float64
}

// Hasher streams frames in increasing index order and emits landmarks
// via the callback passed to Process, in anchor-time order.
type Hasher struct {
	cfg Config

	pending []*pendingAnchor
}

type pendingAnchor struct {
	frame      framePeaks
	candidates map[int][]candidate // anchor peak index (within frame.peaks) -> top candidates, descending score
}

// New creates a hasher for the given configuration.
func New(cfg Config) *Hasher {
	if cfg.AnchorEvery < 1 {
		cfg.AnchorEvery = 1
	}
	if cfg.FreqQuantum < 1 {
		cfg.FreqQuantum = 1
	}
	if cfg.DeltaQuantum < 1 {
		cfg.DeltaQuantum = 1
	}
	return &Hasher{cfg: cfg}
}

// Process feeds one frame's peak set into the hasher. emit is called
// once per finalized landmark, anchors in increasing time order.
func (h *Hasher) Process(t int, peaks []dsp.Peak, emit func(Landmark)) {
	// Pair this frame as a target against every still-open anchor.
	for _, pa := range h.pending {
		dt := t - pa.frame.index
		if dt < 1 || dt > h.cfg.Zone {
			continue
		}
		h.pairAgainst(pa, peaks, dt)
	}

	// Flush anchors whose target zone is now fully observed.
	h.pending = h.flush(t, emit, false)

	// Open a new anchor frame, subject to the anchor stride.
	if t%h.cfg.AnchorEvery == 0 && len(peaks) > 0 {
		h.pending = append(h.pending, &pendingAnchor{
			frame:      framePeaks{index: t, peaks: peaks},
			candidates: make(map[int][]candidate),
		})
	}
}

// Close flushes every still-open anchor using whatever targets they
// saw before the stream ended (fewer pairs near the tail of a track is
// an expected edge case, not an error).
func (h *Hasher) Close(emit func(Landmark)) {
	h.pending = h.flush(1<<62, emit, true)
}

func (h *Hasher) pairAgainst(pa *pendingAnchor, targets []dsp.Peak, dt int) {
	sorted := make([]dsp.Peak, len(targets))
	copy(sorted, targets)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Magnitude != sorted[j].Magnitude {
			return sorted[i].Magnitude > sorted[j].Magnitude
		}
		return sorted[i].Bin < sorted[j].Bin
	})
	fan := h.cfg.Fan
	if len(sorted) < fan {
		fan = len(sorted)
	}

	for ai, anchor := range pa.frame.peaks {
		for _, target := range sorted[:fan] {
			score := anchor.Magnitude * target.Magnitude
			pa.candidates[ai] = insertTopK(pa.candidates[ai], candidate{
				targetBin: target.Bin,
				dt:        dt,
				score:     score,
			}, h.cfg.Pairs)
		}
	}
}

// insertTopK keeps cand in the descending-score list c, bounded to k
// entries, with a total, stable tie-break (higher score wins; on a
// tie, smaller Δt wins, then smaller target bin).
func insertTopK(c []candidate, cand candidate, k int) []candidate {
	i := sort.Search(len(c), func(i int) bool {
		if c[i].score != cand.score {
			return c[i].score < cand.score
		}
		if c[i].dt != cand.dt {
			return c[i].dt > cand.dt
		}
		return c[i].targetBin > cand.targetBin
	})
	c = append(c, candidate{})
	copy(c[i+1:], c[i:])
	c[i] = cand
	if len(c) > k {
		c = c[:k]
	}
	return c
}

func (h *Hasher) flush(horizon int, emit func(Landmark), all bool) []*pendingAnchor {
	var kept []*pendingAnchor
	for _, pa := range h.pending {
		if !all && pa.frame.index+h.cfg.Zone >= horizon {
			kept = append(kept, pa)
			continue
		}
		emitAnchor(pa, h.cfg, emit)
	}
	return kept
}

func emitAnchor(pa *pendingAnchor, cfg Config, emit func(Landmark)) {
	// Deterministic anchor-peak order: by bin ascending (stable,
	// independent of magnitude, for bit-exact reruns).
	order := make([]int, 0, len(pa.frame.peaks))
	for ai := range pa.frame.peaks {
		order = append(order, ai)
	}
	sort.Slice(order, func(i, j int) bool {
		return pa.frame.peaks[order[i]].Bin < pa.frame.peaks[order[j]].Bin
	})

	for _, ai := range order {
		cands := pa.candidates[ai]
		f1q := int(round(pa.frame.peaks[ai].Bin / float64(cfg.FreqQuantum)))
		for _, c := range cands {
			f2q := int(round(c.targetBin / float64(cfg.FreqQuantum)))
			dtq := int(round(float64(c.dt) / float64(cfg.DeltaQuantum)))
			emit(Landmark{
				Key:        Pack(f1q, f2q, dtq),
				AnchorTime: pa.frame.index,
			})
		}
	}
}

func round(v float64) float64 {
	if v < 0 {
		return -round(-v)
	}
	return float64(int64(v + 0.5))
}
