package dsp

import "sort"

// Peak is a candidate spectral peak within one frame.
type Peak struct {
	Bin       float64 // bin index, fractional when parabolic refinement is on
	Magnitude float64 // magnitude at the (integer) bin, pre-refinement
}

// PeakPickerConfig controls peak selection.
type PeakPickerConfig struct {
	Top             int
	MinMag          float64
	Whiten          bool
	ParabolicRefine bool
}

// PickPeaks returns up to cfg.Top local-maximum bins from mag, each at
// least cfg.MinMag and strictly above both of its ±1 and ±2 neighbors. The
// returned set is unordered; ordering for deterministic hashing
// happens downstream, in the landmark hasher's stable tie-break.
func PickPeaks(mag []float64, cfg PeakPickerConfig) []Peak {
	work := mag
	if cfg.Whiten {
		work = whiten(mag)
	}

	type candidate struct {
		bin int
		mag float64
	}
	var candidates []candidate

	n := len(work)
	for k := 2; k < n-2; k++ {
		v := work[k]
		if v < cfg.MinMag {
			continue
		}
		if v > work[k-1] && v > work[k+1] && v > work[k-2] && v > work[k+2] {
			candidates = append(candidates, candidate{bin: k, mag: v})
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].mag != candidates[j].mag {
			return candidates[i].mag > candidates[j].mag
		}
		return candidates[i].bin < candidates[j].bin
	})

	top := cfg.Top
	if len(candidates) < top {
		top = len(candidates)
	}

	peaks := make([]Peak, top)
	for i := 0; i < top; i++ {
		c := candidates[i]
		bin := float64(c.bin)
		if cfg.ParabolicRefine {
			bin = parabolicVertex(mag, c.bin)
		}
		peaks[i] = Peak{Bin: bin, Magnitude: c.mag}
	}
	return peaks
}

// parabolicVertex refines a bin index by three-point parabolic
// interpolation: k + 0.5*(L-R)/(L-2C+R).
func parabolicVertex(mag []float64, k int) float64 {
	if k <= 0 || k >= len(mag)-1 {
		return float64(k)
	}
	l, c, r := mag[k-1], mag[k], mag[k+1]
	denom := l - 2*c + r
	if denom == 0 {
		return float64(k)
	}
	return float64(k) + 0.5*(l-r)/denom
}

// whiten subtracts a coarse per-frame median, sampled every ~0.5% of
// bins, uniformly from every bin. Indexing and querying must apply
// this identically for the matcher to see consistent peaks.
func whiten(mag []float64) []float64 {
	n := len(mag)
	stride := n / 200
	if stride < 1 {
		stride = 1
	}

	var sample []float64
	for i := 0; i < n; i += stride {
		sample = append(sample, mag[i])
	}
	sort.Float64s(sample)
	median := sample[len(sample)/2]

	out := make([]float64, n)
	for i, v := range mag {
		out[i] = v - median
	}
	return out
}
