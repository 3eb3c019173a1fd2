// Package config loads the analysis, indexing, and matcher parameters
// that must stay consistent between a build run and every later query
// or duplicate pass against the same index.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config is the full set of analysis, indexing, and matcher tunables.
// Zero value is never valid; use Default() and override from
// flags/env.
type Config struct {
	// Analysis grid. Fixing these across build and query is mandatory.
	SampleRate int // sr
	Channels   int // ch
	Win        int // win, power of two
	Hop        int // hop

	// Landmark density and reach.
	TopPeaks    int     // top
	MinMag      float64 // min, noise floor applied to log-magnitude bins
	Fan         int     // fan, max target peaks considered per future frame
	AnchorEvery int     // anchor_every
	Zone        int     // zone, max forward frame distance
	Pairs       int     // pairs, max targets per anchor

	// Quantization.
	FreqQuantum  int // fq
	DeltaQuantum int // dtq

	// Whitening / refinement.
	Whiten          bool
	ParabolicRefine bool

	// Indexer.
	BucketCap int

	// Per-file decode cap, seconds. 0 = unbounded.
	MaxSeconds int

	// Orchestration.
	Threads int

	// Matcher sensitivity.
	MinMatches int
	MinRatio   float64
	MaxBucket  int
	DropAbove  int
}

// Default returns the reference configuration. These values balance
// landmark density against index size for speech/music corpora at
// 8 kHz.
func Default() Config {
	return Config{
		SampleRate:      8000,
		Channels:        1,
		Win:             1024,
		Hop:             128,
		TopPeaks:        5,
		MinMag:          1.0,
		Fan:             3,
		AnchorEvery:     1,
		Zone:            32,
		Pairs:           3,
		FreqQuantum:     1,
		DeltaQuantum:    1,
		Whiten:          false,
		ParabolicRefine: false,
		BucketCap:       250,
		MaxSeconds:      0,
		Threads:         0, // 0 => runtime.NumCPU()
		MinMatches:      5,
		MinRatio:        0.2,
		MaxBucket:       500,
		DropAbove:       500,
	}
}

// LoadDotenv loads a .env file from the working directory if present.
// A missing file is not an error; this only populates process env vars
// that flags can then read defaults from.
func LoadDotenv(path string) {
	if path == "" {
		path = ".env"
	}
	_ = godotenv.Load(path)
}

// ErrBadParams is returned when a loaded index's header disagrees with
// the configuration a query or duplicate pass is about to run with.
var ErrBadParams = fmt.Errorf("BAD_PARAMS")

// Header is the subset of Config that must match exactly between the
// index that produced a set of landmarks and any later query against
// it. The refinement and whitening flags are part of it because they
// change which peaks exist.
type Header struct {
	SampleRate      int  `json:"sample_rate"`
	Win             int  `json:"win"`
	Hop             int  `json:"hop"`
	FreqQuantum     int  `json:"freq_quantum"`
	DeltaQuantum    int  `json:"delta_quantum"`
	ParabolicRefine bool `json:"parabolic_refine"`
	Whiten          bool `json:"whiten"`
}

// HeaderOf extracts the persisted, compatibility-relevant fields.
func HeaderOf(c Config) Header {
	return Header{
		SampleRate:      c.SampleRate,
		Win:             c.Win,
		Hop:             c.Hop,
		FreqQuantum:     c.FreqQuantum,
		DeltaQuantum:    c.DeltaQuantum,
		ParabolicRefine: c.ParabolicRefine,
		Whiten:          c.Whiten,
	}
}

// Compatible reports whether a loaded index header was built with a
// configuration compatible with c. Any mismatch is fatal; there is no
// partial compatibility.
func (c Config) Compatible(h Header) bool {
	return HeaderOf(c) == h
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return n
		}
	}
	return fallback
}

// FromEnv overlays SOUNDMARK_* environment variables on top of d.
// Malformed values keep the default. The CLI flags in cmd/soundmark
// take precedence; they are bound after FromEnv runs.
func FromEnv(d Config) Config {
	d.SampleRate = envInt("SOUNDMARK_SAMPLE_RATE", d.SampleRate)
	d.Win = envInt("SOUNDMARK_WIN", d.Win)
	d.Hop = envInt("SOUNDMARK_HOP", d.Hop)
	d.TopPeaks = envInt("SOUNDMARK_TOP", d.TopPeaks)
	d.MinMag = envFloat("SOUNDMARK_MIN_MAG", d.MinMag)
	d.Zone = envInt("SOUNDMARK_ZONE", d.Zone)
	d.Pairs = envInt("SOUNDMARK_PAIRS", d.Pairs)
	d.BucketCap = envInt("SOUNDMARK_BUCKET_CAP", d.BucketCap)
	d.Threads = envInt("SOUNDMARK_THREADS", d.Threads)
	d.MinMatches = envInt("SOUNDMARK_MIN_MATCHES", d.MinMatches)
	d.MinRatio = envFloat("SOUNDMARK_MIN_RATIO", d.MinRatio)
	d.MaxBucket = envInt("SOUNDMARK_MAX_BUCKET", d.MaxBucket)
	d.DropAbove = envInt("SOUNDMARK_DROP_ABOVE", d.DropAbove)
	return d
}
