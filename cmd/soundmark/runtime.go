package main

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"
	"github.com/zfogg/soundmark/internal/config"
	"github.com/zfogg/soundmark/internal/logger"
	"github.com/zfogg/soundmark/internal/telemetry"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// hostPart and portPart split a "host:port" flag value; an address
// with no colon is treated as a bare host on the default Redis port.
func hostPart(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

func portPart(addr string) string {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "6379"
	}
	return port
}

var tracerProvider *sdktrace.TracerProvider

func initRuntime() error {
	if err := logger.Initialize(logLevel, logFile); err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	config.LoadDotenv(envFile)

	if traceEnabled {
		tcfg := telemetry.DefaultConfig()
		tcfg.Enabled = true
		tcfg.OTLPEndpoint = otlpEndpoint
		tp, err := telemetry.InitTracer(tcfg)
		if err != nil {
			return fmt.Errorf("initialize tracer: %w", err)
		}
		tracerProvider = tp
	}
	return nil
}

// shutdownRuntime flushes buffered spans and log entries; called once
// after the selected subcommand returns.
func shutdownRuntime() {
	if tracerProvider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(ctx); err != nil {
			logger.WarnErr("tracer shutdown failed", err)
		}
	}
	_ = logger.Close()
}

// sharedConfigFlags are the analysis/landmark/matcher tunables every
// subcommand exposes identically, so build and query runs can be
// pinned to the same analysis grid.
type sharedConfigFlags struct {
	sampleRate      int
	channels        int
	win             int
	hop             int
	topPeaks        int
	minMag          float64
	fan             int
	anchorEvery     int
	zone            int
	pairs           int
	freqQuantum     int
	deltaQuantum    int
	whiten          bool
	parabolicRefine bool
	bucketCap       int
	maxSeconds      int
	threads         int
	minMatches      int
	minRatio        float64
	maxBucket       int
	dropAbove       int
}

func newSharedConfigFlags() *sharedConfigFlags {
	d := config.FromEnv(config.Default())
	return &sharedConfigFlags{
		sampleRate:      d.SampleRate,
		channels:        d.Channels,
		win:             d.Win,
		hop:             d.Hop,
		topPeaks:        d.TopPeaks,
		minMag:          d.MinMag,
		fan:             d.Fan,
		anchorEvery:     d.AnchorEvery,
		zone:            d.Zone,
		pairs:           d.Pairs,
		freqQuantum:     d.FreqQuantum,
		deltaQuantum:    d.DeltaQuantum,
		whiten:          d.Whiten,
		parabolicRefine: d.ParabolicRefine,
		bucketCap:       d.BucketCap,
		maxSeconds:      d.MaxSeconds,
		threads:         d.Threads,
		minMatches:      d.MinMatches,
		minRatio:        d.MinRatio,
		maxBucket:       d.MaxBucket,
		dropAbove:       d.DropAbove,
	}
}

func (f *sharedConfigFlags) toConfig() config.Config {
	return config.Config{
		SampleRate:      f.sampleRate,
		Channels:        f.channels,
		Win:             f.win,
		Hop:             f.hop,
		TopPeaks:        f.topPeaks,
		MinMag:          f.minMag,
		Fan:             f.fan,
		AnchorEvery:     f.anchorEvery,
		Zone:            f.zone,
		Pairs:           f.pairs,
		FreqQuantum:     f.freqQuantum,
		DeltaQuantum:    f.deltaQuantum,
		Whiten:          f.whiten,
		ParabolicRefine: f.parabolicRefine,
		BucketCap:       f.bucketCap,
		MaxSeconds:      f.maxSeconds,
		Threads:         f.threads,
		MinMatches:      f.minMatches,
		MinRatio:        f.minRatio,
		MaxBucket:       f.maxBucket,
		DropAbove:       f.dropAbove,
	}
}

// bindSharedConfigFlags registers every analysis/landmark/matcher flag
// on cmd, defaulted from f (itself seeded from config.Default()
// overlaid with SOUNDMARK_* env vars).
func bindSharedConfigFlags(cmd *cobra.Command, f *sharedConfigFlags) {
	fl := cmd.Flags()
	fl.IntVar(&f.sampleRate, "sr", f.sampleRate, "sample rate (Hz); must match between build and query")
	fl.IntVar(&f.channels, "ch", f.channels, "input channel count before downmix")
	fl.IntVar(&f.win, "win", f.win, "STFT window size, power of two")
	fl.IntVar(&f.hop, "hop", f.hop, "STFT hop size")
	fl.IntVar(&f.topPeaks, "top", f.topPeaks, "peaks retained per frame")
	fl.Float64Var(&f.minMag, "min", f.minMag, "minimum log-magnitude for a peak")
	fl.IntVar(&f.fan, "fan", f.fan, "max target peaks considered per future frame")
	fl.IntVar(&f.anchorEvery, "anchor-every", f.anchorEvery, "anchor stride in frames")
	fl.IntVar(&f.zone, "zone", f.zone, "max forward frame distance for target pairing")
	fl.IntVar(&f.pairs, "pairs", f.pairs, "max retained targets per anchor")
	fl.IntVar(&f.freqQuantum, "fq", f.freqQuantum, "frequency bin quantization step")
	fl.IntVar(&f.deltaQuantum, "dtq", f.deltaQuantum, "delta-time quantization step")
	fl.BoolVar(&f.whiten, "whiten", f.whiten, "apply median spectral whitening before peak picking")
	fl.BoolVar(&f.parabolicRefine, "parabolic-refine", f.parabolicRefine, "refine peak bins with parabolic interpolation")
	fl.IntVar(&f.bucketCap, "bucket-cap", f.bucketCap, "max postings retained per landmark bucket")
	fl.IntVar(&f.maxSeconds, "sec", f.maxSeconds, "per-file decode cap in seconds (0 = unbounded)")
	fl.IntVar(&f.threads, "threads", f.threads, "worker count (0 = runtime.NumCPU())")
	fl.IntVar(&f.minMatches, "min-matches", f.minMatches, "matcher: minimum votes on the best offset")
	fl.Float64Var(&f.minRatio, "min-ratio", f.minRatio, "matcher: minimum best_count/total_pairs ratio")
	fl.IntVar(&f.maxBucket, "max-bucket", f.maxBucket, "matcher: cap entries considered per bucket")
	fl.IntVar(&f.dropAbove, "drop-above", f.dropAbove, "matcher: drop buckets larger than this as stop words")
}
