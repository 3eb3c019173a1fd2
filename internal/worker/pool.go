// Package worker runs the fingerprinting fan-out: one DSP worker per
// CPU (tunable), stateless between files, feeding a single serialized
// indexer owner over a bounded channel. Parallelism is always per
// file, never inside a track's DSP.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/zfogg/soundmark/internal/config"
	"github.com/zfogg/soundmark/internal/decode"
	"github.com/zfogg/soundmark/internal/dsp"
	"github.com/zfogg/soundmark/internal/landmark"
	"github.com/zfogg/soundmark/internal/logger"
	"github.com/zfogg/soundmark/internal/telemetry"
)

// ErrLost marks a file whose worker died mid-fingerprint. The file is
// failed, not retried; the rest of the batch continues on the
// surviving workers.
var ErrLost = fmt.Errorf("WORKER_LOST")

// Job is one file to fingerprint.
type Job struct {
	Path string
}

// Result is the outcome of fingerprinting one file: its ordered
// landmark stream plus any decode failure. A failed decode is
// reported so the caller can log and skip it; it never aborts the
// batch.
type Result struct {
	Path      string
	Landmarks []landmark.Landmark
	Elapsed   time.Duration
	Err       error
}

// Pool runs up to n DSP pipelines concurrently, each with its own
// dsp.Pipeline/landmark.Hasher so no per-file state is shared.
type Pool struct {
	n    int
	cfg  config.Config
	jobs chan Job
	out  chan Result
	wg   sync.WaitGroup
}

// New builds a pool sized by cfg.Threads (0 means runtime.NumCPU()).
func New(cfg config.Config, queueDepth int) *Pool {
	n := cfg.Threads
	if n <= 0 {
		n = runtime.NumCPU()
	}
	if queueDepth <= 0 {
		queueDepth = n * 4
	}
	return &Pool{
		n:    n,
		cfg:  cfg,
		jobs: make(chan Job, queueDepth),
		out:  make(chan Result, queueDepth),
	}
}

// Start launches the worker goroutines. Results are available on
// Results() until Close() is called and every pending job drains.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.n; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
	go func() {
		p.wg.Wait()
		close(p.out)
	}()
}

// Submit enqueues a file, blocking for backpressure if the bounded
// queue is full. Returns ctx.Err() if the context is canceled first.
func (p *Pool) Submit(ctx context.Context, j Job) error {
	select {
	case p.jobs <- j:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close signals no more jobs will be submitted; workers exit once the
// queue drains.
func (p *Pool) Close() { close(p.jobs) }

// Results returns the channel of per-file outcomes, closed once all
// workers have exited.
func (p *Pool) Results() <-chan Result { return p.out }

// Pending reports the number of jobs queued but not yet picked up.
func (p *Pool) Pending() int { return len(p.jobs) }

func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()

	// The FFT plan and scratch buffers are per worker; the hasher is
	// per file so a crashed file can't leak pending anchors into the
	// next one.
	pipeline := dsp.New(p.cfg.Win, p.cfg.Hop)
	peakCfg := dsp.PeakPickerConfig{
		Top:             p.cfg.TopPeaks,
		MinMag:          p.cfg.MinMag,
		Whiten:          p.cfg.Whiten,
		ParabolicRefine: p.cfg.ParabolicRefine,
	}

	for {
		select {
		case j, ok := <-p.jobs:
			if !ok {
				return
			}
			p.process(ctx, id, j, pipeline, peakCfg)
		case <-ctx.Done():
			return
		}
	}
}

func (p *Pool) process(ctx context.Context, workerID int, j Job, pipeline *dsp.Pipeline, peakCfg dsp.PeakPickerConfig) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorErr("worker crashed on file", fmt.Errorf("%v", r),
				logger.WithPath(j.Path), logger.WithWorker(workerID))
			p.emit(ctx, Result{Path: j.Path, Elapsed: time.Since(start), Err: fmt.Errorf("%w: %v", ErrLost, r)})
		}
	}()

	ctx, span := telemetry.StartFingerprintSpan(ctx, j.Path)
	defer span.End()

	samples, err := decode.Decode(ctx, j.Path, p.cfg.SampleRate, p.cfg.MaxSeconds)
	if err != nil {
		logger.WarnErr("decode failed, skipping file", err, logger.WithPath(j.Path), logger.WithWorker(workerID))
		p.emit(ctx, Result{Path: j.Path, Elapsed: time.Since(start), Err: err})
		return
	}

	hasher := landmark.New(landmark.Config{
		Zone:         p.cfg.Zone,
		Pairs:        p.cfg.Pairs,
		Fan:          p.cfg.Fan,
		AnchorEvery:  p.cfg.AnchorEvery,
		FreqQuantum:  p.cfg.FreqQuantum,
		DeltaQuantum: p.cfg.DeltaQuantum,
	})

	var landmarks []landmark.Landmark
	pipeline.Frames(samples.Data, func(f dsp.Frame) bool {
		if ctx.Err() != nil {
			return false
		}
		peaks := dsp.PickPeaks(f.Mag, peakCfg)
		hasher.Process(f.Index, peaks, func(lm landmark.Landmark) {
			landmarks = append(landmarks, lm)
		})
		return true
	})
	hasher.Close(func(lm landmark.Landmark) {
		landmarks = append(landmarks, lm)
	})

	logger.DebugWithFields("fingerprinted file",
		logger.WithPath(j.Path), logger.WithWorker(workerID), logger.WithCount(len(landmarks)))

	p.emit(ctx, Result{Path: j.Path, Landmarks: landmarks, Elapsed: time.Since(start)})
}

func (p *Pool) emit(ctx context.Context, r Result) {
	select {
	case p.out <- r:
	case <-ctx.Done():
	}
}
