package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/zfogg/soundmark/internal/config"
	"github.com/zfogg/soundmark/internal/decode"
	"github.com/zfogg/soundmark/internal/index"
	"github.com/zfogg/soundmark/internal/landmark"
	"github.com/zfogg/soundmark/internal/logger"
	"github.com/zfogg/soundmark/internal/metrics"
	"github.com/zfogg/soundmark/internal/statusserver"
	"github.com/zfogg/soundmark/internal/store"
	"github.com/zfogg/soundmark/internal/worker"
)

var (
	buildFlags        = newSharedConfigFlags()
	buildStatusAddr   string
	buildS3Bucket     string
	buildS3Prefix     string
	buildS3Region     string
	buildCheckpoint   int
	buildStoreBackend string
	buildStoreDSN     string
)

var buildCmd = &cobra.Command{
	Use:   "build <dir> [out]",
	Short: "Index a directory of audio files",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runBuild,
}

func init() {
	bindSharedConfigFlags(buildCmd, buildFlags)
	buildCmd.Flags().StringVar(&buildStatusAddr, "status-addr", "", "optional address (e.g. :8787) to serve build progress over HTTP")
	buildCmd.Flags().StringVar(&buildS3Bucket, "s3-bucket", "", "optional S3 bucket to mirror the finished index to")
	buildCmd.Flags().StringVar(&buildS3Prefix, "s3-prefix", "soundmark", "S3 key prefix for mirrored artifacts")
	buildCmd.Flags().StringVar(&buildS3Region, "s3-region", "us-east-1", "AWS region for S3 mirroring")
	buildCmd.Flags().IntVar(&buildCheckpoint, "checkpoint-every", 50, "persist the index every N completed files")
	buildCmd.Flags().StringVar(&buildStoreBackend, "store-backend", "", "also persist postings to a relational store: sqlite or postgres")
	buildCmd.Flags().StringVar(&buildStoreDSN, "store-dsn", "", "DSN for --store-backend (file path for sqlite, libpq string for postgres)")
}

func runBuild(cmd *cobra.Command, args []string) error {
	dir := args[0]
	out := "index.json"
	if len(args) > 1 {
		out = args[1]
	}

	if err := decode.CheckFFmpegInstallation(); err != nil {
		logger.Warn("ffmpeg not found; only native WAV decoding will work")
	}

	cfg := buildFlags.toConfig()
	ix, err := index.Open(out, config.HeaderOf(cfg), cfg.BucketCap)
	if errors.Is(err, index.ErrIndexUnreadable) {
		logger.WarnErr("existing index unreadable, starting empty", err, logger.WithPath(out))
		ix = index.NewEmpty(out, config.HeaderOf(cfg), cfg.BucketCap)
	} else if err != nil {
		return err
	}

	var db *store.Store
	if buildStoreBackend != "" {
		db, err = store.Open(buildStoreBackend, buildStoreDSN)
		if err != nil {
			return err
		}
		defer db.Close()
	}

	files, err := walkRecognized(dir)
	if err != nil {
		return err
	}

	// A resumed build skips files an earlier run already indexed; the
	// deterministic file-listing order keeps the final track_id table
	// identical to a single uninterrupted run.
	pending := files[:0]
	for _, f := range files {
		if ix.HasTrack(trackNameFor(dir, f)) {
			continue
		}
		pending = append(pending, f)
	}
	logger.InfoWithFields(fmt.Sprintf("found %d recognized files under %s (%d already indexed)",
		len(files), dir, len(files)-len(pending)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	progress := &statusserver.Progress{FilesTotal: len(pending), StartedAt: time.Now()}
	if buildStatusAddr != "" {
		engine := statusserver.New(progress, traceEnabled)
		go func() {
			if err := statusserver.Serve(ctx, buildStatusAddr, engine); err != nil {
				logger.WarnErr("status server exited", err)
			}
		}()
	}

	pool := worker.New(cfg, 0)
	pool.Start(ctx)

	go func() {
		for _, f := range pending {
			if err := pool.Submit(ctx, worker.Job{Path: f}); err != nil {
				break
			}
		}
		pool.Close()
	}()

	m := metrics.Get()
	done := 0
	for res := range pool.Results() {
		name := trackNameFor(dir, res.Path)
		if res.Err != nil {
			m.DecodeFailuresTotal.WithLabelValues("decode").Inc()
			progress.Add(false, true, 0)
			continue
		}

		trackID, err := ix.BeginTrack(name)
		if err != nil {
			logger.WarnErr("skipping duplicate track name", err, logger.WithPath(name))
			continue
		}
		for _, lm := range res.Landmarks {
			if !ix.Append(trackID, lm.Key, lm.AnchorTime) {
				m.BucketOverflowsTotal.Inc()
			}
		}
		ix.SetDigest(trackID, landmark.Digest(res.Landmarks))

		if db != nil {
			if err := appendToStore(db, name, res.Landmarks); err != nil {
				logger.WarnErr("relational store write failed", err, logger.WithPath(name))
			}
		}

		m.FilesIndexedTotal.WithLabelValues("ok").Inc()
		m.LandmarksEmittedTotal.Add(float64(len(res.Landmarks)))
		m.BuildDuration.Observe(res.Elapsed.Seconds())
		m.QueueDepth.Set(float64(pool.Pending()))
		progress.Add(true, false, len(res.Landmarks))

		done++
		if buildCheckpoint > 0 && done%buildCheckpoint == 0 {
			if err := ix.Checkpoint(); err != nil {
				return fmt.Errorf("checkpoint: %w", err)
			}
		}
	}

	if err := ix.Finalize(); err != nil {
		return fmt.Errorf("finalize: %w", err)
	}
	logger.InfoWithFields("index build complete",
		logger.WithCount(len(ix.Meta())),
	)

	if buildS3Bucket != "" {
		mirror, err := index.NewS3Mirror(ctx, buildS3Region, buildS3Bucket, buildS3Prefix)
		if err != nil {
			logger.WarnErr("s3 mirror setup failed, skipping", err)
		} else if err := mirror.MirrorFile(ctx, out); err != nil {
			logger.WarnErr("s3 mirror upload failed", err)
		}
	}

	return nil
}

// appendToStore mirrors one track's landmark stream into the
// relational back end, batching the postings in one insert pass.
func appendToStore(db *store.Store, name string, landmarks []landmark.Landmark) error {
	trackID, err := db.BeginTrack(name)
	if err != nil {
		return err
	}
	keys := make([]uint64, len(landmarks))
	times := make([]int, len(landmarks))
	for i, lm := range landmarks {
		keys[i] = lm.Key
		times[i] = lm.AnchorTime
	}
	return db.AppendBatch(trackID, keys, times)
}

// trackNameFor derives the stable track name for path: its path
// relative to the corpus root, matching the file-listing order the
// resume logic depends on.
func trackNameFor(dir, path string) string {
	name, err := filepath.Rel(dir, path)
	if err != nil {
		return path
	}
	return name
}

func walkRecognized(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if decode.Recognized(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}
