package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/zfogg/soundmark/internal/cache"
	"github.com/zfogg/soundmark/internal/config"
	"github.com/zfogg/soundmark/internal/decode"
	"github.com/zfogg/soundmark/internal/dsp"
	"github.com/zfogg/soundmark/internal/index"
	"github.com/zfogg/soundmark/internal/landmark"
	"github.com/zfogg/soundmark/internal/logger"
	"github.com/zfogg/soundmark/internal/match"
	"github.com/zfogg/soundmark/internal/metrics"
	"github.com/zfogg/soundmark/internal/telemetry"
)

var (
	queryFlags    = newSharedConfigFlags()
	queryTopN     int
	queryRedis    string
	queryRedisPwd string
)

var queryCmd = &cobra.Command{
	Use:   "query <index> <clip>",
	Short: "Print the top-N matches for a clip against an index",
	Args:  cobra.ExactArgs(2),
	RunE:  runQuery,
}

func init() {
	bindSharedConfigFlags(queryCmd, queryFlags)
	queryCmd.Flags().IntVar(&queryTopN, "n", 5, "number of top matches to print")
	queryCmd.Flags().StringVar(&queryRedis, "redis", "", "optional host:port of a Redis instance to cache query results")
	queryCmd.Flags().StringVar(&queryRedisPwd, "redis-password", "", "Redis password, if required")
}

func runQuery(cmd *cobra.Command, args []string) error {
	indexPath, clipPath := args[0], args[1]
	cfg := queryFlags.toConfig()

	ix, err := index.Open(indexPath, config.HeaderOf(cfg), cfg.BucketCap)
	if err != nil {
		return err
	}
	if !cfg.Compatible(ix.Header()) {
		return fmt.Errorf("%w: query flags disagree with the index's build parameters", config.ErrBadParams)
	}

	start := time.Now()
	ctx := context.Background()
	samples, err := decode.Decode(ctx, clipPath, cfg.SampleRate, cfg.MaxSeconds)
	if err != nil {
		return err
	}

	landmarks := fingerprintClip(samples, cfg)
	defer func() {
		metrics.Get().QueryDuration.Observe(time.Since(start).Seconds())
	}()

	ctx, span := telemetry.StartQuerySpan(ctx, len(landmarks))
	defer span.End()

	queryLandmarks := make([]match.QueryLandmark, len(landmarks))
	for i, lm := range landmarks {
		queryLandmarks[i] = match.QueryLandmark{Key: lm.Key, Time: lm.AnchorTime}
	}

	// Digest short-circuit: a byte-identical clip is answered without
	// scoring a single landmark.
	digest := landmark.Digest(landmarks)
	if id, ok := ix.FindByDigest(digest); ok {
		meta := ix.Meta()
		name := ""
		if id >= 0 && id < len(meta) {
			name = meta[id]
		}
		logger.InfoWithFields("exact digest match found, skipping landmark scoring", logger.WithPath(name))
		return printHits([]match.Hit{{TrackID: id, BestOffset: 0, Votes: len(queryLandmarks)}})
	}

	var resultCache *match.ResultCache
	var cacheKey string
	if queryRedis != "" {
		if rc, err := cache.NewRedisClient(hostPart(queryRedis), portPart(queryRedis), queryRedisPwd); err != nil {
			logger.WarnErr("redis unavailable, continuing without query cache", err)
		} else {
			resultCache = match.NewResultCache(rc, 0)
			cacheKey = match.Key(queryLandmarks, queryTopN)
			if hits, err := resultCache.Get(ctx, cacheKey); err == nil {
				metrics.Get().CacheHitsTotal.WithLabelValues("hit").Inc()
				return printHits(hits)
			}
			metrics.Get().CacheHitsTotal.WithLabelValues("miss").Inc()
		}
	}

	hits := match.Query(ix.Snapshot(), queryLandmarks, queryTopN)

	if resultCache != nil {
		if err := resultCache.Set(ctx, cacheKey, hits); err != nil {
			logger.WarnErr("failed to populate query cache", err)
		}
	}

	return printHits(hits)
}

// fingerprintClip runs the identical decode->frames->peaks->hash
// pipeline the build path uses; a clip hashed any other way cannot
// vote against the index.
func fingerprintClip(samples decode.Samples, cfg config.Config) []landmark.Landmark {
	pipeline := dsp.New(cfg.Win, cfg.Hop)
	hasher := landmark.New(landmark.Config{
		Zone:         cfg.Zone,
		Pairs:        cfg.Pairs,
		Fan:          cfg.Fan,
		AnchorEvery:  cfg.AnchorEvery,
		FreqQuantum:  cfg.FreqQuantum,
		DeltaQuantum: cfg.DeltaQuantum,
	})
	peakCfg := dsp.PeakPickerConfig{
		Top:             cfg.TopPeaks,
		MinMag:          cfg.MinMag,
		Whiten:          cfg.Whiten,
		ParabolicRefine: cfg.ParabolicRefine,
	}

	var out []landmark.Landmark
	pipeline.Frames(samples.Data, func(f dsp.Frame) bool {
		peaks := dsp.PickPeaks(f.Mag, peakCfg)
		hasher.Process(f.Index, peaks, func(lm landmark.Landmark) {
			out = append(out, lm)
		})
		return true
	})
	hasher.Close(func(lm landmark.Landmark) {
		out = append(out, lm)
	})
	return out
}

func printHits(hits []match.Hit) error {
	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		return enc.Encode(hits)
	}
	for _, h := range hits {
		fmt.Printf("track=%d offset=%d votes=%d\n", h.TrackID, h.BestOffset, h.Votes)
	}
	return nil
}
