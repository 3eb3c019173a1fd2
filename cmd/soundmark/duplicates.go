package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/zfogg/soundmark/internal/config"
	"github.com/zfogg/soundmark/internal/index"
	"github.com/zfogg/soundmark/internal/logger"
	"github.com/zfogg/soundmark/internal/match"
	"github.com/zfogg/soundmark/internal/metrics"
	"github.com/zfogg/soundmark/internal/telemetry"
)

var (
	duplicatesFlags     = newSharedConfigFlags()
	duplicatesMinBucket int
)

var duplicatesCmd = &cobra.Command{
	Use:   "duplicates <index> [out]",
	Short: "Run a full duplicate pass over an index",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runDuplicates,
}

func init() {
	bindSharedConfigFlags(duplicatesCmd, duplicatesFlags)
	duplicatesCmd.Flags().IntVar(&duplicatesMinBucket, "min-bucket", 2, "skip buckets with fewer postings than this")
}

func runDuplicates(cmd *cobra.Command, args []string) error {
	indexPath := args[0]
	cfg := duplicatesFlags.toConfig()

	ix, err := index.Open(indexPath, config.HeaderOf(cfg), cfg.BucketCap)
	if err != nil {
		return err
	}
	if !cfg.Compatible(ix.Header()) {
		return fmt.Errorf("%w: duplicates flags disagree with the index's build parameters", config.ErrBadParams)
	}

	snap := ix.Snapshot()
	_, span := telemetry.StartDuplicatePassSpan(context.Background(), len(snap.Meta))
	defer span.End()

	start := time.Now()
	pairs := match.FindDuplicates(snap, match.Options{
		MinMatches: cfg.MinMatches,
		MinRatio:   cfg.MinRatio,
		MaxBucket:  cfg.MaxBucket,
		DropAbove:  cfg.DropAbove,
		MinBucket:  duplicatesMinBucket,
	})
	metrics.Get().DuplicatePassDuration.Observe(time.Since(start).Seconds())

	logger.InfoWithFields(fmt.Sprintf("duplicate pass found %d pairs across %d tracks", len(pairs), len(snap.Meta)))

	if len(args) > 1 {
		return writeDuplicatesFile(args[1], snap.Meta, pairs)
	}
	return printDuplicates(snap.Meta, pairs)
}

func printDuplicates(meta []string, pairs []match.DuplicatePair) error {
	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		return enc.Encode(pairs)
	}
	for _, p := range pairs {
		fmt.Printf("%s <-> %s offset=%d count=%d/%d score=%.3f\n",
			trackName(meta, p.TrackA), trackName(meta, p.TrackB), p.BestOffset, p.BestCount, p.TotalPairs, p.Score)
	}
	return nil
}

func writeDuplicatesFile(path string, meta []string, pairs []match.DuplicatePair) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Meta  []string              `json:"meta"`
		Pairs []match.DuplicatePair `json:"pairs"`
	}{Meta: meta, Pairs: pairs})
}

func trackName(meta []string, id int) string {
	if id >= 0 && id < len(meta) {
		return meta[id]
	}
	return fmt.Sprintf("track#%d", id)
}
