// Command soundmark builds and queries an audio landmark fingerprint
// index: `build` indexes a directory of audio files, `query` looks up
// a single clip against an index, and `duplicates` runs a full
// duplicate pass over an index. See internal/config for the tunables
// every subcommand shares.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	logLevel     string
	logFile      string
	envFile      string
	jsonOut      bool
	traceEnabled bool
	otlpEndpoint string
)

var rootCmd = &cobra.Command{
	Use:   "soundmark",
	Short: "soundmark builds and queries audio landmark fingerprint indexes",
	Long: `soundmark fingerprints audio files into translation-invariant
landmark hashes, maintains an inverted index of those landmarks, and
matches clips or whole-corpus duplicates against it.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initRuntime()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "soundmark.log", "log file path")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "optional .env file to load (defaults to ./.env if present)")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "emit machine-readable JSON output")
	rootCmd.PersistentFlags().BoolVar(&traceEnabled, "trace", false, "export OpenTelemetry traces")
	rootCmd.PersistentFlags().StringVar(&otlpEndpoint, "otlp-endpoint", "localhost:4318", "OTLP HTTP endpoint for --trace")

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(duplicatesCmd)
}

func main() {
	err := rootCmd.Execute()
	shutdownRuntime()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
