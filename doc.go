// Package soundmark is the repository root for an audio landmark
// fingerprint indexer. The command entry point lives under
// cmd/soundmark; the engine is split across internal packages:
//
//   - cmd/soundmark: the build/query/duplicates CLI
//   - internal/decode: file decoding (native WAV, ffmpeg fallback)
//   - internal/dsp: STFT framing and spectral peak picking
//   - internal/landmark: anchor/target landmark hashing
//   - internal/index: the inverted index and its JSON persistence
//   - internal/store: an optional relational (SQLite/Postgres) back end
//   - internal/match: duplicate-pass and clip-lookup matchers
//   - internal/cache: optional Redis-backed query result cache
//   - internal/worker: the DSP worker pool feeding the indexer owner
//   - internal/statusserver: optional HTTP progress/metrics endpoint
//   - internal/config: shared analysis/landmark/matcher configuration
//   - internal/logger: structured logging
//   - internal/metrics: Prometheus instrumentation
//   - internal/telemetry: OpenTelemetry tracing
//
// See the individual package documentation for detailed reference.
package soundmark
