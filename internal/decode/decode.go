// Package decode turns an audio file on disk into a contiguous mono
// sample buffer at a fixed sample rate. WAV files are decoded
// natively with github.com/go-audio/wav (no subprocess); every other
// recognized extension is shelled out to ffmpeg.
package decode

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
)

// ErrDecoderFailed is returned for any decode failure. Callers skip
// the file and continue; one bad file never aborts a build.
var ErrDecoderFailed = errors.New("DECODER_FAILED")

// Extensions lists the inputs the corpus walker recognizes.
var Extensions = map[string]bool{
	".mp3": true, ".wav": true, ".flac": true,
	".ogg": true, ".opus": true, ".m4a": true,
}

// Recognized reports whether path has a supported extension.
func Recognized(path string) bool {
	return Extensions[strings.ToLower(filepath.Ext(path))]
}

// Samples is a mono sample buffer at a fixed rate.
type Samples struct {
	Rate int
	Data []float64
}

// Decode loads path, returning mono float64 samples at sampleRate. If
// maxSeconds is > 0, decoding is capped at that many seconds of audio.
func Decode(ctx context.Context, path string, sampleRate, maxSeconds int) (Samples, error) {
	if strings.ToLower(filepath.Ext(path)) == ".wav" {
		s, err := decodeWAVNative(path, sampleRate, maxSeconds)
		if err == nil {
			return s, nil
		}
		// Fall through to ffmpeg for WAV variants the native decoder
		// can't handle (e.g. unusual bit depths, extensible format).
	}
	return decodeFFmpeg(ctx, path, sampleRate, maxSeconds)
}

// decodeWAVNative reads a WAV file directly, without resampling. When
// the file's native rate differs from sampleRate it returns an error,
// so Decode falls through to ffmpeg, which can resample.
func decodeWAVNative(path string, sampleRate, maxSeconds int) (Samples, error) {
	f, err := os.Open(path)
	if err != nil {
		return Samples{}, fmt.Errorf("%w: %v", ErrDecoderFailed, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return Samples{}, fmt.Errorf("%w: not a valid wav file", ErrDecoderFailed)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Samples{}, fmt.Errorf("%w: %v", ErrDecoderFailed, err)
	}
	if buf.Format.SampleRate != sampleRate {
		return Samples{}, fmt.Errorf("wav sample rate %d does not match requested %d", buf.Format.SampleRate, sampleRate)
	}

	fbuf := buf.AsFloatBuffer()
	channels := buf.Format.NumChannels
	if channels < 1 {
		channels = 1
	}

	// go-audio hands back raw integer sample values; scale them to the
	// nominal [-1, 1] range the DSP front end expects.
	bitDepth := int(dec.BitDepth)
	if bitDepth == 0 {
		bitDepth = 16
	}
	scale := float64(int64(1) << (bitDepth - 1))

	frames := len(fbuf.Data) / channels
	if maxSeconds > 0 && frames > maxSeconds*sampleRate {
		frames = maxSeconds * sampleRate
	}

	mono := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += fbuf.Data[i*channels+c]
		}
		mono[i] = sum / float64(channels) / scale
	}

	return Samples{Rate: sampleRate, Data: mono}, nil
}

// decodeFFmpeg invokes an external ffmpeg process configured to emit
// mono float32 little-endian PCM at sampleRate. The decoder's
// diagnostic stream is captured only for the error message; any
// nonzero exit or malformed byte stream is ErrDecoderFailed.
func decodeFFmpeg(ctx context.Context, path string, sampleRate, maxSeconds int) (Samples, error) {
	args := []string{"-i", path, "-ac", "1", "-ar", fmt.Sprintf("%d", sampleRate)}
	if maxSeconds > 0 {
		args = append(args, "-t", fmt.Sprintf("%d", maxSeconds))
	}
	args = append(args, "-f", "f32le", "-")

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return Samples{}, fmt.Errorf("%w: ffmpeg: %v: %s", ErrDecoderFailed, err, stderr.String())
	}

	raw := stdout.Bytes()
	if len(raw)%4 != 0 {
		return Samples{}, fmt.Errorf("%w: decoder stream length %d not a multiple of 4", ErrDecoderFailed, len(raw))
	}

	n := len(raw) / 4
	data := make([]float64, n)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(raw[i*4 : i*4+4])
		data[i] = float64(math.Float32frombits(bits))
	}

	return Samples{Rate: sampleRate, Data: data}, nil
}

// CheckFFmpegInstallation verifies ffmpeg is reachable on PATH.
func CheckFFmpegInstallation() error {
	cmd := exec.Command("ffmpeg", "-version")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg not found on PATH: %w", err)
	}
	return nil
}
