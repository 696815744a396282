// Package bench times batch loading for the textmel bench command.
package bench

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/example/go-textmel/internal/dataset"
)

// ---------------------------------------------------------------------------
// Run result and stats
// ---------------------------------------------------------------------------

// RunResult holds the timing and content of a single batch load.
type RunResult struct {
	Index    int
	Cold     bool // true for the first run (cold caches)
	Duration time.Duration
	Samples  int
	Frames   int64
	// AudioDuration is the audio covered by the batch's unpadded frames.
	AudioDuration time.Duration
	RTF           float64
}

// Stats holds aggregate timing statistics across all runs.
type Stats struct {
	Min  time.Duration
	Max  time.Duration
	Mean time.Duration
}

// ComputeStats calculates min, max and mean over a slice of durations.
// An empty slice yields zero Stats.
func ComputeStats(durations []time.Duration) Stats {
	if len(durations) == 0 {
		return Stats{}
	}
	mn, mx := durations[0], durations[0]
	var sum time.Duration
	for _, d := range durations {
		if d < mn {
			mn = d
		}
		if d > mx {
			mx = d
		}
		sum += d
	}
	return Stats{
		Min:  mn,
		Max:  mx,
		Mean: sum / time.Duration(len(durations)),
	}
}

// Durations extracts the load times of runs.
func Durations(runs []RunResult) []time.Duration {
	out := make([]time.Duration, len(runs))
	for i, r := range runs {
		out[i] = r.Duration
	}
	return out
}

// MeanRTF averages the RTF of all runs, skipping the cold one when warm runs
// exist.
func MeanRTF(runs []RunResult) float64 {
	var sum float64
	var n int
	for _, r := range runs {
		if r.Cold && len(runs) > 1 {
			continue
		}
		sum += r.RTF
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// ---------------------------------------------------------------------------
// RTF helpers
// ---------------------------------------------------------------------------

// CalcRTF returns load_duration / audio_duration.
// Returns 0 if audioDur is zero to avoid division by zero.
func CalcRTF(loadDur, audioDur time.Duration) float64 {
	if audioDur <= 0 {
		return 0
	}
	return float64(loadDur) / float64(audioDur)
}

// FrameDuration returns the audio time one feature frame covers: hop
// samples for spectrograms, one sample for raw waveforms.
func FrameDuration(hopLength, sampleRate int) time.Duration {
	if hopLength <= 0 || sampleRate <= 0 {
		return 0
	}
	return time.Duration(int64(hopLength) * int64(time.Second) / int64(sampleRate))
}

// ---------------------------------------------------------------------------
// Runner
// ---------------------------------------------------------------------------

// BatchLoader is the part of a loader the runner drives.
type BatchLoader interface {
	Batches(epoch int) [][]int
	Load(ctx context.Context, indices []int) (dataset.Batch, error)
}

// Run loads n batches, cycling through the batches of epoch 0, and times
// each load.
func Run(ctx context.Context, l BatchLoader, n int, frameDur time.Duration) ([]RunResult, error) {
	batches := l.Batches(0)
	if len(batches) == 0 {
		return nil, fmt.Errorf("dataset yields no batches")
	}

	runs := make([]RunResult, 0, n)
	for i := range n {
		if err := ctx.Err(); err != nil {
			return runs, err
		}

		start := time.Now()
		b, err := l.Load(ctx, batches[i%len(batches)])
		elapsed := time.Since(start)
		if err != nil {
			return runs, fmt.Errorf("run %d: %w", i+1, err)
		}

		var frames int64
		for _, f := range b.OutputLengths {
			frames += f
		}
		audioDur := time.Duration(frames) * frameDur

		runs = append(runs, RunResult{
			Index:         i,
			Cold:          i == 0,
			Duration:      elapsed,
			Samples:       b.Size,
			Frames:        frames,
			AudioDuration: audioDur,
			RTF:           CalcRTF(elapsed, audioDur),
		})
	}

	return runs, nil
}

// ---------------------------------------------------------------------------
// RTF threshold gate
// ---------------------------------------------------------------------------

// CheckRTFThreshold returns an error if meanRTF > threshold.
// A threshold of 0 disables the gate.
func CheckRTFThreshold(meanRTF, threshold float64) error {
	if threshold <= 0 {
		return nil
	}
	if meanRTF > threshold {
		return fmt.Errorf("mean RTF %.3f exceeds threshold %.3f", meanRTF, threshold)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Output formatters
// ---------------------------------------------------------------------------

// FormatTable writes a human-readable ASCII table of bench results to w.
func FormatTable(runs []RunResult, stats Stats, w io.Writer) {
	sb := &strings.Builder{}

	fmt.Fprintf(sb, "%-5s  %-5s  %10s  %7s  %9s  %12s  %8s\n", "Run", "Cold", "MS", "Samples", "Frames", "Audio(ms)", "RTF")
	fmt.Fprintln(sb, strings.Repeat("-", 68))

	for _, r := range runs {
		cold := ""
		if r.Cold {
			cold = "yes"
		}
		fmt.Fprintf(sb, "%-5d  %-5s  %10.1f  %7d  %9d  %12.1f  %8.4f\n",
			r.Index+1,
			cold,
			float64(r.Duration.Microseconds())/1000,
			r.Samples,
			r.Frames,
			float64(r.AudioDuration.Milliseconds()),
			r.RTF,
		)
	}

	fmt.Fprintln(sb, strings.Repeat("-", 68))
	fmt.Fprintf(sb, "%-5s  %-5s  %10.1f  (min)\n", "", "", float64(stats.Min.Microseconds())/1000)
	fmt.Fprintf(sb, "%-5s  %-5s  %10.1f  (mean)\n", "", "", float64(stats.Mean.Microseconds())/1000)
	fmt.Fprintf(sb, "%-5s  %-5s  %10.1f  (max)\n", "", "", float64(stats.Max.Microseconds())/1000)

	fmt.Fprint(w, sb.String())
}

// jsonReport is the top-level JSON structure emitted by FormatJSON.
type jsonReport struct {
	Runs  []jsonRun `json:"runs"`
	Stats jsonStats `json:"stats"`
}

type jsonRun struct {
	Index      int     `json:"index"`
	Cold       bool    `json:"cold"`
	DurationMS float64 `json:"duration_ms"`
	Samples    int     `json:"samples"`
	Frames     int64   `json:"frames"`
	AudioMS    float64 `json:"audio_ms"`
	RTF        float64 `json:"rtf"`
}

type jsonStats struct {
	MinMS  float64 `json:"min_ms"`
	MeanMS float64 `json:"mean_ms"`
	MaxMS  float64 `json:"max_ms"`
}

// FormatJSON writes a JSON report of bench results to w.
func FormatJSON(runs []RunResult, stats Stats, w io.Writer) error {
	jr := jsonReport{
		Runs: make([]jsonRun, len(runs)),
		Stats: jsonStats{
			MinMS:  float64(stats.Min.Microseconds()) / 1000,
			MeanMS: float64(stats.Mean.Microseconds()) / 1000,
			MaxMS:  float64(stats.Max.Microseconds()) / 1000,
		},
	}
	for i, r := range runs {
		jr.Runs[i] = jsonRun{
			Index:      r.Index,
			Cold:       r.Cold,
			DurationMS: float64(r.Duration.Microseconds()) / 1000,
			Samples:    r.Samples,
			Frames:     r.Frames,
			AudioMS:    float64(r.AudioDuration.Milliseconds()),
			RTF:        r.RTF,
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(jr)
}
