// Package testutil provides fixture builders and batch assertions shared by
// tests that exercise the whole loading pipeline.
//
// Typical usage:
//
//	func TestPipeline(t *testing.T) {
//	    fs := afero.NewMemMapFs()
//	    testutil.WriteWAV(t, fs, "/data/wavs/a.wav", testutil.Sine(440, 16000, 8000, 0.5), 16000)
//	    testutil.WriteLJManifest(t, fs, "/data/metadata.csv", map[string]string{"wavs/a.wav": "Hello."})
//	    ...
//	}
package testutil

import (
	"fmt"
	"math"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"github.com/example/go-textmel/internal/audio"
)

// Sine returns n samples of a sine tone at freq Hz with peak amplitude amp.
func Sine(freq float64, sampleRate, n int, amp float64) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(amp * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
	}

	return out
}

// WriteWAV encodes samples as 16-bit mono PCM and writes them to path,
// creating parent directories.
func WriteWAV(tb testing.TB, fs afero.Fs, path string, samples []float32, sampleRate int) {
	tb.Helper()

	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		tb.Fatalf("mkdir for %s: %v", path, err)
	}

	if err := audio.WriteWAVFile(fs, path, samples, sampleRate); err != nil {
		tb.Fatalf("write %s: %v", path, err)
	}
}

// WriteLJManifest writes a pipe-separated manifest with one line per entry,
// sorted by path so the file content is stable.
func WriteLJManifest(tb testing.TB, fs afero.Fs, path string, entries map[string]string) {
	tb.Helper()

	paths := make([]string, 0, len(entries))
	for p := range entries {
		paths = append(paths, p)
	}
	slices.Sort(paths)

	var b strings.Builder
	for _, p := range paths {
		fmt.Fprintf(&b, "%s|%s\n", p, entries[p])
	}

	writeFile(tb, fs, path, []byte(b.String()))
}

// WriteMozillaCVManifest writes a Common Voice style TSV with a header row.
// Each entry becomes a row whose path column is the clip file name.
func WriteMozillaCVManifest(tb testing.TB, fs afero.Fs, path string, clips map[string]string) {
	tb.Helper()

	names := make([]string, 0, len(clips))
	for n := range clips {
		names = append(names, n)
	}
	slices.Sort(names)

	var b strings.Builder
	b.WriteString("client_id\tpath\tsentence\tup_votes\tdown_votes\n")
	for i, n := range names {
		fmt.Fprintf(&b, "client%d\t%s\t%s\t1\t0\n", i, n, clips[n])
	}

	writeFile(tb, fs, path, []byte(b.String()))
}

func writeFile(tb testing.TB, fs afero.Fs, path string, data []byte) {
	tb.Helper()

	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		tb.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := afero.WriteFile(fs, path, data, 0o644); err != nil {
		tb.Fatalf("write %s: %v", path, err)
	}
}
