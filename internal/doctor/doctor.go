// Package doctor provides dataset preflight checks for textmel.
package doctor

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"

	"github.com/spf13/afero"
	"go.uber.org/multierr"

	"github.com/example/go-textmel/internal/audio"
	"github.com/example/go-textmel/internal/config"
	"github.com/example/go-textmel/internal/features"
	"github.com/example/go-textmel/internal/manifest"
	"github.com/example/go-textmel/internal/tokenizer"
)

// PassMark and FailMark are the prefix symbols printed for each check result.
const (
	PassMark = "✓"
	FailMark = "✗"
)

// Config holds the settings under test and injectable dependencies.
type Config struct {
	Settings config.Config
	// Fs resolves the manifest, audio and cache files. Nil uses the OS.
	Fs afero.Fs
	// MaxFiles caps how many manifest entries are checked on disk; 0 checks
	// every entry.
	MaxFiles int
}

// Result collects the outcome of all checks.
type Result struct {
	failures []string
}

// Failed returns true if any check failed.
func (r *Result) Failed() bool { return len(r.failures) > 0 }

// Failures returns the list of failure messages.
func (r *Result) Failures() []string { return append([]string(nil), r.failures...) }

// AddFailure appends an external failure message to the result.
func (r *Result) AddFailure(msg string) { r.failures = append(r.failures, msg) }

func (r *Result) fail(w io.Writer, check string, err error) {
	r.failures = append(r.failures, fmt.Sprintf("%s: %v", check, err))
	fmt.Fprintf(w, "%s %s: %v\n", FailMark, check, err)
}

// Run executes all checks and writes human-readable output to w. Each check
// line is prefixed with PassMark or FailMark. Checks that depend on a failed
// one are skipped.
func Run(cfg Config, w io.Writer) Result {
	var res Result

	fs := cfg.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	s := cfg.Settings

	// ---- configuration ----------------------------------------------------
	if err := s.Validate(); err != nil {
		for _, e := range multierr.Errors(err) {
			res.fail(w, "configuration", e)
		}
	} else {
		mode, _ := s.Data.SourceMode()
		collate, _ := s.Data.CollateMode()
		fmt.Fprintf(w, "%s configuration: source=%s collate=%s\n", PassMark, mode, collate)
	}

	// ---- manifest ---------------------------------------------------------
	format, err := manifest.ParseFormat(s.Data.FetcherMode)
	if err != nil {
		res.fail(w, "fetcher mode", err)
		return res
	}

	entries, err := manifest.Load(fs, s.Data.Path, format, s.Data.Seed)
	switch {
	case err != nil:
		res.fail(w, "manifest", err)
		return res
	case len(entries) == 0:
		res.fail(w, "manifest", fmt.Errorf("%s has no entries", s.Data.Path))
		return res
	default:
		fmt.Fprintf(w, "%s manifest: %d entries (%s)\n", PassMark, len(entries), format)
	}

	// ---- tokenizer --------------------------------------------------------
	tok, err := tokenizer.New(fs, s.Data)
	if err != nil {
		res.fail(w, "tokenizer", err)
	} else if ids, err := tok.Encode(entries[0].Text); err != nil {
		res.fail(w, "tokenizer", err)
	} else {
		fmt.Fprintf(w, "%s tokenizer: %d tokens for %q\n", PassMark, len(ids), entries[0].Path)
	}

	// ---- files ------------------------------------------------------------
	checkFiles(&res, w, fs, s, entries, cfg.MaxFiles)

	return res
}

func checkFiles(res *Result, w io.Writer, fs afero.Fs, s config.Config, entries []manifest.Entry, maxFiles int) {
	mode, err := s.Data.SourceMode()
	if err != nil {
		fmt.Fprintf(w, "%s files: skipped\n", FailMark)
		return
	}

	if maxFiles > 0 && maxFiles < len(entries) {
		entries = entries[:maxFiles]
	}

	root := filepath.Dir(s.Data.Path)
	missing := 0
	for _, e := range entries {
		path := filepath.Join(root, e.Path)
		if mode == config.PrecomputedCache {
			path = features.CachePath(path)
		}

		if ok, err := afero.Exists(fs, path); err != nil || !ok {
			missing++
			res.fail(w, "file "+path, fmt.Errorf("not found"))
		}
	}
	if missing == 0 {
		fmt.Fprintf(w, "%s files: %d checked\n", PassMark, len(entries))
	}

	// Deeper checks on the first entry only.
	first := filepath.Join(root, entries[0].Path)
	if mode == config.PrecomputedCache {
		checkCache(res, w, fs, s, features.CachePath(first))
		return
	}

	pcm, err := audio.DecodeFile(fs, first)
	if err != nil {
		res.fail(w, "audio", err)
		return
	}

	fmt.Fprintf(w, "%s audio: %s %d Hz, %.2fs\n", PassMark, pcm.Container, pcm.SampleRate, pcm.Duration())
	if want := s.Data.EffectiveInputSampleRate(); pcm.SampleRate < want {
		fmt.Fprintf(w, "  note: native rate %d Hz is below input_sample_rate %d Hz; clips will be upsampled\n",
			pcm.SampleRate, want)
	}
}

// checkCache loads one feature file and compares its shape and recorded
// analysis parameters with the configuration. Files without metadata only
// get the shape check.
func checkCache(res *Result, w io.Writer, fs afero.Fs, s config.Config, path string) {
	m, err := features.LoadCache(fs, path)
	if err != nil {
		res.fail(w, "cache", err)
		return
	}

	if m.Channels != s.STFT.NMelChannels {
		res.fail(w, "cache", fmt.Errorf("%w: %d channels, configured %d",
			features.ErrFeatureDimensionMismatch, m.Channels, s.STFT.NMelChannels))
		return
	}

	md, err := features.ReadCacheMetadata(fs, path)
	if err != nil {
		res.fail(w, "cache", err)
		return
	}

	want := map[string]int{
		"sampling_rate": s.Data.SamplingRate,
		"hop_length":    s.STFT.HopLength,
	}
	ok := true
	for _, key := range []string{"sampling_rate", "hop_length"} {
		got, present := md[key]
		if present && got != strconv.Itoa(want[key]) {
			res.fail(w, "cache", fmt.Errorf("%s written with %s=%s, configured %d", path, key, got, want[key]))
			ok = false
		}
	}

	if ok {
		fmt.Fprintf(w, "%s cache: [%d × %d]\n", PassMark, m.Channels, m.Frames)
	}
}
