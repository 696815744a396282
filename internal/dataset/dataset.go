// Package dataset pairs tokenized transcripts with audio features and
// collates them into padded training batches.
package dataset

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/example/go-textmel/internal/config"
	"github.com/example/go-textmel/internal/features"
	"github.com/example/go-textmel/internal/manifest"
	"github.com/example/go-textmel/internal/tokenizer"
)

var (
	// ErrNoValidSample is returned when the fallback budget runs out before
	// a valid sample is found.
	ErrNoValidSample = errors.New("no valid sample")
	// ErrIndexOutOfRange is returned by Get for an index outside [0, Len).
	ErrIndexOutOfRange = errors.New("index out of range")
)

// FeatureSource produces features for an audio path. A nil Mel with a nil
// error marks a soft failure.
type FeatureSource interface {
	Extract(path string) (*features.Mel, error)
	Channels() int
}

// Sample is one (text, features) pair. TextLength and MelLength are the
// lengths before any fixed-size padding.
type Sample struct {
	Tokens     []int64
	Mel        *features.Mel
	Path       string
	TextLength int
	MelLength  int
}

type options struct {
	logger *slog.Logger
}

func defaultOptions() options {
	return options{logger: slog.Default()}
}

// Option configures a Dataset.
type Option func(*options)

// WithLogger sets the logger for sample diagnostics. Open passes it on to
// the feature extractor.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// Dataset is an indexable view over manifest entries. It is immutable after
// construction and safe for concurrent Get calls.
type Dataset struct {
	entries    []manifest.Entry
	root       string
	tok        tokenizer.Tokenizer
	ext        FeatureSource
	mode       config.CollateMode
	maxText    int
	maxMel     int
	seed       int64
	maxRetries int
	log        *slog.Logger
}

// New builds a dataset over entries whose paths are relative to root.
// Inconsistent configuration fails with config.ErrConfig.
func New(
	cfg config.Config,
	entries []manifest.Entry,
	root string,
	tok tokenizer.Tokenizer,
	ext FeatureSource,
	optFns ...Option,
) (*Dataset, error) {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	if _, err := cfg.Data.SourceMode(); err != nil {
		return nil, err
	}

	mode, err := cfg.Data.CollateMode()
	if err != nil {
		return nil, err
	}

	if cfg.Data.MaxRetries < 0 {
		return nil, fmt.Errorf("%w: max_retries must not be negative, got %d", config.ErrConfig, cfg.Data.MaxRetries)
	}

	if tok == nil || ext == nil {
		return nil, errors.New("dataset: tokenizer and feature source are required")
	}

	return &Dataset{
		entries:    entries,
		root:       root,
		tok:        tok,
		ext:        ext,
		mode:       mode,
		maxText:    cfg.Data.MaxTextLength,
		maxMel:     cfg.Data.MaxMelLength,
		seed:       cfg.Data.Seed,
		maxRetries: cfg.Data.MaxRetries,
		log:        opts.logger,
	}, nil
}

// Open loads the manifest named by cfg.Data.Path and wires the configured
// tokenizer and feature extractor. Entry paths resolve against the
// manifest's directory. The extractor is returned alongside the dataset for
// callers that need its mode or cache metadata.
func Open(cfg config.Config, fs afero.Fs, optFns ...Option) (*Dataset, *features.Extractor, error) {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	format, err := manifest.ParseFormat(cfg.Data.FetcherMode)
	if err != nil {
		return nil, nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	entries, err := manifest.Load(fs, cfg.Data.Path, format, cfg.Data.Seed)
	if err != nil {
		return nil, nil, err
	}

	tok, err := tokenizer.New(fs, cfg.Data)
	if err != nil {
		return nil, nil, err
	}

	ext, err := features.New(cfg, fs, features.WithLogger(opts.logger))
	if err != nil {
		return nil, nil, err
	}

	ds, err := New(cfg, entries, filepath.Dir(cfg.Data.Path), tok, ext, optFns...)
	if err != nil {
		return nil, nil, err
	}

	return ds, ext, nil
}

// Len returns the number of manifest entries.
func (d *Dataset) Len() int { return len(d.entries) }

// Entries returns the shuffled manifest entries. The slice must not be
// modified.
func (d *Dataset) Entries() []manifest.Entry { return d.entries }

// Mode reports whether samples are collated dynamically or pre-padded.
func (d *Dataset) Mode() config.CollateMode { return d.mode }

// Channels is the feature channel count of every sample.
func (d *Dataset) Channels() int { return d.ext.Channels() }

// Collator returns the collator matching the dataset's padding mode.
func (d *Dataset) Collator(nFramesPerStep int) Collator {
	if d.mode == config.FixedSizePad {
		return StackCollator{}
	}

	return NewCollator(nFramesPerStep)
}

// Get returns the sample at index as seen in epoch 0. See GetEpoch.
func (d *Dataset) Get(index int) (Sample, error) {
	return d.GetEpoch(index, 0)
}

// GetEpoch returns the sample at index. Invalid samples (soft extraction
// failures or entries over the length caps) are replaced by a random other
// entry, at most max_retries times. Replacement choices are derived from
// (seed, epoch, index): within one epoch an index always falls back the same
// way, across epochs the substitute varies.
func (d *Dataset) GetEpoch(index, epoch int) (Sample, error) {
	if index < 0 || index >= len(d.entries) {
		return Sample{}, fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, index, len(d.entries))
	}

	var rng *rand.Rand
	current := index

	for attempt := 0; ; attempt++ {
		s, ok, err := d.load(current)
		if err != nil {
			return Sample{}, err
		}
		if ok {
			return d.finish(s), nil
		}

		if attempt >= d.maxRetries || len(d.entries) < 2 {
			return Sample{}, fmt.Errorf("%w: index %d after %d attempt(s)", ErrNoValidSample, index, attempt+1)
		}

		if rng == nil {
			rng = rand.New(rand.NewPCG(uint64(d.seed), fallbackStream(index, epoch)))
		}

		current = otherIndex(rng, len(d.entries), current)
	}
}

// load reads one entry. ok is false for an invalid sample.
func (d *Dataset) load(index int) (Sample, bool, error) {
	e := d.entries[index]

	tokens, err := d.tok.Encode(e.Text)
	if err != nil {
		return Sample{}, false, fmt.Errorf("tokenize %s: %w", e.Path, err)
	}

	m, err := d.ext.Extract(filepath.Join(d.root, e.Path))
	if err != nil {
		return Sample{}, false, err
	}

	if m == nil {
		return Sample{}, false, nil
	}

	s := Sample{
		Tokens:     tokens,
		Mel:        m,
		Path:       e.Path,
		TextLength: len(tokens),
		MelLength:  m.Frames,
	}

	if m.Frames == 0 ||
		(d.maxMel > 0 && m.Frames > d.maxMel) ||
		(d.maxText > 0 && len(tokens) > d.maxText) {
		d.log.Warn("skipping sample",
			"index", index,
			"mel_len", m.Frames,
			"text_len", len(tokens),
			"path", e.Path,
		)

		return Sample{}, false, nil
	}

	return s, true, nil
}

// finish applies fixed-size padding when the dataset is not collated.
func (d *Dataset) finish(s Sample) Sample {
	if d.mode != config.FixedSizePad {
		return s
	}

	tokens := make([]int64, d.maxText)
	copy(tokens, s.Tokens)
	s.Tokens = tokens
	s.Mel = s.Mel.PadTo(d.maxMel)

	return s
}

// fallbackStream packs epoch and index into the second PCG seed word.
// Epoch 0 yields the bare index.
func fallbackStream(index, epoch int) uint64 {
	return uint64(uint32(epoch))<<32 | uint64(uint32(index))
}

// otherIndex draws uniformly from [0, n) excluding current. n must be at
// least 2.
func otherIndex(rng *rand.Rand, n, current int) int {
	j := rng.IntN(n - 1)
	if j >= current {
		j++
	}

	return j
}
