// Package features turns manifest audio paths into mel features: decoded and
// resampled audio through the mel transform, the raw resampled waveform, or a
// precomputed safetensors cache.
package features

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/afero"

	"github.com/example/go-textmel/internal/audio"
	"github.com/example/go-textmel/internal/config"
	"github.com/example/go-textmel/internal/mel"
)

// pcm16Scale undoes the float normalization of 16-bit PCM so the configured
// max_wav_value divides raw integer amplitudes.
const pcm16Scale = 32768

type options struct {
	logger *slog.Logger
}

func defaultOptions() options {
	return options{logger: slog.Default()}
}

// Option configures an Extractor.
type Option func(*options)

// WithLogger sets the logger used for soft-failure diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// Extractor is immutable after construction and safe for concurrent use.
type Extractor struct {
	fs           afero.Fs
	mode         config.SourceMode
	maxWavValue  float64
	inputRate    int
	samplingRate int
	nMel         int
	transform    *mel.Transform
	log          *slog.Logger
}

// New validates the source mode and, for spectrogram mode, precomputes the
// mel transform.
func New(cfg config.Config, fs afero.Fs, optFns ...Option) (*Extractor, error) {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	mode, err := cfg.Data.SourceMode()
	if err != nil {
		return nil, err
	}

	if cfg.Data.MaxWavValue <= 0 {
		return nil, fmt.Errorf("%w: max_wav_value must be positive, got %g", config.ErrConfig, cfg.Data.MaxWavValue)
	}

	e := &Extractor{
		fs:           fs,
		mode:         mode,
		maxWavValue:  cfg.Data.MaxWavValue,
		inputRate:    cfg.Data.EffectiveInputSampleRate(),
		samplingRate: cfg.Data.SamplingRate,
		nMel:         cfg.STFT.NMelChannels,
		log:          opts.logger,
	}

	if mode == config.SpectrogramFromAudio {
		e.transform, err = mel.NewTransform(cfg.STFT, cfg.Data.SamplingRate)
		if err != nil {
			return nil, err
		}
	} else if e.inputRate <= 0 || e.samplingRate <= 0 {
		return nil, fmt.Errorf("%w: sample rates must be positive", config.ErrConfig)
	}

	return e, nil
}

// Mode reports where features come from.
func (e *Extractor) Mode() config.SourceMode { return e.mode }

// Channels is the first dimension of every returned Mel.
func (e *Extractor) Channels() int {
	if e.mode == config.RawWaveform {
		return 1
	}

	return e.nMel
}

// CacheMetadata describes the analysis parameters recorded next to cached
// features.
func (e *Extractor) CacheMetadata() map[string]string {
	return map[string]string{
		"sampling_rate":  strconv.Itoa(e.samplingRate),
		"n_mel_channels": strconv.Itoa(e.nMel),
		"source":         e.mode.String(),
	}
}

// Extract returns features for the audio file at path. A nil Mel with a nil
// error marks a soft failure (out-of-range or too-short audio) that has
// already been logged. Missing files, decode failures and cache dimension
// mismatches are returned as errors.
func (e *Extractor) Extract(path string) (*Mel, error) {
	if e.mode == config.PrecomputedCache {
		return e.loadCached(path)
	}

	samples, err := e.loadAudio(path)
	if err != nil || samples == nil {
		return nil, err
	}

	if e.mode == config.RawWaveform {
		return &Mel{Channels: 1, Frames: len(samples), Data: samples}, nil
	}

	data, frames, err := e.transform.Spectrogram(samples)
	if errors.Is(err, mel.ErrTooShort) {
		e.log.Warn("audio too short for spectrogram", "path", path, "samples", len(samples))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("spectrogram %s: %w", path, err)
	}

	return &Mel{Channels: e.transform.Channels(), Frames: frames, Data: data}, nil
}

// loadAudio decodes path and brings it to the analysis sample rate. It
// returns nil samples for a logged soft failure.
func (e *Extractor) loadAudio(path string) ([]float32, error) {
	pcm, err := audio.DecodeFile(e.fs, path)
	if err != nil {
		return nil, err
	}

	samples := pcm.Samples
	if pcm.Container == audio.ContainerWAV && pcm.BitDepth == 16 {
		samples = scale(samples, pcm16Scale/e.maxWavValue)
	}

	if pcm.SampleRate != e.inputRate {
		if pcm.SampleRate < e.inputRate {
			e.log.Warn("audio sample rate below requested input rate",
				"path", path, "native_rate", pcm.SampleRate, "input_sample_rate", e.inputRate)
		}

		samples = audio.Resample(samples, pcm.SampleRate, e.inputRate)
	}

	if e.inputRate != e.samplingRate {
		samples = audio.Resample(samples, e.inputRate, e.samplingRate)
	}

	if !inUnitRange(samples) {
		lo, hi := audio.Peak(samples)
		e.log.Warn("audio out of range", "path", path, "min", lo, "max", hi)

		return nil, nil
	}

	if len(samples) == 0 {
		e.log.Warn("audio empty after resampling", "path", path, "native_rate", pcm.SampleRate)
		return nil, nil
	}

	return samples, nil
}

func (e *Extractor) loadCached(path string) (*Mel, error) {
	m, err := LoadCache(e.fs, CachePath(path))
	if err != nil {
		return nil, err
	}

	if m.Channels != e.nMel {
		return nil, fmt.Errorf("%w: %s has %d channels, expected %d",
			ErrFeatureDimensionMismatch, path, m.Channels, e.nMel)
	}

	return m, nil
}

// scale returns x*k, reusing x when k is 1.
func scale(x []float32, k float64) []float32 {
	if k == 1 {
		return x
	}

	out := make([]float32, len(x))
	for i, v := range x {
		out[i] = float32(float64(v) * k)
	}

	return out
}

// inUnitRange reports whether every sample lies in [-1, 1]. NaN fails.
func inUnitRange(x []float32) bool {
	for _, v := range x {
		if !(v >= -1 && v <= 1) {
			return false
		}
	}

	return true
}
