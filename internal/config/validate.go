package config

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

// ErrConfig marks an inconsistent configuration. It is always fatal.
var ErrConfig = errors.New("invalid configuration")

// SourceMode selects where sample features come from.
type SourceMode int

const (
	SpectrogramFromAudio SourceMode = iota
	RawWaveform
	PrecomputedCache
)

func (m SourceMode) String() string {
	switch m {
	case SpectrogramFromAudio:
		return "spectrogram"
	case RawWaveform:
		return "raw-waveform"
	case PrecomputedCache:
		return "precomputed-cache"
	default:
		return fmt.Sprintf("SourceMode(%d)", int(m))
	}
}

// CollateMode selects between per-batch padding and fixed-size padding.
type CollateMode int

const (
	DynamicCollate CollateMode = iota
	FixedSizePad
)

func (m CollateMode) String() string {
	switch m {
	case DynamicCollate:
		return "dynamic"
	case FixedSizePad:
		return "fixed-size"
	default:
		return fmt.Sprintf("CollateMode(%d)", int(m))
	}
}

const (
	TokenizerSymbols       = "symbols"
	TokenizerSentencePiece = "sentencepiece"
)

// NormalizeTokenizer canonicalizes a tokenizer name. Empty selects symbols.
func NormalizeTokenizer(raw string) (string, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	switch name {
	case "", TokenizerSymbols:
		return TokenizerSymbols, nil
	case TokenizerSentencePiece, "sp", "spm":
		return TokenizerSentencePiece, nil
	default:
		return "", fmt.Errorf(
			"%w: invalid tokenizer %q (expected %s|%s)",
			ErrConfig,
			raw,
			TokenizerSymbols,
			TokenizerSentencePiece,
		)
	}
}

// SourceMode folds load_mel_from_disk and return_wavs into one mode.
func (d DataConfig) SourceMode() (SourceMode, error) {
	switch {
	case d.LoadMelFromDisk && d.ReturnWavs:
		return 0, fmt.Errorf("%w: load_mel_from_disk and return_wavs are mutually exclusive", ErrConfig)
	case d.LoadMelFromDisk:
		return PrecomputedCache, nil
	case d.ReturnWavs:
		return RawWaveform, nil
	default:
		return SpectrogramFromAudio, nil
	}
}

// CollateMode reports how samples are padded. Fixed-size padding needs both
// length caps.
func (d DataConfig) CollateMode() (CollateMode, error) {
	if d.NeedsCollate {
		return DynamicCollate, nil
	}
	if d.MaxMelLength <= 0 || d.MaxTextLength <= 0 {
		return 0, fmt.Errorf(
			"%w: needs_collate=false requires max_mel_length and max_text_length (got %d, %d)",
			ErrConfig,
			d.MaxMelLength,
			d.MaxTextLength,
		)
	}

	return FixedSizePad, nil
}

// EffectiveInputSampleRate returns InputSampleRate, defaulting to SamplingRate.
func (d DataConfig) EffectiveInputSampleRate() int {
	if d.InputSampleRate > 0 {
		return d.InputSampleRate
	}

	return d.SamplingRate
}

// EffectiveFMax returns MelFMax, defaulting to the Nyquist frequency.
func (s STFTConfig) EffectiveFMax(samplingRate int) float64 {
	if s.MelFMax > 0 {
		return s.MelFMax
	}

	return float64(samplingRate) / 2
}

// Validate reports every inconsistency in c at once.
func (c Config) Validate() error {
	var err error

	_, modeErr := c.Data.SourceMode()
	err = multierr.Append(err, modeErr)
	_, collateErr := c.Data.CollateMode()
	err = multierr.Append(err, collateErr)
	_, tokErr := NormalizeTokenizer(c.Data.Tokenizer)
	err = multierr.Append(err, tokErr)

	if c.Data.SamplingRate <= 0 {
		err = multierr.Append(err, invalid("sampling_rate must be positive, got %d", c.Data.SamplingRate))
	}
	if c.Data.InputSampleRate < 0 {
		err = multierr.Append(err, invalid("input_sample_rate must not be negative, got %d", c.Data.InputSampleRate))
	}
	if c.Data.MaxWavValue <= 0 {
		err = multierr.Append(err, invalid("max_wav_value must be positive, got %g", c.Data.MaxWavValue))
	}
	if c.Data.MaxMelLength < 0 || c.Data.MaxTextLength < 0 {
		err = multierr.Append(err, invalid("length caps must not be negative"))
	}
	if c.Data.MaxRetries < 0 {
		err = multierr.Append(err, invalid("max_retries must not be negative, got %d", c.Data.MaxRetries))
	}

	err = multierr.Append(err, c.STFT.Validate(c.Data.SamplingRate))

	if c.Loader.BatchSize < 1 {
		err = multierr.Append(err, invalid("batch_size must be at least 1, got %d", c.Loader.BatchSize))
	}
	if c.Loader.NFramesPerStep < 1 {
		err = multierr.Append(err, invalid("n_frames_per_step must be at least 1, got %d", c.Loader.NFramesPerStep))
	}

	return err
}

// Validate checks the STFT parameters against the analysis sample rate.
func (s STFTConfig) Validate(samplingRate int) error {
	var err error

	if s.FilterLength < 2 || s.FilterLength&(s.FilterLength-1) != 0 {
		err = multierr.Append(err, invalid("filter_length must be a power of two, got %d", s.FilterLength))
	}
	if s.WinLength < 1 || s.WinLength > s.FilterLength {
		err = multierr.Append(err, invalid("win_length must be in [1, filter_length], got %d", s.WinLength))
	}
	if s.HopLength < 1 {
		err = multierr.Append(err, invalid("hop_length must be positive, got %d", s.HopLength))
	}
	if s.NMelChannels < 1 {
		err = multierr.Append(err, invalid("n_mel_channels must be positive, got %d", s.NMelChannels))
	}

	fmax := s.EffectiveFMax(samplingRate)
	if s.MelFMin < 0 || s.MelFMin >= fmax {
		err = multierr.Append(err, invalid("mel_fmin must be in [0, mel_fmax), got %g", s.MelFMin))
	}
	if samplingRate > 0 && fmax > float64(samplingRate)/2 {
		err = multierr.Append(err, invalid("mel_fmax %g exceeds Nyquist %g", fmax, float64(samplingRate)/2))
	}

	return err
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrConfig}, args...)...)
}
