// Package mel computes log-compressed mel spectrograms from mono audio:
// centered STFT magnitude, Slaney mel projection, natural log clamped at 1e-5.
package mel

import (
	"errors"
	"fmt"
	"math"

	"github.com/up-zero/gotool/mediautil"

	"github.com/example/go-textmel/internal/config"
)

// ErrTooShort is returned when a clip has too few samples to reflect-pad
// the first analysis frame.
var ErrTooShort = errors.New("audio too short for STFT")

const clampMin = 1e-5

// Transform is immutable after construction and safe for concurrent use.
type Transform struct {
	filterLength int
	hopLength    int
	window       []float64 // win_length Hann window centered in filter_length
	filters      []filter
}

// NewTransform validates s and precomputes the window and filterbank.
func NewTransform(s config.STFTConfig, samplingRate int) (*Transform, error) {
	if samplingRate <= 0 {
		return nil, fmt.Errorf("%w: sampling rate must be positive, got %d", config.ErrConfig, samplingRate)
	}
	if err := s.Validate(samplingRate); err != nil {
		return nil, err
	}

	window := make([]float64, s.FilterLength)
	offset := (s.FilterLength - s.WinLength) / 2
	for i, w := range mediautil.HannWindow(s.WinLength) {
		window[offset+i] = float64(w)
	}

	return &Transform{
		filterLength: s.FilterLength,
		hopLength:    s.HopLength,
		window:       window,
		filters:      filterBank(samplingRate, s.FilterLength, s.NMelChannels, s.MelFMin, s.EffectiveFMax(samplingRate)),
	}, nil
}

// Channels returns the number of mel bands.
func (t *Transform) Channels() int { return len(t.filters) }

// NumFrames returns the frame count Spectrogram produces for n samples.
func (t *Transform) NumFrames(n int) int { return 1 + n/t.hopLength }

// Spectrogram returns a row-major [Channels × frames] log-mel matrix.
func (t *Transform) Spectrogram(samples []float32) ([]float32, int, error) {
	pad := t.filterLength / 2
	if len(samples) <= pad {
		return nil, 0, fmt.Errorf("%w: %d samples, need more than %d", ErrTooShort, len(samples), pad)
	}

	padded := reflectPad(samples, pad)
	frames := t.NumFrames(len(samples))
	nMel := len(t.filters)
	nFreq := t.filterLength/2 + 1

	out := make([]float32, nMel*frames)
	buf := make([]complex128, t.filterLength)
	mag := make([]float64, nFreq)

	for f := range frames {
		start := f * t.hopLength
		for j := range t.filterLength {
			buf[j] = complex(float64(padded[start+j])*t.window[j], 0)
		}

		spectrum := mediautil.FFT(buf)
		for j := range nFreq {
			r, im := real(spectrum[j]), imag(spectrum[j])
			mag[j] = math.Sqrt(r*r + im*im)
		}

		for k, flt := range t.filters {
			var sum float64
			for j, w := range flt.weights {
				sum += w * mag[flt.start+j]
			}
			out[k*frames+f] = float32(math.Log(math.Max(sum, clampMin)))
		}
	}

	return out, frames, nil
}

// reflectPad mirrors p samples at each edge without repeating the edge sample.
func reflectPad(s []float32, p int) []float32 {
	n := len(s)
	res := make([]float32, n+2*p)
	for i := range p {
		res[i] = s[p-i]
		res[n+p+i] = s[n-2-i]
	}
	copy(res[p:], s)

	return res
}
