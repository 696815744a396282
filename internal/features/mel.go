package features

import (
	"fmt"
	"math"
	"slices"
)

// Mel is a row-major [Channels × Frames] feature matrix. In raw-waveform
// mode Channels is 1 and each frame is one audio sample.
type Mel struct {
	Channels int
	Frames   int
	Data     []float32
}

// NewMel allocates a zero-filled matrix.
func NewMel(channels, frames int) *Mel {
	return &Mel{Channels: channels, Frames: frames, Data: make([]float32, channels*frames)}
}

// MelFromData wraps data without copying after checking its length.
func MelFromData(channels, frames int, data []float32) (*Mel, error) {
	if channels < 0 || frames < 0 || len(data) != channels*frames {
		return nil, fmt.Errorf("mel shape [%d × %d] does not match %d values", channels, frames, len(data))
	}

	return &Mel{Channels: channels, Frames: frames, Data: data}, nil
}

// Row returns channel c as a slice aliasing Data.
func (m *Mel) Row(c int) []float32 {
	return m.Data[c*m.Frames : (c+1)*m.Frames]
}

// Shape returns [Channels, Frames].
func (m *Mel) Shape() []int64 {
	return []int64{int64(m.Channels), int64(m.Frames)}
}

// PadTo returns a copy with exactly frames columns: zero-padded on the
// right, or truncated.
func (m *Mel) PadTo(frames int) *Mel {
	out := NewMel(m.Channels, frames)
	n := min(frames, m.Frames)
	for c := range m.Channels {
		copy(out.Data[c*frames:c*frames+n], m.Data[c*m.Frames:c*m.Frames+n])
	}

	return out
}

// Equal reports whether both matrices have the same shape and bit-identical
// values.
func (m *Mel) Equal(o *Mel) bool {
	if m == nil || o == nil {
		return m == o
	}

	return m.Channels == o.Channels && m.Frames == o.Frames &&
		slices.EqualFunc(m.Data, o.Data, func(a, b float32) bool {
			return math.Float32bits(a) == math.Float32bits(b)
		})
}
