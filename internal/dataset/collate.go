package dataset

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
)

// ErrEmptyBatch is returned when Collate is called without samples.
var ErrEmptyBatch = errors.New("empty batch")

// Collator assembles samples into one Batch.
type Collator interface {
	Collate(samples []Sample) (Batch, error)
}

// PadCollator pads variable-length samples to the longest text and mel in
// the batch and orders rows by descending text length. The mel length is
// rounded up to a multiple of the frames-per-step factor.
type PadCollator struct {
	nFramesPerStep int
}

// NewCollator returns a PadCollator. Values below 1 are treated as 1.
func NewCollator(nFramesPerStep int) PadCollator {
	return PadCollator{nFramesPerStep: max(nFramesPerStep, 1)}
}

// FramesPerStep returns the rounding factor for the mel length.
func (c PadCollator) FramesPerStep() int { return max(c.nFramesPerStep, 1) }

// Collate is pure: it only reads samples and allocates the result. Ties in
// text length keep their input order.
func (c PadCollator) Collate(samples []Sample) (Batch, error) {
	nMel, err := checkSamples(samples)
	if err != nil {
		return Batch{}, err
	}

	order := make([]int, len(samples))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(len(samples[b].Tokens), len(samples[a].Tokens))
	})

	maxInput := len(samples[order[0]].Tokens)
	maxTarget := 0
	for _, s := range samples {
		maxTarget = max(maxTarget, s.Mel.Frames)
	}
	maxTarget = roundUp(maxTarget, c.FramesPerStep())

	b := newBatch(len(samples), maxInput, nMel, maxTarget)
	for row, idx := range order {
		s := samples[idx]
		b.setRow(row, s, len(s.Tokens), s.Mel.Frames)
	}

	return b, nil
}

// StackCollator stacks samples that were already padded to a fixed size by
// the dataset. Rows keep their input order and lengths come from the
// pre-padding fields of each sample.
type StackCollator struct{}

func (StackCollator) Collate(samples []Sample) (Batch, error) {
	nMel, err := checkSamples(samples)
	if err != nil {
		return Batch{}, err
	}

	textLen := len(samples[0].Tokens)
	melLen := samples[0].Mel.Frames
	for i, s := range samples {
		if len(s.Tokens) != textLen || s.Mel.Frames != melLen {
			return Batch{}, fmt.Errorf("sample %d is [%d tokens, %d frames], batch is [%d, %d]: fixed-size samples must share a shape",
				i, len(s.Tokens), s.Mel.Frames, textLen, melLen)
		}
		if s.MelLength < 1 || s.MelLength > melLen || s.TextLength > textLen {
			return Batch{}, fmt.Errorf("sample %d has lengths (%d, %d) outside its padded shape", i, s.TextLength, s.MelLength)
		}
	}

	b := newBatch(len(samples), textLen, nMel, melLen)
	for i, s := range samples {
		b.setRow(i, s, s.TextLength, s.MelLength)
	}

	return b, nil
}

// checkSamples returns the shared channel count.
func checkSamples(samples []Sample) (int, error) {
	if len(samples) == 0 {
		return 0, ErrEmptyBatch
	}

	nMel := -1
	for i, s := range samples {
		if s.Mel == nil {
			return 0, fmt.Errorf("sample %d (%s) has no features", i, s.Path)
		}
		if s.Mel.Frames < 1 {
			return 0, fmt.Errorf("sample %d (%s) has no frames", i, s.Path)
		}
		if nMel >= 0 && s.Mel.Channels != nMel {
			return 0, fmt.Errorf("sample %d (%s) has %d channels, batch has %d", i, s.Path, s.Mel.Channels, nMel)
		}
		nMel = s.Mel.Channels
	}

	return nMel, nil
}

func roundUp(n, step int) int {
	if r := n % step; r != 0 {
		return n + step - r
	}

	return n
}
