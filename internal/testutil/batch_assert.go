package testutil

import (
	"testing"

	"github.com/example/go-textmel/internal/dataset"
)

// AssertBatch checks the invariants every dynamically collated batch must
// hold: buffer sizes match the dimensions, the mel length is a multiple of
// nFramesPerStep, rows are ordered by descending text length and each gate
// row is 0 before the last real frame and 1 from it onward.
func AssertBatch(tb testing.TB, b dataset.Batch, nFramesPerStep int) {
	tb.Helper()

	if len(b.PaddedText) != b.Size*b.MaxInputLen {
		tb.Fatalf("padded_text has %d values; want %d", len(b.PaddedText), b.Size*b.MaxInputLen)
	}
	if len(b.PaddedMel) != b.Size*b.NMel*b.MaxTargetLen {
		tb.Fatalf("padded_mel has %d values; want %d", len(b.PaddedMel), b.Size*b.NMel*b.MaxTargetLen)
	}
	if len(b.PaddedGate) != b.Size*b.MaxTargetLen {
		tb.Fatalf("padded_gate has %d values; want %d", len(b.PaddedGate), b.Size*b.MaxTargetLen)
	}
	if len(b.InputLengths) != b.Size || len(b.OutputLengths) != b.Size || len(b.Filenames) != b.Size {
		tb.Fatalf("per-sample fields have lengths %d/%d/%d; want %d",
			len(b.InputLengths), len(b.OutputLengths), len(b.Filenames), b.Size)
	}

	if nFramesPerStep > 0 && b.MaxTargetLen%nFramesPerStep != 0 {
		tb.Fatalf("max target length %d is not a multiple of %d", b.MaxTargetLen, nFramesPerStep)
	}

	for i := range b.Size {
		if i > 0 && b.InputLengths[i] > b.InputLengths[i-1] {
			tb.Fatalf("input_lengths %v not descending", b.InputLengths)
		}

		n := int(b.OutputLengths[i])
		if n < 1 || n > b.MaxTargetLen {
			tb.Fatalf("output length %d of row %d outside [1, %d]", n, i, b.MaxTargetLen)
		}

		for f, g := range b.GateRow(i) {
			want := float32(0)
			if f >= n-1 {
				want = 1
			}
			if g != want {
				tb.Fatalf("gate[%d][%d] = %v; want %v (output length %d)", i, f, g, want, n)
			}
		}
	}

	if b.Size > 0 && int(b.InputLengths[0]) != b.MaxInputLen {
		tb.Fatalf("input_lengths[0] = %d; want max input length %d", b.InputLengths[0], b.MaxInputLen)
	}
}
