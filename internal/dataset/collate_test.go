package dataset

import (
	"errors"
	"math/rand/v2"
	"slices"
	"strings"
	"testing"

	"github.com/example/go-textmel/internal/features"
)

// makeSample builds a sample whose mel value at (c, f) is name-specific so
// row placement can be checked after reordering.
func makeSample(name string, tokens, frames, nMel int) Sample {
	toks := make([]int64, tokens)
	for i := range toks {
		toks[i] = int64(i + 1)
	}

	m := features.NewMel(nMel, frames)
	for c := range nMel {
		for f := range frames {
			m.Data[c*frames+f] = float32(len(name)*1000 + c*100 + f + 1)
		}
	}

	return Sample{Tokens: toks, Mel: m, Path: name, TextLength: tokens, MelLength: frames}
}

func checkGate(t *testing.T, b *Batch) {
	t.Helper()

	for i := range b.Size {
		n := int(b.OutputLengths[i])
		for f, g := range b.GateRow(i) {
			want := float32(0)
			if f >= n-1 {
				want = 1
			}
			if g != want {
				t.Fatalf("gate[%d][%d] = %v; want %v (output length %d)", i, f, g, want, n)
			}
		}
	}
}

func TestCollate_Scenario(t *testing.T) {
	const nMel = 4
	samples := []Sample{
		makeSample("a", 5, 40, nMel),
		makeSample("bb", 2, 10, nMel),
		makeSample("ccc", 8, 55, nMel),
	}

	b, err := NewCollator(4).Collate(samples)
	if err != nil {
		t.Fatalf("Collate: %v", err)
	}

	if !slices.Equal(b.InputLengths, []int64{8, 5, 2}) {
		t.Errorf("InputLengths = %v; want [8 5 2]", b.InputLengths)
	}
	if !slices.Equal(b.OutputLengths, []int64{55, 40, 10}) {
		t.Errorf("OutputLengths = %v; want [55 40 10]", b.OutputLengths)
	}
	if !slices.Equal(b.Filenames, []string{"ccc", "a", "bb"}) {
		t.Errorf("Filenames = %v", b.Filenames)
	}
	if b.MaxTargetLen != 56 || b.MaxInputLen != 8 {
		t.Errorf("MaxTargetLen, MaxInputLen = %d, %d; want 56, 8", b.MaxTargetLen, b.MaxInputLen)
	}

	shape := b.Shape()
	if !slices.Equal(shape[KeyPaddedMel], []int{3, nMel, 56}) {
		t.Errorf("padded_mel shape = %v; want [3 %d 56]", shape[KeyPaddedMel], nMel)
	}
	if !slices.Equal(shape[KeyPaddedText], []int{3, 8}) {
		t.Errorf("padded_text shape = %v", shape[KeyPaddedText])
	}
	if len(b.PaddedMel) != 3*nMel*56 || len(b.PaddedGate) != 3*56 {
		t.Errorf("buffer sizes = %d, %d", len(b.PaddedMel), len(b.PaddedGate))
	}

	gate := b.GateRow(0)
	for f, g := range gate {
		want := float32(0)
		if f >= 54 {
			want = 1
		}
		if g != want {
			t.Errorf("gate[0][%d] = %v; want %v", f, g, want)
		}
	}

	if got := b.TextRow(2); !slices.Equal(got, []int64{1, 2, 0, 0, 0, 0, 0, 0}) {
		t.Errorf("TextRow(2) = %v", got)
	}

	// Row 1 holds sample "a": 40 real frames then zeros.
	if got := b.MelRow(1, 2)[39]; got != float32(1000+200+39+1) {
		t.Errorf("MelRow(1, 2)[39] = %v", got)
	}
	if got := b.MelRow(1, 2)[40]; got != 0 {
		t.Errorf("MelRow(1, 2)[40] = %v; want 0 padding", got)
	}

	checkGate(t, &b)
}

func TestCollate_SingleSample(t *testing.T) {
	for _, tt := range []struct {
		frames, step, want int
	}{
		{7, 1, 7},
		{7, 2, 8},
		{8, 4, 8},
		{1, 3, 3},
	} {
		b, err := NewCollator(tt.step).Collate([]Sample{makeSample("x", 3, tt.frames, 2)})
		if err != nil {
			t.Fatalf("Collate: %v", err)
		}

		if b.Size != 1 || b.MaxTargetLen != tt.want {
			t.Errorf("frames %d step %d: size %d, MaxTargetLen %d; want 1, %d",
				tt.frames, tt.step, b.Size, b.MaxTargetLen, tt.want)
		}

		checkGate(t, &b)
	}
}

func TestCollate_StableTies(t *testing.T) {
	samples := []Sample{
		makeSample("first", 4, 5, 1),
		makeSample("second", 4, 9, 1),
		makeSample("longest", 6, 2, 1),
		makeSample("third", 4, 3, 1),
	}

	b, err := NewCollator(1).Collate(samples)
	if err != nil {
		t.Fatalf("Collate: %v", err)
	}

	want := []string{"longest", "first", "second", "third"}
	if !slices.Equal(b.Filenames, want) {
		t.Errorf("Filenames = %v; want %v", b.Filenames, want)
	}
}

func TestCollate_Properties(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))

	for trial := range 200 {
		step := 1 + rng.IntN(5)
		n := 1 + rng.IntN(8)
		samples := make([]Sample, n)
		for i := range samples {
			samples[i] = makeSample(strings.Repeat("s", i+1), 1+rng.IntN(30), 1+rng.IntN(90), 3)
		}

		b, err := NewCollator(step).Collate(samples)
		if err != nil {
			t.Fatalf("trial %d: Collate: %v", trial, err)
		}

		if b.MaxTargetLen%step != 0 {
			t.Fatalf("trial %d: MaxTargetLen %d not a multiple of %d", trial, b.MaxTargetLen, step)
		}

		maxText := 0
		for _, s := range samples {
			maxText = max(maxText, len(s.Tokens))
		}
		if int(b.InputLengths[0]) != maxText {
			t.Fatalf("trial %d: InputLengths[0] = %d; want %d", trial, b.InputLengths[0], maxText)
		}
		if !slices.IsSortedFunc(b.InputLengths, func(a, c int64) int { return int(c - a) }) {
			t.Fatalf("trial %d: InputLengths %v not descending", trial, b.InputLengths)
		}

		checkGate(t, &b)
	}
}

func TestCollate_Errors(t *testing.T) {
	if _, err := NewCollator(1).Collate(nil); !errors.Is(err, ErrEmptyBatch) {
		t.Errorf("Collate(nil) error = %v; want ErrEmptyBatch", err)
	}

	mixed := []Sample{makeSample("a", 2, 3, 80), makeSample("b", 2, 3, 40)}
	if _, err := NewCollator(1).Collate(mixed); err == nil {
		t.Error("Collate accepted mixed channel counts")
	}

	if _, err := NewCollator(1).Collate([]Sample{{Tokens: []int64{1}, Path: "nil"}}); err == nil {
		t.Error("Collate accepted a sample without features")
	}
}

func TestNewCollator_ClampsStep(t *testing.T) {
	if got := NewCollator(0).FramesPerStep(); got != 1 {
		t.Errorf("FramesPerStep() = %d; want 1", got)
	}
	if got := NewCollator(-3).FramesPerStep(); got != 1 {
		t.Errorf("FramesPerStep() = %d; want 1", got)
	}
}

func TestStackCollator(t *testing.T) {
	a := makeSample("a", 3, 4, 2)
	a.Tokens = append(a.Tokens, 0, 0)
	a.Mel = a.Mel.PadTo(10)

	b := makeSample("b", 5, 10, 2)

	batch, err := StackCollator{}.Collate([]Sample{a, b})
	if err != nil {
		t.Fatalf("Collate: %v", err)
	}

	if !slices.Equal(batch.Filenames, []string{"a", "b"}) {
		t.Errorf("Filenames = %v; want input order", batch.Filenames)
	}
	if !slices.Equal(batch.InputLengths, []int64{3, 5}) || !slices.Equal(batch.OutputLengths, []int64{4, 10}) {
		t.Errorf("lengths = %v, %v", batch.InputLengths, batch.OutputLengths)
	}
	if batch.MaxTargetLen != 10 || batch.MaxInputLen != 5 {
		t.Errorf("dims = %d, %d", batch.MaxInputLen, batch.MaxTargetLen)
	}

	checkGate(t, &batch)

	short := makeSample("c", 5, 9, 2)
	if _, err := (StackCollator{}).Collate([]Sample{b, short}); err == nil {
		t.Error("StackCollator accepted samples of different shapes")
	}
}
