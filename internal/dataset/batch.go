package dataset

// Batch field names as consumed by training code.
const (
	KeyPaddedText    = "padded_text"
	KeyInputLengths  = "input_lengths"
	KeyPaddedMel     = "padded_mel"
	KeyPaddedGate    = "padded_gate"
	KeyOutputLengths = "output_lengths"
	KeyFilenames     = "filenames"
)

// BatchKeys lists the batch fields in output order.
var BatchKeys = []string{
	KeyPaddedText, KeyInputLengths, KeyPaddedMel,
	KeyPaddedGate, KeyOutputLengths, KeyFilenames,
}

// Batch is a padded set of samples stored in flat row-major arrays:
// PaddedText is [Size × MaxInputLen], PaddedMel [Size × NMel × MaxTargetLen]
// and PaddedGate [Size × MaxTargetLen]. Gate is 1 from the last real frame
// of each row onward.
type Batch struct {
	Size         int
	MaxInputLen  int
	NMel         int
	MaxTargetLen int

	PaddedText    []int64
	InputLengths  []int64
	PaddedMel     []float32
	PaddedGate    []float32
	OutputLengths []int64
	Filenames     []string
}

func newBatch(size, maxInput, nMel, maxTarget int) Batch {
	return Batch{
		Size:          size,
		MaxInputLen:   maxInput,
		NMel:          nMel,
		MaxTargetLen:  maxTarget,
		PaddedText:    make([]int64, size*maxInput),
		InputLengths:  make([]int64, size),
		PaddedMel:     make([]float32, size*nMel*maxTarget),
		PaddedGate:    make([]float32, size*maxTarget),
		OutputLengths: make([]int64, size),
		Filenames:     make([]string, size),
	}
}

// TextRow returns row i of PaddedText.
func (b *Batch) TextRow(i int) []int64 {
	return b.PaddedText[i*b.MaxInputLen : (i+1)*b.MaxInputLen]
}

// MelRow returns channel c of sample i.
func (b *Batch) MelRow(i, c int) []float32 {
	off := (i*b.NMel + c) * b.MaxTargetLen
	return b.PaddedMel[off : off+b.MaxTargetLen]
}

// GateRow returns row i of PaddedGate.
func (b *Batch) GateRow(i int) []float32 {
	return b.PaddedGate[i*b.MaxTargetLen : (i+1)*b.MaxTargetLen]
}

// Shape maps each field name to its dimensions.
func (b *Batch) Shape() map[string][]int {
	return map[string][]int{
		KeyPaddedText:    {b.Size, b.MaxInputLen},
		KeyInputLengths:  {b.Size},
		KeyPaddedMel:     {b.Size, b.NMel, b.MaxTargetLen},
		KeyPaddedGate:    {b.Size, b.MaxTargetLen},
		KeyOutputLengths: {b.Size},
		KeyFilenames:     {b.Size},
	}
}

// setRow copies sample s into row i and marks its gate.
func (b *Batch) setRow(i int, s Sample, textLen, melLen int) {
	copy(b.TextRow(i), s.Tokens[:min(len(s.Tokens), b.MaxInputLen)])

	frames := min(s.Mel.Frames, b.MaxTargetLen)
	for c := range b.NMel {
		copy(b.MelRow(i, c)[:frames], s.Mel.Row(c)[:frames])
	}

	gate := b.GateRow(i)
	for f := max(melLen-1, 0); f < b.MaxTargetLen; f++ {
		gate[f] = 1
	}

	b.InputLengths[i] = int64(textLen)
	b.OutputLengths[i] = int64(melLen)
	b.Filenames[i] = s.Path
}
