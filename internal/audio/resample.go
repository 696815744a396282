package audio

import "math"

// ResampleArea rescales x by scale using area interpolation: the output has
// floor(len(x)*scale) samples and sample i is the mean of the input window
// [floor(i*n/m), ceil((i+1)*n/m)). The result is always a new slice.
func ResampleArea(x []float32, scale float64) []float32 {
	if scale <= 0 || len(x) == 0 {
		return []float32{}
	}

	n := len(x)
	m := int(math.Floor(float64(n) * scale))
	out := make([]float32, m)

	for i := range m {
		start := (i * n) / m
		end := ((i+1)*n + m - 1) / m

		var sum float64
		for _, v := range x[start:end] {
			sum += float64(v)
		}
		out[i] = float32(sum / float64(end-start))
	}

	return out
}

// Resample converts x from one sample rate to another. Equal rates return a
// copy.
func Resample(x []float32, from, to int) []float32 {
	if from == to {
		out := make([]float32, len(x))
		copy(out, x)

		return out
	}

	return ResampleArea(x, float64(to)/float64(from))
}

// Peak returns the minimum and maximum sample values.
func Peak(x []float32) (lo, hi float32) {
	for i, v := range x {
		if i == 0 || v < lo {
			lo = v
		}
		if i == 0 || v > hi {
			hi = v
		}
	}

	return lo, hi
}
