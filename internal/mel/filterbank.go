package mel

import "math"

// Slaney mel scale: linear below 1 kHz, logarithmic above.
const (
	fSp        = 200.0 / 3
	minLogHz   = 1000.0
	minLogMel  = minLogHz / fSp
	logStepMel = 0.06875177742094912 // ln(6.4) / 27
)

// HzToMel converts a frequency to the Slaney mel scale.
func HzToMel(hz float64) float64 {
	if hz >= minLogHz {
		return minLogMel + math.Log(hz/minLogHz)/logStepMel
	}

	return hz / fSp
}

// MelToHz is the inverse of HzToMel.
func MelToHz(m float64) float64 {
	if m >= minLogMel {
		return minLogHz * math.Exp(logStepMel*(m-minLogMel))
	}

	return fSp * m
}

// filter is one triangular mel band restricted to its non-zero bins.
type filter struct {
	start   int
	weights []float64
}

// filterBank builds nMel triangular filters over the nFFT/2+1 positive
// frequency bins, area-normalized (Slaney), each restricted to its non-zero
// bins.
func filterBank(sampleRate, nFFT, nMel int, fmin, fmax float64) []filter {
	nFreq := nFFT/2 + 1

	fftFreqs := make([]float64, nFreq)
	for j := range fftFreqs {
		fftFreqs[j] = float64(j) * float64(sampleRate) / float64(nFFT)
	}

	lo, hi := HzToMel(fmin), HzToMel(fmax)
	melF := make([]float64, nMel+2)
	for i := range melF {
		melF[i] = MelToHz(lo + (hi-lo)*float64(i)/float64(nMel+1))
	}

	filters := make([]filter, nMel)
	for i := range nMel {
		left, center, right := melF[i], melF[i+1], melF[i+2]
		enorm := 2 / (right - left)

		f := filter{start: -1}
		for j, freq := range fftFreqs {
			lower := (freq - left) / (center - left)
			upper := (right - freq) / (right - center)

			w := math.Max(0, math.Min(lower, upper))
			if w == 0 {
				if f.start >= 0 {
					break
				}
				continue
			}

			if f.start < 0 {
				f.start = j
			}
			f.weights = append(f.weights, w*enorm)
		}

		if f.start < 0 {
			f.start = 0
		}
		filters[i] = f
	}

	return filters
}
