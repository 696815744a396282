// Package audio decodes training clips to mono float32 PCM at their native
// sample rate and resamples them by area averaging.
package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/cwbudde/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/spf13/afero"
)

// Container identifies the decoder that produced a PCM buffer.
type Container string

const (
	ContainerWAV Container = "wav"
	ContainerMP3 Container = "mp3"
)

var (
	// ErrUnsupportedFormat is returned when no decoder recognizes the input.
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	// ErrInvalidWAV is returned for data that does not parse as a WAV file.
	ErrInvalidWAV = errors.New("invalid WAV file")
)

// PCM is a mono clip. Samples are normalized to [-1, 1] regardless of the
// source bit depth.
type PCM struct {
	Samples    []float32
	SampleRate int
	// BitDepth is the integer sample width of the source, 0 when the
	// container does not carry one.
	BitDepth  int
	Container Container
}

// Duration returns the clip length in seconds.
func (p PCM) Duration() float64 {
	if p.SampleRate <= 0 {
		return 0
	}

	return float64(len(p.Samples)) / float64(p.SampleRate)
}

// DecodeFile reads path from fs. Files with a .wav extension go through the
// native WAV decoder; everything else is sniffed by content.
func DecodeFile(fs afero.Fs, path string) (PCM, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return PCM{}, err
	}

	if strings.EqualFold(filepath.Ext(path), ".wav") {
		pcm, err := DecodeWAV(data)
		if err != nil {
			return PCM{}, fmt.Errorf("decode %s: %w", path, err)
		}

		return pcm, nil
	}

	pcm, err := Decode(data)
	if err != nil {
		return PCM{}, fmt.Errorf("decode %s: %w", path, err)
	}

	return pcm, nil
}

// Decode picks a decoder from the leading bytes of data.
func Decode(data []byte) (PCM, error) {
	switch {
	case len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		return DecodeWAV(data)
	case looksLikeMP3(data):
		return DecodeMP3(data)
	default:
		return PCM{}, ErrUnsupportedFormat
	}
}

// DecodeWAV decodes WAV bytes at their native rate, downmixing to mono.
func DecodeWAV(data []byte) (PCM, error) {
	if len(data) == 0 {
		return PCM{}, errors.New("empty WAV input")
	}

	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return PCM{}, ErrInvalidWAV
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return PCM{}, fmt.Errorf("reading PCM data: %w", err)
	}

	return PCM{
		Samples:    downmix(buf.Data, int(dec.NumChans)),
		SampleRate: int(dec.SampleRate),
		BitDepth:   int(dec.BitDepth),
		Container:  ContainerWAV,
	}, nil
}

// DecodeMP3 decodes an MPEG-1/2 layer III stream. The decoder always emits
// 16-bit little-endian stereo.
func DecodeMP3(data []byte) (PCM, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return PCM{}, fmt.Errorf("%w: mp3: %w", ErrUnsupportedFormat, err)
	}

	raw, err := io.ReadAll(dec)
	if err != nil {
		return PCM{}, fmt.Errorf("reading mp3 frames: %w", err)
	}

	return PCM{
		Samples:    stereo16ToMono(raw),
		SampleRate: dec.SampleRate(),
		Container:  ContainerMP3,
	}, nil
}

// stereo16ToMono averages the channels of interleaved 16-bit little-endian
// stereo frames. A trailing partial frame is dropped.
func stereo16ToMono(raw []byte) []float32 {
	const frameBytes = 4

	out := make([]float32, 0, len(raw)/frameBytes)
	for i := 0; i+frameBytes <= len(raw); i += frameBytes {
		l := int16(uint16(raw[i]) | uint16(raw[i+1])<<8)
		r := int16(uint16(raw[i+2]) | uint16(raw[i+3])<<8)
		out = append(out, (float32(l)+float32(r))/2/32768)
	}

	return out
}

func looksLikeMP3(data []byte) bool {
	if len(data) >= 3 && string(data[:3]) == "ID3" {
		return true
	}

	// MPEG frame sync: 11 set bits.
	return len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0
}

// downmix averages interleaved channels into one.
func downmix(interleaved []float32, channels int) []float32 {
	if channels <= 1 {
		return interleaved
	}

	n := len(interleaved) / channels
	out := make([]float32, n)
	for i := range n {
		var sum float32
		for c := range channels {
			sum += interleaved[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}

	return out
}
