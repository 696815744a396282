package audio

import (
	"errors"
	"fmt"
	"io"

	"github.com/cwbudde/wav"
	goaudio "github.com/go-audio/audio"
	"github.com/spf13/afero"
)

const encodeBitDepth = 16

// WriteWAV writes mono float32 samples in [-1, 1] to ws as 16-bit PCM WAV.
// The encoder patches the RIFF sizes on close, so ws must be seekable.
func WriteWAV(ws io.WriteSeeker, samples []float32, sampleRate int) error {
	if sampleRate < 1 {
		return fmt.Errorf("invalid sample rate: %d", sampleRate)
	}

	enc := wav.NewEncoder(ws, sampleRate, encodeBitDepth, 1, 1) // 1 = PCM

	err := enc.Write(&goaudio.Float32Buffer{
		Data:           samples,
		Format:         &goaudio.Format{SampleRate: sampleRate, NumChannels: 1},
		SourceBitDepth: encodeBitDepth,
	})
	if err != nil {
		return fmt.Errorf("writing PCM: %w", err)
	}

	if err := enc.Close(); err != nil {
		return fmt.Errorf("closing encoder: %w", err)
	}

	return nil
}

// WriteWAVFile creates path on fs and writes samples to it.
func WriteWAVFile(fs afero.Fs, path string, samples []float32, sampleRate int) (err error) {
	f, err := fs.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	return WriteWAV(f, samples, sampleRate)
}

// EncodeWAV returns samples as in-memory 16-bit PCM WAV bytes.
func EncodeWAV(samples []float32, sampleRate int) ([]byte, error) {
	var ws memWriteSeeker
	if err := WriteWAV(&ws, samples, sampleRate); err != nil {
		return nil, err
	}

	return ws.data, nil
}

// memWriteSeeker is a growable byte slice with a cursor.
type memWriteSeeker struct {
	data []byte
	pos  int
}

func (m *memWriteSeeker) Write(p []byte) (int, error) {
	if end := m.pos + len(p); end > len(m.data) {
		m.data = append(m.data, make([]byte, end-len(m.data))...)
	}
	n := copy(m.data[m.pos:], p)
	m.pos += n

	return n, nil
}

func (m *memWriteSeeker) Seek(offset int64, whence int) (int64, error) {
	var base int
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = m.pos
	case io.SeekEnd:
		base = len(m.data)
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}

	pos := base + int(offset)
	if pos < 0 {
		return 0, errors.New("seek before start")
	}
	m.pos = pos

	return int64(pos), nil
}
