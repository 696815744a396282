package features

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/afero"

	"github.com/example/go-textmel/internal/safetensors"
)

const (
	// CacheSuffix is appended to an audio path to name its feature file.
	CacheSuffix = "_mel.safetensors"
	// CacheTensor is the tensor name features are stored under.
	CacheTensor = "mel"
)

// ErrFeatureDimensionMismatch is returned when cached features have a
// different channel count than configured. It is fatal and never retried.
var ErrFeatureDimensionMismatch = errors.New("mel dimension mismatch")

// CachePath returns the feature file for audioPath. A path that already
// names a safetensors file is returned unchanged.
func CachePath(audioPath string) string {
	if strings.HasSuffix(audioPath, ".safetensors") {
		return audioPath
	}

	return audioPath + CacheSuffix
}

// SaveCache writes m as a single F32 tensor with optional metadata.
func SaveCache(fs afero.Fs, path string, m *Mel, metadata map[string]string) error {
	return safetensors.WriteFile(fs, path, []safetensors.Tensor{{
		Name:  CacheTensor,
		Shape: m.Shape(),
		Data:  m.Data,
	}}, metadata)
}

// LoadCache reads a feature file written by SaveCache.
func LoadCache(fs afero.Fs, path string) (*Mel, error) {
	t, err := safetensors.LoadTensor(fs, path, CacheTensor)
	if err != nil {
		return nil, err
	}

	channels, frames, err := t.Matrix()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return MelFromData(channels, frames, t.Data)
}

// ReadCacheMetadata returns the string metadata stored with a feature file.
func ReadCacheMetadata(fs afero.Fs, path string) (map[string]string, error) {
	store, err := safetensors.OpenStore(fs, path)
	if err != nil {
		return nil, err
	}

	return store.Metadata(), nil
}
