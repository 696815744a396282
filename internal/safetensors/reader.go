package safetensors

import (
	"fmt"

	"github.com/spf13/afero"
)

// LoadTensor reads path and returns the tensor called name. A file holding a
// single tensor under a different name is accepted as well, so caches
// written by other tools load without renaming.
func LoadTensor(fs afero.Fs, path, name string) (*Tensor, error) {
	store, err := OpenStore(fs, path)
	if err != nil {
		return nil, err
	}

	if !store.Has(name) {
		names := store.Names()
		if len(names) != 1 {
			return nil, fmt.Errorf("%s: %w: %q (available: %s)", path, ErrNotFound, name, summarizeNames(names))
		}

		name = names[0]
	}

	return store.Tensor(name)
}

// Matrix checks that t is two-dimensional and returns its dimensions.
func (t *Tensor) Matrix() (rows, cols int, err error) {
	if len(t.Shape) != 2 {
		return 0, 0, fmt.Errorf("safetensors: tensor %q has %dD shape %v, expected 2D", t.Name, len(t.Shape), t.Shape)
	}

	return int(t.Shape[0]), int(t.Shape[1]), nil
}
