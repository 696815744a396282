package safetensors

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// Encode serializes float32 tensors, plus optional string metadata, into
// safetensors format. Tensors are laid out in name order.
func Encode(tensors []Tensor, metadata map[string]string) ([]byte, error) {
	if len(tensors) == 0 {
		return nil, errors.New("safetensors: no tensors to encode")
	}

	sorted := make([]Tensor, len(tensors))
	copy(sorted, tensors)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Name < sorted[j].Name
	})

	header := make(map[string]any, len(sorted)+1)
	if len(metadata) > 0 {
		header[metadataKey] = metadata
	}

	raw := make([]byte, 0, estimateTensorBytes(sorted))

	for _, tensor := range sorted {
		name := strings.TrimSpace(tensor.Name)
		if name == "" {
			return nil, errors.New("safetensors: tensor name must not be empty")
		}

		if name == metadataKey {
			return nil, fmt.Errorf("safetensors: tensor name %q is reserved", name)
		}

		if _, exists := header[name]; exists {
			return nil, fmt.Errorf("safetensors: duplicate tensor name %q", name)
		}

		elemCount, err := shapeElementCount(tensor.Shape)
		if err != nil {
			return nil, fmt.Errorf("safetensors: tensor %q: %w", name, err)
		}

		if int64(len(tensor.Data)) != elemCount {
			return nil, fmt.Errorf(
				"safetensors: tensor %q shape %v expects %d elements, got %d",
				name,
				tensor.Shape,
				elemCount,
				len(tensor.Data),
			)
		}

		start := len(raw)

		raw = append(raw, make([]byte, len(tensor.Data)*4)...)
		for i, v := range tensor.Data {
			binary.LittleEndian.PutUint32(raw[start+i*4:], math.Float32bits(v))
		}

		header[name] = storeHeaderEntry{
			DType:   dtypeF32,
			Shape:   append([]int64{}, tensor.Shape...),
			Offsets: [2]int{start, len(raw)},
		}
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("safetensors: encode header: %w", err)
	}

	out := make([]byte, 8, 8+len(headerJSON)+len(raw))
	binary.LittleEndian.PutUint64(out, uint64(len(headerJSON)))
	out = append(out, headerJSON...)
	out = append(out, raw...)

	return out, nil
}

// WriteFile encodes tensors into path on fs, creating parent directories.
func WriteFile(fs afero.Fs, path string, tensors []Tensor, metadata map[string]string) error {
	data, err := Encode(tensors, metadata)
	if err != nil {
		return err
	}

	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("safetensors: create dir for %s: %w", path, err)
	}

	if err := afero.WriteFile(fs, path, data, 0o644); err != nil {
		return fmt.Errorf("safetensors: write %s: %w", path, err)
	}

	return nil
}

func estimateTensorBytes(tensors []Tensor) int {
	total := 0
	for _, tensor := range tensors {
		total += len(tensor.Data) * 4
	}

	return total
}
