// Package safetensors reads and writes the safetensors container used for
// cached mel features: an 8-byte little-endian header length, a JSON header,
// then raw little-endian tensor data.
package safetensors

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

const (
	dtypeF32  = "F32"
	dtypeF16  = "F16"
	dtypeBF16 = "BF16"

	metadataKey = "__metadata__"
)

// ErrNotFound is returned when a named tensor is absent from a store.
var ErrNotFound = errors.New("safetensors: tensor not found")

// Tensor is a decoded tensor. Half-precision sources are widened to float32.
type Tensor struct {
	Name  string
	Shape []int64
	Data  []float32
}

// Store is a parsed safetensors payload. Tensors are decoded on demand.
type Store struct {
	raw      []byte
	entries  map[string]storeEntry
	names    []string
	metadata map[string]string
}

type storeEntry struct {
	DType string
	Shape []int64
	Start int
	End   int
}

type storeHeaderEntry struct {
	DType   string  `json:"dtype"`
	Shape   []int64 `json:"shape"`
	Offsets [2]int  `json:"data_offsets"`
}

// OpenStore reads path from fs and parses it.
func OpenStore(fs afero.Fs, path string) (*Store, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("safetensors: read %s: %w", path, err)
	}

	return Decode(data)
}

// Decode parses a safetensors payload held in memory.
func Decode(data []byte) (*Store, error) {
	headerEnd, header, err := decodeHeader(data)
	if err != nil {
		return nil, err
	}

	store := &Store{
		raw:     data,
		entries: make(map[string]storeEntry, len(header)),
		names:   make([]string, 0, len(header)),
	}

	for name, raw := range header {
		if name == metadataKey {
			if err := json.Unmarshal(raw, &store.metadata); err != nil {
				return nil, fmt.Errorf("safetensors: decode metadata: %w", err)
			}

			continue
		}

		entry, err := parseEntry(name, raw, headerEnd, len(data))
		if err != nil {
			return nil, err
		}

		store.entries[name] = entry
		store.names = append(store.names, name)
	}

	if len(store.entries) == 0 {
		return nil, errors.New("safetensors: no tensors found")
	}

	sort.Strings(store.names)

	return store, nil
}

func parseEntry(name string, raw json.RawMessage, headerEnd, size int) (storeEntry, error) {
	var e storeHeaderEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return storeEntry{}, fmt.Errorf("safetensors: decode header entry %q: %w", name, err)
	}

	if err := validateHeaderEntry(name, e); err != nil {
		return storeEntry{}, err
	}

	start := headerEnd + e.Offsets[0]
	end := headerEnd + e.Offsets[1]
	if end > size {
		return storeEntry{}, fmt.Errorf("safetensors: tensor %q data [%d:%d] exceeds file size %d", name, start, end, size)
	}

	elemCount, err := shapeElementCount(e.Shape)
	if err != nil {
		return storeEntry{}, fmt.Errorf("safetensors: tensor %q: %w", name, err)
	}

	elemBytes, err := dtypeBytes(e.DType)
	if err != nil {
		return storeEntry{}, fmt.Errorf("safetensors: tensor %q: %w", name, err)
	}

	if want := int(elemCount) * elemBytes; end-start < want {
		return storeEntry{}, fmt.Errorf("safetensors: tensor %q needs %d bytes but data has %d", name, want, end-start)
	}

	return storeEntry{
		DType: strings.ToUpper(e.DType),
		Shape: append([]int64(nil), e.Shape...),
		Start: start,
		End:   end,
	}, nil
}

// Names returns the tensor names in sorted order.
func (s *Store) Names() []string {
	return append([]string(nil), s.names...)
}

// Metadata returns the free-form string map stored under __metadata__.
func (s *Store) Metadata() map[string]string {
	out := make(map[string]string, len(s.metadata))
	for k, v := range s.metadata {
		out[k] = v
	}

	return out
}

func (s *Store) Has(name string) bool {
	_, ok := s.entries[name]
	return ok
}

func (s *Store) Tensor(name string) (*Tensor, error) {
	entry, ok := s.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %s)", ErrNotFound, name, summarizeNames(s.names))
	}

	data, err := decodeTensorData(s.raw[entry.Start:entry.End], entry.DType, entry.Shape)
	if err != nil {
		return nil, fmt.Errorf("safetensors: tensor %q decode: %w", name, err)
	}

	return &Tensor{
		Name:  name,
		Shape: append([]int64(nil), entry.Shape...),
		Data:  data,
	}, nil
}

func decodeHeader(data []byte) (int, map[string]json.RawMessage, error) {
	if len(data) < 8 {
		return 0, nil, fmt.Errorf("safetensors: file too short (%d bytes)", len(data))
	}

	headerLen := binary.LittleEndian.Uint64(data[:8])
	if headerLen > uint64(len(data)-8) {
		return 0, nil, fmt.Errorf("safetensors: header length %d exceeds file size %d", headerLen, len(data))
	}

	headerEnd := 8 + int(headerLen)

	var header map[string]json.RawMessage
	if err := json.Unmarshal(data[8:headerEnd], &header); err != nil {
		return 0, nil, fmt.Errorf("safetensors: parse header: %w", err)
	}

	return headerEnd, header, nil
}

func validateHeaderEntry(name string, entry storeHeaderEntry) error {
	switch strings.ToUpper(entry.DType) {
	case dtypeF32, dtypeF16, dtypeBF16:
	default:
		return fmt.Errorf("safetensors: tensor %q has unsupported dtype %q", name, entry.DType)
	}

	if entry.Offsets[0] < 0 || entry.Offsets[1] < entry.Offsets[0] {
		return fmt.Errorf("safetensors: tensor %q has invalid data offsets %v", name, entry.Offsets)
	}

	return nil
}

func shapeElementCount(shape []int64) (int64, error) {
	total := int64(1)

	for _, d := range shape {
		if d < 0 {
			return 0, fmt.Errorf("negative dimension %d", d)
		}

		if d == 0 {
			return 0, nil
		}

		if total > math.MaxInt64/d {
			return 0, fmt.Errorf("shape %v overflows element count", shape)
		}

		total *= d
	}

	return total, nil
}

func dtypeBytes(dtype string) (int, error) {
	switch strings.ToUpper(dtype) {
	case dtypeF32:
		return 4, nil
	case dtypeF16, dtypeBF16:
		return 2, nil
	default:
		return 0, fmt.Errorf("unsupported dtype %q", dtype)
	}
}

func decodeTensorData(raw []byte, dtype string, shape []int64) ([]float32, error) {
	elemCount, err := shapeElementCount(shape)
	if err != nil {
		return nil, err
	}

	out := make([]float32, int(elemCount))

	switch dtype {
	case dtypeF32:
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		}
	case dtypeF16:
		for i := range out {
			out[i] = float16ToFloat32(binary.LittleEndian.Uint16(raw[i*2:]))
		}
	case dtypeBF16:
		for i := range out {
			out[i] = math.Float32frombits(uint32(binary.LittleEndian.Uint16(raw[i*2:])) << 16)
		}
	default:
		return nil, fmt.Errorf("unsupported dtype %q", dtype)
	}

	return out, nil
}

func float16ToFloat32(h uint16) float32 {
	sign := uint32(h>>15) & 0x1
	exp := uint32(h>>10) & 0x1f
	frac := uint32(h & 0x03ff)

	var bits uint32

	switch exp {
	case 0:
		if frac == 0 {
			bits = sign << 31
		} else {
			// Subnormal: normalize.
			e := int32(-14)

			for (frac & 0x0400) == 0 {
				frac <<= 1
				e--
			}

			frac &= 0x03ff
			exp32 := uint32(e + 127)
			bits = (sign << 31) | (exp32 << 23) | (frac << 13)
		}
	case 0x1f:
		// Inf / NaN.
		bits = (sign << 31) | 0x7f800000 | (frac << 13)
	default:
		exp32 := exp + (127 - 15)
		bits = (sign << 31) | (exp32 << 23) | (frac << 13)
	}

	return math.Float32frombits(bits)
}

func summarizeNames(names []string) string {
	if len(names) == 0 {
		return "none"
	}

	const maxNames = 8
	if len(names) <= maxNames {
		return strings.Join(names, ", ")
	}

	return strings.Join(names[:maxNames], ", ") + ", ..."
}
