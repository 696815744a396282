package tokenizer

import (
	"errors"
	"fmt"

	"github.com/spf13/afero"
	gosp "github.com/vikesh-raj/go-sentencepiece-encoder/sentencepiece"

	"github.com/example/go-textmel/internal/text"
)

// ErrEmptyPath is returned when NewSentencePieceTokenizer is called with an empty path.
var ErrEmptyPath = errors.New("tokenizer model path must not be empty")

// SentencePieceTokenizer implements Tokenizer using a pure-Go UNIGRAM SentencePiece model.
type SentencePieceTokenizer struct {
	proc     gosp.Sentencepiece
	cleaners []string
}

// NewSentencePieceTokenizer loads a SentencePiece model file from fs.
func NewSentencePieceTokenizer(fs afero.Fs, modelPath string) (*SentencePieceTokenizer, error) {
	if modelPath == "" {
		return nil, ErrEmptyPath
	}

	data, err := afero.ReadFile(fs, modelPath)
	if err != nil {
		return nil, fmt.Errorf("read sentencepiece model %q: %w", modelPath, err)
	}

	return NewSentencePieceTokenizerFromBytes(data)
}

// NewSentencePieceTokenizerFromBytes loads a serialized SentencePiece model.
// The encoder only reads models by OS path, so the bytes are staged in a
// temporary file that is removed before returning.
func NewSentencePieceTokenizerFromBytes(data []byte) (*SentencePieceTokenizer, error) {
	if len(data) == 0 {
		return nil, errors.New("tokenizer model data must not be empty")
	}

	osFs := afero.NewOsFs()

	f, err := afero.TempFile(osFs, "", "sp-*.model")
	if err != nil {
		return nil, fmt.Errorf("create temp sentencepiece file: %w", err)
	}
	defer func() { _ = osFs.Remove(f.Name()) }()

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write tokenizer model bytes: %w", err)
	}

	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close tokenizer temp file: %w", err)
	}

	proc, err := gosp.NewSentencepieceFromFile(f.Name(), false)
	if err != nil {
		return nil, fmt.Errorf("load sentencepiece model: %w", err)
	}

	return &SentencePieceTokenizer{proc: proc}, nil
}

// WithCleaners returns a copy of t that cleans text before encoding.
func (t *SentencePieceTokenizer) WithCleaners(cleaners []string) (*SentencePieceTokenizer, error) {
	if err := text.ValidateCleaners(cleaners); err != nil {
		return nil, err
	}

	return &SentencePieceTokenizer{proc: t.proc, cleaners: append([]string(nil), cleaners...)}, nil
}

// Encode tokenizes text and returns SentencePiece token IDs as int64.
func (t *SentencePieceTokenizer) Encode(s string) ([]int64, error) {
	s, err := text.Clean(s, t.cleaners)
	if err != nil {
		return nil, err
	}

	if s == "" {
		return []int64{}, nil
	}

	ids := t.proc.TokenizeToIDs(s)

	result := make([]int64, len(ids))
	for i, id := range ids {
		result[i] = int64(id)
	}

	return result, nil
}
