// Package tokenizer maps cleaned transcripts to integer token ids for the
// paired-sample dataset. Two encoders are available: the fixed symbol table
// from the text package and a SentencePiece model.
package tokenizer

import (
	"github.com/spf13/afero"

	"github.com/example/go-textmel/internal/config"
	"github.com/example/go-textmel/internal/text"
)

// Tokenizer encodes text into token IDs.
type Tokenizer interface {
	// Encode tokenizes text and returns token IDs.
	Encode(text string) ([]int64, error)
}

// SymbolTokenizer runs the configured cleaners and maps the result through
// the symbol table.
type SymbolTokenizer struct {
	cleaners []string
}

// NewSymbolTokenizer checks that every cleaner name is registered.
func NewSymbolTokenizer(cleaners []string) (*SymbolTokenizer, error) {
	if err := text.ValidateCleaners(cleaners); err != nil {
		return nil, err
	}

	return &SymbolTokenizer{cleaners: append([]string(nil), cleaners...)}, nil
}

func (t *SymbolTokenizer) Encode(s string) ([]int64, error) {
	return text.ToSequence(s, t.cleaners)
}

// New builds the tokenizer selected by d.Tokenizer. A SentencePiece model is
// read from fs.
func New(fs afero.Fs, d config.DataConfig) (Tokenizer, error) {
	name, err := config.NormalizeTokenizer(d.Tokenizer)
	if err != nil {
		return nil, err
	}

	switch name {
	case config.TokenizerSentencePiece:
		tok, err := NewSentencePieceTokenizer(fs, d.TokenizerModel)
		if err != nil {
			return nil, err
		}

		cleaned, err := tok.WithCleaners(d.TextCleaners)
		if err != nil {
			return nil, err
		}

		return cleaned, nil
	default:
		tok, err := NewSymbolTokenizer(d.TextCleaners)
		if err != nil {
			return nil, err
		}

		return tok, nil
	}
}

var _ Tokenizer = (*SymbolTokenizer)(nil)
