package tokenizer

import (
	"testing"

	"github.com/spf13/afero"
	gosp "github.com/vikesh-raj/go-sentencepiece-encoder/sentencepiece"
	"google.golang.org/protobuf/proto"

	"github.com/example/go-textmel/internal/config"
)

// Piece ids of tinyModel.
const (
	idUnknown = 0
	idHello   = 3
	idWorld   = 4
	idSpace   = 5
)

// tinyModel serializes a small UNIGRAM model with whole-word pieces for
// "hello" and "world" and a bare word-boundary piece.
func tinyModel(t *testing.T) []byte {
	t.Helper()

	piece := func(p string, score float32, typ gosp.ModelProto_SentencePiece_Type) *gosp.ModelProto_SentencePiece {
		return &gosp.ModelProto_SentencePiece{Piece: proto.String(p), Score: proto.Float32(score), Type: typ.Enum()}
	}

	m := &gosp.ModelProto{Pieces: []*gosp.ModelProto_SentencePiece{
		piece("<unk>", 0, gosp.ModelProto_SentencePiece_UNKNOWN),
		piece("<s>", 0, gosp.ModelProto_SentencePiece_CONTROL),
		piece("</s>", 0, gosp.ModelProto_SentencePiece_CONTROL),
		piece("▁hello", -1, gosp.ModelProto_SentencePiece_NORMAL),
		piece("▁world", -1, gosp.ModelProto_SentencePiece_NORMAL),
		piece("▁", -2, gosp.ModelProto_SentencePiece_NORMAL),
	}}

	data, err := proto.Marshal(m)
	if err != nil {
		t.Fatalf("marshal model: %v", err)
	}

	return data
}

func TestSentencePiece_TinyModelFromFs(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/models/tiny.model", tinyModel(t), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	tok, err := NewSentencePieceTokenizer(fs, "/models/tiny.model")
	if err != nil {
		t.Fatalf("NewSentencePieceTokenizer: %v", err)
	}

	tests := []struct {
		in   string
		want []int64
	}{
		{"hello world", []int64{idHello, idWorld}},
		{"hello hello", []int64{idHello, idHello}},
		{"xyz", []int64{idSpace, idUnknown}},
		{"", []int64{}},
	}

	for _, tt := range tests {
		got, err := tok.Encode(tt.in)
		if err != nil {
			t.Fatalf("Encode(%q): %v", tt.in, err)
		}

		if !equalInt64(got, tt.want) {
			t.Errorf("Encode(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNew_SentencePieceReadsThroughFs(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/m.model", tinyModel(t), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	tok, err := New(fs, config.DataConfig{
		Tokenizer:      "sentencepiece",
		TokenizerModel: "/m.model",
		TextCleaners:   []string{"basic_cleaners"},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// basic_cleaners lowercases before encoding.
	got, err := tok.Encode("HELLO   World")
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !equalInt64(got, []int64{idHello, idWorld}) {
		t.Errorf("Encode = %v; want [%d %d]", got, idHello, idWorld)
	}

	// The path exists only in the memory filesystem.
	if _, err := New(afero.NewMemMapFs(), config.DataConfig{Tokenizer: "sentencepiece", TokenizerModel: "/m.model"}); err == nil {
		t.Error("expected error for a model missing from fs")
	}
}

func TestNewSentencePieceTokenizerFromBytes_Invalid(t *testing.T) {
	if _, err := NewSentencePieceTokenizerFromBytes(nil); err == nil {
		t.Error("expected error for empty model data")
	}

	if _, err := NewSentencePieceTokenizerFromBytes([]byte{0xff, 0xff, 0xff}); err == nil {
		t.Error("expected error for a corrupt model")
	}
}
