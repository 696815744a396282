package text

// Symbol ids are positions in this table. Changing the order invalidates
// every previously tokenized corpus.
const (
	padSymbol         = "_"
	specialSymbols    = "-"
	punctuationSymbol = "!'(),.:;? "
	letterSymbols     = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
)

// arpabet is the CMUdict phoneme inventory. Phonemes are stored with an "@"
// prefix so they never collide with letters.
var arpabet = []string{
	"AA", "AA0", "AA1", "AA2", "AE", "AE0", "AE1", "AE2", "AH", "AH0", "AH1", "AH2",
	"AO", "AO0", "AO1", "AO2", "AW", "AW0", "AW1", "AW2", "AY", "AY0", "AY1", "AY2",
	"B", "CH", "D", "DH", "EH", "EH0", "EH1", "EH2", "ER", "ER0", "ER1", "ER2", "EY",
	"EY0", "EY1", "EY2", "F", "G", "HH", "IH", "IH0", "IH1", "IH2", "IY", "IY0", "IY1",
	"IY2", "JH", "K", "L", "M", "N", "NG", "OW", "OW0", "OW1", "OW2", "OY", "OY0",
	"OY1", "OY2", "P", "R", "S", "SH", "T", "TH", "UH", "UH0", "UH1", "UH2", "UW",
	"UW0", "UW1", "UW2", "V", "W", "Y", "Z", "ZH",
}

var (
	symbols    []string
	symbolToID map[string]int64
)

func init() {
	symbols = append(symbols, padSymbol)
	for _, r := range specialSymbols + punctuationSymbol + letterSymbols {
		symbols = append(symbols, string(r))
	}
	for _, p := range arpabet {
		symbols = append(symbols, "@"+p)
	}

	symbolToID = make(map[string]int64, len(symbols))
	for i, s := range symbols {
		symbolToID[s] = int64(i)
	}
}

// Symbols returns a copy of the symbol table, indexed by id.
func Symbols() []string {
	out := make([]string, len(symbols))
	copy(out, symbols)

	return out
}

// NumSymbols is the size of the id space produced by ToSequence.
func NumSymbols() int { return len(symbols) }

// SymbolID reports the id of s and whether s is in the table.
func SymbolID(s string) (int64, bool) {
	id, ok := symbolToID[s]
	return id, ok
}
