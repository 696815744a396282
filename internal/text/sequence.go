package text

import (
	"regexp"
	"strings"
)

// curlyRe splits off the first {ARPAbet} span: prefix, phonemes, rest.
var curlyRe = regexp.MustCompile(`^(.*?)\{(.+?)\}(.*)$`)

// ToSequence converts a transcript to symbol ids. Text inside curly braces is
// read as space-separated ARPAbet phonemes, e.g. "Turn left on {HH AW1 S S T AH0 N}".
// Symbols outside the table are dropped.
func ToSequence(s string, cleanerNames []string) ([]int64, error) {
	seq := make([]int64, 0, len(s))

	for s != "" {
		m := curlyRe.FindStringSubmatch(s)
		if m == nil {
			cleaned, err := Clean(s, cleanerNames)
			if err != nil {
				return nil, err
			}

			seq = appendSymbols(seq, cleaned)

			break
		}

		cleaned, err := Clean(m[1], cleanerNames)
		if err != nil {
			return nil, err
		}

		seq = appendSymbols(seq, cleaned)
		seq = appendArpabet(seq, m[2])
		s = m[3]
	}

	return seq, nil
}

// SequenceToText maps ids back to symbols, re-wrapping phonemes in braces.
func SequenceToText(ids []int64) string {
	var b strings.Builder

	for _, id := range ids {
		if id < 0 || int(id) >= len(symbols) {
			continue
		}

		sym := symbols[id]
		if len(sym) > 1 && sym[0] == '@' {
			sym = "{" + sym[1:] + "}"
		}

		b.WriteString(sym)
	}

	return strings.ReplaceAll(b.String(), "}{", " ")
}

func appendSymbols(seq []int64, s string) []int64 {
	for _, r := range s {
		sym := string(r)
		if sym == padSymbol || sym == "~" {
			continue
		}

		if id, ok := symbolToID[sym]; ok {
			seq = append(seq, id)
		}
	}

	return seq
}

func appendArpabet(seq []int64, phonemes string) []int64 {
	for _, p := range strings.Fields(phonemes) {
		if id, ok := symbolToID["@"+p]; ok {
			seq = append(seq, id)
		}
	}

	return seq
}
