// Package text turns transcripts into symbol id sequences: named cleaners
// normalize the text, the symbol table maps characters and ARPAbet phonemes
// to ids.
package text

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ErrUnknownCleaner is returned for a cleaner name that is not registered.
var ErrUnknownCleaner = errors.New("unknown text cleaner")

// Cleaner is a single normalization pass.
type Cleaner func(string) string

var cleaners = map[string]Cleaner{
	"basic_cleaners":           basicCleaners,
	"transliteration_cleaners": transliterationCleaners,
	"english_cleaners":         englishCleaners,
}

// LookupCleaner returns the cleaner registered under name.
func LookupCleaner(name string) (Cleaner, error) {
	c, ok := cleaners[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCleaner, name)
	}

	return c, nil
}

// ValidateCleaners checks that every name resolves.
func ValidateCleaners(names []string) error {
	for _, n := range names {
		if _, err := LookupCleaner(n); err != nil {
			return err
		}
	}

	return nil
}

// Clean runs the named cleaners over s in order.
func Clean(s string, names []string) (string, error) {
	for _, n := range names {
		c, err := LookupCleaner(n)
		if err != nil {
			return "", err
		}

		s = c(s)
	}

	return s, nil
}

// basicCleaners lowercases and collapses whitespace without transliterating.
func basicCleaners(s string) string {
	return collapseWhitespace(strings.ToLower(s))
}

// transliterationCleaners is meant for non-English text that can be
// romanized to ASCII.
func transliterationCleaners(s string) string {
	return collapseWhitespace(strings.ToLower(toASCII(s)))
}

func englishCleaners(s string) string {
	s = toASCII(s)
	s = strings.ToLower(s)
	s = expandNumbers(s)
	s = expandAbbreviations(s)

	return collapseWhitespace(s)
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// collapseWhitespace folds every run of whitespace, including CR/LF line
// endings, to a single space. Leading and trailing runs survive as one space.
func collapseWhitespace(s string) string {
	return whitespaceRe.ReplaceAllString(s, " ")
}

// ligatures covers the common Latin letters that do not decompose to ASCII.
var ligatures = strings.NewReplacer(
	"ß", "ss",
	"æ", "ae", "Æ", "AE",
	"œ", "oe", "Œ", "OE",
	"ø", "o", "Ø", "O",
	"đ", "d", "Đ", "D",
	"ł", "l", "Ł", "L",
	"þ", "th", "Þ", "Th",
	"ð", "d", "Ð", "D",
	"‘", "'", "’", "'",
	"“", "\"", "”", "\"",
	"–", "-", "—", "-",
	"…", "...",
)

var nonASCII = runes.Predicate(func(r rune) bool { return r > unicode.MaxASCII })

// toASCII strips diacritics and drops whatever cannot be romanized.
func toASCII(s string) string {
	s = ligatures.Replace(s)

	t := transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		norm.NFC,
		runes.Remove(nonASCII),
	)

	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}

	return out
}

type abbreviation struct {
	re   *regexp.Regexp
	full string
}

var abbreviations = func() []abbreviation {
	pairs := [][2]string{
		{"mrs", "misess"},
		{"mr", "mister"},
		{"dr", "doctor"},
		{"st", "saint"},
		{"co", "company"},
		{"jr", "junior"},
		{"maj", "major"},
		{"gen", "general"},
		{"drs", "doctors"},
		{"rev", "reverend"},
		{"lt", "lieutenant"},
		{"hon", "honorable"},
		{"sgt", "sergeant"},
		{"capt", "captain"},
		{"esq", "esquire"},
		{"ltd", "limited"},
		{"col", "colonel"},
		{"ft", "fort"},
	}

	out := make([]abbreviation, len(pairs))
	for i, p := range pairs {
		out[i] = abbreviation{re: regexp.MustCompile(`(?i)\b` + p[0] + `\.`), full: p[1]}
	}

	return out
}()

func expandAbbreviations(s string) string {
	for _, a := range abbreviations {
		s = a.re.ReplaceAllLiteralString(s, a.full)
	}

	return s
}
