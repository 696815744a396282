// Package manifest parses dataset manifests into (audio path, transcript)
// entries and shuffles them reproducibly.
package manifest

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"strings"

	"github.com/spf13/afero"
)

// ErrManifestFormat is returned for an unknown format selector or a row that
// does not have the columns its format requires.
var ErrManifestFormat = errors.New("manifest format error")

// Format selects how manifest rows are split.
type Format string

const (
	// FormatLJ is LJSpeech style: "path|transcript[|...]" per line.
	FormatLJ Format = "lj"
	// FormatMozillaCV is a Common Voice TSV with a header row; column 1 is a
	// file under clips/ and column 2 its sentence.
	FormatMozillaCV Format = "mozilla_cv"
)

// maxLineBytes bounds a single manifest row.
const maxLineBytes = 1 << 20

// shuffleStream is mixed with the seed so manifest shuffles do not share a
// stream with other generators seeded from the same value.
const shuffleStream = 0x6d616e6966657374

// Entry is one manifest row. Path is relative to the dataset root.
type Entry struct {
	Path string
	Text string
}

// ParseFormat canonicalizes a format selector.
func ParseFormat(raw string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(raw))); f {
	case FormatLJ, FormatMozillaCV:
		return f, nil
	default:
		return "", fmt.Errorf("%w: unknown fetcher mode %q (expected %s|%s)",
			ErrManifestFormat, raw, FormatLJ, FormatMozillaCV)
	}
}

// Load reads path from fs, parses it as format and shuffles the entries with
// a generator seeded from seed. The same file and seed always produce the
// same order.
func Load(fs afero.Fs, path string, format Format, seed int64) ([]Entry, error) {
	format, err := ParseFormat(string(format))
	if err != nil {
		return nil, err
	}

	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()

	entries, err := Parse(f, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	Shuffle(entries, seed)

	return entries, nil
}

// Parse reads entries in file order.
func Parse(r io.Reader, format Format) ([]Entry, error) {
	var parse func(line string) (Entry, error)
	skipHeader := false

	switch format {
	case FormatLJ:
		parse = parseLJ
	case FormatMozillaCV:
		parse = parseMozillaCV
		skipHeader = true
	default:
		return nil, fmt.Errorf("%w: unknown fetcher mode %q", ErrManifestFormat, format)
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var entries []Entry
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")

		if lineNo == 1 {
			line = strings.TrimPrefix(line, "\ufeff")
			if skipHeader {
				continue
			}
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		e, err := parse(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		entries = append(entries, e)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	return entries, nil
}

// Shuffle permutes entries in place with a PCG generator owned by the call.
func Shuffle(entries []Entry, seed int64) {
	rng := rand.New(rand.NewPCG(uint64(seed), shuffleStream))
	rng.Shuffle(len(entries), func(i, j int) {
		entries[i], entries[j] = entries[j], entries[i]
	})
}

func parseLJ(line string) (Entry, error) {
	cols := strings.Split(line, "|")
	if len(cols) < 2 {
		return Entry{}, fmt.Errorf("%w: lj row needs path|text, got %d column(s)", ErrManifestFormat, len(cols))
	}

	return Entry{Path: strings.TrimSpace(cols[0]), Text: cols[1]}, nil
}

func parseMozillaCV(line string) (Entry, error) {
	cols := strings.Split(line, "\t")
	if len(cols) < 3 {
		return Entry{}, fmt.Errorf("%w: mozilla_cv row needs at least 3 columns, got %d", ErrManifestFormat, len(cols))
	}

	return Entry{Path: "clips/" + cols[1], Text: cols[2]}, nil
}
