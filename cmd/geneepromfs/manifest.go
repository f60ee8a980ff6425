package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Entry is one parsed manifest record: a host file to embed, the name it
// will be stored under, the spare bytes to pad its slot with, and its
// initial attribute word.
type Entry struct {
	InputPath  string
	StoredName string
	SpareBytes uint32
	Attributes uint32
}

// parseManifest reads the `;`-separated, `,`-separated record grammar of
// a geneepromfs manifest: each record is InputPath, StoredName, SpareBytes,
// Attributes, where Attributes is the literal "None" or "ReadOnly". `!`
// begins a comment that runs to end of line. Whitespace around fields is
// insignificant.
func parseManifest(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: open %s: %w", path, err)
	}

	stripped := stripComments(string(data))

	var entries []Entry
	for i, rawRecord := range splitRecords(stripped) {
		record := strings.TrimSpace(rawRecord)
		if record == "" {
			continue
		}

		entry, err := parseRecord(record)
		if err != nil {
			return nil, fmt.Errorf("manifest: record %d: %w", i+1, err)
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// stripComments removes every `!`-to-end-of-line comment, the way the
// original parser's GetToken discards comment text while still counting
// line breaks.
func stripComments(text string) string {
	var out strings.Builder
	inComment := false
	for _, r := range text {
		switch {
		case inComment:
			if r == '\n' {
				inComment = false
				out.WriteRune(r)
			}
		case r == '!':
			inComment = true
		default:
			out.WriteRune(r)
		}
	}
	return out.String()
}

// splitRecords splits on `;`, the record separator. Non-blank text after
// the last `;` is parsed as one more record, so a well-formed final record
// needs no trailing `;`; a malformed one fails parseRecord's field-count
// check rather than being silently dropped.
func splitRecords(text string) []string {
	return strings.Split(text, ";")
}

func parseRecord(record string) (Entry, error) {
	fields := strings.Split(record, ",")
	if len(fields) != 4 {
		return Entry{}, fmt.Errorf("expected 4 comma-separated fields, got %d: %q", len(fields), record)
	}

	inputPath := strings.TrimSpace(fields[0])
	storedName := strings.TrimSpace(fields[1])
	spareText := strings.TrimSpace(fields[2])
	attrText := strings.TrimSpace(fields[3])

	if inputPath == "" {
		return Entry{}, fmt.Errorf("empty input path")
	}
	if storedName == "" {
		return Entry{}, fmt.Errorf("empty stored name")
	}

	spareBytes, err := strconv.ParseUint(spareText, 0, 32)
	if err != nil {
		return Entry{}, fmt.Errorf("invalid spare byte count %q: %w", spareText, err)
	}

	var attributes uint32
	switch attrText {
	case "None":
		attributes = 0
	case "ReadOnly":
		attributes = 1
	default:
		return Entry{}, fmt.Errorf("invalid attribute %q, must be None or ReadOnly", attrText)
	}

	return Entry{
		InputPath:  inputPath,
		StoredName: storedName,
		SpareBytes: uint32(spareBytes),
		Attributes: attributes,
	}, nil
}
