// Package labels maps model class indices to human readable names in English
// and Norwegian.
package labels

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Language identifies the language of a label table.
type Language string

const (
	English   Language = "en"
	Norwegian Language = "no"
)

// ParseLanguage accepts "en"/"english" and "no"/"nb"/"norsk"/"norwegian".
func ParseLanguage(s string) (Language, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "en", "english", "":
		return English, nil
	case "no", "nb", "norsk", "norwegian":
		return Norwegian, nil
	default:
		return "", fmt.Errorf("unsupported language %q", s)
	}
}

// Sentinel returns the label used for indices a table does not cover.
func Sentinel(lang Language) string {
	if lang == Norwegian {
		return "ukjent"
	}
	return "unknown"
}

// Table is an ordered list of class names. Tables are read-only after
// construction and safe for concurrent use.
type Table struct {
	lang   Language
	labels []string
}

// NewTable creates a table from labels. The slice is copied.
func NewTable(lang Language, labels []string) *Table {
	return &Table{lang: lang, labels: append([]string(nil), labels...)}
}

// Parse reads one label per line. Lines are trimmed and NFC-normalized; empty
// lines are kept so that line numbers stay aligned with class indices.
func Parse(r io.Reader, lang Language) (*Table, error) {
	scanner := bufio.NewScanner(r)
	var labels []string
	first := true
	for scanner.Scan() {
		line := scanner.Text()
		if first {
			line = strings.TrimPrefix(line, "\ufeff")
			first = false
		}
		labels = append(labels, norm.NFC.String(strings.TrimSpace(line)))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read labels: %w", err)
	}
	return &Table{lang: lang, labels: labels}, nil
}

// LoadTable parses a label file from disk.
func LoadTable(path string, lang Language) (*Table, error) {
	f, err := os.Open(path) //nolint:gosec // G304: label path comes from configuration
	if err != nil {
		return nil, fmt.Errorf("open label file: %w", err)
	}
	defer func() { _ = f.Close() }()

	t, err := Parse(f, lang)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Len returns the number of labels.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.labels)
}

// Language returns the table's language.
func (t *Table) Language() Language {
	if t == nil {
		return English
	}
	return t.lang
}

// Labels returns a copy of all labels.
func (t *Table) Labels() []string {
	if t == nil {
		return nil
	}
	return append([]string(nil), t.labels...)
}

// Lookup returns the label for idx and whether idx is covered.
func (t *Table) Lookup(idx int) (string, bool) {
	if t == nil || idx < 0 || idx >= len(t.labels) {
		return "", false
	}
	return t.labels[idx], true
}

// Resolve returns the label for idx, or the table language's sentinel when
// idx is out of range. It never fails.
func (t *Table) Resolve(idx int) string {
	if label, ok := t.Lookup(idx); ok {
		return label
	}
	return Sentinel(t.Language())
}

// Resolve is the function form of (*Table).Resolve.
func Resolve(idx int, t *Table) string { return t.Resolve(idx) }
