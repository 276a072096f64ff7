package normalize

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/goccy/go-json"
)

// Package file json.go contains the JSON formatting of bundle files.

const jsonx = ".json"

// Indent is the indentation used for each nesting level of the formatted JSON.
const Indent = "  "

// Skip is the set of JSON filenames that are never formatted.
// The licensing audit log is encrypted and always fails to parse.
var Skip = map[string]struct{}{
	"443-licensing_v1_audit_decrypt_1.json": {},
}

var (
	ErrInvalidUTF8 = errors.New("file is not valid UTF-8")
	ErrTrailing    = errors.New("extra data after the JSON value")
)

// FormatJSON formats every JSON file in the dir tree, see [Normalizer.FormatJSON].
func FormatJSON(dir string) (Report, error) {
	return Normalizer{}.FormatJSON(dir)
}

// FormatJSON walks the dir tree and rewrites every file with a .json extension
// into a human-readable form, see [Format].
// Files listed in [Skip] are ignored.
//
// Files that fail to parse are recorded in the report, logged and left unmodified.
// Running it a second time produces identical files.
func (n Normalizer) FormatJSON(dir string) (Report, error) {
	n.log().Info("Formatting JSON files")
	var r Report
	names, err := files(dir, jsonx)
	if err != nil {
		return r, fmt.Errorf("format json walk %w", err)
	}
	for _, name := range names {
		if _, skip := Skip[filepath.Base(name)]; skip {
			continue
		}
		if err := FormatFile(name); err != nil {
			n.fail(&r, "Failed to parse JSON", name, err)
			continue
		}
		r.Done++
	}
	return r, nil
}

// FormatFile rewrites the named JSON file using [Format].
// The file is left unmodified when an error is returned.
func FormatFile(name string) error {
	st, err := os.Stat(name)
	if err != nil {
		return fmt.Errorf("format file %w", err)
	}
	b, err := os.ReadFile(name)
	if err != nil {
		return fmt.Errorf("format file %w", err)
	}
	out, err := Format(b)
	if err != nil {
		return err
	}
	if bytes.Equal(b, out) {
		return nil
	}
	if err := os.WriteFile(name, out, st.Mode().Perm()); err != nil {
		return fmt.Errorf("format file %w", err)
	}
	return nil
}

// Format returns the JSON document p indented by two spaces per level,
// with object keys sorted lexicographically and a trailing newline.
// Numbers are kept exactly as written and HTML characters are not escaped.
//
// For example {"b":1,"a":2} becomes
//
//	{
//	  "a": 2,
//	  "b": 1
//	}
func Format(p []byte) ([]byte, error) {
	if !utf8.Valid(p) {
		return nil, ErrInvalidUTF8
	}
	dec := json.NewDecoder(bytes.NewReader(p))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("format decode %w", err)
	}
	// the decoder stops after the first value, the whole input must be one value
	if !json.Valid(p) {
		return nil, ErrTrailing
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", Indent)
	// maps are encoded with sorted keys
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("format encode %w", err)
	}
	return buf.Bytes(), nil
}
