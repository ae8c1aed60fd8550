package weather

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

var (
	errNotObject    = errors.New("document is not a JSON object")
	errTrailingData = errors.New("trailing data after JSON object")
)

// Line is one flattened leaf of a document.
type Line struct {
	Key   string
	Value string
}

func (l Line) String() string {
	return l.Key + ": " + l.Value
}

// Flatten expands one level of nesting: top-level objects become key.subkey lines,
// anything deeper is rendered as compact JSON. Source key order is preserved.
func Flatten(doc []byte) ([]Line, error) {
	fields, err := objectFields(doc)
	if err != nil {
		return nil, err
	}

	var lines []Line
	for _, f := range fields {
		if !isObject(f.value) {
			lines = append(lines, Line{Key: f.key, Value: renderValue(f.value)})
			continue
		}
		nested, err := objectFields(f.value)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.key, err)
		}
		for _, n := range nested {
			lines = append(lines, Line{Key: f.key + "." + n.key, Value: renderValue(n.value)})
		}
	}
	return lines, nil
}

// WriteFlat writes the flattened document to w, one line per leaf.
func WriteFlat(w io.Writer, doc []byte) error {
	lines, err := Flatten(doc)
	if err != nil {
		return err
	}
	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l.String()); err != nil {
			return err
		}
	}
	return nil
}

type field struct {
	key   string
	value json.RawMessage
}

func objectFields(doc []byte) ([]field, error) {
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errNotObject
	}

	var out []field
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
		out = append(out, field{key: key, value: raw})
	}

	// closing brace
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errTrailingData
	}
	return out, nil
}

func isObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func renderValue(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s
		}
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return string(trimmed)
	}
	return buf.String()
}
