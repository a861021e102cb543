package storage

import (
	"bytes"
	"encoding/json"
	"errors"
)

// DefaultPath is where the file driver keeps the document when no path is configured.
const DefaultPath = "data/punishments.json"

var ErrClosed = errors.New("storage closed")

// Config configures storage.
//
// Driver values:
//   - "file" (or empty): JSON document on disk
//   - "bolt": bbolt database file
//   - "memory": in-process only
type Config struct {
	Driver string
	Path   string
}

// Document is the top-level JSON object. Values are kept raw so groups the
// caller does not touch are written back exactly as they were read.
type Document map[string]json.RawMessage

// decodeDocument parses b as a JSON object. ok is false when b is not one.
func decodeDocument(b []byte) (doc Document, ok bool) {
	if err := json.Unmarshal(b, &doc); err != nil || doc == nil {
		return Document{}, false
	}
	return doc, true
}

// encodeDocument renders doc pretty-printed with two-space indent and
// without HTML escaping, so usernames round-trip readable.
func encodeDocument(doc Document) ([]byte, error) {
	if doc == nil {
		doc = Document{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
