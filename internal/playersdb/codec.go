package playersdb

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"slices"
)

// Encode serializes doc as UTF-8 JSON. Top-level keys are written in the
// order version, players, actions, pendingWL; within records, modeled keys
// come first followed by preserved keys in sorted order. Pretty output uses
// two-space indentation.
func Encode(doc *Document, pretty bool) ([]byte, error) {
	out := struct {
		Version   int         `json:"version"`
		Players   []Player    `json:"players"`
		Actions   []Action    `json:"actions"`
		PendingWL []PendingWL `json:"pendingWL"`
	}{
		Version:   doc.Version,
		Players:   nonNil(doc.Players),
		Actions:   nonNil(doc.Actions),
		PendingWL: nonNil(doc.PendingWL),
	}

	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	if pretty {
		enc.SetIndent("", "  ")
	}

	if err := enc.Encode(out); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}

	// Encoder terminates with a newline; the file holds exactly the value.
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Decode parses a document. Missing collections decode to empty slices and a
// missing version decodes to [CurrentVersion], matching a defaults merge.
// Any JSON number with an integral value is a valid version (2, 2.0, 2e0).
// A version too large for int decodes to [math.MaxInt] so [Migrate] reports
// it as too new. Anything else decodes to a negative version, which
// [Migrate] rejects.
func Decode(data []byte) (*Document, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.New("document is empty")
	}

	if trimmed[0] != '{' {
		return nil, errors.New("document root is not an object")
	}

	var raw struct {
		Version   json.RawMessage `json:"version"`
		Players   []Player        `json:"players"`
		Actions   []Action        `json:"actions"`
		PendingWL []PendingWL     `json:"pendingWL"`
	}

	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}

	return &Document{
		Version:   decodeVersion(raw.Version),
		Players:   nonNil(raw.Players),
		Actions:   nonNil(raw.Actions),
		PendingWL: nonNil(raw.PendingWL),
	}, nil
}

func decodeVersion(raw json.RawMessage) int {
	if len(raw) == 0 {
		return CurrentVersion
	}

	var num json.Number
	if raw[0] == '"' || json.Unmarshal(raw, &num) != nil || num == "" {
		return versionUnrecognized
	}

	f, _, err := big.ParseFloat(num.String(), 10, 53, big.ToNearestEven)
	if err != nil || f.Sign() < 0 || !f.IsInt() {
		return versionUnrecognized
	}

	n, acc := f.Int64()
	if acc != big.Exact || n > math.MaxInt {
		return math.MaxInt
	}

	return int(n)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}

	return s
}

// decodeRecord unmarshals data into known and collects every key not listed
// in knownKeys into extra.
func decodeRecord(data []byte, known any, extra *Extra, knownKeys []string) error {
	if err := json.Unmarshal(data, known); err != nil {
		return err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	for _, k := range knownKeys {
		delete(fields, k)
	}

	if len(fields) == 0 {
		*extra = nil

		return nil
	}

	*extra = Extra(fields)

	return nil
}

// encodeRecord marshals known and appends extra keys in sorted order.
// Extra keys that collide with knownKeys are dropped.
func encodeRecord(known any, extra Extra, knownKeys []string) ([]byte, error) {
	head, err := marshalNoEscape(known)
	if err != nil {
		return nil, err
	}

	if len(extra) == 0 {
		return head, nil
	}

	keys := make([]string, 0, len(extra))
	for k := range extra {
		if !slices.Contains(knownKeys, k) {
			keys = append(keys, k)
		}
	}

	slices.Sort(keys)

	var buf bytes.Buffer

	buf.Write(head[:len(head)-1])

	for i, k := range keys {
		if i > 0 || len(head) > 2 {
			buf.WriteByte(',')
		}

		name, err := marshalNoEscape(k)
		if err != nil {
			return nil, err
		}

		buf.Write(name)
		buf.WriteByte(':')

		if err := json.Compact(&buf, extra[k]); err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
	}

	buf.WriteByte('}')

	return buf.Bytes(), nil
}

func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(v); err != nil {
		return nil, err
	}

	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
