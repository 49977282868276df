// Package canonicalize provides the deterministic JSON serialization that
// backs every drhash content identity in datanet.
//
// Canonical form: compact JSON, map keys sorted by UTF-8 byte value,
// sequences in input order, no HTML escaping, non-ASCII emitted literally.
// Numbers keep the int/float distinction of their source literal, so 1 and
// 1.0 are distinct canonical values and hash differently.
package canonicalize

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// ErrUnsupportedType is returned when a value falls outside the supported
// model: null, bool, number, string, sequence, or string-keyed mapping.
// Non-finite floats surface through this error as well.
var ErrUnsupportedType = errors.New("canonicalize: unsupported type")

// Canonicalize returns the canonical byte form of v.
//
// v is first marshalled through encoding/json (so struct tags are honored),
// then decoded back with json.Number to preserve numeric literals, and
// finally re-emitted with sorted keys and no escaping beyond JSON's minimum.
// The function is total and deterministic for any representable value and
// idempotent under re-canonicalization of its own parsed output.
func Canonicalize(v any) ([]byte, error) {
	intermediate, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedType, err)
	}

	generic, err := Parse(intermediate)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: intermediate decode failed: %w", err)
	}

	return encodeValue(generic)
}

// CanonicalizeString is Canonicalize returning a string, used where the
// canonical form itself is the payload (e.g. detached signing).
func CanonicalizeString(v any) (string, error) {
	b, err := Canonicalize(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Parse decodes JSON bytes into the generic value model with numeric
// literals preserved as json.Number.
func Parse(data []byte) (any, error) {
	var v any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// Hash returns the ContentHash of v: lowercase hex SHA-256 over the
// canonical bytes. Two values hash equal iff they are structurally equal
// under the canonical model.
func Hash(v any) (string, error) {
	b, err := Canonicalize(v)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// HashBytes computes the SHA-256 hex digest of raw bytes.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashText computes the document identity hash: SHA-256 over the UTF-8
// bytes of text. Documents are hashed as raw text, not as JSON values.
func HashText(text string) string {
	return HashBytes([]byte(text))
}

func encodeValue(v any) ([]byte, error) {
	switch t := v.(type) {
	case nil:
		return []byte("null"), nil
	case bool:
		if t {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case json.Number:
		// Emit the literal exactly as parsed; this is what keeps the
		// int/float distinction hash-visible.
		return []byte(t.String()), nil
	case string:
		return encodeString(t)
	case []any:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, elem := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, err := encodeValue(elem)
			if err != nil {
				return nil, err
			}
			buf.Write(b)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := encodeString(k)
			if err != nil {
				return nil, err
			}
			buf.Write(kb)
			buf.WriteByte(':')

			vb, err := encodeValue(t[k])
			if err != nil {
				return nil, err
			}
			buf.Write(vb)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedType, v)
	}
}

// encodeString quotes and escapes s with encoding/json but with HTML
// escaping disabled, so <, > and & pass through literally.
func encodeString(s string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	// json.Encoder appends a newline.
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}
