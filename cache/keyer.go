package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Keyer derives cache keys from a tool call.
//
// Contract:
// - Determinism: argument objects that differ only in key order yield one key.
// - Isolation: different tools or tenants never share a key.
type Keyer interface {
	Key(tool, tenant string, args json.RawMessage) (string, error)
}

// DefaultKeyer builds keys of the form botops:<tool>:<tenant>:<hash>, where
// hash is the first 16 hex characters of SHA-256 over the canonical args.
type DefaultKeyer struct{}

// NewDefaultKeyer returns a DefaultKeyer.
func NewDefaultKeyer() *DefaultKeyer {
	return &DefaultKeyer{}
}

// Key implements Keyer.
func (k *DefaultKeyer) Key(tool, tenant string, args json.RawMessage) (string, error) {
	if tool == "" || strings.ContainsAny(tool+tenant, ":\n\r") {
		return "", ErrInvalidKey
	}

	canonical, err := Canonicalize(args)
	if err != nil {
		return "", fmt.Errorf("cache: canonicalize args: %w", err)
	}
	sum := sha256.Sum256(canonical)
	key := fmt.Sprintf("botops:%s:%s:%s", tool, tenant, hex.EncodeToString(sum[:8]))
	return key, ValidateKey(key)
}

// Canonicalize re-encodes a JSON document with object keys sorted. Empty
// input encodes as null.
func Canonicalize(raw json.RawMessage) ([]byte, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return []byte("null"), nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case map[string]any:
		buf.WriteByte('{')
		for i, k := range slices.Sorted(maps.Keys(val)) {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case []any:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return err
		}
		buf.Write(b)
	}
	return nil
}

var _ Keyer = (*DefaultKeyer)(nil)
