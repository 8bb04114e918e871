// Package fingerprint produces deterministic hashes of entity payloads.
// Identical payloads submitted twice hash identically regardless of key order,
// which gives the reconcilers a cheap exact-duplicate check before the
// field-level matching heuristics run.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// Generate creates a deterministic fingerprint for entity data
// The fingerprint is a SHA256 hash of the canonicalized JSON
func Generate(data map[string]any) string {
	canonical := canonicalize(data)
	hash := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(hash[:])
}

// GenerateFromJSON creates a fingerprint from raw JSON
func GenerateFromJSON(data json.RawMessage) (string, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return "", err
	}
	return Generate(m), nil
}

// HasChanged reports whether two fingerprints differ
func HasChanged(a, b string) bool {
	return a != b
}

// canonicalize creates a deterministic string representation of a value
// by sorting map keys and recursively processing nested structures
func canonicalize(data any) string {
	switch v := data.(type) {
	case map[string]any:
		return canonicalizeMap(v)
	case []any:
		return canonicalizeArray(v)
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

func canonicalizeMap(m map[string]any) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := "{"
	for i, k := range keys {
		if i > 0 {
			result += ","
		}
		keyJSON, _ := json.Marshal(k)
		result += string(keyJSON) + ":" + canonicalize(m[k])
	}
	result += "}"
	return result
}

func canonicalizeArray(arr []any) string {
	result := "["
	for i, v := range arr {
		if i > 0 {
			result += ","
		}
		result += canonicalize(v)
	}
	result += "]"
	return result
}
