// Package normalizers provides field normalization functions for duplicate matching
package normalizers

import (
	"strings"
	"time"
	"unicode"
)

// Normalizer is a function that normalizes a string value
type Normalizer func(string) string

// registry holds all registered normalizers
var registry = make(map[string]Normalizer)

func init() {
	Register("lowercase", Lowercase)
	Register("trim", Trim)
	Register("nemail", NormalizeEmail)
	Register("nphone", NormalizePhone)
	Register("nname", NormalizeName)
	Register("ntime", NormalizeTime)
	Register("digits_only", DigitsOnly)
	Register("remove_whitespace", RemoveWhitespace)
}

// Register adds a normalizer to the registry
func Register(name string, fn Normalizer) {
	registry[name] = fn
}

// Apply applies a named normalizer to a value
func Apply(value, normalizer string) string {
	fn, ok := registry[normalizer]
	if !ok {
		return value
	}
	return fn(value)
}

// ApplyChain applies multiple normalizers in sequence
func ApplyChain(value string, normalizers ...string) string {
	result := value
	for _, name := range normalizers {
		result = Apply(result, name)
	}
	return result
}

// Lowercase converts the value to lower case
func Lowercase(v string) string {
	return strings.ToLower(v)
}

// Trim removes leading and trailing whitespace
func Trim(v string) string {
	return strings.TrimSpace(v)
}

// NormalizeEmail lowercases and trims an email address
func NormalizeEmail(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

// NormalizePhone strips everything but digits, dropping a leading country "1"
func NormalizePhone(v string) string {
	digits := DigitsOnly(v)
	if len(digits) == 11 && digits[0] == '1' {
		digits = digits[1:]
	}
	return digits
}

// NormalizeName lowercases, trims, and collapses interior whitespace
func NormalizeName(v string) string {
	fields := strings.Fields(strings.ToLower(v))
	return strings.Join(fields, " ")
}

// NormalizeTime reformats an RFC3339 timestamp to UTC so equal instants
// compare equal regardless of offset notation. Unparseable values pass through.
func NormalizeTime(v string) string {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(v))
	if err != nil {
		return v
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// DigitsOnly strips all non-digit runes
func DigitsOnly(v string) string {
	var b strings.Builder
	for _, r := range v {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// RemoveWhitespace strips all whitespace runes
func RemoveWhitespace(v string) string {
	var b strings.Builder
	for _, r := range v {
		if !unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
