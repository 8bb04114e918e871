package normalizers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApply(t *testing.T) {
	tests := []struct {
		name       string
		normalizer string
		value      string
		expected   string
	}{
		{name: "lowercase", normalizer: "lowercase", value: "Martha JONES", expected: "martha jones"},
		{name: "trim", normalizer: "trim", value: "  haircut  ", expected: "haircut"},
		{name: "email lowercased and trimmed", normalizer: "nemail", value: " Martha@Example.COM ", expected: "martha@example.com"},
		{name: "phone strips formatting", normalizer: "nphone", value: "(555) 123-4567", expected: "5551234567"},
		{name: "phone drops leading country 1", normalizer: "nphone", value: "+1 555 123 4567", expected: "5551234567"},
		{name: "phone keeps leading digit on short numbers", normalizer: "nphone", value: "123-4567", expected: "1234567"},
		{name: "name collapses interior whitespace", normalizer: "nname", value: "  Martha   Jones ", expected: "martha jones"},
		{name: "time reformats offset to UTC", normalizer: "ntime", value: "2026-03-14T12:00:00+02:00", expected: "2026-03-14T10:00:00Z"},
		{name: "time passes through unparseable values", normalizer: "ntime", value: "next tuesday", expected: "next tuesday"},
		{name: "digits only", normalizer: "digits_only", value: "a1b2c3", expected: "123"},
		{name: "remove whitespace", normalizer: "remove_whitespace", value: "a b\tc", expected: "abc"},
		{name: "unknown normalizer passes through", normalizer: "nope", value: "As Is", expected: "As Is"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Apply(tt.value, tt.normalizer))
		})
	}
}

func TestNormalizeTime_EqualInstantsConverge(t *testing.T) {
	utc := NormalizeTime("2026-03-14T10:00:00Z")
	offset := NormalizeTime("2026-03-14T05:00:00-05:00")
	assert.Equal(t, utc, offset)
}

func TestApplyChain(t *testing.T) {
	assert.Equal(t, "marthajones", ApplyChain("  Martha Jones ", "nname", "remove_whitespace"))
}
