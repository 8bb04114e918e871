package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergePayload(t *testing.T) {
	tests := []struct {
		name     string
		target   string
		source   string
		expected string
	}{
		{
			name:     "adds new fields",
			target:   `{"name": "Martha Jones"}`,
			source:   `{"email": "martha@example.com"}`,
			expected: `{"name": "Martha Jones", "email": "martha@example.com"}`,
		},
		{
			name:     "overwrites scalar fields",
			target:   `{"name": "Martha Jones", "phone": "5551234567"}`,
			source:   `{"phone": "5559876543"}`,
			expected: `{"name": "Martha Jones", "phone": "5559876543"}`,
		},
		{
			name:     "merges nested objects recursively",
			target:   `{"preferences": {"stylist": "Gwen", "reminders": true}}`,
			source:   `{"preferences": {"reminders": false}}`,
			expected: `{"preferences": {"stylist": "Gwen", "reminders": false}}`,
		},
		{
			name:     "replaces arrays wholesale",
			target:   `{"tags": ["vip"]}`,
			source:   `{"tags": ["regular", "walk-in"]}`,
			expected: `{"tags": ["regular", "walk-in"]}`,
		},
		{
			name:     "scalar overwrites object",
			target:   `{"notes": {"text": "prefers mornings"}}`,
			source:   `{"notes": "none"}`,
			expected: `{"notes": "none"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			merged, err := MergePayload(json.RawMessage(tt.target), json.RawMessage(tt.source))
			require.NoError(t, err)

			var got, want map[string]any
			require.NoError(t, json.Unmarshal(merged, &got))
			require.NoError(t, json.Unmarshal([]byte(tt.expected), &want))
			assert.Equal(t, want, got)
		})
	}
}

func TestMergePayload_EmptySides(t *testing.T) {
	merged, err := MergePayload(nil, json.RawMessage(`{"name": "Trim"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"name": "Trim"}`, string(merged))

	merged, err = MergePayload(json.RawMessage(`{"name": "Trim"}`), nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name": "Trim"}`, string(merged))
}

func TestMergePayload_Invalid(t *testing.T) {
	_, err := MergePayload(json.RawMessage(`[1]`), json.RawMessage(`{}`))
	assert.Error(t, err)

	_, err = MergePayload(json.RawMessage(`{}`), json.RawMessage(`not json`))
	assert.Error(t, err)
}
