package fingerprint

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateFromJSON_KeyOrderIndependent(t *testing.T) {
	a, err := GenerateFromJSON(json.RawMessage(`{"name": "Haircut", "duration_minutes": 30}`))
	require.NoError(t, err)

	b, err := GenerateFromJSON(json.RawMessage(`{"duration_minutes": 30, "name": "Haircut"}`))
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.False(t, HasChanged(a, b))
}

func TestGenerateFromJSON_ValueChangeDetected(t *testing.T) {
	a, err := GenerateFromJSON(json.RawMessage(`{"name": "Haircut", "price": 45}`))
	require.NoError(t, err)

	b, err := GenerateFromJSON(json.RawMessage(`{"name": "Haircut", "price": 50}`))
	require.NoError(t, err)

	assert.True(t, HasChanged(a, b))
}

func TestGenerateFromJSON_NestedStructures(t *testing.T) {
	a, err := GenerateFromJSON(json.RawMessage(`{"customer": {"name": "Martha", "tags": ["vip", "regular"]}}`))
	require.NoError(t, err)

	sameNestedOrder, err := GenerateFromJSON(json.RawMessage(`{"customer": {"tags": ["vip", "regular"], "name": "Martha"}}`))
	require.NoError(t, err)
	assert.Equal(t, a, sameNestedOrder)

	// array order is significant
	reordered, err := GenerateFromJSON(json.RawMessage(`{"customer": {"name": "Martha", "tags": ["regular", "vip"]}}`))
	require.NoError(t, err)
	assert.True(t, HasChanged(a, reordered))
}

func TestGenerateFromJSON_Invalid(t *testing.T) {
	_, err := GenerateFromJSON(json.RawMessage(`not json`))
	assert.Error(t, err)
}
