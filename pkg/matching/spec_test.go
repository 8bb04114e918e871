package matching

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/models"
)

func TestMatches_Appointment(t *testing.T) {
	m := NewMatcher(DefaultConfig())

	tests := []struct {
		name         string
		payload      string
		candidate    string
		expectMatch  bool
		expectedRule string
	}{
		{
			name:         "same slot same customer",
			payload:      `{"starts_at": "2026-03-14T10:00:00Z", "customer_name": "Martha Jones"}`,
			candidate:    `{"starts_at": "2026-03-14T10:00:00Z", "customer_name": "Martha Jones"}`,
			expectMatch:  true,
			expectedRule: "same_slot_same_customer",
		},
		{
			name:         "equal instants in different offsets",
			payload:      `{"starts_at": "2026-03-14T10:00:00Z", "customer_name": "Martha Jones"}`,
			candidate:    `{"starts_at": "2026-03-14T12:00:00+02:00", "customer_name": "martha  jones"}`,
			expectMatch:  true,
			expectedRule: "same_slot_same_customer",
		},
		{
			name:         "fuzzy tolerates a typo in the name",
			payload:      `{"starts_at": "2026-03-14T10:00:00Z", "customer_name": "Martha Jones"}`,
			candidate:    `{"starts_at": "2026-03-14T10:00:00Z", "customer_name": "Marhta Jones"}`,
			expectMatch:  true,
			expectedRule: "same_slot_same_customer",
		},
		{
			name:        "same slot different customer",
			payload:     `{"starts_at": "2026-03-14T10:00:00Z", "customer_name": "Martha Jones"}`,
			candidate:   `{"starts_at": "2026-03-14T10:00:00Z", "customer_name": "Gwen Cooper"}`,
			expectMatch: false,
		},
		{
			name:        "same customer different slot",
			payload:     `{"starts_at": "2026-03-14T10:00:00Z", "customer_name": "Martha Jones"}`,
			candidate:   `{"starts_at": "2026-03-14T11:00:00Z", "customer_name": "Martha Jones"}`,
			expectMatch: false,
		},
		{
			name:        "payload missing the customer name cannot claim a duplicate",
			payload:     `{"starts_at": "2026-03-14T10:00:00Z"}`,
			candidate:   `{"starts_at": "2026-03-14T10:00:00Z", "customer_name": "Martha Jones"}`,
			expectMatch: false,
		},
		{
			name:        "candidate missing the field",
			payload:     `{"starts_at": "2026-03-14T10:00:00Z", "customer_name": "Martha Jones"}`,
			candidate:   `{"customer_name": "Martha Jones"}`,
			expectMatch: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, rule, err := m.Matches(models.EntityAppointment, json.RawMessage(tt.payload), json.RawMessage(tt.candidate))
			require.NoError(t, err)
			assert.Equal(t, tt.expectMatch, ok)
			assert.Equal(t, tt.expectedRule, rule)
		})
	}
}

func TestMatches_CustomerAlternativeRules(t *testing.T) {
	m := NewMatcher(DefaultConfig())

	// email rule fires first when both sides carry one
	ok, rule, err := m.Matches(models.EntityCustomer,
		json.RawMessage(`{"name": "Martha Jones", "email": " Martha@Example.com "}`),
		json.RawMessage(`{"name": "M. Jones", "email": "martha@example.com"}`))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "same_email", rule)

	// phone formatting differences normalize away
	ok, rule, err = m.Matches(models.EntityCustomer,
		json.RawMessage(`{"phone": "+1 (555) 123-4567"}`),
		json.RawMessage(`{"phone": "555.123.4567"}`))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "same_phone", rule)

	// neither identifier shared
	ok, rule, err = m.Matches(models.EntityCustomer,
		json.RawMessage(`{"email": "martha@example.com"}`),
		json.RawMessage(`{"phone": "5551234567"}`))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, rule)
}

func TestMatches_FuzzyDisabledDegradesToExact(t *testing.T) {
	m := NewMatcher(Config{FuzzyEnabled: false, FuzzyMinScore: 0.92})

	payload := json.RawMessage(`{"starts_at": "2026-03-14T10:00:00Z", "customer_name": "Marhta Jones"}`)
	exact := json.RawMessage(`{"starts_at": "2026-03-14T10:00:00Z", "customer_name": "Marhta Jones"}`)
	typo := json.RawMessage(`{"starts_at": "2026-03-14T10:00:00Z", "customer_name": "Martha Jones"}`)

	ok, _, err := m.Matches(models.EntityAppointment, payload, exact)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _, err = m.Matches(models.EntityAppointment, payload, typo)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMatches_UnknownKind(t *testing.T) {
	m := NewMatcher(DefaultConfig())

	ok, rule, err := m.Matches(models.EntityKind("invoice"), json.RawMessage(`{}`), json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, rule)
}

func TestMatches_MalformedPayload(t *testing.T) {
	m := NewMatcher(DefaultConfig())

	_, _, err := m.Matches(models.EntityCustomer, json.RawMessage(`not json`), json.RawMessage(`{}`))
	assert.Error(t, err)

	_, _, err = m.Matches(models.EntityCustomer, json.RawMessage(`{}`), json.RawMessage(`[1,2]`))
	assert.Error(t, err)
}

func TestSetSpec(t *testing.T) {
	m := NewMatcher(DefaultConfig())
	m.SetSpec(Spec{
		Kind: models.EntityService,
		Rules: []Rule{
			{
				Name: "same_code",
				Conditions: []Condition{
					{Field: "code", MatchType: MatchExact},
				},
			},
		},
	})

	ok, rule, err := m.Matches(models.EntityService,
		json.RawMessage(`{"code": "CUT-30", "name": "Haircut"}`),
		json.RawMessage(`{"code": "CUT-30", "name": "Trim"}`))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "same_code", rule)
}
