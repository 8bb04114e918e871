// Package matching detects when an offline create duplicates an existing
// record. Rules are alternatives; conditions within a rule are all required
// to hold (AND). The first rule that passes wins.
package matching

import (
	"encoding/json"
	"fmt"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/normalizers"
)

// MatchType selects the comparison used for a condition
type MatchType string

const (
	MatchExact MatchType = "exact"
	MatchFuzzy MatchType = "fuzzy"
)

// Condition compares one payload field against the same field of a candidate
type Condition struct {
	Field      string
	MatchType  MatchType
	Normalizer string  // name from the normalizers registry, empty for raw
	Threshold  float64 // min Jaro-Winkler similarity for fuzzy, 0 = matcher default
}

// Rule is a named group of conditions that together identify a duplicate
type Rule struct {
	Name       string
	Conditions []Condition
}

// Spec is the full duplicate-detection policy for one entity kind
type Spec struct {
	Kind  models.EntityKind
	Rules []Rule
}

// Config contains tunables for the matcher
type Config struct {
	FuzzyEnabled  bool    // when false, fuzzy conditions degrade to exact
	FuzzyMinScore float64 // default threshold for fuzzy conditions (default: 0.92)
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		FuzzyEnabled:  true,
		FuzzyMinScore: 0.92,
	}
}

// Matcher evaluates duplicate-detection specs against candidate records
type Matcher struct {
	scorer *Scorer
	specs  map[models.EntityKind]Spec
	cfg    Config
}

// NewMatcher creates a matcher with the default per-kind specs
func NewMatcher(cfg Config) *Matcher {
	if cfg.FuzzyMinScore <= 0 {
		cfg.FuzzyMinScore = 0.92
	}
	return &Matcher{
		scorer: NewScorer(),
		specs:  DefaultSpecs(),
		cfg:    cfg,
	}
}

// DefaultSpecs returns the built-in duplicate-detection policy per entity kind.
// Candidates are already narrowed to the owning user by the caller, so rules
// only compare payload content.
func DefaultSpecs() map[models.EntityKind]Spec {
	return map[models.EntityKind]Spec{
		models.EntityAppointment: {
			Kind: models.EntityAppointment,
			Rules: []Rule{
				{
					Name: "same_slot_same_customer",
					Conditions: []Condition{
						{Field: "starts_at", MatchType: MatchExact, Normalizer: "ntime"},
						{Field: "customer_name", MatchType: MatchFuzzy, Normalizer: "nname"},
					},
				},
			},
		},
		models.EntityCustomer: {
			Kind: models.EntityCustomer,
			Rules: []Rule{
				{
					Name: "same_email",
					Conditions: []Condition{
						{Field: "email", MatchType: MatchExact, Normalizer: "nemail"},
					},
				},
				{
					Name: "same_phone",
					Conditions: []Condition{
						{Field: "phone", MatchType: MatchExact, Normalizer: "nphone"},
					},
				},
			},
		},
		models.EntityService: {
			Kind: models.EntityService,
			Rules: []Rule{
				{
					Name: "same_name",
					Conditions: []Condition{
						{Field: "name", MatchType: MatchExact, Normalizer: "nname"},
					},
				},
			},
		},
		models.EntityAvailability: {
			Kind: models.EntityAvailability,
			Rules: []Rule{
				{
					Name: "same_window",
					Conditions: []Condition{
						{Field: "starts_at", MatchType: MatchExact, Normalizer: "ntime"},
						{Field: "ends_at", MatchType: MatchExact, Normalizer: "ntime"},
					},
				},
			},
		},
	}
}

// SetSpec replaces the policy for an entity kind
func (m *Matcher) SetSpec(spec Spec) {
	m.specs[spec.Kind] = spec
}

// Matches reports whether the candidate record duplicates the payload.
// Returns the name of the first rule that passed, or "" when none did.
func (m *Matcher) Matches(kind models.EntityKind, payload, candidate json.RawMessage) (bool, string, error) {
	spec, ok := m.specs[kind]
	if !ok || len(spec.Rules) == 0 {
		return false, "", nil
	}

	payloadData, err := parseData(payload)
	if err != nil {
		return false, "", fmt.Errorf("failed to parse mutation payload: %w", err)
	}
	candidateData, err := parseData(candidate)
	if err != nil {
		return false, "", fmt.Errorf("failed to parse candidate data: %w", err)
	}

	for _, rule := range spec.Rules {
		if m.ruleMatches(rule, payloadData, candidateData) {
			return true, rule.Name, nil
		}
	}

	return false, "", nil
}

// ruleMatches requires every condition to hold. A condition whose field is
// absent on either side fails the rule; a rule about a field the client did
// not send cannot claim a duplicate.
func (m *Matcher) ruleMatches(rule Rule, payload, candidate map[string]any) bool {
	if len(rule.Conditions) == 0 {
		return false
	}

	for _, cond := range rule.Conditions {
		src, ok := extractString(payload, cond.Field)
		if !ok || src == "" {
			return false
		}
		dst, ok := extractString(candidate, cond.Field)
		if !ok || dst == "" {
			return false
		}

		if cond.Normalizer != "" {
			src = normalizers.Apply(src, cond.Normalizer)
			dst = normalizers.Apply(dst, cond.Normalizer)
		}

		switch cond.MatchType {
		case MatchFuzzy:
			if !m.cfg.FuzzyEnabled {
				if src != dst {
					return false
				}
				continue
			}
			threshold := cond.Threshold
			if threshold <= 0 {
				threshold = m.cfg.FuzzyMinScore
			}
			if m.scorer.JaroWinkler(src, dst) < threshold {
				return false
			}
		default:
			if src != dst {
				return false
			}
		}
	}

	return true
}

// parseData unmarshals JSON object data, treating empty as an empty object
func parseData(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	return data, nil
}

// extractString pulls a field value out of parsed JSON data as a string.
// Non-string scalars are formatted; objects and arrays never match.
func extractString(data map[string]any, field string) (string, bool) {
	val, ok := data[field]
	if !ok || val == nil {
		return "", false
	}
	switch v := val.(type) {
	case string:
		return v, true
	case float64, bool, json.Number:
		return fmt.Sprintf("%v", v), true
	default:
		return "", false
	}
}
