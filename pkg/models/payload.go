package models

import (
	"encoding/json"
	"fmt"
)

// MergePayload performs a deep merge of a mutation payload into existing
// entity data. Source values take precedence; nested objects merge
// recursively; arrays and scalars are replaced wholesale.
func MergePayload(target, source json.RawMessage) (json.RawMessage, error) {
	if len(target) == 0 {
		target = json.RawMessage(`{}`)
	}
	if len(source) == 0 {
		return target, nil
	}

	var targetMap map[string]any
	var sourceMap map[string]any

	if err := json.Unmarshal(target, &targetMap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal target JSON: %w", err)
	}

	if err := json.Unmarshal(source, &sourceMap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal source JSON: %w", err)
	}

	deepMerge(targetMap, sourceMap)

	merged, err := json.Marshal(targetMap)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal merged JSON: %w", err)
	}

	return merged, nil
}

// deepMerge recursively merges source map into target map.
// For nested maps, it merges recursively. For all other types, source values overwrite target values.
func deepMerge(target, source map[string]any) {
	for key, sourceVal := range source {
		if targetVal, exists := target[key]; exists {
			targetMap, targetIsMap := targetVal.(map[string]any)
			sourceMap, sourceIsMap := sourceVal.(map[string]any)

			if targetIsMap && sourceIsMap {
				deepMerge(targetMap, sourceMap)
				continue
			}
		}
		target[key] = sourceVal
	}
}
