package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// InputsHash returns a stable digest of declared properties. Map keys are
// sorted by encoding/json, so equal inputs always hash the same.
func InputsHash(props map[string]any) string {
	return hashJSON(props)
}

func hashJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// normalizeProperties converts typed Go values (string slices, nested
// structs) into the generic JSON shapes the engine walks.
func normalizeProperties(props map[string]any) (map[string]any, error) {
	if props == nil {
		return map[string]any{}, nil
	}
	data, err := json.Marshal(props)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal properties: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal properties: %w", err)
	}
	return out, nil
}
