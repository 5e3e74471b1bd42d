package postgres

import (
	"fmt"

	"github.com/goccy/go-json"
)

// encodeJSON marshals a value for a JSONB column. Nil slices and maps
// encode as a nil argument so the column is stored as NULL.
func encodeJSON(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode json column: %w", err)
	}
	if string(data) == "null" {
		return nil, nil
	}
	return string(data), nil
}

// decodeJSON unmarshals a JSONB column. A NULL column leaves dst untouched.
func decodeJSON(data []byte, dst any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to decode json column: %w", err)
	}
	return nil
}
