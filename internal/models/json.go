package models

import (
	"bytes"
	"encoding/json"

	"gorm.io/datatypes"
)

// DecodeJSON decodes raw JSON keeping numbers as json.Number.
func DecodeJSON(raw []byte) any {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil
	}
	return out
}

// JSONMap marshals m into a jsonb value, falling back to an empty object.
func JSONMap(m map[string]any) datatypes.JSON {
	if len(m) == 0 {
		return datatypes.JSON([]byte(`{}`))
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return datatypes.JSON([]byte(`{}`))
	}
	return datatypes.JSON(raw)
}

// PayloadMap decodes a jsonb object; non-objects decode to an empty map.
func PayloadMap(raw datatypes.JSON) map[string]any {
	out := map[string]any{}
	if len(raw) == 0 {
		return out
	}
	if m, ok := DecodeJSON(raw).(map[string]any); ok {
		return m
	}
	return out
}
