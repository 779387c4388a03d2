package inventory

import (
	"encoding/json"
	"strings"
)

// ActiveField is the activity flag every entity carries
const ActiveField = "is_active"

// Sanitizer normalizes a payload before it is submitted. Sanitize is pure
// and idempotent.
type Sanitizer struct {
	// Strings are rendered to their string form and trimmed when present
	// and non-null.
	Strings []string

	// Numbers are converted when non-null; values with no numeric reading
	// become null.
	Numbers []string

	// NullableNumbers are converted when present; empty, null and
	// non-numeric values become null.
	NullableNumbers []string

	// EmptyToNull fields holding "" after trimming become null
	EmptyToNull []string
}

// Sanitize returns a normalized copy of raw
func (s Sanitizer) Sanitize(raw Record) Record {
	out := raw.Clone()
	if out == nil {
		return Record{}
	}

	for _, k := range s.Strings {
		if v, ok := out[k]; ok && v != nil {
			out[k] = strings.TrimSpace(stringify(v))
		}
	}
	for _, k := range s.Numbers {
		if v, ok := out[k]; ok && v != nil {
			n, ok := toNumber(v)
			if !ok {
				n = nil
			}
			out[k] = n
		}
	}
	for _, k := range s.NullableNumbers {
		if v, ok := out[k]; ok {
			out[k] = numberOrNull(v)
		}
	}
	if v, ok := out[ActiveField]; ok {
		out[ActiveField] = ToFlag01(v)
	}
	for _, k := range s.EmptyToNull {
		if v, ok := out[k].(string); ok && v == "" {
			out[k] = nil
		}
	}
	return out
}

// ToFlag01 maps 1, "1" and true to 1 and every other value to 0
func ToFlag01(v any) int {
	switch t := v.(type) {
	case bool:
		if t {
			return 1
		}
	case string:
		if t == "1" {
			return 1
		}
	case int:
		if t == 1 {
			return 1
		}
	case int64:
		if t == 1 {
			return 1
		}
	case float64:
		if t == 1 {
			return 1
		}
	case json.Number:
		if f, err := t.Float64(); err == nil && f == 1 {
			return 1
		}
	}
	return 0
}

func numberOrNull(v any) any {
	if v == nil {
		return nil
	}
	if s, ok := v.(string); ok && s == "" {
		return nil
	}
	n, ok := toNumber(v)
	if !ok {
		return nil
	}
	return n
}
