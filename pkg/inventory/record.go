// Package inventory implements the per-entity stores over the inventory API:
// cached pages, a current record, busy flags, payload sanitizing and
// endpoint probing for reads and syncs.
package inventory

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Record is one server-managed resource. Fields other than the identifier
// are opaque to the store.
type Record map[string]any

// ID returns the string form of "uuid", falling back to "id"
func (r Record) ID() string {
	if r == nil {
		return ""
	}
	if id := stringify(r["uuid"]); id != "" {
		return id
	}
	return stringify(r["id"])
}

// Clone returns a shallow copy
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Merge returns a copy of r with patch's fields laid over it
func (r Record) Merge(patch Record) Record {
	out := r.Clone()
	if out == nil {
		out = make(Record, len(patch))
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}

// String returns the string form of a field, "" when absent or null
func (r Record) String(key string) string {
	return stringify(r[key])
}

// Keys returns the field names in sorted order
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func cloneRecords(in []Record) []Record {
	if in == nil {
		return nil
	}
	out := make([]Record, len(in))
	for i, r := range in {
		out[i] = r.Clone()
	}
	return out
}

func indexOf(items []Record, id string) int {
	for i, it := range items {
		if it.ID() == id {
			return i
		}
	}
	return -1
}

// stringify renders scalar values the way the API's own clients do:
// integral floats without a fraction, everything else in its natural form.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case fmt.Stringer:
		return t.String()
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}

// toNumber converts v to an int64 when integral, else a float64. ok is
// false when v has no numeric reading.
func toNumber(v any) (any, bool) {
	var f float64
	switch t := v.(type) {
	case int:
		return int64(t), true
	case int64:
		return t, true
	case float64:
		f = t
	case float32:
		f = float64(t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, true
		}
		x, err := t.Float64()
		if err != nil {
			return nil, false
		}
		f = x
	case bool:
		if t {
			return int64(1), true
		}
		return int64(0), true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return int64(0), true
		}
		x, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, false
		}
		f = x
	default:
		return nil, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, false
	}
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return int64(f), true
	}
	return f, true
}
