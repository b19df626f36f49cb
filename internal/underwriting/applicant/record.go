// internal/underwriting/applicant/record.go
package applicant

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Record is the raw applicant mapping as submitted (decoded JSON).
type Record map[string]interface{}

// Section names used by the extractor and the stages.
const (
	SectionEmployment    = "employment"
	SectionLoan          = "loan"
	SectionProperty      = "property"
	SectionAssets        = "assets"
	SectionDebts         = "debts"
	SectionCreditHistory = "credit_history"
)

// Section returns the nested mapping stored under name, or an empty Record
// when the key is missing or holds something other than an object.
func (r Record) Section(name string) Record {
	if r == nil {
		return Record{}
	}
	switch v := r[name].(type) {
	case map[string]interface{}:
		return Record(v)
	case Record:
		return v
	default:
		return Record{}
	}
}

// Get returns the raw value under key.
func (r Record) Get(key string) interface{} {
	if r == nil {
		return nil
	}
	return r[key]
}

// Has reports whether key is present, even with a null value.
func (r Record) Has(key string) bool {
	if r == nil {
		return false
	}
	_, ok := r[key]
	return ok
}

// First returns the first value among keys that is set to something truthy:
// not nil, not an empty string, not a zero number and not false.
func (r Record) First(keys ...string) interface{} {
	for _, k := range keys {
		if v := r.Get(k); truthy(v) {
			return v
		}
	}
	return nil
}

// String renders the value under key as text, "" when missing.
func (r Record) String(key string) string {
	return AsString(r.Get(key))
}

// Clone returns a deep copy of the record. Nested maps and slices are copied,
// scalar values are shared.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	return Record(deepCopyMap(r))
}

func deepCopyMap(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return deepCopyMap(t)
	case Record:
		return Record(deepCopyMap(t))
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = deepCopyValue(item)
		}
		return out
	case []map[string]interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = deepCopyMap(item)
		}
		return out
	default:
		return v
	}
}

// AsFloat coerces v to a float64. Anything that is not a number or a numeric
// string yields def.
func AsFloat(v interface{}, def float64) float64 {
	switch t := v.(type) {
	case nil:
		return def
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int8:
		return float64(t)
	case int16:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case uint:
		return float64(t)
	case uint8:
		return float64(t)
	case uint16:
		return float64(t)
	case uint32:
		return float64(t)
	case uint64:
		return float64(t)
	case bool:
		if t {
			return 1
		}
		return 0
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return def
		}
		return f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil || math.IsNaN(f) {
			return def
		}
		return f
	default:
		return def
	}
}

// AsInt coerces v to an int, truncating fractional values. Non-finite or
// unparseable values yield 0.
func AsInt(v interface{}) int {
	f := AsFloat(v, 0)
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0
	}
	return int(f)
}

// AsString renders v as text. nil becomes "". Decoded JSON numbers keep
// every digit and never use exponent notation.
func AsString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	default:
		return fmt.Sprint(t)
	}
}

func truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	case map[string]interface{}:
		return len(t) > 0
	case []interface{}:
		return len(t) > 0
	default:
		if f := AsFloat(v, math.NaN()); !math.IsNaN(f) {
			return f != 0
		}
		return true
	}
}
