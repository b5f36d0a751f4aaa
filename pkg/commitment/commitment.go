// Package commitment provides deterministic, canonical JSON encoding
// shared by every component that persists a struct as a JSON string
// and needs two processes that recompute the same value to land on
// identical bytes (§6 "binary structures stored as canonical JSON
// strings").
package commitment

import (
	"encoding/json"
	"sort"
)

// CanonicalizeJSON re-encodes raw with map keys sorted and arrays left
// in their original order, an RFC8785-adjacent canonicalization that's
// good enough for byte-stable storage without a full JCS implementation.
func CanonicalizeJSON(raw []byte) ([]byte, error) {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return json.Marshal(canonicalizeValue(v))
}

func canonicalizeValue(v interface{}) interface{} {
	switch vv := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(vv))
		for k := range vv {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ordered := make(map[string]interface{}, len(vv))
		for _, k := range keys {
			ordered[k] = canonicalizeValue(vv[k])
		}
		return ordered
	case []interface{}:
		out := make([]interface{}, len(vv))
		for i, e := range vv {
			out[i] = canonicalizeValue(e)
		}
		return out
	default:
		return vv
	}
}

// MarshalCanonical marshals v to JSON, then canonicalizes key order.
func MarshalCanonical(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return CanonicalizeJSON(raw)
}
