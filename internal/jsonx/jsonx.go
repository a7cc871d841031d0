// Package jsonx provides deterministic JSON encoding helpers.
package jsonx

import (
	"bytes"
	"encoding/json"
	"sort"
)

// OrderedMap is a slice of key-value pairs that marshals as a JSON object
// with keys in the order they appear in the slice.
type OrderedMap []KeyValue

type KeyValue struct {
	Key   string
	Value interface{}
}

func (om OrderedMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	for i, kv := range om {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyJSON, err := Marshal(kv.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(keyJSON)
		buf.WriteByte(':')

		valJSON, err := Marshal(kv.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(valJSON)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Record orders a property map: the leading pairs first (skipping nil
// values), then the remaining keys sorted lexicographically.
func Record(props map[string]any, leading ...KeyValue) OrderedMap {
	out := make(OrderedMap, 0, len(props)+len(leading))
	skip := make(map[string]bool, len(leading))
	for _, kv := range leading {
		skip[kv.Key] = true
		if kv.Value == nil {
			continue
		}
		if s, ok := kv.Value.(string); ok && s == "" {
			continue
		}
		out = append(out, kv)
	}
	for _, k := range SortedKeys(props) {
		if skip[k] {
			continue
		}
		out = append(out, KeyValue{k, props[k]})
	}
	return out
}

// SortedKeys returns the keys of m in lexicographic order.
func SortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Marshal encodes v without HTML escaping and without a trailing newline.
// Map keys come out sorted, which makes the output canonical for plain maps.
func Marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// MarshalIndent is Marshal with two-space indentation and a final newline,
// the layout used for files meant to be read by people.
func MarshalIndent(v interface{}) ([]byte, error) {
	compact, err := Marshal(v)
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, compact, "", "  "); err != nil {
		return nil, err
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}
