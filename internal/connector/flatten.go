// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package connector

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
)

// Flattening collapses array values into their parent object. Non-array
// values are kept under their key. Each element of an array value must be
// an object; it is flattened recursively and merged into the parent, with
// later entries overwriting earlier keys. Keys are not namespaced, so
// colliding names lose data.

// member is one key of an object decoded in document order.
type member struct {
	key string
	val any
}

// orderedObject is a JSON object that remembers key order.
type orderedObject []member

// Flatten flattens obj. Keys are visited in sorted order since a Go map
// has none of its own; use FlattenJSON to honour document order.
func Flatten(obj map[string]any) (map[string]any, error) {
	return flattenOrdered(fromMap(obj))
}

// FlattenValue flattens an already decoded JSON document, which must be an
// object.
func FlattenValue(v any) (map[string]any, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, &MalformedResponseError{Reason: fmt.Sprintf("expected a JSON object, got %s", jsonKind(v))}
	}
	return Flatten(obj)
}

// FlattenJSON decodes a JSON document and flattens it, resolving key
// collisions in document order.
func FlattenJSON(data []byte) (map[string]any, error) {
	v, err := decodeOrdered(data)
	if err != nil {
		return nil, &MalformedResponseError{Reason: err.Error(), Body: excerpt(data)}
	}
	obj, ok := v.(orderedObject)
	if !ok {
		return nil, &MalformedResponseError{Reason: fmt.Sprintf("expected a JSON object, got %s", jsonKind(v)), Body: excerpt(data)}
	}
	return flattenOrdered(obj)
}

func flattenOrdered(obj orderedObject) (map[string]any, error) {
	out := make(map[string]any, len(obj))
	for _, m := range obj {
		arr, ok := m.val.([]any)
		if !ok {
			out[m.key] = plain(m.val)
			continue
		}
		for i, elem := range arr {
			child, ok := elem.(orderedObject)
			if !ok {
				return nil, &MalformedResponseError{
					Reason: fmt.Sprintf("element %d of %q is %s, expected an object", i, m.key, jsonKind(elem)),
				}
			}
			flat, err := flattenOrdered(child)
			if err != nil {
				return nil, err
			}
			maps.Copy(out, flat)
		}
	}
	return out, nil
}

// fromMap converts decoded JSON into ordered form with sorted keys.
func fromMap(m map[string]any) orderedObject {
	obj := make(orderedObject, 0, len(m))
	for _, k := range slices.Sorted(maps.Keys(m)) {
		obj = append(obj, member{key: k, val: toOrdered(m[k])})
	}
	return obj
}

func toOrdered(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return fromMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = toOrdered(e)
		}
		return out
	}
	return v
}

// plain converts ordered values back to maps and slices.
func plain(v any) any {
	switch t := v.(type) {
	case orderedObject:
		m := make(map[string]any, len(t))
		for _, mem := range t {
			m[mem.key] = plain(mem.val)
		}
		return m
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = plain(e)
		}
		return out
	}
	return v
}

func decodeOrdered(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := readValue(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("unexpected data after JSON value")
	}
	return v, nil
}

func readValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("empty body")
		}
		return nil, err
	}

	delim, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}

	switch delim {
	case '{':
		obj := orderedObject{}
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				return nil, err
			}
			key, ok := keyTok.(string)
			if !ok {
				return nil, fmt.Errorf("object key is not a string")
			}
			val, err := readValue(dec)
			if err != nil {
				return nil, err
			}
			obj = append(obj, member{key: key, val: val})
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return obj, nil
	case '[':
		arr := []any{}
		for dec.More() {
			val, err := readValue(dec)
			if err != nil {
				return nil, err
			}
			arr = append(arr, val)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return arr, nil
	}
	return nil, fmt.Errorf("unexpected delimiter %q", delim)
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any, orderedObject:
		return "an object"
	case []any:
		return "an array"
	case string:
		return "a string"
	case bool:
		return "a boolean"
	default:
		return "a number"
	}
}
