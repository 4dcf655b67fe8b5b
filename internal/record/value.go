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

package record

import (
	"bytes"
	"encoding/json"
	"strings"
)

// JSONValue converts a value decoded with json.Decoder.UseNumber into the
// form records hold. Integers that fit become int64, numbers with a
// fraction or exponent become float64, and larger integers stay as the
// exact json.Number. Maps and slices are converted in place.
func JSONValue(v any) any {
	switch v := v.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
		if strings.ContainsAny(v.String(), ".eE") {
			if f, err := v.Float64(); err == nil {
				return f
			}
		}
		return v
	case map[string]any:
		for k, e := range v {
			v[k] = JSONValue(e)
		}
		return v
	case []any:
		for i, e := range v {
			v[i] = JSONValue(e)
		}
		return v
	}
	return v
}

// DecodeJSON decodes data keeping integers exact, see JSONValue.
func DecodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return JSONValue(v), nil
}
