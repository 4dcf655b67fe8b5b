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
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/tombee/apiconnect/internal/record"
)

// ResolveRule returns the concrete value of rule for ev. A dynamic rule
// reads its field from ev; with no event record it falls back to the static
// value.
func ResolveRule(rule Rule, ev record.Record) (string, error) {
	if !rule.TakeFromEventRecord || ev == nil {
		return rule.StaticValue, nil
	}
	v, ok := ev.Get(rule.DynamicValue)
	if !ok {
		return "", &MissingFieldError{Field: rule.DynamicValue, EntityType: ev.Ref().EntityType}
	}
	return Stringify(v)
}

// Stringify renders a record value the way it is sent on the wire.
func Stringify(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case bool:
		return strconv.FormatBool(t), nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case json.Number:
		return t.String(), nil
	case fmt.Stringer:
		return t.String(), nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode value: %w", err)
	}
	return string(data), nil
}

// resolveRules resolves an ordered rule list into a map. Later duplicate
// keys win.
func resolveRules(rules []Rule, ev record.Record) (map[string]string, error) {
	out := make(map[string]string, len(rules))
	for _, r := range rules {
		v, err := ResolveRule(r, ev)
		if err != nil {
			return nil, err
		}
		out[r.Key] = v
	}
	return out, nil
}
