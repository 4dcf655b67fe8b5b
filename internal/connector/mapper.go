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

import "github.com/tombee/apiconnect/internal/record"

// MapResponse computes the field values for the sink from the stored
// response. Every mapping is resolved before anything is returned, so a
// missing key leaves nothing half applied. Integers keep their exact value.
func MapResponse(c *Connector) (map[string]any, error) {
	if c.Response == "" {
		return nil, &MalformedResponseError{Reason: "no response stored, send the request first"}
	}
	flat, err := FlattenJSON([]byte(c.Response))
	if err != nil {
		return nil, err
	}

	values := make(map[string]any, len(c.ResponseMappings))
	for _, m := range c.ResponseMappings {
		if !m.TakeFrom {
			values[m.Field] = m.StaticValue
			continue
		}
		v, ok := flat[m.DynamicValue]
		if !ok {
			return nil, &ResponseKeyNotFoundError{Key: m.DynamicValue}
		}
		values[m.Field] = record.JSONValue(v)
	}
	return values, nil
}
