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

// Package postman converts connectors to and from Postman collections
// (v2.0 and v2.1 formats).
package postman

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// SchemaV2 is the schema advertised by exported collections.
const SchemaV2 = "https://schema.getpostman.com/json/collection/v2.0.0/"

// Collection is the subset of a Postman collection connectors map to.
type Collection struct {
	Info *Info  `json:"info,omitempty"`
	Item []Item `json:"item"`
}

// Info describes a collection.
type Info struct {
	Name        string `json:"name"`
	Version     string `json:"version,omitempty"`
	Description string `json:"description,omitempty"`
	Schema      string `json:"schema"`
}

// Item is one saved request.
type Item struct {
	Name    string  `json:"name"`
	Request Request `json:"request"`
}

// Request is a saved request.
type Request struct {
	Auth   *Auth      `json:"auth,omitempty"`
	Method string     `json:"method"`
	Header []KeyValue `json:"header"`
	URL    URL        `json:"url"`
}

// KeyValue is a header or query entry.
type KeyValue struct {
	Key      string `json:"key"`
	Value    string `json:"value"`
	Type     string `json:"type,omitempty"`
	Disabled bool   `json:"disabled,omitempty"`
}

// URL is either a plain string or an object with raw and query. Exports
// always use the string form.
type URL struct {
	Raw   string
	Query []KeyValue
}

// MarshalJSON implements json.Marshaler.
func (u URL) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.Raw)
}

// UnmarshalJSON implements json.Unmarshaler.
func (u *URL) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &u.Raw)
	}
	var obj struct {
		Raw   string     `json:"raw"`
		Query []KeyValue `json:"query"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	u.Raw, u.Query = obj.Raw, obj.Query
	return nil
}

// Auth is a request's authorization block.
type Auth struct {
	Type   string     `json:"type"`
	Basic  Attributes `json:"basic,omitempty"`
	Bearer Attributes `json:"bearer,omitempty"`
	OAuth2 Attributes `json:"oauth2,omitempty"`
}

// Attributes holds auth parameters. v2.0 writes them as an object, v2.1
// as a list of {key, value, type}; both decode into the same map.
type Attributes map[string]string

// MarshalJSON writes the object form with sorted keys.
func (a Attributes) MarshalJSON() ([]byte, error) {
	if a == nil {
		return []byte("null"), nil
	}
	keys := make([]string, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, _ := json.Marshal(k)
		vb, _ := json.Marshal(a[k])
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *Attributes) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	out := Attributes{}
	switch {
	case bytes.Equal(data, []byte("null")):
		*a = nil
		return nil
	case len(data) > 0 && data[0] == '[':
		var list []struct {
			Key   string `json:"key"`
			Value any    `json:"value"`
		}
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		for _, kv := range list {
			out[kv.Key] = scalar(kv.Value)
		}
	default:
		var obj map[string]any
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		for k, v := range obj {
			out[k] = scalar(v)
		}
	}
	*a = out
	return nil
}

func scalar(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
