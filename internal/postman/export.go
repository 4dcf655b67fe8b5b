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

package postman

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/tombee/apiconnect/internal/connector"
)

// Export renders connectors as a v2.0 collection.
func Export(conns []*connector.Connector) ([]byte, error) {
	col := Collection{
		Info: &Info{
			Name:        "Exported API connectors",
			Version:     "v2.0.0",
			Description: "This group of API connectors has been exported from apiconnect",
			Schema:      SchemaV2,
		},
		Item: make([]Item, 0, len(conns)),
	}
	for _, c := range conns {
		reqType := c.RequestType
		if reqType == "" {
			reqType = connector.RequestGet
		}
		col.Item = append(col.Item, Item{
			Name: c.Name,
			Request: Request{
				Auth:   ExportAuth(c),
				Method: string(reqType),
				Header: ExportHeaders(c),
				URL:    URL{Raw: ExportURL(c)},
			},
		})
	}
	return json.MarshalIndent(col, "", "    ")
}

// ExportURL is the connector URL with static segments appended and static
// parameters as a query-escaped query string.
func ExportURL(c *connector.Connector) string {
	var b strings.Builder
	b.WriteString(c.URL)
	for _, seg := range c.URLSegments {
		b.WriteString("/")
		b.WriteString(seg.StaticValue)
	}

	params := staticRules(c.Parameters)
	for i, kv := range params {
		if i == 0 {
			b.WriteString("?")
		} else {
			b.WriteString("&")
		}
		b.WriteString(url.QueryEscape(kv.Key))
		b.WriteString("=")
		b.WriteString(url.QueryEscape(kv.Value))
	}
	return b.String()
}

// ExportHeaders lists the static header values. The authorization header
// is carried by the auth block instead.
func ExportHeaders(c *connector.Connector) []KeyValue {
	headers := staticRules(c.Headers)
	for i := range headers {
		headers[i].Type = "text"
	}
	return headers
}

// ExportAuth renders the connector's auth block.
func ExportAuth(c *connector.Connector) *Auth {
	a := c.Auth
	switch a.Type {
	case connector.AuthOAuth2:
		return &Auth{Type: "oauth2", OAuth2: Attributes{
			"clientSecret":   a.OAuth.ClientSecret,
			"clientId":       a.OAuth.ClientID,
			"accessTokenUrl": a.OAuth.AccessTokenURL,
			"grant_type":     "client_credentials",
			"addTokenTo":     "header",
		}}
	case connector.AuthBearer:
		return &Auth{Type: "bearer", Bearer: Attributes{"token": a.BearerToken}}
	case connector.AuthBasic:
		return &Auth{Type: "basic", Basic: Attributes{"username": a.Username, "password": a.Password}}
	}
	return &Auth{Type: "noauth"}
}

// staticRules resolves rules without an event record. A repeated key keeps
// its first position and its last value.
func staticRules(rules []connector.Rule) []KeyValue {
	out := []KeyValue{}
	index := make(map[string]int, len(rules))
	for _, r := range rules {
		if i, ok := index[r.Key]; ok {
			out[i].Value = r.StaticValue
			continue
		}
		index[r.Key] = len(out)
		out = append(out, KeyValue{Key: r.Key, Value: r.StaticValue})
	}
	return out
}
