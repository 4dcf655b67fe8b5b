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
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/tombee/apiconnect/internal/connector"
	"github.com/tombee/apiconnect/internal/store"
	"github.com/tombee/apiconnect/pkg/errors"
)

// Import parses a collection into connectors. Each item becomes a REST
// connector with static header and parameter rules. Auth types other than
// basic, bearer and oauth2 become none.
func Import(data []byte) ([]*connector.Connector, error) {
	var col Collection
	if err := json.Unmarshal(data, &col); err != nil {
		return nil, &errors.ValidationError{
			Field:      "collection",
			Message:    "Invalid POSTMAN Collection. Malformed JSON: " + err.Error(),
			Suggestion: "export the collection from Postman as Collection v2.0 or v2.1",
		}
	}

	if col.Item == nil {
		return nil, &errors.ValidationError{Field: "item", Message: "Invalid POSTMAN Collection. No item list"}
	}

	out := make([]*connector.Connector, 0, len(col.Item))
	seen := make(map[string]bool, len(col.Item))
	for i, item := range col.Item {
		c, err := convertItem(item)
		if err != nil {
			return nil, errors.Wrapf(err, "item %d (%s)", i, item.Name)
		}
		if seen[c.Name] {
			return nil, duplicateName(c.Name)
		}
		seen[c.Name] = true
		out = append(out, c)
	}
	return out, nil
}

// ImportInto imports data and creates the connectors in s. Nothing is
// created when any name is already taken.
func ImportInto(ctx context.Context, s store.Store, data []byte) ([]*connector.Connector, error) {
	conns, err := Import(data)
	if err != nil {
		return nil, err
	}
	for _, c := range conns {
		_, err := s.GetByName(ctx, c.Name)
		if err == nil {
			return nil, duplicateName(c.Name)
		}
		var nf *errors.NotFoundError
		if !errors.As(err, &nf) {
			return nil, err
		}
	}
	for _, c := range conns {
		if err := s.Create(ctx, c); err != nil {
			return nil, err
		}
	}
	return conns, nil
}

func duplicateName(name string) error {
	return &errors.ValidationError{
		Field:      "name",
		Message:    fmt.Sprintf("A postman API with same name already exists: %s", name),
		Suggestion: "rename the request in the collection or delete the existing connector",
	}
}

func convertItem(item Item) (*connector.Connector, error) {
	if strings.TrimSpace(item.Name) == "" {
		return nil, &errors.ValidationError{Field: "name", Message: "request name is required"}
	}
	reqType, err := connector.ParseRequestType(item.Request.Method)
	if err != nil {
		return nil, &errors.ValidationError{Field: "method", Message: err.Error()}
	}

	base, rawQuery, _ := strings.Cut(item.Request.URL.Raw, "?")
	c := &connector.Connector{
		Name:          item.Name,
		URL:           base,
		RequestMethod: connector.MethodREST,
		RequestType:   reqType,
		Auth:          convertAuth(item.Request.Auth),
	}

	for _, h := range item.Request.Header {
		if h.Disabled || h.Key == "" {
			continue
		}
		c.Headers = append(c.Headers, connector.Rule{Key: h.Key, StaticValue: h.Value})
	}

	query := item.Request.URL.Query
	if query == nil && rawQuery != "" {
		query = parseRawQuery(rawQuery)
	}
	for _, q := range query {
		if q.Disabled || q.Key == "" {
			continue
		}
		c.Parameters = append(c.Parameters, connector.Rule{Key: q.Key, StaticValue: q.Value})
	}

	c.ApplyDefaults()
	return c, nil
}

// parseRawQuery keeps the order of a raw query string.
func parseRawQuery(raw string) []KeyValue {
	var out []KeyValue
	for _, part := range strings.Split(raw, "&") {
		if part == "" {
			continue
		}
		k, v, _ := strings.Cut(part, "=")
		if uk, err := url.QueryUnescape(k); err == nil {
			k = uk
		}
		if uv, err := url.QueryUnescape(v); err == nil {
			v = uv
		}
		out = append(out, KeyValue{Key: k, Value: v})
	}
	return out
}

func convertAuth(a *Auth) connector.AuthConfig {
	if a == nil {
		return connector.AuthConfig{Type: connector.AuthNone}
	}
	switch a.Type {
	case "basic":
		return connector.AuthConfig{
			Type:     connector.AuthBasic,
			Username: a.Basic["username"],
			Password: a.Basic["password"],
		}
	case "bearer":
		return connector.AuthConfig{Type: connector.AuthBearer, BearerToken: a.Bearer["token"]}
	case "oauth2":
		authURL := a.OAuth2["authUrl"]
		if authURL == "" {
			authURL = a.OAuth2["accessTokenUrl"]
		}
		var scopes []string
		if s := strings.TrimSpace(a.OAuth2["scope"]); s != "" {
			scopes = strings.Fields(s)
		}
		return connector.AuthConfig{
			Type:        connector.AuthOAuth2,
			BearerToken: a.OAuth2["accessToken"],
			OAuth: connector.OAuthConfig{
				AuthorizationURL: authURL,
				ClientID:         a.OAuth2["clientId"],
				ClientSecret:     a.OAuth2["clientSecret"],
				AccessTokenURL:   a.OAuth2["accessTokenUrl"],
				Scopes:           scopes,
			},
		}
	}
	return connector.AuthConfig{Type: connector.AuthNone}
}
