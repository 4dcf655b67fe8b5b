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
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/apiconnect/internal/record"
)

func newTestEngine(opts ...Option) *Engine {
	return NewEngine(nil, record.NewRegistry(), opts...)
}

func TestBuild_URLWithoutSegments(t *testing.T) {
	for _, u := range []string{"https://api.example.com", "https://api.example.com/widgets/", "http://h:8080/a?x=1"} {
		req, err := newTestEngine().Build(context.Background(), &Connector{URL: u}, nil)
		require.NoError(t, err)
		assert.Equal(t, u, req.URL)
	}
}

func TestBuild_URLSegmentsInOrder(t *testing.T) {
	values := []string{"v1", "42", "a b", "x/y"}
	c := &Connector{URL: "https://api.example.com/widgets"}
	for _, v := range values {
		c.URLSegments = append(c.URLSegments, Rule{StaticValue: v})
	}

	req, err := newTestEngine().Build(context.Background(), c, nil)
	require.NoError(t, err)
	assert.Equal(t, c.URL+"/"+strings.Join(values, "/"), req.URL)
}

func TestBuild_DynamicSegment(t *testing.T) {
	c := &Connector{
		URL: "https://api.example.com/users",
		URLSegments: []Rule{
			{StaticValue: "static", DynamicValue: "name", TakeFromEventRecord: true},
			{StaticValue: "orders"},
		},
	}
	ev := contact(map[string]any{"name": "ada"})

	req, err := newTestEngine().Build(context.Background(), c, ev)
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/users/ada/orders", req.URL)

	req, err = newTestEngine().Build(context.Background(), c, nil)
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/users/static/orders", req.URL)

	c.URLSegments[0].DynamicValue = "missing"
	_, err = newTestEngine().Build(context.Background(), c, ev)
	var mfe *MissingFieldError
	assert.ErrorAs(t, err, &mfe)
}

func TestBuild_HeadersAndParams(t *testing.T) {
	c := &Connector{
		URL:         "https://api.example.com",
		RequestType: RequestDelete,
		Timeout:     3 * time.Second,
		Auth:        AuthConfig{Type: AuthBearer, BearerToken: "${TOKEN}"},
		Headers: []Rule{
			{Key: "X-Key", StaticValue: "${API_KEY}"},
			{Key: "X-City", DynamicValue: "city", TakeFromEventRecord: true},
			{Key: "X-Dup", StaticValue: "first"},
			{Key: "X-Dup", StaticValue: "second"},
		},
		Parameters: []Rule{
			{Key: "q", StaticValue: "one"},
			{Key: "q", StaticValue: "two"},
			{Key: "name", DynamicValue: "name", TakeFromEventRecord: true},
		},
	}
	ev := contact(map[string]any{"name": "Ada", "city": "${TOKEN}"})
	e := newTestEngine(WithSecrets(mapExpander{"TOKEN": "t0k", "API_KEY": "k3y"}))

	req, err := e.Build(context.Background(), c, ev)
	require.NoError(t, err)
	assert.Equal(t, "DELETE", req.Method)
	assert.Equal(t, 3*time.Second, req.Timeout)
	assert.Equal(t, map[string]string{
		"X-Key":         "k3y",
		"X-City":        "${TOKEN}",
		"X-Dup":         "second",
		"Authorization": "Bearer t0k",
	}, req.Headers)
	assert.Equal(t, map[string]string{"q": "two", "name": "Ada"}, req.Query)
	assert.Empty(t, req.Body)
	assert.Equal(t, "${TOKEN}", c.Auth.BearerToken, "connector must not be mutated")
}

func TestBuild_AuthOverridesHeaderRule(t *testing.T) {
	c := &Connector{
		URL:     "https://api.example.com",
		Auth:    AuthConfig{Type: AuthBasic, Username: "u", Password: "p"},
		Headers: []Rule{{Key: "Authorization", StaticValue: "custom"}},
	}
	req, err := newTestEngine().Build(context.Background(), c, nil)
	require.NoError(t, err)
	assert.Equal(t, "Basic dTpw", req.Headers["Authorization"])
}

func TestBuild_GraphQL(t *testing.T) {
	for _, verb := range []RequestType{RequestGet, RequestPost, RequestPut} {
		c := &Connector{
			URL:           "https://api.example.com/graphql",
			RequestMethod: MethodGraphQL,
			RequestType:   verb,
			RequestBody:   `{ widgets { id "name" } }`,
		}
		req, err := newTestEngine().Build(context.Background(), c, nil)
		require.NoError(t, err)
		assert.Equal(t, string(verb), req.Method)
		assert.JSONEq(t, `{"query":"{ widgets { id \"name\" } }"}`, string(req.Body))
		assert.Equal(t, "application/json", req.Headers["Content-Type"])
	}
}

func TestBuild_GraphQLKeepsConfiguredContentType(t *testing.T) {
	c := &Connector{
		URL:           "https://api.example.com/graphql",
		RequestMethod: MethodGraphQL,
		RequestType:   RequestPost,
		RequestBody:   `{ widgets { id } }`,
		Headers:       []Rule{{Key: "content-type", StaticValue: "application/graphql+json"}},
	}
	req, err := newTestEngine().Build(context.Background(), c, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"content-type": "application/graphql+json"}, req.Headers)
}

func TestBuild_RejectsHeaderInjection(t *testing.T) {
	c := &Connector{
		URL:     "https://api.example.com",
		Headers: []Rule{{Key: "X-Name", DynamicValue: "name", TakeFromEventRecord: true}},
	}
	_, err := newTestEngine().Build(context.Background(), c, contact(map[string]any{"name": "a\r\nX-Evil: 1"}))
	var cve *ConfigValidationError
	require.ErrorAs(t, err, &cve)
	assert.Equal(t, "headers.X-Name", cve.Field)
}

func TestBuild_SecretExpansionFailure(t *testing.T) {
	c := &Connector{
		URL:  "https://api.example.com",
		Auth: AuthConfig{Type: AuthBearer, BearerToken: "${MISSING}"},
	}
	_, err := newTestEngine(WithSecrets(mapExpander{})).Build(context.Background(), c, nil)
	assert.Error(t, err)
}
