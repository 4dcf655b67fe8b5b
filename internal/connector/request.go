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
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tombee/apiconnect/internal/connector/transport"
	"github.com/tombee/apiconnect/internal/record"
)

// Build assembles the request for c. URL segments are appended in order as
// "/" + value without escaping. Header and parameter rules are resolved in
// order and later duplicates win. Auth is applied last. A GraphQL request
// gets Content-Type application/json unless a header rule sets one. Build
// has no side effects.
func (e *Engine) Build(ctx context.Context, c *Connector, ev record.Record) (*transport.Request, error) {
	var sb strings.Builder
	sb.WriteString(c.URL)
	for _, seg := range c.URLSegments {
		v, err := ResolveRule(seg, ev)
		if err != nil {
			return nil, err
		}
		sb.WriteString("/")
		sb.WriteString(v)
	}

	headers := make(map[string]string, len(c.Headers)+2)
	for _, r := range c.Headers {
		v, err := ResolveRule(r, ev)
		if err != nil {
			return nil, err
		}
		if !r.TakeFromEventRecord || ev == nil {
			if v, err = e.expand(ctx, v); err != nil {
				return nil, err
			}
		}
		headers[r.Key] = v
	}

	auth, err := expandAuth(ctx, e.secrets, c.Auth)
	if err != nil {
		return nil, err
	}
	headers = ApplyAuth(auth, headers)

	params, err := resolveRules(c.Parameters, ev)
	if err != nil {
		return nil, err
	}

	var body []byte
	if c.RequestMethod == MethodGraphQL {
		body, err = json.Marshal(map[string]string{"query": c.RequestBody})
		if err != nil {
			return nil, fmt.Errorf("failed to encode graphql body: %w", err)
		}
		if !hasHeader(headers, "Content-Type") {
			headers["Content-Type"] = "application/json"
		}
	}

	for k, v := range headers {
		if strings.ContainsAny(k, "\r\n\x00") || strings.ContainsAny(v, "\r\n\x00") {
			return nil, &ConfigValidationError{
				Field:  "headers." + k,
				Reason: "header contains control characters",
			}
		}
	}

	method := c.RequestType
	if method == "" {
		method = RequestGet
	}

	return &transport.Request{
		Method:  string(method),
		URL:     sb.String(),
		Headers: headers,
		Query:   params,
		Body:    body,
		Timeout: c.Timeout,
	}, nil
}

func hasHeader(headers map[string]string, name string) bool {
	for k := range headers {
		if strings.EqualFold(k, name) {
			return true
		}
	}
	return false
}

func (e *Engine) expand(ctx context.Context, v string) (string, error) {
	if e.secrets == nil {
		return v, nil
	}
	out, err := e.secrets.Expand(ctx, v)
	if err != nil {
		return "", fmt.Errorf("failed to expand header value: %w", err)
	}
	return out, nil
}
