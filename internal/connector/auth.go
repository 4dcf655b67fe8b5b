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
	"encoding/base64"
	"fmt"
	"maps"
)

// ApplyAuth returns a copy of headers with the Authorization header for
// auth. Bearer and OAuth2 both send the stored bearer token; an empty token
// is sent as is and left for upstream to reject.
func ApplyAuth(auth AuthConfig, headers map[string]string) map[string]string {
	out := maps.Clone(headers)
	if out == nil {
		out = make(map[string]string, 1)
	}

	switch auth.Type {
	case AuthBearer, AuthOAuth2:
		out["Authorization"] = "Bearer " + auth.BearerToken
	case AuthBasic:
		credentials := fmt.Sprintf("%s:%s", auth.Username, auth.Password)
		out["Authorization"] = "Basic " + base64.StdEncoding.EncodeToString([]byte(credentials))
	}
	return out
}

// SecretExpander expands secret references in credential values.
type SecretExpander interface {
	Expand(ctx context.Context, value string) (string, error)
}

// expandAuth returns auth with every credential expanded.
func expandAuth(ctx context.Context, exp SecretExpander, auth AuthConfig) (AuthConfig, error) {
	if exp == nil {
		return auth, nil
	}
	fields := []*string{
		&auth.BearerToken,
		&auth.Username,
		&auth.Password,
		&auth.OAuth.ClientID,
		&auth.OAuth.ClientSecret,
	}
	for _, f := range fields {
		v, err := exp.Expand(ctx, *f)
		if err != nil {
			return AuthConfig{}, fmt.Errorf("failed to expand credential: %w", err)
		}
		*f = v
	}
	return auth, nil
}

// ExpandCredentials returns a copy of c with auth credentials expanded.
// The OAuth flow uses it before talking to the token endpoint.
func ExpandCredentials(ctx context.Context, exp SecretExpander, c *Connector) (*Connector, error) {
	auth, err := expandAuth(ctx, exp, c.Auth)
	if err != nil {
		return nil, err
	}
	out := c.Clone()
	out.Auth = auth
	return out, nil
}
