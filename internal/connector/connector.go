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

// Package connector builds outbound HTTP/GraphQL requests from declarative
// connector configuration, executes them, and maps the JSON response back
// into entity records.
//
// A connector invocation runs in two explicit phases. SendRequest builds the
// request, executes it, flattens the JSON body and stores it on the
// connector. TriggerResponse maps the stored response to field values and
// applies them to a record (create, update or script). Callers may stop after
// SendRequest to preview a response.
package connector

import (
	"fmt"
	"strings"
	"time"

	"github.com/tombee/apiconnect/internal/record"
)

// RequestMethod selects between plain REST and GraphQL-over-HTTP.
type RequestMethod string

const (
	MethodREST    RequestMethod = "REST"
	MethodGraphQL RequestMethod = "GRAPHQL"
)

// ParseRequestMethod accepts REST and GRAPHQL in any case, plus the
// "GRAPH QL" label.
func ParseRequestMethod(s string) (RequestMethod, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "REST":
		return MethodREST, nil
	case "GRAPHQL", "GRAPH QL":
		return MethodGraphQL, nil
	}
	return "", fmt.Errorf("unknown request method %q", s)
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *RequestMethod) UnmarshalText(b []byte) error {
	v, err := ParseRequestMethod(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// RequestType is the HTTP verb.
type RequestType string

const (
	RequestGet    RequestType = "GET"
	RequestPut    RequestType = "PUT"
	RequestPost   RequestType = "POST"
	RequestPatch  RequestType = "PATCH"
	RequestDelete RequestType = "DELETE"
)

// ParseRequestType parses a verb; empty means GET.
func ParseRequestType(s string) (RequestType, error) {
	switch t := RequestType(strings.ToUpper(strings.TrimSpace(s))); t {
	case "":
		return RequestGet, nil
	case RequestGet, RequestPut, RequestPost, RequestPatch, RequestDelete:
		return t, nil
	}
	return "", fmt.Errorf("unknown request type %q", s)
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *RequestType) UnmarshalText(b []byte) error {
	v, err := ParseRequestType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// AuthType is the authorization scheme.
type AuthType string

const (
	AuthNone   AuthType = "none"
	AuthBearer AuthType = "bearer"
	AuthBasic  AuthType = "basic"
	AuthOAuth2 AuthType = "oauth2"
)

// ParseAuthType accepts scheme names and the "No Auth", "Bearer",
// "Basic Auth" and "O Auth 2" labels. Empty means none.
func ParseAuthType(s string) (AuthType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "noauth", "no auth":
		return AuthNone, nil
	case "bearer":
		return AuthBearer, nil
	case "basic", "basic auth":
		return AuthBasic, nil
	case "oauth2", "o auth 2":
		return AuthOAuth2, nil
	}
	return "", fmt.Errorf("unknown authorization %q", s)
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *AuthType) UnmarshalText(b []byte) error {
	v, err := ParseAuthType(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// State decides what TriggerResponse does with mapped values.
type State string

const (
	StateCode   State = "code"
	StateCreate State = "create"
	StateUpdate State = "update"
)

// ParseState accepts code, create, update and the object_create and
// object_write labels. Empty means update.
func ParseState(s string) (State, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "update", "object_write":
		return StateUpdate, nil
	case "create", "object_create":
		return StateCreate, nil
	case "code":
		return StateCode, nil
	}
	return "", fmt.Errorf("unknown state %q", s)
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(b []byte) error {
	v, err := ParseState(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Rule resolves one header, query parameter or URL segment. URL segment
// rules ignore Key.
type Rule struct {
	Key                 string `json:"key,omitempty" yaml:"key,omitempty"`
	StaticValue         string `json:"static_value,omitempty" yaml:"static_value,omitempty"`
	DynamicValue        string `json:"dynamic_value,omitempty" yaml:"dynamic_value,omitempty"`
	TakeFromEventRecord bool   `json:"take_from_event_record,omitempty" yaml:"take_from_event_record,omitempty"`
}

// ResponseKeyMapping sets one target field from a literal or from a key of
// the flattened response.
type ResponseKeyMapping struct {
	Field        string `json:"field" yaml:"field"`
	TakeFrom     bool   `json:"take_from,omitempty" yaml:"take_from,omitempty"`
	StaticValue  string `json:"static_value,omitempty" yaml:"static_value,omitempty"`
	DynamicValue string `json:"dynamic_value,omitempty" yaml:"dynamic_value,omitempty"`
}

// OAuthConfig holds the OAuth2 client settings.
type OAuthConfig struct {
	AuthorizationURL string   `json:"authorization_url,omitempty" yaml:"authorization_url,omitempty"`
	ClientID         string   `json:"client_id,omitempty" yaml:"client_id,omitempty"`
	ClientSecret     string   `json:"client_secret,omitempty" yaml:"client_secret,omitempty"`
	RedirectURI      string   `json:"redirect_uri,omitempty" yaml:"redirect_uri,omitempty"`
	AccessTokenURL   string   `json:"access_token_url,omitempty" yaml:"access_token_url,omitempty"`
	Scopes           []string `json:"scopes,omitempty" yaml:"scopes,omitempty"`
}

// AuthConfig holds the authorization scheme and its credentials.
// Credential fields may reference secrets as ${NAME} or ${keychain:NAME}.
type AuthConfig struct {
	Type        AuthType    `json:"type,omitempty" yaml:"type,omitempty"`
	BearerToken string      `json:"bearer_token,omitempty" yaml:"bearer_token,omitempty"`
	Username    string      `json:"username,omitempty" yaml:"username,omitempty"`
	Password    string      `json:"password,omitempty" yaml:"password,omitempty"`
	OAuth       OAuthConfig `json:"oauth,omitempty" yaml:"oauth,omitempty"`
}

// Connector is one configured outbound request plus what to do with its
// response.
type Connector struct {
	ID            string        `json:"id" yaml:"id"`
	Name          string        `json:"name" yaml:"name"`
	URL           string        `json:"url" yaml:"url"`
	RequestMethod RequestMethod `json:"request_method,omitempty" yaml:"request_method,omitempty"`
	RequestType   RequestType   `json:"request_type,omitempty" yaml:"request_type,omitempty"`
	RequestBody   string        `json:"request_body,omitempty" yaml:"request_body,omitempty"`
	Auth          AuthConfig    `json:"auth,omitempty" yaml:"auth,omitempty"`

	Headers     []Rule `json:"headers,omitempty" yaml:"headers,omitempty"`
	Parameters  []Rule `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	URLSegments []Rule `json:"url_segments,omitempty" yaml:"url_segments,omitempty"`

	ResponseMappings []ResponseKeyMapping `json:"response_mappings,omitempty" yaml:"response_mappings,omitempty"`
	State            State                `json:"state,omitempty" yaml:"state,omitempty"`
	TargetModel      string               `json:"target_model,omitempty" yaml:"target_model,omitempty"`
	LinkField        string               `json:"link_field,omitempty" yaml:"link_field,omitempty"`
	Code             string               `json:"code,omitempty" yaml:"code,omitempty"`

	// ResponseTransform is a jq expression applied to the decoded body
	// before flattening.
	ResponseTransform string `json:"response_transform,omitempty" yaml:"response_transform,omitempty"`

	// Timeout overrides the transport timeout when positive.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// Response is the last flattened response as indented JSON.
	Response string `json:"response,omitempty" yaml:"-"`

	// ResponseEventRecord points at the record that last triggered a send.
	ResponseEventRecord *record.Ref `json:"response_event_record,omitempty" yaml:"-"`
}

// ApplyDefaults fills the zero values of enum fields.
func (c *Connector) ApplyDefaults() {
	if c.RequestMethod == "" {
		c.RequestMethod = MethodREST
	}
	if c.RequestType == "" {
		c.RequestType = RequestGet
	}
	if c.Auth.Type == "" {
		c.Auth.Type = AuthNone
	}
	if c.State == "" {
		c.State = StateUpdate
	}
}

// Clone returns a copy that shares no slices with c.
func (c *Connector) Clone() *Connector {
	out := *c
	out.Headers = append([]Rule(nil), c.Headers...)
	out.Parameters = append([]Rule(nil), c.Parameters...)
	out.URLSegments = append([]Rule(nil), c.URLSegments...)
	out.ResponseMappings = append([]ResponseKeyMapping(nil), c.ResponseMappings...)
	out.Auth.OAuth.Scopes = append([]string(nil), c.Auth.OAuth.Scopes...)
	if c.ResponseEventRecord != nil {
		ref := *c.ResponseEventRecord
		out.ResponseEventRecord = &ref
	}
	return &out
}
