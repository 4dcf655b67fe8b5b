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
	"fmt"
	"net/url"
	"strings"
)

// Validate checks that c can be sent. The URL must be absolute http(s)
// with a host.
func Validate(c *Connector) error {
	if strings.TrimSpace(c.Name) == "" {
		return &ConfigValidationError{Field: "name", Reason: "name is required"}
	}
	if err := validateURL(c.URL); err != nil {
		return err
	}

	if _, err := ParseRequestMethod(string(c.RequestMethod)); err != nil {
		return &ConfigValidationError{Field: "request_method", Reason: err.Error()}
	}
	if _, err := ParseRequestType(string(c.RequestType)); err != nil {
		return &ConfigValidationError{Field: "request_type", Reason: err.Error()}
	}
	if _, err := ParseAuthType(string(c.Auth.Type)); err != nil {
		return &ConfigValidationError{Field: "auth.type", Reason: err.Error()}
	}
	state, err := ParseState(string(c.State))
	if err != nil {
		return &ConfigValidationError{Field: "state", Reason: err.Error()}
	}
	if state == StateCreate && c.TargetModel == "" {
		return &ConfigValidationError{Field: "target_model", Reason: "target_model is required when state is create"}
	}
	if c.Timeout < 0 {
		return &ConfigValidationError{Field: "timeout", Reason: "timeout must be non-negative"}
	}

	for i, r := range c.Headers {
		if r.Key == "" {
			return &ConfigValidationError{Field: fmt.Sprintf("headers[%d]", i), Reason: "key is required"}
		}
	}
	for i, r := range c.Parameters {
		if r.Key == "" {
			return &ConfigValidationError{Field: fmt.Sprintf("parameters[%d]", i), Reason: "key is required"}
		}
	}
	for i, m := range c.ResponseMappings {
		if m.Field == "" {
			return &ConfigValidationError{Field: fmt.Sprintf("response_mappings[%d]", i), Reason: "field is required"}
		}
		if m.TakeFrom && m.DynamicValue == "" {
			return &ConfigValidationError{Field: fmt.Sprintf("response_mappings[%d]", i), Reason: "dynamic_value is required when take_from is set"}
		}
	}
	return nil
}

func validateURL(raw string) error {
	if raw == "" {
		return &ConfigValidationError{Field: "url", Reason: "url is required"}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return &ConfigValidationError{Field: "url", Reason: "the url is malformed"}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &ConfigValidationError{Field: "url", Reason: fmt.Sprintf("scheme must be http or https, got %q", u.Scheme)}
	}
	if u.Host == "" || u.Hostname() == "" {
		return &ConfigValidationError{Field: "url", Reason: "the url has no host"}
	}
	return nil
}
