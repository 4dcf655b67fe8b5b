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
	"strings"
)

// Pipeline phases, in execution order.
const (
	PhaseValidate = "validate"
	PhaseBuild    = "build"
	PhaseExecute  = "execute"
	PhaseFlatten  = "flatten"
	PhaseMap      = "map"
	PhaseSink     = "sink"
)

// ConfigValidationError reports a connector configuration that cannot be
// used, such as a malformed URL.
type ConfigValidationError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ConfigValidationError) Error() string {
	return fmt.Sprintf("invalid connector %s: %s", e.Field, e.Reason)
}

// IsUserVisible implements pkg/errors.UserVisibleError.
func (e *ConfigValidationError) IsUserVisible() bool { return true }

// UserMessage implements pkg/errors.UserVisibleError.
func (e *ConfigValidationError) UserMessage() string { return e.Error() }

// Suggestion implements pkg/errors.UserVisibleError.
func (e *ConfigValidationError) Suggestion() string {
	if e.Field == "url" {
		return "Use an absolute http:// or https:// URL with a host"
	}
	return fmt.Sprintf("Fix the %s setting of the connector", e.Field)
}

// MissingFieldError reports a dynamic value naming a field the event
// record does not have.
type MissingFieldError struct {
	Field      string
	EntityType string
}

// Error implements the error interface.
func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("field %q does not exist on %s", e.Field, e.EntityType)
}

// IsUserVisible implements pkg/errors.UserVisibleError.
func (e *MissingFieldError) IsUserVisible() bool { return true }

// UserMessage implements pkg/errors.UserVisibleError.
func (e *MissingFieldError) UserMessage() string { return e.Error() }

// Suggestion implements pkg/errors.UserVisibleError.
func (e *MissingFieldError) Suggestion() string {
	return fmt.Sprintf("Point the dynamic value at a field declared for %s", e.EntityType)
}

// UpstreamStatusError reports a response status other than 200.
type UpstreamStatusError struct {
	StatusCode int

	// Body is a short excerpt of the response body
	Body string
}

// Error implements the error interface.
func (e *UpstreamStatusError) Error() string {
	return fmt.Sprintf("invalid request response code %d", e.StatusCode)
}

// IsUserVisible implements pkg/errors.UserVisibleError.
func (e *UpstreamStatusError) IsUserVisible() bool { return true }

// UserMessage implements pkg/errors.UserVisibleError.
func (e *UpstreamStatusError) UserMessage() string {
	if e.Body != "" {
		return fmt.Sprintf("%s: %s", e.Error(), e.Body)
	}
	return e.Error()
}

// Suggestion implements pkg/errors.UserVisibleError.
func (e *UpstreamStatusError) Suggestion() string {
	switch {
	case e.StatusCode == 401 || e.StatusCode == 403:
		return "Check the connector credentials; OAuth2 connectors may need a fresh token"
	case e.StatusCode == 404:
		return "Check the connector URL and URL segments"
	case e.StatusCode >= 500:
		return "The upstream service failed; try again later"
	}
	return "Check the request headers, parameters and body"
}

// MalformedResponseError reports a 200 response whose body is not a JSON
// object the flattener can handle.
type MalformedResponseError struct {
	Reason string

	// Body is a short excerpt of the response body
	Body string
}

// Error implements the error interface.
func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("invalid response: %s", e.Reason)
}

// IsUserVisible implements pkg/errors.UserVisibleError.
func (e *MalformedResponseError) IsUserVisible() bool { return true }

// UserMessage implements pkg/errors.UserVisibleError.
func (e *MalformedResponseError) UserMessage() string {
	if e.Body != "" {
		return fmt.Sprintf("%s\n\nCurrent response\n%s", e.Error(), e.Body)
	}
	return e.Error()
}

// Suggestion implements pkg/errors.UserVisibleError.
func (e *MalformedResponseError) Suggestion() string {
	return "Expecting the response in JSON; check the request"
}

// ResponseKeyNotFoundError reports a mapping that names a key absent from
// the flattened response.
type ResponseKeyNotFoundError struct {
	Key string
}

// Error implements the error interface.
func (e *ResponseKeyNotFoundError) Error() string {
	return fmt.Sprintf("key not found in response object: %s", e.Key)
}

// IsUserVisible implements pkg/errors.UserVisibleError.
func (e *ResponseKeyNotFoundError) IsUserVisible() bool { return true }

// UserMessage implements pkg/errors.UserVisibleError.
func (e *ResponseKeyNotFoundError) UserMessage() string { return e.Error() }

// Suggestion implements pkg/errors.UserVisibleError.
func (e *ResponseKeyNotFoundError) Suggestion() string {
	return "Send a preview request and pick a key from the stored response"
}

// OAuthExchangeError reports a failed authorization code or client
// credentials token request.
type OAuthExchangeError struct {
	ConnectorID string
	Reason      string
	Cause       error
}

// Error implements the error interface.
func (e *OAuthExchangeError) Error() string {
	msg := fmt.Sprintf("oauth2 token exchange failed for connector %s: %s", e.ConnectorID, e.Reason)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *OAuthExchangeError) Unwrap() error { return e.Cause }

// IsUserVisible implements pkg/errors.UserVisibleError.
func (e *OAuthExchangeError) IsUserVisible() bool { return true }

// UserMessage implements pkg/errors.UserVisibleError.
func (e *OAuthExchangeError) UserMessage() string { return e.Error() }

// Suggestion implements pkg/errors.UserVisibleError.
func (e *OAuthExchangeError) Suggestion() string {
	return "Check the client id, client secret and access token URL, then restart the authorization"
}

// InvocationError records which phase of a send/trigger invocation failed.
type InvocationError struct {
	ConnectorID string
	Stage       string
	Err         error
}

// Error implements the error interface.
func (e *InvocationError) Error() string {
	return fmt.Sprintf("connector %s failed during %s: %v", e.ConnectorID, e.Stage, e.Err)
}

// Unwrap returns the phase error.
func (e *InvocationError) Unwrap() error { return e.Err }

// Phase implements pkg/errors.PhaseError.
func (e *InvocationError) Phase() string { return e.Stage }

// excerpt trims a response body for inclusion in an error.
func excerpt(body []byte) string {
	const max = 500
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
