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

package transport

import (
	"fmt"
)

// ErrorType categorizes transport failures.
type ErrorType string

const (
	// ErrorTypeConnection indicates the server could not be reached
	ErrorTypeConnection ErrorType = "connection"

	// ErrorTypeTimeout indicates request timeout or deadline exceeded
	ErrorTypeTimeout ErrorType = "timeout"

	// ErrorTypeInvalidReq indicates request validation error (invalid method, URL, etc.)
	ErrorTypeInvalidReq ErrorType = "invalid_request"

	// ErrorTypeCancelled indicates context was cancelled
	ErrorTypeCancelled ErrorType = "cancelled"
)

// TransportError represents a failure to complete the HTTP exchange.
type TransportError struct {
	// Type classifies the error
	Type ErrorType

	// Message is a user-facing error message with credentials redacted
	Message string

	// Cause is the underlying error
	// May contain sensitive data - use Message for user-facing errors
	Cause error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for error chain inspection.
func (e *TransportError) Unwrap() error {
	return e.Cause
}

// IsType returns true if the error is of the given type.
func (e *TransportError) IsType(t ErrorType) bool {
	return e.Type == t
}

// IsUserVisible implements pkg/errors.UserVisibleError.
func (e *TransportError) IsUserVisible() bool { return true }

// UserMessage implements pkg/errors.UserVisibleError.
func (e *TransportError) UserMessage() string { return e.Error() }

// Suggestion implements pkg/errors.UserVisibleError.
func (e *TransportError) Suggestion() string {
	switch e.Type {
	case ErrorTypeTimeout:
		return "The endpoint did not answer in time; raise the connector timeout or check the service"
	case ErrorTypeInvalidReq:
		return "Check the connector URL and request type"
	case ErrorTypeConnection:
		return "Check the connector URL and network connectivity"
	}
	return ""
}
