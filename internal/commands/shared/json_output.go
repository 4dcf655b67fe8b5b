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

package shared

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/tombee/apiconnect/internal/connector"
	pkgerrors "github.com/tombee/apiconnect/pkg/errors"
)

// Error codes for structured JSON output
const (
	ErrorCodeInvalidConfig    = "E001" // Invalid config or catalog
	ErrorCodeInvalidConnector = "E002" // Connector failed validation
	ErrorCodeMissingField     = "E003" // Event record lacks a field
	ErrorCodeNotFound         = "E101" // Connector or record not found
	ErrorCodeUpstream         = "E201" // Remote API failed or answered badly
	ErrorCodeOAuth            = "E202" // Token exchange failed
	ErrorCodeInternal         = "E901" // Anything else
)

// JSONResponse is the base envelope for all JSON output
type JSONResponse struct {
	Version string `json:"@version"`
	Command string `json:"command"`
	Success bool   `json:"success"`
}

// JSONError is a structured error with code, message and suggestion.
type JSONError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

// NewJSONResponse returns a successful envelope for command.
func NewJSONResponse(command string) JSONResponse {
	return JSONResponse{Version: "1.0", Command: command, Success: true}
}

// EmitJSON writes v as indented JSON.
func EmitJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// EmitJSONError writes a failed envelope carrying err.
func EmitJSONError(w io.Writer, command string, err error) error {
	type errorResponse struct {
		JSONResponse
		Errors []JSONError `json:"errors"`
	}
	resp := errorResponse{
		JSONResponse: JSONResponse{Version: "1.0", Command: command},
		Errors:       []JSONError{ToJSONError(err)},
	}
	return EmitJSON(w, resp)
}

// ToJSONError converts err using the user-visible message when present.
func ToJSONError(err error) JSONError {
	je := JSONError{Code: errorCode(err), Message: err.Error()}
	if uv, ok := pkgerrors.AsUserVisible(err); ok {
		je.Suggestion = uv.Suggestion()
	}
	return je
}

func errorCode(err error) string {
	var (
		notFound   *pkgerrors.NotFoundError
		validation *pkgerrors.ValidationError
		config     *pkgerrors.ConfigError
		invalid    *connector.ConfigValidationError
		missing    *connector.MissingFieldError
		oauthErr   *connector.OAuthExchangeError
	)
	switch {
	case pkgerrors.As(err, &notFound):
		return ErrorCodeNotFound
	case pkgerrors.As(err, &validation), pkgerrors.As(err, &config):
		return ErrorCodeInvalidConfig
	case pkgerrors.As(err, &invalid):
		return ErrorCodeInvalidConnector
	case pkgerrors.As(err, &missing):
		return ErrorCodeMissingField
	case pkgerrors.As(err, &oauthErr):
		return ErrorCodeOAuth
	}
	switch t := connector.ErrorType(err); {
	case t == "upstream_status", t == "malformed_response", t == "response_key_not_found", strings.HasPrefix(t, "transport_"):
		return ErrorCodeUpstream
	}
	return ErrorCodeInternal
}
