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

package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/tombee/apiconnect/internal/connector"
	"github.com/tombee/apiconnect/internal/connector/transport"
	"github.com/tombee/apiconnect/pkg/errors"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error      string `json:"error"`
	Suggestion string `json:"suggestion,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to write JSON response", slog.Any("error", err))
	}
}

func writeError(w http.ResponseWriter, err error) {
	body := errorBody{Error: err.Error()}
	if uv, ok := errors.AsUserVisible(err); ok {
		body.Error = uv.UserMessage()
		body.Suggestion = uv.Suggestion()
	}
	writeJSON(w, statusFor(err), body)
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	var (
		notFound   *errors.NotFoundError
		validation *errors.ValidationError
		conflict   *errors.ConflictError
		config     *connector.ConfigValidationError
		missing    *connector.MissingFieldError
		upstream   *connector.UpstreamStatusError
		malformed  *connector.MalformedResponseError
		keyMissing *connector.ResponseKeyNotFoundError
		transErr   *transport.TransportError
	)
	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &validation), errors.As(err, &config), errors.As(err, &missing):
		return http.StatusBadRequest
	case errors.As(err, &conflict):
		return http.StatusConflict
	case errors.As(err, &upstream), errors.As(err, &malformed), errors.As(err, &keyMissing), errors.As(err, &transErr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
