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
	"errors"
	"fmt"
	"io"
	"os"

	pkgerrors "github.com/tombee/apiconnect/pkg/errors"
)

// Exit codes
const (
	ExitSuccess       = 0
	ExitFailed        = 1
	ExitInvalidConfig = 2
	ExitNotFound      = 3
	ExitUpstream      = 4
)

// ExitError is an error that carries an exit code
type ExitError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ExitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Cause
}

// NewFailedError creates an error for a failed operation.
func NewFailedError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitFailed, Message: msg, Cause: cause}
}

// NewInvalidConfigError creates an error for invalid config or catalog files.
func NewInvalidConfigError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitInvalidConfig, Message: msg, Cause: cause}
}

// NewNotFoundError creates an error for missing connectors or records.
func NewNotFoundError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitNotFound, Message: msg, Cause: cause}
}

// NewUpstreamError creates an error for failures of the remote API.
func NewUpstreamError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitUpstream, Message: msg, Cause: cause}
}

// Classify wraps err in an ExitError whose code follows the error taxonomy.
func Classify(msg string, err error) *ExitError {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr
	}
	var (
		notFound   *pkgerrors.NotFoundError
		validation *pkgerrors.ValidationError
		config     *pkgerrors.ConfigError
	)
	switch {
	case errors.As(err, &notFound):
		return NewNotFoundError(msg, err)
	case errors.As(err, &validation), errors.As(err, &config):
		return NewInvalidConfigError(msg, err)
	}
	switch errorCode(err) {
	case ErrorCodeInvalidConnector:
		return NewInvalidConfigError(msg, err)
	case ErrorCodeUpstream:
		return NewUpstreamError(msg, err)
	}
	return NewFailedError(msg, err)
}

// HandleExitError prints err and exits with its code.
func HandleExitError(err error) {
	if err == nil {
		return
	}
	os.Exit(PrintError(os.Stderr, err))
}

// PrintError writes err and any suggestion to w and returns the exit code.
func PrintError(w io.Writer, err error) int {
	code := ExitFailed
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.Code
	}
	fmt.Fprintln(w, "Error:", err.Error())
	if uv, ok := pkgerrors.AsUserVisible(err); ok {
		if s := uv.Suggestion(); s != "" {
			fmt.Fprintf(w, "\nSuggestion: %s\n", s)
		}
	}
	return code
}
