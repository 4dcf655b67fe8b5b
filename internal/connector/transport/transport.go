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

// Package transport executes single-shot HTTP requests for connectors.
//
// A transport issues exactly one request per call. It never retries and never
// interprets status codes: deciding what a 404 or a 500 means is left to the
// caller. Failures to reach the server at all are reported as TransportError.
package transport

import (
	"context"
	"time"
)

// Transport executes connector requests.
type Transport interface {
	// Execute sends a request and returns the response, whatever its status.
	// The context controls cancellation and deadlines.
	// Returns TransportError on failure.
	Execute(ctx context.Context, req *Request) (*Response, error)

	// SetRateLimiter configures rate limiting for this transport.
	SetRateLimiter(limiter RateLimiter)
}

// Request represents an outbound connector request.
type Request struct {
	// Method is the HTTP verb (GET, POST, PUT, PATCH, DELETE)
	Method string

	// URL is the full request URL without query parameters
	URL string

	// Headers are request headers
	Headers map[string]string

	// Query holds query parameters merged into URL at execution time
	Query map[string]string

	// Body is the request body
	// Optional, may be nil or empty slice
	Body []byte

	// Timeout overrides the transport timeout when positive
	Timeout time.Duration
}

// Response represents the upstream response.
type Response struct {
	// StatusCode is the HTTP status code
	StatusCode int

	// Headers contains response headers
	Headers map[string][]string

	// Body is the response body
	Body []byte
}

// RateLimiter provides rate limiting for transport requests.
// *rate.Limiter from golang.org/x/time/rate satisfies it.
type RateLimiter interface {
	// Wait blocks until a request is allowed under the rate limit.
	// Returns an error if the context is cancelled before the request can proceed.
	Wait(ctx context.Context) error
}
