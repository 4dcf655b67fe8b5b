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
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTransport(t *testing.T, cfg *HTTPTransportConfig) *HTTPTransport {
	t.Helper()
	tr, err := NewHTTPTransport(cfg)
	require.NoError(t, err)
	return tr
}

func TestHTTPTransport_Execute(t *testing.T) {
	var gotMethod, gotQuery, gotHeader, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotQuery = r.URL.RawQuery
		gotHeader = r.Header.Get("X-Api-Key")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	resp, err := newTransport(t, nil).Execute(context.Background(), &Request{
		Method:  "POST",
		URL:     server.URL + "/items",
		Headers: map[string]string{"X-Api-Key": "k"},
		Query:   map[string]string{"q": "a b", "page": "2"},
		Body:    []byte(`{"query":"{x}"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"ok":true}`, string(resp.Body))
	assert.Equal(t, "POST", gotMethod)
	assert.Equal(t, "page=2&q=a+b", gotQuery)
	assert.Equal(t, "k", gotHeader)
	assert.Equal(t, `{"query":"{x}"}`, gotBody)
}

func TestHTTPTransport_NoRetryOnServerError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	resp, err := newTransport(t, nil).Execute(context.Background(), &Request{Method: "GET", URL: server.URL})
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPTransport_InvalidRequest(t *testing.T) {
	tr := newTransport(t, nil)
	for _, req := range []*Request{
		nil,
		{Method: "TRACE", URL: "http://example.com"},
		{Method: "GET"},
	} {
		_, err := tr.Execute(context.Background(), req)
		var te *TransportError
		require.True(t, errors.As(err, &te))
		assert.True(t, te.IsType(ErrorTypeInvalidReq))
	}
}

func TestHTTPTransport_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	_, err := newTransport(t, nil).Execute(context.Background(), &Request{
		Method:  "GET",
		URL:     server.URL,
		Timeout: 50 * time.Millisecond,
	})
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, ErrorTypeTimeout, te.Type)
}

func TestHTTPTransport_RequestTimeoutOverridesTransport(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(300 * time.Millisecond):
			_, _ = w.Write([]byte(`{"ok":true}`))
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	tr := newTransport(t, &HTTPTransportConfig{Timeout: 100 * time.Millisecond})

	resp, err := tr.Execute(context.Background(), &Request{
		Method:  "GET",
		URL:     server.URL,
		Timeout: 2 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Without a request timeout the transport timeout applies.
	_, err = tr.Execute(context.Background(), &Request{Method: "GET", URL: server.URL})
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, ErrorTypeTimeout, te.Type)
}

func TestHTTPTransport_ConnectionError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := newTransport(t, nil).Execute(context.Background(), &Request{Method: "GET", URL: url})
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, ErrorTypeConnection, te.Type)
	assert.NotEmpty(t, te.Suggestion())
}

type countingLimiter struct{ n int }

func (c *countingLimiter) Wait(ctx context.Context) error {
	c.n++
	return nil
}

func TestHTTPTransport_RateLimiter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	tr := newTransport(t, nil)
	lim := &countingLimiter{}
	tr.SetRateLimiter(lim)
	_, err := tr.Execute(context.Background(), &Request{Method: "GET", URL: server.URL})
	require.NoError(t, err)
	assert.Equal(t, 1, lim.n)
}

func TestHTTPTransport_RateLimiterCancelled(t *testing.T) {
	tr := newTransport(t, &HTTPTransportConfig{RequestsPerSecond: 0.001, Burst: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tr.Execute(ctx, &Request{Method: "GET", URL: "http://127.0.0.1:1"})
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, ErrorTypeCancelled, te.Type)
}

func TestHTTPTransportConfig_Validate(t *testing.T) {
	assert.Error(t, (&HTTPTransportConfig{Timeout: -1}).Validate())
	assert.Error(t, (&HTTPTransportConfig{RequestsPerSecond: -1}).Validate())
	assert.NoError(t, (&HTTPTransportConfig{}).Validate())
}

func TestRequestURL(t *testing.T) {
	u, err := RequestURL(&Request{URL: "http://h/a/b"})
	require.NoError(t, err)
	assert.Equal(t, "http://h/a/b", u)

	u, err = RequestURL(&Request{URL: "http://h/a?x=1", Query: map[string]string{"y": "2"}})
	require.NoError(t, err)
	assert.Equal(t, "http://h/a?x=1&y=2", u)
}
