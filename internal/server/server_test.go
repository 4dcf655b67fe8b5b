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
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/apiconnect/internal/connector"
	"github.com/tombee/apiconnect/internal/hook"
	"github.com/tombee/apiconnect/internal/log"
	"github.com/tombee/apiconnect/internal/record"
	"github.com/tombee/apiconnect/internal/record/memory"
	pkgerrors "github.com/tombee/apiconnect/pkg/errors"
)

type fakeRunner struct {
	ref   string
	ev    record.Record
	apply bool
	err   error
}

func (f *fakeRunner) Run(_ context.Context, ref string, ev record.Record, apply bool) (*connector.Connector, error) {
	f.ref, f.ev, f.apply = ref, ev, apply
	if f.err != nil {
		return nil, f.err
	}
	return &connector.Connector{ID: ref, Name: "Geocode", Response: `{"ok": true}`}, nil
}

type fixture struct {
	server   *Server
	hooks    *hook.Registry
	contacts *hook.Observed
	runner   *fakeRunner
	events   []hook.Event
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{hooks: hook.NewRegistry(), runner: &fakeRunner{}}
	f.contacts = hook.Observe(memory.New(record.Schema{Type: "contact", Fields: []string{"name", "city"}}), f.hooks, log.Discard())
	records := record.NewRegistry()
	require.NoError(t, records.Register(f.contacts))

	f.hooks.On(func(_ context.Context, ev hook.Event) error {
		f.events = append(f.events, ev)
		return nil
	}, hook.EventCreate, hook.EventWrite, hook.EventUnlink, hook.EventChange)

	opts = append([]Option{WithLogger(log.Discard())}, opts...)
	f.server = New(records, f.hooks, f.runner, opts...)
	return f
}

func (f *fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	w := httptest.NewRecorder()
	f.server.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestRecordLifecycle(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/records/contact", `{"name":"ada","city":"Paris"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	created := decode[recordView](t, w)
	assert.Equal(t, "contact", created.Type)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "Paris", created.Values["city"])

	w = f.do(t, http.MethodPatch, "/records/contact/"+created.ID, `{"city":"Lyon"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Lyon", decode[recordView](t, w).Values["city"])

	w = f.do(t, http.MethodGet, "/records/contact/"+created.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ada", decode[recordView](t, w).Values["name"])

	w = f.do(t, http.MethodDelete, "/records/contact/"+created.ID, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(t, http.MethodGet, "/records/contact/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	require.Len(t, f.events, 3)
	assert.Equal(t, hook.EventCreate, f.events[0].Kind)
	assert.Equal(t, hook.EventWrite, f.events[1].Kind)
	assert.Equal(t, []string{"city"}, f.events[1].Changed)
	assert.Equal(t, hook.EventUnlink, f.events[2].Kind)
}

func TestRecordErrors(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		method string
		target string
		body   string
		status int
	}{
		{"unknown type", http.MethodPost, "/records/invoice", `{}`, http.StatusNotFound},
		{"bad json", http.MethodPost, "/records/contact", `[1,2]`, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/records/contact", `{"email":"x"}`, http.StatusBadRequest},
		{"missing record", http.MethodPatch, "/records/contact/nope", `{"name":"x"}`, http.StatusNotFound},
		{"delete missing", http.MethodDelete, "/records/contact/nope", "", http.StatusNotFound},
		{"wrong method", http.MethodPut, "/records/contact/1", `{}`, http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, tt.method, tt.target, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestRecordErrorBodyHasSuggestion(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/records/contact", `{"email":"x"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decode[errorBody](t, w)
	assert.Contains(t, body.Error, "email")
}

func TestOnChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.contacts.Create(ctx, map[string]any{"name": "ada", "city": "paris"})
	require.NoError(t, err)

	// A listener that writes back, like a connector sink.
	f.hooks.On(func(ctx context.Context, ev hook.Event) error {
		city, _ := ev.Record.Values["city"].(string)
		_, err := f.contacts.Update(hook.Suppress(ctx), ev.Record.ID, map[string]any{"name": "seen " + city})
		return err
	}, hook.EventChange)
	f.events = nil

	w := f.do(t, http.MethodPost, "/records/contact/"+created.ID+"/onchange", `{"city":"lyon"}`)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[recordView](t, w)
	assert.Equal(t, "seen lyon", got.Values["name"])
	assert.Equal(t, "paris", got.Values["city"], "onchange values are not saved")

	require.NotEmpty(t, f.events)
	ev := f.events[0]
	assert.Equal(t, hook.EventChange, ev.Kind)
	assert.Equal(t, "lyon", ev.Record.Values["city"])
	assert.Equal(t, "paris", ev.OldValues["city"])
	assert.Equal(t, []string{"city"}, ev.Changed)
}

func TestOnChangeMissingRecord(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/records/contact/nope/onchange", `{}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSendPreview(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/connectors/geo/send", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "geo", f.runner.ref)
	assert.Nil(t, f.runner.ev)
	assert.False(t, f.runner.apply)

	c := decode[connector.Connector](t, w)
	assert.Equal(t, `{"ok": true}`, c.Response)
}

func TestSendWithRecordAndApply(t *testing.T) {
	f := newFixture(t)
	created, err := f.contacts.Create(context.Background(), map[string]any{"name": "ada"})
	require.NoError(t, err)

	w := f.do(t, http.MethodPost, "/connectors/Geocode/send?apply=true&record=contact:"+created.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, f.runner.apply)
	require.NotNil(t, f.runner.ev)
	assert.Equal(t, created.Ref(), f.runner.ev.Ref())
}

func TestSendErrors(t *testing.T) {
	tests := []struct {
		name   string
		target string
		err    error
		status int
	}{
		{"bad record ref", "/connectors/geo/send?record=contact", nil, http.StatusBadRequest},
		{"missing record", "/connectors/geo/send?record=contact:nope", nil, http.StatusNotFound},
		{"unknown connector", "/connectors/geo/send", &pkgerrors.NotFoundError{Resource: "connector", ID: "geo"}, http.StatusNotFound},
		{"upstream", "/connectors/geo/send", &connector.UpstreamStatusError{StatusCode: 500}, http.StatusBadGateway},
		{"invalid", "/connectors/geo/send", &connector.ConfigValidationError{Field: "url", Reason: "bad"}, http.StatusBadRequest},
		{"other", "/connectors/geo/send", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.runner.err = tt.err
			w := f.do(t, http.MethodPost, tt.target, "")
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)

	f = newFixture(t, WithHealthCheck(func(context.Context) error { return errors.New("db down") }))
	w = f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "db down")
}

func TestMetricsAndCallbackRoutes(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "apiconnect_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	called := false
	cb := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		_, _ = w.Write([]byte("ok"))
	})

	f := newFixture(t, WithMetrics(reg), WithOAuthCallback(cb))

	w := f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "apiconnect_test_total 1")

	w = f.do(t, http.MethodGet, "/oauthcallback?id=geo&code=abc", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, called)
}

func TestListenAndServeStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.server.ListenAndServe(ctx, "127.0.0.1:0", time.Second) }()

	cancel()
	assert.NoError(t, <-done)
}
