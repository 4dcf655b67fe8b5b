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

package automation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/apiconnect/internal/connector"
	"github.com/tombee/apiconnect/internal/connector/transport"
	"github.com/tombee/apiconnect/internal/hook"
	"github.com/tombee/apiconnect/internal/record"
	"github.com/tombee/apiconnect/internal/record/memory"
	"github.com/tombee/apiconnect/internal/script"
	"github.com/tombee/apiconnect/internal/store"
)

type harness struct {
	dispatcher *Dispatcher
	contacts   *hook.Observed
	store      *store.Memory
	hits       *atomic.Int32
	runs       *prometheus.Registry
}

func newHarness(t *testing.T, body string) *harness {
	t.Helper()
	hits := &atomic.Int32{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	hooks := hook.NewRegistry()
	contacts := hook.Observe(memory.New(record.Schema{Type: "contact", Fields: []string{"name", "city", "status"}}), hooks, nil)
	records := record.NewRegistry()
	require.NoError(t, records.Register(contacts))

	tr, err := transport.NewHTTPTransport(nil)
	require.NoError(t, err)
	engine := connector.NewEngine(tr, records)

	s := store.NewMemory()
	require.NoError(t, s.Create(context.Background(), &connector.Connector{
		ID:    "geo",
		Name:  "Geocode",
		URL:   srv.URL,
		State: connector.StateUpdate,
		ResponseMappings: []connector.ResponseKeyMapping{
			{Field: "city", TakeFrom: true, DynamicValue: "city"},
		},
	}))

	reg := prometheus.NewRegistry()
	d := NewDispatcher(engine, s, WithFilters(script.New()), WithRegisterer(reg))
	d.Attach(hooks)
	return &harness{dispatcher: d, contacts: contacts, store: s, hits: hits, runs: reg}
}

func TestDispatcher_OnCreateUpdatesRecord(t *testing.T) {
	h := newHarness(t, `{"city":"Paris"}`)
	require.NoError(t, h.dispatcher.SetRules([]Rule{
		{Name: "geo-on-create", Connector: "Geocode", Entity: "contact", Events: []string{"on_create"}},
	}))
	ctx := context.Background()

	created, err := h.contacts.Create(ctx, map[string]any{"name": "ada"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), h.hits.Load())

	got, err := h.contacts.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Paris", got.Values["city"])

	// The write-back does not re-trigger the rule.
	assert.Equal(t, int32(1), h.hits.Load())

	c, err := h.store.Get(ctx, "geo")
	require.NoError(t, err)
	require.NotNil(t, c.ResponseEventRecord)
	assert.Equal(t, created.Ref(), *c.ResponseEventRecord)
	assert.Contains(t, c.Response, "Paris")
}

func TestDispatcher_OnChangeFieldsAndFilter(t *testing.T) {
	h := newHarness(t, `{"city":"Lyon"}`)
	require.NoError(t, h.dispatcher.SetRules([]Rule{{
		Name:           "geo-on-write",
		Connector:      "geo",
		Entity:         "contact",
		Events:         []string{"on_create_or_write"},
		OnChangeFields: []string{"status"},
		Filter:         `record.status == "active"`,
	}}))
	ctx := context.Background()

	created, err := h.contacts.Create(ctx, map[string]any{"name": "ada", "status": "draft"})
	require.NoError(t, err)
	assert.Equal(t, int32(0), h.hits.Load(), "filter rejects draft")

	_, err = h.contacts.Update(ctx, created.ID, map[string]any{"name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, int32(0), h.hits.Load(), "name is not a watched field")

	_, err = h.contacts.Update(ctx, created.ID, map[string]any{"status": "active"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), h.hits.Load())

	assert.Equal(t, 1.0, testutil.ToFloat64(h.dispatcher.runs.WithLabelValues("geo-on-write", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.dispatcher.runs.WithLabelValues("geo-on-write", "skipped")))
}

func TestDispatcher_FailuresAreContained(t *testing.T) {
	h := newHarness(t, `{"nothing":"here"}`)
	require.NoError(t, h.dispatcher.SetRules([]Rule{
		{Name: "r", Connector: "geo", Entity: "contact", Events: []string{"on_create"}},
	}))

	created, err := h.contacts.Create(context.Background(), map[string]any{"name": "ada"})
	require.NoError(t, err, "a failing rule does not fail the write")
	require.NotNil(t, created)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.dispatcher.runs.WithLabelValues("r", "failure")))

	c, err := h.store.Get(context.Background(), "geo")
	require.NoError(t, err)
	assert.Contains(t, c.Response, "nothing")
}

func TestDispatcher_IgnoresOtherEntitiesAndDisabled(t *testing.T) {
	h := newHarness(t, `{"city":"x"}`)
	require.NoError(t, h.dispatcher.SetRules([]Rule{
		{Name: "tasks", Connector: "geo", Entity: "task", Events: []string{"on_create"}},
		{Name: "off", Connector: "geo", Entity: "contact", Events: []string{"on_create"}, Disabled: true},
	}))
	_, err := h.contacts.Create(context.Background(), map[string]any{"name": "ada"})
	require.NoError(t, err)
	assert.Equal(t, int32(0), h.hits.Load())
}

func TestDispatcher_OnUnlink(t *testing.T) {
	h := newHarness(t, `{"city":"x"}`)
	ctx := context.Background()
	created, err := h.contacts.Create(ctx, map[string]any{"name": "ada"})
	require.NoError(t, err)

	require.NoError(t, h.dispatcher.SetRules([]Rule{
		{Name: "gone", Connector: "geo", Entity: "contact", Events: []string{"on_unlink"}},
	}))
	require.NoError(t, h.contacts.Delete(ctx, created.ID))
	assert.Equal(t, int32(1), h.hits.Load())
}

func TestDispatcher_RunPreview(t *testing.T) {
	h := newHarness(t, `{"city":"Oslo"}`)
	ctx := context.Background()

	c, err := h.dispatcher.Run(ctx, "Geocode", nil, false)
	require.NoError(t, err)
	assert.Nil(t, c.ResponseEventRecord)
	assert.Contains(t, c.Response, "Oslo")

	_, err = h.dispatcher.Run(ctx, "missing", nil, false)
	assert.Error(t, err)
}

func TestDispatcher_SetRulesValidation(t *testing.T) {
	d := NewDispatcher(nil, store.NewMemory())
	tests := []Rule{
		{Connector: "c", Entity: "e", Events: []string{"on_create"}},
		{Name: "n", Entity: "e", Events: []string{"on_create"}},
		{Name: "n", Connector: "c", Events: []string{"on_create"}},
		{Name: "n", Connector: "c", Entity: "e"},
		{Name: "n", Connector: "c", Entity: "e", Events: []string{"on_save"}},
		{Name: "n", Connector: "c", Entity: "e", Events: []string{"on_create"}, Filter: "true"},
	}
	for _, r := range tests {
		assert.Error(t, d.SetRules([]Rule{r}), "%+v", r)
	}
	assert.Empty(t, d.Rules())
}

func TestRule_Kinds(t *testing.T) {
	kinds, err := Rule{Events: []string{"on_write", "on_create_or_write", "change"}}.Kinds()
	require.NoError(t, err)
	assert.Equal(t, []hook.Kind{hook.EventChange, hook.EventCreate, hook.EventWrite}, kinds)
}

func TestKeyedMutex(t *testing.T) {
	k := NewKeyedMutex()
	var active, maxActive atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("same")
			defer unlock()
			n := active.Add(1)
			for {
				m := maxActive.Load()
				if n <= m || maxActive.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			active.Add(-1)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxActive.Load())
	assert.Equal(t, 0, k.size())

	a := k.Lock("a")
	b := k.Lock("b")
	assert.Equal(t, 2, k.size())
	a()
	b()
}
