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

package hook

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/apiconnect/internal/record"
	"github.com/tombee/apiconnect/internal/record/memory"
)

func TestParseKind(t *testing.T) {
	for in, want := range map[string]Kind{
		"create": EventCreate, "on_create": EventCreate,
		"write": EventWrite, "on_write": EventWrite,
		"unlink": EventUnlink, "on_unlink": EventUnlink,
		"change": EventChange, "on_change": EventChange,
	} {
		got, ok := ParseKind(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := ParseKind("save")
	assert.False(t, ok)
}

func TestRegistry_Notify(t *testing.T) {
	reg := NewRegistry()
	var calls []string
	reg.On(func(ctx context.Context, ev Event) error {
		calls = append(calls, "first:"+string(ev.Kind))
		return errors.New("boom")
	}, EventCreate, EventWrite)
	reg.On(func(ctx context.Context, ev Event) error {
		calls = append(calls, "second:"+string(ev.Kind))
		return nil
	}, EventCreate)

	err := reg.Notify(context.Background(), Event{Kind: EventCreate})
	assert.EqualError(t, err, "boom")
	assert.Equal(t, []string{"first:create", "second:create"}, calls)

	calls = nil
	require.Error(t, reg.Notify(context.Background(), Event{Kind: EventWrite}))
	assert.Equal(t, []string{"first:write"}, calls)

	calls = nil
	require.NoError(t, reg.Notify(context.Background(), Event{Kind: EventUnlink}))
	assert.Empty(t, calls)
}

func TestRegistry_Suppressed(t *testing.T) {
	reg := NewRegistry()
	called := false
	reg.On(func(ctx context.Context, ev Event) error {
		called = true
		return nil
	}, EventWrite)

	ctx := Suppress(context.Background())
	assert.True(t, Suppressed(ctx))
	assert.False(t, Suppressed(context.Background()))

	require.NoError(t, reg.Notify(ctx, Event{Kind: EventWrite}))
	assert.False(t, called)
}

func TestRegistry_Reset(t *testing.T) {
	reg := NewRegistry()
	called := false
	reg.On(func(ctx context.Context, ev Event) error { called = true; return nil }, EventCreate)
	reg.Reset()
	require.NoError(t, reg.Notify(context.Background(), Event{Kind: EventCreate}))
	assert.False(t, called)
}

func TestObserve(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry()
	var events []Event
	reg.On(func(ctx context.Context, ev Event) error {
		events = append(events, ev)
		return nil
	}, EventCreate, EventWrite, EventUnlink)

	repo := Observe(memory.New(record.Schema{Type: "contact", Fields: []string{"name", "city"}}), reg, nil)

	created, err := repo.Create(ctx, map[string]any{"name": "Ada"})
	require.NoError(t, err)
	_, err = repo.Update(ctx, created.ID, map[string]any{"city": "London"})
	require.NoError(t, err)
	require.NoError(t, repo.Delete(ctx, created.ID))

	require.Len(t, events, 3)
	assert.Equal(t, EventCreate, events[0].Kind)
	assert.Equal(t, []string{"name"}, events[0].Changed)

	assert.Equal(t, EventWrite, events[1].Kind)
	assert.Equal(t, []string{"city"}, events[1].Changed)
	assert.Equal(t, map[string]any{"name": "Ada"}, events[1].OldValues)
	assert.Equal(t, "London", events[1].Record.Values["city"])

	assert.Equal(t, EventUnlink, events[2].Kind)
	assert.Equal(t, created.ID, events[2].Record.ID)
}

func TestObserve_SuppressedWrite(t *testing.T) {
	reg := NewRegistry()
	count := 0
	reg.On(func(ctx context.Context, ev Event) error { count++; return nil }, EventCreate, EventWrite)

	repo := Observe(memory.New(record.Schema{Type: "contact", Fields: []string{"name"}}), reg, nil)
	ctx := Suppress(context.Background())
	created, err := repo.Create(ctx, map[string]any{"name": "Ada"})
	require.NoError(t, err)
	_, err = repo.Update(ctx, created.ID, map[string]any{"name": "Grace"})
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestObserve_FailedWriteDoesNotNotify(t *testing.T) {
	reg := NewRegistry()
	count := 0
	reg.On(func(ctx context.Context, ev Event) error { count++; return nil }, EventWrite, EventUnlink)

	repo := Observe(memory.New(record.Schema{Type: "contact", Fields: []string{"name"}}), reg, nil)
	_, err := repo.Update(context.Background(), "missing", map[string]any{"name": "x"})
	assert.Error(t, err)
	assert.Error(t, repo.Delete(context.Background(), "missing"))
	assert.Zero(t, count)
}
