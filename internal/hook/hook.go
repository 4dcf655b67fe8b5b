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

// Package hook dispatches record lifecycle events (create, write, unlink,
// change) to registered listeners.
package hook

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/tombee/apiconnect/internal/record"
)

// Kind is a record lifecycle event kind.
type Kind string

const (
	// EventCreate fires after a record is created.
	EventCreate Kind = "create"
	// EventWrite fires after a record is updated.
	EventWrite Kind = "write"
	// EventUnlink fires after a record is deleted.
	EventUnlink Kind = "unlink"
	// EventChange fires for unsaved edits reported by a client.
	EventChange Kind = "change"
)

// ParseKind accepts both kind names and the on_* labels used in
// automation rules (on_create, on_write, on_unlink, on_change).
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "create", "on_create":
		return EventCreate, true
	case "write", "on_write":
		return EventWrite, true
	case "unlink", "on_unlink":
		return EventUnlink, true
	case "change", "on_change":
		return EventChange, true
	}
	return "", false
}

// Event describes one lifecycle transition.
type Event struct {
	Kind   Kind
	Record *record.Entity

	// OldValues holds the values before a write or change. Empty for create.
	OldValues map[string]any

	// Changed lists the fields touched by a write or change, sorted.
	Changed []string

	Timestamp time.Time
}

// Listener handles an event. Errors are collected, never retried.
type Listener func(ctx context.Context, ev Event) error

// Registry holds listeners per event kind.
type Registry struct {
	mu        sync.RWMutex
	listeners map[Kind][]Listener
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{listeners: make(map[Kind][]Listener)}
}

// On registers a listener for each of kinds.
func (r *Registry) On(listener Listener, kinds ...Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range kinds {
		r.listeners[k] = append(r.listeners[k], listener)
	}
}

// Reset drops every listener. Used when the automation set is reloaded.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = make(map[Kind][]Listener)
}

// Notify calls each listener for ev.Kind in registration order. All
// listeners run even if some fail; their errors are joined. Nothing runs
// when hooks are suppressed on ctx.
func (r *Registry) Notify(ctx context.Context, ev Event) error {
	if Suppressed(ctx) {
		return nil
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	r.mu.RLock()
	listeners := slices.Clone(r.listeners[ev.Kind])
	r.mu.RUnlock()

	var errs []error
	for _, l := range listeners {
		if err := l(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type suppressKey struct{}

// Suppress returns a context under which Notify is a no-op. Write-backs
// from a connector run under it so they cannot re-trigger themselves.
func Suppress(ctx context.Context) context.Context {
	return context.WithValue(ctx, suppressKey{}, true)
}

// Suppressed reports whether hooks are suppressed on ctx.
func Suppressed(ctx context.Context) bool {
	v, _ := ctx.Value(suppressKey{}).(bool)
	return v
}

// ChangedFields returns the sorted keys of values.
func ChangedFields(values map[string]any) []string {
	return slices.Sorted(maps.Keys(values))
}
