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
	"log/slog"
	"maps"

	"github.com/tombee/apiconnect/internal/record"
)

// Observed wraps a repository and notifies a registry after every
// successful write.
type Observed struct {
	record.Repository
	hooks  *Registry
	logger *slog.Logger
}

var _ record.Repository = (*Observed)(nil)

// Observe wraps repo so that create, update and delete raise events on hooks.
// Listener errors are logged and never fail the write.
func Observe(repo record.Repository, hooks *Registry, logger *slog.Logger) *Observed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Observed{Repository: repo, hooks: hooks, logger: logger}
}

// Create implements record.Repository.
func (o *Observed) Create(ctx context.Context, values map[string]any) (*record.Entity, error) {
	e, err := o.Repository.Create(ctx, values)
	if err != nil {
		return nil, err
	}
	o.notify(ctx, Event{Kind: EventCreate, Record: e, Changed: ChangedFields(values)})
	return e, nil
}

// Update implements record.Repository.
func (o *Observed) Update(ctx context.Context, id string, values map[string]any) (*record.Entity, error) {
	var old map[string]any
	if !Suppressed(ctx) {
		if before, err := o.Repository.Get(ctx, id); err == nil {
			old = maps.Clone(before.Values)
		}
	}

	e, err := o.Repository.Update(ctx, id, values)
	if err != nil {
		return nil, err
	}
	o.notify(ctx, Event{Kind: EventWrite, Record: e, OldValues: old, Changed: ChangedFields(values)})
	return e, nil
}

// Delete implements record.Repository. The event carries the record as it
// was before deletion.
func (o *Observed) Delete(ctx context.Context, id string) error {
	var snapshot *record.Entity
	if !Suppressed(ctx) {
		snapshot, _ = o.Repository.Get(ctx, id)
	}

	if err := o.Repository.Delete(ctx, id); err != nil {
		return err
	}
	if snapshot != nil {
		o.notify(ctx, Event{Kind: EventUnlink, Record: snapshot})
	}
	return nil
}

func (o *Observed) notify(ctx context.Context, ev Event) {
	if err := o.hooks.Notify(ctx, ev); err != nil {
		o.logger.Warn("record hook failed",
			"event", string(ev.Kind),
			"entity", ev.Record.Type,
			"record_id", ev.Record.ID,
			"error", err)
	}
}
