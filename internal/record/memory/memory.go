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

// Package memory provides an in-memory record repository.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/tombee/apiconnect/internal/record"
	"github.com/tombee/apiconnect/pkg/errors"
)

var _ record.Repository = (*Repository)(nil)

// Repository keeps records of one entity type in memory.
type Repository struct {
	mu      sync.RWMutex
	schema  record.Schema
	records map[string]map[string]any
	order   []string
}

// New creates an empty repository for schema.
func New(schema record.Schema) *Repository {
	return &Repository{
		schema:  schema,
		records: make(map[string]map[string]any),
	}
}

// Schema implements record.Repository.
func (r *Repository) Schema() record.Schema {
	return r.schema
}

func (r *Repository) entity(id string, values map[string]any) *record.Entity {
	return &record.Entity{
		Type:   r.schema.Type,
		ID:     id,
		Values: maps.Clone(values),
		Schema: &r.schema,
	}
}

// Get implements record.Repository.
func (r *Repository) Get(ctx context.Context, id string) (*record.Entity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	values, ok := r.records[id]
	if !ok {
		return nil, &errors.NotFoundError{Resource: r.schema.Type, ID: id}
	}
	return r.entity(id, values), nil
}

// List implements record.Repository. Records come back in insertion order.
func (r *Repository) List(ctx context.Context) ([]*record.Entity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*record.Entity, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.entity(id, r.records[id]))
	}
	return out, nil
}

// Create implements record.Repository.
func (r *Repository) Create(ctx context.Context, values map[string]any) (*record.Entity, error) {
	if err := r.schema.CheckFields(values); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := uuid.New().String()
	r.records[id] = maps.Clone(values)
	if r.records[id] == nil {
		r.records[id] = make(map[string]any)
	}
	r.order = append(r.order, id)
	return r.entity(id, r.records[id]), nil
}

// Update implements record.Repository.
func (r *Repository) Update(ctx context.Context, id string, values map[string]any) (*record.Entity, error) {
	if err := r.schema.CheckFields(values); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.records[id]
	if !ok {
		return nil, &errors.NotFoundError{Resource: r.schema.Type, ID: id}
	}
	maps.Copy(current, values)
	return r.entity(id, current), nil
}

// Delete implements record.Repository.
func (r *Repository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[id]; !ok {
		return &errors.NotFoundError{Resource: r.schema.Type, ID: id}
	}
	delete(r.records, id)
	r.order = slices.DeleteFunc(r.order, func(s string) bool { return s == id })
	return nil
}
