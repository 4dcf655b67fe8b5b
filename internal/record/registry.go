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

package record

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/tombee/apiconnect/pkg/errors"
)

// Repository stores records of one entity type. Writes are keyed by id and
// take typed values; implementations never build SQL from values.
type Repository interface {
	Schema() Schema
	Get(ctx context.Context, id string) (*Entity, error)
	List(ctx context.Context) ([]*Entity, error)
	Create(ctx context.Context, values map[string]any) (*Entity, error)
	Update(ctx context.Context, id string, values map[string]any) (*Entity, error)
	Delete(ctx context.Context, id string) error
}

// Registry maps entity type names to repositories.
type Registry struct {
	mu    sync.RWMutex
	repos map[string]Repository
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{repos: make(map[string]Repository)}
}

// Register adds repo under its schema type. Registering a type twice fails.
func (r *Registry) Register(repo Repository) error {
	name := repo.Schema().Type
	if name == "" {
		return fmt.Errorf("repository schema has no type")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.repos[name]; exists {
		return &errors.ConflictError{Resource: "entity type", Name: name}
	}
	r.repos[name] = repo
	return nil
}

// Repository returns the repository for entityType.
func (r *Registry) Repository(entityType string) (Repository, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	repo, ok := r.repos[entityType]
	if !ok {
		return nil, &errors.NotFoundError{Resource: "entity type", ID: entityType}
	}
	return repo, nil
}

// Resolve loads the record ref points at.
func (r *Registry) Resolve(ctx context.Context, ref Ref) (*Entity, error) {
	repo, err := r.Repository(ref.EntityType)
	if err != nil {
		return nil, err
	}
	return repo.Get(ctx, ref.ID)
}

// Types lists registered entity types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.repos))
	for name := range r.repos {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
