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

package store

import (
	"context"
	"sort"
	"sync"

	"github.com/tombee/apiconnect/internal/connector"
)

var _ Store = (*Memory)(nil)

// Memory keeps connectors in process memory.
type Memory struct {
	mu    sync.RWMutex
	items map[string]*connector.Connector
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{items: make(map[string]*connector.Connector)}
}

// Create implements Store.
func (m *Memory) Create(ctx context.Context, c *connector.Connector) error {
	if err := prepare(c); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.items[c.ID]; exists {
		return nameConflict(c.ID)
	}
	if m.nameTaken(c.Name, "") {
		return nameConflict(c.Name)
	}
	m.items[c.ID] = c.Clone()
	return nil
}

// Get implements Store.
func (m *Memory) Get(ctx context.Context, id string) (*connector.Connector, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.items[id]
	if !ok {
		return nil, notFound(id)
	}
	return c.Clone(), nil
}

// GetByName implements Store.
func (m *Memory) GetByName(ctx context.Context, name string) (*connector.Connector, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, c := range m.items {
		if c.Name == name {
			return c.Clone(), nil
		}
	}
	return nil, notFound(name)
}

// List implements Store.
func (m *Memory) List(ctx context.Context) ([]*connector.Connector, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*connector.Connector, 0, len(m.items))
	for _, c := range m.items {
		out = append(out, c.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Update implements Store.
func (m *Memory) Update(ctx context.Context, c *connector.Connector) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.items[c.ID]; !ok {
		return notFound(c.ID)
	}
	if m.nameTaken(c.Name, c.ID) {
		return nameConflict(c.Name)
	}
	m.items[c.ID] = c.Clone()
	return nil
}

// Delete implements Store.
func (m *Memory) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.items[id]; !ok {
		return notFound(id)
	}
	delete(m.items, id)
	return nil
}

// Close implements Store.
func (m *Memory) Close() error { return nil }

func (m *Memory) nameTaken(name, exceptID string) bool {
	for id, c := range m.items {
		if c.Name == name && id != exceptID {
			return true
		}
	}
	return false
}
