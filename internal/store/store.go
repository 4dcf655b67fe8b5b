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

// Package store persists connector configurations together with their
// last response and event record reference.
package store

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/tombee/apiconnect/internal/connector"
	"github.com/tombee/apiconnect/pkg/errors"
)

// Store is the connector persistence contract. Names are unique. Every
// method returns copies; callers own what they get back.
type Store interface {
	// Create inserts c, assigning an id when empty. A duplicate id or name
	// is a *errors.ConflictError.
	Create(ctx context.Context, c *connector.Connector) error

	// Get returns the connector with id or *errors.NotFoundError.
	Get(ctx context.Context, id string) (*connector.Connector, error)

	// GetByName returns the connector named name or *errors.NotFoundError.
	GetByName(ctx context.Context, name string) (*connector.Connector, error)

	// List returns all connectors ordered by name.
	List(ctx context.Context) ([]*connector.Connector, error)

	// Update replaces the stored connector with the same id.
	Update(ctx context.Context, c *connector.Connector) error

	// Delete removes the connector with id.
	Delete(ctx context.Context, id string) error

	Close() error
}

// Save creates c or, when a connector with its id exists, updates it.
func Save(ctx context.Context, s Store, c *connector.Connector) error {
	if c.ID != "" {
		if _, err := s.Get(ctx, c.ID); err == nil {
			return s.Update(ctx, c)
		} else if !isNotFound(err) {
			return err
		}
	}
	return s.Create(ctx, c)
}

func prepare(c *connector.Connector) error {
	if strings.TrimSpace(c.Name) == "" {
		return &errors.ValidationError{Field: "name", Message: "connector name is required"}
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

func isNotFound(err error) bool {
	var nf *errors.NotFoundError
	return errors.As(err, &nf)
}

func notFound(id string) error {
	return &errors.NotFoundError{Resource: "connector", ID: id}
}

func nameConflict(name string) error {
	return &errors.ConflictError{Resource: "connector", Name: name}
}
