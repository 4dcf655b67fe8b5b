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

// Package record models the entity records that connectors read from and
// write back to, along with the repository registry that resolves them.
package record

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/tombee/apiconnect/internal/database"
	"github.com/tombee/apiconnect/pkg/errors"
)

// IDField is the implicit identity field present on every entity type.
const IDField = "id"

// Ref identifies a stored record by entity type and id.
type Ref struct {
	EntityType string `json:"entity_type" yaml:"entity_type"`
	ID         string `json:"id" yaml:"id"`
}

// String renders the ref as "type:id".
func (r Ref) String() string {
	return r.EntityType + ":" + r.ID
}

// IsZero reports whether the ref is unset.
func (r Ref) IsZero() bool {
	return r.EntityType == "" && r.ID == ""
}

// ParseRef parses a "type:id" reference.
func ParseRef(s string) (Ref, error) {
	entityType, id, ok := strings.Cut(s, ":")
	if !ok || entityType == "" || id == "" {
		return Ref{}, &errors.ValidationError{
			Field:      "record",
			Message:    fmt.Sprintf("invalid record reference %q", s),
			Suggestion: "use the form <entity type>:<id>, for example contact:42",
		}
	}
	return Ref{EntityType: entityType, ID: id}, nil
}

// Record is read access to a single stored entity.
type Record interface {
	Ref() Ref

	// Get returns the value stored in field. ok is false when the field is
	// not part of the record's schema.
	Get(field string) (value any, ok bool)
}

// Schema describes an entity type: its table and its writable fields.
type Schema struct {
	Type   string   `yaml:"type"`
	Table  string   `yaml:"table"`
	Fields []string `yaml:"fields"`
}

// Has reports whether field belongs to the schema.
func (s Schema) Has(field string) bool {
	return field == IDField || slices.Contains(s.Fields, field)
}

// TableName returns the table, defaulting to the entity type.
func (s Schema) TableName() string {
	if s.Table != "" {
		return s.Table
	}
	return s.Type
}

// Validate checks that the schema only names safe identifiers.
func (s Schema) Validate() error {
	if s.Type == "" {
		return &errors.ValidationError{Field: "entities", Message: "entity type name is required"}
	}
	if !database.ValidIdentifier(s.TableName()) {
		return &errors.ValidationError{
			Field:   "entities." + s.Type,
			Message: fmt.Sprintf("invalid table name %q", s.TableName()),
		}
	}
	seen := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		if !database.ValidIdentifier(f) || f == IDField {
			return &errors.ValidationError{
				Field:   "entities." + s.Type,
				Message: fmt.Sprintf("invalid field name %q", f),
			}
		}
		if seen[f] {
			return &errors.ValidationError{
				Field:   "entities." + s.Type,
				Message: fmt.Sprintf("duplicate field %q", f),
			}
		}
		seen[f] = true
	}
	return nil
}

// CheckFields rejects values naming fields outside the schema.
func (s Schema) CheckFields(values map[string]any) error {
	for _, k := range slices.Sorted(maps.Keys(values)) {
		if k == IDField || !slices.Contains(s.Fields, k) {
			return &errors.ValidationError{
				Field:      k,
				Message:    fmt.Sprintf("field %q is not writable on %s", k, s.Type),
				Suggestion: fmt.Sprintf("writable fields: %s", strings.Join(s.Fields, ", ")),
			}
		}
	}
	return nil
}

// Entity is a materialized record.
type Entity struct {
	Type   string
	ID     string
	Values map[string]any
	Schema *Schema
}

var _ Record = (*Entity)(nil)

// Ref implements Record.
func (e *Entity) Ref() Ref {
	return Ref{EntityType: e.Type, ID: e.ID}
}

// Get implements Record. Fields declared in the schema but never set read
// as nil.
func (e *Entity) Get(field string) (any, bool) {
	if field == IDField {
		return e.ID, true
	}
	if e.Schema != nil && !e.Schema.Has(field) {
		return nil, false
	}
	v, ok := e.Values[field]
	if e.Schema != nil {
		return v, true
	}
	return v, ok
}

// Clone returns a deep enough copy for callers to mutate Values.
func (e *Entity) Clone() *Entity {
	return &Entity{
		Type:   e.Type,
		ID:     e.ID,
		Values: maps.Clone(e.Values),
		Schema: e.Schema,
	}
}

// WithValues returns a copy of e with values overlaid. The stored record is
// untouched, which is what onchange previews need.
func (e *Entity) WithValues(values map[string]any) *Entity {
	c := e.Clone()
	if c.Values == nil {
		c.Values = make(map[string]any, len(values))
	}
	maps.Copy(c.Values, values)
	return c
}
