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

// Package sqlstore provides a SQL-backed record repository for SQLite and
// PostgreSQL. Every field is stored as JSON text in its own column, so
// values round-trip with their JSON types.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/tombee/apiconnect/internal/database"
	"github.com/tombee/apiconnect/internal/record"
	"github.com/tombee/apiconnect/pkg/errors"
)

var _ record.Repository = (*Repository)(nil)

// Repository stores one entity type in one table.
type Repository struct {
	db     *database.DB
	schema record.Schema
	table  string
}

// New creates the repository and its table if needed.
func New(ctx context.Context, db *database.DB, schema record.Schema) (*Repository, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	r := &Repository{
		db:     db,
		schema: schema,
		table:  database.QuoteIdent(schema.TableName()),
	}
	if err := r.migrate(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Repository) migrate(ctx context.Context) error {
	cols := []string{database.QuoteIdent(record.IDField) + " TEXT PRIMARY KEY"}
	for _, f := range r.schema.Fields {
		cols = append(cols, database.QuoteIdent(f)+" TEXT")
	}
	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", r.table, strings.Join(cols, ", "))
	return r.db.Migrate(ctx, []string{stmt})
}

// Schema implements record.Repository.
func (r *Repository) Schema() record.Schema {
	return r.schema
}

func (r *Repository) columns() string {
	cols := []string{database.QuoteIdent(record.IDField)}
	for _, f := range r.schema.Fields {
		cols = append(cols, database.QuoteIdent(f))
	}
	return strings.Join(cols, ", ")
}

// Get implements record.Repository.
func (r *Repository) Get(ctx context.Context, id string) (*record.Entity, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s",
		r.columns(), r.table, database.QuoteIdent(record.IDField), r.db.Dialect.Placeholder(1))

	e, err := r.scan(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, &errors.NotFoundError{Resource: r.schema.Type, ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s %s: %w", r.schema.Type, id, err)
	}
	return e, nil
}

// List implements record.Repository. Records are ordered by id.
func (r *Repository) List(ctx context.Context) ([]*record.Entity, error) {
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s",
		r.columns(), r.table, database.QuoteIdent(record.IDField))

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", r.schema.Type, err)
	}
	defer rows.Close()

	var out []*record.Entity
	for rows.Next() {
		e, err := r.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", r.schema.Type, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Create implements record.Repository.
func (r *Repository) Create(ctx context.Context, values map[string]any) (*record.Entity, error) {
	if err := r.schema.CheckFields(values); err != nil {
		return nil, err
	}

	id := uuid.New().String()
	args := []any{id}
	for _, f := range r.schema.Fields {
		v, err := encode(values, f)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		r.table, r.columns(), r.db.Dialect.Placeholders(1, len(args)))
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", r.schema.Type, err)
	}
	return r.Get(ctx, id)
}

// Update implements record.Repository. Only the given fields are written.
func (r *Repository) Update(ctx context.Context, id string, values map[string]any) (*record.Entity, error) {
	if err := r.schema.CheckFields(values); err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return r.Get(ctx, id)
	}

	var sets []string
	var args []any
	for _, f := range r.schema.Fields {
		if _, ok := values[f]; !ok {
			continue
		}
		v, err := encode(values, f)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = %s", database.QuoteIdent(f), r.db.Dialect.Placeholder(len(args))))
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
		r.table, strings.Join(sets, ", "), database.QuoteIdent(record.IDField), r.db.Dialect.Placeholder(len(args)))
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update %s %s: %w", r.schema.Type, id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, &errors.NotFoundError{Resource: r.schema.Type, ID: id}
	}
	return r.Get(ctx, id)
}

// Delete implements record.Repository.
func (r *Repository) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = %s",
		r.table, database.QuoteIdent(record.IDField), r.db.Dialect.Placeholder(1))
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete %s %s: %w", r.schema.Type, id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &errors.NotFoundError{Resource: r.schema.Type, ID: id}
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (r *Repository) scan(row scanner) (*record.Entity, error) {
	var id string
	raw := make([]sql.NullString, len(r.schema.Fields))
	dest := []any{&id}
	for i := range raw {
		dest = append(dest, &raw[i])
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	values := make(map[string]any, len(raw))
	for i, f := range r.schema.Fields {
		if !raw[i].Valid {
			continue
		}
		v, err := record.DecodeJSON([]byte(raw[i].String))
		if err != nil {
			return nil, fmt.Errorf("failed to decode field %s: %w", f, err)
		}
		values[f] = v
	}
	return &record.Entity{Type: r.schema.Type, ID: id, Values: values, Schema: &r.schema}, nil
}

func encode(values map[string]any, field string) (any, error) {
	v, ok := values[field]
	if !ok || v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode field %s: %w", field, err)
	}
	return string(data), nil
}
