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
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tombee/apiconnect/internal/connector"
	"github.com/tombee/apiconnect/internal/database"
	"github.com/tombee/apiconnect/pkg/errors"
)

var _ Store = (*SQL)(nil)

const connectorsTable = `CREATE TABLE IF NOT EXISTS apiconnect_connectors (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	document TEXT NOT NULL,
	updated_at TEXT NOT NULL
)`

// SQL stores connectors as JSON documents in SQLite or PostgreSQL.
type SQL struct {
	db *database.DB
}

// NewSQL creates the connectors table if needed.
func NewSQL(ctx context.Context, db *database.DB) (*SQL, error) {
	if err := db.Migrate(ctx, []string{connectorsTable}); err != nil {
		return nil, err
	}
	return &SQL{db: db}, nil
}

func (s *SQL) q(query string) string {
	// Queries are written with ? placeholders.
	if s.db.Dialect != database.Postgres {
		return query
	}
	out := make([]byte, 0, len(query)+8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			out = append(out, s.db.Dialect.Placeholder(n)...)
			continue
		}
		out = append(out, query[i])
	}
	return string(out)
}

// Create implements Store.
func (s *SQL) Create(ctx context.Context, c *connector.Connector) error {
	if err := prepare(c); err != nil {
		return err
	}
	if err := s.checkName(ctx, c.Name, ""); err != nil {
		return err
	}
	doc, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode connector: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		s.q("INSERT INTO apiconnect_connectors (id, name, document, updated_at) VALUES (?, ?, ?, ?)"),
		c.ID, c.Name, string(doc), now())
	if err != nil {
		if _, getErr := s.Get(ctx, c.ID); getErr == nil {
			return nameConflict(c.ID)
		}
		return fmt.Errorf("failed to insert connector: %w", err)
	}
	return nil
}

// Get implements Store.
func (s *SQL) Get(ctx context.Context, id string) (*connector.Connector, error) {
	row := s.db.QueryRowContext(ctx, s.q("SELECT document FROM apiconnect_connectors WHERE id = ?"), id)
	c, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(id)
	}
	return c, err
}

// GetByName implements Store.
func (s *SQL) GetByName(ctx context.Context, name string) (*connector.Connector, error) {
	row := s.db.QueryRowContext(ctx, s.q("SELECT document FROM apiconnect_connectors WHERE name = ?"), name)
	c, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(name)
	}
	return c, err
}

// List implements Store.
func (s *SQL) List(ctx context.Context) ([]*connector.Connector, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT document FROM apiconnect_connectors ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list connectors: %w", err)
	}
	defer rows.Close()

	var out []*connector.Connector
	for rows.Next() {
		c, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Update implements Store.
func (s *SQL) Update(ctx context.Context, c *connector.Connector) error {
	if err := s.checkName(ctx, c.Name, c.ID); err != nil {
		return err
	}
	doc, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode connector: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		s.q("UPDATE apiconnect_connectors SET name = ?, document = ?, updated_at = ? WHERE id = ?"),
		c.Name, string(doc), now(), c.ID)
	if err != nil {
		return fmt.Errorf("failed to update connector: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound(c.ID)
	}
	return nil
}

// Delete implements Store.
func (s *SQL) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.q("DELETE FROM apiconnect_connectors WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("failed to delete connector: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound(id)
	}
	return nil
}

// Close implements Store.
func (s *SQL) Close() error {
	return s.db.Close()
}

func (s *SQL) checkName(ctx context.Context, name, exceptID string) error {
	var id string
	err := s.db.QueryRowContext(ctx, s.q("SELECT id FROM apiconnect_connectors WHERE name = ?"), name).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil
	case err != nil:
		return fmt.Errorf("failed to check connector name: %w", err)
	case id != exceptID:
		return nameConflict(name)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(row scanner) (*connector.Connector, error) {
	var doc string
	if err := row.Scan(&doc); err != nil {
		return nil, err
	}
	var c connector.Connector
	if err := json.Unmarshal([]byte(doc), &c); err != nil {
		return nil, fmt.Errorf("failed to decode connector: %w", err)
	}
	return &c, nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
