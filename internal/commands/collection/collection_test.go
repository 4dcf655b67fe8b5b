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

package collection

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/tombee/apiconnect/internal/commands/shared"
	"github.com/tombee/apiconnect/pkg/errors"
)

const collectionJSON = `{
  "info": {"name": "demo", "schema": "https://schema.getpostman.com/json/collection/v2.1.0/"},
  "item": [
    {
      "name": "List users",
      "request": {
        "method": "GET",
        "header": [{"key": "Accept", "value": "application/json"}],
        "url": {"raw": "https://api.example.com/users?page=2", "query": [{"key": "page", "value": "2"}]}
      }
    }
  ]
}`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func setup(t *testing.T) string {
	t.Helper()
	keyring.MockInit()
	t.Setenv("APICONNECT_CATALOG", "")
	t.Setenv("APICONNECT_STORAGE_DRIVER", "")
	t.Setenv("APICONNECT_STORAGE_DSN", "")
	t.Setenv("LOG_LEVEL", "error")

	dir := t.TempDir()
	cfg := writeFile(t, dir, "config.yaml", `
storage:
  driver: sqlite
  dsn: `+filepath.Join(dir, "apiconnect.db")+`
`)
	shared.SetConfigPathForTest(cfg)
	t.Cleanup(func() { shared.SetConfigPathForTest("") })
	return dir
}

func run(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestExpand(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.json", "{}")
	b := writeFile(t, dir, "nested/deep/b.json", "{}")
	writeFile(t, dir, "nested/notes.txt", "")

	files, err := expand([]string{filepath.Join(dir, "**", "*.json"), a})
	require.NoError(t, err)
	assert.Equal(t, []string{a, b}, files)

	_, err = expand([]string{filepath.Join(dir, "*.yaml")})
	var nf *errors.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestImportExport(t *testing.T) {
	dir := setup(t)
	file := writeFile(t, dir, "demo.postman_collection.json", collectionJSON)

	out, err := run(t, NewImportCommand(), file)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 1 connectors from 1 files")

	// Names are unique, so a second import is rejected.
	_, err = run(t, NewImportCommand(), file)
	var exitErr *shared.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, shared.ExitInvalidConfig, exitErr.Code)

	out, err = run(t, NewExportCommand(), "List users")
	require.NoError(t, err)
	var exported struct {
		Item []struct {
			Name string `json:"name"`
		} `json:"item"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &exported))
	require.Len(t, exported.Item, 1)
	assert.Equal(t, "List users", exported.Item[0].Name)

	target := filepath.Join(dir, "out.json")
	_, err = run(t, NewExportCommand(), "-o", target)
	require.NoError(t, err)
	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(data), "https://api.example.com/users?page=2")

	_, err = run(t, NewExportCommand(), "missing")
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, shared.ExitNotFound, exitErr.Code)
}
