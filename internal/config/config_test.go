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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/apiconnect/internal/log"
	"github.com/tombee/apiconnect/pkg/errors"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"APICONNECT_LOG_LEVEL", "LOG_LEVEL", "LOG_FORMAT", "LOG_SOURCE", "APICONNECT_DEBUG",
		"APICONNECT_HTTP_TIMEOUT", "APICONNECT_HTTP_RPS", "APICONNECT_SERVER_ADDR",
		"APICONNECT_PUBLIC_URL", "APICONNECT_OAUTH_STATE_SECRET", "APICONNECT_STORAGE_DRIVER",
		"APICONNECT_STORAGE_DSN", "APICONNECT_CATALOG", "APICONNECT_TRACING", "OTEL_EXPORTER_OTLP_ENDPOINT",
	} {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, string(log.FormatJSON), cfg.Log.Format)
	assert.Equal(t, 30*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, "127.0.0.1:8069", cfg.Server.Addr)
	assert.Equal(t, "http://127.0.0.1:8069", cfg.Server.PublicURL)
	assert.Equal(t, StorageMemory, cfg.Storage.Driver)
	assert.Equal(t, "apiconnect", cfg.Tracing.ServiceName)
}

func TestLoadFromFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
log:
  level: debug
  format: text
http:
  timeout: 5s
  requests_per_second: 2
server:
  addr: 0.0.0.0:9000
oauth:
  state_secret: ${env:STATE_SECRET}
storage:
  driver: sqlite
  dsn: /tmp/apiconnect.db
entities:
  - type: contact
    fields: [name, city]
  - type: task
    table: project_task
    fields: [title]
catalog: catalog.yaml
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, 5*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, 2.0, cfg.HTTP.RequestsPerSecond)
	assert.Equal(t, "http://0.0.0.0:9000", cfg.Server.PublicURL)
	assert.Equal(t, "${env:STATE_SECRET}", cfg.OAuth.StateSecret)
	assert.Equal(t, StorageSQLite, cfg.Storage.Driver)
	require.Len(t, cfg.Entities, 2)
	assert.Equal(t, "project_task", cfg.Entities[1].TableName())
	assert.Equal(t, filepath.Join(dir, "catalog.yaml"), cfg.Catalog)

	db := cfg.DatabaseConfig()
	assert.Equal(t, "sqlite", db.Driver)
	assert.Equal(t, "/tmp/apiconnect.db", db.DSN)

	lc := cfg.LogConfig()
	assert.Equal(t, log.FormatText, lc.Format)
	assert.Equal(t, "debug", lc.Level)

	tc := cfg.TransportConfig()
	assert.Equal(t, 5*time.Second, tc.Timeout)
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("APICONNECT_LOG_LEVEL", "WARN")
	t.Setenv("APICONNECT_HTTP_TIMEOUT", "2s")
	t.Setenv("APICONNECT_PUBLIC_URL", "https://connect.example.com")
	t.Setenv("APICONNECT_STORAGE_DRIVER", "postgres")
	t.Setenv("APICONNECT_STORAGE_DSN", "postgres://localhost/apiconnect")
	t.Setenv("APICONNECT_TRACING", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 2*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, "https://connect.example.com", cfg.Server.PublicURL)
	assert.Equal(t, StoragePostgres, cfg.Storage.Driver)
	assert.True(t, cfg.Tracing.Enabled)

	tc := cfg.TracingConfig("1.2.3")
	assert.Equal(t, "1.2.3", tc.ServiceVersion)
	assert.Equal(t, "console", tc.Exporter)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		field string
	}{
		{"bad level", "log:\n  level: loud\n", "log.level"},
		{"bad format", "log:\n  format: xml\n", "log.format"},
		{"bad driver", "storage:\n  driver: mongo\n", "storage.driver"},
		{"missing dsn", "storage:\n  driver: sqlite\n", "storage.dsn"},
		{"bad public url", "server:\n  public_url: ftp://x\n", "server.public_url"},
		{"bad exporter", "tracing:\n  exporter: zipkin\n", "tracing.exporter"},
		{"otlp without endpoint", "tracing:\n  enabled: true\n  exporter: otlp\n", "tracing.endpoint"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			path := writeFile(t, t.TempDir(), "config.yaml", tt.yaml)

			_, err := Load(path)
			require.Error(t, err)
			var cfgErr *errors.ConfigError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, "validation", cfgErr.Key)
			var valErr *errors.ValidationError
			require.True(t, errors.As(err, &valErr))
			assert.Equal(t, tt.field, valErr.Field)
		})
	}
}

func TestLoadDuplicateEntity(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, t.TempDir(), "config.yaml", "entities:\n  - type: a\n  - type: a\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate entity type")
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	var cfgErr *errors.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "config_file", cfgErr.Key)
}

func TestConfigPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg")

	path, err := ConfigPath()
	require.NoError(t, err)
	assert.Equal(t, "/xdg/apiconnect/config.yaml", path)
}

func TestDataDir(t *testing.T) {
	base := t.TempDir()
	t.Setenv("XDG_DATA_HOME", base)

	dir, err := DataDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "apiconnect"), dir)
	assert.DirExists(t, dir)
}
