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
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/apiconnect/internal/connector"
	"github.com/tombee/apiconnect/pkg/errors"
)

const sampleCatalog = `
connectors:
  - name: Geocode
    url: https://geo.example.com/lookup
    auth:
      type: bearer
      bearer_token: ${keychain:geo-token}
    parameters:
      - key: q
        dynamic_value: city
        take_from_event_record: true
    response_mappings:
      - field: lat
        take_from: true
        dynamic_value: lat
automations:
  - name: geocode-contacts
    connector: Geocode
    entity: contact
    events: [on_create_or_write]
    on_change_fields: [city]
    filter: 'city != ""'
`

func TestParseCatalog(t *testing.T) {
	cat, err := ParseCatalog([]byte(sampleCatalog))
	require.NoError(t, err)

	require.Len(t, cat.Connectors, 1)
	c := cat.Connectors[0]
	assert.Equal(t, "Geocode", c.Name)
	assert.Equal(t, connector.MethodREST, c.RequestMethod)
	assert.Equal(t, connector.RequestGet, c.RequestType)
	assert.Equal(t, connector.StateUpdate, c.State)
	assert.Equal(t, connector.AuthBearer, c.Auth.Type)
	require.Len(t, c.Parameters, 1)
	assert.True(t, c.Parameters[0].TakeFromEventRecord)

	require.Len(t, cat.Automations, 1)
	assert.Equal(t, []string{"city"}, cat.Automations[0].OnChangeFields)
}

func TestParseCatalogErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"malformed", "connectors: [", "failed to parse YAML"},
		{"bad url", "connectors:\n  - name: a\n    url: not-a-url\n", "connectors[0]"},
		{"duplicate connector", "connectors:\n  - name: a\n    url: https://x.test\n  - name: a\n    url: https://y.test\n", "duplicate connector name"},
		{"bad rule", "automations:\n  - name: r\n    connector: a\n    entity: contact\n    events: [on_delete]\n", "unknown event"},
		{"duplicate rule", "automations:\n  - {name: r, connector: a, entity: c, events: [on_create]}\n  - {name: r, connector: a, entity: c, events: [on_write]}\n", "duplicate rule name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadCatalogMissing(t *testing.T) {
	_, err := LoadCatalog(filepath.Join(t.TempDir(), "catalog.yaml"))
	var cfgErr *errors.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "catalog", cfgErr.Key)
}

func TestLoadCatalog(t *testing.T) {
	path := writeFile(t, t.TempDir(), "catalog.yaml", sampleCatalog)

	cat, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Len(t, cat.Connectors, 1)
}
