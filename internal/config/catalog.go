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
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tombee/apiconnect/internal/automation"
	"github.com/tombee/apiconnect/internal/connector"
	"github.com/tombee/apiconnect/pkg/errors"
)

// Catalog is the declarative set of connectors and automation rules that
// `apiconnect apply` and `apiconnect serve` load.
type Catalog struct {
	Connectors  []*connector.Connector `yaml:"connectors"`
	Automations []automation.Rule      `yaml:"automations"`
}

// LoadCatalog reads and validates a catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(expandHome(path))
	if err != nil {
		return nil, &errors.ConfigError{Key: "catalog", Reason: fmt.Sprintf("failed to read %s", path), Cause: err}
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes catalog YAML, fills connector defaults and validates.
func ParseCatalog(data []byte) (*Catalog, error) {
	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, &errors.ConfigError{Key: "catalog", Reason: "failed to parse YAML", Cause: err}
	}
	for _, c := range cat.Connectors {
		if c != nil {
			c.ApplyDefaults()
		}
	}
	if err := cat.Validate(); err != nil {
		return nil, err
	}
	return &cat, nil
}

// Validate checks every connector and rule, and that connector names and
// rule names are unique. Connector URLs are only checked for shape here;
// secret references in them are resolved at send time.
func (c *Catalog) Validate() error {
	names := make(map[string]bool, len(c.Connectors))
	ids := make(map[string]bool, len(c.Connectors))
	for i, conn := range c.Connectors {
		if conn == nil {
			return &errors.ValidationError{Field: fmt.Sprintf("connectors[%d]", i), Message: "connector is empty"}
		}
		if err := connector.Validate(conn); err != nil {
			return errors.Wrapf(err, "connectors[%d]", i)
		}
		if names[conn.Name] {
			return &errors.ValidationError{Field: fmt.Sprintf("connectors[%d].name", i), Message: fmt.Sprintf("duplicate connector name %q", conn.Name)}
		}
		names[conn.Name] = true
		if conn.ID != "" {
			if ids[conn.ID] {
				return &errors.ValidationError{Field: fmt.Sprintf("connectors[%d].id", i), Message: fmt.Sprintf("duplicate connector id %q", conn.ID)}
			}
			ids[conn.ID] = true
		}
	}

	rules := make(map[string]bool, len(c.Automations))
	for i, r := range c.Automations {
		if err := r.Validate(); err != nil {
			return errors.Wrapf(err, "automations[%d]", i)
		}
		if rules[r.Name] {
			return &errors.ValidationError{Field: fmt.Sprintf("automations[%d].name", i), Message: fmt.Sprintf("duplicate rule name %q", r.Name)}
		}
		rules[r.Name] = true
	}
	return nil
}
