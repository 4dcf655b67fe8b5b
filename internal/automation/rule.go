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

// Package automation runs connectors when record lifecycle events match
// configured rules.
package automation

import (
	"fmt"
	"slices"
	"strings"

	"github.com/tombee/apiconnect/internal/hook"
	"github.com/tombee/apiconnect/pkg/errors"
)

// Rule binds record events on one entity type to a connector.
type Rule struct {
	Name string `yaml:"name" json:"name"`

	// Connector is the connector id or name.
	Connector string `yaml:"connector" json:"connector"`

	// Entity is the record type the rule watches.
	Entity string `yaml:"entity" json:"entity"`

	// Events lists on_create, on_write, on_create_or_write, on_unlink or
	// on_change.
	Events []string `yaml:"events" json:"events"`

	// OnChangeFields restricts write and change events to edits touching
	// at least one of these fields.
	OnChangeFields []string `yaml:"on_change_fields,omitempty" json:"on_change_fields,omitempty"`

	// Filter is an expr-lang condition evaluated against the record.
	Filter string `yaml:"filter,omitempty" json:"filter,omitempty"`

	Disabled bool `yaml:"disabled,omitempty" json:"disabled,omitempty"`
}

// Kinds returns the hook kinds the rule listens to.
func (r Rule) Kinds() ([]hook.Kind, error) {
	var kinds []hook.Kind
	for _, ev := range r.Events {
		ev = strings.TrimSpace(ev)
		if ev == "on_create_or_write" || ev == "create_or_write" {
			kinds = append(kinds, hook.EventCreate, hook.EventWrite)
			continue
		}
		k, ok := hook.ParseKind(ev)
		if !ok {
			return nil, &errors.ValidationError{
				Field:      "events",
				Message:    fmt.Sprintf("unknown event %q in rule %q", ev, r.Name),
				Suggestion: "use on_create, on_write, on_create_or_write, on_unlink or on_change",
			}
		}
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return slices.Compact(kinds), nil
}

// Validate checks the rule is complete.
func (r Rule) Validate() error {
	if r.Name == "" {
		return &errors.ValidationError{Field: "name", Message: "rule name is required"}
	}
	if r.Connector == "" {
		return &errors.ValidationError{Field: "connector", Message: fmt.Sprintf("rule %q has no connector", r.Name)}
	}
	if r.Entity == "" {
		return &errors.ValidationError{Field: "entity", Message: fmt.Sprintf("rule %q has no entity", r.Name)}
	}
	kinds, err := r.Kinds()
	if err != nil {
		return err
	}
	if len(kinds) == 0 {
		return &errors.ValidationError{Field: "events", Message: fmt.Sprintf("rule %q has no events", r.Name)}
	}
	return nil
}

// matches reports whether ev is one the rule reacts to, before the filter.
func (r Rule) matches(ev hook.Event, kinds []hook.Kind) bool {
	if r.Disabled || ev.Record == nil || ev.Record.Type != r.Entity {
		return false
	}
	if !slices.Contains(kinds, ev.Kind) {
		return false
	}
	if len(r.OnChangeFields) > 0 && (ev.Kind == hook.EventWrite || ev.Kind == hook.EventChange) {
		for _, f := range ev.Changed {
			if slices.Contains(r.OnChangeFields, f) {
				return true
			}
		}
		return false
	}
	return true
}
