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

// Package script evaluates expr-lang expressions for automation filters
// and connectors whose state is code.
//
// A filter sees:
//
//	record   map of the record's values plus "id"
//	old      previous values on write, nil otherwise
//	changed  names of the fields that changed
//	event    "create", "write", "unlink" or "change"
//
// Connector code sees values (the mapped response), response (the
// flattened response) and record. It returns a map whose entries are
// written to the triggering record, or nil.
package script

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/tombee/apiconnect/internal/connector"
	"github.com/tombee/apiconnect/internal/record"
	"github.com/tombee/apiconnect/pkg/errors"
)

var _ connector.ScriptRunner = (*Engine)(nil)

// Engine compiles and caches expr programs.
type Engine struct {
	mu    sync.RWMutex
	cache map[cacheKey]*vm.Program
}

type cacheKey struct {
	source string
	asBool bool
}

// New creates an engine with an empty program cache.
func New() *Engine {
	return &Engine{cache: make(map[cacheKey]*vm.Program)}
}

// helpers are available to every expression.
var helpers = map[string]any{
	"has":   hasFunc,
	"lower": strings.ToLower,
	"upper": strings.ToUpper,
}

// Filter evaluates a boolean filter. An empty filter matches.
func (e *Engine) Filter(source string, env map[string]any) (bool, error) {
	if strings.TrimSpace(source) == "" {
		return true, nil
	}
	prog, err := e.compile(source, true)
	if err != nil {
		return false, err
	}
	out, err := expr.Run(prog, withHelpers(env))
	if err != nil {
		return false, &errors.ValidationError{
			Field:      "filter",
			Message:    fmt.Sprintf("filter evaluation failed: %s", err.Error()),
			Suggestion: "check that the fields used in the filter exist on the record",
		}
	}
	return out.(bool), nil
}

// Run implements connector.ScriptRunner.
func (e *Engine) Run(ctx context.Context, in connector.ScriptInput) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Code) == "" {
		return nil, nil
	}
	prog, err := e.compile(in.Code, false)
	if err != nil {
		return nil, err
	}

	out, err := expr.Run(prog, withHelpers(map[string]any{
		"values":   in.Values,
		"response": in.Response,
		"record":   RecordEnv(in.Record),
	}))
	if err != nil {
		return nil, &errors.ValidationError{
			Field:   "code",
			Message: fmt.Sprintf("code evaluation failed: %s", err.Error()),
		}
	}

	switch v := out.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return v, nil
	}
	return nil, &errors.ValidationError{
		Field:      "code",
		Message:    fmt.Sprintf("code must return a map of field values, got %T", out),
		Suggestion: `return a map literal such as {"field": response.key}`,
	}
}

// Validate compiles source.
func (e *Engine) Validate(source string, asBool bool) error {
	if strings.TrimSpace(source) == "" {
		return nil
	}
	_, err := e.compile(source, asBool)
	return err
}

func (e *Engine) compile(source string, asBool bool) (*vm.Program, error) {
	key := cacheKey{source: source, asBool: asBool}
	e.mu.RLock()
	prog, ok := e.cache[key]
	e.mu.RUnlock()
	if ok {
		return prog, nil
	}

	opts := []expr.Option{expr.Env(helpers), expr.AllowUndefinedVariables()}
	field := "code"
	if asBool {
		opts = append(opts, expr.AsBool())
		field = "filter"
	}
	prog, err := expr.Compile(source, opts...)
	if err != nil {
		return nil, &errors.ValidationError{
			Field:      field,
			Message:    fmt.Sprintf("failed to compile expression: %s", err.Error()),
			Suggestion: "check expression syntax",
		}
	}

	e.mu.Lock()
	e.cache[key] = prog
	e.mu.Unlock()
	return prog, nil
}

// RecordEnv exposes an entity to expressions. Nil yields nil.
func RecordEnv(ent *record.Entity) map[string]any {
	if ent == nil {
		return nil
	}
	env := make(map[string]any, len(ent.Values)+1)
	for k, v := range ent.Values {
		env[k] = v
	}
	env[record.IDField] = ent.ID
	return env
}

func withHelpers(env map[string]any) map[string]any {
	out := make(map[string]any, len(env)+len(helpers))
	for k, v := range helpers {
		out[k] = v
	}
	for k, v := range env {
		out[k] = v
	}
	return out
}

// hasFunc reports whether a list contains an item, or a string a substring.
func hasFunc(haystack any, needle any) bool {
	switch h := haystack.(type) {
	case []any:
		return slices.Contains(h, needle)
	case []string:
		s, ok := needle.(string)
		return ok && slices.Contains(h, s)
	case string:
		s, ok := needle.(string)
		return ok && strings.Contains(h, s)
	}
	return false
}
