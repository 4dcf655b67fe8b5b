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

package jq

import (
	"context"
	"encoding/json"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutor_Execute(t *testing.T) {
	tests := []struct {
		name       string
		expression string
		data       any
		want       any
		wantErr    bool
	}{
		{
			name:       "empty expression returns data",
			expression: "",
			data:       map[string]any{"foo": "bar"},
			want:       map[string]any{"foo": "bar"},
		},
		{
			name:       "field extraction",
			expression: ".foo",
			data:       map[string]any{"foo": "bar"},
			want:       "bar",
		},
		{
			name:       "unwrap envelope",
			expression: ".data.items",
			data:       map[string]any{"data": map[string]any{"items": []any{map[string]any{"id": 1.0}}}},
			want:       []any{map[string]any{"id": 1.0}},
		},
		{
			name:       "several results become a slice",
			expression: ".[]",
			data:       []any{1.0, 2.0},
			want:       []any{1.0, 2.0},
		},
		{
			name:       "decoded numbers keep integer precision",
			expression: ".id",
			data:       map[string]any{"id": json.Number("9007199254740993")},
			want:       9007199254740993,
		},
		{
			name:       "integers beyond int64 become big",
			expression: ".id + 1",
			data:       map[string]any{"id": json.Number("123456789012345678901234567890")},
			want:       mustBig("123456789012345678901234567891"),
		},
		{
			name:       "fractions stay float",
			expression: ".ratio",
			data:       map[string]any{"ratio": json.Number("0.5")},
			want:       0.5,
		},
		{
			name:       "no results",
			expression: "empty",
			data:       map[string]any{},
			want:       nil,
		},
		{
			name:       "invalid expression",
			expression: ".[",
			data:       map[string]any{},
			wantErr:    true,
		},
		{
			name:       "runtime error",
			expression: ".foo + 1",
			data:       map[string]any{"foo": "bar"},
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewExecutor(DefaultTimeout, DefaultMaxInputSize)
			got, err := e.Execute(context.Background(), tt.expression, tt.data)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExecutor_InputTooLarge(t *testing.T) {
	e := NewExecutor(time.Second, 16)
	_, err := e.Execute(context.Background(), ".", map[string]any{"k": strings.Repeat("x", 64)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds maximum")
}

func TestExecutor_Validate(t *testing.T) {
	e := NewExecutor(0, 0)
	assert.NoError(t, e.Validate(""))
	assert.NoError(t, e.Validate(".data | map(.id)"))
	assert.Error(t, e.Validate(".["))
	assert.Error(t, e.Validate("undefined_fn(1)"))
}

func TestExecutor_CachesCompiledQuery(t *testing.T) {
	e := NewExecutor(0, 0)
	_, err := e.Execute(context.Background(), ".a", map[string]any{"a": 1.0})
	require.NoError(t, err)
	_, err = e.Execute(context.Background(), ".a", map[string]any{"a": 2.0})
	require.NoError(t, err)
	assert.Len(t, e.cache, 1)
}

func mustBig(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("bad integer " + s)
	}
	return n
}
