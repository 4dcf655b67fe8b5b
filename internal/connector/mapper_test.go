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

package connector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapResponse(t *testing.T) {
	c := &Connector{
		Response: `{"id": 42, "name": "foo", "meta": {"a": 1}}`,
		ResponseMappings: []ResponseKeyMapping{
			{Field: "title", TakeFrom: true, DynamicValue: "name"},
			{Field: "external_id", TakeFrom: true, DynamicValue: "id"},
			{Field: "meta", TakeFrom: true, DynamicValue: "meta"},
			{Field: "source", StaticValue: "api", DynamicValue: "ignored"},
		},
	}
	got, err := MapResponse(c)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"title":       "foo",
		"external_id": int64(42),
		"meta":        map[string]any{"a": int64(1)},
		"source":      "api",
	}, got)
}

func TestMapResponse_LargeIntegerExact(t *testing.T) {
	c := &Connector{
		Response: `{"id": 9007199254740993, "price": 9.5}`,
		ResponseMappings: []ResponseKeyMapping{
			{Field: "external_id", TakeFrom: true, DynamicValue: "id"},
			{Field: "price", TakeFrom: true, DynamicValue: "price"},
		},
	}
	got, err := MapResponse(c)
	require.NoError(t, err)
	assert.Equal(t, int64(9007199254740993), got["external_id"])
	assert.Equal(t, 9.5, got["price"])
}

func TestMapResponse_MissingKeyIsAtomic(t *testing.T) {
	c := &Connector{
		Response: `{"name": "foo"}`,
		ResponseMappings: []ResponseKeyMapping{
			{Field: "title", TakeFrom: true, DynamicValue: "name"},
			{Field: "price", TakeFrom: true, DynamicValue: "price"},
		},
	}
	got, err := MapResponse(c)
	assert.Nil(t, got)
	var knf *ResponseKeyNotFoundError
	require.ErrorAs(t, err, &knf)
	assert.Equal(t, "price", knf.Key)
}

func TestMapResponse_NoResponse(t *testing.T) {
	_, err := MapResponse(&Connector{})
	var mre *MalformedResponseError
	assert.ErrorAs(t, err, &mre)
}

func TestMapResponse_NoMappings(t *testing.T) {
	got, err := MapResponse(&Connector{Response: `{}`})
	require.NoError(t, err)
	assert.Empty(t, got)
}
