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


package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, FormatJSON, cfg.Format)
	assert.False(t, cfg.AddSource)
}

func TestFromEnv(t *testing.T) {
	tests := []struct {
		name      string
		env       map[string]string
		wantLevel string
		wantFmt   Format
		wantSrc   bool
	}{
		{name: "defaults", wantLevel: "info", wantFmt: FormatJSON},
		{name: "debug flag", env: map[string]string{"APICONNECT_DEBUG": "1"}, wantLevel: "debug", wantFmt: FormatJSON, wantSrc: true},
		{name: "debug wins over level", env: map[string]string{"APICONNECT_DEBUG": "true", "APICONNECT_LOG_LEVEL": "error"}, wantLevel: "debug", wantFmt: FormatJSON, wantSrc: true},
		{name: "app level wins over generic", env: map[string]string{"APICONNECT_LOG_LEVEL": "WARN", "LOG_LEVEL": "error"}, wantLevel: "warn", wantFmt: FormatJSON},
		{name: "generic level", env: map[string]string{"LOG_LEVEL": "error"}, wantLevel: "error", wantFmt: FormatJSON},
		{name: "text format", env: map[string]string{"LOG_FORMAT": "TEXT"}, wantLevel: "info", wantFmt: FormatText},
		{name: "source", env: map[string]string{"LOG_SOURCE": "1"}, wantLevel: "info", wantFmt: FormatJSON, wantSrc: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range []string{"APICONNECT_DEBUG", "APICONNECT_LOG_LEVEL", "LOG_LEVEL", "LOG_FORMAT", "LOG_SOURCE"} {
				t.Setenv(k, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg := FromEnv()
			assert.Equal(t, tt.wantLevel, cfg.Level)
			assert.Equal(t, tt.wantFmt, cfg.Format)
			assert.Equal(t, tt.wantSrc, cfg.AddSource)
		})
	}
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelTrace, ParseLevel("trace"))
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestNew_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "debug", Format: FormatJSON, Output: &buf})

	WithConnector(logger, "c-1", "Weather").Debug("built request", PhaseKey, "build")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "built request", entry["msg"])
	assert.Equal(t, "c-1", entry[ConnectorKey])
	assert.Equal(t, "Weather", entry["connector_name"])
	assert.Equal(t, "build", entry[PhaseKey])
}

func TestNew_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "warn", Format: FormatText, Output: &buf})

	logger.Info("hidden")
	assert.Empty(t, buf.String())

	logger.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestWithRecord(t *testing.T) {
	var buf bytes.Buffer
	logger := WithRecord(New(&Config{Level: "info", Output: &buf}), "Contact", "42")
	logger.Info("record written")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "Contact", entry[EntityKey])
	assert.Equal(t, "42", entry[RecordKey])
}

func TestTrace(t *testing.T) {
	var buf bytes.Buffer
	Trace(New(&Config{Level: "debug", Output: &buf}), "body")
	assert.Empty(t, buf.String())

	Trace(New(&Config{Level: "trace", Output: &buf}), "body", slog.String("k", "v"))
	assert.Contains(t, buf.String(), `"k":"v"`)
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "[REDACTED]", SanitizeAPIKey("abcd"))
	assert.Equal(t, "...6789", SanitizeAPIKey("token-123456789"))
	assert.Equal(t, "[REDACTED]", SanitizeSecret("hunter2"))
}
