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

package shared

import (
	"context"
	"log/slog"
	"os"

	"golang.org/x/term"

	"github.com/tombee/apiconnect/internal/app"
	"github.com/tombee/apiconnect/internal/config"
	"github.com/tombee/apiconnect/internal/connector"
	"github.com/tombee/apiconnect/internal/log"
	"github.com/tombee/apiconnect/internal/store"
	"github.com/tombee/apiconnect/internal/tracing"
)

// LoadConfig loads --config, or the default config file when it exists.
func LoadConfig() (*config.Config, error) {
	if path := GetConfigPath(); path != "" {
		return config.Load(path)
	}
	return config.LoadDefault()
}

// NewLogger builds the CLI logger on stderr. Text format is used on a
// terminal unless LOG_FORMAT says otherwise; --verbose and --quiet adjust
// the level.
func NewLogger(cfg *config.Config) *slog.Logger {
	lc := cfg.LogConfig()
	lc.Output = os.Stderr
	if os.Getenv("LOG_FORMAT") == "" && term.IsTerminal(int(os.Stderr.Fd())) {
		lc.Format = log.FormatText
	}
	switch {
	case GetVerbose():
		lc.Level = "debug"
	case GetQuiet():
		lc.Level = "error"
	}
	return log.New(lc)
}

// OpenApp loads configuration, builds the runtime and applies the
// configured catalog. --trace turns on console span export.
func OpenApp(ctx context.Context) (*app.App, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, NewInvalidConfigError("failed to load configuration", err)
	}
	if GetTrace() {
		cfg.Tracing.Enabled = true
		cfg.Tracing.Exporter = tracing.ExporterConsole
	}
	v, _, _ := GetVersion()
	a, err := app.New(ctx, app.Options{
		Config:  cfg,
		Logger:  NewLogger(cfg),
		Version: v,
	})
	if err != nil {
		return nil, Classify("failed to start", err)
	}
	if _, err := a.LoadCatalog(ctx); err != nil {
		_ = a.Close(ctx)
		return nil, Classify("failed to load catalog", err)
	}
	return a, nil
}

// FindConnector looks ref up as an id, then as a name.
func FindConnector(ctx context.Context, s store.Store, ref string) (*connector.Connector, error) {
	if c, err := s.Get(ctx, ref); err == nil {
		return c, nil
	}
	return s.GetByName(ctx, ref)
}
