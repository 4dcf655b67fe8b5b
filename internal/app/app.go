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

// Package app assembles the runtime from configuration: storage, record
// repositories, the connector engine, automations, OAuth and the server.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/tombee/apiconnect/internal/automation"
	"github.com/tombee/apiconnect/internal/config"
	"github.com/tombee/apiconnect/internal/connector"
	"github.com/tombee/apiconnect/internal/connector/transport"
	"github.com/tombee/apiconnect/internal/database"
	"github.com/tombee/apiconnect/internal/hook"
	"github.com/tombee/apiconnect/internal/jq"
	"github.com/tombee/apiconnect/internal/log"
	"github.com/tombee/apiconnect/internal/oauth"
	"github.com/tombee/apiconnect/internal/record"
	"github.com/tombee/apiconnect/internal/record/memory"
	"github.com/tombee/apiconnect/internal/record/sqlstore"
	"github.com/tombee/apiconnect/internal/script"
	"github.com/tombee/apiconnect/internal/secrets"
	"github.com/tombee/apiconnect/internal/server"
	"github.com/tombee/apiconnect/internal/store"
	"github.com/tombee/apiconnect/internal/tracing"
)

// Options configures New.
type Options struct {
	Config  *config.Config
	Logger  *slog.Logger
	Version string

	// Secrets overrides the env + keychain resolver.
	Secrets *secrets.Resolver
}

// App is a fully wired runtime. Close releases it.
type App struct {
	Config     *config.Config
	Logger     *slog.Logger
	DB         *database.DB
	Records    *record.Registry
	Hooks      *hook.Registry
	Store      store.Store
	Engine     *connector.Engine
	Dispatcher *automation.Dispatcher
	OAuth      *oauth.Flow
	Secrets    *secrets.Resolver
	Metrics    *prometheus.Registry
	Tracing    *tracing.Provider
}

// New builds an App. Tables for SQL storage are created on the way.
func New(ctx context.Context, opts Options) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(cfg.LogConfig())
	}
	resolver := opts.Secrets
	if resolver == nil {
		resolver = secrets.NewDefaultResolver()
	}

	a := &App{
		Config:  cfg,
		Logger:  logger,
		Hooks:   hook.NewRegistry(),
		Records: record.NewRegistry(),
		Secrets: resolver,
		Metrics: prometheus.NewRegistry(),
	}
	a.Metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	ok := false
	defer func() {
		if !ok {
			_ = a.Close(context.Background())
		}
	}()

	tp, err := tracing.NewProvider(ctx, cfg.TracingConfig(opts.Version))
	if err != nil {
		return nil, fmt.Errorf("failed to set up tracing: %w", err)
	}
	a.Tracing = tp

	if err := a.openStorage(ctx); err != nil {
		return nil, err
	}

	tr, err := transport.NewHTTPTransport(cfg.TransportConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}

	scripts := script.New()
	a.Engine = connector.NewEngine(tr, a.Records,
		connector.WithSecrets(resolver),
		connector.WithTransformer(jq.NewExecutor(0, 0)),
		connector.WithScriptRunner(scripts),
		connector.WithMetrics(connector.NewMetrics(a.Metrics)),
		connector.WithTracerProvider(tp.TracerProvider()),
		connector.WithLogger(logger),
	)

	a.Dispatcher = automation.NewDispatcher(a.Engine, a.Store,
		automation.WithFilters(scripts),
		automation.WithLogger(logger),
		automation.WithRegisterer(a.Metrics),
	)
	a.Dispatcher.Attach(a.Hooks)

	stateSecret, err := resolver.Expand(ctx, cfg.OAuth.StateSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve oauth.state_secret: %w", err)
	}
	a.OAuth = oauth.NewFlow(cfg.Server.PublicURL,
		oauth.WithStateSigner(oauth.NewStateSigner(stateSecret)),
		oauth.WithSecrets(resolver),
		oauth.WithLogger(logger),
	)

	ok = true
	return a, nil
}

func (a *App) openStorage(ctx context.Context) error {
	if a.Config.Storage.Driver == config.StorageMemory {
		a.Store = store.NewMemory()
		for _, schema := range a.Config.Entities {
			if err := a.register(memory.New(schema)); err != nil {
				return err
			}
		}
		return nil
	}

	db, err := database.Open(ctx, a.Config.DatabaseConfig())
	if err != nil {
		return err
	}
	a.DB = db

	s, err := store.NewSQL(ctx, db)
	if err != nil {
		return err
	}
	a.Store = s

	for _, schema := range a.Config.Entities {
		repo, err := sqlstore.New(ctx, db, schema)
		if err != nil {
			return fmt.Errorf("failed to prepare entity %s: %w", schema.Type, err)
		}
		if err := a.register(repo); err != nil {
			return err
		}
	}
	return nil
}

// register wraps repo so that writes raise lifecycle events.
func (a *App) register(repo record.Repository) error {
	return a.Records.Register(hook.Observe(repo, a.Hooks, a.Logger))
}

// Server returns the HTTP server for `apiconnect serve`.
func (a *App) Server() *server.Server {
	opts := []server.Option{
		server.WithOAuthCallback(oauth.NewCallbackHandler(a.OAuth, a.Store, a.Dispatcher.Locks())),
		server.WithMetrics(a.Metrics),
		server.WithLogger(a.Logger),
	}
	if a.DB != nil {
		opts = append(opts, server.WithHealthCheck(a.DB.HealthCheck))
	}
	return server.New(a.Records, a.Hooks, a.Dispatcher, opts...)
}

// Close flushes spans and closes storage.
func (a *App) Close(ctx context.Context) error {
	var firstErr error
	if a.Tracing != nil {
		if err := a.Tracing.Shutdown(ctx); err != nil {
			firstErr = err
		}
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
