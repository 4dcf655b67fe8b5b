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

package app

import (
	"context"
	"log/slog"

	"github.com/tombee/apiconnect/internal/config"
	"github.com/tombee/apiconnect/internal/connector"
	"github.com/tombee/apiconnect/internal/log"
	"github.com/tombee/apiconnect/pkg/errors"
)

// ApplyResult counts what ApplyCatalog changed.
type ApplyResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Rules   int `json:"rules"`
}

// ApplyCatalog upserts every catalog connector, matching stored ones by id
// and then by name, and replaces the automation rules. Runtime state on a
// stored connector (last response, event record, and any OAuth token or
// redirect URI the catalog leaves empty) survives the update.
func (a *App) ApplyCatalog(ctx context.Context, cat *config.Catalog) (ApplyResult, error) {
	var res ApplyResult
	if err := cat.Validate(); err != nil {
		return res, err
	}

	for _, c := range cat.Connectors {
		c = c.Clone()
		existing, err := a.lookup(ctx, c)
		if err != nil {
			return res, err
		}
		if existing == nil {
			if err := a.Store.Create(ctx, c); err != nil {
				return res, errors.Wrapf(err, "failed to create connector %s", c.Name)
			}
			res.Created++
			continue
		}

		c.ID = existing.ID
		c.Response = existing.Response
		c.ResponseEventRecord = existing.ResponseEventRecord
		if c.Auth.BearerToken == "" {
			c.Auth.BearerToken = existing.Auth.BearerToken
		}
		if c.Auth.OAuth.RedirectURI == "" {
			c.Auth.OAuth.RedirectURI = existing.Auth.OAuth.RedirectURI
		}
		if err := a.Store.Update(ctx, c); err != nil {
			return res, errors.Wrapf(err, "failed to update connector %s", c.Name)
		}
		res.Updated++
	}

	if err := a.Dispatcher.SetRules(cat.Automations); err != nil {
		return res, err
	}
	res.Rules = len(cat.Automations)

	a.Logger.Info("catalog applied",
		slog.Int("created", res.Created),
		slog.Int("updated", res.Updated),
		slog.Int("rules", res.Rules))
	return res, nil
}

// LoadCatalog applies the configured catalog file, if any.
func (a *App) LoadCatalog(ctx context.Context) (ApplyResult, error) {
	if a.Config.Catalog == "" {
		return ApplyResult{}, nil
	}
	cat, err := config.LoadCatalog(a.Config.Catalog)
	if err != nil {
		return ApplyResult{}, err
	}
	return a.ApplyCatalog(ctx, cat)
}

// ReloadCatalog is LoadCatalog for the watcher: failures are logged and the
// previous catalog stays active.
func (a *App) ReloadCatalog(ctx context.Context) {
	if _, err := a.LoadCatalog(ctx); err != nil {
		a.Logger.Error("catalog reload failed", slog.String("path", a.Config.Catalog), log.Error(err))
	}
}

func (a *App) lookup(ctx context.Context, c *connector.Connector) (*connector.Connector, error) {
	if c.ID != "" {
		existing, err := a.Store.Get(ctx, c.ID)
		if err == nil {
			return existing, nil
		}
		if !isNotFound(err) {
			return nil, err
		}
	}
	existing, err := a.Store.GetByName(ctx, c.Name)
	if err == nil {
		return existing, nil
	}
	if isNotFound(err) {
		return nil, nil
	}
	return nil, err
}

func isNotFound(err error) bool {
	var nf *errors.NotFoundError
	return errors.As(err, &nf)
}
