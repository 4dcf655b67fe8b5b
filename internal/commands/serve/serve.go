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

// Package serve implements the serve command.
package serve

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tombee/apiconnect/internal/commands/shared"
	"github.com/tombee/apiconnect/internal/config"
	"github.com/tombee/apiconnect/internal/log"
)

// NewCommand creates the serve command.
func NewCommand() *cobra.Command {
	var (
		addr  string
		watch bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the record API, OAuth callback and metrics",
		Long: `Serve starts the HTTP server:

  POST   /records/{type}               create a record
  GET    /records/{type}/{id}          read a record
  PATCH  /records/{type}/{id}          write a record
  DELETE /records/{type}/{id}          unlink a record
  POST   /records/{type}/{id}/onchange raise a change event for unsaved values
  POST   /connectors/{id}/send         send a connector (?record=type:id&apply=true)
  GET    /oauthcallback                OAuth2 authorization code callback
  GET    /metrics                      Prometheus metrics
  GET    /healthz                      health check

Record writes run the matching automation rules. With --watch the catalog
file is re-applied whenever it changes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := shared.OpenApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(ctx))

			if addr == "" {
				addr = a.Config.Server.Addr
			}

			if watch {
				if a.Config.Catalog == "" {
					a.Logger.Warn("--watch ignored: no catalog configured")
				} else {
					go func() {
						err := config.Watch(ctx, a.Config.Catalog, config.DefaultDebounce, a.Logger, func() {
							a.ReloadCatalog(ctx)
						})
						if err != nil {
							a.Logger.Error("catalog watcher stopped", log.Error(err))
						}
					}()
				}
			}

			if err := a.Server().ListenAndServe(ctx, addr, a.Config.Server.ShutdownTimeout); err != nil {
				return shared.NewFailedError("server failed", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default: server.addr)")
	cmd.Flags().BoolVar(&watch, "watch", false, "Re-apply the catalog file when it changes")
	return cmd
}
