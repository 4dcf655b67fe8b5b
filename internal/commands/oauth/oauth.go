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

// Package oauth implements the oauth url and oauth token commands.
package oauth

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tombee/apiconnect/internal/commands/shared"
)

// NewCommand creates the oauth command group.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "oauth",
		Short: "Obtain OAuth2 tokens for connectors",
	}
	cmd.AddCommand(newURLCommand(), newTokenCommand())
	return cmd
}

func newURLCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "url <connector>",
		Short: "Print the authorization URL for the authorization code grant",
		Long: `Print the URL that starts the authorization code grant. After consent the
provider redirects to <server.public_url>/oauthcallback, where a running
'apiconnect serve' exchanges the code and stores the token.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := shared.OpenApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(ctx))

			c, err := shared.FindConnector(ctx, a.Store, args[0])
			if err != nil {
				return shared.Classify("oauth url failed", err)
			}
			defer a.Dispatcher.Locks().Lock(c.ID)()

			u, err := a.OAuth.AuthorizationURL(ctx, c)
			if err != nil {
				return shared.Classify("oauth url failed", err)
			}
			// The redirect URI is part of the connector from now on.
			if err := a.Store.Update(ctx, c); err != nil {
				return shared.Classify("failed to save connector", err)
			}

			out := cmd.OutOrStdout()
			if shared.GetJSON() {
				return shared.EmitJSON(out, map[string]string{"url": u, "redirect_uri": c.Auth.OAuth.RedirectURI})
			}
			fmt.Fprintln(out, u)
			return nil
		},
	}
}

func newTokenCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "token <connector>",
		Short: "Fetch a token with the client credentials grant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := shared.OpenApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(ctx))

			c, err := shared.FindConnector(ctx, a.Store, args[0])
			if err != nil {
				return shared.Classify("oauth token failed", err)
			}
			defer a.Dispatcher.Locks().Lock(c.ID)()

			if err := a.OAuth.ClientCredentials(ctx, c); err != nil {
				return shared.Classify("oauth token failed", err)
			}
			if err := a.Store.Update(ctx, c); err != nil {
				return shared.Classify("failed to save connector", err)
			}
			if !shared.GetQuiet() {
				fmt.Fprintf(cmd.OutOrStdout(), "Token stored for connector %s\n", c.Name)
			}
			return nil
		},
	}
}
