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

// Package connectors implements the list and send commands.
package connectors

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tombee/apiconnect/internal/commands/shared"
	"github.com/tombee/apiconnect/internal/connector"
	"github.com/tombee/apiconnect/internal/record"
)

// Summary is the list view of a connector.
type Summary struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Method string `json:"method"`
	Type   string `json:"type"`
	Auth   string `json:"auth"`
	State  string `json:"state"`
	URL    string `json:"url"`
}

func summarize(c *connector.Connector) Summary {
	return Summary{
		ID:     c.ID,
		Name:   c.Name,
		Method: string(c.RequestMethod),
		Type:   string(c.RequestType),
		Auth:   string(c.Auth.Type),
		State:  string(c.State),
		URL:    c.URL,
	}
}

// NewListCommand creates the list command.
func NewListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored connectors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := shared.OpenApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(ctx))

			conns, err := a.Store.List(ctx)
			if err != nil {
				return shared.Classify("failed to list connectors", err)
			}
			summaries := make([]Summary, len(conns))
			for i, c := range conns {
				summaries[i] = summarize(c)
			}

			out := cmd.OutOrStdout()
			if shared.GetJSON() {
				return shared.EmitJSON(out, map[string][]Summary{"connectors": summaries})
			}
			if len(summaries) == 0 {
				fmt.Fprintln(out, "No connectors stored.")
				fmt.Fprintln(out)
				fmt.Fprintln(out, "Run 'apiconnect apply -f catalog.yaml' or 'apiconnect import <collection>' to add some.")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tMETHOD\tTYPE\tAUTH\tSTATE\tURL")
			for _, s := range summaries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", s.ID, s.Name, s.Method, s.Type, s.Auth, s.State, s.URL)
			}
			return w.Flush()
		},
	}
}

// NewSendCommand creates the send command.
func NewSendCommand() *cobra.Command {
	var (
		recordRef string
		apply     bool
	)

	cmd := &cobra.Command{
		Use:   "send <connector>",
		Short: "Send a connector's request and show the response",
		Long: `Send builds and sends the request of a connector, given by id or name,
and prints the flattened response. Without --record the static values of
every rule are used. With --apply the response is also mapped into records
according to the connector state.`,
		Example: `  # Preview with static values
  apiconnect send Geocode

  # Resolve dynamic values from a record and write the result back
  apiconnect send Geocode --record contact:42 --apply`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := shared.OpenApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(ctx))

			var ev record.Record
			if recordRef != "" {
				ref, err := record.ParseRef(recordRef)
				if err != nil {
					return shared.Classify("invalid --record", err)
				}
				e, err := a.Records.Resolve(ctx, ref)
				if err != nil {
					return shared.Classify("failed to load record", err)
				}
				ev = e
			}

			out := cmd.OutOrStdout()
			c, err := a.Dispatcher.Run(ctx, args[0], ev, apply)
			if err != nil {
				if shared.GetJSON() {
					_ = shared.EmitJSONError(out, "send", err)
				}
				return shared.Classify("send failed", err)
			}

			if shared.GetJSON() {
				return shared.EmitJSON(out, struct {
					shared.JSONResponse
					Connector *connector.Connector `json:"connector"`
				}{shared.NewJSONResponse("send"), c})
			}
			fmt.Fprintln(out, c.Response)
			return nil
		},
	}
	cmd.Flags().StringVar(&recordRef, "record", "", "Event record as <entity type>:<id>")
	cmd.Flags().BoolVar(&apply, "apply", false, "Map the response into records")
	return cmd
}
