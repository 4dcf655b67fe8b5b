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

// Package collection implements import and export of Postman collections.
package collection

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	"github.com/tombee/apiconnect/internal/commands/shared"
	"github.com/tombee/apiconnect/internal/connector"
	"github.com/tombee/apiconnect/internal/postman"
	"github.com/tombee/apiconnect/pkg/errors"
)

// NewImportCommand creates the import command.
func NewImportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import <collection>...",
		Short: "Create connectors from Postman collections",
		Long: `Import reads Postman v2 collection files and creates one connector per
request. Arguments may be glob patterns, including ** for recursive
matches. A file whose request names collide with stored connectors is
rejected as a whole.`,
		Example: `  apiconnect import api.postman_collection.json
  apiconnect import 'collections/**/*.json'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := expand(args)
			if err != nil {
				return shared.Classify("import failed", err)
			}

			ctx := cmd.Context()
			a, err := shared.OpenApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(ctx))

			var imported []string
			for _, file := range files {
				data, err := os.ReadFile(file)
				if err != nil {
					return shared.NewFailedError("failed to read "+file, err)
				}
				conns, err := postman.ImportInto(ctx, a.Store, data)
				if err != nil {
					return shared.Classify("failed to import "+file, err)
				}
				for _, c := range conns {
					imported = append(imported, c.Name)
				}
			}

			out := cmd.OutOrStdout()
			if shared.GetJSON() {
				return shared.EmitJSON(out, struct {
					shared.JSONResponse
					Imported []string `json:"imported"`
				}{shared.NewJSONResponse("import"), imported})
			}
			if !shared.GetQuiet() {
				fmt.Fprintf(out, "Imported %d connectors from %d files\n", len(imported), len(files))
			}
			return nil
		},
	}
}

// expand resolves glob patterns to a sorted, duplicate-free file list.
func expand(patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	for _, p := range patterns {
		matches, err := doublestar.FilepathGlob(p)
		if err != nil {
			return nil, &errors.ValidationError{Field: "pattern", Message: fmt.Sprintf("invalid pattern %q: %v", p, err)}
		}
		if len(matches) == 0 {
			return nil, &errors.NotFoundError{Resource: "collection file", ID: p}
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				files = append(files, m)
			}
		}
	}
	sort.Strings(files)
	return files, nil
}

// NewExportCommand creates the export command.
func NewExportCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export [connector]...",
		Short: "Write connectors as a Postman collection",
		Long: `Export writes the given connectors, by id or name, or all stored
connectors when none are given, as a Postman v2 collection. Only static
values are exported.`,
		Example: `  apiconnect export -o connectors.postman_collection.json
  apiconnect export Geocode Weather`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := shared.OpenApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(ctx))

			var conns []*connector.Connector
			if len(args) == 0 {
				conns, err = a.Store.List(ctx)
				if err != nil {
					return shared.Classify("export failed", err)
				}
			}
			for _, ref := range args {
				c, err := shared.FindConnector(ctx, a.Store, ref)
				if err != nil {
					return shared.Classify("export failed", err)
				}
				conns = append(conns, c)
			}

			data, err := postman.Export(conns)
			if err != nil {
				return shared.NewFailedError("export failed", err)
			}
			if output == "" || output == "-" {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return shared.NewFailedError("failed to write "+output, err)
			}
			if !shared.GetQuiet() {
				fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d connectors to %s\n", len(conns), output)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to file instead of stdout")
	return cmd
}
