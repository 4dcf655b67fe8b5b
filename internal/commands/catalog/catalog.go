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

// Package catalog implements the apply and validate commands.
package catalog

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tombee/apiconnect/internal/app"
	"github.com/tombee/apiconnect/internal/commands/shared"
	"github.com/tombee/apiconnect/internal/config"
	"github.com/tombee/apiconnect/internal/jq"
	"github.com/tombee/apiconnect/internal/script"
	"github.com/tombee/apiconnect/pkg/errors"
)

// NewApplyCommand creates the apply command.
func NewApplyCommand() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "apply -f <catalog>",
		Short: "Load connectors and automation rules into the store",
		Long: `Apply upserts every connector in a catalog file, matching stored
connectors by id and then by name, and replaces the automation rules.
The last response and any OAuth token of an existing connector are kept.`,
		Example: `  apiconnect apply -f catalog.yaml`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := config.LoadCatalog(file)
			if err != nil {
				return shared.Classify("invalid catalog", err)
			}
			if err := checkExpressions(cat); err != nil {
				return shared.Classify("invalid catalog", err)
			}

			ctx := cmd.Context()
			a, err := shared.OpenApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(ctx))

			res, err := a.ApplyCatalog(ctx, cat)
			if err != nil {
				return shared.Classify("apply failed", err)
			}
			return printApply(cmd, a, res)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Catalog file to apply")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func printApply(cmd *cobra.Command, a *app.App, res app.ApplyResult) error {
	out := cmd.OutOrStdout()
	if shared.GetJSON() {
		return shared.EmitJSON(out, struct {
			shared.JSONResponse
			app.ApplyResult
		}{shared.NewJSONResponse("apply"), res})
	}
	if shared.GetQuiet() {
		return nil
	}
	fmt.Fprintf(out, "Applied catalog: %d created, %d updated, %d automation rules\n", res.Created, res.Updated, res.Rules)
	if a.Config.Storage.Driver == config.StorageMemory {
		fmt.Fprintln(out, "Note: storage.driver is memory, so nothing persists after this command exits.")
	}
	return nil
}

// NewValidateCommand creates the validate command.
func NewValidateCommand() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "validate -f <catalog>",
		Short: "Check a catalog file without applying it",
		Long: `Validate parses a catalog file and checks every connector and automation
rule, including filter, code and response_transform expressions. It does not
contact any API or touch storage.`,
		Example: `  apiconnect validate -f catalog.yaml
  apiconnect validate -f catalog.yaml --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			cat, err := config.LoadCatalog(file)
			if err == nil {
				err = checkExpressions(cat)
			}
			if err != nil {
				if shared.GetJSON() {
					_ = shared.EmitJSONError(out, "validate", err)
				}
				return shared.Classify("invalid catalog", err)
			}

			if shared.GetJSON() {
				return shared.EmitJSON(out, struct {
					shared.JSONResponse
					Connectors  int `json:"connectors"`
					Automations int `json:"automations"`
				}{shared.NewJSONResponse("validate"), len(cat.Connectors), len(cat.Automations)})
			}
			if !shared.GetQuiet() {
				fmt.Fprintf(out, "Catalog is valid: %d connectors, %d automation rules\n", len(cat.Connectors), len(cat.Automations))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Catalog file to validate")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// checkExpressions compiles every filter, code block and jq transform.
func checkExpressions(cat *config.Catalog) error {
	scripts := script.New()
	transforms := jq.NewExecutor(0, 0)
	for _, c := range cat.Connectors {
		if c.Code != "" {
			if err := scripts.Validate(c.Code, false); err != nil {
				return errors.Wrapf(err, "connector %s", c.Name)
			}
		}
		if c.ResponseTransform != "" {
			if err := transforms.Validate(c.ResponseTransform); err != nil {
				return &errors.ValidationError{Field: "response_transform", Message: fmt.Sprintf("connector %s: %v", c.Name, err)}
			}
		}
	}
	for _, r := range cat.Automations {
		if r.Filter != "" {
			if err := scripts.Validate(r.Filter, true); err != nil {
				return errors.Wrapf(err, "automation %s", r.Name)
			}
		}
	}
	return nil
}
