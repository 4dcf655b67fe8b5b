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

// Package cli builds the apiconnect root command.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/tombee/apiconnect/internal/commands/shared"
)

// SetVersion sets the version information (called from main)
func SetVersion(v, c, b string) {
	shared.SetVersion(v, c, b)
}

// NewRootCommand creates the root Cobra command.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apiconnect",
		Short: "apiconnect - declarative REST and GraphQL connectors",
		Long: `apiconnect sends configured HTTP requests to third-party APIs and maps
their JSON responses back into local records. Connectors run on demand or
from automation rules that watch record create, write, unlink and change
events.

Run 'apiconnect apply -f catalog.yaml' to load connectors and rules.
Run 'apiconnect serve' to start the record API and OAuth callback.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	verbose, quiet, json, config, trace := shared.RegisterFlagPointers()
	cmd.PersistentFlags().BoolVarP(verbose, "verbose", "v", false, "Enable verbose output")
	cmd.PersistentFlags().BoolVarP(quiet, "quiet", "q", false, "Suppress non-error output")
	cmd.PersistentFlags().BoolVar(json, "json", false, "Output in JSON format")
	cmd.PersistentFlags().StringVar(config, "config", "", "Path to config file (default: ~/.config/apiconnect/config.yaml)")
	cmd.PersistentFlags().BoolVar(trace, "trace", false, "Print OpenTelemetry spans to stderr")

	return cmd
}

// HandleExitError handles exit errors with proper exit codes
func HandleExitError(err error) {
	shared.HandleExitError(err)
}
