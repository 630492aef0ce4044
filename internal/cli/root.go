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

package cli

import (
	"github.com/spf13/cobra"
	"github.com/tombee/webd/internal/commands/control"
	"github.com/tombee/webd/internal/commands/shared"
	"github.com/tombee/webd/internal/commands/version"
	"github.com/tombee/webd/internal/config"
)

// SetVersion sets the version information (called from main)
func SetVersion(v, c, b string) {
	shared.SetVersion(v, c, b)
}

// NewRootCommand creates the root Cobra command for webd. Running it without
// a subcommand launches the server.
func NewRootCommand() *cobra.Command {
	return newRootCommand(config.Capabilities())
}

func newRootCommand(caps config.Capability) *cobra.Command {
	var flags launchFlags

	cmd := &cobra.Command{
		Use:   "webd",
		Short: "webd - web interface daemon",
		Long: `webd launches the web interface server.

By default webd detaches from the terminal, records its PID and serves
until it receives SIGINT or SIGTERM. Options given on the command line
override the defaults in web.yaml in the config directory.

Run 'webd status' to check on a running instance and 'webd stop' to
shut it down.`,
		Example: `  # Run in the foreground on port 9000
  webd -d -p 9000

  # Daemonize as www-data behind a reverse proxy
  webd -P /run/webd.pid -U www-data -g www-data -b /webd/

  # Profile a foreground run (written to <config>/webd.profile)
  webd -d --profile`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true, // Don't show usage on errors
		SilenceErrors: true, // We handle errors ourselves for proper exit codes
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLaunch(cmd, &flags, caps)
		},
	}

	json, configDir := shared.RegisterFlagPointers()

	cmd.PersistentFlags().BoolVar(json, "json", false, "Output in JSON format")
	cmd.PersistentFlags().StringVarP(configDir, "config", "c", "", "Config directory (default: ~/.config/webd)")

	registerLaunchFlags(cmd, &flags, caps)

	cmd.SetHelpCommand(NewHelpCommand(cmd))
	cmd.AddCommand(
		control.NewStatusCommand(),
		control.NewStopCommand(),
		version.NewVersionCommand(),
	)

	return cmd
}

// GetVersion returns version information
func GetVersion() (string, string, string) {
	return shared.GetVersion()
}

// HandleExitError handles exit errors with proper exit codes
func HandleExitError(err error) {
	shared.HandleExitError(err)
}
