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

package control

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/tombee/webd/internal/commands/shared"
	"github.com/tombee/webd/internal/lifecycle"
)

type stopOptions struct {
	pidFile string
	timeout time.Duration
	force   bool
}

// NewStopCommand creates the stop command.
func NewStopCommand() *cobra.Command {
	var opts stopOptions

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop a running webd",
		Long: `Stop the webd instance recorded in a PID file.

Sends SIGTERM and waits for the server to finish its shutdown hooks.
With --force, SIGKILL follows if the timeout is exceeded.

The stop command is idempotent: if webd is not running, it exits
successfully after cleaning up a stale PID file.`,
		Example: `  # Stop the default instance
  webd stop

  # Stop an instance started with -P, killing it after 10s
  webd stop -P /run/webd.pid --timeout 10s --force`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStop(cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.pidFile, "pidfile", "P", "", "PID file of the instance (default: <config>/webd.pid)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "Graceful shutdown timeout")
	cmd.Flags().BoolVar(&opts.force, "force", false, "Send SIGKILL if the timeout is exceeded")

	return cmd
}

func runStop(out io.Writer, opts stopOptions) error {
	t, err := resolveTarget(opts.pidFile)
	if err != nil {
		return err
	}

	if !t.pidFile.Exists() {
		fmt.Fprintln(out, "webd is not running (no PID file)")
		return nil
	}

	status, err := lifecycle.Inspect(t.pidFile)
	if err != nil {
		return shared.NewExitError("failed to read PID file", err)
	}
	pid := status.PID

	if status.Stale {
		// A live process whose command was read and is not webd.
		if status.Command != "" && !lifecycle.IsWebdProcess(pid) {
			return &shared.ExitError{
				Code:    shared.ExitFailure,
				Message: fmt.Sprintf("PID %d is not a webd process (refusing to stop)", pid),
			}
		}

		if err := t.events.LogStalePID(pid, status.Reason); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to write lifecycle log: %v\n", err)
		}

		fmt.Fprintf(out, "webd process %d is not running (removing stale PID file)\n", pid)

		if err := t.pidFile.Remove(); err != nil {
			return fmt.Errorf("failed to remove stale PID file: %w", err)
		}
		return nil
	}

	if err := t.events.LogStop(pid, opts.force); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to write lifecycle log: %v\n", err)
	}

	startTime := time.Now()
	fmt.Fprintf(out, "Stopping webd (PID %d)...\n", pid)

	if err := lifecycle.GracefulShutdown(pid, opts.timeout, opts.force); err != nil {
		if logErr := t.events.LogStopFailure(pid, err); logErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to write lifecycle log: %v\n", logErr)
		}
		return fmt.Errorf("failed to stop webd: %w", err)
	}

	duration := time.Since(startTime)

	// The server does not remove its own PID file.
	if err := t.pidFile.Remove(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to remove PID file: %v\n", err)
	}

	if err := t.events.LogStopSuccess(pid, duration); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to write lifecycle log: %v\n", err)
	}

	fmt.Fprintln(out, shared.RenderOK("webd stopped"))
	return nil
}
