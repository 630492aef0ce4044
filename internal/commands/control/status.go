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
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/tombee/webd/internal/commands/shared"
	"github.com/tombee/webd/internal/config"
	"github.com/tombee/webd/internal/lifecycle"
)

// StatusOutput is the JSON form of the status command.
type StatusOutput struct {
	shared.JSONResponse
	PIDFile        string `json:"pid_file"`
	PID            int    `json:"pid,omitempty"`
	Running        bool   `json:"running"`
	Stale          bool   `json:"stale,omitempty"`
	Reason         string `json:"reason,omitempty"`
	Command        string `json:"command,omitempty"`
	Endpoint       string `json:"endpoint,omitempty"`
	Healthy        bool   `json:"healthy"`
	ResponseTimeMS int64  `json:"response_time_ms,omitempty"`
	HealthError    string `json:"health_error,omitempty"`
}

type statusOptions struct {
	pidFile string
	wait    time.Duration

	// Overrides for instances launched with -i, -p or -b.
	iface string
	port  int
	base  string
}

// NewStatusCommand creates the status command.
func NewStatusCommand() *cobra.Command {
	var opts statusOptions

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether webd is running and healthy",
		Long: `Report the state of the webd instance recorded in a PID file.

The process named in the PID file is checked, then the health endpoint of
the server configured in web.yaml is probed.

Exit codes follow LSB conventions: 0 running, 1 dead with a stale PID file,
3 not running, 4 running but not healthy.`,
		Example: `  # Check the default instance
  webd status

  # Check an instance started with -P
  webd status --pidfile /run/webd.pid

  # Wait up to 10s for a freshly launched daemon to become healthy
  webd status --wait 10s

  # Check an instance launched with -p 9000 -b /webui/
  webd status -p 9000 -b /webui/`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.pidFile, "pidfile", "P", "", "PID file of the instance (default: <config>/webd.pid)")
	cmd.Flags().DurationVar(&opts.wait, "wait", 0, "Keep probing health for up to this long")
	cmd.Flags().StringVarP(&opts.iface, "interface", "i", "", "Interface the instance listens on (default: from web.yaml)")
	cmd.Flags().IntVarP(&opts.port, "port", "p", 0, "Port the instance listens on (default: from web.yaml)")
	cmd.Flags().StringVarP(&opts.base, "base", "b", "", "Base path the instance serves under (default: from web.yaml)")

	return cmd
}

func runStatus(ctx context.Context, out io.Writer, opts statusOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}

	t, err := resolveTarget(opts.pidFile)
	if err != nil {
		return err
	}

	result := StatusOutput{
		JSONResponse: shared.NewJSONResponse("status", false),
		PIDFile:      t.pidFile.Path(),
	}

	status, err := lifecycle.Inspect(t.pidFile)
	switch {
	case errors.Is(err, os.ErrNotExist):
		result.Reason = "no PID file"
		return finishStatus(out, result, &shared.ExitError{Code: ExitStatusNotRunning, Message: "webd is not running"})
	case err != nil:
		return shared.NewExitError("failed to read PID file", err)
	}

	result.PID = status.PID
	result.Command = status.Command
	if status.Stale {
		result.Stale = true
		result.Reason = status.Reason
		if logErr := t.events.LogStalePID(status.PID, status.Reason); logErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to write lifecycle log: %v\n", logErr)
		}
		return finishStatus(out, result, &shared.ExitError{
			Code:    ExitStatusDead,
			Message: fmt.Sprintf("webd is not running, stale PID file names %d (%s)", status.PID, status.Reason),
		})
	}
	result.Running = true

	srvCfg, err := config.LoadServer(t.configDir)
	if err != nil {
		result.HealthError = err.Error()
		return finishStatus(out, result, &shared.ExitError{Code: ExitStatusUnknown, Message: "cannot probe health", Cause: err})
	}

	if opts.iface != "" {
		srvCfg.Interface = opts.iface
	}
	if opts.port != 0 {
		srvCfg.Port = opts.port
	}
	if opts.base != "" {
		srvCfg.Base = config.NormalizeBase(opts.base)
	}

	checker := lifecycle.NewHealthChecker(lifecycle.HealthEndpoint(srvCfg.Interface, srvCfg.Port, srvCfg.Base, srvCfg.HTTPS))
	result.Endpoint = checker.Endpoint()

	var check *lifecycle.HealthCheckResult
	if opts.wait > 0 {
		waitCtx, cancel := context.WithTimeout(ctx, opts.wait)
		defer cancel()
		err = checker.WaitUntilHealthy(waitCtx, func(r *lifecycle.HealthCheckResult, _ int) { check = r })
	} else {
		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		check = checker.Check(checkCtx)
		err = check.Error
	}

	if check != nil {
		result.ResponseTimeMS = check.ResponseTime.Milliseconds()
	}
	if err != nil {
		result.HealthError = err.Error()
		return finishStatus(out, result, &shared.ExitError{Code: ExitStatusUnknown, Message: "webd is running but not healthy", Cause: err})
	}

	result.Healthy = true
	result.Success = true
	return finishStatus(out, result, nil)
}

// finishStatus prints result and returns exitErr unchanged.
func finishStatus(out io.Writer, result StatusOutput, exitErr error) error {
	if shared.GetJSON() {
		if err := shared.EmitJSON(out, result); err != nil {
			return err
		}
		return exitErr
	}

	switch {
	case result.Healthy:
		fmt.Fprintln(out, shared.RenderOK(fmt.Sprintf("webd is running (PID %d)", result.PID)))
	case result.Running:
		fmt.Fprintln(out, shared.RenderWarn(fmt.Sprintf("webd is running (PID %d) but not healthy", result.PID)))
	case result.Stale:
		fmt.Fprintln(out, shared.RenderWarn(fmt.Sprintf("webd is not running (stale PID %d: %s)", result.PID, result.Reason)))
	default:
		fmt.Fprintln(out, "webd is not running")
	}

	fmt.Fprintf(out, "  %s %s\n", shared.RenderLabel("pid file:"), result.PIDFile)
	if result.Command != "" {
		fmt.Fprintf(out, "  %s  %s\n", shared.RenderLabel("command:"), result.Command)
	}
	if result.Endpoint != "" {
		health := fmt.Sprintf("ok (%dms)", result.ResponseTimeMS)
		if !result.Healthy {
			health = result.HealthError
		}
		fmt.Fprintf(out, "  %s   %s %s\n", shared.RenderLabel("health:"), result.Endpoint, health)
	}

	return exitErr
}
