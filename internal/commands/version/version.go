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

package version

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
	"github.com/tombee/webd/internal/commands/shared"
	"github.com/tombee/webd/internal/config"
)

// VersionInfo contains version metadata
type VersionInfo struct {
	shared.JSONResponse
	Version   string   `json:"version"`
	Commit    string   `json:"commit"`
	BuildDate string   `json:"build_date"`
	GoVersion string   `json:"go_version"`
	Platform  string   `json:"platform"`
	Features  []string `json:"features"`
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long: `Display version, commit hash, and build date for webd, along with the
launch features this build supports.`,
		RunE: runVersion,
	}

	return cmd
}

func runVersion(cmd *cobra.Command, args []string) error {
	v, c, b := shared.GetVersion()

	info := VersionInfo{
		JSONResponse: shared.NewJSONResponse("version", true),
		Version:      v,
		Commit:       c,
		BuildDate:    b,
		GoVersion:    runtime.Version(),
		Platform:     runtime.GOOS + "/" + runtime.GOARCH,
		Features:     features(config.Capabilities()),
	}

	out := cmd.OutOrStdout()
	if shared.GetJSON() {
		if err := shared.EmitJSON(out, info); err != nil {
			return fmt.Errorf("failed to write version info: %w", err)
		}
		return nil
	}

	fmt.Fprintf(out, "webd version %s\n", info.Version)
	fmt.Fprintf(out, "  %s     %s\n", shared.RenderLabel("commit:"), info.Commit)
	fmt.Fprintf(out, "  %s %s\n", shared.RenderLabel("build date:"), info.BuildDate)
	fmt.Fprintf(out, "  %s       %s (%s)\n", shared.RenderLabel("go:"), info.GoVersion, info.Platform)
	fmt.Fprintf(out, "  %s   %v\n", shared.RenderLabel("features:"), info.Features)

	return nil
}

func features(caps config.Capability) []string {
	list := []string{"profile"}
	if caps.Daemonize {
		list = append(list, "daemonize")
	}
	if caps.SwitchIdentity {
		list = append(list, "user", "group")
	}
	if caps.TLS {
		list = append(list, "ssl")
	}
	return list
}
