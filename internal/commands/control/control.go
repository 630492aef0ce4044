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

// Package control implements the operator commands that inspect and stop a
// running webd through its PID file.
package control

import (
	"path/filepath"

	"github.com/tombee/webd/internal/commands/shared"
	"github.com/tombee/webd/internal/config"
	"github.com/tombee/webd/internal/lifecycle"
)

// Exit codes of the status command, as LSB init scripts expect.
const (
	ExitStatusDead       = 1 // PID file exists but the process is gone
	ExitStatusNotRunning = 3
	ExitStatusUnknown    = 4
)

// target is the server instance an operator command acts on.
type target struct {
	configDir string
	pidFile   *lifecycle.PIDFile
	events    *lifecycle.LifecycleLogger
}

func resolveTarget(pidFile string) (*target, error) {
	configDir, err := config.ConfigDir(shared.GetConfigDir())
	if err != nil {
		return nil, shared.NewExitError("failed to resolve config directory", err)
	}

	if pidFile == "" {
		pidFile = config.DefaultPIDFile(configDir)
	}

	return &target{
		configDir: configDir,
		pidFile:   lifecycle.NewPIDFile(pidFile),
		events:    lifecycle.NewLifecycleLogger(filepath.Join(configDir, config.LifecycleLogFileName)),
	}, nil
}
