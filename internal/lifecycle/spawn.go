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

package lifecycle

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	webderrors "github.com/tombee/webd/pkg/errors"
)

// StageEnv carries the daemon generation into re-executed processes.
const StageEnv = "WEBD_DAEMON_STAGE"

// Stage returns the daemon generation this process was started as.
// The process started by the operator is generation 0.
func Stage() int {
	stage, err := strconv.Atoi(os.Getenv(StageEnv))
	if err != nil || stage < 0 {
		return 0
	}
	return stage
}

// spawner starts the next generation of the current program.
type spawner struct {
	// binary resolves the executable to run. Defaults to os.Executable.
	binary func() (string, error)

	// args are passed after the program name, usually os.Args[1:].
	args []string

	// env is the base environment, StageEnv is replaced.
	env []string

	// logPath receives the child's stdout and stderr. Empty discards them.
	logPath string
}

func newSpawner(logPath string) *spawner {
	return &spawner{
		binary:  os.Executable,
		args:    os.Args[1:],
		env:     os.Environ(),
		logPath: logPath,
	}
}

// spawn starts generation stage detached from the caller's stdio and
// returns its PID. The child is released, never waited on.
func (s *spawner) spawn(stage int) (int, error) {
	binary, err := s.binary()
	if err != nil {
		return 0, fmt.Errorf("failed to resolve executable: %w", err)
	}

	stdin, err := os.Open(os.DevNull)
	if err != nil {
		return 0, webderrors.Wrapf(err, "failed to open %s", os.DevNull)
	}
	defer stdin.Close()

	out, err := s.openOutput()
	if err != nil {
		return 0, err
	}
	defer out.Close()

	cmd := exec.Command(binary, s.args...)
	cmd.Env = withStage(s.env, stage)
	cmd.Stdin = stdin
	cmd.Stdout = out
	cmd.Stderr = out

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start process: %w", err)
	}

	pid := cmd.Process.Pid

	if err := cmd.Process.Release(); err != nil {
		return pid, fmt.Errorf("process started but failed to release: %w", err)
	}

	return pid, nil
}

func (s *spawner) openOutput() (io.WriteCloser, error) {
	if s.logPath == "" {
		f, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
		if err != nil {
			return nil, webderrors.Wrapf(err, "failed to open %s", os.DevNull)
		}
		return f, nil
	}

	if err := os.MkdirAll(filepath.Dir(s.logPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	f, err := os.OpenFile(s.logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, nil
}

func withStage(env []string, stage int) []string {
	out := make([]string, 0, len(env)+1)
	prefix := StageEnv + "="
	for _, kv := range env {
		if strings.HasPrefix(kv, prefix) {
			continue
		}
		out = append(out, kv)
	}
	return append(out, prefix+strconv.Itoa(stage))
}
