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

//go:build unix

package lifecycle

import (
	"os"

	"golang.org/x/sys/unix"
)

// reexecSystem forks by re-executing the binary.
//
// Every generation replays the launch from the start. The n-th Fork call
// of a process started as generation g returns parent=false when g >= n,
// which is the branch the real child would have taken.
type reexecSystem struct {
	stage   int
	forks   int
	spawner *spawner
}

// NewSystem returns the System for this platform. Output of detached
// generations is appended to logPath, or discarded when logPath is empty.
func NewSystem(logPath string) System {
	return &reexecSystem{
		stage:   Stage(),
		spawner: newSpawner(logPath),
	}
}

func (s *reexecSystem) Fork() (bool, error) {
	s.forks++
	if s.stage >= s.forks {
		return false, nil
	}

	if _, err := s.spawner.spawn(s.forks); err != nil {
		return false, err
	}
	return true, nil
}

func (s *reexecSystem) Setsid() error {
	// Only the generation created by the latest fork starts the session.
	if s.stage != s.forks {
		return nil
	}
	_, err := unix.Setsid()
	return err
}

func (s *reexecSystem) Chdir(dir string) error {
	return os.Chdir(dir)
}

func (s *reexecSystem) Exit(code int) {
	os.Exit(code)
}
