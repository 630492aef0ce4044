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

//go:build !unix

package lifecycle

import "os"

type unsupportedSystem struct{}

// NewSystem returns the System for this platform, which cannot detach.
func NewSystem(logPath string) System {
	return unsupportedSystem{}
}

func (unsupportedSystem) Fork() (bool, error) { return false, ErrDaemonizeUnsupported }

func (unsupportedSystem) Setsid() error { return ErrDaemonizeUnsupported }

func (unsupportedSystem) Chdir(dir string) error { return os.Chdir(dir) }

func (unsupportedSystem) Exit(code int) { os.Exit(code) }
