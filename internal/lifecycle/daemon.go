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
	"errors"
	"log/slog"

	"github.com/tombee/webd/internal/log"
	webderrors "github.com/tombee/webd/pkg/errors"
)

// ErrDaemonizeUnsupported is returned by systems that cannot detach a process.
var ErrDaemonizeUnsupported = errors.New("daemonizing is not supported on this platform")

// System is the operating system surface the Daemonizer drives.
type System interface {
	// Fork duplicates the process. parent is true in the original process.
	Fork() (parent bool, err error)

	// Setsid starts a new session with the caller as leader.
	Setsid() error

	// Chdir changes the working directory.
	Chdir(dir string) error

	// Exit terminates the process immediately with code.
	// Real implementations never return.
	Exit(code int)
}

// Daemonizer detaches the process from its controlling terminal and session.
type Daemonizer struct {
	sys    System
	dir    string
	logger *slog.Logger
}

// NewDaemonizer creates a Daemonizer that leaves the survivor in dir.
func NewDaemonizer(sys System, dir string, logger *slog.Logger) *Daemonizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Daemonizer{
		sys:    sys,
		dir:    dir,
		logger: log.WithComponent(logger, "daemonizer"),
	}
}

// Daemonize runs fork, setsid, fork, chdir in that order.
//
// Parent generations call Exit(0) and, with a real System, never return.
// survivor is false only when Exit returned, which test doubles do.
// Any failure is a ResourceError and nothing after it has run.
func (d *Daemonizer) Daemonize() (survivor bool, err error) {
	parent, err := d.sys.Fork()
	if err != nil {
		return false, &webderrors.ResourceError{Op: "fork", Cause: err}
	}
	if parent {
		d.sys.Exit(0)
		return false, nil
	}

	if err := d.sys.Setsid(); err != nil {
		return false, &webderrors.ResourceError{Op: "setsid", Cause: err}
	}

	// The second fork leaves a survivor that is not a session leader and
	// so can never acquire a controlling terminal again.
	parent, err = d.sys.Fork()
	if err != nil {
		return false, &webderrors.ResourceError{Op: "fork", Cause: err}
	}
	if parent {
		d.sys.Exit(0)
		return false, nil
	}

	if err := d.sys.Chdir(d.dir); err != nil {
		return false, &webderrors.ResourceError{Op: "chdir", Path: d.dir, Cause: err}
	}

	d.logger.Debug("detached from terminal", log.PathKey, d.dir)
	return true, nil
}
