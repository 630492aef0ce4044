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

package config

import (
	"path/filepath"
	"strconv"
)

// ProfileFileName is the name of the CPU profile written to the config directory.
const ProfileFileName = "webd.profile"

// LifecycleLogFileName is the name of the lifecycle event log in the config directory.
const LifecycleLogFileName = "lifecycle.log"

// PIDFileName is where status and stop look when no --pidfile is given.
const PIDFileName = "webd.pid"

// LaunchConfig is the resolved set of startup options.
// It is built once from parsed arguments and never mutated afterwards;
// optional fields use their zero value (or nil) to mean "not given".
type LaunchConfig struct {
	// Daemonize detaches the process from its terminal before anything else.
	Daemonize bool

	// PIDFile is the path the process id is recorded to. Empty means no PID file.
	PIDFile string

	// Group is the group name or numeric gid to switch to.
	Group string

	// User is the user name or numeric uid to switch to.
	User string

	// Interface is the address the server binds to.
	Interface string

	// Port is the port the server listens on. Zero means not given.
	Port int

	// BasePath is the URL prefix the server is mounted under (reverse proxying).
	BasePath string

	// UseTLS forces TLS on (true) or off (false). Nil leaves the server default.
	UseTLS *bool

	// Profile wraps the run loop in a CPU profiler.
	Profile bool

	// ConfigDir is the service configuration directory; the daemon's working
	// directory and the profile output location.
	ConfigDir string

	// LogFile receives the output of detached generations. Empty means /dev/null.
	LogFile string
}

// ProfilePath returns the fixed profile output path derived from ConfigDir.
func (c *LaunchConfig) ProfilePath() string {
	return filepath.Join(c.ConfigDir, ProfileFileName)
}

// LifecycleLogPath returns the lifecycle event log path derived from ConfigDir.
func (c *LaunchConfig) LifecycleLogPath() string {
	return filepath.Join(c.ConfigDir, LifecycleLogFileName)
}

// DefaultPIDFile returns the PID file operator commands use by default.
func DefaultPIDFile(configDir string) string {
	return filepath.Join(configDir, PIDFileName)
}

// Args renders the options back into command-line form for the lifecycle log.
func (c *LaunchConfig) Args() []string {
	var args []string
	if !c.Daemonize {
		args = append(args, "--do-not-daemonize")
	}
	if c.PIDFile != "" {
		args = append(args, "--pidfile", c.PIDFile)
	}
	if c.Group != "" {
		args = append(args, "--group", c.Group)
	}
	if c.User != "" {
		args = append(args, "--user", c.User)
	}
	if c.Interface != "" {
		args = append(args, "--interface", c.Interface)
	}
	if c.Port != 0 {
		args = append(args, "--port", strconv.Itoa(c.Port))
	}
	if c.BasePath != "" {
		args = append(args, "--base", c.BasePath)
	}
	if c.UseTLS != nil {
		if *c.UseTLS {
			args = append(args, "--ssl")
		} else {
			args = append(args, "--no-ssl")
		}
	}
	if c.Profile {
		args = append(args, "--profile")
	}
	return args
}

// Bool returns a pointer to b, for optional boolean fields.
func Bool(b bool) *bool {
	return &b
}
