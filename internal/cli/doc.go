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

/*
Package cli provides the root command of webd.

Running webd without a subcommand launches the server: the launch flags are
resolved into a config.LaunchConfig and handed to the launch Supervisor,
which daemonizes, records the PID, drops privileges and serves.

# Command Tree

	webd              Launch the server
	├── status        Report whether an instance is running and healthy
	├── stop          Stop a running instance
	├── version       Show version
	└── help          Show help

# Usage

From main.go:

	cli.SetVersion(version, commit, date)
	if err := cli.NewRootCommand().Execute(); err != nil {
	    cli.HandleExitError(err)
	}

# Flags

Launch flags that the platform cannot honour are not registered at all:
-d/--do-not-daemonize needs daemonize support, -U/--user and -g/--group
need identity switching and --ssl/--no-ssl need TLS support.

# Error Handling

Errors map to sysexits codes:

  - 0: success
  - 1: general failure
  - 67: unknown user or group
  - 71: an OS resource (fork, PID file, socket, certificate) failed
  - 77: the process may not switch to the requested identity
  - 78: invalid configuration

status uses LSB codes instead: 1 stale PID file, 3 not running, 4 unhealthy.
*/
package cli
