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
Package lifecycle implements the process-level steps of bringing webd up:
detaching from the terminal, recording the PID, switching identity and
profiling the run loop, plus the operator-side helpers used by the status
and stop commands.

# Daemonization

The Daemonizer performs the classic double fork against a System:

	fork -> parent exits 0 -> setsid -> fork -> parent exits 0 -> chdir

The Go runtime cannot fork a running process, so NewSystem implements a fork
as a re-execution of the current binary with the generation number carried in
WEBD_DAEMON_STAGE. Each generation replays the program from the start;
steps owned by an earlier generation are skipped.

	d := lifecycle.NewDaemonizer(lifecycle.NewSystem(logPath), configDir, logger)
	survivor, err := d.Daemonize()
	if err != nil {
	    // fork failed, nothing has been bound or written yet
	}
	if !survivor {
	    return nil // parent generation
	}

# PID File

	if err := lifecycle.NewPIDFile("/run/webd.pid").Write(os.Getpid()); err != nil {
	    // fatal: the operator could not manage the daemon
	}

# Identity

Group is always switched before user:

	r := lifecycle.NewIdentityResolver(lifecycle.NewIdentitySystem(), logger)
	if _, err := r.Drop("www-data", "www-data"); err != nil {
	    // fatal
	}

# Profiling

	p := lifecycle.NewProfiler(profilePath, logger)
	err := p.Run(server, server.Start)

Samples are flushed exactly once, from whichever of the server's shutdown
hook or the return of Run happens first.
*/
package lifecycle
