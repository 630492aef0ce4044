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
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LifecycleEvent is one line of the lifecycle log.
type LifecycleEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	Event     string            `json:"event"` // "start", "daemonized", "stop", etc.
	LaunchID  string            `json:"launch_id,omitempty"`
	PID       int               `json:"pid,omitempty"`
	Stage     int               `json:"stage,omitempty"`
	Version   string            `json:"version,omitempty"`
	Success   bool              `json:"success"`
	Message   string            `json:"message,omitempty"`
	Flags     map[string]string `json:"flags,omitempty"`
	Path      string            `json:"path,omitempty"`
	UID       *int              `json:"uid,omitempty"`
	GID       *int              `json:"gid,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// LifecycleLogger appends launch and stop events to a JSON lines file so an
// operator can reconstruct what a detached server did.
// A nil *LifecycleLogger discards every event.
type LifecycleLogger struct {
	logPath  string
	launchID string
	out      *eventFile
}

// eventFile is the handle shared by a logger and its WithLaunchID copies.
type eventFile struct {
	mu sync.Mutex
	f  *os.File
}

// NewLifecycleLogger creates a new lifecycle logger.
func NewLifecycleLogger(logPath string) *LifecycleLogger {
	return &LifecycleLogger{
		logPath: logPath,
		out:     &eventFile{},
	}
}

// WithLaunchID returns a logger that tags every event with id. All
// generations of one launch share the id.
func (l *LifecycleLogger) WithLaunchID(id string) *LifecycleLogger {
	if l == nil {
		return nil
	}
	return &LifecycleLogger{logPath: l.logPath, launchID: id, out: l.out}
}

// Open keeps the log open until Close. Events written after the process
// gives up the rights to open the file still reach it.
// Without Open every event opens and closes the file.
func (l *LifecycleLogger) Open() error {
	if l == nil {
		return nil
	}
	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	if l.out.f != nil {
		return nil
	}

	f, err := openEventLog(l.logPath)
	if err != nil {
		return err
	}
	l.out.f = f
	return nil
}

// Close releases the handle taken by Open.
func (l *LifecycleLogger) Close() error {
	if l == nil {
		return nil
	}
	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	if l.out.f == nil {
		return nil
	}
	err := l.out.f.Close()
	l.out.f = nil
	return err
}

// LogStart logs that a launch was requested.
func (l *LifecycleLogger) LogStart(version string, args []string) error {
	return l.writeEvent(LifecycleEvent{
		Event:   "start",
		PID:     os.Getpid(),
		Version: version,
		Success: true,
		Message: "Launch initiated",
		Flags:   parseFlags(args),
	})
}

// LogDaemonized logs that pid survived the double fork.
func (l *LifecycleLogger) LogDaemonized(pid int) error {
	return l.writeEvent(LifecycleEvent{
		Event:   "daemonized",
		PID:     pid,
		Success: true,
		Message: "Detached from terminal",
	})
}

// LogPIDFileWritten logs that pid was recorded at path.
func (l *LifecycleLogger) LogPIDFileWritten(pid int, path string) error {
	return l.writeEvent(LifecycleEvent{
		Event:   "pidfile_written",
		PID:     pid,
		Path:    path,
		Success: true,
	})
}

// LogPrivilegesDropped logs the identity the process switched to.
// Unchanged IDs are omitted.
func (l *LifecycleLogger) LogPrivilegesDropped(pid int, id ProcessIdentity) error {
	event := LifecycleEvent{
		Event:   "privileges_dropped",
		PID:     pid,
		Success: true,
	}
	if id.UID != Unchanged {
		uid := id.UID
		event.UID = &uid
	}
	if id.GID != Unchanged {
		gid := id.GID
		event.GID = &gid
	}
	return l.writeEvent(event)
}

// LogServing logs that the server is about to enter its run loop.
func (l *LifecycleLogger) LogServing(pid int, profiled bool) error {
	message := "Server starting"
	if profiled {
		message = "Server starting with profiler"
	}
	return l.writeEvent(LifecycleEvent{
		Event:   "serving",
		PID:     pid,
		Success: true,
		Message: message,
	})
}

// LogStartFailure logs a launch that aborted.
func (l *LifecycleLogger) LogStartFailure(err error) error {
	return l.writeEvent(LifecycleEvent{
		Event:   "start_failure",
		PID:     os.Getpid(),
		Success: false,
		Message: "Launch failed",
		Error:   errorString(err),
	})
}

// LogExit logs that the run loop returned.
func (l *LifecycleLogger) LogExit(pid int, err error) error {
	return l.writeEvent(LifecycleEvent{
		Event:   "exit",
		PID:     pid,
		Success: err == nil,
		Error:   errorString(err),
	})
}

// LogStop logs a stop request from the operator.
func (l *LifecycleLogger) LogStop(pid int, force bool) error {
	message := "Stop initiated"
	if force {
		message = "Force stop initiated"
	}

	return l.writeEvent(LifecycleEvent{
		Event:   "stop",
		PID:     pid,
		Success: true,
		Message: message,
	})
}

// LogStopSuccess logs that pid exited after a stop request.
func (l *LifecycleLogger) LogStopSuccess(pid int, duration time.Duration) error {
	return l.writeEvent(LifecycleEvent{
		Event:   "stop_success",
		PID:     pid,
		Success: true,
		Message: fmt.Sprintf("Stopped (duration: %v)", duration.Round(time.Millisecond)),
	})
}

// LogStopFailure logs that pid could not be stopped.
func (l *LifecycleLogger) LogStopFailure(pid int, err error) error {
	return l.writeEvent(LifecycleEvent{
		Event:   "stop_failure",
		PID:     pid,
		Success: false,
		Message: "Failed to stop",
		Error:   errorString(err),
	})
}

// LogStalePID logs detection of a PID file naming a dead process.
func (l *LifecycleLogger) LogStalePID(pid int, reason string) error {
	return l.writeEvent(LifecycleEvent{
		Event:   "stale_pid_detected",
		PID:     pid,
		Success: true,
		Message: fmt.Sprintf("Stale PID file detected: %s", reason),
	})
}

// writeEvent appends a lifecycle event to the log file.
func (l *LifecycleLogger) writeEvent(event LifecycleEvent) error {
	if l == nil {
		return nil
	}

	event.Timestamp = time.Now()
	event.LaunchID = l.launchID
	event.Stage = Stage()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	l.out.mu.Lock()
	defer l.out.mu.Unlock()

	f := l.out.f
	if f == nil {
		if f, err = openEventLog(l.logPath); err != nil {
			return err
		}
		defer f.Close()
	}

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}

	return nil
}

func openEventLog(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open lifecycle log: %w", err)
	}
	return f, nil
}

// ReadEvents returns every event in the log at path, oldest first.
// Malformed lines are skipped.
func ReadEvents(path string) ([]LifecycleEvent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var events []LifecycleEvent
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var event LifecycleEvent
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// parseFlags converts command-line arguments to a map of flags.
// This is a simple parser for logging purposes.
func parseFlags(args []string) map[string]string {
	flags := make(map[string]string)

	for i := 0; i < len(args); i++ {
		arg := args[i]

		if !strings.HasPrefix(arg, "-") {
			continue
		}

		key := strings.TrimLeft(arg, "-")
		if k, v, ok := strings.Cut(key, "="); ok {
			flags[k] = v
			continue
		}

		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			flags[key] = args[i+1]
			i++
		} else {
			flags[key] = "true"
		}
	}

	return flags
}
