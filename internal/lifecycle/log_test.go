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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLifecycleLogger_Events(t *testing.T) {
	t.Setenv(StageEnv, "2")
	logPath := filepath.Join(t.TempDir(), "logs", "lifecycle.log")
	l := NewLifecycleLogger(logPath).WithLaunchID("launch-1")

	require.NoError(t, l.LogStart("1.2.3", []string{"--pidfile", "/tmp/t.pid", "-d", "--port=9000"}))
	require.NoError(t, l.LogDaemonized(42))
	require.NoError(t, l.LogPIDFileWritten(42, "/tmp/t.pid"))
	require.NoError(t, l.LogPrivilegesDropped(42, ProcessIdentity{UID: 1000, GID: Unchanged}))
	require.NoError(t, l.LogServing(42, true))
	require.NoError(t, l.LogExit(42, errors.New("listen failed")))

	events, err := ReadEvents(logPath)
	require.NoError(t, err)
	require.Len(t, events, 6)

	names := make([]string, len(events))
	for i, e := range events {
		names[i] = e.Event
		assert.Equal(t, "launch-1", e.LaunchID)
		assert.Equal(t, 2, e.Stage)
		assert.False(t, e.Timestamp.IsZero())
	}
	assert.Equal(t, []string{"start", "daemonized", "pidfile_written", "privileges_dropped", "serving", "exit"}, names)

	assert.Equal(t, map[string]string{"pidfile": "/tmp/t.pid", "d": "true", "port": "9000"}, events[0].Flags)
	assert.Equal(t, "/tmp/t.pid", events[2].Path)

	require.NotNil(t, events[3].UID)
	assert.Equal(t, 1000, *events[3].UID)
	assert.Nil(t, events[3].GID)

	assert.False(t, events[5].Success)
	assert.Equal(t, "listen failed", events[5].Error)

	info, err := os.Stat(logPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode()&os.ModePerm)
}

func TestLifecycleLogger_StopEvents(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "lifecycle.log")
	l := NewLifecycleLogger(logPath)

	require.NoError(t, l.LogStop(7, true))
	require.NoError(t, l.LogStopSuccess(7, 1500*time.Millisecond))
	require.NoError(t, l.LogStopFailure(8, errors.New("timeout")))
	require.NoError(t, l.LogStalePID(9, "process not running"))

	events, err := ReadEvents(logPath)
	require.NoError(t, err)
	require.Len(t, events, 4)

	assert.Equal(t, "Force stop initiated", events[0].Message)
	assert.Contains(t, events[1].Message, "1.5s")
	assert.Equal(t, "timeout", events[2].Error)
	assert.Contains(t, events[3].Message, "process not running")
	assert.Empty(t, events[0].LaunchID)
}

func TestLifecycleLogger_NilDiscards(t *testing.T) {
	var l *LifecycleLogger

	assert.NoError(t, l.LogStart("dev", nil))
	assert.NoError(t, l.LogStartFailure(errors.New("boom")))
	assert.NoError(t, l.Open())
	assert.NoError(t, l.Close())
	assert.Nil(t, l.WithLaunchID("x"))
}

func TestLifecycleLogger_OpenKeepsHandle(t *testing.T) {
	root := t.TempDir()
	logPath := filepath.Join(root, "conf", "lifecycle.log")
	l := NewLifecycleLogger(logPath)
	require.NoError(t, l.Open())
	require.NoError(t, l.Open(), "second Open is a no-op")

	// Events follow the open handle once the path no longer leads to it.
	moved := filepath.Join(root, "moved")
	require.NoError(t, os.Rename(filepath.Dir(logPath), moved))

	tagged := l.WithLaunchID("launch-2")
	require.NoError(t, tagged.LogServing(7, false))
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())

	events, err := ReadEvents(filepath.Join(moved, "lifecycle.log"))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "launch-2", events[0].LaunchID)
	assert.NoFileExists(t, logPath)

	// After Close each event opens the path again.
	require.NoError(t, l.LogExit(7, nil))
	events, err = ReadEvents(logPath)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "exit", events[0].Event)
}

func TestLifecycleLogger_OpenFailure(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))

	l := NewLifecycleLogger(filepath.Join(blocker, "lifecycle.log"))
	assert.Error(t, l.Open())
	assert.Error(t, l.LogExit(1, nil))
}

func TestReadEvents(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		events, err := ReadEvents(filepath.Join(t.TempDir(), "absent.log"))
		require.NoError(t, err)
		assert.Empty(t, events)
	})

	t.Run("skips malformed lines", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "lifecycle.log")
		content := "{\"event\":\"start\",\"success\":true}\nnot json\n\n{\"event\":\"exit\",\"success\":true}\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0600))

		events, err := ReadEvents(path)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, "exit", events[1].Event)
	})
}

func TestParseFlags(t *testing.T) {
	got := parseFlags([]string{"serve", "-b", "/ui", "--ssl", "--user=www-data", "--port", "8112"})

	want := map[string]string{
		"b":    "/ui",
		"ssl":  "true",
		"user": "www-data",
		"port": "8112",
	}
	assert.Equal(t, want, got)
}
