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
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

const (
	helperEnv    = "WEBD_TEST_DAEMON_HELPER"
	helperDirEnv = "WEBD_TEST_DAEMON_DIR"
	reportName   = "survivor.report"
)

// TestMain doubles as the daemonized program when the helper variable is set.
// Every generation re-executes the test binary and lands here again.
func TestMain(m *testing.M) {
	if os.Getenv(helperEnv) == "1" {
		os.Exit(runDaemonHelper())
	}
	os.Exit(m.Run())
}

func runDaemonHelper() int {
	dir := os.Getenv(helperDirEnv)
	sys := NewSystem(filepath.Join(dir, "daemon.log"))

	survivor, err := NewDaemonizer(sys, dir, nil).Daemonize()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if !survivor {
		return 0
	}

	sid, err := unix.Getsid(0)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	report := fmt.Sprintf("%d %d %d\n%s\n", os.Getpid(), sid, Stage(), cwd)
	if err := os.WriteFile(filepath.Join(dir, reportName), []byte(report), 0600); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func TestReexecSystem_DoubleFork(t *testing.T) {
	if os.Getenv("SKIP_SPAWN_TESTS") != "" {
		t.Skip("Skipping spawn tests (SKIP_SPAWN_TESTS is set)")
	}

	dir := t.TempDir()

	cmd := exec.Command(os.Args[0], "-test.run=^$")
	cmd.Env = append(withStage(os.Environ(), 0), helperEnv+"=1", helperDirEnv+"="+dir)
	out, err := cmd.CombinedOutput()
	skipOnSpawnError(t, err)
	if err != nil {
		t.Fatalf("original process failed: %v\n%s", err, out)
	}

	reportPath := filepath.Join(dir, reportName)
	var report []byte
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		report, err = os.ReadFile(reportPath)
		if err == nil && strings.HasSuffix(string(report), "\n") && strings.Count(string(report), "\n") == 2 {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	if err != nil {
		logData, _ := os.ReadFile(filepath.Join(dir, "daemon.log"))
		t.Fatalf("survivor never reported: %v\n%s", err, logData)
	}

	lines := strings.Split(strings.TrimSpace(string(report)), "\n")
	fields := strings.Fields(lines[0])
	if len(fields) != 3 || len(lines) != 2 {
		t.Fatalf("malformed report: %q", report)
	}
	pid, _ := strconv.Atoi(fields[0])
	sid, _ := strconv.Atoi(fields[1])

	if fields[2] != "2" {
		t.Errorf("survivor stage = %s, want 2", fields[2])
	}
	if sid == pid {
		t.Error("survivor is a session leader, want it to be the second fork's child")
	}
	ownSid, err := unix.Getsid(0)
	if err == nil && sid == ownSid {
		t.Error("survivor shares the test's session")
	}

	wantDir, _ := filepath.EvalSymlinks(dir)
	gotDir, _ := filepath.EvalSymlinks(lines[1])
	if gotDir != wantDir {
		t.Errorf("survivor cwd = %q, want %q", gotDir, wantDir)
	}
}

func TestReexecSystem_LaterGenerationSkipsEarlierSteps(t *testing.T) {
	errSpawn := errors.New("spawn must not be called")
	sys := &reexecSystem{
		stage: 2,
		spawner: &spawner{
			binary: func() (string, error) { return "", errSpawn },
		},
	}

	parent, err := sys.Fork()
	if err != nil || parent {
		t.Fatalf("first Fork() = %v, %v, want child", parent, err)
	}
	// Generation 2 must not start a second session.
	if err := sys.Setsid(); err != nil {
		t.Fatalf("Setsid() error = %v", err)
	}
	parent, err = sys.Fork()
	if err != nil || parent {
		t.Fatalf("second Fork() = %v, %v, want child", parent, err)
	}
}

func TestReexecSystem_ForkFailure(t *testing.T) {
	errSpawn := errors.New("no executable")
	sys := &reexecSystem{
		spawner: &spawner{
			binary: func() (string, error) { return "", errSpawn },
		},
	}

	parent, err := sys.Fork()
	if parent {
		t.Error("Fork() parent = true on failure")
	}
	if !errors.Is(err, errSpawn) {
		t.Errorf("Fork() error = %v, want %v", err, errSpawn)
	}
}
