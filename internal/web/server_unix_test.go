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

package web

import (
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestServer_SignalTriggersShutdown(t *testing.T) {
	s := New(testConfig(), nil)

	hookRan := make(chan struct{})
	s.OnShutdown(func() { close(hookRan) })
	s.InstallSignalHandlers()

	errCh := startServer(t, s)

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGTERM))

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after SIGTERM")
	}

	select {
	case <-hookRan:
	default:
		t.Error("shutdown hook did not run before Start() returned")
	}
}
