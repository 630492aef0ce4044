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
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/pprof"
	"sync"

	"github.com/tombee/webd/internal/log"
	webderrors "github.com/tombee/webd/pkg/errors"
)

// Sampler collects a CPU profile into a writer between Start and Stop.
type Sampler interface {
	Start(w io.Writer) error
	Stop()
}

// ShutdownNotifier registers work to run when the server shuts down.
type ShutdownNotifier interface {
	OnShutdown(fn func())
}

type cpuSampler struct{}

func (cpuSampler) Start(w io.Writer) error { return pprof.StartCPUProfile(w) }

func (cpuSampler) Stop() { pprof.StopCPUProfile() }

// Profiler runs a function under a CPU profile and writes the samples to a
// single file. Write failures are logged, never returned.
type Profiler struct {
	path    string
	sampler Sampler
	logger  *slog.Logger

	out       *os.File
	buf       bytes.Buffer
	running   bool
	flushOnce sync.Once
	flushErr  error
}

// NewProfiler creates a Profiler that writes to path.
func NewProfiler(path string, logger *slog.Logger) *Profiler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Profiler{
		path:    path,
		sampler: cpuSampler{},
		logger:  log.WithComponent(logger, "profiler"),
	}
}

// WithSampler replaces the runtime CPU sampler.
func (p *Profiler) WithSampler(s Sampler) *Profiler {
	p.sampler = s
	return p
}

// Path returns where the profile is written.
func (p *Profiler) Path() string {
	return p.path
}

// Open creates the profile file now so that Flush can write it after the
// process has lost access to its directory. Without Open, Flush replaces
// the file atomically.
func (p *Profiler) Open() error {
	if p.out != nil {
		return nil
	}
	f, err := os.OpenFile(p.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return &webderrors.ProfilerIOError{Path: p.path, Cause: err}
	}
	p.out = f
	return nil
}

// Run starts sampling, registers Flush as a shutdown hook on n and calls run.
// The samples are flushed once whether the server shuts down cleanly or run
// returns an error. If sampling cannot start, run is called unprofiled.
func (p *Profiler) Run(n ShutdownNotifier, run func() error) error {
	if err := p.sampler.Start(&p.buf); err != nil {
		p.logger.Warn("profiler unavailable, running without it", log.Error(err))
		return run()
	}
	p.running = true

	n.OnShutdown(p.Flush)
	p.logger.Info("running with profiler", log.PathKey, p.path)

	err := run()
	p.Flush()
	return err
}

// Flush stops sampling and writes the profile. Only the first call does
// anything; later calls wait for it to finish.
func (p *Profiler) Flush() {
	p.flushOnce.Do(func() {
		if !p.running {
			if p.out != nil {
				p.out.Close()
				p.out = nil
			}
			return
		}
		p.sampler.Stop()

		if err := p.save(); err != nil {
			p.flushErr = &webderrors.ProfilerIOError{Path: p.path, Cause: err}
			p.logger.Error("failed to save profile", log.Error(p.flushErr))
			return
		}
		p.logger.Info("profile saved", log.PathKey, p.path, slog.Int("bytes", p.buf.Len()))
	})
}

func (p *Profiler) save() error {
	if p.out == nil {
		return writeFileAtomic(p.path, p.buf.Bytes(), 0600)
	}
	f := p.out
	p.out = nil
	if _, err := f.Write(p.buf.Bytes()); err != nil {
		f.Close()
		return fmt.Errorf("failed to write profile: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync profile: %w", err)
	}
	return f.Close()
}

// Err returns the error from the flush, if any.
func (p *Profiler) Err() error {
	return p.flushErr
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	return os.Rename(tmpName, path)
}
