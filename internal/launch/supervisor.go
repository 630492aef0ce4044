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

// Package launch brings webd up: it takes the launch options parsed from the
// command line, performs the process-level steps in order and hands control
// to the web server.
package launch

import (
	"errors"
	"log/slog"
	"os"

	"github.com/tombee/webd/internal/config"
	"github.com/tombee/webd/internal/lifecycle"
	"github.com/tombee/webd/internal/log"
	webderrors "github.com/tombee/webd/pkg/errors"
)

// Server is what the Supervisor launches.
type Server interface {
	SetBasePath(base string)
	SetInterface(iface string)
	SetPort(port int)
	SetTLS(enabled bool)

	// InstallSignalHandlers makes termination signals stop the server.
	InstallSignalHandlers()

	// OnShutdown registers work to run before Start returns.
	OnShutdown(fn func())

	// Start serves until shutdown.
	Start() error
}

// ServerFactory constructs the server once privileges have been dropped.
// Files only the launching identity can read, such as the server config or
// key pair, must be loaded before Launch.
type ServerFactory func() (Server, error)

// Options supplies the collaborators of a Supervisor. Zero values select the
// real implementations.
type Options struct {
	// System performs the double fork. Defaults to lifecycle.NewSystem.
	System lifecycle.System

	// Identity resolves and applies user and group changes.
	// Defaults to lifecycle.NewIdentitySystem.
	Identity lifecycle.IdentitySystem

	// Sampler replaces the runtime CPU sampler when profiling.
	Sampler lifecycle.Sampler

	// NewServer is required.
	NewServer ServerFactory

	// Events records lifecycle events. Nil disables them.
	Events *lifecycle.LifecycleLogger

	Logger *slog.Logger

	// Getpid defaults to os.Getpid.
	Getpid func() int
}

// Supervisor runs one launch.
type Supervisor struct {
	cfg    config.LaunchConfig
	opts   Options
	logger *slog.Logger

	server Server
}

// New creates a Supervisor for cfg.
func New(cfg config.LaunchConfig, opts Options) *Supervisor {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.System == nil {
		opts.System = lifecycle.NewSystem(cfg.LogFile)
	}
	if opts.Identity == nil {
		opts.Identity = lifecycle.NewIdentitySystem()
	}
	if opts.Getpid == nil {
		opts.Getpid = os.Getpid
	}

	return &Supervisor{
		cfg:    cfg,
		opts:   opts,
		logger: log.WithComponent(opts.Logger, "launch"),
	}
}

// Server returns the server once it has been constructed, nil before.
func (s *Supervisor) Server() Server {
	return s.server
}

// Launch performs, in order: daemonize, write the PID file, switch group,
// switch user, construct and configure the server, install signal handlers
// and serve, optionally under the profiler.
//
// Launch returns nil without serving in a generation that exited during
// daemonization. Any failure before serving aborts the launch.
func (s *Supervisor) Launch() error {
	// Opened while the process may still write the config dir.
	if err := s.opts.Events.Open(); err != nil {
		s.logger.Warn("failed to open lifecycle log", log.Error(err))
	}
	defer s.opts.Events.Close()

	err := s.launch()
	if err != nil {
		s.logger.Error("launch failed",
			log.Error(err),
			slog.String("error_type", webderrors.Classify(err)))
		s.record(s.opts.Events.LogStartFailure(err))
	}
	return err
}

func (s *Supervisor) launch() error {
	if s.cfg.Daemonize {
		d := lifecycle.NewDaemonizer(s.opts.System, s.cfg.ConfigDir, s.opts.Logger)
		survivor, err := d.Daemonize()
		if err != nil {
			return err
		}
		if !survivor {
			return nil
		}
		s.record(s.opts.Events.LogDaemonized(s.opts.Getpid()))
	}

	pid := s.opts.Getpid()
	logger := s.logger.With(log.PIDKey, pid, log.StageKey, lifecycle.Stage())

	var pidFile *lifecycle.PIDFile
	if s.cfg.PIDFile != "" {
		pidFile = lifecycle.NewPIDFile(s.cfg.PIDFile)
		if err := pidFile.Write(pid); err != nil {
			return err
		}
		logger.Info("wrote pid file", log.PathKey, pidFile.Path())
		s.record(s.opts.Events.LogPIDFileWritten(pid, pidFile.Path()))
	}

	// The profile is created before the identity changes; the target user
	// may not be able to reach the config dir.
	var profiler *lifecycle.Profiler
	if s.cfg.Profile {
		profiler = lifecycle.NewProfiler(s.cfg.ProfilePath(), s.opts.Logger)
		if s.opts.Sampler != nil {
			profiler.WithSampler(s.opts.Sampler)
		}
		if err := profiler.Open(); err != nil {
			logger.Warn("failed to create profile file", log.Error(err))
		}
	}

	if s.cfg.Group != "" || s.cfg.User != "" {
		resolver := lifecycle.NewIdentityResolver(s.opts.Identity, s.opts.Logger)
		id, err := resolver.Drop(s.cfg.Group, s.cfg.User)
		if err != nil {
			s.discardPIDFile(pidFile)
			return err
		}
		s.record(s.opts.Events.LogPrivilegesDropped(pid, id))
	}

	server, err := s.buildServer()
	if err != nil {
		s.discardPIDFile(pidFile)
		return err
	}
	s.server = server

	run := func() error {
		server.InstallSignalHandlers()
		return server.Start()
	}

	s.record(s.opts.Events.LogServing(pid, s.cfg.Profile))
	logger.Info("starting server", slog.Bool("profile", s.cfg.Profile))

	if profiler != nil {
		err = profiler.Run(server, run)
	} else {
		err = run()
	}

	s.record(s.opts.Events.LogExit(pid, err))
	if err != nil {
		s.discardPIDFile(pidFile)
		return err
	}
	logger.Info("server stopped")
	return nil
}

// record reports a lifecycle event that could not be written. The launch
// goes on without it.
func (s *Supervisor) record(err error) {
	if err != nil {
		s.logger.Debug("failed to write lifecycle log", log.Error(err))
	}
}

// buildServer constructs the server and applies only the options the
// operator gave.
func (s *Supervisor) buildServer() (Server, error) {
	if s.opts.NewServer == nil {
		return nil, errors.New("launch: no server factory configured")
	}

	server, err := s.opts.NewServer()
	if err != nil {
		return nil, webderrors.Wrap(err, "failed to create server")
	}

	if s.cfg.BasePath != "" {
		log.Trace(s.logger, "overriding base path", slog.String("base", s.cfg.BasePath))
		server.SetBasePath(s.cfg.BasePath)
	}
	if s.cfg.Interface != "" {
		log.Trace(s.logger, "overriding interface", slog.String("interface", s.cfg.Interface))
		server.SetInterface(s.cfg.Interface)
	}
	if s.cfg.Port != 0 {
		log.Trace(s.logger, "overriding port", slog.Int("port", s.cfg.Port))
		server.SetPort(s.cfg.Port)
	}
	if s.cfg.UseTLS != nil {
		log.Trace(s.logger, "overriding tls", slog.Bool("tls", *s.cfg.UseTLS))
		server.SetTLS(*s.cfg.UseTLS)
	}

	return server, nil
}

// discardPIDFile removes a PID file naming a process that is about to exit.
// After an identity change the removal can fail for lack of permission; the
// file is then left for status to report as stale.
func (s *Supervisor) discardPIDFile(p *lifecycle.PIDFile) {
	if p == nil {
		return
	}
	if err := p.Remove(); err != nil {
		s.logger.Warn("failed to remove pid file", log.PathKey, p.Path(), log.Error(err))
	}
}
