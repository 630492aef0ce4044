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

package cli

import (
	"crypto/tls"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/tombee/webd/internal/commands/shared"
	"github.com/tombee/webd/internal/config"
	"github.com/tombee/webd/internal/launch"
	"github.com/tombee/webd/internal/lifecycle"
	"github.com/tombee/webd/internal/log"
	"github.com/tombee/webd/internal/web"
	webderrors "github.com/tombee/webd/pkg/errors"
)

// LaunchIDEnv carries the launch id to the generations of a daemonized
// launch so their log lines and lifecycle events correlate.
const LaunchIDEnv = "WEBD_LAUNCH_ID"

// launchFlags holds the raw launch flag values.
type launchFlags struct {
	base     string
	noDaemon bool
	pidFile  string
	user     string
	group    string
	iface    string
	port     int
	profile  bool
	ssl      bool
	noSSL    bool
	logFile  string
	logLevel string
}

func registerLaunchFlags(cmd *cobra.Command, f *launchFlags, caps config.Capability) {
	fs := cmd.Flags()

	fs.StringVarP(&f.base, "base", "b", "", "URL prefix to serve under, for reverse proxying")
	if caps.Daemonize {
		fs.BoolVarP(&f.noDaemon, "do-not-daemonize", "d", false, "Stay in the foreground")
	}
	fs.StringVarP(&f.pidFile, "pidfile", "P", "", "Record the process id to this file")
	if caps.SwitchIdentity {
		fs.StringVarP(&f.user, "user", "U", "", "User name or uid to run as")
		fs.StringVarP(&f.group, "group", "g", "", "Group name or gid to run as")
	}
	fs.StringVarP(&f.iface, "interface", "i", "", "Address to listen on")
	fs.IntVarP(&f.port, "port", "p", 0, "Port to listen on")
	fs.BoolVar(&f.profile, "profile", false, "Write a CPU profile of the run to <config>/webd.profile")
	if caps.TLS {
		fs.BoolVar(&f.ssl, "ssl", false, "Serve HTTPS")
		fs.BoolVar(&f.noSSL, "no-ssl", false, "Serve plain HTTP")
		cmd.MarkFlagsMutuallyExclusive("ssl", "no-ssl")
	}
	fs.StringVarP(&f.logFile, "logfile", "l", "", "Output file of the detached daemon (default: discarded)")
	fs.StringVarP(&f.logLevel, "loglevel", "L", "", "Log level: trace, debug, info, warn, error")
}

// buildLaunchConfig resolves the flags into a LaunchConfig. Paths are made
// absolute because the daemon changes directory before writing them.
func buildLaunchConfig(cmd *cobra.Command, f *launchFlags, caps config.Capability) (config.LaunchConfig, error) {
	configDir, err := config.ConfigDir(shared.GetConfigDir())
	if err != nil {
		return config.LaunchConfig{}, &webderrors.ConfigError{Key: "config", Reason: "cannot prepare config directory", Cause: err}
	}

	cfg := config.LaunchConfig{
		Daemonize: caps.Daemonize && !f.noDaemon,
		Group:     f.group,
		User:      f.user,
		Interface: f.iface,
		Port:      f.port,
		BasePath:  f.base,
		Profile:   f.profile,
		ConfigDir: configDir,
	}

	if f.port < 0 || f.port > 65535 {
		return cfg, &webderrors.ConfigError{
			Key:    "port",
			Reason: fmt.Sprintf("must be between 1 and 65535, got %d", f.port),
			Cause:  config.ErrInvalidConfig,
		}
	}

	if cfg.PIDFile, err = absPath(f.pidFile); err != nil {
		return cfg, &webderrors.ConfigError{Key: "pidfile", Reason: "invalid path", Cause: err}
	}
	if cfg.LogFile, err = absPath(f.logFile); err != nil {
		return cfg, &webderrors.ConfigError{Key: "logfile", Reason: "invalid path", Cause: err}
	}

	switch {
	case cmd.Flags().Changed("ssl") && f.ssl:
		cfg.UseTLS = config.Bool(true)
	case cmd.Flags().Changed("no-ssl") && f.noSSL:
		cfg.UseTLS = config.Bool(false)
	}

	return cfg, nil
}

func absPath(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	return filepath.Abs(p)
}

// launchID returns the id shared by every generation of this launch,
// creating it in the first one.
func launchID() string {
	if id := os.Getenv(LaunchIDEnv); id != "" {
		return id
	}
	id := uuid.New().String()
	_ = os.Setenv(LaunchIDEnv, id)
	return id
}

// prepareServer loads the server defaults and, when the server will serve
// TLS, its key pair.
func prepareServer(cfg config.LaunchConfig) (*config.ServerConfig, *tls.Certificate, error) {
	srvCfg, err := config.LoadServer(cfg.ConfigDir)
	if err != nil {
		return nil, nil, err
	}

	useTLS := srvCfg.HTTPS
	if cfg.UseTLS != nil {
		useTLS = *cfg.UseTLS
	}
	if !useTLS {
		return srvCfg, nil, nil
	}

	cert, err := web.LoadCertificate(srvCfg)
	if err != nil {
		return nil, nil, err
	}
	return srvCfg, cert, nil
}

func runLaunch(cmd *cobra.Command, f *launchFlags, caps config.Capability) error {
	cfg, err := buildLaunchConfig(cmd, f, caps)
	if err != nil {
		return shared.NewExitError("invalid launch options", err)
	}

	logCfg := log.FromEnv()
	if f.logLevel != "" {
		logCfg.Level = f.logLevel
	}
	id := launchID()
	logger := log.WithCorrelationID(log.New(logCfg), id)

	events := lifecycle.NewLifecycleLogger(cfg.LifecycleLogPath()).WithLaunchID(id)
	if lifecycle.Stage() == 0 {
		v, _, _ := shared.GetVersion()
		if err := events.LogStart(v, cfg.Args()); err != nil {
			logger.Warn("failed to write lifecycle log", log.Error(err))
		}
	}

	// Read everything the server needs while the process still has the
	// launching identity's access to the config dir.
	srvCfg, cert, err := prepareServer(cfg)
	if err != nil {
		if logErr := events.LogStartFailure(err); logErr != nil {
			logger.Warn("failed to write lifecycle log", log.Error(logErr))
		}
		return shared.NewExitError("failed to prepare server", err)
	}

	sup := launch.New(cfg, launch.Options{
		NewServer: func() (launch.Server, error) {
			srv := web.New(srvCfg, logger)
			if cert != nil {
				srv.SetCertificate(cert)
			}
			return srv, nil
		},
		Events: events,
		Logger: logger,
	})

	if err := sup.Launch(); err != nil {
		return shared.NewExitError("launch failed", err)
	}
	return nil
}
