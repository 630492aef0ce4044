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

// Package web is the HTTP(S) server that webd launches. It serves a health
// probe and Prometheus metrics under a configurable base path.
package web

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/tombee/webd/internal/config"
	internallog "github.com/tombee/webd/internal/log"
	webderrors "github.com/tombee/webd/pkg/errors"
)

// Server manages the lifecycle of the web server.
// Configuration setters must be called before Start.
type Server struct {
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *httpMetrics
	started  time.Time

	mu     sync.RWMutex
	cfg    config.ServerConfig
	ln     net.Listener
	server *http.Server
	hooks  []func()
	cert   *tls.Certificate

	sigCh    chan os.Signal
	stopCh   chan struct{}
	stopOnce sync.Once
	readyCh  chan struct{}
}

// New creates a server with cfg as its defaults.
func New(cfg *config.ServerConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = internallog.New(internallog.FromEnv())
	}
	if cfg == nil {
		cfg = config.DefaultServer()
	}

	reg := newRegistry()
	return &Server{
		cfg:      *cfg,
		logger:   internallog.WithComponent(logger, "web"),
		registry: reg,
		metrics:  newHTTPMetrics(reg),
		stopCh:   make(chan struct{}),
		readyCh:  make(chan struct{}),
	}
}

// SetBasePath sets the URL prefix everything is served under.
func (s *Server) SetBasePath(base string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Base = config.NormalizeBase(base)
}

// SetInterface sets the address to bind to.
func (s *Server) SetInterface(iface string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Interface = iface
}

// SetPort sets the TCP port to listen on.
func (s *Server) SetPort(port int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Port = port
}

// SetTLS enables or disables HTTPS.
func (s *Server) SetTLS(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.HTTPS = enabled
}

// SetCertificate makes Start serve cert instead of reading the key pair
// named in the configuration. Use it when the files are only readable
// before privileges are dropped.
func (s *Server) SetCertificate(cert *tls.Certificate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cert = cert
}

// Config returns a copy of the effective configuration.
func (s *Server) Config() config.ServerConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// OnShutdown registers fn to run after shutdown is requested and before
// connections are drained. Hooks run in registration order.
func (s *Server) OnShutdown(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, fn)
}

// InstallSignalHandlers makes SIGINT and SIGTERM request a graceful shutdown.
func (s *Server) InstallSignalHandlers() {
	s.mu.Lock()
	if s.sigCh != nil {
		s.mu.Unlock()
		return
	}
	s.sigCh = make(chan os.Signal, 1)
	s.mu.Unlock()

	signal.Notify(s.sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-s.sigCh:
			s.logger.Info("received signal, shutting down", slog.String("signal", sig.String()))
			s.Stop()
		case <-s.stopCh:
		}
	}()
}

// Stop requests a graceful shutdown. It is safe to call more than once and
// from any goroutine.
func (s *Server) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Ready is closed once the server accepts connections.
func (s *Server) Ready() <-chan struct{} {
	return s.readyCh
}

// Addr returns the listener address, or empty string if not started.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Start binds the listener and serves until Stop is called or a signal
// arrives. Shutdown hooks have run by the time Start returns.
func (s *Server) Start() error {
	defer func() {
		s.Stop()
		s.stopSignals()
	}()

	cfg := s.Config()
	s.mu.RLock()
	cert := s.cert
	s.mu.RUnlock()

	tlsConfig, err := loadTLS(cfg, cert)
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(cfg.Interface, strconv.Itoa(cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return &webderrors.ResourceError{Op: "listen", Path: addr, Cause: err}
	}
	if tlsConfig != nil {
		ln = tls.NewListener(ln, tlsConfig)
	}

	s.started = time.Now()
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.mu.Lock()
	s.ln = ln
	s.server = srv
	s.mu.Unlock()

	s.logger.Info("web server starting",
		slog.String("listen_addr", ln.Addr().String()),
		slog.String("base", cfg.Base),
		slog.Bool("https", cfg.HTTPS))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	close(s.readyCh)

	var serveErr error
	select {
	case <-s.stopCh:
	case serveErr = <-errCh:
		s.Stop()
	}

	s.runHooks()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := s.shutdown(ctx, srv); err != nil && serveErr == nil {
		serveErr = err
	}

	if serveErr != nil {
		return fmt.Errorf("web server error: %w", serveErr)
	}
	return nil
}

func (s *Server) stopSignals() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.sigCh != nil {
		signal.Stop(s.sigCh)
	}
}

func (s *Server) runHooks() {
	s.mu.RLock()
	hooks := append([]func(){}, s.hooks...)
	s.mu.RUnlock()

	for _, fn := range hooks {
		fn()
	}
}

func (s *Server) shutdown(ctx context.Context, srv *http.Server) error {
	s.logger.Info("web server shutting down")

	srv.SetKeepAlivesEnabled(false)

	if err := srv.Shutdown(ctx); err != nil {
		s.logger.Warn("web server shutdown error", internallog.Error(err))
		return err
	}

	s.logger.Info("web server stopped")
	return nil
}

// LoadCertificate reads the key pair named in cfg.
func LoadCertificate(cfg *config.ServerConfig) (*tls.Certificate, error) {
	cert, err := tls.LoadX509KeyPair(cfg.TLSCert, cfg.TLSKey)
	if err != nil {
		return nil, &webderrors.ResourceError{Op: "load certificate", Path: cfg.TLSCert, Cause: err}
	}
	return &cert, nil
}

func loadTLS(cfg config.ServerConfig, cert *tls.Certificate) (*tls.Config, error) {
	if !cfg.HTTPS {
		return nil, nil
	}

	if cert == nil {
		var err error
		if cert, err = LoadCertificate(&cfg); err != nil {
			return nil, err
		}
	}

	return &tls.Config{
		Certificates: []tls.Certificate{*cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
