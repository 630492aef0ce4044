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

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	webderrors "github.com/tombee/webd/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ServerFileName is the name of the server defaults file in the config directory.
const ServerFileName = "web.yaml"

var (
	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("config: invalid configuration")
)

// ServerConfig holds the web server's own defaults.
// Launch options override individual fields; anything not overridden keeps
// the value from web.yaml, or the built-in default when the file is absent.
type ServerConfig struct {
	// Interface is the address to bind to.
	// Default: 0.0.0.0
	Interface string `yaml:"interface"`

	// Port is the TCP port to listen on.
	// Default: 8112
	Port int `yaml:"port"`

	// Base is the URL path prefix the UI is served under.
	// Default: /
	Base string `yaml:"base"`

	// HTTPS enables TLS.
	// Default: false
	HTTPS bool `yaml:"https"`

	// TLSCert is the certificate path, relative paths resolve against the config dir.
	// Default: ssl/webd.cert
	TLSCert string `yaml:"tls_cert,omitempty"`

	// TLSKey is the private key path, relative paths resolve against the config dir.
	// Default: ssl/webd.key
	TLSKey string `yaml:"tls_key,omitempty"`

	// ShutdownTimeout bounds graceful shutdown of in-flight requests.
	// Default: 5s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout,omitempty"`
}

// DefaultServer returns a ServerConfig with built-in defaults.
func DefaultServer() *ServerConfig {
	return &ServerConfig{
		Interface:       "0.0.0.0",
		Port:            8112,
		Base:            "/",
		HTTPS:           false,
		TLSCert:         filepath.Join("ssl", "webd.cert"),
		TLSKey:          filepath.Join("ssl", "webd.key"),
		ShutdownTimeout: 5 * time.Second,
	}
}

// LoadServer reads web.yaml from configDir on top of the built-in defaults.
// A missing file is not an error.
func LoadServer(configDir string) (*ServerConfig, error) {
	cfg := DefaultServer()

	path := filepath.Join(configDir, ServerFileName)
	if err := cfg.loadFromFile(path); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	cfg.resolvePaths(configDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *ServerConfig) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return &webderrors.ConfigError{
			Reason: fmt.Sprintf("failed to read %s", path),
			Cause:  err,
		}
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return &webderrors.ConfigError{
			Reason: fmt.Sprintf("failed to parse %s", path),
			Cause:  err,
		}
	}

	return nil
}

// applyDefaults fills zero values a partial file may have cleared.
func (c *ServerConfig) applyDefaults() {
	def := DefaultServer()
	if c.Interface == "" {
		c.Interface = def.Interface
	}
	if c.Port == 0 {
		c.Port = def.Port
	}
	if c.Base == "" {
		c.Base = def.Base
	}
	if c.TLSCert == "" {
		c.TLSCert = def.TLSCert
	}
	if c.TLSKey == "" {
		c.TLSKey = def.TLSKey
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = def.ShutdownTimeout
	}
	c.Base = NormalizeBase(c.Base)
}

func (c *ServerConfig) resolvePaths(configDir string) {
	if !filepath.IsAbs(c.TLSCert) {
		c.TLSCert = filepath.Join(configDir, c.TLSCert)
	}
	if !filepath.IsAbs(c.TLSKey) {
		c.TLSKey = filepath.Join(configDir, c.TLSKey)
	}
}

// Validate checks the server configuration for invalid values.
func (c *ServerConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return &webderrors.ConfigError{
			Key:    "port",
			Reason: fmt.Sprintf("must be between 1 and 65535, got %d", c.Port),
			Cause:  ErrInvalidConfig,
		}
	}
	if c.ShutdownTimeout < 0 {
		return &webderrors.ConfigError{
			Key:    "shutdown_timeout",
			Reason: "must not be negative",
			Cause:  ErrInvalidConfig,
		}
	}
	return nil
}

// NormalizeBase turns a base path into the "/prefix/" form used for routing.
func NormalizeBase(base string) string {
	base = strings.Trim(strings.TrimSpace(base), "/")
	if base == "" {
		return "/"
	}
	return "/" + base + "/"
}
