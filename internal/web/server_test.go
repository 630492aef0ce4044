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

package web

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"io"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tombee/webd/internal/config"
	webderrors "github.com/tombee/webd/pkg/errors"
)

func testConfig() *config.ServerConfig {
	cfg := config.DefaultServer()
	cfg.Interface = "127.0.0.1"
	cfg.Port = 0
	cfg.ShutdownTimeout = 2 * time.Second
	return cfg
}

// startServer runs s in the background and waits until it accepts connections.
func startServer(t *testing.T, s *Server) <-chan error {
	t.Helper()

	errCh := make(chan error, 1)
	go func() { errCh <- s.Start() }()

	select {
	case <-s.Ready():
	case err := <-errCh:
		t.Fatalf("Start() returned early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server never became ready")
	}

	t.Cleanup(s.Stop)
	return errCh
}

func TestServer_Setters(t *testing.T) {
	s := New(testConfig(), nil)

	s.SetBasePath("webui")
	s.SetInterface("0.0.0.0")
	s.SetPort(9000)
	s.SetTLS(true)

	cfg := s.Config()
	assert.Equal(t, "/webui/", cfg.Base)
	assert.Equal(t, "0.0.0.0", cfg.Interface)
	assert.Equal(t, 9000, cfg.Port)
	assert.True(t, cfg.HTTPS)
	assert.Equal(t, 2*time.Second, cfg.ShutdownTimeout, "untouched fields keep their defaults")
}

func TestServer_NilConfigUsesDefaults(t *testing.T) {
	s := New(nil, nil)
	assert.Equal(t, 8112, s.Config().Port)
}

func TestServer_Health(t *testing.T) {
	s := New(testConfig(), nil)
	s.SetBasePath("/ui")

	h := s.Handler()

	t.Run("served under base path", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ui/health", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var body HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "ok", body.Status)
		assert.Positive(t, body.PID)
		assert.Equal(t, "/ui/", body.Base)
	})

	t.Run("not found outside base path", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("rejects other methods", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ui/health", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestServer_Metrics(t *testing.T) {
	s := New(testConfig(), nil)
	h := s.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `webd_http_requests_total{code="200",method="get"} 1`)
	assert.Contains(t, body, "go_goroutines")

	// A second handler must not re-register collectors.
	assert.NotPanics(t, func() { s.Handler() })
}

func TestServer_StartStop(t *testing.T) {
	s := New(testConfig(), nil)

	var mu sync.Mutex
	var order []string
	s.OnShutdown(func() {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, "first")
	})
	s.OnShutdown(func() {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, "second")
	})

	errCh := startServer(t, s)

	resp, err := http.Get("http://" + s.Addr() + "/health")
	require.NoError(t, err)
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	s.Stop()
	s.Stop()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after Stop()")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestServer_ListenFailure(t *testing.T) {
	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer occupied.Close()

	cfg := testConfig()
	cfg.Port = occupied.Addr().(*net.TCPAddr).Port

	s := New(cfg, nil)
	s.InstallSignalHandlers()
	err = s.Start()

	var resErr *webderrors.ResourceError
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, "listen", resErr.Op)

	select {
	case <-s.stopCh:
	default:
		t.Error("failed Start() left the signal watcher running")
	}
}

func TestServer_MissingCertificate(t *testing.T) {
	cfg := testConfig()
	cfg.TLSCert = "/nonexistent/webd.cert"
	cfg.TLSKey = "/nonexistent/webd.key"

	s := New(cfg, nil)
	s.SetTLS(true)

	err := s.Start()

	var resErr *webderrors.ResourceError
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, "load certificate", resErr.Op)
	assert.True(t, strings.HasSuffix(resErr.Path, "webd.cert"))
}

// writeSelfSigned writes a throwaway key pair for 127.0.0.1 into dir.
func writeSelfSigned(t *testing.T, dir string) (certPath, keyPath string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "webd test"},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	certPath = filepath.Join(dir, "webd.cert")
	keyPath = filepath.Join(dir, "webd.pkey")
	require.NoError(t, os.WriteFile(certPath, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0600))
	require.NoError(t, os.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0600))
	return certPath, keyPath
}

func TestServer_PreloadedCertificate(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig()
	cfg.TLSCert, cfg.TLSKey = writeSelfSigned(t, dir)

	cert, err := LoadCertificate(cfg)
	require.NoError(t, err)

	// The key pair stays usable after the files become unreadable.
	require.NoError(t, os.RemoveAll(dir))

	s := New(cfg, nil)
	s.SetTLS(true)
	s.SetCertificate(cert)
	startServer(t, s)

	client := &http.Client{Transport: &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
	}}
	resp, err := client.Get("https://" + s.Addr() + "/health")
	require.NoError(t, err)
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLoadCertificate_Missing(t *testing.T) {
	cfg := testConfig()
	cfg.TLSCert = filepath.Join(t.TempDir(), "webd.cert")
	cfg.TLSKey = filepath.Join(t.TempDir(), "webd.pkey")

	_, err := LoadCertificate(cfg)

	var resErr *webderrors.ResourceError
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, "load certificate", resErr.Op)
}
