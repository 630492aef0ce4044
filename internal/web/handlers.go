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
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	internallog "github.com/tombee/webd/internal/log"
)

// HealthResponse is the body of the health endpoint.
type HealthResponse struct {
	Status        string  `json:"status"`
	PID           int     `json:"pid"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	Base          string  `json:"base"`
}

// Handler returns the server's routes, instrumented and logged.
func (s *Server) Handler() http.Handler {
	base := s.Config().Base

	mux := http.NewServeMux()
	mux.HandleFunc(base+"health", s.handleHealth)
	mux.Handle(base+"metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		ErrorLog: promErrorLogger{s.logger},
	}))

	return internallog.NewHTTPMiddleware(s.logger).Wrap(s.metrics.instrument(mux))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	var uptime float64
	if !s.started.IsZero() {
		uptime = time.Since(s.started).Seconds()
	}

	resp := HealthResponse{
		Status:        "ok",
		PID:           os.Getpid(),
		UptimeSeconds: uptime,
		Base:          s.Config().Base,
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("failed to encode health response", internallog.Error(err))
	}
}
