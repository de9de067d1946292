// Copyright 2024 The reposit Authors
// This file is part of the reposit library.
//
// The reposit library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The reposit library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the reposit library. If not, see <http://www.gnu.org/licenses/>.

// Package httpapi exposes a repository's health and metrics over HTTP,
// for embedding in a host coordinator process that wants a status
// surface without pulling in a full web framework.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

// StatusSource is the subset of repository.Repository the /healthz
// handler needs, kept narrow so this package doesn't import package
// repository directly and invite an import cycle.
type StatusSource interface {
	ReadOnly() bool
	SnapshotThrottleNanos() uint64
	RestoreThrottleNanos() uint64
}

// NewHandler builds the HTTP handler serving /healthz and /metrics,
// wrapped in a permissive CORS policy suitable for a same-host
// dashboard. reg is the Prometheus registerer the caller already
// registered repository.Metrics against.
func NewHandler(src StatusSource, reg *prometheus.Registry) http.Handler {
	router := httprouter.New()

	router.GET("/healthz", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"ok":                      true,
			"read_only":               src.ReadOnly(),
			"snapshot_throttle_nanos": src.SnapshotThrottleNanos(),
			"restore_throttle_nanos":  src.RestoreThrottleNanos(),
		})
	})

	router.Handler(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet},
	}).Handler(router)
}
