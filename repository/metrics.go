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

package repository

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds one repository instance's Prometheus collectors. Unlike
// a package-level global registry, these live on the Repository value
// itself so multiple repository instances in one process don't collide
// on metric names; callers register them under a repository-scoped
// prometheus.Registerer if they want process-wide export.
type Metrics struct {
	OperationDuration *prometheus.HistogramVec
	OperationsTotal   *prometheus.CounterVec
	ThrottleNanos     *prometheus.GaugeVec
	CacheHits         *prometheus.CounterVec
	CacheMisses       *prometheus.CounterVec
}

// NewMetrics builds a fresh Metrics set labeled with the repository
// name, so collectors from distinct repositories sharing a registry are
// distinguishable.
func NewMetrics(repoName string) *Metrics {
	constLabels := prometheus.Labels{"repository": repoName}
	return &Metrics{
		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "reposit_operation_duration_seconds",
				Help:        "Duration of repository operations in seconds",
				Buckets:     prometheus.DefBuckets,
				ConstLabels: constLabels,
			},
			[]string{"operation"},
		),
		OperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "reposit_operations_total",
				Help:        "Total number of repository operations by outcome",
				ConstLabels: constLabels,
			},
			[]string{"operation", "outcome"},
		),
		ThrottleNanos: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name:        "reposit_throttle_nanoseconds_total",
				Help:        "Cumulative nanoseconds spent paused by the rate limiter",
				ConstLabels: constLabels,
			},
			[]string{"direction"},
		),
		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "reposit_cache_hits_total",
				Help:        "Total cache hits by cache name",
				ConstLabels: constLabels,
			},
			[]string{"cache"},
		),
		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "reposit_cache_misses_total",
				Help:        "Total cache misses by cache name",
				ConstLabels: constLabels,
			},
			[]string{"cache"},
		),
	}
}

// MustRegister registers every collector in m against reg.
func (m *Metrics) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		m.OperationDuration,
		m.OperationsTotal,
		m.ThrottleNanos,
		m.CacheHits,
		m.CacheMisses,
	)
}

// timer times one operation and records it under op on Close.
type timer struct {
	m     *Metrics
	op    string
	start time.Time
}

func (m *Metrics) start(op string) *timer {
	if m == nil {
		return nil
	}
	return &timer{m: m, op: op, start: time.Now()}
}

func (t *timer) done(outcome string) {
	if t == nil {
		return
	}
	t.m.OperationDuration.WithLabelValues(t.op).Observe(time.Since(t.start).Seconds())
	t.m.OperationsTotal.WithLabelValues(t.op, outcome).Inc()
}
