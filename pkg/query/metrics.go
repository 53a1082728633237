// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package query

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// metricsQuery holds Prometheus metrics for the query subsystem.
type metricsQuery struct {
	once sync.Once

	searches  prometheus.Counter
	fallbacks prometheus.Counter

	searchDuration  prometheus.Histogram
	analyzeDuration prometheus.Histogram
}

var qryMetrics metricsQuery

func (m *metricsQuery) init() {
	m.once.Do(func() {
		m.searches = prometheus.NewCounter(prometheus.CounterOpts{Name: "repograph_query_searches_total", Help: "Vector searches served"})
		m.fallbacks = prometheus.NewCounter(prometheus.CounterOpts{Name: "repograph_query_fallbacks_total", Help: "Searches degraded to the keyword scan"})

		buckets := []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}
		m.searchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "repograph_query_search_seconds", Help: "Search duration", Buckets: buckets})
		m.analyzeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "repograph_query_analyze_seconds", Help: "Analyze duration", Buckets: buckets})

		prometheus.MustRegister(m.searches, m.fallbacks, m.searchDuration, m.analyzeDuration)
	})
}

func recordSearch(d time.Duration) {
	qryMetrics.init()
	qryMetrics.searches.Inc()
	qryMetrics.searchDuration.Observe(d.Seconds())
}

func recordFallback() { qryMetrics.init(); qryMetrics.fallbacks.Inc() }

func recordAnalyze(d time.Duration) { qryMetrics.init(); qryMetrics.analyzeDuration.Observe(d.Seconds()) }
