// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package index

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// metricsIndex holds Prometheus metrics for the indexing subsystem.
type metricsIndex struct {
	once sync.Once

	nodesIndexed  prometheus.Counter
	pointsWritten prometheus.Counter
	runsCompleted prometheus.Counter
	runsFailed    prometheus.Counter

	embedDuration  prometheus.Histogram
	upsertDuration prometheus.Histogram
	totalDuration  prometheus.Histogram
}

var idxMetrics metricsIndex

func (m *metricsIndex) init() {
	m.once.Do(func() {
		m.nodesIndexed = prometheus.NewCounter(prometheus.CounterOpts{Name: "repograph_index_nodes_total", Help: "Nodes turned into embedding documents"})
		m.pointsWritten = prometheus.NewCounter(prometheus.CounterOpts{Name: "repograph_index_points_written_total", Help: "Points upserted into the vector index"})
		m.runsCompleted = prometheus.NewCounter(prometheus.CounterOpts{Name: "repograph_index_runs_completed_total", Help: "Index runs that completed"})
		m.runsFailed = prometheus.NewCounter(prometheus.CounterOpts{Name: "repograph_index_runs_failed_total", Help: "Index runs that failed"})

		buckets := []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300}
		m.embedDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "repograph_index_embed_seconds", Help: "Embedding phase duration", Buckets: buckets})
		m.upsertDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "repograph_index_upsert_seconds", Help: "Upsert phase duration", Buckets: buckets})
		m.totalDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "repograph_index_total_seconds", Help: "Whole index run duration", Buckets: buckets})

		prometheus.MustRegister(
			m.nodesIndexed, m.pointsWritten, m.runsCompleted, m.runsFailed,
			m.embedDuration, m.upsertDuration, m.totalDuration,
		)
	})
}

// record helpers - used by the coordinator for metrics tracking
func recordNodesIndexed(n int)                { idxMetrics.init(); idxMetrics.nodesIndexed.Add(float64(n)) }
func recordPointsWritten(n int)               { idxMetrics.init(); idxMetrics.pointsWritten.Add(float64(n)) }
func recordRunCompleted()                     { idxMetrics.init(); idxMetrics.runsCompleted.Inc() }
func recordRunFailed()                        { idxMetrics.init(); idxMetrics.runsFailed.Inc() }
func recordEmbedDuration(d time.Duration)     { idxMetrics.init(); idxMetrics.embedDuration.Observe(d.Seconds()) }
func recordUpsertDuration(d time.Duration)    { idxMetrics.init(); idxMetrics.upsertDuration.Observe(d.Seconds()) }
func recordTotalDuration(d time.Duration)     { idxMetrics.init(); idxMetrics.totalDuration.Observe(d.Seconds()) }
