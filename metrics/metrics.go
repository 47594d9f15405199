// Copyright 2025 Poiesic Systems
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


package metrics

import (
	"net/http"
	"time"

	"github.com/poiesic/ragstudio/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ragstudio"

const (
	statusOK    = "ok"
	statusError = "error"
)

// Metrics records retrieval and ingestion activity in a prometheus
// registry. It implements retrieval.Monitor and ingestion.Monitor.
type Metrics struct {
	registry *prometheus.Registry

	queries         *prometheus.CounterVec
	queryLatency    *prometheus.HistogramVec
	queryResults    *prometheus.HistogramVec
	vectorPool      prometheus.Histogram
	vectorTop1      prometheus.Histogram
	fusedCandidates prometheus.Histogram
	rerankTop1      prometheus.Histogram

	ingestFiles   *prometheus.CounterVec
	ingestChunks  prometheus.Counter
	ingestLatency prometheus.Histogram
}

// New creates a Metrics with its own registry, which also carries the Go
// runtime and process collectors.
func New() (*Metrics, error) {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Queries by retrieval mode and outcome",
		}, []string{"mode", "status"}),

		queryLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "End to end retrieval latency",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"mode"}),

		queryResults: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_results",
			Help:      "Number of chunks returned per query",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 10, 20, 50},
		}, []string{"mode"}),

		vectorPool: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "vector_candidates",
			Help:      "Candidates returned by the vector index per query",
			Buckets:   []float64{0, 1, 2, 5, 8, 10, 20, 50, 100},
		}),

		vectorTop1: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "vector_top1_score",
			Help:      "Cosine similarity of the best vector candidate",
			Buckets:   []float64{0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.85, 0.9, 0.95, 0.99, 1.0},
		}),

		fusedCandidates: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fusion_unique_candidates",
			Help:      "Unique candidates after hybrid fusion",
			Buckets:   []float64{0, 1, 2, 5, 8, 10, 16, 20, 50},
		}),

		rerankTop1: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rerank_top1_score",
			Help:      "Score of the best candidate after reranking",
			Buckets:   prometheus.LinearBuckets(-10, 2, 11),
		}),

		ingestFiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_files_total",
			Help:      "Files ingested by outcome",
		}, []string{"status"}),

		ingestChunks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_chunks_total",
			Help:      "Chunks written to the vector index",
		}),

		ingestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_duration_seconds",
			Help:      "Time to load, chunk, embed and index one file",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
	}

	toRegister := []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.queries, m.queryLatency, m.queryResults,
		m.vectorPool, m.vectorTop1, m.fusedCandidates, m.rerankTop1,
		m.ingestFiles, m.ingestChunks, m.ingestLatency,
	}
	for _, c := range toRegister {
		if err := m.registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func status(err error) string {
	if err != nil {
		return statusError
	}
	return statusOK
}

// Start implements retrieval.Monitor.
func (m *Metrics) Start(_ string, _ core.Mode, _ int) {}

// AfterVectorSearch implements retrieval.Monitor.
func (m *Metrics) AfterVectorSearch(candidates []core.ScoredCandidate) {
	m.vectorPool.Observe(float64(len(candidates)))
	if len(candidates) > 0 {
		m.vectorTop1.Observe(candidates[0].Score)
	}
}

// AfterLexicalScoring implements retrieval.Monitor.
func (m *Metrics) AfterLexicalScoring(_ []core.ScoredCandidate) {}

// AfterFusion implements retrieval.Monitor.
func (m *Metrics) AfterFusion(candidates []core.ScoredCandidate) {
	m.fusedCandidates.Observe(float64(len(candidates)))
}

// AfterRerank implements retrieval.Monitor.
func (m *Metrics) AfterRerank(candidates []core.ScoredCandidate) {
	if len(candidates) > 0 {
		m.rerankTop1.Observe(candidates[0].Score)
	}
}

// Finish implements retrieval.Monitor.
func (m *Metrics) Finish(mode core.Mode, results []core.ScoredCandidate, elapsed time.Duration, err error) {
	m.queries.WithLabelValues(mode.String(), status(err)).Inc()
	m.queryLatency.WithLabelValues(mode.String()).Observe(elapsed.Seconds())
	if err == nil {
		m.queryResults.WithLabelValues(mode.String()).Observe(float64(len(results)))
	}
}

// FileIngested implements ingestion.Monitor.
func (m *Metrics) FileIngested(result core.IngestResult, elapsed time.Duration, err error) {
	m.ingestFiles.WithLabelValues(status(err)).Inc()
	m.ingestLatency.Observe(elapsed.Seconds())
	if err == nil {
		m.ingestChunks.Add(float64(result.ChunksIndexed))
	}
}
