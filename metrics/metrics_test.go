package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/poiesic/ragstudio/core"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Queries(t *testing.T) {
	m, err := New()
	require.NoError(t, err)

	results := []core.ScoredCandidate{{Chunk: core.Chunk{ChunkID: "a"}, Score: 0.92}}
	m.Start("q", core.ModeHybrid, 5)
	m.AfterVectorSearch(results)
	m.AfterLexicalScoring(results)
	m.AfterFusion(results)
	m.Finish(core.ModeHybrid, results, 20*time.Millisecond, nil)
	m.Finish(core.ModeVector, nil, time.Millisecond, errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.queries.WithLabelValues("hybrid", statusOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.queries.WithLabelValues("vector", statusError)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.queries.WithLabelValues("rerank", statusOK)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.vectorTop1))
}

func TestMetrics_Ingest(t *testing.T) {
	m, err := New()
	require.NoError(t, err)

	m.FileIngested(core.IngestResult{Source: "a.txt", ChunksIndexed: 3}, time.Second, nil)
	m.FileIngested(core.IngestResult{Source: "b.txt", ChunksIndexed: 4}, time.Second, nil)
	m.FileIngested(core.IngestResult{Source: "c.txt"}, time.Second, errors.New("unreadable"))

	assert.Equal(t, 7.0, testutil.ToFloat64(m.ingestChunks))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ingestFiles.WithLabelValues(statusOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ingestFiles.WithLabelValues(statusError)))
}

func TestMetrics_Handler(t *testing.T) {
	m, err := New()
	require.NoError(t, err)
	m.Finish(core.ModeRerank, nil, time.Millisecond, nil)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	assert.True(t, strings.Contains(text, `ragstudio_queries_total{mode="rerank",status="ok"} 1`))
	assert.Contains(t, text, "go_goroutines")
}

func TestNew_IndependentRegistries(t *testing.T) {
	a, err := New()
	require.NoError(t, err)
	b, err := New()
	require.NoError(t, err)
	assert.NotSame(t, a.Registry(), b.Registry())
}
