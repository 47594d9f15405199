package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"testing"

	"github.com/poiesic/ragstudio/core"
	"github.com/poiesic/ragstudio/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCollection = "rag_docs"

// fakeQdrant implements the subset of the Qdrant REST API the index uses.
type fakeQdrant struct {
	mu          sync.Mutex
	collections map[string]*fakeCollection
	apiKeys     []string
}

type fakeCollection struct {
	size   int
	points map[string]fakePoint
}

type fakePoint struct {
	Vector  []float32    `json:"vector"`
	Payload pointPayload `json:"payload"`
}

// fakeFilter understands the two conditions the index sends: a seq range
// and an exact source match.
type fakeFilter struct {
	Must []struct {
		Key   string `json:"key"`
		Match *struct {
			Value string `json:"value"`
		} `json:"match"`
		Range *struct {
			Gt uint64 `json:"gt"`
		} `json:"range"`
	} `json:"must"`
}

func (ff *fakeFilter) matches(p fakePoint) bool {
	if ff == nil {
		return true
	}
	for _, cond := range ff.Must {
		if cond.Range != nil && p.Payload.Seq <= cond.Range.Gt {
			return false
		}
		if cond.Match != nil && cond.Key == "source" && p.Payload.Source != cond.Match.Value {
			return false
		}
	}
	return true
}

func newFakeQdrant(t *testing.T) (*fakeQdrant, *httptest.Server) {
	t.Helper()
	f := &fakeQdrant{collections: make(map[string]*fakeCollection)}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /collections", f.list)
	mux.HandleFunc("GET /collections/{name}", f.get)
	mux.HandleFunc("PUT /collections/{name}", f.create)
	mux.HandleFunc("DELETE /collections/{name}", f.drop)
	mux.HandleFunc("PUT /collections/{name}/index", f.ok)
	mux.HandleFunc("PUT /collections/{name}/points", f.upsert)
	mux.HandleFunc("POST /collections/{name}/points", f.retrieve)
	mux.HandleFunc("POST /collections/{name}/points/delete", f.deletePoints)
	mux.HandleFunc("POST /collections/{name}/points/search", f.search)
	mux.HandleFunc("POST /collections/{name}/points/count", f.count)
	mux.HandleFunc("POST /collections/{name}/points/scroll", f.scroll)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.apiKeys = append(f.apiKeys, r.Header.Get("api-key"))
		f.mu.Unlock()
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	return f, srv
}

func reply(w http.ResponseWriter, result any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"result": result, "status": "ok"})
}

func (f *fakeQdrant) collection(w http.ResponseWriter, r *http.Request) *fakeCollection {
	c, ok := f.collections[r.PathValue("name")]
	if !ok {
		http.Error(w, `{"status":{"error":"Not found"}}`, http.StatusNotFound)
		return nil
	}
	return c
}

func (f *fakeQdrant) ok(w http.ResponseWriter, _ *http.Request) {
	reply(w, true)
}

func (f *fakeQdrant) list(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []map[string]string
	for name := range f.collections {
		out = append(out, map[string]string{"name": name})
	}
	reply(w, map[string]any{"collections": out})
}

func (f *fakeQdrant) get(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.collection(w, r)
	if c == nil {
		return
	}
	reply(w, map[string]any{
		"points_count": len(c.points),
		"config": map[string]any{
			"params": map[string]any{
				"vectors": map[string]any{"size": c.size, "distance": "Cosine"},
			},
		},
	})
}

func (f *fakeQdrant) create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Vectors vectorParams `json:"vectors"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.collections[r.PathValue("name")] = &fakeCollection{size: req.Vectors.Size, points: make(map[string]fakePoint)}
	reply(w, true)
}

func (f *fakeQdrant) drop(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.collections, r.PathValue("name"))
	reply(w, true)
}

func (f *fakeQdrant) upsert(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Points []point `json:"points"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.collection(w, r)
	if c == nil {
		return
	}
	for _, p := range req.Points {
		c.points[p.ID] = fakePoint{Vector: core.NormalizeVector(p.Vector), Payload: p.Payload}
	}
	reply(w, map[string]any{"status": "completed"})
}

func (f *fakeQdrant) search(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Vector         []float32 `json:"vector"`
		Limit          int       `json:"limit"`
		ScoreThreshold *float64  `json:"score_threshold"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.collection(w, r)
	if c == nil {
		return
	}
	query := core.NormalizeVector(req.Vector)
	var hits []map[string]any
	for id, p := range c.points {
		score := core.DotProduct(query, p.Vector)
		if req.ScoreThreshold != nil && score < float32(*req.ScoreThreshold) {
			continue
		}
		hits = append(hits, map[string]any{
			"id":      id,
			"score":   score,
			"payload": p.Payload,
		})
	}
	slices.SortFunc(hits, func(a, b map[string]any) int {
		sa, sb := a["score"].(float32), b["score"].(float32)
		switch {
		case sa > sb:
			return -1
		case sa < sb:
			return 1
		}
		// Reverse seq on ties so the client has to re-sort.
		return int(b["payload"].(pointPayload).Seq) - int(a["payload"].(pointPayload).Seq)
	})
	if len(hits) > req.Limit {
		hits = hits[:req.Limit]
	}
	reply(w, hits)
}

func (f *fakeQdrant) count(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Filter *fakeFilter `json:"filter"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.collection(w, r)
	if c == nil {
		return
	}
	n := 0
	for _, p := range c.points {
		if req.Filter.matches(p) {
			n++
		}
	}
	reply(w, map[string]int{"count": n})
}

func (f *fakeQdrant) retrieve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.collection(w, r)
	if c == nil {
		return
	}
	out := []map[string]any{}
	for _, id := range req.IDs {
		if p, ok := c.points[id]; ok {
			out = append(out, map[string]any{"id": id, "payload": map[string]uint64{"seq": p.Payload.Seq}})
		}
	}
	reply(w, out)
}

func (f *fakeQdrant) deletePoints(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Filter *fakeFilter `json:"filter"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Filter == nil {
		http.Error(w, "filter required", http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.collection(w, r)
	if c == nil {
		return
	}
	for id, p := range c.points {
		if req.Filter.matches(p) {
			delete(c.points, id)
		}
	}
	reply(w, map[string]any{"status": "completed"})
}

func (f *fakeQdrant) scroll(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Limit   int `json:"limit"`
		OrderBy struct {
			Direction string `json:"direction"`
		} `json:"order_by"`
		Filter *fakeFilter `json:"filter"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.collection(w, r)
	if c == nil {
		return
	}

	var pts []fakePoint
	for _, p := range c.points {
		if !req.Filter.matches(p) {
			continue
		}
		pts = append(pts, p)
	}
	slices.SortFunc(pts, func(a, b fakePoint) int {
		if req.OrderBy.Direction == "desc" {
			return int(b.Payload.Seq) - int(a.Payload.Seq)
		}
		return int(a.Payload.Seq) - int(b.Payload.Seq)
	})
	if len(pts) > req.Limit {
		pts = pts[:req.Limit]
	}
	reply(w, map[string]any{"points": pts})
}

func newTestIndex(t *testing.T) (*Index, *fakeQdrant) {
	t.Helper()
	fake, srv := newFakeQdrant(t)
	idx, err := newIndex(srv.URL, WithAPIKey("secret"))
	require.NoError(t, err)
	return idx, fake
}

func chunk(id string, vec ...float32) core.IndexedChunk {
	return core.IndexedChunk{
		Chunk:  core.Chunk{ChunkID: id, Text: "text of " + id, Source: "src.txt", Page: core.IntPtr(1)},
		Vector: vec,
	}
}

func TestNewIndex_InvalidURL(t *testing.T) {
	for _, raw := range []string{"", "localhost", "://nope"} {
		_, err := NewIndex(raw)
		assert.ErrorIs(t, err, ErrInvalidURL, raw)
	}
}

func TestPointID(t *testing.T) {
	id := "3f2504e0-4f89-41d3-9a0c-0305e82c3301"
	assert.Equal(t, id, PointID(id))

	derived := PointID("doc-1")
	assert.Len(t, derived, 36)
	assert.Equal(t, derived, PointID("doc-1"))
	assert.NotEqual(t, derived, PointID("doc-2"))
}

func TestIndex_EnsureCollection(t *testing.T) {
	ctx := context.Background()
	idx, fake := newTestIndex(t)

	require.NoError(t, idx.EnsureCollection(ctx, testCollection, 3))
	require.NoError(t, idx.EnsureCollection(ctx, testCollection, 3))
	assert.Contains(t, fake.collections, testCollection)
	assert.Contains(t, fake.apiKeys, "secret")

	err := idx.EnsureCollection(ctx, testCollection, 4)
	assert.ErrorIs(t, err, storage.ErrDimensionMismatch)
	assert.Contains(t, err.Error(), "has dimension 3")

	assert.ErrorIs(t, idx.EnsureCollection(ctx, "other", 0), storage.ErrInvalidDimension)
	assert.ErrorIs(t, idx.EnsureCollection(ctx, "", 3), storage.ErrInvalidCollectionName)
}

func TestIndex_UpsertAndSearch(t *testing.T) {
	ctx := context.Background()
	idx, _ := newTestIndex(t)
	require.NoError(t, idx.EnsureCollection(ctx, testCollection, 2))

	n, err := idx.Upsert(ctx, testCollection, []core.IndexedChunk{
		chunk("east", 1, 0),
		chunk("north", 0, 1),
		chunk("northeast", 1, 1),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	t.Run("ranks by similarity", func(t *testing.T) {
		hits, err := idx.Search(ctx, testCollection, []float32{2, 0.1}, 2)
		require.NoError(t, err)
		require.Len(t, hits, 2)
		assert.Equal(t, "east", hits[0].ChunkID)
		assert.Equal(t, "northeast", hits[1].ChunkID)
		assert.Equal(t, "src.txt", hits[0].Source)
		require.NotNil(t, hits[0].Page)
		assert.Equal(t, 1, *hits[0].Page)
	})

	t.Run("ties keep insertion order", func(t *testing.T) {
		_, err := idx.Upsert(ctx, testCollection, []core.IndexedChunk{
			chunk("east-again", 3, 0),
			chunk("east-third", 5, 0),
		})
		require.NoError(t, err)

		hits, err := idx.Search(ctx, testCollection, []float32{1, 0}, 3)
		require.NoError(t, err)
		require.Len(t, hits, 3)
		assert.Equal(t, []string{"east", "east-again", "east-third"},
			[]string{hits[0].ChunkID, hits[1].ChunkID, hits[2].ChunkID})
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		_, err := idx.Search(ctx, testCollection, []float32{1, 0, 0}, 1)
		assert.ErrorIs(t, err, storage.ErrDimensionMismatch)

		_, err = idx.Upsert(ctx, testCollection, []core.IndexedChunk{chunk("bad", 1, 2, 3)})
		assert.ErrorIs(t, err, storage.ErrDimensionMismatch)
	})

	t.Run("invalid k", func(t *testing.T) {
		_, err := idx.Search(ctx, testCollection, []float32{1, 0}, 0)
		assert.ErrorIs(t, err, storage.ErrInvalidQuery)
	})

	t.Run("missing collection is empty", func(t *testing.T) {
		hits, err := idx.Search(ctx, "missing", []float32{1, 0}, 5)
		require.NoError(t, err)
		assert.NotNil(t, hits)
		assert.Empty(t, hits)
	})

	t.Run("upsert into missing collection", func(t *testing.T) {
		_, err := idx.Upsert(ctx, "missing", []core.IndexedChunk{chunk("x", 1, 0)})
		assert.ErrorIs(t, err, storage.ErrCollectionNotFound)
	})
}

func TestIndex_SearchTieAtCutoff(t *testing.T) {
	ctx := context.Background()
	idx, _ := newTestIndex(t)
	require.NoError(t, idx.EnsureCollection(ctx, testCollection, 2))
	_, err := idx.Upsert(ctx, testCollection, []core.IndexedChunk{
		chunk("t0", 1, 0), chunk("t1", 2, 0), chunk("off", 0, 1), chunk("t2", 3, 0), chunk("t3", 4, 0),
	})
	require.NoError(t, err)

	// The server returns tied points newest first; the oldest two must win.
	hits, err := idx.Search(ctx, testCollection, []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, []string{"t0", "t1"}, []string{hits[0].ChunkID, hits[1].ChunkID})

	hits, err = idx.Search(ctx, testCollection, []float32{1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 5)
	assert.Equal(t, "off", hits[4].ChunkID)
}

func TestIndex_UpsertKeepsSeqOfExistingPoints(t *testing.T) {
	ctx := context.Background()
	idx, fake := newTestIndex(t)
	require.NoError(t, idx.EnsureCollection(ctx, testCollection, 2))
	_, err := idx.Upsert(ctx, testCollection, []core.IndexedChunk{chunk("a", 1, 0), chunk("b", 0, 1)})
	require.NoError(t, err)

	replacement := chunk("a", 0, 1)
	replacement.Text = "new text"
	_, err = idx.Upsert(ctx, testCollection, []core.IndexedChunk{replacement, chunk("c", 1, 1), chunk("c", 1, 1)})
	require.NoError(t, err)

	fake.mu.Lock()
	points := fake.collections[testCollection].points
	seqA, seqB, seqC := points[PointID("a")].Payload.Seq, points[PointID("b")].Payload.Seq, points[PointID("c")].Payload.Seq
	fake.mu.Unlock()
	assert.Equal(t, []uint64{0, 1, 2}, []uint64{seqA, seqB, seqC})

	count, err := idx.Count(ctx, testCollection)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	// Equal scores: "a" keeps its original, earlier position.
	hits, err := idx.Search(ctx, testCollection, []float32{0, 1}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].ChunkID)
	assert.Equal(t, "new text", hits[0].Text)
	assert.Equal(t, "b", hits[1].ChunkID)

	// The next new point continues after c.
	_, err = idx.Upsert(ctx, testCollection, []core.IndexedChunk{chunk("d", 1, 0)})
	require.NoError(t, err)
	fake.mu.Lock()
	assert.Equal(t, uint64(3), fake.collections[testCollection].points[PointID("d")].Payload.Seq)
	fake.mu.Unlock()
}

func TestIndex_DeleteBySource(t *testing.T) {
	ctx := context.Background()
	idx, _ := newTestIndex(t)
	require.NoError(t, idx.EnsureCollection(ctx, testCollection, 2))

	other := chunk("keep", 1, 0)
	other.Source = "other.txt"
	_, err := idx.Upsert(ctx, testCollection, []core.IndexedChunk{chunk("a", 1, 0), other, chunk("b", 0, 1)})
	require.NoError(t, err)

	n, err := idx.DeleteBySource(ctx, testCollection, "src.txt")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	count, err := idx.Count(ctx, testCollection)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	n, err = idx.DeleteBySource(ctx, testCollection, "src.txt")
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = idx.DeleteBySource(ctx, "missing", "src.txt")
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = idx.DeleteBySource(ctx, "", "src.txt")
	assert.ErrorIs(t, err, storage.ErrInvalidCollectionName)
}

func TestIndex_SeqResumesFromServer(t *testing.T) {
	ctx := context.Background()
	idx, fake := newTestIndex(t)
	require.NoError(t, idx.EnsureCollection(ctx, testCollection, 2))
	_, err := idx.Upsert(ctx, testCollection, []core.IndexedChunk{chunk("a", 1, 0), chunk("b", 0, 1)})
	require.NoError(t, err)

	// A second client against the same server continues the sequence.
	other, err := newIndex(idx.baseURL.String())
	require.NoError(t, err)
	_, err = other.Upsert(ctx, testCollection, []core.IndexedChunk{chunk("c", 1, 1)})
	require.NoError(t, err)

	fake.mu.Lock()
	seq := fake.collections[testCollection].points[PointID("c")].Payload.Seq
	fake.mu.Unlock()
	assert.Equal(t, uint64(2), seq)
}

func TestIndex_CountInfoCollections(t *testing.T) {
	ctx := context.Background()
	idx, _ := newTestIndex(t)
	require.NoError(t, idx.EnsureCollection(ctx, "b_docs", 2))
	require.NoError(t, idx.EnsureCollection(ctx, "a_docs", 2))
	_, err := idx.Upsert(ctx, "b_docs", []core.IndexedChunk{chunk("x", 1, 0)})
	require.NoError(t, err)

	count, err := idx.Count(ctx, "b_docs")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	info, err := idx.Info(ctx, "b_docs")
	require.NoError(t, err)
	assert.Equal(t, core.CollectionInfo{Name: "b_docs", Dimension: 2, Distance: storage.DistanceCosine, Count: 1}, info)

	_, err = idx.Info(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrCollectionNotFound)
	_, err = idx.Count(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrCollectionNotFound)

	names, err := idx.Collections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a_docs", "b_docs"}, names)
}

func TestIndex_Scan(t *testing.T) {
	ctx := context.Background()
	idx, _ := newTestIndex(t)
	require.NoError(t, idx.EnsureCollection(ctx, testCollection, 2))
	_, err := idx.Upsert(ctx, testCollection, []core.IndexedChunk{
		chunk("one", 1, 0), chunk("two", 0, 1), chunk("three", 1, 1),
	})
	require.NoError(t, err)

	var ids []string
	cursor := ""
	for pages := 0; pages < 10; pages++ {
		batch, next, err := idx.Scan(ctx, testCollection, cursor, 2)
		require.NoError(t, err)
		for _, c := range batch {
			ids = append(ids, c.ChunkID)
			assert.Len(t, c.Vector, 2)
		}
		if next == "" {
			break
		}
		cursor = next
	}
	assert.Equal(t, []string{"one", "two", "three"}, ids)

	_, _, err = idx.Scan(ctx, testCollection, "nope", 2)
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
	_, _, err = idx.Scan(ctx, testCollection, "", 0)
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
}

func TestIndex_DropCollection(t *testing.T) {
	ctx := context.Background()
	idx, fake := newTestIndex(t)
	require.NoError(t, idx.EnsureCollection(ctx, testCollection, 2))

	require.NoError(t, idx.DropCollection(ctx, testCollection))
	assert.NotContains(t, fake.collections, testCollection)

	// Recreating with a new dimension works once dropped.
	require.NoError(t, idx.EnsureCollection(ctx, testCollection, 5))
	require.NoError(t, idx.DropCollection(ctx, "never-existed"))
	require.NoError(t, idx.Close())
}
