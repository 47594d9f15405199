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


package qdrant

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/poiesic/ragstudio/core"
	"github.com/poiesic/ragstudio/storage"
	lcqdrant "github.com/tmc/langchaingo/vectorstores/qdrant"
)

const (
	seqField     = "seq"
	maxErrorBody = 512
)

// pointNamespace derives stable point ids for chunk ids that are not UUIDs.
var pointNamespace = uuid.MustParse("6f1d0c7e-3b0e-4d8c-9a57-2f4f7c3a9b11")

// Index implements storage.VectorIndex against a Qdrant server's REST API.
type Index struct {
	baseURL *url.URL
	apiKey  string
	logger  *slog.Logger

	mu   sync.Mutex
	dims map[string]int
	next map[string]uint64
}

var _ storage.VectorIndex = (*Index)(nil)

// Option configures an Index.
type Option func(*Index) error

// WithAPIKey sets the api-key header sent with every request.
func WithAPIKey(key string) Option {
	return func(i *Index) error {
		i.apiKey = key
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Index) error {
		if logger == nil {
			logger = slog.Default()
		}
		i.logger = logger
		return nil
	}
}

// NewIndex creates a client for the Qdrant server at rawURL
// (e.g. "http://localhost:6333").
//
// Returns storage.VectorIndex interface to enforce abstraction.
func NewIndex(rawURL string, opts ...Option) (storage.VectorIndex, error) {
	return newIndex(rawURL, opts...)
}

func newIndex(rawURL string, opts ...Option) (*Index, error) {
	u, err := url.Parse(strings.TrimSuffix(strings.TrimSpace(rawURL), "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}

	idx := &Index{
		baseURL: u,
		logger:  slog.Default(),
		dims:    make(map[string]int),
		next:    make(map[string]uint64),
	}
	for _, opt := range opts {
		if err := opt(idx); err != nil {
			return nil, err
		}
	}
	idx.logger = idx.logger.With("component", "qdrant-index", "url", u.String())
	return idx, nil
}

type envelope[T any] struct {
	Result T `json:"result"`
}

type vectorParams struct {
	Size     int    `json:"size"`
	Distance string `json:"distance"`
}

type collectionInfo struct {
	PointsCount int `json:"points_count"`
	Config      struct {
		Params struct {
			Vectors vectorParams `json:"vectors"`
		} `json:"params"`
	} `json:"config"`
}

type pointPayload struct {
	ChunkID string `json:"chunk_id"`
	Text    string `json:"text"`
	Source  string `json:"source"`
	Page    *int   `json:"page"`
	Seq     uint64 `json:"seq"`
}

type point struct {
	ID      string       `json:"id"`
	Vector  []float32    `json:"vector,omitempty"`
	Payload pointPayload `json:"payload"`
}

type scoredPoint struct {
	ID      any          `json:"id"`
	Score   float64      `json:"score"`
	Payload pointPayload `json:"payload"`
	Vector  []float32    `json:"vector"`
}

type scrollResult struct {
	Points []scoredPoint `json:"points"`
}

// do sends a request and decodes a 2xx response into out. A 404 is returned
// as a status without an error so callers can map it.
func (i *Index) do(ctx context.Context, method string, payload, out any, path ...string) (int, error) {
	u := i.baseURL.JoinPath(path...)
	body, status, err := lcqdrant.DoRequest(ctx, *u, i.apiKey, method, payload)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	switch {
	case status == http.StatusNotFound:
		return status, nil
	case status < 200 || status >= 300:
		snippet, _ := io.ReadAll(io.LimitReader(body, maxErrorBody))
		return status, fmt.Errorf("%w: %s %s: %d: %s",
			ErrUnexpectedStatus, method, u.Path, status, strings.TrimSpace(string(snippet)))
	}

	if out == nil {
		return status, nil
	}
	if err := json.NewDecoder(body).Decode(out); err != nil {
		return status, fmt.Errorf("%w: %w", storage.ErrSerializationFailed, err)
	}
	return status, nil
}

func (i *Index) info(ctx context.Context, name string) (*collectionInfo, error) {
	if !validName(name) {
		return nil, fmt.Errorf("%w: %q", storage.ErrInvalidCollectionName, name)
	}
	var resp envelope[collectionInfo]
	status, err := i.do(ctx, http.MethodGet, nil, &resp, "collections", name)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	return &resp.Result, nil
}

func validName(name string) bool {
	return name != "" && !strings.ContainsAny(name, "/?#")
}

// dimension returns the cached dimension of a collection, fetching it once.
func (i *Index) dimension(ctx context.Context, name string) (int, error) {
	i.mu.Lock()
	dim, ok := i.dims[name]
	i.mu.Unlock()
	if ok {
		return dim, nil
	}

	info, err := i.info(ctx, name)
	if err != nil {
		return 0, err
	}
	if info == nil {
		return 0, fmt.Errorf("%w: %q", storage.ErrCollectionNotFound, name)
	}
	i.mu.Lock()
	i.dims[name] = info.Config.Params.Vectors.Size
	i.mu.Unlock()
	return info.Config.Params.Vectors.Size, nil
}

// EnsureCollection creates the collection with cosine distance and an
// integer payload index on seq.
func (i *Index) EnsureCollection(ctx context.Context, name string, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("%w: %d", storage.ErrInvalidDimension, dim)
	}
	info, err := i.info(ctx, name)
	if err != nil {
		return err
	}
	if info != nil {
		if existing := info.Config.Params.Vectors.Size; existing != dim {
			return fmt.Errorf("%w: collection %q has dimension %d, embedder produces %d",
				storage.ErrDimensionMismatch, name, existing, dim)
		}
		i.mu.Lock()
		i.dims[name] = dim
		i.mu.Unlock()
		return nil
	}

	create := map[string]any{
		"vectors": vectorParams{Size: dim, Distance: storage.DistanceCosine},
	}
	if _, err := i.do(ctx, http.MethodPut, create, nil, "collections", name); err != nil {
		return err
	}
	index := map[string]any{"field_name": seqField, "field_schema": "integer"}
	if _, err := i.do(ctx, http.MethodPut, index, nil, "collections", name, "index"); err != nil {
		return err
	}

	i.mu.Lock()
	i.dims[name] = dim
	i.next[name] = 0
	i.mu.Unlock()
	i.logger.Info("created collection", "collection", name, "dimension", dim)
	return nil
}

// PointID maps a chunk id onto a Qdrant point id. UUIDs are used as is;
// anything else becomes a name-based UUID.
func PointID(chunkID string) string {
	if id, err := uuid.Parse(chunkID); err == nil {
		return id.String()
	}
	return uuid.NewSHA1(pointNamespace, []byte(chunkID)).String()
}

// reserve hands out n consecutive sequence numbers for the collection.
func (i *Index) reserve(ctx context.Context, name string, n int) (uint64, error) {
	i.mu.Lock()
	_, known := i.next[name]
	i.mu.Unlock()

	if !known {
		last, found, err := i.lastSeq(ctx, name)
		if err != nil {
			return 0, err
		}
		i.mu.Lock()
		if _, ok := i.next[name]; !ok {
			i.next[name] = 0
			if found {
				i.next[name] = last + 1
			}
		}
		i.mu.Unlock()
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	start := i.next[name]
	i.next[name] = start + uint64(n)
	return start, nil
}

func (i *Index) lastSeq(ctx context.Context, name string) (uint64, bool, error) {
	req := map[string]any{
		"limit":        1,
		"with_payload": true,
		"with_vector":  false,
		"order_by":     map[string]any{"key": seqField, "direction": "desc"},
	}
	var resp envelope[scrollResult]
	status, err := i.do(ctx, http.MethodPost, req, &resp, "collections", name, "points", "scroll")
	if err != nil {
		return 0, false, err
	}
	if status == http.StatusNotFound || len(resp.Result.Points) == 0 {
		return 0, false, nil
	}
	return resp.Result.Points[0].Payload.Seq, true, nil
}

// storedSeqs returns the seq of every listed point already in the collection.
func (i *Index) storedSeqs(ctx context.Context, name string, ids []string) (map[string]uint64, error) {
	req := map[string]any{
		"ids":          ids,
		"with_payload": []string{seqField},
		"with_vector":  false,
	}
	var resp envelope[[]scoredPoint]
	status, err := i.do(ctx, http.MethodPost, req, &resp, "collections", name, "points")
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %q", storage.ErrCollectionNotFound, name)
	}
	seqs := make(map[string]uint64, len(resp.Result))
	for _, p := range resp.Result {
		seqs[fmt.Sprint(p.ID)] = p.Payload.Seq
	}
	return seqs, nil
}

// assignSeqs returns one seq per chunk. Known points keep theirs; new points
// get fresh numbers in input order, and a chunk id repeated within the batch
// shares one.
func (i *Index) assignSeqs(ctx context.Context, name string, chunks []core.IndexedChunk) ([]uint64, error) {
	ids := make([]string, 0, len(chunks))
	seen := make(map[string]bool, len(chunks))
	for _, c := range chunks {
		if id := PointID(c.ChunkID); !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	known, err := i.storedSeqs(ctx, name, ids)
	if err != nil {
		return nil, err
	}

	fresh := 0
	for _, id := range ids {
		if _, ok := known[id]; !ok {
			fresh++
		}
	}
	var next uint64
	if fresh > 0 {
		if next, err = i.reserve(ctx, name, fresh); err != nil {
			return nil, err
		}
	}

	seqs := make([]uint64, len(chunks))
	for n, c := range chunks {
		id := PointID(c.ChunkID)
		seq, ok := known[id]
		if !ok {
			seq = next
			known[id] = seq
			next++
		}
		seqs[n] = seq
	}
	return seqs, nil
}

// Upsert writes chunks as points keyed by PointID(chunk id). A point that
// already exists keeps its seq, so a replaced chunk holds its position.
func (i *Index) Upsert(ctx context.Context, name string, chunks []core.IndexedChunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	dim, err := i.dimension(ctx, name)
	if err != nil {
		return 0, err
	}
	for n := range chunks {
		if err := core.ValidateIndexedChunk(&chunks[n]); err != nil {
			return 0, err
		}
		if len(chunks[n].Vector) != dim {
			return 0, fmt.Errorf("%w: chunk %s has dimension %d, collection %q has %d",
				storage.ErrDimensionMismatch, chunks[n].ChunkID, len(chunks[n].Vector), name, dim)
		}
	}

	seqs, err := i.assignSeqs(ctx, name, chunks)
	if err != nil {
		return 0, err
	}

	points := make([]point, len(chunks))
	for n, c := range chunks {
		points[n] = point{
			ID:     PointID(c.ChunkID),
			Vector: c.Vector,
			Payload: pointPayload{
				ChunkID: c.ChunkID,
				Text:    c.Text,
				Source:  c.Source,
				Page:    c.Page,
				Seq:     seqs[n],
			},
		}
	}

	status, err := i.do(ctx, http.MethodPut, map[string]any{"points": points}, nil, "collections", name, "points")
	if err != nil {
		return 0, err
	}
	if status == http.StatusNotFound {
		return 0, fmt.Errorf("%w: %q", storage.ErrCollectionNotFound, name)
	}
	i.logger.Debug("upserted chunks", "collection", name, "count", len(points))
	return len(points), nil
}

// Search asks Qdrant for the k nearest points and orders equal scores by
// insertion sequence. One extra hit is requested so a tie straddling the
// k-th place can be detected; when one does, every point scoring at least
// the boundary score is fetched before sorting and truncating.
func (i *Index) Search(ctx context.Context, name string, vector []float32, k int) ([]core.ScoredCandidate, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", storage.ErrInvalidQuery, k)
	}
	info, err := i.info(ctx, name)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return []core.ScoredCandidate{}, nil
	}
	if dim := info.Config.Params.Vectors.Size; len(vector) != dim {
		return nil, fmt.Errorf("%w: query has dimension %d, collection %q has %d",
			storage.ErrDimensionMismatch, len(vector), name, dim)
	}

	hits, found, err := i.search(ctx, name, vector, k+1, nil)
	if err != nil || !found {
		return []core.ScoredCandidate{}, err
	}
	if len(hits) > k && hits[k].Score == hits[k-1].Score {
		boundary := hits[k].Score
		hits, found, err = i.search(ctx, name, vector, max(info.PointsCount, k+1), &boundary)
		if err != nil || !found {
			return []core.ScoredCandidate{}, err
		}
	}

	slices.SortStableFunc(hits, func(a, b scoredPoint) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		case a.Payload.Seq < b.Payload.Seq:
			return -1
		case a.Payload.Seq > b.Payload.Seq:
			return 1
		default:
			return 0
		}
	})
	if len(hits) > k {
		hits = hits[:k]
	}

	out := make([]core.ScoredCandidate, 0, len(hits))
	for _, h := range hits {
		out = append(out, core.ScoredCandidate{Chunk: h.Payload.chunk(), Score: h.Score})
	}
	return out, nil
}

func (i *Index) search(ctx context.Context, name string, vector []float32, limit int, threshold *float64) ([]scoredPoint, bool, error) {
	req := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
		"with_vector":  false,
	}
	if threshold != nil {
		req["score_threshold"] = *threshold
	}
	var resp envelope[[]scoredPoint]
	status, err := i.do(ctx, http.MethodPost, req, &resp, "collections", name, "points", "search")
	if err != nil {
		return nil, false, err
	}
	if status == http.StatusNotFound {
		return nil, false, nil
	}
	return resp.Result, true, nil
}

func (p pointPayload) chunk() core.Chunk {
	return core.Chunk{
		ChunkID: p.ChunkID,
		Text:    p.Text,
		Source:  p.Source,
		Page:    p.Page,
	}
}

// Count returns the exact number of points in the collection.
func (i *Index) Count(ctx context.Context, name string) (int, error) {
	if !validName(name) {
		return 0, fmt.Errorf("%w: %q", storage.ErrInvalidCollectionName, name)
	}
	var resp envelope[struct {
		Count int `json:"count"`
	}]
	status, err := i.do(ctx, http.MethodPost, map[string]any{"exact": true}, &resp, "collections", name, "points", "count")
	if err != nil {
		return 0, err
	}
	if status == http.StatusNotFound {
		return 0, fmt.Errorf("%w: %q", storage.ErrCollectionNotFound, name)
	}
	return resp.Result.Count, nil
}

// Info describes the collection.
func (i *Index) Info(ctx context.Context, name string) (core.CollectionInfo, error) {
	info, err := i.info(ctx, name)
	if err != nil {
		return core.CollectionInfo{}, err
	}
	if info == nil {
		return core.CollectionInfo{}, fmt.Errorf("%w: %q", storage.ErrCollectionNotFound, name)
	}
	count, err := i.Count(ctx, name)
	if err != nil {
		return core.CollectionInfo{}, err
	}
	return core.CollectionInfo{
		Name:      name,
		Dimension: info.Config.Params.Vectors.Size,
		Distance:  info.Config.Params.Vectors.Distance,
		Count:     count,
	}, nil
}

// Collections lists collection names in lexical order.
func (i *Index) Collections(ctx context.Context) ([]string, error) {
	var resp envelope[struct {
		Collections []struct {
			Name string `json:"name"`
		} `json:"collections"`
	}]
	if _, err := i.do(ctx, http.MethodGet, nil, &resp, "collections"); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(resp.Result.Collections))
	for _, c := range resp.Result.Collections {
		names = append(names, c.Name)
	}
	slices.Sort(names)
	return names, nil
}

// Scan pages through the collection ordered by seq. The cursor is the
// decimal seq of the last chunk returned.
func (i *Index) Scan(ctx context.Context, name string, cursor string, limit int) ([]core.IndexedChunk, string, error) {
	if limit < 1 {
		return nil, "", fmt.Errorf("%w: limit must be positive, got %d", storage.ErrInvalidQuery, limit)
	}
	if !validName(name) {
		return nil, "", fmt.Errorf("%w: %q", storage.ErrInvalidCollectionName, name)
	}

	req := map[string]any{
		"limit":        limit + 1,
		"with_payload": true,
		"with_vector":  true,
		"order_by":     map[string]any{"key": seqField, "direction": "asc"},
	}
	if cursor != "" {
		last, err := strconv.ParseUint(cursor, 10, 64)
		if err != nil {
			return nil, "", fmt.Errorf("%w: bad cursor %q", storage.ErrInvalidQuery, cursor)
		}
		req["filter"] = map[string]any{
			"must": []any{
				map[string]any{"key": seqField, "range": map[string]any{"gt": last}},
			},
		}
	}

	var resp envelope[scrollResult]
	status, err := i.do(ctx, http.MethodPost, req, &resp, "collections", name, "points", "scroll")
	if err != nil {
		return nil, "", err
	}
	if status == http.StatusNotFound {
		return nil, "", fmt.Errorf("%w: %q", storage.ErrCollectionNotFound, name)
	}

	points := resp.Result.Points
	next := ""
	if len(points) > limit {
		points = points[:limit]
		next = strconv.FormatUint(points[limit-1].Payload.Seq, 10)
	}

	out := make([]core.IndexedChunk, 0, len(points))
	for _, p := range points {
		out = append(out, core.IndexedChunk{Chunk: p.Payload.chunk(), Vector: p.Vector})
	}
	return out, next, nil
}

func sourceFilter(source string) map[string]any {
	return map[string]any{
		"must": []any{
			map[string]any{"key": "source", "match": map[string]any{"value": source}},
		},
	}
}

// DeleteBySource removes every point whose payload source equals source.
// The matching points are counted first so the removal can be reported.
func (i *Index) DeleteBySource(ctx context.Context, name string, source string) (int, error) {
	if !validName(name) {
		return 0, fmt.Errorf("%w: %q", storage.ErrInvalidCollectionName, name)
	}

	var counted envelope[struct {
		Count int `json:"count"`
	}]
	req := map[string]any{"exact": true, "filter": sourceFilter(source)}
	status, err := i.do(ctx, http.MethodPost, req, &counted, "collections", name, "points", "count")
	if err != nil {
		return 0, err
	}
	if status == http.StatusNotFound || counted.Result.Count == 0 {
		return 0, nil
	}

	status, err = i.do(ctx, http.MethodPost, map[string]any{"filter": sourceFilter(source)}, nil,
		"collections", name, "points", "delete")
	if err != nil {
		return 0, err
	}
	if status == http.StatusNotFound {
		return 0, nil
	}
	i.logger.Debug("deleted chunks", "collection", name, "source", source, "count", counted.Result.Count)
	return counted.Result.Count, nil
}

// DropCollection deletes the collection. Missing collections are ignored.
func (i *Index) DropCollection(ctx context.Context, name string) error {
	if !validName(name) {
		return fmt.Errorf("%w: %q", storage.ErrInvalidCollectionName, name)
	}
	if _, err := i.do(ctx, http.MethodDelete, nil, nil, "collections", name); err != nil {
		return err
	}
	i.mu.Lock()
	delete(i.dims, name)
	delete(i.next, name)
	i.mu.Unlock()
	i.logger.Info("dropped collection", "collection", name)
	return nil
}

// Close is a no-op; the HTTP client is shared.
func (i *Index) Close() error {
	return nil
}
