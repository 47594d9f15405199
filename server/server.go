package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/poiesic/ragstudio/core"
)

const (
	// DefaultMaxUploadBytes bounds the size of an uploaded file.
	DefaultMaxUploadBytes = 32 << 20

	defaultMode = "vector"
	defaultTopK = 5

	shutdownTimeout = 10 * time.Second
)

// Service is the pipeline the server fronts. *ragstudio.Studio implements it.
type Service interface {
	Ingest(ctx context.Context, path string) (core.IngestResult, error)
	Query(ctx context.Context, question, mode string, k int) (core.AnswerResult, error)
}

// Server exposes ingestion and querying over HTTP.
type Server struct {
	service        Service
	uploadDir      string
	maxUploadBytes int64
	metrics        http.Handler
	logger         *slog.Logger
}

// Option configures a Server.
type Option func(*Server) error

// WithMaxUploadBytes bounds the size of uploaded files.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) error {
		if n < 1 {
			return fmt.Errorf("%w: max upload bytes must be positive, got %d", ErrInvalidOption, n)
		}
		s.maxUploadBytes = n
		return nil
	}
}

// WithMetricsHandler serves h under /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) error {
		s.metrics = h
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// New creates a server that stores uploads under uploadDir before
// ingesting them.
func New(service Service, uploadDir string, opts ...Option) (*Server, error) {
	if service == nil {
		return nil, ErrServiceRequired
	}
	if uploadDir == "" {
		return nil, ErrUploadDirRequired
	}

	s := &Server{
		service:        service,
		uploadDir:      uploadDir,
		maxUploadBytes: DefaultMaxUploadBytes,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "server")
	return s, nil
}

// Handler returns the routes of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /upload", s.handleUpload)
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	return mux
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, listener)
}

// Serve accepts connections on listener until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(listener)
	}()
	s.logger.Info("listening", "addr", listener.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

type uploadResponse struct {
	OK            bool   `json:"ok"`
	ChunksIndexed int    `json:"chunks_indexed"`
	File          string `json:"file"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("missing file: %w", err))
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if name == "." || name == string(filepath.Separator) {
		s.writeError(w, http.StatusBadRequest, ErrInvalidFilename)
		return
	}

	path, err := s.store(name, file)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	result, err := s.service.Ingest(r.Context(), path)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	s.writeJSON(w, http.StatusOK, uploadResponse{
		OK:            true,
		ChunksIndexed: result.ChunksIndexed,
		File:          name,
	})
}

func (s *Server) store(name string, src io.Reader) (string, error) {
	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(s.uploadDir, name)
	dst, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return "", err
	}
	return path, dst.Close()
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	question := r.FormValue("question")
	if question == "" {
		s.writeError(w, http.StatusBadRequest, ErrQuestionRequired)
		return
	}

	mode := r.FormValue("mode")
	if mode == "" {
		mode = defaultMode
	}

	k := defaultTopK
	if raw := r.FormValue("top_k"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("%w: %q", ErrInvalidTopK, raw))
			return
		}
		k = v
	}

	result, err := s.service.Query(r.Context(), question, mode, k)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to write response", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "err", err)
	} else {
		s.logger.Debug("bad request", "err", err)
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}
