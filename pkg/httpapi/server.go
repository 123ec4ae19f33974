// Package httpapi exposes a DB over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/KevoDB/strata/pkg/common/log"
	"github.com/KevoDB/strata/pkg/engine"
)

const (
	contentTypeJSON        = "application/json"
	defaultAddr            = ":8080"
	defaultShutdownTimeout = time.Second * 5

	// DefaultScanLimit caps scans that do not ask for a limit
	DefaultScanLimit = 1000
	// MaxScanLimit caps every scan
	MaxScanLimit = 100000
	// MaxValueSize bounds request bodies for PUT
	MaxValueSize = 32 << 20
)

// ErrEmptyKey is returned for key routes whose {key} segment is empty
var ErrEmptyKey = errors.New("key must not be empty")

// Server serves the key-value API of a DB
type Server struct {
	db         *engine.DB
	logger     log.Logger
	httpServer *http.Server
	addr       string
}

// NewServer creates a server for db listening on addr
func NewServer(db *engine.DB, addr string, logger log.Logger) *Server {
	if addr == "" {
		addr = defaultAddr
	}
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	return &Server{
		db:     db,
		logger: logger.WithField("component", "http"),
		addr:   addr,
	}
}

// Addr returns the listen address
func (s *Server) Addr() string {
	return s.addr
}

// Handler builds the chi router
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.handleHealth)
	r.Get("/stats", s.handleStats)

	r.Route("/kv", func(r chi.Router) {
		r.Get("/{key}", s.handleGet)
		r.Put("/{key}", s.handlePut)
		r.Delete("/{key}", s.handleDelete)
	})
	r.Get("/scan", s.handleScan)

	r.Route("/admin", func(r chi.Router) {
		r.Post("/flush", s.handleFlush)
		r.Post("/compact", s.handleCompact)
	})

	return r
}

// Start begins serving in the background
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error: %v", err)
			errCh <- err
		}
	}()

	// Surface immediate listen failures such as a port already in use
	select {
	case err := <-errCh:
		return fmt.Errorf("failed to start HTTP server: %w", err)
	case <-time.After(100 * time.Millisecond):
	}

	s.logger.Info("HTTP server listening on %s", s.addr)
	return nil
}

// Stop shuts the server down gracefully
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("Error encoding response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrKeyNotFound):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrEngineClosed):
		status = http.StatusServiceUnavailable
	default:
		s.logger.Error("Request failed: %v", err)
	}
	s.writeJSON(w, status, NewErrorResponse(err.Error()))
}

// keyParam returns the decoded {key} path segment
func keyParam(r *http.Request) (string, error) {
	key := chi.URLParam(r, "key")
	if r.URL.RawPath != "" {
		var err error
		if key, err = url.PathUnescape(key); err != nil {
			return "", fmt.Errorf("invalid key encoding: %w", err)
		}
	}
	if key == "" {
		return "", ErrEmptyKey
	}
	return key, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, NewOKResponse())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, NewStatsResponse(s.db.Stats()))
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	key, err := keyParam(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse(err.Error()))
		return
	}

	value, err := s.db.Get([]byte(key))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, NewValueResponse(string(value)))
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	key, err := keyParam(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse(err.Error()))
		return
	}

	value, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxValueSize))
	if err != nil {
		s.writeJSON(w, http.StatusRequestEntityTooLarge, NewErrorResponse("Failed to read value"))
		return
	}

	if err := s.db.Put([]byte(key), value); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, NewSuccessResponse())
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	key, err := keyParam(r)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse(err.Error()))
		return
	}

	if err := s.db.Delete([]byte(key)); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, NewSuccessResponse())
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := DefaultScanLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("Invalid limit"))
			return
		}
		limit = min(n, MaxScanLimit)
	}

	var it *engine.DBIterator
	switch prefix, from, to := q.Get("prefix"), q.Get("from"), q.Get("to"); {
	case prefix != "" && (from != "" || to != ""):
		s.writeJSON(w, http.StatusBadRequest, NewErrorResponse("prefix cannot be combined with from or to"))
		return
	case prefix != "":
		it = s.db.ScanPrefix([]byte(prefix))
	case to != "":
		it = s.db.ScanRange(bytesOrNil(from), []byte(to))
	default:
		it = s.db.Scan(bytesOrNil(from))
	}
	defer it.Close()

	var entries []Entry
	truncated := false
	for ; it.Valid(); it.Next() {
		if len(entries) == limit {
			truncated = true
			break
		}
		entries = append(entries, Entry{Key: string(it.Key()), Value: string(it.Value())})
	}
	if err := it.Error(); err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, NewScanResponse(entries, truncated))
}

func bytesOrNil(s string) []byte {
	if s == "" {
		return nil
	}
	return []byte(s)
}

func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Flush(); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, NewSuccessResponse())
}

func (s *Server) handleCompact(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Compact(); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, NewSuccessResponse())
}
