package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pbaille/notes/internal/domain"
	"github.com/pbaille/notes/internal/notes"
)

// maxBodyBytes bounds note request bodies
const maxBodyBytes = 5 * 1024 * 1024

// Server handles HTTP requests for the notes API
type Server struct {
	notes   *notes.Service
	addr    string
	logger  *slog.Logger
	metrics *Metrics
	handler http.Handler

	// ShutdownTimeout bounds how long Run waits for in-flight requests
	ShutdownTimeout time.Duration
}

// New creates a new API server
func New(svc *notes.Service, addr string, logger *slog.Logger) *Server {
	s := &Server{
		notes:           svc,
		addr:            addr,
		logger:          logger,
		metrics:         NewMetrics(),
		ShutdownTimeout: 10 * time.Second,
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(s.metrics)

	mux := http.NewServeMux()

	// Notes
	mux.HandleFunc("GET /api/notes", s.listNotes)
	mux.HandleFunc("POST /api/notes", s.createNote)
	mux.HandleFunc("GET /api/notes/{id}", s.getNote)
	mux.HandleFunc("PUT /api/notes/{id}", s.updateNote)
	mux.HandleFunc("DELETE /api/notes/{id}", s.deleteNote)

	// Search
	mux.HandleFunc("GET /api/search", s.searchNotes)

	// Tags
	mux.HandleFunc("GET /api/tags", s.listTags)

	// Health check
	mux.HandleFunc("GET /api/health", s.health)

	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	s.handler = s.withLogging(s.metrics.instrument(withCORS(mux)))
	return s
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves until ctx is cancelled, then drains in-flight requests
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()
	s.logger.Info("starting server", "addr", s.addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// withCORS lets the browser editor call the API from any origin
func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		h.ServeHTTP(w, r)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// NoteRequest is the request body for creating or replacing a note
type NoteRequest struct {
	Title   *string         `json:"title"`
	Content *map[string]any `json:"content"`
	Tags    []string        `json:"tags"`
}

// decodeNote reads a NoteRequest. Malformed JSON is a BadRequest, a body
// of the wrong shape is NotValid.
func decodeNote(w http.ResponseWriter, r *http.Request) (domain.NoteInput, error) {
	var req NoteRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	// content is kept verbatim, including integers beyond float64 precision
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return domain.NoteInput{}, errors.NotValidf("field %q of type %s", typeErr.Field, typeErr.Value)
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return domain.NoteInput{}, err
		}
		return domain.NoteInput{}, errors.BadRequestf("invalid request body")
	}

	if req.Title == nil {
		return domain.NoteInput{}, errors.NotValidf("missing title")
	}
	if req.Content == nil {
		return domain.NoteInput{}, errors.NotValidf("missing content")
	}

	return domain.NoteInput{
		Title:   *req.Title,
		Content: *req.Content,
		Tags:    req.Tags,
	}, nil
}

func (s *Server) listNotes(w http.ResponseWriter, r *http.Request) {
	all, err := s.notes.List(r.Context())
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wireNotes(all))
}

func (s *Server) createNote(w http.ResponseWriter, r *http.Request) {
	in, err := decodeNote(w, r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	n, err := s.notes.Create(r.Context(), in)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

func (s *Server) getNote(w http.ResponseWriter, r *http.Request) {
	n, err := s.notes.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (s *Server) updateNote(w http.ResponseWriter, r *http.Request) {
	in, err := decodeNote(w, r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	n, err := s.notes.Update(r.Context(), r.PathValue("id"), in)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (s *Server) deleteNote(w http.ResponseWriter, r *http.Request) {
	if err := s.notes.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Note deleted successfully"})
}

func (s *Server) searchNotes(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if !query.Has("q") {
		s.writeErr(w, r, errors.NotValidf("missing query parameter 'q'"))
		return
	}

	found, err := s.notes.Search(r.Context(), query.Get("q"))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wireNotes(found))
}

func (s *Server) listTags(w http.ResponseWriter, r *http.Request) {
	tags, err := s.notes.Tags(r.Context())
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tags)
}

// wireNotes keeps empty results encoded as [] rather than null
func wireNotes(ns []domain.Note) []domain.Note {
	if ns == nil {
		return []domain.Note{}
	}
	return ns
}

// writeErr maps service errors onto status codes. Anything unclassified is
// logged and reported as a bare 500.
func (s *Server) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
	case errors.Is(err, errors.NotFound):
		writeError(w, http.StatusNotFound, "Note not found")
	case errors.Is(err, errors.NotValid):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, errors.BadRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"err", err,
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
