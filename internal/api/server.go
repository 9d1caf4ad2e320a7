package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/twin/internal/corpus"
	"github.com/MikeSquared-Agency/twin/internal/processor"
	"github.com/MikeSquared-Agency/twin/internal/search"
	"github.com/MikeSquared-Agency/twin/internal/store"
)

// Asker runs questions through the pipeline.
type Asker interface {
	AskRequest(ctx context.Context, requestID, question string) *processor.Outcome
	Snapshot() *corpus.Snapshot
}

type AnswerReader interface {
	GetAnswer(ctx context.Context, id uuid.UUID) (*store.AnswerRecord, error)
}

type ChunkSearcher interface {
	Search(ctx context.Context, query string, size int) (*search.Result, error)
}

type Server struct {
	router  *chi.Mux
	port    int
	asker   Asker
	answers AnswerReader
	search  ChunkSearcher
	logger  *slog.Logger
	http    *http.Server
}

// NewServer wires the routes. An empty apiToken leaves /api/v1 open.
func NewServer(port int, apiToken string, asker Asker, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router: router,
		port:   port,
		asker:  asker,
		logger: logger,
	}

	router.Get("/health", s.health)
	router.Route("/api/v1", func(r chi.Router) {
		r.Use(BearerAuthMiddleware(apiToken))
		r.Get("/twin/status", s.status)
		r.Post("/ask", s.ask)
		r.Get("/answers/{id}", s.getAnswer)
		r.Get("/chunks/search", s.searchChunks)
	})

	return s
}

// SetAnswers enables GET /api/v1/answers/{id}.
func (s *Server) SetAnswers(a AnswerReader) { s.answers = a }

// SetSearch enables GET /api/v1/chunks/search.
func (s *Server) SetSearch(c ChunkSearcher) { s.search = c }

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      2 * time.Minute,
	}
	s.logger.Info("API server starting", "addr", addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	snap := s.asker.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"agent":            "twin",
		"snapshot_version": snap.Version,
		"loaded_at":        snap.LoadedAt,
		"chunks":           snap.Len(),
		"periods":          len(snap.Periods()),
		"answers_enabled":  s.answers != nil,
		"search_enabled":   s.search != nil,
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
