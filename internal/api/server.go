package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"yolotrain/internal/progress"
	"yolotrain/internal/repository"
	"yolotrain/internal/training"
)

// TrainingRunner starts, stops and reports training tasks
type TrainingRunner interface {
	StartTraining(ctx context.Context, cfg training.TrainingConfig) error
	StopTraining(ctx context.Context, taskID int64) error
	GetProgress(ctx context.Context, taskID int64) (progress.Record, error)
}

type Server struct {
	repo   *repository.Repository
	runner TrainingRunner
	router *chi.Mux
}

// New creates a new API server instance
func New(repo *repository.Repository, runner TrainingRunner) *Server {
	s := &Server{
		repo:   repo,
		runner: runner,
		router: chi.NewRouter(),
	}

	// Set up middleware
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)

	s.router.Route("/api", func(r chi.Router) {
		r.Mount("/datasets", NewDatasetRouter(repo, chi.NewRouter()))
		r.Mount("/tasks", NewTaskRouter(repo, runner, chi.NewRouter()))
		r.Mount("/models", NewModelRouter(repo, chi.NewRouter()))
		r.Get("/stats", s.GetStats)
	})

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.repo.Stats(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to compute stats")
		http.Error(w, "Failed to compute stats", http.StatusInternalServerError)
		return
	}
	serveJson(w, stats)
}

func readJson(w http.ResponseWriter, r *http.Request, payload any) error {
	defer func() {
		if err := r.Body.Close(); err != nil {
			log.Error().Err(err).Msg("Could not close request body")
		}
	}()

	err := json.NewDecoder(r.Body).Decode(payload)
	if err != nil {
		http.Error(w, "could not parse request body to payload", http.StatusBadRequest)
	}
	return err
}

func serveJson(w http.ResponseWriter, payload any) {
	serveJsonStatus(w, http.StatusOK, payload)
}

func serveJsonStatus(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("JSON encoding issue")
	}
}

// idParam reads the {id} route parameter. It writes a 400 and returns false when it is not a number.
func idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// lookupError writes a 404 for missing records and a 500 for everything else
func lookupError(w http.ResponseWriter, err error, what string) {
	if errors.Is(err, repository.ErrNotFound) {
		http.Error(w, what+" not found", http.StatusNotFound)
		return
	}
	log.Error().Err(err).Msgf("Failed to fetch %s", what)
	http.Error(w, "Failed to fetch "+what, http.StatusInternalServerError)
}
