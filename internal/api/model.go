package api

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"yolotrain/internal/repository"
)

type ModelRouter struct {
	repo   *repository.Repository
	router chi.Router
}

func (m *ModelRouter) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	m.router.ServeHTTP(writer, request)
}

func NewModelRouter(repo *repository.Repository, router chi.Router) *ModelRouter {
	m := &ModelRouter{repo: repo, router: router}
	m.router.Get("/", m.ListModels)
	m.router.Get("/{id}", m.GetModel)
	m.router.Delete("/{id}", m.DeleteModel)
	m.router.Get("/{id}/download", m.DownloadModel)

	return m
}

func (m *ModelRouter) ListModels(w http.ResponseWriter, r *http.Request) {
	list, err := m.repo.ListModels(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch models")
		http.Error(w, "Failed to fetch models", http.StatusInternalServerError)
		return
	}
	serveJson(w, list)
}

func (m *ModelRouter) GetModel(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	model, err := m.repo.GetModel(r.Context(), id)
	if err != nil {
		lookupError(w, err, "model")
		return
	}
	serveJson(w, model)
}

// DeleteModel removes the model row and its weights file
func (m *ModelRouter) DeleteModel(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	model, err := m.repo.GetModel(ctx, id)
	if err != nil {
		lookupError(w, err, "model")
		return
	}
	if err := m.repo.DeleteModel(ctx, id); err != nil {
		lookupError(w, err, "model")
		return
	}

	if err := os.Remove(model.WeightPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Int64("model_id", id).Str("path", model.WeightPath).Msg("Could not remove weights file")
	}
	w.WriteHeader(http.StatusNoContent)
}

func (m *ModelRouter) DownloadModel(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	model, err := m.repo.GetModel(r.Context(), id)
	if err != nil {
		lookupError(w, err, "model")
		return
	}

	info, err := os.Stat(model.WeightPath)
	if err != nil || info.IsDir() {
		http.Error(w, "weights file not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", model.Name+filepath.Ext(model.WeightPath)))
	http.ServeFile(w, r, model.WeightPath)
}
