package api

import (
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"yolotrain/internal/models"
	"yolotrain/internal/repository"
	"yolotrain/internal/training"
)

type DatasetRouter struct {
	repo   *repository.Repository
	router chi.Router
}

func (d *DatasetRouter) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	d.router.ServeHTTP(writer, request)
}

func NewDatasetRouter(repo *repository.Repository, router chi.Router) *DatasetRouter {
	d := &DatasetRouter{repo: repo, router: router}
	d.router.Get("/", d.ListDatasets)
	d.router.Post("/", d.CreateDataset)
	d.router.Get("/{id}", d.GetDataset)
	d.router.Delete("/{id}", d.DeleteDataset)

	return d
}

func (d *DatasetRouter) ListDatasets(w http.ResponseWriter, r *http.Request) {
	datasets, err := d.repo.ListDatasets(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch datasets")
		http.Error(w, "Failed to fetch datasets", http.StatusInternalServerError)
		return
	}
	serveJson(w, datasets)
}

// CreateDataset registers a dataset directory that already exists on disk
func (d *DatasetRouter) CreateDataset(w http.ResponseWriter, r *http.Request) {
	var payload CreateDatasetRequest
	if err := readJson(w, r, &payload); err != nil {
		return
	}
	if err := payload.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if info, err := os.Stat(payload.Path); err != nil || !info.IsDir() {
		http.Error(w, "path '"+payload.Path+"' is not a directory", http.StatusBadRequest)
		return
	}

	train, val := training.CountImages(payload.Path)
	ds := &models.Dataset{
		Name:        payload.Name,
		TaskKind:    payload.TaskKind,
		Description: payload.Description,
		Path:        payload.Path,
		FileCount:   train + val,
		Status:      models.DsReady,
	}
	if _, err := training.ResolveDataset(payload.Path); err != nil {
		log.Warn().Err(err).Str("path", payload.Path).Msg("Registered dataset is not trainable")
		ds.Status = models.DsError
	}

	if err := d.repo.CreateDataset(r.Context(), ds); err != nil {
		log.Error().Err(err).Msg("Could not insert dataset")
		http.Error(w, "Could not insert dataset", http.StatusInternalServerError)
		return
	}
	serveJsonStatus(w, http.StatusCreated, ds)
}

func (d *DatasetRouter) GetDataset(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	ds, err := d.repo.GetDataset(r.Context(), id)
	if err != nil {
		lookupError(w, err, "dataset")
		return
	}
	serveJson(w, ds)
}

// DeleteDataset removes the row and its tasks. The files on disk are kept.
func (d *DatasetRouter) DeleteDataset(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	if err := d.repo.DeleteDataset(r.Context(), id); err != nil {
		lookupError(w, err, "dataset")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
