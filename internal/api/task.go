package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"yolotrain/internal/models"
	"yolotrain/internal/repository"
	"yolotrain/internal/training"
)

type TaskRouter struct {
	repo   *repository.Repository
	runner TrainingRunner
	router chi.Router
}

func (t *TaskRouter) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	t.router.ServeHTTP(writer, request)
}

func NewTaskRouter(repo *repository.Repository, runner TrainingRunner, router chi.Router) *TaskRouter {
	t := &TaskRouter{repo: repo, runner: runner, router: router}
	t.router.Get("/", t.ListTasks)
	t.router.Post("/", t.CreateTask)
	t.router.Get("/{id}", t.GetTask)
	t.router.Post("/{id}/stop", t.StopTask)
	t.router.Get("/{id}/progress", t.GetProgress)

	return t
}

func (t *TaskRouter) ListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := t.repo.ListTasks(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch tasks")
		http.Error(w, "Failed to fetch tasks", http.StatusInternalServerError)
		return
	}
	serveJson(w, tasks)
}

// CreateTask inserts a pending task and hands it to the runner. The response does not wait
// for training.
func (t *TaskRouter) CreateTask(w http.ResponseWriter, r *http.Request) {
	payload := NewCreateTaskRequest()
	if err := readJson(w, r, &payload); err != nil {
		return
	}
	if err := payload.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	ds, err := t.repo.GetDataset(ctx, payload.DatasetID)
	if err != nil {
		lookupError(w, err, "dataset")
		return
	}

	task := &models.TrainingTask{
		Name:      payload.Name,
		DatasetID: ds.ID,
		Variant:   payload.Variant,
		TaskKind:  payload.TaskKind,
		Epochs:    payload.Epochs,
		BatchSize: payload.BatchSize,
		ImageSize: payload.ImageSize,
	}
	if err := t.repo.CreateTask(ctx, task); err != nil {
		log.Error().Err(err).Msg("Could not insert task")
		http.Error(w, "Could not insert task", http.StatusInternalServerError)
		return
	}

	if err := t.runner.StartTraining(ctx, training.TrainingConfig{
		TaskID:      task.ID,
		DatasetPath: ds.Path,
		Kind:        task.TaskKind,
		Variant:     task.Variant,
		Epochs:      task.Epochs,
		BatchSize:   task.BatchSize,
		ImageSize:   task.ImageSize,
	}); err != nil {
		log.Error().Err(err).Int64("task_id", task.ID).Msg("Could not start training")
		if err := t.repo.FailTask(ctx, task.ID, err.Error()); err != nil {
			log.Error().Err(err).Int64("task_id", task.ID).Msg("Could not record start failure")
		}
		http.Error(w, fmt.Sprintf("Could not start training: %v", err), http.StatusInternalServerError)
		return
	}

	serveJsonStatus(w, http.StatusCreated, task)
}

func (t *TaskRouter) GetTask(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	task, err := t.repo.GetTask(r.Context(), id)
	if err != nil {
		lookupError(w, err, "task")
		return
	}
	serveJson(w, task)
}

// StopTask marks the task stopped in both stores. A training process that is already running
// is not interrupted and may still finish the task.
func (t *TaskRouter) StopTask(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	task, err := t.repo.GetTask(ctx, id)
	if err != nil {
		lookupError(w, err, "task")
		return
	}
	if task.Status.Terminal() {
		http.Error(w, fmt.Sprintf("task is already %s", task.Status), http.StatusConflict)
		return
	}

	if err := t.runner.StopTraining(ctx, id); err != nil {
		log.Error().Err(err).Int64("task_id", id).Msg("Could not mark progress as stopped")
	}
	if err := t.repo.StopTask(ctx, id); err != nil {
		lookupError(w, err, "task")
		return
	}

	task.Status = models.TsStopped
	serveJson(w, task)
}

func (t *TaskRouter) GetProgress(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	task, err := t.repo.GetTask(ctx, id)
	if err != nil {
		lookupError(w, err, "task")
		return
	}

	rec, err := t.runner.GetProgress(ctx, id)
	if err != nil {
		log.Error().Err(err).Int64("task_id", id).Msg("Could not read progress")
		http.Error(w, "Could not read progress", http.StatusInternalServerError)
		return
	}
	serveJson(w, TaskProgressResponse{Task: task, Progress: rec})
}
