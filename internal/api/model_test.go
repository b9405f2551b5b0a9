package api_test

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yolotrain/internal/models"
	"yolotrain/internal/repository"
)

func insertModel(t *testing.T, repo *repository.Repository) *models.Model {
	t.Helper()
	ctx := context.Background()

	ds := insertDataset(t, repo, t.TempDir())
	task := &models.TrainingTask{Name: "cats", DatasetID: ds.ID, Variant: "yolo11n", TaskKind: models.KindDetect, Epochs: 1, BatchSize: 1, ImageSize: 640}
	require.NoError(t, repo.CreateTask(ctx, task))

	weights := filepath.Join(t.TempDir(), "task_1_best.pt")
	require.NoError(t, os.WriteFile(weights, []byte("weights"), 0o644))

	model := &models.Model{
		Name:       "cats_model",
		TaskKind:   models.KindDetect,
		Variant:    "yolo11n",
		WeightPath: weights,
		Size:       7,
	}
	require.NoError(t, repo.CompleteTask(ctx, task.ID, "runs/task_1", time.Now(), model))
	return model
}

func TestModelRouter_GetAndList(t *testing.T) {
	srv, repo, _ := newTestServer(t)
	model := insertModel(t, repo)

	rr := doRequest(t, srv, http.MethodGet, "/api/models", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	list := decode[[]models.Model](t, rr)
	require.Len(t, list, 1)
	assert.Equal(t, "cats_model", list[0].Name)

	rr = doRequest(t, srv, http.MethodGet, "/api/models/1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	got := decode[models.Model](t, rr)
	assert.Equal(t, model.WeightPath, got.WeightPath)
	assert.Equal(t, int64(1), got.TaskID.Int64)

	rr = doRequest(t, srv, http.MethodGet, "/api/models/5", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestModelRouter_Download(t *testing.T) {
	srv, repo, _ := newTestServer(t)
	model := insertModel(t, repo)

	rr := doRequest(t, srv, http.MethodGet, "/api/models/1/download", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "weights", rr.Body.String())
	assert.Equal(t, `attachment; filename="cats_model.pt"`, rr.Header().Get("Content-Disposition"))

	require.NoError(t, os.Remove(model.WeightPath))
	rr = doRequest(t, srv, http.MethodGet, "/api/models/1/download", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestModelRouter_Delete(t *testing.T) {
	srv, repo, _ := newTestServer(t)
	model := insertModel(t, repo)

	rr := doRequest(t, srv, http.MethodDelete, "/api/models/1", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.NoFileExists(t, model.WeightPath)

	_, err := repo.GetModel(context.Background(), model.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	rr = doRequest(t, srv, http.MethodDelete, "/api/models/1", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
