package training_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/guregu/null/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yolotrain/internal/database"
	"yolotrain/internal/models"
	"yolotrain/internal/progress"
	"yolotrain/internal/repository"
	"yolotrain/internal/trainer"
	"yolotrain/internal/training"
)

// fakeTrainer emits epochs events and optionally writes the artifacts a real run leaves behind
type fakeTrainer struct {
	epochs     int
	writeBest  bool
	resolveErr error
	trainErr   error
	panicMsg   string
	gate       chan struct{} // Train blocks on it after the first epoch
	afterEpoch func(epoch int)

	mu           sync.Mutex
	resolveCalls int
	params       trainer.Params
}

func (f *fakeTrainer) ResolveModel(_ context.Context, variant string, kind models.TaskKind) (string, error) {
	f.mu.Lock()
	f.resolveCalls++
	f.mu.Unlock()

	if f.resolveErr != nil {
		return "", f.resolveErr
	}
	return kind.WeightsFile(variant), nil
}

func (f *fakeTrainer) Train(_ context.Context, params trainer.Params, onEpochEnd trainer.EpochCallback) (*trainer.Outcome, error) {
	f.mu.Lock()
	f.params = params
	f.mu.Unlock()

	for epoch := 1; epoch <= f.epochs; epoch++ {
		onEpochEnd(epoch)
		if f.afterEpoch != nil {
			f.afterEpoch(epoch)
		}
		if epoch == 1 && f.gate != nil {
			<-f.gate
		}
	}

	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.trainErr != nil {
		return nil, f.trainErr
	}

	saveDir := filepath.Join(params.Project, params.Name)
	if f.writeBest {
		if err := os.MkdirAll(filepath.Join(saveDir, "weights"), 0o755); err != nil {
			return nil, err
		}
		for name, content := range map[string]string{
			"weights/best.pt":      "best-weights",
			"results.png":          "png",
			"confusion_matrix.png": "png",
		} {
			if err := os.WriteFile(filepath.Join(saveDir, name), []byte(content), 0o644); err != nil {
				return nil, err
			}
		}
	}
	return &trainer.Outcome{SaveDir: saveDir}, nil
}

func (f *fakeTrainer) snapshot() (int, trainer.Params) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resolveCalls, f.params
}

type testEnv struct {
	repo    *repository.Repository
	runner  *training.Runner
	dirs    training.Dirs
	dataset *models.Dataset
}

func newTestEnv(t *testing.T, ft trainer.Trainer) *testEnv {
	t.Helper()

	root := t.TempDir()
	db, err := database.Open("sqlite", "file:"+filepath.Join(root, "test.db")+"?_pragma=foreign_keys(1)")
	require.NoError(t, err)

	dirs := training.Dirs{
		Runs:    filepath.Join(root, "runs"),
		Models:  filepath.Join(root, "models"),
		Weights: filepath.Join(root, "weights"),
	}
	repo := repository.New(db)
	runner := training.NewRunner(progress.NewMemoryStore(), repo, ft, dirs, 1)
	t.Cleanup(func() {
		runner.Stop()
		assert.NoError(t, db.Close())
	})

	ds := &models.Dataset{
		Name:     "coco8",
		TaskKind: models.KindDetect,
		Path:     newDatasetDir(t),
	}
	require.NoError(t, repo.CreateDataset(context.Background(), ds))

	return &testEnv{repo: repo, runner: runner, dirs: dirs, dataset: ds}
}

func newDatasetDir(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "coco8")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data.yaml"),
		[]byte("path: .\ntrain: train/images\nval: val/images\nnames:\n  0: cat\n"), 0o644))
	return dir
}

func (e *testEnv) createTask(t *testing.T, epochs int) training.TrainingConfig {
	t.Helper()
	task := &models.TrainingTask{
		Name:      "cats",
		DatasetID: e.dataset.ID,
		Variant:   "yolo11n",
		TaskKind:  models.KindDetect,
		Epochs:    epochs,
		BatchSize: 8,
		ImageSize: 320,
	}
	require.NoError(t, e.repo.CreateTask(context.Background(), task))

	return training.TrainingConfig{
		TaskID:      task.ID,
		DatasetPath: e.dataset.Path,
		Kind:        task.TaskKind,
		Variant:     task.Variant,
		Epochs:      task.Epochs,
		BatchSize:   task.BatchSize,
		ImageSize:   task.ImageSize,
	}
}

// waitForStatus polls the progress record until it is in one of statuses
func waitForStatus(t *testing.T, runner *training.Runner, taskID int64, statuses ...progress.Status) progress.Record {
	t.Helper()
	var rec progress.Record
	require.Eventually(t, func() bool {
		r, err := runner.GetProgress(context.Background(), taskID)
		if err != nil {
			return false
		}
		rec = r
		return slices.Contains(statuses, r.Status)
	}, 5*time.Second, 5*time.Millisecond, "task %d never reached %v", taskID, statuses)
	return rec
}

func TestStartTraining_RegistersStartingBeforeReturning(t *testing.T) {
	gate := make(chan struct{})
	env := newTestEnv(t, &fakeTrainer{epochs: 1})
	cfg := env.createTask(t, 1)

	// a runner whose task lookup blocks keeps the worker from advancing
	runner := training.NewRunner(progress.NewMemoryStore(), &gatedTaskStore{TaskStore: env.repo, gate: gate}, &fakeTrainer{epochs: 1}, env.dirs, 1)
	defer runner.Stop()

	require.NoError(t, runner.StartTraining(context.Background(), cfg))

	rec, err := runner.GetProgress(context.Background(), cfg.TaskID)
	require.NoError(t, err)
	assert.Equal(t, progress.Record{Status: progress.StatusStarting, Logs: []string{}}, rec)

	close(gate)
	waitForStatus(t, runner, cfg.TaskID, progress.StatusCompleted)
}

type gatedTaskStore struct {
	training.TaskStore
	gate chan struct{}
}

func (g *gatedTaskStore) GetTask(ctx context.Context, id int64) (*models.TrainingTask, error) {
	<-g.gate
	return g.TaskStore.GetTask(ctx, id)
}

func TestTraining_CompletesAndRegistersModel(t *testing.T) {
	var mu sync.Mutex
	var observed []progress.Record

	ft := &fakeTrainer{epochs: 3, writeBest: true}
	env := newTestEnv(t, ft)
	cfg := env.createTask(t, 3)
	ft.afterEpoch = func(int) {
		rec, err := env.runner.GetProgress(context.Background(), cfg.TaskID)
		assert.NoError(t, err)
		mu.Lock()
		observed = append(observed, rec)
		mu.Unlock()
	}

	require.NoError(t, env.runner.StartTraining(context.Background(), cfg))
	rec := waitForStatus(t, env.runner, cfg.TaskID, progress.StatusCompleted, progress.StatusFailed)
	require.Equal(t, progress.StatusCompleted, rec.Status, rec.Error)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, observed, 3)
	expected := []float64{100.0 / 3, 200.0 / 3, 100}
	for i, snap := range observed {
		assert.Equal(t, progress.StatusTraining, snap.Status)
		assert.Equal(t, i+1, snap.CurrentEpoch)
		assert.InDelta(t, expected[i], snap.Progress, 1e-9)
		if i > 0 {
			assert.GreaterOrEqual(t, snap.Progress, observed[i-1].Progress)
		}
	}
	assert.Equal(t, []string{"Epoch 1/3 completed", "Epoch 2/3 completed", "Epoch 3/3 completed"}, rec.Logs)
	assert.Equal(t, 100.0, rec.Progress)

	ctx := context.Background()
	task, err := env.repo.GetTask(ctx, cfg.TaskID)
	require.NoError(t, err)
	project := filepath.Join(env.dirs.Runs, "task_1")
	assert.Equal(t, models.TsCompleted, task.Status)
	assert.Equal(t, 100.0, task.Progress)
	assert.Equal(t, 3, task.CurrentEpoch)
	assert.True(t, task.StartedAt.Valid)
	assert.True(t, task.CompletedAt.Valid)
	assert.Equal(t, null.StringFrom(project), task.OutputPath)

	_, params := ft.snapshot()
	assert.Equal(t, filepath.Join(cfg.DatasetPath, "data.yaml"), params.DataYAML)
	assert.Equal(t, project, params.Project)
	assert.Equal(t, "train", params.Name)
	assert.Equal(t, "yolo11n.pt", params.Weights)
	assert.Equal(t, 8, params.BatchSize)
	assert.Equal(t, 320, params.ImageSize)

	list, err := env.repo.ListModelsByTask(ctx, cfg.TaskID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	model := list[0]
	assert.Equal(t, "cats_model", model.Name)
	assert.Equal(t, filepath.Join(env.dirs.Models, "task_1_best.pt"), model.WeightPath)
	assert.Equal(t, int64(len("best-weights")), model.Size)
	assert.Equal(t, models.KindDetect, model.TaskKind)
	assert.Equal(t, "yolo11n", model.Variant)

	content, err := os.ReadFile(model.WeightPath)
	require.NoError(t, err)
	assert.Equal(t, "best-weights", string(content))

	var metrics models.ModelMetrics
	require.NoError(t, json.Unmarshal([]byte(model.Metrics.String), &metrics))
	assert.Equal(t, models.ModelMetrics{
		Epochs:    3,
		BatchSize: 8,
		ImageSize: 320,
		Plots: map[string]string{
			"results":          filepath.Join(project, "train", "results.png"),
			"confusion_matrix": filepath.Join(project, "train", "confusion_matrix.png"),
		},
	}, metrics)
}

func TestTraining_NoArtifactStillCompletes(t *testing.T) {
	env := newTestEnv(t, &fakeTrainer{epochs: 2})
	cfg := env.createTask(t, 2)

	require.NoError(t, env.runner.StartTraining(context.Background(), cfg))
	rec := waitForStatus(t, env.runner, cfg.TaskID, progress.StatusCompleted, progress.StatusFailed)
	assert.Equal(t, progress.StatusCompleted, rec.Status)

	task, err := env.repo.GetTask(context.Background(), cfg.TaskID)
	require.NoError(t, err)
	assert.Equal(t, models.TsCompleted, task.Status)

	list, err := env.repo.ListModelsByTask(context.Background(), cfg.TaskID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestTraining_Failures(t *testing.T) {
	tests := []struct {
		name          string
		trainer       *fakeTrainer
		breakDataset  bool
		expectedError string
		expectEpochs  int
	}{
		{
			name:          "trainer error",
			trainer:       &fakeTrainer{epochs: 2, trainErr: errors.New("CUDA out of memory")},
			expectedError: "training failed: CUDA out of memory",
			expectEpochs:  2,
		},
		{
			name:          "trainer panic",
			trainer:       &fakeTrainer{epochs: 1, panicMsg: "index out of range"},
			expectedError: "trainer panicked: index out of range",
			expectEpochs:  1,
		},
		{
			name:          "download failure",
			trainer:       &fakeTrainer{epochs: 1, resolveErr: &trainer.DriverError{Kind: "download", Message: "connection refused"}},
			expectedError: "download 'yolo11n.pt' manually and place it in",
		},
		{
			name:          "unknown base model",
			trainer:       &fakeTrainer{epochs: 1, resolveErr: &trainer.DriverError{Kind: "config", Message: "no such model"}},
			expectedError: "could not load base model 'yolo11n.pt'",
		},
		{
			name:          "dataset without descriptor",
			trainer:       &fakeTrainer{epochs: 1},
			breakDataset:  true,
			expectedError: "dataset has no data.yaml",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.trainer)
			cfg := env.createTask(t, 3)
			if tt.breakDataset {
				require.NoError(t, os.Remove(filepath.Join(cfg.DatasetPath, "data.yaml")))
			}

			require.NoError(t, env.runner.StartTraining(context.Background(), cfg))
			rec := waitForStatus(t, env.runner, cfg.TaskID, progress.StatusCompleted, progress.StatusFailed)

			assert.Equal(t, progress.StatusFailed, rec.Status)
			assert.Contains(t, rec.Error, tt.expectedError)
			require.NotEmpty(t, rec.Logs)
			assert.Equal(t, rec.Error, rec.Logs[len(rec.Logs)-1])
			assert.Equal(t, tt.expectEpochs, rec.CurrentEpoch)

			task, err := env.repo.GetTask(context.Background(), cfg.TaskID)
			require.NoError(t, err)
			assert.Equal(t, models.TsFailed, task.Status)
			assert.Contains(t, task.Logs.String, tt.expectedError)
			assert.False(t, task.CompletedAt.Valid)

			list, err := env.repo.ListModelsByTask(context.Background(), cfg.TaskID)
			require.NoError(t, err)
			assert.Empty(t, list)
		})
	}
}

func TestTraining_DatasetErrorSkipsModelResolution(t *testing.T) {
	ft := &fakeTrainer{epochs: 1}
	env := newTestEnv(t, ft)
	cfg := env.createTask(t, 1)
	cfg.DatasetPath = filepath.Join(t.TempDir(), "missing")

	require.NoError(t, env.runner.StartTraining(context.Background(), cfg))
	rec := waitForStatus(t, env.runner, cfg.TaskID, progress.StatusFailed, progress.StatusCompleted)
	assert.Equal(t, progress.StatusFailed, rec.Status)
	assert.Contains(t, rec.Error, "is not accessible")

	calls, _ := ft.snapshot()
	assert.Zero(t, calls)
}

func TestTraining_PrefersCachedWeights(t *testing.T) {
	ft := &fakeTrainer{epochs: 1}
	env := newTestEnv(t, ft)
	cfg := env.createTask(t, 1)
	cfg.Kind = models.KindSegment

	cached := filepath.Join(env.dirs.Weights, "yolo11n-seg.pt")
	require.NoError(t, os.MkdirAll(env.dirs.Weights, 0o755))
	require.NoError(t, os.WriteFile(cached, []byte("weights"), 0o644))

	require.NoError(t, env.runner.StartTraining(context.Background(), cfg))
	waitForStatus(t, env.runner, cfg.TaskID, progress.StatusCompleted)

	calls, params := ft.snapshot()
	assert.Zero(t, calls)
	assert.Equal(t, cached, params.Weights)
}

func TestTraining_MissingTask(t *testing.T) {
	env := newTestEnv(t, &fakeTrainer{epochs: 1})

	require.NoError(t, env.runner.StartTraining(context.Background(), training.TrainingConfig{TaskID: 404, Epochs: 1}))
	rec := waitForStatus(t, env.runner, 404, progress.StatusFailed)
	assert.Contains(t, rec.Error, "could not load task 404")
}

func TestStopTraining_WorkerMayOverwriteStop(t *testing.T) {
	ctx := context.Background()
	firstEpoch := make(chan struct{})
	ft := &fakeTrainer{epochs: 3, writeBest: true, gate: make(chan struct{})}
	ft.afterEpoch = func(epoch int) {
		if epoch == 1 {
			close(firstEpoch)
		}
	}
	env := newTestEnv(t, ft)
	cfg := env.createTask(t, 3)

	require.NoError(t, env.runner.StartTraining(ctx, cfg))
	select {
	case <-firstEpoch:
	case <-time.After(5 * time.Second):
		t.Fatal("training never reached the first epoch")
	}

	// the coordinator stops both stores while the trainer is still running
	require.NoError(t, env.runner.StopTraining(ctx, cfg.TaskID))
	require.NoError(t, env.repo.StopTask(ctx, cfg.TaskID))

	rec, err := env.runner.GetProgress(ctx, cfg.TaskID)
	require.NoError(t, err)
	assert.Equal(t, progress.StatusStopped, rec.Status)
	task, err := env.repo.GetTask(ctx, cfg.TaskID)
	require.NoError(t, err)
	assert.Equal(t, models.TsStopped, task.Status)

	close(ft.gate)
	rec = waitForStatus(t, env.runner, cfg.TaskID, progress.StatusCompleted)
	assert.Equal(t, 3, rec.CurrentEpoch)

	task, err = env.repo.GetTask(ctx, cfg.TaskID)
	require.NoError(t, err)
	assert.Equal(t, models.TsCompleted, task.Status)
}

func TestStopTraining_UnknownTask(t *testing.T) {
	env := newTestEnv(t, &fakeTrainer{})

	require.NoError(t, env.runner.StopTraining(context.Background(), 99))
	rec, err := env.runner.GetProgress(context.Background(), 99)
	require.NoError(t, err)
	assert.Equal(t, progress.Unknown(), rec)
}

func TestGetProgress_Unknown(t *testing.T) {
	env := newTestEnv(t, &fakeTrainer{})

	rec, err := env.runner.GetProgress(context.Background(), 12345)
	require.NoError(t, err)
	assert.Equal(t, progress.StatusUnknown, rec.Status)
	assert.Zero(t, rec.Progress)
	assert.Zero(t, rec.CurrentEpoch)
	assert.Empty(t, rec.Logs)
}
