// Package training runs YOLO training tasks in the background and keeps the progress store and
// the persisted task rows in step with the trainer's epoch events.
package training

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"yolotrain/internal/models"
	"yolotrain/internal/progress"
	"yolotrain/internal/trainer"
)

// TrainingConfig is a fully resolved and validated training request
type TrainingConfig struct {
	TaskID      int64
	DatasetPath string
	Kind        models.TaskKind
	Variant     string
	Epochs      int
	BatchSize   int
	ImageSize   int
}

// TaskStore is the persisted side of a training task. It is satisfied by *repository.Repository.
type TaskStore interface {
	GetTask(ctx context.Context, id int64) (*models.TrainingTask, error)
	MarkTaskTraining(ctx context.Context, id int64, startedAt time.Time) error
	UpdateTaskProgress(ctx context.Context, id int64, progress float64, epoch int) error
	CompleteTask(ctx context.Context, id int64, outputPath string, completedAt time.Time, model *models.Model) error
	FailTask(ctx context.Context, id int64, logs string) error
}

// Dirs are the directories the runner reads from and writes to
type Dirs struct {
	Runs    string // per task training output, runs/task_{id}
	Models  string // stable copies of best weights
	Weights string // cache of base weights
}

type Runner struct {
	ID         string
	RetryDelay time.Duration // pause between final state write attempts

	progress       progress.Store
	tasks          TaskStore
	trainer        trainer.Trainer
	dirs           Dirs
	persistRetries int
	ctx            context.Context
	cancel         context.CancelFunc
}

func NewRunner(store progress.Store, tasks TaskStore, tr trainer.Trainer, dirs Dirs, persistRetries int) *Runner {
	id := uuid.New().String()
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		ID:             id,
		RetryDelay:     5 * time.Second,
		progress:       store,
		tasks:          tasks,
		trainer:        tr,
		dirs:           dirs,
		persistRetries: persistRetries,
		ctx:            ctx,
		cancel:         cancel,
	}
}

// StartTraining registers a `starting` progress record and launches the task in its own
// goroutine. It does not wait for training and does not validate cfg. Starting the same task
// twice runs two workers against the same records.
func (r *Runner) StartTraining(ctx context.Context, cfg TrainingConfig) error {
	if err := r.progress.Start(ctx, cfg.TaskID); err != nil {
		return fmt.Errorf("could not register progress for task %d: %w", cfg.TaskID, err)
	}

	log.Info().
		Int64("task_id", cfg.TaskID).
		Str("runner_id", r.ID).
		Str("model_type", cfg.Variant).
		Str("task_type", string(cfg.Kind)).
		Int("epochs", cfg.Epochs).
		Msg("Starting training task")

	go r.work(cfg)
	return nil
}

// StopTraining marks the task's progress as stopped. The running trainer is not interrupted and
// the worker may still overwrite the status with completed or failed when it finishes.
func (r *Runner) StopTraining(ctx context.Context, taskID int64) error {
	return r.progress.MarkStatus(ctx, taskID, progress.StatusStopped)
}

// GetProgress returns the task's progress record or the unknown record
func (r *Runner) GetProgress(ctx context.Context, taskID int64) (progress.Record, error) {
	return r.progress.Get(ctx, taskID)
}

// Stop kills running trainer processes. Their tasks are left as they are.
func (r *Runner) Stop() {
	r.cancel()
}
