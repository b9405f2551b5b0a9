package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"yolotrain/internal/models"
)

// CreateTask inserts a new training task in the pending state
func (r *Repository) CreateTask(ctx context.Context, task *models.TrainingTask) error {
	task.CreatedAt = time.Now().UTC()
	task.Status = models.TsPending
	task.Progress = 0
	task.CurrentEpoch = 0

	return r.db.QueryRowxContext(ctx, r.db.Rebind(`
INSERT INTO training_task (name, dataset_id, model_type, task_type, epochs, batch_size, img_size, status, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING id`),
		task.Name, task.DatasetID, task.Variant, task.TaskKind, task.Epochs, task.BatchSize, task.ImageSize,
		task.Status, task.CreatedAt,
	).Scan(&task.ID)
}

func (r *Repository) GetTask(ctx context.Context, id int64) (*models.TrainingTask, error) {
	var task models.TrainingTask
	if err := r.db.GetContext(ctx, &task, r.db.Rebind(`SELECT * FROM training_task WHERE id = ?`), id); err != nil {
		return nil, notFound(err)
	}
	return &task, nil
}

func (r *Repository) ListTasks(ctx context.Context) ([]models.TrainingTask, error) {
	tasks := []models.TrainingTask{}
	if err := r.db.SelectContext(ctx, &tasks, `SELECT * FROM training_task ORDER BY created_at DESC, id DESC`); err != nil {
		return nil, err
	}
	return tasks, nil
}

// ListTasksByStatus returns the tasks currently in any of the given statuses, oldest first
func (r *Repository) ListTasksByStatus(ctx context.Context, statuses ...models.TaskStatus) ([]models.TrainingTask, error) {
	tasks := []models.TrainingTask{}
	if len(statuses) == 0 {
		return tasks, nil
	}

	query, args, err := sqlx.In(`SELECT * FROM training_task WHERE status IN (?) ORDER BY id`, statuses)
	if err != nil {
		return nil, err
	}
	if err := r.db.SelectContext(ctx, &tasks, r.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	return tasks, nil
}

// MarkTaskTraining moves the task into the training state
func (r *Repository) MarkTaskTraining(ctx context.Context, id int64, startedAt time.Time) error {
	return expectOne(r.db.ExecContext(ctx, r.db.Rebind(`
UPDATE training_task
SET status = ?,
	started_at = ?
WHERE id = ?`), models.TsTraining, startedAt.UTC(), id))
}

// UpdateTaskProgress records the latest completed epoch of a running task
func (r *Repository) UpdateTaskProgress(ctx context.Context, id int64, progress float64, epoch int) error {
	return expectOne(r.db.ExecContext(ctx, r.db.Rebind(`
UPDATE training_task
SET progress = ?,
	current_epoch = ?
WHERE id = ?`), progress, epoch, id))
}

// CompleteTask marks the task completed and, when a model is given, registers it in the same
// transaction. The model's TaskID and CreatedAt are filled in.
func (r *Repository) CompleteTask(ctx context.Context, id int64, outputPath string, completedAt time.Time, model *models.Model) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer releaseTx(tx)

	if model != nil {
		model.TaskID.SetValid(id)
		model.CreatedAt = completedAt.UTC()
		if err := tx.QueryRowxContext(ctx, tx.Rebind(`
INSERT INTO model (name, task_id, task_type, model_type, weight_path, output_path, metrics, size, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING id`),
			model.Name, model.TaskID, model.TaskKind, model.Variant, model.WeightPath, model.OutputPath,
			model.Metrics, model.Size, model.CreatedAt,
		).Scan(&model.ID); err != nil {
			rollbackTx(tx)
			return fmt.Errorf("could not insert model: %w", err)
		}
	}

	if err := expectOne(tx.ExecContext(ctx, tx.Rebind(`
UPDATE training_task
SET status = ?,
	progress = 100,
	completed_at = ?,
	output_path = ?
WHERE id = ?`), models.TsCompleted, completedAt.UTC(), outputPath, id)); err != nil {
		rollbackTx(tx)
		return err
	}

	return tx.Commit()
}

// FailTask marks the task failed and stores the error text in its logs
func (r *Repository) FailTask(ctx context.Context, id int64, logs string) error {
	return expectOne(r.db.ExecContext(ctx, r.db.Rebind(`
UPDATE training_task
SET status = ?,
	logs = ?
WHERE id = ?`), models.TsFailed, logs, id))
}

// StopTask marks the task stopped. It does not touch a running training process.
func (r *Repository) StopTask(ctx context.Context, id int64) error {
	return expectOne(r.db.ExecContext(ctx, r.db.Rebind(`UPDATE training_task SET status = ? WHERE id = ?`),
		models.TsStopped, id))
}
