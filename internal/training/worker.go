package training

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"yolotrain/internal/models"
	"yolotrain/internal/progress"
	"yolotrain/internal/trainer"
)

func (r *Runner) work(cfg TrainingConfig) {
	ctx := r.ctx
	logger := log.With().Int64("task_id", cfg.TaskID).Str("runner_id", r.ID).Logger()

	task, err := r.tasks.GetTask(ctx, cfg.TaskID)
	if err != nil {
		logger.Error().Err(err).Msg("Could not load training task")
		r.markProgressFailed(ctx, logger, cfg.TaskID, fmt.Sprintf("could not load task %d: %v", cfg.TaskID, err))
		return
	}

	if err := r.run(ctx, logger, cfg, task); err != nil {
		logger.Error().Err(err).Msg("Training task failed")
		r.fail(ctx, logger, cfg.TaskID, err)
		return
	}
	logger.Info().Msg("Training task completed")
}

func (r *Runner) run(ctx context.Context, logger zerolog.Logger, cfg TrainingConfig, task *models.TrainingTask) error {
	if err := r.tasks.MarkTaskTraining(ctx, cfg.TaskID, time.Now()); err != nil {
		return &PersistenceError{Op: "mark task as training", Err: err}
	}
	r.setStatus(ctx, logger, cfg.TaskID, progress.StatusTraining)

	dataYAML, err := ResolveDataset(cfg.DatasetPath)
	if err != nil {
		return err
	}

	weights, err := r.resolveWeights(ctx, cfg)
	if err != nil {
		return err
	}

	project := r.projectDir(cfg.TaskID)
	outcome, err := r.train(ctx, trainer.Params{
		Weights:   weights,
		DataYAML:  dataYAML,
		Epochs:    cfg.Epochs,
		BatchSize: cfg.BatchSize,
		ImageSize: cfg.ImageSize,
		Project:   project,
		Name:      runName,
	}, r.onEpochEnd(ctx, logger, cfg))
	if err != nil {
		return &TrainingExecutionError{Err: err}
	}
	logger.Debug().Str("save_dir", outcome.SaveDir).Msg("Trainer finished")

	return r.complete(ctx, logger, cfg, task, project)
}

// resolveWeights prefers the cached base weights and falls back to the trainer's own resolution
func (r *Runner) resolveWeights(ctx context.Context, cfg TrainingConfig) (string, error) {
	file := cfg.Kind.WeightsFile(cfg.Variant)
	if r.dirs.Weights != "" {
		if cached := filepath.Join(r.dirs.Weights, file); fileExists(cached) {
			return cached, nil
		}
	}

	path, err := r.trainer.ResolveModel(ctx, cfg.Variant, cfg.Kind)
	if err != nil {
		if errors.Is(err, trainer.ErrDownload) {
			return "", &ArtifactDownloadError{WeightsFile: file, CacheDir: r.dirs.Weights, Err: err}
		}
		return "", &ConfigurationError{Msg: "could not load base model '" + file + "'", Err: err}
	}
	return path, nil
}

// train calls the trainer and turns a panic into an error
func (r *Runner) train(ctx context.Context, params trainer.Params, onEpochEnd trainer.EpochCallback) (outcome *trainer.Outcome, err error) {
	defer func() {
		if p := recover(); p != nil {
			outcome = nil
			err = fmt.Errorf("trainer panicked: %v\n%s", p, debug.Stack())
		}
	}()

	outcome, err = r.trainer.Train(ctx, params, onEpochEnd)
	if err == nil && outcome == nil {
		outcome = &trainer.Outcome{}
	}
	return outcome, err
}

// onEpochEnd relays a finished epoch into both stores. Write failures never abort training.
func (r *Runner) onEpochEnd(ctx context.Context, logger zerolog.Logger, cfg TrainingConfig) trainer.EpochCallback {
	return func(epoch int) {
		pct := progress.EpochProgress(epoch, cfg.Epochs)

		if err := r.progress.Update(ctx, cfg.TaskID, pct, epoch, progress.EpochLogLine(epoch, cfg.Epochs)); err != nil {
			logger.Error().Err(&PersistenceError{Op: "update progress record", Err: err}).Int("epoch", epoch).Send()
		}
		if err := r.tasks.UpdateTaskProgress(ctx, cfg.TaskID, pct, epoch); err != nil {
			logger.Error().Err(&PersistenceError{Op: "persist task progress", Err: err}).Int("epoch", epoch).Send()
		}

		logger.Debug().Int("epoch", epoch).Float64("progress", pct).Msg("Epoch completed")
	}
}

// complete registers the best weights as a model, if training produced any, and marks the task
// completed
func (r *Runner) complete(ctx context.Context, logger zerolog.Logger, cfg TrainingConfig, task *models.TrainingTask, project string) error {
	var model *models.Model

	best := bestWeightsPath(project)
	if fileExists(best) {
		m, err := r.newModel(cfg, task, project, best)
		if err != nil {
			return err
		}
		model = m
	} else {
		logger.Warn().Str("path", best).Msg("Training produced no best weights, no model is registered")
	}

	completedAt := time.Now()
	if _, err := tryRun(r.persistRetries, r.RetryDelay, func() error {
		return r.tasks.CompleteTask(ctx, cfg.TaskID, project, completedAt, model)
	}); err != nil {
		if model != nil {
			if rmErr := os.Remove(model.WeightPath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				logger.Warn().Err(rmErr).Str("path", model.WeightPath).Msg("Could not remove unregistered model weights")
			}
		}
		return &PersistenceError{Op: "mark task as completed", Err: err}
	}
	r.setStatus(ctx, logger, cfg.TaskID, progress.StatusCompleted)

	if model != nil {
		logger.Info().Int64("model_id", model.ID).Str("weight_path", model.WeightPath).Msg("Registered trained model")
	}
	return nil
}

// fail records err on the task row and the progress record. Write failures are logged only.
func (r *Runner) fail(ctx context.Context, logger zerolog.Logger, taskID int64, cause error) {
	text := cause.Error()
	if _, err := tryRun(r.persistRetries, r.RetryDelay, func() error {
		return r.tasks.FailTask(ctx, taskID, text)
	}); err != nil {
		logger.Error().Err(&PersistenceError{Op: "record task failure", Err: err}).Send()
	}
	r.markProgressFailed(ctx, logger, taskID, text)
}

func (r *Runner) markProgressFailed(ctx context.Context, logger zerolog.Logger, taskID int64, text string) {
	if err := r.progress.MarkFailed(ctx, taskID, text); err != nil {
		logger.Error().Err(&PersistenceError{Op: "mark progress as failed", Err: err}).Send()
	}
}

func (r *Runner) setStatus(ctx context.Context, logger zerolog.Logger, taskID int64, status progress.Status) {
	if err := r.progress.MarkStatus(ctx, taskID, status); err != nil {
		logger.Error().Err(&PersistenceError{Op: "set progress status " + string(status), Err: err}).Send()
	}
}
