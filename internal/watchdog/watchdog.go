// Package watchdog periodically looks for training tasks that the database reports as pending or
// training but that no runner in this process knows about. Such orphans are left behind by a
// restart. They are reported, never repaired.
package watchdog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"yolotrain/internal/models"
	"yolotrain/internal/progress"
)

type TaskLister interface {
	ListTasksByStatus(ctx context.Context, statuses ...models.TaskStatus) ([]models.TrainingTask, error)
}

type ProgressReader interface {
	Get(ctx context.Context, taskID int64) (progress.Record, error)
}

type Watchdog struct {
	tasks    TaskLister
	progress ProgressReader
	schedule string
	cron     *cron.Cron

	mu         sync.Mutex
	isRunning  bool
	context    context.Context
	cancelFunc context.CancelFunc
}

// New creates a watchdog that scans on schedule, a cron expression (seconds optional) or a
// descriptor such as `@every 5m`
func New(tasks TaskLister, store ProgressReader, schedule string) *Watchdog {
	c := cron.New(
		cron.WithParser(cron.NewParser(cron.SecondOptional|cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow|cron.Descriptor)),
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)

	return &Watchdog{
		tasks:    tasks,
		progress: store,
		schedule: schedule,
		cron:     c,
	}
}

// Start registers the periodic scan and starts the cron runner
func (w *Watchdog) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.isRunning {
		return nil
	}

	w.context, w.cancelFunc = context.WithCancel(ctx)
	if _, err := w.cron.AddFunc(w.schedule, func() {
		if _, err := w.Scan(w.context); err != nil {
			log.Error().Err(err).Msg("Watchdog scan failed")
		}
	}); err != nil {
		w.cancelFunc()
		return fmt.Errorf("invalid watchdog schedule '%s': %w", w.schedule, err)
	}

	w.cron.Start()
	w.isRunning = true
	log.Info().Str("schedule", w.schedule).Msg("Watchdog started")
	return nil
}

// Stop stops the cron runner and waits for a scan in flight
func (w *Watchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.isRunning {
		return
	}

	w.cancelFunc()
	<-w.cron.Stop().Done()
	w.isRunning = false
}

// Scan returns the ids of pending or training tasks without a progress record and logs a
// warning for each of them
func (w *Watchdog) Scan(ctx context.Context) ([]int64, error) {
	tasks, err := w.tasks.ListTasksByStatus(ctx, models.TsPending, models.TsTraining)
	if err != nil {
		return nil, fmt.Errorf("could not list active tasks: %w", err)
	}

	orphans := []int64{}
	for _, task := range tasks {
		rec, err := w.progress.Get(ctx, task.ID)
		if err != nil {
			log.Error().Err(err).Int64("task_id", task.ID).Msg("Could not read task progress")
			continue
		}
		if rec.Status != progress.StatusUnknown {
			continue
		}

		orphans = append(orphans, task.ID)
		log.Warn().
			Int64("task_id", task.ID).
			Str("status", string(task.Status)).
			Time("started_at", task.StartedAt.Time).
			Int("current_epoch", task.CurrentEpoch).
			Msg("Task has no running trainer, it will not progress")
	}

	log.Debug().Int("active", len(tasks)).Int("orphans", len(orphans)).Msg("Watchdog scan finished")
	return orphans, nil
}
