// Package progress keeps the ephemeral per-task training progress that is reported while a
// training run is in flight. Records are not the system of record: they are created when a
// run starts and are gone after a restart, in which case Get reports the unknown sentinel.
package progress

import (
	"context"
	"fmt"
)

type Status string

const (
	StatusUnknown   Status = "unknown"
	StatusStarting  Status = "starting"
	StatusTraining  Status = "training"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusStopped   Status = "stopped"
)

// Record is a snapshot of a task's training progress
type Record struct {
	Status       Status   `json:"status"`
	Progress     float64  `json:"progress"`
	CurrentEpoch int      `json:"current_epoch"`
	Logs         []string `json:"logs"`
	Error        string   `json:"error,omitempty"`
}

// Unknown returns the record reported for tasks that were never started in this process
func Unknown() Record {
	return Record{Status: StatusUnknown, Logs: []string{}}
}

// Store is shared by all training workers and request handlers. Every method must be safe for
// concurrent use and a Get must never observe a half-applied update.
type Store interface {
	// Start creates a fresh `starting` record, replacing any earlier one
	Start(ctx context.Context, taskID int64) error
	// Update merges progress and epoch and appends logLine (when not empty). Updating a task
	// without a record is a no-op.
	Update(ctx context.Context, taskID int64, progress float64, epoch int, logLine string) error
	// Get returns a copy of the record or Unknown()
	Get(ctx context.Context, taskID int64) (Record, error)
	// MarkFailed sets the failed status and error text and appends the text to the log
	MarkFailed(ctx context.Context, taskID int64, errText string) error
	// MarkStatus overwrites the status only
	MarkStatus(ctx context.Context, taskID int64, status Status) error
}

// EpochProgress returns the completion percentage after epoch of total epochs, clamped to [0, 100]
func EpochProgress(epoch, total int) float64 {
	if total <= 0 {
		return 0
	}
	p := 100 * float64(epoch) / float64(total)
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}

// EpochLogLine is the log line appended for every finished epoch
func EpochLogLine(epoch, total int) string {
	return fmt.Sprintf("Epoch %d/%d completed", epoch, total)
}
