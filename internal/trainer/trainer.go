// Package trainer is the boundary to the YOLO training library. The service treats training as
// a black box: resolve base weights, then run a blocking training call that reports every
// finished epoch through a callback.
package trainer

import (
	"context"
	"errors"
	"fmt"

	"yolotrain/internal/models"
)

// ErrDownload is matched (errors.Is) by failures to fetch base weights from upstream
var ErrDownload = errors.New("weights download failed")

// EpochCallback is invoked synchronously from within Train after every completed epoch.
// epoch counts from 1.
type EpochCallback func(epoch int)

// Params are the fully resolved arguments of one training run
type Params struct {
	Weights   string // base weights file or path
	DataYAML  string // dataset descriptor
	Epochs    int
	BatchSize int
	ImageSize int
	Project   string // output directory of the task
	Name      string // run name, results land in Project/Name
}

// Outcome describes a finished training run
type Outcome struct {
	SaveDir string
}

type Trainer interface {
	// ResolveModel makes the base weights for variant and kind available and returns their
	// path. It may download from upstream, failures to do so match ErrDownload.
	ResolveModel(ctx context.Context, variant string, kind models.TaskKind) (string, error)
	// Train blocks until training ends. onEpochEnd runs on the calling goroutine.
	Train(ctx context.Context, params Params, onEpochEnd EpochCallback) (*Outcome, error)
}

// DriverError is an error reported by the training driver itself
type DriverError struct {
	Kind    string // download, config or train
	Message string
}

func (e *DriverError) Error() string {
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

func (e *DriverError) Is(target error) bool {
	return target == ErrDownload && e.Kind == "download"
}
