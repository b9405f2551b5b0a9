package models

import (
	"time"

	"github.com/guregu/null/v6"
)

// This file contains the models for datasets, training tasks and trained models

// TaskKind is the YOLO task family a dataset and a training run belong to
type TaskKind string

const (
	KindDetect   TaskKind = "detect"
	KindClassify TaskKind = "classify"
	KindSegment  TaskKind = "segment"
)

// Valid returns true if the kind is one of the supported YOLO task families
func (k TaskKind) Valid() bool {
	switch k {
	case KindDetect, KindClassify, KindSegment:
		return true
	}
	return false
}

// WeightsFile returns the base weights file name for a model variant, e.g. yolo11n-seg.pt
func (k TaskKind) WeightsFile(variant string) string {
	switch k {
	case KindClassify:
		return variant + "-cls.pt"
	case KindSegment:
		return variant + "-seg.pt"
	default:
		return variant + ".pt"
	}
}

type TaskStatus string

const (
	TsPending   TaskStatus = "pending"
	TsTraining  TaskStatus = "training"
	TsCompleted TaskStatus = "completed"
	TsFailed    TaskStatus = "failed"
	TsStopped   TaskStatus = "stopped"
)

// Terminal returns true for statuses a task never leaves once the coordinator set them
func (s TaskStatus) Terminal() bool {
	return s == TsCompleted || s == TsFailed || s == TsStopped
}

type DatasetStatus string

const (
	DsReady DatasetStatus = "ready"
	DsError DatasetStatus = "error"
)

// Dataset is a model representing the `dataset` table
type Dataset struct {
	ID          int64         `db:"id" json:"id"`
	Name        string        `db:"name" json:"name"`
	TaskKind    TaskKind      `db:"task_type" json:"task_type"`
	Description null.String   `db:"description" json:"description"`
	Path        string        `db:"path" json:"path"`
	FileCount   int           `db:"file_count" json:"file_count"`
	Status      DatasetStatus `db:"status" json:"status"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time     `db:"updated_at" json:"updated_at"`
}

// TrainingTask is a model representing the `training_task` table
type TrainingTask struct {
	ID           int64       `db:"id" json:"id"`
	Name         string      `db:"name" json:"name"`
	DatasetID    int64       `db:"dataset_id" json:"dataset_id"`
	Variant      string      `db:"model_type" json:"model_type"`
	TaskKind     TaskKind    `db:"task_type" json:"task_type"`
	Epochs       int         `db:"epochs" json:"epochs"`
	BatchSize    int         `db:"batch_size" json:"batch_size"`
	ImageSize    int         `db:"img_size" json:"img_size"`
	Status       TaskStatus  `db:"status" json:"status"`
	Progress     float64     `db:"progress" json:"progress"`
	CurrentEpoch int         `db:"current_epoch" json:"current_epoch"`
	Logs         null.String `db:"logs" json:"logs"`
	OutputPath   null.String `db:"output_path" json:"output_path"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
	StartedAt    null.Time   `db:"started_at" json:"started_at"`
	CompletedAt  null.Time   `db:"completed_at" json:"completed_at"`
}

// Model is a model representing the `model` table. A row only exists for
// training runs that produced a best-weights artifact.
type Model struct {
	ID         int64       `db:"id" json:"id"`
	Name       string      `db:"name" json:"name"`
	TaskID     null.Int    `db:"task_id" json:"task_id"`
	TaskKind   TaskKind    `db:"task_type" json:"task_type"`
	Variant    string      `db:"model_type" json:"model_type"`
	WeightPath string      `db:"weight_path" json:"weight_path"`
	OutputPath null.String `db:"output_path" json:"output_path"`
	Metrics    null.String `db:"metrics" json:"metrics"`
	Size       int64       `db:"size" json:"size"`
	CreatedAt  time.Time   `db:"created_at" json:"created_at"`
}

// ModelMetrics is the JSON blob stored in Model.Metrics
type ModelMetrics struct {
	Epochs    int               `json:"epochs"`
	BatchSize int               `json:"batch_size"`
	ImageSize int               `json:"img_size"`
	Plots     map[string]string `json:"plots,omitempty"`
}
