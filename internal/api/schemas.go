package api

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/guregu/null/v6"

	"yolotrain/internal/models"
	"yolotrain/internal/progress"
)

type CreateDatasetRequest struct {
	Name        string          `json:"name"`
	TaskKind    models.TaskKind `json:"task_type"`
	Path        string          `json:"path"`
	Description null.String     `json:"description"`
}

func (c *CreateDatasetRequest) Validate() error {
	var errs []error

	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		errs = append(errs, errors.New("name is empty"))
	}

	if c.TaskKind == "" {
		c.TaskKind = models.KindDetect
	}
	if !c.TaskKind.Valid() {
		errs = append(errs, fmt.Errorf("task_type '%s' is not one of detect, classify, segment", c.TaskKind))
	}

	c.Path = strings.TrimSpace(c.Path)
	if c.Path == "" {
		errs = append(errs, errors.New("path is empty"))
	} else {
		c.Path = filepath.Clean(c.Path)
	}

	return errors.Join(errs...)
}

type CreateTaskRequest struct {
	DatasetID int64           `json:"dataset_id"`
	Name      string          `json:"task_name"`
	Variant   string          `json:"model_type"`
	TaskKind  models.TaskKind `json:"task_type"`
	Epochs    int             `json:"epochs"`
	BatchSize int             `json:"batch_size"`
	ImageSize int             `json:"img_size"`
}

// NewCreateTaskRequest returns a request holding the defaults of optional fields
func NewCreateTaskRequest() CreateTaskRequest {
	return CreateTaskRequest{
		Variant:   "yolo11n",
		TaskKind:  models.KindDetect,
		Epochs:    100,
		BatchSize: 16,
		ImageSize: 640,
	}
}

func (c *CreateTaskRequest) Validate() error {
	var errs []error

	if c.DatasetID <= 0 {
		errs = append(errs, errors.New("dataset_id is required"))
	}

	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		errs = append(errs, errors.New("task_name is empty"))
	}

	c.Variant = strings.TrimSpace(c.Variant)
	if c.Variant == "" {
		errs = append(errs, errors.New("model_type is empty"))
	} else if strings.ContainsAny(c.Variant, `/\`) || strings.HasSuffix(c.Variant, ".pt") {
		errs = append(errs, fmt.Errorf("model_type '%s' must be a model name such as yolo11n", c.Variant))
	}

	if !c.TaskKind.Valid() {
		errs = append(errs, fmt.Errorf("task_type '%s' is not one of detect, classify, segment", c.TaskKind))
	}

	if c.Epochs < 1 {
		errs = append(errs, errors.New("epochs must be >= 1"))
	}
	if c.BatchSize < 1 {
		errs = append(errs, errors.New("batch_size must be >= 1"))
	}
	if c.ImageSize < 32 {
		errs = append(errs, errors.New("img_size must be >= 32"))
	}

	return errors.Join(errs...)
}

type TaskProgressResponse struct {
	Task     *models.TrainingTask `json:"task"`
	Progress progress.Record      `json:"progress"`
}
