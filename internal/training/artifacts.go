package training

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/guregu/null/v6"

	"yolotrain/internal/models"
)

const runName = "train"

// plotFiles are the diagnostic images referenced from a model's metrics when the trainer wrote them
var plotFiles = []string{
	"results.png",
	"confusion_matrix.png",
	"confusion_matrix_normalized.png",
	"PR_curve.png",
	"F1_curve.png",
	"P_curve.png",
	"R_curve.png",
	"BoxPR_curve.png",
	"BoxF1_curve.png",
	"BoxP_curve.png",
	"BoxR_curve.png",
	"MaskPR_curve.png",
	"MaskF1_curve.png",
	"MaskP_curve.png",
	"MaskR_curve.png",
}

func (r *Runner) projectDir(taskID int64) string {
	return filepath.Join(r.dirs.Runs, fmt.Sprintf("task_%d", taskID))
}

func bestWeightsPath(project string) string {
	return filepath.Join(project, runName, "weights", "best.pt")
}

// ModelWeightsPath is where the best weights of a task are kept once training finished
func ModelWeightsPath(modelsDir string, taskID int64) string {
	return filepath.Join(modelsDir, fmt.Sprintf("task_%d_best.pt", taskID))
}

// newModel copies the best weights to the models directory and describes them as a model row
func (r *Runner) newModel(cfg TrainingConfig, task *models.TrainingTask, project, best string) (*models.Model, error) {
	dest := ModelWeightsPath(r.dirs.Models, cfg.TaskID)
	size, err := copyFile(best, dest)
	if err != nil {
		return nil, fmt.Errorf("could not store best weights: %w", err)
	}

	metrics, err := json.Marshal(models.ModelMetrics{
		Epochs:    cfg.Epochs,
		BatchSize: cfg.BatchSize,
		ImageSize: cfg.ImageSize,
		Plots:     collectPlots(filepath.Join(project, runName)),
	})
	if err != nil {
		return nil, err
	}

	return &models.Model{
		Name:       task.Name + "_model",
		TaskKind:   cfg.Kind,
		Variant:    cfg.Variant,
		WeightPath: dest,
		OutputPath: null.StringFrom(project),
		Metrics:    null.StringFrom(string(metrics)),
		Size:       size,
	}, nil
}

// collectPlots maps plot names (file name without extension) to the plots present in dir
func collectPlots(dir string) map[string]string {
	plots := map[string]string{}
	for _, name := range plotFiles {
		path := filepath.Join(dir, name)
		if fileExists(path) {
			plots[strings.TrimSuffix(name, filepath.Ext(name))] = path
		}
	}
	return plots
}

func copyFile(src, dst string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, err
	}

	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, in)
	if err != nil {
		_ = out.Close()
		return 0, err
	}
	return n, out.Close()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
