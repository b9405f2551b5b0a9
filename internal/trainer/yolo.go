package trainer

import (
	_ "embed"

	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"

	"github.com/rs/zerolog/log"

	"yolotrain/internal/models"
)

//go:embed driver.py
var driverScript string

// YOLO runs the ultralytics library through an embedded driver script
type YOLO struct {
	Command string // python interpreter invocation
	WorkDir string // upstream weight downloads land here
}

func NewYOLO(command, workDir string) *YOLO {
	return &YOLO{Command: command, WorkDir: workDir}
}

func (y *YOLO) ResolveModel(ctx context.Context, variant string, kind models.TaskKind) (string, error) {
	weights := kind.WeightsFile(variant)

	var resolved string
	_, err := y.run(ctx, []string{"resolve", "--weights", weights}, func(ev Event) {
		if ev.Event == "resolved" {
			resolved = ev.Path
		}
	})
	if err != nil {
		return "", err
	}
	if resolved == "" {
		return "", &DriverError{Kind: "config", Message: "driver did not report resolved weights for " + weights}
	}
	return resolved, nil
}

func (y *YOLO) Train(ctx context.Context, params Params, onEpochEnd EpochCallback) (*Outcome, error) {
	args := []string{
		"train",
		"--weights", params.Weights,
		"--data", params.DataYAML,
		"--epochs", strconv.Itoa(params.Epochs),
		"--batch", strconv.Itoa(params.BatchSize),
		"--imgsz", strconv.Itoa(params.ImageSize),
		"--project", params.Project,
	}
	if params.Name != "" {
		args = append(args, "--name", params.Name)
	}

	outcome := &Outcome{}
	_, err := y.run(ctx, args, func(ev Event) {
		switch ev.Event {
		case "epoch_end":
			if onEpochEnd != nil {
				onEpochEnd(ev.Epoch)
			}
		case "done":
			outcome.SaveDir = ev.SaveDir
		}
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// run starts the driver with args and feeds its events to handle until the process exits.
// A reported error event takes precedence over the exit status.
func (y *YOLO) run(ctx context.Context, args []string, handle func(Event)) (int, error) {
	name, prefix, err := SplitCommand(y.Command)
	if err != nil {
		return -1, &DriverError{Kind: "config", Message: err.Error()}
	}

	argv := append(append(prefix, "-c", driverScript), args...)
	cmd := exec.CommandContext(ctx, name, argv...)
	cmd.Dir = y.WorkDir
	cmd.Env = append(os.Environ(), "PYTHONUNBUFFERED=1")

	stderr := &tailBuffer{max: 4096}
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return -1, fmt.Errorf("could not attach to trainer output: %w", err)
	}

	if y.WorkDir != "" {
		if err := os.MkdirAll(y.WorkDir, 0o755); err != nil {
			return -1, fmt.Errorf("could not create trainer work dir: %w", err)
		}
	}
	if err := cmd.Start(); err != nil {
		return -1, &DriverError{Kind: "config", Message: fmt.Sprintf("could not start trainer '%s': %v", name, err)}
	}

	var reported *DriverError
	scanErr := readEvents(stdout, func(ev Event) {
		if ev.Event == "error" {
			reported = &DriverError{Kind: ev.Kind, Message: ev.Message}
			return
		}
		handle(ev)
	})
	if scanErr != nil {
		// keep the pipe flowing so the child can exit
		_, _ = io.Copy(io.Discard, stdout)
	}
	waitErr := cmd.Wait()

	code := cmd.ProcessState.ExitCode()
	log.Debug().Strs("args", args).Int("exitCode", code).Msg("Trainer process exited")

	switch {
	case reported != nil:
		return code, reported
	case waitErr != nil:
		msg := stderr.String()
		if msg == "" {
			msg = waitErr.Error()
		}
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return code, fmt.Errorf("trainer process failed: %w", waitErr)
		}
		return code, &DriverError{Kind: "train", Message: msg}
	case scanErr != nil:
		return code, fmt.Errorf("could not read trainer output: %w", scanErr)
	}
	return code, nil
}
