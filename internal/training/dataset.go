package training

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const DataYAML = "data.yaml"

// dataDescriptor holds the data.yaml keys the trainer cannot work without
type dataDescriptor struct {
	Path  string `yaml:"path"`
	Train any    `yaml:"train"`
	Val   any    `yaml:"val"`
	Names any    `yaml:"names"`
}

// ResolveDataset checks that dir is a dataset directory with a usable data.yaml and returns the
// descriptor path
func ResolveDataset(dir string) (string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return "", &ConfigurationError{Msg: "dataset directory '" + dir + "' is not accessible", Err: err}
	}
	if !info.IsDir() {
		return "", &ConfigurationError{Msg: "dataset path '" + dir + "' is not a directory"}
	}

	descriptor := filepath.Join(dir, DataYAML)
	content, err := os.ReadFile(descriptor)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", &ConfigurationError{Msg: "dataset has no " + DataYAML + " in '" + dir + "'"}
		}
		return "", &ConfigurationError{Msg: "could not read " + descriptor, Err: err}
	}

	var data dataDescriptor
	if err := yaml.Unmarshal(content, &data); err != nil {
		return "", &ConfigurationError{Msg: "invalid " + descriptor, Err: err}
	}

	var errs []error
	if data.Train == nil {
		errs = append(errs, errors.New("'train' is not set"))
	}
	if data.Val == nil {
		errs = append(errs, errors.New("'val' is not set"))
	}
	if len(errs) > 0 {
		return "", &ConfigurationError{Msg: "invalid " + descriptor, Err: errors.Join(errs...)}
	}

	return descriptor, nil
}

var imageExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

// CountImages counts the images of the train and val splits of a dataset. A split's images/
// folder is preferred, otherwise the whole split is walked (classification layout).
func CountImages(dir string) (train, val int) {
	return countSplit(filepath.Join(dir, "train")), countSplit(filepath.Join(dir, "val"))
}

func countSplit(split string) int {
	if images := filepath.Join(split, "images"); isDir(images) {
		entries, err := os.ReadDir(images)
		if err != nil {
			return 0
		}
		count := 0
		for _, e := range entries {
			if !e.IsDir() && isImage(e.Name()) {
				count++
			}
		}
		return count
	}

	count := 0
	_ = filepath.WalkDir(split, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() && isImage(d.Name()) {
			count++
		}
		return nil
	})
	return count
}

func isImage(name string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(name))]
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
