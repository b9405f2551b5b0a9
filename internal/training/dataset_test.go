package training_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yolotrain/internal/training"
)

func TestResolveDataset(t *testing.T) {
	tests := []struct {
		name        string
		descriptor  string // content of data.yaml, none when empty
		asFile      bool
		expectError string
	}{
		{
			name:       "detection dataset",
			descriptor: "path: .\ntrain: train/images\nval: val/images\nnames: [cat, dog]\n",
		},
		{
			name:       "classification dataset with lists",
			descriptor: "train: [train]\nval: [val]\n",
		},
		{
			name:        "missing descriptor",
			expectError: "dataset has no data.yaml",
		},
		{
			name:        "invalid yaml",
			descriptor:  "train: [unterminated\n",
			expectError: "invalid",
		},
		{
			name:        "missing val split",
			descriptor:  "train: train/images\n",
			expectError: "'val' is not set",
		},
		{
			name:        "path is a file",
			asFile:      true,
			expectError: "is not a directory",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if tt.asFile {
				dir = filepath.Join(dir, "archive.zip")
				require.NoError(t, os.WriteFile(dir, []byte("zip"), 0o644))
			}
			if tt.descriptor != "" {
				require.NoError(t, os.WriteFile(filepath.Join(dir, "data.yaml"), []byte(tt.descriptor), 0o644))
			}

			path, err := training.ResolveDataset(dir)
			if tt.expectError != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectError)

				var confErr *training.ConfigurationError
				assert.True(t, errors.As(err, &confErr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(dir, "data.yaml"), path)
		})
	}
}

func TestResolveDataset_MissingDirectory(t *testing.T) {
	_, err := training.ResolveDataset(filepath.Join(t.TempDir(), "nope"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCountImages(t *testing.T) {
	touch := func(t *testing.T, path string) {
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, nil, 0o644))
	}

	t.Run("detection layout", func(t *testing.T) {
		dir := t.TempDir()
		touch(t, filepath.Join(dir, "train", "images", "a.jpg"))
		touch(t, filepath.Join(dir, "train", "images", "b.PNG"))
		touch(t, filepath.Join(dir, "train", "images", "notes.txt"))
		touch(t, filepath.Join(dir, "train", "labels", "a.txt"))
		touch(t, filepath.Join(dir, "val", "images", "c.jpeg"))

		train, val := training.CountImages(dir)
		assert.Equal(t, 2, train)
		assert.Equal(t, 1, val)
	})

	t.Run("classification layout", func(t *testing.T) {
		dir := t.TempDir()
		touch(t, filepath.Join(dir, "train", "cat", "1.jpg"))
		touch(t, filepath.Join(dir, "train", "dog", "2.jpg"))
		touch(t, filepath.Join(dir, "train", "dog", "3.jpg"))
		touch(t, filepath.Join(dir, "val", "cat", "4.png"))

		train, val := training.CountImages(dir)
		assert.Equal(t, 3, train)
		assert.Equal(t, 1, val)
	})

	t.Run("empty dataset", func(t *testing.T) {
		train, val := training.CountImages(t.TempDir())
		assert.Zero(t, train)
		assert.Zero(t, val)
	})
}
