package validation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestFileValidator_ValidateCSVFile(t *testing.T) {
	dir := t.TempDir()
	v := NewFileValidator(nil)

	tests := []struct {
		name    string
		path    string
		wantErr error
	}{
		{"valid", write(t, dir, "ok.csv", "Timestamp,Ch.0\n"), nil},
		{"upper case extension", write(t, dir, "UP.CSV", "x\n"), nil},
		{"wrong extension", write(t, dir, "data.txt", "x\n"), ErrNotCSV},
		{"empty", write(t, dir, "empty.csv", ""), ErrEmptyFile},
		{"missing", filepath.Join(dir, "missing.csv"), os.ErrNotExist},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateCSVFile(tt.path)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestFileValidator_ValidateCSVFiles(t *testing.T) {
	dir := t.TempDir()
	v := NewFileValidator(nil)

	ok := write(t, dir, "ok.csv", "x\n")
	err := v.ValidateCSVFiles(ok, filepath.Join(dir, "a.csv"), write(t, dir, "b.csv", ""))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.ErrorIs(t, err, ErrEmptyFile)

	assert.NoError(t, v.ValidateCSVFiles(ok))
}

func TestFileValidator_ValidateInputDirectory(t *testing.T) {
	v := NewFileValidator(nil)

	t.Run("counts csv files", func(t *testing.T) {
		dir := t.TempDir()
		write(t, dir, "a.csv", "x")
		write(t, dir, "b.CSV", "x")
		write(t, dir, "notes.txt", "x")
		require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.csv"), 0o755))

		n, err := v.ValidateInputDirectory(dir)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("no csv files", func(t *testing.T) {
		_, err := v.ValidateInputDirectory(t.TempDir())
		assert.ErrorIs(t, err, ErrNoCSVFiles)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := v.ValidateInputDirectory(filepath.Join(t.TempDir(), "gone"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("file instead of directory", func(t *testing.T) {
		path := write(t, t.TempDir(), "a.csv", "x")
		_, err := v.ValidateInputDirectory(path)
		assert.ErrorIs(t, err, ErrNotDirectory)
	})
}

func TestFileValidator_ValidateOutputDirectory(t *testing.T) {
	v := NewFileValidator(nil)
	dir := filepath.Join(t.TempDir(), "nested", "out")

	require.NoError(t, v.ValidateOutputDirectory(dir))
	assert.DirExists(t, dir)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "write check file must be removed")

	blocker := write(t, t.TempDir(), "file", "x")
	assert.Error(t, v.ValidateOutputDirectory(filepath.Join(blocker, "out")))
}

func TestFileValidator_ValidateOutputFile(t *testing.T) {
	v := NewFileValidator(nil)
	dir := t.TempDir()

	assert.NoError(t, v.ValidateOutputFile(filepath.Join(dir, "new", "predictions.csv")))
	assert.DirExists(t, filepath.Join(dir, "new"))

	err := v.ValidateOutputFile(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is a directory")
}
