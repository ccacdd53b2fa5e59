// Package validation checks local files and directories before a batch run
// reads or writes them, so bad paths fail fast with a clear message.
package validation

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrNotCSV       = errors.New("not a CSV file")
	ErrEmptyFile    = errors.New("file is empty")
	ErrNotDirectory = errors.New("not a directory")
	ErrNoCSVFiles   = errors.New("no CSV files found")
)

// FileValidator provides file system pre-flight checks.
type FileValidator struct {
	logger *slog.Logger
}

// NewFileValidator creates a validator. A nil logger discards output.
func NewFileValidator(logger *slog.Logger) *FileValidator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &FileValidator{logger: logger}
}

// ValidateCSVFile requires path to be a non-empty regular file with a .csv
// extension. Stat errors are wrapped so os.ErrNotExist stays detectable.
func (v *FileValidator) ValidateCSVFile(path string) error {
	if ext := strings.ToLower(filepath.Ext(path)); ext != ".csv" {
		v.logger.Error("input is not a CSV file", slog.String("file", path), slog.String("extension", ext))
		return fmt.Errorf("%s: %w", path, ErrNotCSV)
	}

	info, err := os.Stat(path)
	if err != nil {
		v.logger.Error("cannot access input file", slog.String("file", path), slog.String("error", err.Error()))
		return fmt.Errorf("input file %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory: %w", path, ErrNotCSV)
	}
	if info.Size() == 0 {
		v.logger.Warn("input file is empty", slog.String("file", path))
		return fmt.Errorf("%s: %w", path, ErrEmptyFile)
	}

	v.logger.Debug("input file ok", slog.String("file", path), slog.Int64("size", info.Size()))
	return nil
}

// ValidateCSVFiles checks every path and joins the failures.
func (v *FileValidator) ValidateCSVFiles(paths ...string) error {
	var errs []error
	for _, p := range paths {
		if err := v.ValidateCSVFile(p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ValidateInputDirectory requires dir to exist and hold at least one CSV.
// It returns the number of CSV files found.
func (v *FileValidator) ValidateInputDirectory(dir string) (int, error) {
	info, err := os.Stat(dir)
	if err != nil {
		v.logger.Error("cannot access input directory", slog.String("dir", dir), slog.String("error", err.Error()))
		return 0, fmt.Errorf("input directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("%s: %w", dir, ErrNotDirectory)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("read input directory %s: %w", dir, err)
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			n++
		}
	}
	if n == 0 {
		v.logger.Warn("input directory has no CSV files", slog.String("dir", dir))
		return 0, fmt.Errorf("%s: %w", dir, ErrNoCSVFiles)
	}

	v.logger.Debug("input directory ok", slog.String("dir", dir), slog.Int("csv_files", n))
	return n, nil
}

// ValidateOutputDirectory creates dir if needed and checks that it is writable.
func (v *FileValidator) ValidateOutputDirectory(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		v.logger.Error("cannot create output directory", slog.String("dir", dir), slog.String("error", err.Error()))
		return fmt.Errorf("create output directory %s: %w", dir, err)
	}

	check, err := os.CreateTemp(dir, ".write-check-*")
	if err != nil {
		v.logger.Error("output directory is not writable", slog.String("dir", dir), slog.String("error", err.Error()))
		return fmt.Errorf("output directory %s is not writable: %w", dir, err)
	}
	name := check.Name()
	check.Close()
	_ = os.Remove(name)
	return nil
}

// ValidateOutputFile checks that path does not name a directory and that
// its parent directory is writable.
func (v *FileValidator) ValidateOutputFile(path string) error {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return fmt.Errorf("output %s is a directory", path)
	}
	return v.ValidateOutputDirectory(filepath.Dir(path))
}
