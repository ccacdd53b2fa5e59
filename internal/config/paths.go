package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Paths contains the resolved, absolute application directories
type Paths struct {
	DataDir   string
	UploadDir string
	ExportDir string
	LogsDir   string
}

// ResolvePaths turns the configured directories into absolute paths
// anchored at base. An empty base means the current working directory.
func (c *Config) ResolvePaths(base string) (*Paths, error) {
	if base == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		base = wd
	}

	abs := func(p string) string {
		if filepath.IsAbs(p) {
			return filepath.Clean(p)
		}
		return filepath.Join(base, p)
	}

	return &Paths{
		DataDir:   abs(c.Paths.DataDir),
		UploadDir: abs(c.Paths.UploadDir),
		ExportDir: abs(c.Paths.ExportDir),
		LogsDir:   abs(c.Paths.LogsDir),
	}, nil
}

// EnsureDirectories creates all required directories if they don't exist
func (p *Paths) EnsureDirectories() error {
	logger := slog.Default()

	for _, dir := range []string{p.DataDir, p.UploadDir, p.ExportDir, p.LogsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
		logger.Debug("Ensured directory exists", slog.String("directory", dir))
	}

	return nil
}

// ExportPath returns the path of an export file inside ExportDir
func (p *Paths) ExportPath(name string) string {
	return filepath.Join(p.ExportDir, filepath.Base(name))
}

// FileExists checks if a file exists
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}
