package exporter

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"armpose/internal/config"
	apperrors "armpose/internal/errors"
)

// ErrEmptyReport is returned when a report carries no predictions
var ErrEmptyReport = apperrors.NewAppError(apperrors.ErrTypeEmptyResult, "no predictions to export", nil)

// Exporter renders session reports and stores them under the export directory
type Exporter struct {
	paths  *config.Paths
	logger *slog.Logger
}

// NewExporter creates an exporter. paths may be nil when only Write is used.
func NewExporter(paths *config.Paths, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{paths: paths, logger: logger.With(slog.String("component", "exporter"))}
}

// Write encodes the report to w
func (e *Exporter) Write(w io.Writer, format Format, r *Report) error {
	if r == nil || len(r.Predictions) == 0 {
		return ErrEmptyReport
	}

	switch format {
	case FormatCSV:
		return writeReportCSV(w, r)
	case FormatXLSX:
		return writeReportXLSX(w, r)
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
}

// Save writes the report to path. A relative path is placed inside the
// export directory; the format follows the extension.
func (e *Exporter) Save(path string, r *Report) (string, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return "", err
	}

	fullPath := e.resolvePath(path)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	var buf bytes.Buffer
	if err := e.Write(&buf, format, r); err != nil {
		return "", err
	}
	if err := os.WriteFile(fullPath, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", fullPath, err)
	}

	e.logger.Info("Exported predictions",
		slog.String("session_id", r.SessionID),
		slog.String("path", fullPath),
		slog.String("format", string(format)),
		slog.Int("frames", len(r.Predictions)))

	return fullPath, nil
}

// FileName returns the download name for a session export
func FileName(sessionID string, format Format) string {
	if sessionID == "" {
		sessionID = "session"
	}
	return "predictions_" + sessionID + format.Extension()
}

func (e *Exporter) resolvePath(path string) string {
	if filepath.IsAbs(path) || e.paths == nil {
		return path
	}
	return e.paths.ExportPath(path)
}
