package exporter

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// Format selects the export encoding
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat accepts "csv" or "xlsx" in any case. An empty string means CSV.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", s)
	}
}

// FormatFromPath picks the format from a file extension
func FormatFromPath(path string) (Format, error) {
	return ParseFormat(strings.TrimPrefix(filepath.Ext(path), "."))
}

// ContentType returns the MIME type served for the format
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// Extension returns the file extension including the dot
func (f Format) Extension() string {
	return "." + string(f)
}

// formatFloat formats an angle or standardized value for CSV output
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', 4, 64)
}

func formatInt(i int) string {
	return strconv.Itoa(i)
}
