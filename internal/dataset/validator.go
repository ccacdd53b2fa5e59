package dataset

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
)

// ValidationResult is the outcome of validating one file. Accepted plus
// rejected rows always equals Total.
type ValidationResult struct {
	Set      *RecordSet      `json:"-"`
	Rejected []RowDiagnostic `json:"rejected"`
	Total    int             `json:"total"`
}

// Accepted returns the number of rows that passed validation
func (r *ValidationResult) Accepted() int {
	return r.Set.Len()
}

// Validate filters table down to the rows satisfying schema.
//
// A required column missing from the header fails the whole file with a
// SchemaError. A row with an empty cell, or a non-finite value in a numeric
// column, is dropped with a RowDiagnostic naming the first offending
// column. When nothing survives the result is still returned alongside an
// EmptyResultError.
func Validate(table *RawTable, schema Schema) (*ValidationResult, error) {
	var missing []string
	index := make(map[string]int, len(schema.Required))
	for _, col := range schema.Required {
		i := table.Index(col)
		if i < 0 {
			missing = append(missing, col)
			continue
		}
		index[col] = i
	}
	if len(missing) > 0 {
		return nil, &SchemaError{Source: table.Source, Role: schema.Role, Missing: missing}
	}

	result := &ValidationResult{
		Set:   &RecordSet{Role: schema.Role, Sources: []string{table.Source}},
		Total: len(table.Rows),
	}
	for i, row := range table.Rows {
		rec, diag := buildRecord(row, i+2, schema, index)
		if diag != nil {
			result.Rejected = append(result.Rejected, *diag)
			continue
		}
		result.Set.Records = append(result.Set.Records, rec)
	}

	if result.Set.Len() == 0 {
		return result, &EmptyResultError{
			Source:   table.Source,
			Role:     schema.Role,
			Total:    result.Total,
			Rejected: len(result.Rejected),
		}
	}
	return result, nil
}

func buildRecord(row []string, line int, schema Schema, index map[string]int) (Record, *RowDiagnostic) {
	rec := Record{
		Line:   line,
		Fields: make(map[string]string, len(schema.Required)),
		Values: make(map[string]float64, len(schema.Required)),
	}
	for _, col := range schema.Required {
		pos := index[col]
		if pos >= len(row) {
			return Record{}, &RowDiagnostic{Line: line, Column: col, Reason: "is missing"}
		}
		cell := strings.TrimSpace(row[pos])
		if cell == "" {
			return Record{}, &RowDiagnostic{Line: line, Column: col, Reason: "is empty"}
		}
		rec.Fields[col] = cell
		if col == ColTimestamp {
			rec.Timestamp = cell
			continue
		}

		v, err := strconv.ParseFloat(cell, 64)
		finite := err == nil && !math.IsNaN(v) && !math.IsInf(v, 0)
		if schema.isNumeric(col) && !finite {
			return Record{}, &RowDiagnostic{Line: line, Column: col, Value: cell, Reason: "is not a number"}
		}
		if finite {
			rec.Values[col] = v
		}
	}
	return rec, nil
}

// LogDiagnostics writes one WARN line per rejected row
func LogDiagnostics(ctx context.Context, logger *slog.Logger, result *ValidationResult) {
	if logger == nil || result == nil {
		return
	}
	source := ""
	if result.Set != nil && len(result.Set.Sources) > 0 {
		source = result.Set.Sources[0]
	}
	for _, d := range result.Rejected {
		logger.WarnContext(ctx, "row rejected",
			slog.String("source", source),
			slog.Int("line", d.Line),
			slog.String("column", d.Column),
			slog.String("reason", d.Reason))
	}
}

// Load reads and validates one file for role
func Load(ctx context.Context, r io.Reader, source string, role Role) (*ValidationResult, error) {
	schema, err := SchemaFor(role)
	if err != nil {
		return nil, err
	}
	table, err := ReadCSV(ctx, r, source)
	if err != nil {
		var se *SchemaError
		if errors.As(err, &se) {
			se.Role = role
		}
		return nil, err
	}
	return Validate(table, schema)
}
