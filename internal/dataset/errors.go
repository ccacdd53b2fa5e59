package dataset

import (
	"fmt"
	"strings"

	apperrors "armpose/internal/errors"
)

// SchemaError means a required column is absent from the file. It aborts
// the whole file.
type SchemaError struct {
	Source  string
	Role    Role
	Missing []string
	Reason  string
}

func (e *SchemaError) Error() string {
	var b strings.Builder
	if e.Source != "" {
		fmt.Fprintf(&b, "%s: ", e.Source)
	}
	if len(e.Missing) > 0 {
		fmt.Fprintf(&b, "missing required columns: %s", strings.Join(e.Missing, ", "))
	} else {
		b.WriteString(e.Reason)
	}
	return b.String()
}

func (e *SchemaError) ErrorType() apperrors.ErrorType { return apperrors.ErrTypeSchema }

func (e *SchemaError) ProblemExtensions() map[string]interface{} {
	ext := map[string]interface{}{"role": e.Role}
	if e.Source != "" {
		ext["source"] = e.Source
	}
	if len(e.Missing) > 0 {
		ext["missing_columns"] = e.Missing
	}
	return ext
}

// EmptyResultError is returned when no row survives validation. It is a
// warning state: the file parsed, but carries no usable data.
type EmptyResultError struct {
	Source   string
	Role     Role
	Total    int
	Rejected int
}

func (e *EmptyResultError) Error() string {
	return fmt.Sprintf("%s: no valid %s rows (%d rows read, %d rejected)", e.Source, e.Role, e.Total, e.Rejected)
}

func (e *EmptyResultError) ErrorType() apperrors.ErrorType { return apperrors.ErrTypeEmptyResult }

func (e *EmptyResultError) ProblemExtensions() map[string]interface{} {
	return map[string]interface{}{
		"source":   e.Source,
		"role":     e.Role,
		"total":    e.Total,
		"rejected": e.Rejected,
	}
}

// ParseError wraps a CSV syntax failure
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: parse csv: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) ErrorType() apperrors.ErrorType { return apperrors.ErrTypeParsing }

// RowDiagnostic describes one rejected row. Rows are dropped, never fatal.
type RowDiagnostic struct {
	// Line is the 1-based file line: row index + 2.
	Line   int    `json:"line"`
	Column string `json:"column"`
	Value  string `json:"value,omitempty"`
	Reason string `json:"reason"`
}

func (d RowDiagnostic) Error() string {
	if d.Value == "" {
		return fmt.Sprintf("row %d: %s %s", d.Line, d.Column, d.Reason)
	}
	return fmt.Sprintf("row %d: %s %s (%q)", d.Line, d.Column, d.Reason, d.Value)
}

func (d RowDiagnostic) ErrorType() apperrors.ErrorType { return apperrors.ErrTypeValidation }
