package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strings"
)

const utf8BOM = "\ufeff"

// RawTable is a parsed CSV file: a trimmed header and the data rows as
// read. Rows may be shorter or longer than the header.
type RawTable struct {
	Source string
	Header []string
	Rows   [][]string
}

// Index returns the header position of col, or -1
func (t *RawTable) Index(col string) int {
	for i, h := range t.Header {
		if h == col {
			return i
		}
	}
	return -1
}

// ReadCSV parses a CSV stream whose first line is the header. Blank lines
// are skipped and a leading UTF-8 BOM is removed. The context is checked
// between rows so large uploads can be abandoned.
func ReadCSV(ctx context.Context, r io.Reader, source string) (*RawTable, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.ReuseRecord = false

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, &SchemaError{Source: source, Reason: "file is empty, header row required"}
	}
	if err != nil {
		return nil, &ParseError{Source: source, Err: err}
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], utf8BOM)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	table := &RawTable{Source: source, Header: header}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &ParseError{Source: source, Err: err}
		}
		if isBlank(row) {
			continue
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
