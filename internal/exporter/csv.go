package exporter

import (
	"encoding/csv"
	"fmt"
	"io"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// WriteOptions configures CSV writing behavior
type WriteOptions struct {
	Headers   []string
	Records   [][]string
	BOMPrefix bool // Add UTF-8 BOM for Excel compatibility
}

// WriteCSV writes headers and records to w
func WriteCSV(w io.Writer, options WriteOptions) error {
	if options.BOMPrefix {
		if _, err := w.Write(utf8BOM); err != nil {
			return fmt.Errorf("failed to write BOM: %w", err)
		}
	}

	writer := csv.NewWriter(w)

	if len(options.Headers) > 0 {
		if err := writer.Write(options.Headers); err != nil {
			return fmt.Errorf("failed to write headers: %w", err)
		}
	}

	for i, record := range options.Records {
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeReportCSV(w io.Writer, r *Report) error {
	table := r.predictionTable()
	records := make([][]string, len(table.rows))
	for i, row := range table.rows {
		records[i] = make([]string, len(row))
		for j, cell := range row {
			records[i][j] = csvCell(cell)
		}
	}
	return WriteCSV(w, WriteOptions{
		Headers:   table.headers,
		Records:   records,
		BOMPrefix: true,
	})
}

func csvCell(v interface{}) string {
	switch x := v.(type) {
	case float64:
		return formatFloat(x)
	case int:
		return formatInt(x)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}
