package exporter

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// Sheet names of the XLSX workbook
const (
	SheetPredictions  = "Predictions"
	SheetStandardized = "Standardized"
)

func writeReportXLSX(w io.Writer, r *Report) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetPredictions); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}
	if err := writeSheet(f, SheetPredictions, r.predictionTable()); err != nil {
		return err
	}

	if r.Standardized != nil {
		if _, err := f.NewSheet(SheetStandardized); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", SheetStandardized, err)
		}
		if err := writeSheet(f, SheetStandardized, r.standardizedTable()); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, t table) error {
	header := make([]interface{}, len(t.headers))
	for i, h := range t.headers {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write %s header: %w", sheet, err)
	}

	for i, row := range t.rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := row
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, i, err)
		}
	}

	return f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}
