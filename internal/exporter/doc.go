// Package exporter writes decoded predictions to CSV or XLSX.
//
// CSV output carries one row per test frame with a UTF-8 BOM so
// spreadsheet tools detect the encoding. XLSX output adds a second sheet
// with the standardized test frames next to the predictions.
//
//	e := exporter.NewExporter(paths, logger)
//	path, err := e.Save("predictions.xlsx", &exporter.Report{
//		SessionID:    sess.ID,
//		Predictions:  preds,
//		Standardized: std,
//	})
package exporter
