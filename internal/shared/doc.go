// Package shared holds code used across armpose packages that belongs to no
// single layer.
//
// The testutil subpackage provides a capturing slog handler and CSV fixture
// builders for calibration, training and test files:
//
//	logger, logs := testutil.NewTestLogger(t)
//	csv := testutil.CalibrationCSV([][]float64{{1, 2, ...}, ...})
package shared
