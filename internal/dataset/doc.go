// Package dataset reads the sensor CSV logs and validates them against the
// calibration, training and test schemas.
//
// Validation has two failure levels. A required column missing from the
// header is a SchemaError and rejects the file. A row with an empty or
// malformed cell is dropped and reported as a RowDiagnostic; the rest of the
// file is kept. A file where no row survives yields an EmptyResultError
// together with the (empty) result so callers can still show diagnostics.
package dataset
