// Package session holds per-user pipeline state: the calibration baseline,
// training data and model, standardized test data, predictions and the
// playback cursor. Sessions live in a Store keyed by ID.
package session
