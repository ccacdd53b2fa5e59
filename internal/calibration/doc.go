// Package calibration derives the per-channel baseline from a calibration
// recording and z-scores training and test data against it.
package calibration
