// Package merge joins muscle-sensor logs with the joint-angle logs recorded
// alongside them, producing the training files the pipeline consumes.
//
// Files are paired by the timestamp embedded in their names. Rows are then
// joined by nearest timestamp after the muscle log's whole-second stamps
// have been spread over the second at the sensor's sample rate.
package merge
