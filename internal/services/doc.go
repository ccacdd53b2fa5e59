// Package services implements the business logic layer between the HTTP
// handlers and the pipeline packages.
//
// PipelineService owns the session store and the operations manager. Every
// upload is validated with the dataset package, its rejected rows are
// logged and counted, and the accepted records are handed to the matching
// pipeline stage:
//
//	calibration upload  -> calibrate
//	training uploads    -> prepare_training
//	train request       -> train
//	test upload         -> predict
//
// Results are read back from the session: decoded frames with their solved
// arm poses, the standardized test records, CSV/XLSX exports and the
// playback cursor.
//
// HealthService reports on the live sessions, running operations and
// connected WebSocket clients.
package services
