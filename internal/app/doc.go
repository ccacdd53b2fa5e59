// Package app wires the arm pose web service together: configuration,
// logging, OpenTelemetry, the WebSocket hub, the operations manager, the
// session store and the HTTP router.
//
// New builds everything from an explicit config and logger so tests can
// run the full router in-process. NewApplication is the production entry
// point; Run blocks until SIGINT or SIGTERM and then shuts down the server,
// stops playback goroutines, closes the hub and flushes telemetry.
package app
