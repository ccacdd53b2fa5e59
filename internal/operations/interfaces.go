package operations

// WebSocketHub broadcasts events to connected clients
type WebSocketHub interface {
	BroadcastUpdate(eventType, step, status string, metadata interface{})
}

// ProgressReporter is implemented by stages that report fine-grained progress
type ProgressReporter interface {
	ReportProgress(progress int, message string) error
}
