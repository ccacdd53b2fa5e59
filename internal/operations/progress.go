package operations

import (
	"fmt"
	"sync"
	"time"
)

// ProgressTracker counts work units and estimates the time remaining
type ProgressTracker struct {
	Step      string
	Total     int
	Current   int
	StartTime time.Time
	Message   string
	mu        sync.Mutex
}

// NewProgressTracker starts tracking total units of work
func NewProgressTracker(step string, total int) *ProgressTracker {
	return &ProgressTracker{
		Step:      step,
		Total:     total,
		StartTime: time.Now(),
	}
}

// Update sets the current unit and message
func (p *ProgressTracker) Update(current int, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Current = current
	p.Message = message
}

// GetProgress returns the current position and percentage
func (p *ProgressTracker) GetProgress() (current, total int, percentage float64, message string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.Total > 0 {
		percentage = float64(p.Current) / float64(p.Total) * 100
	}
	return p.Current, p.Total, percentage, p.Message
}

// GetETA estimates the remaining time from the average rate so far
func (p *ProgressTracker) GetETA() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.Current == 0 || p.Total == 0 {
		return "calculating..."
	}

	elapsed := time.Since(p.StartTime)
	rate := float64(p.Current) / elapsed.Seconds()
	if rate == 0 {
		return "calculating..."
	}

	return formatSeconds(float64(p.Total-p.Current) / rate)
}

// IsComplete reports whether every unit is done
func (p *ProgressTracker) IsComplete() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Current >= p.Total
}

func formatSeconds(s float64) string {
	switch {
	case s < 60:
		return fmt.Sprintf("%.0f seconds", s)
	case s < 3600:
		return fmt.Sprintf("%.1f minutes", s/60)
	default:
		return fmt.Sprintf("%.1f hours", s/3600)
	}
}
